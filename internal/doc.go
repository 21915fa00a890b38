// Package internal groups the private machinery behind the goSession engine.
//
// # Sub-packages
//
//   - audit: async event dispatch (Dispatcher + Sink implementations)
//   - idle: inactivity timeout and activity tracking
//   - metrics: lock-free counters and the refresh latency histogram
//   - refresh: periodic access token renewal
//   - schedule: clock driven polling loop shared by the timers
//   - validation: periodic server-side token check
//   - version: deployed version watcher
//
// # What this package must NOT do
//
//   - Export types that appear in the public goSession API.
//   - Be imported by any package outside the goSession module.
package internal
