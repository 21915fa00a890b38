// Package crosstab propagates storage mutations between processes that share
// one credential store, and turns peer logouts into local teardown.
//
// A [Bus] is the publish/observe channel. [RedisBus] uses Redis PUBLISH and
// SUBSCRIBE so every process attached to the same Redis acts as a tab;
// [MemoryBus] serves single-process deployments and tests.
//
// The [Synchronizer] ignores mutations stamped with its own origin and fires on
// removal of the access token or a write of the logout broadcast marker. It
// never writes to the store.
package crosstab
