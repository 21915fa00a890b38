// Package schedule runs a function on a clockwork ticker between Start and
// Stop. Stop is synchronous with respect to future ticks: once it returns no
// new invocation begins, and the context handed to an in-flight invocation is
// cancelled.
package schedule

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Loop is a restartable ticker loop.
type Loop struct {
	clock     clockwork.Clock
	interval  time.Duration
	immediate bool
	run       func(ctx context.Context)

	mu     sync.Mutex
	gen    uint64
	cancel context.CancelFunc
}

// NewLoop returns a stopped loop. When immediate is set, run is also invoked
// once right after each Start.
func NewLoop(clock clockwork.Clock, interval time.Duration, immediate bool, run func(ctx context.Context)) *Loop {
	return &Loop{
		clock:     clock,
		interval:  interval,
		immediate: immediate,
		run:       run,
	}
}

// Start arms the loop, replacing any previous arming. The ticker is registered
// before Start returns. ctx only supplies values; its cancellation does not
// stop the loop.
func (l *Loop) Start(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.stopLocked()
	l.gen++
	gen := l.gen

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.cancel = cancel
	ticker := l.clock.NewTicker(l.interval)

	go l.loop(loopCtx, ticker, gen)
}

func (l *Loop) loop(ctx context.Context, ticker clockwork.Ticker, gen uint64) {
	defer ticker.Stop()

	if l.immediate && l.current(gen) {
		l.run(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if !l.current(gen) {
				return
			}
			l.run(ctx)
		}
	}
}

// Stop disarms the loop. It does not wait for an in-flight run, so it is safe
// to call from inside run.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopLocked()
}

func (l *Loop) stopLocked() {
	if l.cancel == nil {
		return
	}
	l.cancel()
	l.cancel = nil
	l.gen++
}

// Running reports whether the loop is armed.
func (l *Loop) Running() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil
}

func (l *Loop) current(gen uint64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cancel != nil && l.gen == gen
}
