// Package version forces a logout when the deployed application version
// changes underneath a running session.
package version

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/internal/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Result is the outcome of one watcher cycle.
type Result uint8

const (
	// ResultSkipped means no signal this cycle (fetch or read failure).
	ResultSkipped Result = iota
	// ResultBaselined means the first value was stored.
	ResultBaselined
	// ResultUnchanged means the value matches the baseline.
	ResultUnchanged
	// ResultChanged means the value differs and the session was ended.
	ResultChanged
)

// BaselineStore persists the baseline across restarts.
type BaselineStore interface {
	VersionBaseline(ctx context.Context) (string, bool, error)
	SetVersionBaseline(ctx context.Context, version string) error
	ClearVersionBaseline(ctx context.Context) error
}

// Deps are the collaborators the watcher drives.
type Deps struct {
	Clock    clockwork.Clock
	Fetch    func(ctx context.Context) (string, error)
	Baseline BaselineStore
	// Changed runs at most once per arming.
	Changed func(ctx context.Context, previous, current string)
	Logger  *zap.Logger
}

// Watcher polls the version marker.
type Watcher struct {
	deps Deps
	loop *schedule.Loop

	mu    sync.Mutex
	fired bool
}

// New returns a disarmed watcher. The first check runs as soon as it is armed.
func New(interval time.Duration, deps Deps) (*Watcher, error) {
	if interval <= 0 {
		return nil, errors.New("version poll interval must be > 0")
	}
	if deps.Clock == nil || deps.Fetch == nil || deps.Baseline == nil || deps.Changed == nil {
		return nil, errors.New("version watcher dependencies are incomplete")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	w := &Watcher{deps: deps}
	w.loop = schedule.NewLoop(deps.Clock, interval, true, func(ctx context.Context) {
		w.Check(ctx)
	})
	return w, nil
}

// Arm starts polling and resets the one-shot guard.
func (w *Watcher) Arm(ctx context.Context) {
	w.mu.Lock()
	w.fired = false
	w.mu.Unlock()
	w.loop.Start(ctx)
}

// Disarm stops polling.
func (w *Watcher) Disarm() {
	w.loop.Stop()
}

// Armed reports whether the watcher is polling.
func (w *Watcher) Armed() bool {
	return w.loop.Running()
}

// Check runs one cycle.
func (w *Watcher) Check(ctx context.Context) Result {
	if w.hasFired() || ctx.Err() != nil {
		return ResultSkipped
	}

	current, err := w.deps.Fetch(ctx)
	if err != nil {
		w.deps.Logger.Debug("version fetch failed", zap.Error(err))
		return ResultSkipped
	}

	previous, ok, err := w.deps.Baseline.VersionBaseline(ctx)
	if err != nil {
		w.deps.Logger.Debug("version baseline read failed", zap.Error(err))
		return ResultSkipped
	}
	if !ok {
		if err := w.deps.Baseline.SetVersionBaseline(ctx, current); err != nil {
			w.deps.Logger.Warn("version baseline write failed", zap.Error(err))
		}
		return ResultBaselined
	}
	if previous == current {
		return ResultUnchanged
	}

	w.mu.Lock()
	if w.fired {
		w.mu.Unlock()
		return ResultSkipped
	}
	w.fired = true
	w.mu.Unlock()

	if err := w.deps.Baseline.ClearVersionBaseline(ctx); err != nil {
		w.deps.Logger.Warn("version baseline clear failed", zap.Error(err))
	}
	w.deps.Logger.Info("deployment version changed",
		zap.String("previous", previous),
		zap.String("current", current),
	)
	w.deps.Changed(ctx, previous, current)
	return ResultChanged
}

func (w *Watcher) hasFired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
