// Package refresh renews the access token shortly before it expires, but only
// while the user is active.
//
// The scheduler is idle until Arm and idle again after Disarm. Each tick reads
// the expiry from the credential store, so a refresh completed by a peer
// process moves this scheduler's deadline too.
package refresh

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/internal/schedule"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Decision is the outcome of one scheduler cycle.
type Decision uint8

const (
	// DecisionNone means the token is comfortably valid.
	DecisionNone Decision = iota
	// DecisionRefresh means a refresh was attempted.
	DecisionRefresh
	// DecisionExpired means the token had already expired.
	DecisionExpired
	// DecisionInactive means the token is near expiry but the user is idle.
	DecisionInactive
	// DecisionSkipped means the expiry could not be read this cycle.
	DecisionSkipped
)

// Config holds the scheduler timings.
type Config struct {
	Interval time.Duration
	Window   time.Duration
}

// Deps are the collaborators the scheduler drives.
type Deps struct {
	Clock clockwork.Clock
	// ExpiresAt reads the persisted expiry.
	ExpiresAt func(ctx context.Context) (time.Time, error)
	// UserActive reports recent user interaction.
	UserActive func() bool
	// Refresh renews the token. It is responsible for its own failure
	// handling; the scheduler only logs the error.
	Refresh func(ctx context.Context) error
	// Expired tears the session down.
	Expired func(ctx context.Context)
	Logger  *zap.Logger
}

// Scheduler is the refresh timer.
type Scheduler struct {
	cfg  Config
	deps Deps
	loop *schedule.Loop
}

// New returns a disarmed scheduler.
func New(cfg Config, deps Deps) (*Scheduler, error) {
	if cfg.Interval <= 0 || cfg.Window <= 0 {
		return nil, errors.New("refresh interval and window must be > 0")
	}
	if deps.Clock == nil || deps.ExpiresAt == nil || deps.Refresh == nil || deps.Expired == nil {
		return nil, errors.New("refresh scheduler dependencies are incomplete")
	}
	if deps.UserActive == nil {
		deps.UserActive = func() bool { return true }
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	s := &Scheduler{cfg: cfg, deps: deps}
	s.loop = schedule.NewLoop(deps.Clock, cfg.Interval, false, func(ctx context.Context) {
		s.Check(ctx)
	})
	return s, nil
}

// Arm starts (or restarts) polling.
func (s *Scheduler) Arm(ctx context.Context) {
	s.loop.Start(ctx)
}

// Disarm stops polling. A tick already delivered becomes a no-op.
func (s *Scheduler) Disarm() {
	s.loop.Stop()
}

// Armed reports whether the scheduler is polling.
func (s *Scheduler) Armed() bool {
	return s.loop.Running()
}

// Check runs one cycle.
func (s *Scheduler) Check(ctx context.Context) Decision {
	if ctx.Err() != nil {
		return DecisionSkipped
	}

	exp, err := s.deps.ExpiresAt(ctx)
	if err != nil {
		s.deps.Logger.Debug("refresh check skipped", zap.Error(err))
		return DecisionSkipped
	}

	remaining := exp.Sub(s.deps.Clock.Now())
	switch {
	case remaining <= 0:
		s.deps.Logger.Info("access token expired", zap.Time("expires_at", exp))
		s.deps.Expired(ctx)
		return DecisionExpired
	case remaining >= s.cfg.Window:
		return DecisionNone
	case !s.deps.UserActive():
		s.deps.Logger.Debug("refresh deferred, user inactive", zap.Duration("remaining", remaining))
		return DecisionInactive
	}

	if err := s.deps.Refresh(ctx); err != nil {
		s.deps.Logger.Warn("scheduled refresh failed", zap.Error(err))
	}
	return DecisionRefresh
}
