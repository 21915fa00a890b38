// Package validation decides whether the current access token is still good,
// locally from its claims and remotely by asking the server.
//
// The local check fails closed. The remote check fails open: only an explicit
// 401 counts as invalid, so a flaky network never ends a session.
package validation

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/internal/schedule"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Pinger issues the lightweight authenticated probe.
type Pinger interface {
	Ping(ctx context.Context, accessToken string) error
}

// Checker combines the local and remote checks.
type Checker struct {
	decoder *jwt.Decoder
	pinger  Pinger
	clock   clockwork.Clock
	log     *zap.Logger
}

// NewChecker returns a [Checker].
func NewChecker(decoder *jwt.Decoder, pinger Pinger, clock clockwork.Clock, logger *zap.Logger) (*Checker, error) {
	if decoder == nil || pinger == nil || clock == nil {
		return nil, errors.New("validation checker dependencies are incomplete")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{decoder: decoder, pinger: pinger, clock: clock, log: logger}, nil
}

// ExpiredLocally reports whether token is expired or undecodable.
func (c *Checker) ExpiredLocally(token string) bool {
	return c.decoder.ExpiredLocally(token, c.clock.Now())
}

// ValidateRemotely returns false only when the server answers 401.
func (c *Checker) ValidateRemotely(ctx context.Context, token string) bool {
	err := c.pinger.Ping(ctx, token)
	if err == nil {
		return true
	}
	if api.IsUnauthorized(err) {
		return false
	}
	c.log.Debug("remote validation inconclusive, assuming valid", zap.Error(err))
	return true
}

// Poller re-validates the token on an interval.
type Poller struct {
	checker *Checker
	token   func() (string, bool)
	invalid func(ctx context.Context)
	log     *zap.Logger
	loop    *schedule.Loop
}

// NewPoller returns a disarmed poller. invalid runs when the server rejects
// the token.
func NewPoller(checker *Checker, interval time.Duration, token func() (string, bool), invalid func(ctx context.Context)) (*Poller, error) {
	if interval <= 0 {
		return nil, errors.New("validation interval must be > 0")
	}
	if checker == nil || token == nil || invalid == nil {
		return nil, errors.New("validation poller dependencies are incomplete")
	}
	p := &Poller{
		checker: checker,
		token:   token,
		invalid: invalid,
		log:     checker.log,
	}
	p.loop = schedule.NewLoop(checker.clock, interval, false, func(ctx context.Context) {
		p.Check(ctx)
	})
	return p, nil
}

// Arm starts polling.
func (p *Poller) Arm(ctx context.Context) {
	p.loop.Start(ctx)
}

// Disarm stops polling.
func (p *Poller) Disarm() {
	p.loop.Stop()
}

// Armed reports whether the poller is running.
func (p *Poller) Armed() bool {
	return p.loop.Running()
}

// Check runs one cycle and reports whether the session survived it.
func (p *Poller) Check(ctx context.Context) bool {
	token, ok := p.token()
	if !ok || ctx.Err() != nil {
		return true
	}
	if p.checker.ValidateRemotely(ctx, token) {
		return true
	}
	p.log.Info("server rejected access token")
	p.invalid(ctx)
	return false
}
