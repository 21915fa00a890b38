// Package idle ends a session after a period with no user interaction.
package idle

import (
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Qualifying interaction events.
const (
	EventMouseMove  = "mousemove"
	EventMouseDown  = "mousedown"
	EventKeyPress   = "keypress"
	EventScroll     = "scroll"
	EventTouchStart = "touchstart"
	EventClick      = "click"
)

var activityEvents = map[string]struct{}{
	EventMouseMove:  {},
	EventMouseDown:  {},
	EventKeyPress:   {},
	EventScroll:     {},
	EventTouchStart: {},
	EventClick:      {},
}

// IsActivityEvent reports whether event resets the idle countdown.
func IsActivityEvent(event string) bool {
	_, ok := activityEvents[event]
	return ok
}

// Events returns the qualifying event names.
func Events() []string {
	return []string{EventMouseMove, EventMouseDown, EventKeyPress, EventScroll, EventTouchStart, EventClick}
}

// Config holds the idle timings.
type Config struct {
	Timeout time.Duration
	// ResetThrottle bounds how often an event re-arms the timer. Zero
	// re-arms on every event.
	ResetThrottle time.Duration
}

// Monitor is a single resettable countdown.
type Monitor struct {
	cfg    Config
	clock  clockwork.Clock
	onIdle func()
	log    *zap.Logger

	mu      sync.Mutex
	running bool
	seq     uint64
	timer   clockwork.Timer
	last    time.Time
	limiter *rate.Limiter
}

// New returns a stopped monitor. onIdle runs on a timer goroutine.
func New(cfg Config, clock clockwork.Clock, onIdle func(), logger *zap.Logger) (*Monitor, error) {
	if cfg.Timeout <= 0 {
		return nil, errors.New("idle timeout must be > 0")
	}
	if cfg.ResetThrottle < 0 {
		return nil, errors.New("idle reset throttle must be >= 0")
	}
	if clock == nil || onIdle == nil {
		return nil, errors.New("idle monitor requires a clock and callback")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		cfg:    cfg,
		clock:  clock,
		onIdle: onIdle,
		log:    logger,
	}, nil
}

func (m *Monitor) newLimiter() *rate.Limiter {
	if m.cfg.ResetThrottle == 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(m.cfg.ResetThrottle), 1)
}

// Start begins the countdown from now.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = true
	m.last = m.clock.Now()
	m.limiter = m.newLimiter()
	m.armLocked(m.cfg.Timeout)
}

// Stop cancels the countdown. No callback runs after Stop returns unless it
// had already begun.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.running = false
	m.seq++
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Running reports whether the countdown is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Touch records a qualifying event. It returns false for unknown events or
// when the monitor is stopped.
func (m *Monitor) Touch(event string) bool {
	if !IsActivityEvent(event) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return false
	}

	now := m.clock.Now()
	if now.After(m.last) {
		m.last = now
	}
	if m.limiter.AllowN(now, 1) {
		m.armLocked(m.cfg.Timeout)
	}
	return true
}

// LastActivity returns the most recent qualifying event time.
func (m *Monitor) LastActivity() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

// Active reports whether an event was seen within threshold.
func (m *Monitor) Active(threshold time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.clock.Since(m.last) < threshold
}

func (m *Monitor) armLocked(d time.Duration) {
	if m.timer != nil {
		m.timer.Stop()
	}
	m.seq++
	seq := m.seq
	m.timer = m.clock.AfterFunc(d, func() { m.fire(seq) })
}

func (m *Monitor) fire(seq uint64) {
	m.mu.Lock()
	if !m.running || seq != m.seq {
		m.mu.Unlock()
		return
	}

	// Throttled events moved last forward without re-arming.
	remaining := m.last.Add(m.cfg.Timeout).Sub(m.clock.Now())
	if remaining > 0 {
		m.armLocked(remaining)
		m.mu.Unlock()
		return
	}

	m.running = false
	m.timer = nil
	idleFor := m.clock.Since(m.last)
	m.mu.Unlock()

	m.log.Info("idle timeout reached", zap.Duration("idle_for", idleFor))
	m.onIdle()
}
