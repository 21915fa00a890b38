package crosstab

import (
	"context"
	"errors"
	"sync"

	"github.com/MrEthical07/goSession/session"
	"go.uber.org/zap"
)

// IsLogoutSignal reports whether m tells peers to drop their session.
func IsLogoutSignal(m session.Mutation) bool {
	switch {
	case m.Key == session.KeyAccessToken && m.Op == session.OpDelete:
		return true
	case m.Key == session.KeyLogoutBroadcast && m.Op == session.OpSet:
		return true
	default:
		return false
	}
}

// Synchronizer mirrors peer logouts into the local process.
type Synchronizer struct {
	bus      Bus
	origin   string
	onLogout func(session.Mutation)
	log      *zap.Logger

	mu   sync.Mutex
	sub  *Subscription
	done chan struct{}
}

// NewSynchronizer returns a stopped [Synchronizer]. onLogout runs on the
// synchronizer goroutine and must not call [Synchronizer.Stop].
func NewSynchronizer(bus Bus, origin string, onLogout func(session.Mutation), logger *zap.Logger) *Synchronizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Synchronizer{
		bus:      bus,
		origin:   origin,
		onLogout: onLogout,
		log:      logger,
	}
}

// Start subscribes to the bus. Starting twice is an error.
func (s *Synchronizer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		return errors.New("synchronizer already started")
	}

	sub, err := s.bus.Subscribe(ctx)
	if err != nil {
		return err
	}
	s.sub = sub
	s.done = make(chan struct{})

	go s.run(sub, s.done)
	return nil
}

func (s *Synchronizer) run(sub *Subscription, done chan struct{}) {
	defer close(done)
	for m := range sub.C {
		if m.Origin == s.origin {
			continue
		}
		if !IsLogoutSignal(m) {
			continue
		}
		s.log.Debug("peer logout observed",
			zap.String("origin", m.Origin),
			zap.String("key", m.Key),
		)
		s.onLogout(m)
	}
}

// Stop unsubscribes and waits for the delivery goroutine to exit.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	sub, done := s.sub, s.done
	s.sub, s.done = nil, nil
	s.mu.Unlock()

	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		s.log.Debug("close storage subscription", zap.Error(err))
	}
	<-done
}
