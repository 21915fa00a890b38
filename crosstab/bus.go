package crosstab

import (
	"context"
	"sync"

	"github.com/MrEthical07/goSession/session"
)

const subscriptionBuffer = 64

// Bus publishes storage mutations and lets peers observe them.
type Bus interface {
	Publish(ctx context.Context, m session.Mutation) error
	// Subscribe returns once the subscription is live.
	Subscribe(ctx context.Context) (*Subscription, error)
}

// Subscription is an active stream of mutations. C is closed after Close.
type Subscription struct {
	C     <-chan session.Mutation
	close func() error
	once  sync.Once
	err   error
}

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		if s.close != nil {
			s.err = s.close()
		}
	})
	return s.err
}

// MemoryBus is an in-process [Bus].
type MemoryBus struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]chan session.Mutation
}

// NewMemoryBus returns an empty [MemoryBus].
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[int]chan session.Mutation)}
}

// Publish delivers m to every subscriber. Slow subscribers drop messages.
func (b *MemoryBus) Publish(_ context.Context, m session.Mutation) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- m:
		default:
		}
	}
	return nil
}

// Subscribe registers a new subscriber.
func (b *MemoryBus) Subscribe(_ context.Context) (*Subscription, error) {
	ch := make(chan session.Mutation, subscriptionBuffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	return &Subscription{
		C: ch,
		close: func() error {
			b.mu.Lock()
			defer b.mu.Unlock()
			delete(b.subs, id)
			close(ch)
			return nil
		},
	}, nil
}
