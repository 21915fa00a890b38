package crosstab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MrEthical07/goSession/session"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisBus carries mutations over a Redis pub/sub channel.
type RedisBus struct {
	rdb     redis.UniversalClient
	channel string
	log     *zap.Logger
}

// NewRedisBus returns a bus on "<prefix>:storage".
func NewRedisBus(rdb redis.UniversalClient, prefix string, logger *zap.Logger) *RedisBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBus{
		rdb:     rdb,
		channel: prefix + ":storage",
		log:     logger,
	}
}

// Channel returns the pub/sub channel name.
func (b *RedisBus) Channel() string {
	return b.channel
}

// Publish sends m to every subscriber, including the sender.
func (b *RedisBus) Publish(ctx context.Context, m session.Mutation) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal mutation: %w", err)
	}
	return b.rdb.Publish(ctx, b.channel, data).Err()
}

// Subscribe opens a pub/sub connection and waits for the confirmation.
func (b *RedisBus) Subscribe(ctx context.Context) (*Subscription, error) {
	ps := b.rdb.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("%w: %v", session.ErrStoreUnavailable, err)
	}

	subCtx, cancel := context.WithCancel(context.Background())
	out := make(chan session.Mutation, subscriptionBuffer)
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer close(out)
		msgs := ps.Channel()
		for {
			select {
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var m session.Mutation
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					b.log.Warn("decode storage mutation", zap.Error(err))
					continue
				}
				select {
				case out <- m:
				default:
					b.log.Warn("storage mutation dropped", zap.String("key", m.Key))
				}
			case <-subCtx.Done():
				return
			}
		}
	}()

	return &Subscription{
		C: out,
		close: func() error {
			cancel()
			err := ps.Close()
			<-done
			return err
		},
	}, nil
}
