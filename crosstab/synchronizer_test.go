package crosstab

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type signalRecorder struct {
	mu   sync.Mutex
	seen []session.Mutation
}

func (r *signalRecorder) record(m session.Mutation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, m)
}

func (r *signalRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestIsLogoutSignal(t *testing.T) {
	assert.True(t, IsLogoutSignal(session.Mutation{Key: session.KeyAccessToken, Op: session.OpDelete}))
	assert.True(t, IsLogoutSignal(session.Mutation{Key: session.KeyLogoutBroadcast, Op: session.OpSet}))
	assert.False(t, IsLogoutSignal(session.Mutation{Key: session.KeyAccessToken, Op: session.OpSet}))
	assert.False(t, IsLogoutSignal(session.Mutation{Key: session.KeyRefreshToken, Op: session.OpDelete}))
	assert.False(t, IsLogoutSignal(session.Mutation{Key: session.KeyLogoutBroadcast, Op: session.OpDelete}))
}

func TestSynchronizerIgnoresOwnOrigin(t *testing.T) {
	bus := NewMemoryBus()
	rec := &signalRecorder{}
	s := NewSynchronizer(bus, "tab-a", rec.record, zaptest.NewLogger(t))
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	ctx := context.Background()
	require.NoError(t, bus.Publish(ctx, session.Mutation{Origin: "tab-a", Key: session.KeyLogoutBroadcast, Op: session.OpSet}))
	require.NoError(t, bus.Publish(ctx, session.Mutation{Origin: "tab-b", Key: session.KeyUser, Op: session.OpSet}))
	require.NoError(t, bus.Publish(ctx, session.Mutation{Origin: "tab-b", Key: session.KeyAccessToken, Op: session.OpDelete}))

	require.Eventually(t, func() bool { return rec.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "tab-b", rec.seen[0].Origin)
}

func TestSynchronizerStartTwiceFails(t *testing.T) {
	s := NewSynchronizer(NewMemoryBus(), "tab-a", func(session.Mutation) {}, nil)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()
	assert.Error(t, s.Start(context.Background()))
}

func TestSynchronizerStopIsIdempotent(t *testing.T) {
	s := NewSynchronizer(NewMemoryBus(), "tab-a", func(session.Mutation) {}, nil)
	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	s.Stop()
}

func TestRedisBusDeliversAcrossStores(t *testing.T) {
	mr := miniredis.RunT(t)
	rdbA := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rdbB := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdbA.Close()
		rdbB.Close()
	})

	logger := zaptest.NewLogger(t)
	busA := NewRedisBus(rdbA, "gs", logger)
	busB := NewRedisBus(rdbB, "gs", logger)
	assert.Equal(t, "gs:storage", busA.Channel())

	rec := &signalRecorder{}
	syncB := NewSynchronizer(busB, "tab-b", rec.record, logger)
	require.NoError(t, syncB.Start(context.Background()))
	defer syncB.Stop()

	storeA := session.NewStore(rdbA, session.Options{Prefix: "gs", Origin: "tab-a", Publisher: busA, Logger: logger})
	ctx := context.Background()
	require.NoError(t, storeA.Save(ctx, "acc", "ref", time.Now().Add(time.Hour)))
	require.NoError(t, storeA.BroadcastLogout(ctx))

	require.Eventually(t, func() bool { return rec.count() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, session.KeyLogoutBroadcast, rec.seen[0].Key)
}
