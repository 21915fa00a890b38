package goSession

import (
	"context"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPeerLogoutPropagates(t *testing.T) {
	h := newHarness(t)
	a := h.loggedIn(h.config())
	b := h.initEngine(h.config(), "tab-b")
	require.Equal(t, StateAuthenticated, b.State())
	log := watch(b)

	require.NoError(t, a.Logout(context.Background()))
	waitAnonymous(t, b)

	assert.Equal(t, []LogoutReason{ReasonCrossTab}, log.reasons())
	assert.Equal(t, int32(1), h.backend.revokes.Load())
	assert.False(t, b.refresher.Armed())
	assert.False(t, b.idle.Running())
	assert.Equal(t, uint64(1), b.MetricsSnapshot().Counters[MetricCrossTabLogout])

	require.NoError(t, b.Logout(context.Background()))
	assert.Equal(t, int32(1), h.backend.revokes.Load())
}

func TestPeerLogoutPerformsNoWrites(t *testing.T) {
	h := newHarness(t)
	a := h.loggedIn(h.config())

	require.NoError(t, h.bus.Publish(context.Background(), session.Mutation{
		Origin: "tab-z",
		Key:    session.KeyLogoutBroadcast,
		Op:     session.OpSet,
	}))
	waitAnonymous(t, a)

	ok, err := h.store().IsAuthenticated(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, h.mr.Exists(testPrefix+":"+session.KeyLogoutBroadcast))
	assert.Equal(t, int32(0), h.backend.revokes.Load())
}

func TestOwnMutationsAreIgnored(t *testing.T) {
	h := newHarness(t)
	a := h.loggedIn(h.config())

	require.NoError(t, h.bus.Publish(context.Background(), session.Mutation{
		Origin: a.Origin(),
		Key:    session.KeyAccessToken,
		Op:     session.OpDelete,
	}))
	require.NoError(t, h.bus.Publish(context.Background(), session.Mutation{
		Origin: "tab-z",
		Key:    session.KeyUser,
		Op:     session.OpDelete,
	}))
	settle()
	assert.Equal(t, StateAuthenticated, a.State())
}

func TestPeerLogoutOverRedisPubSub(t *testing.T) {
	h := newHarness(t)
	build := func(origin string) *Engine {
		e, err := New().
			WithConfig(h.config()).
			WithRedis(h.rdb).
			WithClock(h.clock).
			WithOrigin(origin).
			WithLogger(zaptest.NewLogger(t)).
			Build()
		require.NoError(t, err)
		t.Cleanup(e.Dispose)
		require.NoError(t, e.Init(context.Background()))
		return e
	}

	a := build("tab-a")
	require.NoError(t, a.Login(context.Background(), "alice", "pw"))
	b := build("tab-b")
	require.Equal(t, StateAuthenticated, b.State())

	require.NoError(t, a.Logout(context.Background()))
	require.Eventually(t, func() bool { return b.State() == StateAnonymous }, 2*time.Second, 5*time.Millisecond)
}
