package goSession

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/MrEthical07/goSession/crosstab"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
	"github.com/alicebob/miniredis/v2"
	gjwt "github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testPrefix = "test"

var testSigningKey = []byte("test-signing-key")

// fakeBackend is an in-process auth API. Token lifetimes follow the shared
// fake clock.
type fakeBackend struct {
	t     *testing.T
	clock clockwork.Clock
	srv   *httptest.Server

	mu            sync.Mutex
	subject       string
	tokenRoles    any
	loginRoles    any
	tokenTTL      time.Duration
	loginStatus   int
	omitRefresh   bool
	refreshStatus int
	refreshGate   chan struct{}
	pingStatus    int
	appStatus     int
	version       string
	onRevoke      func()
	override      http.HandlerFunc

	issued    atomic.Int32
	logins    atomic.Int32
	refreshes atomic.Int32
	revokes   atomic.Int32
	pings     atomic.Int32
}

func newFakeBackend(t *testing.T, clock clockwork.Clock) *fakeBackend {
	t.Helper()
	b := &fakeBackend{
		t:          t,
		clock:      clock,
		subject:    "u-1",
		tokenRoles: []string{permission.RoleNameManager},
		tokenTTL:   time.Hour,
		version:    "v1",
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", b.handleLogin)
	mux.HandleFunc("/auth/refresh", b.handleRefresh)
	mux.HandleFunc("/auth/revoke", b.handleRevoke)
	mux.HandleFunc("/auth/ping", b.handlePing)
	mux.HandleFunc("/version.json", b.handleVersion)
	mux.HandleFunc("/api/data", b.handleApp)

	b.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		override := b.override
		b.mu.Unlock()
		if override != nil {
			override(w, r)
			return
		}
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(b.srv.Close)
	return b
}

func (b *fakeBackend) set(fn func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	fn(b)
}

func (b *fakeBackend) token(ttl time.Duration) string {
	b.mu.Lock()
	sub, roles := b.subject, b.tokenRoles
	b.mu.Unlock()
	return signToken(b.t, sub, roles, b.clock.Now().Add(ttl), int(b.issued.Add(1)))
}

func signToken(t *testing.T, sub string, roles any, exp time.Time, jti int) string {
	t.Helper()
	claims := gjwt.MapClaims{
		"exp": exp.Unix(),
		"jti": fmt.Sprintf("t-%d", jti),
	}
	if sub != "" {
		claims["sub"] = sub
	}
	if roles != nil {
		claims["role"] = roles
	}
	signed, err := gjwt.NewWithClaims(gjwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	require.NoError(t, err)
	return signed
}

func (b *fakeBackend) writeTokens(w http.ResponseWriter, withRoles bool) {
	b.mu.Lock()
	ttl, omit, roles := b.tokenTTL, b.omitRefresh, b.loginRoles
	b.mu.Unlock()

	body := map[string]any{
		"token":           b.token(ttl),
		"tokenExpiration": b.clock.Now().Add(ttl).UnixMilli(),
	}
	if !omit {
		body["refreshToken"] = fmt.Sprintf("rt-%d", b.issued.Load())
	}
	if withRoles && roles != nil {
		body["roles"] = roles
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.logins.Add(1)
	b.mu.Lock()
	status := b.loginStatus
	b.mu.Unlock()
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	b.writeTokens(w, true)
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.refreshes.Add(1)
	b.mu.Lock()
	status, gate := b.refreshStatus, b.refreshGate
	b.mu.Unlock()
	if gate != nil {
		<-gate
	}
	if status != 0 {
		w.WriteHeader(status)
		return
	}
	b.writeTokens(w, false)
}

func (b *fakeBackend) handleRevoke(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	hook := b.onRevoke
	b.mu.Unlock()
	if hook != nil {
		hook()
	}
	b.revokes.Add(1)
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) handlePing(w http.ResponseWriter, r *http.Request) {
	b.pings.Add(1)
	b.mu.Lock()
	status := b.pingStatus
	b.mu.Unlock()
	if status == 0 {
		status = http.StatusNoContent
	}
	w.WriteHeader(status)
}

func (b *fakeBackend) handleVersion(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	v := b.version
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"version": v})
}

func (b *fakeBackend) handleApp(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	status := b.appStatus
	b.mu.Unlock()
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

// harness wires engines over one miniredis, one bus, one backend, and one
// fake clock.
type harness struct {
	t       *testing.T
	mr      *miniredis.Miniredis
	rdb     *redis.Client
	bus     *crosstab.MemoryBus
	clock   *clockwork.FakeClock
	backend *fakeBackend
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	clock := clockwork.NewFakeClockAt(time.Now().Truncate(time.Second))
	return &harness{
		t:       t,
		mr:      mr,
		rdb:     rdb,
		bus:     crosstab.NewMemoryBus(),
		clock:   clock,
		backend: newFakeBackend(t, clock),
	}
}

func (h *harness) config() Config {
	cfg := DefaultConfig()
	cfg.API.BaseURL = h.backend.srv.URL
	cfg.Store.RedisPrefix = testPrefix
	cfg.Metrics.Enabled = true
	cfg.Metrics.EnableLatencyHistograms = true
	// Version polling is opted into by the tests that exercise it.
	cfg.Version.Enabled = false
	return cfg
}

func (h *harness) engine(cfg Config, origin string) *Engine {
	h.t.Helper()
	e, err := New().
		WithConfig(cfg).
		WithRedis(h.rdb).
		WithBus(h.bus).
		WithClock(h.clock).
		WithOrigin(origin).
		WithLogger(zaptest.NewLogger(h.t)).
		Build()
	require.NoError(h.t, err)
	h.t.Cleanup(e.Dispose)
	return e
}

func (h *harness) initEngine(cfg Config, origin string) *Engine {
	h.t.Helper()
	e := h.engine(cfg, origin)
	require.NoError(h.t, e.Init(context.Background()))
	return e
}

func (h *harness) loggedIn(cfg Config) *Engine {
	h.t.Helper()
	e := h.initEngine(cfg, "tab-a")
	require.NoError(h.t, e.Login(context.Background(), "alice", "pw"))
	return e
}

func (h *harness) store() *session.Store {
	return session.NewStore(h.rdb, session.Options{Prefix: testPrefix, Origin: "inspector"})
}

// settle lets timer goroutines released by an Advance run.
func settle() {
	time.Sleep(20 * time.Millisecond)
}

type changeLog struct {
	mu      sync.Mutex
	changes []StateChange
}

func watch(e *Engine) *changeLog {
	l := &changeLog{}
	e.Watch(func(c StateChange) {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.changes = append(l.changes, c)
	})
	return l
}

func (l *changeLog) reasons() []LogoutReason {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []LogoutReason
	for _, c := range l.changes {
		if c.To == StateAnonymous && c.Reason != "" {
			out = append(out, c.Reason)
		}
	}
	return out
}

func (l *changeLog) states() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]State, 0, len(l.changes))
	for _, c := range l.changes {
		out = append(out, c.To)
	}
	return out
}

func waitAnonymous(t *testing.T, e *Engine) {
	t.Helper()
	require.Eventually(t, func() bool { return e.State() == StateAnonymous }, 2*time.Second, 5*time.Millisecond)
}
