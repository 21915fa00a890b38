package goSession

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/MrEthical07/goSession/api"
	"github.com/MrEthical07/goSession/crosstab"
	internalaudit "github.com/MrEthical07/goSession/internal/audit"
	"github.com/MrEthical07/goSession/internal/idle"
	internalmetrics "github.com/MrEthical07/goSession/internal/metrics"
	"github.com/MrEthical07/goSession/internal/refresh"
	"github.com/MrEthical07/goSession/internal/validation"
	"github.com/MrEthical07/goSession/internal/version"
	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/middleware"
	"github.com/MrEthical07/goSession/permission"
	"github.com/MrEthical07/goSession/session"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Engine owns one client session: the persisted credentials, the four
// session timers, and the cross-process logout listener.
//
// Engine methods are safe for concurrent use. Call [Engine.Init] before
// anything else and [Engine.Dispose] when done.
type Engine struct {
	config   Config
	log      *zap.Logger
	clock    clockwork.Clock
	origin   string
	store    *session.Store
	api      *api.Client
	httpBase *http.Client
	decoder  *jwt.Decoder
	resolver *permission.Resolver
	checker  *validation.Checker

	refresher *refresh.Scheduler
	idle      *idle.Monitor
	version   *version.Watcher
	poller    *validation.Poller
	sync      *crosstab.Synchronizer

	audit   *internalaudit.Dispatcher
	metrics *internalmetrics.Metrics

	refreshGroup singleflight.Group
	// persistMu orders credential writes from refresh against teardown.
	persistMu sync.Mutex

	mu          sync.RWMutex
	state       State
	record      session.Record
	gen         uint64
	initialized bool
	disposed    bool
	lifeCtx     context.Context
	lifeCancel  context.CancelFunc

	watchMu   sync.Mutex
	watchers  map[uint64]func(StateChange)
	nextWatch uint64
}

/*
====================================
LIFECYCLE
====================================
*/

// Init subscribes to peer logouts and restores a persisted session. A
// persisted record is adopted only if it passes both the local expiry check
// and server validation; otherwise it is discarded. A store that cannot be
// read leaves the engine anonymous. Init is idempotent.
func (e *Engine) Init(ctx context.Context) error {
	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.initialized {
		e.mu.Unlock()
		return nil
	}
	e.lifeCtx, e.lifeCancel = context.WithCancel(context.WithoutCancel(ctx))
	life := e.lifeCtx
	e.mu.Unlock()

	if err := e.sync.Start(life); err != nil {
		e.lifeCancel()
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	e.mu.Lock()
	e.initialized = true
	e.state = StateAuthenticating
	e.mu.Unlock()
	e.notify(StateChange{From: StateAnonymous, To: StateAuthenticating})

	e.restore(ctx)
	return nil
}

// Dispose stops every timer and the peer listener and flushes audit events.
// The persisted session is left in place for the next Init.
func (e *Engine) Dispose() {
	if e == nil {
		return
	}

	e.mu.Lock()
	if e.disposed {
		e.mu.Unlock()
		return
	}
	e.disposed = true
	e.gen++
	e.disarmLocked()
	from := e.state
	e.state = StateAnonymous
	e.record = session.Record{}
	cancel := e.lifeCancel
	e.mu.Unlock()

	e.sync.Stop()
	cancel()
	if from != StateAnonymous {
		e.notify(StateChange{From: from, To: StateAnonymous})
	}
	if e.audit != nil {
		e.audit.Close()
	}
	e.log.Debug("engine disposed")
}

func (e *Engine) lifetime() context.Context {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lifeCtx
}

func (e *Engine) ready() error {
	if e.disposed {
		return ErrEngineClosed
	}
	if !e.initialized {
		return ErrEngineNotInitialized
	}
	return nil
}

/*
====================================
RESTORE
====================================
*/

func (e *Engine) restore(ctx context.Context) {
	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	rec, err := e.store.Get(opCtx)
	if err != nil {
		if !errors.Is(err, session.ErrNoCredentials) {
			e.log.Warn("credential store unreadable, starting anonymous", zap.Error(err))
		}
		e.settleAnonymous()
		return
	}

	// Tokens without identity read as anonymous. They are left in place: a
	// peer may be between writing its tokens and its identity.
	if !rec.Identified {
		e.metricInc(MetricSessionDiscarded)
		e.emitAudit(ctx, auditEventSessionDiscarded, false, "", "", nil, func() map[string]string {
			return map[string]string{"cause": "incomplete"}
		})
		e.log.Info("persisted session incomplete, starting anonymous")
		e.settleAnonymous()
		return
	}

	reason := ""
	switch {
	case e.checker.ExpiredLocally(rec.AccessToken):
		reason = "expired"
	case !e.checker.ValidateRemotely(ctx, rec.AccessToken):
		reason = "unauthorized"
	}
	if reason != "" {
		if err := e.store.Clear(opCtx); err != nil {
			e.log.Warn("discard persisted session", zap.Error(err))
		}
		e.metricInc(MetricSessionDiscarded)
		e.emitAudit(ctx, auditEventSessionDiscarded, false, rec.UserID, "", nil, func() map[string]string {
			return map[string]string{"cause": reason}
		})
		e.log.Info("persisted session discarded", zap.String("cause", reason))
		e.settleAnonymous()
		return
	}

	if !e.adopt(*rec) {
		return
	}
	e.metricInc(MetricSessionRestored)
	e.emitAudit(ctx, auditEventSessionRestored, true, rec.UserID, "", nil, nil)
	e.log.Info("session restored", zap.String("user_id", rec.UserID))
}

func (e *Engine) settleAnonymous() {
	e.mu.Lock()
	if e.state != StateAuthenticating {
		e.mu.Unlock()
		return
	}
	e.state = StateAnonymous
	e.mu.Unlock()
	e.notify(StateChange{From: StateAuthenticating, To: StateAnonymous})
}

// adopt moves Authenticating to Authenticated and arms the timers. It fails
// if the engine was disposed meanwhile.
func (e *Engine) adopt(rec session.Record) bool {
	e.mu.Lock()
	if e.disposed || e.state != StateAuthenticating {
		e.mu.Unlock()
		return false
	}
	e.record = rec
	e.state = StateAuthenticated
	e.gen++
	e.armLocked()
	e.mu.Unlock()

	e.notify(StateChange{From: StateAuthenticating, To: StateAuthenticated})
	return true
}

/*
====================================
LOGIN
====================================
*/

// Login exchanges credentials for a session. Roles come from the token's
// role claim, falling back to the response's roles field. On any failure
// nothing is persisted and the engine returns to anonymous.
func (e *Engine) Login(ctx context.Context, username, password string) error {
	e.mu.Lock()
	if err := e.ready(); err != nil {
		e.mu.Unlock()
		return err
	}
	switch e.state {
	case StateAuthenticated:
		e.mu.Unlock()
		return ErrAlreadyAuthenticated
	case StateAuthenticating:
		e.mu.Unlock()
		return ErrLoginInProgress
	case StateLoggingOut:
		e.mu.Unlock()
		return ErrLogoutInProgress
	}
	e.state = StateAuthenticating
	e.mu.Unlock()
	e.notify(StateChange{From: StateAnonymous, To: StateAuthenticating})

	rec, err := e.login(ctx, username, password)
	if err != nil {
		e.settleAnonymous()
		e.metricInc(MetricLoginFailure)
		e.emitAudit(ctx, auditEventLoginFailure, false, "", "", err, nil)
		e.log.Info("login failed", zap.Error(err))
		return err
	}

	if !e.adopt(*rec) {
		opCtx, cancel := e.opContext(ctx)
		defer cancel()
		if err := e.store.Clear(opCtx); err != nil {
			e.log.Warn("clear after aborted login", zap.Error(err))
		}
		return ErrEngineClosed
	}

	e.metricInc(MetricLoginSuccess)
	e.emitAudit(ctx, auditEventLoginSuccess, true, rec.UserID, "", nil, nil)
	e.log.Info("login succeeded", zap.String("user_id", rec.UserID))
	return nil
}

func (e *Engine) login(ctx context.Context, username, password string) (*session.Record, error) {
	resp, err := e.api.Login(ctx, username, password)
	if err != nil {
		return nil, classifyLoginError(err)
	}

	claims, err := e.decoder.Decode(resp.Token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedLoginResponse, err)
	}

	rec := &session.Record{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    resp.TokenExpiration.Time,
		UserID:       claims.Subject,
		Roles:        claims.Roles,
		Identified:   true,
	}
	if rec.UserID == "" {
		rec.UserID = username
	}
	if len(rec.Roles) == 0 {
		rec.Roles = jwt.NormalizeRoles(resp.Roles)
	}

	opCtx, cancel := e.opContext(ctx)
	defer cancel()
	if err := e.store.Save(opCtx, rec.AccessToken, rec.RefreshToken, rec.ExpiresAt); err != nil {
		return nil, err
	}
	if err := e.store.SetIdentity(opCtx, rec.UserID, rec.Roles); err != nil {
		if cerr := e.store.Clear(opCtx); cerr != nil {
			e.log.Warn("clear partial login", zap.Error(cerr))
		}
		return nil, err
	}
	return rec, nil
}

func classifyLoginError(err error) error {
	var se *api.StatusError
	switch {
	case errors.Is(err, api.ErrMalformedResponse):
		return fmt.Errorf("%w: %v", ErrMalformedLoginResponse, err)
	case errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500:
		return fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	default:
		return fmt.Errorf("%w: %v", ErrLoginUnavailable, err)
	}
}

/*
====================================
LOGOUT
====================================
*/

// Logout ends the session at the user's request. Calling it without a
// session, or while another logout is running, is a no-op. The returned
// error reports only a failed store clear; local state is anonymous either
// way.
func (e *Engine) Logout(ctx context.Context) error {
	return e.endSession(ctx, ReasonUser, false)
}

// ForceLogout ends the session for a policy reason. It has the same
// guarantees as [Engine.Logout].
func (e *Engine) ForceLogout(ctx context.Context, reason LogoutReason) error {
	if reason == "" {
		reason = ReasonUser
	}
	return e.endSession(ctx, reason, reason == ReasonCrossTab)
}

// endSession tears the session down. Timers are disarmed under the lock
// before any network or store call. A peer logout skips revoke and every
// write.
func (e *Engine) endSession(ctx context.Context, reason LogoutReason, peer bool) error {
	e.mu.Lock()
	if e.state != StateAuthenticated {
		e.mu.Unlock()
		return nil
	}
	e.state = StateLoggingOut
	e.gen++
	e.disarmLocked()
	rec := e.record
	e.mu.Unlock()

	e.notify(StateChange{From: StateAuthenticated, To: StateLoggingOut, Reason: reason})

	var storeErr error
	if !peer {
		e.revoke(ctx, rec.AccessToken)

		opCtx, cancel := e.opContext(ctx)
		e.persistMu.Lock()
		if err := e.store.Clear(opCtx); err != nil {
			storeErr = err
			e.log.Warn("clear credentials", zap.Error(err))
		}
		e.persistMu.Unlock()
		if err := e.store.BroadcastLogout(opCtx); err != nil {
			e.log.Warn("broadcast logout", zap.Error(err))
		}
		cancel()
	}

	e.mu.Lock()
	e.record = session.Record{}
	e.state = StateAnonymous
	e.mu.Unlock()

	e.notify(StateChange{From: StateLoggingOut, To: StateAnonymous, Reason: reason})
	e.recordLogout(ctx, rec.UserID, reason, storeErr)
	e.log.Info("session ended", zap.String("reason", string(reason)), zap.String("user_id", rec.UserID))
	return storeErr
}

func (e *Engine) revoke(ctx context.Context, token string) {
	if token == "" {
		return
	}
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.config.API.RevokeTimeout)
	defer cancel()
	if err := e.api.Revoke(rctx, token); err != nil {
		e.metricInc(MetricRevokeFailure)
		e.log.Warn("token revoke failed", zap.Error(err))
	}
}

func (e *Engine) peerLogout(m session.Mutation) {
	e.log.Debug("peer logout", zap.String("key", m.Key), zap.String("peer", m.Origin))
	_ = e.endSession(e.lifetime(), ReasonCrossTab, true)
}

func (e *Engine) versionChanged(ctx context.Context, previous, current string) {
	e.emitAudit(ctx, auditEventVersionChanged, true, e.UserID(), string(ReasonVersionChanged), nil, func() map[string]string {
		return map[string]string{"previous": previous, "current": current}
	})
	_ = e.ForceLogout(ctx, ReasonVersionChanged)
}

/*
====================================
REFRESH
====================================
*/

// Refresh renews the access token. Concurrent calls share one request. Any
// failure ends the session with [ReasonRefreshFailed].
func (e *Engine) Refresh(ctx context.Context) error {
	_, err, _ := e.refreshGroup.Do("refresh", func() (interface{}, error) {
		return nil, e.refresh(ctx)
	})
	return err
}

func (e *Engine) refresh(ctx context.Context) error {
	e.mu.RLock()
	if e.state != StateAuthenticated {
		e.mu.RUnlock()
		return ErrNotAuthenticated
	}
	gen := e.gen
	rec := e.record
	e.mu.RUnlock()

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	// A peer may have rotated the tokens already.
	if stored, err := e.store.Get(opCtx); err == nil && stored.RefreshToken != rec.RefreshToken {
		if e.replaceRecord(gen, *stored) {
			return nil
		}
		return ErrNotAuthenticated
	}

	start := e.clock.Now()
	resp, err := e.api.Refresh(ctx, rec.RefreshToken)
	if err != nil {
		if api.IsUnauthorized(err) || api.IsStatus(err, http.StatusForbidden) || api.IsStatus(err, http.StatusBadRequest) {
			err = fmt.Errorf("%w: %v", ErrRefreshRejected, err)
		} else {
			err = fmt.Errorf("%w: %v", ErrRefreshFailed, err)
		}
		return e.refreshFailed(ctx, gen, rec.UserID, err)
	}

	next := rec
	next.AccessToken = resp.Token
	next.RefreshToken = resp.RefreshToken
	next.ExpiresAt = resp.TokenExpiration.Time
	if claims, derr := e.decoder.Decode(resp.Token); derr == nil && len(claims.Roles) > 0 {
		next.Roles = claims.Roles
	}

	e.persistMu.Lock()
	e.mu.RLock()
	current := e.gen == gen
	e.mu.RUnlock()
	if !current {
		e.persistMu.Unlock()
		return ErrNotAuthenticated
	}
	if err := e.store.Save(opCtx, next.AccessToken, next.RefreshToken, next.ExpiresAt); err != nil {
		e.persistMu.Unlock()
		return e.refreshFailed(ctx, gen, rec.UserID, err)
	}
	if err := e.store.SetIdentity(opCtx, next.UserID, next.Roles); err != nil {
		e.log.Warn("persist refreshed roles", zap.Error(err))
	}
	adopted := e.replaceRecord(gen, next)
	e.persistMu.Unlock()
	if !adopted {
		return ErrNotAuthenticated
	}

	e.metricObserve(MetricRefreshLatency, e.clock.Since(start))
	e.metricInc(MetricRefreshSuccess)
	e.emitAudit(ctx, auditEventRefreshSuccess, true, next.UserID, "", nil, nil)
	e.log.Debug("access token refreshed", zap.Time("expires_at", next.ExpiresAt))
	return nil
}

func (e *Engine) refreshFailed(ctx context.Context, gen uint64, userID string, err error) error {
	e.metricInc(MetricRefreshFailure)
	e.emitAudit(ctx, auditEventRefreshFailure, false, userID, string(ReasonRefreshFailed), err, nil)
	e.log.Warn("refresh failed, ending session", zap.Error(err))

	e.mu.RLock()
	current := e.gen == gen
	e.mu.RUnlock()
	if current {
		_ = e.ForceLogout(ctx, ReasonRefreshFailed)
	}
	return err
}

func (e *Engine) replaceRecord(gen uint64, rec session.Record) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.gen != gen || e.state != StateAuthenticated {
		return false
	}
	// A peer may have written tokens before its identity keys.
	if !rec.Identified {
		rec.UserID, rec.Roles, rec.Identified = e.record.UserID, e.record.Roles, e.record.Identified
	}
	e.record = rec
	return true
}

// currentExpiry reads the persisted expiry and adopts tokens a peer wrote.
func (e *Engine) currentExpiry(ctx context.Context) (time.Time, error) {
	e.mu.RLock()
	gen := e.gen
	e.mu.RUnlock()

	opCtx, cancel := e.opContext(ctx)
	defer cancel()

	rec, err := e.store.Get(opCtx)
	if err != nil {
		return time.Time{}, err
	}
	e.replaceRecord(gen, *rec)
	return rec.ExpiresAt, nil
}

func (e *Engine) userActive() bool {
	return e.idle.Active(e.config.Refresh.ActivityThreshold)
}

/*
====================================
TIMERS
====================================
*/

func (e *Engine) armLocked() {
	ctx := e.lifeCtx
	e.refresher.Arm(ctx)
	e.idle.Start()
	if e.version != nil {
		e.version.Arm(ctx)
	}
	if e.poller != nil {
		e.poller.Arm(ctx)
	}
}

func (e *Engine) disarmLocked() {
	e.refresher.Disarm()
	e.idle.Stop()
	if e.version != nil {
		e.version.Disarm()
	}
	if e.poller != nil {
		e.poller.Disarm()
	}
}

// RecordActivity feeds a user interaction event (mousemove, mousedown,
// keypress, scroll, touchstart, click) to the idle monitor. It reports
// whether the event was accepted.
func (e *Engine) RecordActivity(event string) bool {
	return e.idle.Touch(event)
}

/*
====================================
QUERIES
====================================
*/

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// IsAuthenticated reports whether a session is held.
func (e *Engine) IsAuthenticated() bool {
	return e.State() == StateAuthenticated
}

// UserID returns the session's user identifier, or "".
func (e *Engine) UserID() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.record.UserID
}

// AccessToken returns the current access token.
func (e *Engine) AccessToken() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.state != StateAuthenticated || e.record.AccessToken == "" {
		return "", false
	}
	return e.record.AccessToken, true
}

// Roles returns a copy of the session's role list.
func (e *Engine) Roles() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, len(e.record.Roles))
	copy(out, e.record.Roles)
	return out
}

// PrimaryRole returns the highest-precedence recognized role.
func (e *Engine) PrimaryRole() (string, bool) {
	return e.resolver.PrimaryRole(e.Roles())
}

// Permissions returns the primary role's permissions. Lower roles
// contribute nothing.
func (e *Engine) Permissions() []string {
	return e.resolver.PermissionsFor(e.Roles())
}

// HasPermission reports whether the primary role grants perm.
func (e *Engine) HasPermission(perm string) bool {
	return e.resolver.HasPermission(e.Roles(), perm)
}

// HasAny reports whether the primary role grants at least one of perms.
func (e *Engine) HasAny(perms ...string) bool {
	return e.resolver.HasAny(e.Roles(), perms...)
}

// HasAll reports whether the primary role grants every one of perms.
func (e *Engine) HasAll(perms ...string) bool {
	return e.resolver.HasAll(e.Roles(), perms...)
}

// Origin returns this engine's identity on the mutation bus.
func (e *Engine) Origin() string {
	return e.origin
}

/*
====================================
OBSERVERS
====================================
*/

// Watch registers fn for state transitions and returns a function that
// removes it. fn runs synchronously on the goroutine that caused the
// transition and must not block.
func (e *Engine) Watch(fn func(StateChange)) (cancel func()) {
	e.watchMu.Lock()
	id := e.nextWatch
	e.nextWatch++
	e.watchers[id] = fn
	e.watchMu.Unlock()

	return func() {
		e.watchMu.Lock()
		delete(e.watchers, id)
		e.watchMu.Unlock()
	}
}

func (e *Engine) notify(change StateChange) {
	change.At = e.clock.Now()

	e.watchMu.Lock()
	fns := make([]func(StateChange), 0, len(e.watchers))
	for _, fn := range e.watchers {
		fns = append(fns, fn)
	}
	e.watchMu.Unlock()

	for _, fn := range fns {
		fn(change)
	}
}

// HTTPClient returns a client for application requests. It attaches the
// current access token and ends the session with [ReasonUnauthorized] on a
// 401 response, unless the request carried [api.SkipLogoutHeader].
func (e *Engine) HTTPClient() *http.Client {
	base := e.httpBase.Transport
	return &http.Client{
		Timeout: e.httpBase.Timeout,
		Transport: &middleware.Transport{
			Base:  base,
			Token: e.AccessToken,
			OnUnauthorized: func(req *http.Request) {
				_ = e.ForceLogout(req.Context(), ReasonUnauthorized)
			},
		},
	}
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

// MetricsSnapshot returns a copy of the in-process counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) metricObserve(id MetricID, d time.Duration) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Observe(id, d)
}

// opContext detaches store calls from ctx, which may already be cancelled
// during teardown.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), e.config.Store.OperationTimeout)
}
