package goSession

import (
	"context"
	"errors"
)

const (
	auditEventLoginSuccess     = "login_success"
	auditEventLoginFailure     = "login_failure"
	auditEventRefreshSuccess   = "refresh_success"
	auditEventRefreshFailure   = "refresh_failure"
	auditEventLogout           = "logout"
	auditEventForcedLogout     = "forced_logout"
	auditEventCrossTabLogout   = "cross_tab_logout"
	auditEventVersionChanged   = "version_changed"
	auditEventSessionRestored  = "session_restored"
	auditEventSessionDiscarded = "session_discarded"
)

// AuditErrorCode is the stable error classification carried in
// [AuditEvent.Error].
type AuditErrorCode string

const (
	auditErrInvalidCredentials AuditErrorCode = "invalid_credentials"
	auditErrMalformedResponse  AuditErrorCode = "malformed_response"
	auditErrRefreshRejected    AuditErrorCode = "refresh_rejected"
	auditErrConflict           AuditErrorCode = "conflict"
	auditErrStoreUnavailable   AuditErrorCode = "store_unavailable"
	auditErrUnavailable        AuditErrorCode = "backend_unavailable"
	auditErrInternal           AuditErrorCode = "internal_error"
)

func (e *Engine) emitAudit(
	ctx context.Context,
	eventType string,
	success bool,
	userID string,
	reason string,
	err error,
	metadataBuilder func() map[string]string,
) {
	if e == nil || e.audit == nil {
		return
	}

	var metadata map[string]string
	if metadataBuilder != nil {
		metadata = metadataBuilder()
	}

	event := AuditEvent{
		Timestamp: e.clock.Now().UTC(),
		EventType: eventType,
		UserID:    userID,
		Origin:    e.origin,
		Reason:    reason,
		Success:   success,
		Metadata:  metadata,
	}
	if code := auditErrorCode(err); code != "" {
		event.Error = string(code)
	}

	e.audit.Emit(ctx, event)
}

// recordLogout emits the metrics and audit event for a finished teardown.
func (e *Engine) recordLogout(ctx context.Context, userID string, reason LogoutReason, err error) {
	event := auditEventForcedLogout
	switch reason {
	case ReasonUser:
		event = auditEventLogout
		e.metricInc(MetricLogout)
	case ReasonCrossTab:
		event = auditEventCrossTabLogout
		e.metricInc(MetricCrossTabLogout)
	default:
		e.metricInc(MetricForcedLogout)
		switch reason {
		case ReasonIdle:
			e.metricInc(MetricIdleTimeout)
		case ReasonExpired:
			e.metricInc(MetricTokenExpired)
		case ReasonVersionChanged:
			e.metricInc(MetricVersionChanged)
		case ReasonUnauthorized:
			e.metricInc(MetricUnauthorized)
		}
	}
	e.emitAudit(ctx, event, err == nil, userID, string(reason), err, nil)
}

func auditErrorCode(err error) AuditErrorCode {
	if err == nil {
		return ""
	}

	switch {
	case errors.Is(err, ErrInvalidCredentials):
		return auditErrInvalidCredentials
	case errors.Is(err, ErrMalformedLoginResponse),
		errors.Is(err, ErrMalformedResponse),
		errors.Is(err, ErrTokenMalformed):
		return auditErrMalformedResponse
	case errors.Is(err, ErrRefreshRejected):
		return auditErrRefreshRejected
	case errors.Is(err, ErrLoginInProgress),
		errors.Is(err, ErrLogoutInProgress),
		errors.Is(err, ErrAlreadyAuthenticated):
		return auditErrConflict
	case errors.Is(err, ErrStoreUnavailable):
		return auditErrStoreUnavailable
	case errors.Is(err, ErrLoginUnavailable),
		errors.Is(err, ErrRefreshFailed):
		return auditErrUnavailable
	default:
		return auditErrInternal
	}
}
