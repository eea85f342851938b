package sessionkit

import (
	"context"

	"github.com/sessionkit/sessionkit/internal/audit"
)

// Audit event type names. These are the strings recorded in
// AuditEvent.Type and matched by AuditFilter.Types.
const (
	EventLoginSuccess      = "login_success"
	EventLoginFailure      = "login_failure"
	EventRegisterSuccess   = "register_success"
	EventRegisterFailure   = "register_failure"
	EventLogout            = "logout"
	EventSessionResumed    = "session_resumed"
	EventRefreshSuccess    = "token_refresh_success"
	EventRefreshFailure    = "token_refresh_failure"
	EventTokenExpired      = "token_expired"
	EventTokenRevoked      = "token_revoked"
	EventRateLimitExceeded = "rate_limit_exceeded"
	EventServerRateLimited = "server_rate_limited"
	EventCSRFRotated       = "csrf_token_rotated"
	EventCSRFRejected      = "csrf_rejected"
	EventPermissionDenied  = "permission_denied"
)

// emitAudit records the event in the queryable log, stamps it with
// context metadata, and forwards it to the sink. Never blocks and
// never fails.
func (e *Engine) emitAudit(ctx context.Context, eventType, subject, endpoint string, success bool, opErr error, detail map[string]string) {
	if e.log == nil {
		return
	}

	errMsg := ""
	if opErr != nil {
		errMsg = opErr.Error()
	}

	if id := requestIDFromContext(ctx); id != "" {
		detail = withDetail(detail, "request_id", id)
	}
	if origin := originFromContext(ctx); origin != "" {
		detail = withDetail(detail, "origin", origin)
	}

	recorded := e.log.Record(audit.Event{
		Type:     eventType,
		Subject:  subject,
		Endpoint: endpoint,
		Success:  success,
		Error:    errMsg,
		Detail:   detail,
	})

	e.dispatcher.Emit(ctx, recorded)
}

func withDetail(detail map[string]string, key, value string) map[string]string {
	if detail == nil {
		detail = make(map[string]string, 1)
	}
	detail[key] = value
	return detail
}

// AuditEvents returns events from the in-memory log matching the
// filter, oldest first.
func (e *Engine) AuditEvents(f AuditFilter) []AuditEvent {
	if e.log == nil {
		return nil
	}
	return e.log.Query(f)
}

// AuditDropped reports how many events were lost to the bounded
// history and the sink buffer combined.
func (e *Engine) AuditDropped() uint64 {
	var n uint64
	if e.log != nil {
		n += e.log.Dropped()
	}
	n += e.dispatcher.Dropped()
	return n
}
