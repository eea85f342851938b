package sessionkit

import (
	"context"
	"errors"

	"github.com/sessionkit/sessionkit/internal/refresh"
)

// EnsureFresh returns a currently valid access token, refreshing
// through the identity provider when the held one has expired.
// Concurrent callers share a single refresh exchange; on failure the
// session transitions to logged-out and every waiter receives
// ErrAuthenticationFailed.
func (e *Engine) EnsureFresh(ctx context.Context) (string, error) {
	if e.isClosed() {
		return "", ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sess := e.snapshotSession()
	if !sess.authenticated {
		return "", ErrNotAuthenticated
	}

	out, err := e.coord.EnsureFresh(ctx, sess.subject)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		e.forceLogout(ctx, sess, err)
		if errors.Is(err, ErrProviderUnavailable) {
			return "", ErrProviderUnavailable
		}
		return "", ErrAuthenticationFailed
	}

	return out.AccessToken, nil
}

// doRefresh is the single-flight refresh function. Exactly one
// invocation runs per subject regardless of how many callers are
// waiting on it.
func (e *Engine) doRefresh(ctx context.Context, subject string) (refresh.Outcome, error) {
	rt, ok, err := e.tokens.RefreshFor(ctx, subject)
	if err != nil {
		return refresh.Outcome{}, err
	}
	if !ok {
		return refresh.Outcome{}, ErrAuthenticationFailed
	}

	grant, err := e.provider.Refresh(ctx, rt)
	if err != nil {
		return refresh.Outcome{}, err
	}

	claims, err := e.codec.Parse(grant.AccessToken)
	if err != nil {
		return refresh.Outcome{}, ErrTokenMalformed
	}

	old := e.snapshotSession()
	if old.authenticated && old.accessToken != "" {
		_ = e.tokens.MarkExpired(ctx, old.accessToken)
	}
	if err := e.tokens.Add(ctx, subject, grant.AccessToken, grant.RefreshToken); err != nil {
		return refresh.Outcome{}, err
	}

	e.mu.Lock()
	e.session.accessToken = grant.AccessToken
	e.session.role = claims.Role
	e.session.expiresAt = claims.ExpiresAt.Time
	sess := e.session
	e.mu.Unlock()
	e.persistSession(sess)

	e.metrics.Inc(MetricRefreshSuccess)
	e.emitAudit(ctx, EventRefreshSuccess, subject, "", true, nil, nil)
	e.notify(SessionRefreshed, subject, claims.Role)

	return refresh.Outcome{
		Subject:      subject,
		AccessToken:  grant.AccessToken,
		RefreshToken: grant.RefreshToken,
	}, nil
}

// forceLogout tears the session down after a failed refresh. The
// audit trail records it in the authentication-failure class so a
// forced logout is distinguishable from a user-initiated one.
func (e *Engine) forceLogout(ctx context.Context, sess sessionState, cause error) {
	e.mu.Lock()
	current := e.session.authenticated && e.session.subject == sess.subject
	if current {
		e.session = sessionState{}
	}
	e.mu.Unlock()
	if !current {
		return
	}

	if sess.accessToken != "" {
		_ = e.tokens.Revoke(ctx, sess.accessToken)
	}
	if e.state != nil {
		_ = e.state.Clear()
	}
	e.metrics.Inc(MetricRefreshFailure)
	e.emitAudit(ctx, EventRefreshFailure, sess.subject, "", false, cause, nil)
	e.notify(SessionExpired, sess.subject, sess.role)
}
