package sessionkit

import (
	"context"
	"errors"

	"github.com/sessionkit/sessionkit/token"
)

// Verify checks a token against the active set and its signature and
// lifetime. Revocation takes precedence: a token that is both revoked
// and expired reports ErrTokenRevoked. An expired token is moved out
// of the active set as a side effect, which keeps the subject's
// refresh token usable.
func (e *Engine) Verify(ctx context.Context, tokenStr string) (Claims, error) {
	if e.isClosed() {
		return Claims{}, ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	active, err := e.tokens.IsActive(ctx, tokenStr)
	if err != nil {
		return Claims{}, err
	}
	if !active {
		e.metrics.Inc(MetricVerifyRevoked)
		e.emitAudit(ctx, EventTokenRevoked, e.CurrentSubject(), "", false, ErrTokenRevoked, nil)
		return Claims{}, ErrTokenRevoked
	}

	claims, err := e.codec.Parse(tokenStr)
	if err != nil {
		if errors.Is(err, token.ErrExpired) {
			_ = e.tokens.MarkExpired(ctx, tokenStr)
			e.metrics.Inc(MetricVerifyExpired)
			e.emitAudit(ctx, EventTokenExpired, e.CurrentSubject(), "", false, ErrTokenExpired, nil)
			return Claims{}, ErrTokenExpired
		}
		e.metrics.Inc(MetricVerifyMalformed)
		return Claims{}, ErrTokenMalformed
	}

	return claimsFromToken(claims), nil
}

// claimsFromToken flattens codec claims into the public shape. The
// codec guarantees an expiry; issued-at is optional on foreign tokens.
func claimsFromToken(claims *token.Claims) Claims {
	out := Claims{
		Subject:     claims.SubjectID(),
		Role:        claims.Role,
		Permissions: claims.Permissions,
		ExpiresAt:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out
}
