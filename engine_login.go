package sessionkit

import (
	"context"
	"errors"

	"github.com/sessionkit/sessionkit/password"
)

// Login exchanges credentials for a session. On success the engine
// holds the access token for outbound requests and keeps the refresh
// token internal. All credential-class failures surface as
// ErrAuthenticationFailed so a caller cannot distinguish a wrong
// password from an unknown identifier; transport failures surface as
// ErrProviderUnavailable. The password is never logged.
func (e *Engine) Login(ctx context.Context, identifier, pass string) (LoginResult, error) {
	if e.isClosed() {
		return LoginResult{}, ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	grant, err := e.provider.Authenticate(ctx, identifier, pass)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		if errors.Is(err, ErrProviderUnavailable) {
			e.emitAudit(ctx, EventLoginFailure, "", "", false, err, map[string]string{"identifier": identifier})
			return LoginResult{}, ErrProviderUnavailable
		}
		e.emitAudit(ctx, EventLoginFailure, "", "", false, ErrAuthenticationFailed, map[string]string{"identifier": identifier})
		return LoginResult{}, ErrAuthenticationFailed
	}

	result, err := e.establishSession(ctx, grant)
	if err != nil {
		e.metrics.Inc(MetricLoginFailure)
		e.emitAudit(ctx, EventLoginFailure, "", "", false, err, map[string]string{"identifier": identifier})
		return LoginResult{}, err
	}

	e.metrics.Inc(MetricLoginSuccess)
	e.emitAudit(ctx, EventLoginSuccess, result.Claims.Subject, "", true, nil, nil)
	e.notify(SessionLogin, result.Claims.Subject, result.Claims.Role)
	return result, nil
}

// Register validates the password against the local policy, then
// creates the account and establishes a session. Policy violations are
// rejected before any network call and all of them are reported at
// once via *PasswordPolicyError.
func (e *Engine) Register(ctx context.Context, profile UserProfile, pass string) (LoginResult, error) {
	if e.isClosed() {
		return LoginResult{}, ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if res := e.policy.Validate(pass); !res.Valid {
		e.metrics.Inc(MetricPasswordPolicyRejected)
		return LoginResult{}, &PasswordPolicyError{Violations: violationStrings(res.Violations)}
	}

	grant, err := e.provider.Register(ctx, profile, pass)
	if err != nil {
		e.metrics.Inc(MetricRegisterFailure)
		if errors.Is(err, ErrProviderUnavailable) {
			e.emitAudit(ctx, EventRegisterFailure, "", "", false, err, map[string]string{"identifier": profile.Email})
			return LoginResult{}, ErrProviderUnavailable
		}
		e.emitAudit(ctx, EventRegisterFailure, "", "", false, ErrAuthenticationFailed, map[string]string{"identifier": profile.Email})
		return LoginResult{}, ErrAuthenticationFailed
	}

	result, err := e.establishSession(ctx, grant)
	if err != nil {
		e.metrics.Inc(MetricRegisterFailure)
		e.emitAudit(ctx, EventRegisterFailure, "", "", false, err, map[string]string{"identifier": profile.Email})
		return LoginResult{}, err
	}

	e.metrics.Inc(MetricRegisterSuccess)
	e.emitAudit(ctx, EventRegisterSuccess, result.Claims.Subject, "", true, nil, nil)
	e.notify(SessionLogin, result.Claims.Subject, result.Claims.Role)
	return result, nil
}

// establishSession verifies the granted token, registers it with the
// token store, and installs the session state.
func (e *Engine) establishSession(ctx context.Context, grant Grant) (LoginResult, error) {
	claims, err := e.codec.Parse(grant.AccessToken)
	if err != nil {
		return LoginResult{}, ErrTokenMalformed
	}

	subject := claims.SubjectID()
	if err := e.tokens.Add(ctx, subject, grant.AccessToken, grant.RefreshToken); err != nil {
		return LoginResult{}, err
	}

	user := grant.User
	if user.ID == "" {
		user.ID = subject
	}
	if user.Role == "" {
		user.Role = claims.Role
	}

	e.setSession(sessionState{
		authenticated: true,
		subject:       subject,
		role:          claims.Role,
		accessToken:   grant.AccessToken,
		user:          user,
		expiresAt:     claims.ExpiresAt.Time,
	})

	return LoginResult{
		AccessToken: grant.AccessToken,
		Claims:      claimsFromToken(claims),
		User:        user,
	}, nil
}

// Logout revokes the current access token, discards the refresh token,
// clears persisted state, and publishes the transition. Idempotent in
// effect; calling without a session returns ErrNotAuthenticated.
func (e *Engine) Logout(ctx context.Context) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if ctx == nil {
		ctx = context.Background()
	}

	sess := e.snapshotSession()
	if !sess.authenticated {
		return ErrNotAuthenticated
	}

	if err := e.tokens.Revoke(ctx, sess.accessToken); err != nil {
		e.emitAudit(ctx, EventLogout, sess.subject, "", false, err, nil)
		return err
	}

	e.clearSession()
	e.metrics.Inc(MetricLogout)
	e.emitAudit(ctx, EventLogout, sess.subject, "", true, nil, nil)
	e.notify(SessionLogout, sess.subject, sess.role)
	return nil
}

// ValidatePassword checks a candidate against the configured policy
// without touching the network. The error, when non-nil, is a
// *PasswordPolicyError listing every violation.
func (e *Engine) ValidatePassword(pass string) error {
	res := e.policy.Validate(pass)
	if res.Valid {
		return nil
	}
	return &PasswordPolicyError{Violations: violationStrings(res.Violations)}
}

// HashPassword digests a password with the configured hasher.
func (e *Engine) HashPassword(pass string) (string, error) {
	return e.hasher.Hash(pass)
}

// VerifyPassword checks a password against a previously produced
// digest in constant time.
func (e *Engine) VerifyPassword(pass, encoded string) (bool, error) {
	return e.hasher.Verify(pass, encoded)
}

func violationStrings(vs []password.Violation) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = string(v)
	}
	return out
}
