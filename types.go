package sessionkit

import (
	"context"
	"time"
)

// UserProfile is the provider-reported identity of an authenticated
// user.
type UserProfile struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Claims is the decoded, verified content of a session token.
type Claims struct {
	Subject     string
	Role        string
	Permissions []string
	IssuedAt    time.Time
	ExpiresAt   time.Time
}

// Grant is the token material handed out by an identity provider after
// a successful authenticate, register, or refresh exchange.
type Grant struct {
	AccessToken  string
	RefreshToken string
	User         UserProfile
}

// LoginResult is returned by Login and Register once the session is
// established.
type LoginResult struct {
	AccessToken string
	Claims      Claims
	User        UserProfile
}

// IdentityProvider is the backend the engine authenticates against.
// Implementations map transport failures to ErrProviderUnavailable and
// credential rejections to ErrAuthenticationFailed; any other error is
// surfaced verbatim.
type IdentityProvider interface {
	// Authenticate exchanges credentials for a token grant.
	Authenticate(ctx context.Context, identifier, password string) (Grant, error)
	// Register creates an account and returns an initial grant.
	Register(ctx context.Context, profile UserProfile, password string) (Grant, error)
	// Refresh exchanges a refresh token for a fresh grant.
	Refresh(ctx context.Context, refreshToken string) (Grant, error)
	// CSRFToken fetches a new anti-forgery token.
	CSRFToken(ctx context.Context) (string, error)
	// SecurityConfig fetches the provider's security settings. The
	// engine calls it once at build time with a bounded deadline.
	SecurityConfig(ctx context.Context) (RemoteConfig, error)
}

// Hasher turns passwords into verifiable digests. The default
// implementation is Argon2id; supply a custom Hasher only when an
// external system dictates the digest format.
type Hasher interface {
	Hash(password string) (string, error)
	Verify(password, encoded string) (bool, error)
}

// SessionChangeKind enumerates the transitions published to
// subscribers.
type SessionChangeKind uint8

const (
	// SessionLogin fires after a successful Login or Register.
	SessionLogin SessionChangeKind = iota
	// SessionRefreshed fires after a transparent token refresh.
	SessionRefreshed
	// SessionLogout fires after an explicit Logout.
	SessionLogout
	// SessionExpired fires when a failed refresh forces the session
	// out.
	SessionExpired
	// SessionResumed fires when a persisted session is restored at
	// build time.
	SessionResumed
)

// String returns the wire name of the change kind.
func (k SessionChangeKind) String() string {
	switch k {
	case SessionLogin:
		return "login"
	case SessionRefreshed:
		return "refreshed"
	case SessionLogout:
		return "logout"
	case SessionExpired:
		return "expired"
	case SessionResumed:
		return "resumed"
	default:
		return "unknown"
	}
}

// SessionChange is delivered to Subscribe channels on every session
// transition.
type SessionChange struct {
	Kind    SessionChangeKind
	Subject string
	Role    string
	At      time.Time
}
