package sessionkit

import (
	"errors"
	"time"

	"github.com/sessionkit/sessionkit/password"
)

// Config holds every tunable of the engine. Zero values are filled
// from defaultConfig by the Builder; configure once and treat as
// immutable afterwards.
type Config struct {
	Token     TokenConfig
	Security  SecurityConfig
	Password  PasswordConfig
	RateLimit RateLimitConfig
	CSRF      CSRFConfig
	Audit     AuditConfig
	Metrics   MetricsConfig
	State     StateConfig
}

/*
====================================
TOKEN CONFIG
====================================
*/

// TokenConfig controls how session tokens are verified and, when a
// private key is present, minted.
type TokenConfig struct {
	SigningMethod string // "ed25519" (default), "hs256" optional
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Leeway        time.Duration
}

/*
====================================
SECURITY CONFIG
====================================
*/

// SecurityConfig covers session lifetime and outbound auth plumbing.
type SecurityConfig struct {
	AccessTokenTTL time.Duration
	RefreshTTL     time.Duration
	// RefreshTimeout bounds a shared refresh exchange. The deadline is
	// detached from any single caller so an abandoned waiter cannot
	// cancel a refresh others depend on.
	RefreshTimeout time.Duration
	BearerHeader   string
	// EncryptionEnabled gates whether access tokens may be written to
	// persisted session state. When false only the subject and role
	// survive a restart.
	EncryptionEnabled bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

// PasswordConfig holds the composition policy and hashing cost
// parameters.
type PasswordConfig struct {
	MinLength      int
	RequireUpper   bool
	RequireLower   bool
	RequireDigit   bool
	RequireSpecial bool
	Argon2         password.Params
}

/*
====================================
RATE LIMIT CONFIG
====================================
*/

// RateLimitConfig bounds outbound requests per endpoint key within a
// fixed window.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
}

/*
====================================
CSRF CONFIG
====================================
*/

// CSRFConfig controls anti-forgery stamping on outbound requests.
type CSRFConfig struct {
	Enabled bool
	// HeaderName carries the token on outbound requests.
	HeaderName string
	// SignalHeader marks a 403 as a stale-token rejection rather than
	// a permission failure.
	SignalHeader string
}

/*
====================================
AUDIT CONFIG
====================================
*/

// AuditConfig controls the in-memory audit log and the async sink
// dispatcher.
type AuditConfig struct {
	Enabled bool
	// HistoryLimit bounds the queryable in-memory log. Oldest events
	// are dropped first.
	HistoryLimit int
	BufferSize   int
	// DropIfFull drops events instead of blocking callers when the
	// dispatcher buffer is full.
	DropIfFull bool
}

/*
====================================
METRICS CONFIG
====================================
*/

// MetricsConfig toggles counter and latency collection.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
STATE CONFIG
====================================
*/

// StateConfig controls persisted session state.
type StateConfig struct {
	// ResumeOnBuild restores a previously persisted session at build
	// time after verifying its token.
	ResumeOnBuild bool
}

// DefaultConfig returns the engine defaults. Override what differs and
// pass the result to [Builder.WithConfig]; token keys always need to
// be supplied.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		Token: TokenConfig{
			SigningMethod: "ed25519",
			Leeway:        30 * time.Second,
		},
		Security: SecurityConfig{
			AccessTokenTTL:    15 * time.Minute,
			RefreshTTL:        7 * 24 * time.Hour,
			RefreshTimeout:    30 * time.Second,
			BearerHeader:      "Authorization",
			EncryptionEnabled: true,
		},
		Password: PasswordConfig{
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSpecial: true,
			Argon2:         password.DefaultParams(),
		},
		RateLimit: RateLimitConfig{
			Max:    100,
			Window: time.Minute,
		},
		CSRF: CSRFConfig{
			Enabled:      true,
			HeaderName:   "X-CSRF-Token",
			SignalHeader: "X-CSRF-Rejected",
		},
		Audit: AuditConfig{
			Enabled:      true,
			HistoryLimit: 1024,
			BufferSize:   256,
			DropIfFull:   true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: true,
		},
		State: StateConfig{
			ResumeOnBuild: true,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.Token.PrivateKey = append([]byte(nil), cfg.Token.PrivateKey...)
	out.Token.PublicKey = append([]byte(nil), cfg.Token.PublicKey...)
	return out
}

// Validate reports the first structural problem with the config.
func (c *Config) Validate() error {
	switch c.Token.SigningMethod {
	case "ed25519", "hs256":
	default:
		return errors.New("config: token signing method must be ed25519 or hs256")
	}
	if c.Security.AccessTokenTTL <= 0 {
		return errors.New("config: access token ttl must be positive")
	}
	if c.Security.RefreshTTL <= 0 {
		return errors.New("config: refresh ttl must be positive")
	}
	if c.Security.BearerHeader == "" {
		return errors.New("config: bearer header must not be empty")
	}
	if c.Password.MinLength < 1 {
		return errors.New("config: password min length must be at least 1")
	}
	if c.RateLimit.Max < 1 {
		return errors.New("config: rate limit max must be at least 1")
	}
	if c.RateLimit.Window <= 0 {
		return errors.New("config: rate limit window must be positive")
	}
	if c.CSRF.Enabled && c.CSRF.HeaderName == "" {
		return errors.New("config: csrf header name must not be empty when csrf is enabled")
	}
	if c.Audit.Enabled && c.Audit.HistoryLimit < 1 {
		return errors.New("config: audit history limit must be at least 1")
	}
	return nil
}

/*
====================================
REMOTE CONFIG
====================================
*/

// RemoteConfig is the provider's view of security settings. Fields are
// pointers so absence is distinguishable from a zero value; only
// present fields override the local config.
type RemoteConfig struct {
	AccessTokenTTLMinutes  *int    `json:"accessTokenTtlMinutes,omitempty"`
	CSRFEnabled            *bool   `json:"csrfEnabled,omitempty"`
	CSRFHeaderName         *string `json:"csrfHeaderName,omitempty"`
	RateLimitMax           *int    `json:"rateLimitMax,omitempty"`
	RateLimitWindowMS      *int    `json:"rateLimitWindowMs,omitempty"`
	PasswordMinLength      *int    `json:"passwordMinLength,omitempty"`
	PasswordRequireUpper   *bool   `json:"passwordRequireUppercase,omitempty"`
	PasswordRequireLower   *bool   `json:"passwordRequireLowercase,omitempty"`
	PasswordRequireDigit   *bool   `json:"passwordRequireNumbers,omitempty"`
	PasswordRequireSpecial *bool   `json:"passwordRequireSpecialChars,omitempty"`
	EncryptionEnabled      *bool   `json:"encryptionEnabled,omitempty"`
}

// mergeRemote overlays present remote fields onto cfg. Values that
// would fail Validate are ignored so a misbehaving provider cannot
// brick the engine.
func mergeRemote(cfg Config, remote RemoteConfig) Config {
	if v := remote.AccessTokenTTLMinutes; v != nil && *v > 0 {
		cfg.Security.AccessTokenTTL = time.Duration(*v) * time.Minute
	}
	if v := remote.CSRFEnabled; v != nil {
		cfg.CSRF.Enabled = *v
	}
	if v := remote.CSRFHeaderName; v != nil && *v != "" {
		cfg.CSRF.HeaderName = *v
	}
	if v := remote.RateLimitMax; v != nil && *v > 0 {
		cfg.RateLimit.Max = *v
	}
	if v := remote.RateLimitWindowMS; v != nil && *v > 0 {
		cfg.RateLimit.Window = time.Duration(*v) * time.Millisecond
	}
	if v := remote.PasswordMinLength; v != nil && *v > 0 {
		cfg.Password.MinLength = *v
	}
	if v := remote.PasswordRequireUpper; v != nil {
		cfg.Password.RequireUpper = *v
	}
	if v := remote.PasswordRequireLower; v != nil {
		cfg.Password.RequireLower = *v
	}
	if v := remote.PasswordRequireDigit; v != nil {
		cfg.Password.RequireDigit = *v
	}
	if v := remote.PasswordRequireSpecial; v != nil {
		cfg.Password.RequireSpecial = *v
	}
	if v := remote.EncryptionEnabled; v != nil {
		cfg.Security.EncryptionEnabled = *v
	}
	return cfg
}

func (c *Config) policy() password.Policy {
	return password.Policy{
		MinLength:      c.Password.MinLength,
		RequireUpper:   c.Password.RequireUpper,
		RequireLower:   c.Password.RequireLower,
		RequireDigit:   c.Password.RequireDigit,
		RequireSpecial: c.Password.RequireSpecial,
	}
}
