package sessionkit

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sessionkit/sessionkit/internal/audit"
	"github.com/sessionkit/sessionkit/internal/csrf"
	"github.com/sessionkit/sessionkit/internal/rate"
	"github.com/sessionkit/sessionkit/internal/refresh"
	"github.com/sessionkit/sessionkit/internal/state"
	"github.com/sessionkit/sessionkit/internal/store"
	"github.com/sessionkit/sessionkit/password"
	"github.com/sessionkit/sessionkit/token"
)

// remoteConfigTimeout bounds the build-time fetch of provider security
// settings. A slow or dead provider must not stall startup; local
// defaults apply when the fetch does not complete in time.
const remoteConfigTimeout = 3 * time.Second

// Builder assembles an Engine. Chain the With* methods and finish with
// Build; a Builder is single-use.
type Builder struct {
	config     Config
	provider   IdentityProvider
	hasher     Hasher
	sink       AuditSink
	redis      *redis.Client
	httpClient *http.Client
	statePath  string
	skipRemote bool

	built bool
}

// New returns a Builder preloaded with defaults.
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the default configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithProvider sets the identity provider. Required.
func (b *Builder) WithProvider(p IdentityProvider) *Builder {
	b.provider = p
	return b
}

// WithHasher overrides the default Argon2id hasher.
func (b *Builder) WithHasher(h Hasher) *Builder {
	b.hasher = h
	return b
}

// WithAuditSink sets the destination for audit events.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.sink = sink
	return b
}

// WithRedis moves the token store and rate limiter onto Redis so
// multiple processes share revocation and rate-limit state.
func (b *Builder) WithRedis(client *redis.Client) *Builder {
	b.redis = client
	return b
}

// WithHTTPClient sets the client used for outbound requests.
func (b *Builder) WithHTTPClient(c *http.Client) *Builder {
	b.httpClient = c
	return b
}

// WithStateFile persists session state to a bolt file at path so a
// session can survive a restart.
func (b *Builder) WithStateFile(path string) *Builder {
	b.statePath = path
	return b
}

// WithoutRemoteConfig skips the build-time SecurityConfig fetch and
// runs purely on local configuration.
func (b *Builder) WithoutRemoteConfig() *Builder {
	b.skipRemote = true
	return b
}

// Build validates the configuration, fetches remote security settings
// with a bounded deadline, wires every subsystem, and resumes a
// persisted session when one verifies.
func (b *Builder) Build() (*Engine, error) {
	if b.built {
		return nil, ErrAlreadyBuilt
	}
	if b.provider == nil {
		return nil, ErrProviderRequired
	}
	b.built = true

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if !b.skipRemote {
		ctx, cancel := context.WithTimeout(context.Background(), remoteConfigTimeout)
		remote, err := b.provider.SecurityConfig(ctx)
		cancel()
		if err == nil {
			cfg = mergeRemote(cfg, remote)
			if verr := cfg.Validate(); verr != nil {
				cfg = cloneConfig(b.config)
			}
		}
	}

	codec, err := token.NewManager(token.Config{
		SigningMethod: token.SigningMethod(cfg.Token.SigningMethod),
		PrivateKey:    cfg.Token.PrivateKey,
		PublicKey:     cfg.Token.PublicKey,
		AccessTTL:     cfg.Security.AccessTokenTTL,
		Issuer:        cfg.Token.Issuer,
		Leeway:        cfg.Token.Leeway,
	})
	if err != nil {
		return nil, err
	}

	hasher := b.hasher
	if hasher == nil {
		argon, aerr := password.NewArgon2(cfg.Password.Argon2)
		if aerr != nil {
			return nil, aerr
		}
		hasher = argon
	}

	var tokens store.TokenStore
	var limiter rate.Limiter
	if b.redis != nil {
		tokens = store.NewRedis(b.redis, cfg.Security.AccessTokenTTL, cfg.Security.RefreshTTL)
		limiter = rate.NewRedisFixedWindow(b.redis, rate.Config{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		})
	} else {
		tokens = store.NewMemory()
		limiter = rate.NewFixedWindow(rate.Config{
			Max:    cfg.RateLimit.Max,
			Window: cfg.RateLimit.Window,
		})
	}

	httpClient := b.httpClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	e := &Engine{
		config:     cfg,
		provider:   b.provider,
		hasher:     hasher,
		policy:     cfg.policy(),
		codec:      codec,
		tokens:     tokens,
		limiter:    limiter,
		httpClient: httpClient,
		metrics:    NewMetrics(cfg.Metrics),
	}

	if cfg.Audit.Enabled {
		e.log = audit.NewLog(cfg.Audit.HistoryLimit)
		e.dispatcher = newAuditDispatcher(cfg.Audit, b.sink)
	}

	e.guard = csrf.NewGuard(cfg.CSRF.Enabled, cfg.CSRF.HeaderName, b.provider.CSRFToken)
	if cfg.CSRF.Enabled {
		ctx, cancel := context.WithTimeout(context.Background(), remoteConfigTimeout)
		_, _ = e.guard.Rotate(ctx)
		cancel()
	}

	e.coord = refresh.NewCoordinator(e.doRefresh, cfg.Security.RefreshTimeout)

	if b.statePath != "" {
		bolt, berr := state.OpenBolt(b.statePath)
		if berr != nil {
			return nil, berr
		}
		e.state = bolt
		e.stateClose = bolt.Close
		if cfg.State.ResumeOnBuild {
			e.resumeSession(context.Background())
		}
	}

	return e, nil
}

// resumeSession restores a persisted session when its token still
// verifies. Anything stale is discarded silently; a client starting
// logged-out is the safe default.
func (e *Engine) resumeSession(ctx context.Context) {
	snap, ok, err := e.state.Load()
	if err != nil || !ok {
		return
	}

	claims, err := e.codec.Parse(snap.AccessToken)
	if err != nil {
		_ = e.state.Clear()
		return
	}

	subject := claims.SubjectID()
	if aerr := e.tokens.Add(ctx, subject, snap.AccessToken, ""); aerr != nil {
		return
	}

	e.mu.Lock()
	e.session = sessionState{
		authenticated: true,
		subject:       subject,
		role:          claims.Role,
		accessToken:   snap.AccessToken,
		user:          UserProfile{ID: subject, Role: claims.Role},
		expiresAt:     claims.ExpiresAt.Time,
	}
	e.mu.Unlock()

	e.metrics.Inc(MetricSessionResumed)
	e.emitAudit(ctx, EventSessionResumed, subject, "", true, nil, nil)
	e.notify(SessionResumed, subject, claims.Role)
}
