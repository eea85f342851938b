package sessionkit

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sessionkit/sessionkit/internal/audit"
	"github.com/sessionkit/sessionkit/internal/csrf"
	"github.com/sessionkit/sessionkit/internal/rate"
	"github.com/sessionkit/sessionkit/internal/refresh"
	"github.com/sessionkit/sessionkit/internal/state"
	"github.com/sessionkit/sessionkit/internal/store"
	"github.com/sessionkit/sessionkit/password"
	"github.com/sessionkit/sessionkit/token"
)

// Engine is the session-security core. Build one with New()...Build()
// and share it; every method is safe for concurrent use.
type Engine struct {
	config   Config
	provider IdentityProvider
	hasher   Hasher
	policy   password.Policy

	codec   *token.Manager
	tokens  store.TokenStore
	limiter rate.Limiter
	guard   *csrf.Guard
	coord   *refresh.Coordinator

	log        *audit.Log
	dispatcher *auditDispatcher
	metrics    *Metrics

	state      state.Store
	stateClose func() error

	httpClient *http.Client

	mu      sync.RWMutex
	session sessionState

	subMu   sync.Mutex
	subs    map[int]chan SessionChange
	nextSub int

	closed atomic.Bool
}

// sessionState is the engine's view of the current principal. The
// access token held here is the one outbound requests are stamped
// with; refresh tokens live only in the token store.
type sessionState struct {
	authenticated bool
	subject       string
	role          string
	accessToken   string
	user          UserProfile
	expiresAt     time.Time
}

// IsAuthenticated reports whether a session is currently established.
// It does not verify the token; use Verify for that.
func (e *Engine) IsAuthenticated() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.authenticated
}

// CurrentUser returns the profile of the authenticated principal.
func (e *Engine) CurrentUser() (UserProfile, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session.user, e.session.authenticated
}

// CurrentSubject returns the authenticated subject ID, or "".
func (e *Engine) CurrentSubject() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.session.authenticated {
		return ""
	}
	return e.session.subject
}

// AccessToken returns the raw current access token. Most callers
// should let Do stamp requests instead of touching the token.
func (e *Engine) AccessToken() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.session.authenticated {
		return "", false
	}
	return e.session.accessToken, true
}

// MetricsSnapshot copies the engine's counters.
func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	return e.metrics.Snapshot()
}

// Subscribe registers a channel that receives session transitions.
// Delivery is best-effort: a subscriber that falls behind misses
// events rather than blocking the engine. The returned cancel func
// closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan SessionChange, func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := make(chan SessionChange, buffer)

	e.subMu.Lock()
	id := e.nextSub
	e.nextSub++
	if e.subs == nil {
		e.subs = make(map[int]chan SessionChange)
	}
	e.subs[id] = ch
	e.subMu.Unlock()

	cancel := func() {
		e.subMu.Lock()
		defer e.subMu.Unlock()
		if c, ok := e.subs[id]; ok {
			delete(e.subs, id)
			close(c)
		}
	}
	return ch, cancel
}

func (e *Engine) notify(kind SessionChangeKind, subject, role string) {
	change := SessionChange{
		Kind:    kind,
		Subject: subject,
		Role:    role,
		At:      time.Now(),
	}

	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- change:
		default:
		}
	}
}

// snapshotSession returns a copy of the current session under the read
// lock.
func (e *Engine) snapshotSession() sessionState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.session
}

// setSession installs a new session and persists it.
func (e *Engine) setSession(s sessionState) {
	e.mu.Lock()
	e.session = s
	e.mu.Unlock()
	e.persistSession(s)
}

func (e *Engine) clearSession() {
	e.mu.Lock()
	e.session = sessionState{}
	e.mu.Unlock()
	if e.state != nil {
		_ = e.state.Clear()
	}
}

// persistSession writes the session snapshot for resume-on-build. The
// access token is only written when at-rest protection is enabled.
func (e *Engine) persistSession(s sessionState) {
	if e.state == nil || !s.authenticated {
		return
	}
	snap := state.Snapshot{
		Subject: s.subject,
		Role:    s.role,
	}
	if e.config.Security.EncryptionEnabled {
		snap.AccessToken = s.accessToken
	}
	_ = e.state.Save(snap)
}

// Close flushes the audit dispatcher, closes persisted state, and
// closes all subscriber channels. The engine must not be used
// afterwards.
func (e *Engine) Close() error {
	if !e.closed.CompareAndSwap(false, true) {
		return nil
	}

	e.dispatcher.Close()

	e.subMu.Lock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.subMu.Unlock()

	if e.stateClose != nil {
		return e.stateClose()
	}
	return nil
}

func (e *Engine) isClosed() bool {
	return e.closed.Load()
}
