// Package csrf holds the anti-forgery token attached to outbound requests
// and rotates it when the server signals a mismatch.
package csrf

import (
	"context"
	"net/http"
	"sync"
)

// FetchFunc obtains a fresh anti-forgery token from the identity provider.
type FetchFunc func(ctx context.Context) (string, error)

// Guard owns the current CSRF token. Rotation replaces the token atomically:
// requests stamped before the swap keep the old value, everything stamped
// after sees only the new one.
type Guard struct {
	mu      sync.RWMutex
	enabled bool
	header  string
	token   string
	fetch   FetchFunc
}

// NewGuard creates a guard. A disabled guard stamps nothing and never
// rotates.
func NewGuard(enabled bool, header string, fetch FetchFunc) *Guard {
	return &Guard{
		enabled: enabled,
		header:  header,
		fetch:   fetch,
	}
}

// Enabled reports whether CSRF protection is on.
func (g *Guard) Enabled() bool {
	return g != nil && g.enabled
}

// HeaderName returns the configured header the token is sent under.
func (g *Guard) HeaderName() string {
	if g == nil {
		return ""
	}
	return g.header
}

// Current returns the token in effect, or false when disabled or not yet
// primed.
func (g *Guard) Current() (string, bool) {
	if !g.Enabled() {
		return "", false
	}

	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.token, g.token != ""
}

// Stamp attaches the current token to req under the configured header.
func (g *Guard) Stamp(req *http.Request) {
	if tok, ok := g.Current(); ok {
		req.Header.Set(g.header, tok)
	}
}

// Rotate fetches a new token and swaps it in. The previous token is invalid
// for new requests from the moment of the swap; in-flight requests already
// stamped with it are not recalled.
func (g *Guard) Rotate(ctx context.Context) (string, error) {
	if !g.Enabled() {
		return "", nil
	}

	tok, err := g.fetch(ctx)
	if err != nil {
		return "", err
	}

	g.mu.Lock()
	g.token = tok
	g.mu.Unlock()

	return tok, nil
}

// OnMismatch handles a server-side CSRF rejection: it rotates the token and
// reports whether the triggering request should be retried. A request is
// retried at most once, so a rejection of the retry itself gives up.
func (g *Guard) OnMismatch(ctx context.Context, alreadyRetried bool) (bool, error) {
	if !g.Enabled() {
		return false, nil
	}

	if _, err := g.Rotate(ctx); err != nil {
		return false, err
	}
	return !alreadyRetried, nil
}
