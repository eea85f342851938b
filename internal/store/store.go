package store

import (
	"context"
	"sync"
)

// TokenStore is the shared interface over the in-memory and Redis backends.
type TokenStore interface {
	// Add records a newly issued pair. Any previous refresh token for the
	// subject is replaced.
	Add(ctx context.Context, subject, accessToken, refreshToken string) error
	// Revoke removes the access token and discards the subject's refresh
	// token (explicit logout).
	Revoke(ctx context.Context, accessToken string) error
	// MarkExpired removes the access token but keeps the refresh token
	// (expiry discovery).
	MarkExpired(ctx context.Context, accessToken string) error
	// IsActive reports whether the access token is in the active set.
	IsActive(ctx context.Context, accessToken string) (bool, error)
	// RefreshFor returns the subject's refresh token, if one is held.
	RefreshFor(ctx context.Context, subject string) (string, bool, error)
	// Clear drops all state.
	Clear(ctx context.Context) error
}

// Memory is the default in-process store. Both maps are guarded by one
// RWMutex; every mutation replaces map entries whole, never exposing a
// partially updated pair to readers.
type Memory struct {
	mu      sync.RWMutex
	active  map[string]string // access token -> subject
	refresh map[string]string // subject -> refresh token
}

// NewMemory creates an empty in-memory token store.
func NewMemory() *Memory {
	return &Memory{
		active:  make(map[string]string),
		refresh: make(map[string]string),
	}
}

func (m *Memory) Add(_ context.Context, subject, accessToken, refreshToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active[accessToken] = subject
	if refreshToken != "" {
		m.refresh[subject] = refreshToken
	}
	return nil
}

func (m *Memory) Revoke(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	subject, ok := m.active[accessToken]
	if !ok {
		return nil
	}
	delete(m.active, accessToken)
	delete(m.refresh, subject)
	return nil
}

func (m *Memory) MarkExpired(_ context.Context, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.active, accessToken)
	return nil
}

func (m *Memory) IsActive(_ context.Context, accessToken string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.active[accessToken]
	return ok, nil
}

func (m *Memory) RefreshFor(_ context.Context, subject string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tok, ok := m.refresh[subject]
	return tok, ok, nil
}

func (m *Memory) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.active = make(map[string]string)
	m.refresh = make(map[string]string)
	return nil
}
