package httpidp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	sessionkit "github.com/sessionkit/sessionkit"
)

const defaultTimeout = 10 * time.Second

// Client implements [sessionkit.IdentityProvider] over a JSON HTTP
// API. The zero endpoints follow the conventional layout; override
// them with the option setters when the backend differs.
type Client struct {
	baseURL    string
	httpClient *http.Client

	loginPath    string
	registerPath string
	refreshPath  string
	csrfPath     string
	configPath   string
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithPaths overrides the endpoint layout. Empty strings keep the
// defaults.
func WithPaths(login, register, refresh, csrf, config string) Option {
	return func(cl *Client) {
		if login != "" {
			cl.loginPath = login
		}
		if register != "" {
			cl.registerPath = register
		}
		if refresh != "" {
			cl.refreshPath = refresh
		}
		if csrf != "" {
			cl.csrfPath = csrf
		}
		if config != "" {
			cl.configPath = config
		}
	}
}

// New creates a provider client for the API at baseURL.
func New(baseURL string, opts ...Option) *Client {
	cl := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		httpClient:   &http.Client{Timeout: defaultTimeout},
		loginPath:    "/auth/login",
		registerPath: "/auth/register",
		refreshPath:  "/auth/refresh",
		csrfPath:     "/auth/csrf",
		configPath:   "/auth/security-config",
	}
	for _, opt := range opts {
		opt(cl)
	}
	return cl
}

type grantPayload struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	} `json:"user"`
}

func (g grantPayload) grant() sessionkit.Grant {
	return sessionkit.Grant{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
		User: sessionkit.UserProfile{
			ID:    g.User.ID,
			Email: g.User.Email,
			Name:  g.User.Name,
			Role:  g.User.Role,
		},
	}
}

// Authenticate exchanges credentials for a grant. A 401 or 403 from
// the backend maps to [sessionkit.ErrAuthenticationFailed].
func (c *Client) Authenticate(ctx context.Context, identifier, password string) (sessionkit.Grant, error) {
	body := map[string]string{"identifier": identifier, "password": password}

	var payload grantPayload
	if err := c.postJSON(ctx, c.loginPath, body, &payload); err != nil {
		return sessionkit.Grant{}, err
	}
	return payload.grant(), nil
}

// Register creates an account and returns its initial grant.
func (c *Client) Register(ctx context.Context, profile sessionkit.UserProfile, password string) (sessionkit.Grant, error) {
	body := map[string]string{
		"email":    profile.Email,
		"name":     profile.Name,
		"password": password,
	}

	var payload grantPayload
	if err := c.postJSON(ctx, c.registerPath, body, &payload); err != nil {
		return sessionkit.Grant{}, err
	}
	return payload.grant(), nil
}

// Refresh exchanges a refresh token for a fresh grant.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (sessionkit.Grant, error) {
	body := map[string]string{"refreshToken": refreshToken}

	var payload grantPayload
	if err := c.postJSON(ctx, c.refreshPath, body, &payload); err != nil {
		return sessionkit.Grant{}, err
	}
	return payload.grant(), nil
}

// CSRFToken fetches a new anti-forgery token.
func (c *Client) CSRFToken(ctx context.Context) (string, error) {
	var payload struct {
		Token string `json:"token"`
	}
	if err := c.getJSON(ctx, c.csrfPath, &payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", fmt.Errorf("%w: empty csrf token", sessionkit.ErrProviderUnavailable)
	}
	return payload.Token, nil
}

// SecurityConfig fetches the backend's security settings.
func (c *Client) SecurityConfig(ctx context.Context) (sessionkit.RemoteConfig, error) {
	var remote sessionkit.RemoteConfig
	if err := c.getJSON(ctx, c.configPath, &remote); err != nil {
		return sessionkit.RemoteConfig{}, err
	}
	return remote, nil
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, out)
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sessionkit.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		io.Copy(io.Discard, resp.Body)
		return sessionkit.ErrAuthenticationFailed
	case resp.StatusCode >= 500:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("%w: status %d", sessionkit.ErrProviderUnavailable, resp.StatusCode)
	case resp.StatusCode >= 400:
		io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("provider rejected request: status %d", resp.StatusCode)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %v", sessionkit.ErrProviderUnavailable, err)
	}
	return nil
}
