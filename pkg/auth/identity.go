package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/models"
)

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleUser
	RoleBackend
	RoleAdmin
)

// SecConfig drives authentication, CORS and rate limiting behavior.
// Kept here so limiter.go and middleware.go can share the type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	IPWhitelist    []string
	BackendKeys    map[string]struct{}
	FrontendKeys   map[string]struct{}
	AdminKeys      map[string]struct{}
	// TokenTTL bounds how long a gate-resolved token is trusted without
	// re-asking the identity gate.
	TokenTTL time.Duration
}

// IdentityGate is the external identity provider at its interface
// boundary: account creation, session-token issuance and resolution.
// The core trusts its answers for authorization but never implements
// credential storage itself.
type IdentityGate interface {
	CreateAccount(ctx context.Context, email, password, name string) (models.User, error)
	CreateSession(ctx context.Context, email, password string) (string, error)
	CurrentUser(ctx context.Context, token string) (models.User, error)
	DeleteSession(ctx context.Context, token string) error
}

// GateClient talks to the identity provider over HTTP.
type GateClient struct {
	BaseURL string
	HTTP    *http.Client
}

// NewGateClient returns a gate client for baseURL with a bounded
// request timeout.
func NewGateClient(baseURL string) *GateClient {
	return &GateClient{BaseURL: baseURL, HTTP: &http.Client{Timeout: 10 * time.Second}}
}

func (c *GateClient) do(ctx context.Context, method, path, token string, body, out interface{}) error {
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := c.HTTP.Do(req)
	if err != nil {
		return apperr.Transport("identity_gate", err)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusUnauthorized {
		return apperr.Validation("token", "invalid or expired session token")
	}
	if res.StatusCode >= 400 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(res.Body).Decode(&e)
		if e.Error == "" {
			e.Error = res.Status
		}
		return apperr.Upstream("identity_gate", fmt.Errorf("%s", e.Error))
	}
	if out != nil {
		return json.NewDecoder(res.Body).Decode(out)
	}
	return nil
}

func (c *GateClient) CreateAccount(ctx context.Context, email, password, name string) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodPost, "/v1/account", "", map[string]string{
		"email": email, "password": password, "name": name,
	}, &u)
	return u, err
}

func (c *GateClient) CreateSession(ctx context.Context, email, password string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodPost, "/v1/account/sessions", "", map[string]string{
		"email": email, "password": password,
	}, &out)
	return out.Token, err
}

func (c *GateClient) CurrentUser(ctx context.Context, token string) (models.User, error) {
	var u models.User
	err := c.do(ctx, http.MethodGet, "/v1/account/me", token, nil, &u)
	return u, err
}

func (c *GateClient) DeleteSession(ctx context.Context, token string) error {
	return c.do(ctx, http.MethodDelete, "/v1/account/sessions/current", token, nil, nil)
}
