package auth

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/models"
)

type fakeGate struct {
	calls int32
	users map[string]string // token -> user id
	down  bool
}

func (f *fakeGate) CreateAccount(ctx context.Context, email, password, name string) (models.User, error) {
	return models.User{}, fmt.Errorf("not used")
}
func (f *fakeGate) CreateSession(ctx context.Context, email, password string) (string, error) {
	return "", fmt.Errorf("not used")
}
func (f *fakeGate) CurrentUser(ctx context.Context, token string) (models.User, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.down {
		return models.User{}, apperr.Transport("gate", fmt.Errorf("connection refused"))
	}
	if uid, ok := f.users[token]; ok {
		return models.User{ID: uid}, nil
	}
	return models.User{}, apperr.Validation("token", "unknown")
}
func (f *fakeGate) DeleteSession(ctx context.Context, token string) error { return nil }

func testHandler(gotUser *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotUser = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func baseCfg() SecConfig {
	return SecConfig{
		RPS:          100,
		Burst:        100,
		BackendKeys:  map[string]struct{}{"bk-1": {}},
		FrontendKeys: map[string]struct{}{"fk-1": {}},
		AdminKeys:    map[string]struct{}{"ak-1": {}},
	}
}

func doReq(h http.Handler, setup func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/sessions?user_id=u1", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	if setup != nil {
		setup(req)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestNoCredentialIsUnauthorized(t *testing.T) {
	var user string
	h := AuthenticateRequestMiddleware(baseCfg(), nil)(testHandler(&user))
	rr := doReq(h, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestBackendKeyCarriesUserHeader(t *testing.T) {
	var user string
	h := AuthenticateRequestMiddleware(baseCfg(), nil)(testHandler(&user))
	rr := doReq(h, func(r *http.Request) {
		r.Header.Set("X-API-Key", "bk-1")
		r.Header.Set("X-User-ID", "u42")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if user != "u42" {
		t.Fatalf("user in context: %q", user)
	}
}

func TestFrontendKeyResolvesUserRole(t *testing.T) {
	var user string
	h := AuthenticateRequestMiddleware(baseCfg(), nil)(testHandler(&user))
	rr := doReq(h, func(r *http.Request) {
		r.Header.Set("X-API-Key", "fk-1")
		r.Header.Set("X-User-ID", "u7")
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if user != "u7" {
		t.Fatalf("user in context: %q", user)
	}
}

func TestGateTokenResolvedAndCached(t *testing.T) {
	gate := &fakeGate{users: map[string]string{"tok-1": "u99"}}
	var user string
	h := AuthenticateRequestMiddleware(baseCfg(), gate)(testHandler(&user))

	for i := 0; i < 3; i++ {
		rr := doReq(h, func(r *http.Request) {
			r.Header.Set("Authorization", "Bearer tok-1")
		})
		if rr.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rr.Code)
		}
		if user != "u99" {
			t.Fatalf("request %d: user %q", i, user)
		}
	}
	if n := atomic.LoadInt32(&gate.calls); n != 1 {
		t.Fatalf("expected 1 gate call (cached after), got %d", n)
	}
}

func TestUnknownTokenUnauthorized(t *testing.T) {
	gate := &fakeGate{users: map[string]string{}}
	var user string
	h := AuthenticateRequestMiddleware(baseCfg(), gate)(testHandler(&user))
	rr := doReq(h, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer bogus")
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestGateDownIs503(t *testing.T) {
	gate := &fakeGate{down: true}
	var user string
	h := AuthenticateRequestMiddleware(baseCfg(), gate)(testHandler(&user))
	rr := doReq(h, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer tok-x")
	})
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestHealthProbesBypassAuth(t *testing.T) {
	var user string
	h := AuthenticateRequestMiddleware(baseCfg(), nil)(testHandler(&user))
	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.1.2.3:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rr.Code)
		}
	}
}

func TestIPWhitelistBlocks(t *testing.T) {
	cfg := baseCfg()
	cfg.IPWhitelist = []string{"192.168.1.1"}
	var user string
	h := AuthenticateRequestMiddleware(cfg, nil)(testHandler(&user))
	rr := doReq(h, func(r *http.Request) {
		r.Header.Set("X-API-Key", "bk-1")
	})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status %d", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	cfg := baseCfg()
	cfg.AllowedOrigins = []string{"https://app.example.com"}
	var user string
	h := AuthenticateRequestMiddleware(cfg, nil)(testHandler(&user))

	req := httptest.NewRequest(http.MethodOptions, "/sessions", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	req.Header.Set("Origin", "https://app.example.com")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status %d", rr.Code)
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("allow-origin: %q", rr.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestRateLimitKicksIn(t *testing.T) {
	cfg := baseCfg()
	cfg.RPS = 1
	cfg.Burst = 2
	var user string
	h := AuthenticateRequestMiddleware(cfg, nil)(testHandler(&user))

	var limited bool
	for i := 0; i < 5; i++ {
		rr := doReq(h, func(r *http.Request) {
			r.Header.Set("X-API-Key", "bk-1")
			r.Header.Set("X-User-ID", "u1")
		})
		if rr.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("burst of requests was never rate limited")
	}
}
