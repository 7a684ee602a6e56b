package auth

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"smartscribe/pkg/apperr"
	"smartscribe/pkg/logger"
	"smartscribe/pkg/utils"
)

type ctxUserKey struct{}

// UserIDFromContext returns the verified user id or empty string.
func UserIDFromContext(ctx context.Context) string {
	if v := ctx.Value(ctxUserKey{}); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

type tokenEntry struct {
	userID  string
	expires time.Time
}

// tokenCache keeps gate-resolved tokens for a short TTL so every request
// does not round-trip to the identity gate.
type tokenCache struct {
	mu  sync.Mutex
	m   map[string]tokenEntry
	ttl time.Duration
}

func (c *tokenCache) get(token string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[token]
	if !ok || time.Now().After(e.expires) {
		delete(c.m, token)
		return "", false
	}
	return e.userID, true
}

func (c *tokenCache) put(token, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.m == nil {
		c.m = make(map[string]tokenEntry)
	}
	c.m[token] = tokenEntry{userID: userID, expires: time.Now().Add(c.ttl)}
}

// AuthenticateRequestMiddleware is the outer gateway: CORS, IP
// allowlist, caller identification and rate limiting. Identity is
// carried in the request context, never in package globals, so multiple
// users and tests can share a process.
func AuthenticateRequestMiddleware(cfg SecConfig, gate IdentityGate) func(http.Handler) http.Handler {
	limiters := &limiterPool{cfg: cfg}
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	cache := &tokenCache{ttl: ttl}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger.LogRequest(r)

			// cors preflight
			origin := r.Header.Get("Origin")
			if origin != "" && originAllowed(origin, cfg.AllowedOrigins) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
				w.Header().Set("Access-Control-Max-Age", "600")
				w.Header().Set("Access-Control-Allow-Headers", "Authorization,Content-Type,X-API-Key,X-User-ID")
				w.Header().Set("Access-Control-Expose-Headers", "X-Role-Name")
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			// ip allowlist
			if len(cfg.IPWhitelist) > 0 {
				ip := clientIP(r)
				if !ipWhitelisted(ip, cfg.IPWhitelist) {
					utils.JSONError(w, http.StatusForbidden, "forbidden")
					logger.Warn("request_blocked", "reason", "ip_not_whitelisted", "ip", ip, "path", r.URL.Path)
					return
				}
			}

			// health probes may not carry credentials
			if (r.URL.Path == "/healthz" || r.URL.Path == "/readyz") && r.Method == http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			role, key, userID, err := resolveCaller(r, cfg, gate, cache)
			if err != nil {
				if apperr.IsTransport(err) {
					utils.JSONError(w, http.StatusServiceUnavailable, "identity gate unreachable")
				} else {
					utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				}
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr, "error", err)
				return
			}

			var roleName string
			switch role {
			case RoleUser:
				roleName = "user"
			case RoleBackend:
				roleName = "backend"
			case RoleAdmin:
				roleName = "admin"
			default:
				roleName = "unauth"
			}
			if role == RoleUnauth {
				utils.JSONError(w, http.StatusUnauthorized, "unauthorized")
				logger.Warn("request_unauthorized", "path", r.URL.Path, "remote", r.RemoteAddr)
				return
			}
			r.Header.Set("X-Role-Name", roleName)

			// rate limiting keyed by credential, falling back to client ip
			if !limiters.Allow(key) {
				utils.JSONError(w, http.StatusTooManyRequests, "rate limit exceeded")
				logger.Warn("rate_limited", "path", r.URL.Path, "role", roleName)
				return
			}

			if userID != "" {
				r = r.WithContext(context.WithValue(r.Context(), ctxUserKey{}, userID))
			}
			logger.Info("request_allowed", "method", r.Method, "path", r.URL.Path, "role", roleName)
			next.ServeHTTP(w, r)
		})
	}
}

// resolveCaller identifies the request: configured API keys grant the
// backend/admin roles (with an explicit X-User-ID acting on behalf of a
// user); any other bearer credential is treated as a gate session token
// and resolved to a user.
func resolveCaller(r *http.Request, cfg SecConfig, gate IdentityGate, cache *tokenCache) (Role, string, string, error) {
	authz := r.Header.Get("Authorization")
	var cred string
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		cred = strings.TrimSpace(authz[7:])
	}
	if cred == "" {
		cred = r.Header.Get("X-API-Key")
	}
	if cred == "" {
		return RoleUnauth, clientIP(r), "", nil
	}
	if _, ok := cfg.AdminKeys[cred]; ok {
		return RoleAdmin, cred, strings.TrimSpace(r.Header.Get("X-User-ID")), nil
	}
	if _, ok := cfg.BackendKeys[cred]; ok {
		return RoleBackend, cred, strings.TrimSpace(r.Header.Get("X-User-ID")), nil
	}
	// frontend keys identify a trusted client app, not a user; the user
	// comes from X-User-ID
	if _, ok := cfg.FrontendKeys[cred]; ok {
		return RoleUser, cred, strings.TrimSpace(r.Header.Get("X-User-ID")), nil
	}
	// not a configured key: resolve as identity-gate token
	if gate == nil {
		return RoleUnauth, cred, "", nil
	}
	if uid, ok := cache.get(cred); ok {
		return RoleUser, cred, uid, nil
	}
	u, err := gate.CurrentUser(r.Context(), cred)
	if err != nil {
		return RoleUnauth, cred, "", err
	}
	cache.put(cred, u.ID)
	return RoleUser, cred, u.ID, nil
}

func originAllowed(origin string, allowed []string) bool {
	for _, a := range allowed {
		if a == "*" || strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func ipWhitelisted(ip string, list []string) bool {
	for _, w := range list {
		if ip == w {
			return true
		}
	}
	return false
}
