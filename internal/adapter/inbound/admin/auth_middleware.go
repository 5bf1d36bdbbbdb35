package admin

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/auditdesk/auditdesk/internal/domain/auth"
)

type callerContextKey struct{}

// CallerFromContext returns the authenticated caller stored by requireRole.
func CallerFromContext(ctx context.Context) (*auth.Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(*auth.Caller)
	return c, ok
}

// isLocalhost checks if the request originates from a loopback address.
// X-Forwarded-For is not trusted.
func isLocalhost(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// bearerToken extracts the token from an "Authorization: Bearer" header.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// requireRole wraps next with caller authentication. Loopback requests
// bypass key checks and act as admin. Remote requests need a Bearer key
// whose role permits required.
func (h *AdminAPIHandler) requireRole(required auth.Role, next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var caller *auth.Caller
		switch {
		case isLocalhost(r):
			caller = &auth.Caller{Name: "localhost", Role: auth.RoleAdmin, Local: true}
		case h.keys == nil || h.keys.Len() == 0:
			h.respondError(w, http.StatusForbidden, "remote access requires configured API keys")
			return
		default:
			token := bearerToken(r)
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="auditdesk"`)
				h.respondError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			c, err := h.keys.Authenticate(token)
			if err != nil {
				h.requestLogger(r).Warn("rejected api key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				w.Header().Set("WWW-Authenticate", `Bearer realm="auditdesk", error="invalid_token"`)
				h.respondError(w, http.StatusUnauthorized, "invalid api key")
				return
			}
			caller = c
		}

		if !caller.Role.Permits(required) {
			h.respondError(w, http.StatusForbidden, "api key role "+string(caller.Role)+" cannot access this endpoint")
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), callerContextKey{}, caller)))
	})
}

// handleAuthStatus reports how the caller would be authenticated.
// GET /admin/api/auth/status
func (h *AdminAPIHandler) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	keys := 0
	if h.keys != nil {
		keys = h.keys.Len()
	}
	h.respondJSON(w, http.StatusOK, map[string]interface{}{
		"localhost":       isLocalhost(r),
		"keys_configured": keys,
		"auth_required":   !isLocalhost(r),
	})
}
