// Package admin provides the JSON API for access checks and rule
// administration.
package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/xlsx"
	"github.com/auditdesk/auditdesk/internal/ctxkey"
	"github.com/auditdesk/auditdesk/internal/domain/auth"
	"github.com/auditdesk/auditdesk/internal/domain/schedule"
	"github.com/auditdesk/auditdesk/internal/service"
)

// maxRequestBodySize is the maximum accepted JSON body (1 MB).
const maxRequestBodySize = 1 << 20

// AdminAPIHandler serves the access and rule administration endpoints.
type AdminAPIHandler struct {
	accessService    *service.AccessService
	ruleAdminService *service.RuleAdminService
	keys             *auth.KeyRing
	exportOptions    xlsx.ExportOptions
	logger           *slog.Logger
	now              func() time.Time
}

// AdminAPIOption configures an AdminAPIHandler dependency.
type AdminAPIOption func(*AdminAPIHandler)

// WithAccessService sets the service answering access checks.
func WithAccessService(s *service.AccessService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.accessService = s }
}

// WithRuleAdminService sets the rule CRUD service.
func WithRuleAdminService(s *service.RuleAdminService) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.ruleAdminService = s }
}

// WithKeyRing sets the API keys accepted from remote callers.
func WithKeyRing(k *auth.KeyRing) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.keys = k }
}

// WithExportOptions sets the default spreadsheet export options.
func WithExportOptions(o xlsx.ExportOptions) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.exportOptions = o }
}

// WithAPILogger sets the logger.
func WithAPILogger(l *slog.Logger) AdminAPIOption {
	return func(h *AdminAPIHandler) { h.logger = l }
}

// NewAdminAPIHandler creates a new AdminAPIHandler with the given options.
func NewAdminAPIHandler(opts ...AdminAPIOption) *AdminAPIHandler {
	h := &AdminAPIHandler{
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns an http.Handler with all API routes registered.
// Localhost callers bypass authentication; remote callers need a Bearer key
// with a sufficient role.
func (h *AdminAPIHandler) Routes() http.Handler {
	mux := http.NewServeMux()

	// Informational, not protected.
	mux.HandleFunc("GET /admin/api/auth/status", h.handleAuthStatus)

	// Guard endpoints used by the dashboard and edge functions.
	mux.Handle("GET /api/v1/access/check", h.requireRole(auth.RoleGuard, h.handleCheckAccess))
	mux.Handle("GET /api/v1/access/next", h.requireRole(auth.RoleGuard, h.handleNextAccess))

	// Rule administration.
	mux.Handle("GET /admin/api/rules/export.xlsx", h.requireRole(auth.RoleAdmin, h.handleExportRules))
	mux.Handle("GET /admin/api/rules/{kind}", h.requireRole(auth.RoleAdmin, h.handleListRules))
	mux.Handle("POST /admin/api/rules/{kind}", h.requireRole(auth.RoleAdmin, h.handleCreateRule))
	mux.Handle("GET /admin/api/rules/{kind}/{id}", h.requireRole(auth.RoleAdmin, h.handleGetRule))
	mux.Handle("PUT /admin/api/rules/{kind}/{id}", h.requireRole(auth.RoleAdmin, h.handleUpdateRule))
	mux.Handle("DELETE /admin/api/rules/{kind}/{id}", h.requireRole(auth.RoleAdmin, h.handleDeleteRule))
	mux.Handle("POST /admin/api/rules/{kind}/{id}/toggle", h.requireRole(auth.RoleAdmin, h.handleToggleRule))

	return securityHeaders(mux)
}

// --- JSON helper methods ---

// requestLogger returns the request-scoped logger set by the server's
// request ID middleware, falling back to the handler logger.
func (h *AdminAPIHandler) requestLogger(r *http.Request) *slog.Logger {
	return ctxkey.Logger(r.Context(), h.logger)
}

// respondJSON writes a JSON response with the given status code and data.
func (h *AdminAPIHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

// respondError writes a JSON error response with the given status code and message.
func (h *AdminAPIHandler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

// readJSON decodes the request body into v, rejecting unknown fields.
func (h *AdminAPIHandler) readJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// kindParam parses the {kind} path parameter, writing a 400 on failure.
func (h *AdminAPIHandler) kindParam(w http.ResponseWriter, r *http.Request) (schedule.Kind, bool) {
	kind, err := schedule.ParseKind(r.PathValue("kind"))
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return kind, true
}

// respondServiceError maps rule service errors to status codes.
func (h *AdminAPIHandler) respondServiceError(w http.ResponseWriter, err error, action string) {
	switch {
	case errors.Is(err, schedule.ErrRuleNotFound):
		h.respondError(w, http.StatusNotFound, "rule not found")
	case errors.Is(err, schedule.ErrDuplicateRule):
		h.respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidRule):
		h.respondError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("failed to "+action, "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to "+action)
	}
}

// securityHeaders sets headers that keep API responses from being
// rendered or framed by browsers.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "no-referrer")
		w.Header().Set("Cache-Control", "no-cache")
		next.ServeHTTP(w, r)
	})
}
