package admin

import (
	"net/http"
	"time"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// targetFromQuery reads kind, component and at from the query string.
// kind defaults to global and a missing at means now.
func (h *AdminAPIHandler) targetFromQuery(w http.ResponseWriter, r *http.Request) (schedule.Target, time.Time, bool) {
	q := r.URL.Query()

	kind := schedule.KindGlobal
	if raw := q.Get("kind"); raw != "" {
		k, err := schedule.ParseKind(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, err.Error())
			return schedule.Target{}, time.Time{}, false
		}
		kind = k
	}
	target := schedule.Target{Kind: kind, Component: q.Get("component")}
	if err := target.Validate(); err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return schedule.Target{}, time.Time{}, false
	}

	var at time.Time
	if raw := q.Get("at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "at must be an RFC 3339 timestamp")
			return schedule.Target{}, time.Time{}, false
		}
		at = t
	}
	return target, at, true
}

// handleCheckAccess answers whether the target is accessible.
// GET /api/v1/access/check?kind=component&component=reports&at=2024-01-01T10:00:00Z
func (h *AdminAPIHandler) handleCheckAccess(w http.ResponseWriter, r *http.Request) {
	if h.accessService == nil {
		h.respondError(w, http.StatusInternalServerError, "access service not configured")
		return
	}
	target, at, ok := h.targetFromQuery(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, h.accessService.CheckAccess(r.Context(), target, at))
}

// handleNextAccess projects when the target opens next.
// GET /api/v1/access/next?kind=global
func (h *AdminAPIHandler) handleNextAccess(w http.ResponseWriter, r *http.Request) {
	if h.accessService == nil {
		h.respondError(w, http.StatusInternalServerError, "access service not configured")
		return
	}
	target, at, ok := h.targetFromQuery(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, h.accessService.NextAccessTime(r.Context(), target, at))
}
