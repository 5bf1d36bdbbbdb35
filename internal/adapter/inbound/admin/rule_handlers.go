package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/cespare/xxhash/v2"

	"github.com/auditdesk/auditdesk/internal/domain/schedule"
)

// ruleRequest is the JSON body for creating or updating a rule.
type ruleRequest struct {
	ID          string   `json:"id,omitempty"`
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name,omitempty"`
	Component   string   `json:"component,omitempty"`
	Enabled     *bool    `json:"enabled,omitempty"`
	Scope       string   `json:"scope"`
	StartTime   string   `json:"start_time,omitempty"`
	EndTime     string   `json:"end_time,omitempty"`
	Timezone    string   `json:"timezone,omitempty"`
	AllowedDays []string `json:"allowed_days,omitempty"`
	Condition   string   `json:"condition,omitempty"`
}

// toDomainRule converts a request to a rule of kind. Enabled defaults to true.
func toDomainRule(kind schedule.Kind, req ruleRequest) *schedule.AccessRule {
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	return &schedule.AccessRule{
		ID:          req.ID,
		Name:        req.Name,
		DisplayName: req.DisplayName,
		Kind:        kind,
		Component:   req.Component,
		Enabled:     enabled,
		Scope:       schedule.Scope(req.Scope),
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		Timezone:    req.Timezone,
		AllowedDays: req.AllowedDays,
		Condition:   req.Condition,
	}
}

// handleListRules returns all rules of a kind, newest first. The response
// carries an ETag so pollers can revalidate cheaply.
// GET /admin/api/rules/{kind}
func (h *AdminAPIHandler) handleListRules(w http.ResponseWriter, r *http.Request) {
	if h.ruleAdminService == nil {
		h.respondError(w, http.StatusInternalServerError, "rule service not configured")
		return
	}
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	rules, err := h.ruleAdminService.List(r.Context(), kind)
	if err != nil {
		h.respondServiceError(w, err, "list rules")
		return
	}
	if rules == nil {
		rules = []schedule.AccessRule{}
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(rules); err != nil {
		h.respondServiceError(w, err, "encode rules")
		return
	}
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(buf.Bytes()))
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleGetRule returns a single rule.
// GET /admin/api/rules/{kind}/{id}
func (h *AdminAPIHandler) handleGetRule(w http.ResponseWriter, r *http.Request) {
	if h.ruleAdminService == nil {
		h.respondError(w, http.StatusInternalServerError, "rule service not configured")
		return
	}
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	rule, err := h.ruleAdminService.Get(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "get rule")
		return
	}
	h.respondJSON(w, http.StatusOK, rule)
}

// handleCreateRule creates a rule from the request body.
// POST /admin/api/rules/{kind}
func (h *AdminAPIHandler) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	if h.ruleAdminService == nil {
		h.respondError(w, http.StatusInternalServerError, "rule service not configured")
		return
	}
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	created, err := h.ruleAdminService.Create(r.Context(), toDomainRule(kind, req))
	if err != nil {
		h.respondServiceError(w, err, "create rule")
		return
	}
	w.Header().Set("Location", "/admin/api/rules/"+string(kind)+"/"+created.ID)
	h.respondJSON(w, http.StatusCreated, created)
}

// handleUpdateRule replaces an existing rule.
// PUT /admin/api/rules/{kind}/{id}
func (h *AdminAPIHandler) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	if h.ruleAdminService == nil {
		h.respondError(w, http.StatusInternalServerError, "rule service not configured")
		return
	}
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	var req ruleRequest
	if err := h.readJSON(w, r, &req); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}

	updated, err := h.ruleAdminService.Update(r.Context(), kind, r.PathValue("id"), toDomainRule(kind, req))
	if err != nil {
		h.respondServiceError(w, err, "update rule")
		return
	}
	h.respondJSON(w, http.StatusOK, updated)
}

// handleDeleteRule removes a rule.
// DELETE /admin/api/rules/{kind}/{id}
func (h *AdminAPIHandler) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if h.ruleAdminService == nil {
		h.respondError(w, http.StatusInternalServerError, "rule service not configured")
		return
	}
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	if err := h.ruleAdminService.Delete(r.Context(), kind, r.PathValue("id")); err != nil {
		h.respondServiceError(w, err, "delete rule")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleToggleRule flips a rule's enabled flag.
// POST /admin/api/rules/{kind}/{id}/toggle
func (h *AdminAPIHandler) handleToggleRule(w http.ResponseWriter, r *http.Request) {
	if h.ruleAdminService == nil {
		h.respondError(w, http.StatusInternalServerError, "rule service not configured")
		return
	}
	kind, ok := h.kindParam(w, r)
	if !ok {
		return
	}

	rule, err := h.ruleAdminService.Toggle(r.Context(), kind, r.PathValue("id"))
	if err != nil {
		h.respondServiceError(w, err, "toggle rule")
		return
	}
	h.respondJSON(w, http.StatusOK, rule)
}
