package admin

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/auditdesk/auditdesk/internal/adapter/outbound/xlsx"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// handleExportRules downloads every rule as an xlsx workbook. The protect
// query parameter overrides the configured sheet protection.
// GET /admin/api/rules/export.xlsx?protect=false
func (h *AdminAPIHandler) handleExportRules(w http.ResponseWriter, r *http.Request) {
	if h.ruleAdminService == nil {
		h.respondError(w, http.StatusInternalServerError, "rule service not configured")
		return
	}

	opts := h.exportOptions
	if raw := r.URL.Query().Get("protect"); raw != "" {
		protect, err := strconv.ParseBool(raw)
		if err != nil {
			h.respondError(w, http.StatusBadRequest, "protect must be true or false")
			return
		}
		opts.Protect = protect
	}

	rules, err := h.ruleAdminService.All(r.Context())
	if err != nil {
		h.respondServiceError(w, err, "list rules")
		return
	}

	var buf bytes.Buffer
	if err := xlsx.Export(&buf, rules, opts); err != nil {
		h.logger.Error("failed to build rules workbook", "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to export rules")
		return
	}

	filename := fmt.Sprintf("access-rules-%s.xlsx", h.now().UTC().Format("20060102"))
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())

	caller, _ := CallerFromContext(r.Context())
	name := ""
	if caller != nil {
		name = caller.Name
	}
	h.requestLogger(r).Info("access rules exported", "rules", len(rules), "protected", opts.Protect, "caller", name)
}
