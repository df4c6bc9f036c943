package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/alerts"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/scanner"
)

// scanRateKey counts scans per user in the cache.
const scanRateKey = "ratelimit:scan"

type scanRequest struct {
	UserID string `json:"userId"`
}

type scanAlert struct {
	AlertID       string `json:"alertId"`
	TransactionID string `json:"transactionId"`
	Reason        string `json:"reason"`
}

type scanResponse struct {
	Scanned int         `json:"scanned"`
	Flagged int         `json:"flagged"`
	Skipped int         `json:"skipped"`
	Failed  int         `json:"failed"`
	Alerts  []scanAlert `json:"alerts"`
}

// Scan handles POST /security/transactions/scan.
func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	user := userID(r, req.UserID)

	if h.scanLimited(r, user) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{
			"error": "scan rate limit exceeded, try again later",
		})
		return
	}

	result, err := h.scans.ScanUser(r.Context(), user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	resp := scanResponse{
		Scanned: result.Scanned,
		Flagged: len(result.Flagged),
		Skipped: result.Skipped,
		Failed:  result.Failed,
		Alerts:  make([]scanAlert, 0, len(result.Flagged)),
	}
	for _, f := range result.Flagged {
		resp.Alerts = append(resp.Alerts, scanAlert{
			AlertID:       f.AlertID,
			TransactionID: f.TransactionID,
			Reason:        f.Reason,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// scanLimited counts the scan against the user's per-minute budget. Cache
// failures let the scan through.
func (h *Handler) scanLimited(r *http.Request, user string) bool {
	if h.scanLimit <= 0 || h.cache == nil {
		return false
	}
	n, err := h.cache.IncrementCounter(r.Context(), user, scanRateKey, time.Minute)
	if err != nil {
		h.logger.Warn("scan rate limit check failed", "user_id", user, "error", err)
		return false
	}
	return n > int64(h.scanLimit)
}

// Report handles POST /security/transactions/report.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	var in alerts.ReportInput
	if err := decodeJSON(r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if in.UserID == "" {
		in.UserID = GetUserID(r.Context())
	}

	alert, err := h.alerts.Report(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"alertId": alert.ID,
		"message": "Suspicious transaction reported successfully",
	})
}

type decisionRequest struct {
	UserID string `json:"userId"`
	Reason string `json:"reason"`
}

// Approve handles POST /security/transactions/{id}/approve.
func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	tx, err := h.alerts.Approve(r.Context(), chi.URLParam(r, "id"), userID(r, req.UserID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	summary := tx.Summary()
	summary.Date = nil
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Transaction approved successfully",
		"transaction": summary,
	})
}

// Reject handles POST /security/transactions/{id}/reject.
func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	summary, err := h.alerts.Reject(r.Context(), chi.URLParam(r, "id"), userID(r, req.UserID), req.Reason)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success":     true,
		"message":     "Transaction rejected and removed successfully",
		"transaction": summary,
	})
}

// ListAlerts handles GET /security/security-alerts.
func (h *Handler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	filter := domain.AlertFilter{
		UserID: userID(r, ""),
		Status: domain.AlertStatus(r.URL.Query().Get("status")),
	}
	h.listAlerts(w, r, filter)
}

// ListCardAlerts handles GET /security/cards/{cardId}/security-alerts.
func (h *Handler) ListCardAlerts(w http.ResponseWriter, r *http.Request) {
	filter := domain.AlertFilter{
		CardID: chi.URLParam(r, "cardId"),
		Status: domain.AlertStatus(r.URL.Query().Get("status")),
	}
	h.listAlerts(w, r, filter)
}

func (h *Handler) listAlerts(w http.ResponseWriter, r *http.Request, filter domain.AlertFilter) {
	if filter.Status != "" && filter.Status != domain.AlertOpen && filter.Status != domain.AlertResolved {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "status must be open or resolved",
		})
		return
	}

	list, err := h.alerts.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type resolveRequest struct {
	Resolution string `json:"resolution"`
	Notes      string `json:"notes"`
	UserID     string `json:"userId"`
}

// ResolveAlert handles POST /security/security-alerts/{alertId}/resolve.
func (h *Handler) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	alert, err := h.alerts.Resolve(r.Context(), chi.URLParam(r, "alertId"),
		domain.Resolution(req.Resolution), req.Notes, userID(r, req.UserID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

type noteRequest struct {
	Note   string `json:"note"`
	UserID string `json:"userId"`
}

// AddAlertNote handles POST /security/security-alerts/{alertId}/notes.
func (h *Handler) AddAlertNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	alert, err := h.alerts.AddNote(r.Context(), chi.URLParam(r, "alertId"), req.Note, userID(r, req.UserID))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, alert)
}

// SecurityStats handles GET /security/stats.
func (h *Handler) SecurityStats(w http.ResponseWriter, r *http.Request) {
	s, err := h.stats.SecurityStats(r.Context(), userID(r, ""))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// ListRules handles GET /security/rules. Rules are listed in evaluation
// order.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	loaded := h.scans.Rules()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"rules": loaded,
		"count": len(loaded),
	})
}

type merchantCheckRequest struct {
	URL string `json:"url"`
}

// CheckMerchant handles POST /security/merchant-check.
func (h *Handler) CheckMerchant(w http.ResponseWriter, r *http.Request) {
	var req merchantCheckRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error": "url is required",
		})
		return
	}
	writeJSON(w, http.StatusOK, scanner.AssessMerchantURL(req.URL))
}
