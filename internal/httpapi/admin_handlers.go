package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pkriz/veritas/internal/breaker"
)

// handleAdminActiveSessions returns a snapshot of live sessions with
// their pipeline metrics.
func (r *Router) handleAdminActiveSessions(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"draining":          r.registry.IsDraining(),
		"active_count":      r.registry.ActiveCount(),
		"dashboard_clients": r.hub.ClientCount(),
		"sessions":          r.registry.Snapshot(),
		"breakers": []breaker.Status{
			r.llmBreaker.Snapshot(),
			r.searchBreaker.Snapshot(),
		},
	})
}

// handleAdminSessionEvents returns the persisted event log for one
// session, newest first.
func (r *Router) handleAdminSessionEvents(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	limit := 200
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 1000 {
			limit = n
		}
	}

	events, err := r.store.ListSessionEvents(req.Context(), id, limit)
	if err != nil {
		r.storeError(w, req, err, "failed to list session events")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

// handleAdminCostSummary returns aggregated monthly costs. The period
// query parameter takes YYYY-MM and defaults to the current month.
func (r *Router) handleAdminCostSummary(w http.ResponseWriter, req *http.Request) {
	period := req.URL.Query().Get("period")
	if period == "" {
		period = nowUTC().Format("2006-01")
	}
	if _, err := time.Parse("2006-01", period); err != nil {
		http.Error(w, `{"error": "period must be YYYY-MM"}`, http.StatusBadRequest)
		return
	}

	summary, err := r.store.GetCostSummary(req.Context(), period)
	if err != nil {
		r.storeError(w, req, err, "failed to load cost summary")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// handleAdminTestPush sends a test push notification to verify APNs
// configuration.
func (r *Router) handleAdminTestPush(w http.ResponseWriter, req *http.Request) {
	if r.apns == nil {
		http.Error(w, `{"error": "push notifications are not configured"}`, http.StatusServiceUnavailable)
		return
	}

	var body struct {
		DeviceToken string `json:"device_token"`
		Message     string `json:"message"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, `{"error": "invalid request body"}`, http.StatusBadRequest)
		return
	}
	if body.DeviceToken == "" {
		body.DeviceToken = r.cfg.APNsDeviceToken
	}
	if body.DeviceToken == "" {
		http.Error(w, `{"error": "device_token required"}`, http.StatusBadRequest)
		return
	}
	if body.Message == "" {
		body.Message = "Test notification"
	}

	if err := r.apns.SendTestNotification(body.DeviceToken, body.Message); err != nil {
		r.logger.Printf("admin: test push failed: %v", err)
		http.Error(w, `{"error": "push delivery failed"}`, http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "sent"})
}
