package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/pkriz/veritas/internal/store"
)

const defaultSessionListLimit = 50

// handleListSessions returns recent sessions with verdict counts.
func (r *Router) handleListSessions(w http.ResponseWriter, req *http.Request) {
	limit := defaultSessionListLimit
	if v := req.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	sessions, err := r.store.ListSessions(req.Context(), limit)
	if err != nil {
		r.storeError(w, req, err, "failed to list sessions")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleGetSession returns one session with its full transcript and
// verdicts.
func (r *Router) handleGetSession(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	detail, err := r.store.GetSessionDetail(req.Context(), id)
	if err != nil {
		r.storeError(w, req, err, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// handleGetSessionCosts returns the recorded provider spend for one
// session.
func (r *Router) handleGetSessionCosts(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	sessionCosts, err := r.store.GetSessionCosts(req.Context(), id)
	if err != nil {
		r.storeError(w, req, err, "failed to load session costs")
		return
	}
	writeJSON(w, http.StatusOK, sessionCosts)
}

// storeError maps storage failures to HTTP responses. A missing
// database is a deployment mode, not a bug, so it maps to 503 without
// reporting to Sentry.
func (r *Router) storeError(w http.ResponseWriter, req *http.Request, err error, msg string) {
	switch {
	case errors.Is(err, store.ErrNoDatabase):
		http.Error(w, `{"error": "persistence is not configured"}`, http.StatusServiceUnavailable)
	case errors.Is(err, store.ErrNotFound):
		http.Error(w, `{"error": "not found"}`, http.StatusNotFound)
	default:
		captureError(req, err, msg)
		http.Error(w, `{"error": "internal server error"}`, http.StatusInternalServerError)
	}
}
