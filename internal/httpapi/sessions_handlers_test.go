package httpapi

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

// Without DATABASE_URL the read API degrades to 503 rather than
// pretending the history is empty.
func TestListSessionsWithoutDatabase(t *testing.T) {
	r := testRouter(RouterConfig{})

	req := httptest.NewRequest("GET", "/api/sessions", nil)
	rec := httptest.NewRecorder()
	r.handleListSessions(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetSessionWithoutDatabase(t *testing.T) {
	r := testRouter(RouterConfig{})

	req := httptest.NewRequest("GET", "/api/sessions/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	r.handleGetSession(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestGetSessionCostsWithoutDatabase(t *testing.T) {
	r := testRouter(RouterConfig{})

	req := httptest.NewRequest("GET", "/api/sessions/abc/costs", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()
	r.handleGetSessionCosts(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}
