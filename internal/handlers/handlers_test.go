package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/framefold/groupshot/internal/config"
	"github.com/framefold/groupshot/internal/models"
)

func testHandler(t *testing.T) *Handler {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Load()
	cfg.UploadsDir = filepath.Join(dir, "uploads")
	cfg.CredentialsPath = filepath.Join(dir, "credential")
	return New(cfg)
}

func createSession(t *testing.T, h *Handler) *models.StudioSession {
	t.Helper()
	rec := httptest.NewRecorder()
	h.HandleSessions(rec, httptest.NewRequest("POST", "/api/sessions", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Creating session returned %d", rec.Code)
	}
	var session models.StudioSession
	if err := json.Unmarshal(rec.Body.Bytes(), &session); err != nil {
		t.Fatalf("Decoding session: %v", err)
	}
	return &session
}

func TestSessionLifecycle(t *testing.T) {
	h := testHandler(t)
	session := createSession(t, h)
	if session.ID == "" {
		t.Fatal("Expected a session id")
	}
	if session.Busy {
		t.Error("Expected a fresh session to be idle")
	}

	rec := httptest.NewRecorder()
	h.HandleSessionDetail(rec, httptest.NewRequest("GET", "/api/sessions/"+session.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("Fetching session returned %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleSessionDetail(rec, httptest.NewRequest("DELETE", "/api/sessions/"+session.ID, nil))
	if rec.Code != http.StatusNoContent {
		t.Errorf("Deleting session returned %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.HandleSessionDetail(rec, httptest.NewRequest("GET", "/api/sessions/"+session.ID, nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", rec.Code)
	}
}

func TestSessionNotFound(t *testing.T) {
	h := testHandler(t)
	rec := httptest.NewRecorder()
	h.HandleSessionDetail(rec, httptest.NewRequest("GET", "/api/sessions/nope", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}
}

func TestGenerateRequiresSubjects(t *testing.T) {
	h := testHandler(t)
	session := createSession(t, h)

	body := strings.NewReader(`{"scene_prompt":"sunset beach","variation_count":4}`)
	rec := httptest.NewRecorder()
	h.HandleSessionDetail(rec, httptest.NewRequest("POST", "/api/sessions/"+session.ID+"/generate", body))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 generating without subjects, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "subject") {
		t.Errorf("Expected guidance mentioning subjects, got %q", rec.Body.String())
	}
}

func TestRetryWithoutBatchIsBadRequest(t *testing.T) {
	h := testHandler(t)
	session := createSession(t, h)

	rec := httptest.NewRecorder()
	h.HandleSessionDetail(rec, httptest.NewRequest("POST", "/api/sessions/"+session.ID+"/retry-failed", nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 retrying with no history, got %d", rec.Code)
	}
}

func TestCredentialRoundTrip(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	h := testHandler(t)

	rec := httptest.NewRecorder()
	h.HandleCredential(rec, httptest.NewRequest("GET", "/api/credential", nil))
	var status struct {
		Configured bool   `json:"configured"`
		Source     string `json:"source"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("Decoding credential status: %v", err)
	}
	if status.Configured {
		t.Error("Expected no credential configured initially")
	}

	rec = httptest.NewRecorder()
	h.HandleCredential(rec, httptest.NewRequest("POST", "/api/credential", strings.NewReader(`{"api_key":"test-key"}`)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Storing credential returned %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"configured":true`) {
		t.Errorf("Expected configured after store, got %q", rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "test-key") {
		t.Error("Expected the key itself never echoed back")
	}

	rec = httptest.NewRecorder()
	h.HandleCredential(rec, httptest.NewRequest("DELETE", "/api/credential", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("Clearing credential returned %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"configured":true`) {
		t.Error("Expected credential gone after clear")
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h := testHandler(t)
	session := createSession(t, h)

	tests := []struct {
		method string
		path   string
	}{
		{"PUT", "/api/sessions"},
		{"GET", "/api/sessions/" + session.ID + "/generate"},
		{"GET", "/api/sessions/" + session.ID + "/cancel"},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(tt.method, tt.path, nil)
		if tt.path == "/api/sessions" {
			h.HandleSessions(rec, req)
		} else {
			h.HandleSessionDetail(rec, req)
		}
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s returned %d, want 405", tt.method, tt.path, rec.Code)
		}
	}
}
