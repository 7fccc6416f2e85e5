package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

var agendaMethods = []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete}

func corsRequest(t *testing.T, cfg CORSConfig, method, origin, preflight string) (*httptest.ResponseRecorder, bool) {
	t.Helper()
	called := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})
	req := httptest.NewRequest(method, "/agenda/appointments", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if preflight != "" {
		req.Header.Set("Access-Control-Request-Method", preflight)
	}
	rec := httptest.NewRecorder()
	CORS(cfg)(handler).ServeHTTP(rec, req)
	return rec, called
}

func TestCORSAllowsListedOrigin(t *testing.T) {
	cfg := CORSConfig{Origins: []string{"https://agenda.example.com/"}, Methods: agendaMethods}
	rec, called := corsRequest(t, cfg, http.MethodGet, "https://agenda.example.com", "")

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://agenda.example.com" {
		t.Fatalf("expected allow origin header, got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "DELETE, GET, OPTIONS, PATCH, POST" {
		t.Fatalf("unexpected allow methods %q", got)
	}
	if got := rec.Header().Get("Access-Control-Expose-Headers"); got != "X-Request-ID" {
		t.Fatalf("expected request id to be exposed, got %q", got)
	}
}

func TestCORSDeniesUnknownOrigin(t *testing.T) {
	cfg := CORSConfig{Origins: []string{"https://agenda.example.com"}, Methods: agendaMethods}
	rec, called := corsRequest(t, cfg, http.MethodGet, "https://unknown.example", "")

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Fatalf("expected no allow origin header, got %q", got)
	}
}

func TestCORSOriginPatterns(t *testing.T) {
	cfg := CORSConfig{Origins: []string{"https://*.clinic.example"}, Methods: agendaMethods}
	tests := []struct {
		origin string
		want   bool
	}{
		{"https://front.clinic.example", true},
		{"https://a.b.clinic.example", true},
		{"https://clinic.example", false},
		{"http://front.clinic.example", false},
		{"https://evilclinic.example", false},
	}
	for _, tt := range tests {
		rec, _ := corsRequest(t, cfg, http.MethodGet, tt.origin, "")
		got := rec.Header().Get("Access-Control-Allow-Origin") != ""
		if got != tt.want {
			t.Fatalf("origin %q: allowed=%v, want %v", tt.origin, got, tt.want)
		}
	}

	rec, _ := corsRequest(t, CORSConfig{Origins: []string{"*"}}, http.MethodGet, "https://front.example", "")
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://front.example" {
		t.Fatalf("expected any origin to be echoed, got %q", got)
	}
}

func TestCORSHandlesPreflight(t *testing.T) {
	cfg := CORSConfig{Origins: []string{"https://agenda.example.com"}, Methods: agendaMethods}
	rec, called := corsRequest(t, cfg, http.MethodOptions, "https://agenda.example.com", "post")

	if called {
		t.Fatalf("expected handler to not be called on preflight")
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rec.Code)
	}
}

func TestCORSRejectsPreflightForUnservedMethod(t *testing.T) {
	cfg := CORSConfig{Origins: []string{"https://agenda.example.com"}, Methods: agendaMethods}
	rec, called := corsRequest(t, cfg, http.MethodOptions, "https://agenda.example.com", http.MethodPut)

	if called {
		t.Fatalf("expected handler to not be called on preflight")
	}
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rec.Code)
	}
}
