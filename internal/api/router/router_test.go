package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/wolfman30/dental-agenda/internal/agenda"
	"github.com/wolfman30/dental-agenda/internal/appointments"
	"github.com/wolfman30/dental-agenda/internal/appointments/fakeapi"
	httpmiddleware "github.com/wolfman30/dental-agenda/internal/http/middleware"
	"github.com/wolfman30/dental-agenda/internal/observability/metrics"
	"github.com/wolfman30/dental-agenda/internal/schedule"
	"github.com/wolfman30/dental-agenda/pkg/logging"
)

const testSecret = "router-secret"

func newTestRouter(t *testing.T, mutate func(*Config)) http.Handler {
	t.Helper()

	logger := logging.Discard()
	fake := fakeapi.New(fakeapi.Options{Secret: testSecret}, logger)
	fake.AddPatient(appointments.Patient{ID: 1, Name: "Ana Souza"})
	api := httptest.NewServer(fake.Routes())
	t.Cleanup(api.Close)

	reg := prometheus.NewRegistry()
	m := metrics.NewAgendaMetrics(reg)
	client := appointments.NewClient(api.URL, nil, logger, appointments.WithMetrics(m))

	cfg := &Config{
		Logger:         logger,
		AgendaHandler:  agenda.NewHandler(client, schedule.DefaultSlotConfig(), logger, m),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		AuthSecret:     testSecret,
	}
	if mutate != nil {
		mutate(cfg)
	}
	return New(cfg)
}

func bearer(t *testing.T) string {
	t.Helper()
	token, err := fakeapi.IssueToken(testSecret, 5, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return "Bearer " + token
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode health response: %v", err)
	}

	if resp["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", resp["status"])
	}
}

func TestRouterAgendaRequiresBearer(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/agenda", nil)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected status %d, got %d", http.StatusUnauthorized, rr.Code)
	}
}

func TestRouterAgendaGrid(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/agenda?view=daily&date=2026-10-15", nil)
	req.Header.Set("Authorization", bearer(t))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d: %s", http.StatusOK, rr.Code, rr.Body.String())
	}
	var grid struct {
		View   string `json:"view"`
		Header string `json:"header"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&grid); err != nil {
		t.Fatalf("failed to decode grid: %v", err)
	}
	if grid.View != "daily" {
		t.Errorf("expected daily view, got %q", grid.View)
	}
	if grid.Header != "Thursday, 15 October 2026" {
		t.Errorf("unexpected header %q", grid.Header)
	}
}

func TestRouterMetricsRecordsUpstreamCalls(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) { cfg.MetricsToken = "scrape" })

	req := httptest.NewRequest(http.MethodGet, "/agenda/patients", nil)
	req.Header.Set("Authorization", bearer(t))
	router.ServeHTTP(httptest.NewRecorder(), req)

	denied := httptest.NewRecorder()
	router.ServeHTTP(denied, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if denied.Code != http.StatusUnauthorized {
		t.Fatalf("expected metrics to require a token, got %d", denied.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/metrics", nil)
	req.Header.Set("X-Metrics-Token", "scrape")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "dental_agenda_api_requests_total") {
		t.Fatalf("expected api request counter in scrape output")
	}
}

func TestRouterLimitsMutationsOnly(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.MutationLimiter = httpmiddleware.NewRateLimiter(0.001, 1)
	})
	auth := bearer(t)

	post := func() int {
		req := httptest.NewRequest(http.MethodPost, "/agenda/appointments", strings.NewReader("not json"))
		req.Header.Set("Authorization", auth)
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, req)
		return rr.Code
	}
	if code := post(); code != http.StatusBadRequest {
		t.Fatalf("expected first write to reach the handler, got %d", code)
	}
	if code := post(); code != http.StatusTooManyRequests {
		t.Fatalf("expected second write to be limited, got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/agenda/patients", nil)
	req.Header.Set("Authorization", auth)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected reads to pass the limiter, got %d", rr.Code)
	}
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.CORSAllowedOrigins = []string{"https://front.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/agenda/appointments", nil)
	req.Header.Set("Origin", "https://front.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, rr.Code)
	}
}

func TestRouterCORSPreflightUsesAgendaMethods(t *testing.T) {
	router := newTestRouter(t, func(cfg *Config) {
		cfg.CORSAllowedOrigins = []string{"https://front.example"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/agenda/appointments", nil)
	req.Header.Set("Origin", "https://front.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected status %d, got %d", http.StatusMethodNotAllowed, rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "DELETE, GET, OPTIONS, PATCH, POST" {
		t.Fatalf("unexpected allow methods %q", got)
	}
}
