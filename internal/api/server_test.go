package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Sitecat/internal/config"
	"Sitecat/internal/metrics"
	"Sitecat/internal/plugin"
	"Sitecat/internal/service"
	"Sitecat/internal/session"
	"Sitecat/internal/store"
	"Sitecat/pkg/site"

	"github.com/prometheus/client_golang/prometheus"
)

type downStore struct {
	store.Store
}

func (downStore) Ping(ctx context.Context) error {
	return errors.New("connection refused")
}

func newTestServer(t *testing.T, st store.Store) *Server {
	t.Helper()
	cfg := &config.Config{
		Tracker: config.TrackerConfig{Account: "acct1", Enabled: true},
		Plugin:  config.PluginConfig{Handle404: true},
		Store:   config.StoreConfig{Type: "memory"},
		Observability: config.ObservabilityConfig{
			EnableMetrics:   true,
			MetricsPath:     "/metrics",
			HealthCheckPath: "/health",
			ReadinessPath:   "/ready",
		},
	}

	registry := prometheus.NewRegistry()
	met := metrics.NewMetrics(registry)
	logger := slog.New(slog.NewTextHandler(&strings.Builder{}, nil))

	p, err := plugin.New(
		plugin.Config{Tracker: cfg.TrackerConfig(), Handle404: cfg.Plugin.Handle404},
		session.NewManager(st, cfg.SessionConfig()),
		service.New(service.SlogSink{Logger: logger}, false),
		met,
		logger,
	)
	if err != nil {
		t.Fatalf("plugin.New() failed: %v", err)
	}

	return New(cfg, p, st, site.New(logger), registry, logger)
}

func serve(s *Server, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	rec := serve(s, "GET", "/health")

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}

	var response map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if response["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got '%s'", response["status"])
	}
	if contentType := rec.Header().Get("Content-Type"); contentType != "application/json" {
		t.Errorf("Expected Content-Type 'application/json', got '%s'", contentType)
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("operational endpoints must not open sessions")
	}
}

func TestHandleReadiness(t *testing.T) {
	tests := []struct {
		name   string
		store  store.Store
		status int
	}{
		{"ready", store.NewMemory(), http.StatusOK},
		{"store down", downStore{Store: store.NewMemory()}, http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(newTestServer(t, tt.store), "GET", "/ready")
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
		})
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, store.NewMemory())
	serve(s, "GET", "/")

	rec := serve(s, "GET", "/metrics")
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `sitecat_responses_total{result="tracked"} 1`) {
		t.Errorf("expected tracked response counter in metrics output")
	}
}

func TestSiteIsTracked(t *testing.T) {
	s := newTestServer(t, store.NewMemory())

	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/", http.StatusOK, `s.pageName="home";`},
		{"/missing", http.StatusNotFound, `s.pageType="errorPage";`},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := serve(s, "GET", tt.path)
			if rec.Code != tt.status {
				t.Errorf("Expected status %d, got %d", tt.status, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.want) {
				t.Errorf("expected %q in body", tt.want)
			}
		})
	}
}
