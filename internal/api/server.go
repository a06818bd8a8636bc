package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"Sitecat/internal/config"
	"Sitecat/internal/middleware"
	"Sitecat/internal/plugin"
	"Sitecat/internal/store"
	"Sitecat/pkg/site"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Server struct {
	config     *config.Config
	plugin     *plugin.Plugin
	store      store.Store
	site       *site.Site
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	httpServer *http.Server
}

// New creates a new HTTP server
func New(
	cfg *config.Config,
	p *plugin.Plugin,
	st store.Store,
	s *site.Site,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	return &Server{
		config:   cfg,
		plugin:   p,
		store:    st,
		site:     s,
		gatherer: gatherer,
		logger:   logger.With("component", "http-server"),
	}
}

// Handler returns the routed handler: operational endpoints untracked, the
// site and its 404 page behind the tracking plugin
func (s *Server) Handler() http.Handler {
	router := httprouter.New()

	router.GET(s.config.Observability.HealthCheckPath, s.handleHealth)
	router.GET(s.config.Observability.ReadinessPath, s.handleReadiness)

	if s.config.Observability.EnableMetrics && s.gatherer != nil {
		router.Handler(http.MethodGet, s.config.Observability.MetricsPath,
			promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.site.InstallHandlers(router, s.base)
	router.NotFound = s.plugin.Handler(http.HandlerFunc(s.site.NotFound))

	return middleware.WithLogger(s.logger)(router)
}

// base is the root of the middleware chain of every site page
func (s *Server) base(h httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.plugin.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h(w, r, p)
		})).ServeHTTP(w, r)
	}
}

// Start runs the HTTP server until ctx is cancelled
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Address, s.config.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
	}

	s.logger.Info("starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	timeout := s.config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.Error("readiness check failed", "error", err)
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"error":  err.Error(),
		})
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
		"store":  s.config.Store.Type,
		"time":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode JSON", "error", err)
	}
}
