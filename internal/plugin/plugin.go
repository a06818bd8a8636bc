// Package plugin wires the tracker into net/http. Its handler replays the
// user's deferred calls onto a fresh tracker, runs the application and adds
// the tracking code to the buffered response when it qualifies.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"Sitecat/internal/analytics"
	"Sitecat/internal/metrics"
	"Sitecat/internal/middleware"
	"Sitecat/internal/models"
	"Sitecat/internal/service"
	"Sitecat/internal/session"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
)

// ErrorPageType is set as the page type of 404 responses when Handle404 is on
const ErrorPageType = "errorPage"

type Config struct {
	Tracker   analytics.Config
	Handle404 bool
}

type Plugin struct {
	cfg      Config
	sessions *session.Manager
	service  *service.Service
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New creates the plugin. The tracker configuration is checked up front so
// that misconfiguration fails at start-up rather than on every request.
func New(cfg Config, sessions *session.Manager, svc *service.Service, met *metrics.Metrics, logger *slog.Logger) (*Plugin, error) {
	if _, err := analytics.New(cfg.Tracker); err != nil {
		return nil, fmt.Errorf("invalid tracker config: %w", err)
	}
	if svc == nil {
		svc = service.New(nil, false)
	}
	if met == nil {
		met = metrics.NewMetrics(prometheus.NewRegistry())
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Plugin{
		cfg:      cfg,
		sessions: sessions,
		service:  svc,
		metrics:  met,
		logger:   logger.With("component", "plugin"),
	}, nil
}

// NewTracker creates a tracker bound to user and replays the calls the user
// deferred on an earlier request. The queue is cleared before replay, so
// calls that fail to replay are not retried. A queue that cannot be decoded
// is dropped; one the store fails to return is left for the next request.
// The returned tracker is usable whenever it is non-nil.
func (p *Plugin) NewTracker(user *session.User) (*analytics.Tracker, error) {
	tracker, err := analytics.New(p.cfg.Tracker)
	if err != nil {
		p.metrics.TrackerErrors.WithLabelValues("setup").Inc()
		return nil, err
	}
	tracker.SetSession(user)

	calls, err := user.PopCallables()
	switch {
	case errors.Is(err, session.ErrCorrupt):
		p.metrics.TrackerErrors.WithLabelValues("decode").Inc()
		return tracker, fmt.Errorf("dropped deferred calls: %w", err)
	case err != nil:
		p.metrics.TrackerErrors.WithLabelValues("load").Inc()
		return tracker, fmt.Errorf("failed to load deferred calls: %w", err)
	}
	p.metrics.DeferredQueueLength.Observe(float64(len(calls)))
	if len(calls) == 0 {
		return tracker, nil
	}

	p.metrics.DeferredReplayed.Add(float64(len(calls)))
	if err := tracker.Replay(calls); err != nil {
		p.metrics.TrackerErrors.WithLabelValues("replay").Inc()
		return tracker, err
	}
	return tracker, nil
}

// Handler wraps next with the tracking filter
func (p *Plugin) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user := p.sessions.Load(w, r)

		tracker, err := p.NewTracker(user)
		if err != nil {
			p.logger.Warn("tracker setup failed",
				"session", user.ID(),
				"path", r.URL.Path,
				"error", err,
			)
		}
		if tracker == nil {
			p.metrics.ResponsesTotal.WithLabelValues("error").Inc()
			next.ServeHTTP(w, r)
			return
		}

		state := &requestState{tracker: tracker, renderMode: models.RenderClient}
		r = r.WithContext(context.WithValue(r.Context(), ctxKey{}, state))

		cw := middleware.NewCaptureWriter(w)
		next.ServeHTTP(cw, r)

		if err := p.filter(cw, r, state); err != nil {
			p.logger.Debug("failed to write response", "path", r.URL.Path, "error", err)
		}
	})
}

func (p *Plugin) filter(cw *middleware.CaptureWriter, r *http.Request, state *requestState) error {
	body := cw.Body()

	if cw.Header().Get("Content-Encoding") != "" {
		p.skipped("encoded")
		return cw.Commit(body, false)
	}

	info := models.ResponseInfo{
		IsAjax:      r.Header.Get("X-Requested-With") == "XMLHttpRequest",
		ContentType: cw.ContentType(),
		StatusCode:  cw.Status(),
		HeaderOnly:  r.Method == http.MethodHead,
		RenderMode:  state.renderMode,
	}

	tracker := state.tracker
	if p.cfg.Handle404 && info.StatusCode == http.StatusNotFound {
		if err := tracker.SetPageType(ErrorPageType); err != nil {
			p.metrics.TrackerErrors.WithLabelValues("handle_404").Inc()
		}
	}

	content := string(body)
	out := p.service.ApplyTrackerToResponse(info, content, tracker)
	if len(out) == len(content) {
		reason := service.UntrackableReason(info)
		if reason == "" {
			reason = service.ReasonDisabled
		}
		p.skipped(reason)
		return cw.Commit(body, false)
	}

	added := len(out) - len(content)
	p.metrics.ResponsesTotal.WithLabelValues("tracked").Inc()
	p.metrics.InjectedBytes.Observe(float64(added))
	p.logger.Debug("tracking code inserted",
		"path", r.URL.Path,
		"added", humanize.Bytes(uint64(added)),
		"body", humanize.Bytes(uint64(len(out))),
	)
	return cw.Commit([]byte(out), true)
}

func (p *Plugin) skipped(reason string) {
	p.metrics.ResponsesTotal.WithLabelValues("skipped").Inc()
	p.metrics.SkippedTotal.WithLabelValues(reason).Inc()
}
