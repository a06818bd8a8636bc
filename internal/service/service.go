package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"Sitecat/internal/models"
)

// Reasons a response is left untouched
const (
	ReasonAjax        = "ajax"
	ReasonContentType = "content_type"
	ReasonNotModified = "not_modified"
	ReasonRedirect    = "redirect"
	ReasonRenderMode  = "render_mode"
	ReasonHeaderOnly  = "header_only"
	ReasonDisabled    = "disabled"
)

// Tracker is what the service needs from a tracker
type Tracker interface {
	IsEnabled() bool
	Insert(content string) string
}

// EventSink receives the service's log notifications
type EventSink interface {
	Notify(subject, message string, level slog.Level)
}

// SlogSink forwards notifications to a slog.Logger
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Notify(subject, message string, level slog.Level) {
	if s.Logger == nil {
		return
	}
	s.Logger.Log(context.Background(), level, message, "subject", subject)
}

// Service decides whether a response gets tracking code and applies it
type Service struct {
	sink    EventSink
	logging bool
}

// New creates a service; logging only takes effect with a non-nil sink
func New(sink EventSink, logging bool) *Service {
	return &Service{sink: sink, logging: logging}
}

// EnableLogging toggles notifications to the sink
func (s *Service) EnableLogging(enabled bool) {
	s.logging = enabled
}

// Log sends a message to the sink when logging is enabled
func (s *Service) Log(subject, message string) {
	s.notify(subject, message, slog.LevelInfo)
}

func (s *Service) notify(subject, message string, level slog.Level) {
	if !s.logging || s.sink == nil {
		return
	}
	s.sink.Notify(subject, message, level)
}

// IsResponseTrackable reports whether info describes a response that may
// receive tracking code
func (s *Service) IsResponseTrackable(info models.ResponseInfo) bool {
	return IsTrackable(info)
}

// ApplyTrackerToResponse returns content with the tracking code added, or
// content unchanged when the response is not trackable or the tracker is off
func (s *Service) ApplyTrackerToResponse(info models.ResponseInfo, content string, tracker Tracker) string {
	reason := UntrackableReason(info)
	if reason == "" && !tracker.IsEnabled() {
		reason = ReasonDisabled
	}
	if reason != "" {
		s.notify("tracker", "tracking code not inserted: "+reason, slog.LevelDebug)
		return content
	}

	s.notify("tracker", "inserting tracking code", slog.LevelInfo)
	return tracker.Insert(content)
}

// IsTrackable is false for AJAX requests, non-HTML content, 304, 301 and 302
// responses, responses not rendered to the client and header-only responses
func IsTrackable(info models.ResponseInfo) bool {
	return UntrackableReason(info) == ""
}

// UntrackableReason names the first rule info fails, or "" when trackable
func UntrackableReason(info models.ResponseInfo) string {
	switch {
	case info.IsAjax:
		return ReasonAjax
	case !strings.Contains(info.ContentType, "html"):
		return ReasonContentType
	case info.StatusCode == http.StatusNotModified:
		return ReasonNotModified
	case info.StatusCode == http.StatusMovedPermanently, info.StatusCode == http.StatusFound:
		return ReasonRedirect
	case info.RenderMode != models.RenderClient:
		return ReasonRenderMode
	case info.HeaderOnly:
		return ReasonHeaderOnly
	default:
		return ""
	}
}
