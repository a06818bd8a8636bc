package plugin

import (
	"context"

	"Sitecat/internal/analytics"
	"Sitecat/internal/models"
)

type ctxKey struct{}

// requestState is what the plugin tracks for a single request
type requestState struct {
	tracker    *analytics.Tracker
	renderMode models.RenderMode
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(ctxKey{}).(*requestState)
	return st
}

// Tracker returns the tracker of the request carried by ctx, or nil outside
// a tracked request
func Tracker(ctx context.Context) *analytics.Tracker {
	if st := stateFrom(ctx); st != nil {
		return st.tracker
	}
	return nil
}

// SetTracker replaces the request's tracker. It reports false outside a
// tracked request.
func SetTracker(ctx context.Context, t *analytics.Tracker) bool {
	st := stateFrom(ctx)
	if st == nil || t == nil {
		return false
	}
	st.tracker = t
	return true
}

// SetRenderMode marks how the response is rendered; only client rendered
// responses receive tracking code
func SetRenderMode(ctx context.Context, mode models.RenderMode) bool {
	st := stateFrom(ctx)
	if st == nil {
		return false
	}
	st.renderMode = mode
	return true
}
