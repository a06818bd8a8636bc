package session

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"Sitecat/internal/analytics"
	"Sitecat/internal/models"
	"Sitecat/internal/store"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
)

// User must satisfy the tracker's session contract
var _ analytics.Session = (*User)(nil)

func TestLoadMintsSession(t *testing.T) {
	m := NewManager(store.NewMemory(), Config{MaxAge: time.Hour, Secure: true})

	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()
	user := m.Load(rec, req)

	if _, err := uuid.Parse(user.ID()); err != nil {
		t.Fatalf("expected a uuid session id, got %q", user.ID())
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected 1 cookie, got %d", len(cookies))
	}
	c := cookies[0]
	if c.Name != DefaultCookieName || c.Value != user.ID() {
		t.Errorf("unexpected cookie %s=%s", c.Name, c.Value)
	}
	if !c.HttpOnly || !c.Secure {
		t.Error("expected HttpOnly and Secure cookie")
	}
	if c.MaxAge != 3600 {
		t.Errorf("expected MaxAge=3600, got %d", c.MaxAge)
	}
}

func TestLoadReusesSession(t *testing.T) {
	m := NewManager(store.NewMemory(), Config{CookieName: "sid"})
	id := uuid.NewString()

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: id})
	rec := httptest.NewRecorder()

	user := m.Load(rec, req)
	if user.ID() != id {
		t.Errorf("expected session %s, got %s", id, user.ID())
	}
	if len(rec.Result().Cookies()) != 0 {
		t.Error("an existing session must not be re-issued")
	}
}

func TestLoadRejectsForgedID(t *testing.T) {
	m := NewManager(store.NewMemory(), Config{})

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: DefaultCookieName, Value: "../../etc"})
	rec := httptest.NewRecorder()

	user := m.Load(rec, req)
	if user.ID() == "../../etc" {
		t.Error("a malformed session id must be replaced")
	}
}

func TestCallablesRoundTrip(t *testing.T) {
	st := store.NewMemory()
	m := NewManager(st, Config{})
	user := m.User(context.Background(), uuid.NewString())

	calls, err := user.Callables()
	if err != nil {
		t.Fatalf("Callables() failed: %v", err)
	}
	if len(calls) != 0 {
		t.Fatalf("expected empty queue, got %v", calls)
	}

	want := []models.DeferredCall{
		{Field: models.FieldPageName, Value: "x"},
		{Field: models.FieldProp, Num: 3, Value: "y"},
	}
	if err := user.SetCallables(want); err != nil {
		t.Fatalf("SetCallables() failed: %v", err)
	}

	got, err := user.PopCallables()
	if err != nil {
		t.Fatalf("PopCallables() failed: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("callables mismatch (-want +got):\n%s", diff)
	}

	if st.Len() != 0 {
		t.Errorf("expected queue to be cleared, %d entries left", st.Len())
	}
	again, err := user.PopCallables()
	if err != nil {
		t.Fatalf("PopCallables() failed: %v", err)
	}
	if len(again) != 0 {
		t.Errorf("expected empty queue after pop, got %v", again)
	}
}

func TestPopCallablesDropsCorruptQueue(t *testing.T) {
	st := store.NewMemory()
	user := NewManager(st, Config{}).User(context.Background(), uuid.NewString())
	if err := st.Set(context.Background(), user.key(callablesAttribute), []byte{0xc1}, 0); err != nil {
		t.Fatalf("Set() failed: %v", err)
	}

	if _, err := user.Callables(); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt from Callables, got %v", err)
	}
	if st.Len() != 1 {
		t.Fatal("Callables must not remove the attribute")
	}

	calls, err := user.PopCallables()
	if !errors.Is(err, ErrCorrupt) {
		t.Errorf("expected ErrCorrupt from PopCallables, got %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("expected no calls, got %v", calls)
	}
	if st.Len() != 0 {
		t.Errorf("expected corrupt queue to be removed, %d entries left", st.Len())
	}

	if err := user.SetCallables([]models.DeferredCall{{Field: models.FieldZip, Value: "1"}}); err != nil {
		t.Fatalf("SetCallables() after drop failed: %v", err)
	}
}

func TestSessionsAreIsolated(t *testing.T) {
	m := NewManager(store.NewMemory(), Config{})
	ctx := context.Background()
	alice := m.User(ctx, uuid.NewString())
	bob := m.User(ctx, uuid.NewString())

	if err := alice.SetCallables([]models.DeferredCall{{Field: models.FieldZip, Value: "1"}}); err != nil {
		t.Fatalf("SetCallables() failed: %v", err)
	}

	calls, err := bob.Callables()
	if err != nil {
		t.Fatalf("Callables() failed: %v", err)
	}
	if len(calls) != 0 {
		t.Errorf("expected bob's queue to be empty, got %v", calls)
	}
}

func TestTrackerPlantsIntoSession(t *testing.T) {
	m := NewManager(store.NewMemory(), Config{})
	user := m.User(context.Background(), uuid.NewString())

	tracker, err := analytics.New(analytics.Config{Account: "acct1"})
	if err != nil {
		t.Fatalf("analytics.New() failed: %v", err)
	}
	tracker.SetSession(user)

	if err := tracker.SetTransactionID("tx-1", analytics.Defer()); err != nil {
		t.Fatalf("deferred setter failed: %v", err)
	}
	if err := tracker.ActivateEvent(2, analytics.Defer()); err != nil {
		t.Fatalf("deferred setter failed: %v", err)
	}

	calls, err := user.Callables()
	if err != nil {
		t.Fatalf("Callables() failed: %v", err)
	}
	want := []models.DeferredCall{
		{Field: models.FieldTransactionID, Value: "tx-1"},
		{Field: models.FieldEvent, Num: 2},
	}
	if diff := cmp.Diff(want, calls); diff != "" {
		t.Errorf("callables mismatch (-want +got):\n%s", diff)
	}
}
