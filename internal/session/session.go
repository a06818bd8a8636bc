// Package session keys per-user attributes, most importantly the queue of
// deferred tracker calls, by a cookie-carried session id.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"Sitecat/internal/models"
	"Sitecat/internal/store"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

// ErrCorrupt is returned when a stored attribute cannot be decoded
var ErrCorrupt = errors.New("corrupt session attribute")

const (
	// Namespace prefixes every attribute key written by the plugin
	Namespace = "sitecat"

	DefaultCookieName = "sitecat_session"

	callablesAttribute = "callables"
)

type Config struct {
	CookieName string
	MaxAge     time.Duration
	Secure     bool
	// TTL bounds stored attributes; MaxAge is used when zero
	TTL time.Duration
}

// Manager resolves the session of a request
type Manager struct {
	store store.Store
	cfg   Config
}

// NewManager creates a session manager over st
func NewManager(st store.Store, cfg Config) *Manager {
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.TTL == 0 {
		cfg.TTL = cfg.MaxAge
	}
	return &Manager{store: st, cfg: cfg}
}

// Load returns the session of r. A request without a valid session cookie
// gets a new id, and the cookie is set on w.
func (m *Manager) Load(w http.ResponseWriter, r *http.Request) *User {
	if c, err := r.Cookie(m.cfg.CookieName); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			return m.User(r.Context(), c.Value)
		}
	}

	id := uuid.NewString()
	http.SetCookie(w, &http.Cookie{
		Name:     m.cfg.CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(m.cfg.MaxAge.Seconds()),
		Secure:   m.cfg.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return m.User(r.Context(), id)
}

// User returns the session with the given id
func (m *Manager) User(ctx context.Context, id string) *User {
	return &User{ctx: ctx, id: id, store: m.store, ttl: m.cfg.TTL}
}

// User is one session's view of the attribute store. It is bound to the
// context of the request it was loaded for.
type User struct {
	ctx   context.Context
	id    string
	store store.Store
	ttl   time.Duration
}

func (u *User) ID() string {
	return u.id
}

// Attribute decodes the named attribute into v. It reports false when the
// attribute is not set.
func (u *User) Attribute(name string, v any) (bool, error) {
	data, err := u.store.Get(u.ctx, u.key(name))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get attribute %s: %w", name, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrCorrupt, name, err)
	}
	return true, nil
}

// SetAttribute stores v under name for the lifetime of the session
func (u *User) SetAttribute(name string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode attribute %s: %w", name, err)
	}
	if err := u.store.Set(u.ctx, u.key(name), data, u.ttl); err != nil {
		return fmt.Errorf("failed to set attribute %s: %w", name, err)
	}
	return nil
}

// RemoveAttribute deletes the named attribute
func (u *User) RemoveAttribute(name string) error {
	if err := u.store.Delete(u.ctx, u.key(name)); err != nil {
		return fmt.Errorf("failed to remove attribute %s: %w", name, err)
	}
	return nil
}

// Callables returns the queued deferred calls
func (u *User) Callables() ([]models.DeferredCall, error) {
	var calls []models.DeferredCall
	if _, err := u.Attribute(callablesAttribute, &calls); err != nil {
		return nil, err
	}
	return calls, nil
}

// SetCallables replaces the queue; an empty queue removes the attribute
func (u *User) SetCallables(calls []models.DeferredCall) error {
	if len(calls) == 0 {
		return u.RemoveAttribute(callablesAttribute)
	}
	return u.SetAttribute(callablesAttribute, calls)
}

// PopCallables returns the queued calls and clears the queue. A queue that
// cannot be decoded is dropped and ErrCorrupt returned; on store errors the
// queue is left in place.
func (u *User) PopCallables() ([]models.DeferredCall, error) {
	calls, err := u.Callables()
	if errors.Is(err, ErrCorrupt) {
		if rmErr := u.RemoveAttribute(callablesAttribute); rmErr != nil {
			return nil, errors.Join(err, rmErr)
		}
		return nil, err
	}
	if err != nil || len(calls) == 0 {
		return nil, err
	}
	if err := u.SetCallables(nil); err != nil {
		return nil, err
	}
	return calls, nil
}

func (u *User) key(name string) string {
	return Namespace + ":" + u.id + ":" + name
}
