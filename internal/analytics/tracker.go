package analytics

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"Sitecat/internal/models"
)

var (
	ErrMissingAccount  = errors.New("tracker account is required")
	ErrMissingNum      = errors.New("a positive slot number is required")
	ErrNoSession       = errors.New("cannot defer without session")
	ErrUnknownField    = errors.New("unknown tracker field")
	ErrUnknownPosition = models.ErrUnknownPosition
)

// DefaultSCodePath is where the SiteCatalyst library is served from
const DefaultSCodePath = "/js/s_code.js"

// Config holds the values a tracker is created with
type Config struct {
	Account           string
	Enabled           bool
	Insertion         string
	IncludeJavascript bool
	SCodePath         string
	AssetBasePath     string
	Scripts           []string
	PageName          string
	EscapeValues      bool
}

// Session is the per-user storage deferred calls are planted in
type Session interface {
	Callables() ([]models.DeferredCall, error)
	SetCallables(calls []models.DeferredCall) error
}

// Tracker holds the analytics variables of a single request and renders
// them as a SiteCatalyst tracking block.
type Tracker struct {
	enabled           bool
	account           string
	insertion         models.Position
	includeJavascript bool
	sCodePath         string
	assetBasePath     string
	scripts           []string
	escapeValues      bool

	fields map[models.Field]string
	events map[int]bool
	props  map[int]string
	eVars  map[int]string

	session Session
}

// New creates a tracker from configuration
func New(cfg Config) (*Tracker, error) {
	if cfg.Account == "" {
		return nil, ErrMissingAccount
	}

	t := &Tracker{
		enabled:           cfg.Enabled,
		account:           cfg.Account,
		includeJavascript: cfg.IncludeJavascript,
		sCodePath:         cfg.SCodePath,
		assetBasePath:     cfg.AssetBasePath,
		scripts:           append([]string(nil), cfg.Scripts...),
		escapeValues:      cfg.EscapeValues,
		fields:            make(map[models.Field]string),
		events:            make(map[int]bool),
		props:             make(map[int]string),
		eVars:             make(map[int]string),
	}
	if t.sCodePath == "" {
		t.sCodePath = DefaultSCodePath
	}

	pos, err := models.ParsePosition(cfg.Insertion)
	if err != nil {
		return nil, err
	}
	t.insertion = pos
	if cfg.PageName != "" {
		t.fields[models.FieldPageName] = cfg.PageName
	}

	return t, nil
}

// Option modifies how a setter is applied
type Option func(*options)

type options struct {
	deferred bool
}

// Defer plants the value for the tracker of the next request instead of
// setting it on this one.
func Defer() Option {
	return func(o *options) {
		o.deferred = true
	}
}

// SetSession binds the per-user storage used by Defer
func (t *Tracker) SetSession(s Session) {
	t.session = s
}

// Session returns the bound per-user storage, if any
func (t *Tracker) Session() Session {
	return t.session
}

func (t *Tracker) SetEnabled(enabled bool) {
	t.enabled = enabled
}

func (t *Tracker) IsEnabled() bool {
	return t.enabled
}

func (t *Tracker) SetAccount(account string) {
	t.account = account
}

func (t *Tracker) Account() string {
	return t.account
}

func (t *Tracker) SetIncludeJavascript(include bool) {
	t.includeJavascript = include
}

func (t *Tracker) IncludeJavascript() bool {
	return t.includeJavascript
}

// SetInsertion sets where the tracking code is inserted into the response
func (t *Tracker) SetInsertion(p models.Position, opts ...Option) error {
	if _, ok := splicers[p]; !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPosition, p)
	}
	apply, err := t.prepare(models.DeferredCall{Field: models.FieldInsertion, Value: string(p)}, opts)
	if err != nil || !apply {
		return err
	}
	t.insertion = p
	return nil
}

func (t *Tracker) Insertion() models.Position {
	return t.insertion
}

// SetPageName defines a page name other than what's in the address bar
func (t *Tracker) SetPageName(name string, opts ...Option) error {
	return t.setField(models.FieldPageName, name, opts)
}

func (t *Tracker) PageName() string {
	return t.fields[models.FieldPageName]
}

func (t *Tracker) SetPageType(pageType string, opts ...Option) error {
	return t.setField(models.FieldPageType, pageType, opts)
}

func (t *Tracker) PageType() string {
	return t.fields[models.FieldPageType]
}

// SetReferrer is only needed when the referrer must be reported manually
func (t *Tracker) SetReferrer(referrer string, opts ...Option) error {
	return t.setField(models.FieldReferrer, referrer, opts)
}

func (t *Tracker) Referrer() string {
	return t.fields[models.FieldReferrer]
}

func (t *Tracker) SetTransactionID(id string, opts ...Option) error {
	return t.setField(models.FieldTransactionID, id, opts)
}

func (t *Tracker) TransactionID() string {
	return t.fields[models.FieldTransactionID]
}

func (t *Tracker) SetZip(zip string, opts ...Option) error {
	return t.setField(models.FieldZip, zip, opts)
}

func (t *Tracker) Zip() string {
	return t.fields[models.FieldZip]
}

func (t *Tracker) SetState(state string, opts ...Option) error {
	return t.setField(models.FieldState, state, opts)
}

func (t *Tracker) State() string {
	return t.fields[models.FieldState]
}

// Value returns a text field and whether it has been set
func (t *Tracker) Value(f models.Field) (string, bool) {
	v, ok := t.fields[f]
	return v, ok
}

// ActivateEvent turns on event n, rendered as s.events="event<n>"
func (t *Tracker) ActivateEvent(n int, opts ...Option) error {
	if n <= 0 {
		return fmt.Errorf("event: %w", ErrMissingNum)
	}
	apply, err := t.prepare(models.DeferredCall{Field: models.FieldEvent, Num: n}, opts)
	if err != nil || !apply {
		return err
	}
	t.events[n] = true
	return nil
}

// DeactivateEvent removes event n from s.events
func (t *Tracker) DeactivateEvent(n int) error {
	if n <= 0 {
		return fmt.Errorf("event: %w", ErrMissingNum)
	}
	t.events[n] = false
	return nil
}

// Events returns the active event numbers in ascending order
func (t *Tracker) Events() []int {
	active := make([]int, 0, len(t.events))
	for _, n := range sortedKeys(t.events) {
		if t.events[n] {
			active = append(active, n)
		}
	}
	return active
}

// SetProp sets s.prop<n>
func (t *Tracker) SetProp(n int, value string, opts ...Option) error {
	return t.setNumbered(models.FieldProp, t.props, n, value, opts)
}

func (t *Tracker) Prop(n int) (string, bool) {
	v, ok := t.props[n]
	return v, ok
}

// SetEVar sets s.eVar<n>
func (t *Tracker) SetEVar(n int, value string, opts ...Option) error {
	return t.setNumbered(models.FieldEVar, t.eVars, n, value, opts)
}

func (t *Tracker) EVar(n int) (string, bool) {
	v, ok := t.eVars[n]
	return v, ok
}

// Apply performs a deferred call against this tracker
func (t *Tracker) Apply(call models.DeferredCall) error {
	switch call.Field {
	case models.FieldPageName, models.FieldPageType, models.FieldReferrer,
		models.FieldTransactionID, models.FieldZip, models.FieldState:
		return t.setField(call.Field, call.Value, nil)
	case models.FieldInsertion:
		return t.SetInsertion(models.Position(call.Value))
	case models.FieldEvent:
		return t.ActivateEvent(call.Num)
	case models.FieldProp:
		return t.SetProp(call.Num, call.Value)
	case models.FieldEVar:
		return t.SetEVar(call.Num, call.Value)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownField, call.Field)
	}
}

// Replay applies deferred calls in the order they were planted. A call that
// fails is skipped; the failures are returned together.
func (t *Tracker) Replay(calls []models.DeferredCall) error {
	var errs []error
	for i, call := range calls {
		if err := t.Apply(call); err != nil {
			errs = append(errs, fmt.Errorf("replaying call %d (%s): %w", i, call, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Tracker) setField(f models.Field, value string, opts []Option) error {
	apply, err := t.prepare(models.DeferredCall{Field: f, Value: value}, opts)
	if err != nil || !apply {
		return err
	}
	t.fields[f] = value
	return nil
}

func (t *Tracker) setNumbered(f models.Field, slots map[int]string, n int, value string, opts []Option) error {
	if n <= 0 {
		return fmt.Errorf("%s: %w", f, ErrMissingNum)
	}
	apply, err := t.prepare(models.DeferredCall{Field: f, Num: n, Value: value}, opts)
	if err != nil || !apply {
		return err
	}
	slots[n] = value
	return nil
}

// prepare reports whether the call should be applied now. Deferred calls are
// planted in the session instead.
func (t *Tracker) prepare(call models.DeferredCall, opts []Option) (bool, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if !o.deferred {
		return true, nil
	}
	return false, t.plant(call)
}

// plant appends a call to the session's queue for the next request
func (t *Tracker) plant(call models.DeferredCall) error {
	if t.session == nil {
		return fmt.Errorf("%s: %w", call.Field, ErrNoSession)
	}

	calls, err := t.session.Callables()
	if err != nil {
		return fmt.Errorf("failed to read deferred calls: %w", err)
	}
	calls = append(calls, call)

	if err := t.session.SetCallables(calls); err != nil {
		return fmt.Errorf("failed to plant %s: %w", call, err)
	}
	return nil
}

func sortedKeys[V any](m map[int]V) []int {
	return slices.Sorted(maps.Keys(m))
}
