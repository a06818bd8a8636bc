package models

import (
	"errors"
	"fmt"
)

// ErrUnknownPosition is returned for insertion values other than top or bottom
var ErrUnknownPosition = errors.New("unknown insertion position")

// Position is where the tracking code is spliced into a page
type Position string

const (
	PositionTop    Position = "top"
	PositionBottom Position = "bottom"
)

// ParsePosition maps a configured insertion value to a Position.
// An empty value selects the bottom of the page.
func ParsePosition(s string) (Position, error) {
	switch Position(s) {
	case "", PositionBottom:
		return PositionBottom, nil
	case PositionTop:
		return PositionTop, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownPosition, s)
	}
}

// RenderMode mirrors how the host is rendering the current response
type RenderMode string

const (
	RenderClient RenderMode = "client"
	RenderNone   RenderMode = "none"
	RenderVar    RenderMode = "var"
)

// Field tags a tracker setter so it can be planted and replayed later
type Field string

const (
	FieldPageName      Field = "page_name"
	FieldPageType      Field = "page_type"
	FieldReferrer      Field = "referrer"
	FieldTransactionID Field = "transaction_id"
	FieldZip           Field = "zip"
	FieldState         Field = "state"
	FieldInsertion     Field = "insertion"
	FieldEvent         Field = "event"
	FieldProp          Field = "prop"
	FieldEVar          Field = "evar"
)

// Numbered reports whether the field addresses a numbered slot (events, props, eVars)
func (f Field) Numbered() bool {
	return f == FieldEvent || f == FieldProp || f == FieldEVar
}

// DeferredCall is a setter invocation queued for the next request's tracker
type DeferredCall struct {
	Field Field  `json:"field" msgpack:"field"`
	Num   int    `json:"num,omitempty" msgpack:"num,omitempty"`
	Value string `json:"value,omitempty" msgpack:"value,omitempty"`
}

func (c DeferredCall) String() string {
	if c.Field.Numbered() {
		return fmt.Sprintf("%s%d=%q", c.Field, c.Num, c.Value)
	}
	return fmt.Sprintf("%s=%q", c.Field, c.Value)
}

// ResponseInfo is the response metadata the trackability filter looks at
type ResponseInfo struct {
	IsAjax      bool       `json:"is_ajax"`
	ContentType string     `json:"content_type"`
	StatusCode  int        `json:"status_code"`
	HeaderOnly  bool       `json:"header_only"`
	RenderMode  RenderMode `json:"render_mode"`
}
