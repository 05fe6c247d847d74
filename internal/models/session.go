package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Session is a fully materialised recorded shopping session.
type Session struct {
	ID           string
	StartedAt    time.Time
	EndedAt      time.Time
	Interactions []InteractionRecord
}

// InteractionKind enumerates the closed set of observed user actions.
type InteractionKind string

const (
	KindClick      InteractionKind = "click"
	KindInput      InteractionKind = "input"
	KindNavigation InteractionKind = "navigation"
	KindFocus      InteractionKind = "focus"
)

// Valid reports whether k is one of the supported interaction kinds.
func (k InteractionKind) Valid() bool {
	switch k {
	case KindClick, KindInput, KindNavigation, KindFocus:
		return true
	default:
		return false
	}
}

// InteractionRecord is one observed user action. The core only reads it.
type InteractionRecord struct {
	Index         int
	Kind          InteractionKind
	Timestamp     time.Time
	URL           string
	PageTitle     string
	Element       Element
	Selectors     []SelectorCandidate
	Nearby        []NearbyElement
	Snapshot      *PageSnapshot
	ScreenshotRef string
	Payload       Payload
}

// Payload is the kind-specific part of an interaction. The variant set is closed.
type Payload interface {
	Kind() InteractionKind
	isPayload()
}

// ClickPayload carries pointer details for click interactions.
type ClickPayload struct {
	Button string
	X      int
	Y      int
}

// InputPayload carries the (possibly redacted) value typed or chosen by the user.
type InputPayload struct {
	Value     string
	InputType string
}

// NavigationPayload records a page transition.
type NavigationPayload struct {
	FromURL string
	ToURL   string
}

// FocusPayload marks a focus change; it has no extra data.
type FocusPayload struct{}

func (ClickPayload) Kind() InteractionKind      { return KindClick }
func (InputPayload) Kind() InteractionKind      { return KindInput }
func (NavigationPayload) Kind() InteractionKind { return KindNavigation }
func (FocusPayload) Kind() InteractionKind      { return KindFocus }

func (ClickPayload) isPayload()      {}
func (InputPayload) isPayload()      {}
func (NavigationPayload) isPayload() {}
func (FocusPayload) isPayload()      {}

// Element describes the DOM node the user acted on.
type Element struct {
	Tag          string
	Text         string
	Attributes   map[string]string
	Box          *BoundingBox
	Ancestors    []string
	SiblingCount int
}

// BoundingBox is the element's viewport rectangle in CSS pixels.
type BoundingBox struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

// NearbyElement is a neighbour of the target element used for spatial context.
type NearbyElement struct {
	Text        string
	Tag         string
	Direction   string
	Distance    float64
	Interactive bool
}

// PageSnapshot is an optional capture of page state around the interaction.
type PageSnapshot struct {
	HTML  string
	State map[string]string
}

// InputValue returns the payload value for input interactions, or "".
func (r InteractionRecord) InputValue() string {
	if p, ok := r.Payload.(InputPayload); ok {
		return p.Value
	}
	return ""
}

// DestinationURL returns the navigation target, falling back to the page URL.
func (r InteractionRecord) DestinationURL() string {
	if p, ok := r.Payload.(NavigationPayload); ok && p.ToURL != "" {
		return p.ToURL
	}
	return r.URL
}

// Attr returns an element attribute. Attribute names are stored lower-cased.
func (e Element) Attr(name string) string {
	if len(e.Attributes) == 0 {
		return ""
	}
	return e.Attributes[strings.ToLower(name)]
}

// Label returns the most human-readable caption for the element.
func (e Element) Label() string {
	for _, candidate := range []string{e.Text, e.Attr("aria-label"), e.Attr("title"), e.Attr("placeholder"), e.Attr("alt"), e.Attr("name")} {
		if trimmed := strings.TrimSpace(candidate); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

// Domain extracts the lower-cased host (without port and leading www.) from a URL.
func Domain(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Host == "" {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	return strings.TrimPrefix(host, "www.")
}

// Validate checks the ordering and payload invariants the pipeline depends on.
func (s Session) Validate() error {
	for i, rec := range s.Interactions {
		if !rec.Kind.Valid() {
			return fmt.Errorf("interaction %d: unknown kind %q", i, rec.Kind)
		}
		if rec.Payload != nil && rec.Payload.Kind() != rec.Kind {
			return fmt.Errorf("interaction %d: payload %s does not match kind %s", i, rec.Payload.Kind(), rec.Kind)
		}
		if rec.Index != i {
			return fmt.Errorf("interaction %d: index %d out of position", i, rec.Index)
		}
		if i > 0 && rec.Timestamp.Before(s.Interactions[i-1].Timestamp) {
			return fmt.Errorf("interaction %d: timestamp %s precedes previous interaction", i, rec.Timestamp.Format(time.RFC3339Nano))
		}
	}
	return nil
}
