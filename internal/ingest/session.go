// Package ingest decodes the session wire format into validated domain sessions.
// It is the only place where payload variants are built from their kind.
package ingest

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// ErrMalformedSession wraps every decoding and validation failure.
var ErrMalformedSession = errors.New("malformed session")

type wireSession struct {
	ID           string            `json:"id"`
	StartedAt    wireTime          `json:"started_at"`
	EndedAt      wireTime          `json:"ended_at"`
	Interactions []wireInteraction `json:"interactions"`
}

type wireInteraction struct {
	Type          string         `json:"type"`
	Timestamp     wireTime       `json:"timestamp"`
	URL           string         `json:"url"`
	PageTitle     string         `json:"page_title"`
	Element       wireElement    `json:"element"`
	Selectors     []wireSelector `json:"selectors"`
	Nearby        []wireNearby   `json:"nearby"`
	Snapshot      *wireSnapshot  `json:"snapshot"`
	ScreenshotRef string         `json:"screenshot_ref"`

	// click
	Button string `json:"button"`
	X      *int   `json:"x"`
	Y      *int   `json:"y"`
	// input
	Value     *string `json:"value"`
	InputType string  `json:"input_type"`
	// navigation
	FromURL string `json:"from_url"`
	ToURL   string `json:"to_url"`
}

type wireElement struct {
	Tag          string            `json:"tag"`
	Text         string            `json:"text"`
	Attributes   map[string]string `json:"attributes"`
	BoundingBox  *wireBox          `json:"bounding_box"`
	Ancestors    []string          `json:"ancestors"`
	SiblingCount int               `json:"sibling_count"`
}

type wireBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

type wireSelector struct {
	Locator     string   `json:"locator"`
	Kind        string   `json:"kind"`
	Reliability *float64 `json:"reliability"`
}

type wireNearby struct {
	Text        string  `json:"text"`
	Tag         string  `json:"tag"`
	Direction   string  `json:"direction"`
	Distance    float64 `json:"distance"`
	Interactive bool    `json:"interactive"`
}

type wireSnapshot struct {
	HTML  string            `json:"html"`
	State map[string]string `json:"state"`
}

// wireTime accepts an RFC3339 string, a numeric string or a JSON number of epoch
// milliseconds.
type wireTime struct {
	raw string
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		t.raw = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &t.raw)
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("timestamp must be a string or number: %w", err)
	}
	if _, err := n.Int64(); err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return fmt.Errorf("timestamp %s: %w", n, ferr)
		}
		n = json.Number(strconv.FormatInt(int64(math.Round(f)), 10))
	}
	t.raw = n.String()
	return nil
}

func (t wireTime) parse() (time.Time, bool, error) {
	if strings.TrimSpace(t.raw) == "" {
		return time.Time{}, false, nil
	}
	ts, err := utils.ParseTimestamp(t.raw)
	return ts, err == nil, err
}

// Decode parses one session document, logging through slog.Default.
func Decode(data []byte) (models.Session, error) {
	return DecodeWith(nil, data)
}

// DecodeWith parses one session document. Fields that belong to another payload
// variant are dropped and reported at debug level.
func DecodeWith(logger *slog.Logger, data []byte) (models.Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var ws wireSession
	if err := json.Unmarshal(data, &ws); err != nil {
		return models.Session{}, fmt.Errorf("%w: %v", ErrMalformedSession, err)
	}
	return ws.toSession(logger)
}

func (ws wireSession) toSession(logger *slog.Logger) (models.Session, error) {
	id := strings.TrimSpace(ws.ID)
	if id == "" {
		return models.Session{}, fmt.Errorf("%w: id is required", ErrMalformedSession)
	}
	fail := func(format string, args ...any) (models.Session, error) {
		return models.Session{}, fmt.Errorf("%w: session %s: %s", ErrMalformedSession, id, fmt.Sprintf(format, args...))
	}

	session := models.Session{ID: id, Interactions: make([]models.InteractionRecord, 0, len(ws.Interactions))}
	for i, wi := range ws.Interactions {
		rec, dropped, err := wi.toRecord(i)
		if err != nil {
			return fail("interaction %d: %v", i, err)
		}
		if len(dropped) > 0 {
			logger.Debug("dropped foreign payload fields",
				slog.String("session_id", id),
				slog.Int("interaction", i),
				slog.String("type", string(rec.Kind)),
				slog.Any("fields", dropped))
		}
		session.Interactions = append(session.Interactions, rec)
	}

	started, ok, err := ws.StartedAt.parse()
	if err != nil {
		return fail("started_at: %v", err)
	}
	if !ok && len(session.Interactions) > 0 {
		started = session.Interactions[0].Timestamp
	}
	ended, ok, err := ws.EndedAt.parse()
	if err != nil {
		return fail("ended_at: %v", err)
	}
	if !ok && len(session.Interactions) > 0 {
		ended = session.Interactions[len(session.Interactions)-1].Timestamp
	}
	if !started.IsZero() && !ended.IsZero() && ended.Before(started) {
		return fail("ended_at precedes started_at")
	}
	session.StartedAt, session.EndedAt = started, ended

	if err := session.Validate(); err != nil {
		return fail("%v", err)
	}
	return session, nil
}

func (wi wireInteraction) toRecord(index int) (models.InteractionRecord, []string, error) {
	kind := models.InteractionKind(strings.ToLower(strings.TrimSpace(wi.Type)))
	if !kind.Valid() {
		return models.InteractionRecord{}, nil, fmt.Errorf("unknown type %q", wi.Type)
	}
	ts, ok, err := wi.Timestamp.parse()
	if err != nil {
		return models.InteractionRecord{}, nil, fmt.Errorf("timestamp: %w", err)
	}
	if !ok {
		return models.InteractionRecord{}, nil, fmt.Errorf("timestamp is required")
	}
	payload, err := wi.payload(kind)
	if err != nil {
		return models.InteractionRecord{}, nil, err
	}

	rec := models.InteractionRecord{
		Index:         index,
		Kind:          kind,
		Timestamp:     ts,
		URL:           strings.TrimSpace(wi.URL),
		PageTitle:     wi.PageTitle,
		Element:       wi.Element.toElement(),
		ScreenshotRef: wi.ScreenshotRef,
		Payload:       payload,
	}
	for _, sel := range wi.Selectors {
		rec.Selectors = append(rec.Selectors, sel.toCandidate())
	}
	for _, n := range wi.Nearby {
		rec.Nearby = append(rec.Nearby, models.NearbyElement(n))
	}
	if wi.Snapshot != nil {
		rec.Snapshot = &models.PageSnapshot{HTML: wi.Snapshot.HTML, State: wi.Snapshot.State}
	}
	return rec, wi.foreignFields(kind), nil
}

// foreignFields names the set fields that belong to another payload variant.
func (wi wireInteraction) foreignFields(kind models.InteractionKind) []string {
	var out []string
	if kind != models.KindClick {
		if wi.Button != "" {
			out = append(out, "button")
		}
		if wi.X != nil {
			out = append(out, "x")
		}
		if wi.Y != nil {
			out = append(out, "y")
		}
	}
	if kind != models.KindInput {
		if wi.Value != nil {
			out = append(out, "value")
		}
		if wi.InputType != "" {
			out = append(out, "input_type")
		}
	}
	if kind != models.KindNavigation {
		if wi.FromURL != "" {
			out = append(out, "from_url")
		}
		if wi.ToURL != "" {
			out = append(out, "to_url")
		}
	}
	return out
}

// payload builds the variant fixed by kind from its own fields only.
func (wi wireInteraction) payload(kind models.InteractionKind) (models.Payload, error) {
	switch kind {
	case models.KindClick:
		p := models.ClickPayload{Button: strings.ToLower(wi.Button)}
		if p.Button == "" {
			p.Button = "left"
		}
		if wi.X != nil {
			p.X = *wi.X
		}
		if wi.Y != nil {
			p.Y = *wi.Y
		}
		return p, nil
	case models.KindInput:
		p := models.InputPayload{InputType: strings.ToLower(wi.InputType)}
		if wi.Value != nil {
			p.Value = *wi.Value
		}
		return p, nil
	case models.KindNavigation:
		p := models.NavigationPayload{FromURL: strings.TrimSpace(wi.FromURL), ToURL: strings.TrimSpace(wi.ToURL)}
		if p.FromURL == "" {
			p.FromURL = strings.TrimSpace(wi.URL)
		}
		if p.ToURL == "" && strings.TrimSpace(wi.URL) == "" {
			return nil, fmt.Errorf("navigation requires to_url or url")
		}
		return p, nil
	default:
		return models.FocusPayload{}, nil
	}
}

func (we wireElement) toElement() models.Element {
	el := models.Element{
		Tag:          strings.ToLower(strings.TrimSpace(we.Tag)),
		Text:         we.Text,
		Ancestors:    we.Ancestors,
		SiblingCount: we.SiblingCount,
	}
	if el.SiblingCount < 0 {
		el.SiblingCount = 0
	}
	if len(we.Attributes) > 0 {
		el.Attributes = make(map[string]string, len(we.Attributes))
		for k, v := range we.Attributes {
			el.Attributes[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
	if we.BoundingBox != nil {
		box := models.BoundingBox(*we.BoundingBox)
		el.Box = &box
	}
	return el
}

var kindAliases = map[string]models.LocatorKind{
	"testid":      models.LocatorTestID,
	"test-id":     models.LocatorTestID,
	"data-testid": models.LocatorTestID,
	"aria-label":  models.LocatorAria,
	"role":        models.LocatorAria,
	"classname":   models.LocatorClass,
	"selector":    models.LocatorCSS,
}

func (ws wireSelector) toCandidate() models.SelectorCandidate {
	kind := strings.ToLower(strings.TrimSpace(ws.Kind))
	if alias, ok := kindAliases[kind]; ok {
		kind = string(alias)
	}
	c := models.SelectorCandidate{Locator: ws.Locator, Kind: models.LocatorKind(kind)}
	if ws.Reliability != nil {
		c.Reliability = *ws.Reliability
	}
	return c
}
