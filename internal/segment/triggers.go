package segment

import (
	"sort"
	"strings"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
)

// Attributes whose values are URLs or inline CSS; they produce false hint matches.
var ignoredHintAttributes = map[string]struct{}{
	"style": {},
	"href":  {},
	"src":   {},
}

// startFamily returns the first start family whose URL or text pattern matches.
func (s *Segmenter) startFamily(rec models.InteractionRecord) (string, bool) {
	text := patterns.NormalizeText(rec.Element.Label())
	for _, f := range s.tables.FlowStarts {
		if f.Text.Match(text) || f.URL.Match(rec.URL) {
			return f.Family, true
		}
		if rec.Kind == models.KindNavigation && f.URL.Match(rec.DestinationURL()) {
			return f.Family, true
		}
	}
	return "", false
}

// endFamily matches element text only; a URL alone never completes a sequence.
func (s *Segmenter) endFamily(rec models.InteractionRecord) (string, bool) {
	if rec.Kind == models.KindNavigation {
		return "", false
	}
	text := patterns.NormalizeText(rec.Element.Label())
	if text == "" {
		return "", false
	}
	for _, f := range s.tables.FlowEnds {
		if f.Text.Match(text) {
			return f.Family, true
		}
	}
	return "", false
}

func (s *Segmenter) onProductPage(rec models.InteractionRecord) bool {
	if s.tables.ProductURL.Match(rec.URL) {
		return true
	}
	return rec.Kind == models.KindNavigation && s.tables.ProductURL.Match(rec.DestinationURL())
}

// configUpdate detects a click or input on a tracked configuration field. The field
// comes from attribute hints; the value is the first acceptable of the input value,
// element text, value, data-value, title and aria-label.
func (s *Segmenter) configUpdate(rec models.InteractionRecord) (string, string, bool) {
	if rec.Kind != models.KindClick && rec.Kind != models.KindInput {
		return "", "", false
	}
	hints := hintStrings(rec.Element)
	if len(hints) == 0 {
		return "", "", false
	}
	values := []string{
		rec.InputValue(),
		rec.Element.Text,
		rec.Element.Attr("value"),
		rec.Element.Attr("data-value"),
		rec.Element.Attr("title"),
		rec.Element.Attr("aria-label"),
	}
	for _, field := range s.tables.ConfigFields {
		if !matchesAny(field.Hints, hints) {
			continue
		}
		for _, v := range values {
			v = strings.TrimSpace(v)
			if field.AcceptsValue(v) {
				return field.Field, v, true
			}
		}
	}
	return "", "", false
}

// hintStrings renders attributes as sorted "key=value" strings.
func hintStrings(el models.Element) []string {
	out := make([]string, 0, len(el.Attributes))
	for k, v := range el.Attributes {
		if _, skip := ignoredHintAttributes[k]; skip {
			continue
		}
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func matchesAny(list patterns.RegexList, hints []string) bool {
	for _, h := range hints {
		if list.Match(h) {
			return true
		}
	}
	return false
}
