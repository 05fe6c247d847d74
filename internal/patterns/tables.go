package patterns

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// Tables is the compiled, read-only form of a Pack.
type Tables struct {
	Version       string
	PageTypes     []PageTypeMatcher
	Capabilities  []CapabilityMatcher
	Intents       []IntentMatcher
	IntentWeights IntentWeights
	Urgency       *KeywordSet
	FastPace      float64
	Price         *KeywordSet
	Cart          *KeywordSet
	PriceSignals  *KeywordSet
	Variant       *KeywordSet
	FlowStarts    []FlowFamily
	ProductURL    RegexList
	FlowEnds      []FlowFamily
	ConfigFields  []ConfigField
}

// RegexList is an ordered list of case-insensitive regular expressions.
type RegexList []*regexp.Regexp

// Match reports whether any expression matches s.
func (l RegexList) Match(s string) bool {
	if s == "" {
		return false
	}
	for _, re := range l {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

// PageTypeMatcher is one compiled page-type row.
type PageTypeMatcher struct {
	Type PageType
	URL  RegexList
	Text RegexList
}

// PageType aliases the model type so callers need not import both packages.
type PageType = models.PageType

// CapabilityMatcher is one compiled capability row.
type CapabilityMatcher struct {
	Name      string
	Keywords  *KeywordSet
	Selectors []cascadia.Selector
}

// IntentMatcher is one compiled intent keyword group.
type IntentMatcher struct {
	Intent   models.Intent
	Keywords *KeywordSet
}

// FlowFamily is a compiled start or end trigger family.
type FlowFamily struct {
	Family string
	URL    RegexList
	Text   RegexList
}

// Matches reports whether the URL or normalised element text triggers the family.
func (f FlowFamily) Matches(url, text string) bool {
	return f.URL.Match(url) || f.Text.Match(text)
}

// ConfigField is a compiled product-configuration field detector.
type ConfigField struct {
	Field  string
	Hints  RegexList
	Values RegexList
}

// AcceptsValue reports whether v is an acceptable value for the field.
func (c ConfigField) AcceptsValue(v string) bool {
	if v == "" {
		return false
	}
	if len(c.Values) == 0 {
		return true
	}
	return c.Values.Match(v)
}

// Compile validates the pack and builds its matchers. Every failure wraps
// utils.ErrConfiguration.
func (p *Pack) Compile() (*Tables, error) {
	if p == nil {
		return nil, utils.ConfigError("patterns", "pack is nil")
	}
	t := &Tables{
		Version:       p.Version,
		IntentWeights: p.IntentWeights,
		Urgency:       NewKeywordSet(p.Urgency.Keywords),
		FastPace:      p.Urgency.FastPaceSeconds,
		Price:         NewKeywordSet(p.Price.Keywords),
		Cart:          NewKeywordSet(p.Business.Cart),
		PriceSignals:  NewKeywordSet(p.Business.Price),
		Variant:       NewKeywordSet(p.Business.Variant),
	}
	if t.IntentWeights.Keyword < 0 || t.IntentWeights.Input < 0 || t.IntentWeights.ProductVisit < 0 || t.IntentWeights.ListingVisit < 0 {
		return nil, utils.ConfigError("patterns.intent_weights", "weights must be non-negative")
	}
	if t.FastPace < 0 {
		return nil, utils.ConfigError("patterns.urgency.fast_pace_seconds", "must be non-negative")
	}

	if len(p.PageTypes) == 0 {
		return nil, utils.ConfigError("patterns.page_types", "at least one page type is required")
	}
	seenPages := make(map[string]struct{}, len(p.PageTypes))
	for i, spec := range p.PageTypes {
		field := fmt.Sprintf("patterns.page_types[%d]", i)
		name := strings.TrimSpace(spec.Name)
		if !knownPageType(name) {
			return nil, utils.ConfigError(field, "unknown page type %q", spec.Name)
		}
		if _, dup := seenPages[name]; dup {
			return nil, utils.ConfigError(field, "duplicate page type %q", name)
		}
		seenPages[name] = struct{}{}
		urls, err := compileAll(field+".url", spec.URL)
		if err != nil {
			return nil, err
		}
		texts, err := compileAll(field+".text", spec.Text)
		if err != nil {
			return nil, err
		}
		t.PageTypes = append(t.PageTypes, PageTypeMatcher{Type: models.PageType(name), URL: urls, Text: texts})
	}

	for i, spec := range p.Capabilities {
		field := fmt.Sprintf("patterns.capabilities[%d]", i)
		if strings.TrimSpace(spec.Name) == "" {
			return nil, utils.ConfigError(field, "capability name is required")
		}
		matcher := CapabilityMatcher{Name: strings.TrimSpace(spec.Name), Keywords: NewKeywordSet(spec.Keywords)}
		for _, raw := range spec.Selectors {
			sel, err := cascadia.Compile(raw)
			if err != nil {
				return nil, utils.ConfigError(field, "invalid selector %q: %v", raw, err)
			}
			matcher.Selectors = append(matcher.Selectors, sel)
		}
		t.Capabilities = append(t.Capabilities, matcher)
	}

	seenIntents := make(map[string]struct{}, len(p.Intents))
	for i, spec := range p.Intents {
		field := fmt.Sprintf("patterns.intents[%d]", i)
		name := strings.TrimSpace(spec.Name)
		if !knownIntent(name) {
			return nil, utils.ConfigError(field, "unknown intent %q", spec.Name)
		}
		if _, dup := seenIntents[name]; dup {
			return nil, utils.ConfigError(field, "duplicate intent %q", name)
		}
		seenIntents[name] = struct{}{}
		t.Intents = append(t.Intents, IntentMatcher{Intent: models.Intent(name), Keywords: NewKeywordSet(spec.Keywords)})
	}
	// Intents absent from the pack still take part in scoring, after the declared ones.
	for _, intent := range models.KnownIntents() {
		if _, ok := seenIntents[string(intent)]; !ok {
			t.Intents = append(t.Intents, IntentMatcher{Intent: intent, Keywords: NewKeywordSet(nil)})
		}
	}

	var err error
	if t.FlowStarts, err = compileFamilies("patterns.flows.start", p.Flows.Start); err != nil {
		return nil, err
	}
	if len(t.FlowStarts) == 0 {
		return nil, utils.ConfigError("patterns.flows.start", "at least one start family is required")
	}
	if t.FlowEnds, err = compileFamilies("patterns.flows.end", p.Flows.End); err != nil {
		return nil, err
	}
	if len(t.FlowEnds) == 0 {
		return nil, utils.ConfigError("patterns.flows.end", "at least one end family is required")
	}
	if t.ProductURL, err = compileAll("patterns.flows.continue.url", p.Flows.Continue.URL); err != nil {
		return nil, err
	}

	seenFields := make(map[string]struct{}, len(p.Flows.ConfigFields))
	for i, spec := range p.Flows.ConfigFields {
		field := fmt.Sprintf("patterns.flows.config_fields[%d]", i)
		name := strings.TrimSpace(spec.Field)
		if name == "" {
			return nil, utils.ConfigError(field, "field name is required")
		}
		if _, dup := seenFields[name]; dup {
			return nil, utils.ConfigError(field, "duplicate field %q", name)
		}
		seenFields[name] = struct{}{}
		if len(spec.Hints) == 0 {
			return nil, utils.ConfigError(field, "at least one hint is required")
		}
		hints, err := compileAll(field+".hints", spec.Hints)
		if err != nil {
			return nil, err
		}
		values, err := compileAll(field+".values", spec.Values)
		if err != nil {
			return nil, err
		}
		t.ConfigFields = append(t.ConfigFields, ConfigField{Field: name, Hints: hints, Values: values})
	}

	return t, nil
}

// PageTypeIndex returns the declaration position of a page type, or -1.
func (t *Tables) PageTypeIndex(pt models.PageType) int {
	for i, m := range t.PageTypes {
		if m.Type == pt {
			return i
		}
	}
	return -1
}

// PageTypeMatcherFor returns the matcher row for a page type.
func (t *Tables) PageTypeMatcherFor(pt models.PageType) (PageTypeMatcher, bool) {
	if idx := t.PageTypeIndex(pt); idx >= 0 {
		return t.PageTypes[idx], true
	}
	return PageTypeMatcher{}, false
}

func compileFamilies(field string, specs []FlowFamilySpec) ([]FlowFamily, error) {
	families := make([]FlowFamily, 0, len(specs))
	seen := make(map[string]struct{}, len(specs))
	for i, spec := range specs {
		f := fmt.Sprintf("%s[%d]", field, i)
		name := strings.TrimSpace(spec.Family)
		if name == "" {
			return nil, utils.ConfigError(f, "family name is required")
		}
		if _, dup := seen[name]; dup {
			return nil, utils.ConfigError(f, "duplicate family %q", name)
		}
		seen[name] = struct{}{}
		if len(spec.URL) == 0 && len(spec.Text) == 0 {
			return nil, utils.ConfigError(f, "family %q has no patterns", name)
		}
		urls, err := compileAll(f+".url", spec.URL)
		if err != nil {
			return nil, err
		}
		texts, err := compileAll(f+".text", spec.Text)
		if err != nil {
			return nil, err
		}
		families = append(families, FlowFamily{Family: name, URL: urls, Text: texts})
	}
	return families, nil
}

func compileAll(field string, exprs []string) (RegexList, error) {
	out := make(RegexList, 0, len(exprs))
	for _, expr := range exprs {
		if strings.TrimSpace(expr) == "" {
			return nil, utils.ConfigError(field, "empty pattern")
		}
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return nil, utils.ConfigError(field, "invalid pattern %q: %v", expr, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func knownPageType(name string) bool {
	switch models.PageType(name) {
	case models.PageHome, models.PageCategory, models.PageSearch, models.PageProduct, models.PageCart, models.PageCheckout, models.PageOther:
		return true
	default:
		return false
	}
}

func knownIntent(name string) bool {
	for _, intent := range models.KnownIntents() {
		if string(intent) == name {
			return true
		}
	}
	return false
}
