package models

// LocatorKind names the strategy a selector candidate uses to find an element.
type LocatorKind string

const (
	LocatorID     LocatorKind = "id"
	LocatorTestID LocatorKind = "test_id"
	LocatorAria   LocatorKind = "aria"
	LocatorName   LocatorKind = "name"
	LocatorClass  LocatorKind = "class"
	LocatorText   LocatorKind = "text"
	LocatorCSS    LocatorKind = "css"
	LocatorXPath  LocatorKind = "xpath"
)

// KnownLocatorKinds lists every supported locator kind in default priority order.
func KnownLocatorKinds() []LocatorKind {
	return []LocatorKind{
		LocatorID,
		LocatorTestID,
		LocatorAria,
		LocatorName,
		LocatorClass,
		LocatorText,
		LocatorCSS,
		LocatorXPath,
	}
}

// SelectorCandidate is one locator proposed by the capture layer.
type SelectorCandidate struct {
	Locator     string      `json:"locator"`
	Kind        LocatorKind `json:"kind"`
	Reliability float64     `json:"reliability"`
}

// ResolvedSelector is the chosen primary locator plus its ordered fallback chain.
type ResolvedSelector struct {
	Primary     SelectorCandidate   `json:"primary"`
	Fallbacks   []SelectorCandidate `json:"fallbacks"`
	Synthesized bool                `json:"synthesized"`
}

// Locators returns the primary locator followed by the fallbacks.
func (r ResolvedSelector) Locators() []string {
	out := make([]string, 0, 1+len(r.Fallbacks))
	out = append(out, r.Primary.Locator)
	for _, fb := range r.Fallbacks {
		out = append(out, fb.Locator)
	}
	return out
}

// ActionVerb is an execution-agnostic action name.
type ActionVerb string

const (
	ActionClick    ActionVerb = "click"
	ActionFill     ActionVerb = "fill"
	ActionSelect   ActionVerb = "select"
	ActionNavigate ActionVerb = "navigate"
)

// ActionDescriptor pairs a verb with the selector or URL it targets.
type ActionDescriptor struct {
	Verb   ActionVerb `json:"verb"`
	Target string     `json:"target"`
	Value  string     `json:"value,omitempty"`
}
