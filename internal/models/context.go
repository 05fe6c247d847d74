package models

// PageType is the coarse classification of a page.
type PageType string

const (
	PageHome     PageType = "home"
	PageCategory PageType = "category"
	PageSearch   PageType = "search"
	PageProduct  PageType = "product"
	PageCart     PageType = "cart"
	PageCheckout PageType = "checkout"
	PageOther    PageType = "other"
)

// PageContext is the derived classification of the page an interaction happened on.
type PageContext struct {
	Type         PageType `json:"type"`
	Confidence   float64  `json:"confidence"`
	Capabilities []string `json:"capabilities"`
}

// Intent is the user's inferred shopping goal.
type Intent string

const (
	IntentSearch   Intent = "search"
	IntentBrowse   Intent = "browse"
	IntentCompare  Intent = "compare"
	IntentPurchase Intent = "purchase"
	IntentResearch Intent = "research"
)

// KnownIntents lists every intent in default tie-break order.
func KnownIntents() []Intent {
	return []Intent{IntentSearch, IntentBrowse, IntentCompare, IntentPurchase, IntentResearch}
}

// FunnelStage is the awareness/consideration/decision funnel position.
type FunnelStage string

const (
	StageAwareness     FunnelStage = "awareness"
	StageConsideration FunnelStage = "consideration"
	StageDecision      FunnelStage = "decision"
)

// StageFor maps an intent onto its funnel stage.
func StageFor(intent Intent) FunnelStage {
	switch intent {
	case IntentResearch, IntentCompare:
		return StageConsideration
	case IntentPurchase:
		return StageDecision
	default:
		return StageAwareness
	}
}

// Level is a three-step ordinal used for urgency and price sensitivity.
type Level string

const (
	LevelLow    Level = "low"
	LevelMedium Level = "medium"
	LevelHigh   Level = "high"
)

// UserIntent is the derived classification of what the user is trying to do.
type UserIntent struct {
	Primary          Intent             `json:"primary"`
	Confidence       float64            `json:"confidence"`
	Stage            FunnelStage        `json:"stage"`
	Urgency          Level              `json:"urgency"`
	PriceSensitivity Level              `json:"price_sensitivity"`
	Scores           map[Intent]float64 `json:"scores,omitempty"`
}

// BusinessSignals records which commercial cues an interaction or sequence carries.
type BusinessSignals struct {
	Cart    bool `json:"cart"`
	Price   bool `json:"price"`
	Variant bool `json:"variant"`
}
