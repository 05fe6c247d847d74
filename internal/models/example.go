package models

// ExampleSchemaVersion is bumped whenever the prompt/completion layout changes.
const ExampleSchemaVersion = "1"

// ExampleKind distinguishes per-interaction from per-sequence examples.
type ExampleKind string

const (
	ExampleInteraction ExampleKind = "interaction"
	ExampleSequence    ExampleKind = "sequence"
)

// TrainingExample is one emitted (prompt, completion) pair. It is never mutated.
type TrainingExample struct {
	Prompt     string         `json:"prompt"`
	Completion string         `json:"completion"`
	Quality    float64        `json:"quality"`
	Context    ExampleContext `json:"context"`
}

// ExampleContext is the structured audit blob attached to every example.
type ExampleContext struct {
	ExampleID        string           `json:"example_id"`
	SessionID        string           `json:"session_id"`
	Kind             ExampleKind      `json:"kind"`
	SchemaVersion    string           `json:"schema_version"`
	InteractionIndex *int             `json:"interaction_index,omitempty"`
	Journey          JourneyContext   `json:"journey"`
	Page             PageContext      `json:"page"`
	Business         BusinessSignals  `json:"business"`
	SelectorsUsed    []string         `json:"selectors_used"`
	Action           ActionDescriptor `json:"action"`
	Sequence         *SequenceContext `json:"sequence,omitempty"`
	Metrics          QualityMetrics   `json:"metrics"`
}

// JourneyContext mirrors the UserIntent that framed the example.
type JourneyContext struct {
	Stage            FunnelStage `json:"stage"`
	Intent           Intent      `json:"intent"`
	Confidence       float64     `json:"confidence"`
	Urgency          Level       `json:"urgency"`
	PriceSensitivity Level       `json:"price_sensitivity"`
}

// SequenceContext carries sequence metadata for sequence-level examples.
type SequenceContext struct {
	Index         int               `json:"index"`
	FlowType      string            `json:"flow_type"`
	Status        SequenceStatus    `json:"status"`
	Start         int               `json:"start"`
	End           int               `json:"end"`
	Length        int               `json:"length"`
	Configuration map[string]string `json:"configuration"`
}

// JourneyFrom copies the journey-relevant fields out of an intent.
func JourneyFrom(intent UserIntent) JourneyContext {
	return JourneyContext{
		Stage:            intent.Stage,
		Intent:           intent.Primary,
		Confidence:       intent.Confidence,
		Urgency:          intent.Urgency,
		PriceSensitivity: intent.PriceSensitivity,
	}
}
