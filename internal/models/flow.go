package models

import "time"

// FlowPattern is a batch-level summary of one flow type across sessions.
type FlowPattern struct {
	FlowType      string    `json:"flow_type"`
	Sessions      int       `json:"sessions"`
	Sequences     int       `json:"sequences"`
	Prevalence    float64   `json:"prevalence"`
	CompleteRatio float64   `json:"complete_ratio"`
	MeanLength    float64   `json:"mean_length"`
	TopFields     []string  `json:"top_fields,omitempty"`
	LastSeen      time.Time `json:"last_seen"`
}

// SessionFlows pairs a session identifier with the sequences found in it.
type SessionFlows struct {
	SessionID string
	EndedAt   time.Time
	Sequences []ShoppingSequence
}
