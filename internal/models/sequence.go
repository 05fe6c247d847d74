package models

import "sort"

// SequenceStatus records how a shopping sequence was closed.
type SequenceStatus string

const (
	SequenceComplete   SequenceStatus = "complete"
	SequenceIncomplete SequenceStatus = "incomplete"
)

// StepRole records why an interaction belongs to a sequence.
type StepRole string

const (
	StepStart        StepRole = "start"
	StepContinue     StepRole = "continue"
	StepIntermediate StepRole = "intermediate"
	StepEnd          StepRole = "end"
)

// SequenceStep is one interaction inside a sequence together with its role.
type SequenceStep struct {
	Index int
	Role  StepRole
	// Field and Value are set when the step updated a configuration field.
	Field string
	Value string
}

// ShoppingSequence is a contiguous, non-overlapping slice of a session forming one flow.
type ShoppingSequence struct {
	Index         int
	Start         int
	End           int
	Interactions  []InteractionRecord
	Steps         []SequenceStep
	FlowType      string
	StartFamily   string
	EndFamily     string
	Status        SequenceStatus
	Configuration map[string]string
}

// Len returns the number of interactions in the sequence.
func (s ShoppingSequence) Len() int {
	return s.End - s.Start + 1
}

// Complete reports whether the sequence closed on an end trigger.
func (s ShoppingSequence) Complete() bool {
	return s.Status == SequenceComplete
}

// ConfigurationFields returns the configured field names in sorted order.
func (s ShoppingSequence) ConfigurationFields() []string {
	fields := make([]string, 0, len(s.Configuration))
	for k := range s.Configuration {
		fields = append(fields, k)
	}
	sort.Strings(fields)
	return fields
}

// Segmentation is the Segmenter's partition of one session.
type Segmentation struct {
	Sequences   []ShoppingSequence
	Unsequenced []int
	// Partial is set when the walk stopped early because its context was cancelled.
	Partial bool
	// Walked is the number of interactions the walk finished before stopping.
	Walked int
}
