// Package patterns loads and compiles the pattern pack that drives page, intent,
// business and flow classification. A compiled Tables value is immutable and may be
// shared by any number of concurrent session workers.
package patterns

import (
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed default_pack.yaml
var defaultPack []byte

// Pack is the YAML root structure of a pattern pack.
type Pack struct {
	Version       string           `yaml:"version"`
	PageTypes     []PageTypeSpec   `yaml:"page_types"`
	Capabilities  []CapabilitySpec `yaml:"capabilities"`
	Intents       []IntentSpec     `yaml:"intents"`
	IntentWeights IntentWeights    `yaml:"intent_weights"`
	Urgency       UrgencySpec      `yaml:"urgency"`
	Price         KeywordSpec      `yaml:"price_sensitivity"`
	Business      BusinessSpec     `yaml:"business"`
	Flows         FlowSpec         `yaml:"flows"`
}

// PageTypeSpec lists URL and element-text regexes for one page type.
type PageTypeSpec struct {
	Name string   `yaml:"name"`
	URL  []string `yaml:"url"`
	Text []string `yaml:"text"`
}

// CapabilitySpec detects a UI capability from keywords or snapshot CSS selectors.
type CapabilitySpec struct {
	Name      string   `yaml:"name"`
	Keywords  []string `yaml:"keywords"`
	Selectors []string `yaml:"selectors"`
}

// IntentSpec lists the keywords that add to one intent's score.
type IntentSpec struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// IntentWeights scales the structural intent signals.
type IntentWeights struct {
	Keyword      float64 `yaml:"keyword"`
	Input        float64 `yaml:"input"`
	ProductVisit float64 `yaml:"product_visit"`
	ListingVisit float64 `yaml:"listing_visit"`
}

// UrgencySpec controls urgency level detection.
type UrgencySpec struct {
	Keywords []string `yaml:"keywords"`
	// FastPaceSeconds is the mean gap between interactions below which pace counts as urgent.
	FastPaceSeconds float64 `yaml:"fast_pace_seconds"`
}

// KeywordSpec is a bare keyword list.
type KeywordSpec struct {
	Keywords []string `yaml:"keywords"`
}

// BusinessSpec lists keywords for the commercial cue groups.
type BusinessSpec struct {
	Cart    []string `yaml:"cart"`
	Price   []string `yaml:"price"`
	Variant []string `yaml:"variant"`
}

// FlowSpec holds the segmenter trigger tables.
type FlowSpec struct {
	Start        []FlowFamilySpec  `yaml:"start"`
	Continue     ContinueSpec      `yaml:"continue"`
	End          []FlowFamilySpec  `yaml:"end"`
	ConfigFields []ConfigFieldSpec `yaml:"config_fields"`
}

// FlowFamilySpec is one named family of start or end triggers.
type FlowFamilySpec struct {
	Family string   `yaml:"family"`
	URL    []string `yaml:"url"`
	Text   []string `yaml:"text"`
}

// ContinueSpec matches product-detail pages that keep a sequence open.
type ContinueSpec struct {
	URL []string `yaml:"url"`
}

// ConfigFieldSpec detects updates to one product-configuration field.
type ConfigFieldSpec struct {
	Field  string   `yaml:"field"`
	Hints  []string `yaml:"hints"`
	Values []string `yaml:"values"`
}

// ErrPackNotFound is returned when an explicit pack path does not exist.
var ErrPackNotFound = errors.New("pattern pack not found")

// Load reads a pattern pack from path, or the embedded default when path is empty.
func Load(path string) (*Pack, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrPackNotFound, path)
		}
		return nil, fmt.Errorf("read pattern pack: %w", err)
	}
	return Parse(data)
}

// Default returns a fresh copy of the embedded default pack.
func Default() (*Pack, error) {
	return Parse(defaultPack)
}

// Parse decodes a YAML pattern pack.
func Parse(data []byte) (*Pack, error) {
	var pack Pack
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse pattern pack: %w", err)
	}
	return &pack, nil
}
