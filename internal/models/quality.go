package models

// QualityMetrics is the multi-dimensional training-value score of an example source.
type QualityMetrics struct {
	Selector       float64 `json:"selector"`
	Spatial        float64 `json:"spatial"`
	DOMComplexity  float64 `json:"dom_complexity"`
	Business       float64 `json:"business"`
	Site           float64 `json:"site"`
	Aggregate      float64 `json:"aggregate"`
	WeightsVersion string  `json:"weights_version"`
}
