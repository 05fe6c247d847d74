// Package quality computes multi-dimensional training-value scores for interactions
// and shopping sequences, and exposes the emission threshold predicate.
package quality

import (
	"math"
	"strings"

	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// WeightsV1 is the version tag of DefaultWeights.
const WeightsV1 = "v1"

// DefaultThreshold is the minimum aggregate score for emission.
const DefaultThreshold = 60.0

const weightTolerance = 1e-6

// Weights is a versioned set of dimension weights summing to 1.0.
type Weights struct {
	Version       string
	Selector      float64
	Spatial       float64
	DOMComplexity float64
	Business      float64
	Site          float64
}

// DefaultWeights returns weights version v1.
func DefaultWeights() Weights {
	return Weights{
		Version:       WeightsV1,
		Selector:      0.30,
		Spatial:       0.20,
		DOMComplexity: 0.15,
		Business:      0.25,
		Site:          0.10,
	}
}

// Validate fails with a configuration error unless every weight is in [0,1] and
// they sum to 1.0.
func (w Weights) Validate() error {
	if strings.TrimSpace(w.Version) == "" {
		return utils.ConfigError("synthesis.weights", "version is required")
	}
	for _, v := range []float64{w.Selector, w.Spatial, w.DOMComplexity, w.Business, w.Site} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return utils.ConfigError("synthesis.weights", "weight %v outside [0,1]", v)
		}
	}
	sum := w.Selector + w.Spatial + w.DOMComplexity + w.Business + w.Site
	if math.Abs(sum-1) > weightTolerance {
		return utils.ConfigError("synthesis.weights", "weights %s must sum to 1.0, got %.6f", w.Version, sum)
	}
	return nil
}

func (w Weights) aggregate(selector, spatial, dom, business, site float64) float64 {
	return w.Selector*selector + w.Spatial*spatial + w.DOMComplexity*dom + w.Business*business + w.Site*site
}
