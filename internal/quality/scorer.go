package quality

import (
	"math"
	"strings"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// Options configures a Scorer.
type Options struct {
	Weights Weights
	// DomainMultipliers scales the site dimension. Subdomains inherit the multiplier
	// of their closest listed parent; unlisted domains use 1.0.
	DomainMultipliers map[string]float64
}

// Scorer is immutable after construction and safe for concurrent use.
type Scorer struct {
	tables      *patterns.Tables
	weights     Weights
	multipliers map[string]float64
}

// NewScorer validates the options and returns a Scorer.
func NewScorer(tables *patterns.Tables, opts Options) (*Scorer, error) {
	if opts.Weights.Version == "" {
		opts.Weights = DefaultWeights()
	}
	if err := opts.Weights.Validate(); err != nil {
		return nil, err
	}
	multipliers := make(map[string]float64, len(opts.DomainMultipliers))
	for domain, mult := range opts.DomainMultipliers {
		if math.IsNaN(mult) || mult < 0 {
			return nil, utils.ConfigError("quality.domainMultipliers", "multiplier for %s must be non-negative", domain)
		}
		multipliers[normalizeDomain(domain)] = mult
	}
	return &Scorer{tables: tables, weights: opts.Weights, multipliers: multipliers}, nil
}

// Weights returns the weights in use.
func (s *Scorer) Weights() Weights {
	return s.weights
}

// ScoreInteraction scores one interaction.
func (s *Scorer) ScoreInteraction(rec models.InteractionRecord, page models.PageContext, resolved models.ResolvedSelector) models.QualityMetrics {
	return s.finish(
		SelectorScore(resolved),
		SpatialScore(rec.Nearby),
		DOMComplexityScore(rec.Element),
		s.businessScore(s.Signals(rec), page.Type),
		s.SiteScore(rec.URL),
	)
}

// ScoreSequence averages member dimensions, then adjusts business value for
// completeness and captured configuration.
func (s *Scorer) ScoreSequence(seq models.ShoppingSequence, members []models.QualityMetrics) models.QualityMetrics {
	if len(members) == 0 {
		return s.finish(0, 0, 0, 0, 0)
	}
	var sel, spatial, dom, business, site float64
	for _, m := range members {
		sel += m.Selector
		spatial += m.Spatial
		dom += m.DOMComplexity
		business += m.Business
		site += m.Site
	}
	n := float64(len(members))
	business /= n
	if seq.Complete() {
		business += 20
	}
	if len(seq.Configuration) > 0 {
		business += 10
	}
	if !seq.Complete() {
		business *= 0.5
	}
	return s.finish(sel/n, spatial/n, dom/n, clamp(business), site/n)
}

func (s *Scorer) finish(selector, spatial, dom, business, site float64) models.QualityMetrics {
	m := models.QualityMetrics{
		Selector:       round2(clamp(selector)),
		Spatial:        round2(clamp(spatial)),
		DOMComplexity:  round2(clamp(dom)),
		Business:       round2(clamp(business)),
		Site:           round2(clamp(site)),
		WeightsVersion: s.weights.Version,
	}
	m.Aggregate = round2(clamp(s.weights.aggregate(m.Selector, m.Spatial, m.DOMComplexity, m.Business, m.Site)))
	return m
}

// MeetsTrainingBar reports whether the aggregate reaches the threshold.
func MeetsTrainingBar(m models.QualityMetrics, threshold float64) bool {
	return m.Aggregate >= threshold
}

// SelectorScore rewards primary reliability and up to two fallbacks. Synthesized
// placeholders score 0.
func SelectorScore(resolved models.ResolvedSelector) float64 {
	if resolved.Synthesized {
		return 0
	}
	fallbacks := len(resolved.Fallbacks)
	if fallbacks > 2 {
		fallbacks = 2
	}
	return 90*resolved.Primary.Reliability + 5*float64(fallbacks)
}

// SpatialScore rewards the count and interactivity of nearby elements.
func SpatialScore(nearby []models.NearbyElement) float64 {
	if len(nearby) == 0 {
		return 0
	}
	interactive := 0
	for _, n := range nearby {
		if n.Interactive {
			interactive++
		}
	}
	return 60*ratio(len(nearby), 8) + 40*float64(interactive)/float64(len(nearby))
}

// DOMComplexityScore rewards ancestor depth, sibling breadth and attribute detail.
func DOMComplexityScore(el models.Element) float64 {
	return 50*ratio(len(el.Ancestors), 6) + 30*ratio(el.SiblingCount, 10) + 20*ratio(len(el.Attributes), 5)
}

// Signals detects cart, price and variant cues in an interaction's element text,
// nearby text and URL.
func (s *Scorer) Signals(rec models.InteractionRecord) models.BusinessSignals {
	var b strings.Builder
	b.WriteString(rec.Element.Label())
	for _, n := range rec.Nearby {
		b.WriteByte(' ')
		b.WriteString(n.Text)
	}
	b.WriteByte(' ')
	b.WriteString(rec.URL)
	text := b.String()
	return models.BusinessSignals{
		Cart:    s.tables.Cart.Has(text),
		Price:   s.tables.PriceSignals.Has(text),
		Variant: s.tables.Variant.Has(text),
	}
}

// SequenceSignals is the union of member signals.
func (s *Scorer) SequenceSignals(records []models.InteractionRecord) models.BusinessSignals {
	var out models.BusinessSignals
	for _, rec := range records {
		sig := s.Signals(rec)
		out.Cart = out.Cart || sig.Cart
		out.Price = out.Price || sig.Price
		out.Variant = out.Variant || sig.Variant
	}
	return out
}

func (s *Scorer) businessScore(sig models.BusinessSignals, page models.PageType) float64 {
	score := 0.0
	if sig.Cart {
		score += 40
	}
	if sig.Price {
		score += 30
	}
	if sig.Variant {
		score += 30
	}
	switch page {
	case models.PageProduct:
		score += 10
	case models.PageCart, models.PageCheckout:
		score += 15
	}
	return clamp(score)
}

// SiteScore is 50 scaled by the domain multiplier, clamped to [0,100].
func (s *Scorer) SiteScore(rawURL string) float64 {
	return clamp(50 * s.Multiplier(models.Domain(rawURL)))
}

// Multiplier looks up a domain, walking up to its parents.
func (s *Scorer) Multiplier(domain string) float64 {
	domain = normalizeDomain(domain)
	for domain != "" {
		if m, ok := s.multipliers[domain]; ok {
			return m
		}
		dot := strings.IndexByte(domain, '.')
		if dot < 0 {
			break
		}
		domain = domain[dot+1:]
		if !strings.Contains(domain, ".") {
			// bare TLDs never carry a multiplier
			break
		}
	}
	return 1.0
}

func normalizeDomain(d string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(d)), "www.")
}

func ratio(n, capacity int) float64 {
	if n <= 0 {
		return 0
	}
	if n > capacity {
		n = capacity
	}
	return float64(n) / float64(capacity)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 100:
		return 100
	default:
		return v
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
