// Package selector ranks locator candidates into a primary selector and an ordered
// fallback chain, and maps interactions onto execution-agnostic actions.
package selector

import (
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// DefaultMaxFallbacks is the default fallback chain length.
const DefaultMaxFallbacks = 3

// Options configures a Resolver.
type Options struct {
	// MaxFallbacks caps the fallback chain. Negative values are treated as zero.
	MaxFallbacks int
	// Priority lists locator kinds from most to least preferred for reliability ties.
	// Kinds absent from the list rank after every listed kind.
	Priority []models.LocatorKind
}

// DefaultOptions returns three fallbacks and the built-in kind priority.
func DefaultOptions() Options {
	return Options{MaxFallbacks: DefaultMaxFallbacks, Priority: models.KnownLocatorKinds()}
}

// Resolver is immutable after construction and safe for concurrent use.
type Resolver struct {
	logger       *slog.Logger
	maxFallbacks int
	rank         map[models.LocatorKind]int
	unranked     int
}

// NewResolver constructs a Resolver.
func NewResolver(logger *slog.Logger, opts Options) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxFallbacks < 0 {
		opts.MaxFallbacks = 0
	}
	priority := opts.Priority
	if len(priority) == 0 {
		priority = models.KnownLocatorKinds()
	}
	rank := make(map[models.LocatorKind]int, len(priority))
	for i, kind := range priority {
		if _, ok := rank[kind]; !ok {
			rank[kind] = i
		}
	}
	return &Resolver{
		logger:       logger,
		maxFallbacks: opts.MaxFallbacks,
		rank:         rank,
		unranked:     len(priority),
	}
}

// Resolve picks the most reliable candidate as primary. It never fails: with no
// usable candidates it returns a synthesized structural placeholder.
func (r *Resolver) Resolve(candidates []models.SelectorCandidate) models.ResolvedSelector {
	return r.resolve(candidates, "", -1)
}

// ResolveFor resolves the candidates of one interaction, using the element tag for
// the placeholder when nothing usable was captured.
func (r *Resolver) ResolveFor(rec models.InteractionRecord) models.ResolvedSelector {
	return r.resolve(rec.Selectors, rec.Element.Tag, rec.Index)
}

func (r *Resolver) resolve(candidates []models.SelectorCandidate, tag string, index int) models.ResolvedSelector {
	ranked := r.rankCandidates(candidates)
	if len(ranked) == 0 {
		placeholder := Placeholder(tag)
		attrs := []any{slog.String("locator", placeholder.Locator)}
		if index >= 0 {
			attrs = append(attrs, slog.Int("interaction", index))
		}
		r.logger.Warn("no usable selector candidates, synthesized structural placeholder", attrs...)
		return models.ResolvedSelector{Primary: placeholder, Fallbacks: []models.SelectorCandidate{}, Synthesized: true}
	}

	fallbacks := ranked[1:]
	if len(fallbacks) > r.maxFallbacks {
		fallbacks = fallbacks[:r.maxFallbacks]
	}
	out := models.ResolvedSelector{
		Primary:   ranked[0],
		Fallbacks: make([]models.SelectorCandidate, len(fallbacks)),
	}
	copy(out.Fallbacks, fallbacks)
	return out
}

// rankCandidates sanitises, orders and de-duplicates candidates. The input slice is
// not modified.
func (r *Resolver) rankCandidates(candidates []models.SelectorCandidate) []models.SelectorCandidate {
	cleaned := make([]models.SelectorCandidate, 0, len(candidates))
	for _, c := range candidates {
		locator := strings.TrimSpace(c.Locator)
		if locator == "" {
			continue
		}
		cleaned = append(cleaned, models.SelectorCandidate{
			Locator:     locator,
			Kind:        models.LocatorKind(strings.ToLower(strings.TrimSpace(string(c.Kind)))),
			Reliability: SanitizeReliability(c.Reliability),
		})
	}

	sort.SliceStable(cleaned, func(i, j int) bool {
		if cleaned[i].Reliability != cleaned[j].Reliability {
			return cleaned[i].Reliability > cleaned[j].Reliability
		}
		return r.kindRank(cleaned[i].Kind) < r.kindRank(cleaned[j].Kind)
	})

	seen := make(map[string]struct{}, len(cleaned))
	out := cleaned[:0]
	for _, c := range cleaned {
		if _, dup := seen[c.Locator]; dup {
			continue
		}
		seen[c.Locator] = struct{}{}
		out = append(out, c)
	}
	return out
}

func (r *Resolver) kindRank(kind models.LocatorKind) int {
	if rank, ok := r.rank[kind]; ok {
		return rank
	}
	return r.unranked
}

// SanitizeReliability maps missing or invalid scores to 0 and clamps to [0,1].
func SanitizeReliability(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 1:
		return 1
	default:
		return v
	}
}

// Placeholder builds the reliability-0 structural locator used when capture supplied
// no candidates.
func Placeholder(tag string) models.SelectorCandidate {
	tag = strings.ToLower(strings.TrimSpace(tag))
	locator := "//*"
	if isTagName(tag) {
		locator = "//" + tag
	}
	return models.SelectorCandidate{Locator: locator, Kind: models.LocatorXPath, Reliability: 0}
}

func isTagName(tag string) bool {
	if tag == "" {
		return false
	}
	for i, r := range tag {
		switch {
		case r >= 'a' && r <= 'z':
		case i > 0 && (r >= '0' && r <= '9' || r == '-'):
		default:
			return false
		}
	}
	return true
}
