package analyzer

import (
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

// ClassifyIntent scores the whole journey. It is equivalent to feeding every
// interaction, URL and text into a fresh IntentAccumulator.
func (a *Analyzer) ClassifyIntent(interactions []models.InteractionRecord, urls []string, elementTexts string) models.UserIntent {
	acc := a.NewIntentAccumulator()
	for _, rec := range interactions {
		acc.ObserveInteraction(rec.Kind, rec.Timestamp)
	}
	for _, u := range urls {
		acc.ObserveURL(u)
	}
	acc.ObserveText(elementTexts)
	return acc.Intent()
}

// IntentAccumulator folds interactions into per-intent scores one step at a time,
// so the journey-so-far intent of every interaction costs O(1) amortized.
// It is not safe for concurrent use.
type IntentAccumulator struct {
	a            *Analyzer
	scores       []float64
	index        map[models.Intent]int
	products     map[string]struct{}
	urgencyHits  int
	priceHits    int
	interactions int
	first, last  time.Time
}

// NewIntentAccumulator returns an empty accumulator.
func (a *Analyzer) NewIntentAccumulator() *IntentAccumulator {
	index := make(map[models.Intent]int, len(a.tables.Intents))
	for i, m := range a.tables.Intents {
		index[m.Intent] = i
	}
	return &IntentAccumulator{
		a:        a,
		scores:   make([]float64, len(a.tables.Intents)),
		index:    index,
		products: make(map[string]struct{}),
	}
}

// Observe feeds one interaction: its kind and timing, its page URL and its element text.
func (acc *IntentAccumulator) Observe(rec models.InteractionRecord) {
	acc.ObserveInteraction(rec.Kind, rec.Timestamp)
	acc.ObserveURL(rec.URL)
	if rec.Kind == models.KindNavigation {
		if dest := rec.DestinationURL(); dest != rec.URL {
			acc.ObserveURL(dest)
		}
	}
	acc.ObserveText(rec.Element.Label())
}

// ObserveInteraction records the structural part of an interaction.
func (acc *IntentAccumulator) ObserveInteraction(kind models.InteractionKind, ts time.Time) {
	if acc.interactions == 0 {
		acc.first = ts
	}
	acc.last = ts
	acc.interactions++
	if kind == models.KindInput {
		acc.add(models.IntentSearch, acc.a.tables.IntentWeights.Input)
	}
}

// ObserveURL records a page visit. Distinct product pages beyond the first count
// towards compare; listing pages count towards browse and search result pages
// towards search.
func (acc *IntentAccumulator) ObserveURL(raw string) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return
	}
	t := acc.a.tables
	if t.ProductURL.Match(raw) {
		key := productKey(raw)
		if _, seen := acc.products[key]; !seen {
			acc.products[key] = struct{}{}
			if len(acc.products) > 1 {
				acc.add(models.IntentCompare, t.IntentWeights.ProductVisit)
			}
		}
		return
	}
	if m, ok := t.PageTypeMatcherFor(models.PageCategory); ok && m.URL.Match(raw) {
		acc.add(models.IntentBrowse, t.IntentWeights.ListingVisit)
		return
	}
	if m, ok := t.PageTypeMatcherFor(models.PageSearch); ok && m.URL.Match(raw) {
		acc.add(models.IntentSearch, t.IntentWeights.ListingVisit)
	}
}

// ObserveText matches the intent, urgency and price keyword groups against text.
func (acc *IntentAccumulator) ObserveText(text string) {
	text = patterns.NormalizeText(text)
	if text == "" {
		return
	}
	t := acc.a.tables
	for i, m := range t.Intents {
		if hits := m.Keywords.Count(text); hits > 0 {
			acc.scores[i] += float64(hits) * t.IntentWeights.Keyword
		}
	}
	acc.urgencyHits += t.Urgency.Count(text)
	acc.priceHits += t.Price.Count(text)
}

func (acc *IntentAccumulator) add(intent models.Intent, weight float64) {
	if i, ok := acc.index[intent]; ok {
		acc.scores[i] += weight
	}
}

// Intent returns the current classification. The highest score wins, ties going
// to the intent declared first; an all-zero journey is browse with confidence 0.
func (acc *IntentAccumulator) Intent() models.UserIntent {
	t := acc.a.tables
	scores := make(map[models.Intent]float64, len(acc.scores))
	best := -1
	for i, s := range acc.scores {
		scores[t.Intents[i].Intent] = s
		if s > 0 && (best < 0 || s > acc.scores[best]) {
			best = i
		}
	}

	out := models.UserIntent{
		Primary:          models.IntentBrowse,
		Urgency:          acc.urgency(),
		PriceSensitivity: levelFor(acc.priceHits),
		Scores:           scores,
	}
	if best >= 0 {
		out.Primary = t.Intents[best].Intent
		out.Confidence = math.Min(1, acc.scores[best]/acc.a.ceiling) * 100
	}
	out.Stage = models.StageFor(out.Primary)
	return out
}

func (acc *IntentAccumulator) urgency() models.Level {
	signals := acc.urgencyHits
	if pace := acc.a.tables.FastPace; pace > 0 && acc.interactions >= 3 {
		gap := utils.DurationSeconds(acc.first, acc.last) / float64(acc.interactions-1)
		if gap < pace {
			signals++
		}
	}
	return levelFor(signals)
}

func levelFor(signals int) models.Level {
	switch {
	case signals >= 2:
		return models.LevelHigh
	case signals == 1:
		return models.LevelMedium
	default:
		return models.LevelLow
	}
}

// productKey identifies a product page independent of query string and fragment.
func productKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}
	return strings.ToLower(strings.TrimPrefix(u.Host, "www.")) + strings.TrimSuffix(strings.ToLower(u.Path), "/")
}
