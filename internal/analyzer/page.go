// Package analyzer classifies page type, UI capabilities and user intent from the
// compiled pattern tables it is constructed with.
package analyzer

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
)

// DefaultConfidenceCeiling is the intent score that maps to 100% confidence.
const DefaultConfidenceCeiling = 10.0

// Options configures an Analyzer.
type Options struct {
	ConfidenceCeiling float64
}

// Analyzer is read-only after construction and safe for concurrent use.
type Analyzer struct {
	tables  *patterns.Tables
	ceiling float64
	logger  *slog.Logger
}

// New constructs an Analyzer over compiled pattern tables.
func New(logger *slog.Logger, tables *patterns.Tables, opts Options) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConfidenceCeiling <= 0 {
		opts.ConfidenceCeiling = DefaultConfidenceCeiling
	}
	return &Analyzer{tables: tables, ceiling: opts.ConfidenceCeiling, logger: logger}
}

// ClassifyPage votes each URL and the element text against the page-type table.
// Every URL is one ballot and a non-empty text is one more; a page type collects
// at most one vote per ballot. Ties go to the type declared first. With no votes
// the page is "other" with confidence 0.
func (a *Analyzer) ClassifyPage(urls []string, elementTexts string) models.PageContext {
	votes := make([]int, len(a.tables.PageTypes))
	ballots := 0
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		ballots++
		for i, pt := range a.tables.PageTypes {
			if pt.URL.Match(u) {
				votes[i]++
			}
		}
	}
	text := patterns.NormalizeText(elementTexts)
	if text != "" {
		ballots++
		for i, pt := range a.tables.PageTypes {
			if pt.Text.Match(text) {
				votes[i]++
			}
		}
	}
	return a.dominantPage(votes, ballots, strings.Join(append(append([]string{}, urls...), text), " "))
}

// dominantPage picks the type with the most votes, ties going to declaration order.
func (a *Analyzer) dominantPage(votes []int, ballots int, capabilityText string) models.PageContext {
	ctx := models.PageContext{
		Type:         models.PageOther,
		Capabilities: a.keywordCapabilities(capabilityText),
	}
	best := -1
	for i, v := range votes {
		if v > 0 && (best < 0 || v > votes[best]) {
			best = i
		}
	}
	if best >= 0 && ballots > 0 {
		ctx.Type = a.tables.PageTypes[best].Type
		ctx.Confidence = 100 * float64(votes[best]) / float64(ballots)
	}
	return ctx
}

// PageFor classifies the page a single interaction happened on. Capabilities also
// draw on the page title, nearby element text and, when captured, the snapshot HTML.
func (a *Analyzer) PageFor(rec models.InteractionRecord) models.PageContext {
	ctx := a.ClassifyPage([]string{rec.URL}, rec.Element.Label())

	var text strings.Builder
	text.WriteString(rec.URL)
	text.WriteByte(' ')
	text.WriteString(rec.PageTitle)
	text.WriteByte(' ')
	text.WriteString(rec.Element.Label())
	for _, n := range rec.Nearby {
		text.WriteByte(' ')
		text.WriteString(n.Text)
	}
	caps := a.keywordCapabilities(text.String())
	if rec.Snapshot != nil && strings.TrimSpace(rec.Snapshot.HTML) != "" {
		caps = mergeSorted(caps, a.snapshotCapabilities(rec.Snapshot.HTML, rec.Index))
	}
	ctx.Capabilities = caps
	return ctx
}

// SessionPage returns the page type with the most matching interactions. Every
// interaction with a URL or element text is one ballot and votes once for each
// type whose URL or text patterns match it.
func (a *Analyzer) SessionPage(records []models.InteractionRecord) models.PageContext {
	votes := make([]int, len(a.tables.PageTypes))
	ballots := 0
	parts := make([]string, 0, 2*len(records))
	for _, rec := range records {
		u := strings.TrimSpace(rec.URL)
		text := patterns.NormalizeText(rec.Element.Label())
		if u == "" && text == "" {
			continue
		}
		ballots++
		parts = append(parts, u, text)
		for i, pt := range a.tables.PageTypes {
			if pt.URL.Match(u) || pt.Text.Match(text) {
				votes[i]++
			}
		}
	}
	return a.dominantPage(votes, ballots, strings.Join(parts, " "))
}

func (a *Analyzer) keywordCapabilities(text string) []string {
	caps := []string{}
	for _, c := range a.tables.Capabilities {
		if c.Keywords.Has(text) {
			caps = append(caps, c.Name)
		}
	}
	sort.Strings(caps)
	return caps
}

func (a *Analyzer) snapshotCapabilities(html string, index int) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		a.logger.Debug("snapshot html unreadable", slog.Int("interaction", index), slog.Any("error", err))
		return nil
	}
	var caps []string
	for _, c := range a.tables.Capabilities {
		for _, sel := range c.Selectors {
			if doc.FindMatcher(sel).Length() > 0 {
				caps = append(caps, c.Name)
				break
			}
		}
	}
	sort.Strings(caps)
	return caps
}

func mergeSorted(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if _, ok := seen[s]; ok {
				continue
			}
			seen[s] = struct{}{}
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}
