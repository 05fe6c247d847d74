package selector

import (
	"math"
	"testing"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

func cand(kind models.LocatorKind, locator string, reliability float64) models.SelectorCandidate {
	return models.SelectorCandidate{Locator: locator, Kind: kind, Reliability: reliability}
}

func TestResolvePicksHighestReliability(t *testing.T) {
	r := NewResolver(nil, DefaultOptions())
	got := r.Resolve([]models.SelectorCandidate{
		cand(models.LocatorXPath, "//div[2]/button", 0.7),
		cand(models.LocatorCSS, "div > button", 0.4),
	})
	if got.Primary.Locator != "//div[2]/button" {
		t.Fatalf("expected xpath primary, got %+v", got.Primary)
	}
	if len(got.Fallbacks) != 1 || got.Fallbacks[0].Locator != "div > button" {
		t.Fatalf("expected css as sole fallback, got %+v", got.Fallbacks)
	}
	if got.Synthesized {
		t.Fatalf("resolution should not be synthesized")
	}
}

func TestResolveBreaksTiesByKindPriority(t *testing.T) {
	r := NewResolver(nil, DefaultOptions())
	got := r.Resolve([]models.SelectorCandidate{
		cand(models.LocatorXPath, "//button", 0.7),
		cand(models.LocatorClass, ".buy", 0.7),
		cand(models.LocatorID, "#buy", 0.7),
		cand(models.LocatorTestID, "[data-testid=buy]", 0.7),
	})
	want := []string{"#buy", "[data-testid=buy]", ".buy", "//button"}
	if locs := got.Locators(); len(locs) != len(want) {
		t.Fatalf("unexpected locators %v", locs)
	} else {
		for i := range want {
			if locs[i] != want[i] {
				t.Fatalf("position %d: want %s got %s", i, want[i], locs[i])
			}
		}
	}
}

func TestResolveCustomPriority(t *testing.T) {
	r := NewResolver(nil, Options{MaxFallbacks: 3, Priority: []models.LocatorKind{models.LocatorXPath, models.LocatorID}})
	got := r.Resolve([]models.SelectorCandidate{
		cand(models.LocatorID, "#a", 0.5),
		cand(models.LocatorCSS, "a.b", 0.5),
		cand(models.LocatorXPath, "//a", 0.5),
	})
	if got.Primary.Locator != "//a" || got.Fallbacks[0].Locator != "#a" || got.Fallbacks[1].Locator != "a.b" {
		t.Fatalf("unexpected order %v", got.Locators())
	}
}

func TestResolveTreatsMissingReliabilityAsZero(t *testing.T) {
	r := NewResolver(nil, DefaultOptions())
	got := r.Resolve([]models.SelectorCandidate{
		cand(models.LocatorID, "#nan", math.NaN()),
		cand(models.LocatorID, "#zero", 0),
		cand(models.LocatorCSS, ".low", 0.1),
		cand(models.LocatorCSS, ".huge", 7),
	})
	if got.Primary.Locator != ".huge" || got.Primary.Reliability != 1 {
		t.Fatalf("expected clamped primary, got %+v", got.Primary)
	}
	if got.Fallbacks[0].Locator != ".low" {
		t.Fatalf("missing reliability must never outrank a scored candidate: %v", got.Locators())
	}
	if got.Fallbacks[1].Reliability != 0 || got.Fallbacks[2].Reliability != 0 {
		t.Fatalf("expected NaN and zero to rank as 0, got %+v", got.Fallbacks)
	}
}

func TestResolveCapsAndDedupesFallbacks(t *testing.T) {
	r := NewResolver(nil, Options{MaxFallbacks: 2})
	got := r.Resolve([]models.SelectorCandidate{
		cand(models.LocatorCSS, ".a", 0.9),
		cand(models.LocatorCSS, " .a ", 0.8),
		cand(models.LocatorCSS, "   ", 0.99),
		cand(models.LocatorCSS, ".b", 0.7),
		cand(models.LocatorCSS, ".c", 0.6),
		cand(models.LocatorCSS, ".d", 0.5),
	})
	if got.Primary.Locator != ".a" {
		t.Fatalf("unexpected primary %+v", got.Primary)
	}
	if len(got.Fallbacks) != 2 || got.Fallbacks[0].Locator != ".b" || got.Fallbacks[1].Locator != ".c" {
		t.Fatalf("unexpected fallbacks %+v", got.Fallbacks)
	}
}

func TestResolveDoesNotMutateInput(t *testing.T) {
	r := NewResolver(nil, DefaultOptions())
	in := []models.SelectorCandidate{cand(models.LocatorCSS, ".b", 0.1), cand(models.LocatorID, "#a", 0.9)}
	r.Resolve(in)
	if in[0].Locator != ".b" || in[1].Locator != "#a" {
		t.Fatalf("input slice reordered: %+v", in)
	}
}

func TestResolveSynthesizesPlaceholder(t *testing.T) {
	r := NewResolver(nil, DefaultOptions())
	got := r.Resolve(nil)
	if !got.Synthesized || got.Primary.Locator != "//*" || got.Primary.Reliability != 0 {
		t.Fatalf("unexpected placeholder %+v", got)
	}
	if got.Fallbacks == nil || len(got.Fallbacks) != 0 {
		t.Fatalf("expected empty, non-nil fallbacks")
	}

	rec := models.InteractionRecord{Index: 4, Element: models.Element{Tag: "BUTTON"}}
	got = r.ResolveFor(rec)
	if got.Primary.Locator != "//button" {
		t.Fatalf("expected tag placeholder, got %s", got.Primary.Locator)
	}
	got = r.ResolveFor(models.InteractionRecord{Element: models.Element{Tag: "x]"}})
	if got.Primary.Locator != "//*" {
		t.Fatalf("invalid tags must fall back to //*, got %s", got.Primary.Locator)
	}
}

func TestResolvePrimaryHasMaximalReliability(t *testing.T) {
	r := NewResolver(nil, DefaultOptions())
	kinds := models.KnownLocatorKinds()
	for seed := 0; seed < 200; seed++ {
		var in []models.SelectorCandidate
		max := 0.0
		for i := 0; i < 1+seed%6; i++ {
			rel := float64((seed*7+i*13)%11) / 10
			if rel > 1 {
				rel = 1
			}
			if rel > max {
				max = rel
			}
			in = append(in, cand(kinds[(seed+i)%len(kinds)], string(rune('a'+i)), rel))
		}
		got := r.Resolve(in)
		if got.Primary.Reliability != max {
			t.Fatalf("seed %d: primary %v is not maximal %v", seed, got.Primary.Reliability, max)
		}
		for _, fb := range got.Fallbacks {
			if fb.Reliability > got.Primary.Reliability {
				t.Fatalf("seed %d: fallback outranks primary", seed)
			}
		}
	}
}
