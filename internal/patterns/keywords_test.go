package patterns

import (
	"testing"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

func TestKeywordSetMatchesDistinctPhrases(t *testing.T) {
	set := NewKeywordSet([]string{"Add to Cart", "cart", "cart", " "})
	if set.Len() != 2 {
		t.Fatalf("expected 2 keywords after dedupe, got %d", set.Len())
	}
	got := set.Matches("Please ADD   to cart now, cart cart")
	if len(got) != 2 || got[0] != "add to cart" || got[1] != "cart" {
		t.Fatalf("unexpected matches %v", got)
	}
	if set.Has("nothing here") {
		t.Fatalf("expected no match")
	}
}

func TestKeywordSetRespectsWordBoundaries(t *testing.T) {
	set := NewKeywordSet([]string{"cart", "sale", "size", "$", "% off"})
	for _, text := range []string{"Cartoon print socks", "Wholesale enquiries", "Resize image", "/products/cartier-love-ring"} {
		if got := set.Matches(text); len(got) != 0 {
			t.Fatalf("expected no match in %q, got %v", text, got)
		}
	}
	cases := map[string]string{
		"https://shop.example.com/cart": "cart",
		"Summer SALE!":                  "sale",
		"size: M":                       "size",
		"$24.00":                        "$",
		"20% off today":                 "% off",
		"cartoon socks, view cart":      "cart",
	}
	for text, want := range cases {
		got := set.Matches(text)
		if len(got) != 1 || got[0] != want {
			t.Fatalf("Matches(%q) = %v, want [%s]", text, got, want)
		}
	}
}

func TestDefaultSignalsIgnoreEmbeddedWords(t *testing.T) {
	tables := mustDefaultTables(t)
	if tables.Cart.Has("Cartoon print socks") || tables.Cart.Has("https://shop.example.com/products/cartier-love-ring") {
		t.Fatal("cart signal must not fire inside other words")
	}
	if tables.PriceSignals.Has("Wholesale enquiries") {
		t.Fatal("price signal must not fire inside wholesale")
	}
	if tables.Variant.Has("Resize image") {
		t.Fatal("variant signal must not fire inside resize")
	}
	for _, intent := range tables.Intents {
		if intent.Intent == models.IntentSearch && intent.Keywords.Has("Pathfinder boots") {
			t.Fatal("search intent must not fire inside pathfinder")
		}
	}
	if !tables.Cart.Has("Add to cart") || !tables.PriceSignals.Has("$24.00") || !tables.Variant.Has("Select a size") {
		t.Fatal("expected whole-word signals to match")
	}
}

func TestNilKeywordSetIsEmpty(t *testing.T) {
	var set *KeywordSet
	if set.Count("cart") != 0 || set.Len() != 0 {
		t.Fatalf("nil set should match nothing")
	}
	if NewKeywordSet(nil).Has("anything") {
		t.Fatalf("empty set should match nothing")
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("  Shop\tALL \n"); got != "shop all" {
		t.Fatalf("unexpected normalisation %q", got)
	}
}
