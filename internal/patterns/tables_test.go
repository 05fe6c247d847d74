package patterns

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/utils"
)

func mustDefaultTables(t *testing.T) *Tables {
	t.Helper()
	pack, err := Default()
	if err != nil {
		t.Fatalf("load default pack: %v", err)
	}
	tables, err := pack.Compile()
	if err != nil {
		t.Fatalf("compile default pack: %v", err)
	}
	return tables
}

func TestDefaultPackCompiles(t *testing.T) {
	tables := mustDefaultTables(t)
	if len(tables.PageTypes) != 6 {
		t.Fatalf("expected 6 page types, got %d", len(tables.PageTypes))
	}
	if len(tables.Intents) != len(models.KnownIntents()) {
		t.Fatalf("expected every intent to be present, got %d", len(tables.Intents))
	}
	if tables.Intents[0].Intent != models.IntentSearch {
		t.Fatalf("expected declaration order to be preserved")
	}
	if len(tables.FlowStarts) == 0 || len(tables.FlowEnds) == 0 || len(tables.ConfigFields) == 0 {
		t.Fatalf("expected flow tables to be populated")
	}
}

func TestFlowFamiliesMatchCaseInsensitively(t *testing.T) {
	tables := mustDefaultTables(t)
	browse := tables.FlowStarts[1]
	if browse.Family != "browse" {
		t.Fatalf("expected browse family, got %s", browse.Family)
	}
	if !browse.Matches("https://shop.example.com/women/sale/", "") {
		t.Fatalf("expected category url to start browse flow")
	}
	if !browse.Matches("", NormalizeText("  SALE ")) {
		t.Fatalf("expected sale text to start browse flow")
	}
	cart := tables.FlowEnds[0]
	if !cart.Matches("", NormalizeText("Add to Bag")) {
		t.Fatalf("expected add to bag to end a flow")
	}
	if !tables.ProductURL.Match("https://shop.example.com/products/cotton-tee") {
		t.Fatalf("expected product url to match")
	}
}

func TestConfigFieldValues(t *testing.T) {
	tables := mustDefaultTables(t)
	size := tables.ConfigFields[0]
	if !size.AcceptsValue("M") || !size.AcceptsValue("10.5") {
		t.Fatalf("expected size values to be accepted")
	}
	if size.AcceptsValue("size guide") {
		t.Fatalf("expected descriptive text to be rejected as a size")
	}
	color := tables.ConfigFields[1]
	if !color.AcceptsValue("Navy") {
		t.Fatalf("fields without value patterns accept any non-empty value")
	}
	if color.AcceptsValue("") {
		t.Fatalf("empty values are never accepted")
	}
}

func TestCompileRejectsInvalidPacks(t *testing.T) {
	cases := map[string]string{
		"bad regex": `
page_types:
  - name: product
    url: ['(']
flows:
  start: [{family: browse, url: ['/c/']}]
  end: [{family: cart, text: ['add to cart']}]
`,
		"unknown page type": `
page_types:
  - name: landing
flows:
  start: [{family: browse, url: ['/c/']}]
  end: [{family: cart, text: ['add to cart']}]
`,
		"unknown intent": `
page_types: [{name: product}]
intents: [{name: wander}]
flows:
  start: [{family: browse, url: ['/c/']}]
  end: [{family: cart, text: ['add to cart']}]
`,
		"bad selector": `
page_types: [{name: product}]
capabilities: [{name: has-cart, selectors: ['[[']}]
flows:
  start: [{family: browse, url: ['/c/']}]
  end: [{family: cart, text: ['add to cart']}]
`,
		"no end family": `
page_types: [{name: product}]
flows:
  start: [{family: browse, url: ['/c/']}]
`,
		"duplicate family": `
page_types: [{name: product}]
flows:
  start: [{family: browse, url: ['/c/']}, {family: browse, url: ['/sale/']}]
  end: [{family: cart, text: ['add to cart']}]
`,
	}
	for name, doc := range cases {
		pack, err := Parse([]byte(doc))
		if err != nil {
			t.Fatalf("%s: parse: %v", name, err)
		}
		if _, err := pack.Compile(); !errors.Is(err, utils.ErrConfiguration) {
			t.Fatalf("%s: expected configuration error, got %v", name, err)
		}
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.yaml")
	doc := `
version: test
page_types: [{name: cart, url: ['/basket']}]
flows:
  start: [{family: search, url: ['/search']}]
  end: [{family: checkout, text: ['^checkout$']}]
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write pack: %v", err)
	}
	pack, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	tables, err := pack.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	if tables.Version != "test" || tables.PageTypes[0].Type != models.PageCart {
		t.Fatalf("unexpected tables: %+v", tables.PageTypes)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); !errors.Is(err, ErrPackNotFound) {
		t.Fatalf("expected ErrPackNotFound, got %v", err)
	}
}
