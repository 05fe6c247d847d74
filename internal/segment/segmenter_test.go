package segment

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/miradorstack/shoptrace-synth/internal/models"
	"github.com/miradorstack/shoptrace-synth/internal/patterns"
)

const shop = "https://shop.example.com"

func newTestSegmenter(t *testing.T, lookahead int) *Segmenter {
	t.Helper()
	pack, err := patterns.Default()
	if err != nil {
		t.Fatalf("default pack: %v", err)
	}
	tables, err := pack.Compile()
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	return New(nil, tables, Options{MaxLookahead: lookahead})
}

type step struct {
	kind  models.InteractionKind
	url   string
	text  string
	attrs map[string]string
	value string
	to    string
}

func build(steps ...step) []models.InteractionRecord {
	base := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	out := make([]models.InteractionRecord, len(steps))
	for i, s := range steps {
		kind := s.kind
		if kind == "" {
			kind = models.KindClick
		}
		rec := models.InteractionRecord{
			Index:     i,
			Kind:      kind,
			Timestamp: base.Add(time.Duration(i) * 4 * time.Second),
			URL:       s.url,
			Element:   models.Element{Tag: "a", Text: s.text, Attributes: s.attrs},
		}
		switch kind {
		case models.KindInput:
			rec.Payload = models.InputPayload{Value: s.value}
		case models.KindNavigation:
			rec.Payload = models.NavigationPayload{FromURL: s.url, ToURL: s.to}
		case models.KindFocus:
			rec.Payload = models.FocusPayload{}
		default:
			rec.Payload = models.ClickPayload{}
		}
		out[i] = rec
	}
	return out
}

func idle(n int) []step {
	out := make([]step, n)
	for i := range out {
		out[i] = step{url: shop + "/about-us", text: fmt.Sprintf("paragraph %d", i)}
	}
	return out
}

func concat(parts ...[]step) []step {
	var out []step
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

func checkPartition(t *testing.T, seg models.Segmentation, n int) {
	t.Helper()
	owner := make([]int, n)
	for i := range owner {
		owner[i] = -2
	}
	prevEnd := -1
	for si, seq := range seg.Sequences {
		if seq.Index != si {
			t.Fatalf("sequence %d has index %d", si, seq.Index)
		}
		if seq.Start <= prevEnd || seq.End < seq.Start {
			t.Fatalf("sequence %d [%d,%d] overlaps or is inverted", si, seq.Start, seq.End)
		}
		prevEnd = seq.End
		if len(seq.Interactions) != seq.Len() || len(seq.Steps) != seq.Len() {
			t.Fatalf("sequence %d: %d interactions, %d steps, len %d", si, len(seq.Interactions), len(seq.Steps), seq.Len())
		}
		for k, st := range seq.Steps {
			if st.Index != seq.Start+k {
				t.Fatalf("sequence %d: step %d has index %d", si, k, st.Index)
			}
		}
		for i := seq.Start; i <= seq.End; i++ {
			if owner[i] != -2 {
				t.Fatalf("interaction %d assigned twice", i)
			}
			owner[i] = si
		}
	}
	for _, i := range seg.Unsequenced {
		if owner[i] != -2 {
			t.Fatalf("interaction %d is both sequenced and unsequenced", i)
		}
		owner[i] = -1
	}
	for i := 0; i < seg.Walked; i++ {
		if owner[i] == -2 {
			t.Fatalf("interaction %d not assigned", i)
		}
	}
	for i := seg.Walked; i < n; i++ {
		if owner[i] != -2 {
			t.Fatalf("interaction %d past the walked prefix was assigned", i)
		}
	}
}

func TestScenarioBrowseToCart(t *testing.T) {
	s := newTestSegmenter(t, 0)
	records := build(
		step{url: shop + "/sale", text: "Sale"},
		step{url: shop + "/products/cotton-t-shirt", text: "Cotton T-shirt"},
		step{url: shop + "/products/cotton-t-shirt", text: "M", attrs: map[string]string{"data-option": "size"}},
		step{url: shop + "/products/cotton-t-shirt", text: "Add to bag"},
	)
	seg := s.Segment(context.Background(), records)
	checkPartition(t, seg, len(records))
	if len(seg.Sequences) != 1 || len(seg.Unsequenced) != 0 {
		t.Fatalf("expected one sequence and nothing unsequenced, got %+v", seg)
	}
	seq := seg.Sequences[0]
	if seq.Len() != 4 || !seq.Complete() || seq.FlowType != "browse-to-cart" {
		t.Fatalf("unexpected sequence %+v", seq)
	}
	if len(seq.Configuration) != 1 || seq.Configuration["size"] != "M" {
		t.Fatalf("expected {size: M}, got %v", seq.Configuration)
	}
	roles := []models.StepRole{models.StepStart, models.StepContinue, models.StepContinue, models.StepEnd}
	for i, r := range roles {
		if seq.Steps[i].Role != r {
			t.Fatalf("step %d: want %s got %s", i, r, seq.Steps[i].Role)
		}
	}
	if seq.Steps[2].Field != "size" {
		t.Fatalf("expected step 2 to record the size update")
	}
	if seg.Walked != 4 || seg.Partial {
		t.Fatalf("expected full walk, got walked=%d partial=%v", seg.Walked, seg.Partial)
	}
}

func TestScenarioLookaheadTimeout(t *testing.T) {
	s := newTestSegmenter(t, 0)
	records := build(concat([]step{{url: shop + "/sale", text: "Sale"}}, idle(19))...)
	seg := s.Segment(context.Background(), records)
	checkPartition(t, seg, len(records))
	if len(seg.Sequences) != 1 {
		t.Fatalf("expected one sequence, got %d", len(seg.Sequences))
	}
	seq := seg.Sequences[0]
	if seq.Complete() || seq.FlowType != "browse-incomplete" || seq.Start != 0 || seq.End != 0 {
		t.Fatalf("expected incomplete [0,0], got %+v", seq)
	}
	if len(seg.Unsequenced) != 19 || seg.Unsequenced[0] != 1 || seg.Unsequenced[18] != 19 {
		t.Fatalf("expected held interactions re-walked as unsequenced, got %v", seg.Unsequenced)
	}
}

func TestLookaheadWindowBoundary(t *testing.T) {
	s := newTestSegmenter(t, 0)
	end := step{url: shop + "/products/tee", text: "Add to cart"}

	// 14 idle interactions still fit inside the window.
	records := build(concat([]step{{url: shop + "/sale", text: "Sale"}}, idle(14), []step{end})...)
	seg := s.Segment(context.Background(), records)
	checkPartition(t, seg, len(records))
	if len(seg.Sequences) != 1 || !seg.Sequences[0].Complete() || seg.Sequences[0].Len() != 16 {
		t.Fatalf("expected a complete sequence of 16, got %+v", seg.Sequences)
	}
	if seg.Sequences[0].Steps[1].Role != models.StepIntermediate {
		t.Fatalf("held interactions should become intermediate steps")
	}

	// The 15th idle interaction closes the sequence before the end trigger arrives.
	records = build(concat([]step{{url: shop + "/sale", text: "Sale"}}, idle(15), []step{end})...)
	seg = s.Segment(context.Background(), records)
	checkPartition(t, seg, len(records))
	if len(seg.Sequences) != 1 || seg.Sequences[0].Complete() || seg.Sequences[0].End != 0 {
		t.Fatalf("expected incomplete [0,0], got %+v", seg.Sequences)
	}
	if len(seg.Unsequenced) != 16 {
		t.Fatalf("expected 16 unsequenced, got %v", seg.Unsequenced)
	}
}

func TestLookaheadIsConfigurable(t *testing.T) {
	s := newTestSegmenter(t, 3)
	records := build(concat([]step{{url: shop + "/sale", text: "Sale"}, {url: shop + "/products/a", text: "A"}}, idle(3))...)
	seg := s.Segment(context.Background(), records)
	checkPartition(t, seg, len(records))
	if len(seg.Sequences) != 1 || seg.Sequences[0].End != 1 || seg.Sequences[0].Complete() {
		t.Fatalf("expected incomplete [0,1], got %+v", seg.Sequences)
	}
}

func TestEndOfStreamClosesIncomplete(t *testing.T) {
	s := newTestSegmenter(t, 0)
	records := build(
		step{url: shop + "/search?q=tee", text: ""},
		step{url: shop + "/products/tee"},
		step{url: shop + "/about-us", text: "story"},
		step{url: shop + "/women/", text: "Women"},
		step{url: shop + "/about-us", text: "team"},
	)
	seg := s.Segment(context.Background(), records)
	checkPartition(t, seg, len(records))
	if len(seg.Sequences) != 2 {
		t.Fatalf("expected the held category visit to start a new sequence, got %+v", seg.Sequences)
	}
	first, second := seg.Sequences[0], seg.Sequences[1]
	if first.FlowType != "search-incomplete" || first.Start != 0 || first.End != 1 {
		t.Fatalf("unexpected first sequence %+v", first)
	}
	if second.FlowType != "browse-incomplete" || second.Start != 3 || second.End != 3 {
		t.Fatalf("unexpected second sequence %+v", second)
	}
	if len(seg.Unsequenced) != 2 || seg.Unsequenced[0] != 2 || seg.Unsequenced[1] != 4 {
		t.Fatalf("unexpected unsequenced %v", seg.Unsequenced)
	}
}

func TestStartFamilies(t *testing.T) {
	s := newTestSegmenter(t, 0)
	cases := []struct {
		name   string
		start  step
		family string
	}{
		{"search url", step{url: shop + "/search?q=dress"}, "search"},
		{"search query param", step{url: shop + "/shop?query=dress"}, "search"},
		{"search navigation", step{kind: models.KindNavigation, url: shop + "/", to: shop + "/search?q=tee"}, "search"},
		{"browse url", step{url: shop + "/collections/summer"}, "browse"},
		{"browse text", step{url: shop + "/", text: "New Arrivals"}, "browse"},
	}
	for _, tc := range cases {
		records := build(tc.start, step{url: shop + "/products/x", text: "Buy now"})
		seg := s.Segment(context.Background(), records)
		checkPartition(t, seg, len(records))
		if len(seg.Sequences) != 1 {
			t.Fatalf("%s: expected one sequence, got %+v", tc.name, seg)
		}
		if got := seg.Sequences[0].StartFamily; got != tc.family {
			t.Fatalf("%s: want family %s got %s", tc.name, tc.family, got)
		}
		if got := seg.Sequences[0].FlowType; got != tc.family+"-to-checkout" {
			t.Fatalf("%s: unexpected flow type %s", tc.name, got)
		}
	}
}

func TestEndFamilies(t *testing.T) {
	s := newTestSegmenter(t, 0)
	cases := map[string]string{
		"Add to Cart":         "cart",
		"add to basket":       "cart",
		"Checkout":            "checkout",
		"Buy it now":          "checkout",
		"Place my order":      "checkout",
		"Proceed to checkout": "checkout",
	}
	for text, family := range cases {
		records := build(step{url: shop + "/sale", text: "Sale"}, step{url: shop + "/cart", text: text})
		seg := s.Segment(context.Background(), records)
		if len(seg.Sequences) != 1 || seg.Sequences[0].EndFamily != family || !seg.Sequences[0].Complete() {
			t.Fatalf("%q: expected %s end, got %+v", text, family, seg.Sequences)
		}
	}
}

func TestEndTriggerIgnoredWhileIdle(t *testing.T) {
	s := newTestSegmenter(t, 0)
	records := build(step{url: shop + "/products/a", text: "Add to cart"}, step{url: shop + "/about-us", text: "Checkout"})
	seg := s.Segment(context.Background(), records)
	checkPartition(t, seg, len(records))
	if len(seg.Sequences) != 0 || len(seg.Unsequenced) != 2 {
		t.Fatalf("expected everything unsequenced, got %+v", seg)
	}
}

func TestContinuationTriggers(t *testing.T) {
	s := newTestSegmenter(t, 0)
	cases := []struct {
		name  string
		cont  step
		field string
		value string
	}{
		{"product path", step{url: shop + "/products/tee"}, "", ""},
		{"short product path", step{url: shop + "/p/12345"}, "", ""},
		{"product suffix", step{url: shop + "/tee-p-991"}, "", ""},
		{"product navigation", step{kind: models.KindNavigation, url: shop + "/women/", to: shop + "/dp/B0001"}, "", ""},
		{"size from text", step{url: shop + "/quick-view", text: "L", attrs: map[string]string{"class": "size-option"}}, "size", "L"},
		{"color from data-value", step{url: shop + "/quick-view", attrs: map[string]string{"class": "swatch", "data-value": "Navy"}}, "color", "Navy"},
		{"quantity from input", step{kind: models.KindInput, url: shop + "/quick-view", attrs: map[string]string{"name": "qty"}, value: "2"}, "quantity", "2"},
		{"variant from aria", step{url: shop + "/quick-view", attrs: map[string]string{"data-role": "variant", "aria-label": "Slim"}}, "variant", "Slim"},
	}
	for _, tc := range cases {
		records := build(concat([]step{{url: shop + "/sale", text: "Sale"}}, idle(14), []step{tc.cont}, idle(14))...)
		seg := s.Segment(context.Background(), records)
		checkPartition(t, seg, len(records))
		if len(seg.Sequences) != 1 || seg.Sequences[0].End != 15 {
			t.Fatalf("%s: expected continuation to extend the sequence to 15, got %+v", tc.name, seg.Sequences)
		}
		last := seg.Sequences[0].Steps[15]
		if last.Role != models.StepContinue || last.Field != tc.field || last.Value != tc.value {
			t.Fatalf("%s: unexpected continuation step %+v", tc.name, last)
		}
		if tc.field != "" && seg.Sequences[0].Configuration[tc.field] != tc.value {
			t.Fatalf("%s: configuration not updated: %v", tc.name, seg.Sequences[0].Configuration)
		}
	}
}

func TestConfigurationLastWriteWins(t *testing.T) {
	s := newTestSegmenter(t, 0)
	size := map[string]string{"data-option": "size"}
	records := build(
		step{url: shop + "/sale", text: "Sale"},
		step{url: shop + "/products/tee", text: "S", attrs: size},
		step{url: shop + "/products/tee", text: "XL", attrs: size},
		step{url: shop + "/products/tee", text: "Size guide", attrs: size},
		step{url: shop + "/products/tee", text: "Add to bag"},
	)
	seg := s.Segment(context.Background(), records)
	if got := seg.Sequences[0].Configuration["size"]; got != "XL" {
		t.Fatalf("expected last accepted size XL, got %q", got)
	}
}

func TestStyleAttributeIsNotAHint(t *testing.T) {
	s := newTestSegmenter(t, 0)
	records := build(
		step{url: shop + "/sale", text: "Sale"},
		step{url: shop + "/about-us", text: "Red", attrs: map[string]string{"style": "color: red"}},
	)
	seg := s.Segment(context.Background(), records)
	if len(seg.Sequences) != 1 || seg.Sequences[0].End != 0 {
		t.Fatalf("inline styles must not count as configuration updates: %+v", seg.Sequences)
	}
}

type countdownCtx struct {
	context.Context
	remaining int
}

func (c *countdownCtx) Err() error {
	if c.remaining <= 0 {
		return context.Canceled
	}
	c.remaining--
	return nil
}

func TestCancellationKeepsClosedSequences(t *testing.T) {
	s := newTestSegmenter(t, 0)
	records := build(
		step{url: shop + "/sale", text: "Sale"},
		step{url: shop + "/products/a", text: "Add to cart"},
		step{url: shop + "/about-us"},
		step{url: shop + "/sale", text: "Sale"},
		step{url: shop + "/products/b"},
		step{url: shop + "/products/b", text: "Add to cart"},
	)
	ctx := &countdownCtx{Context: context.Background(), remaining: 5}
	seg := s.Segment(ctx, records)
	if !seg.Partial {
		t.Fatalf("expected partial segmentation")
	}
	if len(seg.Sequences) != 1 || seg.Walked != 3 {
		t.Fatalf("expected the closed sequence only and walked=3, got %d sequences walked=%d", len(seg.Sequences), seg.Walked)
	}
	checkPartition(t, seg, len(records))

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	seg = s.Segment(cancelled, records)
	if !seg.Partial || seg.Walked != 0 || len(seg.Sequences) != 0 || len(seg.Unsequenced) != 0 {
		t.Fatalf("expected empty partial result, got %+v", seg)
	}
}

func TestPartitionProperty(t *testing.T) {
	s := newTestSegmenter(t, 4)
	palette := []step{
		{url: shop + "/sale", text: "Sale"},
		{url: shop + "/search?q=boots"},
		{url: shop + "/products/boot", text: "Boot"},
		{url: shop + "/products/boot", text: "42", attrs: map[string]string{"data-option": "size"}},
		{url: shop + "/products/boot", text: "Add to bag"},
		{url: shop + "/about-us", text: "Story"},
		{url: shop + "/cart", text: "Checkout"},
		{kind: models.KindFocus, url: shop + "/about-us"},
	}
	for seed := 1; seed <= 300; seed++ {
		n := seed % 40
		steps := make([]step, n)
		x := seed
		for i := range steps {
			x = (x*1103515245 + 12345) & 0x7fffffff
			steps[i] = palette[x%len(palette)]
		}
		records := build(steps...)
		seg := s.Segment(context.Background(), records)
		if seg.Walked != n || seg.Partial {
			t.Fatalf("seed %d: expected a full walk", seed)
		}
		checkPartition(t, seg, n)
	}
}

func TestSegmentIsDeterministic(t *testing.T) {
	s := newTestSegmenter(t, 0)
	records := build(concat(
		[]step{{url: shop + "/sale", text: "Sale"}, {url: shop + "/products/a", text: "red", attrs: map[string]string{"class": "swatch", "title": "Red"}}},
		idle(3),
		[]step{{url: shop + "/products/a", text: "Add to bag"}},
	)...)
	a := s.Segment(context.Background(), records)
	b := s.Segment(context.Background(), records)
	if fmt.Sprintf("%+v", a) != fmt.Sprintf("%+v", b) {
		t.Fatalf("segmentation differs between runs")
	}
}
