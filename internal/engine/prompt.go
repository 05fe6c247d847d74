package engine

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

const maxQuotedText = 80

func interactionPrompt(a analysis) string {
	var b strings.Builder
	writeJourney(&b, a.intent)

	b.WriteString("\n## Page Context\n")
	writeField(&b, "URL", a.rec.URL)
	writeField(&b, "Title", a.rec.PageTitle)
	fmt.Fprintf(&b, "Page type: %s (%s%% confidence)\n", a.page.Type, formatNumber(a.page.Confidence))
	fmt.Fprintf(&b, "Capabilities: %s\n", listOrNone(a.page.Capabilities))

	b.WriteString("\n## Business Context\n")
	fmt.Fprintf(&b, "Cart signal: %s\nPrice signal: %s\nVariant signal: %s\n",
		yesNo(a.signals.Cart), yesNo(a.signals.Price), yesNo(a.signals.Variant))

	b.WriteString("\n## Nearby Elements\n")
	if len(a.rec.Nearby) == 0 {
		b.WriteString("- none captured\n")
	}
	for _, n := range a.rec.Nearby {
		writeNearby(&b, n)
	}

	b.WriteString("\n## Target Element\n")
	writeField(&b, "Tag", strings.ToLower(a.rec.Element.Tag))
	if label := a.rec.Element.Label(); label != "" {
		fmt.Fprintf(&b, "Text: %s\n", quote(label))
	}
	fmt.Fprintf(&b, "Resolved selector: %s\n", describeCandidate(a.resolved.Primary))
	b.WriteString("Fallback selectors:\n")
	if len(a.resolved.Fallbacks) == 0 {
		b.WriteString("- none\n")
	}
	for _, fb := range a.resolved.Fallbacks {
		fmt.Fprintf(&b, "- %s\n", describeCandidate(fb))
	}

	b.WriteString("\nWhat is the next action and which selector should perform it?")
	return b.String()
}

func interactionCompletion(a analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Action: %s\n", describeAction(a.action))
	fmt.Fprintf(&b, "Selector: %s\n", a.resolved.Primary.Locator)
	fmt.Fprintf(&b, "Reasoning: %s\n", reasoning(a))
	fmt.Fprintf(&b, "Confidence: %s\n", formatNumber(a.metrics.Aggregate/100))
	fallbacks := make([]string, 0, len(a.resolved.Fallbacks))
	for _, fb := range a.resolved.Fallbacks {
		fallbacks = append(fallbacks, fb.Locator)
	}
	fmt.Fprintf(&b, "Fallbacks: %s", listOrNone(fallbacks))
	return b.String()
}

func reasoning(a analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "The shopper shows %s intent at the %s stage on a %s page",
		a.intent.Primary, a.intent.Stage, a.page.Type)
	if label := a.rec.Element.Label(); label != "" {
		fmt.Fprintf(&b, ", so %s %s is the expected step", verbPhrase(a.action.Verb), quote(label))
	}
	b.WriteString(". ")
	if a.resolved.Synthesized {
		b.WriteString("No captured locator was available, so the target falls back to a generic tag path with reliability 0.")
		return b.String()
	}
	fmt.Fprintf(&b, "The %s selector has reliability %s", a.resolved.Primary.Kind, formatNumber(a.resolved.Primary.Reliability))
	switch n := len(a.resolved.Fallbacks); n {
	case 0:
		b.WriteString(" and no fallbacks.")
	case 1:
		b.WriteString(" with 1 fallback.")
	default:
		fmt.Fprintf(&b, " with %d fallbacks.", n)
	}
	return b.String()
}

func sequencePrompt(seq models.ShoppingSequence, members []analysis, dominant models.PageContext) string {
	var b strings.Builder
	terminal := members[len(members)-1]
	writeJourney(&b, terminal.intent)

	b.WriteString("\n## Flow\n")
	fmt.Fprintf(&b, "Flow type: %s\n", seq.FlowType)
	fmt.Fprintf(&b, "Steps: %d (interactions %d-%d)\n", seq.Len(), seq.Start, seq.End)
	fmt.Fprintf(&b, "Dominant page: %s (%s%% confidence)\n", dominant.Type, formatNumber(dominant.Confidence))

	b.WriteString("\n## Steps\n")
	for i, step := range seq.Steps {
		a := members[step.Index-seq.Start]
		fmt.Fprintf(&b, "%d. [%s] %s on %s page", i+1, step.Role, describeStep(a), a.page.Type)
		if step.Field != "" {
			fmt.Fprintf(&b, "; set %s=%s", step.Field, step.Value)
		}
		b.WriteByte('\n')
	}

	b.WriteString("\n## Configuration\n")
	fields := seq.ConfigurationFields()
	if len(fields) == 0 {
		b.WriteString("- none captured\n")
	}
	for _, f := range fields {
		fmt.Fprintf(&b, "- %s: %s\n", f, seq.Configuration[f])
	}

	b.WriteString("\n## Status\n")
	if seq.Complete() {
		fmt.Fprintf(&b, "Complete: the flow reached a %s trigger.\n", seq.EndFamily)
	} else {
		b.WriteString("Incomplete: no end trigger followed the last flow step.\n")
	}

	b.WriteString("\nWhat is the terminal action of this flow and what configuration is in place?")
	return b.String()
}

func sequenceCompletion(seq models.ShoppingSequence, terminal analysis) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Terminal action: %s\n", describeAction(terminal.action))
	fmt.Fprintf(&b, "Selector: %s\n", terminal.resolved.Primary.Locator)
	fields := seq.ConfigurationFields()
	pairs := make([]string, 0, len(fields))
	for _, f := range fields {
		pairs = append(pairs, f+"="+seq.Configuration[f])
	}
	fmt.Fprintf(&b, "Configuration: %s\n", listOrNone(pairs))
	if seq.Complete() {
		fmt.Fprintf(&b, "Outcome: complete (%s)", seq.EndFamily)
	} else {
		b.WriteString("Outcome: incomplete")
	}
	return b.String()
}

func writeJourney(b *strings.Builder, intent models.UserIntent) {
	b.WriteString("## Goal\n")
	fmt.Fprintf(b, "Shopping journey: %s intent (%s%% confidence), %s stage\n",
		intent.Primary, formatNumber(intent.Confidence), intent.Stage)
	fmt.Fprintf(b, "Urgency: %s\nPrice sensitivity: %s\n", intent.Urgency, intent.PriceSensitivity)
}

func writeField(b *strings.Builder, name, value string) {
	if value = strings.TrimSpace(value); value != "" {
		fmt.Fprintf(b, "%s: %s\n", name, value)
	}
}

func writeNearby(b *strings.Builder, n models.NearbyElement) {
	b.WriteString("- ")
	if n.Direction != "" {
		b.WriteString(n.Direction)
		b.WriteString(": ")
	}
	if text := strings.TrimSpace(n.Text); text != "" {
		b.WriteString(quote(text))
	} else {
		b.WriteString("(no text)")
	}
	var details []string
	if n.Tag != "" {
		details = append(details, strings.ToLower(n.Tag))
	}
	if n.Distance > 0 {
		details = append(details, formatNumber(n.Distance)+"px")
	}
	if n.Interactive {
		details = append(details, "interactive")
	}
	if len(details) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(details, ", "))
		b.WriteByte(')')
	}
	b.WriteByte('\n')
}

// describeStep phrases an interaction the way a reproduction script would.
func describeStep(a analysis) string {
	label := quote(a.rec.Element.Label())
	if label == "" {
		label = a.resolved.Primary.Locator
	}
	switch a.action.Verb {
	case models.ActionNavigate:
		return "Navigate to: " + a.action.Target
	case models.ActionFill:
		return fmt.Sprintf("Type %q into: %s", a.action.Value, label)
	case models.ActionSelect:
		return fmt.Sprintf("Select %q from: %s", a.action.Value, label)
	default:
		return "Click: " + label
	}
}

func describeAction(action models.ActionDescriptor) string {
	switch action.Verb {
	case models.ActionFill, models.ActionSelect:
		return fmt.Sprintf("%s %s with %q", action.Verb, action.Target, action.Value)
	default:
		return fmt.Sprintf("%s %s", action.Verb, action.Target)
	}
}

func describeCandidate(c models.SelectorCandidate) string {
	kind := string(c.Kind)
	if kind == "" {
		kind = "unknown"
	}
	return fmt.Sprintf("%s (%s, reliability %s)", c.Locator, kind, formatNumber(c.Reliability))
}

func verbPhrase(v models.ActionVerb) string {
	switch v {
	case models.ActionFill:
		return "filling"
	case models.ActionSelect:
		return "choosing from"
	case models.ActionNavigate:
		return "navigating via"
	default:
		return "clicking"
	}
}

func quote(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	if r := []rune(s); len(r) > maxQuotedText {
		s = string(r[:maxQuotedText]) + "..."
	}
	return strconv.Quote(s)
}

func listOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

// formatNumber renders at most two decimals without trailing zeros.
func formatNumber(v float64) string {
	return strconv.FormatFloat(math.Round(v*100)/100, 'f', -1, 64)
}
