package selector

import (
	"strings"

	"github.com/miradorstack/shoptrace-synth/internal/models"
)

// ActionFor maps an interaction onto an abstract verb targeting the resolved
// selector. Navigations target the destination URL instead.
func ActionFor(rec models.InteractionRecord, resolved models.ResolvedSelector) models.ActionDescriptor {
	target := resolved.Primary.Locator
	switch rec.Kind {
	case models.KindNavigation:
		return models.ActionDescriptor{Verb: models.ActionNavigate, Target: rec.DestinationURL()}
	case models.KindInput:
		value := rec.InputValue()
		if strings.EqualFold(strings.TrimSpace(rec.Element.Tag), "select") {
			return models.ActionDescriptor{Verb: models.ActionSelect, Target: target, Value: value}
		}
		return models.ActionDescriptor{Verb: models.ActionFill, Target: target, Value: value}
	default:
		// click and focus both become a click on the target.
		return models.ActionDescriptor{Verb: models.ActionClick, Target: target}
	}
}
