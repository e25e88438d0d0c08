package pipeline

import (
	"fmt"
	"strings"

	"github.com/partnerforge/progression/pkg/catalog"
	"github.com/partnerforge/progression/pkg/challenge"
)

// ValidateWiring validates that the catalog is fully served by the registered counters.
// It checks that:
// - Every challenge requirement type has a registered counter
// - Every automatic lesson can be completed by the login sweep
//
// This catches common mistakes like:
// - Forgetting to register a counter type factory
// - Typos in requirement types
func ValidateWiring(registry *challenge.Registry, c *catalog.Catalog) error {
	var errors []string

	for _, ch := range c.Challenges {
		if registry.Get(ch.Requirement.Type) == nil {
			errors = append(errors, fmt.Sprintf("challenge '%s' requires '%s' but no counter is registered",
				ch.ID, ch.Requirement.Type))
		}
	}

	for _, l := range c.AutoLessons() {
		if l.Auto.Kind != catalog.AutoLoginDays && l.Auto.Kind != catalog.AutoLoginStreak {
			errors = append(errors, fmt.Sprintf("lesson '%s' has auto kind '%s' the login sweep cannot evaluate",
				l.ID, l.Auto.Kind))
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("pipeline wiring validation failed:\n  - %s", strings.Join(errors, "\n  - "))
	}

	return nil
}
