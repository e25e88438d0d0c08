package challenge

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// CounterFactory creates the counter for one requirement type.
type CounterFactory func() (Counter, error)

var (
	factoriesMu sync.RWMutex
	// factories stores registered counter factories by requirement type
	factories = make(map[string]CounterFactory)
)

// RegisterCounterType registers a factory for a requirement type.
// This allows other packages to add requirement types without creating import cycles.
func RegisterCounterType(requirementType string, factory CounterFactory) {
	factoriesMu.Lock()
	defer factoriesMu.Unlock()

	factories[requirementType] = factory
	logrus.Debugf("registered challenge counter type: %s", requirementType)
}

// CreateCounter creates the counter for a requirement type.
// Returns an error if the type has no registered factory.
func CreateCounter(requirementType string) (Counter, error) {
	factoriesMu.RLock()
	factory, exists := factories[requirementType]
	factoriesMu.RUnlock()

	if !exists {
		return nil, fmt.Errorf("unknown requirement type: %s", requirementType)
	}
	return factory()
}

// RegisterCounters creates a counter for each requirement type and adds it to registry.
// Any type without a factory is an error, so a catalog cannot reference a requirement
// nothing can count.
func RegisterCounters(registry *Registry, requirementTypes []string) error {
	for _, t := range requirementTypes {
		if registry.Get(t) != nil {
			continue
		}
		c, err := CreateCounter(t)
		if err != nil {
			return fmt.Errorf("failed to create counter %s: %w", t, err)
		}
		if err := registry.Register(c); err != nil {
			return fmt.Errorf("failed to register counter %s: %w", t, err)
		}
	}

	logrus.Infof("registered %d challenge counters", registry.Count())
	return nil
}
