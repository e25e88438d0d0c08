package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/pkg/catalog"
	"github.com/partnerforge/progression/pkg/challenge"
	challengeBuiltin "github.com/partnerforge/progression/pkg/challenge/builtin"
	"github.com/partnerforge/progression/pkg/pipeline"
	"github.com/partnerforge/progression/pkg/progression"
)

// InitChallengeRegistry registers a counter for every requirement type the
// catalog's challenges use.
//
// Steps to add a new requirement type:
// 1. Create its counter in pkg/challenge/builtin/ (see counters.go)
// 2. Register the counter type in pkg/challenge/builtin/init.go
// 3. Reference the type from a challenge in the catalog YAML
func InitChallengeRegistry(c *catalog.Catalog) (*challenge.Registry, error) {
	challengeBuiltin.RegisterCounterTypes()

	registry := challenge.NewRegistry()
	if err := challenge.RegisterCounters(registry, c.RequirementTypes()); err != nil {
		return nil, fmt.Errorf("failed to register challenge counters: %w", err)
	}

	logrus.Infof("registered %d challenge counters", registry.Count())
	return registry, nil
}

// InitPipeline builds the challenge evaluator and the pipeline manager on top of
// engine, after checking that every challenge can be counted.
func InitPipeline(engine *progression.Engine, registry *challenge.Registry) (*pipeline.Manager, *challenge.Evaluator, error) {
	if err := pipeline.ValidateWiring(registry, engine.Catalog()); err != nil {
		return nil, nil, fmt.Errorf("pipeline wiring validation failed: %w", err)
	}
	logrus.Info("pipeline wiring validation passed")

	evaluator := challenge.NewEvaluator(engine, registry)
	manager := pipeline.NewManager(engine, evaluator)
	logrus.Infof("initialized pipeline manager")

	return manager, evaluator, nil
}
