// Package handler exposes the progression operations over HTTP.
package handler

import (
	"github.com/partnerforge/progression/pkg/ack"
	"github.com/partnerforge/progression/pkg/challenge"
	"github.com/partnerforge/progression/pkg/leaderboard"
	"github.com/partnerforge/progression/pkg/pipeline"
	"github.com/partnerforge/progression/pkg/progression"
	"github.com/partnerforge/progression/pkg/store"
)

// Handler serves the progression API.
type Handler struct {
	engine       *progression.Engine
	manager      *pipeline.Manager
	evaluator    *challenge.Evaluator
	leaderboard  *leaderboard.Service
	acks         *ack.Service
	health       *store.HealthChecker
	houseAccount string
}

// Dependencies are the services a Handler dispatches to.
type Dependencies struct {
	Engine      *progression.Engine
	Manager     *pipeline.Manager
	Evaluator   *challenge.Evaluator
	Leaderboard *leaderboard.Service
	Acks        *ack.Service
	Health      *store.HealthChecker

	// HouseAccount is the business name left out of leaderboards by default.
	HouseAccount string
}

// New creates a new Handler.
func New(deps Dependencies) *Handler {
	return &Handler{
		engine:       deps.Engine,
		manager:      deps.Manager,
		evaluator:    deps.Evaluator,
		leaderboard:  deps.Leaderboard,
		acks:         deps.Acks,
		health:       deps.Health,
		houseAccount: deps.HouseAccount,
	}
}
