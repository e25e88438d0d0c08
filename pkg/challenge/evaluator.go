package challenge

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/pkg/calendar"
	"github.com/partnerforge/progression/pkg/catalog"
	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/progression"
	"github.com/partnerforge/progression/pkg/store"
)

// Evaluator completes a seller's weekly challenges once their requirement is met.
type Evaluator struct {
	engine   *progression.Engine
	registry *Registry
}

// NewEvaluator creates an evaluator that counts with registry and awards through engine.
func NewEvaluator(engine *progression.Engine, registry *Registry) *Evaluator {
	return &Evaluator{
		engine:   engine,
		registry: registry,
	}
}

// WeekNumber returns the seller's onboarding week, 1 for the week the account was
// created in. Weeks follow the engine's Sunday-based calendar.
func (e *Evaluator) WeekNumber(acc *model.Account) int {
	return calendar.WeeksBetween(acc.CreatedAt, e.engine.Now(), e.engine.Location()) + 1
}

// ActiveChallenges returns the challenges of the seller's current week and rank.
// It is empty once the onboarding weeks are over.
func (e *Evaluator) ActiveChallenges(acc *model.Account) []catalog.Challenge {
	week := e.WeekNumber(acc)
	if week > catalog.MaxWeekNumber {
		return nil
	}
	return e.engine.Catalog().ActiveChallenges(week, acc.CurrentRank)
}

// EvaluateChallenges counts qualifying events for every active, incomplete challenge
// whose requirement is affected by trigger, and completes those that reached their
// target. It returns the challenges completed by this call.
func (e *Evaluator) EvaluateChallenges(ctx context.Context, sellerID, trigger string) ([]catalog.Challenge, error) {
	if !ValidTrigger(trigger) {
		return nil, &progression.ValidationError{Field: "trigger", Reason: fmt.Sprintf("unknown trigger %q", trigger)}
	}

	events := e.engine.Store()
	acc, err := events.GetAccount(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	active := e.ActiveChallenges(acc)
	if len(active) == 0 {
		return nil, nil
	}

	done, err := e.completedChallenges(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	since := calendar.WeekStart(e.engine.Now(), e.engine.Location())

	var completed []catalog.Challenge
	for _, ch := range active {
		if done[ch.ID] {
			continue
		}

		counter := e.registry.Get(ch.Requirement.Type)
		if counter == nil {
			logrus.Warnf("no counter registered for requirement type %s, skipping challenge %s",
				ch.Requirement.Type, ch.ID)
			continue
		}
		if !Handles(counter, trigger) {
			continue
		}

		count, err := counter.Count(ctx, events, sellerID, since)
		if err != nil {
			return completed, fmt.Errorf("failed to count %s for challenge %s: %w", ch.Requirement.Type, ch.ID, err)
		}
		logrus.Debugf("challenge %s for seller %s: %d/%d", ch.ID, sellerID, count, ch.Requirement.Target)
		if count < ch.Requirement.Target {
			continue
		}

		res, err := e.engine.CompleteChallenge(ctx, sellerID, ch)
		if err != nil {
			return completed, fmt.Errorf("failed to complete challenge %s: %w", ch.ID, err)
		}
		if res.Awarded {
			completed = append(completed, ch)
		}
	}

	return completed, nil
}

func (e *Evaluator) completedChallenges(ctx context.Context, sellerID string) (map[string]bool, error) {
	evs, err := e.engine.Store().ListEvents(ctx, store.EventQuery{
		SellerID: sellerID,
		Types:    []model.EventType{model.EventChallengeCompleted},
	})
	if err != nil {
		return nil, err
	}

	done := make(map[string]bool, len(evs))
	for _, ev := range evs {
		done[ev.DedupeKey] = true
	}
	return done, nil
}
