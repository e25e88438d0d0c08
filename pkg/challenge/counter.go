// Package challenge evaluates weekly onboarding challenges.
//
// Each challenge requirement type is served by a Counter that counts the seller's
// qualifying events inside the current week. Counters are created through a factory
// keyed by requirement type and held in a Registry, the same dispatch table the
// evaluator consults for every active challenge.
package challenge

import (
	"context"
	"time"

	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store"
)

// Triggers name the seller actions that can complete a challenge.
const (
	TriggerLogin              = "login"
	TriggerClientAdded        = "client_added"
	TriggerAutomationAssigned = "automation_assigned"
	TriggerQuizCompleted      = "quiz_completed"
	TriggerCourseCompleted    = "course_completed"
	TriggerSuggestion         = "suggestion"
	TriggerDeal               = "deal"
	TriggerCaseStudy          = "case_study"

	// TriggerAll re-evaluates every active challenge regardless of requirement type.
	TriggerAll = "all"
)

var knownTriggers = map[string]bool{
	TriggerLogin:              true,
	TriggerClientAdded:        true,
	TriggerAutomationAssigned: true,
	TriggerQuizCompleted:      true,
	TriggerCourseCompleted:    true,
	TriggerSuggestion:         true,
	TriggerDeal:               true,
	TriggerCaseStudy:          true,
	TriggerAll:                true,
}

// ValidTrigger reports whether trigger is a known action trigger.
func ValidTrigger(trigger string) bool {
	return knownTriggers[trigger]
}

// Counter counts the events that satisfy one challenge requirement type.
type Counter interface {
	// Type returns the requirement type this counter serves, e.g. "login_days".
	Type() string

	// Triggers returns the actions after which this counter may have changed.
	Triggers() []string

	// Count returns the number of qualifying events recorded at or after since.
	Count(ctx context.Context, events store.EventLog, sellerID string, since time.Time) (int, error)
}

// Handles reports whether c should be evaluated after trigger.
func Handles(c Counter, trigger string) bool {
	if trigger == TriggerAll {
		return true
	}
	for _, t := range c.Triggers() {
		if t == trigger {
			return true
		}
	}
	return false
}

// TriggerForEvent maps a recorded event to the trigger it fires.
// The second return value is false for events that never feed a challenge.
func TriggerForEvent(ev *model.ActivityEvent) (string, bool) {
	switch ev.Type {
	case model.EventLoginDay:
		return TriggerLogin, true
	case model.EventQuizCompleted:
		return TriggerQuizCompleted, true
	case model.EventTaskCompleted:
		p, err := ev.Payload()
		if err != nil {
			return "", false
		}
		if task, ok := p.(*model.TaskCompletedPayload); ok && task.LessonType == "course" {
			return TriggerCourseCompleted, true
		}
		return "", false
	case model.EventClientAdded:
		return TriggerClientAdded, true
	case model.EventAutomationAssigned:
		return TriggerAutomationAssigned, true
	case model.EventSuggestionSubmitted:
		return TriggerSuggestion, true
	case model.EventDealEntered:
		return TriggerDeal, true
	case model.EventCaseStudySubmitted:
		return TriggerCaseStudy, true
	}
	return "", false
}
