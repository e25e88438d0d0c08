package builtin

import (
	"github.com/partnerforge/progression/pkg/challenge"
	"github.com/partnerforge/progression/pkg/model"
)

// RegisterCounterTypes registers all built-in counter types with the factory.
func RegisterCounterTypes() {
	register := func(t string, newCounter func() *EventCounter) {
		challenge.RegisterCounterType(t, func() (challenge.Counter, error) {
			return newCounter(), nil
		})
	}

	register(TypeLoginDays, NewLoginDaysCounter)
	register(TypeQuizzes, NewQuizzesCounter)
	register(TypeCourses, NewCoursesCounter)
	register(TypeQuizOrCourse, NewQuizOrCourseCounter)

	register(TypeNewClients, func() *EventCounter {
		return newRecordCounter(TypeNewClients, challenge.TriggerClientAdded, model.EventClientAdded)
	})
	register(TypeAutomationAssignments, func() *EventCounter {
		return newRecordCounter(TypeAutomationAssignments, challenge.TriggerAutomationAssigned, model.EventAutomationAssigned)
	})
	register(TypeSuggestions, func() *EventCounter {
		return newRecordCounter(TypeSuggestions, challenge.TriggerSuggestion, model.EventSuggestionSubmitted)
	})
	register(TypeDealEntries, func() *EventCounter {
		return newRecordCounter(TypeDealEntries, challenge.TriggerDeal, model.EventDealEntered)
	})
	register(TypeCaseStudies, func() *EventCounter {
		return newRecordCounter(TypeCaseStudies, challenge.TriggerCaseStudy, model.EventCaseStudySubmitted)
	})
}
