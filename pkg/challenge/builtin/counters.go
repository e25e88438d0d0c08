package builtin

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/pkg/catalog"
	"github.com/partnerforge/progression/pkg/challenge"
	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store"
)

// Requirement types served by the builtin counters.
const (
	TypeLoginDays             = "login_days"
	TypeNewClients            = "new_clients"
	TypeAutomationAssignments = "automation_assignments"
	TypeQuizzes               = "quizzes"
	TypeCourses               = "courses"
	TypeQuizOrCourse          = "quiz_or_course"
	TypeSuggestions           = "suggestions"
	TypeDealEntries           = "deal_entries"
	TypeCaseStudies           = "case_studies"
)

// EventCounter counts events of a fixed set of types, optionally narrowed by a filter.
type EventCounter struct {
	requirementType string
	triggers        []string
	eventTypes      []model.EventType
	filter          func(ev *model.ActivityEvent) bool
}

// Type returns the requirement type.
func (c *EventCounter) Type() string {
	return c.requirementType
}

// Triggers returns the actions that can change this count.
func (c *EventCounter) Triggers() []string {
	return c.triggers
}

// Count returns the number of matching events since the given instant.
func (c *EventCounter) Count(ctx context.Context, events store.EventLog, sellerID string, since time.Time) (int, error) {
	q := store.EventQuery{SellerID: sellerID, Types: c.eventTypes, Since: since}
	if c.filter == nil {
		return events.CountEvents(ctx, q)
	}

	evs, err := events.ListEvents(ctx, q)
	if err != nil {
		return 0, err
	}
	n := 0
	for i := range evs {
		if c.filter(&evs[i]) {
			n++
		}
	}
	return n, nil
}

// NewLoginDaysCounter counts distinct login days.
func NewLoginDaysCounter() *EventCounter {
	return &EventCounter{
		requirementType: TypeLoginDays,
		triggers:        []string{challenge.TriggerLogin},
		eventTypes:      []model.EventType{model.EventLoginDay},
	}
}

// NewQuizzesCounter counts completed quizzes.
func NewQuizzesCounter() *EventCounter {
	return &EventCounter{
		requirementType: TypeQuizzes,
		triggers:        []string{challenge.TriggerQuizCompleted},
		eventTypes:      []model.EventType{model.EventQuizCompleted},
	}
}

// NewCoursesCounter counts completed course lessons.
func NewCoursesCounter() *EventCounter {
	return &EventCounter{
		requirementType: TypeCourses,
		triggers:        []string{challenge.TriggerCourseCompleted},
		eventTypes:      []model.EventType{model.EventTaskCompleted},
		filter:          isCourseCompletion,
	}
}

// NewQuizOrCourseCounter counts quizzes and course lessons together.
func NewQuizOrCourseCounter() *EventCounter {
	return &EventCounter{
		requirementType: TypeQuizOrCourse,
		triggers:        []string{challenge.TriggerQuizCompleted, challenge.TriggerCourseCompleted},
		eventTypes:      []model.EventType{model.EventQuizCompleted, model.EventTaskCompleted},
		filter: func(ev *model.ActivityEvent) bool {
			return ev.Type == model.EventQuizCompleted || isCourseCompletion(ev)
		},
	}
}

// newRecordCounter counts one kind of activity record.
func newRecordCounter(requirementType, trigger string, eventType model.EventType) *EventCounter {
	return &EventCounter{
		requirementType: requirementType,
		triggers:        []string{trigger},
		eventTypes:      []model.EventType{eventType},
	}
}

func isCourseCompletion(ev *model.ActivityEvent) bool {
	if ev.Type != model.EventTaskCompleted {
		return false
	}
	p, err := ev.Payload()
	if err != nil {
		logrus.Warnf("skipping event %s with malformed metadata: %v", ev.ID, err)
		return false
	}
	task, ok := p.(*model.TaskCompletedPayload)
	return ok && task.LessonType == string(catalog.LessonCourse)
}
