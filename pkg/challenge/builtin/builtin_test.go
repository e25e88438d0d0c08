package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/partnerforge/progression/pkg/calendar"
	"github.com/partnerforge/progression/pkg/challenge"
	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store/redisstore"
)

const testSeller = "seller-1"

func setupTestStore(t *testing.T) *redisstore.Store {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s := redisstore.New(redis.NewClient(&redis.Options{Addr: mr.Addr()}))

	created := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)
	err = s.CreateAccount(context.Background(), &model.Account{
		ID:          testSeller,
		CurrentRank: "Recruit",
		HighestRank: "Recruit",
		WeekStart:   calendar.WeekStart(created, time.UTC),
		CreatedAt:   created,
		UpdatedAt:   created,
	})
	if err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}
	return s
}

func record(t *testing.T, s *redisstore.Store, typ model.EventType, p model.Payload, at time.Time) {
	t.Helper()

	ev, err := model.NewEvent(testSeller, typ, 0, "", p, at)
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	if _, err := s.Award(context.Background(), ev, calendar.WeekStart(at, time.UTC)); err != nil {
		t.Fatalf("Award() error = %v", err)
	}
}

func TestCounters(t *testing.T) {
	RegisterCounterTypes()
	s := setupTestStore(t)

	day := func(d, h int) time.Time { return time.Date(2026, 10, d, h, 0, 0, 0, time.UTC) }

	// Week of Sunday 2026-10-18; everything on the 17th or earlier falls outside.
	record(t, s, model.EventLoginDay, &model.LoginDayPayload{LoginDate: "2026-10-17"}, day(17, 23))
	record(t, s, model.EventLoginDay, &model.LoginDayPayload{LoginDate: "2026-10-18"}, day(18, 0))
	record(t, s, model.EventLoginDay, &model.LoginDayPayload{LoginDate: "2026-10-19"}, day(19, 8))
	record(t, s, model.EventQuizCompleted, &model.TaskCompletedPayload{LessonID: "recruit-quiz", LessonType: "quiz"}, day(19, 9))
	record(t, s, model.EventTaskCompleted, &model.TaskCompletedPayload{LessonID: "welcome-course", LessonType: "course"}, day(19, 10))
	record(t, s, model.EventTaskCompleted, &model.TaskCompletedPayload{LessonID: "complete-profile", LessonType: "task"}, day(19, 11))
	record(t, s, model.EventTaskCompleted, &model.TaskCompletedPayload{LessonID: "sales-course", LessonType: "course"}, day(16, 11))
	record(t, s, model.EventClientAdded, &model.ActivityRecordPayload{RecordID: "client-1"}, day(19, 12))
	record(t, s, model.EventClientAdded, &model.ActivityRecordPayload{RecordID: "client-0"}, day(10, 12))
	record(t, s, model.EventSuggestionSubmitted, &model.ActivityRecordPayload{RecordID: "idea-1"}, day(20, 12))

	since := calendar.WeekStart(day(19, 12), time.UTC)

	tests := []struct {
		requirementType string
		expected        int
	}{
		{TypeLoginDays, 2},
		{TypeQuizzes, 1},
		{TypeCourses, 1},
		{TypeQuizOrCourse, 2},
		{TypeNewClients, 1},
		{TypeAutomationAssignments, 0},
		{TypeSuggestions, 1},
		{TypeDealEntries, 0},
		{TypeCaseStudies, 0},
	}

	for _, tt := range tests {
		t.Run(tt.requirementType, func(t *testing.T) {
			c, err := challenge.CreateCounter(tt.requirementType)
			if err != nil {
				t.Fatalf("CreateCounter() error = %v", err)
			}
			if c.Type() != tt.requirementType {
				t.Errorf("Type() = %s, expected %s", c.Type(), tt.requirementType)
			}
			if len(c.Triggers()) == 0 {
				t.Error("expected at least one trigger")
			}

			got, err := c.Count(context.Background(), s, testSeller, since)
			if err != nil {
				t.Fatalf("Count() error = %v", err)
			}
			if got != tt.expected {
				t.Errorf("Count() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestQuizOrCourseTriggers(t *testing.T) {
	c := NewQuizOrCourseCounter()

	if !challenge.Handles(c, challenge.TriggerQuizCompleted) || !challenge.Handles(c, challenge.TriggerCourseCompleted) {
		t.Error("quiz_or_course should handle both quiz and course triggers")
	}
	if challenge.Handles(c, challenge.TriggerLogin) {
		t.Error("quiz_or_course should not handle login")
	}
	if !challenge.Handles(c, challenge.TriggerAll) {
		t.Error("every counter handles the all trigger")
	}
}
