package model

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// ErrPayloadMismatch is returned when a payload does not belong to the event type it is used with.
var ErrPayloadMismatch = errors.New("payload does not match event type")

var validate = validator.New()

// Payload is the typed metadata attached to an event.
type Payload interface {
	// DedupeKey returns the natural key that makes the event unique per seller,
	// or an empty string when events of this kind may repeat.
	DedupeKey() string

	supports(t EventType) bool
}

// TaskCompletedPayload is the metadata of task_completed and quiz_completed events.
type TaskCompletedPayload struct {
	LessonID   string `json:"lesson_id" validate:"required"`
	LessonType string `json:"lesson_type,omitempty" validate:"omitempty,oneof=course task quiz"`
}

func (p *TaskCompletedPayload) DedupeKey() string { return p.LessonID }

func (p *TaskCompletedPayload) supports(t EventType) bool { return t.IsMilestone() }

// LoginDayPayload is the metadata of login_day events. LoginDate is a local calendar date.
type LoginDayPayload struct {
	LoginDate string `json:"login_date" validate:"required,datetime=2006-01-02"`
}

func (p *LoginDayPayload) DedupeKey() string { return p.LoginDate }

func (p *LoginDayPayload) supports(t EventType) bool { return t == EventLoginDay }

// ChallengeCompletedPayload is the metadata of challenge_completed events.
type ChallengeCompletedPayload struct {
	ChallengeID string `json:"challenge_id" validate:"required"`
	WeekNumber  int    `json:"week_number" validate:"min=1,max=4"`
}

func (p *ChallengeCompletedPayload) DedupeKey() string { return p.ChallengeID }

func (p *ChallengeCompletedPayload) supports(t EventType) bool { return t == EventChallengeCompleted }

// RankUpPayload is the metadata of rank_up events.
type RankUpPayload struct {
	OldRank string `json:"old_rank" validate:"required"`
	NewRank string `json:"new_rank" validate:"required,nefield=OldRank"`
}

func (p *RankUpPayload) DedupeKey() string { return p.NewRank }

func (p *RankUpPayload) supports(t EventType) bool { return t == EventRankUp }

// CoursePayload is the metadata of course_opened and course_slide_viewed events.
type CoursePayload struct {
	CourseID string `json:"course_id" validate:"required"`
	Slide    int    `json:"slide,omitempty" validate:"min=0"`
}

func (p *CoursePayload) DedupeKey() string { return "" }

func (p *CoursePayload) supports(t EventType) bool {
	return t == EventCourseOpened || t == EventCourseSlideViewed
}

// AutomationPayload is the metadata of automation_view and automation_fully_read events.
type AutomationPayload struct {
	AutomationID string `json:"automation_id" validate:"required"`
}

func (p *AutomationPayload) DedupeKey() string { return "" }

func (p *AutomationPayload) supports(t EventType) bool {
	return t == EventAutomationView || t == EventAutomationFullyRead
}

// ActivityRecordPayload is the metadata of activity records that feed weekly challenges.
type ActivityRecordPayload struct {
	RecordID string `json:"record_id" validate:"required"`
}

// DedupeKey keys the record by its external id so a replayed record is not counted twice.
func (p *ActivityRecordPayload) DedupeKey() string { return p.RecordID }

func (p *ActivityRecordPayload) supports(t EventType) bool {
	switch t {
	case EventClientAdded, EventAutomationAssigned, EventSuggestionSubmitted,
		EventDealEntered, EventCaseStudySubmitted:
		return true
	}
	return false
}

// newPayload returns an empty payload value for the event type.
func newPayload(t EventType) (Payload, error) {
	switch t {
	case EventTaskCompleted, EventQuizCompleted:
		return &TaskCompletedPayload{}, nil
	case EventLoginDay:
		return &LoginDayPayload{}, nil
	case EventChallengeCompleted:
		return &ChallengeCompletedPayload{}, nil
	case EventRankUp:
		return &RankUpPayload{}, nil
	case EventCourseOpened, EventCourseSlideViewed:
		return &CoursePayload{}, nil
	case EventAutomationView, EventAutomationFullyRead:
		return &AutomationPayload{}, nil
	case EventClientAdded, EventAutomationAssigned, EventSuggestionSubmitted,
		EventDealEntered, EventCaseStudySubmitted:
		return &ActivityRecordPayload{}, nil
	}
	return nil, fmt.Errorf("unknown event type: %s", t)
}

// DecodePayload unmarshals raw metadata into the typed payload of the event type.
func DecodePayload(t EventType, raw json.RawMessage) (Payload, error) {
	p, err := newPayload(t)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("malformed %s metadata: %w", t, err)
	}
	return p, nil
}

// ValidatePayload checks that p belongs to event type t and satisfies its schema.
func ValidatePayload(t EventType, p Payload) error {
	if !t.Valid() {
		return fmt.Errorf("unknown event type: %s", t)
	}
	if p == nil {
		return fmt.Errorf("%s metadata is required", t)
	}
	if !p.supports(t) {
		return fmt.Errorf("%w: %T used with %s", ErrPayloadMismatch, p, t)
	}
	if err := validate.Struct(p); err != nil {
		return fmt.Errorf("invalid %s metadata: %w", t, err)
	}
	return nil
}
