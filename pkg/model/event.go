package model

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of qualifying action recorded in the event log.
type EventType string

const (
	EventLoginDay            EventType = "login_day"
	EventTaskCompleted       EventType = "task_completed"
	EventQuizCompleted       EventType = "quiz_completed"
	EventChallengeCompleted  EventType = "challenge_completed"
	EventCourseOpened        EventType = "course_opened"
	EventCourseSlideViewed   EventType = "course_slide_viewed"
	EventAutomationView      EventType = "automation_view"
	EventAutomationFullyRead EventType = "automation_fully_read"
	EventRankUp              EventType = "rank_up"

	// Activity records kept only so weekly challenges can count them.
	EventClientAdded         EventType = "client_added"
	EventAutomationAssigned  EventType = "automation_assigned"
	EventSuggestionSubmitted EventType = "suggestion_submitted"
	EventDealEntered         EventType = "deal_entered"
	EventCaseStudySubmitted  EventType = "case_study_submitted"
)

var knownEventTypes = map[EventType]bool{
	EventLoginDay:            true,
	EventTaskCompleted:       true,
	EventQuizCompleted:       true,
	EventChallengeCompleted:  true,
	EventCourseOpened:        true,
	EventCourseSlideViewed:   true,
	EventAutomationView:      true,
	EventAutomationFullyRead: true,
	EventRankUp:              true,
	EventClientAdded:         true,
	EventAutomationAssigned:  true,
	EventSuggestionSubmitted: true,
	EventDealEntered:         true,
	EventCaseStudySubmitted:  true,
}

// Valid reports whether t is a known event type.
func (t EventType) Valid() bool {
	return knownEventTypes[t]
}

// IsMilestone reports whether t is a lesson completion that may be rewarded at most once.
func (t EventType) IsMilestone() bool {
	return t == EventTaskCompleted || t == EventQuizCompleted
}

// EngineOnly reports whether only the progression engine itself may write events of type t.
// Login days are dated by the engine clock, so callers cannot pick the date.
func (t EventType) EngineOnly() bool {
	switch t {
	case EventRankUp, EventChallengeCompleted, EventLoginDay:
		return true
	}
	return false
}

// ActivityEvent is an immutable entry of the append-only event log.
type ActivityEvent struct {
	ID          string          `json:"id"`
	SellerID    string          `json:"seller_id"`
	Type        EventType       `json:"event_type"`
	XP          int64           `json:"xp_value"`
	Description string          `json:"description"`
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	Metadata    json.RawMessage `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
}

// NewEvent builds an event for the given payload. The payload is validated and its
// natural key, if any, becomes the event's dedupe key.
func NewEvent(sellerID string, t EventType, xp int64, description string, payload Payload, now time.Time) (*ActivityEvent, error) {
	if err := ValidatePayload(t, payload); err != nil {
		return nil, err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s metadata: %w", t, err)
	}

	return &ActivityEvent{
		ID:          uuid.NewString(),
		SellerID:    sellerID,
		Type:        t,
		XP:          xp,
		Description: description,
		DedupeKey:   payload.DedupeKey(),
		Metadata:    data,
		CreatedAt:   now,
	}, nil
}

// Payload decodes the event metadata into its typed payload.
func (e *ActivityEvent) Payload() (Payload, error) {
	return DecodePayload(e.Type, e.Metadata)
}
