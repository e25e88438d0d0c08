// Package pipeline runs the reconciliation sweeps that follow a seller action:
// record the action, complete any automatic lessons it unlocked, then evaluate
// the weekly challenges it may have advanced.
//
// Every step goes through the engine's deduplicated write paths, so a sweep can be
// repeated any number of times and always converges to the same state.
package pipeline

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/pkg/catalog"
	"github.com/partnerforge/progression/pkg/challenge"
	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/progression"
)

// Manager orchestrates the reconciliation pipeline:
// Action → Engine award → Automatic lessons → Challenges
type Manager struct {
	engine    *progression.Engine
	evaluator *challenge.Evaluator
}

// NewManager creates a new pipeline manager.
func NewManager(engine *progression.Engine, evaluator *challenge.Evaluator) *Manager {
	return &Manager{
		engine:    engine,
		evaluator: evaluator,
	}
}

// LoginOutcome is the result of a login sweep.
type LoginOutcome struct {
	Login               *progression.LoginResult `json:"login"`
	AutoCompleted       []string                 `json:"auto_completed_lesson_ids"`
	CompletedChallenges []catalog.Challenge      `json:"completed_challenges"`
	Account             *model.Account           `json:"account"`
}

// Activity is a challenge-feeding seller action reported by a collaborator.
type Activity struct {
	Type        model.EventType `json:"event_type" binding:"required"`
	RecordID    string          `json:"record_id" binding:"required"`
	XP          int64           `json:"xp_value"`
	Description string          `json:"description"`
}

// ActivityOutcome is the result of recording an activity.
type ActivityOutcome struct {
	Account             *model.Account      `json:"account"`
	CompletedChallenges []catalog.Challenge `json:"completed_challenges"`
}

// LessonOutcome is the result of a lesson completion followed by challenge evaluation.
type LessonOutcome struct {
	*progression.AwardResult
	CompletedChallenges []catalog.Challenge `json:"completed_challenges"`
}

// ProcessLogin records today's login, completes automatic login lessons whose target
// is met, and evaluates login challenges.
func (m *Manager) ProcessLogin(ctx context.Context, sellerID string) (*LoginOutcome, error) {
	logrus.Debugf("processing login sweep for seller %s", sellerID)

	// Step 1: Record the login day and refresh the streak
	login, err := m.engine.RecordLoginDay(ctx, sellerID)
	if err != nil {
		return nil, fmt.Errorf("login recording failed: %w", err)
	}

	// Step 2: Complete automatic lessons
	auto, err := m.reconcileAutoLessons(ctx, sellerID, login.Streak)
	if err != nil {
		return nil, fmt.Errorf("automatic lesson reconciliation failed: %w", err)
	}

	// Step 3: Evaluate challenges
	completed, err := m.evaluator.EvaluateChallenges(ctx, sellerID, challenge.TriggerLogin)
	if err != nil {
		return nil, fmt.Errorf("challenge evaluation failed: %w", err)
	}

	acc := login.Account
	if len(auto) > 0 || len(completed) > 0 {
		if acc, err = m.engine.Store().GetAccount(ctx, sellerID); err != nil {
			return nil, err
		}
		logrus.Infof("login sweep for seller %s: %d lessons, %d challenges completed",
			sellerID, len(auto), len(completed))
	}

	return &LoginOutcome{
		Login:               login,
		AutoCompleted:       auto,
		CompletedChallenges: completed,
		Account:             acc,
	}, nil
}

// reconcileAutoLessons completes every automatic lesson whose login target is met.
// It returns the ids completed by this call.
func (m *Manager) reconcileAutoLessons(ctx context.Context, sellerID string, streak int) ([]string, error) {
	lessons := m.engine.Catalog().AutoLessons()
	if len(lessons) == 0 {
		return nil, nil
	}

	days, err := m.engine.LoginDayCount(ctx, sellerID)
	if err != nil {
		return nil, err
	}

	var awarded []string
	for _, l := range lessons {
		var progress int
		switch l.Auto.Kind {
		case catalog.AutoLoginDays:
			progress = days
		case catalog.AutoLoginStreak:
			progress = streak
		default:
			logrus.Warnf("lesson %s has unsupported auto kind %s", l.ID, l.Auto.Kind)
			continue
		}
		if progress < l.Auto.Target {
			continue
		}

		eventType := model.EventTaskCompleted
		if l.Type == catalog.LessonQuiz {
			eventType = model.EventQuizCompleted
		}
		res, err := m.engine.CheckAndAward(ctx, sellerID, l.ID, eventType, l.XPReward, "")
		if err != nil {
			return awarded, fmt.Errorf("failed to complete lesson %s: %w", l.ID, err)
		}
		if res.Awarded {
			logrus.Infof("seller %s auto-completed %s (%s %d/%d)", sellerID, l.ID, l.Auto.Kind, progress, l.Auto.Target)
			awarded = append(awarded, l.ID)
		}
	}
	return awarded, nil
}

// ProcessActivity records a challenge-feeding activity and evaluates the challenges
// it may complete. A replayed record id is recorded once.
func (m *Manager) ProcessActivity(ctx context.Context, sellerID string, activity Activity) (*ActivityOutcome, error) {
	trigger, ok := challenge.TriggerForEvent(&model.ActivityEvent{Type: activity.Type})
	if !ok || activity.Type == model.EventLoginDay || activity.Type.IsMilestone() {
		return nil, &progression.ValidationError{
			Field:  "event_type",
			Reason: fmt.Sprintf("%q is not an activity record", activity.Type),
		}
	}

	description := activity.Description
	if description == "" {
		description = string(activity.Type)
	}

	acc, err := m.engine.AwardXP(ctx, sellerID, activity.Type, activity.XP, description,
		&model.ActivityRecordPayload{RecordID: activity.RecordID})
	if err != nil {
		return nil, err
	}

	completed, err := m.evaluator.EvaluateChallenges(ctx, sellerID, trigger)
	if err != nil {
		return nil, fmt.Errorf("challenge evaluation failed: %w", err)
	}
	if len(completed) > 0 {
		if acc, err = m.engine.Store().GetAccount(ctx, sellerID); err != nil {
			return nil, err
		}
	}

	return &ActivityOutcome{Account: acc, CompletedChallenges: completed}, nil
}

// ProcessLessonCompletion completes a lesson once and evaluates the quiz and course
// challenges it may advance.
func (m *Manager) ProcessLessonCompletion(ctx context.Context, sellerID, lessonID string, eventType model.EventType, amount int64, description string) (*LessonOutcome, error) {
	res, err := m.engine.CheckAndAward(ctx, sellerID, lessonID, eventType, amount, description)
	if err != nil {
		return nil, err
	}

	out := &LessonOutcome{AwardResult: res}
	if !res.Awarded {
		return out, nil
	}

	trigger := challenge.TriggerQuizCompleted
	if eventType == model.EventTaskCompleted {
		lesson, _ := m.engine.Catalog().Lesson(lessonID)
		if lesson.Type != catalog.LessonCourse {
			return out, nil
		}
		trigger = challenge.TriggerCourseCompleted
	}

	completed, err := m.evaluator.EvaluateChallenges(ctx, sellerID, trigger)
	if err != nil {
		return nil, fmt.Errorf("challenge evaluation failed: %w", err)
	}
	if len(completed) > 0 {
		if out.Account, err = m.engine.Store().GetAccount(ctx, sellerID); err != nil {
			return nil, err
		}
	}
	out.CompletedChallenges = completed
	return out, nil
}
