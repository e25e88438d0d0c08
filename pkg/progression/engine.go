// Package progression turns qualifying seller actions into XP, rank transitions,
// login streaks and challenge rewards.
//
// Every write goes through the store's atomic paths: Award for XP-bearing events
// and Transition for rank changes. Milestones are deduplicated by the store's
// uniqueness constraint, so any operation here may be retried or raced freely.
package progression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/partnerforge/progression/pkg/calendar"
	"github.com/partnerforge/progression/pkg/catalog"
	"github.com/partnerforge/progression/pkg/metrics"
	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store"
	"github.com/partnerforge/progression/pkg/streak"
)

const maxBusinessNameLength = 255

// Engine is the progression engine. It is safe for concurrent use.
type Engine struct {
	store   store.Store
	catalog *catalog.Catalog
	loc     *time.Location
	now     func() time.Time
	loginXP int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLocation sets the time zone that defines calendar days and week starts.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) { e.loc = loc }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithLoginXP sets the XP granted for the first login of each calendar day.
func WithLoginXP(xp int64) Option {
	return func(e *Engine) { e.loginXP = xp }
}

// New creates a new progression engine.
func New(s store.Store, c *catalog.Catalog, opts ...Option) *Engine {
	e := &Engine{
		store:   s,
		catalog: c,
		loc:     time.UTC,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Catalog returns the static catalog the engine evaluates against.
func (e *Engine) Catalog() *catalog.Catalog { return e.catalog }

// Store returns the backing store.
func (e *Engine) Store() store.Store { return e.store }

// Location returns the engine's calendar time zone.
func (e *Engine) Location() *time.Location { return e.loc }

// Now returns the current time from the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// RegisterSeller creates an account at the first rank.
func (e *Engine) RegisterSeller(ctx context.Context, businessName string) (*model.Account, error) {
	name := strings.TrimSpace(businessName)
	if name == "" {
		return nil, invalid("business_name", "must not be empty")
	}
	if len(name) > maxBusinessNameLength {
		return nil, invalid("business_name", "must be at most %d characters", maxBusinessNameLength)
	}

	now := e.now()
	id := uuid.NewString()
	first := e.catalog.FirstRank()

	base := slug.Make(name)
	if base == "" {
		base = "partner"
	}

	acc := &model.Account{
		ID:             id,
		BusinessName:   name,
		WeekStart:      calendar.WeekStart(now, e.loc),
		CurrentRank:    first.Name,
		HighestRank:    first.Name,
		CommissionRate: first.CommissionRate,
		ReferralCode:   base + "-" + id[:8],
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.store.CreateAccount(ctx, acc); err != nil {
		return nil, err
	}

	logrus.Infof("registered seller %s (%s) at rank %s", id, name, first.Name)
	return acc, nil
}

// AwardXP appends one event and increments the seller's XP totals atomically.
// It never advances rank. An event whose natural key is already recorded is a
// silent no-op that returns the current snapshot. Lesson completions go through
// CheckAndAward.
func (e *Engine) AwardXP(ctx context.Context, sellerID string, eventType model.EventType, amount int64, description string, payload model.Payload) (*model.Account, error) {
	if sellerID == "" {
		return nil, invalid("seller_id", "must not be empty")
	}
	if amount < 0 {
		return nil, invalid("amount", "must not be negative")
	}
	if !eventType.Valid() {
		return nil, invalid("event_type", "unknown event type %q", eventType)
	}
	if eventType.EngineOnly() {
		return nil, invalid("event_type", "%s events are recorded by the engine only", eventType)
	}
	// Lesson completions share the per-lesson guard, so a task_completed for a
	// quiz cannot pay out next to its quiz_completed.
	if task, ok := payload.(*model.TaskCompletedPayload); ok && eventType.IsMilestone() {
		res, err := e.CheckAndAward(ctx, sellerID, task.LessonID, eventType, amount, description)
		if err != nil {
			return nil, err
		}
		return res.Account, nil
	}

	ev, err := model.NewEvent(sellerID, eventType, amount, description, payload, e.now())
	if err != nil {
		return nil, &ValidationError{Field: "metadata", Reason: err.Error(), Err: err}
	}

	res, err := e.award(ctx, ev)
	if err != nil {
		return nil, err
	}
	return res.Account, nil
}

// CheckAndAward records a lesson completion at most once per seller and lesson.
// Awarded is false when the lesson was already completed.
func (e *Engine) CheckAndAward(ctx context.Context, sellerID, lessonID string, eventType model.EventType, amount int64, description string) (*AwardResult, error) {
	if sellerID == "" {
		return nil, invalid("seller_id", "must not be empty")
	}
	if !eventType.IsMilestone() {
		return nil, invalid("event_type", "must be %s or %s", model.EventTaskCompleted, model.EventQuizCompleted)
	}
	if amount < 0 {
		return nil, invalid("amount", "must not be negative")
	}

	lesson, ok := e.catalog.Lesson(lessonID)
	if !ok {
		return nil, invalid("lesson_id", "unknown lesson %q", lessonID)
	}
	if (lesson.Type == catalog.LessonQuiz) != (eventType == model.EventQuizCompleted) {
		return nil, invalid("event_type", "%s cannot complete %s lesson %q", eventType, lesson.Type, lessonID)
	}
	if description == "" {
		description = fmt.Sprintf("Completed %s", lesson.Title)
	}

	payload := &model.TaskCompletedPayload{LessonID: lessonID, LessonType: string(lesson.Type)}
	ev, err := model.NewEvent(sellerID, eventType, amount, description, payload, e.now())
	if err != nil {
		return nil, &ValidationError{Field: "metadata", Reason: err.Error(), Err: err}
	}
	return e.award(ctx, ev)
}

// CompleteChallenge records a weekly challenge completion and its XP reward once.
func (e *Engine) CompleteChallenge(ctx context.Context, sellerID string, ch catalog.Challenge) (*AwardResult, error) {
	payload := &model.ChallengeCompletedPayload{ChallengeID: ch.ID, WeekNumber: ch.WeekNumber}
	ev, err := model.NewEvent(sellerID, model.EventChallengeCompleted, ch.XPReward,
		fmt.Sprintf("Completed challenge: %s", ch.Title), payload, e.now())
	if err != nil {
		return nil, &ValidationError{Field: "challenge", Reason: err.Error(), Err: err}
	}

	res, err := e.award(ctx, ev)
	if err != nil {
		return nil, err
	}
	if res.Awarded {
		metrics.ChallengesCompletedTotal.WithLabelValues(ch.ID).Inc()
		logrus.Infof("seller %s completed challenge %s (+%d XP)", sellerID, ch.ID, ch.XPReward)
	}
	return res, nil
}

// award writes ev through the store's atomic award path and absorbs duplicates.
func (e *Engine) award(ctx context.Context, ev *model.ActivityEvent) (*AwardResult, error) {
	acc, err := e.store.Award(ctx, ev, calendar.WeekStart(ev.CreatedAt, e.loc))
	switch {
	case err == nil:
		metrics.XPAwardedTotal.WithLabelValues(string(ev.Type)).Add(float64(ev.XP))
		logrus.Debugf("awarded %d XP to %s for %s", ev.XP, ev.SellerID, ev.Type)
		return &AwardResult{Account: acc, Awarded: true}, nil

	case errors.Is(err, store.ErrDuplicateEvent):
		metrics.DuplicateEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		logrus.Debugf("%s %q already recorded for %s, skipping", ev.Type, ev.DedupeKey, ev.SellerID)
		acc, err := e.store.GetAccount(ctx, ev.SellerID)
		if err != nil {
			return nil, err
		}
		return &AwardResult{Account: acc, Awarded: false}, nil

	case errors.Is(err, store.ErrAccountNotFound):
		return nil, unknownSeller(ev.SellerID)

	default:
		return nil, err
	}
}

// AdvanceRank promotes the seller to the next rank when both the XP threshold and the
// cumulative required tasks are met. The evaluation runs inside a per-seller store
// transaction, so concurrent callers can never double-advance.
func (e *Engine) AdvanceRank(ctx context.Context, sellerID string) (*AdvanceResult, error) {
	if sellerID == "" {
		return nil, invalid("seller_id", "must not be empty")
	}

	var result AdvanceResult
	acc, err := e.store.Transition(ctx, sellerID, func(acc *model.Account, completed map[string]bool) (*model.RankTransition, error) {
		// The store may call this again after a conflict.
		result = AdvanceResult{}

		if _, ok := e.catalog.RankIndex(acc.CurrentRank); !ok {
			return nil, fmt.Errorf("account %s holds unknown rank %q", acc.ID, acc.CurrentRank)
		}
		next, ok := e.catalog.NextRank(acc.CurrentRank)
		if !ok {
			result.Reason = ReasonMaxRank
			return nil, nil
		}

		missing := missingTasks(e.catalog.RequiredTasks(next.Name), completed)

		if acc.CurrentXP < next.XPThreshold {
			result.Reason = ReasonInsufficientXP
			result.Detail = &DenialDetail{
				NextRank:       next.Name,
				XPGap:          next.XPThreshold - acc.CurrentXP,
				MissingTaskIDs: missing,
			}
			return nil, nil
		}
		if len(missing) > 0 {
			result.Reason = ReasonTasksIncomplete
			result.Detail = &DenialDetail{NextRank: next.Name, MissingTaskIDs: missing}
			return nil, nil
		}

		ev, err := model.NewEvent(acc.ID, model.EventRankUp, 0,
			fmt.Sprintf("Promoted from %s to %s", acc.CurrentRank, next.Name),
			&model.RankUpPayload{OldRank: acc.CurrentRank, NewRank: next.Name}, e.now())
		if err != nil {
			return nil, err
		}

		result.Success = true
		result.NewRank = next.Name
		return &model.RankTransition{
			NewRank:        next.Name,
			HighestRank:    e.catalog.HigherRank(acc.HighestRank, next.Name),
			CommissionRate: next.CommissionRate,
			Event:          ev,
		}, nil
	})
	if errors.Is(err, store.ErrAccountNotFound) {
		return nil, unknownSeller(sellerID)
	}
	if err != nil {
		return nil, err
	}

	result.Account = acc
	if result.Success {
		metrics.RankUpsTotal.WithLabelValues(result.NewRank).Inc()
		logrus.Infof("seller %s advanced to %s", sellerID, result.NewRank)
	} else {
		metrics.RankDenialsTotal.WithLabelValues(result.Reason).Inc()
		logrus.Debugf("seller %s rank advancement denied: %s", sellerID, result.Reason)
	}
	return &result, nil
}

// GetProgressionState assembles the read view of a seller's progression.
func (e *Engine) GetProgressionState(ctx context.Context, sellerID string) (*ProgressionState, error) {
	var (
		acc    *model.Account
		events []model.ActivityEvent
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		acc, err = e.store.GetAccount(gctx, sellerID)
		return err
	})
	g.Go(func() error {
		var err error
		events, err = e.store.ListEvents(gctx, store.EventQuery{
			SellerID: sellerID,
			Types:    []model.EventType{model.EventTaskCompleted, model.EventQuizCompleted},
		})
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			return nil, unknownSeller(sellerID)
		}
		return nil, err
	}

	completed := make(map[string]bool, len(events))
	completedIDs := make([]string, 0, len(events))
	for _, ev := range events {
		if ev.DedupeKey != "" && !completed[ev.DedupeKey] {
			completed[ev.DedupeKey] = true
			completedIDs = append(completedIDs, ev.DedupeKey)
		}
	}

	state := &ProgressionState{
		SellerID:               acc.ID,
		BusinessName:           acc.BusinessName,
		CurrentRank:            acc.CurrentRank,
		HighestRank:            acc.HighestRank,
		CurrentXP:              acc.CurrentXP,
		SeasonXP:               acc.SeasonXP,
		WeeklyXP:               acc.WeeklyXP,
		CommissionRate:         acc.CommissionRate,
		Capabilities:           e.capabilities(acc.CurrentRank),
		LoginStreak:            acc.LoginStreak,
		LastLoginDate:          acc.LastLoginDate,
		CompletedLessonIDs:     completedIDs,
		RequiredTasksRemaining: []string{},
	}

	// weekly_xp is reset lazily on the next award; report the reset value meanwhile.
	if acc.WeekStart.Before(calendar.WeekStart(e.now(), e.loc)) {
		state.WeeklyXP = 0
	}

	if next, ok := e.catalog.NextRank(acc.CurrentRank); ok {
		state.NextRank = next.Name
		if gap := next.XPThreshold - acc.CurrentXP; gap > 0 {
			state.XPToNextRank = gap
		}
		state.RequiredTasksRemaining = missingTasks(e.catalog.RequiredTasks(next.Name), completed)
	}
	return state, nil
}

// RecordLoginDay writes at most one login_day event per local calendar day and
// refreshes the stored streak from the full login history.
func (e *Engine) RecordLoginDay(ctx context.Context, sellerID string) (*LoginResult, error) {
	if sellerID == "" {
		return nil, invalid("seller_id", "must not be empty")
	}

	now := e.now()
	today := calendar.Date(now, e.loc)

	ev, err := model.NewEvent(sellerID, model.EventLoginDay, e.loginXP, "Daily login",
		&model.LoginDayPayload{LoginDate: today}, now)
	if err != nil {
		return nil, err
	}
	res, err := e.award(ctx, ev)
	if err != nil {
		return nil, err
	}

	logins, err := e.store.ListEvents(ctx, store.EventQuery{
		SellerID: sellerID,
		Types:    []model.EventType{model.EventLoginDay},
	})
	if err != nil {
		return nil, err
	}
	dates := streak.LoginDates(logins)
	current := streak.Calculate(dates)

	last := today
	for _, d := range dates {
		if d > last {
			last = d
		}
	}

	acc, err := e.store.UpdateStreak(ctx, sellerID, current, last)
	if err != nil {
		return nil, err
	}

	if res.Awarded {
		logrus.Infof("seller %s logged in on %s (streak %d)", sellerID, today, acc.LoginStreak)
	}
	return &LoginResult{
		Account:    acc,
		LoginDate:  today,
		FirstToday: res.Awarded,
		Streak:     acc.LoginStreak,
	}, nil
}

// LoginDayCount returns the number of distinct days the seller has logged in.
func (e *Engine) LoginDayCount(ctx context.Context, sellerID string) (int, error) {
	return e.store.CountEvents(ctx, store.EventQuery{
		SellerID: sellerID,
		Types:    []model.EventType{model.EventLoginDay},
	})
}

// capabilities returns the tags unlocked at rankName, including every lower rank's.
func (e *Engine) capabilities(rankName string) []string {
	top, ok := e.catalog.RankIndex(rankName)
	if !ok {
		return []string{}
	}
	seen := make(map[string]bool)
	caps := []string{}
	for _, r := range e.catalog.Ranks[:top+1] {
		for _, c := range r.Capabilities {
			if !seen[c] {
				seen[c] = true
				caps = append(caps, c)
			}
		}
	}
	sort.Strings(caps)
	return caps
}

func missingTasks(required []string, completed map[string]bool) []string {
	missing := []string{}
	for _, id := range required {
		if !completed[id] {
			missing = append(missing, id)
		}
	}
	return missing
}
