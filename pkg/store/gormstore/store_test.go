package gormstore

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store"
)

var testWeekStart = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

// setupTestDB opens a private in-memory SQLite database with the schema migrated.
func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := OpenDB(context.Background(), DBConfig{
		Driver:     DriverSQLite,
		DSN:        fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
		MaxRetries: 1,
		LogLevel:   logger.Silent,
	})
	require.NoError(t, err)
	require.NoError(t, Migrate(db))

	t.Cleanup(func() {
		sqlDB, _ := db.DB()
		_ = sqlDB.Close()
	})
	return db
}

func setupTestStore(t *testing.T) *Store {
	return New(setupTestDB(t))
}

func newTestAccount(id string) *model.Account {
	created := testWeekStart.Add(2 * time.Hour)
	return &model.Account{
		ID:             id,
		BusinessName:   "Acme " + id,
		WeekStart:      testWeekStart,
		CurrentRank:    "Recruit",
		HighestRank:    "Recruit",
		CommissionRate: 0.1,
		ReferralCode:   "acme-" + id,
		CreatedAt:      created,
		UpdatedAt:      created,
	}
}

func newTaskEvent(t *testing.T, sellerID, lessonID string, xp int64, at time.Time) *model.ActivityEvent {
	t.Helper()
	ev, err := model.NewEvent(sellerID, model.EventTaskCompleted, xp, "task "+lessonID,
		&model.TaskCompletedPayload{LessonID: lessonID}, at)
	require.NoError(t, err)
	return ev
}

func TestCreateAndGetAccount(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))

	acc, err := s.GetAccount(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, "Acme seller-1", acc.BusinessName)
	assert.Equal(t, "Recruit", acc.CurrentRank)
	assert.Equal(t, 0.1, acc.CommissionRate)
	assert.True(t, acc.WeekStart.Equal(testWeekStart))

	assert.ErrorIs(t, s.CreateAccount(ctx, newTestAccount("seller-1")), store.ErrAccountExists)

	_, err = s.GetAccount(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestListAccounts_CreationOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"c", "a", "b"} {
		acc := newTestAccount(id)
		acc.CreatedAt = testWeekStart.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CreateAccount(ctx, acc))
	}

	accounts, err := s.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, accounts, 3)
	assert.Equal(t, []string{"c", "a", "b"}, []string{accounts[0].ID, accounts[1].ID, accounts[2].ID})
}

func TestAward_DuplicateIsRejected(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))

	at := testWeekStart.Add(3 * time.Hour)
	acc, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 100, at), testWeekStart)
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.CurrentXP)
	assert.Equal(t, int64(100), acc.SeasonXP)
	assert.Equal(t, int64(100), acc.WeeklyXP)

	_, err = s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 100, at), testWeekStart)
	assert.ErrorIs(t, err, store.ErrDuplicateEvent)

	acc, err = s.GetAccount(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), acc.CurrentXP)

	n, err := s.CountEvents(ctx, store.EventQuery{SellerID: "seller-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	ok, err := s.HasEvent(ctx, "seller-1", model.EventTaskCompleted, "lesson-a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAward_ConcurrentDuplicates(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))

	var (
		wg      sync.WaitGroup
		awarded int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 40, testWeekStart.Add(time.Hour)), testWeekStart)
			if err == nil {
				atomic.AddInt32(&awarded, 1)
				return
			}
			assert.ErrorIs(t, err, store.ErrDuplicateEvent)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), awarded)
	acc, err := s.GetAccount(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(40), acc.CurrentXP)
}

func TestAward_RepeatableEventsHaveNoKey(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))

	for i := 0; i < 3; i++ {
		ev, err := model.NewEvent("seller-1", model.EventAutomationView, 2, "viewed",
			&model.AutomationPayload{AutomationID: "auto-1"}, testWeekStart.Add(time.Duration(i)*time.Minute))
		require.NoError(t, err)
		_, err = s.Award(ctx, ev, testWeekStart)
		require.NoError(t, err)
	}

	acc, err := s.GetAccount(ctx, "seller-1")
	require.NoError(t, err)
	assert.Equal(t, int64(6), acc.CurrentXP)
}

func TestAward_ResetsWeeklyXPInNewWeek(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))

	_, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 200, testWeekStart.Add(time.Hour)), testWeekStart)
	require.NoError(t, err)

	nextWeek := testWeekStart.AddDate(0, 0, 7)
	acc, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-b", 30, nextWeek.Add(time.Hour)), nextWeek)
	require.NoError(t, err)

	assert.Equal(t, int64(30), acc.WeeklyXP)
	assert.Equal(t, int64(230), acc.CurrentXP)
	assert.Equal(t, int64(230), acc.SeasonXP)
	assert.True(t, acc.WeekStart.Equal(nextWeek), "week start %v", acc.WeekStart)

	// A later award in the same week accumulates.
	acc, err = s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-c", 5, nextWeek.Add(2*time.Hour)), nextWeek)
	require.NoError(t, err)
	assert.Equal(t, int64(35), acc.WeeklyXP)
}

func TestAward_UnknownAccount(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Award(context.Background(), newTaskEvent(t, "ghost", "lesson-a", 10, testWeekStart), testWeekStart)
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestListEvents_Filters(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))

	_, err := s.Award(ctx, newTaskEvent(t, "seller-1", "old", 10, testWeekStart.Add(-time.Hour)), testWeekStart)
	require.NoError(t, err)
	_, err = s.Award(ctx, newTaskEvent(t, "seller-1", "new", 10, testWeekStart.Add(time.Hour)), testWeekStart)
	require.NoError(t, err)
	login, err := model.NewEvent("seller-1", model.EventLoginDay, 0, "login",
		&model.LoginDayPayload{LoginDate: "2026-10-18"}, testWeekStart.Add(2*time.Hour))
	require.NoError(t, err)
	_, err = s.Award(ctx, login, testWeekStart)
	require.NoError(t, err)

	events, err := s.ListEvents(ctx, store.EventQuery{
		SellerID: "seller-1",
		Types:    []model.EventType{model.EventTaskCompleted},
		Since:    testWeekStart,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "new", events[0].DedupeKey)
	assert.JSONEq(t, `{"lesson_id":"new"}`, string(events[0].Metadata))

	n, err := s.CountEvents(ctx, store.EventQuery{SellerID: "seller-1", Since: testWeekStart})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestListEvents_SameTimestampKeepsInsertionOrder(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-2")))

	at := testWeekStart.Add(5 * time.Hour)
	lessons := []string{"zeta", "alpha", "mike", "bravo"}
	for i, lesson := range lessons {
		_, err := s.Award(ctx, newTaskEvent(t, "seller-1", lesson, 10, at), testWeekStart)
		require.NoError(t, err)
		// Another seller's events interleave without disturbing seller-1's order.
		_, err = s.Award(ctx, newTaskEvent(t, "seller-2", fmt.Sprintf("other-%d", i), 10, at), testWeekStart)
		require.NoError(t, err)
	}
	// A rejected duplicate consumes no seq.
	_, err := s.Award(ctx, newTaskEvent(t, "seller-1", "zeta", 10, at), testWeekStart)
	require.ErrorIs(t, err, store.ErrDuplicateEvent)

	_, err = s.Transition(ctx, "seller-1", func(acc *model.Account, _ map[string]bool) (*model.RankTransition, error) {
		ev, err := model.NewEvent(acc.ID, model.EventRankUp, 0, "promoted",
			&model.RankUpPayload{OldRank: acc.CurrentRank, NewRank: "Apprentice"}, at)
		if err != nil {
			return nil, err
		}
		return &model.RankTransition{NewRank: "Apprentice", HighestRank: "Apprentice", CommissionRate: 0.15, Event: ev}, nil
	})
	require.NoError(t, err)

	events, err := s.ListEvents(ctx, store.EventQuery{SellerID: "seller-1"})
	require.NoError(t, err)

	var keys []string
	for _, ev := range events {
		keys = append(keys, ev.DedupeKey)
	}
	assert.Equal(t, []string{"zeta", "alpha", "mike", "bravo", "Apprentice"}, keys)
}

func TestUpdateStreak_SkipsStaleDate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))

	acc, err := s.UpdateStreak(ctx, "seller-1", 3, "2026-10-19")
	require.NoError(t, err)
	assert.Equal(t, 3, acc.LoginStreak)
	assert.Equal(t, "2026-10-19", acc.LastLoginDate)

	acc, err = s.UpdateStreak(ctx, "seller-1", 1, "2026-10-17")
	require.NoError(t, err)
	assert.Equal(t, 3, acc.LoginStreak)

	_, err = s.UpdateStreak(ctx, "ghost", 1, "2026-10-19")
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestTransition(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.CreateAccount(ctx, newTestAccount("seller-1")))
	_, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 10, testWeekStart.Add(time.Hour)), testWeekStart)
	require.NoError(t, err)

	promote := func(acc *model.Account, completed map[string]bool) (*model.RankTransition, error) {
		if acc.CurrentRank != "Recruit" || !completed["lesson-a"] {
			return nil, nil
		}
		ev, err := model.NewEvent(acc.ID, model.EventRankUp, 0, "promoted",
			&model.RankUpPayload{OldRank: acc.CurrentRank, NewRank: "Apprentice"}, testWeekStart.Add(5*time.Hour))
		if err != nil {
			return nil, err
		}
		return &model.RankTransition{NewRank: "Apprentice", HighestRank: "Apprentice", CommissionRate: 0.15, Event: ev}, nil
	}

	acc, err := s.Transition(ctx, "seller-1", promote)
	require.NoError(t, err)
	assert.Equal(t, "Apprentice", acc.CurrentRank)
	assert.Equal(t, "Apprentice", acc.HighestRank)
	assert.Equal(t, 0.15, acc.CommissionRate)

	// Second run sees the new rank and is a no-op.
	acc, err = s.Transition(ctx, "seller-1", promote)
	require.NoError(t, err)
	assert.Equal(t, "Apprentice", acc.CurrentRank)

	n, err := s.CountEvents(ctx, store.EventQuery{SellerID: "seller-1", Types: []model.EventType{model.EventRankUp}})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.Transition(ctx, "ghost", promote)
	assert.ErrorIs(t, err, store.ErrAccountNotFound)
}

func TestAckStore(t *testing.T) {
	acks := NewAckStore(setupTestDB(t))
	ctx := context.Background()
	at := testWeekStart.Add(time.Hour)

	_, ok, err := acks.AcknowledgedAt(ctx, "seller-1", "phone", "rank_up_popup")
	require.NoError(t, err)
	assert.False(t, ok)

	first, err := acks.Acknowledge(ctx, "seller-1", "phone", "rank_up_popup", at)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = acks.Acknowledge(ctx, "seller-1", "phone", "rank_up_popup", at.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, first)

	got, ok, err := acks.AcknowledgedAt(ctx, "seller-1", "phone", "rank_up_popup")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, got.Equal(at))

	_, ok, err = acks.AcknowledgedAt(ctx, "seller-1", "laptop", "rank_up_popup")
	require.NoError(t, err)
	assert.False(t, ok)
}
