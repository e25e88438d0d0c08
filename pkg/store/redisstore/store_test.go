package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"github.com/partnerforge/progression/pkg/model"
	"github.com/partnerforge/progression/pkg/store"
)

var testWeekStart = time.Date(2026, 10, 18, 0, 0, 0, 0, time.UTC)

// setupTestStore creates a store backed by a miniredis instance
func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(client), mr
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
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return ev
}

func TestCreateAndGetAccount(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	acc := newTestAccount("seller-1")
	if err := s.CreateAccount(ctx, acc); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	got, err := s.GetAccount(ctx, "seller-1")
	if err != nil {
		t.Fatalf("GetAccount() error = %v", err)
	}
	if got.BusinessName != acc.BusinessName || got.CurrentRank != "Recruit" || got.CommissionRate != 0.1 {
		t.Errorf("GetAccount() = %+v, expected fields of %+v", got, acc)
	}
	if !got.WeekStart.Equal(testWeekStart) {
		t.Errorf("WeekStart = %v, expected %v", got.WeekStart, testWeekStart)
	}
	if !got.CreatedAt.Equal(acc.CreatedAt) {
		t.Errorf("CreatedAt = %v, expected %v", got.CreatedAt, acc.CreatedAt)
	}

	if err := s.CreateAccount(ctx, acc); !errors.Is(err, store.ErrAccountExists) {
		t.Errorf("second CreateAccount() error = %v, expected ErrAccountExists", err)
	}
	if _, err := s.GetAccount(ctx, "missing"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("GetAccount(missing) error = %v, expected ErrAccountNotFound", err)
	}
}

func TestListAccounts_CreationOrder(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	for i, id := range []string{"c", "a", "b"} {
		acc := newTestAccount(id)
		acc.CreatedAt = testWeekStart.Add(time.Duration(i) * time.Minute)
		if err := s.CreateAccount(ctx, acc); err != nil {
			t.Fatalf("CreateAccount(%s) error = %v", id, err)
		}
	}

	accounts, err := s.ListAccounts(ctx)
	if err != nil {
		t.Fatalf("ListAccounts() error = %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("ListAccounts() returned %d accounts, expected 3", len(accounts))
	}
	for i, id := range []string{"c", "a", "b"} {
		if accounts[i].ID != id {
			t.Errorf("accounts[%d] = %s, expected %s", i, accounts[i].ID, id)
		}
	}
}

func TestAward_IncrementsTotals(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	acc, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 150, testWeekStart.Add(3*time.Hour)), testWeekStart)
	if err != nil {
		t.Fatalf("Award() error = %v", err)
	}
	if acc.CurrentXP != 150 || acc.SeasonXP != 150 || acc.WeeklyXP != 150 {
		t.Errorf("totals = %d/%d/%d, expected 150 each", acc.CurrentXP, acc.SeasonXP, acc.WeeklyXP)
	}

	ok, err := s.HasEvent(ctx, "seller-1", model.EventTaskCompleted, "lesson-a")
	if err != nil || !ok {
		t.Errorf("HasEvent() = %v, %v, expected true", ok, err)
	}
}

func TestAward_DuplicateIsRejected(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	at := testWeekStart.Add(3 * time.Hour)
	if _, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 100, at), testWeekStart); err != nil {
		t.Fatalf("first Award() error = %v", err)
	}

	_, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 100, at), testWeekStart)
	if !errors.Is(err, store.ErrDuplicateEvent) {
		t.Fatalf("second Award() error = %v, expected ErrDuplicateEvent", err)
	}

	acc, _ := s.GetAccount(ctx, "seller-1")
	if acc.CurrentXP != 100 {
		t.Errorf("CurrentXP = %d, expected 100", acc.CurrentXP)
	}
	n, _ := s.CountEvents(ctx, store.EventQuery{SellerID: "seller-1"})
	if n != 1 {
		t.Errorf("CountEvents() = %d, expected 1", n)
	}
}

func TestAward_ConcurrentDuplicates(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	const callers = 20
	var (
		wg      sync.WaitGroup
		awarded int32
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 50, testWeekStart.Add(time.Hour)), testWeekStart)
			if err == nil {
				atomic.AddInt32(&awarded, 1)
			} else if !errors.Is(err, store.ErrDuplicateEvent) {
				t.Errorf("Award() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	if awarded != 1 {
		t.Errorf("awarded = %d, expected exactly 1", awarded)
	}
	acc, _ := s.GetAccount(ctx, "seller-1")
	if acc.CurrentXP != 50 {
		t.Errorf("CurrentXP = %d, expected 50", acc.CurrentXP)
	}
}

func TestAward_NonMilestoneEventsRepeat(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	for i := 0; i < 3; i++ {
		ev, err := model.NewEvent("seller-1", model.EventCourseOpened, 5, "opened",
			&model.CoursePayload{CourseID: "course-1"}, testWeekStart.Add(time.Duration(i)*time.Minute))
		if err != nil {
			t.Fatalf("NewEvent() error = %v", err)
		}
		if _, err := s.Award(ctx, ev, testWeekStart); err != nil {
			t.Fatalf("Award() error = %v", err)
		}
	}

	acc, _ := s.GetAccount(ctx, "seller-1")
	if acc.CurrentXP != 15 {
		t.Errorf("CurrentXP = %d, expected 15", acc.CurrentXP)
	}
}

func TestAward_ResetsWeeklyXPInNewWeek(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	_, _ = s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 200, testWeekStart.Add(time.Hour)), testWeekStart)

	nextWeek := testWeekStart.AddDate(0, 0, 7)
	acc, err := s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-b", 30, nextWeek.Add(time.Hour)), nextWeek)
	if err != nil {
		t.Fatalf("Award() error = %v", err)
	}
	if acc.WeeklyXP != 30 {
		t.Errorf("WeeklyXP = %d, expected 30 after reset", acc.WeeklyXP)
	}
	if acc.CurrentXP != 230 || acc.SeasonXP != 230 {
		t.Errorf("CurrentXP/SeasonXP = %d/%d, expected 230", acc.CurrentXP, acc.SeasonXP)
	}
	if !acc.WeekStart.Equal(nextWeek) {
		t.Errorf("WeekStart = %v, expected %v", acc.WeekStart, nextWeek)
	}
}

func TestAward_UnknownAccount(t *testing.T) {
	s, _ := setupTestStore(t)

	_, err := s.Award(context.Background(), newTaskEvent(t, "ghost", "lesson-a", 10, testWeekStart), testWeekStart)
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Award() error = %v, expected ErrAccountNotFound", err)
	}
}

func TestListEvents_Filters(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	_, _ = s.Award(ctx, newTaskEvent(t, "seller-1", "old", 10, testWeekStart.Add(-time.Hour)), testWeekStart)
	_, _ = s.Award(ctx, newTaskEvent(t, "seller-1", "new", 10, testWeekStart.Add(time.Hour)), testWeekStart)
	login, _ := model.NewEvent("seller-1", model.EventLoginDay, 0, "login",
		&model.LoginDayPayload{LoginDate: "2026-10-18"}, testWeekStart.Add(2*time.Hour))
	_, _ = s.Award(ctx, login, testWeekStart)

	events, err := s.ListEvents(ctx, store.EventQuery{
		SellerID: "seller-1",
		Types:    []model.EventType{model.EventTaskCompleted},
		Since:    testWeekStart,
	})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 1 || events[0].DedupeKey != "new" {
		t.Fatalf("ListEvents() = %+v, expected only the in-week task", events)
	}

	var payload model.TaskCompletedPayload
	if err := json.Unmarshal(events[0].Metadata, &payload); err != nil || payload.LessonID != "new" {
		t.Errorf("metadata = %s, expected lesson_id new", events[0].Metadata)
	}

	all, _ := s.CountEvents(ctx, store.EventQuery{SellerID: "seller-1"})
	if all != 3 {
		t.Errorf("CountEvents() = %d, expected 3", all)
	}
}

func TestListEvents_SameMillisecondKeepsInsertionOrder(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	at := testWeekStart.Add(5 * time.Hour)
	lessons := []string{"zeta", "alpha", "mike", "bravo"}
	for _, lesson := range lessons {
		if _, err := s.Award(ctx, newTaskEvent(t, "seller-1", lesson, 10, at), testWeekStart); err != nil {
			t.Fatalf("Award(%s) error = %v", lesson, err)
		}
	}
	_, err := s.Transition(ctx, "seller-1", func(acc *model.Account, _ map[string]bool) (*model.RankTransition, error) {
		return rankUpTransition(t, acc, "Apprentice"), nil
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}

	events, err := s.ListEvents(ctx, store.EventQuery{SellerID: "seller-1"})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	expected := append(append([]string{}, lessons...), "Apprentice")
	if len(events) != len(expected) {
		t.Fatalf("ListEvents() returned %d events, expected %d", len(events), len(expected))
	}
	for i, ev := range events {
		if ev.DedupeKey != expected[i] {
			t.Errorf("events[%d] = %s, expected %s", i, ev.DedupeKey, expected[i])
		}
	}
}

func TestListEvents_ReadsUnsequencedMembers(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	ev := newTaskEvent(t, "seller-1", "legacy", 10, testWeekStart.Add(time.Hour))
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if _, err := mr.ZAdd(makeEventsKey("seller-1"), eventScore(ev.CreatedAt), string(data)); err != nil {
		t.Fatalf("ZAdd() error = %v", err)
	}
	_, _ = s.Award(ctx, newTaskEvent(t, "seller-1", "current", 10, testWeekStart.Add(2*time.Hour)), testWeekStart)

	events, err := s.ListEvents(ctx, store.EventQuery{SellerID: "seller-1"})
	if err != nil {
		t.Fatalf("ListEvents() error = %v", err)
	}
	if len(events) != 2 || events[0].DedupeKey != "legacy" || events[1].DedupeKey != "current" {
		t.Errorf("ListEvents() = %+v, expected legacy then current", events)
	}
}

func TestUpdateStreak_SkipsStaleDate(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	acc, err := s.UpdateStreak(ctx, "seller-1", 3, "2026-10-19")
	if err != nil {
		t.Fatalf("UpdateStreak() error = %v", err)
	}
	if acc.LoginStreak != 3 || acc.LastLoginDate != "2026-10-19" {
		t.Errorf("streak = %d/%s, expected 3/2026-10-19", acc.LoginStreak, acc.LastLoginDate)
	}

	acc, err = s.UpdateStreak(ctx, "seller-1", 1, "2026-10-17")
	if err != nil {
		t.Fatalf("UpdateStreak() error = %v", err)
	}
	if acc.LoginStreak != 3 {
		t.Errorf("LoginStreak = %d, stale update should be ignored", acc.LoginStreak)
	}

	if _, err := s.UpdateStreak(ctx, "ghost", 1, "2026-10-19"); !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("UpdateStreak(ghost) error = %v, expected ErrAccountNotFound", err)
	}
}

func rankUpTransition(t *testing.T, acc *model.Account, newRank string) *model.RankTransition {
	t.Helper()
	ev, err := model.NewEvent(acc.ID, model.EventRankUp, 0, "promoted",
		&model.RankUpPayload{OldRank: acc.CurrentRank, NewRank: newRank}, testWeekStart.Add(5*time.Hour))
	if err != nil {
		t.Fatalf("NewEvent() error = %v", err)
	}
	return &model.RankTransition{NewRank: newRank, HighestRank: newRank, CommissionRate: 0.15, Event: ev}
}

func TestTransition_AppliesRankChange(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))
	_, _ = s.Award(ctx, newTaskEvent(t, "seller-1", "lesson-a", 10, testWeekStart.Add(time.Hour)), testWeekStart)

	acc, err := s.Transition(ctx, "seller-1", func(acc *model.Account, completed map[string]bool) (*model.RankTransition, error) {
		if !completed["lesson-a"] {
			t.Errorf("completed = %v, expected lesson-a", completed)
		}
		return rankUpTransition(t, acc, "Apprentice"), nil
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if acc.CurrentRank != "Apprentice" || acc.HighestRank != "Apprentice" || acc.CommissionRate != 0.15 {
		t.Errorf("account = %+v, expected Apprentice at 0.15", acc)
	}

	stored, _ := s.GetAccount(ctx, "seller-1")
	if stored.CurrentRank != "Apprentice" {
		t.Errorf("stored CurrentRank = %s, expected Apprentice", stored.CurrentRank)
	}
	if ok, _ := s.HasEvent(ctx, "seller-1", model.EventRankUp, "Apprentice"); !ok {
		t.Error("expected rank_up event to be recorded")
	}
}

func TestTransition_NilLeavesAccountUnchanged(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	acc, err := s.Transition(ctx, "seller-1", func(*model.Account, map[string]bool) (*model.RankTransition, error) {
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Transition() error = %v", err)
	}
	if acc.CurrentRank != "Recruit" {
		t.Errorf("CurrentRank = %s, expected Recruit", acc.CurrentRank)
	}
	if n, _ := s.CountEvents(ctx, store.EventQuery{SellerID: "seller-1"}); n != 0 {
		t.Errorf("CountEvents() = %d, expected 0", n)
	}
}

func TestTransition_ReturnsCallbackError(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	boom := errors.New("boom")
	_, err := s.Transition(ctx, "seller-1", func(*model.Account, map[string]bool) (*model.RankTransition, error) {
		return nil, boom
	})
	if err != boom {
		t.Errorf("Transition() error = %v, expected callback error unchanged", err)
	}

	_, err = s.Transition(ctx, "ghost", func(*model.Account, map[string]bool) (*model.RankTransition, error) {
		return nil, nil
	})
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Errorf("Transition(ghost) error = %v, expected ErrAccountNotFound", err)
	}
}

func TestTransition_ConcurrentCallersAdvanceOnce(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()
	_ = s.CreateAccount(ctx, newTestAccount("seller-1"))

	var (
		wg       sync.WaitGroup
		promoted int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Transition(ctx, "seller-1", func(acc *model.Account, _ map[string]bool) (*model.RankTransition, error) {
				if acc.CurrentRank != "Recruit" {
					return nil, nil
				}
				return rankUpTransition(t, acc, "Apprentice"), nil
			})
			if err != nil {
				t.Errorf("Transition() error = %v", err)
				return
			}
			atomic.AddInt32(&promoted, 1)
		}()
	}
	wg.Wait()

	events, _ := s.ListEvents(ctx, store.EventQuery{SellerID: "seller-1", Types: []model.EventType{model.EventRankUp}})
	if len(events) != 1 {
		t.Errorf("rank_up events = %d, expected 1", len(events))
	}
	if promoted != 10 {
		t.Errorf("successful calls = %d, expected all 10 to settle", promoted)
	}
}

func TestPing(t *testing.T) {
	s, mr := setupTestStore(t)

	if err := s.Ping(context.Background()); err != nil {
		t.Errorf("Ping() error = %v", err)
	}

	mr.Close()
	if err := s.Ping(context.Background()); err == nil {
		t.Error("Ping() should fail once Redis is down")
	}
}
