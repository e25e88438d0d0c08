// Package store defines the persistence contracts of the progression engine: the
// per-seller account record and the append-only event log.
//
// Uniqueness of milestone events is enforced by the backend, never in process.
// Implementations live in redisstore and gormstore.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/partnerforge/progression/pkg/model"
)

var (
	// ErrAccountNotFound is returned when the seller has no account.
	ErrAccountNotFound = errors.New("account not found")
	// ErrAccountExists is returned by CreateAccount when the id is taken.
	ErrAccountExists = errors.New("account already exists")
	// ErrDuplicateEvent is returned when an event with the same
	// (seller_id, event_type, dedupe_key) is already recorded.
	ErrDuplicateEvent = errors.New("duplicate event")
)

// StorageError wraps a failure of the underlying backend.
// All writes are idempotent at the storage constraint, so callers may retry.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Wrap returns err wrapped in a StorageError, or nil when err is nil.
// Sentinel errors of this package are returned unwrapped.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrAccountNotFound) || errors.Is(err, ErrAccountExists) || errors.Is(err, ErrDuplicateEvent) {
		return err
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}

// EventQuery selects events of one seller.
type EventQuery struct {
	SellerID string
	// Types restricts the result to the given event types. Empty means all types.
	Types []model.EventType
	// Since keeps only events created at or after this instant. Zero means no bound.
	Since time.Time
}

// Matches reports whether ev satisfies the type and time filters of q.
func (q EventQuery) Matches(ev *model.ActivityEvent) bool {
	if !q.Since.IsZero() && ev.CreatedAt.Before(q.Since) {
		return false
	}
	if len(q.Types) == 0 {
		return true
	}
	for _, t := range q.Types {
		if ev.Type == t {
			return true
		}
	}
	return false
}

// TransitionFunc evaluates a rank change against a consistent snapshot of the account
// and its completed lesson ids. Returning a nil transition leaves the account unchanged.
type TransitionFunc func(acc *model.Account, completed map[string]bool) (*model.RankTransition, error)

// AccountStore is the per-seller account CRUD.
type AccountStore interface {
	CreateAccount(ctx context.Context, acc *model.Account) error
	GetAccount(ctx context.Context, sellerID string) (*model.Account, error)
	// ListAccounts returns every account in creation order.
	ListAccounts(ctx context.Context) ([]model.Account, error)
	// UpdateStreak stores a recomputed login streak. The write is skipped when
	// lastLoginDate is older than the stored one.
	UpdateStreak(ctx context.Context, sellerID string, streak int, lastLoginDate string) (*model.Account, error)
}

// EventLog is the queryable, append-only activity log.
type EventLog interface {
	// ListEvents returns matching events ordered by creation time. Events
	// created at the same instant come back in insertion order.
	ListEvents(ctx context.Context, q EventQuery) ([]model.ActivityEvent, error)
	CountEvents(ctx context.Context, q EventQuery) (int, error)
	HasEvent(ctx context.Context, sellerID string, t model.EventType, dedupeKey string) (bool, error)
}

// Ledger holds the two atomic write paths of the engine.
type Ledger interface {
	// Award appends ev and increments the account's XP totals in one atomic step.
	// weekly_xp is reset first when weekStart is newer than the account's week start.
	// Returns ErrDuplicateEvent, with no side effects, when ev's dedupe key is taken.
	Award(ctx context.Context, ev *model.ActivityEvent, weekStart time.Time) (*model.Account, error)

	// Transition runs fn inside a per-seller read-evaluate-write transaction and applies
	// the returned rank transition, appending its event.
	Transition(ctx context.Context, sellerID string, fn TransitionFunc) (*model.Account, error)
}

// Store is a complete progression backend.
type Store interface {
	AccountStore
	EventLog
	Ledger
	Ping(ctx context.Context) error
	Close() error
}
