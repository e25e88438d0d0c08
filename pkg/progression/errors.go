package progression

import (
	"fmt"

	"github.com/partnerforge/progression/pkg/store"
)

// Denial reasons returned by AdvanceRank.
const (
	ReasonInsufficientXP  = "insufficient_xp"
	ReasonTasksIncomplete = "tasks_incomplete"
	ReasonMaxRank         = "max_rank"
)

// ValidationError rejects a request before anything is written.
type ValidationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

func unknownSeller(sellerID string) error {
	return &ValidationError{
		Field:  "seller_id",
		Reason: fmt.Sprintf("unknown seller %q", sellerID),
		Err:    store.ErrAccountNotFound,
	}
}
