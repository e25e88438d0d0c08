package progression

import (
	"github.com/partnerforge/progression/pkg/model"
)

// AwardResult is the outcome of an idempotent award. Awarded is false when the
// milestone was already recorded and nothing changed.
type AwardResult struct {
	Account *model.Account `json:"account"`
	Awarded bool           `json:"awarded"`
}

// DenialDetail tells the caller what is still missing for the next rank.
type DenialDetail struct {
	NextRank       string   `json:"next_rank,omitempty"`
	XPGap          int64    `json:"xp_gap,omitempty"`
	MissingTaskIDs []string `json:"missing_task_ids,omitempty"`
}

// AdvanceResult is the outcome of AdvanceRank. A denial is a normal result, not an error.
type AdvanceResult struct {
	Success bool           `json:"success"`
	NewRank string         `json:"new_rank,omitempty"`
	Reason  string         `json:"reason,omitempty"`
	Detail  *DenialDetail  `json:"detail,omitempty"`
	Account *model.Account `json:"account"`
}

// LoginResult is the outcome of RecordLoginDay.
type LoginResult struct {
	Account    *model.Account `json:"account"`
	LoginDate  string         `json:"login_date"`
	FirstToday bool           `json:"first_today"`
	Streak     int            `json:"streak"`
}

// ProgressionState is the read view of a seller's progression.
type ProgressionState struct {
	SellerID               string   `json:"seller_id"`
	BusinessName           string   `json:"business_name"`
	CurrentRank            string   `json:"current_rank"`
	HighestRank            string   `json:"highest_rank"`
	CurrentXP              int64    `json:"current_xp"`
	SeasonXP               int64    `json:"season_xp"`
	WeeklyXP               int64    `json:"weekly_xp"`
	CommissionRate         float64  `json:"commission_rate"`
	Capabilities           []string `json:"capabilities"`
	LoginStreak            int      `json:"login_streak"`
	LastLoginDate          string   `json:"last_login_date,omitempty"`
	CompletedLessonIDs     []string `json:"completed_lesson_ids"`
	NextRank               string   `json:"next_rank,omitempty"`
	XPToNextRank           int64    `json:"xp_to_next_rank"`
	RequiredTasksRemaining []string `json:"required_tasks_remaining"`
}
