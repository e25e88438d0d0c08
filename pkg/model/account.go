package model

import (
	"time"
)

// Account is the per-seller progression record. Only the progression engine mutates it.
type Account struct {
	ID             string    `json:"id"`
	BusinessName   string    `json:"business_name"`
	CurrentXP      int64     `json:"current_xp"`
	SeasonXP       int64     `json:"season_xp"`
	WeeklyXP       int64     `json:"weekly_xp"`
	WeekStart      time.Time `json:"week_start"`
	CurrentRank    string    `json:"current_rank"`
	HighestRank    string    `json:"highest_rank"`
	LoginStreak    int       `json:"login_streak"`
	LastLoginDate  string    `json:"last_login_date,omitempty"`
	CommissionRate float64   `json:"commission_rate"`
	ReferralCode   string    `json:"referral_code"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// RankTransition describes a promotion decided inside a store transaction.
// The store applies it to the account and appends Event atomically.
type RankTransition struct {
	NewRank        string
	HighestRank    string
	CommissionRate float64
	Event          *ActivityEvent
}
