// Package leaderboard ranks sellers by XP.
package leaderboard

import (
	"context"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/partnerforge/progression/pkg/store"
)

// DefaultLimit is used when the caller does not ask for a specific number of rows.
const DefaultLimit = 10

// Entry is one leaderboard row.
type Entry struct {
	Position     int    `json:"position"`
	SellerID     string `json:"seller_id"`
	BusinessName string `json:"business_name"`
	CurrentXP    int64  `json:"current_xp"`
	CurrentRank  string `json:"current_rank"`
	IsRequester  bool   `json:"is_requester"`
}

// Service builds leaderboards from the account store.
type Service struct {
	accounts store.AccountStore
}

// NewService creates a leaderboard service.
func NewService(accounts store.AccountStore) *Service {
	return &Service{accounts: accounts}
}

// GetLeaderboard returns the top limit sellers by current XP, skipping the account
// named excludeName. Ties keep the store's listing order. The row of requesterID,
// if present, is flagged.
func (s *Service) GetLeaderboard(ctx context.Context, excludeName string, limit int, requesterID string) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(accounts))
	for _, acc := range accounts {
		if excludeName != "" && acc.BusinessName == excludeName {
			continue
		}
		entries = append(entries, Entry{
			SellerID:     acc.ID,
			BusinessName: acc.BusinessName,
			CurrentXP:    acc.CurrentXP,
			CurrentRank:  acc.CurrentRank,
			IsRequester:  requesterID != "" && acc.ID == requesterID,
		})
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].CurrentXP > entries[j].CurrentXP
	})

	if len(entries) > limit {
		entries = entries[:limit]
	}
	for i := range entries {
		entries[i].Position = i + 1
	}
	return entries, nil
}

// MaskName hides a business name for display, keeping its first and last character.
// Names of two characters or fewer are fully masked.
func MaskName(name string) string {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n <= 2 {
		return strings.Repeat("*", n)
	}

	runes := []rune(name)
	return string(runes[0]) + strings.Repeat("*", n-2) + string(runes[n-1])
}

// Mask returns a copy of entries with every business name masked except the requester's.
func Mask(entries []Entry) []Entry {
	masked := make([]Entry, len(entries))
	for i, e := range entries {
		if !e.IsRequester {
			e.BusinessName = MaskName(e.BusinessName)
		}
		masked[i] = e
	}
	return masked
}
