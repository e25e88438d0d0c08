package gormstore

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"

	"github.com/partnerforge/progression/pkg/model"
)

type accountRow struct {
	ID             string    `gorm:"primaryKey;size:64"`
	BusinessName   string    `gorm:"size:255;not null"`
	CurrentXP      int64     `gorm:"column:current_xp;not null;default:0"`
	SeasonXP       int64     `gorm:"column:season_xp;not null;default:0"`
	WeeklyXP       int64     `gorm:"column:weekly_xp;not null;default:0"`
	WeekStart      time.Time `gorm:"not null"`
	CurrentRank    string    `gorm:"size:64;not null"`
	HighestRank    string    `gorm:"size:64;not null"`
	LoginStreak    int       `gorm:"not null;default:0"`
	LastLoginDate  string    `gorm:"size:10;not null;default:''"`
	CommissionRate float64   `gorm:"not null;default:0"`
	ReferralCode   string    `gorm:"size:128;uniqueIndex"`
	CreatedAt      time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (accountRow) TableName() string { return "progression_accounts" }

// eventRow is one entry of the event log. NULL dedupe keys never collide,
// so only milestone events are constrained by idx_events_dedupe.
type eventRow struct {
	ID          string         `gorm:"primaryKey;size:36"`
	SellerID    string         `gorm:"size:64;not null;uniqueIndex:idx_events_dedupe,priority:1;index:idx_events_seller_created,priority:1"`
	EventType   string         `gorm:"size:32;not null;uniqueIndex:idx_events_dedupe,priority:2"`
	DedupeKey   *string        `gorm:"size:128;uniqueIndex:idx_events_dedupe,priority:3"`
	XPValue     int64          `gorm:"column:xp_value;not null;default:0"`
	Description string         `gorm:"size:512"`
	Metadata    datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null;index:idx_events_seller_created,priority:2"`
	// Seq numbers a seller's events in insertion order.
	Seq int64 `gorm:"not null;default:0"`
}

func (eventRow) TableName() string { return "progression_events" }

type ackRow struct {
	SellerID       string    `gorm:"primaryKey;size:64"`
	DeviceID       string    `gorm:"primaryKey;size:128"`
	Flag           string    `gorm:"primaryKey;size:64"`
	AcknowledgedAt time.Time `gorm:"not null"`
}

func (ackRow) TableName() string { return "device_acknowledgments" }

func toAccountRow(acc *model.Account) *accountRow {
	return &accountRow{
		ID:             acc.ID,
		BusinessName:   acc.BusinessName,
		CurrentXP:      acc.CurrentXP,
		SeasonXP:       acc.SeasonXP,
		WeeklyXP:       acc.WeeklyXP,
		WeekStart:      acc.WeekStart.UTC(),
		CurrentRank:    acc.CurrentRank,
		HighestRank:    acc.HighestRank,
		LoginStreak:    acc.LoginStreak,
		LastLoginDate:  acc.LastLoginDate,
		CommissionRate: acc.CommissionRate,
		ReferralCode:   acc.ReferralCode,
		CreatedAt:      acc.CreatedAt.UTC(),
		UpdatedAt:      acc.UpdatedAt.UTC(),
	}
}

func (r *accountRow) toModel() *model.Account {
	return &model.Account{
		ID:             r.ID,
		BusinessName:   r.BusinessName,
		CurrentXP:      r.CurrentXP,
		SeasonXP:       r.SeasonXP,
		WeeklyXP:       r.WeeklyXP,
		WeekStart:      r.WeekStart.UTC(),
		CurrentRank:    r.CurrentRank,
		HighestRank:    r.HighestRank,
		LoginStreak:    r.LoginStreak,
		LastLoginDate:  r.LastLoginDate,
		CommissionRate: r.CommissionRate,
		ReferralCode:   r.ReferralCode,
		CreatedAt:      r.CreatedAt.UTC(),
		UpdatedAt:      r.UpdatedAt.UTC(),
	}
}

func toEventRow(ev *model.ActivityEvent) *eventRow {
	row := &eventRow{
		ID:          ev.ID,
		SellerID:    ev.SellerID,
		EventType:   string(ev.Type),
		XPValue:     ev.XP,
		Description: ev.Description,
		Metadata:    datatypes.JSON(ev.Metadata),
		CreatedAt:   ev.CreatedAt.UTC(),
	}
	if len(row.Metadata) == 0 {
		row.Metadata = datatypes.JSON("{}")
	}
	if ev.DedupeKey != "" {
		key := ev.DedupeKey
		row.DedupeKey = &key
	}
	return row
}

func (r *eventRow) toModel() model.ActivityEvent {
	ev := model.ActivityEvent{
		ID:          r.ID,
		SellerID:    r.SellerID,
		Type:        model.EventType(r.EventType),
		XP:          r.XPValue,
		Description: r.Description,
		Metadata:    json.RawMessage(r.Metadata),
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if r.DedupeKey != nil {
		ev.DedupeKey = *r.DedupeKey
	}
	return ev
}
