package gormstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/partnerforge/progression/pkg/store"
)

// AckStore keeps per-device acknowledgment flags in device_acknowledgments.
type AckStore struct {
	db *gorm.DB
}

func NewAckStore(db *gorm.DB) *AckStore {
	return &AckStore{db: db}
}

// Acknowledge records the flag once. first is false when it was already set.
func (a *AckStore) Acknowledge(ctx context.Context, sellerID, deviceID, flag string, at time.Time) (bool, error) {
	res := a.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&ackRow{SellerID: sellerID, DeviceID: deviceID, Flag: flag, AcknowledgedAt: at.UTC()})
	if res.Error != nil {
		return false, store.Wrap("acknowledge", res.Error)
	}
	return res.RowsAffected == 1, nil
}

// AcknowledgedAt returns when the flag was set, if ever.
func (a *AckStore) AcknowledgedAt(ctx context.Context, sellerID, deviceID, flag string) (time.Time, bool, error) {
	var row ackRow
	err := a.db.WithContext(ctx).
		First(&row, "seller_id = ? AND device_id = ? AND flag = ?", sellerID, deviceID, flag).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, store.Wrap("get acknowledgment", err)
	}
	return row.AcknowledgedAt.UTC(), true, nil
}
