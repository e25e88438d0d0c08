// Package ack records per-device presentation flags, such as whether the rank-up
// popup for a rank was already shown on a device. It lives outside the progression
// engine and never affects XP or rank.
package ack

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
)

// RankUpPopupFlag returns the flag recorded once the rank-up popup for rank was shown.
func RankUpPopupFlag(rank string) string {
	return "rank_up_popup:" + rank
}

// Store persists acknowledgments. Acknowledge reports whether this call set the flag.
type Store interface {
	Acknowledge(ctx context.Context, sellerID, deviceID, flag string, at time.Time) (bool, error)
	AcknowledgedAt(ctx context.Context, sellerID, deviceID, flag string) (time.Time, bool, error)
}

// Key identifies one flag on one device.
type Key struct {
	SellerID string `validate:"required,max=64"`
	DeviceID string `validate:"required,max=128,printascii"`
	Flag     string `validate:"required,max=128,printascii"`
}

// Status is the acknowledgment state of a flag.
type Status struct {
	SellerID       string     `json:"seller_id"`
	DeviceID       string     `json:"device_id"`
	Flag           string     `json:"flag"`
	Acknowledged   bool       `json:"acknowledged"`
	AcknowledgedAt *time.Time `json:"acknowledged_at,omitempty"`
}

// Service validates and records acknowledgments.
type Service struct {
	store    Store
	validate *validator.Validate
	now      func() time.Time
}

// NewService creates an acknowledgment service.
func NewService(s Store) *Service {
	return &Service{
		store:    s,
		validate: validator.New(),
		now:      time.Now,
	}
}

// Acknowledge sets the flag for the device. Repeated calls keep the first timestamp.
func (s *Service) Acknowledge(ctx context.Context, k Key) (*Status, error) {
	if err := s.validate.Struct(k); err != nil {
		return nil, fmt.Errorf("invalid acknowledgment: %w", err)
	}

	first, err := s.store.Acknowledge(ctx, k.SellerID, k.DeviceID, k.Flag, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if first {
		logrus.Debugf("seller %s acknowledged %s on device %s", k.SellerID, k.Flag, k.DeviceID)
	}
	return s.Get(ctx, k)
}

// Get returns the acknowledgment state of the flag.
func (s *Service) Get(ctx context.Context, k Key) (*Status, error) {
	if err := s.validate.Struct(k); err != nil {
		return nil, fmt.Errorf("invalid acknowledgment: %w", err)
	}

	at, ok, err := s.store.AcknowledgedAt(ctx, k.SellerID, k.DeviceID, k.Flag)
	if err != nil {
		return nil, err
	}

	st := &Status{SellerID: k.SellerID, DeviceID: k.DeviceID, Flag: k.Flag, Acknowledged: ok}
	if ok {
		st.AcknowledgedAt = &at
	}
	return st, nil
}

// IsAcknowledged reports whether the flag is set for the device.
func (s *Service) IsAcknowledged(ctx context.Context, k Key) (bool, error) {
	st, err := s.Get(ctx, k)
	if err != nil {
		return false, err
	}
	return st.Acknowledged, nil
}
