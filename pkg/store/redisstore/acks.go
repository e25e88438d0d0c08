package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/partnerforge/progression/pkg/store"
)

// AckStore keeps per-device acknowledgment flags in one hash per seller,
// field "device|flag" -> acknowledged_at.
type AckStore struct {
	client redis.UniversalClient
}

func NewAckStore(client redis.UniversalClient) *AckStore {
	return &AckStore{client: client}
}

func makeAckKey(sellerID string) string {
	return fmt.Sprintf("%sack:{%s}", keyPrefix, sellerID)
}

// Acknowledge records the flag once. first is false when it was already set.
func (a *AckStore) Acknowledge(ctx context.Context, sellerID, deviceID, flag string, at time.Time) (bool, error) {
	first, err := a.client.HSetNX(ctx, makeAckKey(sellerID), deviceID+"|"+flag, at.UTC().Format(time.RFC3339Nano)).Result()
	if err != nil {
		return false, store.Wrap("acknowledge", err)
	}
	return first, nil
}

// AcknowledgedAt returns when the flag was set, if ever.
func (a *AckStore) AcknowledgedAt(ctx context.Context, sellerID, deviceID, flag string) (time.Time, bool, error) {
	v, err := a.client.HGet(ctx, makeAckKey(sellerID), deviceID+"|"+flag).Result()
	if err == redis.Nil {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, store.Wrap("get acknowledgment", err)
	}
	at, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, false, store.Wrap("decode acknowledgment", err)
	}
	return at, true, nil
}
