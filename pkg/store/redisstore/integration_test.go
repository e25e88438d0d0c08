//go:build integration
// +build integration

package redisstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/partnerforge/progression/pkg/store"
)

// Run with: go test -tags integration ./pkg/store/redisstore/
// Requires a Redis reachable at REDIS_HOST:REDIS_PORT (default localhost:6379).
func TestIntegration_RealRedis(t *testing.T) {
	logrus.SetLevel(logrus.DebugLevel)
	ctx := context.Background()

	host := os.Getenv("REDIS_HOST")
	if host == "" {
		host = "localhost"
	}
	port := os.Getenv("REDIS_PORT")
	if port == "" {
		port = "6379"
	}

	client, err := NewClient(ctx, ClientConfig{
		Host:       host,
		Port:       port,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
	})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	s := New(client)
	defer s.Close()

	sellerID := fmt.Sprintf("it-seller-%d", time.Now().UnixNano())
	t.Cleanup(func() {
		client.Del(ctx, makeAccountKey(sellerID), makeDedupeKey(sellerID), makeEventsKey(sellerID), makeEventSeqKey(sellerID))
		client.SRem(ctx, accountsSetKey, sellerID)
	})

	if err := s.CreateAccount(ctx, newTestAccount(sellerID)); err != nil {
		t.Fatalf("CreateAccount() error = %v", err)
	}

	ev := newTaskEvent(t, sellerID, "lesson-a", 120, time.Now())
	acc, err := s.Award(ctx, ev, testWeekStart)
	if err != nil {
		t.Fatalf("Award() error = %v", err)
	}
	if acc.CurrentXP != 120 {
		t.Errorf("CurrentXP = %d, expected 120", acc.CurrentXP)
	}

	_, err = s.Award(ctx, newTaskEvent(t, sellerID, "lesson-a", 120, time.Now()), testWeekStart)
	if !errors.Is(err, store.ErrDuplicateEvent) {
		t.Errorf("duplicate Award() error = %v, expected ErrDuplicateEvent", err)
	}

	if err := store.NewHealthChecker(s).Check(ctx); err != nil {
		t.Errorf("health check error = %v", err)
	}
}

