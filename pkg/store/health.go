package store

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Pinger is anything that can report backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker provides backend health check functionality
type HealthChecker struct {
	pinger Pinger
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(p Pinger) *HealthChecker {
	return &HealthChecker{pinger: p}
}

// Check performs a backend health check
func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := h.pinger.Ping(ctx); err != nil {
		logrus.Errorf("store health check failed: %v", err)
		return err
	}

	logrus.Debugf("store health check passed")
	return nil
}

// IsHealthy returns true if the backend is accessible
func (h *HealthChecker) IsHealthy(ctx context.Context) bool {
	return h.Check(ctx) == nil
}
