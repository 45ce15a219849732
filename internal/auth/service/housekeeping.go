package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/cataloghq/authcore/internal/auth/store"
)

// retainExpired keeps expired refresh rows around for a while so replay
// investigations still have the lineage to look at.
const retainExpired = 30 * 24 * time.Hour

// HousekeepingService periodically deletes long-expired refresh token
// records so the table does not grow without bound. Revoked-but-live
// rows are untouched.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates the service. A zero or negative
// interval defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, waiting for an in-progress sweep.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HousekeepingService) sweep() {
	ctx := context.Background()
	cutoff := time.Now().Add(-retainExpired)

	if err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, cutoff); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
		return
	}
	s.Logger.Debug("deleted expired refresh tokens", "cutoff", cutoff)
}
