package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/trustline/internal/auth/store"
)

// HousekeepingService periodically prunes refresh session sets. A per-token
// key expires on its own, but its member stays in refresh:{userId} until
// pruned, and the session cap counts set members.
type HousekeepingService struct {
	Sessions store.RefreshSessions
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval defaults to 1 hour.
func NewHousekeepingService(sessions store.RefreshSessions, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = time.Hour
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HousekeepingService{
		Sessions: sessions,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the worker in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep prunes every user's session set once and returns the number of
// stale members removed. A failure on one user doesn't stop the others.
func (s *HousekeepingService) Sweep(ctx context.Context) int {
	var users, removed, failed int

	err := s.Sessions.Users(ctx, func(userID string) error {
		users++
		n, err := s.Sessions.Prune(ctx, userID)
		if err != nil {
			failed++
			s.Logger.Error("failed to prune refresh sessions", "user_id", userID, "error", err)
			return nil
		}
		removed += n
		return nil
	})
	if err != nil {
		s.Logger.Error("failed to list refresh session sets", "error", err)
	}

	s.Logger.Info("housekeeping sweep completed", "users", users, "pruned", removed, "failed", failed)
	return removed
}
