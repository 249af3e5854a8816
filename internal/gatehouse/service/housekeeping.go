package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/tokablelabs/gatehouse/internal/gatehouse/store"
)

// HousekeepingService periodically removes expired resume tokens and clears
// stale reset-flow shadow fields so neither accumulates unbounded.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping worker. A non-positive
// interval defaults to 1 hour.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start begins the background worker. Non-blocking; call Stop to shut down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping started", "interval", s.Interval)
}

// Stop shuts the worker down, blocking until any in-progress pass finishes.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// First pass right away so a restart doesn't postpone cleanup.
	s.Cleanup(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Cleanup performs one housekeeping pass. Each step is independent; a
// failure in one does not stop the others.
func (s *HousekeepingService) Cleanup(ctx context.Context) {
	now := time.Now().UTC()

	tokens, err := s.Store.ResumeTokens().DeleteExpiredResumeTokens(ctx, now)
	if err != nil {
		s.Logger.Error("failed to delete expired resume tokens", "error", err)
	}

	shadows, err := s.Store.Users().ClearExpiredShadowCredentials(ctx, now)
	if err != nil {
		s.Logger.Error("failed to clear expired reset credentials", "error", err)
	}

	s.Logger.Info("housekeeping pass completed",
		"resume_tokens_deleted", tokens,
		"reset_credentials_cleared", shadows,
	)
}
