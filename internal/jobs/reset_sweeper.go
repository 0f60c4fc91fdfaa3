package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"useraccounts/internal/logging"
)

// ExpiredResetClearer drops reset tokens that expired before now.
type ExpiredResetClearer interface {
	ClearExpiredResetTokens(ctx context.Context, now time.Time) (int64, error)
}

// ResetSweeper clears expired password reset tokens so stale tokens do not
// linger in storage. Consumption already rejects them; this is housekeeping.
type ResetSweeper struct {
	repo    ExpiredResetClearer
	logger  logging.Logger
	now     func() time.Time
	timeout time.Duration
}

// NewResetSweeper creates a new ResetSweeper. A nil clock means time.Now.
func NewResetSweeper(repo ExpiredResetClearer, logger logging.Logger, clock func() time.Time) *ResetSweeper {
	if clock == nil {
		clock = time.Now
	}
	return &ResetSweeper{
		repo:    repo,
		logger:  logger,
		now:     clock,
		timeout: 30 * time.Second,
	}
}

// Run executes one sweep.
func (s *ResetSweeper) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	cleared, err := s.repo.ClearExpiredResetTokens(ctx, s.now().UTC())
	if err != nil {
		s.logger.Error(ctx, "reset sweeper failed", "error", err)
		return
	}
	if cleared > 0 {
		s.logger.Info(ctx, "reset sweeper cleared expired tokens", "count", cleared)
	}
}

// Start schedules the sweeper on spec (standard cron or "@every 15m" form) and
// starts the scheduler. Stop the returned cron to halt it.
func Start(spec string, sweeper *ResetSweeper) (*cron.Cron, error) {
	c := cron.New()
	if _, err := c.AddJob(spec, sweeper); err != nil {
		return nil, fmt.Errorf("schedule reset sweeper %q: %w", spec, err)
	}
	c.Start()
	return c, nil
}
