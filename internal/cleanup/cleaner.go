// Package cleanup settles challenges whose window has closed.
package cleanup

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progress"
)

// ChallengeSettler is the part of the progress service the sweeper drives
type ChallengeSettler interface {
	ExpiredChallenges(ctx context.Context) ([]*models.Challenge, error)
	SettleChallenge(ctx context.Context, id string) (*models.ChallengeSettlement, error)
}

// Cleaner periodically settles expired challenges
type Cleaner struct {
	settler  ChallengeSettler
	interval time.Duration
	logger   *slog.Logger
}

// NewCleaner creates a new settlement sweeper
func NewCleaner(settler ChallengeSettler, interval time.Duration, logger *slog.Logger) *Cleaner {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Cleaner{
		settler:  settler,
		interval: interval,
		logger:   logger,
	}
}

// Start begins the sweeper in a goroutine
func (c *Cleaner) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Cleaner) run(ctx context.Context) {
	c.logger.Info("settlement sweeper started", "interval", c.interval)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	// Run immediately on start
	c.Sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("settlement sweeper stopped")
			return
		case <-ticker.C:
			c.Sweep(ctx)
		}
	}
}

// Sweep settles every expired challenge once and returns how many settled.
// Challenges held by another replica are skipped and picked up next cycle.
func (c *Cleaner) Sweep(ctx context.Context) int {
	expired, err := c.settler.ExpiredChallenges(ctx)
	if err != nil {
		c.logger.Error("failed to get expired challenges", "error", err)
		return 0
	}

	if len(expired) == 0 {
		c.logger.Debug("no expired challenges found")
		return 0
	}

	c.logger.Info("found expired challenges", "count", len(expired))

	settled := 0
	for _, ch := range expired {
		if ctx.Err() != nil {
			return settled
		}

		result, err := c.settler.SettleChallenge(ctx, ch.ID)
		switch {
		case errors.Is(err, progress.ErrSettlementInProgress):
			c.logger.Debug("challenge is being settled elsewhere", "challenge_id", ch.ID)
			continue
		case err != nil:
			c.logger.Error("failed to settle challenge",
				"error", err,
				"challenge_id", ch.ID,
				"ends_at", ch.EndsAt,
			)
			continue
		}

		settled++
		c.logger.Info("expired challenge settled",
			"challenge_id", ch.ID,
			"participants", len(result.Records),
		)
	}
	return settled
}
