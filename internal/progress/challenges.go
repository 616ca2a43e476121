package progress

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/terra-clan/progression-engine/internal/challenge"
	"github.com/terra-clan/progression-engine/internal/events"
	"github.com/terra-clan/progression-engine/internal/locking"
	"github.com/terra-clan/progression-engine/internal/metrics"
	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/storage"
)

// CreateChallenge opens a challenge that ends at req.EndsAt
func (s *Service) CreateChallenge(ctx context.Context, createdBy string, req models.CreateChallengeRequest) (*models.Challenge, error) {
	if err := models.Validate(req); err != nil {
		return nil, invalid(err)
	}

	now := s.now().UTC()
	if !req.EndsAt.After(now) {
		return nil, invalid(fmt.Errorf("ends_at must be in the future"))
	}

	c := &models.Challenge{
		ID:               uuid.NewString(),
		Title:            req.Title,
		Description:      req.Description,
		Category:         req.Category,
		Difficulty:       req.Difficulty,
		TargetValue:      req.TargetValue,
		Unit:             req.Unit,
		Stake:            req.Stake,
		RewardExperience: req.RewardExperience,
		Status:           models.ChallengeOpen,
		CreatedBy:        createdBy,
		EndsAt:           req.EndsAt.UTC(),
		CreatedAt:        now,
	}
	if err := s.challenges.CreateChallenge(ctx, c); err != nil {
		return nil, err
	}

	s.logger.Info("challenge created", "challenge_id", c.ID, "stake", c.Stake, "ends_at", c.EndsAt)
	return c, nil
}

// GetChallenge returns a challenge with its entries
func (s *Service) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	c, err := s.challenges.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrChallengeNotFound
	}
	return c, nil
}

// ListChallenges returns challenges, optionally filtered by status
func (s *Service) ListChallenges(ctx context.Context, status models.ChallengeStatus, limit, offset int) ([]*models.Challenge, error) {
	return s.challenges.ListChallenges(ctx, status, limit, offset)
}

// ExpiredChallenges returns challenges whose window closed but are not settled
func (s *Service) ExpiredChallenges(ctx context.Context) ([]*models.Challenge, error) {
	return s.challenges.GetExpiredChallenges(ctx, s.now().UTC())
}

// JoinChallenge enters a user and holds the stake: it is debited from the
// balance now and paid back, with any winnings, at settlement.
func (s *Service) JoinChallenge(ctx context.Context, challengeID string, req models.JoinChallengeRequest) (*models.ChallengeEntry, error) {
	if err := models.Validate(req); err != nil {
		return nil, invalid(err)
	}

	c, err := s.openChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetProfile(ctx, req.UserID); err != nil {
		return nil, err
	}
	if c.Entry(req.UserID) != nil {
		return nil, ErrAlreadyJoined
	}

	if c.Stake > 0 {
		if _, err := s.moveCoins(ctx, req.UserID, -c.Stake, "hold_stake"); err != nil {
			return nil, err
		}
	}

	entry := &models.ChallengeEntry{
		ChallengeID: c.ID,
		UserID:      req.UserID,
		JoinedAt:    s.now().UTC(),
	}
	if err := s.challenges.AddEntry(ctx, entry); err != nil {
		s.refundStake(c, req.UserID)
		switch {
		case errors.Is(err, storage.ErrAlreadyExists):
			return nil, ErrAlreadyJoined
		case errors.Is(err, storage.ErrChallengeNotOpen):
			return nil, ErrChallengeClosed
		}
		return nil, err
	}

	s.logger.Info("challenge joined", "challenge_id", c.ID, "user_id", req.UserID, "stake", c.Stake)
	return entry, nil
}

// moveCoins adds delta to the user's balance with a version-checked write.
// A debit larger than the balance fails with ErrInsufficientCoins.
func (s *Service) moveCoins(ctx context.Context, userID string, delta int, op string) (*models.Profile, error) {
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		p, err := s.GetProfile(ctx, userID)
		if err != nil {
			return nil, err
		}
		if p.Coins+delta < 0 {
			return nil, ErrInsufficientCoins
		}

		next, _, err := s.engine.ApplyAward(p.State(), 0, delta)
		if err != nil {
			return nil, fmt.Errorf("failed to move coins: %w", err)
		}
		updated := p.Clone()
		updated.SetState(next)

		err = s.profiles.UpdateProfile(ctx, updated, p.Version)
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.RecordVersionConflict(op)
			continue
		}
		if err != nil {
			return nil, err
		}
		return updated, nil
	}
	return nil, ErrTooManyConflicts
}

// refundStake returns a held stake after the entry could not be stored
func (s *Service) refundStake(c *models.Challenge, userID string) {
	if c.Stake == 0 {
		return
	}
	if _, err := s.moveCoins(context.Background(), userID, c.Stake, "refund_stake"); err != nil {
		s.logger.Error("failed to refund stake", "challenge_id", c.ID, "user_id", userID, "stake", c.Stake, "error", err)
	}
}

// SubmitResult records a participant's achieved value, replacing any earlier one
func (s *Service) SubmitResult(ctx context.Context, challengeID string, req models.SubmitResultRequest) (*models.ChallengeEntry, error) {
	if err := models.Validate(req); err != nil {
		return nil, invalid(err)
	}

	c, err := s.openChallenge(ctx, challengeID)
	if err != nil {
		return nil, err
	}

	entry := c.Entry(req.UserID)
	if entry == nil {
		return nil, ErrNotParticipant
	}

	now := s.now().UTC()
	if err := s.challenges.UpdateEntryResult(ctx, challengeID, req.UserID, req.AchievedValue, now); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrChallengeClosed
		}
		return nil, err
	}

	entry.AchievedValue = req.AchievedValue
	entry.SubmittedAt = &now
	return entry, nil
}

// openChallenge loads a challenge that still accepts entries and results
func (s *Service) openChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	c, err := s.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != models.ChallengeOpen || c.IsExpired(s.now()) {
		return nil, ErrChallengeClosed
	}
	return c, nil
}

// SettleChallenge settles an ended challenge at most once. A distributed
// lock keeps replicas apart, the open to settling status change claims the
// challenge, and outcomes commit together with every affected profile.
// Settling an already settled challenge returns the stored outcome.
func (s *Service) SettleChallenge(ctx context.Context, id string) (*models.ChallengeSettlement, error) {
	started := time.Now()

	lock, err := s.locker.Acquire(ctx, "challenge:"+id, s.lockTTL)
	if errors.Is(err, locking.ErrNotAcquired) {
		return nil, ErrSettlementInProgress
	}
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			s.logger.Warn("failed to release settlement lock", "challenge_id", id, "error", err)
		}
	}()

	c, err := s.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}

	switch c.Status {
	case models.ChallengeSettled:
		return s.storedSettlement(ctx, c)
	case models.ChallengeCancelled:
		return nil, ErrChallengeClosed
	case models.ChallengeOpen:
		if !c.IsExpired(s.now()) {
			return nil, ErrChallengeNotEnded
		}
		claimed, err := s.challenges.ClaimChallengeForSettlement(ctx, id)
		if err != nil {
			return nil, err
		}
		if !claimed {
			return s.settledByOther(ctx, id)
		}
	case models.ChallengeSettling:
		// a previous attempt stopped after claiming; we hold the lock, so resume
		s.logger.Info("resuming interrupted settlement", "challenge_id", id)
	}

	settlement, err := s.commitSettlement(ctx, c, started)
	if err != nil {
		metrics.RecordSettlement(metrics.OutcomeFailed, started)
		if errors.Is(err, storage.ErrChallengeNotOpen) {
			return s.settledByOther(ctx, id)
		}
		if relErr := s.challenges.ReleaseChallengeClaim(context.Background(), id); relErr != nil {
			s.logger.Warn("failed to release challenge claim", "challenge_id", id, "error", relErr)
		}
		return nil, err
	}
	return settlement, nil
}

func (s *Service) settledByOther(ctx context.Context, id string) (*models.ChallengeSettlement, error) {
	c, err := s.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status == models.ChallengeSettled {
		return s.storedSettlement(ctx, c)
	}
	return nil, ErrSettlementInProgress
}

func (s *Service) storedSettlement(ctx context.Context, c *models.Challenge) (*models.ChallengeSettlement, error) {
	records, err := s.challenges.GetSettlement(ctx, c.ID)
	if err != nil {
		return nil, err
	}
	return &models.ChallengeSettlement{Challenge: c, Records: records}, nil
}

type settledProfile struct {
	profile *models.Profile
	events  []progression.Event
}

// commitSettlement computes outcomes from fresh profile reads and commits
// them, recomputing on version conflicts
func (s *Service) commitSettlement(ctx context.Context, c *models.Challenge, started time.Time) (*models.ChallengeSettlement, error) {
	var result challenge.SettlementResult
	if len(c.Entries) > 0 {
		var err error
		result, err = s.engine.SettleChallenge(challenge.Target{Value: c.TargetValue}, c.Participants(), c.Stake)
		if err != nil {
			return nil, fmt.Errorf("failed to settle challenge %s: %w", c.ID, err)
		}
	}

	userIDs := make([]string, 0, len(result))
	for userID := range result {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		settledAt := s.now().UTC()
		records := make([]models.SettlementRecord, 0, len(userIDs))
		updates := make([]storage.ProfileUpdate, 0, len(userIDs))
		settled := make([]settledProfile, 0, len(userIDs))

		for _, userID := range userIDs {
			p, err := s.GetProfile(ctx, userID)
			if err != nil {
				return nil, fmt.Errorf("participant %s: %w", userID, err)
			}

			out := result[userID]
			xp := 0
			if out.Won {
				xp = c.RewardExperience
			}
			// the stake was held at join, so the payout is the stake plus the delta
			next, evs, err := s.engine.ApplyAward(p.State(), xp, c.Stake+out.CoinDelta)
			if err != nil {
				return nil, fmt.Errorf("participant %s: %w", userID, err)
			}

			updated := p.Clone()
			updated.SetState(next)
			updates = append(updates, storage.ProfileUpdate{Profile: updated, ExpectedVersion: p.Version})
			settled = append(settled, settledProfile{profile: updated, events: evs})
			records = append(records, models.SettlementRecord{
				ChallengeID:     c.ID,
				UserID:          userID,
				Won:             out.Won,
				Place:           out.Place,
				CoinDelta:       out.CoinDelta,
				ExperienceAward: xp,
				CoinsAfter:      next.Coins,
				ExperienceAfter: next.Experience,
				SettledAt:       settledAt,
			})
		}
		sortRecords(records)

		err := s.settlements.CompleteSettlement(ctx, c.ID, settledAt, records, updates)
		if errors.Is(err, storage.ErrSettlementApplied) {
			return s.finishAppliedSettlement(ctx, c.ID, started)
		}
		if errors.Is(err, storage.ErrVersionConflict) {
			metrics.RecordVersionConflict("settle_challenge")
			s.logger.Debug("participant changed during settlement, recomputing", "challenge_id", c.ID, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}

		c.Status = models.ChallengeSettled
		c.SettledAt = &settledAt
		s.afterSettlement(ctx, c, result, records, settled, started)
		return &models.ChallengeSettlement{Challenge: c, Records: records}, nil
	}

	return nil, ErrTooManyConflicts
}

func (s *Service) afterSettlement(ctx context.Context, c *models.Challenge, result challenge.SettlementResult, records []models.SettlementRecord, settled []settledProfile, started time.Time) {
	for _, sp := range settled {
		s.afterProfileWrite(ctx, sp.profile, sp.events)
	}

	winners := result.Winners()
	outcome := metrics.OutcomeSettled
	if len(winners) == 0 {
		outcome = metrics.OutcomeNoQualifier
	}
	metrics.RecordSettlement(outcome, started)

	settledEvent := events.New(events.TypeChallengeSettled, "", map[string]any{
		"winners": winners,
		"records": records,
		"stake":   c.Stake,
	}, *c.SettledAt)
	settledEvent.ChallengeID = c.ID
	s.publish(ctx, settledEvent)

	s.logger.Info("challenge settled",
		"challenge_id", c.ID,
		"participants", len(records),
		"winners", len(winners),
		"zero_sum", challenge.TotalDelta(result) == 0,
	)
}

// finishAppliedSettlement handles a retry that found the profiles already
// paid by an earlier attempt. The stored outcome stands; the leaderboard is
// refreshed from the stored profiles.
func (s *Service) finishAppliedSettlement(ctx context.Context, id string, started time.Time) (*models.ChallengeSettlement, error) {
	c, err := s.GetChallenge(ctx, id)
	if err != nil {
		return nil, err
	}
	settlement, err := s.storedSettlement(ctx, c)
	if err != nil {
		return nil, err
	}
	s.logger.Warn("settlement was already applied to profiles, kept the stored outcome", "challenge_id", id)

	for _, rec := range settlement.Records {
		p, err := s.GetProfile(ctx, rec.UserID)
		if err != nil {
			s.logger.Warn("failed to reload settled profile", "challenge_id", id, "user_id", rec.UserID, "error", err)
			continue
		}
		s.recordScore(ctx, p)
	}
	var winners []string
	for _, rec := range settlement.Records {
		if rec.Won {
			winners = append(winners, rec.UserID)
		}
	}
	outcome := metrics.OutcomeSettled
	if len(winners) == 0 {
		outcome = metrics.OutcomeNoQualifier
	}
	metrics.RecordSettlement(outcome, started)

	settledAt := s.now().UTC()
	if c.SettledAt != nil {
		settledAt = *c.SettledAt
	}
	settledEvent := events.New(events.TypeChallengeSettled, "", map[string]any{
		"winners": winners,
		"records": settlement.Records,
		"stake":   c.Stake,
	}, settledAt)
	settledEvent.ChallengeID = c.ID
	s.publish(ctx, settledEvent)
	return settlement, nil
}

// sortRecords orders winners by place, then everyone else by user ID
func sortRecords(records []models.SettlementRecord) {
	sort.SliceStable(records, func(i, j int) bool {
		a, b := records[i], records[j]
		if a.Won != b.Won {
			return a.Won
		}
		if a.Place != b.Place {
			return a.Place < b.Place
		}
		return a.UserID < b.UserID
	})
}
