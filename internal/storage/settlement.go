package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/terra-clan/progression-engine/internal/models"
)

// settlementApplier writes a settlement's profile updates atomically and at
// most once per challenge. When the challenge was already applied it writes
// nothing and returns the earlier outcome.
type settlementApplier interface {
	ProfileStore
	ApplySettlement(ctx context.Context, challengeID string, applied AppliedSettlement, updates []ProfileUpdate) (*AppliedSettlement, error)
}

// outcomeStore is the challenge side of a SplitRepository
type outcomeStore interface {
	ChallengeStore
	ClientStore
	FinishSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord) error
	Ping(ctx context.Context) error
	Close() error
}

// SplitRepository keeps profiles in one store and everything else in
// another. Settlement writes profiles first, guarded by a per-challenge
// marker, then stores outcomes and the settled status.
type SplitRepository struct {
	outcomeStore
	profiles settlementApplier
}

// NewSplitRepository combines a challenge store with an external profile store
func NewSplitRepository(outcomes outcomeStore, profiles settlementApplier) *SplitRepository {
	return &SplitRepository{outcomeStore: outcomes, profiles: profiles}
}

// CreateProfile stores p in the profile store
func (r *SplitRepository) CreateProfile(ctx context.Context, p *models.Profile) error {
	return r.profiles.CreateProfile(ctx, p)
}

// GetProfile reads from the profile store
func (r *SplitRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	return r.profiles.GetProfile(ctx, userID)
}

// UpdateProfile writes to the profile store
func (r *SplitRepository) UpdateProfile(ctx context.Context, p *models.Profile, expectedVersion int64) error {
	return r.profiles.UpdateProfile(ctx, p, expectedVersion)
}

// ListProfiles reads from the profile store
func (r *SplitRepository) ListProfiles(ctx context.Context, limit, offset int) ([]*models.Profile, error) {
	return r.profiles.ListProfiles(ctx, limit, offset)
}

// CompleteSettlement applies profile updates then finishes the challenge.
// If an earlier attempt applied the profiles but failed to finish, the
// outcome it recorded is finished instead and ErrSettlementApplied is
// returned so the caller discards what it computed.
func (r *SplitRepository) CompleteSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord, updates []ProfileUpdate) error {
	prior, err := r.profiles.ApplySettlement(ctx, challengeID, AppliedSettlement{SettledAt: settledAt, Records: records}, updates)
	if err != nil {
		return fmt.Errorf("failed to apply settlement to profiles: %w", err)
	}
	if prior != nil {
		if err := r.outcomeStore.FinishSettlement(ctx, challengeID, prior.SettledAt, prior.Records); err != nil {
			return err
		}
		return ErrSettlementApplied
	}
	return r.outcomeStore.FinishSettlement(ctx, challengeID, settledAt, records)
}

