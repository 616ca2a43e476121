package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progression-engine/internal/models"
)

// flakyOutcomes fails FinishSettlement a set number of times
type flakyOutcomes struct {
	*MemoryRepository
	failures int
}

func (f *flakyOutcomes) FinishSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord) error {
	if f.failures > 0 {
		f.failures--
		return errors.New("connection reset")
	}
	return f.MemoryRepository.FinishSettlement(ctx, challengeID, settledAt, records)
}

func TestSplitSettlementFinishesWithFirstOutcome(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	profiles := NewMemoryRepository()
	outcomes := &flakyOutcomes{MemoryRepository: NewMemoryRepository(), failures: 1}
	repo := NewSplitRepository(outcomes, profiles)

	a := models.NewProfile("a", "alice", 100, now)
	require.NoError(t, repo.CreateProfile(ctx, a))
	require.NoError(t, repo.CreateChallenge(ctx, newChallenge("c1", now)))
	claimed, err := repo.ClaimChallengeForSettlement(ctx, "c1")
	require.NoError(t, err)
	require.True(t, claimed)

	first := a.Clone()
	first.Coins = 120
	records := []models.SettlementRecord{{UserID: "a", Won: true, Place: 1, CoinDelta: 20, CoinsAfter: 120}}
	err = repo.CompleteSettlement(ctx, "c1", now, records, []ProfileUpdate{{Profile: first, ExpectedVersion: 1}})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSettlementApplied)

	stored, err := repo.GetProfile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 120, stored.Coins, "profiles were written before the outcome failed")

	// a retry computed from the already paid profile must not pay again
	second := stored.Clone()
	second.Coins = 140
	later := now.Add(time.Minute)
	retryRecords := []models.SettlementRecord{{UserID: "a", Won: true, Place: 1, CoinDelta: 20, CoinsAfter: 140}}
	err = repo.CompleteSettlement(ctx, "c1", later, retryRecords, []ProfileUpdate{{Profile: second, ExpectedVersion: stored.Version}})
	assert.ErrorIs(t, err, ErrSettlementApplied)

	stored, err = repo.GetProfile(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, 120, stored.Coins)

	got, err := repo.GetSettlement(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 120, got[0].CoinsAfter)
	assert.True(t, got[0].SettledAt.Equal(now))

	c, err := repo.GetChallenge(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, models.ChallengeSettled, c.Status)
}

func TestSplitSettlementVersionConflictWritesNothing(t *testing.T) {
	ctx := context.Background()
	now := time.Now()

	profiles := NewMemoryRepository()
	repo := NewSplitRepository(NewMemoryRepository(), profiles)

	a := models.NewProfile("a", "alice", 100, now)
	require.NoError(t, repo.CreateProfile(ctx, a))
	require.NoError(t, repo.CreateChallenge(ctx, newChallenge("c1", now)))
	_, err := repo.ClaimChallengeForSettlement(ctx, "c1")
	require.NoError(t, err)

	stale := a.Clone()
	stale.Coins = 500
	err = repo.CompleteSettlement(ctx, "c1", now, nil, []ProfileUpdate{{Profile: stale, ExpectedVersion: 7}})
	assert.ErrorIs(t, err, ErrVersionConflict)

	// no marker was left behind, so a fresh attempt applies normally
	fresh := a.Clone()
	fresh.Coins = 110
	require.NoError(t, repo.CompleteSettlement(ctx, "c1", now, nil, []ProfileUpdate{{Profile: fresh, ExpectedVersion: 1}}))
	stored, _ := repo.GetProfile(ctx, "a")
	assert.Equal(t, 110, stored.Coins)
}
