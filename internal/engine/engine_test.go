package engine

import (
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progression-engine/internal/challenge"
	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
	"github.com/terra-clan/progression-engine/internal/workout"
)

func newTestEngine(t *testing.T, rules Rules) *Engine {
	t.Helper()
	eng, err := New(rules, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return eng
}

func TestEngineWorkoutCompletion(t *testing.T) {
	eng := newTestEngine(t, DefaultRules())

	state := progression.State{Level: 1, Experience: 80, Rank: rank.E}
	next, events, err := eng.ApplyWorkoutCompletion(state)
	require.NoError(t, err)

	assert.Equal(t, 2, next.Level)
	assert.Equal(t, 25, next.Coins)
	require.Len(t, events, 1)
	assert.Equal(t, progression.EventLevelUp, events[0].Kind)
}

func TestEngineCustomRules(t *testing.T) {
	rules := DefaultRules()
	rules.Boundaries = rank.Boundaries{rank.D: 2, rank.C: 3, rank.B: 4, rank.A: 5, rank.S: 6}
	rules.WorkoutCompletion = progression.WorkoutCompletion{ExperienceAward: 100, CoinAward: 1}
	eng := newTestEngine(t, rules)

	next, events, err := eng.ApplyWorkoutCompletion(progression.NewState(0))
	require.NoError(t, err)
	assert.Equal(t, 2, next.Level)
	assert.Equal(t, rank.D, next.Rank)
	assert.Len(t, events, 2)

	infos := eng.TierInfo()
	assert.Equal(t, 6, infos[5].MinLevel)
}

func TestEngineRejectsInvalidRules(t *testing.T) {
	rules := DefaultRules()
	rules.Boundaries = rank.Boundaries{rank.D: 10, rank.C: 5}
	_, err := New(rules, nil)
	assert.ErrorIs(t, err, rank.ErrInvalidBoundaries)
}

func TestEngineEstimateAndSettle(t *testing.T) {
	eng := newTestEngine(t, DefaultRules())

	reps := 12
	report, err := eng.EstimateWorkout([]workout.Descriptor{
		workout.Timed{Value: 45, Unit: workout.UnitSeconds},
		workout.SetsReps{Sets: 3, Reps: &reps},
	})
	require.NoError(t, err)
	assert.Equal(t, 300, report.TotalSeconds)

	result, err := eng.SettleChallenge(challenge.Target{Value: 10}, []challenge.Participant{
		{ID: "a", AchievedValue: 12},
		{ID: "b", AchievedValue: 5},
	}, 50)
	require.NoError(t, err)
	assert.Equal(t, 50, result["a"].CoinDelta)
	assert.Equal(t, -50, result["b"].CoinDelta)
}

func TestEngineConcurrentUse(t *testing.T) {
	eng := newTestEngine(t, DefaultRules())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(award int) {
			defer wg.Done()
			next, _, err := eng.ApplyAward(progression.NewState(0), award, 0)
			assert.NoError(t, err)
			assert.Equal(t, award, next.Experience)
		}(i * 37)
	}
	wg.Wait()
}
