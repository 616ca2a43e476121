package progression

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progression-engine/internal/rank"
)

func newTestCalculator(t *testing.T, opts ...Option) *Calculator {
	t.Helper()
	calc, err := NewCalculator(rank.DefaultBoundaries(), opts...)
	require.NoError(t, err)
	return calc
}

func TestApplyAwardSingleLevelUp(t *testing.T) {
	calc := newTestCalculator(t)

	state := State{Level: 1, Experience: 80, Coins: 0, Rank: rank.E}
	next, events, err := calc.ApplyAward(state, 50, 25)
	require.NoError(t, err)

	assert.Equal(t, 2, next.Level)
	assert.Equal(t, 130, next.Experience)
	assert.Equal(t, 25, next.Coins)
	assert.Equal(t, rank.E, next.Rank)
	require.Len(t, events, 1)
	assert.Equal(t, Event{Kind: EventLevelUp, OldLevel: 1, NewLevel: 2}, events[0])

	// input snapshot is untouched
	assert.Equal(t, 80, state.Experience)
	assert.Equal(t, 1, state.Level)
}

func TestApplyAwardMultipleLevelUps(t *testing.T) {
	calc := newTestCalculator(t)

	next, events, err := calc.ApplyAward(State{Level: 1, Rank: rank.E}, 350, 0)
	require.NoError(t, err)

	// 350 >= 100, 200, 300 but < 400
	assert.Equal(t, 4, next.Level)
	assert.Equal(t, 3, LevelUps(events))
	for i, ev := range events {
		assert.Equal(t, i+1, ev.OldLevel)
		assert.Equal(t, i+2, ev.NewLevel)
	}
}

func TestApplyAwardNoLevelUp(t *testing.T) {
	calc := newTestCalculator(t)

	next, events, err := calc.ApplyAward(State{Level: 3, Experience: 210, Rank: rank.E}, 40, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, next.Level)
	assert.Equal(t, 250, next.Experience)
	assert.Empty(t, events)
}

func TestApplyAwardRankUpFollowsLevelUps(t *testing.T) {
	calc := newTestCalculator(t)

	// level 4 -> 5 crosses the D boundary
	state := State{Level: 4, Experience: 390, Rank: rank.E}
	next, events, err := calc.ApplyAward(state, 20, 0)
	require.NoError(t, err)

	assert.Equal(t, 5, next.Level)
	assert.Equal(t, rank.D, next.Rank)
	require.Len(t, events, 2)
	assert.Equal(t, EventLevelUp, events[0].Kind)
	assert.Equal(t, Event{Kind: EventRankUp, OldRank: rank.E, NewRank: rank.D}, events[1])
}

func TestApplyAwardPromotesAtMostOneTier(t *testing.T) {
	calc := newTestCalculator(t)

	// jumping to level 20 crosses both D (5) and C (15)
	next, events, err := calc.ApplyAward(State{Level: 1, Rank: rank.E}, 1950, 0)
	require.NoError(t, err)

	assert.Equal(t, 20, next.Level)
	assert.Equal(t, rank.D, next.Rank)
	ev, ok := RankUp(events)
	require.True(t, ok)
	assert.Equal(t, rank.E, ev.OldRank)
	assert.Equal(t, rank.D, ev.NewRank)
	assert.Equal(t, EventRankUp, events[len(events)-1].Kind)

	// the next settlement catches up one more tier
	next, _, err = calc.ApplyAward(next, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, rank.C, next.Rank)
}

func TestApplyAwardTerminalRank(t *testing.T) {
	calc := newTestCalculator(t)

	next, events, err := calc.ApplyAward(State{Level: 60, Experience: 5990, Rank: rank.S}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, rank.S, next.Rank)
	_, ok := RankUp(events)
	assert.False(t, ok)
}

func TestApplyAwardNegativeCoinsClampAtZero(t *testing.T) {
	calc := newTestCalculator(t)

	next, _, err := calc.ApplyAward(State{Level: 1, Rank: rank.E, Coins: 10}, 0, -25)
	require.NoError(t, err)
	assert.Equal(t, 0, next.Coins)

	next, _, err = calc.ApplyAward(State{Level: 1, Rank: rank.E, Coins: 40}, 0, -25)
	require.NoError(t, err)
	assert.Equal(t, 15, next.Coins)
}

func TestApplyAwardRejectsNegativeExperience(t *testing.T) {
	calc := newTestCalculator(t)

	_, _, err := calc.ApplyAward(State{Level: 1, Rank: rank.E}, -1, 0)
	assert.ErrorIs(t, err, ErrInvalidAward)
}

func TestApplyAwardRejectsMalformedState(t *testing.T) {
	calc := newTestCalculator(t)

	cases := []State{
		{Level: 0, Rank: rank.E},
		{Level: 1, Experience: -5, Rank: rank.E},
		{Level: 1, Coins: -1, Rank: rank.E},
		{Level: 1, Rank: "Q"},
	}
	for _, s := range cases {
		_, _, err := calc.ApplyAward(s, 10, 0)
		assert.ErrorIs(t, err, ErrInvalidAward, "state %+v", s)
	}
}

func TestApplyAwardOverflow(t *testing.T) {
	calc := newTestCalculator(t, WithMaxLevelUps(5))

	_, _, err := calc.ApplyAward(State{Level: 1, Rank: rank.E}, 10_000, 0)
	assert.ErrorIs(t, err, ErrProgressionOverflow)

	// exactly at the bound is fine
	next, events, err := calc.ApplyAward(State{Level: 1, Rank: rank.E}, 500, 0)
	require.NoError(t, err)
	assert.Equal(t, 6, next.Level)
	assert.Equal(t, 5, LevelUps(events))
}

func TestApplyAwardRejectsWrappingAdds(t *testing.T) {
	calc := newTestCalculator(t)

	_, _, err := calc.ApplyAward(State{Level: 1, Experience: 10, Rank: rank.E}, math.MaxInt-5, 0)
	assert.ErrorIs(t, err, ErrProgressionOverflow)

	_, _, err = calc.ApplyAward(State{Level: 1, Rank: rank.E, Coins: 10}, 0, math.MaxInt)
	assert.ErrorIs(t, err, ErrProgressionOverflow)

	next, _, err := calc.ApplyAward(State{Level: 1, Rank: rank.E, Coins: 10}, 0, math.MaxInt-10)
	require.NoError(t, err)
	assert.Equal(t, math.MaxInt, next.Coins)

	next, _, err = calc.ApplyAward(State{Level: 1, Rank: rank.E, Coins: 10}, 0, math.MinInt)
	require.NoError(t, err)
	assert.Zero(t, next.Coins)
}

func TestApplyAwardMonotonic(t *testing.T) {
	calc := newTestCalculator(t)

	state := State{Level: 1, Rank: rank.E}
	for _, award := range []int{0, 10, 90, 150, 1000, 3, 2500} {
		next, _, err := calc.ApplyAward(state, award, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, next.Experience, state.Experience)
		assert.GreaterOrEqual(t, next.Level, state.Level)
		state = next
	}
}

func TestApplyWorkoutCompletionDefault(t *testing.T) {
	calc := newTestCalculator(t)

	next, events, err := calc.ApplyWorkoutCompletion(NewState(100), DefaultWorkoutCompletion)
	require.NoError(t, err)
	assert.Equal(t, 50, next.Experience)
	assert.Equal(t, 125, next.Coins)
	assert.Empty(t, events)
}

func TestNewCalculatorRejectsBadBoundaries(t *testing.T) {
	b := rank.DefaultBoundaries()
	b[rank.B] = 2
	_, err := NewCalculator(b)
	assert.ErrorIs(t, err, rank.ErrInvalidBoundaries)
}

func TestProgress(t *testing.T) {
	snap := Progress(State{Level: 2, Experience: 130, Rank: rank.E})
	assert.Equal(t, 200, snap.Required)
	assert.InDelta(t, 65.0, snap.Percent, 0.001)

	snap = Progress(State{Level: 1, Experience: 900, Rank: rank.E})
	assert.InDelta(t, 100.0, snap.Percent, 0.001)
}

func TestAdvanceStreak(t *testing.T) {
	day := func(d, h int) time.Time {
		return time.Date(2026, time.March, d, h, 0, 0, 0, time.UTC)
	}

	s := State{Level: 1, Rank: rank.E, StreakDays: 3}

	assert.Equal(t, 3, AdvanceStreak(s, day(10, 8), day(10, 22)).StreakDays, "same day")
	assert.Equal(t, 4, AdvanceStreak(s, day(10, 23), day(11, 1)).StreakDays, "next day")
	assert.Equal(t, 1, AdvanceStreak(s, day(10, 8), day(12, 8)).StreakDays, "gap")
	assert.Equal(t, 1, AdvanceStreak(s, time.Time{}, day(12, 8)).StreakDays, "first activity")
	assert.Equal(t, 3, AdvanceStreak(s, day(13, 8), day(12, 8)).StreakDays, "skew")
	assert.Equal(t, 3, s.StreakDays)
}
