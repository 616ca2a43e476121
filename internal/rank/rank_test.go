package rank

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextTierAdvancesOneStep(t *testing.T) {
	for _, tier := range All() {
		next, ok, err := NextTier(tier)
		require.NoError(t, err)

		if tier == S {
			assert.False(t, ok, "S is terminal")
			continue
		}

		require.True(t, ok, "tier %s should have a successor", tier)
		order, _ := TierOrder(tier)
		nextOrder, _ := TierOrder(next)
		assert.Equal(t, order+1, nextOrder)
	}
}

func TestTierOrderIsStrictlyIncreasing(t *testing.T) {
	prev := -1
	for _, tier := range All() {
		order, err := TierOrder(tier)
		require.NoError(t, err)
		assert.Greater(t, order, prev)
		prev = order
	}
	assert.Equal(t, 5, prev)
}

func TestInvalidTier(t *testing.T) {
	_, err := TierOrder("F")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTier))

	var tierErr *InvalidTierError
	require.ErrorAs(t, err, &tierErr)
	assert.Equal(t, Tier("F"), tierErr.Tier)

	_, _, err = NextTier("")
	assert.ErrorIs(t, err, ErrInvalidTier)

	_, err = RewardMultiplier("Z")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestRewardMultiplierSchedule(t *testing.T) {
	expected := map[Tier]string{
		E: "1", D: "1.5", C: "2", B: "2.5", A: "3", S: "4",
	}
	for tier, want := range expected {
		got, err := RewardMultiplier(tier)
		require.NoError(t, err)
		assert.Equal(t, want, got.String(), "tier %s", tier)
	}
}

func TestScaleFloors(t *testing.T) {
	cases := []struct {
		base int
		tier Tier
		want int
	}{
		{8, E, 8},
		{8, D, 12},
		{15, D, 22},
		{12, B, 30},
		{20, S, 80},
		{7, B, 17},
	}
	for _, tc := range cases {
		got, err := Scale(tc.base, tc.tier)
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "Scale(%d, %s)", tc.base, tc.tier)
	}
}

func TestParseTier(t *testing.T) {
	tier, err := ParseTier(" b ")
	require.NoError(t, err)
	assert.Equal(t, B, tier)

	_, err = ParseTier("legend")
	assert.ErrorIs(t, err, ErrInvalidTier)
}

func TestBoundariesValidate(t *testing.T) {
	require.NoError(t, DefaultBoundaries().Validate())

	b := DefaultBoundaries()
	b[C] = 4
	assert.ErrorIs(t, b.Validate(), ErrInvalidBoundaries)

	b = DefaultBoundaries()
	delete(b, A)
	assert.ErrorIs(t, b.Validate(), ErrInvalidBoundaries)

	b = DefaultBoundaries()
	b[E] = 1
	assert.ErrorIs(t, b.Validate(), ErrInvalidBoundaries)
}

func TestBoundariesDescribe(t *testing.T) {
	infos := DefaultBoundaries().Describe()
	require.Len(t, infos, 6)
	assert.Equal(t, E, infos[0].Tier)
	assert.Equal(t, 1, infos[0].MinLevel)
	assert.Equal(t, S, infos[5].Tier)
	assert.Equal(t, 48, infos[5].MinLevel)
	assert.Equal(t, "4", infos[5].Multiplier)
}
