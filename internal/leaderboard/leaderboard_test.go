package leaderboard

import (
	"context"
	"sort"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeZSet mimics a single sorted set
type fakeZSet struct {
	scores map[string]float64
}

func newFakeZSet() *fakeZSet { return &fakeZSet{scores: map[string]float64{}} }

func (f *fakeZSet) ordered() []redis.Z {
	out := make([]redis.Z, 0, len(f.scores))
	for m, s := range f.scores {
		out = append(out, redis.Z{Member: m, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Member.(string) > out[j].Member.(string)
	})
	return out
}

func (f *fakeZSet) ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd {
	for _, m := range members {
		f.scores[m.Member.(string)] = m.Score
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (f *fakeZSet) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd {
	all := f.ordered()
	if start >= int64(len(all)) {
		return redis.NewZSliceCmdResult(nil, nil)
	}
	if stop >= int64(len(all)) {
		stop = int64(len(all)) - 1
	}
	return redis.NewZSliceCmdResult(all[start:stop+1], nil)
}

func (f *fakeZSet) ZRevRank(ctx context.Context, key, member string) *redis.IntCmd {
	for i, z := range f.ordered() {
		if z.Member == member {
			return redis.NewIntResult(int64(i), nil)
		}
	}
	return redis.NewIntResult(0, redis.Nil)
}

func (f *fakeZSet) ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	for _, m := range members {
		delete(f.scores, m.(string))
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func TestBoardOrdersByExperience(t *testing.T) {
	ctx := context.Background()
	b := New(newFakeZSet(), "")

	require.NoError(t, b.Record(ctx, "alice", 450))
	require.NoError(t, b.Record(ctx, "bob", 1200))
	require.NoError(t, b.Record(ctx, "carol", 90))

	top, err := b.Top(ctx, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []Standing{
		{Position: 1, UserID: "bob", Experience: 1200},
		{Position: 2, UserID: "alice", Experience: 450},
	}, top)

	page, err := b.Top(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, Standing{Position: 3, UserID: "carol", Experience: 90}, page[0])
}

func TestBoardPosition(t *testing.T) {
	ctx := context.Background()
	b := New(newFakeZSet(), "lb")

	require.NoError(t, b.Record(ctx, "alice", 10))
	require.NoError(t, b.Record(ctx, "bob", 20))

	pos, ok, err := b.Position(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, pos)

	_, ok, err = b.Position(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, b.Remove(ctx, "bob"))
	pos, _, _ = b.Position(ctx, "alice")
	assert.Equal(t, 1, pos)
}
