package leaderboard

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Standing is a user's place on the board. Position starts at 1.
type Standing struct {
	Position   int
	UserID     string
	Experience int
}

// redisClient is the subset of go-redis used by the board
type redisClient interface {
	ZAdd(ctx context.Context, key string, members ...redis.Z) *redis.IntCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *redis.ZSliceCmd
	ZRevRank(ctx context.Context, key, member string) *redis.IntCmd
	ZRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
}

// Board ranks users by cumulative experience in a Redis sorted set
type Board struct {
	client redisClient
	key    string
}

// New creates a board stored under key
func New(client redisClient, key string) *Board {
	if key == "" {
		key = "leaderboard:experience"
	}
	return &Board{client: client, key: key}
}

// Record sets the user's experience score
func (b *Board) Record(ctx context.Context, userID string, experience int) error {
	err := b.client.ZAdd(ctx, b.key, redis.Z{Score: float64(experience), Member: userID}).Err()
	if err != nil {
		return fmt.Errorf("failed to record leaderboard score: %w", err)
	}
	return nil
}

// Top returns up to limit standings starting after offset
func (b *Board) Top(ctx context.Context, limit, offset int) ([]Standing, error) {
	if limit <= 0 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}

	start := int64(offset)
	members, err := b.client.ZRevRangeWithScores(ctx, b.key, start, start+int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	out := make([]Standing, 0, len(members))
	for i, m := range members {
		userID, ok := m.Member.(string)
		if !ok {
			continue
		}
		out = append(out, Standing{
			Position:   offset + i + 1,
			UserID:     userID,
			Experience: int(m.Score),
		})
	}
	return out, nil
}

// Position returns the user's 1-based place. The boolean is false when the
// user has no score.
func (b *Board) Position(ctx context.Context, userID string) (int, bool, error) {
	rank, err := b.client.ZRevRank(ctx, b.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read leaderboard position: %w", err)
	}
	return int(rank) + 1, true, nil
}

// Remove drops the user from the board
func (b *Board) Remove(ctx context.Context, userID string) error {
	if err := b.client.ZRem(ctx, b.key, userID).Err(); err != nil {
		return fmt.Errorf("failed to remove leaderboard entry: %w", err)
	}
	return nil
}
