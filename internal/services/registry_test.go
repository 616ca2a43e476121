package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthCheckAll(t *testing.T) {
	r := NewRegistry(50 * time.Millisecond)
	r.Register("postgres", CheckerFunc{Kind: "postgres", Fn: func(ctx context.Context) error { return nil }})
	r.Register("redis", CheckerFunc{Kind: "redis", Fn: func(ctx context.Context) error { return errors.New("down") }})
	r.Register("slow", CheckerFunc{Kind: "kafka", Fn: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	assert.Equal(t, []string{"postgres", "redis", "slow"}, r.List())
	assert.Equal(t, "redis", r.Get("redis").Type())

	results := r.HealthCheckAll(context.Background())
	require.Len(t, results, 3)
	assert.NoError(t, results["postgres"])
	assert.EqualError(t, results["redis"], "down")
	assert.ErrorIs(t, results["slow"], context.DeadlineExceeded)
	assert.False(t, Healthy(results))

	r.Unregister("redis")
	r.Unregister("slow")
	assert.True(t, Healthy(r.HealthCheckAll(context.Background())))
}

func TestKafkaCheckerWithoutBrokers(t *testing.T) {
	assert.Error(t, NewKafkaChecker(nil).HealthCheck(context.Background()))
}
