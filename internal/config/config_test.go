package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/terra-clan/progression-engine/internal/progression"
	"github.com/terra-clan/progression-engine/internal/rank"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, StorePostgres, cfg.Database.ProfileStore)
	assert.False(t, cfg.Kafka.Enabled)
	assert.Equal(t, time.Minute, cfg.Settlement.SweepInterval)
	assert.Equal(t, slog.LevelInfo, cfg.Log.Level)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SETTLEMENT_LOCK_TTL", "10s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, slog.LevelDebug, cfg.Log.Level)
	assert.Equal(t, 10*time.Second, cfg.Settlement.LockTTL)
}

func TestValidateRejectsBadConfig(t *testing.T) {
	t.Setenv("PROFILE_STORE", "firestore")
	_, err := Load()
	assert.Error(t, err, "firestore without project id")

	t.Setenv("PROFILE_STORE", "mongo")
	_, err = Load()
	assert.Error(t, err)

	t.Setenv("PROFILE_STORE", "postgres")
	t.Setenv("SERVER_PORT", "70000")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadMemoryStore(t *testing.T) {
	t.Setenv("PROFILE_STORE", "Memory")
	t.Setenv("DEV_API_KEY", "pk_dev_key_123")
	t.Setenv("REDIS_ENABLED", "false")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.Database.ProfileStore)
	assert.Equal(t, "pk_dev_key_123", cfg.Server.DevAPIKey)
	assert.False(t, cfg.Redis.Enabled)
}

func TestParseRules(t *testing.T) {
	rules, err := ParseRules([]byte(`
boundaries:
  d: 3
  C: 10
  B: 20
  A: 30
  S: 40
max_level_ups: 50
workout:
  experience: 80
starting_coins: 0
`))
	require.NoError(t, err)

	assert.Equal(t, 3, rules.Engine.Boundaries[rank.D])
	assert.Equal(t, 50, rules.Engine.MaxLevelUps)
	assert.Equal(t, progression.WorkoutCompletion{ExperienceAward: 80, CoinAward: 25}, rules.Engine.WorkoutCompletion)
	assert.Equal(t, 0, rules.StartingCoins)
}

func TestParseRulesRejectsInvalid(t *testing.T) {
	_, err := ParseRules([]byte("boundaries:\n  D: 10\n  C: 5\n  B: 20\n  A: 30\n  S: 40\n"))
	assert.ErrorIs(t, err, rank.ErrInvalidBoundaries)

	_, err = ParseRules([]byte("boundaries:\n  X: 10\n"))
	assert.ErrorIs(t, err, rank.ErrInvalidTier)

	_, err = ParseRules([]byte("starting_coins: -5\n"))
	assert.Error(t, err)
}

func TestLoadRulesFile(t *testing.T) {
	rules, err := LoadRules("")
	require.NoError(t, err)
	assert.Equal(t, DefaultStartingCoins, rules.StartingCoins)

	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workout:\n  coins: 5\n"), 0o644))

	rules, err = LoadRules(path)
	require.NoError(t, err)
	assert.Equal(t, 5, rules.Engine.WorkoutCompletion.CoinAward)
	assert.Equal(t, 50, rules.Engine.WorkoutCompletion.ExperienceAward)

	_, err = LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
