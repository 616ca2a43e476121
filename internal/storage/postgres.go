package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/terra-clan/progression-engine/internal/models"
	"github.com/terra-clan/progression-engine/internal/rank"
)

const uniqueViolation = "23505"

// querier is satisfied by both the pool and a transaction
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// PostgresConfig holds PostgreSQL connection configuration
type PostgresConfig struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
	MaxLifetime  time.Duration
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(ctx context.Context, cfg PostgresConfig) (*PostgresRepository, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	poolConfig.MaxConns = 25
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = cfg.MaxOpenConns
	}
	poolConfig.MinConns = 5
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = cfg.MaxIdleConns
	}
	if poolConfig.MinConns > poolConfig.MaxConns {
		poolConfig.MinConns = poolConfig.MaxConns
	}
	poolConfig.MaxConnLifetime = 30 * time.Minute
	if cfg.MaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// NewPostgresRepositoryFromPool wraps an existing pool
func NewPostgresRepositoryFromPool(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Pool exposes the underlying pool for migrations
func (r *PostgresRepository) Pool() *pgxpool.Pool {
	return r.pool
}

// Ping checks database connectivity
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close closes the database connection pool
func (r *PostgresRepository) Close() error {
	r.pool.Close()
	return nil
}

// --- Profiles ---

const profileColumns = `user_id, username, level, experience, rank, coins, streak_days, workouts_completed, last_active_at, version, created_at, updated_at`

// CreateProfile inserts a new profile
func (r *PostgresRepository) CreateProfile(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (` + profileColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		p.UserID,
		p.Username,
		p.Level,
		p.Experience,
		string(p.Rank),
		p.Coins,
		p.StreakDays,
		p.WorkoutsCompleted,
		nullTime(p.LastActiveAt),
		p.Version,
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create profile: %w", err)
	}

	return nil
}

// GetProfile retrieves a profile by user ID
func (r *PostgresRepository) GetProfile(ctx context.Context, userID string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles WHERE user_id = $1`

	p, err := scanProfile(r.pool.QueryRow(ctx, query, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// UpdateProfile writes p if its stored version still equals expectedVersion
func (r *PostgresRepository) UpdateProfile(ctx context.Context, p *models.Profile, expectedVersion int64) error {
	return updateProfile(ctx, r.pool, p, expectedVersion)
}

func updateProfile(ctx context.Context, q querier, p *models.Profile, expectedVersion int64) error {
	query := `
		UPDATE profiles
		SET username = $3, level = $4, experience = $5, rank = $6, coins = $7, streak_days = $8,
		    workouts_completed = $9, last_active_at = $10, version = version + 1, updated_at = $11
		WHERE user_id = $1 AND version = $2
		RETURNING version
	`

	now := time.Now().UTC()
	var newVersion int64
	err := q.QueryRow(ctx, query,
		p.UserID,
		expectedVersion,
		p.Username,
		p.Level,
		p.Experience,
		string(p.Rank),
		p.Coins,
		p.StreakDays,
		p.WorkoutsCompleted,
		nullTime(p.LastActiveAt),
		now,
	).Scan(&newVersion)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("profile %s at version %d: %w", p.UserID, expectedVersion, ErrVersionConflict)
		}
		return fmt.Errorf("failed to update profile: %w", err)
	}

	p.Version = newVersion
	p.UpdatedAt = now
	return nil
}

// ListProfiles returns profiles ordered by experience, highest first
func (r *PostgresRepository) ListProfiles(ctx context.Context, limit, offset int) ([]*models.Profile, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + profileColumns + `
		FROM profiles
		ORDER BY experience DESC, user_id ASC
		LIMIT $1 OFFSET $2
	`

	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}

	return profiles, rows.Err()
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	var rankStr string
	var lastActive sql.NullTime

	err := row.Scan(
		&p.UserID,
		&p.Username,
		&p.Level,
		&p.Experience,
		&rankStr,
		&p.Coins,
		&p.StreakDays,
		&p.WorkoutsCompleted,
		&lastActive,
		&p.Version,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Rank = rank.Tier(rankStr)
	if lastActive.Valid {
		t := lastActive.Time
		p.LastActiveAt = &t
	}
	return &p, nil
}

// --- API Clients ---

// GetClientByApiKey retrieves an API client by its key
func (r *PostgresRepository) GetClientByApiKey(ctx context.Context, apiKey string) (*models.ApiClient, error) {
	query := `
		SELECT id, name, api_key, is_active, created_at, last_used_at, permissions, metadata
		FROM api_clients
		WHERE api_key = $1
	`

	var client models.ApiClient
	var lastUsedAt sql.NullTime
	var permissionsJSON, metadataJSON []byte

	err := r.pool.QueryRow(ctx, query, apiKey).Scan(
		&client.ID,
		&client.Name,
		&client.ApiKey,
		&client.IsActive,
		&client.CreatedAt,
		&lastUsedAt,
		&permissionsJSON,
		&metadataJSON,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get api client: %w", err)
	}

	if lastUsedAt.Valid {
		client.LastUsedAt = &lastUsedAt.Time
	}
	if permissionsJSON != nil {
		if err := json.Unmarshal(permissionsJSON, &client.Permissions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal permissions: %w", err)
		}
	}
	if metadataJSON != nil {
		if err := json.Unmarshal(metadataJSON, &client.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metadata: %w", err)
		}
	}

	return &client, nil
}

// UpdateClientLastUsed updates the last_used_at timestamp for a client
func (r *PostgresRepository) UpdateClientLastUsed(ctx context.Context, apiKey string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE api_clients SET last_used_at = NOW() WHERE api_key = $1`, apiKey); err != nil {
		return fmt.Errorf("failed to update client last_used_at: %w", err)
	}
	return nil
}

// Helper functions for nullable values

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
