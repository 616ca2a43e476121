package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/terra-clan/progression-engine/internal/models"
)

const challengeColumns = `id, title, description, category, difficulty, target_value, unit, stake, reward_experience, status, created_by, ends_at, created_at, settled_at`

// CreateChallenge inserts a new challenge
func (r *PostgresRepository) CreateChallenge(ctx context.Context, c *models.Challenge) error {
	query := `
		INSERT INTO challenges (` + challengeColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		c.ID,
		c.Title,
		nullString(c.Description),
		c.Category,
		nullString(c.Difficulty),
		c.TargetValue,
		nullString(c.Unit),
		c.Stake,
		c.RewardExperience,
		string(c.Status),
		nullString(c.CreatedBy),
		c.EndsAt,
		c.CreatedAt,
		nullTime(c.SettledAt),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to create challenge: %w", err)
	}

	return nil
}

// GetChallenge retrieves a challenge with its entries
func (r *PostgresRepository) GetChallenge(ctx context.Context, id string) (*models.Challenge, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil // ids are UUIDs, anything else cannot exist
	}

	query := `SELECT ` + challengeColumns + ` FROM challenges WHERE id = $1`

	c, err := scanChallenge(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil // Not found
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}

	entries, err := r.getEntries(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Entries = entries

	return c, nil
}

// ListChallenges returns challenges, newest first. An empty status lists all.
func (r *PostgresRepository) ListChallenges(ctx context.Context, status models.ChallengeStatus, limit, offset int) ([]*models.Challenge, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`

	return r.queryChallenges(ctx, query, string(status), limit, offset)
}

// GetExpiredChallenges returns open or stuck settling challenges whose window closed
func (r *PostgresRepository) GetExpiredChallenges(ctx context.Context, now time.Time) ([]*models.Challenge, error) {
	query := `
		SELECT ` + challengeColumns + `
		FROM challenges
		WHERE status IN ('open', 'settling') AND ends_at <= $1
		ORDER BY ends_at ASC
	`

	return r.queryChallenges(ctx, query, now)
}

func (r *PostgresRepository) queryChallenges(ctx context.Context, query string, args ...any) ([]*models.Challenge, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list challenges: %w", err)
	}
	defer rows.Close()

	var challenges []*models.Challenge
	for rows.Next() {
		c, err := scanChallenge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan challenge: %w", err)
		}
		challenges = append(challenges, c)
	}

	return challenges, rows.Err()
}

func scanChallenge(row pgx.Row) (*models.Challenge, error) {
	var c models.Challenge
	var id uuid.UUID
	var status string
	var description, difficulty, unit, createdBy sql.NullString
	var settledAt sql.NullTime

	err := row.Scan(
		&id,
		&c.Title,
		&description,
		&c.Category,
		&difficulty,
		&c.TargetValue,
		&unit,
		&c.Stake,
		&c.RewardExperience,
		&status,
		&createdBy,
		&c.EndsAt,
		&c.CreatedAt,
		&settledAt,
	)
	if err != nil {
		return nil, err
	}

	c.ID = id.String()
	c.Status = models.ChallengeStatus(status)
	c.Description = description.String
	c.Difficulty = difficulty.String
	c.Unit = unit.String
	c.CreatedBy = createdBy.String
	if settledAt.Valid {
		t := settledAt.Time
		c.SettledAt = &t
	}
	return &c, nil
}

// --- Entries ---

// AddEntry enters a user into an open challenge
func (r *PostgresRepository) AddEntry(ctx context.Context, e *models.ChallengeEntry) error {
	query := `
		INSERT INTO challenge_entries (challenge_id, user_id, achieved_value, joined_at, submitted_at)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (SELECT 1 FROM challenges WHERE id = $1 AND status = 'open')
	`

	tag, err := r.pool.Exec(ctx, query, e.ChallengeID, e.UserID, e.AchievedValue, e.JoinedAt, nullTime(e.SubmittedAt))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("failed to add challenge entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeNotOpen
	}

	return nil
}

// UpdateEntryResult records a participant's achieved value while the challenge is open
func (r *PostgresRepository) UpdateEntryResult(ctx context.Context, challengeID, userID string, value float64, at time.Time) error {
	query := `
		UPDATE challenge_entries e
		SET achieved_value = $3, submitted_at = $4
		FROM challenges c
		WHERE e.challenge_id = $1 AND e.user_id = $2 AND c.id = e.challenge_id AND c.status = 'open'
	`

	tag, err := r.pool.Exec(ctx, query, challengeID, userID, value, at)
	if err != nil {
		return fmt.Errorf("failed to update challenge entry: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

func (r *PostgresRepository) getEntries(ctx context.Context, challengeID string) ([]models.ChallengeEntry, error) {
	query := `
		SELECT challenge_id, user_id, achieved_value, joined_at, submitted_at
		FROM challenge_entries
		WHERE challenge_id = $1
		ORDER BY joined_at ASC, user_id ASC
	`

	rows, err := r.pool.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get challenge entries: %w", err)
	}
	defer rows.Close()

	var entries []models.ChallengeEntry
	for rows.Next() {
		var e models.ChallengeEntry
		var cid uuid.UUID
		var submittedAt sql.NullTime
		if err := rows.Scan(&cid, &e.UserID, &e.AchievedValue, &e.JoinedAt, &submittedAt); err != nil {
			return nil, fmt.Errorf("failed to scan challenge entry: %w", err)
		}
		e.ChallengeID = cid.String()
		if submittedAt.Valid {
			t := submittedAt.Time
			e.SubmittedAt = &t
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

// --- Settlement ---

// ClaimChallengeForSettlement moves an open challenge to settling
func (r *PostgresRepository) ClaimChallengeForSettlement(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx, `UPDATE challenges SET status = 'settling' WHERE id = $1 AND status = 'open'`, id)
	if err != nil {
		return false, fmt.Errorf("failed to claim challenge: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReleaseChallengeClaim returns a settling challenge to open
func (r *PostgresRepository) ReleaseChallengeClaim(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, `UPDATE challenges SET status = 'open' WHERE id = $1 AND status = 'settling'`, id); err != nil {
		return fmt.Errorf("failed to release challenge claim: %w", err)
	}
	return nil
}

// GetSettlement returns the stored outcomes of a settled challenge
func (r *PostgresRepository) GetSettlement(ctx context.Context, challengeID string) ([]models.SettlementRecord, error) {
	query := `
		SELECT challenge_id, user_id, won, place, coin_delta, experience_award, coins_after, experience_after, settled_at
		FROM challenge_settlements
		WHERE challenge_id = $1
		ORDER BY won DESC, place ASC, user_id ASC
	`

	rows, err := r.pool.Query(ctx, query, challengeID)
	if err != nil {
		return nil, fmt.Errorf("failed to get settlement: %w", err)
	}
	defer rows.Close()

	var records []models.SettlementRecord
	for rows.Next() {
		var rec models.SettlementRecord
		var cid uuid.UUID
		if err := rows.Scan(&cid, &rec.UserID, &rec.Won, &rec.Place, &rec.CoinDelta,
			&rec.ExperienceAward, &rec.CoinsAfter, &rec.ExperienceAfter, &rec.SettledAt); err != nil {
			return nil, fmt.Errorf("failed to scan settlement record: %w", err)
		}
		rec.ChallengeID = cid.String()
		records = append(records, rec)
	}

	return records, rows.Err()
}

// CompleteSettlement applies profile updates, stores outcomes and marks the
// challenge settled in a single transaction.
func (r *PostgresRepository) CompleteSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord, updates []ProfileUpdate) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		for _, u := range updates {
			if err := updateProfile(ctx, tx, u.Profile, u.ExpectedVersion); err != nil {
				return err
			}
		}
		return finishSettlement(ctx, tx, challengeID, settledAt, records)
	})
}

// FinishSettlement stores outcomes and marks the challenge settled without
// touching profiles. Used when profiles live in another store.
func (r *PostgresRepository) FinishSettlement(ctx context.Context, challengeID string, settledAt time.Time, records []models.SettlementRecord) error {
	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		return finishSettlement(ctx, tx, challengeID, settledAt, records)
	})
}

func finishSettlement(ctx context.Context, q querier, challengeID string, settledAt time.Time, records []models.SettlementRecord) error {
	for _, rec := range records {
		_, err := q.Exec(ctx, `
			INSERT INTO challenge_settlements
				(challenge_id, user_id, won, place, coin_delta, experience_award, coins_after, experience_after, settled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (challenge_id, user_id) DO NOTHING
		`, challengeID, rec.UserID, rec.Won, rec.Place, rec.CoinDelta, rec.ExperienceAward, rec.CoinsAfter, rec.ExperienceAfter, settledAt)
		if err != nil {
			return fmt.Errorf("failed to insert settlement record: %w", err)
		}
	}

	tag, err := q.Exec(ctx, `UPDATE challenges SET status = 'settled', settled_at = $2 WHERE id = $1 AND status = 'settling'`, challengeID, settledAt)
	if err != nil {
		return fmt.Errorf("failed to mark challenge settled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrChallengeNotOpen
	}
	return nil
}
