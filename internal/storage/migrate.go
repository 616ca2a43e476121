package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// migrationLockID serializes migration runs across replicas starting together
const migrationLockID = 740_211_903

// RunMigrations applies every pending .sql file in migrationsDir in name
// order and returns how many were applied.
func RunMigrations(ctx context.Context, pool *pgxpool.Pool, migrationsDir string) (int, error) {
	conn, err := pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, migrationLockID); err != nil {
		return 0, fmt.Errorf("failed to take migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockID); err != nil {
			slog.Warn("failed to release migration lock", "error", err)
		}
	}()

	if _, err := conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return 0, fmt.Errorf("failed to create migrations table: %w", err)
	}

	applied, err := appliedMigrations(ctx, conn)
	if err != nil {
		return 0, fmt.Errorf("failed to get applied migrations: %w", err)
	}

	pending, err := pendingMigrations(migrationsDir, applied)
	if err != nil {
		return 0, err
	}

	for _, name := range pending {
		slog.Info("applying migration", "migration", name)

		content, err := os.ReadFile(filepath.Join(migrationsDir, name))
		if err != nil {
			return 0, fmt.Errorf("failed to read migration %s: %w", name, err)
		}

		tx, err := conn.Begin(ctx)
		if err != nil {
			return 0, fmt.Errorf("failed to begin transaction for %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, string(content)); err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (name) VALUES ($1)`, name); err != nil {
			_ = tx.Rollback(ctx)
			return 0, fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return 0, fmt.Errorf("failed to commit migration %s: %w", name, err)
		}
	}

	return len(pending), nil
}

// pendingMigrations lists .sql files not yet recorded, sorted by name
func pendingMigrations(dir string, applied map[string]bool) ([]string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []string
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), ".sql") || applied[f.Name()] {
			continue
		}
		out = append(out, f.Name())
	}
	sort.Strings(out)
	return out, nil
}

func appliedMigrations(ctx context.Context, conn *pgxpool.Conn) (map[string]bool, error) {
	rows, err := conn.Query(ctx, `SELECT name FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	applied := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		applied[name] = true
	}
	return applied, rows.Err()
}
