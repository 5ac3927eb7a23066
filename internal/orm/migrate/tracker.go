// Package migrate manages schema evolution: DDL generated from entity
// metadata and versioned SQL migrations tracked in schema_migrations.
package migrate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conduit-lang/conduit-jsonapi/internal/orm/query"
)

// Migration represents a single database migration
type Migration struct {
	Version   int64     // Ordering key, taken from the file name prefix
	Name      string    // Human-readable name
	Up        string    // SQL to apply
	Down      string    // SQL to rollback
	Applied   bool      // Whether this migration has been applied
	AppliedAt time.Time // When the migration was applied
}

// Tracker manages migration history in the database
type Tracker struct {
	db      *sql.DB
	dialect query.Dialect
}

// NewTracker creates a new migration tracker
func NewTracker(db *sql.DB, dialect query.Dialect) *Tracker {
	return &Tracker{db: db, dialect: dialect}
}

// Initialize ensures the schema_migrations table exists
func (t *Tracker) Initialize(ctx context.Context) error {
	stmt := `
CREATE TABLE IF NOT EXISTS schema_migrations (
	version BIGINT PRIMARY KEY,
	name VARCHAR(255) NOT NULL,
	applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	down_sql TEXT
)`
	if _, err := t.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("failed to initialize migrations table: %w", err)
	}
	return nil
}

// GetApplied returns all applied migrations sorted by version
func (t *Tracker) GetApplied(ctx context.Context) ([]*Migration, error) {
	stmt := `
SELECT version, name, applied_at, down_sql
FROM schema_migrations
ORDER BY version ASC
`
	rows, err := t.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, fmt.Errorf("failed to query migrations: %w", err)
	}
	defer rows.Close()

	var migrations []*Migration
	for rows.Next() {
		m, err := scanMigration(rows)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating migrations: %w", err)
	}

	return migrations, nil
}

// GetLast returns the most recently applied migration, or nil if none exist
func (t *Tracker) GetLast(ctx context.Context) (*Migration, error) {
	stmt := `
SELECT version, name, applied_at, down_sql
FROM schema_migrations
ORDER BY version DESC
LIMIT 1
`
	m, err := scanMigration(t.db.QueryRowContext(ctx, stmt))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get last migration: %w", err)
	}
	return m, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMigration(row scanner) (*Migration, error) {
	m := &Migration{Applied: true}
	var downSQL sql.NullString
	if err := row.Scan(&m.Version, &m.Name, &m.AppliedAt, &downSQL); err != nil {
		return nil, err
	}
	if downSQL.Valid {
		m.Down = downSQL.String
	}
	return m, nil
}

// IsApplied checks if a migration version has been applied
func (t *Tracker) IsApplied(ctx context.Context, version int64) (bool, error) {
	stmt := "SELECT COUNT(*) FROM schema_migrations WHERE version = " + t.dialect.Placeholder(1)
	var count int
	if err := t.db.QueryRowContext(ctx, stmt, version).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check migration status: %w", err)
	}
	return count > 0, nil
}

// Record marks a migration as applied in a transaction
func (t *Tracker) Record(ctx context.Context, tx *sql.Tx, m *Migration) error {
	stmt := fmt.Sprintf("INSERT INTO schema_migrations (version, name, down_sql) VALUES (%s)",
		t.dialect.Placeholders(1, 3))
	if _, err := tx.ExecContext(ctx, stmt, m.Version, m.Name, m.Down); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return nil
}

// Remove removes a migration record in a transaction
func (t *Tracker) Remove(ctx context.Context, tx *sql.Tx, version int64) error {
	stmt := "DELETE FROM schema_migrations WHERE version = " + t.dialect.Placeholder(1)
	result, err := tx.ExecContext(ctx, stmt, version)
	if err != nil {
		return fmt.Errorf("failed to remove migration: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("migration version %d not found", version)
	}

	return nil
}

// GetPending returns migrations that haven't been applied yet
func (t *Tracker) GetPending(ctx context.Context, all []*Migration) ([]*Migration, error) {
	applied, err := t.GetApplied(ctx)
	if err != nil {
		return nil, err
	}

	appliedSet := make(map[int64]bool)
	for _, m := range applied {
		appliedSet[m.Version] = true
	}

	var pending []*Migration
	for _, m := range all {
		if !appliedSet[m.Version] {
			pending = append(pending, m)
		}
	}

	return pending, nil
}

// GetCount returns the total number of applied migrations
func (t *Tracker) GetCount(ctx context.Context) (int, error) {
	var count int
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get migration count: %w", err)
	}
	return count, nil
}
