package secrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// errTableMissing signals the §4.11 "migration window" case: the config
// table doesn't exist yet, so a cold read should fall back to the
// environment rather than fail the caller.
var errTableMissing = errors.New("secrets: config table does not exist")

// pqUndefinedTable is the Postgres SQLSTATE for "undefined_table".
const pqUndefinedTable = "42P01"

// PostgresStore implements dbReader against a `config` table, following the
// same raw-SQL, lib/pq idiom as internal/outline.PostgresStore and
// internal/profile.PostgresStore.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// latest implements dbReader: the most recent row for key, ordered by id
// desc per §4.11.
func (s *PostgresStore) latest(ctx context.Context, key string) (value string, isEncrypted bool, found bool, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT value, is_encrypted FROM config WHERE key = $1 ORDER BY id DESC LIMIT 1`,
		key,
	).Scan(&value, &isEncrypted)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return "", false, false, nil
	case err != nil:
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable {
			return "", false, false, errTableMissing
		}
		return "", false, false, fmt.Errorf("secrets: query %q: %w", key, err)
	default:
		return value, isEncrypted, true, nil
	}
}

// insert implements dbReader. Config rows are append-only: add/update both
// insert a new row, and latest always resolves the most recent one — the
// same append-and-resolve-by-id-desc pattern the spec describes for the
// config/secrets table.
func (s *PostgresStore) insert(ctx context.Context, key, value string, isEncrypted bool, remark string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config (key, value, is_encrypted, remark) VALUES ($1, $2, $3, $4)`,
		key, value, isEncrypted, remark,
	)
	if err != nil {
		return fmt.Errorf("secrets: insert %q: %w", key, err)
	}
	return nil
}
