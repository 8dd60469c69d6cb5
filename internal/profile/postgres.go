package profile

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore persists variable bindings in a simple (user, shifu,
// name) -> value table, following the same raw-SQL idiom as internal/outline.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an already-opened *sql.DB.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetAll implements Store.
func (s *PostgresStore) GetAll(ctx context.Context, userBID, shifuBID string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, value FROM learn_profile_variables WHERE user_bid = $1 AND shifu_bid = $2`,
		userBID, shifuBID,
	)
	if err != nil {
		return nil, fmt.Errorf("profile: get all: %w", err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, fmt.Errorf("profile: scan variable: %w", err)
		}
		out[name] = value
	}
	return out, rows.Err()
}

// Set implements Store.
func (s *PostgresStore) Set(ctx context.Context, userBID, shifuBID, name, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO learn_profile_variables (user_bid, shifu_bid, name, value, updated_at)
		 VALUES ($1,$2,$3,$4,now())
		 ON CONFLICT (user_bid, shifu_bid, name) DO UPDATE SET value = EXCLUDED.value, updated_at = now()`,
		userBID, shifuBID, name, value,
	)
	if err != nil {
		return fmt.Errorf("profile: set variable: %w", err)
	}
	return nil
}
