package settings

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresStore keeps settings in scheduler_config(config_key, config_value, description, updated_at).
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) Get(ctx context.Context, key string) (string, bool, error) {
	const q = `
SELECT config_value
FROM scheduler_config
WHERE config_key = $1
`
	var v sql.NullString
	if err := s.db.QueryRowContext(ctx, q, key).Scan(&v); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return v.String, v.Valid, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	const q = `
INSERT INTO scheduler_config (config_key, config_value, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (config_key)
DO UPDATE SET config_value = EXCLUDED.config_value,
              updated_at = EXCLUDED.updated_at
`
	_, err := s.db.ExecContext(ctx, q, key, value, time.Now().UTC())
	return err
}

func (s *PostgresStore) All(ctx context.Context) (map[string]string, error) {
	const q = `
SELECT config_key, COALESCE(config_value, '')
FROM scheduler_config
ORDER BY config_key
`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}
