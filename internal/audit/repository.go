package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events. It never issues UPDATE or DELETE.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
INSERT INTO audit_events (id, type, actor_user_id, actor_role, ip_address, target, message, metadata, created_at)
VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, '')::jsonb, $9)`,
		e.ID, string(e.Type), e.ActorUserID, e.ActorRole, e.IPAddress, e.Target, e.Message, e.Metadata, e.CreatedAt)
	return err
}

func (r *PostgresRepo) List(ctx context.Context, limit int) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, type, COALESCE(actor_user_id, ''), COALESCE(actor_role, ''), COALESCE(ip_address, ''),
       COALESCE(target, ''), COALESCE(message, ''), COALESCE(metadata::text, ''), created_at
FROM audit_events
ORDER BY created_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		var (
			e  Event
			et string
		)
		if err := rows.Scan(&e.ID, &et, &e.ActorUserID, &e.ActorRole, &e.IPAddress, &e.Target, &e.Message, &e.Metadata, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Type = EventType(et)
		out = append(out, e)
	}
	return out, rows.Err()
}
