package scheduler

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
	"outbound-campaigns/pkg/utils"
)

// PostgresStore implements Store on the campaign database.
//
// Transactions run at READ COMMITTED with the lead row locked FOR UPDATE;
// deadlocks and serialization failures are retried by utils.WithTxRetry.
// The partial unique index on call_schedule(lead_id) WHERE status = 'pending'
// backs the one-pending-row rule.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	return utils.WithTxRetry(ctx, s.db, nil, utils.DefaultTxAttempts, func(ctx context.Context, tx *sql.Tx) error {
		return fn(ctx, pgTx{tx: tx})
	})
}

const scheduleColumns = `cs.id, cs.lead_id, cs.scheduled_at, cs.attempt_number, COALESCE(cs.last_outcome, ''), cs.status, cs.created_at, cs.updated_at`

func (s *PostgresStore) Due(ctx context.Context, now time.Time, limit int) ([]DueCall, error) {
	q := `
SELECT ` + scheduleColumns + `, l.*
FROM call_schedule cs
JOIN LATERAL (
  SELECT ` + leads.Columns + `
  FROM leads
  WHERE leads.id = cs.lead_id AND leads.lead_status = 'open' AND leads.manual_management = FALSE
) l ON TRUE
WHERE cs.status = 'pending' AND cs.scheduled_at <= $1
ORDER BY cs.scheduled_at ASC, cs.attempt_number ASC
LIMIT $2`
	rows, err := s.db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]DueCall, 0)
	for rows.Next() {
		var dc DueCall
		head := scheduleDest(&dc.ScheduledCall)
		lead, err := leads.Scan(prefixScanner{row: rows, head: head})
		if err != nil {
			return nil, err
		}
		dc.Lead = lead
		out = append(out, dc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) List(ctx context.Context, f Filter) ([]ScheduledCall, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if f.Status != "" {
		add("cs.status = $%d", string(f.Status))
	}
	if f.LeadID > 0 {
		add("cs.lead_id = $%d", f.LeadID)
	}
	if !f.From.IsZero() {
		add("cs.scheduled_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("cs.scheduled_at < $%d", f.To)
	}

	q := `SELECT ` + scheduleColumns + ` FROM call_schedule cs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	q += fmt.Sprintf(` ORDER BY cs.scheduled_at DESC, cs.id DESC LIMIT $%d`, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]ScheduledCall, 0)
	for rows.Next() {
		var sc ScheduledCall
		if err := rows.Scan(scheduleDest(&sc)...); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *PostgresStore) PurgeCancelled(ctx context.Context, before time.Time) (int, error) {
	const q = `DELETE FROM call_schedule WHERE status = 'cancelled' AND updated_at < $1`
	res, err := s.db.ExecContext(ctx, q, before)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) CountPending(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM call_schedule WHERE status = 'pending'`).Scan(&n)
	return n, err
}

func (s *PostgresStore) CountPendingBetween(ctx context.Context, from, to time.Time) (int, error) {
	const q = `SELECT COUNT(*) FROM call_schedule WHERE status = 'pending' AND scheduled_at >= $1 AND scheduled_at < $2`
	var n int
	err := s.db.QueryRowContext(ctx, q, from, to).Scan(&n)
	return n, err
}

type pgTx struct {
	tx *sql.Tx
}

func (t pgTx) LockLead(ctx context.Context, id int64) (leads.Lead, error) {
	return leads.LockForUpdate(ctx, t.tx, id)
}

func (t pgTx) UpdateLead(ctx context.Context, l leads.Lead, now time.Time) error {
	return leads.UpdateState(ctx, t.tx, l, now)
}

func (t pgTx) CancelPending(ctx context.Context, leadID int64, now time.Time) (int, error) {
	const q = `UPDATE call_schedule SET status = 'cancelled', updated_at = $2 WHERE lead_id = $1 AND status = 'pending'`
	res, err := t.tx.ExecContext(ctx, q, leadID, now)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (t pgTx) CompleteSchedule(ctx context.Context, id, leadID int64, now time.Time) error {
	const q = `UPDATE call_schedule SET status = 'completed', updated_at = $3 WHERE id = $1 AND lead_id = $2 AND status = 'pending'`
	res, err := t.tx.ExecContext(ctx, q, id, leadID, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (t pgTx) InsertSchedule(ctx context.Context, sc ScheduledCall) (int64, error) {
	if sc.Status != StatusPending {
		return 0, ErrInvalidArgument
	}
	const q = `
INSERT INTO call_schedule (lead_id, scheduled_at, attempt_number, status, last_outcome, created_at, updated_at)
VALUES ($1, $2, $3, 'pending', NULLIF($4, ''), now(), now())
RETURNING id
`
	var id int64
	if err := t.tx.QueryRowContext(ctx, q, sc.LeadID, sc.ScheduledAt, sc.AttemptNumber, sc.LastOutcome).Scan(&id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return id, nil
}

func (t pgTx) RecordCall(ctx context.Context, rec calls.Record) (bool, error) {
	return calls.UpsertWith(ctx, t.tx, rec)
}

func (t pgTx) CountCalls(ctx context.Context, leadID int64) (int, error) {
	return calls.CountWith(ctx, t.tx, leadID)
}

func scheduleDest(sc *ScheduledCall) []any {
	return []any{
		&sc.ID,
		&sc.LeadID,
		&sc.ScheduledAt,
		&sc.AttemptNumber,
		&sc.LastOutcome,
		&sc.Status,
		&sc.CreatedAt,
		&sc.UpdatedAt,
	}
}

// prefixScanner lets leads.Scan read the tail of a joined row.
type prefixScanner struct {
	row  interface{ Scan(dest ...any) error }
	head []any
}

func (p prefixScanner) Scan(dest ...any) error {
	return p.row.Scan(append(p.head, dest...)...)
}
