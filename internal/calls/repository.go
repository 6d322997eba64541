package calls

import (
	"context"
	"database/sql"
	"time"

	"outbound-campaigns/internal/outcome"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

const columns = `call_id, lead_id, COALESCE(phone_number, ''), start_time, end_time, COALESCE(duration, 0),
       COALESCE(status_code, 0), COALESCE(outcome, ''), COALESCE(summary, ''), COALESCE(recording_url, ''), created_at`

// terminalCodes is passed as a Postgres int array.
var terminalCodes = []int32{outcome.CodeSuccess, outcome.CodeBusy, outcome.CodeFailed, outcome.CodeNoAnswer}

// UpsertWith stores rec, or fills the late-arriving fields of an existing
// row with the same id. It reports whether a new row was created.
func UpsertWith(ctx context.Context, q Querier, rec Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	const stmt = `
INSERT INTO pearl_calls (call_id, lead_id, phone_number, start_time, end_time, duration,
                         status_code, outcome, summary, recording_url, created_at)
VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, ''), $11)
ON CONFLICT (call_id) DO UPDATE SET
  status_code   = CASE WHEN $12 AND NOT COALESCE(pearl_calls.status_code = ANY($13::int[]), FALSE)
                       THEN EXCLUDED.status_code ELSE pearl_calls.status_code END,
  outcome       = CASE WHEN $12 AND NOT COALESCE(pearl_calls.status_code = ANY($13::int[]), FALSE)
                       THEN EXCLUDED.outcome ELSE pearl_calls.outcome END,
  summary       = COALESCE(pearl_calls.summary, EXCLUDED.summary),
  recording_url = COALESCE(pearl_calls.recording_url, EXCLUDED.recording_url),
  end_time      = COALESCE(pearl_calls.end_time, EXCLUDED.end_time),
  duration      = COALESCE(NULLIF(pearl_calls.duration, 0), EXCLUDED.duration)
RETURNING (xmax = 0)
`
	var inserted bool
	err := q.QueryRowContext(ctx, stmt,
		rec.ID,
		rec.LeadID,
		rec.Phone,
		rec.StartTime,
		rec.EndTime,
		rec.DurationSeconds,
		rec.StatusCode,
		rec.Outcome,
		rec.Summary,
		rec.RecordingURL,
		rec.CreatedAt,
		outcome.IsTerminalCode(rec.StatusCode),
		terminalCodes,
	).Scan(&inserted)
	return inserted, err
}

// CountWith returns the number of call records stored for a lead.
func CountWith(ctx context.Context, q Querier, leadID int64) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM pearl_calls WHERE lead_id = $1`, leadID).Scan(&n)
	return n, err
}

type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Upsert(ctx context.Context, rec Record) (bool, error) {
	return UpsertWith(ctx, r.db, rec)
}

func (r *PostgresRepo) CountForLead(ctx context.Context, leadID int64) (int, error) {
	return CountWith(ctx, r.db, leadID)
}

func (r *PostgresRepo) Get(ctx context.Context, id string) (Record, error) {
	out, err := r.list(ctx, `SELECT `+columns+` FROM pearl_calls WHERE call_id = $1`, id)
	if err != nil {
		return Record{}, err
	}
	if len(out) == 0 {
		return Record{}, ErrNotFound
	}
	return out[0], nil
}

// ListRecent returns the newest records first.
func (r *PostgresRepo) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	q := `SELECT ` + columns + ` FROM pearl_calls ORDER BY created_at DESC, call_id LIMIT $1`
	return r.list(ctx, q, limit)
}

// ListRange returns records created in [from, to).
func (r *PostgresRepo) ListRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	q := `SELECT ` + columns + ` FROM pearl_calls WHERE created_at >= $1 AND created_at < $2 ORDER BY created_at`
	return r.list(ctx, q, from, to)
}

func (r *PostgresRepo) ListForLead(ctx context.Context, leadID int64) ([]Record, error) {
	q := `SELECT ` + columns + ` FROM pearl_calls WHERE lead_id = $1 ORDER BY created_at`
	return r.list(ctx, q, leadID)
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]Record, 0)
	for rows.Next() {
		var (
			rec   Record
			start sql.NullTime
			end   sql.NullTime
		)
		if err := rows.Scan(
			&rec.ID,
			&rec.LeadID,
			&rec.Phone,
			&start,
			&end,
			&rec.DurationSeconds,
			&rec.StatusCode,
			&rec.Outcome,
			&rec.Summary,
			&rec.RecordingURL,
			&rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		if start.Valid {
			rec.StartTime = &start.Time
		}
		if end.Valid {
			rec.EndTime = &end.Time
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
