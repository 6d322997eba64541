package reporting

import (
	"context"
	"database/sql"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
)

type PostgresRepo struct {
	db    *sql.DB
	calls *calls.PostgresRepo
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db, calls: calls.NewPostgresRepo(db)}
}

func (r *PostgresRepo) ListCalls(ctx context.Context, from, to time.Time) ([]calls.Record, error) {
	return r.calls.ListRange(ctx, from, to)
}

func (r *PostgresRepo) LeadCounters(ctx context.Context) (LeadCounters, error) {
	out := LeadCounters{ClosuresByReason: map[string]int{}}

	var avg sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*) FILTER (WHERE lead_status = 'open'),
       COUNT(*) FILTER (WHERE lead_status = 'closed'),
       COUNT(*) FILTER (WHERE manual_management),
       COUNT(*) FILTER (WHERE status_level_1 = $1),
       AVG(call_attempts_count),
       COALESCE(MAX(call_attempts_count), 0)
FROM leads`, leads.LevelAppointment).Scan(
		&out.OpenLeads,
		&out.ClosedLeads,
		&out.ManualLeads,
		&out.AppointmentsBooked,
		&avg,
		&out.MaxAttempts,
	)
	if err != nil {
		return LeadCounters{}, err
	}
	out.AvgAttempts = avg.Float64

	rows, err := r.db.QueryContext(ctx, `
SELECT closure_reason, COUNT(*)
FROM leads
WHERE lead_status = 'closed' AND COALESCE(closure_reason, '') <> ''
GROUP BY closure_reason`)
	if err != nil {
		return LeadCounters{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			reason string
			n      int
		)
		if err := rows.Scan(&reason, &n); err != nil {
			return LeadCounters{}, err
		}
		out.ClosuresByReason[reason] = n
	}
	return out, rows.Err()
}
