package leads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Querier is satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Columns is the select list understood by Scan.
const Columns = `id, COALESCE(nombre, ''), COALESCE(apellidos, ''), COALESCE(telefono, ''), COALESCE(telefono2, ''),
       COALESCE(ciudad, ''), COALESCE(nombre_clinica, ''),
       COALESCE(status_level_1, ''), COALESCE(status_level_2, ''), lead_status, COALESCE(closure_reason, ''),
       COALESCE(call_status, ''), call_attempts_count, last_call_attempt, selected_for_calling, manual_management,
       cita, COALESCE(hora_cita, ''), con_pack, COALESCE(origen_archivo, ''), appointment_notified_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

// Scan reads one row selected with Columns.
func Scan(row rowScanner) (Lead, error) {
	var (
		l        Lead
		lastCall sql.NullTime
		cita     sql.NullTime
		conPack  sql.NullBool
		notified sql.NullTime
	)
	if err := row.Scan(
		&l.ID,
		&l.Nombre,
		&l.Apellidos,
		&l.Phone,
		&l.Phone2,
		&l.City,
		&l.Clinic,
		&l.StatusLevel1,
		&l.StatusLevel2,
		&l.LeadStatus,
		&l.ClosureReason,
		&l.CallStatus,
		&l.CallAttempts,
		&lastCall,
		&l.SelectedForCalling,
		&l.ManualManagement,
		&cita,
		&l.HoraCita,
		&conPack,
		&l.SourceFile,
		&notified,
		&l.UpdatedAt,
	); err != nil {
		return Lead{}, err
	}
	if lastCall.Valid {
		l.LastCallAttempt = &lastCall.Time
	}
	if cita.Valid {
		l.Cita = &cita.Time
	}
	if conPack.Valid {
		l.ConPack = &conPack.Bool
	}
	if notified.Valid {
		l.AppointmentNotifiedAt = &notified.Time
	}
	return l, nil
}

// LockForUpdate reads a lead holding its row lock until the transaction ends.
func LockForUpdate(ctx context.Context, tx *sql.Tx, id int64) (Lead, error) {
	q := `SELECT ` + Columns + ` FROM leads WHERE id = $1 FOR UPDATE`
	l, err := Scan(tx.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

// UpdateState writes the campaign-owned fields of l. Contact data is untouched.
func UpdateState(ctx context.Context, q Querier, l Lead, now time.Time) error {
	const stmt = `
UPDATE leads SET
  status_level_1 = NULLIF($2, ''),
  status_level_2 = NULLIF($3, ''),
  lead_status = $4,
  closure_reason = NULLIF($5, ''),
  call_status = NULLIF($6, ''),
  call_attempts_count = $7,
  last_call_attempt = $8,
  selected_for_calling = $9,
  manual_management = $10,
  cita = $11,
  hora_cita = NULLIF($12, ''),
  con_pack = $13,
  updated_at = $14
WHERE id = $1
`
	var cita any
	if l.Cita != nil {
		cita = l.Cita.Format(time.DateOnly)
	}
	res, err := q.ExecContext(ctx, stmt,
		l.ID,
		l.StatusLevel1,
		l.StatusLevel2,
		l.LeadStatus,
		l.ClosureReason,
		string(l.CallStatus),
		l.CallAttempts,
		l.LastCallAttempt,
		l.SelectedForCalling,
		l.ManualManagement,
		cita,
		l.HoraCita,
		l.ConPack,
		now,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// PostgresRepo serves lead reads and admin flag changes outside the scheduler.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Get(ctx context.Context, id int64) (Lead, error) {
	q := `SELECT ` + Columns + ` FROM leads WHERE id = $1`
	l, err := Scan(r.db.QueryRowContext(ctx, q, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

// FindByPhone matches the normalized number against both phone columns,
// preferring open leads and then the most recently updated one.
func (r *PostgresRepo) FindByPhone(ctx context.Context, phone string) (Lead, error) {
	q := `SELECT ` + Columns + ` FROM leads
WHERE telefono = $1 OR telefono2 = $1
ORDER BY (lead_status = 'open') DESC, updated_at DESC
LIMIT 1`
	l, err := Scan(r.db.QueryRowContext(ctx, q, phone))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, err
	}
	return l, nil
}

// SetSelected flags leads for a one-off manual batch. Closed and manually
// managed leads are never selected. It returns the number of rows changed.
func (r *PostgresRepo) SetSelected(ctx context.Context, ids []int64, selected bool) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	q := `
UPDATE leads SET selected_for_calling = $1,
                 call_status = CASE WHEN $1 THEN 'selected' ELSE NULLIF(call_status, 'selected') END,
                 updated_at = $2
WHERE id IN (` + placeholders(3, len(ids)) + `)`
	if selected {
		q += ` AND lead_status = 'open' AND manual_management = FALSE`
	}
	return r.execIDs(ctx, q, ids, selected, time.Now().UTC())
}

// SetManual toggles manual management. Pending retries are cancelled by the
// caller (scheduler.Service.CancelForLead) when enabling it.
func (r *PostgresRepo) SetManual(ctx context.Context, ids []int64, manual bool) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	q := `
UPDATE leads SET manual_management = $1,
                 selected_for_calling = CASE WHEN $1 THEN FALSE ELSE selected_for_calling END,
                 updated_at = $2
WHERE id IN (` + placeholders(3, len(ids)) + `)`
	return r.execIDs(ctx, q, ids, manual, time.Now().UTC())
}

// ListSelected returns open leads flagged for the manual batch.
func (r *PostgresRepo) ListSelected(ctx context.Context, limit int) ([]Lead, error) {
	q := `SELECT ` + Columns + ` FROM leads
WHERE selected_for_calling = TRUE AND lead_status = 'open' AND manual_management = FALSE
ORDER BY id
LIMIT $1`
	return r.list(ctx, q, limit)
}

// ListAppointmentsToNotify returns booked leads whose e-mail was not sent yet.
func (r *PostgresRepo) ListAppointmentsToNotify(ctx context.Context, limit int) ([]Lead, error) {
	q := `SELECT ` + Columns + ` FROM leads
WHERE status_level_1 = $2 AND appointment_notified_at IS NULL
ORDER BY updated_at
LIMIT $1`
	return r.list(ctx, q, limit, LevelAppointment)
}

func (r *PostgresRepo) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	const q = `UPDATE leads SET appointment_notified_at = $2 WHERE id = $1`
	_, err := r.db.ExecContext(ctx, q, id, at)
	return err
}

// Insert stores a new open lead and returns its id. A lead with the same
// primary phone yields ErrDuplicatePhone.
func (r *PostgresRepo) Insert(ctx context.Context, l Lead) (int64, error) {
	const q = `
INSERT INTO leads (nombre, apellidos, telefono, telefono2, ciudad, nombre_clinica,
                   lead_status, call_attempts_count, selected_for_calling, manual_management,
                   origen_archivo, updated_at)
SELECT $1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), 'open', 0, FALSE, FALSE, $7, $8
WHERE NOT EXISTS (SELECT 1 FROM leads WHERE telefono = $3)
RETURNING id
`
	var id int64
	err := r.db.QueryRowContext(ctx, q,
		l.Nombre, l.Apellidos, l.Phone, l.Phone2, l.City, l.Clinic, l.SourceFile, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, ErrDuplicatePhone
		}
		return 0, err
	}
	return id, nil
}

func (r *PostgresRepo) list(ctx context.Context, q string, args ...any) ([]Lead, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		l, err := Scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) execIDs(ctx context.Context, q string, ids []int64, flag bool, now time.Time) (int, error) {
	args := make([]any, 0, len(ids)+2)
	args = append(args, flag, now)
	for _, id := range ids {
		args = append(args, id)
	}
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ",")
}
