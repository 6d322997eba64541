package scheduler

import (
	"context"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
)

// Store is the persistence contract of the scheduler.
//
// Every lead mutation happens inside InTx, after LockLead has taken the row
// lock, so that automation and admin writers serialize per lead.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// Due returns pending rows with ScheduledAt <= now whose lead is open and
	// not manually managed, oldest first.
	Due(ctx context.Context, now time.Time, limit int) ([]DueCall, error)
	List(ctx context.Context, f Filter) ([]ScheduledCall, error)
	PurgeCancelled(ctx context.Context, before time.Time) (int, error)
	CountPending(ctx context.Context) (int, error)
	CountPendingBetween(ctx context.Context, from, to time.Time) (int, error)
}

// Tx is the unit-of-work view handed to InTx callbacks.
type Tx interface {
	LockLead(ctx context.Context, id int64) (leads.Lead, error)
	UpdateLead(ctx context.Context, l leads.Lead, now time.Time) error
	CancelPending(ctx context.Context, leadID int64, now time.Time) (int, error)
	// CompleteSchedule consumes pending row id of leadID; ErrNotFound when
	// the row is no longer pending.
	CompleteSchedule(ctx context.Context, id, leadID int64, now time.Time) error
	InsertSchedule(ctx context.Context, sc ScheduledCall) (int64, error)
	RecordCall(ctx context.Context, rec calls.Record) (bool, error)
	CountCalls(ctx context.Context, leadID int64) (int, error)
}
