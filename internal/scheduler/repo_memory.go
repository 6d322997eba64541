package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	"outbound-campaigns/internal/calls"
	"outbound-campaigns/internal/leads"
)

// MemoryStore is an in-memory Store for tests and local runs. Transactions
// are serialized by one mutex; writes are applied immediately, so a failing
// callback is not rolled back.
type MemoryStore struct {
	txMu sync.Mutex

	mu     sync.Mutex
	nextID int64
	rows   []ScheduledCall

	Leads *leads.MemoryRepo
	Calls *calls.MemoryRepo
}

func NewMemoryStore(l *leads.MemoryRepo, c *calls.MemoryRepo) *MemoryStore {
	if l == nil {
		l = leads.NewMemoryRepo()
	}
	if c == nil {
		c = calls.NewMemoryRepo()
	}
	return &MemoryStore{Leads: l, Calls: c}
}

func (s *MemoryStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(ctx, memTx{s: s})
}

// Rows returns a copy of every schedule row in insertion order.
func (s *MemoryStore) Rows() []ScheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledCall, len(s.rows))
	copy(out, s.rows)
	return out
}

// Seed inserts a row as-is, bypassing the one-pending-row check.
func (s *MemoryStore) Seed(sc ScheduledCall) ScheduledCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sc.ID = s.nextID
	s.rows = append(s.rows, sc)
	return sc
}

func (s *MemoryStore) Due(ctx context.Context, now time.Time, limit int) ([]DueCall, error) {
	s.mu.Lock()
	rows := make([]ScheduledCall, 0)
	for _, r := range s.rows {
		if r.Status == StatusPending && !r.ScheduledAt.After(now) {
			rows = append(rows, r)
		}
	}
	s.mu.Unlock()

	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].ScheduledAt.Equal(rows[j].ScheduledAt) {
			return rows[i].ScheduledAt.Before(rows[j].ScheduledAt)
		}
		return rows[i].AttemptNumber < rows[j].AttemptNumber
	})

	out := make([]DueCall, 0)
	for _, r := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		l, err := s.Leads.Get(ctx, r.LeadID)
		if err != nil || l.IsClosed() || l.ManualManagement {
			continue
		}
		out = append(out, DueCall{ScheduledCall: r, Lead: l})
	}
	return out, nil
}

func (s *MemoryStore) List(ctx context.Context, f Filter) ([]ScheduledCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ScheduledCall, 0)
	for _, r := range s.rows {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.LeadID > 0 && r.LeadID != f.LeadID {
			continue
		}
		if !f.From.IsZero() && r.ScheduledAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !r.ScheduledAt.Before(f.To) {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ScheduledAt.Equal(out[j].ScheduledAt) {
			return out[i].ScheduledAt.After(out[j].ScheduledAt)
		}
		return out[i].ID > out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *MemoryStore) PurgeCancelled(ctx context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.rows[:0]
	n := 0
	for _, r := range s.rows {
		if r.Status == StatusCancelled && r.UpdatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, r)
	}
	s.rows = kept
	return n, nil
}

func (s *MemoryStore) CountPending(ctx context.Context) (int, error) {
	return s.count(func(r ScheduledCall) bool { return r.Status == StatusPending }), nil
}

func (s *MemoryStore) CountPendingBetween(ctx context.Context, from, to time.Time) (int, error) {
	return s.count(func(r ScheduledCall) bool {
		return r.Status == StatusPending && !r.ScheduledAt.Before(from) && r.ScheduledAt.Before(to)
	}), nil
}

func (s *MemoryStore) count(keep func(ScheduledCall) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.rows {
		if keep(r) {
			n++
		}
	}
	return n
}

type memTx struct {
	s *MemoryStore
}

func (t memTx) LockLead(ctx context.Context, id int64) (leads.Lead, error) {
	return t.s.Leads.Get(ctx, id)
}

func (t memTx) UpdateLead(ctx context.Context, l leads.Lead, now time.Time) error {
	if _, err := t.s.Leads.Get(ctx, l.ID); err != nil {
		return err
	}
	l.UpdatedAt = now
	t.s.Leads.Put(l)
	return nil
}

func (t memTx) CancelPending(ctx context.Context, leadID int64, now time.Time) (int, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	n := 0
	for i := range t.s.rows {
		if t.s.rows[i].LeadID == leadID && t.s.rows[i].Status == StatusPending {
			t.s.rows[i].Status = StatusCancelled
			t.s.rows[i].UpdatedAt = now
			n++
		}
	}
	return n, nil
}

func (t memTx) CompleteSchedule(ctx context.Context, id, leadID int64, now time.Time) error {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := range t.s.rows {
		r := &t.s.rows[i]
		if r.ID == id && r.LeadID == leadID && r.Status == StatusPending {
			r.Status = StatusCompleted
			r.UpdatedAt = now
			return nil
		}
	}
	return ErrNotFound
}

// InsertSchedule enforces the partial unique index of the SQL schema.
func (t memTx) InsertSchedule(ctx context.Context, sc ScheduledCall) (int64, error) {
	if sc.Status != StatusPending {
		return 0, ErrInvalidArgument
	}
	t.s.mu.Lock()
	for _, r := range t.s.rows {
		if r.LeadID == sc.LeadID && r.Status == StatusPending {
			t.s.mu.Unlock()
			return 0, ErrInvalidArgument
		}
	}
	t.s.mu.Unlock()

	if sc.CreatedAt.IsZero() {
		sc.CreatedAt = time.Now().UTC()
		sc.UpdatedAt = sc.CreatedAt
	}
	return t.s.Seed(sc).ID, nil
}

func (t memTx) RecordCall(ctx context.Context, rec calls.Record) (bool, error) {
	return t.s.Calls.Upsert(ctx, rec)
}

func (t memTx) CountCalls(ctx context.Context, leadID int64) (int, error) {
	return t.s.Calls.CountForLead(ctx, leadID)
}
