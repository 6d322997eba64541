package calls

import (
	"context"
	"sort"
	"sync"
	"time"

	"outbound-campaigns/internal/outcome"
)

// MemoryRepo is a simple in-memory call record repository for tests.
// It is not intended for production use.

type MemoryRepo struct {
	mu      sync.Mutex
	records map[string]Record
	seq     int
	order   map[string]int
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{records: map[string]Record{}, order: map[string]int{}}
}

func (r *MemoryRepo) Upsert(ctx context.Context, rec Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.records[rec.ID]
	if !ok {
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = time.Now().UTC()
		}
		r.seq++
		r.order[rec.ID] = r.seq
		r.records[rec.ID] = rec
		return true, nil
	}
	if !outcome.IsTerminalCode(cur.StatusCode) && outcome.IsTerminalCode(rec.StatusCode) {
		cur.StatusCode = rec.StatusCode
		cur.Outcome = rec.Outcome
	}
	if cur.Summary == "" {
		cur.Summary = rec.Summary
	}
	if cur.RecordingURL == "" {
		cur.RecordingURL = rec.RecordingURL
	}
	if cur.EndTime == nil {
		cur.EndTime = rec.EndTime
	}
	if cur.DurationSeconds == 0 {
		cur.DurationSeconds = rec.DurationSeconds
	}
	r.records[rec.ID] = cur
	return false, nil
}

func (r *MemoryRepo) CountForLead(ctx context.Context, leadID int64) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, rec := range r.records {
		if rec.LeadID == leadID {
			n++
		}
	}
	return n, nil
}

func (r *MemoryRepo) Get(ctx context.Context, id string) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (r *MemoryRepo) ListRecent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	out := r.sorted(func(Record) bool { return true })
	// newest first
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) ListRange(ctx context.Context, from, to time.Time) ([]Record, error) {
	return r.sorted(func(rec Record) bool {
		return !rec.CreatedAt.Before(from) && rec.CreatedAt.Before(to)
	}), nil
}

func (r *MemoryRepo) ListForLead(ctx context.Context, leadID int64) ([]Record, error) {
	return r.sorted(func(rec Record) bool { return rec.LeadID == leadID }), nil
}

// sorted returns matching records by creation time, then insertion order.
func (r *MemoryRepo) sorted(keep func(Record) bool) []Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Record, 0)
	for _, rec := range r.records {
		if keep(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return r.order[out[i].ID] < r.order[out[j].ID]
	})
	return out
}
