package leads

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryRepo is an in-memory lead repository for tests and local runs.
// It is not intended for production use.

type MemoryRepo struct {
	mu     sync.Mutex
	nextID int64
	leads  map[int64]Lead
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{leads: map[int64]Lead{}} }

// Put stores l as-is, assigning an id when l.ID is zero.
func (r *MemoryRepo) Put(l Lead) Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	if l.ID == 0 {
		r.nextID++
		l.ID = r.nextID
	} else if l.ID > r.nextID {
		r.nextID = l.ID
	}
	if l.LeadStatus == "" {
		l.LeadStatus = StatusOpen
	}
	r.leads[l.ID] = l
	return l
}

func (r *MemoryRepo) Get(ctx context.Context, id int64) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return Lead{}, ErrNotFound
	}
	return l, nil
}

func (r *MemoryRepo) FindByPhone(ctx context.Context, phone string) (Lead, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var (
		best  Lead
		found bool
	)
	for _, l := range r.leads {
		if l.Phone != phone && l.Phone2 != phone {
			continue
		}
		if !found || betterMatch(l, best) {
			best, found = l, true
		}
	}
	if !found {
		return Lead{}, ErrNotFound
	}
	return best, nil
}

func betterMatch(a, b Lead) bool {
	if a.IsClosed() != b.IsClosed() {
		return !a.IsClosed()
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

func (r *MemoryRepo) SetSelected(ctx context.Context, ids []int64, selected bool) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		l, ok := r.leads[id]
		if !ok {
			continue
		}
		if selected && (l.IsClosed() || l.ManualManagement) {
			continue
		}
		l.SelectedForCalling = selected
		switch {
		case selected:
			l.CallStatus = CallStatusSelected
		case l.CallStatus == CallStatusSelected:
			l.CallStatus = CallStatusNone
		}
		l.UpdatedAt = time.Now().UTC()
		r.leads[id] = l
		n++
	}
	return n, nil
}

func (r *MemoryRepo) SetManual(ctx context.Context, ids []int64, manual bool) (int, error) {
	if len(ids) == 0 {
		return 0, ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, id := range ids {
		l, ok := r.leads[id]
		if !ok {
			continue
		}
		l.ManualManagement = manual
		if manual {
			l.SelectedForCalling = false
		}
		l.UpdatedAt = time.Now().UTC()
		r.leads[id] = l
		n++
	}
	return n, nil
}

func (r *MemoryRepo) ListSelected(ctx context.Context, limit int) ([]Lead, error) {
	return r.filter(limit, func(l Lead) bool {
		return l.SelectedForCalling && !l.IsClosed() && !l.ManualManagement
	}), nil
}

func (r *MemoryRepo) ListAppointmentsToNotify(ctx context.Context, limit int) ([]Lead, error) {
	return r.filter(limit, func(l Lead) bool {
		return l.StatusLevel1 == LevelAppointment && l.AppointmentNotifiedAt == nil
	}), nil
}

func (r *MemoryRepo) MarkNotified(ctx context.Context, id int64, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.leads[id]
	if !ok {
		return ErrNotFound
	}
	l.AppointmentNotifiedAt = &at
	r.leads[id] = l
	return nil
}

func (r *MemoryRepo) Insert(ctx context.Context, l Lead) (int64, error) {
	r.mu.Lock()
	for _, existing := range r.leads {
		if existing.Phone == l.Phone {
			r.mu.Unlock()
			return 0, ErrDuplicatePhone
		}
	}
	r.mu.Unlock()

	l.ID = 0
	l.LeadStatus = StatusOpen
	l.UpdatedAt = time.Now().UTC()
	return r.Put(l).ID, nil
}

// All returns every lead ordered by id.
func (r *MemoryRepo) All() []Lead {
	return r.filter(0, func(Lead) bool { return true })
}

func (r *MemoryRepo) filter(limit int, keep func(Lead) bool) []Lead {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Lead, 0)
	for _, l := range r.leads {
		if keep(l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
