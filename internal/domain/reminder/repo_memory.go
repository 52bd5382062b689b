package reminder

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo keeps reminders in process memory. The create guards check and
// insert under one lock, so it is safe without a surrounding transaction.
type MemoryRepo struct {
	mu        sync.RWMutex
	reminders map[uuid.UUID]*Reminder
	now       func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{reminders: make(map[uuid.UUID]*Reminder), now: time.Now}
}

func (m *MemoryRepo) CreateIfAbsent(_ context.Context, r *Reminder) (bool, error) {
	return m.createUnless(r, func(x *Reminder) bool {
		return x.Status.Open() || x.TargetDueDate.Equal(*r.TargetDueDate)
	}), nil
}

func (m *MemoryRepo) CreateIfNoneOpen(_ context.Context, r *Reminder) (bool, error) {
	return m.createUnless(r, func(x *Reminder) bool { return x.Status.Open() }), nil
}

// createUnless inserts r unless blocks holds for a reminder of the same event
// and kind.
func (m *MemoryRepo) createUnless(r *Reminder, blocks func(x *Reminder) bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.TargetEventID != nil {
		for _, x := range m.reminders {
			if x.TargetEventID == nil || *x.TargetEventID != *r.TargetEventID || x.Kind != r.Kind {
				continue
			}
			if blocks(x) {
				return false
			}
		}
	}
	m.insert(r)
	return true
}

func (m *MemoryRepo) Create(_ context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(r)
	return nil
}

func (m *MemoryRepo) insert(r *Reminder) {
	now := m.now().UTC()
	r.ID = uuid.New()
	r.CreatedAt, r.UpdatedAt = now, now
	m.reminders[r.ID] = r.Clone()
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reminders[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r.Clone(), nil
}

// GetForUpdate relies on the caller's LocalTransactor for exclusion.
func (m *MemoryRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryRepo) Update(_ context.Context, r *Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.reminders[r.ID]
	if !ok {
		return ErrNotFound
	}
	r.UpdatedAt = m.now().UTC()
	next := cur.Clone()
	next.Status, next.ReadAt, next.UpdatedAt = r.Status, r.ReadAt, r.UpdatedAt
	m.reminders[r.ID] = next.Clone()
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reminders[id]; !ok {
		return ErrNotFound
	}
	delete(m.reminders, id)
	return nil
}

func (m *MemoryRepo) ResolveStale(_ context.Context, eventID uuid.UUID, kind Kind, due time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	n := 0
	for _, r := range m.reminders {
		if r.TargetEventID == nil || *r.TargetEventID != eventID || r.Kind != kind {
			continue
		}
		if !r.Status.Open() || r.TargetDueDate.Equal(due) {
			continue
		}
		_ = r.Resolve(now)
		r.UpdatedAt = now
		n++
	}
	return n, nil
}

func (m *MemoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Reminder, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*Reminder
	for _, r := range m.reminders {
		if r.PatientID == patientID && (status == "" || r.Status == status) {
			items = append(items, r.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].SendAt.Equal(items[j].SendAt) {
			return items[i].SendAt.After(items[j].SendAt)
		}
		return items[i].ID.String() < items[j].ID.String()
	})
	total := len(items)
	if offset >= total {
		return []*Reminder{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

func (m *MemoryRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*Reminder
	for _, r := range m.reminders {
		if r.TargetEventID != nil && *r.TargetEventID == eventID {
			items = append(items, r.Clone())
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].SendAt.Before(items[j].SendAt) })
	return items, nil
}

func (m *MemoryRepo) Stats(_ context.Context, patientID uuid.UUID) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s Stats
	for _, r := range m.reminders {
		if r.PatientID != patientID {
			continue
		}
		s.Total++
		switch r.Status {
		case StatusSent:
			s.Unread++
		case StatusRead:
			s.Read++
		case StatusConfirmed:
			s.Confirmed++
		}
	}
	return &s, nil
}
