package careevent

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carecal/carecal/internal/domain/schedule"
)

// MemoryRepo keeps events in process memory. Reads return copies so callers
// must Update to persist changes, as with the PostgreSQL repository.
type MemoryRepo struct {
	mu     sync.RWMutex
	events map[uuid.UUID]*Event
	now    func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{events: make(map[uuid.UUID]*Event), now: time.Now}
}

func (m *MemoryRepo) CreateBatch(_ context.Context, events []*Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	for _, e := range events {
		e.ID = uuid.New()
		e.CreatedAt, e.UpdatedAt = now, now
		m.events[e.ID] = e.Clone()
	}
	return nil
}

func (m *MemoryRepo) GetByID(_ context.Context, id uuid.UUID) (*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.events[id]
	if !ok {
		return nil, ErrNotFound
	}
	return e.Clone(), nil
}

// GetForUpdate relies on the caller's LocalTransactor for exclusion.
func (m *MemoryRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (*Event, error) {
	return m.GetByID(ctx, id)
}

func (m *MemoryRepo) Update(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[e.ID]; !ok {
		return ErrNotFound
	}
	e.UpdatedAt = m.now().UTC()
	m.events[e.ID] = e.Clone()
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[id]; !ok {
		return ErrNotFound
	}
	delete(m.events, id)
	return nil
}

func (m *MemoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, kind schedule.Kind, limit, offset int) ([]*Event, int, error) {
	all := m.filter(func(e *Event) bool {
		return e.PatientID == patientID && (kind == "" || e.Kind == kind)
	})
	return page(all, limit, offset), len(all), nil
}

func (m *MemoryRepo) ListDue(_ context.Context, kind schedule.Kind, due time.Time) ([]*Event, error) {
	return m.filter(func(e *Event) bool {
		return e.Kind == kind && e.Status == StatusUpcoming && e.DueDate.Equal(due)
	}), nil
}

func (m *MemoryRepo) CountInScope(_ context.Context, kind schedule.Kind, scope Scope) (int, error) {
	return len(m.filter(func(e *Event) bool { return e.Kind == kind && scope.matches(e) })), nil
}

func (m *MemoryRepo) filter(keep func(*Event) bool) []*Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*Event
	for _, e := range m.events {
		if keep(e) {
			out = append(out, e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueDate.Equal(out[j].DueDate) {
			return out[i].DueDate.Before(out[j].DueDate)
		}
		return out[i].SubKind < out[j].SubKind
	})
	return out
}

func page(items []*Event, limit, offset int) []*Event {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
