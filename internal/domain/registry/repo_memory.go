package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore implements the three registry repositories in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	patients    map[uuid.UUID]*Patient
	pregnancies map[uuid.UUID]*Pregnancy
	children    map[uuid.UUID]*Child
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		patients:    make(map[uuid.UUID]*Patient),
		pregnancies: make(map[uuid.UUID]*Pregnancy),
		children:    make(map[uuid.UUID]*Child),
	}
}

func (m *MemoryStore) Patients() PatientRepository     { return memPatients{m} }
func (m *MemoryStore) Pregnancies() PregnancyRepository { return memPregnancies{m} }
func (m *MemoryStore) Children() ChildRepository        { return memChildren{m} }

type memPatients struct{ *MemoryStore }

func (m memPatients) Create(_ context.Context, p *Patient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = now, now
	c := *p
	m.patients[p.ID] = &c
	return nil
}

func (m memPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	c := *p
	return &c, nil
}

func (m memPatients) List(_ context.Context, limit, offset int) ([]*Patient, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*Patient, 0, len(m.patients))
	for _, p := range m.patients {
		c := *p
		items = append(items, &c)
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].LastName != items[j].LastName {
			return items[i].LastName < items[j].LastName
		}
		return items[i].FirstName < items[j].FirstName
	})
	total := len(items)
	if offset >= total {
		return []*Patient{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

type memPregnancies struct{ *MemoryStore }

func (m memPregnancies) Create(_ context.Context, p *Pregnancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[p.PatientID]; !ok {
		return ErrPatientNotFound
	}
	if p.Status == PregnancyActive {
		for _, x := range m.pregnancies {
			if x.PatientID == p.PatientID && x.Status == PregnancyActive {
				return ErrActivePregnancy
			}
		}
	}
	now := time.Now().UTC()
	p.ID = uuid.New()
	p.CreatedAt, p.UpdatedAt = now, now
	m.pregnancies[p.ID] = p.clone()
	return nil
}

func (m memPregnancies) GetByID(_ context.Context, id uuid.UUID) (*Pregnancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pregnancies[id]
	if !ok {
		return nil, ErrPregnancyNotFound
	}
	return p.clone(), nil
}

func (m memPregnancies) GetForUpdate(ctx context.Context, id uuid.UUID) (*Pregnancy, error) {
	return m.GetByID(ctx, id)
}

func (m memPregnancies) GetActive(_ context.Context, patientID uuid.UUID) (*Pregnancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.pregnancies {
		if p.PatientID == patientID && p.Status == PregnancyActive {
			return p.clone(), nil
		}
	}
	return nil, ErrPregnancyNotFound
}

func (m memPregnancies) Update(_ context.Context, p *Pregnancy) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.pregnancies[p.ID]; !ok {
		return ErrPregnancyNotFound
	}
	p.UpdatedAt = time.Now().UTC()
	m.pregnancies[p.ID] = p.clone()
	return nil
}

func (m memPregnancies) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Pregnancy, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*Pregnancy
	for _, p := range m.pregnancies {
		if p.PatientID == patientID {
			items = append(items, p.clone())
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].LMP.After(items[j].LMP) })
	return items, nil
}

type memChildren struct{ *MemoryStore }

func (m memChildren) Create(_ context.Context, c *Child) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.patients[c.PatientID]; !ok {
		return ErrPatientNotFound
	}
	c.ID = uuid.New()
	c.CreatedAt = time.Now().UTC()
	cp := *c
	m.children[c.ID] = &cp
	return nil
}

func (m memChildren) GetByID(_ context.Context, id uuid.UUID) (*Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.children[id]
	if !ok {
		return nil, ErrChildNotFound
	}
	cp := *c
	return &cp, nil
}

func (m memChildren) ListByPatient(_ context.Context, patientID uuid.UUID) ([]*Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var items []*Child
	for _, c := range m.children {
		if c.PatientID == patientID {
			cp := *c
			items = append(items, &cp)
		}
	}
	sort.Slice(items, func(i, j int) bool { return items[i].BirthDate.Before(items[j].BirthDate) })
	return items, nil
}
