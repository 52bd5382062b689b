package registry

import (
	"context"

	"github.com/google/uuid"
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
}

type PregnancyRepository interface {
	// Create fails with ErrActivePregnancy when p is active and the patient
	// already has an active pregnancy.
	Create(ctx context.Context, p *Pregnancy) error
	GetByID(ctx context.Context, id uuid.UUID) (*Pregnancy, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Pregnancy, error)
	// GetActive returns ErrPregnancyNotFound when the patient has none.
	GetActive(ctx context.Context, patientID uuid.UUID) (*Pregnancy, error)
	Update(ctx context.Context, p *Pregnancy) error
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Pregnancy, error)
}

type ChildRepository interface {
	Create(ctx context.Context, c *Child) error
	GetByID(ctx context.Context, id uuid.UUID) (*Child, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID) ([]*Child, error)
}
