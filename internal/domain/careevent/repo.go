package careevent

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/carecal/carecal/internal/domain/schedule"
)

type Repository interface {
	CreateBatch(ctx context.Context, events []*Event) error
	GetByID(ctx context.Context, id uuid.UUID) (*Event, error)
	// GetForUpdate reads the event and, inside a transaction, locks it until
	// commit.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Event, error)
	Update(ctx context.Context, e *Event) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ListByPatient filters by kind unless kind is empty.
	ListByPatient(ctx context.Context, patientID uuid.UUID, kind schedule.Kind, limit, offset int) ([]*Event, int, error)
	// ListDue returns Upcoming events of kind due exactly on due.
	ListDue(ctx context.Context, kind schedule.Kind, due time.Time) ([]*Event, error)
	CountInScope(ctx context.Context, kind schedule.Kind, scope Scope) (int, error)
}
