package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

type Repository interface {
	// CreateIfAbsent stores r unless its event already has a reminder of the
	// same kind for the same due date, or still has an open one. It reports
	// whether r was stored. Callers hold the event's row lock.
	CreateIfAbsent(ctx context.Context, r *Reminder) (bool, error)
	// CreateIfNoneOpen stores r unless its event still has an open reminder of
	// the same kind. Earlier reminders for the same due date do not count.
	CreateIfNoneOpen(ctx context.Context, r *Reminder) (bool, error)
	// Create stores a manual reminder.
	Create(ctx context.Context, r *Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	GetForUpdate(ctx context.Context, id uuid.UUID) (*Reminder, error)
	Update(ctx context.Context, r *Reminder) error
	Delete(ctx context.Context, id uuid.UUID) error
	// ResolveStale confirms the event's open reminders that were computed for
	// a due date other than due.
	ResolveStale(ctx context.Context, eventID uuid.UUID, kind Kind, due time.Time) (int, error)
	// ListByPatient filters by status unless status is empty. Newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Reminder, int, error)
	ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*Reminder, error)
	Stats(ctx context.Context, patientID uuid.UUID) (*Stats, error)
}
