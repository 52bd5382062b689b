package careevent

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/clock"
	"github.com/carecal/carecal/internal/platform/db"
)

// Service applies lifecycle transitions to stored events. Every mutation is a
// locked read-modify-write inside one transaction.
type Service struct {
	events    Repository
	tx        db.Transactor
	clock     clock.Clock
	logger    zerolog.Logger
	listeners []RescheduleListener
}

// RescheduleListener is told about an event moved by Reschedule once the move
// is committed.
type RescheduleListener interface {
	EventRescheduled(ctx context.Context, eventID uuid.UUID, now time.Time)
}

func NewService(events Repository, tx db.Transactor, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{events: events, tx: tx, clock: clk, logger: logger}
}

// OnReschedule registers l. It is not safe to call once the service is in use.
func (s *Service) OnReschedule(l RescheduleListener) {
	s.listeners = append(s.listeners, l)
}

// Generate creates the schedule of kind for scope from its anchor date. It
// refuses when the scope already has events of that kind.
func (s *Service) Generate(ctx context.Context, kind schedule.Kind, scope Scope, anchor time.Time) ([]*Event, error) {
	if scope.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	milestones, err := schedule.Generate(kind, anchor)
	if err != nil {
		return nil, err
	}

	var events []*Event
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n, err := s.events.CountInScope(ctx, kind, scope)
		if err != nil {
			return fmt.Errorf("count %s events: %w", kind, err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %d %s events", ErrScheduleExists, n, kind)
		}
		events = FromMilestones(kind, scope, milestones)
		return s.events.CreateBatch(ctx, events)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("kind", string(kind)).
		Str("patient_id", scope.PatientID.String()).
		Int("events", len(events)).
		Msg("schedule generated")
	return events, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Event, error) {
	return s.events.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, kind schedule.Kind, limit, offset int) ([]*Event, int, error) {
	if kind != "" && !kind.Valid() {
		return nil, 0, fmt.Errorf("invalid kind: %s", kind)
	}
	return s.events.ListByPatient(ctx, patientID, kind, limit, offset)
}

// Confirm marks the event done. A nil date means today.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID, on *time.Time) (*Event, error) {
	completed := clock.Today(s.clock)
	if on != nil {
		completed = *on
	}
	return s.mutate(ctx, id, func(e *Event) error { return e.Confirm(completed) })
}

func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID) (*Event, error) {
	today := clock.Today(s.clock)
	return s.mutate(ctx, id, func(e *Event) error { return e.MarkMissed(today) })
}

func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, due time.Time) (*Event, error) {
	e, err := s.mutate(ctx, id, func(e *Event) error {
		e.Reschedule(due)
		return nil
	})
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	for _, l := range s.listeners {
		l.EventRescheduled(ctx, e.ID, now)
	}
	return e, nil
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.events.Delete(ctx, id)
}

func (s *Service) mutate(ctx context.Context, id uuid.UUID, apply func(*Event) error) (*Event, error) {
	var out *Event
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		e, err := s.events.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := apply(e); err != nil {
			return err
		}
		if err := s.events.Update(ctx, e); err != nil {
			return fmt.Errorf("update care event: %w", err)
		}
		out = e
		return nil
	})
	return out, err
}
