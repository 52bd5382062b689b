package reminder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/platform/clock"
	"github.com/carecal/carecal/internal/platform/db"
)

// Service implements the reminder lifecycle and its effects on the target
// care event.
type Service struct {
	reminders Repository
	events    careevent.Repository
	engine    *Engine
	tx        db.Transactor
	clock     clock.Clock
	logger    zerolog.Logger
}

func NewService(reminders Repository, events careevent.Repository, engine *Engine, tx db.Transactor, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		reminders: reminders,
		events:    events,
		engine:    engine,
		tx:        tx,
		clock:     clk,
		logger:    logger,
	}
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return s.reminders.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, status Status, limit, offset int) ([]*Reminder, int, error) {
	if status != "" && !status.Valid() {
		return nil, 0, fmt.Errorf("invalid status: %s", status)
	}
	return s.reminders.ListByPatient(ctx, patientID, status, limit, offset)
}

func (s *Service) Stats(ctx context.Context, patientID uuid.UUID) (*Stats, error) {
	return s.reminders.Stats(ctx, patientID)
}

// MarkRead is idempotent: Read and Confirmed reminders are returned unchanged.
func (s *Service) MarkRead(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	var out *Reminder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.reminders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.MarkRead(s.clock.Now().UTC()) {
			if err := s.reminders.Update(ctx, r); err != nil {
				return fmt.Errorf("update reminder: %w", err)
			}
		}
		out = r
		return nil
	})
	return out, err
}

// Confirm resolves the reminder and marks its care event done today.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	now := s.clock.Now()
	today := clock.DateOf(now)

	var out *Reminder
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.reminders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Resolve(now.UTC()); err != nil {
			return err
		}
		if r.TargetEventID != nil {
			ev, err := s.events.GetForUpdate(ctx, *r.TargetEventID)
			if err != nil {
				return fmt.Errorf("target care event: %w", err)
			}
			if err := ev.Confirm(today); err != nil {
				return err
			}
			if err := s.events.Update(ctx, ev); err != nil {
				return fmt.Errorf("update care event: %w", err)
			}
		}
		if err := s.reminders.Update(ctx, r); err != nil {
			return fmt.Errorf("update reminder: %w", err)
		}
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("reminder_id", id.String()).Msg("reminder confirmed")
	return out, nil
}

// Reschedule resolves the reminder and moves its care event to due. When due
// is after today a new reminder for the new date is issued at once. It
// returns the resolved reminder and the new one, if any.
//
// The new reminder is rendered before anything is written, so a patient that
// cannot be contacted leaves both the event and the reminder as they were.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, due time.Time) (*Reminder, *Reminder, error) {
	now := s.clock.Now()
	today := clock.DateOf(now)

	var (
		resolved, fresh *Reminder
		owner           *Owner
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		r, err := s.reminders.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.TargetEventID == nil {
			return ErrNoTarget
		}
		if err := r.Resolve(now.UTC()); err != nil {
			return err
		}

		ev, err := s.events.GetForUpdate(ctx, *r.TargetEventID)
		if err != nil {
			return fmt.Errorf("target care event: %w", err)
		}
		ev.Reschedule(due)

		var d *draft
		if due.After(today) {
			if d, err = s.engine.prepare(ctx, ev); err != nil {
				return err
			}
		}

		if err := s.events.Update(ctx, ev); err != nil {
			return fmt.Errorf("update care event: %w", err)
		}
		if err := s.reminders.Update(ctx, r); err != nil {
			return fmt.Errorf("update reminder: %w", err)
		}
		resolved = r

		if d == nil {
			return nil
		}
		// Only an open reminder blocks this one: moving the event back to a
		// date it already had is a new appointment.
		fresh, err = s.engine.store(ctx, ev, d, now, s.reminders.CreateIfNoneOpen)
		owner = d.owner
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	if fresh != nil {
		s.engine.dispatch(ctx, fresh, owner)
	}
	return resolved, fresh, nil
}

// Delete removes the reminder only; its care event is untouched.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.reminders.Delete(ctx, id)
}

// ManualInput describes a reminder written by a user.
type ManualInput struct {
	PatientID uuid.UUID
	Title     string
	Message   string
	SendAt    time.Time
}

// CreateManual stores a user-authored reminder with no care event.
func (s *Service) CreateManual(ctx context.Context, in ManualInput) (*Reminder, error) {
	if in.PatientID == uuid.Nil {
		return nil, fmt.Errorf("patient_id is required")
	}
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("title is required")
	}
	if in.SendAt.IsZero() {
		in.SendAt = s.clock.Now()
	}
	r := &Reminder{
		PatientID: in.PatientID,
		Kind:      KindManual,
		SendAt:    in.SendAt,
		Status:    StatusSent,
		Title:     in.Title,
		Message:   in.Message,
		Priority:  PriorityFor(KindManual),
	}
	if err := s.reminders.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	return r, nil
}
