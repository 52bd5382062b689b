package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/reminder"
	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/clock"
	"github.com/carecal/carecal/internal/platform/db"
)

// Service records the anchor dates of care (pregnancies, deliveries, births)
// and generates the matching schedules in the same transaction.
type Service struct {
	patients    PatientRepository
	pregnancies PregnancyRepository
	children    ChildRepository
	events      *careevent.Service
	tx          db.Transactor
	clock       clock.Clock
	logger      zerolog.Logger
}

func NewService(
	patients PatientRepository,
	pregnancies PregnancyRepository,
	children ChildRepository,
	events *careevent.Service,
	tx db.Transactor,
	clk clock.Clock,
	logger zerolog.Logger,
) *Service {
	return &Service{
		patients:    patients,
		pregnancies: pregnancies,
		children:    children,
		events:      events,
		tx:          tx,
		clock:       clk,
		logger:      logger,
	}
}

// -- Patient --

func (s *Service) RegisterPatient(ctx context.Context, p *Patient) error {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.LastName = strings.TrimSpace(p.LastName)
	if p.FirstName == "" || p.LastName == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	p.Phone = strings.TrimSpace(p.Phone)
	return s.patients.Create(ctx, p)
}

func (s *Service) GetPatient(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) ListPatients(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

// -- Pregnancy --

// RegisterPregnancy opens a pregnancy from its LMP and generates the prenatal
// consultations.
func (s *Service) RegisterPregnancy(ctx context.Context, patientID uuid.UUID, lmp time.Time) (*Pregnancy, []*careevent.Event, error) {
	if lmp.After(clock.Today(s.clock)) {
		return nil, nil, fmt.Errorf("lmp cannot be in the future")
	}

	var (
		preg   *Pregnancy
		events []*careevent.Event
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, patientID); err != nil {
			return err
		}
		preg = &Pregnancy{
			PatientID:        patientID,
			LMP:              lmp,
			ExpectedDelivery: schedule.ExpectedDelivery(lmp),
			Status:           PregnancyActive,
		}
		if err := s.pregnancies.Create(ctx, preg); err != nil {
			return err
		}
		var err error
		events, err = s.events.Generate(ctx, schedule.KindPrenatal, pregnancyScope(preg), lmp)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return preg, events, nil
}

// ClosePregnancy records the delivery of a pregnancy and generates the
// postnatal consultations.
func (s *Service) ClosePregnancy(ctx context.Context, pregnancyID uuid.UUID, delivery time.Time) (*Pregnancy, []*careevent.Event, error) {
	if delivery.After(clock.Today(s.clock)) {
		return nil, nil, fmt.Errorf("delivery_date cannot be in the future")
	}

	var (
		preg   *Pregnancy
		events []*careevent.Event
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		preg, err = s.pregnancies.GetForUpdate(ctx, pregnancyID)
		if err != nil {
			return err
		}
		events, err = s.close(ctx, preg, delivery)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return preg, events, nil
}

// DeclareDelivery closes the patient's active pregnancy. A delivery without a
// registered pregnancy gets a closed pregnancy record dated back from the
// delivery, so every postnatal schedule belongs to a pregnancy.
func (s *Service) DeclareDelivery(ctx context.Context, patientID uuid.UUID, delivery time.Time) (*Pregnancy, []*careevent.Event, error) {
	if delivery.After(clock.Today(s.clock)) {
		return nil, nil, fmt.Errorf("delivery_date cannot be in the future")
	}

	var (
		preg   *Pregnancy
		events []*careevent.Event
	)
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := s.patients.GetByID(ctx, patientID); err != nil {
			return err
		}
		active, err := s.pregnancies.GetActive(ctx, patientID)
		switch {
		case err == nil:
			preg = active
			events, err = s.close(ctx, preg, delivery)
			return err
		case !errors.Is(err, ErrPregnancyNotFound):
			return err
		}

		d := delivery
		preg = &Pregnancy{
			PatientID:        patientID,
			LMP:              schedule.AddDays(delivery, -schedule.GestationDays),
			ExpectedDelivery: delivery,
			DeliveryDate:     &d,
			Status:           PregnancyClosed,
		}
		if err := s.pregnancies.Create(ctx, preg); err != nil {
			return err
		}
		events, err = s.events.Generate(ctx, schedule.KindPostnatal, pregnancyScope(preg), delivery)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return preg, events, nil
}

func (s *Service) close(ctx context.Context, preg *Pregnancy, delivery time.Time) ([]*careevent.Event, error) {
	if delivery.Before(preg.LMP) {
		return nil, fmt.Errorf("delivery_date is before the pregnancy's lmp")
	}
	if err := preg.Close(delivery); err != nil {
		return nil, err
	}
	if err := s.pregnancies.Update(ctx, preg); err != nil {
		return nil, fmt.Errorf("update pregnancy: %w", err)
	}
	s.logger.Info().
		Str("pregnancy_id", preg.ID.String()).
		Str("delivery_date", delivery.Format(schedule.DateLayout)).
		Msg("pregnancy closed")
	return s.events.Generate(ctx, schedule.KindPostnatal, pregnancyScope(preg), delivery)
}

func (s *Service) GetPregnancy(ctx context.Context, id uuid.UUID) (*Pregnancy, error) {
	return s.pregnancies.GetByID(ctx, id)
}

func (s *Service) ListPregnancies(ctx context.Context, patientID uuid.UUID) ([]*Pregnancy, error) {
	return s.pregnancies.ListByPatient(ctx, patientID)
}

func pregnancyScope(p *Pregnancy) careevent.Scope {
	id := p.ID
	return careevent.Scope{PatientID: p.PatientID, PregnancyID: &id}
}

// -- Child --

// RegisterChild records a child and generates its vaccination calendar.
func (s *Service) RegisterChild(ctx context.Context, c *Child) ([]*careevent.Event, error) {
	c.FirstName = strings.TrimSpace(c.FirstName)
	if c.FirstName == "" {
		return nil, fmt.Errorf("first_name is required")
	}
	if c.BirthDate.IsZero() {
		return nil, fmt.Errorf("birth_date is required")
	}
	if c.BirthDate.After(clock.Today(s.clock)) {
		return nil, fmt.Errorf("birth_date cannot be in the future")
	}

	var events []*careevent.Event
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.children.Create(ctx, c); err != nil {
			return err
		}
		id := c.ID
		var err error
		events, err = s.events.Generate(ctx, schedule.KindVaccination,
			careevent.Scope{PatientID: c.PatientID, ChildID: &id}, c.BirthDate)
		return err
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (s *Service) GetChild(ctx context.Context, id uuid.UUID) (*Child, error) {
	return s.children.GetByID(ctx, id)
}

func (s *Service) ListChildren(ctx context.Context, patientID uuid.UUID) ([]*Child, error) {
	return s.children.ListByPatient(ctx, patientID)
}

// Owner resolves who a reminder is addressed to.
func (s *Service) Owner(ctx context.Context, patientID uuid.UUID, childID *uuid.UUID) (*reminder.Owner, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return nil, err
	}
	o := &reminder.Owner{PatientID: p.ID, PatientName: p.FullName(), Phone: p.Phone}
	if childID != nil {
		c, err := s.children.GetByID(ctx, *childID)
		if err != nil {
			return nil, err
		}
		o.ChildName = c.FirstName
	}
	return o, nil
}
