package registry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/clock"
	"github.com/carecal/carecal/internal/platform/db"
)

func newTestService(today time.Time) (*Service, *careevent.MemoryRepo) {
	store := NewMemoryStore()
	events := careevent.NewMemoryRepo()
	tx := db.NewLocalTransactor()
	clk := clock.NewFixed(today.Add(10 * time.Hour))
	careSvc := careevent.NewService(events, tx, clk, zerolog.Nop())
	return NewService(store.Patients(), store.Pregnancies(), store.Children(), careSvc, tx, clk, zerolog.Nop()), events
}

func registerPatient(t *testing.T, svc *Service) *Patient {
	t.Helper()
	p := &Patient{FirstName: "Awa", LastName: "Traoré", Phone: "+22370000001"}
	if err := svc.RegisterPatient(context.Background(), p); err != nil {
		t.Fatalf("RegisterPatient: %v", err)
	}
	return p
}

func TestRegisterPatient_Validation(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 6, 1))
	if err := svc.RegisterPatient(context.Background(), &Patient{FirstName: "  "}); err == nil {
		t.Error("expected error for missing names")
	}
}

func TestRegisterPregnancy(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 2, 1))
	p := registerPatient(t, svc)

	preg, events, err := svc.RegisterPregnancy(context.Background(), p.ID, schedule.Date(2025, 1, 1))
	if err != nil {
		t.Fatalf("RegisterPregnancy: %v", err)
	}
	if preg.Status != PregnancyActive || !preg.ExpectedDelivery.Equal(schedule.Date(2025, 10, 8)) {
		t.Errorf("unexpected pregnancy: %s DPA %v", preg.Status, preg.ExpectedDelivery)
	}
	if len(events) != 4 {
		t.Fatalf("expected 4 prenatal events, got %d", len(events))
	}
	if !events[0].DueDate.Equal(schedule.Date(2025, 3, 26)) {
		t.Errorf("CPN1 due %v", events[0].DueDate)
	}
	for _, e := range events {
		if e.PregnancyID == nil || *e.PregnancyID != preg.ID {
			t.Errorf("%s not scoped to the pregnancy", e.SubKind)
		}
	}
}

func TestRegisterPregnancy_RejectsSecondActive(t *testing.T) {
	svc, events := newTestService(schedule.Date(2025, 2, 1))
	p := registerPatient(t, svc)
	ctx := context.Background()

	if _, _, err := svc.RegisterPregnancy(ctx, p.ID, schedule.Date(2025, 1, 1)); err != nil {
		t.Fatalf("first RegisterPregnancy: %v", err)
	}
	if _, _, err := svc.RegisterPregnancy(ctx, p.ID, schedule.Date(2025, 1, 15)); !errors.Is(err, ErrActivePregnancy) {
		t.Fatalf("expected ErrActivePregnancy, got %v", err)
	}
	_, total, _ := events.ListByPatient(ctx, p.ID, "", 100, 0)
	if total != 4 {
		t.Errorf("expected one prenatal schedule, got %d events", total)
	}
}

func TestRegisterPregnancy_Errors(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 2, 1))
	p := registerPatient(t, svc)
	if _, _, err := svc.RegisterPregnancy(context.Background(), uuid.New(), schedule.Date(2025, 1, 1)); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
	if _, _, err := svc.RegisterPregnancy(context.Background(), p.ID, schedule.Date(2025, 3, 1)); err == nil {
		t.Error("expected error for future lmp")
	}
}

func TestClosePregnancy(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 10, 10))
	p := registerPatient(t, svc)
	ctx := context.Background()
	preg, _, _ := svc.RegisterPregnancy(ctx, p.ID, schedule.Date(2025, 1, 1))

	closed, events, err := svc.ClosePregnancy(ctx, preg.ID, schedule.Date(2025, 10, 5))
	if err != nil {
		t.Fatalf("ClosePregnancy: %v", err)
	}
	if closed.Status != PregnancyClosed || closed.DeliveryDate == nil {
		t.Errorf("expected closed pregnancy with delivery date, got %+v", closed)
	}
	want := []time.Time{schedule.Date(2025, 10, 8), schedule.Date(2025, 10, 12), schedule.Date(2025, 11, 16)}
	if len(events) != len(want) {
		t.Fatalf("expected %d postnatal events, got %d", len(want), len(events))
	}
	for i, e := range events {
		if e.Kind != schedule.KindPostnatal || !e.DueDate.Equal(want[i]) {
			t.Errorf("event %d: %s due %v", i, e.Kind, e.DueDate)
		}
	}

	if _, _, err := svc.ClosePregnancy(ctx, preg.ID, schedule.Date(2025, 10, 5)); !errors.Is(err, ErrPregnancyClosed) {
		t.Errorf("expected ErrPregnancyClosed, got %v", err)
	}

	// Closing frees the patient for a new pregnancy.
	if _, _, err := svc.RegisterPregnancy(ctx, p.ID, schedule.Date(2025, 10, 9)); err != nil {
		t.Errorf("RegisterPregnancy after close: %v", err)
	}
}

func TestDeclareDelivery_ClosesActive(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 10, 10))
	p := registerPatient(t, svc)
	ctx := context.Background()
	preg, _, _ := svc.RegisterPregnancy(ctx, p.ID, schedule.Date(2025, 1, 1))

	got, events, err := svc.DeclareDelivery(ctx, p.ID, schedule.Date(2025, 10, 1))
	if err != nil {
		t.Fatalf("DeclareDelivery: %v", err)
	}
	if got.ID != preg.ID || got.Status != PregnancyClosed {
		t.Errorf("expected the active pregnancy to be closed, got %+v", got)
	}
	if len(events) != 3 {
		t.Errorf("expected 3 postnatal events, got %d", len(events))
	}
}

func TestDeclareDelivery_WithoutPregnancy(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 10, 10))
	p := registerPatient(t, svc)
	ctx := context.Background()

	preg, events, err := svc.DeclareDelivery(ctx, p.ID, schedule.Date(2025, 10, 8))
	if err != nil {
		t.Fatalf("DeclareDelivery: %v", err)
	}
	if preg.Status != PregnancyClosed || !preg.LMP.Equal(schedule.Date(2025, 1, 1)) {
		t.Errorf("expected closed pregnancy dated back to 2025-01-01, got %s %v", preg.Status, preg.LMP)
	}
	if len(events) != 3 || *events[0].PregnancyID != preg.ID {
		t.Errorf("expected postnatal schedule on the new pregnancy, got %d events", len(events))
	}

	// A closed record does not block a later pregnancy.
	if _, _, err := svc.RegisterPregnancy(ctx, p.ID, schedule.Date(2025, 10, 9)); err != nil {
		t.Errorf("RegisterPregnancy: %v", err)
	}
}

func TestRegisterChild(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 1, 5))
	p := registerPatient(t, svc)
	ctx := context.Background()

	child := &Child{PatientID: p.ID, FirstName: "Moussa", BirthDate: schedule.Date(2025, 1, 1)}
	events, err := svc.RegisterChild(ctx, child)
	if err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}
	if len(events) != 17 {
		t.Fatalf("expected 17 vaccination events, got %d", len(events))
	}
	if events[0].SubKind != "BCG" || !events[0].DueDate.Equal(schedule.Date(2025, 1, 1)) {
		t.Errorf("expected BCG at birth, got %s %v", events[0].SubKind, events[0].DueDate)
	}
	for _, e := range events {
		if e.ChildID == nil || *e.ChildID != child.ID || e.Status != careevent.StatusUpcoming {
			t.Errorf("%s: not an Upcoming event of the child", e.SubKind)
		}
	}

	if _, err := svc.RegisterChild(ctx, &Child{PatientID: uuid.New(), FirstName: "X", BirthDate: schedule.Date(2025, 1, 1)}); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
	if _, err := svc.RegisterChild(ctx, &Child{PatientID: p.ID, FirstName: "Y", BirthDate: schedule.Date(2025, 2, 1)}); err == nil {
		t.Error("expected error for future birth date")
	}
}

func TestOwner(t *testing.T) {
	svc, _ := newTestService(schedule.Date(2025, 1, 5))
	p := registerPatient(t, svc)
	ctx := context.Background()
	child := &Child{PatientID: p.ID, FirstName: "Moussa", BirthDate: schedule.Date(2025, 1, 1)}
	if _, err := svc.RegisterChild(ctx, child); err != nil {
		t.Fatalf("RegisterChild: %v", err)
	}

	o, err := svc.Owner(ctx, p.ID, &child.ID)
	if err != nil {
		t.Fatalf("Owner: %v", err)
	}
	if o.PatientName != "Awa Traoré" || o.Phone != "+22370000001" || o.ChildName != "Moussa" {
		t.Errorf("unexpected owner %+v", o)
	}

	if _, err := svc.Owner(ctx, uuid.New(), nil); !errors.Is(err, ErrPatientNotFound) {
		t.Errorf("expected ErrPatientNotFound, got %v", err)
	}
}
