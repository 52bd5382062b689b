package careevent

import (
	"errors"
	"testing"
	"time"

	"github.com/carecal/carecal/internal/domain/schedule"
)

func upcoming() *Event {
	return &Event{Kind: schedule.KindPrenatal, SubKind: "CPN1", DueDate: schedule.Date(2025, 3, 26), Status: StatusUpcoming}
}

func TestConfirm_FromUpcoming(t *testing.T) {
	e := upcoming()
	on := schedule.Date(2025, 3, 27)
	if err := e.Confirm(on); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Status != StatusDone {
		t.Errorf("expected DONE, got %s", e.Status)
	}
	if e.CompletedDate == nil || !e.CompletedDate.Equal(on) {
		t.Errorf("expected completed date %v, got %v", on, e.CompletedDate)
	}
}

func TestConfirm_Twice(t *testing.T) {
	e := upcoming()
	first := schedule.Date(2025, 3, 26)
	if err := e.Confirm(first); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	err := e.Confirm(schedule.Date(2025, 4, 1))
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
	if !e.CompletedDate.Equal(first) {
		t.Errorf("completed date changed to %v", e.CompletedDate)
	}
}

func TestConfirm_FromMissed(t *testing.T) {
	e := upcoming()
	e.Status = StatusMissed
	if err := e.Confirm(schedule.Date(2025, 4, 1)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
	if e.CompletedDate != nil {
		t.Error("completed date must stay empty")
	}
}

func TestMarkMissed(t *testing.T) {
	tests := []struct {
		name  string
		today time.Time
		want  error
	}{
		{"before due", schedule.Date(2025, 3, 25), ErrNotOverdue},
		{"on due date", schedule.Date(2025, 3, 26), ErrNotOverdue},
		{"after due", schedule.Date(2025, 3, 27), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := upcoming()
			err := e.MarkMissed(tt.today)
			if !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			if tt.want == nil && e.Status != StatusMissed {
				t.Errorf("expected MISSED, got %s", e.Status)
			}
			if tt.want != nil && e.Status != StatusUpcoming {
				t.Errorf("status changed to %s", e.Status)
			}
		})
	}
}

func TestMarkMissed_Done(t *testing.T) {
	e := upcoming()
	_ = e.Confirm(schedule.Date(2025, 3, 26))
	if err := e.MarkMissed(schedule.Date(2025, 5, 1)); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestReschedule_FromAnyState(t *testing.T) {
	for _, st := range []Status{StatusUpcoming, StatusDone, StatusMissed} {
		e := upcoming()
		e.Status = st
		if st == StatusDone {
			d := schedule.Date(2025, 3, 26)
			e.CompletedDate = &d
		}
		due := schedule.Date(2025, 4, 15)
		e.Reschedule(due)
		if e.Status != StatusUpcoming || e.CompletedDate != nil || !e.DueDate.Equal(due) {
			t.Errorf("from %s: got status=%s completed=%v due=%v", st, e.Status, e.CompletedDate, e.DueDate)
		}
	}
}

func TestReminderDate(t *testing.T) {
	e := upcoming()
	if got := e.ReminderDate(); !got.Equal(schedule.Date(2025, 3, 25)) {
		t.Errorf("prenatal reminder date: got %v", got)
	}
	e.Kind = schedule.KindVaccination
	if got := e.ReminderDate(); !got.Equal(schedule.Date(2025, 3, 24)) {
		t.Errorf("vaccination reminder date: got %v", got)
	}
}
