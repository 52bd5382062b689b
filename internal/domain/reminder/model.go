package reminder

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/schedule"
)

// Kind of reminder. Event reminders mirror the care event kind.
type Kind string

const (
	KindPrenatal    Kind = "CPN"
	KindPostnatal   Kind = "CPON"
	KindVaccination Kind = "VACCINATION"
	KindManual      Kind = "MANUAL"
)

// KindFor maps a care event kind to its reminder kind.
func KindFor(k schedule.Kind) Kind {
	switch k {
	case schedule.KindPrenatal:
		return KindPrenatal
	case schedule.KindPostnatal:
		return KindPostnatal
	case schedule.KindVaccination:
		return KindVaccination
	}
	return ""
}

type Status string

const (
	StatusSent      Status = "SENT"
	StatusRead      Status = "READ"
	StatusConfirmed Status = "CONFIRMED"
)

func (s Status) Valid() bool {
	switch s {
	case StatusSent, StatusRead, StatusConfirmed:
		return true
	}
	return false
}

// Open reports whether the reminder still awaits an answer.
func (s Status) Open() bool {
	return s == StatusSent || s == StatusRead
}

type Priority string

const (
	PriorityHigh   Priority = "ELEVEE"
	PriorityNormal Priority = "NORMALE"
	PriorityLow    Priority = "FAIBLE"
)

var (
	ErrNotFound         = errors.New("reminder not found")
	// ErrAlreadyProcessed also matches careevent.ErrInvalidTransition.
	ErrAlreadyProcessed = fmt.Errorf("%w: reminder already processed", careevent.ErrInvalidTransition)
	ErrNoTarget         = errors.New("reminder has no care event")
)

// Reminder maps to the reminder table. TargetEventID and TargetDueDate are
// both nil for manual reminders.
type Reminder struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	PatientID     uuid.UUID  `db:"patient_id" json:"patient_id"`
	TargetEventID *uuid.UUID `db:"target_event_id" json:"target_event_id,omitempty"`
	Kind          Kind       `db:"kind" json:"kind"`
	TargetDueDate *time.Time `db:"target_due_date" json:"target_due_date,omitempty"`
	SendAt        time.Time  `db:"send_at" json:"send_at"`
	Status        Status     `db:"status" json:"status"`
	Title         string     `db:"title" json:"title"`
	Message       string     `db:"message" json:"message"`
	Priority      Priority   `db:"priority" json:"priority"`
	ReadAt        *time.Time `db:"read_at" json:"read_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// MarkRead moves a Sent reminder to Read. It reports whether anything changed.
func (r *Reminder) MarkRead(now time.Time) bool {
	if r.Status != StatusSent {
		return false
	}
	r.Status = StatusRead
	r.ReadAt = &now
	return true
}

// Resolve closes the reminder.
func (r *Reminder) Resolve(now time.Time) error {
	if r.Status == StatusConfirmed {
		return ErrAlreadyProcessed
	}
	if r.ReadAt == nil {
		r.ReadAt = &now
	}
	r.Status = StatusConfirmed
	return nil
}

func (r *Reminder) Clone() *Reminder {
	c := *r
	if r.TargetEventID != nil {
		id := *r.TargetEventID
		c.TargetEventID = &id
	}
	if r.TargetDueDate != nil {
		d := *r.TargetDueDate
		c.TargetDueDate = &d
	}
	if r.ReadAt != nil {
		t := *r.ReadAt
		c.ReadAt = &t
	}
	return &c
}

// Stats counts a patient's reminders by status.
type Stats struct {
	Total     int `json:"total"`
	Unread    int `json:"unread"`
	Read      int `json:"read"`
	Confirmed int `json:"confirmed"`
}
