package careevent

import (
	"time"

	"github.com/google/uuid"

	"github.com/carecal/carecal/internal/domain/schedule"
)

// Status is the lifecycle state of a care event.
type Status string

const (
	StatusUpcoming Status = "UPCOMING"
	StatusDone     Status = "DONE"
	StatusMissed   Status = "MISSED"
)

// Event maps to the care_event table: one consultation or vaccination due on
// a calendar date.
type Event struct {
	ID            uuid.UUID     `db:"id" json:"id"`
	Kind          schedule.Kind `db:"kind" json:"kind"`
	SubKind       string        `db:"sub_kind" json:"sub_kind"`
	PatientID     uuid.UUID     `db:"patient_id" json:"patient_id"`
	PregnancyID   *uuid.UUID    `db:"pregnancy_id" json:"pregnancy_id,omitempty"`
	ChildID       *uuid.UUID    `db:"child_id" json:"child_id,omitempty"`
	DueDate       time.Time     `db:"due_date" json:"due_date"`
	CompletedDate *time.Time    `db:"completed_date" json:"completed_date,omitempty"`
	Status        Status        `db:"status" json:"status"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
}

// ReminderDate is the day on which the reminder for the event's current due
// date must be sent.
func (e *Event) ReminderDate() time.Time {
	return schedule.AddDays(e.DueDate, -schedule.LeadDays(e.Kind))
}

// Clone returns a copy that shares no pointers with e.
func (e *Event) Clone() *Event {
	c := *e
	if e.PregnancyID != nil {
		id := *e.PregnancyID
		c.PregnancyID = &id
	}
	if e.ChildID != nil {
		id := *e.ChildID
		c.ChildID = &id
	}
	if e.CompletedDate != nil {
		d := *e.CompletedDate
		c.CompletedDate = &d
	}
	return &c
}

// Scope identifies the owner of a generated schedule: a pregnancy for
// prenatal and postnatal events, a child for vaccinations.
type Scope struct {
	PatientID   uuid.UUID
	PregnancyID *uuid.UUID
	ChildID     *uuid.UUID
}

func (s Scope) matches(e *Event) bool {
	return e.PatientID == s.PatientID && sameID(e.PregnancyID, s.PregnancyID) && sameID(e.ChildID, s.ChildID)
}

func sameID(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// FromMilestones turns generated milestones into Upcoming events for scope.
func FromMilestones(kind schedule.Kind, scope Scope, ms []schedule.Milestone) []*Event {
	out := make([]*Event, 0, len(ms))
	for _, m := range ms {
		out = append(out, &Event{
			Kind:        kind,
			SubKind:     m.SubKind,
			PatientID:   scope.PatientID,
			PregnancyID: scope.PregnancyID,
			ChildID:     scope.ChildID,
			DueDate:     m.DueDate,
			Status:      StatusUpcoming,
		})
	}
	return out
}
