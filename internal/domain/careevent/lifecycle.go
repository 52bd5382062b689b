package careevent

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound          = errors.New("care event not found")
	ErrInvalidTransition = errors.New("care event already processed")
	ErrNotOverdue        = errors.New("care event is not past its due date")
	ErrScheduleExists    = errors.New("schedule already generated")
)

// Confirm records the event as done on the given date. Only an Upcoming
// event can be confirmed; anything else is left untouched.
func (e *Event) Confirm(on time.Time) error {
	if e.Status != StatusUpcoming {
		return fmt.Errorf("%w: status is %s", ErrInvalidTransition, e.Status)
	}
	d := on
	e.Status = StatusDone
	e.CompletedDate = &d
	return nil
}

// MarkMissed moves an Upcoming event whose due date has passed to Missed.
func (e *Event) MarkMissed(today time.Time) error {
	if e.Status != StatusUpcoming {
		return fmt.Errorf("%w: status is %s", ErrInvalidTransition, e.Status)
	}
	if !e.DueDate.Before(today) {
		return fmt.Errorf("%w: due %s", ErrNotOverdue, e.DueDate.Format("2006-01-02"))
	}
	e.Status = StatusMissed
	return nil
}

// Reschedule moves the event to a new due date from any state and reopens
// it. Dates in the past are accepted.
func (e *Event) Reschedule(due time.Time) {
	e.DueDate = due
	e.Status = StatusUpcoming
	e.CompletedDate = nil
}
