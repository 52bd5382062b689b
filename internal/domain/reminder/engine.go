package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/clock"
	"github.com/carecal/carecal/internal/platform/db"
	"github.com/carecal/carecal/internal/platform/notification"
)

// Owner is what a reminder needs to know about the patient (and child) a care
// event belongs to.
type Owner struct {
	PatientID   uuid.UUID
	PatientName string
	Phone       string
	ChildName   string
}

// Directory resolves the owner of a care event.
type Directory interface {
	Owner(ctx context.Context, patientID uuid.UUID, childID *uuid.UUID) (*Owner, error)
}

// Outcome of processing one care event.
type Outcome int

const (
	Skipped Outcome = iota
	Created
)

// MessageDateLayout is the date format used in reminder texts.
const MessageDateLayout = "02/01/2006"

type EngineConfig struct {
	// Location is the zone reminders are sent in.
	Location *time.Location
	// SendHour is the local hour at which a reminder is sent on its send day.
	SendHour int
}

// Engine decides whether a care event needs its reminder. The sweep creates
// at most one per (event, kind, due date); a reschedule may issue another for
// a date whose earlier reminder is already resolved.
type Engine struct {
	events     careevent.Repository
	reminders  Repository
	tx         db.Transactor
	directory  Directory
	templates  *notification.TemplateEngine
	dispatcher notification.Dispatcher
	cfg        EngineConfig
	logger     zerolog.Logger
}

func NewEngine(
	events careevent.Repository,
	reminders Repository,
	tx db.Transactor,
	directory Directory,
	templates *notification.TemplateEngine,
	dispatcher notification.Dispatcher,
	cfg EngineConfig,
	logger zerolog.Logger,
) *Engine {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	return &Engine{
		events:     events,
		reminders:  reminders,
		tx:         tx,
		directory:  directory,
		templates:  templates,
		dispatcher: dispatcher,
		cfg:        cfg,
		logger:     logger,
	}
}

// Process fires the reminder of ev if today is its send day. Skips are not
// errors; an error means the event could not be processed.
func (e *Engine) Process(ctx context.Context, ev *careevent.Event, today time.Time) (Outcome, error) {
	if !ev.ReminderDate().Equal(today) || ev.Status != careevent.StatusUpcoming {
		return Skipped, nil
	}

	var (
		created *Reminder
		owner   *Owner
	)
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		cur, err := e.events.GetForUpdate(ctx, ev.ID)
		if err != nil {
			return fmt.Errorf("lock care event: %w", err)
		}
		// The event may have moved since it was listed.
		if cur.Status != careevent.StatusUpcoming || !cur.ReminderDate().Equal(today) {
			return nil
		}
		created, owner, err = e.issue(ctx, cur, e.sendAt(today), e.reminders.CreateIfAbsent)
		return err
	})
	if err != nil {
		return Skipped, err
	}
	if created == nil {
		return Skipped, nil
	}
	e.dispatch(ctx, created, owner)
	return Created, nil
}

// createFunc stores r if its duplicate guard allows it.
type createFunc func(ctx context.Context, r *Reminder) (bool, error)

// draft is a rendered reminder for an event, not yet stored.
type draft struct {
	kind  Kind
	owner *Owner
	title string
	body  string
}

// prepare resolves the owner of ev and renders its message. It writes nothing.
func (e *Engine) prepare(ctx context.Context, ev *careevent.Event) (*draft, error) {
	kind := KindFor(ev.Kind)
	if kind == "" {
		return nil, fmt.Errorf("no reminder kind for %q", ev.Kind)
	}
	owner, err := e.directory.Owner(ctx, ev.PatientID, ev.ChildID)
	if err != nil {
		return nil, fmt.Errorf("resolve owner of %s: %w", ev.ID, err)
	}
	title, body, err := e.render(ev, owner)
	if err != nil {
		return nil, err
	}
	return &draft{kind: kind, owner: owner, title: title, body: body}, nil
}

// store resolves reminders left on an earlier due date of ev and creates the
// drafted one through create. It returns nil when the guard refuses it.
func (e *Engine) store(ctx context.Context, ev *careevent.Event, d *draft, sendAt time.Time, create createFunc) (*Reminder, error) {
	if _, err := e.reminders.ResolveStale(ctx, ev.ID, d.kind, ev.DueDate); err != nil {
		return nil, fmt.Errorf("resolve stale reminders: %w", err)
	}

	eventID, due := ev.ID, ev.DueDate
	r := &Reminder{
		PatientID:     ev.PatientID,
		TargetEventID: &eventID,
		Kind:          d.kind,
		TargetDueDate: &due,
		SendAt:        sendAt,
		Status:        StatusSent,
		Title:         d.title,
		Message:       d.body,
		Priority:      PriorityFor(d.kind),
	}
	ok, err := create(ctx, r)
	if err != nil {
		return nil, fmt.Errorf("create reminder: %w", err)
	}
	if !ok {
		return nil, nil
	}
	return r, nil
}

// issue prepares and stores the reminder of ev. It must run inside a
// transaction holding ev's row lock.
func (e *Engine) issue(ctx context.Context, ev *careevent.Event, sendAt time.Time, create createFunc) (*Reminder, *Owner, error) {
	d, err := e.prepare(ctx, ev)
	if err != nil {
		return nil, nil, err
	}
	r, err := e.store(ctx, ev, d, sendAt, create)
	if err != nil || r == nil {
		return nil, nil, err
	}
	return r, d.owner, nil
}

// EventRescheduled issues a reminder at once for an event moved to a future
// date, unless one is already open. Failures are logged; the sweep still
// reaches the event on its new send day.
func (e *Engine) EventRescheduled(ctx context.Context, eventID uuid.UUID, now time.Time) {
	today := clock.DateOf(now.In(e.cfg.Location))
	var (
		created *Reminder
		owner   *Owner
	)
	err := e.tx.WithinTx(ctx, func(ctx context.Context) error {
		ev, err := e.events.GetForUpdate(ctx, eventID)
		if err != nil {
			return fmt.Errorf("lock care event: %w", err)
		}
		if ev.Status != careevent.StatusUpcoming || !ev.DueDate.After(today) {
			return nil
		}
		created, owner, err = e.issue(ctx, ev, now, e.reminders.CreateIfNoneOpen)
		return err
	})
	if err != nil {
		e.logger.Error().Err(err).Str("event_id", eventID.String()).Msg("issue reminder for rescheduled event")
		return
	}
	if created != nil {
		e.dispatch(ctx, created, owner)
	}
}

func (e *Engine) render(ev *careevent.Event, owner *Owner) (title, body string, err error) {
	data := map[string]string{"date": ev.DueDate.Format(MessageDateLayout)}
	var tmpl string
	switch ev.Kind {
	case schedule.KindPrenatal:
		tmpl = notification.TemplatePrenatal
	case schedule.KindPostnatal:
		tmpl = notification.TemplatePostnatal
		data["label"] = schedule.PostnatalLabel(ev.SubKind)
	case schedule.KindVaccination:
		tmpl = notification.TemplateVaccination
		data["vaccine"] = schedule.VaccineName(ev.SubKind)
		data["child"] = owner.ChildName
		if owner.ChildName == "" {
			data["child"] = "votre enfant"
		}
	default:
		return "", "", fmt.Errorf("no template for %q", ev.Kind)
	}
	return e.templates.Render(tmpl, data)
}

// sendAt is the configured send hour on day, in the configured zone.
func (e *Engine) sendAt(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), e.cfg.SendHour, 0, 0, 0, e.cfg.Location)
}

// dispatch hands a committed reminder to the outbound channel. Failures are
// logged and never retried.
func (e *Engine) dispatch(ctx context.Context, r *Reminder, owner *Owner) {
	msg := notification.Message{
		PatientID: r.PatientID,
		Title:     r.Title,
		Body:      r.Message,
		Kind:      string(r.Kind),
		Priority:  string(r.Priority),
	}
	if owner != nil {
		msg.Recipient = owner.Phone
	}
	if err := e.dispatcher.Dispatch(ctx, msg); err != nil {
		e.logger.Warn().Err(err).
			Str("reminder_id", r.ID.String()).
			Str("patient_id", r.PatientID.String()).
			Msg("reminder dispatch failed")
	}
}

// PriorityFor returns the priority of a reminder kind.
func PriorityFor(k Kind) Priority {
	switch k {
	case KindPrenatal, KindPostnatal:
		return PriorityHigh
	case KindVaccination:
		return PriorityNormal
	}
	return PriorityLow
}
