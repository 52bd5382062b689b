// Package notification renders reminder texts and hands them to an outbound
// channel (SMS through Twilio, or the log in development).
package notification

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// Message is one outbound notification for a patient.
type Message struct {
	PatientID uuid.UUID
	Recipient string
	Title     string
	Body      string
	Kind      string
	Priority  string
}

// Dispatcher delivers a message. Delivery is best effort; callers do not
// retry.
type Dispatcher interface {
	Dispatch(ctx context.Context, m Message) error
}

// SMSSender is the interface for sending SMS messages.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) error
}

var ErrNoRecipient = errors.New("no recipient phone number")

// ---------------------------------------------------------------------------
// Dispatchers
// ---------------------------------------------------------------------------

// SMSDispatcher sends the message body by SMS.
type SMSDispatcher struct {
	sender SMSSender
	logger zerolog.Logger
}

func NewSMSDispatcher(sender SMSSender, logger zerolog.Logger) *SMSDispatcher {
	return &SMSDispatcher{sender: sender, logger: logger}
}

func (d *SMSDispatcher) Dispatch(ctx context.Context, m Message) error {
	if m.Recipient == "" {
		return fmt.Errorf("%w: patient %s", ErrNoRecipient, m.PatientID)
	}
	if err := d.sender.SendSMS(ctx, m.Recipient, m.Body); err != nil {
		return fmt.Errorf("send sms: %w", err)
	}
	d.logger.Info().
		Str("patient_id", m.PatientID.String()).
		Str("kind", m.Kind).
		Msg("reminder sms sent")
	return nil
}

// LogDispatcher writes messages to the log instead of delivering them.
type LogDispatcher struct {
	logger zerolog.Logger
}

func NewLogDispatcher(logger zerolog.Logger) *LogDispatcher {
	return &LogDispatcher{logger: logger}
}

func (d *LogDispatcher) Dispatch(_ context.Context, m Message) error {
	d.logger.Info().
		Str("patient_id", m.PatientID.String()).
		Str("recipient", m.Recipient).
		Str("kind", m.Kind).
		Str("priority", m.Priority).
		Str("title", m.Title).
		Str("body", m.Body).
		Msg("reminder dispatched")
	return nil
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template IDs of the built-in reminder texts.
const (
	TemplatePrenatal    = "reminder-prenatal"
	TemplatePostnatal   = "reminder-postnatal"
	TemplateVaccination = "reminder-vaccination"
)

// Template defines a reusable notification template.
type Template struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// TemplateEngine manages notification templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the reminder templates pre-registered.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	for _, t := range []Template{
		{
			ID:      TemplatePrenatal,
			Subject: "Rappel Consultation Prénatale",
			Body:    "Rappel : Vous avez une consultation prénatale prévue demain, le {{date}}. N'oubliez pas votre carnet de suivi.",
		},
		{
			ID:      TemplatePostnatal,
			Subject: "Rappel Consultation Postnatale",
			Body:    "Rappel : Consultation postnatale {{label}} prévue demain, le {{date}}. Prenez soin de vous et de votre bébé.",
		},
		{
			ID:      TemplateVaccination,
			Subject: "Rappel Vaccination",
			Body:    "Rappel : Vaccination de {{child}} ({{vaccine}}) prévue le {{date}}. Pensez à apporter le carnet de santé de votre enfant.",
		},
	} {
		e.RegisterTemplate(t)
	}
	return e
}

// RegisterTemplate adds or replaces a template in the engine.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Render looks up a template by ID and performs {{key}} replacement using the
// supplied data map. Keys present in the template but absent from data are left
// as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (subject, body string, err error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", "", fmt.Errorf("template %q not found", templateID)
	}

	subject = t.Subject
	body = t.Body
	for k, v := range data {
		placeholder := "{{" + k + "}}"
		subject = strings.ReplaceAll(subject, placeholder, v)
		body = strings.ReplaceAll(body, placeholder, v)
	}
	return subject, body, nil
}

// ---------------------------------------------------------------------------
// Test doubles
// ---------------------------------------------------------------------------

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of recorded SMS calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Recorder is a Dispatcher that keeps every message, for tests.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	Err      error
}

func (r *Recorder) Dispatch(_ context.Context, m Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, m)
	return r.Err
}

// Messages returns a copy of the recorded messages.
func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}
