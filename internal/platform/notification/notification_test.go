package notification

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	twilioApi "github.com/twilio/twilio-go/rest/api/v2010"
)

func TestTemplateEngine_BuiltIns(t *testing.T) {
	e := NewTemplateEngine()
	tests := []struct {
		id      string
		data    map[string]string
		subject string
		body    string
	}{
		{
			TemplatePrenatal,
			map[string]string{"date": "26/03/2025"},
			"Rappel Consultation Prénatale",
			"Rappel : Vous avez une consultation prénatale prévue demain, le 26/03/2025. N'oubliez pas votre carnet de suivi.",
		},
		{
			TemplatePostnatal,
			map[string]string{"date": "04/01/2025", "label": "J+3"},
			"Rappel Consultation Postnatale",
			"Rappel : Consultation postnatale J+3 prévue demain, le 04/01/2025. Prenez soin de vous et de votre bébé.",
		},
		{
			TemplateVaccination,
			map[string]string{"date": "01/01/2025", "child": "Moussa", "vaccine": "BCG"},
			"Rappel Vaccination",
			"Rappel : Vaccination de Moussa (BCG) prévue le 01/01/2025. Pensez à apporter le carnet de santé de votre enfant.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			subject, body, err := e.Render(tt.id, tt.data)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if subject != tt.subject {
				t.Errorf("subject: got %q, want %q", subject, tt.subject)
			}
			if body != tt.body {
				t.Errorf("body: got %q, want %q", body, tt.body)
			}
		})
	}
}

func TestTemplateEngine_Unknown(t *testing.T) {
	if _, _, err := NewTemplateEngine().Render("nope", nil); err == nil {
		t.Error("expected error for unknown template")
	}
}

func TestTemplateEngine_MissingKeyLeftAsIs(t *testing.T) {
	_, body, err := NewTemplateEngine().Render(TemplatePostnatal, map[string]string{"date": "04/01/2025"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if !strings.Contains(body, "{{label}}") {
		t.Errorf("expected placeholder to remain, got %q", body)
	}
}

func TestTemplateEngine_Register(t *testing.T) {
	e := NewTemplateEngine()
	e.RegisterTemplate(Template{ID: "custom", Subject: "Hi {{name}}", Body: "Bonjour {{name}}"})
	subject, body, err := e.Render("custom", map[string]string{"name": "Awa"})
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if subject != "Hi Awa" || body != "Bonjour Awa" {
		t.Errorf("got %q / %q", subject, body)
	}
}

func TestSMSDispatcher(t *testing.T) {
	sender := &MockSMSSender{}
	d := NewSMSDispatcher(sender, zerolog.Nop())

	err := d.Dispatch(context.Background(), Message{PatientID: uuid.New(), Recipient: "+22370000001", Body: "hello"})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	calls := sender.Calls()
	if len(calls) != 1 || calls[0].To != "+22370000001" || calls[0].Body != "hello" {
		t.Errorf("unexpected calls %+v", calls)
	}
}

func TestSMSDispatcher_NoRecipient(t *testing.T) {
	sender := &MockSMSSender{}
	d := NewSMSDispatcher(sender, zerolog.Nop())
	err := d.Dispatch(context.Background(), Message{PatientID: uuid.New(), Body: "hello"})
	if !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("expected ErrNoRecipient, got %v", err)
	}
	if len(sender.Calls()) != 0 {
		t.Error("nothing should be sent without a number")
	}
}

func TestSMSDispatcher_SenderFails(t *testing.T) {
	sender := &MockSMSSender{ShouldFail: true, FailError: "gateway timeout"}
	d := NewSMSDispatcher(sender, zerolog.Nop())
	err := d.Dispatch(context.Background(), Message{Recipient: "+22370000001", Body: "hello"})
	if err == nil || !strings.Contains(err.Error(), "gateway timeout") {
		t.Errorf("expected sender error, got %v", err)
	}
}

func TestLogDispatcher(t *testing.T) {
	var buf strings.Builder
	d := NewLogDispatcher(zerolog.New(&buf))
	if err := d.Dispatch(context.Background(), Message{Kind: "CPN", Title: "Rappel"}); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if !strings.Contains(buf.String(), `"kind":"CPN"`) {
		t.Errorf("expected kind in log line, got %s", buf.String())
	}
}

type fakeMessages struct {
	params *twilioApi.CreateMessageParams
	resp   *twilioApi.ApiV2010Message
	err    error
}

func (f *fakeMessages) CreateMessage(p *twilioApi.CreateMessageParams) (*twilioApi.ApiV2010Message, error) {
	f.params = p
	return f.resp, f.err
}

func TestTwilioSender(t *testing.T) {
	sid := "SM123"
	api := &fakeMessages{resp: &twilioApi.ApiV2010Message{Sid: &sid}}
	s := &TwilioSender{api: api, from: "+15005550006"}

	if err := s.SendSMS(context.Background(), "+22370000001", "Rappel"); err != nil {
		t.Fatalf("SendSMS: %v", err)
	}
	if api.params == nil || *api.params.To != "+22370000001" || *api.params.From != "+15005550006" || *api.params.Body != "Rappel" {
		t.Errorf("unexpected params %+v", api.params)
	}
}

func TestTwilioSender_Errors(t *testing.T) {
	s := &TwilioSender{api: &fakeMessages{err: errors.New("401")}, from: "+1"}
	if err := s.SendSMS(context.Background(), "+2", "x"); err == nil {
		t.Error("expected API error")
	}

	msg := "unreachable"
	s = &TwilioSender{api: &fakeMessages{resp: &twilioApi.ApiV2010Message{ErrorMessage: &msg}}, from: "+1"}
	if err := s.SendSMS(context.Background(), "+2", "x"); err == nil || !strings.Contains(err.Error(), msg) {
		t.Errorf("expected rejection error, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.SendSMS(ctx, "+2", "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewTwilioSender(t *testing.T) {
	s := NewTwilioSender("AC123", "token", "+15005550006")
	if s.api == nil || s.from != "+15005550006" {
		t.Error("sender not initialised")
	}
}
