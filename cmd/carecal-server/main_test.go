package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/config"
	"github.com/carecal/carecal/internal/domain/reminder"
	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/clock"
	"github.com/carecal/carecal/internal/platform/notification"
)

func memoryConfig() *config.Config {
	return &config.Config{
		Env:              "development",
		Store:            config.StoreMemory,
		Timezone:         "Africa/Bamako",
		SweepCron:        "0 8 * * *",
		ReminderSendHour: 9,
		NotifyChannel:    config.NotifyLog,
	}
}

func newTestApp(t *testing.T, now time.Time) (*app, *echo.Echo) {
	t.Helper()
	a, err := newApp(context.Background(), memoryConfig(), clock.NewFixed(now), zerolog.Nop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	return a, a.routes(zerolog.Nop())
}

func do(t *testing.T, e *echo.Echo, method, path, body string, out interface{}) int {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if out != nil && rec.Code < 300 {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func TestHealth(t *testing.T) {
	_, e := newTestApp(t, time.Date(2025, 3, 25, 10, 0, 0, 0, time.UTC))

	var body map[string]interface{}
	if code := do(t, e, http.MethodGet, "/health", "", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if code := do(t, e, http.MethodGet, "/health/db", "", &body); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if body["store"] != config.StoreMemory || body["status"] != "healthy" {
		t.Errorf("unexpected health body %v", body)
	}
}

func TestPregnancyToReminderFlow(t *testing.T) {
	_, e := newTestApp(t, time.Date(2025, 3, 25, 10, 0, 0, 0, time.UTC))

	var patient struct {
		ID string `json:"id"`
	}
	if code := do(t, e, http.MethodPost, "/api/v1/patients", `{"first_name":"Awa","last_name":"Traoré","phone":"+22370000001"}`, &patient); code != http.StatusCreated {
		t.Fatalf("register patient: %d", code)
	}
	if code := do(t, e, http.MethodPost, "/api/v1/patients/"+patient.ID+"/pregnancies", `{"lmp":"2025-01-01"}`, nil); code != http.StatusCreated {
		t.Fatalf("register pregnancy: %d", code)
	}

	// CPN1 falls on 2025-03-26, so its reminder is due today.
	var sum reminder.Summary
	if code := do(t, e, http.MethodPost, "/api/v1/reminders/sweep", "", &sum); code != http.StatusOK {
		t.Fatalf("sweep: %d", code)
	}
	if got := sum.Kinds[schedule.KindPrenatal]; got == nil || got.Created != 1 {
		t.Fatalf("expected one prenatal reminder, got %+v", got)
	}

	// A second sweep on the same day creates nothing.
	if do(t, e, http.MethodPost, "/api/v1/reminders/sweep", "", &sum); sum.Created() != 0 {
		t.Errorf("second sweep created %d reminders", sum.Created())
	}

	var list struct {
		Data  []reminder.Reminder `json:"data"`
		Total int                 `json:"total"`
	}
	if code := do(t, e, http.MethodGet, "/api/v1/patients/"+patient.ID+"/reminders", "", &list); code != http.StatusOK {
		t.Fatalf("list reminders: %d", code)
	}
	if list.Total != 1 {
		t.Fatalf("expected 1 reminder, got %d", list.Total)
	}
	r := list.Data[0]
	if r.Kind != reminder.KindPrenatal || r.Status != reminder.StatusSent {
		t.Errorf("unexpected reminder %+v", r)
	}

	if code := do(t, e, http.MethodPost, "/api/v1/reminders/"+r.ID.String()+"/confirm", "", nil); code != http.StatusOK {
		t.Fatalf("confirm: %d", code)
	}
	if code := do(t, e, http.MethodPost, "/api/v1/reminders/"+r.ID.String()+"/confirm", "", nil); code != http.StatusConflict {
		t.Errorf("second confirm: expected 409, got %d", code)
	}
}

func TestRunSweep_Date(t *testing.T) {
	a, _ := newTestApp(t, time.Date(2025, 3, 25, 10, 0, 0, 0, time.UTC))

	sum, err := runSweep(context.Background(), a.sweep, "2025-04-01")
	if err != nil {
		t.Fatalf("runSweep: %v", err)
	}
	if !sum.Date.Equal(schedule.Date(2025, 4, 1)) {
		t.Errorf("expected sweep for 2025-04-01, got %v", sum.Date)
	}
	if _, err := runSweep(context.Background(), a.sweep, "01/04/2025"); err == nil {
		t.Error("expected error for malformed date")
	}
}

func TestNewDispatcher(t *testing.T) {
	cfg := memoryConfig()
	d, err := newDispatcher(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newDispatcher: %v", err)
	}
	if _, ok := d.(*notification.LogDispatcher); !ok {
		t.Errorf("expected log dispatcher, got %T", d)
	}

	cfg.NotifyChannel = config.NotifyTwilio
	cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromNumber = "AC123", "secret", "+15005550006"
	d, err = newDispatcher(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("newDispatcher: %v", err)
	}
	if _, ok := d.(*notification.SMSDispatcher); !ok {
		t.Errorf("expected sms dispatcher, got %T", d)
	}

	cfg.NotifyChannel = "pigeon"
	if _, err := newDispatcher(cfg, zerolog.Nop()); err == nil {
		t.Error("expected error for unknown channel")
	}
}

func TestNewLocker_WithoutRedis(t *testing.T) {
	locker, closeFn, err := newLocker(context.Background(), memoryConfig(), zerolog.Nop())
	if err != nil {
		t.Fatalf("newLocker: %v", err)
	}
	defer closeFn()
	release, err := locker.Acquire(context.Background(), sweepJob, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	release(context.Background())
}
