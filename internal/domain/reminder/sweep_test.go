package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/carecal/carecal/internal/domain/schedule"
)

func TestSweep_CreatesDueReminders(t *testing.T) {
	f := newFixture(schedule.Date(2025, 2, 10))
	pid := f.dir.add("Awa", "+22370000001", "Moussa")
	f.generate(t, schedule.KindVaccination, pid, schedule.Date(2025, 1, 1))
	f.generate(t, schedule.KindPrenatal, pid, schedule.Date(2024, 11, 19))

	sum := f.sweep.TriggerNow(context.Background())

	// Four 6-week doses are due on 2025-02-12, two days ahead.
	if got := sum.Kinds[schedule.KindVaccination].Created; got != 4 {
		t.Errorf("expected 4 vaccination reminders, got %d", got)
	}
	// CPN1 for LMP 2024-11-19 is due 2025-02-11, one day ahead.
	if got := sum.Kinds[schedule.KindPrenatal].Created; got != 1 {
		t.Errorf("expected 1 prenatal reminder, got %d", got)
	}
	if sum.Failed() != 0 {
		t.Errorf("expected no failures, got %d", sum.Failed())
	}
	if len(f.out.Messages()) != 5 {
		t.Errorf("expected 5 dispatched messages, got %d", len(f.out.Messages()))
	}
}

func TestSweep_Idempotent(t *testing.T) {
	f := newFixture(schedule.Date(2025, 3, 25))
	pid := f.dir.add("Awa", "+22370000001", "")
	f.generate(t, schedule.KindPrenatal, pid, schedule.Date(2025, 1, 1))
	ctx := context.Background()

	first := f.sweep.TriggerNow(ctx)
	second := f.sweep.TriggerNow(ctx)

	if first.Created() != 1 {
		t.Fatalf("first run: expected 1 created, got %d", first.Created())
	}
	if second.Created() != 0 || second.Kinds[schedule.KindPrenatal].Skipped != 1 {
		t.Errorf("second run: expected 0 created and 1 skipped, got %+v", second.Kinds[schedule.KindPrenatal])
	}
	st, _ := f.reminders.Stats(ctx, pid)
	if st.Total != 1 {
		t.Errorf("expected 1 stored reminder, got %d", st.Total)
	}
}

func TestSweep_ConcurrentRunsCreateOnce(t *testing.T) {
	f := newFixture(schedule.Date(2025, 2, 10))
	var events int
	for i := 0; i < 10; i++ {
		pid := f.dir.add("Awa", "+22370000001", "Moussa")
		f.generate(t, schedule.KindVaccination, pid, schedule.Date(2025, 1, 1))
		events += 4
	}

	const runs = 16
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < runs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sum := f.sweep.Run(context.Background(), schedule.Date(2025, 2, 10))
			mu.Lock()
			created += sum.Created()
			mu.Unlock()
		}()
	}
	wg.Wait()

	if created != events {
		t.Errorf("expected %d reminders across all runs, got %d", events, created)
	}
	if n := len(f.out.Messages()); n != events {
		t.Errorf("expected %d dispatches, got %d", events, n)
	}
}

func TestSweep_IsolatesFailures(t *testing.T) {
	f := newFixture(schedule.Date(2025, 3, 25))
	ok := f.dir.add("Awa", "+22370000001", "")
	broken := f.dir.add("Fanta", "+22370000002", "")
	exploding := f.dir.add("Kadi", "+22370000003", "")
	f.dir.fail[broken] = errors.New("record corrupted")
	f.dir.panics[exploding] = true

	f.generate(t, schedule.KindPrenatal, ok, schedule.Date(2025, 1, 1))
	f.generate(t, schedule.KindPrenatal, broken, schedule.Date(2025, 1, 1))
	f.generate(t, schedule.KindPrenatal, exploding, schedule.Date(2025, 1, 1))

	sum := f.sweep.TriggerNow(context.Background())

	ks := sum.Kinds[schedule.KindPrenatal]
	if ks.Created != 1 || ks.Failed != 2 {
		t.Errorf("expected 1 created and 2 failed, got %+v", ks)
	}
}

func TestSweep_NothingDue(t *testing.T) {
	f := newFixture(schedule.Date(2025, 3, 26))
	pid := f.dir.add("Awa", "+22370000001", "")
	f.generate(t, schedule.KindPrenatal, pid, schedule.Date(2025, 1, 1))

	sum := f.sweep.TriggerNow(context.Background())
	if sum.Created() != 0 {
		t.Errorf("no reminder is due on the due date itself, got %d", sum.Created())
	}
	if len(sum.Kinds) != len(schedule.Kinds) {
		t.Errorf("expected a summary entry per kind, got %d", len(sum.Kinds))
	}
}

func TestSweep_StopsWhenCancelled(t *testing.T) {
	f := newFixture(schedule.Date(2025, 3, 25))
	pid := f.dir.add("Awa", "+22370000001", "")
	f.generate(t, schedule.KindPrenatal, pid, schedule.Date(2025, 1, 1))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	sum := f.sweep.TriggerNow(ctx)

	if !sum.Interrupted {
		t.Error("expected the summary to be marked interrupted")
	}
	if sum.Created() != 0 || sum.Failed() != 0 {
		t.Errorf("expected nothing created or failed, got %d created and %d failed", sum.Created(), sum.Failed())
	}
	if len(sum.Kinds) != len(schedule.Kinds) {
		t.Errorf("expected a summary entry per kind, got %d", len(sum.Kinds))
	}

	// The next run for the same day picks the event up.
	if again := f.sweep.TriggerNow(context.Background()); again.Created() != 1 || again.Interrupted {
		t.Errorf("expected the rerun to create 1 reminder, got %+v", again)
	}
}
