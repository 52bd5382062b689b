package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/carecal/carecal/internal/domain/careevent"
	"github.com/carecal/carecal/internal/domain/schedule"
	"github.com/carecal/carecal/internal/platform/clock"
)

// KindSummary counts the outcome of a sweep for one kind.
type KindSummary struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// Summary is the result of one sweep.
type Summary struct {
	Date  time.Time                       `json:"date"`
	Kinds map[schedule.Kind]*KindSummary `json:"kinds"`

	// Interrupted is set when ctx ended before every due event was seen.
	Interrupted bool `json:"interrupted,omitempty"`
}

func (s *Summary) Created() int {
	n := 0
	for _, k := range s.Kinds {
		n += k.Created
	}
	return n
}

func (s *Summary) Failed() int {
	n := 0
	for _, k := range s.Kinds {
		n += k.Failed
	}
	return n
}

// Sweep runs the engine over every Upcoming event whose reminder is due on a
// given day. It never fails as a whole.
type Sweep struct {
	engine *Engine
	events careevent.Repository
	clock  clock.Clock
	logger zerolog.Logger
}

func NewSweep(engine *Engine, events careevent.Repository, clk clock.Clock, logger zerolog.Logger) *Sweep {
	return &Sweep{engine: engine, events: events, clock: clk, logger: logger}
}

// TriggerNow sweeps for the current day.
func (s *Sweep) TriggerNow(ctx context.Context) *Summary {
	return s.Run(ctx, clock.Today(s.clock))
}

// Run sweeps for today. Running it again for the same day creates nothing new.
// It stops early once ctx is done; the events left over are picked up by the
// next run for the same day.
func (s *Sweep) Run(ctx context.Context, today time.Time) *Summary {
	sum := &Summary{Date: today, Kinds: make(map[schedule.Kind]*KindSummary, len(schedule.Kinds))}
	for _, kind := range schedule.Kinds {
		sum.Kinds[kind] = &KindSummary{}
	}

kinds:
	for _, kind := range schedule.Kinds {
		ks := sum.Kinds[kind]
		if ctx.Err() != nil {
			sum.Interrupted = true
			break
		}

		due := schedule.AddDays(today, schedule.LeadDays(kind))
		events, err := s.events.ListDue(ctx, kind, due)
		if err != nil {
			ks.Failed++
			s.logger.Error().Err(err).Str("kind", string(kind)).Msg("sweep: list due events")
			continue
		}
		for _, ev := range events {
			if ctx.Err() != nil {
				sum.Interrupted = true
				break kinds
			}
			outcome, err := s.processOne(ctx, ev, today)
			switch {
			case err != nil:
				ks.Failed++
				s.logger.Error().Err(err).
					Str("event_id", ev.ID.String()).
					Str("kind", string(kind)).
					Msg("sweep: process care event")
			case outcome == Created:
				ks.Created++
			default:
				ks.Skipped++
			}
		}
	}

	if sum.Interrupted {
		s.logger.Warn().Err(ctx.Err()).
			Str("date", today.Format(schedule.DateLayout)).
			Int("created", sum.Created()).
			Msg("reminder sweep interrupted")
		return sum
	}
	s.logger.Info().
		Str("date", today.Format(schedule.DateLayout)).
		Int("created", sum.Created()).
		Int("failed", sum.Failed()).
		Msg("reminder sweep finished")
	return sum
}

func (s *Sweep) processOne(ctx context.Context, ev *careevent.Event, today time.Time) (outcome Outcome, err error) {
	defer func() {
		if r := recover(); r != nil {
			outcome, err = Skipped, fmt.Errorf("panic: %v", r)
		}
	}()
	return s.engine.Process(ctx, ev, today)
}
