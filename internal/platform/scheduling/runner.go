// Package scheduling runs timed jobs (the daily reminder sweep) and keeps
// replicas from running the same job at once.
package scheduling

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Job is a unit of scheduled work. The context is cancelled when the runner
// stops.
type Job func(ctx context.Context)

// Runner executes jobs on cron schedules in a fixed time zone.
type Runner struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger
}

func NewRunner(loc *time.Location, logger zerolog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	cl := cronLogger{logger: logger}
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
			cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// Add registers job under a standard five-field cron spec.
func (r *Runner) Add(name, spec string, job Job) error {
	_, err := r.cron.AddFunc(spec, func() {
		start := time.Now()
		r.logger.Info().Str("job", name).Msg("scheduled job started")
		job(r.ctx)
		r.logger.Info().Str("job", name).Dur("elapsed", time.Since(start)).Msg("scheduled job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
	}
	return nil
}

// Next returns the next activation time of the registered jobs, or the zero
// time when there are none.
func (r *Runner) Next() time.Time {
	var next time.Time
	for _, e := range r.cron.Entries() {
		if next.IsZero() || e.Next.Before(next) {
			next = e.Next
		}
	}
	return next
}

// Start runs the scheduler until ctx is done, then waits for running jobs.
func (r *Runner) Start(ctx context.Context) {
	r.cron.Start()
	r.logger.Info().Time("next_run", r.Next()).Msg("scheduler started")
	<-ctx.Done()
	r.cancel()
	<-r.cron.Stop().Done()
	r.logger.Info().Msg("scheduler stopped")
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
