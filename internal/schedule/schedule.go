// Package schedule runs a pipeline stage on a cron schedule.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Job is one scheduled execution.
type Job func(ctx context.Context) error

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs a job on a cron expression. A tick that arrives while the
// previous run is still going is skipped.
type Scheduler struct {
	name     string
	spec     string
	schedule cron.Schedule
	job      Job
	loc      *time.Location
}

// New parses spec, a five-field cron expression or a descriptor such as
// "@daily".
func New(name, spec string, job Job) (*Scheduler, error) {
	sched, err := parser.Parse(spec)
	if err != nil {
		return nil, fmt.Errorf("parsing schedule %q: %w", spec, err)
	}
	return &Scheduler{name: name, spec: spec, schedule: sched, job: job, loc: time.Local}, nil
}

// Next returns the first activation after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.loc))
}

// Run blocks until ctx is cancelled, then waits for a running job to return.
func (s *Scheduler) Run(ctx context.Context) error {
	logger := cronLogger{}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithParser(parser),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.tick(ctx) }))

	log.Info().Str("job", s.name).Str("schedule", s.spec).
		Time("next", s.Next(time.Now())).Msg("scheduler started")
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	log.Info().Str("job", s.name).Msg("scheduler stopped")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	start := time.Now()
	log.Info().Str("job", s.name).Msg("scheduled run starting")
	if err := s.job(ctx); err != nil {
		log.Error().Err(err).Str("job", s.name).Msg("scheduled run failed")
		return
	}
	log.Info().Str("job", s.name).Dur("took", time.Since(start)).
		Time("next", s.Next(time.Now())).Msg("scheduled run complete")
}

// cronLogger forwards cron's own messages to zerolog.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
