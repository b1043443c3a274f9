// Package scheduler triggers the digest on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Elias24978/safety-app/services/digest/internal/app"
)

const (
	// DefaultSpec fires every day at 09:00.
	DefaultSpec = "0 9 * * *"
	// DefaultTimezone is the business timezone of the schedule.
	DefaultTimezone = "America/Mexico_City"
)

// Runner is the scheduled work.
type Runner interface {
	Run(ctx context.Context) app.Report
}

// Config configures the schedule.
type Config struct {
	Spec       string
	Location   *time.Location
	RunOnStart bool
	Logger     *slog.Logger
}

// Scheduler owns the cron instance.
type Scheduler struct {
	cron       *cron.Cron
	chain      cron.Chain
	schedule   cron.Schedule
	runner     Runner
	runOnStart bool
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// New parses the schedule. A nil Location means DefaultTimezone.
func New(cfg Config, runner Runner) (*Scheduler, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	spec := strings.TrimSpace(cfg.Spec)
	if spec == "" {
		spec = DefaultSpec
	}
	loc := cfg.Location
	if loc == nil {
		var err error
		loc, err = time.LoadLocation(DefaultTimezone)
		if err != nil {
			return nil, fmt.Errorf("scheduler: load timezone: %w", err)
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("scheduler: parse %q: %w", spec, err)
	}
	cl := cronLogger{logger: logger}
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(loc),
			cron.WithLogger(cl),
		),
		chain:      cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
		schedule:   schedule,
		runner:     runner,
		runOnStart: cfg.RunOnStart,
		logger:     logger,
	}, nil
}

// Start schedules the runner and returns immediately. Runs use ctx, so
// cancelling it aborts an in-flight digest. The on-start run and the
// scheduled runs share one wrapped job, so they never overlap.
func (s *Scheduler) Start(ctx context.Context) {
	job := s.chain.Then(cron.FuncJob(func() {
		s.runner.Run(ctx)
	}))
	s.cron.Schedule(s.schedule, job)
	s.cron.Start()
	s.logger.Info("digest scheduled", "next_run", s.Next(time.Now()))
	if s.runOnStart {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			job.Run()
		}()
	}
}

// Stop stops scheduling and waits for any running digest to return,
// including the on-start run.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// Next returns the first scheduled run after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.cron.Location()))
}

// cronLogger adapts slog to the cron logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err)...)
}
