// Package schedule runs the engine's periodic maintenance jobs on gocron.
package schedule

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"activityhub/internal/app/commands"
	"activityhub/internal/app/dto"
	availabilityapp "activityhub/internal/app/handlers/availability"
	bookingapp "activityhub/internal/app/handlers/booking"
)

const (
	JobHoldSweep      = "hold-sweep"
	JobReconciliation = "reconciliation-report"
	JobAutoComplete   = "auto-complete"
)

// Sweeper expires reservation holds.
type Sweeper interface {
	SweepHolds(ctx context.Context) (int, error)
}

type Config struct {
	HoldSweepInterval    time.Duration
	ReconcileInterval    time.Duration
	AutoCompleteInterval time.Duration
	Logger               *slog.Logger
}

// Scheduler owns the gocron scheduler. A job with a non-positive interval is
// not registered.
type Scheduler struct {
	cron     gocron.Scheduler
	commands commands.Bus
	sweeper  Sweeper
	logger   *slog.Logger

	mu  sync.RWMutex
	ctx context.Context
}

func New(bus commands.Bus, sweeper Sweeper, cfg Config) (*Scheduler, error) {
	if bus == nil || sweeper == nil {
		return nil, errors.New("schedule: command bus and sweeper required")
	}
	cron, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Scheduler{cron: cron, commands: bus, sweeper: sweeper, logger: logger, ctx: context.Background()}
	jobs := []struct {
		name     string
		interval time.Duration
		run      func(context.Context) error
	}{
		{JobHoldSweep, cfg.HoldSweepInterval, s.SweepHolds},
		{JobReconciliation, cfg.ReconcileInterval, s.Reconcile},
		{JobAutoComplete, cfg.AutoCompleteInterval, s.AutoComplete},
	}
	for _, job := range jobs {
		if job.interval <= 0 {
			continue
		}
		run, name := job.run, job.name
		_, err := cron.NewJob(
			gocron.DurationJob(job.interval),
			gocron.NewTask(func() { s.runJob(name, run) }),
			gocron.WithName(name),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			_ = cron.Shutdown()
			return nil, err
		}
	}
	return s, nil
}

// Jobs lists the registered job names.
func (s *Scheduler) Jobs() []string {
	var names []string
	for _, j := range s.cron.Jobs() {
		names = append(names, j.Name())
	}
	return names
}

// Start runs the jobs until Shutdown; ctx is handed to every run.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()
	s.cron.Start()
}

func (s *Scheduler) Shutdown() error {
	return s.cron.Shutdown()
}

func (s *Scheduler) runJob(name string, run func(context.Context) error) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()
	if ctx.Err() != nil {
		return
	}
	started := time.Now()
	if err := run(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled job failed", slog.String("job", name), slog.Any("err", err))
		return
	}
	s.logger.DebugContext(ctx, "scheduled job finished", slog.String("job", name), slog.Duration("took", time.Since(started)))
}

func (s *Scheduler) SweepHolds(ctx context.Context) error {
	n, err := s.sweeper.SweepHolds(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.InfoContext(ctx, "expired reservation holds released", slog.Int("holds", n))
	}
	return nil
}

func (s *Scheduler) Reconcile(ctx context.Context) error {
	report, err := commands.Dispatch[availabilityapp.ReconciliationReportCommand, *dto.ReconciliationReport](ctx, s.commands, availabilityapp.ReconciliationReportCommand{})
	if err != nil {
		return err
	}
	if len(report.Drifted) > 0 {
		s.logger.WarnContext(ctx, "capacity drift detected", slog.Int("windows", len(report.Drifted)))
	}
	return nil
}

func (s *Scheduler) AutoComplete(ctx context.Context) error {
	_, err := commands.Dispatch[bookingapp.AutoCompleteCommand, *bookingapp.AutoCompleteResult](ctx, s.commands, bookingapp.AutoCompleteCommand{})
	return err
}
