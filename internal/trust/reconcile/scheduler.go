package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Scheduler runs the reconciliation job on a cron spec. Standard five-field
// specs and descriptors such as "@every 1h" are accepted.
type Scheduler struct {
	cron   *cron.Cron
	job    *Job
	spec   string
	logger *slog.Logger
}

func NewScheduler(job *Job, spec string, logger *slog.Logger) (*Scheduler, error) {
	if job == nil {
		return nil, errors.New("reconciliation job is required")
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		return nil, fmt.Errorf("invalid reconcile schedule %q: %w", spec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		cron:   cron.New(cron.WithChain(cron.Recover(cron.DiscardLogger))),
		job:    job,
		spec:   spec,
		logger: logger,
	}, nil
}

// Start registers the job and starts the cron loop. Runs use ctx, so
// cancelling it aborts an in-flight run.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		if _, err := s.job.Run(ctx); err != nil {
			if errors.Is(err, ErrAlreadyRunning) {
				s.logger.WarnContext(ctx, "skipping reconciliation, previous run still active")
				return
			}
			s.logger.ErrorContext(ctx, "scheduled reconciliation failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling reconciliation: %w", err)
	}
	s.cron.Start()
	s.logger.InfoContext(ctx, "reconciliation scheduler started", "schedule", s.spec)
	return nil
}

// Stop prevents new runs and waits for an active one to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("reconciliation scheduler stopped")
}
