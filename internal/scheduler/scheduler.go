package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/openblog/backend/internal/logger"
)

const pruneTimeout = 30 * time.Second

// TokenPruner deletes refresh-token records issued before cutoff.
type TokenPruner interface {
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type Metrics interface {
	AddCounter(name string, delta uint64)
	SetGauge(name string, value float64)
}

// Scheduler runs refresh-token retention on a cron schedule. Tokens whose
// records are pruned can no longer mint access tokens.
type Scheduler struct {
	cron      *cron.Cron
	pruner    TokenPruner
	retention time.Duration
	metrics   Metrics
	now       func() time.Time
	log       *logger.Logger
}

// New creates a scheduler. A retention of zero keeps tokens forever and
// Start becomes a no-op.
func New(pruner TokenPruner, retention time.Duration, metrics Metrics, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		cron:      cron.New(),
		pruner:    pruner,
		retention: retention,
		metrics:   metrics,
		now:       time.Now,
		log:       log.WithComponent("scheduler"),
	}
}

// ValidateSchedule reports whether spec is a cron expression or descriptor
// such as "@every 1h".
func ValidateSchedule(spec string) error {
	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// Start registers the prune job and starts the cron runner.
func (s *Scheduler) Start(spec string) error {
	if s.retention <= 0 {
		s.log.Info(context.Background(), "refresh token retention disabled", nil)
		return nil
	}
	if err := ValidateSchedule(spec); err != nil {
		return err
	}

	_, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), pruneTimeout)
		defer cancel()
		if _, err := s.PruneOnce(ctx); err != nil {
			s.log.Error(ctx, "refresh token prune failed", err, nil)
		}
	})
	if err != nil {
		return fmt.Errorf("schedule prune job: %w", err)
	}

	s.cron.Start()
	s.log.Info(context.Background(), "refresh token pruning scheduled", map[string]any{
		"schedule":  spec,
		"retention": s.retention.String(),
	})
	return nil
}

// PruneOnce deletes records older than the retention window.
func (s *Scheduler) PruneOnce(ctx context.Context) (int64, error) {
	if s.retention <= 0 {
		return 0, errors.New("retention is disabled")
	}

	cutoff := s.now().Add(-s.retention)
	deleted, err := s.pruner.DeleteCreatedBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune refresh tokens: %w", err)
	}

	if s.metrics != nil {
		if deleted > 0 {
			s.metrics.AddCounter("refresh_tokens_pruned_total", uint64(deleted))
		}
		s.metrics.SetGauge("refresh_tokens_last_prune_unix", float64(s.now().Unix()))
	}
	s.log.Info(ctx, "pruned refresh tokens", map[string]any{
		"deleted": deleted,
		"cutoff":  cutoff.UTC().Format(time.RFC3339),
	})
	return deleted, nil
}

// Stop halts the runner and waits for a running job to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}
