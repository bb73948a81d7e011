package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
)

const defaultTick = time.Minute

// ServiceParams configure the cron service.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Tick     time.Duration
	Now      func() time.Time
}

// Service wakes every tick and runs the jobs whose interval has elapsed.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	tick     time.Duration
	now      func() time.Time
	next     map[string]time.Time
}

// NewService builds a cron service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	tick := params.Tick
	if tick <= 0 {
		tick = defaultTick
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		tick:     tick,
		now:      now,
		next:     make(map[string]time.Time),
	}, nil
}

// Run starts the cron loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	s.runDue(ctx)
	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			s.runDue(ctx)
		}
	}
}

func (s *Service) runDue(ctx context.Context) {
	for _, schedule := range s.registry.Schedules() {
		name := schedule.Job.Name()
		now := s.now()
		if due, ok := s.next[name]; ok && now.Before(due) {
			continue
		}
		jobCtx := s.logg.WithFields(ctx, map[string]any{"job": name, "event": "cron.job"})

		locked, err := s.lock.Acquire(ctx, name, schedule.Every)
		if err != nil {
			s.logg.Error(jobCtx, "lock acquire failed", err)
			continue
		}
		if !locked {
			// Another instance owns this period; check again next tick.
			s.logg.Debug(jobCtx, "job locked elsewhere")
			continue
		}
		s.next[name] = now.Add(schedule.Every)
		if err := s.runJob(jobCtx, schedule.Job); err != nil {
			if relErr := s.lock.Release(ctx, name); relErr != nil {
				s.logg.Error(jobCtx, "failed to release cron lock", relErr)
			}
		}
	}
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	s.logg.Info(ctx, "job start")
	start := time.Now()
	affected, err := job.Run(ctx)
	took := time.Since(start)
	s.metrics.ObserveRun(job.Name(), took, affected, err)

	ctx = s.logg.WithFields(ctx, map[string]any{
		"duration_ms":   took.Milliseconds(),
		"rows_affected": affected,
	})
	if err != nil {
		s.logg.Error(ctx, "job failed", err)
		return err
	}
	s.logg.Info(ctx, "job completed")
	return nil
}
