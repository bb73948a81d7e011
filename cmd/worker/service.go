package main

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

type pinger struct {
	name string
	ping func(context.Context) error
}

type runner interface {
	Name() string
	Run(ctx context.Context) error
}

type ServiceParams struct {
	Logger  *logger.Logger
	Checks  []pinger
	Runners []runner
}

// Service runs every consumer runner until one fails or ctx ends.
type Service struct {
	logg    *logger.Logger
	checks  []pinger
	runners []runner
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if len(params.Runners) == 0 {
		return nil, errors.New("at least one consumer is required")
	}
	for _, r := range params.Runners {
		if r == nil {
			return nil, errors.New("nil consumer")
		}
	}
	return &Service{logg: params.Logger, checks: params.Checks, runners: params.Runners}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, check := range s.checks {
		if err := check.ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", check.name), err)
			return fmt.Errorf("%s ping failed: %w", check.name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)
	for _, r := range s.runners {
		r := r
		group.Go(func() error {
			runCtx := s.logg.WithField(groupCtx, "consumer", r.Name())
			s.logg.Info(runCtx, "consumer started")
			if err := r.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				s.logg.Error(runCtx, "consumer stopped unexpectedly", err)
				return fmt.Errorf("consumer %s: %w", r.Name(), err)
			}
			s.logg.Info(runCtx, "consumer stopped")
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}
