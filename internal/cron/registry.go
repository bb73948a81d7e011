package cron

import (
	"context"
	"time"
)

// Job is a scheduled task run by the cron worker. Run reports how many rows it touched.
type Job interface {
	Name() string
	Run(ctx context.Context) (int64, error)
}

// Schedule pairs a job with how often it should run.
type Schedule struct {
	Job   Job
	Every time.Duration
}

// Registry tracks registered cron jobs.
type Registry struct {
	schedules []Schedule
}

func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a job. Nil jobs and non-positive intervals are ignored.
func (r *Registry) Register(job Job, every time.Duration) {
	if job == nil || every <= 0 {
		return
	}
	r.schedules = append(r.schedules, Schedule{Job: job, Every: every})
}

// Schedules returns the registered schedules in the order they were added.
func (r *Registry) Schedules() []Schedule {
	out := make([]Schedule, len(r.schedules))
	copy(out, r.schedules)
	return out
}
