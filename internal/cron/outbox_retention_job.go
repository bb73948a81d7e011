package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

const (
	outboxRetention     = 30 * 24 * time.Hour
	dlqRetention        = 90 * 24 * time.Hour
	changeFeedRetention = 7 * 24 * time.Hour
)

type publishedOutboxRepo interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type deadLetterRepo interface {
	DeleteFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type syncedChangesRepo interface {
	DeleteSyncedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// retentionJob deletes rows older than a fixed age through a single repository call.
type retentionJob struct {
	name      string
	retention time.Duration
	purge     func(ctx context.Context, cutoff time.Time) (int64, error)
	logg      *logger.Logger
	now       func() time.Time
}

// NewOutboxRetentionJob removes published outbox rows after 30 days.
func NewOutboxRetentionJob(repo publishedOutboxRepo, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	return newRetentionJob("outbox_retention", outboxRetention, repo.DeletePublishedBefore, logg)
}

// NewDLQRetentionJob removes dead-lettered outbox events after 90 days.
func NewDLQRetentionJob(repo deadLetterRepo, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("dlq repository required")
	}
	return newRetentionJob("outbox_dlq_retention", dlqRetention, repo.DeleteFailedBefore, logg)
}

// NewChangeFeedRetentionJob removes change rows already fanned out, after 7 days.
func NewChangeFeedRetentionJob(repo syncedChangesRepo, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("changes repository required")
	}
	return newRetentionJob("change_feed_retention", changeFeedRetention, repo.DeleteSyncedBefore, logg)
}

func newRetentionJob(name string, retention time.Duration, purge func(context.Context, time.Time) (int64, error), logg *logger.Logger) (*retentionJob, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &retentionJob{name: name, retention: retention, purge: purge, logg: logg, now: time.Now}, nil
}

func (j *retentionJob) Name() string { return j.name }

func (j *retentionJob) Run(ctx context.Context) (int64, error) {
	cutoff := j.now().UTC().Add(-j.retention)
	deleted, err := j.purge(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", j.name, err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": deleted,
	}), "retention cleanup complete")
	return deleted, nil
}
