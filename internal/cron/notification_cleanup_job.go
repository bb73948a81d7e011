package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

const (
	readNotificationRetention   = 30 * 24 * time.Hour
	unreadNotificationRetention = 90 * 24 * time.Hour
)

type notificationsCleanupRepo interface {
	DeleteExpired(ctx context.Context, readBefore, unreadBefore time.Time) (int64, error)
}

// NewNotificationCleanupJob drops read notifications after 30 days and unread ones after 90.
func NewNotificationCleanupJob(repo notificationsCleanupRepo, logg *logger.Logger) (Job, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &notificationCleanupJob{repo: repo, logg: logg, now: time.Now}, nil
}

type notificationCleanupJob struct {
	repo notificationsCleanupRepo
	logg *logger.Logger
	now  func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification_cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) (int64, error) {
	now := j.now().UTC()
	readCutoff := now.Add(-readNotificationRetention)
	unreadCutoff := now.Add(-unreadNotificationRetention)
	deleted, err := j.repo.DeleteExpired(ctx, readCutoff, unreadCutoff)
	if err != nil {
		return 0, fmt.Errorf("notification cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"read_cutoff":   readCutoff,
		"unread_cutoff": unreadCutoff,
		"rows_deleted":  deleted,
	}), "notification cleanup complete")
	return deleted, nil
}
