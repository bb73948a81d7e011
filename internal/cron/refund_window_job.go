package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
)

const defaultRefundExpiryBatch = 200

type refundWindowExpirer interface {
	ExpireRefundWindows(ctx context.Context, now time.Time, limit int) (int, error)
}

// NewRefundWindowExpiryJob closes refund windows on delivered orders once they lapse.
func NewRefundWindowExpiryJob(orders refundWindowExpirer, batch int, logg *logger.Logger) (Job, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders service required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if batch <= 0 {
		batch = defaultRefundExpiryBatch
	}
	return &refundWindowExpiryJob{orders: orders, batch: batch, logg: logg, now: time.Now}, nil
}

type refundWindowExpiryJob struct {
	orders refundWindowExpirer
	batch  int
	logg   *logger.Logger
	now    func() time.Time
}

func (j *refundWindowExpiryJob) Name() string { return "refund_window_expiry" }

// Run may close part of a batch and still return an error; the closed count is reported either way.
func (j *refundWindowExpiryJob) Run(ctx context.Context) (int64, error) {
	closed, err := j.orders.ExpireRefundWindows(ctx, j.now().UTC(), j.batch)
	if err != nil {
		return int64(closed), fmt.Errorf("refund window expiry: %w", err)
	}
	if closed == j.batch {
		j.logg.Warn(ctx, "refund window batch full; remaining orders close on the next run")
	}
	return int64(closed), nil
}
