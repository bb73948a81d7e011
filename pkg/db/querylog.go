package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// queryLogger routes gorm output into the service logger. Only failed and
// slow statements are logged; record-not-found is treated as a normal result.
type queryLogger struct {
	logg  *logger.Logger
	slow  time.Duration
	level gormlogger.LogLevel
}

func newQueryLogger(logg *logger.Logger, slow time.Duration) gormlogger.Interface {
	if logg == nil {
		return gormlogger.Discard
	}
	return &queryLogger{logg: logg, slow: slow, level: gormlogger.Warn}
}

func (q *queryLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *q
	cp.level = level
	return &cp
}

func (q *queryLogger) Info(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Info {
		q.logg.Info(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Warn(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Warn {
		q.logg.Warn(ctx, fmt.Sprintf(msg, args...))
	}
}

func (q *queryLogger) Error(ctx context.Context, msg string, args ...any) {
	if q.level >= gormlogger.Error {
		q.logg.Error(ctx, "gorm", fmt.Errorf(msg, args...))
	}
}

func (q *queryLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if q.level <= gormlogger.Silent {
		return
	}
	took := time.Since(begin)
	failed := err != nil && !errors.Is(err, gorm.ErrRecordNotFound)
	slow := q.slow > 0 && took > q.slow
	if !failed && !slow {
		return
	}

	sql, rows := fc()
	ctx = q.logg.WithFields(ctx, map[string]any{
		"sql":         sql,
		"rows":        rows,
		"duration_ms": took.Milliseconds(),
	})
	switch {
	case failed && q.level >= gormlogger.Error:
		q.logg.Error(ctx, "query failed", err)
	case slow && q.level >= gormlogger.Warn:
		q.logg.Warn(ctx, "slow query")
	}
}
