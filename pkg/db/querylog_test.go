package db

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func traceOnce(q gormlogger.Interface, took time.Duration, err error) {
	q.Trace(context.Background(), time.Now().Add(-took), func() (string, int64) {
		return "SELECT * FROM orders", 3
	}, err)
}

func TestQueryLoggerSkipsFastAndNotFound(t *testing.T) {
	var buf bytes.Buffer
	q := newQueryLogger(logger.New(logger.Options{Output: &buf}), time.Second)

	traceOnce(q, time.Millisecond, nil)
	traceOnce(q, time.Millisecond, gorm.ErrRecordNotFound)
	assert.Empty(t, buf.String())
}

func TestQueryLoggerReportsSlowAndFailed(t *testing.T) {
	var buf bytes.Buffer
	q := newQueryLogger(logger.New(logger.Options{Output: &buf}), 10*time.Millisecond)

	traceOnce(q, time.Second, nil)
	assert.Contains(t, buf.String(), `"message":"slow query"`)
	assert.Contains(t, buf.String(), `"rows":3`)

	buf.Reset()
	traceOnce(q, time.Millisecond, errors.New("deadlock detected"))
	assert.Contains(t, buf.String(), `"message":"query failed"`)
	assert.Contains(t, buf.String(), "deadlock detected")
}

func TestQueryLoggerSilentMode(t *testing.T) {
	var buf bytes.Buffer
	q := newQueryLogger(logger.New(logger.Options{Output: &buf}), time.Millisecond).LogMode(gormlogger.Silent)

	traceOnce(q, time.Second, errors.New("boom"))
	assert.Empty(t, buf.String())
}

func TestQueryLoggerWithoutLoggerDiscards(t *testing.T) {
	assert.Equal(t, gormlogger.Discard, newQueryLogger(nil, time.Second))
}
