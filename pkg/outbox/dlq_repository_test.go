package outbox

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/cribnosh/cribnosh-backend/pkg/db/dbtest"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
)

func deadLetter(failedAt time.Time, msg string) models.OutboxDLQ {
	return models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  5,
		FailedAt:      failedAt,
	}
}

func TestDLQRepositoryInsertClipsMessage(t *testing.T) {
	conn := dbtest.OpenWithSchema(t)
	repo := NewDLQRepository(conn)

	long := strings.Repeat("é", maxDLQMessageBytes)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return repo.InsertTx(tx, deadLetter(time.Now(), long))
	}))

	var stored models.OutboxDLQ
	require.NoError(t, conn.First(&stored).Error)
	require.NotNil(t, stored.ErrorMessage)
	assert.LessOrEqual(t, len(*stored.ErrorMessage), maxDLQMessageBytes)
	assert.True(t, utf8.ValidString(*stored.ErrorMessage))

	assert.Error(t, repo.InsertTx(nil, deadLetter(time.Now(), "x")))
}

func TestDLQRepositoryDeleteFailedBefore(t *testing.T) {
	conn := dbtest.OpenWithSchema(t)
	repo := NewDLQRepository(conn)
	now := time.Now().UTC()

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		for _, at := range []time.Time{now.AddDate(0, 0, -120), now.AddDate(0, 0, -100), now.AddDate(0, 0, -1)} {
			if err := repo.InsertTx(tx, deadLetter(at, "boom")); err != nil {
				return err
			}
		}
		return nil
	}))

	deleted, err := repo.DeleteFailedBefore(context.Background(), now.AddDate(0, 0, -90))
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	var remaining int64
	require.NoError(t, conn.Model(&models.OutboxDLQ{}).Count(&remaining).Error)
	assert.Equal(t, int64(1), remaining)
}
