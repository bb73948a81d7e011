package adminlogs

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/dbtest"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	repo := NewRepository(dbtest.OpenWithSchema(t))
	svc, err := NewService(repo, logger.New(logger.Options{ServiceName: "test", Output: &bytes.Buffer{}}))
	require.NoError(t, err)
	clock := time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)
	svc.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return svc
}

func TestRecordAndListFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	admin := auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleAdmin}}
	staffID := uuid.New()
	customer := uuid.New()

	svc.Record(ctx, Entry{AdminID: admin.UserID, UserID: customer, Action: "order_confirmed", Details: map[string]any{"order_number": "CN-1"}})
	svc.Record(ctx, Entry{AdminID: staffID, UserID: customer, Action: "order_cancelled"})
	svc.Record(ctx, Entry{AdminID: admin.UserID, UserID: customer, Action: "order_cancelled"})
	svc.Record(ctx, Entry{AdminID: admin.UserID, UserID: customer, Action: "  "})

	all, err := svc.List(ctx, ListInput{Actor: admin})
	require.NoError(t, err)
	require.Len(t, all.Logs, 3)
	assert.Equal(t, "order_cancelled", all.Logs[0].Action, "newest first")
	assert.Equal(t, "CN-1", all.Logs[2].Details.String("order_number"))

	byAdmin, err := svc.List(ctx, ListInput{Actor: admin, AdminID: &admin.UserID})
	require.NoError(t, err)
	assert.Len(t, byAdmin.Logs, 2)

	byAction, err := svc.List(ctx, ListInput{Actor: admin, Action: "order_cancelled"})
	require.NoError(t, err)
	assert.Len(t, byAction.Logs, 2)

	page, err := svc.List(ctx, ListInput{Actor: admin, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Logs, 2)
	require.NotEmpty(t, page.NextCursor)
	rest, err := svc.List(ctx, ListInput{Actor: admin, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, rest.Logs, 1)
	assert.Equal(t, "order_confirmed", rest.Logs[0].Action)
	assert.Empty(t, rest.NextCursor)
}

func TestListRequiresOperator(t *testing.T) {
	svc := newTestService(t)
	customer := auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleCustomer}}
	_, err := svc.List(context.Background(), ListInput{Actor: customer})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	staff := auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleStaff}}
	_, err = svc.List(context.Background(), ListInput{Actor: staff, Cursor: "%%%"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

type failingStore struct{}

func (failingStore) Insert(context.Context, *models.AdminLog) error { return errors.New("db down") }
func (failingStore) List(context.Context, ListQuery) ([]models.AdminLog, error) {
	return nil, errors.New("db down")
}

func TestRecordSwallowsStoreErrors(t *testing.T) {
	buf := &bytes.Buffer{}
	svc := &Service{repo: failingStore{}, logg: logger.New(logger.Options{ServiceName: "test", Output: buf}), now: time.Now}

	svc.Record(context.Background(), Entry{AdminID: uuid.New(), UserID: uuid.New(), Action: "order_confirmed"})

	assert.Contains(t, buf.String(), "failed to record admin log")
	assert.Contains(t, buf.String(), "db down")
}
