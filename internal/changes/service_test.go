package changes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/consumers"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/dbtest"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	dbtypes "github.com/cribnosh/cribnosh-backend/pkg/db/types"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, _ *gorm.DB, event outbox.DomainEvent) error {
	r.events = append(r.events, event)
	return nil
}

type stubAdminLogs struct {
	entries []adminlogs.Entry
}

func (s *stubAdminLogs) Record(_ context.Context, entry adminlogs.Entry) {
	s.entries = append(s.entries, entry)
}

type capturePublisher struct {
	bodies [][]byte
	err    error
}

func (c *capturePublisher) Publish(_ context.Context, body []byte) error {
	if c.err != nil {
		return c.err
	}
	c.bodies = append(c.bodies, body)
	return nil
}

type fixture struct {
	db     *gorm.DB
	repo   *Repository
	svc    *Service
	outbox *recordingOutbox
	admin  *stubAdminLogs
	logg   *logger.Logger
	clock  time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := dbtest.OpenWithSchema(t)
	f := &fixture{
		db:     conn,
		repo:   NewRepository(conn),
		outbox: &recordingOutbox{},
		admin:  &stubAdminLogs{},
		logg:   logger.New(logger.Options{Output: io.Discard}),
		clock:  time.Date(2026, 6, 10, 8, 0, 0, 0, time.UTC),
	}
	svc, err := NewService(ServiceParams{
		Repo:      f.repo,
		Tx:        pkgdb.NewFromGorm(conn),
		Outbox:    f.outbox,
		AdminLogs: f.admin,
		Logger:    f.logg,
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	})
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) insert(t *testing.T, changeType enums.ChangeType, at time.Time, audience ...uuid.UUID) *models.Change {
	t.Helper()
	row := &models.Change{
		Type:       changeType,
		Data:       types.JSONMap{"k": "v"},
		Audience:   dbtypes.UUIDArray(audience),
		OccurredAt: at,
		CreatedAt:  at,
	}
	if row.Audience == nil {
		row.Audience = dbtypes.UUIDArray{}
	}
	require.NoError(t, f.repo.Insert(context.Background(), row))
	return row
}

var admin = auth.Actor{UserID: uuid.MustParse("11111111-1111-4111-8111-111111111111"), Roles: []enums.UserRole{enums.RoleAdmin}}

func TestBroadcastStoresChangeAndEmitsEvent(t *testing.T) {
	f := newFixture(t)

	dto, err := f.svc.Broadcast(context.Background(), BroadcastInput{
		Actor: admin,
		Type:  "maintenance",
		Data:  map[string]any{"message": "down at 2am"},
	})
	require.NoError(t, err)
	assert.Equal(t, enums.ChangeMaintenance, dto.Type)
	assert.Empty(t, dto.Audience)

	stored, err := f.repo.FindByID(context.Background(), dto.ID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
	assert.Equal(t, "down at 2am", stored.Data.String("message"))

	require.Len(t, f.outbox.events, 1)
	event := f.outbox.events[0]
	assert.Equal(t, enums.EventChangeBroadcast, event.EventType)
	assert.Equal(t, dto.ID, event.AggregateID)
	payload, ok := event.Data.(payloads.ChangeBroadcastEvent)
	require.True(t, ok)
	assert.Equal(t, admin.UserID, payload.AdminID)

	require.Len(t, f.admin.entries, 1)
	assert.Equal(t, "change_broadcast", f.admin.entries[0].Action)
}

func TestBroadcastValidation(t *testing.T) {
	f := newFixture(t)
	customer := auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleCustomer}}

	cases := []struct {
		name  string
		input BroadcastInput
		code  pkgerrors.Code
	}{
		{"customer", BroadcastInput{Actor: customer, Type: "announcement", Data: map[string]any{"a": 1}}, pkgerrors.CodeForbidden},
		{"unknown type", BroadcastInput{Actor: admin, Type: "weather", Data: map[string]any{"a": 1}}, pkgerrors.CodeValidation},
		{"domain type", BroadcastInput{Actor: admin, Type: "order_status", Data: map[string]any{"a": 1}}, pkgerrors.CodeValidation},
		{"empty data", BroadcastInput{Actor: admin, Type: "announcement"}, pkgerrors.CodeValidation},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Broadcast(context.Background(), tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Empty(t, f.outbox.events)
}

func TestListSinceScopesAudience(t *testing.T) {
	f := newFixture(t)
	alice := uuid.New()
	bob := uuid.New()
	base := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	f.insert(t, enums.ChangeAnnouncement, base.Add(-time.Minute))
	everyone := f.insert(t, enums.ChangeAnnouncement, base.Add(1*time.Minute))
	forAlice := f.insert(t, enums.ChangeOrderStatus, base.Add(2*time.Minute), alice)
	f.insert(t, enums.ChangeOrderStatus, base.Add(3*time.Minute), bob)
	assert.Less(t, everyone.Seq, forAlice.Seq, "seq is assigned on insert")

	list, err := f.svc.ListSince(context.Background(), ListSinceInput{
		Actor: auth.Actor{UserID: alice, Roles: []enums.UserRole{enums.RoleCustomer}},
		After: base,
	})
	require.NoError(t, err)
	require.Len(t, list.Changes, 2)
	assert.Equal(t, everyone.ID, list.Changes[0].ID)
	assert.Equal(t, forAlice.ID, list.Changes[1].ID)
	assert.Equal(t, forAlice.Seq, list.NextCursor)

	all, err := f.svc.ListSince(context.Background(), ListSinceInput{Actor: admin, After: base})
	require.NoError(t, err)
	assert.Len(t, all.Changes, 3)

	_, err = f.svc.ListSince(context.Background(), ListSinceInput{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
	_, err = f.svc.ListSince(context.Background(), ListSinceInput{Actor: admin, Cursor: -1})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListSincePagesThroughTiedTimestamps(t *testing.T) {
	f := newFixture(t)
	at := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	var want []uuid.UUID
	for range 5 {
		want = append(want, f.insert(t, enums.ChangeAnnouncement, at).ID)
	}

	var got []uuid.UUID
	cursor := int64(0)
	for page := 0; page < 4; page++ {
		list, err := f.svc.ListSince(context.Background(), ListSinceInput{Actor: admin, Cursor: cursor, Limit: 2})
		require.NoError(t, err)
		for _, c := range list.Changes {
			got = append(got, c.ID)
		}
		cursor = list.NextCursor
	}
	assert.Equal(t, want, got)
}

func TestListSinceReturnsLateProjections(t *testing.T) {
	f := newFixture(t)
	handler, err := NewFeedHandler(f.repo, &capturePublisher{}, f.logg)
	require.NoError(t, err)
	handler.now = func() time.Time { return f.clock.Add(-time.Minute) }
	customer := uuid.New()
	actor := auth.Actor{UserID: customer, Roles: []enums.UserRole{enums.RoleCustomer}}

	later := statusEvent(customer, uuid.New())
	later.Envelope.OccurredAt = time.Date(2026, 6, 10, 9, 0, 1, 0, time.UTC)
	require.NoError(t, handler.Handle(context.Background(), later))

	first, err := f.svc.ListSince(context.Background(), ListSinceInput{Actor: actor})
	require.NoError(t, err)
	require.Len(t, first.Changes, 1)

	// an older event projected after the client already polled
	earlier := statusEvent(customer, uuid.New())
	earlier.Envelope.OccurredAt = time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)
	require.NoError(t, handler.Handle(context.Background(), earlier))

	second, err := f.svc.ListSince(context.Background(), ListSinceInput{Actor: actor, Cursor: first.NextCursor})
	require.NoError(t, err)
	require.Len(t, second.Changes, 1)
	assert.True(t, second.Changes[0].OccurredAt.Equal(earlier.Envelope.OccurredAt))
	assert.Greater(t, second.NextCursor, first.NextCursor)
}

func TestListSinceHoldsBackFreshRows(t *testing.T) {
	f := newFixture(t)
	fresh := f.insert(t, enums.ChangeAnnouncement, f.clock)

	list, err := f.svc.ListSince(context.Background(), ListSinceInput{Actor: admin})
	require.NoError(t, err)
	assert.Empty(t, list.Changes)
	assert.Zero(t, list.NextCursor)

	f.clock = f.clock.Add(visibilityLag + time.Second)
	list, err = f.svc.ListSince(context.Background(), ListSinceInput{Actor: admin})
	require.NoError(t, err)
	require.Len(t, list.Changes, 1)
	assert.Equal(t, fresh.ID, list.Changes[0].ID)
}

func TestMarkSyncedOnlyCountsPendingRows(t *testing.T) {
	f := newFixture(t)
	a := f.insert(t, enums.ChangeAnnouncement, f.clock)
	b := f.insert(t, enums.ChangeAnnouncement, f.clock)

	n, err := f.svc.MarkSynced(context.Background(), []uuid.UUID{a.ID, b.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	n, err = f.svc.MarkSynced(context.Background(), []uuid.UUID{a.ID})
	require.NoError(t, err)
	assert.EqualValues(t, 0, n)
}

func TestDeleteSyncedBefore(t *testing.T) {
	f := newFixture(t)
	old := f.insert(t, enums.ChangeAnnouncement, f.clock.Add(-10*24*time.Hour))
	pending := f.insert(t, enums.ChangeAnnouncement, f.clock.Add(-10*24*time.Hour))
	fresh := f.insert(t, enums.ChangeAnnouncement, f.clock)
	_, err := f.repo.MarkSynced(context.Background(), []uuid.UUID{old.ID, fresh.ID})
	require.NoError(t, err)

	n, err := f.repo.DeleteSyncedBefore(context.Background(), f.clock.Add(-7*24*time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	_, err = f.repo.FindByID(context.Background(), pending.ID)
	assert.NoError(t, err)
	_, err = f.repo.FindByID(context.Background(), old.ID)
	assert.True(t, pkgdb.IsNotFound(err))
}

func statusEvent(customer, chef uuid.UUID) consumers.Event {
	return consumers.Event{
		ID:       uuid.New(),
		Type:     enums.EventOrderStatusChanged,
		Envelope: outbox.PayloadEnvelope{OccurredAt: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC)},
		Payload: &payloads.OrderStatusChangedEvent{
			OrderID:    uuid.New(),
			CustomerID: customer,
			ChefID:     chef,
			FromStatus: enums.OrderStatusPending,
			ToStatus:   enums.OrderStatusConfirmed,
		},
	}
}

func TestFeedHandlerProjectsAndPublishes(t *testing.T) {
	f := newFixture(t)
	pub := &capturePublisher{}
	handler, err := NewFeedHandler(f.repo, pub, f.logg)
	require.NoError(t, err)
	customer, chef := uuid.New(), uuid.New()
	event := statusEvent(customer, chef)

	require.True(t, handler.Handles(enums.EventOrderStatusChanged))
	require.False(t, handler.Handles(enums.EventOrderNoteAdded))
	require.NoError(t, handler.Handle(context.Background(), event))

	stored, err := f.repo.FindBySourceEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.ChangeOrderStatus, stored.Type)
	assert.ElementsMatch(t, []uuid.UUID{customer, chef}, []uuid.UUID(stored.Audience))
	assert.Equal(t, "confirmed", stored.Data.String("toStatus"))
	assert.Equal(t, string(enums.EventOrderStatusChanged), stored.Data.String("event"))
	assert.True(t, stored.Synced)

	require.Len(t, pub.bodies, 1)
	var wire ChangeDTO
	require.NoError(t, json.Unmarshal(pub.bodies[0], &wire))
	assert.Equal(t, stored.ID, wire.ID)
	assert.Equal(t, stored.Seq, wire.Seq)
	assert.True(t, wire.OccurredAt.Equal(event.Envelope.OccurredAt))

	// redelivery reuses the stored row
	require.NoError(t, handler.Handle(context.Background(), event))
	require.Len(t, pub.bodies, 2)
	var again ChangeDTO
	require.NoError(t, json.Unmarshal(pub.bodies[1], &again))
	assert.Equal(t, stored.ID, again.ID)
}

func TestFeedHandlerPublishesStoredBroadcast(t *testing.T) {
	f := newFixture(t)
	pub := &capturePublisher{}
	handler, err := NewFeedHandler(f.repo, pub, f.logg)
	require.NoError(t, err)

	dto, err := f.svc.Broadcast(context.Background(), BroadcastInput{
		Actor: admin,
		Type:  "announcement",
		Data:  map[string]any{"message": "new menu"},
	})
	require.NoError(t, err)

	err = handler.Handle(context.Background(), consumers.Event{
		ID:      uuid.New(),
		Type:    enums.EventChangeBroadcast,
		Payload: &payloads.ChangeBroadcastEvent{ChangeID: dto.ID, ChangeType: dto.Type},
	})
	require.NoError(t, err)
	require.Len(t, pub.bodies, 1)

	var count int64
	require.NoError(t, f.db.Model(&models.Change{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestFeedHandlerReturnsPublishErrors(t *testing.T) {
	f := newFixture(t)
	handler, err := NewFeedHandler(f.repo, &capturePublisher{err: errors.New("broker down")}, f.logg)
	require.NoError(t, err)
	event := statusEvent(uuid.New(), uuid.New())

	require.Error(t, handler.Handle(context.Background(), event))
	stored, err := f.repo.FindBySourceEvent(context.Background(), event.ID)
	require.NoError(t, err)
	assert.False(t, stored.Synced)
}
