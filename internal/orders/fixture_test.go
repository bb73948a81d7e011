package orders

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/dbtest"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingOutbox struct {
	events []outbox.DomainEvent
}

func (r *recordingOutbox) Emit(_ context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	if tx == nil {
		panic("emit outside transaction")
	}
	r.events = append(r.events, event)
	return nil
}

func (r *recordingOutbox) eventTypes() []enums.OutboxEventType {
	out := make([]enums.OutboxEventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType
	}
	return out
}

type stubChat struct {
	chatID  uuid.UUID
	updates []chat.OrderUpdate
	err     error
}

func (s *stubChat) PostOrderUpdate(_ context.Context, _ *gorm.DB, update chat.OrderUpdate) (uuid.UUID, error) {
	if s.err != nil {
		return uuid.Nil, s.err
	}
	s.updates = append(s.updates, update)
	if update.ChatID != nil {
		return *update.ChatID, nil
	}
	return s.chatID, nil
}

type stubAdminLogs struct {
	mu      sync.Mutex
	entries []adminlogs.Entry
}

func (s *stubAdminLogs) Record(_ context.Context, entry adminlogs.Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = append(s.entries, entry)
}

type stubUsers struct {
	chefs map[uuid.UUID]bool
}

func (s stubUsers) HasRole(_ context.Context, id uuid.UUID, _ ...enums.UserRole) (bool, error) {
	return s.chefs[id], nil
}

type stubObserver struct {
	results []string
}

func (s *stubObserver) ObserveTransition(from, to, result string) {
	s.results = append(s.results, from+">"+to+":"+result)
}

type fixture struct {
	svc      Service
	repo     Repository
	outbox   *recordingOutbox
	chat     *stubChat
	admin    *stubAdminLogs
	observer *stubObserver
	clock    time.Time
	customer auth.Actor
	chef     auth.Actor
	staff    auth.Actor
	other    auth.Actor
}

func newFixture(t *testing.T, opts ...func(*ServiceParams)) *fixture {
	t.Helper()
	conn := dbtest.OpenWithSchema(t)
	f := &fixture{
		repo:     NewRepository(conn),
		outbox:   &recordingOutbox{},
		chat:     &stubChat{chatID: uuid.New()},
		admin:    &stubAdminLogs{},
		observer: &stubObserver{},
		clock:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		customer: auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleCustomer}},
		chef:     auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleChef}},
		staff:    auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleStaff}},
		other:    auth.Actor{UserID: uuid.New(), Roles: []enums.UserRole{enums.RoleChef, enums.RoleCustomer}},
	}
	params := ServiceParams{
		Repo:      f.repo,
		Tx:        pkgdb.NewFromGorm(conn),
		Outbox:    f.outbox,
		Chat:      f.chat,
		AdminLogs: f.admin,
		Users:     stubUsers{chefs: map[uuid.UUID]bool{f.chef.UserID: true, f.other.UserID: true}},
		Metrics:   f.observer,
		Logger:    logger.New(logger.Options{ServiceName: "orders-test", Output: io.Discard}),
		Config:    config.OrdersConfig{RefundWindowHours: 24, MaxPrepMinutes: 120},
		Now: func() time.Time {
			f.clock = f.clock.Add(time.Second)
			return f.clock
		},
	}
	for _, opt := range opts {
		opt(&params)
	}
	svc, err := NewService(params)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) advance(d time.Duration) {
	f.clock = f.clock.Add(d)
}

func (f *fixture) placeOrder(t *testing.T) *OrderDTO {
	t.Helper()
	order, err := f.svc.Create(context.Background(), CreateInput{
		Actor:  f.customer,
		ChefID: f.chef.UserID,
		Items: types.OrderItems{
			{DishID: uuid.New(), Name: "jollof rice", Quantity: 2, UnitPrice: decimal.RequireFromString("8.50")},
		},
		DeliveryAddress: &types.DeliveryAddress{Street: "1 High St", City: "London", Postcode: "E1 6AN", Country: "GB"},
	})
	require.NoError(t, err)
	f.advance(time.Minute)
	return order
}

// deliverOrder walks a fresh order through the kitchen up to delivered.
func (f *fixture) deliverOrder(t *testing.T) *OrderDTO {
	t.Helper()
	ctx := context.Background()
	order := f.placeOrder(t)
	_, err := f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.svc.Prepare(ctx, PrepareInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.svc.MarkReady(ctx, StepInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	delivered, err := f.svc.Deliver(ctx, StepInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	return delivered
}
