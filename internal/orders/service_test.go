package orders

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, pkgerrors.CodeOf(err), "error: %v", err)
}

func TestCreateOrder(t *testing.T) {
	f := newFixture(t)
	order := f.placeOrder(t)

	assert.Equal(t, enums.OrderStatusPending, order.Status)
	assert.Equal(t, enums.PaymentStatusPending, order.PaymentStatus)
	assert.True(t, order.TotalAmount.Equal(decimal.RequireFromString("17.00")))
	assert.Equal(t, "GBP", order.Currency)
	assert.Regexp(t, `^CN-20260301-[A-Z2-7]{6}$`, order.OrderNumber)
	assert.Equal(t, []enums.OutboxEventType{enums.EventOrderCreated}, f.outbox.eventTypes())

	history, err := f.svc.ListHistory(context.Background(), f.customer, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, enums.OrderActionCreated, history[0].Action)
	assert.Nil(t, history[0].FromStatus)
}

func TestCreateOrderValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	items := types.OrderItems{{DishID: uuid.New(), Name: "suya", Quantity: 1, UnitPrice: decimal.NewFromInt(5)}}

	_, err := f.svc.Create(ctx, CreateInput{Actor: f.chef, ChefID: f.other.UserID, Items: items})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Create(ctx, CreateInput{Actor: f.customer, ChefID: uuid.New(), Items: items})
	assertCode(t, err, pkgerrors.CodeNotFound)

	_, err = f.svc.Create(ctx, CreateInput{Actor: f.customer, ChefID: f.chef.UserID})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Create(ctx, CreateInput{Actor: auth.Actor{}, ChefID: f.chef.UserID, Items: items})
	assertCode(t, err, pkgerrors.CodeUnauthorized)

	past := f.clock.Add(-time.Hour)
	_, err = f.svc.Create(ctx, CreateInput{Actor: f.customer, ChefID: f.chef.UserID, Items: items, DeliveryTime: &past})
	assertCode(t, err, pkgerrors.CodeValidation)
}

func TestLifecycleHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)

	prep := 30
	confirmed, err := f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID, EstimatedPrepTime: &prep})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.ConfirmedAt)
	assert.Equal(t, 30, *confirmed.EstimatedPrepTime)
	require.NotNil(t, confirmed.ChatID)
	assert.Equal(t, f.chat.chatID, *confirmed.ChatID)

	_, err = f.svc.Prepare(ctx, PrepareInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.svc.MarkReady(ctx, StepInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)

	delivered, err := f.svc.Deliver(ctx, StepInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	require.NotNil(t, delivered.DeliveredAt)
	require.NotNil(t, delivered.RefundEligibleUntil)
	assert.Equal(t, delivered.DeliveredAt.Add(24*time.Hour), *delivered.RefundEligibleUntil)
	assert.True(t, delivered.IsRefundable)

	completed, err := f.svc.Complete(ctx, StepInput{Actor: f.customer, OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCompleted, completed.Status)
	assert.False(t, completed.IsRefundable)
	require.NotNil(t, completed.CompletedAt)

	history, err := f.svc.ListHistory(ctx, f.chef, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 6)
	actions := make([]enums.OrderHistoryAction, len(history))
	for i, h := range history {
		actions[i] = h.Action
	}
	assert.Equal(t, []enums.OrderHistoryAction{
		enums.OrderActionCreated,
		enums.OrderActionConfirmed,
		enums.OrderActionPreparing,
		enums.OrderActionReady,
		enums.OrderActionDelivered,
		enums.OrderActionCompleted,
	}, actions)
	assert.Equal(t, enums.RoleCustomer, history[5].PerformedByRole)

	require.Len(t, f.outbox.events, 6)
	last, ok := f.outbox.events[5].Data.(payloads.OrderStatusChangedEvent)
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusDelivered, last.FromStatus)
	assert.Equal(t, enums.OrderStatusCompleted, last.ToStatus)

	require.Len(t, f.chat.updates, 5)
	assert.Nil(t, f.chat.updates[0].ChatID)
	require.NotNil(t, f.chat.updates[1].ChatID)
	assert.Contains(t, f.chat.updates[0].Content, "Estimated prep time: 30 minutes")
	assert.Empty(t, f.admin.entries)
}

func TestTransitionRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)

	_, err := f.svc.Confirm(ctx, ConfirmInput{Actor: f.customer, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Confirm(ctx, ConfirmInput{Actor: f.other, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Deliver(ctx, StepInput{Actor: f.chef, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	tooLong := 500
	_, err = f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID, EstimatedPrepTime: &tooLong})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeStateConflict)
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, enums.OrderStatusConfirmed, details["from"])

	_, err = f.svc.Prepare(ctx, PrepareInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.svc.Cancel(ctx, CancelInput{Actor: f.customer, OrderID: order.ID, Reason: enums.CancelReasonCustomerRequest})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: uuid.New()})
	assertCode(t, err, pkgerrors.CodeNotFound)

	history, err := f.svc.ListHistory(ctx, f.chef, order.ID)
	require.NoError(t, err)
	assert.Len(t, history, 3)
	assert.Contains(t, f.observer.results, "pending>confirmed:forbidden")
	assert.Contains(t, f.observer.results, "confirmed>confirmed:conflict")
	assert.Contains(t, f.observer.results, "confirmed>preparing:ok")
}

func TestCancelOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)

	_, err := f.svc.Cancel(ctx, CancelInput{Actor: f.customer, OrderID: order.ID, Reason: "changed_mind"})
	assertCode(t, err, pkgerrors.CodeValidation)

	desc := "  ordered twice  "
	cancelled, err := f.svc.Cancel(ctx, CancelInput{Actor: f.customer, OrderID: order.ID, Reason: enums.CancelReasonDuplicate, Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledBy)
	assert.Equal(t, f.customer.UserID, *cancelled.CancelledBy)
	assert.Equal(t, enums.CancelReasonDuplicate, *cancelled.CancellationReason)
	assert.Equal(t, "ordered twice", *cancelled.CancellationDetail)
	assert.False(t, cancelled.IsRefundable)

	_, err = f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	history, err := f.svc.ListHistory(ctx, f.customer, order.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	require.NotNil(t, history[1].Reason)
	assert.Equal(t, "duplicate", *history[1].Reason)
}

func TestOperatorTransitionsAreAdminLogged(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)

	_, err := f.svc.Confirm(ctx, ConfirmInput{Actor: f.staff, OrderID: order.ID})
	require.NoError(t, err)
	require.Len(t, f.admin.entries, 1)
	entry := f.admin.entries[0]
	assert.Equal(t, f.staff.UserID, entry.AdminID)
	assert.Equal(t, f.customer.UserID, entry.UserID)
	assert.Equal(t, "order_confirmed", entry.Action)

	history, err := f.svc.ListHistory(ctx, f.staff, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.RoleStaff, history[1].PerformedByRole)
}

func TestChatFailureRollsBackTransition(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)
	f.chat.err = errors.New("chat down")

	_, err := f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeDependency)

	current, err := f.svc.Get(ctx, f.chef, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusPending, current.Status)
}

func TestReviewMarker(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.placeOrder(t)
	_, err := f.svc.Review(ctx, ReviewInput{Actor: f.customer, OrderID: pending.ID})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	order := f.deliverOrder(t)
	bad := 6
	_, err = f.svc.Review(ctx, ReviewInput{Actor: f.customer, OrderID: order.ID, Rating: &bad})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Review(ctx, ReviewInput{Actor: f.chef, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeForbidden)

	rating := 5
	notes := "lovely"
	reviewed, err := f.svc.Review(ctx, ReviewInput{Actor: f.customer, OrderID: order.ID, Rating: &rating, ReviewNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusDelivered, reviewed.Status)
	require.NotNil(t, reviewed.ReviewedAt)
	assert.Equal(t, 5, *reviewed.ReviewRating)

	_, err = f.svc.Review(ctx, ReviewInput{Actor: f.customer, OrderID: order.ID, Rating: &rating})
	assertCode(t, err, pkgerrors.CodeConflict)

	assert.Equal(t, enums.EventOrderReviewed, f.outbox.events[len(f.outbox.events)-1].EventType)
}

func TestUpdateOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)

	_, err := f.svc.Update(ctx, UpdateInput{Actor: f.customer, OrderID: order.ID})
	assertCode(t, err, pkgerrors.CodeValidation)

	instructions := "ring twice"
	updated, err := f.svc.Update(ctx, UpdateInput{Actor: f.customer, OrderID: order.ID, SpecialInstructions: &instructions})
	require.NoError(t, err)
	assert.Equal(t, "ring twice", *updated.SpecialInstructions)

	prep := 20
	_, err = f.svc.Update(ctx, UpdateInput{Actor: f.customer, OrderID: order.ID, EstimatedPrepTime: &prep})
	assertCode(t, err, pkgerrors.CodeForbidden)

	notes := "no peanuts"
	updated, err = f.svc.Update(ctx, UpdateInput{Actor: f.chef, OrderID: order.ID, EstimatedPrepTime: &prep, ChefNotes: &notes})
	require.NoError(t, err)
	assert.Equal(t, 20, *updated.EstimatedPrepTime)

	last := f.outbox.events[len(f.outbox.events)-1]
	event, ok := last.Data.(payloads.OrderUpdatedEvent)
	require.True(t, ok)
	assert.Equal(t, []string{"estimated_prep_time", "chef_notes"}, event.Fields)

	_, err = f.svc.Update(ctx, UpdateInput{Actor: f.other, OrderID: order.ID, ChefNotes: &notes})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.Cancel(ctx, CancelInput{Actor: f.chef, OrderID: order.ID, Reason: enums.CancelReasonOutOfStock})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, UpdateInput{Actor: f.chef, OrderID: order.ID, ChefNotes: &notes})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestUpdateRespectsEditableStatuses(t *testing.T) {
	f := newFixture(t, func(p *ServiceParams) {
		p.Config.EditableStatuses = []string{"pending", "confirmed"}
	})
	ctx := context.Background()
	order := f.placeOrder(t)
	notes := "extra napkins"

	_, err := f.svc.Confirm(ctx, ConfirmInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, UpdateInput{Actor: f.chef, OrderID: order.ID, ChefNotes: &notes})
	require.NoError(t, err)

	_, err = f.svc.Prepare(ctx, PrepareInput{Actor: f.chef, OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, UpdateInput{Actor: f.chef, OrderID: order.ID, ChefNotes: &notes})
	assertCode(t, err, pkgerrors.CodeStateConflict)
}

func TestAddNotePermissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.placeOrder(t)

	_, err := f.svc.AddNote(ctx, NoteInput{Actor: f.customer, OrderID: order.ID, NoteType: enums.OrderNoteChef, Note: "hi"})
	assertCode(t, err, pkgerrors.CodeForbidden)

	_, err = f.svc.AddNote(ctx, NoteInput{Actor: f.customer, OrderID: order.ID, NoteType: enums.OrderNoteCustomer, Note: "   "})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.AddNote(ctx, NoteInput{Actor: f.customer, OrderID: order.ID, NoteType: enums.OrderNoteCustomer, Note: "extra spicy"})
	require.NoError(t, err)
	_, err = f.svc.AddNote(ctx, NoteInput{Actor: f.chef, OrderID: order.ID, NoteType: enums.OrderNoteChef, Note: "on it"})
	require.NoError(t, err)
	_, err = f.svc.AddNote(ctx, NoteInput{Actor: f.chef, OrderID: order.ID, NoteType: enums.OrderNoteInternal, Note: "nope"})
	assertCode(t, err, pkgerrors.CodeForbidden)
	_, err = f.svc.AddNote(ctx, NoteInput{Actor: f.staff, OrderID: order.ID, NoteType: enums.OrderNoteInternal, Note: "watch this account"})
	require.NoError(t, err)

	visible, err := f.svc.ListNotes(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Len(t, visible, 2)

	all, err := f.svc.ListNotes(ctx, f.staff, order.ID)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	_, err = f.svc.ListNotes(ctx, f.other, order.ID)
	assertCode(t, err, pkgerrors.CodeForbidden)
	require.Len(t, f.admin.entries, 1)
	assert.Equal(t, "order_note_added", f.admin.entries[0].Action)
}

func TestListOrdersScopedAndPaginated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.placeOrder(t)
	}

	page, err := f.svc.List(ctx, ListInput{Actor: f.customer, Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)
	assert.True(t, page.Orders[0].CreatedAt.After(page.Orders[1].CreatedAt))

	next, err := f.svc.List(ctx, ListInput{Actor: f.customer, Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Empty(t, next.NextCursor)

	mine, err := f.svc.List(ctx, ListInput{Actor: f.chef})
	require.NoError(t, err)
	assert.Len(t, mine.Orders, 3)

	none, err := f.svc.List(ctx, ListInput{Actor: f.other})
	require.NoError(t, err)
	assert.Empty(t, none.Orders)

	status := enums.OrderStatusConfirmed
	filtered, err := f.svc.List(ctx, ListInput{Actor: f.staff, Status: &status})
	require.NoError(t, err)
	assert.Empty(t, filtered.Orders)

	_, err = f.svc.List(ctx, ListInput{Actor: f.customer, Cursor: "%%%"})
	assertCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Get(ctx, f.other, page.Orders[0].ID)
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	require.Error(t, err)
}
