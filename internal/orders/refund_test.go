package orders

import (
	"context"
	"testing"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateRefund(t *testing.T) {
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	delivered := now.Add(-2 * time.Hour)
	expired := now.Add(-30 * time.Hour)
	longAgo := now.Add(-80 * time.Hour)
	extended := longAgo.Add(72 * time.Hour)

	cases := []struct {
		name       string
		order      models.Order
		refundable bool
		reason     string
	}{
		{"pending", models.Order{Status: enums.OrderStatusPending}, true, "order has not been delivered"},
		{"completed", models.Order{Status: enums.OrderStatusCompleted}, false, "order is completed"},
		{"cancelled", models.Order{Status: enums.OrderStatusCancelled}, false, "order is cancelled"},
		{"in window", models.Order{Status: enums.OrderStatusDelivered, DeliveredAt: &delivered}, true, "order is within the refund window"},
		{"expired", models.Order{Status: enums.OrderStatusDelivered, DeliveredAt: &expired}, false, "24-hour refund window has expired"},
		{"operator window expired", models.Order{Status: enums.OrderStatusDelivered, DeliveredAt: &longAgo, RefundEligibleUntil: &extended}, false, "72-hour refund window has expired"},
		{"operator window open", models.Order{Status: enums.OrderStatusDelivered, DeliveredAt: &expired, RefundEligibleUntil: &extended}, true, "order is within the refund window"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			refundable, reason := evaluateRefund(&tc.order, now, 24*time.Hour)
			assert.Equal(t, tc.refundable, refundable)
			assert.Equal(t, tc.reason, reason)
		})
	}
}

func TestRefundEligibilityPersistsExpiry(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.deliverOrder(t)

	eligibility, err := f.svc.RefundEligibility(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.True(t, eligibility.IsRefundable)
	assert.Greater(t, eligibility.RemainingSeconds, int64(0))

	f.advance(25 * time.Hour)
	eligibility, err = f.svc.RefundEligibility(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.False(t, eligibility.IsRefundable)
	assert.Equal(t, "24-hour refund window has expired", eligibility.Reason)

	stored, err := f.svc.Get(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRefundable)

	history, err := f.svc.ListHistory(ctx, f.customer, order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.OrderActionRefundEligibilityUpdated, history[len(history)-1].Action)
	assert.Equal(t, enums.EventOrderRefundWindowClosed, f.outbox.events[len(f.outbox.events)-1].EventType)

	_, err = f.svc.RefundEligibility(ctx, f.other, order.ID)
	assertCode(t, err, pkgerrors.CodeForbidden)
}

func TestSetRefundWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.placeOrder(t)
	_, err := f.svc.SetRefundWindow(ctx, RefundWindowInput{Actor: f.staff, OrderID: pending.ID, Hours: 48})
	assertCode(t, err, pkgerrors.CodeStateConflict)

	order := f.deliverOrder(t)
	_, err = f.svc.SetRefundWindow(ctx, RefundWindowInput{Actor: f.chef, OrderID: order.ID, Hours: 48})
	assertCode(t, err, pkgerrors.CodeForbidden)
	_, err = f.svc.SetRefundWindow(ctx, RefundWindowInput{Actor: f.staff, OrderID: order.ID, Hours: 0})
	assertCode(t, err, pkgerrors.CodeValidation)

	f.advance(30 * time.Hour)
	eligibility, err := f.svc.SetRefundWindow(ctx, RefundWindowInput{Actor: f.staff, OrderID: order.ID, Hours: 72})
	require.NoError(t, err)
	assert.True(t, eligibility.IsRefundable)
	require.NotNil(t, eligibility.RefundEligibleUntil)
	assert.Equal(t, order.DeliveredAt.Add(72*time.Hour), eligibility.RefundEligibleUntil.UTC())

	require.Len(t, f.admin.entries, 1)
	assert.Equal(t, "order_refund_window_set", f.admin.entries[0].Action)
}

func TestExpireRefundWindows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.deliverOrder(t)
	second := f.deliverOrder(t)

	closed, err := f.svc.ExpireRefundWindows(ctx, f.clock, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)

	closed, err = f.svc.ExpireRefundWindows(ctx, f.clock.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, closed)

	stored, err := f.svc.Get(ctx, f.staff, first.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsRefundable)

	history, err := f.svc.ListHistory(ctx, f.staff, second.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	assert.Equal(t, enums.RoleSystem, last.PerformedByRole)

	closed, err = f.svc.ExpireRefundWindows(ctx, f.clock.Add(48*time.Hour), 10)
	require.NoError(t, err)
	assert.Equal(t, 0, closed)
}

func TestOperatorRefundWindowDrivesExpiryReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	viaCheck := f.deliverOrder(t)
	viaCron := f.deliverOrder(t)

	for _, id := range []uuid.UUID{viaCheck.ID, viaCron.ID} {
		_, err := f.svc.SetRefundWindow(ctx, RefundWindowInput{Actor: f.staff, OrderID: id, Hours: 72})
		require.NoError(t, err)
	}

	f.advance(80 * time.Hour)
	eligibility, err := f.svc.RefundEligibility(ctx, f.customer, viaCheck.ID)
	require.NoError(t, err)
	assert.False(t, eligibility.IsRefundable)
	assert.Equal(t, "72-hour refund window has expired", eligibility.Reason)

	closed, err := f.svc.ExpireRefundWindows(ctx, f.clock, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	history, err := f.svc.ListHistory(ctx, f.staff, viaCron.ID)
	require.NoError(t, err)
	last := history[len(history)-1]
	require.NotNil(t, last.Reason)
	assert.Equal(t, "72-hour refund window has expired", *last.Reason)
}
