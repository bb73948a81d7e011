package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"
)

const maxRefundWindowHours = 720

// evaluateRefund applies the refund rules to order at now.
func evaluateRefund(order *models.Order, now time.Time, window time.Duration) (bool, string) {
	switch order.Status {
	case enums.OrderStatusCompleted:
		return false, "order is completed"
	case enums.OrderStatusCancelled:
		return false, "order is cancelled"
	case enums.OrderStatusDelivered:
		until := order.RefundEligibleUntil
		if until == nil && order.DeliveredAt != nil {
			u := order.DeliveredAt.Add(window)
			until = &u
		}
		if until != nil && now.After(*until) {
			if order.DeliveredAt != nil {
				window = until.Sub(*order.DeliveredAt)
			}
			return false, expiredReason(window)
		}
		return true, "order is within the refund window"
	}
	return true, "order has not been delivered"
}

func expiredReason(window time.Duration) string {
	return fmt.Sprintf("%d-hour refund window has expired", int(window.Round(time.Hour).Hours()))
}

func toRefundEligibility(order *models.Order, refundable bool, reason string, now time.Time) *RefundEligibility {
	out := &RefundEligibility{
		OrderID:             order.ID,
		Status:              order.Status,
		IsRefundable:        refundable,
		Reason:              reason,
		RefundEligibleUntil: order.RefundEligibleUntil,
	}
	if refundable && order.RefundEligibleUntil != nil {
		if remaining := order.RefundEligibleUntil.Sub(now); remaining > 0 {
			out.RemainingSeconds = int64(remaining.Seconds())
		}
	}
	return out
}

// RefundEligibility computes the current refund state and persists it when it changed.
func (s *service) RefundEligibility(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*RefundEligibility, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	var out *RefundEligibility
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findForUpdate(ctx, repo, orderID)
		if err != nil {
			return err
		}
		roles := actingRoles(actor, order)
		if len(roles) == 0 {
			return errNotOwner()
		}
		now := s.now().UTC()
		refundable, reason := evaluateRefund(order, now, s.cfg.RefundWindow())
		if refundable != order.IsRefundable {
			if err := s.applyRefundable(ctx, tx, repo, order, refundable, reason, actor.UserID, roles[0], now); err != nil {
				return err
			}
		}
		out = toRefundEligibility(order, refundable, reason, now)
		return nil
	})
	if err != nil {
		return nil, asDependency(err, "refund eligibility")
	}
	return out, nil
}

// SetRefundWindow lets operators move the refund deadline of a delivered order.
func (s *service) SetRefundWindow(ctx context.Context, input RefundWindowInput) (*RefundEligibility, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only admin or staff can change refund windows")
	}
	if input.Hours < 1 || input.Hours > maxRefundWindowHours {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "refund window must be between 1 and %d hours", maxRefundWindowHours)
	}

	var (
		out   *RefundEligibility
		order *models.Order
		role  = input.Actor.PrimaryRole()
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = findForUpdate(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if order.Status != enums.OrderStatusDelivered || order.DeliveredAt == nil {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "refund window applies to delivered orders, order is %s", order.Status).
				WithDetails(map[string]any{"status": order.Status})
		}

		now := s.now().UTC()
		window := time.Duration(input.Hours) * time.Hour
		until := order.DeliveredAt.Add(window)
		order.RefundEligibleUntil = &until
		refundable := !now.After(until)
		reason := "refund window set by operator"
		if !refundable {
			reason = expiredReason(window)
		}
		if input.Reason != "" {
			reason = input.Reason
		}
		if err := s.applyRefundable(ctx, tx, repo, order, refundable, reason, input.Actor.UserID, role, now); err != nil {
			return err
		}
		out = toRefundEligibility(order, refundable, reason, now)
		return nil
	})
	if err != nil {
		return nil, asDependency(err, "set refund window")
	}
	s.recordOperator(ctx, input.Actor, role, order, "order_refund_window_set", map[string]any{"hours": input.Hours})
	return out, nil
}

// ExpireRefundWindows closes every refund window that lapsed before now.
// Failures on one order do not stop the batch.
func (s *service) ExpireRefundWindows(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := s.repo.FindRefundWindowExpired(ctx, now.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find expired refund windows")
	}

	var (
		closed int
		errs   error
	)
	window := s.cfg.RefundWindow()
	for _, id := range ids {
		changed := false
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			order, err := findForUpdate(ctx, repo, id)
			if err != nil {
				return err
			}
			refundable, reason := evaluateRefund(order, now.UTC(), window)
			if refundable || !order.IsRefundable {
				return nil
			}
			changed = true
			return s.applyRefundable(ctx, tx, repo, order, false, reason, uuid.Nil, enums.RoleSystem, now.UTC())
		})
		if err != nil {
			s.logg.Error(s.logg.WithOrderID(ctx, id.String()), "close refund window", err)
			errs = multierr.Append(errs, err)
			continue
		}
		if changed {
			closed++
		}
	}
	return closed, errs
}

func (s *service) applyRefundable(ctx context.Context, tx *gorm.DB, repo Repository, order *models.Order, refundable bool, reason string, actorID uuid.UUID, role enums.UserRole, now time.Time) error {
	order.IsRefundable = refundable
	order.UpdatedAt = now
	if err := repo.Save(ctx, order); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update refund eligibility")
	}
	status := order.Status
	meta := types.JSONMap{"is_refundable": refundable}
	if order.RefundEligibleUntil != nil {
		meta["refund_eligible_until"] = order.RefundEligibleUntil.Format(time.RFC3339)
	}
	if err := repo.InsertHistory(ctx, &models.OrderHistory{
		OrderID:         order.ID,
		Action:          enums.OrderActionRefundEligibilityUpdated,
		FromStatus:      &status,
		ToStatus:        &status,
		Reason:          &reason,
		PerformedBy:     actorID,
		PerformedByRole: role,
		Description:     "Refund eligibility updated: " + reason,
		Metadata:        meta,
		PerformedAt:     now,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order history")
	}

	if refundable {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(actorID, role),
			Data: payloads.OrderUpdatedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				ChefID:     order.ChefID,
				Fields:     []string{"refund_eligible_until", "is_refundable"},
			},
		})
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventOrderRefundWindowClosed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Actor:         actorRef(actorID, role),
		Data: payloads.OrderRefundWindowClosedEvent{
			OrderID:    order.ID,
			CustomerID: order.CustomerID,
			ChefID:     order.ChefID,
			Reason:     reason,
			ClosedAt:   now,
		},
	})
}
