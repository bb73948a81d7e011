package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/metrics"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// mutation applies the status-specific field changes and returns the history
// metadata plus the chat text announcing the change.
type mutation func(order *models.Order, now time.Time) (types.JSONMap, string)

type transition struct {
	actor   auth.Actor
	orderID uuid.UUID
	to      enums.OrderStatus
	reason  *string
	apply   mutation
}

func (s *service) Confirm(ctx context.Context, input ConfirmInput) (*OrderDTO, error) {
	if err := s.validatePrepTime(input.EstimatedPrepTime); err != nil {
		return nil, err
	}
	return s.transition(ctx, transition{
		actor:   input.Actor,
		orderID: input.OrderID,
		to:      enums.OrderStatusConfirmed,
		apply: func(order *models.Order, now time.Time) (types.JSONMap, string) {
			order.ConfirmedAt = &now
			meta := types.JSONMap{}
			if input.EstimatedPrepTime != nil {
				order.EstimatedPrepTime = input.EstimatedPrepTime
				meta["estimated_prep_time"] = *input.EstimatedPrepTime
			}
			if notes := trimmed(input.ChefNotes); notes != nil {
				order.ChefNotes = notes
				meta["chef_notes"] = *notes
			}
			text := fmt.Sprintf("Order %s has been confirmed.", order.OrderNumber)
			if order.EstimatedPrepTime != nil {
				text += fmt.Sprintf(" Estimated prep time: %d minutes.", *order.EstimatedPrepTime)
			}
			return meta, text
		},
	})
}

func (s *service) Prepare(ctx context.Context, input PrepareInput) (*OrderDTO, error) {
	if err := s.validatePrepTime(input.UpdatedPrepTime); err != nil {
		return nil, err
	}
	return s.transition(ctx, transition{
		actor:   input.Actor,
		orderID: input.OrderID,
		to:      enums.OrderStatusPreparing,
		apply: func(order *models.Order, now time.Time) (types.JSONMap, string) {
			order.PreparingAt = &now
			meta := types.JSONMap{}
			if input.UpdatedPrepTime != nil {
				order.EstimatedPrepTime = input.UpdatedPrepTime
				meta["estimated_prep_time"] = *input.UpdatedPrepTime
			}
			if notes := trimmed(input.PrepNotes); notes != nil {
				meta["prep_notes"] = *notes
			}
			return meta, fmt.Sprintf("Order %s is being prepared.", order.OrderNumber)
		},
	})
}

func (s *service) MarkReady(ctx context.Context, input StepInput) (*OrderDTO, error) {
	return s.transition(ctx, transition{
		actor:   input.Actor,
		orderID: input.OrderID,
		to:      enums.OrderStatusReady,
		apply: func(order *models.Order, now time.Time) (types.JSONMap, string) {
			order.ReadyAt = &now
			return notesMeta("ready_notes", input.Notes), fmt.Sprintf("Order %s is ready.", order.OrderNumber)
		},
	})
}

func (s *service) Deliver(ctx context.Context, input StepInput) (*OrderDTO, error) {
	window := s.cfg.RefundWindow()
	return s.transition(ctx, transition{
		actor:   input.Actor,
		orderID: input.OrderID,
		to:      enums.OrderStatusDelivered,
		apply: func(order *models.Order, now time.Time) (types.JSONMap, string) {
			until := now.Add(window)
			order.DeliveredAt = &now
			order.RefundEligibleUntil = &until
			order.IsRefundable = true
			meta := notesMeta("delivery_notes", input.Notes)
			meta["refund_eligible_until"] = until.Format(time.RFC3339)
			return meta, fmt.Sprintf("Order %s has been delivered. Enjoy your meal!", order.OrderNumber)
		},
	})
}

func (s *service) Complete(ctx context.Context, input StepInput) (*OrderDTO, error) {
	return s.transition(ctx, transition{
		actor:   input.Actor,
		orderID: input.OrderID,
		to:      enums.OrderStatusCompleted,
		apply: func(order *models.Order, now time.Time) (types.JSONMap, string) {
			order.CompletedAt = &now
			order.IsRefundable = false
			return notesMeta("completion_notes", input.Notes), fmt.Sprintf("Order %s is complete.", order.OrderNumber)
		},
	})
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error) {
	if !input.Reason.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cancellation reason")
	}
	reason := string(input.Reason)
	return s.transition(ctx, transition{
		actor:   input.Actor,
		orderID: input.OrderID,
		to:      enums.OrderStatusCancelled,
		reason:  &reason,
		apply: func(order *models.Order, now time.Time) (types.JSONMap, string) {
			by := input.Actor.UserID
			cancelReason := input.Reason
			order.CancelledAt = &now
			order.CancelledBy = &by
			order.CancellationReason = &cancelReason
			order.CancellationDetail = trimmed(input.Description)
			order.IsRefundable = false
			meta := types.JSONMap{"cancellation_reason": reason}
			if order.CancellationDetail != nil {
				meta["cancellation_description"] = *order.CancellationDetail
			}
			return meta, fmt.Sprintf("Order %s was cancelled (%s).", order.OrderNumber, strings.ReplaceAll(reason, "_", " "))
		},
	})
}

// transition runs one table-governed status change in a single transaction.
func (s *service) transition(ctx context.Context, t transition) (*OrderDTO, error) {
	if err := requireActor(t.actor); err != nil {
		return nil, err
	}
	ctx = s.logg.WithOrderID(ctx, t.orderID.String())

	var (
		result *models.Order
		from   enums.OrderStatus
		rule   Rule
		role   enums.UserRole
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findForUpdate(ctx, repo, t.orderID)
		if err != nil {
			return err
		}
		from = order.Status
		roles := actingRoles(t.actor, order)
		if len(roles) == 0 {
			return errNotOwner()
		}
		rule, role, err = s.transitions.Check(from, t.to, roles)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		meta, text := t.apply(order, now)
		meta["performed_by_role"] = role
		order.Status = t.to
		order.UpdatedAt = now
		order.Metadata = order.Metadata.Merge(map[string]any{
			string(rule.Action) + "_at": now.Format(time.RFC3339),
			string(rule.Action) + "_by": t.actor.UserID.String(),
		})

		chatID, err := s.chat.PostOrderUpdate(ctx, tx, chat.OrderUpdate{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			ChefID:      order.ChefID,
			ChatID:      order.ChatID,
			SenderID:    t.actor.UserID,
			Content:     text,
			Metadata:    map[string]any{"order_status": t.to, "action": rule.Action},
		})
		if err != nil {
			return asDependency(err, "post order chat update")
		}
		order.ChatID = &chatID

		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		to := t.to
		if err := repo.InsertHistory(ctx, &models.OrderHistory{
			OrderID:         order.ID,
			Action:          rule.Action,
			FromStatus:      &from,
			ToStatus:        &to,
			Reason:          t.reason,
			PerformedBy:     t.actor.UserID,
			PerformedByRole: role,
			Description:     fmt.Sprintf("Order %s by %s", rule.Action, role),
			Metadata:        meta,
			PerformedAt:     now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order history")
		}

		reason := ""
		if t.reason != nil {
			reason = *t.reason
		}
		result = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(t.actor.UserID, role),
			Data: payloads.OrderStatusChangedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				ChefID:      order.ChefID,
				FromStatus:  from,
				ToStatus:    t.to,
				Action:      rule.Action,
				Reason:      reason,
				ChangedAt:   now,
			},
		})
	})
	s.metrics.ObserveTransition(string(from), string(t.to), transitionResult(err))
	if err != nil {
		return nil, asDependency(err, "transition order")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{"from": from, "to": t.to, "role": role}), "order transitioned")
	s.recordOperator(ctx, t.actor, role, result, "order_"+string(rule.Action), map[string]any{"from": from, "to": t.to})
	return toOrderDTO(result), nil
}

// Review records the customer's review. It marks the order without changing its status.
func (s *service) Review(ctx context.Context, input ReviewInput) (*OrderDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Rating != nil && (*input.Rating < 1 || *input.Rating > 5) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	ctx = s.logg.WithOrderID(ctx, input.OrderID.String())

	var result *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findForUpdate(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		if !input.Actor.Has(enums.RoleCustomer) || order.CustomerID != input.Actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the ordering customer can review")
		}
		if order.Status != enums.OrderStatusDelivered && order.Status != enums.OrderStatusCompleted {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s orders cannot be reviewed", order.Status).
				WithDetails(map[string]any{"from": order.Status, "to": "reviewed"})
		}
		if order.ReviewedAt != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already reviewed")
		}

		now := s.now().UTC()
		order.ReviewedAt = &now
		order.ReviewRating = input.Rating
		order.ReviewNotes = trimmed(input.ReviewNotes)
		order.UpdatedAt = now

		text := fmt.Sprintf("Order %s was reviewed.", order.OrderNumber)
		if input.Rating != nil {
			text = fmt.Sprintf("Order %s was reviewed: %d/5.", order.OrderNumber, *input.Rating)
		}
		chatID, err := s.chat.PostOrderUpdate(ctx, tx, chat.OrderUpdate{
			OrderID:     order.ID,
			OrderNumber: order.OrderNumber,
			CustomerID:  order.CustomerID,
			ChefID:      order.ChefID,
			ChatID:      order.ChatID,
			SenderID:    input.Actor.UserID,
			Content:     text,
			Metadata:    map[string]any{"action": enums.OrderActionReviewed},
		})
		if err != nil {
			return asDependency(err, "post order chat update")
		}
		order.ChatID = &chatID
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save review")
		}

		status := order.Status
		meta := types.JSONMap{}
		if input.Rating != nil {
			meta["rating"] = *input.Rating
		}
		if err := repo.InsertHistory(ctx, &models.OrderHistory{
			OrderID:         order.ID,
			Action:          enums.OrderActionReviewed,
			FromStatus:      &status,
			ToStatus:        &status,
			PerformedBy:     input.Actor.UserID,
			PerformedByRole: enums.RoleCustomer,
			Description:     "Order reviewed by customer",
			Metadata:        meta,
			PerformedAt:     now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order history")
		}

		notes := ""
		if order.ReviewNotes != nil {
			notes = *order.ReviewNotes
		}
		result = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderReviewed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor.UserID, enums.RoleCustomer),
			Data: payloads.OrderReviewedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				ChefID:     order.ChefID,
				Rating:     input.Rating,
				Notes:      notes,
			},
		})
	})
	if err != nil {
		return nil, asDependency(err, "review order")
	}
	return toOrderDTO(result), nil
}

func notesMeta(key string, notes *string) types.JSONMap {
	meta := types.JSONMap{}
	if v := trimmed(notes); v != nil {
		meta[key] = *v
	}
	return meta
}

func transitionResult(err error) string {
	if err == nil {
		return metrics.ResultOK
	}
	switch pkgerrors.CodeOf(err) {
	case pkgerrors.CodeForbidden:
		return metrics.ResultForbidden
	case pkgerrors.CodeStateConflict, pkgerrors.CodeConflict:
		return metrics.ResultConflict
	}
	return metrics.ResultError
}
