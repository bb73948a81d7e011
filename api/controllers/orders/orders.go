package orders

import (
	"net/http"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/api/validators"
	"github.com/cribnosh/cribnosh-backend/internal/notifications"
	internalorders "github.com/cribnosh/cribnosh-backend/internal/orders"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

const maxNotesLength = 1000

type orderHandler func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID)

// withOrder resolves the caller and the {orderId} path parameter.
func withOrder(svc internalorders.Service, logg *logger.Logger, next orderHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := validators.URLParamUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ctx := r.Context()
		if logg != nil {
			ctx = logg.WithOrderID(ctx, orderID.String())
		}
		next(w, r.WithContext(ctx), actor, orderID)
	}
}

type createOrderRequest struct {
	ChefID              uuid.UUID              `json:"chef_id" validate:"required"`
	Items               types.OrderItems       `json:"order_items" validate:"required,min=1,dive"`
	DeliveryAddress     *types.DeliveryAddress `json:"delivery_address"`
	SpecialInstructions *string                `json:"special_instructions" validate:"omitempty,max=1000"`
	DeliveryTime        *time.Time             `json:"delivery_time"`
	Currency            string                 `json:"currency" validate:"omitempty,len=3"`
	Metadata            map[string]any         `json:"metadata"`
}

// Create places a new pending order for the calling customer.
func Create(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.Create(r.Context(), internalorders.CreateInput{
			Actor:               actor,
			ChefID:              req.ChefID,
			Items:               req.Items,
			DeliveryAddress:     req.DeliveryAddress,
			SpecialInstructions: validators.SanitizeOptional(req.SpecialInstructions, maxNotesLength),
			DeliveryTime:        req.DeliveryTime,
			Currency:            strings.ToUpper(strings.TrimSpace(req.Currency)),
			Metadata:            req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, order)
	}
}

// List pages through the orders visible to the caller.
func List(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input := internalorders.ListInput{
			Actor:  actor,
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseOrderStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			input.Status = &status
		}

		list, err := svc.List(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

func Detail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		order, err := svc.Get(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

func History(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		history, err := svc.ListHistory(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"history": history})
	})
}

type updateOrderRequest struct {
	DeliveryAddress     *types.DeliveryAddress `json:"delivery_address"`
	SpecialInstructions *string                `json:"special_instructions" validate:"omitempty,max=1000"`
	DeliveryTime        *time.Time             `json:"delivery_time"`
	EstimatedPrepTime   *int                   `json:"estimated_prep_time" validate:"omitempty,min=1"`
	ChefNotes           *string                `json:"chef_notes" validate:"omitempty,max=1000"`
}

func Update(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req updateOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Update(r.Context(), internalorders.UpdateInput{
			Actor:               actor,
			OrderID:             orderID,
			DeliveryAddress:     req.DeliveryAddress,
			SpecialInstructions: req.SpecialInstructions,
			DeliveryTime:        req.DeliveryTime,
			EstimatedPrepTime:   req.EstimatedPrepTime,
			ChefNotes:           req.ChefNotes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	})
}

type confirmRequest struct {
	EstimatedPrepTime *int    `json:"estimated_prep_time" validate:"omitempty,min=1"`
	ChefNotes         *string `json:"chef_notes" validate:"omitempty,max=1000"`
}

func Confirm(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req confirmRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrder(w, r, logg)(svc.Confirm(r.Context(), internalorders.ConfirmInput{
			Actor:             actor,
			OrderID:           orderID,
			EstimatedPrepTime: req.EstimatedPrepTime,
			ChefNotes:         validators.SanitizeOptional(req.ChefNotes, maxNotesLength),
		}))
	})
}

type prepareRequest struct {
	PrepNotes       *string `json:"prep_notes" validate:"omitempty,max=1000"`
	UpdatedPrepTime *int    `json:"updated_prep_time" validate:"omitempty,min=1"`
}

func Prepare(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req prepareRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrder(w, r, logg)(svc.Prepare(r.Context(), internalorders.PrepareInput{
			Actor:           actor,
			OrderID:         orderID,
			PrepNotes:       validators.SanitizeOptional(req.PrepNotes, maxNotesLength),
			UpdatedPrepTime: req.UpdatedPrepTime,
		}))
	})
}

type stepRequest struct {
	Notes *string `json:"notes" validate:"omitempty,max=1000"`
}

// step serves ready, deliver and complete, which share the optional {notes} body.
func step(svc internalorders.Service, logg *logger.Logger, call func(r *http.Request, input internalorders.StepInput) (*internalorders.OrderDTO, error)) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req stepRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrder(w, r, logg)(call(r, internalorders.StepInput{
			Actor:   actor,
			OrderID: orderID,
			Notes:   validators.SanitizeOptional(req.Notes, maxNotesLength),
		}))
	})
}

func MarkReady(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return step(svc, logg, func(r *http.Request, input internalorders.StepInput) (*internalorders.OrderDTO, error) {
		return svc.MarkReady(r.Context(), input)
	})
}

func Deliver(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return step(svc, logg, func(r *http.Request, input internalorders.StepInput) (*internalorders.OrderDTO, error) {
		return svc.Deliver(r.Context(), input)
	})
}

func Complete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return step(svc, logg, func(r *http.Request, input internalorders.StepInput) (*internalorders.OrderDTO, error) {
		return svc.Complete(r.Context(), input)
	})
}

type reviewRequest struct {
	Rating      *int    `json:"rating" validate:"omitempty,min=1,max=5"`
	ReviewNotes *string `json:"review_notes" validate:"omitempty,max=2000"`
}

func Review(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req reviewRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeOrder(w, r, logg)(svc.Review(r.Context(), internalorders.ReviewInput{
			Actor:       actor,
			OrderID:     orderID,
			Rating:      req.Rating,
			ReviewNotes: validators.SanitizeOptional(req.ReviewNotes, 2000),
		}))
	})
}

type cancelRequest struct {
	Reason      string  `json:"reason" validate:"required"`
	Description *string `json:"description" validate:"omitempty,max=1000"`
}

func Cancel(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req cancelRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason, err := enums.ParseCancellationReason(req.Reason)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cancellation reason"))
			return
		}
		writeOrder(w, r, logg)(svc.Cancel(r.Context(), internalorders.CancelInput{
			Actor:       actor,
			OrderID:     orderID,
			Reason:      reason,
			Description: validators.SanitizeOptional(req.Description, maxNotesLength),
		}))
	})
}

type noteRequest struct {
	NoteType string `json:"note_type" validate:"required"`
	Note     string `json:"note" validate:"required,max=2000"`
}

func AddNote(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req noteRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		noteType, err := enums.ParseOrderNoteType(req.NoteType)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid note type"))
			return
		}
		note, err := svc.AddNote(r.Context(), internalorders.NoteInput{
			Actor:    actor,
			OrderID:  orderID,
			NoteType: noteType,
			Note:     req.Note,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, note)
	})
}

func ListNotes(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		notes, err := svc.ListNotes(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"notes": notes})
	})
}

func RefundEligibility(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		eligibility, err := svc.RefundEligibility(r.Context(), actor, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, eligibility)
	})
}

type refundWindowRequest struct {
	Hours  int    `json:"hours" validate:"required,min=1"`
	Reason string `json:"reason" validate:"omitempty,max=500"`
}

// SetRefundWindow overrides how long a delivered order stays refundable.
func SetRefundWindow(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		var req refundWindowRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		eligibility, err := svc.SetRefundWindow(r.Context(), internalorders.RefundWindowInput{
			Actor:   actor,
			OrderID: orderID,
			Hours:   req.Hours,
			Reason:  validators.SanitizeString(req.Reason, 500),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, eligibility)
	})
}

type sendNotificationRequest struct {
	Type     string         `json:"type" validate:"required"`
	Message  string         `json:"message" validate:"required,max=1000"`
	Priority string         `json:"priority" validate:"omitempty,oneof=low medium high urgent"`
	Channels []string       `json:"channels" validate:"omitempty,max=4"`
	Metadata map[string]any `json:"metadata"`
}

// SendNotification lets the chef or an operator message the customer.
func SendNotification(svc internalorders.Service, notifier notifications.Service, logg *logger.Logger) http.HandlerFunc {
	return withOrder(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, orderID uuid.UUID) {
		if notifier == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "notifications service unavailable"))
			return
		}
		var req sendNotificationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sent, err := notifier.SendOrderNotification(r.Context(), notifications.SendOrderNotificationInput{
			Actor:    actor,
			OrderID:  orderID,
			Type:     req.Type,
			Message:  req.Message,
			Priority: req.Priority,
			Channels: req.Channels,
			Metadata: req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, sent)
	})
}

func writeOrder(w http.ResponseWriter, r *http.Request, logg *logger.Logger) func(*internalorders.OrderDTO, error) {
	return func(order *internalorders.OrderDTO, err error) {
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, order)
	}
}
