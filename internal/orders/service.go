package orders

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"strings"
	"time"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/pagination"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultCurrency       = "GBP"
	maxNoteLength         = 2000
	orderNumberAttempts   = 3
	orderNumberConstraint = "orders_order_number_key"
)

// Service is the order lifecycle engine.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*OrderDTO, error)
	Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderDTO, error)
	List(ctx context.Context, input ListInput) (*OrderList, error)
	Update(ctx context.Context, input UpdateInput) (*OrderDTO, error)
	AddNote(ctx context.Context, input NoteInput) (*NoteDTO, error)
	ListNotes(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]NoteDTO, error)
	ListHistory(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]HistoryDTO, error)

	Confirm(ctx context.Context, input ConfirmInput) (*OrderDTO, error)
	Prepare(ctx context.Context, input PrepareInput) (*OrderDTO, error)
	MarkReady(ctx context.Context, input StepInput) (*OrderDTO, error)
	Deliver(ctx context.Context, input StepInput) (*OrderDTO, error)
	Complete(ctx context.Context, input StepInput) (*OrderDTO, error)
	Review(ctx context.Context, input ReviewInput) (*OrderDTO, error)
	Cancel(ctx context.Context, input CancelInput) (*OrderDTO, error)

	RefundEligibility(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*RefundEligibility, error)
	SetRefundWindow(ctx context.Context, input RefundWindowInput) (*RefundEligibility, error)
	ExpireRefundWindows(ctx context.Context, now time.Time, limit int) (int, error)
}

// ServiceParams wires the engine's collaborators.
type ServiceParams struct {
	Repo        Repository
	Tx          txRunner
	Outbox      outboxPublisher
	Chat        chatPoster
	AdminLogs   adminRecorder
	Users       userLookup
	Metrics     transitionObserver
	Logger      *logger.Logger
	Config      config.OrdersConfig
	Transitions TransitionTable
	Now         func() time.Time
}

type service struct {
	repo        Repository
	tx          txRunner
	outbox      outboxPublisher
	chat        chatPoster
	adminLogs   adminRecorder
	users       userLookup
	metrics     transitionObserver
	logg        *logger.Logger
	cfg         config.OrdersConfig
	transitions TransitionTable
	now         func() time.Time
}

type noopObserver struct{}

func (noopObserver) ObserveTransition(string, string, string) {}

// NewService builds the order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Chat == nil {
		return nil, fmt.Errorf("chat poster required")
	}
	if params.AdminLogs == nil {
		return nil, fmt.Errorf("admin log recorder required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Metrics == nil {
		params.Metrics = noopObserver{}
	}
	if params.Transitions == nil {
		params.Transitions = DefaultTransitions()
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:        params.Repo,
		tx:          params.Tx,
		outbox:      params.Outbox,
		chat:        params.Chat,
		adminLogs:   params.AdminLogs,
		users:       params.Users,
		metrics:     params.Metrics,
		logg:        params.Logger,
		cfg:         params.Config,
		transitions: params.Transitions,
		now:         params.Now,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*OrderDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.Actor.Has(enums.RoleCustomer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can place orders")
	}
	if input.ChefID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chef id required")
	}
	if input.ChefID == input.Actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chefs cannot order from themselves")
	}
	if err := validateItems(input.Items); err != nil {
		return nil, err
	}
	if input.DeliveryTime != nil && input.DeliveryTime.Before(s.now()) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery time must be in the future")
	}

	isChef, err := s.users.HasRole(ctx, input.ChefID, enums.RoleChef)
	if err != nil && !pkgdb.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load chef")
	}
	if !isChef {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "chef not found")
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	metadata := types.JSONMap{}
	for k, v := range input.Metadata {
		metadata[k] = v
	}

	var created *models.Order
	for attempt := 1; attempt <= orderNumberAttempts; attempt++ {
		now := s.now().UTC()
		order := &models.Order{
			OrderNumber:         newOrderNumber(now),
			CustomerID:          input.Actor.UserID,
			ChefID:              input.ChefID,
			Items:               input.Items,
			TotalAmount:         input.Items.Total(),
			Currency:            currency,
			Status:              enums.OrderStatusPending,
			PaymentStatus:       enums.PaymentStatusPending,
			DeliveryAddress:     input.DeliveryAddress,
			SpecialInstructions: trimmed(input.SpecialInstructions),
			DeliveryTime:        input.DeliveryTime,
			Metadata:            metadata,
			IsRefundable:        true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			if err := repo.Create(ctx, order); err != nil {
				return err
			}
			to := enums.OrderStatusPending
			if err := repo.InsertHistory(ctx, &models.OrderHistory{
				OrderID:         order.ID,
				Action:          enums.OrderActionCreated,
				ToStatus:        &to,
				PerformedBy:     input.Actor.UserID,
				PerformedByRole: enums.RoleCustomer,
				Description:     "Order placed",
				Metadata:        types.JSONMap{"total_amount": order.TotalAmount.String(), "item_count": len(order.Items)},
				PerformedAt:     now,
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order history")
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderCreated,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Actor:         actorRef(input.Actor.UserID, enums.RoleCustomer),
				Data: payloads.OrderCreatedEvent{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					CustomerID:  order.CustomerID,
					ChefID:      order.ChefID,
					TotalAmount: order.TotalAmount,
					Currency:    order.Currency,
				},
			})
		})
		if err == nil {
			created = order
			break
		}
		if !pkgdb.IsUniqueViolation(err, orderNumberConstraint) {
			return nil, asDependency(err, "create order")
		}
	}
	if created == nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate order number")
	}
	return toOrderDTO(created), nil
}

func (s *service) Get(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*OrderDTO, error) {
	order, _, err := s.loadVisible(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	return toOrderDTO(order), nil
}

func (s *service) List(ctx context.Context, input ListInput) (*OrderList, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order status filter")
	}

	limit := pagination.NormalizeLimit(input.Limit)
	query := ListQuery{Status: input.Status, Limit: pagination.LimitWithBuffer(input.Limit)}
	switch {
	case input.Actor.IsOperator():
	case input.Actor.Has(enums.RoleChef):
		query.ChefID = &input.Actor.UserID
	case input.Actor.Has(enums.RoleCustomer):
		query.CustomerID = &input.Actor.UserID
	default:
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "role cannot list orders")
	}
	if input.Cursor != "" {
		cursor, err := pagination.ParseCursor(input.Cursor)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
		}
		query.Cursor = cursor
	}

	rows, err := s.repo.List(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}

	next := ""
	rows, more := pagination.Trim(rows, limit)
	if more {
		last := rows[len(rows)-1]
		next = pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
	}
	out := make([]OrderDTO, len(rows))
	for i := range rows {
		out[i] = *toOrderDTO(&rows[i])
	}
	return &OrderList{Orders: out, NextCursor: next}, nil
}

func (s *service) Update(ctx context.Context, input UpdateInput) (*OrderDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	fields := changedFields(input)
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no updatable fields provided")
	}
	if err := s.validatePrepTime(input.EstimatedPrepTime); err != nil {
		return nil, err
	}

	var (
		updated *models.Order
		role    enums.UserRole
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := findForUpdate(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		roles := actingRoles(input.Actor, order)
		if len(roles) == 0 {
			return errNotOwner()
		}
		role = roles[0]
		if order.Status.IsTerminal() || !s.cfg.CanEdit(string(order.Status)) {
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "%s orders cannot be edited", order.Status).
				WithDetails(map[string]any{"status": order.Status})
		}
		if role == enums.RoleCustomer && (input.EstimatedPrepTime != nil || input.ChefNotes != nil) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "customers may only change delivery details")
		}

		if input.DeliveryAddress != nil {
			order.DeliveryAddress = input.DeliveryAddress
		}
		if input.SpecialInstructions != nil {
			order.SpecialInstructions = trimmed(input.SpecialInstructions)
		}
		if input.DeliveryTime != nil {
			at := input.DeliveryTime.UTC()
			order.DeliveryTime = &at
		}
		if input.EstimatedPrepTime != nil {
			order.EstimatedPrepTime = input.EstimatedPrepTime
		}
		if input.ChefNotes != nil {
			order.ChefNotes = trimmed(input.ChefNotes)
		}
		now := s.now().UTC()
		order.UpdatedAt = now
		if err := repo.Save(ctx, order); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order")
		}
		status := order.Status
		if err := repo.InsertHistory(ctx, &models.OrderHistory{
			OrderID:         order.ID,
			Action:          enums.OrderActionUpdated,
			FromStatus:      &status,
			ToStatus:        &status,
			PerformedBy:     input.Actor.UserID,
			PerformedByRole: role,
			Description:     "Order details updated: " + strings.Join(fields, ", "),
			Metadata:        types.JSONMap{"fields": fields},
			PerformedAt:     now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order history")
		}
		updated = order
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderUpdated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor.UserID, role),
			Data: payloads.OrderUpdatedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				ChefID:     order.ChefID,
				Fields:     fields,
			},
		})
	})
	if err != nil {
		return nil, asDependency(err, "update order")
	}
	s.recordOperator(ctx, input.Actor, role, updated, "order_updated", map[string]any{"fields": fields})
	return toOrderDTO(updated), nil
}

func (s *service) AddNote(ctx context.Context, input NoteInput) (*NoteDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.NoteType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid note type")
	}
	text := strings.TrimSpace(input.Note)
	if text == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "note required")
	}
	if len(text) > maxNoteLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "note must be at most %d characters", maxNoteLength)
	}

	var (
		note  *models.OrderNote
		order *models.Order
		role  enums.UserRole
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		var err error
		order, err = findForUpdate(ctx, repo, input.OrderID)
		if err != nil {
			return err
		}
		roles := actingRoles(input.Actor, order)
		if len(roles) == 0 {
			return errNotOwner()
		}
		role = roles[0]
		if !noteTypeAllowed(role, input.NoteType) {
			return pkgerrors.Newf(pkgerrors.CodeForbidden, "%s cannot add %s", role, input.NoteType)
		}

		now := s.now().UTC()
		note = &models.OrderNote{
			OrderID:  order.ID,
			NoteType: input.NoteType,
			Note:     text,
			AddedBy:  input.Actor.UserID,
			Metadata: types.JSONMap{"role": role},
			AddedAt:  now,
		}
		if err := repo.InsertNote(ctx, note); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order note")
		}
		status := order.Status
		if err := repo.InsertHistory(ctx, &models.OrderHistory{
			OrderID:         order.ID,
			Action:          enums.OrderActionNoteAdded,
			FromStatus:      &status,
			ToStatus:        &status,
			PerformedBy:     input.Actor.UserID,
			PerformedByRole: role,
			Description:     fmt.Sprintf("%s added", strings.ReplaceAll(string(input.NoteType), "_", " ")),
			Metadata:        types.JSONMap{"note_id": note.ID.String(), "note_type": input.NoteType},
			PerformedAt:     now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert order history")
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderNoteAdded,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         actorRef(input.Actor.UserID, role),
			Data: payloads.OrderNoteAddedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				ChefID:     order.ChefID,
				NoteID:     note.ID,
				NoteType:   note.NoteType,
			},
		})
	})
	if err != nil {
		return nil, asDependency(err, "add order note")
	}
	s.recordOperator(ctx, input.Actor, role, order, "order_note_added", map[string]any{"note_type": input.NoteType})
	dto := toNoteDTO(*note)
	return &dto, nil
}

func (s *service) ListNotes(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]NoteDTO, error) {
	_, roles, err := s.loadVisible(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListNotes(ctx, orderID, roles[0].IsOperator())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order notes")
	}
	out := make([]NoteDTO, len(rows))
	for i, row := range rows {
		out[i] = toNoteDTO(row)
	}
	return out, nil
}

func (s *service) ListHistory(ctx context.Context, actor auth.Actor, orderID uuid.UUID) ([]HistoryDTO, error) {
	if _, _, err := s.loadVisible(ctx, actor, orderID); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListHistory(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list order history")
	}
	out := make([]HistoryDTO, len(rows))
	for i, row := range rows {
		out[i] = toHistoryDTO(row)
	}
	return out, nil
}

func (s *service) loadVisible(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, []enums.UserRole, error) {
	if err := requireActor(actor); err != nil {
		return nil, nil, err
	}
	if orderID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	roles := actingRoles(actor, order)
	if len(roles) == 0 {
		return nil, nil, errNotOwner()
	}
	return order, roles, nil
}

// recordOperator writes a best-effort admin log when an operator acted on the order.
func (s *service) recordOperator(ctx context.Context, actor auth.Actor, role enums.UserRole, order *models.Order, action string, details map[string]any) {
	if !role.IsOperator() || order == nil {
		return
	}
	merged := map[string]any{"order_id": order.ID.String(), "order_number": order.OrderNumber, "role": role}
	for k, v := range details {
		merged[k] = v
	}
	s.adminLogs.Record(ctx, adminlogs.Entry{
		AdminID: actor.UserID,
		UserID:  order.CustomerID,
		Action:  action,
		Details: merged,
	})
}

func (s *service) validatePrepTime(minutes *int) error {
	if minutes == nil {
		return nil
	}
	limit := s.cfg.MaxPrepMinutes
	if limit <= 0 {
		limit = 240
	}
	if *minutes < 1 || *minutes > limit {
		return pkgerrors.Newf(pkgerrors.CodeValidation, "estimated prep time must be between 1 and %d minutes", limit).
			WithDetails(map[string]any{"estimated_prep_time": *minutes})
	}
	return nil
}

func findForUpdate(ctx context.Context, repo Repository, orderID uuid.UUID) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := repo.FindForUpdate(ctx, orderID)
	if err != nil {
		if pkgdb.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.Metadata == nil {
		order.Metadata = types.JSONMap{}
	}
	return order, nil
}

// actingRoles returns the caller's roles that apply to order, most privileged first.
// Operators act on every order; chefs and customers only on their own.
func actingRoles(actor auth.Actor, order *models.Order) []enums.UserRole {
	out := []enums.UserRole{}
	if actor.Has(enums.RoleAdmin) {
		out = append(out, enums.RoleAdmin)
	}
	if actor.Has(enums.RoleStaff) {
		out = append(out, enums.RoleStaff)
	}
	if actor.Has(enums.RoleChef) && order.ChefID == actor.UserID {
		out = append(out, enums.RoleChef)
	}
	if actor.Has(enums.RoleCustomer) && order.CustomerID == actor.UserID {
		out = append(out, enums.RoleCustomer)
	}
	return out
}

func noteTypeAllowed(role enums.UserRole, noteType enums.OrderNoteType) bool {
	switch role {
	case enums.RoleAdmin, enums.RoleStaff:
		return true
	case enums.RoleChef:
		return noteType == enums.OrderNoteChef
	case enums.RoleCustomer:
		return noteType == enums.OrderNoteCustomer
	}
	return false
}

func changedFields(input UpdateInput) []string {
	fields := []string{}
	if input.DeliveryAddress != nil {
		fields = append(fields, "delivery_address")
	}
	if input.SpecialInstructions != nil {
		fields = append(fields, "special_instructions")
	}
	if input.DeliveryTime != nil {
		fields = append(fields, "delivery_time")
	}
	if input.EstimatedPrepTime != nil {
		fields = append(fields, "estimated_prep_time")
	}
	if input.ChefNotes != nil {
		fields = append(fields, "chef_notes")
	}
	return fields
}

func validateItems(items types.OrderItems) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order requires at least one item")
	}
	for i, item := range items {
		if item.DishID == uuid.Nil || strings.TrimSpace(item.Name) == "" {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d requires dish id and name", i)
		}
		if item.Quantity < 1 {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d quantity must be positive", i)
		}
		if item.UnitPrice.LessThan(decimal.Zero) {
			return pkgerrors.Newf(pkgerrors.CodeValidation, "item %d price cannot be negative", i)
		}
	}
	return nil
}

func requireActor(actor auth.Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return nil
}

func errNotOwner() error {
	return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to caller")
}

// asDependency keeps typed errors and wraps everything else as a dependency failure.
func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func actorRef(userID uuid.UUID, role enums.UserRole) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: userID, Role: string(role)}
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	v := strings.TrimSpace(*value)
	if v == "" {
		return nil
	}
	return &v
}

var orderNumberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newOrderNumber builds CN-YYYYMMDD-XXXXXX from the date and random bytes.
func newOrderNumber(now time.Time) string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("CN-%s-%06d", now.Format("20060102"), now.UnixNano()%1_000_000)
	}
	return fmt.Sprintf("CN-%s-%s", now.Format("20060102"), orderNumberEncoding.EncodeToString(buf)[:6])
}
