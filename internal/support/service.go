package support

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"fmt"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cribnosh/cribnosh-backend/internal/adminlogs"
	"github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/config"
	pkgdb "github.com/cribnosh/cribnosh-backend/pkg/db"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox"
	"github.com/cribnosh/cribnosh-backend/pkg/outbox/payloads"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	maxSubjectLength    = 200
	maxMessageLength    = 5000
	maxAttachments      = 10
	defaultCasesLimit   = 10
	maxCasesLimit       = 50
	referenceAttempts   = 3
	referenceConstraint = "support_cases_reference_key"
)

type Service interface {
	CreateCase(ctx context.Context, input CreateCaseInput) (*CaseDTO, error)
	ListCases(ctx context.Context, input ListCasesInput) (*CaseList, error)
	GetCase(ctx context.Context, actor auth.Actor, caseID uuid.UUID) (*CaseDTO, error)
	AssignAgent(ctx context.Context, input AssignInput) (*CaseDTO, error)
	UpdateStatus(ctx context.Context, input StatusInput) (*CaseDTO, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// chatWriter is the slice of the chat service support conversations need.
type chatWriter interface {
	OpenSupportChat(ctx context.Context, tx *gorm.DB, support chat.SupportChat) (uuid.UUID, error)
	PostSystemMessage(ctx context.Context, tx *gorm.DB, post chat.Post) (*chat.MessageDTO, error)
	ReplaceParticipant(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, from *uuid.UUID, to uuid.UUID, role string) error
}

type adminRecorder interface {
	Record(ctx context.Context, entry adminlogs.Entry)
}

type userLookup interface {
	HasRole(ctx context.Context, id uuid.UUID, roles ...enums.UserRole) (bool, error)
}

type ServiceParams struct {
	Repo      *Repository
	Tx        txRunner
	Outbox    outboxPublisher
	Chat      chatWriter
	AdminLogs adminRecorder
	Users     userLookup
	Logger    *logger.Logger
	Config    config.SupportConfig
	Now       func() time.Time
}

type service struct {
	repo      *Repository
	tx        txRunner
	outbox    outboxPublisher
	chat      chatWriter
	adminLogs adminRecorder
	users     userLookup
	logg      *logger.Logger
	aiAgentID uuid.UUID
	prefix    string
	greeting  string
	now       func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("support repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Chat == nil {
		return nil, fmt.Errorf("chat writer required")
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
	aiAgentID, err := uuid.Parse(strings.TrimSpace(params.Config.AIAgentUserID))
	if err != nil {
		return nil, fmt.Errorf("support ai agent user id: %w", err)
	}
	prefix := strings.ToUpper(strings.TrimSpace(params.Config.ReferencePrefix))
	if prefix == "" {
		prefix = "SUP"
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:      params.Repo,
		tx:        params.Tx,
		outbox:    params.Outbox,
		chat:      params.Chat,
		adminLogs: params.AdminLogs,
		users:     params.Users,
		logg:      params.Logger,
		aiAgentID: aiAgentID,
		prefix:    prefix,
		greeting:  strings.TrimSpace(params.Config.Greeting),
		now:       params.Now,
	}, nil
}

func (s *service) CreateCase(ctx context.Context, input CreateCaseInput) (*CaseDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.Actor.Has(enums.RoleCustomer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only customers can open support cases")
	}
	subject := strings.TrimSpace(input.Subject)
	message := strings.TrimSpace(input.Message)
	switch {
	case subject == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "subject required")
	case utf8.RuneCountInString(subject) > maxSubjectLength:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "subject exceeds %d characters", maxSubjectLength)
	case message == "":
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message required")
	case utf8.RuneCountInString(message) > maxMessageLength:
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "message exceeds %d characters", maxMessageLength)
	}
	if !input.Category.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown category %q", input.Category)
	}
	priority := input.Priority
	if priority == "" {
		priority = enums.SupportPriorityMedium
	}
	if !priority.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown priority %q", priority)
	}
	attachments, err := validateAttachments(input.Attachments)
	if err != nil {
		return nil, err
	}
	if input.OrderID != nil {
		owns, err := s.repo.OrderBelongsTo(ctx, *input.OrderID, input.Actor.UserID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check order")
		}
		if !owns {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
	}

	var caseID uuid.UUID
	for attempt := 1; attempt <= referenceAttempts; attempt++ {
		now := s.now().UTC()
		c := &models.SupportCase{
			UserID:           input.Actor.UserID,
			Subject:          subject,
			Message:          message,
			Category:         input.Category,
			Priority:         priority,
			Status:           enums.SupportStatusOpen,
			OrderID:          input.OrderID,
			Attachments:      attachments,
			SupportReference: newReference(s.prefix),
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			return s.openCase(ctx, tx, c)
		})
		if err == nil {
			caseID = c.ID
			break
		}
		if !pkgdb.IsUniqueViolation(err, referenceConstraint) {
			return nil, asDependency(err, "create support case")
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "could not allocate a support reference")
	}

	created, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload support case")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{"case_id": caseID.String(), "reference": created.SupportReference})
	s.logg.Info(logCtx, "support case opened")
	dto := toCaseDTO(created)
	return &dto, nil
}

// openCase inserts the case, opens its chat with the AI agent, posts the customer's
// message and the greeting, and queues support.case_created.
func (s *service) openCase(ctx context.Context, tx *gorm.DB, c *models.SupportCase) error {
	repo := s.repo.WithTx(tx)
	if err := repo.Create(ctx, c); err != nil {
		return err
	}
	chatID, err := s.chat.OpenSupportChat(ctx, tx, chat.SupportChat{
		CaseID:    c.ID,
		UserID:    c.UserID,
		AIAgentID: s.aiAgentID,
		Subject:   c.Subject,
	})
	if err != nil {
		return err
	}
	if err := repo.UpdateFields(ctx, c.ID, map[string]any{"chat_id": chatID}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "link support chat")
	}
	c.ChatID = &chatID

	if _, err := s.chat.PostSystemMessage(ctx, tx, chat.Post{
		ChatID:   chatID,
		SenderID: c.UserID,
		Type:     enums.MessageTypeText,
		Content:  c.Message,
		Metadata: map[string]any{"support_reference": c.SupportReference},
	}); err != nil {
		return err
	}
	if s.greeting != "" {
		if _, err := s.chat.PostSystemMessage(ctx, tx, chat.Post{
			ChatID:   chatID,
			SenderID: s.aiAgentID,
			Type:     enums.MessageTypeText,
			Content:  s.greeting,
			Metadata: map[string]any{"support_reference": c.SupportReference, "automated": true},
		}); err != nil {
			return err
		}
	}

	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventSupportCaseCreated,
		AggregateType: enums.AggregateSupportCase,
		AggregateID:   c.ID,
		Actor:         &outbox.ActorRef{UserID: c.UserID, Role: string(enums.RoleCustomer)},
		Data: payloads.SupportCaseCreatedEvent{
			CaseID:    c.ID,
			UserID:    c.UserID,
			Reference: c.SupportReference,
			Category:  c.Category,
			Priority:  c.Priority,
			ChatID:    chatID,
		},
	})
}

func (s *service) ListCases(ctx context.Context, input ListCasesInput) (*CaseList, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if input.Status != nil && !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown status %q", *input.Status)
	}
	page := input.Page
	if page < 1 {
		page = 1
	}
	limit := input.Limit
	switch {
	case limit <= 0:
		limit = defaultCasesLimit
	case limit > maxCasesLimit:
		limit = maxCasesLimit
	}

	q := ListQuery{Status: input.Status, Limit: limit, Offset: (page - 1) * limit}
	if !input.Actor.IsOperator() {
		q.UserID = &input.Actor.UserID
	}
	rows, total, err := s.repo.List(ctx, q)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list support cases")
	}
	out := &CaseList{Cases: make([]CaseDTO, 0, len(rows)), Meta: types.NewPageMeta(page, limit, total)}
	for i := range rows {
		out.Cases = append(out.Cases, toCaseDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) GetCase(ctx context.Context, actor auth.Actor, caseID uuid.UUID) (*CaseDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	c, err := s.repo.FindByID(ctx, caseID)
	if err != nil {
		return nil, notFoundOr(err)
	}
	if c.UserID != actor.UserID && !actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not your support case")
	}
	dto := toCaseDTO(c)
	return &dto, nil
}

// AssignAgent hands the case to a human agent, who takes the AI placeholder's (or the
// previous agent's) seat in the case chat.
func (s *service) AssignAgent(ctx context.Context, input AssignInput) (*CaseDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.Actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only staff can assign support cases")
	}
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	isAgent, err := s.users.HasRole(ctx, input.AgentID, enums.RoleStaff, enums.RoleAdmin)
	if err != nil && !pkgdb.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}
	if !isAgent {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent must be an active staff or admin user")
	}

	var (
		userID  uuid.UUID
		changed bool
	)
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		c, err := repo.FindForUpdate(ctx, input.CaseID)
		if err != nil {
			return notFoundOr(err)
		}
		userID = c.UserID
		if c.Status == enums.SupportStatusClosed {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "closed cases cannot be assigned")
		}
		if c.AssignedAgentID != nil && *c.AssignedAgentID == input.AgentID {
			return nil
		}
		if c.ChatID == nil {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "support case has no chat")
		}
		previous := s.aiAgentID
		if c.AssignedAgentID != nil {
			previous = *c.AssignedAgentID
		}
		if err := s.chat.ReplaceParticipant(ctx, tx, *c.ChatID, &previous, input.AgentID, models.ParticipantRoleAgent); err != nil {
			return err
		}
		now := s.now().UTC()
		if err := repo.UpdateFields(ctx, c.ID, map[string]any{"assigned_agent_id": input.AgentID, "updated_at": now}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "assign agent")
		}
		if _, err := s.chat.PostSystemMessage(ctx, tx, chat.Post{
			ChatID:   *c.ChatID,
			SenderID: input.AgentID,
			Type:     enums.MessageTypeSystem,
			Content:  "A support agent has joined the conversation.",
			Metadata: map[string]any{"support_reference": c.SupportReference, "agent_id": input.AgentID.String()},
		}); err != nil {
			return err
		}
		changed = true
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSupportCaseAssigned,
			AggregateType: enums.AggregateSupportCase,
			AggregateID:   c.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.SupportCaseAssignedEvent{
				CaseID:  c.ID,
				UserID:  c.UserID,
				AgentID: input.AgentID,
				ChatID:  *c.ChatID,
			},
		})
	})
	if err != nil {
		return nil, asDependency(err, "assign support case")
	}
	if changed {
		s.adminLogs.Record(ctx, adminlogs.Entry{
			AdminID: input.Actor.UserID,
			UserID:  userID,
			Action:  "support_case_assigned",
			Details: map[string]any{"case_id": input.CaseID.String(), "agent_id": input.AgentID.String()},
		})
	}
	return s.GetCase(ctx, input.Actor, input.CaseID)
}

// UpdateStatus moves a case between open, resolved and closed. Operators may set any
// status; the owner may only close.
func (s *service) UpdateStatus(ctx context.Context, input StatusInput) (*CaseDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	if !input.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown status %q", input.Status)
	}

	var (
		from   enums.SupportStatus
		userID uuid.UUID
	)
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		c, err := repo.FindForUpdate(ctx, input.CaseID)
		if err != nil {
			return notFoundOr(err)
		}
		operator := input.Actor.IsOperator()
		owner := c.UserID == input.Actor.UserID
		switch {
		case !operator && !owner:
			return pkgerrors.New(pkgerrors.CodeForbidden, "not your support case")
		case !operator && input.Status != enums.SupportStatusClosed:
			return pkgerrors.New(pkgerrors.CodeForbidden, "customers can only close their cases")
		case c.Status == input.Status:
			return pkgerrors.Newf(pkgerrors.CodeStateConflict, "case is already %s", c.Status).
				WithDetails(map[string]any{"from": c.Status, "to": input.Status})
		}
		from = c.Status
		userID = c.UserID

		now := s.now().UTC()
		fields := map[string]any{"status": input.Status, "updated_at": now}
		switch input.Status {
		case enums.SupportStatusResolved:
			fields["resolved_at"] = now
		case enums.SupportStatusClosed:
			fields["closed_at"] = now
		case enums.SupportStatusOpen:
			fields["resolved_at"] = nil
			fields["closed_at"] = nil
		}
		if err := repo.UpdateFields(ctx, c.ID, fields); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update support case status")
		}
		if c.ChatID != nil {
			if _, err := s.chat.PostSystemMessage(ctx, tx, chat.Post{
				ChatID:   *c.ChatID,
				SenderID: input.Actor.UserID,
				Type:     enums.MessageTypeSystem,
				Content:  fmt.Sprintf("Support case %s marked %s.", c.SupportReference, input.Status),
				Metadata: map[string]any{"from_status": from, "to_status": input.Status},
			}); err != nil {
				return err
			}
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventSupportCaseStatus,
			AggregateType: enums.AggregateSupportCase,
			AggregateID:   c.ID,
			Actor:         actorRef(input.Actor),
			Data: payloads.SupportCaseStatusChangedEvent{
				CaseID:     c.ID,
				UserID:     c.UserID,
				FromStatus: from,
				ToStatus:   input.Status,
			},
		})
	})
	if err != nil {
		return nil, asDependency(err, "update support case status")
	}
	if input.Actor.IsOperator() {
		s.adminLogs.Record(ctx, adminlogs.Entry{
			AdminID: input.Actor.UserID,
			UserID:  userID,
			Action:  "support_case_" + string(input.Status),
			Details: map[string]any{"case_id": input.CaseID.String(), "from_status": from},
		})
	}
	return s.GetCase(ctx, input.Actor, input.CaseID)
}

func validateAttachments(raw []string) ([]string, error) {
	if len(raw) > maxAttachments {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "at most %d attachments", maxAttachments)
	}
	out := make([]string, 0, len(raw))
	for _, a := range raw {
		a = strings.TrimSpace(a)
		u, err := url.Parse(a)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "attachment %q is not a valid URL", a)
		}
		out = append(out, a)
	}
	return out, nil
}

var referenceEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// newReference builds PREFIX-XXXXXXXX from eight upper-case base32 characters.
func newReference(prefix string) string {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		buf = []byte(uuid.NewString()[:5])
	}
	return prefix + "-" + referenceEncoding.EncodeToString(buf)
}

func actorRef(actor auth.Actor) *outbox.ActorRef {
	return &outbox.ActorRef{UserID: actor.UserID, Role: string(actor.PrimaryRole())}
}

func requireActor(actor auth.Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

func notFoundOr(err error) error {
	if pkgdb.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "support case not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load support case")
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
