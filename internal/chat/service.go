package chat

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
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
	maxContentLength     = 4000
	maxEmojiRunes        = 8
	previewRunes         = 140
	defaultMessagesLimit = 50
	maxMessagesLimit     = 100
	defaultChatsLimit    = 20
	maxChatsLimit        = 50
)

// Service manages conversations and messages.
type Service interface {
	CreateConversation(ctx context.Context, input CreateConversationInput) (*ChatDTO, error)
	FindOrCreateDirect(ctx context.Context, actor auth.Actor, otherID uuid.UUID) (*ChatDTO, error)
	ListConversations(ctx context.Context, actor auth.Actor, page, limit int) (*ConversationList, error)
	GetConversation(ctx context.Context, actor auth.Actor, chatID uuid.UUID) (*ChatDTO, error)

	SendMessage(ctx context.Context, input SendMessageInput) (*MessageDTO, error)
	SendDirectMessage(ctx context.Context, input DirectMessageInput) (*MessageDTO, error)
	ListMessages(ctx context.Context, input ListMessagesInput) (*MessageList, error)
	EditMessage(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID, content string) (*MessageDTO, error)
	DeleteMessage(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID) error
	React(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID, emoji string) (*MessageDTO, error)
	Unreact(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID, emoji string) (*MessageDTO, error)
	MarkRead(ctx context.Context, actor auth.Actor, chatID uuid.UUID, upTo *uuid.UUID) (int64, error)

	PostOrderUpdate(ctx context.Context, tx *gorm.DB, update OrderUpdate) (uuid.UUID, error)
	PostSystemMessage(ctx context.Context, tx *gorm.DB, post Post) (*MessageDTO, error)
	OpenSupportChat(ctx context.Context, tx *gorm.DB, support SupportChat) (uuid.UUID, error)
	ReplaceParticipant(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, from *uuid.UUID, to uuid.UUID, role string) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type userLookup interface {
	MissingIDs(ctx context.Context, want []uuid.UUID) ([]uuid.UUID, error)
}

type ServiceParams struct {
	Repo   Repository
	Tx     txRunner
	Outbox outboxPublisher
	Users  userLookup
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	users  userLookup
	logg   *logger.Logger
	now    func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("chat repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Users == nil {
		return nil, fmt.Errorf("user lookup required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		users:  params.Users,
		logg:   params.Logger,
		now:    params.Now,
	}, nil
}

// CreateConversation opens a chat between the actor and the given users. Asking for
// exactly one other user returns the existing direct chat when there is one.
func (s *service) CreateConversation(ctx context.Context, input CreateConversationInput) (*ChatDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	ids := uniqueIDs(append([]uuid.UUID{input.Actor.UserID}, input.ParticipantIDs...))
	if len(ids) < 2 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a conversation needs at least one other participant")
	}
	if err := s.requireUsers(ctx, ids); err != nil {
		return nil, err
	}
	if len(ids) == 2 && len(input.Metadata) == 0 {
		return s.findOrCreateDirect(ctx, ids[0], ids[1])
	}

	now := s.now().UTC()
	chat := &models.Chat{
		Kind:      enums.ChatKindDirect,
		Metadata:  types.JSONMap(input.Metadata).Clone(),
		CreatedAt: now,
	}
	for _, id := range ids {
		chat.Participants = append(chat.Participants, models.ChatParticipant{UserID: id, Role: models.ParticipantRoleMember, JoinedAt: now})
	}
	if err := s.repo.CreateChat(ctx, chat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create conversation")
	}
	dto := toChatDTO(chat)
	return &dto, nil
}

func (s *service) FindOrCreateDirect(ctx context.Context, actor auth.Actor, otherID uuid.UUID) (*ChatDTO, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if otherID == uuid.Nil || otherID == actor.UserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "recipient must be another user")
	}
	if err := s.requireUsers(ctx, []uuid.UUID{otherID}); err != nil {
		return nil, err
	}
	return s.findOrCreateDirect(ctx, actor.UserID, otherID)
}

func (s *service) findOrCreateDirect(ctx context.Context, a, b uuid.UUID) (*ChatDTO, error) {
	existing, err := s.repo.FindDirectChat(ctx, a, b)
	if err == nil {
		dto := toChatDTO(existing)
		return &dto, nil
	}
	if !pkgdb.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find direct chat")
	}
	now := s.now().UTC()
	chat := &models.Chat{
		Kind:      enums.ChatKindDirect,
		CreatedAt: now,
		Participants: []models.ChatParticipant{
			{UserID: a, Role: models.ParticipantRoleMember, JoinedAt: now},
			{UserID: b, Role: models.ParticipantRoleMember, JoinedAt: now},
		},
	}
	if err := s.repo.CreateChat(ctx, chat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create direct chat")
	}
	dto := toChatDTO(chat)
	return &dto, nil
}

func (s *service) ListConversations(ctx context.Context, actor auth.Actor, page, limit int) (*ConversationList, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	limit = clampLimit(limit, defaultChatsLimit, maxChatsLimit)

	total, err := s.repo.CountChatsForUser(ctx, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count conversations")
	}
	chats, err := s.repo.ListChatsForUser(ctx, actor.UserID, limit, (page-1)*limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list conversations")
	}
	ids := make([]uuid.UUID, len(chats))
	for i, c := range chats {
		ids[i] = c.ID
	}
	unread, err := s.repo.UnreadCounts(ctx, actor.UserID, ids)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count unread messages")
	}

	out := &ConversationList{
		Conversations: make([]ConversationSummary, 0, len(chats)),
		Meta:          types.NewPageMeta(page, limit, total),
	}
	for i := range chats {
		summary := ConversationSummary{ChatDTO: toChatDTO(&chats[i]), UnreadCount: unread[chats[i].ID]}
		last, err := s.repo.LatestMessage(ctx, chats[i].ID)
		switch {
		case err == nil:
			dto := toMessageDTO(last)
			summary.LastMessage = &dto
		case !pkgdb.IsNotFound(err):
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load last message")
		}
		out.Conversations = append(out.Conversations, summary)
	}
	return out, nil
}

func (s *service) GetConversation(ctx context.Context, actor auth.Actor, chatID uuid.UUID) (*ChatDTO, error) {
	chat, err := s.loadReadable(ctx, s.repo, actor, chatID)
	if err != nil {
		return nil, err
	}
	dto := toChatDTO(chat)
	return &dto, nil
}

func (s *service) SendMessage(ctx context.Context, input SendMessageInput) (*MessageDTO, error) {
	if err := requireActor(input.Actor); err != nil {
		return nil, err
	}
	msgType, err := validatePayload(input.Type, input.Content, input.FileURL, input.FileSize)
	if err != nil {
		return nil, err
	}

	var out MessageDTO
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		chat, err := s.loadParticipant(ctx, repo, input.Actor, input.ChatID)
		if err != nil {
			return err
		}
		message := &models.Message{
			ChatID:    chat.ID,
			SenderID:  input.Actor.UserID,
			Type:      msgType,
			Content:   strings.TrimSpace(input.Content),
			FileURL:   input.FileURL,
			FileType:  input.FileType,
			FileName:  input.FileName,
			FileSize:  input.FileSize,
			Metadata:  types.JSONMap(input.Metadata).Clone(),
			CreatedAt: s.now().UTC(),
		}
		if err := s.post(ctx, tx, chat, message); err != nil {
			return err
		}
		out = toMessageDTO(message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *service) SendDirectMessage(ctx context.Context, input DirectMessageInput) (*MessageDTO, error) {
	chat, err := s.FindOrCreateDirect(ctx, input.Actor, input.RecipientID)
	if err != nil {
		return nil, err
	}
	return s.SendMessage(ctx, SendMessageInput{
		Actor:    input.Actor,
		ChatID:   chat.ID,
		Type:     input.Type,
		Content:  input.Content,
		FileURL:  input.FileURL,
		FileType: input.FileType,
		FileName: input.FileName,
		FileSize: input.FileSize,
		Metadata: input.Metadata,
	})
}

func (s *service) ListMessages(ctx context.Context, input ListMessagesInput) (*MessageList, error) {
	if _, err := s.loadReadable(ctx, s.repo, input.Actor, input.ChatID); err != nil {
		return nil, err
	}
	limit := clampLimit(input.Limit, defaultMessagesLimit, maxMessagesLimit)
	offset := input.Offset
	if offset < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "offset must not be negative")
	}
	rows, err := s.repo.ListMessages(ctx, input.ChatID, limit+1, offset)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}
	out := &MessageList{Messages: make([]MessageDTO, 0, len(rows)), Limit: limit, Offset: offset}
	if len(rows) > limit {
		out.HasMore = true
		rows = rows[:limit]
	}
	for i := range rows {
		out.Messages = append(out.Messages, toMessageDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) EditMessage(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID, content string) (*MessageDTO, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content required")
	}
	if utf8.RuneCountInString(content) > maxContentLength {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "content exceeds %d characters", maxContentLength)
	}

	var out MessageDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		message, err := s.loadMessage(ctx, repo, actor, chatID, messageID)
		if err != nil {
			return err
		}
		if message.SenderID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the sender can edit a message")
		}
		if message.DeletedAt != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "message has been deleted")
		}
		if !message.Type.IsUserSendable() {
			return pkgerrors.New(pkgerrors.CodeValidation, "system messages cannot be edited")
		}
		now := s.now().UTC()
		message.Content = content
		message.EditedAt = &now
		if err := repo.SaveMessage(ctx, message); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "edit message")
		}
		out = toMessageDTO(message)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteMessage soft-deletes. Repeating the call on a deleted message succeeds.
func (s *service) DeleteMessage(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		message, err := s.loadMessage(ctx, repo, actor, chatID, messageID)
		if err != nil {
			return err
		}
		if message.SenderID != actor.UserID && !actor.Has(enums.RoleAdmin) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the sender or an admin can delete a message")
		}
		if message.DeletedAt != nil {
			return nil
		}
		now := s.now().UTC()
		message.DeletedAt = &now
		message.Content = ""
		if err := repo.SaveMessage(ctx, message); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete message")
		}
		return nil
	})
}

func (s *service) React(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID, emoji string) (*MessageDTO, error) {
	emoji, err := validateEmoji(emoji)
	if err != nil {
		return nil, err
	}
	return s.react(ctx, actor, chatID, messageID, func(repo Repository, message *models.Message) error {
		if message.DeletedAt != nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "message has been deleted")
		}
		return repo.AddReaction(ctx, &models.MessageReaction{
			MessageID: message.ID,
			UserID:    actor.UserID,
			Emoji:     emoji,
			CreatedAt: s.now().UTC(),
		})
	})
}

func (s *service) Unreact(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID, emoji string) (*MessageDTO, error) {
	emoji, err := validateEmoji(emoji)
	if err != nil {
		return nil, err
	}
	return s.react(ctx, actor, chatID, messageID, func(repo Repository, message *models.Message) error {
		_, err := repo.RemoveReaction(ctx, message.ID, actor.UserID, emoji)
		return err
	})
}

func (s *service) react(ctx context.Context, actor auth.Actor, chatID, messageID uuid.UUID, apply func(Repository, *models.Message) error) (*MessageDTO, error) {
	var out MessageDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.loadParticipant(ctx, repo, actor, chatID); err != nil {
			return err
		}
		message, err := repo.FindMessage(ctx, chatID, messageID)
		if err != nil {
			return notFoundOr(err, "message not found", "load message")
		}
		if err := apply(repo, message); err != nil {
			return asDependency(err, "update reaction")
		}
		reloaded, err := repo.FindMessage(ctx, chatID, messageID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reload message")
		}
		out = toMessageDTO(reloaded)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// MarkRead writes receipts for the actor up to and including upTo, or every message when nil.
func (s *service) MarkRead(ctx context.Context, actor auth.Actor, chatID uuid.UUID, upTo *uuid.UUID) (int64, error) {
	var marked int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if _, err := s.loadParticipant(ctx, repo, actor, chatID); err != nil {
			return err
		}
		now := s.now().UTC()
		cutoff := now
		if upTo != nil {
			message, err := repo.FindMessage(ctx, chatID, *upTo)
			if err != nil {
				return notFoundOr(err, "message not found", "load message")
			}
			cutoff = message.CreatedAt
		}
		n, err := repo.MarkRead(ctx, chatID, actor.UserID, cutoff, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark messages read")
		}
		marked = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// PostOrderUpdate writes a status update into the order's chat, creating the chat with
// the customer and chef on first use, and returns the chat id for the order row.
func (s *service) PostOrderUpdate(ctx context.Context, tx *gorm.DB, update OrderUpdate) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	chat, err := s.orderChat(ctx, repo, update)
	if err != nil {
		return uuid.Nil, err
	}
	message := &models.Message{
		ChatID:    chat.ID,
		SenderID:  update.SenderID,
		Type:      enums.MessageTypeStatusUpdate,
		Content:   update.Content,
		Metadata:  types.JSONMap(update.Metadata).Merge(map[string]any{"order_id": update.OrderID.String()}),
		CreatedAt: s.now().UTC(),
	}
	if err := s.post(ctx, tx, chat, message); err != nil {
		return uuid.Nil, err
	}
	return chat.ID, nil
}

func (s *service) orderChat(ctx context.Context, repo Repository, update OrderUpdate) (*models.Chat, error) {
	if update.ChatID != nil {
		chat, err := repo.FindChat(ctx, *update.ChatID)
		if err == nil {
			return chat, nil
		}
		if !pkgdb.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order chat")
		}
	}
	chat, err := repo.FindChatByOrder(ctx, update.OrderID)
	if err == nil {
		return chat, nil
	}
	if !pkgdb.IsNotFound(err) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "find order chat")
	}

	now := s.now().UTC()
	orderID := update.OrderID
	chat = &models.Chat{
		Kind:      enums.ChatKindOrder,
		OrderID:   &orderID,
		Metadata:  types.JSONMap{"order_number": update.OrderNumber},
		CreatedAt: now,
		Participants: []models.ChatParticipant{
			{UserID: update.CustomerID, Role: models.ParticipantRoleMember, JoinedAt: now},
			{UserID: update.ChefID, Role: models.ParticipantRoleMember, JoinedAt: now},
		},
	}
	if err := repo.CreateChat(ctx, chat); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create order chat")
	}
	return chat, nil
}

// PostSystemMessage writes a server-authored message of any type inside tx.
func (s *service) PostSystemMessage(ctx context.Context, tx *gorm.DB, post Post) (*MessageDTO, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if post.Type == "" {
		post.Type = enums.MessageTypeSystem
	}
	if !post.Type.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "unknown message type %q", post.Type)
	}
	content := strings.TrimSpace(post.Content)
	if content == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "content required")
	}
	repo := s.repo.WithTx(tx)
	chat, err := repo.FindChat(ctx, post.ChatID)
	if err != nil {
		return nil, notFoundOr(err, "chat not found", "load chat")
	}
	message := &models.Message{
		ChatID:    chat.ID,
		SenderID:  post.SenderID,
		Type:      post.Type,
		Content:   content,
		Metadata:  types.JSONMap(post.Metadata).Clone(),
		CreatedAt: s.now().UTC(),
	}
	if err := s.post(ctx, tx, chat, message); err != nil {
		return nil, err
	}
	dto := toMessageDTO(message)
	return &dto, nil
}

// OpenSupportChat creates the case conversation between the customer and the AI agent placeholder.
func (s *service) OpenSupportChat(ctx context.Context, tx *gorm.DB, support SupportChat) (uuid.UUID, error) {
	if tx == nil {
		return uuid.Nil, fmt.Errorf("transaction required")
	}
	now := s.now().UTC()
	caseID := support.CaseID
	chat := &models.Chat{
		Kind:          enums.ChatKindSupport,
		SupportCaseID: &caseID,
		Metadata:      types.JSONMap{"subject": support.Subject},
		CreatedAt:     now,
		Participants: []models.ChatParticipant{
			{UserID: support.UserID, Role: models.ParticipantRoleMember, JoinedAt: now},
			{UserID: support.AIAgentID, Role: models.ParticipantRoleAIAgent, JoinedAt: now},
		},
	}
	if err := s.repo.WithTx(tx).CreateChat(ctx, chat); err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create support chat")
	}
	return chat.ID, nil
}

// ReplaceParticipant swaps from for to. A nil from only adds to.
func (s *service) ReplaceParticipant(ctx context.Context, tx *gorm.DB, chatID uuid.UUID, from *uuid.UUID, to uuid.UUID, role string) error {
	if tx == nil {
		return fmt.Errorf("transaction required")
	}
	repo := s.repo.WithTx(tx)
	if from != nil && *from != to {
		if err := repo.RemoveParticipant(ctx, chatID, *from); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove participant")
		}
	}
	if err := repo.AddParticipant(ctx, &models.ChatParticipant{
		ChatID:   chatID,
		UserID:   to,
		Role:     role,
		JoinedAt: s.now().UTC(),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add participant")
	}
	return nil
}

// post inserts the message, bumps last_message_at, syncs the support case preview
// and queues chat.message_sent for the other participants.
func (s *service) post(ctx context.Context, tx *gorm.DB, chat *models.Chat, message *models.Message) error {
	repo := s.repo.WithTx(tx)
	if err := repo.InsertMessage(ctx, message); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert message")
	}
	if err := repo.TouchChat(ctx, chat.ID, message.CreatedAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "touch chat")
	}
	at := message.CreatedAt
	chat.LastMessageAt = &at

	preview := previewOf(message)
	if chat.SupportCaseID != nil {
		if err := repo.SetSupportLastMessage(ctx, *chat.SupportCaseID, preview, message.CreatedAt); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sync support case")
		}
	}

	recipients := make([]uuid.UUID, 0, len(chat.Participants))
	role := string(enums.RoleSystem)
	for _, p := range chat.Participants {
		if p.UserID == message.SenderID {
			role = p.Role
			continue
		}
		recipients = append(recipients, p.UserID)
	}
	event := outbox.DomainEvent{
		EventType:     enums.EventChatMessageSent,
		AggregateType: enums.AggregateChat,
		AggregateID:   chat.ID,
		Actor:         &outbox.ActorRef{UserID: message.SenderID, Role: role},
		Data: payloads.ChatMessageSentEvent{
			ChatID:      chat.ID,
			MessageID:   message.ID,
			SenderID:    message.SenderID,
			Recipients:  recipients,
			MessageType: message.Type,
			Preview:     preview,
			OrderID:     chat.OrderID,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit chat message event")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"chat_id":      chat.ID.String(),
		"message_id":   message.ID.String(),
		"message_type": message.Type,
	})
	s.logg.Debug(logCtx, "chat message posted")
	return nil
}

// loadReadable returns the chat when the actor participates or is an operator.
func (s *service) loadReadable(ctx context.Context, repo Repository, actor auth.Actor, chatID uuid.UUID) (*models.Chat, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	chat, err := repo.FindChat(ctx, chatID)
	if err != nil {
		return nil, notFoundOr(err, "chat not found", "load chat")
	}
	if !chat.HasParticipant(actor.UserID) && !actor.IsOperator() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this chat")
	}
	return chat, nil
}

func (s *service) loadParticipant(ctx context.Context, repo Repository, actor auth.Actor, chatID uuid.UUID) (*models.Chat, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	chat, err := repo.FindChat(ctx, chatID)
	if err != nil {
		return nil, notFoundOr(err, "chat not found", "load chat")
	}
	if !chat.HasParticipant(actor.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "not a participant of this chat")
	}
	return chat, nil
}

func (s *service) loadMessage(ctx context.Context, repo Repository, actor auth.Actor, chatID, messageID uuid.UUID) (*models.Message, error) {
	if _, err := s.loadReadable(ctx, repo, actor, chatID); err != nil {
		return nil, err
	}
	message, err := repo.FindMessage(ctx, chatID, messageID)
	if err != nil {
		return nil, notFoundOr(err, "message not found", "load message")
	}
	return message, nil
}

func (s *service) requireUsers(ctx context.Context, ids []uuid.UUID) error {
	missing, err := s.users.MissingIDs(ctx, ids)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check participants")
	}
	if len(missing) > 0 {
		unknown := make([]string, len(missing))
		for i, id := range missing {
			unknown[i] = id.String()
		}
		return pkgerrors.New(pkgerrors.CodeValidation, "unknown participants").
			WithDetails(map[string]any{"missing_user_ids": unknown})
	}
	return nil
}

func validatePayload(msgType enums.MessageType, content string, fileURL *string, fileSize *int64) (enums.MessageType, error) {
	if msgType == "" {
		msgType = enums.MessageTypeText
	}
	if !msgType.IsUserSendable() {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "message type %q cannot be sent by clients", msgType)
	}
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) > maxContentLength {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "content exceeds %d characters", maxContentLength)
	}
	switch msgType {
	case enums.MessageTypeText:
		if content == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "content required")
		}
	default:
		if fileURL == nil || strings.TrimSpace(*fileURL) == "" {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "file_url required for attachments")
		}
		if fileSize != nil && *fileSize < 0 {
			return "", pkgerrors.New(pkgerrors.CodeValidation, "file_size must not be negative")
		}
	}
	return msgType, nil
}

func validateEmoji(emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "emoji required")
	}
	if utf8.RuneCountInString(emoji) > maxEmojiRunes || strings.IndexFunc(emoji, unicode.IsSpace) >= 0 {
		return "", pkgerrors.New(pkgerrors.CodeValidation, "invalid emoji")
	}
	return emoji, nil
}

func previewOf(message *models.Message) string {
	text := message.Content
	if text == "" && message.FileName != nil {
		text = *message.FileName
	}
	if utf8.RuneCountInString(text) <= previewRunes {
		return text
	}
	return string([]rune(text)[:previewRunes])
}

func clampLimit(limit, fallback, ceiling int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > ceiling {
		return ceiling
	}
	return limit
}

func uniqueIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func requireActor(actor auth.Actor) error {
	if actor.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	return nil
}

func notFoundOr(err error, notFound, msg string) error {
	if pkgdb.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, notFound)
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}

func asDependency(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
