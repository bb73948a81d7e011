package chat

import (
	"net/http"

	"github.com/cribnosh/cribnosh-backend/api/middleware"
	"github.com/cribnosh/cribnosh-backend/api/responses"
	"github.com/cribnosh/cribnosh-backend/api/validators"
	internalchat "github.com/cribnosh/cribnosh-backend/internal/chat"
	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	pkgerrors "github.com/cribnosh/cribnosh-backend/pkg/errors"
	"github.com/cribnosh/cribnosh-backend/pkg/logger"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type chatHandler func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID uuid.UUID)

func withChat(svc internalchat.Service, logg *logger.Logger, next chatHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chat service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		chatID, err := validators.URLParamUUID(r, "chatId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next(w, r, actor, chatID)
	}
}

func withMessage(svc internalchat.Service, logg *logger.Logger, next func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID, messageID uuid.UUID)) http.HandlerFunc {
	return withChat(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID uuid.UUID) {
		messageID, err := validators.URLParamUUID(r, "messageId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		next(w, r, actor, chatID, messageID)
	})
}

// ListConversations returns the caller's chats, most recently active first.
func ListConversations(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chat service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := validators.ParseQueryInt(r, "page", 1, 1, 10000)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListConversations(r.Context(), actor, page, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

type createConversationRequest struct {
	ParticipantIDs []uuid.UUID    `json:"participant_ids" validate:"required,min=1,max=50"`
	Metadata       map[string]any `json:"metadata"`
}

func CreateConversation(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chat service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req createConversationRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		chat, err := svc.CreateConversation(r.Context(), internalchat.CreateConversationInput{
			Actor:          actor,
			ParticipantIDs: req.ParticipantIDs,
			Metadata:       req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, chat)
	}
}

func GetConversation(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withChat(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID uuid.UUID) {
		chat, err := svc.GetConversation(r.Context(), actor, chatID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, chat)
	})
}

// ListMessages pages newest first with limit/offset.
func ListMessages(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withChat(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID uuid.UUID) {
		limit, err := validators.ParseQueryInt(r, "limit", defaultPageSize, 1, maxPageSize)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		offset, err := validators.ParseQueryInt(r, "offset", 0, 0, 1<<20)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		list, err := svc.ListMessages(r.Context(), internalchat.ListMessagesInput{
			Actor:  actor,
			ChatID: chatID,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	})
}

type messageRequest struct {
	MessageType string         `json:"message_type" validate:"omitempty,oneof=text image file"`
	Content     string         `json:"content" validate:"max=4000"`
	FileURL     *string        `json:"file_url" validate:"omitempty,url"`
	FileType    *string        `json:"file_type" validate:"omitempty,max=100"`
	FileName    *string        `json:"file_name" validate:"omitempty,max=255"`
	FileSize    *int64         `json:"file_size" validate:"omitempty,gte=0"`
	Metadata    map[string]any `json:"metadata"`
}

func (m messageRequest) messageType() enums.MessageType {
	if m.MessageType == "" {
		return enums.MessageTypeText
	}
	return enums.MessageType(m.MessageType)
}

func SendMessage(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withChat(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID uuid.UUID) {
		var req messageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.SendMessage(r.Context(), internalchat.SendMessageInput{
			Actor:    actor,
			ChatID:   chatID,
			Type:     req.messageType(),
			Content:  req.Content,
			FileURL:  req.FileURL,
			FileType: req.FileType,
			FileName: req.FileName,
			FileSize: req.FileSize,
			Metadata: req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, msg)
	})
}

type directMessageRequest struct {
	RecipientID uuid.UUID `json:"recipient_id" validate:"required"`
	messageRequest
}

// SendDirectMessage reuses the caller's direct chat with the recipient,
// creating it on first contact.
func SendDirectMessage(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "chat service unavailable"))
			return
		}
		actor, err := middleware.RequireActor(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var req directMessageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.SendDirectMessage(r.Context(), internalchat.DirectMessageInput{
			Actor:       actor,
			RecipientID: req.RecipientID,
			Type:        req.messageType(),
			Content:     req.Content,
			FileURL:     req.FileURL,
			FileType:    req.FileType,
			FileName:    req.FileName,
			FileSize:    req.FileSize,
			Metadata:    req.Metadata,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteCreated(w, msg)
	}
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required,max=4000"`
}

func EditMessage(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withMessage(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID, messageID uuid.UUID) {
		var req editMessageRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.EditMessage(r.Context(), actor, chatID, messageID, req.Content)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, msg)
	})
}

func DeleteMessage(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withMessage(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID, messageID uuid.UUID) {
		if err := svc.DeleteMessage(r.Context(), actor, chatID, messageID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	})
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required,max=32"`
}

func React(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withMessage(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID, messageID uuid.UUID) {
		var req reactionRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		msg, err := svc.React(r.Context(), actor, chatID, messageID, validators.SanitizeString(req.Emoji, 32))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, msg)
	})
}

// Unreact takes the emoji from the query string since DELETE bodies are
// dropped by some proxies.
func Unreact(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withMessage(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID, messageID uuid.UUID) {
		emoji := validators.SanitizeString(r.URL.Query().Get("emoji"), 32)
		if emoji == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "emoji query parameter required"))
			return
		}
		msg, err := svc.Unreact(r.Context(), actor, chatID, messageID, emoji)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, msg)
	})
}

type markReadRequest struct {
	UpTo *uuid.UUID `json:"up_to"`
}

func MarkRead(svc internalchat.Service, logg *logger.Logger) http.HandlerFunc {
	return withChat(svc, logg, func(w http.ResponseWriter, r *http.Request, actor auth.Actor, chatID uuid.UUID) {
		var req markReadRequest
		if err := validators.DecodeOptionalJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		marked, err := svc.MarkRead(r.Context(), actor, chatID, req.UpTo)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int64{"marked": marked})
	})
}
