package chat

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/auth"
	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

// OrderUpdate is a status message posted into an order's chat by the lifecycle engine.
// ChatID is nil until the order's chat exists.
type OrderUpdate struct {
	OrderID     uuid.UUID
	OrderNumber string
	CustomerID  uuid.UUID
	ChefID      uuid.UUID
	ChatID      *uuid.UUID
	SenderID    uuid.UUID
	Content     string
	Metadata    map[string]any
}

// Post is a server-authored message written inside the caller's transaction.
type Post struct {
	ChatID   uuid.UUID
	SenderID uuid.UUID
	Type     enums.MessageType
	Content  string
	Metadata map[string]any
}

// SupportChat describes the conversation opened for a new support case.
type SupportChat struct {
	CaseID    uuid.UUID
	UserID    uuid.UUID
	AIAgentID uuid.UUID
	Subject   string
}

type CreateConversationInput struct {
	Actor          auth.Actor
	ParticipantIDs []uuid.UUID
	Metadata       map[string]any
}

type SendMessageInput struct {
	Actor    auth.Actor
	ChatID   uuid.UUID
	Type     enums.MessageType
	Content  string
	FileURL  *string
	FileType *string
	FileName *string
	FileSize *int64
	Metadata map[string]any
}

// DirectMessageInput sends to a single recipient, creating the direct chat on first use.
type DirectMessageInput struct {
	Actor       auth.Actor
	RecipientID uuid.UUID
	Type        enums.MessageType
	Content     string
	FileURL     *string
	FileType    *string
	FileName    *string
	FileSize    *int64
	Metadata    map[string]any
}

type ListMessagesInput struct {
	Actor  auth.Actor
	ChatID uuid.UUID
	Limit  int
	Offset int
}

type ParticipantDTO struct {
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

type ChatDTO struct {
	ID            uuid.UUID        `json:"id"`
	Kind          enums.ChatKind   `json:"kind"`
	OrderID       *uuid.UUID       `json:"order_id,omitempty"`
	SupportCaseID *uuid.UUID       `json:"support_case_id,omitempty"`
	Participants  []ParticipantDTO `json:"participants"`
	Metadata      types.JSONMap    `json:"metadata,omitempty"`
	LastMessageAt *time.Time       `json:"last_message_at,omitempty"`
	CreatedAt     time.Time        `json:"created_at"`
}

// ConversationSummary is a chat list row with its latest message and the caller's unread count.
type ConversationSummary struct {
	ChatDTO
	LastMessage *MessageDTO `json:"last_message,omitempty"`
	UnreadCount int64       `json:"unread_count"`
}

type ConversationList struct {
	Conversations []ConversationSummary `json:"conversations"`
	Meta          types.PageMeta        `json:"meta"`
}

type MessageDTO struct {
	ID        uuid.UUID         `json:"id"`
	ChatID    uuid.UUID         `json:"chat_id"`
	SenderID  uuid.UUID         `json:"sender_id"`
	Type      enums.MessageType `json:"message_type"`
	Content   string            `json:"content"`
	FileURL   *string           `json:"file_url,omitempty"`
	FileType  *string           `json:"file_type,omitempty"`
	FileName  *string           `json:"file_name,omitempty"`
	FileSize  *int64            `json:"file_size,omitempty"`
	Metadata  types.JSONMap     `json:"metadata,omitempty"`
	Reactions map[string]int    `json:"reactions"`
	IsRead    bool              `json:"is_read"`
	Edited    bool              `json:"edited"`
	Deleted   bool              `json:"deleted"`
	EditedAt  *time.Time        `json:"edited_at,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

type MessageList struct {
	Messages []MessageDTO `json:"messages"`
	Limit    int          `json:"limit"`
	Offset   int          `json:"offset"`
	HasMore  bool         `json:"has_more"`
}

func toChatDTO(c *models.Chat) ChatDTO {
	participants := make([]ParticipantDTO, len(c.Participants))
	for i, p := range c.Participants {
		participants[i] = ParticipantDTO{UserID: p.UserID, Role: p.Role, JoinedAt: p.JoinedAt}
	}
	return ChatDTO{
		ID:            c.ID,
		Kind:          c.Kind,
		OrderID:       c.OrderID,
		SupportCaseID: c.SupportCaseID,
		Participants:  participants,
		Metadata:      c.Metadata,
		LastMessageAt: c.LastMessageAt,
		CreatedAt:     c.CreatedAt,
	}
}

// toMessageDTO folds reactions into emoji counts. A message is read once any
// participant other than its sender has a read receipt for it.
func toMessageDTO(m *models.Message) MessageDTO {
	reactions := map[string]int{}
	for _, r := range m.Reactions {
		reactions[r.Emoji]++
	}
	read := false
	for _, r := range m.ReadCursors {
		if r.UserID != m.SenderID {
			read = true
			break
		}
	}
	dto := MessageDTO{
		ID:        m.ID,
		ChatID:    m.ChatID,
		SenderID:  m.SenderID,
		Type:      m.Type,
		Content:   m.Content,
		FileURL:   m.FileURL,
		FileType:  m.FileType,
		FileName:  m.FileName,
		FileSize:  m.FileSize,
		Metadata:  m.Metadata,
		Reactions: reactions,
		IsRead:    read,
		Edited:    m.EditedAt != nil,
		Deleted:   m.DeletedAt != nil,
		EditedAt:  m.EditedAt,
		CreatedAt: m.CreatedAt,
	}
	if dto.Deleted {
		dto.Content = ""
		dto.FileURL, dto.FileType, dto.FileName, dto.FileSize = nil, nil, nil, nil
		dto.Metadata = nil
	}
	return dto
}
