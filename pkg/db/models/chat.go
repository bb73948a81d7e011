package models

import (
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/cribnosh/cribnosh-backend/pkg/types"
	"github.com/google/uuid"
)

// Chat is a conversation between participants, optionally tied to an order or support case.
type Chat struct {
	ID            uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Kind          enums.ChatKind    `gorm:"column:kind;type:text;not null;default:'direct'"`
	OrderID       *uuid.UUID        `gorm:"column:order_id;type:uuid"`
	SupportCaseID *uuid.UUID        `gorm:"column:support_case_id;type:uuid"`
	Metadata      types.JSONMap     `gorm:"column:metadata;type:jsonb;serializer:json"`
	LastMessageAt *time.Time        `gorm:"column:last_message_at"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
	Participants  []ChatParticipant `gorm:"foreignKey:ChatID;constraint:OnDelete:CASCADE"`
}

const (
	ParticipantRoleMember  = "member"
	ParticipantRoleAgent   = "agent"
	ParticipantRoleAIAgent = "ai_agent"
)

type ChatParticipant struct {
	ChatID   uuid.UUID `gorm:"column:chat_id;type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Role     string    `gorm:"column:role;type:text;not null;default:'member'"`
	JoinedAt time.Time `gorm:"column:joined_at;not null"`
}

// ParticipantIDs lists the user ids of every loaded participant.
func (c Chat) ParticipantIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(c.Participants))
	for _, p := range c.Participants {
		ids = append(ids, p.UserID)
	}
	return ids
}

// HasParticipant reports whether userID is among the loaded participants.
func (c Chat) HasParticipant(userID uuid.UUID) bool {
	for _, p := range c.Participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

type Message struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ChatID      uuid.UUID         `gorm:"column:chat_id;type:uuid;not null;index"`
	SenderID    uuid.UUID         `gorm:"column:sender_id;type:uuid;not null"`
	Type        enums.MessageType `gorm:"column:message_type;type:text;not null;default:'text'"`
	Content     string            `gorm:"column:content;not null"`
	FileURL     *string           `gorm:"column:file_url"`
	FileType    *string           `gorm:"column:file_type"`
	FileName    *string           `gorm:"column:file_name"`
	FileSize    *int64            `gorm:"column:file_size"`
	Metadata    types.JSONMap     `gorm:"column:metadata;type:jsonb;serializer:json"`
	EditedAt    *time.Time        `gorm:"column:edited_at"`
	DeletedAt   *time.Time        `gorm:"column:deleted_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;not null"`
	Reactions   []MessageReaction `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
	ReadCursors []MessageRead     `gorm:"foreignKey:MessageID;constraint:OnDelete:CASCADE"`
}

type MessageReaction struct {
	MessageID uuid.UUID `gorm:"column:message_id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	Emoji     string    `gorm:"column:emoji;type:text;primaryKey"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

type MessageRead struct {
	MessageID uuid.UUID `gorm:"column:message_id;type:uuid;primaryKey"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;primaryKey"`
	ReadAt    time.Time `gorm:"column:read_at;not null"`
}
