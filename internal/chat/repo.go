package chat

import (
	"context"
	"time"

	"github.com/cribnosh/cribnosh-backend/pkg/db/models"
	"github.com/cribnosh/cribnosh-backend/pkg/enums"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository defines persistence for chats, participants, messages and receipts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateChat(ctx context.Context, chat *models.Chat) error
	FindChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	FindChatByOrder(ctx context.Context, orderID uuid.UUID) (*models.Chat, error)
	FindDirectChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, error)
	ListChatsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Chat, error)
	CountChatsForUser(ctx context.Context, userID uuid.UUID) (int64, error)
	TouchChat(ctx context.Context, chatID uuid.UUID, at time.Time) error
	AddParticipant(ctx context.Context, participant *models.ChatParticipant) error
	RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) error

	InsertMessage(ctx context.Context, message *models.Message) error
	FindMessage(ctx context.Context, chatID, messageID uuid.UUID) (*models.Message, error)
	SaveMessage(ctx context.Context, message *models.Message) error
	ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]models.Message, error)
	LatestMessage(ctx context.Context, chatID uuid.UUID) (*models.Message, error)
	UnreadCounts(ctx context.Context, userID uuid.UUID, chatIDs []uuid.UUID) (map[uuid.UUID]int64, error)

	AddReaction(ctx context.Context, reaction *models.MessageReaction) error
	RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error)
	MarkRead(ctx context.Context, chatID, userID uuid.UUID, upTo, at time.Time) (int64, error)

	SetSupportLastMessage(ctx context.Context, caseID uuid.UUID, preview string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// CreateChat inserts the chat together with its participants.
func (r *repository) CreateChat(ctx context.Context, chat *models.Chat) error {
	return r.db.WithContext(ctx).Create(chat).Error
}

func (r *repository) FindChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	if err := r.db.WithContext(ctx).Preload("Participants").First(&chat, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *repository) FindChatByOrder(ctx context.Context, orderID uuid.UUID) (*models.Chat, error) {
	var chat models.Chat
	err := r.db.WithContext(ctx).
		Preload("Participants").
		Where("order_id = ? AND kind = ?", orderID, enums.ChatKindOrder).
		Order("created_at ASC").
		First(&chat).Error
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

// FindDirectChat returns the two-person direct chat between a and b.
func (r *repository) FindDirectChat(ctx context.Context, a, b uuid.UUID) (*models.Chat, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Table("chats").
		Select("chats.id").
		Joins("JOIN chat_participants pa ON pa.chat_id = chats.id AND pa.user_id = ?", a).
		Joins("JOIN chat_participants pb ON pb.chat_id = chats.id AND pb.user_id = ?", b).
		Where("chats.kind = ?", enums.ChatKindDirect).
		Where("(SELECT COUNT(*) FROM chat_participants pc WHERE pc.chat_id = chats.id) = 2").
		Order("chats.created_at ASC").
		Limit(1).
		Pluck("chats.id", &ids).Error
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return r.FindChat(ctx, ids[0])
}

func (r *repository) userChats(ctx context.Context, userID uuid.UUID) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id IN (?)", r.db.Table("chat_participants").Select("chat_id").Where("user_id = ?", userID))
}

func (r *repository) ListChatsForUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.userChats(ctx, userID).
		Preload("Participants").
		Order("COALESCE(last_message_at, created_at) DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&chats).Error
	if err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *repository) CountChatsForUser(ctx context.Context, userID uuid.UUID) (int64, error) {
	var total int64
	if err := r.userChats(ctx, userID).Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (r *repository) TouchChat(ctx context.Context, chatID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Chat{}).
		Where("id = ?", chatID).
		Update("last_message_at", at).Error
}

func (r *repository) AddParticipant(ctx context.Context, participant *models.ChatParticipant) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "chat_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"role"}),
		}).
		Create(participant).Error
}

func (r *repository) RemoveParticipant(ctx context.Context, chatID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("chat_id = ? AND user_id = ?", chatID, userID).
		Delete(&models.ChatParticipant{}).Error
}

func (r *repository) InsertMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Omit("Reactions", "ReadCursors").Create(message).Error
}

func (r *repository) FindMessage(ctx context.Context, chatID, messageID uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions").
		Preload("ReadCursors").
		Where("id = ? AND chat_id = ?", messageID, chatID).
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

func (r *repository) SaveMessage(ctx context.Context, message *models.Message) error {
	return r.db.WithContext(ctx).Omit("Reactions", "ReadCursors").Save(message).Error
}

// ListMessages pages newest first.
func (r *repository) ListMessages(ctx context.Context, chatID uuid.UUID, limit, offset int) ([]models.Message, error) {
	var messages []models.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions").
		Preload("ReadCursors").
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) LatestMessage(ctx context.Context, chatID uuid.UUID) (*models.Message, error) {
	var message models.Message
	err := r.db.WithContext(ctx).
		Preload("Reactions").
		Preload("ReadCursors").
		Where("chat_id = ?", chatID).
		Order("created_at DESC").
		Order("id DESC").
		First(&message).Error
	if err != nil {
		return nil, err
	}
	return &message, nil
}

// UnreadCounts counts live messages from others with no receipt from userID, per chat.
func (r *repository) UnreadCounts(ctx context.Context, userID uuid.UUID, chatIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	out := make(map[uuid.UUID]int64, len(chatIDs))
	if len(chatIDs) == 0 {
		return out, nil
	}
	var rows []struct {
		ChatID uuid.UUID
		Total  int64
	}
	err := r.db.WithContext(ctx).
		Table("messages m").
		Select("m.chat_id AS chat_id, COUNT(*) AS total").
		Where("m.chat_id IN ?", chatIDs).
		Where("m.sender_id <> ?", userID).
		Where("m.deleted_at IS NULL").
		Where("NOT EXISTS (SELECT 1 FROM message_reads r WHERE r.message_id = m.id AND r.user_id = ?)", userID).
		Group("m.chat_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ChatID] = row.Total
	}
	return out, nil
}

func (r *repository) AddReaction(ctx context.Context, reaction *models.MessageReaction) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(reaction).Error
}

func (r *repository) RemoveReaction(ctx context.Context, messageID, userID uuid.UUID, emoji string) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("message_id = ? AND user_id = ? AND emoji = ?", messageID, userID, emoji).
		Delete(&models.MessageReaction{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// MarkRead writes receipts for every live message from others created at or before upTo.
func (r *repository) MarkRead(ctx context.Context, chatID, userID uuid.UUID, upTo, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Exec(
		`INSERT INTO message_reads (message_id, user_id, read_at)
		SELECT id, ?, ? FROM messages
		WHERE chat_id = ? AND sender_id <> ? AND deleted_at IS NULL AND created_at <= ?
		ON CONFLICT (message_id, user_id) DO NOTHING`,
		userID, at, chatID, userID, upTo,
	)
	if res.Error != nil {
		return 0, res.Error
	}
	return res.RowsAffected, nil
}

func (r *repository) SetSupportLastMessage(ctx context.Context, caseID uuid.UUID, preview string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.SupportCase{}).
		Where("id = ?", caseID).
		Updates(map[string]any{"last_message": preview, "updated_at": at}).Error
}
