package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type MessageRepo interface {
	Create(ctx context.Context, tx *gorm.DB, message *types.Message) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Message, error)
	ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.Message, error)
	MarkRead(ctx context.Context, tx *gorm.DB, messageID uuid.UUID, at time.Time) (bool, error)
	MarkAllUnreadByOthers(ctx context.Context, tx *gorm.DB, conversationID, readerID uuid.UUID, at time.Time) (int64, error)
	CountUnreadForUser(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID) (int64, error)
	Redact(ctx context.Context, tx *gorm.DB, messageID uuid.UUID) error
	FirstAdminMessageTimes(ctx context.Context, tx *gorm.DB, conversationIDs []uuid.UUID) (map[uuid.UUID]time.Time, error)
}

type messageRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMessageRepo(db *gorm.DB, baseLog *logger.Logger) MessageRepo {
	repoLog := baseLog.With("repo", "MessageRepo")
	return &messageRepo{db: db, log: repoLog}
}

func (mr *messageRepo) Create(ctx context.Context, tx *gorm.DB, message *types.Message) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	return transaction.WithContext(ctx).Create(message).Error
}

func (mr *messageRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var result types.Message
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

// ListByConversation returns stable chronological order. Ties on created_at
// (possible at timestamp resolution under concurrent writers on different
// conversations) are broken by id so repeated reads never reorder.
func (mr *messageRepo) ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.Message, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var results []*types.Message
	if err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

// MarkRead stamps read_at only when still null, which makes the call
// idempotent without a read-modify-write race. Returns whether this call set
// the timestamp.
func (mr *messageRepo) MarkRead(ctx context.Context, tx *gorm.DB, messageID uuid.UUID, at time.Time) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	result := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("id = ? AND read_at IS NULL", messageID).
		Update("read_at", at)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (mr *messageRepo) MarkAllUnreadByOthers(ctx context.Context, tx *gorm.DB, conversationID, readerID uuid.UUID, at time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	result := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("conversation_id = ? AND read_at IS NULL AND (sender_id IS NULL OR sender_id <> ?)", conversationID, readerID).
		Update("read_at", at)
	return result.RowsAffected, result.Error
}

func (mr *messageRepo) CountUnreadForUser(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("conversation_id = ? AND read_at IS NULL AND (sender_id IS NULL OR sender_id <> ?)", conversationID, userID).
		Count(&count).Error
	return count, err
}

func (mr *messageRepo) Redact(ctx context.Context, tx *gorm.DB, messageID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Message{}).
		Where("id = ?", messageID).
		Updates(map[string]any{
			"content": types.RedactedContent,
			"deleted": true,
		}).Error
}

func (mr *messageRepo) FirstAdminMessageTimes(ctx context.Context, tx *gorm.DB, conversationIDs []uuid.UUID) (map[uuid.UUID]time.Time, error) {
	transaction := tx
	if transaction == nil {
		transaction = mr.db
	}
	times := make(map[uuid.UUID]time.Time)
	if len(conversationIDs) == 0 {
		return times, nil
	}
	var rows []struct {
		ConversationID uuid.UUID
		First          time.Time
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Message{}).
		Select("conversation_id, min(created_at) as first").
		Where("conversation_id IN ? AND sender_type = ?", conversationIDs, types.SenderAdmin).
		Group("conversation_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		times[row.ConversationID] = row.First
	}
	return times, nil
}
