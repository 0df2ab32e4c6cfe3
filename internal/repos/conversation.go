package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

// QueueFilter composes as a conjunction; zero values mean "no constraint".
type QueueFilter struct {
	Status          types.ConversationStatus
	Priority        types.ConversationPriority
	AssignedAdminID *uuid.UUID
	Search          string
	Page            int
	Limit           int
}

type ConversationRepo interface {
	Create(ctx context.Context, tx *gorm.DB, conversation *types.Conversation) error
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error)
	Update(ctx context.Context, tx *gorm.DB, conversation *types.Conversation) error
	ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.Conversation, error)
	ListQueue(ctx context.Context, tx *gorm.DB, filter QueueFilter) ([]*types.Conversation, int64, error)
	FindActiveHandoffByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*types.Conversation, error)
	CountByStatus(ctx context.Context, tx *gorm.DB) (map[types.ConversationStatus]int64, error)
	CountOpenUnassigned(ctx context.Context, tx *gorm.DB) (int64, error)
	CountOpenUrgent(ctx context.Context, tx *gorm.DB) (int64, error)
	ListAssignedCreatedSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.Conversation, error)
}

type conversationRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConversationRepo(db *gorm.DB, baseLog *logger.Logger) ConversationRepo {
	repoLog := baseLog.With("repo", "ConversationRepo")
	return &conversationRepo{db: db, log: repoLog}
}

func (cr *conversationRepo) Create(ctx context.Context, tx *gorm.DB, conversation *types.Conversation) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	return transaction.WithContext(ctx).Create(conversation).Error
}

func (cr *conversationRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var result types.Conversation
	if err := transaction.WithContext(ctx).
		Where("id = ?", id).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (cr *conversationRepo) Update(ctx context.Context, tx *gorm.DB, conversation *types.Conversation) error {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	return transaction.WithContext(ctx).Save(conversation).Error
}

func (cr *conversationRepo) ListByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) ([]*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var results []*types.Conversation
	if err := transaction.WithContext(ctx).
		Where("owner_user_id = ?", ownerID).
		Order("updated_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (cr *conversationRepo) ListQueue(ctx context.Context, tx *gorm.DB, filter QueueFilter) ([]*types.Conversation, int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}

	query := transaction.WithContext(ctx).Model(&types.Conversation{})
	if filter.Status != "" {
		query = query.Where("conversation.status = ?", filter.Status)
	}
	if filter.Priority != "" {
		query = query.Where("conversation.priority = ?", filter.Priority)
	}
	if filter.AssignedAdminID != nil {
		query = query.Where("conversation.assigned_admin_id = ?", *filter.AssignedAdminID)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where(
			"conversation.subject LIKE ? OR conversation.id IN (?)",
			like,
			transaction.WithContext(ctx).
				Model(&types.Message{}).
				Select("conversation_id").
				Where("content LIKE ? AND deleted = ?", like, false),
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}

	var results []*types.Conversation
	if err := query.
		Order("updated_at DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&results).Error; err != nil {
		return nil, 0, err
	}
	return results, total, nil
}

func (cr *conversationRepo) FindActiveHandoffByOwner(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var result types.Conversation
	err := transaction.WithContext(ctx).
		Where("owner_user_id = ? AND type = ? AND status IN ?",
			ownerID,
			types.ConversationAIHandoff,
			[]types.ConversationStatus{types.ConversationOpen, types.ConversationInProgress}).
		Order("created_at DESC").
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (cr *conversationRepo) CountByStatus(ctx context.Context, tx *gorm.DB) (map[types.ConversationStatus]int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var rows []struct {
		Status types.ConversationStatus
		Count  int64
	}
	if err := transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	counts := make(map[types.ConversationStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

func (cr *conversationRepo) CountOpenUnassigned(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("status = ? AND assigned_admin_id IS NULL", types.ConversationOpen).
		Count(&count).Error
	return count, err
}

func (cr *conversationRepo) CountOpenUrgent(ctx context.Context, tx *gorm.DB) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Conversation{}).
		Where("status IN ? AND priority = ?",
			[]types.ConversationStatus{types.ConversationOpen, types.ConversationInProgress},
			types.PriorityUrgent).
		Count(&count).Error
	return count, err
}

func (cr *conversationRepo) ListAssignedCreatedSince(ctx context.Context, tx *gorm.DB, since time.Time) ([]*types.Conversation, error) {
	transaction := tx
	if transaction == nil {
		transaction = cr.db
	}
	var results []*types.Conversation
	if err := transaction.WithContext(ctx).
		Where("assigned_admin_id IS NOT NULL AND created_at >= ?", since).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
