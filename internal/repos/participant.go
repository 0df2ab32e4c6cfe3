package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type ParticipantRepo interface {
	Ensure(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID, role types.ParticipantRole) (*types.Participant, error)
	Get(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID) (*types.Participant, error)
	AdvanceCursor(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID, at time.Time) error
	ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.Participant, error)
}

type participantRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewParticipantRepo(db *gorm.DB, baseLog *logger.Logger) ParticipantRepo {
	repoLog := baseLog.With("repo", "ParticipantRepo")
	return &participantRepo{db: db, log: repoLog}
}

func (pr *participantRepo) Ensure(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID, role types.ParticipantRole) (*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	participant := &types.Participant{
		ID:             uuid.New(),
		ConversationID: conversationID,
		UserID:         userID,
		Role:           role,
	}
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "conversation_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(participant).Error; err != nil {
		return nil, err
	}
	return pr.Get(ctx, transaction, conversationID, userID)
}

func (pr *participantRepo) Get(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID) (*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var result types.Participant
	err := transaction.WithContext(ctx).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

// AdvanceCursor moves last_read_at forward only; a stale client replaying an
// old cursor cannot rewind it.
func (pr *participantRepo) AdvanceCursor(ctx context.Context, tx *gorm.DB, conversationID, userID uuid.UUID, at time.Time) error {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	return transaction.WithContext(ctx).
		Model(&types.Participant{}).
		Where("conversation_id = ? AND user_id = ? AND (last_read_at IS NULL OR last_read_at < ?)", conversationID, userID, at).
		Update("last_read_at", at).Error
}

func (pr *participantRepo) ListByConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) ([]*types.Participant, error) {
	transaction := tx
	if transaction == nil {
		transaction = pr.db
	}
	var results []*types.Participant
	if err := transaction.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
