package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type NotificationPreferenceRepo interface {
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.NotificationPreference, error)
	Upsert(ctx context.Context, tx *gorm.DB, pref *types.NotificationPreference) error
}

type notificationPreferenceRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNotificationPreferenceRepo(db *gorm.DB, baseLog *logger.Logger) NotificationPreferenceRepo {
	repoLog := baseLog.With("repo", "NotificationPreferenceRepo")
	return &notificationPreferenceRepo{db: db, log: repoLog}
}

func (nr *notificationPreferenceRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.NotificationPreference, error) {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}
	var result types.NotificationPreference
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&result).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &result, nil
}

func (nr *notificationPreferenceRepo) Upsert(ctx context.Context, tx *gorm.DB, pref *types.NotificationPreference) error {
	transaction := tx
	if transaction == nil {
		transaction = nr.db
	}
	return transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"browser_enabled", "sound_enabled", "toast_enabled", "updated_at",
			}),
		}).
		Create(pref).Error
}
