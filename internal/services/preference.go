package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type PreferenceUpdateInput struct {
	BrowserEnabled *bool `json:"browserEnabled"`
	SoundEnabled   *bool `json:"soundEnabled"`
	ToastEnabled   *bool `json:"toastEnabled"`
}

type PreferenceService interface {
	Get(ctx context.Context) (*types.NotificationPreference, error)
	Update(ctx context.Context, input PreferenceUpdateInput) (*types.NotificationPreference, error)
}

type preferenceService struct {
	db       *gorm.DB
	log      *logger.Logger
	prefRepo repos.NotificationPreferenceRepo
}

func NewPreferenceService(db *gorm.DB, log *logger.Logger, prefRepo repos.NotificationPreferenceRepo) PreferenceService {
	serviceLog := log.With("service", "PreferenceService")
	return &preferenceService{db: db, log: serviceLog, prefRepo: prefRepo}
}

func (ps *preferenceService) Get(ctx context.Context) (*types.NotificationPreference, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}
	pref, err := ps.prefRepo.GetByUserID(ctx, nil, rd.UserID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = types.DefaultNotificationPreference(rd.UserID)
	}
	return pref, nil
}

func (ps *preferenceService) Update(ctx context.Context, input PreferenceUpdateInput) (*types.NotificationPreference, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}
	if input.BrowserEnabled == nil && input.SoundEnabled == nil && input.ToastEnabled == nil {
		return nil, apierr.Validation("no preference updates provided")
	}

	pref, err := ps.prefRepo.GetByUserID(ctx, nil, rd.UserID)
	if err != nil {
		return nil, err
	}
	if pref == nil {
		pref = types.DefaultNotificationPreference(rd.UserID)
	}
	if input.BrowserEnabled != nil {
		pref.BrowserEnabled = *input.BrowserEnabled
	}
	if input.SoundEnabled != nil {
		pref.SoundEnabled = *input.SoundEnabled
	}
	if input.ToastEnabled != nil {
		pref.ToastEnabled = *input.ToastEnabled
	}
	pref.UpdatedAt = time.Now().UTC()

	if err := ps.prefRepo.Upsert(ctx, nil, pref); err != nil {
		return nil, err
	}
	return pref, nil
}
