package types

import (
	"time"

	"github.com/google/uuid"
)

type NotificationPreference struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	UserID         uuid.UUID `gorm:"type:uuid;not null;uniqueIndex;column:user_id" json:"user_id"`
	// No column defaults: a stored false must stay false, and gorm skips
	// zero-valued fields on insert when a default tag is present.
	BrowserEnabled bool      `gorm:"not null;column:browser_enabled" json:"browserEnabled"`
	SoundEnabled   bool      `gorm:"not null;column:sound_enabled" json:"soundEnabled"`
	ToastEnabled   bool      `gorm:"not null;column:toast_enabled" json:"toastEnabled"`
	CreatedAt      time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time `gorm:"not null" json:"updated_at"`
}

func (NotificationPreference) TableName() string {
	return "notification_preference"
}

// DefaultNotificationPreference is what a user gets before they ever touch
// their settings: every channel on.
func DefaultNotificationPreference(userID uuid.UUID) *NotificationPreference {
	return &NotificationPreference{
		ID:             uuid.New(),
		UserID:         userID,
		BrowserEnabled: true,
		SoundEnabled:   true,
		ToastEnabled:   true,
	}
}
