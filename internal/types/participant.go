package types

import (
	"time"

	"github.com/google/uuid"
)

type ParticipantRole string

const (
	ParticipantMember   ParticipantRole = "participant"
	ParticipantAdmin    ParticipantRole = "admin"
	ParticipantObserver ParticipantRole = "observer"
)

// Participant tracks a user's membership and read cursor on a conversation,
// independent of per-message read receipts.
type Participant struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_participant_conversation_user;column:conversation_id" json:"conversation_id"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_participant_conversation_user;column:user_id" json:"user_id"`
	Role           ParticipantRole `gorm:"not null;column:role" json:"role"`
	LastReadAt     *time.Time      `gorm:"column:last_read_at" json:"last_read_at,omitempty"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

func (Participant) TableName() string {
	return "participant"
}
