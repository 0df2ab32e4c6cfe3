package types

import (
	"time"

	"github.com/google/uuid"
)

type SenderType string

const (
	SenderUser   SenderType = "user"
	SenderAdmin  SenderType = "admin"
	SenderSystem SenderType = "system"
)

type MessageType string

const (
	MessageText    MessageType = "text"
	MessageSystem  MessageType = "system"
	MessageHandoff MessageType = "handoff"
	MessageFile    MessageType = "file"
)

// RedactedContent replaces the body of a soft-deleted message. The row stays
// so ordering and read receipts keep their integrity.
const RedactedContent = "[message removed]"

type Message struct {
	ID             uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID   `gorm:"type:uuid;not null;index:idx_message_conversation_created,priority:1;column:conversation_id" json:"conversation_id"`
	SenderType     SenderType  `gorm:"not null;column:sender_type" json:"sender_type"`
	SenderID       *uuid.UUID  `gorm:"type:uuid;column:sender_id" json:"sender_id,omitempty"`
	Content        string      `gorm:"not null;column:content" json:"content"`
	MessageType    MessageType `gorm:"not null;column:message_type" json:"message_type"`
	ReadAt         *time.Time  `gorm:"column:read_at" json:"read_at,omitempty"`
	Deleted        bool        `gorm:"not null;default:false;column:deleted" json:"deleted"`
	CreatedAt      time.Time   `gorm:"not null;index:idx_message_conversation_created,priority:2" json:"created_at"`
}

func (Message) TableName() string {
	return "message"
}
