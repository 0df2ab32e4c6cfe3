package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ConversationStatus string

const (
	ConversationOpen        ConversationStatus = "open"
	ConversationInProgress  ConversationStatus = "in_progress"
	ConversationClosed      ConversationStatus = "closed"
	ConversationTransferred ConversationStatus = "transferred"
)

type ConversationType string

const (
	ConversationSupport   ConversationType = "support"
	ConversationAIHandoff ConversationType = "ai_handoff"
)

type ConversationPriority string

const (
	PriorityLow    ConversationPriority = "low"
	PriorityNormal ConversationPriority = "normal"
	PriorityHigh   ConversationPriority = "high"
	PriorityUrgent ConversationPriority = "urgent"
)

func ValidStatus(s ConversationStatus) bool {
	switch s {
	case ConversationOpen, ConversationInProgress, ConversationClosed, ConversationTransferred:
		return true
	}
	return false
}

func ValidPriority(p ConversationPriority) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type Conversation struct {
	ID                uuid.UUID            `gorm:"type:uuid;primaryKey" json:"id"`
	OwnerUserID       uuid.UUID            `gorm:"type:uuid;not null;index;column:owner_user_id" json:"owner_user_id"`
	AssignedAdminID   *uuid.UUID           `gorm:"type:uuid;index;column:assigned_admin_id" json:"assigned_admin_id"`
	Status            ConversationStatus   `gorm:"not null;index;column:status" json:"status"`
	Type              ConversationType     `gorm:"not null;column:type" json:"type"`
	Priority          ConversationPriority `gorm:"not null;index;column:priority" json:"priority"`
	Subject           string               `gorm:"not null;column:subject" json:"subject"`
	Context           datatypes.JSON       `gorm:"column:context" json:"context,omitempty"`
	TransferredFromID *uuid.UUID           `gorm:"type:uuid;column:transferred_from_conversation_id" json:"transferred_from_conversation_id,omitempty"`
	CreatedAt         time.Time            `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time            `gorm:"not null" json:"updated_at"`
}

func (Conversation) TableName() string {
	return "conversation"
}

// HandoffContext is the provenance snapshot written once when an AI chat is
// escalated to a human. It is never revised after the conversation exists.
type HandoffContext struct {
	Reason       string           `json:"reason"`
	Intent       string           `json:"intent,omitempty"`
	Category     string           `json:"category,omitempty"`
	Summary      string           `json:"summary,omitempty"`
	AITranscript []TranscriptTurn `json:"aiTranscript"`
}

type TranscriptTurn struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}
