package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/locks"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type AppendMessageInput struct {
	ConversationID uuid.UUID
	Content        string
	MessageType    types.MessageType
}

// MessageService is the append-only message log per conversation, plus
// read-receipt state. Appends serialize on the conversation's keyed lock so
// created_at is monotone within a conversation.
type MessageService interface {
	Append(ctx context.Context, input AppendMessageInput) (*types.Message, error)
	AppendSystem(ctx context.Context, conversationID uuid.UUID, content string, messageType types.MessageType) (*types.Message, error)
	MarkRead(ctx context.Context, messageID uuid.UUID) (*types.Message, error)
	MarkAllRead(ctx context.Context, conversationID uuid.UUID) (int64, error)
	ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*types.Message, error)
	Delete(ctx context.Context, messageID uuid.UUID) error
	UnreadCount(ctx context.Context, conversationID uuid.UUID) (int64, error)
}

type messageService struct {
	db               *gorm.DB
	log              *logger.Logger
	conversationRepo repos.ConversationRepo
	messageRepo      repos.MessageRepo
	participantRepo  repos.ParticipantRepo
	lockManager      *locks.Manager
	rateLimiter      *RateLimiter
	notifier         ConversationNotifier
}

func NewMessageService(
	db *gorm.DB,
	log *logger.Logger,
	conversationRepo repos.ConversationRepo,
	messageRepo repos.MessageRepo,
	participantRepo repos.ParticipantRepo,
	lockManager *locks.Manager,
	rateLimiter *RateLimiter,
	notifier ConversationNotifier,
) MessageService {
	serviceLog := log.With("service", "MessageService")
	return &messageService{
		db:               db,
		log:              serviceLog,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		participantRepo:  participantRepo,
		lockManager:      lockManager,
		rateLimiter:      rateLimiter,
		notifier:         notifier,
	}
}

func (ms *messageService) Append(ctx context.Context, input AppendMessageInput) (*types.Message, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}

	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, apierr.Validation("message content must not be empty")
	}
	messageType := input.MessageType
	if messageType == "" {
		messageType = types.MessageText
	}
	switch messageType {
	case types.MessageText, types.MessageFile:
	case types.MessageSystem, types.MessageHandoff:
		return nil, apierr.Permission("message type %q is reserved for the system", messageType)
	default:
		return nil, apierr.Validation("invalid message type %q", input.MessageType)
	}

	unlock := ms.lockManager.Lock(input.ConversationID)
	defer unlock()

	conversation, err := ms.loadConversation(ctx, nil, input.ConversationID)
	if err != nil {
		return nil, err
	}
	if !rd.IsAdmin() && conversation.OwnerUserID != rd.UserID {
		return nil, apierr.Permission("conversation belongs to another user")
	}
	if conversation.Status == types.ConversationClosed || conversation.Status == types.ConversationTransferred {
		return nil, apierr.ClosedConversation("conversation %s is %s and accepts no new messages", conversation.ID, conversation.Status)
	}

	// The quota is checked after validation so rejected junk does not burn
	// budget, and before the write so message N+1 is the one that fails.
	if ms.rateLimiter != nil && !ms.rateLimiter.Allow(input.ConversationID, rd.UserID) {
		return nil, apierr.RateLimited("message quota exceeded for this conversation")
	}

	senderID := rd.UserID
	message := &types.Message{
		ID:             uuid.New(),
		ConversationID: input.ConversationID,
		SenderType:     senderTypeForRole(rd.Role),
		SenderID:       &senderID,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      time.Now().UTC(),
	}

	participantRole := types.ParticipantMember
	if rd.IsAdmin() {
		participantRole = types.ParticipantAdmin
	}

	err = ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ms.messageRepo.Create(ctx, tx, message); err != nil {
			return err
		}
		_, err := ms.participantRepo.Ensure(ctx, tx, input.ConversationID, rd.UserID, participantRole)
		return err
	})
	if err != nil {
		ms.log.Warn("Append message failed", "conversationID", input.ConversationID, "error", err)
		return nil, err
	}

	if ms.notifier != nil {
		unread, cErr := ms.messageRepo.CountUnreadForUser(ctx, nil, conversation.ID, conversation.OwnerUserID)
		if cErr != nil {
			ms.log.Warn("Unread count for notification failed", "error", cErr)
		}
		ms.notifier.MessageCreated(ctx, conversation, message, unread)
	}
	return message, nil
}

// AppendSystem writes an audit entry. It bypasses the closed check and the
// rate limiter: closure records and handoff markers must always land.
func (ms *messageService) AppendSystem(ctx context.Context, conversationID uuid.UUID, content string, messageType types.MessageType) (*types.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apierr.Validation("message content must not be empty")
	}
	if messageType != types.MessageSystem && messageType != types.MessageHandoff {
		return nil, apierr.Validation("system appends only accept system or handoff message types")
	}

	unlock := ms.lockManager.Lock(conversationID)
	defer unlock()

	conversation, err := ms.loadConversation(ctx, nil, conversationID)
	if err != nil {
		return nil, err
	}

	message := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderType:     types.SenderSystem,
		Content:        content,
		MessageType:    messageType,
		CreatedAt:      time.Now().UTC(),
	}
	if err := ms.messageRepo.Create(ctx, nil, message); err != nil {
		return nil, err
	}

	if ms.notifier != nil {
		unread, cErr := ms.messageRepo.CountUnreadForUser(ctx, nil, conversation.ID, conversation.OwnerUserID)
		if cErr != nil {
			ms.log.Warn("Unread count for notification failed", "error", cErr)
		}
		ms.notifier.MessageCreated(ctx, conversation, message, unread)
	}
	return message, nil
}

// MarkRead is idempotent: the first call stamps read_at, later calls leave
// the original timestamp alone.
func (ms *messageService) MarkRead(ctx context.Context, messageID uuid.UUID) (*types.Message, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}

	message, err := ms.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	conversation, err := ms.loadConversation(ctx, nil, message.ConversationID)
	if err != nil {
		return nil, err
	}
	if !rd.IsAdmin() && conversation.OwnerUserID != rd.UserID {
		return nil, apierr.Permission("conversation belongs to another user")
	}
	if message.SenderID != nil && *message.SenderID == rd.UserID {
		// Reading your own message is meaningless; leave receipts to others.
		return message, nil
	}

	if _, err := ms.messageRepo.MarkRead(ctx, nil, messageID, time.Now().UTC()); err != nil {
		return nil, err
	}
	return ms.loadMessage(ctx, messageID)
}

func (ms *messageService) MarkAllRead(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return 0, apierr.Permission("no authenticated principal")
	}

	conversation, err := ms.loadConversation(ctx, nil, conversationID)
	if err != nil {
		return 0, err
	}
	if !rd.IsAdmin() && conversation.OwnerUserID != rd.UserID {
		return 0, apierr.Permission("conversation belongs to another user")
	}

	now := time.Now().UTC()
	var marked int64
	err = ms.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		count, err := ms.messageRepo.MarkAllUnreadByOthers(ctx, tx, conversationID, rd.UserID, now)
		if err != nil {
			return err
		}
		marked = count
		return ms.participantRepo.AdvanceCursor(ctx, tx, conversationID, rd.UserID, now)
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

// ListByConversation is restartable: it re-reads the log in stable
// chronological order every time. Live updates arrive over SSE, not here.
func (ms *messageService) ListByConversation(ctx context.Context, conversationID uuid.UUID) ([]*types.Message, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}
	conversation, err := ms.loadConversation(ctx, nil, conversationID)
	if err != nil {
		return nil, err
	}
	if !rd.IsAdmin() && conversation.OwnerUserID != rd.UserID {
		return nil, apierr.Permission("conversation belongs to another user")
	}
	return ms.messageRepo.ListByConversation(ctx, nil, conversationID)
}

// Delete is a soft removal: content is redacted, the row is retained so
// ordering and read receipts stay intact.
func (ms *messageService) Delete(ctx context.Context, messageID uuid.UUID) error {
	rd := requestdata.GetRequestData(ctx)
	if !rd.IsAdmin() {
		return apierr.Permission("message deletion requires the admin role")
	}
	if _, err := ms.loadMessage(ctx, messageID); err != nil {
		return err
	}
	return ms.messageRepo.Redact(ctx, nil, messageID)
}

func (ms *messageService) UnreadCount(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return 0, apierr.Permission("no authenticated principal")
	}
	return ms.messageRepo.CountUnreadForUser(ctx, nil, conversationID, rd.UserID)
}

func (ms *messageService) loadConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.Conversation, error) {
	conversation, err := ms.conversationRepo.GetByID(ctx, tx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("conversation %s not found", conversationID)
		}
		return nil, err
	}
	return conversation, nil
}

func (ms *messageService) loadMessage(ctx context.Context, messageID uuid.UUID) (*types.Message, error) {
	message, err := ms.messageRepo.GetByID(ctx, nil, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("message %s not found", messageID)
		}
		return nil, err
	}
	return message, nil
}
