package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/sse"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

// ConversationNotifier observes registry and store mutations and fans the
// matching events out to interested sessions. Delivery failures never
// propagate to the caller; an append must succeed even if no one is
// listening.
type ConversationNotifier interface {
	MessageCreated(ctx context.Context, conversation *types.Conversation, message *types.Message, unreadForOwner int64)
	ConversationUpdated(ctx context.Context, conversation *types.Conversation)
	HandoffCreated(ctx context.Context, conversation *types.Conversation)
	QueueChanged(ctx context.Context)
}

type conversationNotifier struct {
	log      *logger.Logger
	emit     SSEEmitter
	prefRepo repos.NotificationPreferenceRepo
}

func NewConversationNotifier(log *logger.Logger, emit SSEEmitter, prefRepo repos.NotificationPreferenceRepo) ConversationNotifier {
	return &conversationNotifier{
		log:      log.With("service", "ConversationNotifier"),
		emit:     emit,
		prefRepo: prefRepo,
	}
}

func (n *conversationNotifier) MessageCreated(ctx context.Context, conversation *types.Conversation, message *types.Message, unreadForOwner int64) {
	if n == nil || n.emit == nil || conversation == nil || message == nil {
		return
	}

	data := map[string]any{
		"message":      message,
		"conversation": conversation,
		"unreadCount":  unreadForOwner,
	}

	// Local echo first: the sender's own feed sees the append before anyone
	// else is notified.
	var senderID uuid.UUID
	if message.SenderID != nil {
		senderID = *message.SenderID
		n.emit.Emit(ctx, sse.SSEMessage{
			Channel: senderID.String(),
			Event:   sse.SSEEventMessageCreated,
			Data:    data,
		})
	}

	for _, recipient := range n.recipientsOf(conversation) {
		if recipient == senderID {
			continue
		}
		n.deliver(ctx, recipient, sse.SSEEventMessageCreated, data)
	}
}

func (n *conversationNotifier) ConversationUpdated(ctx context.Context, conversation *types.Conversation) {
	if n == nil || n.emit == nil || conversation == nil {
		return
	}
	data := map[string]any{"conversation": conversation}
	for _, recipient := range n.recipientsOf(conversation) {
		n.deliver(ctx, recipient, sse.SSEEventConversationUpdated, data)
	}
	n.emit.Emit(ctx, sse.SSEMessage{
		Channel: sse.AdminQueueChannel,
		Event:   sse.SSEEventConversationUpdated,
		Data:    data,
	})
}

func (n *conversationNotifier) HandoffCreated(ctx context.Context, conversation *types.Conversation) {
	if n == nil || n.emit == nil || conversation == nil {
		return
	}
	data := map[string]any{"conversation": conversation}
	n.deliver(ctx, conversation.OwnerUserID, sse.SSEEventHandoffCreated, data)
	// Unassigned urgent handoffs page the whole admin queue.
	n.emit.Emit(ctx, sse.SSEMessage{
		Channel: sse.AdminQueueChannel,
		Event:   sse.SSEEventHandoffCreated,
		Data:    data,
		Browser: conversation.AssignedAdminID == nil && conversation.Priority == types.PriorityUrgent,
	})
}

func (n *conversationNotifier) QueueChanged(ctx context.Context) {
	if n == nil || n.emit == nil {
		return
	}
	n.emit.Emit(ctx, sse.SSEMessage{
		Channel: sse.AdminQueueChannel,
		Event:   sse.SSEEventQueueChanged,
	})
}

func (n *conversationNotifier) recipientsOf(conversation *types.Conversation) []uuid.UUID {
	recipients := []uuid.UUID{conversation.OwnerUserID}
	if conversation.AssignedAdminID != nil {
		recipients = append(recipients, *conversation.AssignedAdminID)
	}
	return recipients
}

// deliver applies the recipient's preference record before emitting. A user
// with every channel disabled gets nothing; unread counters remain the
// source of truth for them.
func (n *conversationNotifier) deliver(ctx context.Context, userID uuid.UUID, event sse.SSEEvent, data map[string]any) {
	pref := n.preferenceFor(ctx, userID)
	if !pref.ToastEnabled && !pref.SoundEnabled && !pref.BrowserEnabled {
		return
	}

	payload := make(map[string]any, len(data)+1)
	for k, v := range data {
		payload[k] = v
	}
	payload["channels"] = map[string]bool{
		"toast": pref.ToastEnabled,
		"sound": pref.SoundEnabled,
	}

	n.emit.Emit(ctx, sse.SSEMessage{
		Channel: userID.String(),
		Event:   event,
		Data:    payload,
		Browser: pref.BrowserEnabled,
	})
}

func (n *conversationNotifier) preferenceFor(ctx context.Context, userID uuid.UUID) *types.NotificationPreference {
	if n.prefRepo != nil {
		pref, err := n.prefRepo.GetByUserID(ctx, nil, userID)
		if err != nil {
			n.log.Warn("Failed to load notification preference, using defaults", "userID", userID, "error", err)
		} else if pref != nil {
			return pref
		}
	}
	return types.DefaultNotificationPreference(userID)
}
