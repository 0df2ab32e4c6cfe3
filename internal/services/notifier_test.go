package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/sse"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type captureEmitter struct {
	messages []sse.SSEMessage
}

func (e *captureEmitter) Emit(ctx context.Context, msg sse.SSEMessage) {
	e.messages = append(e.messages, msg)
}

func (e *captureEmitter) forChannel(channel string) []sse.SSEMessage {
	var out []sse.SSEMessage
	for _, m := range e.messages {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

func TestMessageCreatedEchoesSenderFirst(t *testing.T) {
	stack := newTestStack(t)
	emitter := &captureEmitter{}
	notifier := NewConversationNotifier(logger.NewNop(), emitter, stack.prefRepo)

	ownerID := uuid.New()
	adminID := uuid.New()
	conversation := &types.Conversation{
		ID:              uuid.New(),
		OwnerUserID:     ownerID,
		AssignedAdminID: &adminID,
		Status:          types.ConversationInProgress,
	}
	senderID := ownerID
	message := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		SenderType:     types.SenderUser,
		SenderID:       &senderID,
		Content:        "hello",
	}

	notifier.MessageCreated(context.Background(), conversation, message, 1)

	if len(emitter.messages) != 2 {
		t.Fatalf("emissions = %d, want 2 (sender echo + admin)", len(emitter.messages))
	}
	if emitter.messages[0].Channel != ownerID.String() {
		t.Errorf("first emission went to %s, want the sender", emitter.messages[0].Channel)
	}
	if emitter.messages[1].Channel != adminID.String() {
		t.Errorf("second emission went to %s, want the assigned admin", emitter.messages[1].Channel)
	}
}

func TestNotifierHonorsPreferences(t *testing.T) {
	stack := newTestStack(t)
	emitter := &captureEmitter{}
	notifier := NewConversationNotifier(logger.NewNop(), emitter, stack.prefRepo)

	ownerID := uuid.New()
	adminID := uuid.New()
	ctx := context.Background()

	// The owner has silenced everything.
	if err := stack.prefRepo.Upsert(ctx, nil, &types.NotificationPreference{
		ID:             uuid.New(),
		UserID:         ownerID,
		BrowserEnabled: false,
		SoundEnabled:   false,
		ToastEnabled:   false,
		UpdatedAt:      time.Now().UTC(),
	}); err != nil {
		t.Fatalf("seed preference: %v", err)
	}

	conversation := &types.Conversation{
		ID:              uuid.New(),
		OwnerUserID:     ownerID,
		AssignedAdminID: &adminID,
		Status:          types.ConversationInProgress,
	}
	senderID := adminID
	message := &types.Message{
		ID:             uuid.New(),
		ConversationID: conversation.ID,
		SenderType:     types.SenderAdmin,
		SenderID:       &senderID,
		Content:        "any updates?",
	}

	notifier.MessageCreated(ctx, conversation, message, 1)

	if got := emitter.forChannel(ownerID.String()); len(got) != 0 {
		t.Errorf("silenced owner still received %d emissions", len(got))
	}
	// The sender's local echo is not a notification and always fires.
	if got := emitter.forChannel(adminID.String()); len(got) != 1 {
		t.Errorf("sender echo emissions = %d, want 1", len(got))
	}
}

func TestHandoffCreatedPagesAdminQueue(t *testing.T) {
	stack := newTestStack(t)
	emitter := &captureEmitter{}
	notifier := NewConversationNotifier(logger.NewNop(), emitter, stack.prefRepo)

	conversation := &types.Conversation{
		ID:          uuid.New(),
		OwnerUserID: uuid.New(),
		Status:      types.ConversationOpen,
		Type:        types.ConversationAIHandoff,
		Priority:    types.PriorityUrgent,
	}
	notifier.HandoffCreated(context.Background(), conversation)

	queue := emitter.forChannel(sse.AdminQueueChannel)
	if len(queue) != 1 {
		t.Fatalf("admin queue emissions = %d, want 1", len(queue))
	}
	if !queue[0].Browser {
		t.Error("unassigned urgent handoff should request a browser notification")
	}

	// Assigned handoffs don't page.
	adminID := uuid.New()
	conversation.AssignedAdminID = &adminID
	emitter.messages = nil
	notifier.HandoffCreated(context.Background(), conversation)
	queue = emitter.forChannel(sse.AdminQueueChannel)
	if len(queue) != 1 || queue[0].Browser {
		t.Errorf("assigned handoff paging = %+v, want non-browser queue event", queue)
	}
}
