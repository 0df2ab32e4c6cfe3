package services

import (
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

func TestAppendValidation(t *testing.T) {
	stack := newTestStack(t)
	ctx := userContext(uuid.New())
	conversation := mustCreateConversation(t, stack, ctx, "validation")

	tests := []struct {
		name  string
		input AppendMessageInput
		code  string
	}{
		{"empty content", AppendMessageInput{ConversationID: conversation.ID, Content: "  "}, apierr.CodeValidation},
		{"unknown type", AppendMessageInput{ConversationID: conversation.ID, Content: "hi", MessageType: "gif"}, apierr.CodeValidation},
		{"system type reserved", AppendMessageInput{ConversationID: conversation.ID, Content: "hi", MessageType: types.MessageSystem}, apierr.CodePermission},
		{"handoff type reserved", AppendMessageInput{ConversationID: conversation.ID, Content: "hi", MessageType: types.MessageHandoff}, apierr.CodePermission},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := stack.messageService.Append(ctx, tc.input)
			if !apierr.Is(err, tc.code) {
				t.Fatalf("want %s, got %v", tc.code, err)
			}
		})
	}
}

func TestAppendAccessAndMissingConversation(t *testing.T) {
	stack := newTestStack(t)
	ownerCtx := userContext(uuid.New())
	conversation := mustCreateConversation(t, stack, ownerCtx, "access")

	if _, err := stack.messageService.Append(userContext(uuid.New()), AppendMessageInput{
		ConversationID: conversation.ID,
		Content:        "hello",
	}); !apierr.Is(err, apierr.CodePermission) {
		t.Fatalf("stranger append: want permission_denied, got %v", err)
	}

	if _, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
		ConversationID: uuid.New(),
		Content:        "hello",
	}); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("missing conversation: want not_found, got %v", err)
	}
}

func TestListIsChronological(t *testing.T) {
	stack := newTestStack(t)
	ownerCtx := userContext(uuid.New())
	conversation := mustCreateConversation(t, stack, ownerCtx, "ordering")

	contents := []string{"first", "second", "third", "fourth", "fifth"}
	for _, content := range contents {
		if _, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
			ConversationID: conversation.ID,
			Content:        content,
		}); err != nil {
			t.Fatalf("append %q: %v", content, err)
		}
	}

	messages, err := stack.messageService.ListByConversation(ownerCtx, conversation.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != len(contents) {
		t.Fatalf("message count = %d, want %d", len(messages), len(contents))
	}
	for i, m := range messages {
		if m.Content != contents[i] {
			t.Errorf("position %d = %q, want %q", i, m.Content, contents[i])
		}
		if i > 0 && m.CreatedAt.Before(messages[i-1].CreatedAt) {
			t.Errorf("created_at went backwards at position %d", i)
		}
	}
}

func TestClosedConversationAppendRules(t *testing.T) {
	stack := newTestStack(t)
	ownerCtx := userContext(uuid.New())
	conversation := mustCreateConversation(t, stack, ownerCtx, "closed rules")

	if _, err := stack.conversationService.Close(ownerCtx, conversation.ID); err != nil {
		t.Fatalf("close: %v", err)
	}

	if _, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
		ConversationID: conversation.ID,
		Content:        "anyone there?",
	}); !apierr.Is(err, apierr.CodeClosedConversation) {
		t.Fatalf("append to closed: want conversation_closed, got %v", err)
	}

	// System entries still land on closed conversations.
	if _, err := stack.messageService.AppendSystem(ownerCtx, conversation.ID, "archived by retention job", types.MessageSystem); err != nil {
		t.Fatalf("system append to closed: %v", err)
	}
}

func TestMessageRateLimit(t *testing.T) {
	stack := newTestStack(t)
	ownerCtx := userContext(uuid.New())
	conversation := mustCreateConversation(t, stack, ownerCtx, "rate limit")

	now := time.Now()
	stack.rateLimiter.now = func() time.Time { return now }

	for i := 0; i < 30; i++ {
		if _, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
			ConversationID: conversation.ID,
			Content:        "spam",
		}); err != nil {
			t.Fatalf("message %d should be within quota: %v", i+1, err)
		}
	}

	_, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
		ConversationID: conversation.ID,
		Content:        "one too many",
	})
	if !apierr.Is(err, apierr.CodeRateLimited) {
		t.Fatalf("31st message: want rate_limited, got %v", err)
	}

	// The 30 accepted messages all persisted; the rejected one did not.
	messages, listErr := stack.messageService.ListByConversation(ownerCtx, conversation.ID)
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	if len(messages) != 30 {
		t.Fatalf("persisted = %d, want 30", len(messages))
	}

	// Once the window slides past, the sender may speak again.
	now = now.Add(2 * time.Minute)
	if _, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
		ConversationID: conversation.ID,
		Content:        "back again",
	}); err != nil {
		t.Fatalf("append after window: %v", err)
	}
}

func TestMarkReadIdempotent(t *testing.T) {
	stack := newTestStack(t)
	ownerID := uuid.New()
	adminID := uuid.New()
	ownerCtx := userContext(ownerID)
	adminCtx := adminContext(adminID)

	conversation := mustCreateConversation(t, stack, ownerCtx, "receipts")
	if _, err := stack.conversationService.Assign(adminCtx, conversation.ID, adminID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	message, err := stack.messageService.Append(adminCtx, AppendMessageInput{
		ConversationID: conversation.ID,
		Content:        "have you tried turning it off and on",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	first, err := stack.messageService.MarkRead(ownerCtx, message.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if first.ReadAt == nil {
		t.Fatal("read_at not set")
	}

	second, err := stack.messageService.MarkRead(ownerCtx, message.ID)
	if err != nil {
		t.Fatalf("second mark read: %v", err)
	}
	if second.ReadAt == nil || !second.ReadAt.Equal(*first.ReadAt) {
		t.Errorf("read_at changed on repeat: %v vs %v", second.ReadAt, first.ReadAt)
	}
}

func TestMarkReadOwnMessageIsNoop(t *testing.T) {
	stack := newTestStack(t)
	ownerCtx := userContext(uuid.New())
	conversation := mustCreateConversation(t, stack, ownerCtx, "self read")

	message, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
		ConversationID: conversation.ID,
		Content:        "note to self",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	marked, err := stack.messageService.MarkRead(ownerCtx, message.ID)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if marked.ReadAt != nil {
		t.Errorf("own message got a read receipt")
	}
}

func TestMarkAllReadAndUnreadCount(t *testing.T) {
	stack := newTestStack(t)
	ownerID := uuid.New()
	adminID := uuid.New()
	ownerCtx := userContext(ownerID)
	adminCtx := adminContext(adminID)

	conversation := mustCreateConversation(t, stack, ownerCtx, "bulk receipts")
	if _, err := stack.conversationService.Assign(adminCtx, conversation.ID, adminID); err != nil {
		t.Fatalf("assign: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := stack.messageService.Append(adminCtx, AppendMessageInput{
			ConversationID: conversation.ID,
			Content:        "update",
		}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	unread, err := stack.messageService.UnreadCount(ownerCtx, conversation.ID)
	if err != nil {
		t.Fatalf("unread: %v", err)
	}
	if unread != 3 {
		t.Fatalf("unread = %d, want 3", unread)
	}

	marked, err := stack.messageService.MarkAllRead(ownerCtx, conversation.ID)
	if err != nil {
		t.Fatalf("mark all read: %v", err)
	}
	if marked != 3 {
		t.Errorf("marked = %d, want 3", marked)
	}

	unread, err = stack.messageService.UnreadCount(ownerCtx, conversation.ID)
	if err != nil {
		t.Fatalf("unread after: %v", err)
	}
	if unread != 0 {
		t.Errorf("unread after mark all = %d, want 0", unread)
	}

	// Repeat is harmless.
	marked, err = stack.messageService.MarkAllRead(ownerCtx, conversation.ID)
	if err != nil {
		t.Fatalf("repeat mark all read: %v", err)
	}
	if marked != 0 {
		t.Errorf("repeat marked = %d, want 0", marked)
	}
}

func TestDeleteRedacts(t *testing.T) {
	stack := newTestStack(t)
	ownerCtx := userContext(uuid.New())
	adminCtx := adminContext(uuid.New())

	conversation := mustCreateConversation(t, stack, ownerCtx, "redaction")
	message, err := stack.messageService.Append(ownerCtx, AppendMessageInput{
		ConversationID: conversation.ID,
		Content:        "my card number is 4111...",
	})
	if err != nil {
		t.Fatalf("append: %v", err)
	}

	if err := stack.messageService.Delete(ownerCtx, message.ID); !apierr.Is(err, apierr.CodePermission) {
		t.Fatalf("non-admin delete: want permission_denied, got %v", err)
	}
	if err := stack.messageService.Delete(adminCtx, message.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	messages, err := stack.messageService.ListByConversation(ownerCtx, conversation.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("row should be retained, count = %d", len(messages))
	}
	if messages[0].Content != types.RedactedContent {
		t.Errorf("content = %q, want %q", messages[0].Content, types.RedactedContent)
	}
	if !messages[0].Deleted {
		t.Errorf("deleted flag not set")
	}
}
