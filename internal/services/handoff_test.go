package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type fakeClassifier struct {
	result *Classification
	err    error
	calls  int
}

func (f *fakeClassifier) Classify(ctx context.Context, transcript []types.TranscriptTurn) (*Classification, error) {
	f.calls++
	return f.result, f.err
}

func newHandoffStack(t *testing.T, classifier Classifier) (*testStack, HandoffService) {
	t.Helper()
	stack := newTestStack(t)
	handoffService := NewHandoffService(
		logger.NewNop(),
		DefaultHandoffConfig(),
		classifier,
		stack.conversationService,
		stack.messageService,
		stack.conversationRepo,
		nil,
	)
	return stack, handoffService
}

func userTurns(texts ...string) []types.TranscriptTurn {
	turns := make([]types.TranscriptTurn, 0, len(texts))
	for _, text := range texts {
		turns = append(turns, types.TranscriptTurn{Role: "user", Text: text})
	}
	return turns
}

func TestEvaluateExplicitRequest(t *testing.T) {
	_, handoffService := newHandoffStack(t, nil)
	ctx := context.Background()
	sessionID := uuid.New()

	offer, err := handoffService.Evaluate(ctx, sessionID, nil, "I want to talk to a real person please")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.Reason != HandoffReasonExplicitRequest {
		t.Errorf("reason = %s, want explicit_request", offer.Reason)
	}
	if offer.Priority != types.PriorityHigh {
		t.Errorf("priority = %s, want high", offer.Priority)
	}
}

func TestEvaluateExplicitRequestWithUrgency(t *testing.T) {
	_, handoffService := newHandoffStack(t, nil)

	offer, err := handoffService.Evaluate(context.Background(), uuid.New(), nil, "this is urgent, get me a human")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if offer == nil {
		t.Fatal("expected an offer")
	}
	if offer.Priority != types.PriorityUrgent {
		t.Errorf("priority = %s, want urgent", offer.Priority)
	}
}

func TestEvaluateFrustrationThreshold(t *testing.T) {
	_, handoffService := newHandoffStack(t, nil)
	ctx := context.Background()

	// Two negative turns stay below the threshold of three.
	below := userTurns("it's not working", "still broken", "ok let me retry")
	offer, err := handoffService.Evaluate(ctx, uuid.New(), below, "ok let me retry")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if offer != nil {
		t.Fatalf("unexpected offer below threshold: %+v", offer)
	}

	over := userTurns("it's not working", "still broken", "this is ridiculous")
	offer, err = handoffService.Evaluate(ctx, uuid.New(), over, "this is ridiculous")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if offer == nil {
		t.Fatal("expected a frustration offer")
	}
	if offer.Reason != HandoffReasonFrustration {
		t.Errorf("reason = %s, want frustration", offer.Reason)
	}
	if offer.Priority != types.PriorityHigh {
		t.Errorf("priority = %s, want high", offer.Priority)
	}
}

func TestEvaluateAIEscalation(t *testing.T) {
	classifier := &fakeClassifier{result: &Classification{
		Intent:   "refund_request",
		Category: "billing",
		Summary:  "User wants a refund for a duplicate charge",
		Escalate: true,
	}}
	_, handoffService := newHandoffStack(t, classifier)

	offer, err := handoffService.Evaluate(context.Background(), uuid.New(), userTurns("I was charged twice"), "I was charged twice")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if offer == nil {
		t.Fatal("expected an escalation offer")
	}
	if offer.Reason != HandoffReasonAIEscalation {
		t.Errorf("reason = %s, want ai_escalation", offer.Reason)
	}
	if offer.Category != "billing" || offer.Intent != "refund_request" {
		t.Errorf("classification not carried onto offer: %+v", offer)
	}
}

func TestEvaluateClassifierFailureMeansNoOffer(t *testing.T) {
	classifier := &fakeClassifier{err: errors.New("upstream timeout")}
	_, handoffService := newHandoffStack(t, classifier)

	offer, err := handoffService.Evaluate(context.Background(), uuid.New(), userTurns("hello"), "hello")
	if err != nil {
		t.Fatalf("classifier failure must not surface: %v", err)
	}
	if offer != nil {
		t.Fatalf("unexpected offer: %+v", offer)
	}
	if classifier.calls != 1 {
		t.Errorf("classifier calls = %d, want 1", classifier.calls)
	}
}

func TestDeclineSuppressesSession(t *testing.T) {
	_, handoffService := newHandoffStack(t, nil)
	ctx := context.Background()
	sessionID := uuid.New()

	offer, err := handoffService.Evaluate(ctx, sessionID, nil, "talk to someone now")
	if err != nil || offer == nil {
		t.Fatalf("evaluate: offer=%v err=%v", offer, err)
	}
	if err := handoffService.Decline(ctx, sessionID, offer.ID); err != nil {
		t.Fatalf("decline: %v", err)
	}

	// Even a fresh explicit request stays silent for this session.
	for i := 0; i < 5; i++ {
		offer, err := handoffService.Evaluate(ctx, sessionID, nil, "I really want a human")
		if err != nil {
			t.Fatalf("evaluate after decline: %v", err)
		}
		if offer != nil {
			t.Fatalf("offer after decline on turn %d", i)
		}
	}
}

func TestOfferCooldown(t *testing.T) {
	_, handoffService := newHandoffStack(t, nil)
	ctx := context.Background()
	sessionID := uuid.New()

	offer, err := handoffService.Evaluate(ctx, sessionID, nil, "get me a human")
	if err != nil || offer == nil {
		t.Fatalf("evaluate: offer=%v err=%v", offer, err)
	}

	// Within the cooldown window nothing fires, even on a match.
	for i := 0; i < 2; i++ {
		offer, err := handoffService.Evaluate(ctx, sessionID, nil, "get me a human")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
		if offer != nil {
			t.Fatalf("offer during cooldown on turn %d", i)
		}
	}

	offer, err = handoffService.Evaluate(ctx, sessionID, nil, "get me a human")
	if err != nil {
		t.Fatalf("evaluate after cooldown: %v", err)
	}
	if offer == nil {
		t.Fatal("expected a fresh offer after the cooldown")
	}
}

func TestAcceptCreatesConversationWithContext(t *testing.T) {
	stack, handoffService := newHandoffStack(t, nil)
	userID := uuid.New()
	ctx := userContext(userID)
	sessionID := uuid.New()

	transcript := userTurns("my deploy is failing", "I need a human on this")
	offer, err := handoffService.Evaluate(ctx, sessionID, transcript, "I need a human on this")
	if err != nil || offer == nil {
		t.Fatalf("evaluate: offer=%v err=%v", offer, err)
	}

	conversation, created, err := handoffService.Accept(ctx, sessionID, offer.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}
	if !created {
		t.Fatal("first accept should create the conversation")
	}
	if conversation.Type != types.ConversationAIHandoff {
		t.Errorf("type = %s, want ai_handoff", conversation.Type)
	}
	if conversation.OwnerUserID != userID {
		t.Errorf("owner = %s, want %s", conversation.OwnerUserID, userID)
	}
	if len(conversation.Context) == 0 {
		t.Error("handoff context snapshot not persisted")
	}

	messages, err := stack.messageRepo.ListByConversation(ctx, nil, conversation.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	foundMarker := false
	for _, m := range messages {
		if m.MessageType == types.MessageHandoff {
			foundMarker = true
		}
	}
	if !foundMarker {
		t.Error("handoff marker message missing")
	}
}

func TestAcceptIsIdempotent(t *testing.T) {
	stack, handoffService := newHandoffStack(t, nil)
	ctx := userContext(uuid.New())
	sessionID := uuid.New()

	offer, err := handoffService.Evaluate(ctx, sessionID, nil, "speak to an agent")
	if err != nil || offer == nil {
		t.Fatalf("evaluate: offer=%v err=%v", offer, err)
	}

	first, created, err := handoffService.Accept(ctx, sessionID, offer.ID)
	if err != nil || !created {
		t.Fatalf("first accept: created=%v err=%v", created, err)
	}
	second, created, err := handoffService.Accept(ctx, sessionID, offer.ID)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if created {
		t.Error("second accept claims to have created a conversation")
	}
	if second.ID != first.ID {
		t.Errorf("duplicate accept produced a different conversation: %s vs %s", second.ID, first.ID)
	}

	conversations, err := stack.conversationRepo.ListByOwner(ctx, nil, first.OwnerUserID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("conversation count = %d, want 1", len(conversations))
	}
}

func TestAcceptDeduplicatesActiveHandoff(t *testing.T) {
	stack, handoffService := newHandoffStack(t, nil)
	ctx := userContext(uuid.New())
	sessionID := uuid.New()

	firstOffer, err := handoffService.Evaluate(ctx, sessionID, nil, "get me a human")
	if err != nil || firstOffer == nil {
		t.Fatalf("evaluate: offer=%v err=%v", firstOffer, err)
	}
	existing, _, err := handoffService.Accept(ctx, sessionID, firstOffer.ID)
	if err != nil {
		t.Fatalf("accept: %v", err)
	}

	// A later offer in the same session, accepted while the first handoff is
	// still active, lands on the existing conversation.
	var secondOffer *HandoffOffer
	for secondOffer == nil {
		secondOffer, err = handoffService.Evaluate(ctx, sessionID, nil, "I still want a human")
		if err != nil {
			t.Fatalf("evaluate: %v", err)
		}
	}
	conversation, created, err := handoffService.Accept(ctx, sessionID, secondOffer.ID)
	if err != nil {
		t.Fatalf("second accept: %v", err)
	}
	if created {
		t.Error("should not create a second active handoff")
	}
	if conversation.ID != existing.ID {
		t.Errorf("routed to %s, want existing %s", conversation.ID, existing.ID)
	}

	conversations, err := stack.conversationRepo.ListByOwner(ctx, nil, existing.OwnerUserID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("conversation count = %d, want 1", len(conversations))
	}
}

func TestAcceptUnknownOffer(t *testing.T) {
	_, handoffService := newHandoffStack(t, nil)
	ctx := userContext(uuid.New())

	if _, _, err := handoffService.Accept(ctx, uuid.New(), uuid.New()); !apierr.Is(err, apierr.CodeNotFound) {
		t.Fatalf("want not_found, got %v", err)
	}
}
