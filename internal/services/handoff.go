package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

const (
	HandoffReasonExplicitRequest = "explicit_request"
	HandoffReasonFrustration     = "frustration"
	HandoffReasonAIEscalation    = "ai_escalation"
)

// HandoffOffer is what the detector proposes to the user. The transcript
// snapshot is captured at offer time so the context written on acceptance is
// exactly what the detector saw.
type HandoffOffer struct {
	ID         uuid.UUID                  `json:"id"`
	SessionID  uuid.UUID                  `json:"session_id"`
	Reason     string                     `json:"reason"`
	Intent     string                     `json:"intent,omitempty"`
	Category   string                     `json:"category,omitempty"`
	Summary    string                     `json:"summary,omitempty"`
	Priority   types.ConversationPriority `json:"priority"`
	transcript []types.TranscriptTurn
}

type handoffSession struct {
	mu            sync.Mutex
	turnCount     int
	lastOfferTurn int
	declined      bool
	offers        map[uuid.UUID]*HandoffOffer
	accepted      map[uuid.UUID]uuid.UUID // offer id → conversation id
}

// HandoffService consumes AI-chat turns, decides whether to offer an
// escalation, and carries the transcript across the handoff when the user
// accepts. Acceptance is idempotent per (session, offer).
type HandoffService interface {
	Evaluate(ctx context.Context, sessionID uuid.UUID, transcript []types.TranscriptTurn, latestUtterance string) (*HandoffOffer, error)
	Accept(ctx context.Context, sessionID, offerID uuid.UUID) (*types.Conversation, bool, error)
	Decline(ctx context.Context, sessionID, offerID uuid.UUID) error
}

type handoffService struct {
	log                 *logger.Logger
	cfg                 HandoffConfig
	classifier          Classifier
	conversationService ConversationService
	messageService      MessageService
	conversationRepo    repos.ConversationRepo
	notifier            ConversationNotifier

	mu       sync.Mutex
	sessions map[uuid.UUID]*handoffSession
}

func NewHandoffService(
	log *logger.Logger,
	cfg HandoffConfig,
	classifier Classifier,
	conversationService ConversationService,
	messageService MessageService,
	conversationRepo repos.ConversationRepo,
	notifier ConversationNotifier,
) HandoffService {
	serviceLog := log.With("service", "HandoffService")
	return &handoffService{
		log:                 serviceLog,
		cfg:                 cfg,
		classifier:          classifier,
		conversationService: conversationService,
		messageService:      messageService,
		conversationRepo:    conversationRepo,
		notifier:            notifier,
		sessions:            make(map[uuid.UUID]*handoffSession),
	}
}

func (hs *handoffService) session(sessionID uuid.UUID) *handoffSession {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	s, ok := hs.sessions[sessionID]
	if !ok {
		s = &handoffSession{
			lastOfferTurn: -1,
			offers:        make(map[uuid.UUID]*HandoffOffer),
			accepted:      make(map[uuid.UUID]uuid.UUID),
		}
		hs.sessions[sessionID] = s
	}
	return s
}

// Evaluate runs the heuristics in priority order; the first match wins.
// Declined sessions never get another offer, and a fresh offer is held back
// for the cooldown window after the previous one.
func (hs *handoffService) Evaluate(ctx context.Context, sessionID uuid.UUID, transcript []types.TranscriptTurn, latestUtterance string) (*HandoffOffer, error) {
	if sessionID == uuid.Nil {
		return nil, apierr.Validation("session id required")
	}

	s := hs.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	s.turnCount++
	if s.declined {
		return nil, nil
	}
	if s.lastOfferTurn >= 0 && s.turnCount-s.lastOfferTurn <= hs.cfg.OfferCooldownTurns {
		return nil, nil
	}

	offer := hs.matchExplicitRequest(sessionID, latestUtterance)
	if offer == nil {
		offer = hs.matchFrustration(sessionID, transcript)
	}
	if offer == nil {
		offer = hs.matchAIEscalation(ctx, sessionID, transcript)
	}
	if offer == nil {
		return nil, nil
	}

	// Full transcript, not a truncated one: the admin picking this up gets
	// everything the AI saw.
	offer.transcript = append([]types.TranscriptTurn(nil), transcript...)
	if latestUtterance != "" {
		last := ""
		if len(transcript) > 0 {
			last = transcript[len(transcript)-1].Text
		}
		if last != latestUtterance {
			offer.transcript = append(offer.transcript, types.TranscriptTurn{Role: "user", Text: latestUtterance})
		}
	}

	s.offers[offer.ID] = offer
	s.lastOfferTurn = s.turnCount
	return offer, nil
}

func (hs *handoffService) matchExplicitRequest(sessionID uuid.UUID, utterance string) *HandoffOffer {
	lowered := strings.ToLower(utterance)
	if lowered == "" {
		return nil
	}
	requested := false
	for _, kw := range hs.cfg.RequestKeywords {
		if strings.Contains(lowered, kw) {
			requested = true
			break
		}
	}
	if !requested {
		return nil
	}
	priority := types.PriorityHigh
	for _, kw := range hs.cfg.UrgentKeywords {
		if strings.Contains(lowered, kw) {
			priority = types.PriorityUrgent
			break
		}
	}
	return &HandoffOffer{
		ID:        uuid.New(),
		SessionID: sessionID,
		Reason:    HandoffReasonExplicitRequest,
		Intent:    "human_support",
		Priority:  priority,
	}
}

func (hs *handoffService) matchFrustration(sessionID uuid.UUID, transcript []types.TranscriptTurn) *HandoffOffer {
	negative := 0
	for _, turn := range transcript {
		if turn.Role != "user" {
			continue
		}
		lowered := strings.ToLower(turn.Text)
		for _, marker := range hs.cfg.NegativeMarkers {
			if strings.Contains(lowered, marker) {
				negative++
				break
			}
		}
	}
	if negative < hs.cfg.FrustrationThreshold {
		return nil
	}
	return &HandoffOffer{
		ID:        uuid.New(),
		SessionID: sessionID,
		Reason:    HandoffReasonFrustration,
		Intent:    "frustrated_user",
		Priority:  types.PriorityHigh,
	}
}

// matchAIEscalation asks the classifier last; its failure degrades to "no
// offer" and never blocks the chat turn.
func (hs *handoffService) matchAIEscalation(ctx context.Context, sessionID uuid.UUID, transcript []types.TranscriptTurn) *HandoffOffer {
	if hs.classifier == nil || len(transcript) == 0 {
		return nil
	}
	classification, err := hs.classifier.Classify(ctx, transcript)
	if err != nil {
		hs.log.Warn("Classifier unavailable, skipping escalation check", "error", err)
		return nil
	}
	if classification == nil || !classification.Escalate {
		return nil
	}
	return &HandoffOffer{
		ID:        uuid.New(),
		SessionID: sessionID,
		Reason:    HandoffReasonAIEscalation,
		Intent:    classification.Intent,
		Category:  classification.Category,
		Summary:   classification.Summary,
		Priority:  types.PriorityNormal,
	}
}

// Accept resolves duplicate acceptance (double click, retried request) of
// the same offer to exactly one conversation. The bool reports whether this
// call created it.
func (hs *handoffService) Accept(ctx context.Context, sessionID, offerID uuid.UUID) (*types.Conversation, bool, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, false, apierr.Permission("no authenticated principal")
	}

	s := hs.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	// Idempotency: session id + offer id is the key, checked under the
	// session lock that also guards creation.
	if conversationID, ok := s.accepted[offerID]; ok {
		conversation, err := hs.conversationRepo.GetByID(ctx, nil, conversationID)
		if err != nil {
			return nil, false, err
		}
		return conversation, false, nil
	}

	offer, ok := s.offers[offerID]
	if !ok {
		return nil, false, apierr.NotFound("no such handoff offer %s for this session", offerID)
	}

	// Dedup policy: one active handoff conversation per user. A second
	// acceptance while one is open appends a handoff marker there instead
	// of opening a duplicate.
	existing, err := hs.conversationRepo.FindActiveHandoffByOwner(ctx, nil, rd.UserID)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		marker := fmt.Sprintf("User requested human support again (reason: %s)", offer.Reason)
		if _, err := hs.messageService.AppendSystem(ctx, existing.ID, marker, types.MessageHandoff); err != nil {
			return nil, false, err
		}
		s.accepted[offerID] = existing.ID
		return existing, false, nil
	}

	subject := offer.Summary
	if subject == "" {
		subject = "Support request from AI chat"
	}
	conversation, _, err := hs.conversationService.Create(ctx, CreateConversationInput{
		Subject:  subject,
		Priority: offer.Priority,
		Type:     types.ConversationAIHandoff,
		Context: &types.HandoffContext{
			Reason:       offer.Reason,
			Intent:       offer.Intent,
			Category:     offer.Category,
			Summary:      offer.Summary,
			AITranscript: offer.transcript,
		},
	})
	if err != nil {
		return nil, false, err
	}

	marker := fmt.Sprintf("Conversation escalated from AI chat (reason: %s)", offer.Reason)
	if _, err := hs.messageService.AppendSystem(ctx, conversation.ID, marker, types.MessageHandoff); err != nil {
		hs.log.Warn("Failed to append handoff marker", "conversationID", conversation.ID, "error", err)
	}

	s.accepted[offerID] = conversation.ID

	if hs.notifier != nil {
		hs.notifier.HandoffCreated(ctx, conversation)
	}
	return conversation, true, nil
}

// Decline suppresses every further offer for the rest of the session.
func (hs *handoffService) Decline(ctx context.Context, sessionID, offerID uuid.UUID) error {
	s := hs.session(sessionID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.offers[offerID]; !ok {
		return apierr.NotFound("no such handoff offer %s for this session", offerID)
	}
	s.declined = true
	return nil
}
