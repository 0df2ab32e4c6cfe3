package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/locks"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

type CreateConversationInput struct {
	Subject         string
	Priority        types.ConversationPriority
	Type            types.ConversationType
	Context         *types.HandoffContext
	InitialMessage  string
	TransferredFrom *uuid.UUID
}

// ConversationService owns the conversation records and enforces the state
// machine. Every single-conversation mutation runs under that conversation's
// keyed lock and inside one transaction.
type ConversationService interface {
	Create(ctx context.Context, input CreateConversationInput) (*types.Conversation, *types.Message, error)
	Assign(ctx context.Context, conversationID, adminID uuid.UUID) (*types.Conversation, error)
	ChangeStatus(ctx context.Context, conversationID uuid.UUID, newStatus types.ConversationStatus) (*types.Conversation, error)
	ChangePriority(ctx context.Context, conversationID uuid.UUID, newPriority types.ConversationPriority) (*types.Conversation, error)
	Rename(ctx context.Context, conversationID uuid.UUID, subject string) (*types.Conversation, error)
	Close(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error)
	Transfer(ctx context.Context, sourceConversationID uuid.UUID) (*types.Conversation, error)
	GetByID(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error)
	ListForUser(ctx context.Context) ([]*types.Conversation, error)
	ListForQueue(ctx context.Context, filter repos.QueueFilter) ([]*types.Conversation, int64, error)
}

type conversationService struct {
	db               *gorm.DB
	log              *logger.Logger
	conversationRepo repos.ConversationRepo
	messageRepo      repos.MessageRepo
	participantRepo  repos.ParticipantRepo
	lockManager      *locks.Manager
	notifier         ConversationNotifier
}

func NewConversationService(
	db *gorm.DB,
	log *logger.Logger,
	conversationRepo repos.ConversationRepo,
	messageRepo repos.MessageRepo,
	participantRepo repos.ParticipantRepo,
	lockManager *locks.Manager,
	notifier ConversationNotifier,
) ConversationService {
	serviceLog := log.With("service", "ConversationService")
	return &conversationService{
		db:               db,
		log:              serviceLog,
		conversationRepo: conversationRepo,
		messageRepo:      messageRepo,
		participantRepo:  participantRepo,
		lockManager:      lockManager,
		notifier:         notifier,
	}
}

// legalTransitions are the only edges the registry accepts. closed →
// transferred is deliberately absent: it happens only inside Transfer as a
// side effect of creating the successor.
var legalTransitions = map[types.ConversationStatus][]types.ConversationStatus{
	types.ConversationOpen:       {types.ConversationInProgress, types.ConversationClosed},
	types.ConversationInProgress: {types.ConversationClosed, types.ConversationOpen},
}

func transitionAllowed(from, to types.ConversationStatus) bool {
	for _, next := range legalTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (cs *conversationService) Create(ctx context.Context, input CreateConversationInput) (*types.Conversation, *types.Message, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, nil, apierr.Permission("no authenticated principal")
	}

	subject := strings.TrimSpace(input.Subject)
	if subject == "" {
		return nil, nil, apierr.Validation("subject must not be empty")
	}
	priority := input.Priority
	if priority == "" {
		priority = types.PriorityNormal
	}
	if !types.ValidPriority(priority) {
		return nil, nil, apierr.Validation("invalid priority %q", input.Priority)
	}
	conversationType := input.Type
	if conversationType == "" {
		conversationType = types.ConversationSupport
	}
	if conversationType != types.ConversationSupport && conversationType != types.ConversationAIHandoff {
		return nil, nil, apierr.Validation("invalid conversation type %q", input.Type)
	}
	if input.Context != nil && conversationType != types.ConversationAIHandoff {
		return nil, nil, apierr.Validation("context snapshot is only valid for ai_handoff conversations")
	}

	conversation := &types.Conversation{
		ID:                uuid.New(),
		OwnerUserID:       rd.UserID,
		Status:            types.ConversationOpen,
		Type:              conversationType,
		Priority:          priority,
		Subject:           subject,
		TransferredFromID: input.TransferredFrom,
	}

	// The context snapshot is written exactly once, here, and never touched
	// again. It is the provenance record of the handoff.
	if input.Context != nil {
		raw, err := json.Marshal(input.Context)
		if err != nil {
			return nil, nil, fmt.Errorf("marshal handoff context: %w", err)
		}
		conversation.Context = datatypes.JSON(raw)
	}

	var firstMessage *types.Message
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := cs.conversationRepo.Create(ctx, tx, conversation); err != nil {
			return err
		}
		if _, err := cs.participantRepo.Ensure(ctx, tx, conversation.ID, rd.UserID, types.ParticipantMember); err != nil {
			return err
		}
		if content := strings.TrimSpace(input.InitialMessage); content != "" {
			senderID := rd.UserID
			firstMessage = &types.Message{
				ID:             uuid.New(),
				ConversationID: conversation.ID,
				SenderType:     senderTypeForRole(rd.Role),
				SenderID:       &senderID,
				Content:        content,
				MessageType:    types.MessageText,
				CreatedAt:      time.Now().UTC(),
			}
			if err := cs.messageRepo.Create(ctx, tx, firstMessage); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		cs.log.Warn("Create conversation failed", "error", err)
		return nil, nil, err
	}

	if cs.notifier != nil {
		cs.notifier.QueueChanged(ctx)
	}
	return conversation, firstMessage, nil
}

func (cs *conversationService) Assign(ctx context.Context, conversationID, adminID uuid.UUID) (*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.IsAdmin() {
		return nil, apierr.Permission("assignment requires the admin role")
	}
	if adminID == uuid.Nil {
		return nil, apierr.Validation("admin id required")
	}

	unlock := cs.lockManager.Lock(conversationID)
	defer unlock()

	var conversation *types.Conversation
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := cs.loadConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if loaded.Status == types.ConversationClosed || loaded.Status == types.ConversationTransferred {
			return apierr.Conflict("conversation %s is %s and cannot be assigned", conversationID, loaded.Status)
		}
		if loaded.AssignedAdminID != nil && *loaded.AssignedAdminID == adminID {
			// Re-assigning to the same admin is a no-op, not a conflict.
			conversation = loaded
			return nil
		}
		assigned := adminID
		loaded.AssignedAdminID = &assigned
		loaded.Status = types.ConversationInProgress
		if err := cs.conversationRepo.Update(ctx, tx, loaded); err != nil {
			return err
		}
		if _, err := cs.participantRepo.Ensure(ctx, tx, conversationID, adminID, types.ParticipantAdmin); err != nil {
			return err
		}
		conversation = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cs.notifier != nil {
		cs.notifier.ConversationUpdated(ctx, conversation)
		cs.notifier.QueueChanged(ctx)
	}
	return conversation, nil
}

func (cs *conversationService) ChangeStatus(ctx context.Context, conversationID uuid.UUID, newStatus types.ConversationStatus) (*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.IsAdmin() {
		return nil, apierr.Permission("status changes require the admin role")
	}
	if !types.ValidStatus(newStatus) {
		return nil, apierr.Validation("invalid status %q", newStatus)
	}
	if newStatus == types.ConversationClosed {
		return cs.Close(ctx, conversationID)
	}

	unlock := cs.lockManager.Lock(conversationID)
	defer unlock()

	var conversation *types.Conversation
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := cs.loadConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if loaded.Status == newStatus {
			conversation = loaded
			return nil
		}
		if !transitionAllowed(loaded.Status, newStatus) {
			return apierr.InvalidTransition("cannot transition conversation from %s to %s", loaded.Status, newStatus)
		}
		loaded.Status = newStatus
		if newStatus == types.ConversationOpen {
			// in_progress → open is an unassign.
			loaded.AssignedAdminID = nil
		}
		if err := cs.conversationRepo.Update(ctx, tx, loaded); err != nil {
			return err
		}
		conversation = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cs.notifier != nil {
		cs.notifier.ConversationUpdated(ctx, conversation)
		cs.notifier.QueueChanged(ctx)
	}
	return conversation, nil
}

func (cs *conversationService) ChangePriority(ctx context.Context, conversationID uuid.UUID, newPriority types.ConversationPriority) (*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.IsAdmin() {
		return nil, apierr.Permission("priority changes require the admin role")
	}
	if !types.ValidPriority(newPriority) {
		return nil, apierr.Validation("invalid priority %q", newPriority)
	}

	unlock := cs.lockManager.Lock(conversationID)
	defer unlock()

	var conversation *types.Conversation
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := cs.loadConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if loaded.Status == types.ConversationClosed || loaded.Status == types.ConversationTransferred {
			return apierr.Conflict("cannot change priority of a %s conversation", loaded.Status)
		}
		if loaded.Priority == newPriority {
			conversation = loaded
			return nil
		}
		loaded.Priority = newPriority
		if err := cs.conversationRepo.Update(ctx, tx, loaded); err != nil {
			return err
		}
		conversation = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cs.notifier != nil {
		cs.notifier.ConversationUpdated(ctx, conversation)
		cs.notifier.QueueChanged(ctx)
	}
	return conversation, nil
}

func (cs *conversationService) Rename(ctx context.Context, conversationID uuid.UUID, subject string) (*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, apierr.Validation("subject must not be empty")
	}

	unlock := cs.lockManager.Lock(conversationID)
	defer unlock()

	var conversation *types.Conversation
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := cs.loadConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !rd.IsAdmin() && loaded.OwnerUserID != rd.UserID {
			return apierr.Permission("only the owner or an admin can rename a conversation")
		}
		loaded.Subject = subject
		if err := cs.conversationRepo.Update(ctx, tx, loaded); err != nil {
			return err
		}
		conversation = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cs.notifier != nil {
		cs.notifier.ConversationUpdated(ctx, conversation)
	}
	return conversation, nil
}

// Close transitions to closed and records the closure as a system audit
// message. Closed conversations accept no further non-system messages.
func (cs *conversationService) Close(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}

	unlock := cs.lockManager.Lock(conversationID)
	defer unlock()

	var conversation *types.Conversation
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := cs.loadConversation(ctx, tx, conversationID)
		if err != nil {
			return err
		}
		if !rd.IsAdmin() && loaded.OwnerUserID != rd.UserID {
			return apierr.Permission("only the owner or an admin can close a conversation")
		}
		if loaded.Status == types.ConversationClosed {
			conversation = loaded
			return nil
		}
		if !transitionAllowed(loaded.Status, types.ConversationClosed) {
			return apierr.InvalidTransition("cannot transition conversation from %s to closed", loaded.Status)
		}
		loaded.Status = types.ConversationClosed
		if err := cs.conversationRepo.Update(ctx, tx, loaded); err != nil {
			return err
		}
		closure := &types.Message{
			ID:             uuid.New(),
			ConversationID: conversationID,
			SenderType:     types.SenderSystem,
			Content:        fmt.Sprintf("Conversation closed by %s", rd.UserID),
			MessageType:    types.MessageSystem,
			CreatedAt:      time.Now().UTC(),
		}
		if err := cs.messageRepo.Create(ctx, tx, closure); err != nil {
			return err
		}
		conversation = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	if cs.notifier != nil {
		cs.notifier.ConversationUpdated(ctx, conversation)
		cs.notifier.QueueChanged(ctx)
	}
	return conversation, nil
}

// Transfer re-opens a closed conversation into a successor. The source moves
// to transferred (the only edge out of closed) and the successor records the
// back-reference.
func (cs *conversationService) Transfer(ctx context.Context, sourceConversationID uuid.UUID) (*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}

	unlock := cs.lockManager.Lock(sourceConversationID)
	defer unlock()

	var successor *types.Conversation
	err := cs.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		source, err := cs.loadConversation(ctx, tx, sourceConversationID)
		if err != nil {
			return err
		}
		if !rd.IsAdmin() && source.OwnerUserID != rd.UserID {
			return apierr.Permission("only the owner or an admin can transfer a conversation")
		}
		if source.Status != types.ConversationClosed {
			return apierr.InvalidTransition("only closed conversations can be transferred, conversation is %s", source.Status)
		}

		sourceID := source.ID
		successor = &types.Conversation{
			ID:                uuid.New(),
			OwnerUserID:       source.OwnerUserID,
			Status:            types.ConversationOpen,
			Type:              source.Type,
			Priority:          source.Priority,
			Subject:           source.Subject,
			TransferredFromID: &sourceID,
		}
		if err := cs.conversationRepo.Create(ctx, tx, successor); err != nil {
			return err
		}
		if _, err := cs.participantRepo.Ensure(ctx, tx, successor.ID, source.OwnerUserID, types.ParticipantMember); err != nil {
			return err
		}

		source.Status = types.ConversationTransferred
		return cs.conversationRepo.Update(ctx, tx, source)
	})
	if err != nil {
		return nil, err
	}

	if cs.notifier != nil {
		cs.notifier.QueueChanged(ctx)
	}
	return successor, nil
}

func (cs *conversationService) GetByID(ctx context.Context, conversationID uuid.UUID) (*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}
	conversation, err := cs.loadConversation(ctx, nil, conversationID)
	if err != nil {
		return nil, err
	}
	if !rd.IsAdmin() && conversation.OwnerUserID != rd.UserID {
		return nil, apierr.Permission("conversation belongs to another user")
	}
	return conversation, nil
}

func (cs *conversationService) ListForUser(ctx context.Context) ([]*types.Conversation, error) {
	rd := requestdata.GetRequestData(ctx)
	if rd == nil || rd.UserID == uuid.Nil {
		return nil, apierr.Permission("no authenticated principal")
	}
	return cs.conversationRepo.ListByOwner(ctx, nil, rd.UserID)
}

func (cs *conversationService) ListForQueue(ctx context.Context, filter repos.QueueFilter) ([]*types.Conversation, int64, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.IsAdmin() {
		return nil, 0, apierr.Permission("queue view requires the admin role")
	}
	if filter.Status != "" && !types.ValidStatus(filter.Status) {
		return nil, 0, apierr.Validation("invalid status filter %q", filter.Status)
	}
	if filter.Priority != "" && !types.ValidPriority(filter.Priority) {
		return nil, 0, apierr.Validation("invalid priority filter %q", filter.Priority)
	}
	return cs.conversationRepo.ListQueue(ctx, nil, filter)
}

func (cs *conversationService) loadConversation(ctx context.Context, tx *gorm.DB, conversationID uuid.UUID) (*types.Conversation, error) {
	conversation, err := cs.conversationRepo.GetByID(ctx, tx, conversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apierr.NotFound("conversation %s not found", conversationID)
		}
		return nil, err
	}
	return conversation, nil
}

func senderTypeForRole(role requestdata.Role) types.SenderType {
	if role == requestdata.RoleAdmin {
		return types.SenderAdmin
	}
	return types.SenderUser
}
