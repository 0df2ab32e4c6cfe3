package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/yungbote/supportdesk-backend/internal/apierr"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

const (
	BulkActionAssign       = "bulk_assign"
	BulkActionStatusChange = "bulk_status_change"
	BulkActionClose        = "bulk_close"
)

type QueueStats struct {
	Total                  int64                              `json:"total"`
	ByStatus               map[types.ConversationStatus]int64 `json:"byStatus"`
	UnassignedOpenCount    int64                              `json:"unassignedOpenCount"`
	UrgentOpenCount        int64                              `json:"urgentOpenCount"`
	AvgResponseSecsByAdmin map[uuid.UUID]float64              `json:"avgResponseSecondsByAdmin"`
}

type BulkUpdateData struct {
	AdminID  *uuid.UUID                 `json:"adminId,omitempty"`
	Status   types.ConversationStatus   `json:"status,omitempty"`
	Priority types.ConversationPriority `json:"priority,omitempty"`
}

type BulkItemResult struct {
	ConversationID uuid.UUID `json:"conversationId"`
	OK             bool      `json:"ok"`
	Error          string    `json:"error,omitempty"`
	ErrorCode      string    `json:"errorCode,omitempty"`
}

type BulkUpdateResult struct {
	Successful int              `json:"successful"`
	Failed     int              `json:"failed"`
	Total      int              `json:"total"`
	Results    []BulkItemResult `json:"results"`
}

// QueueService derives the admin triage view: aggregate stats over the
// registry plus bulk changes that run each conversation independently
// through the registry's normal rules. A failure on one id never aborts the
// others; partial success is surfaced, not hidden.
type QueueService interface {
	GetStats(ctx context.Context, period time.Duration) (*QueueStats, error)
	BulkUpdate(ctx context.Context, conversationIDs []uuid.UUID, action string, data BulkUpdateData) (*BulkUpdateResult, error)
}

type queueService struct {
	db                  *gorm.DB
	log                 *logger.Logger
	conversationRepo    repos.ConversationRepo
	messageRepo         repos.MessageRepo
	conversationService ConversationService
	notifier            ConversationNotifier
	bulkParallelism     int
}

func NewQueueService(
	db *gorm.DB,
	log *logger.Logger,
	conversationRepo repos.ConversationRepo,
	messageRepo repos.MessageRepo,
	conversationService ConversationService,
	notifier ConversationNotifier,
	bulkParallelism int,
) QueueService {
	serviceLog := log.With("service", "QueueService")
	if bulkParallelism <= 0 {
		bulkParallelism = 8
	}
	return &queueService{
		db:                  db,
		log:                 serviceLog,
		conversationRepo:    conversationRepo,
		messageRepo:         messageRepo,
		conversationService: conversationService,
		notifier:            notifier,
		bulkParallelism:     bulkParallelism,
	}
}

func (qs *queueService) GetStats(ctx context.Context, period time.Duration) (*QueueStats, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.IsAdmin() {
		return nil, apierr.Permission("stats require the admin role")
	}
	if period <= 0 {
		period = 7 * 24 * time.Hour
	}

	byStatus, err := qs.conversationRepo.CountByStatus(ctx, nil)
	if err != nil {
		return nil, err
	}
	var total int64
	for _, count := range byStatus {
		total += count
	}
	unassignedOpen, err := qs.conversationRepo.CountOpenUnassigned(ctx, nil)
	if err != nil {
		return nil, err
	}
	urgentOpen, err := qs.conversationRepo.CountOpenUrgent(ctx, nil)
	if err != nil {
		return nil, err
	}

	avg, err := qs.responseTimesByAdmin(ctx, time.Now().Add(-period))
	if err != nil {
		return nil, err
	}

	return &QueueStats{
		Total:                  total,
		ByStatus:               byStatus,
		UnassignedOpenCount:    unassignedOpen,
		UrgentOpenCount:        urgentOpen,
		AvgResponseSecsByAdmin: avg,
	}, nil
}

// Response time is first-admin-message time minus conversation creation
// time, averaged per admin over conversations first touched in the period.
func (qs *queueService) responseTimesByAdmin(ctx context.Context, since time.Time) (map[uuid.UUID]float64, error) {
	conversations, err := qs.conversationRepo.ListAssignedCreatedSince(ctx, nil, since)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(conversations))
	for _, conversation := range conversations {
		ids = append(ids, conversation.ID)
	}
	firstTimes, err := qs.messageRepo.FirstAdminMessageTimes(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	sums := make(map[uuid.UUID]float64)
	counts := make(map[uuid.UUID]int)
	for _, conversation := range conversations {
		if conversation.AssignedAdminID == nil {
			continue
		}
		first, ok := firstTimes[conversation.ID]
		if !ok {
			continue
		}
		adminID := *conversation.AssignedAdminID
		sums[adminID] += first.Sub(conversation.CreatedAt).Seconds()
		counts[adminID]++
	}

	avg := make(map[uuid.UUID]float64, len(sums))
	for adminID, sum := range sums {
		avg[adminID] = sum / float64(counts[adminID])
	}
	return avg, nil
}

// BulkUpdate runs each target through the registry with bounded parallelism.
// Cross-conversation locking is unnecessary since targets don't interact.
func (qs *queueService) BulkUpdate(ctx context.Context, conversationIDs []uuid.UUID, action string, data BulkUpdateData) (*BulkUpdateResult, error) {
	rd := requestdata.GetRequestData(ctx)
	if !rd.IsAdmin() {
		return nil, apierr.Permission("bulk updates require the admin role")
	}
	if len(conversationIDs) == 0 {
		return nil, apierr.Validation("no conversation ids given")
	}

	switch action {
	case BulkActionAssign:
		if data.AdminID == nil || *data.AdminID == uuid.Nil {
			return nil, apierr.Validation("bulk_assign requires an admin id")
		}
	case BulkActionStatusChange:
		if !types.ValidStatus(data.Status) {
			return nil, apierr.Validation("bulk_status_change requires a valid status")
		}
	case BulkActionClose:
	default:
		return nil, apierr.Validation("unknown bulk action %q", action)
	}

	result := &BulkUpdateResult{
		Total:   len(conversationIDs),
		Results: make([]BulkItemResult, len(conversationIDs)),
	}

	var mu sync.Mutex
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(qs.bulkParallelism)

	for i, conversationID := range conversationIDs {
		i, conversationID := i, conversationID
		group.Go(func() error {
			var err error
			switch action {
			case BulkActionAssign:
				_, err = qs.conversationService.Assign(groupCtx, conversationID, *data.AdminID)
			case BulkActionStatusChange:
				_, err = qs.conversationService.ChangeStatus(groupCtx, conversationID, data.Status)
			case BulkActionClose:
				_, err = qs.conversationService.Close(groupCtx, conversationID)
			}

			item := BulkItemResult{ConversationID: conversationID, OK: err == nil}
			if err != nil {
				item.Error = err.Error()
				item.ErrorCode = apierr.CodeOf(err)
			}

			mu.Lock()
			result.Results[i] = item
			if err == nil {
				result.Successful++
			} else {
				result.Failed++
			}
			mu.Unlock()

			// Per-item failures are part of the result, never an abort.
			return nil
		})
	}
	_ = group.Wait()

	if qs.notifier != nil {
		qs.notifier.QueueChanged(ctx)
	}
	return result, nil
}
