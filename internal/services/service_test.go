package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/yungbote/supportdesk-backend/internal/locks"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/requestdata"
	"github.com/yungbote/supportdesk-backend/internal/types"
)

var testDBCounter atomic.Int64

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:servicetest%d?mode=memory&cache=shared", testDBCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// A shared in-memory database vanishes when its last connection closes.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(
		&types.Conversation{},
		&types.Message{},
		&types.Participant{},
		&types.NotificationPreference{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testStack wires the full service graph against an isolated database.
type testStack struct {
	db                  *gorm.DB
	conversationRepo    repos.ConversationRepo
	messageRepo         repos.MessageRepo
	participantRepo     repos.ParticipantRepo
	prefRepo            repos.NotificationPreferenceRepo
	rateLimiter         *RateLimiter
	conversationService ConversationService
	messageService      MessageService
}

func newTestStack(t *testing.T) *testStack {
	t.Helper()
	db := newTestDB(t)
	log := logger.NewNop()

	conversationRepo := repos.NewConversationRepo(db, log)
	messageRepo := repos.NewMessageRepo(db, log)
	participantRepo := repos.NewParticipantRepo(db, log)
	prefRepo := repos.NewNotificationPreferenceRepo(db, log)

	lockManager := locks.NewManager()
	rateLimiter := NewRateLimiter(30, time.Minute)

	conversationService := NewConversationService(db, log, conversationRepo, messageRepo, participantRepo, lockManager, nil)
	messageService := NewMessageService(db, log, conversationRepo, messageRepo, participantRepo, lockManager, rateLimiter, nil)

	return &testStack{
		db:                  db,
		conversationRepo:    conversationRepo,
		messageRepo:         messageRepo,
		participantRepo:     participantRepo,
		prefRepo:            prefRepo,
		rateLimiter:         rateLimiter,
		conversationService: conversationService,
		messageService:      messageService,
	}
}

func userContext(userID uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		UserID:    userID,
		Role:      requestdata.RoleUser,
		SessionID: uuid.New(),
	})
}

func adminContext(adminID uuid.UUID) context.Context {
	return requestdata.WithRequestData(context.Background(), &requestdata.RequestData{
		UserID:    adminID,
		Role:      requestdata.RoleAdmin,
		SessionID: uuid.New(),
	})
}

func mustCreateConversation(t *testing.T, stack *testStack, ctx context.Context, subject string) *types.Conversation {
	t.Helper()
	conversation, _, err := stack.conversationService.Create(ctx, CreateConversationInput{Subject: subject})
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conversation
}
