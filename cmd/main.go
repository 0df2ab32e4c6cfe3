package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yungbote/supportdesk-backend/internal/db"
	"github.com/yungbote/supportdesk-backend/internal/handlers"
	"github.com/yungbote/supportdesk-backend/internal/locks"
	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/middleware"
	"github.com/yungbote/supportdesk-backend/internal/repos"
	"github.com/yungbote/supportdesk-backend/internal/server"
	"github.com/yungbote/supportdesk-backend/internal/services"
	"github.com/yungbote/supportdesk-backend/internal/sse"
	"github.com/yungbote/supportdesk-backend/internal/utils"
)

func main() {
	mode := os.Getenv("APP_ENV")
	log, err := logger.New(mode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	postgres, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("Failed to connect to postgres", "error", err)
	}
	if err := postgres.AutoMigrateAll(); err != nil {
		log.Fatal("Failed to run migrations", "error", err)
	}
	gormDB := postgres.DB()

	conversationRepo := repos.NewConversationRepo(gormDB, log)
	messageRepo := repos.NewMessageRepo(gormDB, log)
	participantRepo := repos.NewParticipantRepo(gormDB, log)
	prefRepo := repos.NewNotificationPreferenceRepo(gormDB, log)

	hub := sse.NewSSEHub(log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Single-instance deployments emit straight into the local hub. With
	// REDIS_ADDR set, events round-trip through redis pub/sub so every
	// instance (this one included) delivers to its own connected clients.
	var emitter services.SSEEmitter = &services.HubEmitter{Hub: hub}
	if os.Getenv("REDIS_ADDR") != "" {
		bus, err := services.NewRedisSSEBus(log)
		if err != nil {
			log.Fatal("Failed to connect to redis", "error", err)
		}
		defer bus.Close()
		if err := bus.StartForwarder(ctx, hub.Broadcast); err != nil {
			log.Fatal("Failed to start SSE forwarder", "error", err)
		}
		emitter = &services.BusEmitter{Bus: bus}
	}

	notifier := services.NewConversationNotifier(log, emitter, prefRepo)
	lockManager := locks.NewManager()

	rateLimit := utils.GetEnvAsInt("MESSAGE_RATE_LIMIT", 30, log)
	rateWindow := utils.GetEnvAsDuration("MESSAGE_RATE_WINDOW", time.Minute, log)
	rateLimiter := services.NewRateLimiter(rateLimit, rateWindow)

	conversationService := services.NewConversationService(gormDB, log, conversationRepo, messageRepo, participantRepo, lockManager, notifier)
	messageService := services.NewMessageService(gormDB, log, conversationRepo, messageRepo, participantRepo, lockManager, rateLimiter, notifier)

	handoffCfg, err := services.LoadHandoffConfig(os.Getenv("HANDOFF_CONFIG_PATH"))
	if err != nil {
		log.Fatal("Failed to load handoff config", "error", err)
	}
	var classifier services.Classifier
	if c, err := services.NewHTTPClassifier(log); err != nil {
		log.Warn("Classifier disabled; escalation runs on keyword heuristics only", "error", err)
	} else {
		classifier = c
	}
	handoffService := services.NewHandoffService(log, handoffCfg, classifier, conversationService, messageService, conversationRepo, notifier)

	bulkParallelism := utils.GetEnvAsInt("BULK_PARALLELISM", 8, log)
	queueService := services.NewQueueService(gormDB, log, conversationRepo, messageRepo, conversationService, notifier, bulkParallelism)
	preferenceService := services.NewPreferenceService(gormDB, log, prefRepo)

	jwtSecret := utils.GetEnv("JWT_SECRET", "", log)
	if jwtSecret == "" {
		log.Fatal("JWT_SECRET is required")
	}
	authService := services.NewAuthService(log, jwtSecret)
	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	routerHandlers := server.Handlers{
		Conversation: handlers.NewConversationHandler(log, conversationService),
		Message:      handlers.NewMessageHandler(log, messageService),
		Handoff:      handlers.NewHandoffHandler(log, handoffService),
		Admin:        handlers.NewAdminHandler(log, conversationService, queueService),
		Preference:   handlers.NewPreferenceHandler(log, preferenceService),
		SSE:          handlers.NewSSEHandler(log, hub),
	}

	origins := strings.Split(utils.GetEnv("ALLOWED_ORIGINS", "http://localhost:3000", log), ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	router := server.NewRouter(server.RouterConfig{Mode: mode, AllowedOrigins: origins}, routerHandlers, authMiddleware)

	port := utils.GetEnv("PORT", "8080", log)
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", "error", err)
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Graceful shutdown failed", "error", err)
	}
}
