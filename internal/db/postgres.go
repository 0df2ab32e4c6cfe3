package db

import (
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/yungbote/supportdesk-backend/internal/logger"
	"github.com/yungbote/supportdesk-backend/internal/types"
	"github.com/yungbote/supportdesk-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewPostgresService(log *logger.Logger) (*PostgresService, error) {
	serviceLog := log.With("service", "PostgresService")

	postgresHost := utils.GetEnv("POSTGRES_HOST", "localhost", log)
	postgresPort := utils.GetEnv("POSTGRES_PORT", "5432", log)
	postgresUser := utils.GetEnv("POSTGRES_USER", "postgres", log)
	postgresPassword := utils.GetEnv("POSTGRES_PASSWORD", "", log)
	postgresName := utils.GetEnv("POSTGRES_NAME", "supportdesk", log)

	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", postgresUser, postgresPassword, postgresHost, postgresPort, postgresName)

	log.Info("Connecting to Postgres...")
	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		serviceLog.Error("Failed to connect to Postgres", "error", err)
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	return &PostgresService{db: gdb, log: serviceLog}, nil
}

func (s *PostgresService) AutoMigrateAll() error {
	s.log.Info("Auto migrating postgres tables...")
	err := s.db.AutoMigrate(
		&types.Conversation{},
		&types.Message{},
		&types.Participant{},
		&types.NotificationPreference{},
	)
	if err != nil {
		s.log.Error("Auto migration failed for postgres tables", "error", err)
		return err
	}

	s.log.Info("Configuring foreign key relationships for postgres tables...")
	for name, stmt := range map[string]string{
		"fk_message_conversation_id": `
			ALTER TABLE "message"
			ADD CONSTRAINT "fk_message_conversation_id"
			FOREIGN KEY ("conversation_id")
			REFERENCES "conversation"("id")
		`,
		"fk_participant_conversation_id": `
			ALTER TABLE "participant"
			ADD CONSTRAINT "fk_participant_conversation_id"
			FOREIGN KEY ("conversation_id")
			REFERENCES "conversation"("id")
			ON DELETE CASCADE
		`,
	} {
		if err := s.db.Exec(stmt).Error; err != nil {
			s.log.Warn("Foreign key already present or failed", "constraint", name, "error", err)
		}
	}

	s.log.Info("Configuring check constraints for postgres tables...")
	for name, stmt := range map[string]string{
		"chk_conversation_subject": `
			ALTER TABLE "conversation"
			ADD CONSTRAINT "chk_conversation_subject"
			CHECK (length(trim(subject)) > 0)
		`,
		"chk_conversation_status": `
			ALTER TABLE "conversation"
			ADD CONSTRAINT "chk_conversation_status"
			CHECK (status IN ('open', 'in_progress', 'closed', 'transferred'))
		`,
		"chk_conversation_priority": `
			ALTER TABLE "conversation"
			ADD CONSTRAINT "chk_conversation_priority"
			CHECK (priority IN ('low', 'normal', 'high', 'urgent'))
		`,
		"chk_conversation_type": `
			ALTER TABLE "conversation"
			ADD CONSTRAINT "chk_conversation_type"
			CHECK (type IN ('support', 'ai_handoff'))
		`,
		"chk_message_content": `
			ALTER TABLE "message"
			ADD CONSTRAINT "chk_message_content"
			CHECK (length(content) > 0)
		`,
		"chk_message_sender_type": `
			ALTER TABLE "message"
			ADD CONSTRAINT "chk_message_sender_type"
			CHECK (sender_type IN ('user', 'admin', 'system'))
		`,
		"chk_message_type": `
			ALTER TABLE "message"
			ADD CONSTRAINT "chk_message_type"
			CHECK (message_type IN ('text', 'system', 'handoff', 'file'))
		`,
		"chk_message_sender_id": `
			ALTER TABLE "message"
			ADD CONSTRAINT "chk_message_sender_id"
			CHECK (sender_type = 'system' OR sender_id IS NOT NULL)
		`,
	} {
		if err := s.db.Exec(stmt).Error; err != nil {
			s.log.Warn("Check constraint already present or failed", "constraint", name, "error", err)
		}
	}
	return nil
}

func (s *PostgresService) DB() *gorm.DB {
	return s.db
}
