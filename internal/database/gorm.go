package database

import (
	"strings"

	"comms-hub/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Open connects to the database named by dsn and migrates the schema.
// A postgres DSN ("host=..." or "postgres://...") selects postgres,
// anything else is treated as a sqlite path.
func Open(dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if strings.HasPrefix(dsn, "host=") || strings.HasPrefix(dsn, "postgres://") {
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}

	if err := migrate(db); err != nil {
		return nil, err
	}

	log.WithField("dialect", db.Dialector.Name()).Info("database initialized")
	return db, nil
}

func migrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Channel{},
		&models.Template{},
		&models.Message{},
		&models.EmailDetails{},
		&models.WhatsAppDetails{},
		&models.EmailBatch{},
		&models.Conversation{},
		&models.ConversationMessage{},
		&models.Intent{},
		&models.KnowledgeBase{},
		&models.ChatbotResponse{},
		&models.ChatbotInteraction{},
		&models.HandoffRule{},
		&models.AutoReply{},
		&models.ChannelMetrics{},
		&models.ChatbotMetrics{},
	)
}
