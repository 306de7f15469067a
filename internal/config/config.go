package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Port string

	// DBDSN is either a postgres DSN or a path to a sqlite file.
	DBDSN string

	// WhatsApp Cloud API
	VerifyToken   string
	WhatsAppToken string
	PhoneNumberID string

	// SMTP
	SMTPHost     string
	SMTPPort     int
	SMTPUsername string
	SMTPPassword string
	FromEmail    string
	FromName     string

	// Chatbot
	HandoffConfidenceFloor  float64
	ClassifierMinSimilarity float64

	// Background workers
	DispatchWorkers        int
	DispatchTimeoutSeconds int
	ReconcileSeconds       int
	ReconcileBatchSize     int
	ScheduleSweepSeconds   int
	RetrainSeconds         int
}

func LoadConfig() *Config {
	err := godotenv.Load()
	if err != nil {
		log.Println("Warning: Error loading .env file")
	}

	return &Config{
		Port:                    getEnv("PORT", "8080"),
		DBDSN:                   getEnv("DB_DSN", "./commshub.db"),
		VerifyToken:             getEnv("VERIFY_TOKEN", ""),
		WhatsAppToken:           getEnv("WHATSAPP_TOKEN", ""),
		PhoneNumberID:           getEnv("PHONE_NUMBER_ID", ""),
		SMTPHost:                getEnv("SMTP_HOST", "localhost"),
		SMTPPort:                getEnvInt("SMTP_PORT", 587),
		SMTPUsername:            getEnv("SMTP_USERNAME", ""),
		SMTPPassword:            getEnv("SMTP_PASSWORD", ""),
		FromEmail:               getEnv("FROM_EMAIL", "noreply@localhost"),
		FromName:                getEnv("FROM_NAME", "Comms Hub"),
		HandoffConfidenceFloor:  getEnvFloat("HANDOFF_CONFIDENCE_FLOOR", 0.4),
		ClassifierMinSimilarity: getEnvFloat("CLASSIFIER_MIN_SIMILARITY", 0.3),
		DispatchWorkers:         getEnvInt("DISPATCH_WORKERS", 4),
		DispatchTimeoutSeconds:  getEnvInt("DISPATCH_TIMEOUT_SECONDS", 30),
		ReconcileSeconds:        getEnvInt("RECONCILE_INTERVAL_SECONDS", 60),
		ReconcileBatchSize:      getEnvInt("RECONCILE_BATCH_SIZE", 100),
		ScheduleSweepSeconds:    getEnvInt("SCHEDULE_SWEEP_INTERVAL_SECONDS", 30),
		RetrainSeconds:          getEnvInt("RETRAIN_INTERVAL_SECONDS", 300),
	}
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("Warning: invalid value for %s, using default %d", key, fallback)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid value for %s, using default %g", key, fallback)
	}
	return fallback
}
