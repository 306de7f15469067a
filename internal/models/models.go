package models

import (
	"time"

	"gorm.io/datatypes"
)

// Channel types supported out of the box. The column is a plain string so
// new channel types can be added without a migration.
const (
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
	ChannelWebchat  = "webchat"
)

// Message delivery lifecycle. Transitions only move forward
// (pending -> sent -> delivered -> read) except "failed", which is
// reachable from any non-terminal state and is itself terminal.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusFailed    = "failed"
)

// Channel represents a messaging surface (email, WhatsApp, web chat).
type Channel struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	Name          string         `gorm:"type:varchar(100);not null" json:"name"`
	Type          string         `gorm:"type:varchar(20);not null;index" json:"type"`
	Configuration datatypes.JSON `gorm:"type:text" json:"configuration"`
	IsActive      bool           `gorm:"default:true" json:"is_active"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Channel) TableName() string {
	return "channels"
}

// Template represents a reusable outbound message body with variables.
type Template struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(200);not null" json:"name"`
	ChannelID uint      `gorm:"index;not null" json:"channel_id"`
	Subject   string    `gorm:"type:varchar(255)" json:"subject"`
	Content   string    `gorm:"type:text" json:"content"`
	Variables datatypes.JSON `gorm:"type:text" json:"variables"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Template) TableName() string {
	return "templates"
}

// Message represents a single outbound or inbound message on a channel.
type Message struct {
	ID          string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChannelID   uint           `gorm:"index;not null" json:"channel_id"`
	TemplateID  *uint          `json:"template_id,omitempty"`
	Sender      string         `gorm:"type:varchar(255)" json:"sender"`
	Recipient   string         `gorm:"type:varchar(255);not null" json:"recipient"`
	Subject     string         `gorm:"type:varchar(255)" json:"subject"`
	Content     string         `gorm:"type:text" json:"content"`
	Metadata    datatypes.JSON `gorm:"type:text" json:"metadata"`
	Status      string         `gorm:"type:varchar(20);default:'pending';index" json:"status"`
	ScheduledAt *time.Time     `gorm:"index" json:"scheduled_at,omitempty"`
	SentAt      *time.Time     `json:"sent_at,omitempty"`
	DeliveredAt *time.Time     `json:"delivered_at,omitempty"`
	ReadAt      *time.Time     `json:"read_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Message) TableName() string {
	return "messages"
}

// EmailDetails holds email-specific state for a message. Exactly one row
// per email message, enforced by the unique index on message_id.
type EmailDetails struct {
	ID        uint    `gorm:"primaryKey" json:"id"`
	MessageID string  `gorm:"type:varchar(36);not null;uniqueIndex" json:"message_id"`
	BatchID   *uint   `gorm:"index" json:"batch_id,omitempty"`
	Opens     int     `gorm:"default:0" json:"opens"`
	Clicks    int     `gorm:"default:0" json:"clicks"`
	SpamScore float64 `gorm:"default:0" json:"spam_score"`
}

func (EmailDetails) TableName() string {
	return "email_details"
}

// WhatsAppDetails holds WhatsApp-specific state for a message. Exactly one
// row per whatsapp message, enforced by the unique index on message_id.
type WhatsAppDetails struct {
	ID                uint   `gorm:"primaryKey" json:"id"`
	MessageID         string `gorm:"type:varchar(36);not null;uniqueIndex" json:"message_id"`
	MediaURL          string `gorm:"type:text" json:"media_url"`
	MediaType         string `gorm:"type:varchar(50)" json:"media_type"`
	ProviderMessageID string `gorm:"type:varchar(255);index" json:"provider_message_id"`
}

func (WhatsAppDetails) TableName() string {
	return "whatsapp_details"
}

// EmailBatch tracks a bulk ingestion run.
type EmailBatch struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Processed   bool      `gorm:"default:false" json:"processed"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (EmailBatch) TableName() string {
	return "email_batches"
}

// Conversation is the ongoing exchange with one external contact on one
// channel. At most one conversation exists per (channel, external_id),
// enforced by the composite unique index.
type Conversation struct {
	ID            string         `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ChannelID     uint           `gorm:"not null;uniqueIndex:idx_conversation_identity" json:"channel_id"`
	ExternalID    string         `gorm:"type:varchar(255);not null;uniqueIndex:idx_conversation_identity" json:"external_id"`
	UserID        *uint          `json:"user_id,omitempty"`
	Metadata      datatypes.JSON `gorm:"type:text" json:"metadata"`
	Tags          datatypes.JSON `gorm:"type:text" json:"tags"`
	StartedAt     time.Time      `gorm:"autoCreateTime" json:"started_at"`
	LastMessageAt time.Time      `gorm:"index" json:"last_message_at"`
}

func (Conversation) TableName() string {
	return "conversations"
}

// ConversationMessage is one entry in a conversation's ordered history.
// The autoincrement ID is the ordering ground truth within a conversation;
// created_at alone can collide at millisecond resolution.
type ConversationMessage struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	ConversationID string         `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	IsFromUser     bool           `gorm:"default:true" json:"is_from_user"`
	Content        string         `gorm:"type:text" json:"content"`
	Attachments    datatypes.JSON `gorm:"type:text" json:"attachments"`
	Metadata       datatypes.JSON `gorm:"type:text" json:"metadata"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func (ConversationMessage) TableName() string {
	return "conversation_messages"
}

// Intent is a classifiable user intention with its training phrases.
type Intent struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	Name            string         `gorm:"type:varchar(255);not null" json:"name"`
	Description     string         `gorm:"type:text" json:"description"`
	TrainingPhrases datatypes.JSON `gorm:"type:text" json:"training_phrases"`
}

func (Intent) TableName() string {
	return "intents"
}

// KnowledgeBase is a named key-value content store that responses can
// draw answers from.
type KnowledgeBase struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(255);not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	Content     datatypes.JSON `gorm:"type:text" json:"content"`
}

func (KnowledgeBase) TableName() string {
	return "knowledge_bases"
}

// ChatbotResponse is a canned reply registered for an intent, optionally
// linked to a knowledge base.
type ChatbotResponse struct {
	ID              uint   `gorm:"primaryKey" json:"id"`
	IntentID        uint   `gorm:"index;not null" json:"intent_id"`
	Text            string `gorm:"type:text" json:"text"`
	KnowledgeBaseID *uint  `json:"knowledge_base_id,omitempty"`
}

func (ChatbotResponse) TableName() string {
	return "chatbot_responses"
}

// ChatbotInteraction records one inbound turn: input, detected intent,
// confidence and the final response. Created exactly once per turn.
type ChatbotInteraction struct {
	ID             string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);not null;index" json:"conversation_id"`
	UserInput      string    `gorm:"type:text" json:"user_input"`
	IntentID       *uint     `json:"intent_id,omitempty"`
	IntentName     string    `gorm:"type:varchar(255)" json:"intent_name"`
	Confidence     float64   `gorm:"default:0" json:"confidence"`
	Response       string    `gorm:"type:text" json:"response"`
	FeedbackRating *int      `json:"feedback_rating,omitempty"`
	CreatedAt      time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ChatbotInteraction) TableName() string {
	return "chatbot_interactions"
}

// HandoffRule escalates a conversation to a human when confidence falls
// below the threshold. A nil IntentID makes the rule apply to all intents.
type HandoffRule struct {
	ID                  uint    `gorm:"primaryKey" json:"id"`
	IntentID            *uint   `gorm:"index" json:"intent_id,omitempty"`
	ConfidenceThreshold float64 `gorm:"default:0.7" json:"confidence_threshold"`
	IsActive            bool    `gorm:"default:true" json:"is_active"`
}

func (HandoffRule) TableName() string {
	return "handoff_rules"
}

// AutoReply is a canned response triggered by a substring match on inbound
// content, independent of intent classification.
type AutoReply struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	ChannelID      uint   `gorm:"index;not null" json:"channel_id"`
	Name           string `gorm:"type:varchar(255);not null" json:"name"`
	TriggerPattern string `gorm:"type:varchar(255);not null" json:"trigger_pattern"`
	ResponseText   string `gorm:"type:text" json:"response_text"`
	IsActive       bool   `gorm:"default:true" json:"is_active"`
}

func (AutoReply) TableName() string {
	return "auto_replies"
}

// ChannelMetrics is a per-channel daily counter row. One row per
// (channel, date), enforced by the composite unique index.
type ChannelMetrics struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	ChannelID              uint      `gorm:"not null;uniqueIndex:idx_channel_metrics_day" json:"channel_id"`
	Date                   time.Time `gorm:"type:date;not null;uniqueIndex:idx_channel_metrics_day" json:"date"`
	MessagesSent           int       `gorm:"default:0" json:"messages_sent"`
	MessagesDelivered      int       `gorm:"default:0" json:"messages_delivered"`
	MessagesRead           int       `gorm:"default:0" json:"messages_read"`
	ConversationsStarted   int       `gorm:"default:0" json:"conversations_started"`
	ConversationsCompleted int       `gorm:"default:0" json:"conversations_completed"`
	AverageResponseTime    float64   `gorm:"default:0" json:"average_response_time"`
}

func (ChannelMetrics) TableName() string {
	return "channel_metrics"
}

// ChatbotMetrics is a daily counter row for chatbot activity.
type ChatbotMetrics struct {
	ID                     uint      `gorm:"primaryKey" json:"id"`
	Date                   time.Time `gorm:"type:date;not null;uniqueIndex" json:"date"`
	InteractionsCount      int       `gorm:"default:0" json:"interactions_count"`
	SuccessfulInteractions int       `gorm:"default:0" json:"successful_interactions"`
	HandoffsCount          int       `gorm:"default:0" json:"handoffs_count"`
	AverageConfidence      float64   `gorm:"default:0" json:"average_confidence"`
	AverageFeedback        float64   `gorm:"default:0" json:"average_feedback"`
}

func (ChatbotMetrics) TableName() string {
	return "chatbot_metrics"
}
