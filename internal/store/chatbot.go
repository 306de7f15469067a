package store

import (
	"context"
	"errors"
	"fmt"

	"comms-hub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChatbotStore manages intents, responses, handoff rules, auto-replies
// and interaction records.
type ChatbotStore struct {
	db *gorm.DB
}

func NewChatbotStore(db *gorm.DB) *ChatbotStore {
	return &ChatbotStore{db: db}
}

// ListIntents returns all intents with their training phrases.
func (s *ChatbotStore) ListIntents(ctx context.Context) ([]models.Intent, error) {
	var intents []models.Intent
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&intents).Error; err != nil {
		return nil, err
	}
	return intents, nil
}

func (s *ChatbotStore) GetIntent(ctx context.Context, id uint) (*models.Intent, error) {
	var intent models.Intent
	err := s.db.WithContext(ctx).First(&intent, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &intent, nil
}

func (s *ChatbotStore) CreateIntent(ctx context.Context, intent *models.Intent) error {
	return s.db.WithContext(ctx).Create(intent).Error
}

func (s *ChatbotStore) UpdateIntent(ctx context.Context, intent *models.Intent) error {
	res := s.db.WithContext(ctx).Model(&models.Intent{}).
		Where("id = ?", intent.ID).
		Updates(map[string]interface{}{
			"name":             intent.Name,
			"description":      intent.Description,
			"training_phrases": intent.TrainingPhrases,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ResponsesForIntent returns canned responses registered for an intent,
// in insertion order.
func (s *ChatbotStore) ResponsesForIntent(ctx context.Context, intentID uint) ([]models.ChatbotResponse, error) {
	var responses []models.ChatbotResponse
	if err := s.db.WithContext(ctx).
		Where("intent_id = ?", intentID).
		Order("id ASC").
		Find(&responses).Error; err != nil {
		return nil, err
	}
	return responses, nil
}

func (s *ChatbotStore) CreateResponse(ctx context.Context, resp *models.ChatbotResponse) error {
	return s.db.WithContext(ctx).Create(resp).Error
}

func (s *ChatbotStore) GetKnowledgeBase(ctx context.Context, id uint) (*models.KnowledgeBase, error) {
	var kb models.KnowledgeBase
	err := s.db.WithContext(ctx).First(&kb, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &kb, nil
}

func (s *ChatbotStore) CreateKnowledgeBase(ctx context.Context, kb *models.KnowledgeBase) error {
	return s.db.WithContext(ctx).Create(kb).Error
}

// ActiveHandoffRules returns the currently active handoff rules. The rule
// set may change between turns, so this is read fresh per evaluation.
func (s *ChatbotStore) ActiveHandoffRules(ctx context.Context) ([]models.HandoffRule, error) {
	var rules []models.HandoffRule
	if err := s.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("id ASC").
		Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (s *ChatbotStore) CreateHandoffRule(ctx context.Context, rule *models.HandoffRule) error {
	return s.db.WithContext(ctx).Create(rule).Error
}

// ActiveAutoReplies returns active auto-reply rules for a channel, in
// insertion order.
func (s *ChatbotStore) ActiveAutoReplies(ctx context.Context, channelID uint) ([]models.AutoReply, error) {
	var replies []models.AutoReply
	if err := s.db.WithContext(ctx).
		Where("channel_id = ? AND is_active = ?", channelID, true).
		Order("id ASC").
		Find(&replies).Error; err != nil {
		return nil, err
	}
	return replies, nil
}

func (s *ChatbotStore) CreateAutoReply(ctx context.Context, reply *models.AutoReply) error {
	return s.db.WithContext(ctx).Create(reply).Error
}

// CreateInteraction records one inbound turn.
func (s *ChatbotStore) CreateInteraction(ctx context.Context, interaction *models.ChatbotInteraction) error {
	if interaction.ID == "" {
		interaction.ID = uuid.NewString()
	}
	return s.db.WithContext(ctx).Create(interaction).Error
}

func (s *ChatbotStore) GetInteraction(ctx context.Context, id string) (*models.ChatbotInteraction, error) {
	var interaction models.ChatbotInteraction
	err := s.db.WithContext(ctx).First(&interaction, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &interaction, nil
}

// RecordFeedback sets the feedback rating on an interaction. Last write
// wins; a missing interaction reports ErrNotFound.
func (s *ChatbotStore) RecordFeedback(ctx context.Context, interactionID string, rating int) error {
	if rating < 1 || rating > 5 {
		return fmt.Errorf("%w: rating must be between 1 and 5", ErrValidation)
	}
	res := s.db.WithContext(ctx).Model(&models.ChatbotInteraction{}).
		Where("id = ?", interactionID).
		Update("feedback_rating", rating)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
