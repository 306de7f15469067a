package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"comms-hub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// statusRank orders the forward-only part of the message lifecycle.
// "failed" is outside the ranking: reachable from any non-terminal state,
// terminal once reached.
var statusRank = map[string]int{
	models.StatusPending:   0,
	models.StatusSent:      1,
	models.StatusDelivered: 2,
	models.StatusRead:      3,
}

// MessageStore manages outbound/inbound messages and their delivery
// lifecycle.
type MessageStore struct {
	db *gorm.DB
}

func NewMessageStore(db *gorm.DB) *MessageStore {
	return &MessageStore{db: db}
}

// Create persists a new message in pending state and returns it with its
// assigned id.
func (s *MessageStore) Create(ctx context.Context, msg *models.Message) error {
	if msg.Recipient == "" {
		return fmt.Errorf("%w: recipient is required", ErrValidation)
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Status = models.StatusPending
	if len(msg.Metadata) == 0 {
		msg.Metadata = []byte("{}")
	}
	return s.db.WithContext(ctx).Create(msg).Error
}

// Get returns a message by id.
func (s *MessageStore) Get(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := s.db.WithContext(ctx).First(&msg, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// MarkSent moves a message to sent and stamps sent_at on the first call.
func (s *MessageStore) MarkSent(ctx context.Context, id string) error {
	return s.advance(ctx, id, models.StatusSent)
}

// MarkDelivered moves a message to delivered and stamps delivered_at on
// the first call.
func (s *MessageStore) MarkDelivered(ctx context.Context, id string) error {
	return s.advance(ctx, id, models.StatusDelivered)
}

// MarkRead moves a message to read. If delivered_at was never recorded
// (out-of-order provider callback), it is backfilled now.
func (s *MessageStore) MarkRead(ctx context.Context, id string) error {
	return s.advance(ctx, id, models.StatusRead)
}

// advance applies a monotonic status upgrade. Downgrades and repeated
// upgrades are no-ops; timestamps are set only the first time a state is
// reached.
func (s *MessageStore) advance(ctx context.Context, id, target string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.First(&msg, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if msg.Status == models.StatusFailed {
			return nil
		}
		if statusRank[target] <= statusRank[msg.Status] {
			return nil
		}

		now := time.Now()
		updates := map[string]interface{}{"status": target}
		switch target {
		case models.StatusSent:
			if msg.SentAt == nil {
				updates["sent_at"] = now
			}
		case models.StatusDelivered:
			if msg.DeliveredAt == nil {
				updates["delivered_at"] = now
			}
		case models.StatusRead:
			if msg.DeliveredAt == nil {
				updates["delivered_at"] = now
			}
			if msg.ReadAt == nil {
				updates["read_at"] = now
			}
		}
		return tx.Model(&models.Message{}).Where("id = ?", id).Updates(updates).Error
	})
}

// MarkFailed moves a message to the terminal failed state and records the
// error reason in its metadata. Already-failed messages are left alone.
func (s *MessageStore) MarkFailed(ctx context.Context, id, reason string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.First(&msg, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if msg.Status == models.StatusFailed {
			return nil
		}

		meta := map[string]interface{}{}
		if len(msg.Metadata) > 0 {
			json.Unmarshal(msg.Metadata, &meta)
		}
		meta["error"] = reason
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Model(&models.Message{}).Where("id = ?", id).Updates(map[string]interface{}{
			"status":   models.StatusFailed,
			"metadata": metaJSON,
		}).Error
	})
}

// DuePending returns pending messages whose scheduled time has passed
// (or that were never scheduled), oldest first.
func (s *MessageStore) DuePending(ctx context.Context, now time.Time, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := s.db.WithContext(ctx).
		Where("status = ?", models.StatusPending).
		Where("scheduled_at IS NULL OR scheduled_at <= ?", now).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// Unconfirmed returns messages that left pending but have no terminal
// confirmation yet, for the reconciliation pass. The batch is bounded so
// one pass cannot run unboundedly long.
func (s *MessageStore) Unconfirmed(ctx context.Context, limit int) ([]models.Message, error) {
	var msgs []models.Message
	q := s.db.WithContext(ctx).
		Where("status IN ?", []string{models.StatusSent, models.StatusDelivered}).
		Order("updated_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

// --- Channel-specific detail rows ---

func (s *MessageStore) CreateEmailDetails(ctx context.Context, details *models.EmailDetails) error {
	return s.db.WithContext(ctx).Create(details).Error
}

func (s *MessageStore) CreateWhatsAppDetails(ctx context.Context, details *models.WhatsAppDetails) error {
	return s.db.WithContext(ctx).Create(details).Error
}

func (s *MessageStore) GetEmailDetails(ctx context.Context, messageID string) (*models.EmailDetails, error) {
	var d models.EmailDetails
	err := s.db.WithContext(ctx).First(&d, "message_id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *MessageStore) GetWhatsAppDetails(ctx context.Context, messageID string) (*models.WhatsAppDetails, error) {
	var d models.WhatsAppDetails
	err := s.db.WithContext(ctx).First(&d, "message_id = ?", messageID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// SetProviderRef records the provider's message id for later status
// lookups.
func (s *MessageStore) SetProviderRef(ctx context.Context, messageID, providerRef string) error {
	res := s.db.WithContext(ctx).Model(&models.WhatsAppDetails{}).
		Where("message_id = ?", messageID).
		Update("provider_message_id", providerRef)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Not a whatsapp message; keep the ref in message metadata instead.
		return s.mergeMetadata(ctx, messageID, map[string]interface{}{"provider_ref": providerRef})
	}
	return nil
}

// ProviderRef returns the stored provider reference for a message, or ""
// when none was recorded.
func (s *MessageStore) ProviderRef(ctx context.Context, msg *models.Message) string {
	if d, err := s.GetWhatsAppDetails(ctx, msg.ID); err == nil && d.ProviderMessageID != "" {
		return d.ProviderMessageID
	}
	meta := map[string]interface{}{}
	if len(msg.Metadata) > 0 {
		json.Unmarshal(msg.Metadata, &meta)
	}
	if ref, ok := meta["provider_ref"].(string); ok {
		return ref
	}
	return ""
}

// GetByProviderRef resolves a message from the provider's message id, as
// reported in status callbacks.
func (s *MessageStore) GetByProviderRef(ctx context.Context, providerRef string) (*models.Message, error) {
	var d models.WhatsAppDetails
	err := s.db.WithContext(ctx).First(&d, "provider_message_id = ?", providerRef).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, d.MessageID)
}

func (s *MessageStore) IncrementOpens(ctx context.Context, emailDetailsID uint) error {
	res := s.db.WithContext(ctx).Model(&models.EmailDetails{}).
		Where("id = ?", emailDetailsID).
		Update("opens", gorm.Expr("opens + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MessageStore) IncrementClicks(ctx context.Context, emailDetailsID uint) error {
	res := s.db.WithContext(ctx).Model(&models.EmailDetails{}).
		Where("id = ?", emailDetailsID).
		Update("clicks", gorm.Expr("clicks + 1"))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MessageStore) SetSpamScore(ctx context.Context, messageID string, score float64) error {
	return s.db.WithContext(ctx).Model(&models.EmailDetails{}).
		Where("message_id = ?", messageID).
		Update("spam_score", score).Error
}

func (s *MessageStore) mergeMetadata(ctx context.Context, id string, patch map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var msg models.Message
		if err := tx.First(&msg, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		meta := map[string]interface{}{}
		if len(msg.Metadata) > 0 {
			json.Unmarshal(msg.Metadata, &meta)
		}
		for k, v := range patch {
			meta[k] = v
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Model(&models.Message{}).Where("id = ?", id).Update("metadata", metaJSON).Error
	})
}
