package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"comms-hub/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ConversationStore manages conversations and their ordered message
// history.
type ConversationStore struct {
	db    *gorm.DB
	keyed *keyedMutex
}

func NewConversationStore(db *gorm.DB) *ConversationStore {
	return &ConversationStore{
		db:    db,
		keyed: newKeyedMutex(),
	}
}

func identityKey(channelID uint, externalID string) string {
	return fmt.Sprintf("%d:%s", channelID, externalID)
}

// GetOrCreate returns the conversation for (channel, external identity),
// creating it if none exists. Concurrent calls for the same identity are
// serialized, and the composite unique index on the table backstops any
// create race from another process.
func (s *ConversationStore) GetOrCreate(ctx context.Context, channelID uint, externalID string) (*models.Conversation, error) {
	if externalID == "" {
		return nil, fmt.Errorf("%w: external id is required", ErrValidation)
	}

	key := identityKey(channelID, externalID)
	s.keyed.Lock(key)
	defer s.keyed.Unlock(key)

	var conv models.Conversation
	err := s.db.WithContext(ctx).
		Where("channel_id = ? AND external_id = ?", channelID, externalID).
		First(&conv).Error
	if err == nil {
		return &conv, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	conv = models.Conversation{
		ID:            uuid.NewString(),
		ChannelID:     channelID,
		ExternalID:    externalID,
		Metadata:      []byte("{}"),
		Tags:          []byte("[]"),
		LastMessageAt: time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&conv).Error; err != nil {
		// Lost a cross-process race on the unique index: fetch the winner.
		var existing models.Conversation
		if ferr := s.db.WithContext(ctx).
			Where("channel_id = ? AND external_id = ?", channelID, externalID).
			First(&existing).Error; ferr == nil {
			return &existing, nil
		}
		return nil, err
	}
	return &conv, nil
}

// Get returns a conversation by id.
func (s *ConversationStore) Get(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := s.db.WithContext(ctx).First(&conv, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// List returns conversations ordered by most recent activity.
func (s *ConversationStore) List(ctx context.Context, limit int) ([]models.Conversation, error) {
	var convs []models.Conversation
	q := s.db.WithContext(ctx).Order("last_message_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&convs).Error; err != nil {
		return nil, err
	}
	return convs, nil
}

// AppendMessage appends an entry to the conversation history and bumps
// the conversation's last-activity timestamp.
func (s *ConversationStore) AppendMessage(ctx context.Context, conversationID string, fromUser bool, content string, attachments []string, metadata map[string]interface{}) (*models.ConversationMessage, error) {
	attachJSON, err := json.Marshal(attachmentsOrEmpty(attachments))
	if err != nil {
		return nil, err
	}
	metaJSON, err := json.Marshal(metadataOrEmpty(metadata))
	if err != nil {
		return nil, err
	}

	msg := models.ConversationMessage{
		ConversationID: conversationID,
		IsFromUser:     fromUser,
		Content:        content,
		Attachments:    attachJSON,
		Metadata:       metaJSON,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		if err := tx.Create(&msg).Error; err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_message_at", time.Now()).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// LastMessage returns the most recent history entry, or nil if the
// conversation has no messages yet.
func (s *ConversationStore) LastMessage(ctx context.Context, conversationID string) (*models.ConversationMessage, error) {
	var msg models.ConversationMessage
	err := s.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		First(&msg).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// Messages streams the conversation history in creation order,
// optionally restricted to entries created after since. Rows are read
// lazily as the sequence is consumed, and each range over the sequence
// re-runs the query from the start.
func (s *ConversationStore) Messages(ctx context.Context, conversationID string, since *time.Time) iter.Seq2[*models.ConversationMessage, error] {
	return func(yield func(*models.ConversationMessage, error) bool) {
		q := s.db.WithContext(ctx).
			Model(&models.ConversationMessage{}).
			Where("conversation_id = ?", conversationID).
			Order("id ASC")
		if since != nil {
			q = q.Where("created_at > ?", *since)
		}

		rows, err := q.Rows()
		if err != nil {
			yield(nil, err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var msg models.ConversationMessage
			if err := s.db.ScanRows(rows, &msg); err != nil {
				yield(nil, err)
				return
			}
			if !yield(&msg, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, err)
		}
	}
}

// ListMessages collects the Messages sequence into a slice.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID string, since *time.Time) ([]models.ConversationMessage, error) {
	var msgs []models.ConversationMessage
	for msg, err := range s.Messages(ctx, conversationID, since) {
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, *msg)
	}
	return msgs, nil
}

// MergeMetadata merges the given keys into the conversation's metadata.
func (s *ConversationStore) MergeMetadata(ctx context.Context, conversationID string, patch map[string]interface{}) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var conv models.Conversation
		if err := tx.First(&conv, "id = ?", conversationID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}

		meta := map[string]interface{}{}
		if len(conv.Metadata) > 0 {
			if err := json.Unmarshal(conv.Metadata, &meta); err != nil {
				meta = map[string]interface{}{}
			}
		}
		for k, v := range patch {
			meta[k] = v
		}
		merged, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("metadata", merged).Error
	})
}

func attachmentsOrEmpty(a []string) []string {
	if a == nil {
		return []string{}
	}
	return a
}

func metadataOrEmpty(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
