package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"comms-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetOrCreateIdempotent(t *testing.T) {
	s := NewConversationStore(testDB(t))
	ctx := context.Background()

	first, err := s.GetOrCreate(ctx, 1, "wa-555-0100")
	require.NoError(t, err)
	require.NotEmpty(t, first.ID)

	second, err := s.GetOrCreate(ctx, 1, "wa-555-0100")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// Same contact on a different channel is a different conversation.
	other, err := s.GetOrCreate(ctx, 2, "wa-555-0100")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestGetOrCreateConcurrent(t *testing.T) {
	db := testDB(t)
	s := NewConversationStore(db)
	ctx := context.Background()

	const n = 10
	ids := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, err := s.GetOrCreate(ctx, 1, "contact-1")
			if assert.NoError(t, err) {
				ids[i] = conv.ID
			}
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Equal(t, ids[0], ids[i])
	}

	var count int64
	require.NoError(t, db.Model(&models.Conversation{}).
		Where("channel_id = ? AND external_id = ?", 1, "contact-1").
		Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestGetOrCreateRequiresExternalID(t *testing.T) {
	s := NewConversationStore(testDB(t))

	_, err := s.GetOrCreate(context.Background(), 1, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAppendMessageOrdering(t *testing.T) {
	s := NewConversationStore(testDB(t))
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, 1, "session-1")
	require.NoError(t, err)

	for _, content := range []string{"first", "second", "third"} {
		_, err := s.AppendMessage(ctx, conv.ID, true, content, nil, nil)
		require.NoError(t, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID, nil)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "second", msgs[1].Content)
	assert.Equal(t, "third", msgs[2].Content)

	last, err := s.LastMessage(ctx, conv.ID)
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "third", last.Content)

	updated, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)
	assert.False(t, updated.LastMessageAt.Before(conv.LastMessageAt))
}

func TestMessagesSequence(t *testing.T) {
	s := NewConversationStore(testDB(t))
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, 1, "stream")
	require.NoError(t, err)
	for _, content := range []string{"one", "two", "three"} {
		_, err := s.AppendMessage(ctx, conv.ID, true, content, nil, nil)
		require.NoError(t, err)
	}

	// Consumers can stop early without draining the sequence.
	var collected []string
	for msg, err := range s.Messages(ctx, conv.ID, nil) {
		require.NoError(t, err)
		collected = append(collected, msg.Content)
		if len(collected) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"one", "two"}, collected)

	// Ranging again restarts from the beginning.
	collected = nil
	for msg, err := range s.Messages(ctx, conv.ID, nil) {
		require.NoError(t, err)
		collected = append(collected, msg.Content)
	}
	assert.Equal(t, []string{"one", "two", "three"}, collected)
}

func TestMessagesSince(t *testing.T) {
	s := NewConversationStore(testDB(t))
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, 1, "since")
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, conv.ID, true, "old", nil, nil)
	require.NoError(t, err)

	cutoff := time.Now()
	time.Sleep(5 * time.Millisecond)
	_, err = s.AppendMessage(ctx, conv.ID, true, "new", nil, nil)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID, &cutoff)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "new", msgs[0].Content)
}

func TestAppendMessageUnknownConversation(t *testing.T) {
	s := NewConversationStore(testDB(t))

	_, err := s.AppendMessage(context.Background(), "no-such-id", true, "hi", nil, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLastMessageEmptyHistory(t *testing.T) {
	s := NewConversationStore(testDB(t))
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, 1, "quiet")
	require.NoError(t, err)

	last, err := s.LastMessage(ctx, conv.ID)
	require.NoError(t, err)
	assert.Nil(t, last)
}

func TestMergeMetadata(t *testing.T) {
	s := NewConversationStore(testDB(t))
	ctx := context.Background()

	conv, err := s.GetOrCreate(ctx, 1, "meta")
	require.NoError(t, err)

	require.NoError(t, s.MergeMetadata(ctx, conv.ID, map[string]interface{}{"a": "1"}))
	require.NoError(t, s.MergeMetadata(ctx, conv.ID, map[string]interface{}{"b": "2"}))

	got, err := s.Get(ctx, conv.ID)
	require.NoError(t, err)

	meta := map[string]interface{}{}
	require.NoError(t, json.Unmarshal(got.Metadata, &meta))
	assert.Equal(t, "1", meta["a"])
	assert.Equal(t, "2", meta["b"])

	assert.ErrorIs(t, s.MergeMetadata(ctx, "no-such-id", map[string]interface{}{"a": "1"}), ErrNotFound)
}
