package store

import (
	"context"
	"testing"

	"comms-hub/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordFeedback(t *testing.T) {
	s := NewChatbotStore(testDB(t))
	ctx := context.Background()

	interaction := models.ChatbotInteraction{
		ConversationID: "conv-1",
		UserInput:      "hello",
		Response:       "hi there",
	}
	require.NoError(t, s.CreateInteraction(ctx, &interaction))
	require.NotEmpty(t, interaction.ID)

	require.NoError(t, s.RecordFeedback(ctx, interaction.ID, 5))
	require.NoError(t, s.RecordFeedback(ctx, interaction.ID, 2))

	got, err := s.GetInteraction(ctx, interaction.ID)
	require.NoError(t, err)
	require.NotNil(t, got.FeedbackRating)
	assert.Equal(t, 2, *got.FeedbackRating)
}

func TestRecordFeedbackValidation(t *testing.T) {
	s := NewChatbotStore(testDB(t))
	ctx := context.Background()

	assert.ErrorIs(t, s.RecordFeedback(ctx, "whatever", 0), ErrValidation)
	assert.ErrorIs(t, s.RecordFeedback(ctx, "whatever", 6), ErrValidation)
	assert.ErrorIs(t, s.RecordFeedback(ctx, "no-such-id", 3), ErrNotFound)
}

func TestActiveHandoffRules(t *testing.T) {
	s := NewChatbotStore(testDB(t))
	ctx := context.Background()

	active := models.HandoffRule{ConfidenceThreshold: 0.6, IsActive: true}
	require.NoError(t, s.CreateHandoffRule(ctx, &active))
	inactive := models.HandoffRule{ConfidenceThreshold: 0.9, IsActive: false}
	require.NoError(t, s.CreateHandoffRule(ctx, &inactive))

	rules, err := s.ActiveHandoffRules(ctx)
	require.NoError(t, err)
	require.Len(t, rules, 1)
	assert.Equal(t, active.ID, rules[0].ID)
}

func TestActiveAutoRepliesScopedToChannel(t *testing.T) {
	s := NewChatbotStore(testDB(t))
	ctx := context.Background()

	require.NoError(t, s.CreateAutoReply(ctx, &models.AutoReply{
		ChannelID: 1, Name: "promo", TriggerPattern: "promo", ResponseText: "Use code WELCOME", IsActive: true,
	}))
	require.NoError(t, s.CreateAutoReply(ctx, &models.AutoReply{
		ChannelID: 2, Name: "other", TriggerPattern: "promo", ResponseText: "n/a", IsActive: true,
	}))
	require.NoError(t, s.CreateAutoReply(ctx, &models.AutoReply{
		ChannelID: 1, Name: "off", TriggerPattern: "promo", ResponseText: "n/a", IsActive: false,
	}))

	replies, err := s.ActiveAutoReplies(ctx, 1)
	require.NoError(t, err)
	require.Len(t, replies, 1)
	assert.Equal(t, "promo", replies[0].Name)
}
