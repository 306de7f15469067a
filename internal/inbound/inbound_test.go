package inbound

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"comms-hub/internal/channels"
	"comms-hub/internal/chatbot"
	"comms-hub/internal/database"
	"comms-hub/internal/dispatch"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProcessCreatesTurnAndReply(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)

	messages := store.NewMessageStore(db)
	conversations := store.NewConversationStore(db)
	bots := store.NewChatbotStore(db)

	ch := models.Channel{Name: "wa", Type: models.ChannelWhatsApp, Configuration: []byte("{}"), IsActive: true}
	require.NoError(t, db.Create(&ch).Error)

	classifier := chatbot.NewTFIDFClassifier(bots, 0.3)
	require.NoError(t, classifier.Retrain(context.Background()))
	orchestrator := chatbot.NewOrchestrator(conversations, bots, classifier, 0.4)

	// The dispatcher is never started, so the reply stays pending and
	// observable.
	dispatcher := dispatch.NewDispatcher(messages, channels.NewRegistry(db), 1, time.Second)

	svc := NewService(conversations, messages, orchestrator, dispatcher)
	ctx := context.Background()

	result, err := svc.Process(ctx, &ch, "15550100", "hello there")
	require.NoError(t, err)
	require.NotEmpty(t, result.ConversationID)
	require.NotEmpty(t, result.ReplyMessageID)
	assert.True(t, result.NeedsHandoff)

	reply, err := messages.Get(ctx, result.ReplyMessageID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, reply.Status)
	assert.Equal(t, "15550100", reply.Recipient)
	assert.Equal(t, result.Response, reply.Content)

	_, err = messages.GetWhatsAppDetails(ctx, reply.ID)
	require.NoError(t, err)

	// A second inbound message from the same contact lands in the same
	// conversation.
	again, err := svc.Process(ctx, &ch, "15550100", "still there?")
	require.NoError(t, err)
	assert.Equal(t, result.ConversationID, again.ConversationID)

	history, err := conversations.ListMessages(ctx, result.ConversationID, nil)
	require.NoError(t, err)
	assert.Len(t, history, 4)
}
