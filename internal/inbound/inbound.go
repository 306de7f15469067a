// Package inbound glues an arriving channel event to the orchestrator
// and dispatches the generated reply back out.
package inbound

import (
	"context"
	"fmt"

	"comms-hub/internal/chatbot"
	"comms-hub/internal/dispatch"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	log "github.com/sirupsen/logrus"
)

// Result is a turn result plus the id of the outbound reply message, when
// one was created.
type Result struct {
	*chatbot.TurnResult
	ConversationID string `json:"conversation_id"`
	ReplyMessageID string `json:"reply_message_id,omitempty"`
}

// Service processes inbound channel events end to end: conversation
// lookup, the orchestrated turn, then asynchronous reply dispatch.
type Service struct {
	conversations *store.ConversationStore
	messages      *store.MessageStore
	orchestrator  *chatbot.Orchestrator
	dispatcher    *dispatch.Dispatcher
	logger        *log.Entry
}

func NewService(conversations *store.ConversationStore, messages *store.MessageStore, orchestrator *chatbot.Orchestrator, dispatcher *dispatch.Dispatcher) *Service {
	return &Service{
		conversations: conversations,
		messages:      messages,
		orchestrator:  orchestrator,
		dispatcher:    dispatcher,
		logger:        log.WithField("component", "inbound"),
	}
}

// Process handles one inbound event from a contact. The turn's records
// are committed before dispatch runs, so a transport failure can never
// undo the conversation history; it surfaces later as a delivery-status
// change on the reply message.
func (s *Service) Process(ctx context.Context, ch *models.Channel, externalID, text string) (*Result, error) {
	conv, err := s.conversations.GetOrCreate(ctx, ch.ID, externalID)
	if err != nil {
		return nil, fmt.Errorf("resolving conversation: %w", err)
	}

	turn, err := s.orchestrator.ProcessUserMessage(ctx, conv.ID, text)
	if err != nil {
		return nil, err
	}

	reply := models.Message{
		ChannelID: ch.ID,
		Recipient: externalID,
		Content:   turn.Response,
	}
	if err := s.messages.Create(ctx, &reply); err != nil {
		// The turn itself committed; the missing outbound row is
		// recoverable state, not a turn failure.
		s.logger.WithError(err).WithField("conversation_id", conv.ID).
			Error("creating reply message")
		return &Result{TurnResult: turn, ConversationID: conv.ID}, nil
	}
	if ch.Type == models.ChannelWhatsApp {
		if err := s.messages.CreateWhatsAppDetails(ctx, &models.WhatsAppDetails{MessageID: reply.ID}); err != nil {
			s.logger.WithError(err).WithField("message_id", reply.ID).Warn("creating whatsapp details")
		}
	}
	s.dispatcher.Enqueue(reply.ID)

	return &Result{TurnResult: turn, ConversationID: conv.ID, ReplyMessageID: reply.ID}, nil
}
