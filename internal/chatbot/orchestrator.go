package chatbot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"comms-hub/internal/models"
	"comms-hub/internal/store"

	log "github.com/sirupsen/logrus"
)

const (
	handoffNotice    = "I'll connect you with a human agent who can better assist you."
	genericFallback  = "I'm not sure I understand. Could you rephrase that?"
	intentFallbackFm = "I understand you're asking about %s, but I don't have specific information on that yet."
)

// TurnResult is the full observable outcome of one inbound turn.
type TurnResult struct {
	Response      string  `json:"response"`
	NeedsHandoff  bool    `json:"needs_handoff"`
	Intent        string  `json:"intent,omitempty"`
	Confidence    float64 `json:"confidence"`
	MessageID     uint    `json:"message_id"`
	InteractionID string  `json:"interaction_id"`
}

// Orchestrator drives the inbound turn state machine: append user
// message, classify, evaluate handoff policy, select a response, append
// the system message and record the interaction.
type Orchestrator struct {
	conversations *store.ConversationStore
	bots          *store.ChatbotStore
	classifier    IntentClassifier
	handoffFloor  float64
	logger        *log.Entry
}

func NewOrchestrator(conversations *store.ConversationStore, bots *store.ChatbotStore, classifier IntentClassifier, handoffFloor float64) *Orchestrator {
	return &Orchestrator{
		conversations: conversations,
		bots:          bots,
		classifier:    classifier,
		handoffFloor:  handoffFloor,
		logger:        log.WithField("component", "orchestrator"),
	}
}

// ProcessUserMessage runs one inbound turn. Storage failures abort the
// turn; classification never does. Every turn creates exactly one
// from-user message, one from-system message and one interaction record,
// whether or not the turn hands off.
func (o *Orchestrator) ProcessUserMessage(ctx context.Context, conversationID, userInput string) (*TurnResult, error) {
	conv, err := o.conversations.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	if _, err := o.conversations.AppendMessage(ctx, conversationID, true, userInput, nil, nil); err != nil {
		return nil, fmt.Errorf("appending user message: %w", err)
	}

	var (
		match        *IntentMatch
		confidence   float64
		responseText string
		needsHandoff bool
		sysMeta      = map[string]interface{}{}
	)

	// Auto-replies short-circuit the chatbot: a pattern match answers
	// directly without classification or handoff evaluation.
	if reply := o.matchAutoReply(ctx, conv.ChannelID, userInput); reply != nil {
		responseText = reply.ResponseText
		sysMeta["auto_reply_id"] = reply.ID
	} else {
		match, confidence = o.classify(userInput)

		rules, err := o.bots.ActiveHandoffRules(ctx)
		if err != nil {
			return nil, fmt.Errorf("loading handoff rules: %w", err)
		}
		needsHandoff = ShouldHandoff(match, confidence, rules, o.handoffFloor)

		if needsHandoff {
			responseText = handoffNotice
			if err := o.conversations.MergeMetadata(ctx, conversationID, map[string]interface{}{
				"needs_handoff":        true,
				"handoff_requested_at": time.Now().Format(time.RFC3339),
			}); err != nil {
				return nil, fmt.Errorf("flagging handoff: %w", err)
			}
		} else {
			responseText, err = o.selectResponse(ctx, match, userInput)
			if err != nil {
				return nil, err
			}
		}
	}

	intentName := ""
	var intentID *uint
	if match != nil {
		intentName = match.Name
		id := match.IntentID
		intentID = &id
	}
	sysMeta["intent"] = intentName
	sysMeta["confidence"] = confidence
	sysMeta["needs_handoff"] = needsHandoff

	sysMsg, err := o.conversations.AppendMessage(ctx, conversationID, false, responseText, nil, sysMeta)
	if err != nil {
		return nil, fmt.Errorf("appending system message: %w", err)
	}

	interaction := models.ChatbotInteraction{
		ConversationID: conversationID,
		UserInput:      userInput,
		IntentID:       intentID,
		IntentName:     intentName,
		Confidence:     confidence,
		Response:       responseText,
	}
	if err := o.bots.CreateInteraction(ctx, &interaction); err != nil {
		return nil, fmt.Errorf("recording interaction: %w", err)
	}

	return &TurnResult{
		Response:      responseText,
		NeedsHandoff:  needsHandoff,
		Intent:        intentName,
		Confidence:    confidence,
		MessageID:     sysMsg.ID,
		InteractionID: interaction.ID,
	}, nil
}

// RecordFeedback sets the feedback rating on an interaction; last write
// wins.
func (o *Orchestrator) RecordFeedback(ctx context.Context, interactionID string, rating int) error {
	return o.bots.RecordFeedback(ctx, interactionID, rating)
}

// classify never fails a turn: a panicking or missing classifier counts
// as no-match so the user always gets a response.
func (o *Orchestrator) classify(text string) (match *IntentMatch, confidence float64) {
	if o.classifier == nil {
		return nil, 0.0
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.WithField("panic", r).Error("classifier panicked, treating as no match")
			match = nil
			confidence = 0.0
		}
	}()
	return o.classifier.Classify(text)
}

func (o *Orchestrator) matchAutoReply(ctx context.Context, channelID uint, input string) *models.AutoReply {
	replies, err := o.bots.ActiveAutoReplies(ctx, channelID)
	if err != nil {
		o.logger.WithError(err).Warn("auto-reply lookup failed, continuing without")
		return nil
	}
	lower := strings.ToLower(input)
	for i := range replies {
		if strings.Contains(lower, strings.ToLower(replies[i].TriggerPattern)) {
			return &replies[i]
		}
	}
	return nil
}

// selectResponse picks the reply for a non-handoff turn: the first canned
// response for the intent, a knowledge-base value when one of its keys
// appears in the user input, or a fallback.
func (o *Orchestrator) selectResponse(ctx context.Context, match *IntentMatch, userInput string) (string, error) {
	if match == nil {
		return genericFallback, nil
	}

	responses, err := o.bots.ResponsesForIntent(ctx, match.IntentID)
	if err != nil {
		return "", fmt.Errorf("loading responses: %w", err)
	}
	if len(responses) == 0 {
		return fmt.Sprintf(intentFallbackFm, match.Name), nil
	}

	response := responses[0]
	if response.KnowledgeBaseID != nil {
		kb, err := o.bots.GetKnowledgeBase(ctx, *response.KnowledgeBaseID)
		if err == nil {
			if answer, ok := lookupKnowledgeBase(kb.Content, userInput); ok {
				return answer, nil
			}
		} else if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("loading knowledge base: %w", err)
		}
	}
	return response.Text, nil
}

// lookupKnowledgeBase scans the knowledge base entries for a key literally
// contained in the user input (case-insensitive). The first matching key
// in document order wins, which is why this walks the raw JSON instead of
// unmarshalling into a map.
func lookupKnowledgeBase(content []byte, userInput string) (string, bool) {
	if len(content) == 0 {
		return "", false
	}
	dec := json.NewDecoder(bytes.NewReader(content))
	tok, err := dec.Token()
	if err != nil {
		return "", false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", false
	}

	lowerInput := strings.ToLower(userInput)
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return "", false
		}
		key, _ := keyTok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return "", false
		}
		if key == "" || !strings.Contains(lowerInput, strings.ToLower(key)) {
			continue
		}
		var text string
		if err := json.Unmarshal(value, &text); err == nil {
			return text, true
		}
		return string(value), true
	}
	return "", false
}
