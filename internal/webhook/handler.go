// Package webhook receives WhatsApp Cloud API callbacks: inbound
// messages and delivery status updates.
package webhook

import (
	"errors"
	"net/http"

	"comms-hub/internal/channels"
	"comms-hub/internal/config"
	"comms-hub/internal/dispatch"
	"comms-hub/internal/inbound"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Payload is the WhatsApp webhook envelope.
type Payload struct {
	Object string `json:"object"`
	Entry  []struct {
		ID      string `json:"id"`
		Changes []struct {
			Value struct {
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text,omitempty"`
				} `json:"messages,omitempty"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					RecipientID string `json:"recipient_id"`
				} `json:"statuses,omitempty"`
			} `json:"value"`
			Field string `json:"field"`
		} `json:"changes"`
	} `json:"entry"`
}

type Handler struct {
	cfg      *config.Config
	registry *channels.Registry
	inbound  *inbound.Service
	messages *store.MessageStore
	tracker  *dispatch.Tracker
}

func NewHandler(cfg *config.Config, registry *channels.Registry, inboundSvc *inbound.Service, messages *store.MessageStore, tracker *dispatch.Tracker) *Handler {
	return &Handler{
		cfg:      cfg,
		registry: registry,
		inbound:  inboundSvc,
		messages: messages,
		tracker:  tracker,
	}
}

func (h *Handler) VerifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")
	challenge := c.Query("hub.challenge")

	if mode == "subscribe" && token == h.cfg.VerifyToken {
		log.Info("webhook verified")
		c.String(http.StatusOK, challenge)
		return
	}
	c.Status(http.StatusForbidden)
}

func (h *Handler) HandleWebhook(c *gin.Context) {
	var payload Payload
	if err := c.ShouldBindJSON(&payload); err != nil {
		log.WithError(err).Warn("malformed webhook payload")
		c.Status(http.StatusBadRequest)
		return
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, msg := range change.Value.Messages {
				if msg.Type != "text" {
					log.WithFields(log.Fields{"from": msg.From, "type": msg.Type}).
						Info("ignoring non-text inbound message")
					continue
				}
				h.processInbound(c, msg.From, msg.Text.Body)
			}
			for _, status := range change.Value.Statuses {
				h.processStatus(c, status.ID, status.Status)
			}
		}
	}

	// Always 200: the provider retries non-2xx responses and our
	// failures are not its problem.
	c.Status(http.StatusOK)
}

func (h *Handler) processInbound(c *gin.Context, from, text string) {
	ch, err := h.registry.ChannelByType(c.Request.Context(), models.ChannelWhatsApp)
	if err != nil {
		log.WithError(err).Error("no active whatsapp channel for inbound message")
		return
	}

	result, err := h.inbound.Process(c.Request.Context(), ch, from, text)
	if err != nil {
		log.WithError(err).WithField("from", from).Error("processing inbound message")
		return
	}
	log.WithFields(log.Fields{
		"from":    from,
		"intent":  result.Intent,
		"handoff": result.NeedsHandoff,
	}).Info("inbound message processed")
}

func (h *Handler) processStatus(c *gin.Context, providerRef, status string) {
	msg, err := h.messages.GetByProviderRef(c.Request.Context(), providerRef)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			log.WithError(err).WithField("provider_ref", providerRef).Error("resolving status callback")
		}
		return
	}

	var state channels.DeliveryState
	switch status {
	case "sent":
		state = channels.StateSent
	case "delivered":
		state = channels.StateDelivered
	case "read":
		state = channels.StateRead
	case "failed", "undelivered":
		state = channels.StateFailed
	default:
		state = channels.StateUnknown
	}

	if err := h.tracker.Apply(c.Request.Context(), msg.ID, state); err != nil {
		log.WithError(err).WithField("message_id", msg.ID).Error("applying status callback")
	}
}
