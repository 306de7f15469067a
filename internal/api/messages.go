package api

import (
	"errors"
	"net/http"
	"time"

	"comms-hub/internal/dispatch"
	"comms-hub/internal/models"
	"comms-hub/internal/store"
	"comms-hub/internal/template"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type MessageHandler struct {
	db         *gorm.DB
	messages   *store.MessageStore
	dispatcher *dispatch.Dispatcher
}

func NewMessageHandler(db *gorm.DB, messages *store.MessageStore, dispatcher *dispatch.Dispatcher) *MessageHandler {
	return &MessageHandler{
		db:         db,
		messages:   messages,
		dispatcher: dispatcher,
	}
}

type sendRequest struct {
	ChannelID   uint              `json:"channel_id" binding:"required"`
	Recipient   string            `json:"recipient" binding:"required"`
	Subject     string            `json:"subject"`
	Content     string            `json:"content"`
	TemplateID  *uint             `json:"template_id"`
	Bindings    map[string]string `json:"bindings"`
	ScheduledAt *time.Time        `json:"scheduled_at"`
}

// SendMessage creates an outbound message and hands it to the dispatch
// queue, or leaves it pending until its scheduled time. With a template
// id the content and subject are rendered from the template; a binding
// missing a referenced variable is a client error.
func (h *MessageHandler) SendMessage(c *gin.Context) {
	var req sendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var ch models.Channel
	err := h.db.WithContext(c.Request.Context()).First(&ch, req.ChannelID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channel"})
		return
	}

	msg := models.Message{
		ChannelID:   ch.ID,
		Recipient:   req.Recipient,
		Subject:     req.Subject,
		Content:     req.Content,
		TemplateID:  req.TemplateID,
		ScheduledAt: req.ScheduledAt,
	}

	if req.TemplateID != nil {
		var tmpl models.Template
		err := h.db.WithContext(c.Request.Context()).First(&tmpl, *req.TemplateID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
			return
		}

		content, err := template.Render(tmpl.Name, tmpl.Content, req.Bindings)
		if err != nil {
			var renderErr *template.RenderError
			if errors.As(err, &renderErr) {
				c.JSON(http.StatusBadRequest, gin.H{"error": renderErr.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render template"})
			return
		}
		msg.Content = content

		if tmpl.Subject != "" {
			subject, err := template.Render(tmpl.Name+".subject", tmpl.Subject, req.Bindings)
			if err != nil {
				var renderErr *template.RenderError
				if errors.As(err, &renderErr) {
					c.JSON(http.StatusBadRequest, gin.H{"error": renderErr.Error()})
					return
				}
				c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to render template"})
				return
			}
			msg.Subject = subject
		}
	}

	if err := h.messages.Create(c.Request.Context(), &msg); err != nil {
		if errors.Is(err, store.ErrValidation) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create message"})
		return
	}

	switch ch.Type {
	case models.ChannelEmail:
		if err := h.messages.CreateEmailDetails(c.Request.Context(), &models.EmailDetails{MessageID: msg.ID}); err != nil {
			log.WithError(err).WithField("message_id", msg.ID).Warn("creating email details")
		}
	case models.ChannelWhatsApp:
		if err := h.messages.CreateWhatsAppDetails(c.Request.Context(), &models.WhatsAppDetails{MessageID: msg.ID}); err != nil {
			log.WithError(err).WithField("message_id", msg.ID).Warn("creating whatsapp details")
		}
	}

	if msg.ScheduledAt == nil || !msg.ScheduledAt.After(time.Now()) {
		h.dispatcher.Enqueue(msg.ID)
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *MessageHandler) GetMessage(c *gin.Context) {
	msg, err := h.messages.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "message not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load message"})
		return
	}
	c.JSON(http.StatusOK, msg)
}

// trackingPixel is a 1x1 transparent GIF.
var trackingPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00, 0x01, 0x00, 0x80, 0x00,
	0x00, 0x00, 0x00, 0x00, 0xff, 0xff, 0xff, 0x21, 0xf9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2c, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x01, 0x00,
	0x00, 0x02, 0x02, 0x44, 0x01, 0x00, 0x3b,
}

// TrackOpen serves the open-tracking pixel and bumps the open counter.
// It always returns the pixel, even for unknown message ids, so broken
// tracking never shows up as a broken image in the recipient's client.
func (h *MessageHandler) TrackOpen(c *gin.Context) {
	messageID := c.Param("id")
	details, err := h.messages.GetEmailDetails(c.Request.Context(), messageID)
	if err == nil {
		if err := h.messages.IncrementOpens(c.Request.Context(), details.ID); err != nil {
			log.WithError(err).WithField("message_id", messageID).Warn("recording email open")
		}
	}
	c.Data(http.StatusOK, "image/gif", trackingPixel)
}

// TrackClick bumps the click counter and redirects to the target url.
func (h *MessageHandler) TrackClick(c *gin.Context) {
	messageID := c.Param("id")
	target := c.Query("url")
	if target == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing url parameter"})
		return
	}

	details, err := h.messages.GetEmailDetails(c.Request.Context(), messageID)
	if err == nil {
		if err := h.messages.IncrementClicks(c.Request.Context(), details.ID); err != nil {
			log.WithError(err).WithField("message_id", messageID).Warn("recording email click")
		}
	}
	c.Redirect(http.StatusFound, target)
}
