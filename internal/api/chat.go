// Package api contains the HTTP handlers for the REST surface.
package api

import (
	"errors"
	"net/http"

	"comms-hub/internal/chatbot"
	"comms-hub/internal/channels"
	"comms-hub/internal/inbound"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

type ChatHandler struct {
	registry     *channels.Registry
	inbound      *inbound.Service
	orchestrator *chatbot.Orchestrator
}

func NewChatHandler(registry *channels.Registry, inboundSvc *inbound.Service, orchestrator *chatbot.Orchestrator) *ChatHandler {
	return &ChatHandler{
		registry:     registry,
		inbound:      inboundSvc,
		orchestrator: orchestrator,
	}
}

type chatRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

// SendMessage runs one web chat turn and returns the bot reply inline.
// The reply is also pushed over the session's websocket when connected.
func (h *ChatHandler) SendMessage(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ch, err := h.registry.ChannelByType(c.Request.Context(), models.ChannelWebchat)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no active webchat channel"})
		return
	}

	result, err := h.inbound.Process(c.Request.Context(), ch, req.SessionID, req.Message)
	if err != nil {
		log.WithError(err).WithField("session_id", req.SessionID).Error("chat turn failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process message"})
		return
	}

	c.JSON(http.StatusOK, result)
}

type feedbackRequest struct {
	InteractionID string `json:"interaction_id" binding:"required"`
	Rating        int    `json:"rating" binding:"required"`
}

// SubmitFeedback records a 1-5 rating against an interaction. Repeat
// submissions overwrite the previous rating.
func (h *ChatHandler) SubmitFeedback(c *gin.Context) {
	var req feedbackRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.orchestrator.RecordFeedback(c.Request.Context(), req.InteractionID, req.Rating)
	switch {
	case errors.Is(err, store.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "interaction not found"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record feedback"})
	default:
		c.JSON(http.StatusOK, gin.H{"status": "recorded"})
	}
}
