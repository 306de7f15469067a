package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"comms-hub/internal/store"

	"github.com/gin-gonic/gin"
)

type ConversationHandler struct {
	conversations *store.ConversationStore
}

func NewConversationHandler(conversations *store.ConversationStore) *ConversationHandler {
	return &ConversationHandler{conversations: conversations}
}

func (h *ConversationHandler) ListConversations(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}

	list, err := h.conversations.List(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list conversations"})
		return
	}
	c.JSON(http.StatusOK, list)
}

func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conv, err := h.conversations.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}
	c.JSON(http.StatusOK, conv)
}

// ListMessages returns a conversation's history in turn order. The
// optional since parameter (RFC 3339) narrows to newer entries.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	var since *time.Time
	if raw := c.Query("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "since must be RFC 3339"})
			return
		}
		since = &t
	}

	// First verifies the conversation exists so an empty history and a
	// bad id are distinguishable.
	if _, err := h.conversations.Get(c.Request.Context(), c.Param("id")); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "conversation not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load conversation"})
		return
	}

	msgs, err := h.conversations.ListMessages(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list messages"})
		return
	}
	c.JSON(http.StatusOK, msgs)
}
