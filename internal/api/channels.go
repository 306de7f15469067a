package api

import (
	"errors"
	"net/http"
	"strconv"

	"comms-hub/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ChannelHandler struct {
	db *gorm.DB
}

func NewChannelHandler(db *gorm.DB) *ChannelHandler {
	return &ChannelHandler{db: db}
}

func (h *ChannelHandler) ListChannels(c *gin.Context) {
	var list []models.Channel
	if err := h.db.WithContext(c.Request.Context()).Order("id ASC").Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list channels"})
		return
	}
	c.JSON(http.StatusOK, list)
}

type channelRequest struct {
	Name          string         `json:"name" binding:"required"`
	Type          string         `json:"type" binding:"required"`
	Configuration datatypes.JSON `json:"configuration"`
	IsActive      *bool          `json:"is_active"`
}

func (h *ChannelHandler) CreateChannel(c *gin.Context) {
	var req channelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	switch req.Type {
	case models.ChannelEmail, models.ChannelWhatsApp, models.ChannelWebchat:
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown channel type"})
		return
	}

	ch := models.Channel{
		Name:          req.Name,
		Type:          req.Type,
		Configuration: req.Configuration,
		IsActive:      true,
	}
	if req.IsActive != nil {
		ch.IsActive = *req.IsActive
	}
	if ch.Configuration == nil {
		ch.Configuration = datatypes.JSON([]byte("{}"))
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&ch).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create channel"})
		return
	}
	c.JSON(http.StatusCreated, ch)
}

func (h *ChannelHandler) GetChannel(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	var ch models.Channel
	err = h.db.WithContext(c.Request.Context()).First(&ch, uint(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channel"})
		return
	}
	c.JSON(http.StatusOK, ch)
}

type channelToggleRequest struct {
	IsActive *bool `json:"is_active" binding:"required"`
}

// ToggleChannel activates or deactivates a channel. Deactivated channels
// reject dispatch but keep their history.
func (h *ChannelHandler) ToggleChannel(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return
	}

	var req channelToggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := h.db.WithContext(c.Request.Context()).
		Model(&models.Channel{}).
		Where("id = ?", uint(id)).
		Update("is_active", *req.IsActive)
	if result.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update channel"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"id": id, "is_active": *req.IsActive})
}
