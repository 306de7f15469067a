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

type TemplateHandler struct {
	db *gorm.DB
}

func NewTemplateHandler(db *gorm.DB) *TemplateHandler {
	return &TemplateHandler{db: db}
}

func (h *TemplateHandler) ListTemplates(c *gin.Context) {
	q := h.db.WithContext(c.Request.Context()).Order("id ASC")
	if channelID := c.Query("channel_id"); channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}

	var list []models.Template
	if err := q.Find(&list).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list templates"})
		return
	}
	c.JSON(http.StatusOK, list)
}

type templateRequest struct {
	Name      string         `json:"name" binding:"required"`
	ChannelID uint           `json:"channel_id" binding:"required"`
	Subject   string         `json:"subject"`
	Content   string         `json:"content" binding:"required"`
	Variables datatypes.JSON `json:"variables"`
}

func (h *TemplateHandler) CreateTemplate(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tmpl := models.Template{
		Name:      req.Name,
		ChannelID: req.ChannelID,
		Subject:   req.Subject,
		Content:   req.Content,
		Variables: req.Variables,
	}
	if tmpl.Variables == nil {
		tmpl.Variables = datatypes.JSON([]byte("[]"))
	}
	if err := h.db.WithContext(c.Request.Context()).Create(&tmpl).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create template"})
		return
	}
	c.JSON(http.StatusCreated, tmpl)
}

func (h *TemplateHandler) GetTemplate(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template id"})
		return
	}

	var tmpl models.Template
	err = h.db.WithContext(c.Request.Context()).First(&tmpl, uint(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}
	c.JSON(http.StatusOK, tmpl)
}
