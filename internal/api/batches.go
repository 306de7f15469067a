package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"comms-hub/internal/batch"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type BatchHandler struct {
	db      *gorm.DB
	batches *store.BatchStore
	ingest  *batch.Service
}

func NewBatchHandler(db *gorm.DB, batches *store.BatchStore, ingest *batch.Service) *BatchHandler {
	return &BatchHandler{db: db, batches: batches, ingest: ingest}
}

type batchRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
}

func (h *BatchHandler) CreateBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	b := models.EmailBatch{Name: req.Name, Description: req.Description}
	if err := h.batches.Create(c.Request.Context(), &b); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create batch"})
		return
	}
	c.JSON(http.StatusCreated, b)
}

func (h *BatchHandler) GetBatch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	b, err := h.batches.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load batch"})
		return
	}
	c.JSON(http.StatusOK, b)
}

// ProcessBatch ingests a CSV of recipients posted as the request body
// and creates one pending message per usable row. Rows that cannot be
// rendered are skipped and counted, not fatal.
func (h *BatchHandler) ProcessBatch(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	channelID, err := strconv.ParseUint(c.Query("channel_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_id"})
		return
	}
	templateID, err := strconv.ParseUint(c.Query("template_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid template_id"})
		return
	}

	addressColumn := c.DefaultQuery("address_column", "email")

	var scheduleAt *time.Time
	if raw := c.Query("scheduled_at"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "scheduled_at must be RFC 3339"})
			return
		}
		scheduleAt = &t
	}

	var ch models.Channel
	if err := h.db.WithContext(c.Request.Context()).First(&ch, uint(channelID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "channel not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load channel"})
		return
	}

	var tmpl models.Template
	if err := h.db.WithContext(c.Request.Context()).First(&tmpl, uint(templateID)).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "template not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load template"})
		return
	}

	src, err := batch.NewCSVSource(c.Request.Body, addressColumn)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ingest.Process(c.Request.Context(), id, &ch, &tmpl, src, scheduleAt)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "batch not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process batch"})
		return
	}
	c.JSON(http.StatusOK, result)
}
