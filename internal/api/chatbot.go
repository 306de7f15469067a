package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"comms-hub/internal/chatbot"
	"comms-hub/internal/models"
	"comms-hub/internal/store"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ChatbotHandler manages the classifier's training data and the rules
// around it: intents, responses, knowledge bases, handoff rules and
// auto replies.
type ChatbotHandler struct {
	bots       *store.ChatbotStore
	classifier *chatbot.TFIDFClassifier
}

func NewChatbotHandler(bots *store.ChatbotStore, classifier *chatbot.TFIDFClassifier) *ChatbotHandler {
	return &ChatbotHandler{bots: bots, classifier: classifier}
}

func (h *ChatbotHandler) ListIntents(c *gin.Context) {
	list, err := h.bots.ListIntents(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list intents"})
		return
	}
	c.JSON(http.StatusOK, list)
}

type intentRequest struct {
	Name            string   `json:"name" binding:"required"`
	Description     string   `json:"description"`
	TrainingPhrases []string `json:"training_phrases"`
}

func (h *ChatbotHandler) CreateIntent(c *gin.Context) {
	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	intent := models.Intent{
		Name:        req.Name,
		Description: req.Description,
	}
	if phrases, err := encodePhrases(req.TrainingPhrases); err == nil {
		intent.TrainingPhrases = phrases
	}
	if err := h.bots.CreateIntent(c.Request.Context(), &intent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create intent"})
		return
	}
	h.retrain(c)
	c.JSON(http.StatusCreated, intent)
}

func (h *ChatbotHandler) GetIntent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	intent, err := h.bots.GetIntent(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load intent"})
		return
	}
	c.JSON(http.StatusOK, intent)
}

func (h *ChatbotHandler) UpdateIntent(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req intentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	intent, err := h.bots.GetIntent(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load intent"})
		return
	}

	intent.Name = req.Name
	intent.Description = req.Description
	if phrases, err := encodePhrases(req.TrainingPhrases); err == nil {
		intent.TrainingPhrases = phrases
	}
	if err := h.bots.UpdateIntent(c.Request.Context(), intent); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update intent"})
		return
	}
	h.retrain(c)
	c.JSON(http.StatusOK, intent)
}

func (h *ChatbotHandler) ListResponses(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	list, err := h.bots.ResponsesForIntent(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list responses"})
		return
	}
	c.JSON(http.StatusOK, list)
}

type responseRequest struct {
	Text            string `json:"text" binding:"required"`
	KnowledgeBaseID *uint  `json:"knowledge_base_id"`
}

func (h *ChatbotHandler) CreateResponse(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.bots.GetIntent(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "intent not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load intent"})
		return
	}

	resp := models.ChatbotResponse{
		IntentID:        id,
		Text:            req.Text,
		KnowledgeBaseID: req.KnowledgeBaseID,
	}
	if err := h.bots.CreateResponse(c.Request.Context(), &resp); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create response"})
		return
	}
	c.JSON(http.StatusCreated, resp)
}

type knowledgeBaseRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Content     datatypes.JSON `json:"content" binding:"required"`
}

func (h *ChatbotHandler) CreateKnowledgeBase(c *gin.Context) {
	var req knowledgeBaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	kb := models.KnowledgeBase{
		Name:        req.Name,
		Description: req.Description,
		Content:     req.Content,
	}
	if err := h.bots.CreateKnowledgeBase(c.Request.Context(), &kb); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create knowledge base"})
		return
	}
	c.JSON(http.StatusCreated, kb)
}

func (h *ChatbotHandler) GetKnowledgeBase(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	kb, err := h.bots.GetKnowledgeBase(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "knowledge base not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load knowledge base"})
		return
	}
	c.JSON(http.StatusOK, kb)
}

func (h *ChatbotHandler) ListHandoffRules(c *gin.Context) {
	list, err := h.bots.ActiveHandoffRules(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list handoff rules"})
		return
	}
	c.JSON(http.StatusOK, list)
}

type handoffRuleRequest struct {
	IntentID            *uint    `json:"intent_id"`
	ConfidenceThreshold *float64 `json:"confidence_threshold" binding:"required"`
	IsActive            *bool    `json:"is_active"`
}

func (h *ChatbotHandler) CreateHandoffRule(c *gin.Context) {
	var req handoffRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.ConfidenceThreshold < 0 || *req.ConfidenceThreshold > 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confidence_threshold must be in [0, 1]"})
		return
	}

	rule := models.HandoffRule{
		IntentID:            req.IntentID,
		ConfidenceThreshold: *req.ConfidenceThreshold,
		IsActive:            true,
	}
	if req.IsActive != nil {
		rule.IsActive = *req.IsActive
	}
	if err := h.bots.CreateHandoffRule(c.Request.Context(), &rule); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create handoff rule"})
		return
	}
	c.JSON(http.StatusCreated, rule)
}

type autoReplyRequest struct {
	ChannelID      uint   `json:"channel_id" binding:"required"`
	Name           string `json:"name" binding:"required"`
	TriggerPattern string `json:"trigger_pattern" binding:"required"`
	ResponseText   string `json:"response_text" binding:"required"`
	IsActive       *bool  `json:"is_active"`
}

func (h *ChatbotHandler) CreateAutoReply(c *gin.Context) {
	var req autoReplyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply := models.AutoReply{
		ChannelID:      req.ChannelID,
		Name:           req.Name,
		TriggerPattern: req.TriggerPattern,
		ResponseText:   req.ResponseText,
		IsActive:       true,
	}
	if req.IsActive != nil {
		reply.IsActive = *req.IsActive
	}
	if err := h.bots.CreateAutoReply(c.Request.Context(), &reply); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create auto reply"})
		return
	}
	c.JSON(http.StatusCreated, reply)
}

// Retrain rebuilds the classifier model from the stored intents.
func (h *ChatbotHandler) Retrain(c *gin.Context) {
	if err := h.classifier.Retrain(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "retraining failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "retrained"})
}

func (h *ChatbotHandler) GetInteraction(c *gin.Context) {
	interaction, err := h.bots.GetInteraction(c.Request.Context(), c.Param("id"))
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "interaction not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load interaction"})
		return
	}
	c.JSON(http.StatusOK, interaction)
}

// retrain refreshes the model after a training-data change. A failure
// keeps the previous model serving, so it only warrants a log line.
func (h *ChatbotHandler) retrain(c *gin.Context) {
	if err := h.classifier.Retrain(c.Request.Context()); err != nil {
		log.WithError(err).Warn("classifier retrain after intent change failed")
	}
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return 0, false
	}
	return uint(id), true
}

func encodePhrases(phrases []string) (datatypes.JSON, error) {
	if phrases == nil {
		phrases = []string{}
	}
	raw, err := json.Marshal(phrases)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(raw), nil
}
