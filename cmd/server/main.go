package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"comms-hub/internal/api"
	"comms-hub/internal/batch"
	"comms-hub/internal/channels"
	"comms-hub/internal/chatbot"
	"comms-hub/internal/config"
	"comms-hub/internal/database"
	"comms-hub/internal/dispatch"
	"comms-hub/internal/inbound"
	"comms-hub/internal/models"
	"comms-hub/internal/store"
	"comms-hub/internal/webhook"
	"comms-hub/internal/worker"
	"comms-hub/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg := config.LoadConfig()

	db, err := database.Open(cfg.DBDSN)
	if err != nil {
		log.WithError(err).Fatal("failed to open database")
	}

	messages := store.NewMessageStore(db)
	conversations := store.NewConversationStore(db)
	bots := store.NewChatbotStore(db)
	batches := store.NewBatchStore(db)

	classifier := chatbot.NewTFIDFClassifier(bots, cfg.ClassifierMinSimilarity)
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := classifier.Retrain(ctx); err != nil {
		log.WithError(err).Warn("initial classifier training failed, serving empty model")
	}

	orchestrator := chatbot.NewOrchestrator(conversations, bots, classifier, cfg.HandoffConfidenceFloor)

	hub := ws.NewHub()
	go hub.Run()

	registry := channels.NewRegistry(db)
	registry.Register(models.ChannelWhatsApp, channels.NewWhatsAppAdapter(cfg))
	registry.Register(models.ChannelEmail, channels.NewEmailAdapter(cfg))
	registry.Register(models.ChannelWebchat, channels.NewWebchatAdapter(hub))

	dispatcher := dispatch.NewDispatcher(messages, registry, cfg.DispatchWorkers,
		time.Duration(cfg.DispatchTimeoutSeconds)*time.Second)
	dispatcher.Start(ctx)

	tracker := dispatch.NewTracker(messages, registry, cfg.ReconcileBatchSize)
	inboundSvc := inbound.NewService(conversations, messages, orchestrator, dispatcher)
	ingest := batch.NewService(messages, batches)

	go worker.NewScheduleSweep(messages, dispatcher,
		time.Duration(cfg.ScheduleSweepSeconds)*time.Second, cfg.ReconcileBatchSize).Start(ctx)
	go worker.NewReconciler(tracker,
		time.Duration(cfg.ReconcileSeconds)*time.Second).Start(ctx)
	go worker.NewRetrainer(classifier,
		time.Duration(cfg.RetrainSeconds)*time.Second).Start(ctx)

	chatHandler := api.NewChatHandler(registry, inboundSvc, orchestrator)
	channelHandler := api.NewChannelHandler(db)
	templateHandler := api.NewTemplateHandler(db)
	messageHandler := api.NewMessageHandler(db, messages, dispatcher)
	conversationHandler := api.NewConversationHandler(conversations)
	chatbotHandler := api.NewChatbotHandler(bots, classifier)
	batchHandler := api.NewBatchHandler(db, batches, ingest)
	webhookHandler := webhook.NewHandler(cfg, registry, inboundSvc, messages, tracker)

	r := gin.Default()
	r.Use(cors.Default())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	r.GET("/webhook", webhookHandler.VerifyWebhook)
	r.POST("/webhook", webhookHandler.HandleWebhook)

	r.GET("/ws", func(c *gin.Context) {
		sessionID := c.Query("session_id")
		if sessionID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "missing session_id"})
			return
		}
		hub.ServeWs(c.Writer, c.Request, sessionID)
	})

	r.GET("/track/open/:id", messageHandler.TrackOpen)
	r.GET("/track/click/:id", messageHandler.TrackClick)

	apiGroup := r.Group("/api")
	{
		apiGroup.POST("/chat", chatHandler.SendMessage)
		apiGroup.POST("/chat/feedback", chatHandler.SubmitFeedback)

		apiGroup.GET("/channels", channelHandler.ListChannels)
		apiGroup.POST("/channels", channelHandler.CreateChannel)
		apiGroup.GET("/channels/:id", channelHandler.GetChannel)
		apiGroup.PATCH("/channels/:id", channelHandler.ToggleChannel)

		apiGroup.GET("/templates", templateHandler.ListTemplates)
		apiGroup.POST("/templates", templateHandler.CreateTemplate)
		apiGroup.GET("/templates/:id", templateHandler.GetTemplate)

		apiGroup.POST("/messages", messageHandler.SendMessage)
		apiGroup.GET("/messages/:id", messageHandler.GetMessage)

		apiGroup.GET("/conversations", conversationHandler.ListConversations)
		apiGroup.GET("/conversations/:id", conversationHandler.GetConversation)
		apiGroup.GET("/conversations/:id/messages", conversationHandler.ListMessages)

		apiGroup.GET("/intents", chatbotHandler.ListIntents)
		apiGroup.POST("/intents", chatbotHandler.CreateIntent)
		apiGroup.GET("/intents/:id", chatbotHandler.GetIntent)
		apiGroup.PUT("/intents/:id", chatbotHandler.UpdateIntent)
		apiGroup.GET("/intents/:id/responses", chatbotHandler.ListResponses)
		apiGroup.POST("/intents/:id/responses", chatbotHandler.CreateResponse)

		apiGroup.POST("/knowledge-bases", chatbotHandler.CreateKnowledgeBase)
		apiGroup.GET("/knowledge-bases/:id", chatbotHandler.GetKnowledgeBase)

		apiGroup.GET("/handoff-rules", chatbotHandler.ListHandoffRules)
		apiGroup.POST("/handoff-rules", chatbotHandler.CreateHandoffRule)
		apiGroup.POST("/auto-replies", chatbotHandler.CreateAutoReply)

		apiGroup.POST("/chatbot/retrain", chatbotHandler.Retrain)
		apiGroup.GET("/interactions/:id", chatbotHandler.GetInteraction)

		apiGroup.POST("/batches", batchHandler.CreateBatch)
		apiGroup.GET("/batches/:id", batchHandler.GetBatch)
		apiGroup.POST("/batches/:id/process", batchHandler.ProcessBatch)
	}

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
	dispatcher.Wait()
}
