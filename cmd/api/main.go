package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"

	"github.com/cafepentagon/concierge/cmd/mainconfig"
	"github.com/cafepentagon/concierge/internal/api/router"
	"github.com/cafepentagon/concierge/internal/channels/messenger"
	appconfig "github.com/cafepentagon/concierge/internal/config"
	"github.com/cafepentagon/concierge/internal/conversation"
	"github.com/cafepentagon/concierge/internal/http/handlers"
	"github.com/cafepentagon/concierge/internal/notify"
	"github.com/cafepentagon/concierge/internal/observability/metrics"
	"github.com/cafepentagon/concierge/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting concierge API server",
		"env", cfg.Env,
		"port", cfg.Port,
	)

	// Durable conversation store.
	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	store := conversation.NewStore(db)

	// History cache.
	redisClient := newRedisClient(cfg)
	defer redisClient.Close()
	memory := conversation.NewMemoryManager(redisClient, store, cfg.HistoryLimit, cfg.HistoryTTL, logger.Named("memory"))

	// Language model clients. Gemini is the fallback when configured.
	openaiClient := openai.NewClient(cfg.OpenAIAPIKey)
	var llm conversation.LLMClient = conversation.NewOpenAILLMClient(openaiClient, cfg.OpenAIModel)
	if cfg.GeminiAPIKey != "" {
		gemini, err := conversation.NewGeminiLLMClient(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("failed to initialize gemini client", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		llm = conversation.NewFallbackLLMClient(llm, gemini, logger.Named("llm").Logger)
	}

	// Knowledge base.
	vectorStore := conversation.NewMemoryVectorStore(openaiClient, cfg.OpenAIEmbeddingModel, logger.Named("vectorstore"))

	// Escalation notifications are optional; nil notifier means log-only.
	var notifier conversation.EscalationNotifier
	if emailSender := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.SendGridFromEmail,
		FromName:  cfg.SendGridFromName,
	}, logger.Named("email")); emailSender != nil {
		if n := notify.NewEscalationEmailNotifier(emailSender, cfg.EscalationEmailTo, logger.Named("notify")); n != nil {
			notifier = n
		}
	}

	escalation := conversation.NewEscalationManager(store, memory, notifier, logger.Named("escalation"))

	pipelineMetrics := metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)
	pipeline := conversation.NewPipeline(conversation.PipelineParams{
		Repo:        store,
		Memory:      memory,
		Detector:    conversation.NewPatternDetector(cfg.DefaultLanguage),
		Classifier:  conversation.NewIntentClassifier(llm, cfg.OpenAIModel, logger.Named("classifier")),
		Gate:        conversation.NewRetrievalGate(vectorStore, logger.Named("retrieval")),
		Synthesizer: conversation.NewSynthesizer(llm, cfg.OpenAIModel, logger.Named("synthesizer")),
		Escalation:  escalation,
		Metrics:     pipelineMetrics,
		Logger:      logger.Named("pipeline"),
	})

	// Outbound delivery.
	messengerClient := messenger.NewClient(cfg.FacebookPageAccessToken)
	if cfg.FacebookGraphAPIBase != "" {
		messengerClient.SetGraphAPIBase(cfg.FacebookGraphAPIBase)
	}
	if cfg.FacebookSendTimeout > 0 {
		messengerClient.SetHTTPTimeout(cfg.FacebookSendTimeout)
	}
	var rehoster messenger.Rehoster
	if cfg.ImgurClientID != "" {
		rehoster = messenger.NewImgurRehoster(cfg.ImgurClientID)
	}
	cascade := messenger.NewCascade(messengerClient, rehoster, logger.Named("delivery"),
		messenger.WithRetryPolicy(messenger.RetryPolicy{
			MaxAttempts: cfg.DeliveryMaxAttempts,
			Delay:       cfg.DeliveryRetryDelay,
		}),
		messenger.WithDeliveryMetrics(metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)),
	)

	// Inbound queue: SQS in production, in-process channel for development.
	queue, err := buildQueue(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to build inbound queue", "error", err)
		os.Exit(1)
	}

	orchestrator := conversation.NewOrchestrator(pipeline, cascade, queue, logger.Named("orchestrator"),
		conversation.WithWorkerCount(cfg.WorkerCount),
	)

	webhook := messenger.NewWebhookHandler(cfg.FacebookVerifyToken, cfg.FacebookAppSecret, func(msg messenger.ParsedInboundMessage) {
		inbound := conversation.InboundMessage{
			UserID:   msg.SenderID,
			Platform: "facebook",
			Text:     msg.Text,
			ImageURL: msg.ImageURL,
		}
		if err := orchestrator.Enqueue(context.Background(), inbound); err != nil {
			logger.Error("failed to enqueue inbound message", "user_id", msg.SenderID, "error", err)
		}
	})

	r := router.New(&router.Config{
		Logger:             logger,
		MessengerWebhook:   webhook,
		AdminConversations: handlers.NewAdminConversationsHandler(store, escalation, pipelineMetrics, logger.Named("admin")),
		AdminKnowledge:     handlers.NewAdminKnowledgeHandler(vectorStore, logger.Named("knowledge")),
		AdminAuthSecret:    cfg.AdminJWTSecret,
		MetricsHandler:     promhttp.Handler(),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
	if err := orchestrator.Shutdown(ctx); err != nil {
		logger.Error("orchestrator forced to shutdown", "error", err)
	}

	logger.Info("server stopped")
}

func newRedisClient(cfg *appconfig.Config) *redis.Client {
	opts := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return redis.NewClient(opts)
}

func buildQueue(ctx context.Context, cfg *appconfig.Config) (conversation.Queue, error) {
	if cfg.UseMemoryQueue {
		return conversation.NewMemoryQueue(256), nil
	}
	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return conversation.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.InboundQueueURL), nil
}
