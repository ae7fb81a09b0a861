package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/cafepentagon/concierge/internal/channels/messenger"
	"github.com/cafepentagon/concierge/internal/http/handlers"
	httpmiddleware "github.com/cafepentagon/concierge/internal/http/middleware"
	"github.com/cafepentagon/concierge/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	MessengerWebhook   *messenger.WebhookHandler
	AdminConversations *handlers.AdminConversationsHandler
	AdminKnowledge     *handlers.AdminKnowledgeHandler
	AdminAuthSecret    string
	MetricsHandler     http.Handler
}

// New creates the chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints: platform webhook, health, metrics.
	r.Group(func(public chi.Router) {
		public.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		if cfg.MessengerWebhook != nil {
			public.Get("/webhook", cfg.MessengerWebhook.HandleVerification)
			public.Post("/webhook", cfg.MessengerWebhook.HandleInbound)
		}
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Admin endpoints behind JWT auth.
	r.Route("/admin", func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.AdminConversations != nil {
			admin.Post("/conversation/control", cfg.AdminConversations.HandleControl)
			admin.Get("/conversation/{id}/status", cfg.AdminConversations.HandleStatus)
			admin.Get("/conversation/{id}/messages", cfg.AdminConversations.HandleMessages)
			admin.Get("/conversations/escalated", cfg.AdminConversations.HandleEscalated)
			admin.Post("/message/{id}/mark-human-replied", cfg.AdminConversations.HandleMarkHumanReplied)
		}
		if cfg.AdminKnowledge != nil {
			admin.Post("/knowledge", cfg.AdminKnowledge.HandleIngest)
		}
	})

	return r
}
