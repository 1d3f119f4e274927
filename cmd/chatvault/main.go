package main

import (
	"log"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/lumachat/chatvault/internal/blobcache"
	"github.com/lumachat/chatvault/internal/config"
	"github.com/lumachat/chatvault/internal/db"
	"github.com/lumachat/chatvault/internal/dispatch"
	"github.com/lumachat/chatvault/internal/logging"
	"github.com/lumachat/chatvault/internal/provider"
	"github.com/lumachat/chatvault/internal/store"
	"github.com/lumachat/chatvault/internal/syncer"
	"github.com/lumachat/chatvault/internal/version"
	"github.com/lumachat/chatvault/internal/web"
)

func main() {
	configPath := os.Getenv("CHATVAULT_CONFIG")
	if configPath == "" {
		configPath = "chatvault.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize database
	database, err := db.InitDB(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	entityStore := store.NewGorm(database)

	// Provider client
	providerClient := provider.NewHTTPClient(provider.Config{
		BaseURL:           cfg.Provider.BaseURL,
		APIKey:            cfg.Provider.APIKey,
		TokenURL:          cfg.Provider.TokenURL,
		ClientID:          cfg.Provider.ClientID,
		ClientSecret:      cfg.Provider.ClientSecret,
		RequestsPerSecond: cfg.Provider.RequestsPerSecond,
		MaxRetries:        cfg.Provider.MaxRetries,
	})

	// Durable attachment cache
	cache, err := blobcache.NewDir(cfg.Cache.Dir, cfg.Cache.BaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize attachment cache: %v", err)
	}

	// Downstream event sink
	sink := dispatch.New(cfg.Dispatch.SinkURL, cfg.Dispatch.MaxRetries,
		time.Duration(cfg.Dispatch.BaseDelayMS)*time.Millisecond)

	// Synchronization engine
	engine := syncer.New(entityStore, providerClient, cache, sink, cfg.Backfill)

	// Create router
	r := chi.NewRouter()
	r.Use(logging.Middleware)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)

	// Inbound provider webhooks
	r.Post("/webhooks/messaging", web.WebhookHandler(engine))

	// Admin API
	r.Route("/api", func(r chi.Router) {
		r.Use(web.APIKeyAuth(cfg.AdminAPIKey))
		r.Get("/accounts", web.AccountsHandler(entityStore))
		r.Post("/accounts/{id}/backfill", web.TriggerBackfillHandler(engine, entityStore))
		r.Get("/accounts/{id}/chats", web.ChatsHandler(entityStore))
		r.Get("/accounts/{id}/profile-views", web.ProfileViewsHandler(entityStore))
		r.Get("/chats/{id}/messages", web.MessagesHandler(entityStore))
		r.Post("/attachments/{id}/refresh", web.RefreshAttachmentHandler(engine))
	})

	// Cached attachment bytes
	r.Handle("/attachments/*", http.StripPrefix("/attachments/",
		http.FileServer(http.Dir(cfg.Cache.Dir))))

	r.Get("/healthz", web.HealthzHandler())

	addr := cfg.Host + ":" + cfg.Port
	log.Printf("ChatVault %s (%s) starting on http://%s", version.Version, version.Commit, addr)
	log.Printf("Webhooks: http://%s/webhooks/messaging", addr)
	log.Printf("Admin API: http://%s/api", addr)

	if err := http.ListenAndServe(addr, r); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
