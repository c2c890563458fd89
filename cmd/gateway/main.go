package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/coursepilot/gateway/internal/gateway/cache"
	"github.com/coursepilot/gateway/internal/gateway/handlers"
	"github.com/coursepilot/gateway/internal/gateway/orchestrator"
	"github.com/coursepilot/gateway/internal/gateway/ratelimit"
	"github.com/coursepilot/gateway/internal/gateway/secrets"
	"github.com/coursepilot/gateway/internal/shared/config"
	"github.com/coursepilot/gateway/internal/shared/database"
	"github.com/coursepilot/gateway/internal/shared/redis"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	log.Printf("Starting CoursePilot gateway on port %s (env: %s)", cfg.Port, cfg.Env)

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	log.Println("✓ Connected to PostgreSQL")

	// Initialize Redis
	redisClient, err := redis.New(ctx, cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("✓ Connected to Redis")

	// Initialize credential codec
	codec, err := secrets.NewCodec(cfg.CredentialKey)
	if err != nil {
		log.Fatalf("Failed to initialize credential codec: %v", err)
	}

	// Initialize rate limiter
	var limitStore ratelimit.Store
	if cfg.RateLimitStore == "redis" {
		limitStore = ratelimit.NewRedisStore(redisClient)
	} else {
		limitStore = ratelimit.NewMemoryStore()
	}
	limiter := ratelimit.New(limitStore, cfg.RateLimitPerMinute, cfg.RateLimitPerHour)
	log.Printf("✓ Rate limiter ready (%s store, %d/min, %d/hour)", cfg.RateLimitStore, cfg.RateLimitPerMinute, cfg.RateLimitPerHour)

	// Initialize orchestrator and cache
	orch := orchestrator.New(db, codec, cfg)
	cacheService := cache.New(redisClient, cfg.CacheEnabled, time.Duration(cfg.CacheTTLSeconds)*time.Second)

	// Initialize handlers
	chatHandler := handlers.NewChatHandler(orch, cacheService, db)
	providerHandler := handlers.NewProviderHandler(db, codec, orch)
	middleware := handlers.NewMiddleware(cfg.AuthJWTSecret, limiter)

	// Setup router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))
	r.Use(middleware.CORSMiddleware)

	// Health check (no auth required)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// API routes (with auth and rate limiting)
	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.RateLimitMiddleware)

		r.Post("/chat", chatHandler.HandleChat)
		r.Post("/suggestions", chatHandler.HandleSuggestions)
		r.Post("/title", chatHandler.HandleTitle)

		r.Route("/providers", func(r chi.Router) {
			r.Get("/", providerHandler.HandleList)
			r.Post("/", providerHandler.HandleCreate)
			r.Delete("/{id}", providerHandler.HandleDelete)
			r.Post("/{id}/test", providerHandler.HandleTest)
			r.Get("/{id}/usage", providerHandler.HandleUsage)
		})
	})

	// HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("🚀 Server listening on http://localhost:%s", cfg.Port)
		log.Println("   POST /v1/chat                 - Course-aware chat")
		log.Println("   POST /v1/suggestions          - Follow-up question suggestions")
		log.Println("   POST /v1/title                - Session title generation")
		log.Println("   GET  /v1/providers            - Provider settings")
		log.Println("   GET  /health                  - Health check")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Println("Shutting down gracefully...")

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
