// wpp-api - chat platform automation server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adrianoneco/wpp-api/internal/api"
	"github.com/adrianoneco/wpp-api/internal/config"
	"github.com/adrianoneco/wpp-api/internal/driver/wameow"
	"github.com/adrianoneco/wpp-api/internal/events"
	"github.com/adrianoneco/wpp-api/internal/media"
	"github.com/adrianoneco/wpp-api/internal/middleware"
	"github.com/adrianoneco/wpp-api/internal/pipeline"
	"github.com/adrianoneco/wpp-api/internal/session"
	"github.com/adrianoneco/wpp-api/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	var repo store.Repository
	if cfg.StoreBackend == "memory" {
		repo = store.NewMemory()
	} else {
		repo, err = store.NewSQLite(cfg.DBPath)
		if err != nil {
			slog.Error("Failed to initialize database", "error", err)
			os.Exit(1)
		}
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected", "backend", cfg.StoreBackend)

	var mediaStore media.Store
	if cfg.MediaEnabled() {
		s3Store, err := media.NewS3(media.S3Config{
			Endpoint:  cfg.Media.Endpoint,
			Region:    cfg.Media.Region,
			AccessKey: cfg.Media.AccessKey,
			SecretKey: cfg.Media.SecretKey,
			Bucket:    cfg.Media.Bucket,
			UseSSL:    cfg.Media.UseSSL,
			URLExpiry: cfg.Media.URLExpiry,
		})
		if err != nil {
			slog.Error("Failed to initialize media store", "error", err)
			os.Exit(1)
		}
		if err := s3Store.Ensure(context.Background()); err != nil {
			slog.Error("Failed to ensure media bucket", "error", err)
			os.Exit(1)
		}
		mediaStore = s3Store
		slog.Info("Media store ready", "bucket", cfg.Media.Bucket)
	} else {
		slog.Info("Media store disabled (S3_ENDPOINT not set), attachments are not offloaded")
	}

	drivers, err := wameow.NewFactory(context.Background(), cfg.DataDir)
	if err != nil {
		slog.Error("Failed to initialize driver factory", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := drivers.Close(); closeErr != nil {
			slog.Error("Failed to close driver factory", "error", closeErr)
		}
	}()

	// Initialize services.
	registry := session.NewRegistry()
	controller := session.NewController(registry, repo, drivers, cfg.DeviceName, cfg.DataDir)
	pipe := pipeline.New(registry, repo, mediaStore)
	hub := events.NewHub()
	controller.SetIngestor(pipe)
	controller.SetNotifier(hub)

	// Initialize handlers.
	baseHandler := api.NewHandler(repo)
	healthHandler := api.NewHealthHandler(repo)
	sessionHandler := api.NewSessionHandler(baseHandler, controller)
	messageHandler := api.NewMessageHandler(baseHandler, pipe)
	eventsHandler := api.NewEventsHandler(baseHandler, hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	healthHandler.RegisterHealth(r)
	sessionHandler.RegisterRoutes(r)
	messageHandler.RegisterRoutes(r)
	if mediaStore != nil {
		api.NewMediaHandler(baseHandler, mediaStore).RegisterRoutes(r)
	}
	eventsHandler.RegisterRoutes(r)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Resume the configured default session so a restart does not need
	// a manual create call.
	if cfg.InstanceName != "" {
		go func() {
			if err := controller.Initialize(context.Background(), cfg.InstanceName); err != nil {
				slog.Error("Failed to initialize default session", "session", cfg.InstanceName, "error", err)
			}
		}()
	}

	// Create server.
	// Note: WebSocket connections require long timeouts (no WriteTimeout).
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	controller.CloseAll(shutdownCtx)

	slog.Info("Server stopped successfully")
}
