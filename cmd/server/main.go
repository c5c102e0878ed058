package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/api"
	"hookrelay/internal/api/handlers"
	"hookrelay/internal/api/middleware"
	"hookrelay/internal/engine/capture"
	"hookrelay/internal/engine/relay"
	"hookrelay/internal/pkg/logger"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/auth"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/repositories"
	"hookrelay/internal/workers"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()

	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db, "up"); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
	}

	if cfg.Auth.Enabled && (cfg.Auth.JWT.Secret == "" || cfg.Auth.AdminPasswordHash == "") {
		log.Fatal().Msg("auth.enabled requires auth.jwt.secret and auth.admin_password_hash")
	}

	// Repositories
	webhookRepo := repositories.NewWebhookRepository(db)
	requestRepo := repositories.NewRequestRepository(db)

	// Services
	dispatcher := relay.NewDispatcher(relay.WithMaxResponseBytes(cfg.Relay.MaxResponseBytes))
	pipeline := capture.NewPipeline(webhookRepo, requestRepo, dispatcher)
	resender := capture.NewResender(webhookRepo, requestRepo, dispatcher)
	tokenSvc := auth.NewTokenService(cfg.Auth.JWT)
	auditLogger := audit.NewLogger()

	deps := &api.Dependencies{
		CaptureHandler: handlers.NewCaptureHandler(pipeline, cfg.Capture.MaxBodyBytes),
		WebhookHandler: handlers.NewWebhookHandler(webhookRepo, auditLogger),
		MappingHandler: handlers.NewMappingHandler(webhookRepo, auditLogger),
		RequestHandler: handlers.NewRequestHandler(requestRepo, webhookRepo, resender, auditLogger),
		AuthHandler:    handlers.NewAuthHandler(cfg.Auth, tokenSvc, auditLogger),
		HealthHandler:  handlers.NewHealthHandler(db),
		MetricsHandler: handlers.NewMetricsHandler(),
		StaticHandler:  handlers.NewStaticHandler(cfg.Server.StaticDir),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenSvc, cfg.Auth.Enabled),
		CORS:           cfg.CORS,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Retention.Enabled {
		retention, err := workers.NewRetention(cfg.Retention, requestRepo, auditLogger)
		if err != nil {
			log.Fatal().Err(err).Msg("invalid retention config")
		}
		retention.Start(ctx)
		defer retention.Stop()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewHandler(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Str("driver", db.Driver).Bool("auth", cfg.Auth.Enabled).Msg("server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
}
