package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"hookrelay/internal/pkg/logger"
	"hookrelay/internal/platform/audit"
	"hookrelay/internal/platform/config"
	"hookrelay/internal/platform/database"
	"hookrelay/internal/platform/repositories"
	"hookrelay/internal/workers"
)

// The worker runs the retention sweep on its own, for deployments that keep
// it out of the API process. Pass -once to sweep a single time and exit.
func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	once := flag.Bool("once", false, "Run a single retention sweep and exit")
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

	retention, err := workers.NewRetention(cfg.Retention, repositories.NewRequestRepository(db), audit.NewLogger())
	if err != nil {
		log.Fatal().Err(err).Msg("invalid retention config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *once {
		if _, err := retention.RunOnce(ctx); err != nil {
			log.Fatal().Err(err).Msg("retention sweep failed")
		}
		return
	}

	retention.Start(ctx)
	<-ctx.Done()
	log.Info().Msg("stopping worker")
	retention.Stop()
}
