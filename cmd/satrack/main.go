package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"satrack/internal/application/service"
	"satrack/internal/infrastructure/config"
	"satrack/internal/infrastructure/logger"
	"satrack/internal/infrastructure/svc"
	"satrack/internal/interfaces/rest"
)

func main() {
	logger.Setup()

	configPath := flag.String("config", "", "path to config.toml (optional, env vars apply on top)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config", *configPath).Msg("load config failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sc, err := svc.New(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("service initialization failed")
	}
	defer sc.Close()

	if cfg.Collector.SeedSampleData {
		if _, err := sc.Seeder.SeedIfEmpty(ctx, service.SeedCount); err != nil {
			log.Fatal().Err(err).Msg("sample data seeding failed")
		}
	}

	if err := sc.Collector.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("collector start failed")
	}

	handler := rest.NewHandler(sc.Query, sc.Export, sc.Hub, sc.Registry)
	server := rest.NewServer(fmt.Sprintf(":%d", cfg.Server.Port), handler.Routes())

	errCh := make(chan error, 1)
	go func() { errCh <- server.Start() }()

	log.Info().
		Int("port", cfg.Server.Port).
		Str("backend", cfg.Storage.Backend).
		Int("fetch_interval_sec", cfg.Collector.FetchIntervalSec).
		Int("retention_days", cfg.Collector.RetentionDays).
		Msg("satrack started")

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("http server failed")
		}
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sc.Collector.Stop(stopCtx); err != nil {
		log.Error().Err(err).Msg("collector stop timed out")
	}
	if err := server.Stop(10 * time.Second); err != nil {
		log.Error().Err(err).Msg("http server stop failed")
	}
}
