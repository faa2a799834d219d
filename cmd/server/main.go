// Package main is the entry point for lookout, the weekly trade
// selection engine for NSE equities. It wires the pipeline, the
// scheduler, and the HTTP API, then waits for a shutdown signal.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/lookout/internal/config"
	"github.com/aristath/lookout/internal/di"
	"github.com/aristath/lookout/internal/server"
	"github.com/aristath/lookout/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting lookout")

	container, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	sched, err := di.InitializeScheduler(cfg, container, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}

	srv := server.New(server.Config{
		Log:     log,
		AppCfg:  cfg,
		Port:    cfg.Port,
		DevMode: cfg.DevMode,

		Runner:          container.Runner,
		Journal:         container.Journal,
		Recommendations: container.RecommendationRepo,
		Regimes:         container.RegimeRepo,
		Executions:      container.ExecutionRepo,
	})

	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	sched.Start()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Stopped")
}
