package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhawansolanki/weavium-ai/internal/config"
	"github.com/dhawansolanki/weavium-ai/internal/logger"
	"github.com/dhawansolanki/weavium-ai/internal/policy"
	"github.com/dhawansolanki/weavium-ai/internal/repository"
	"github.com/dhawansolanki/weavium-ai/internal/service"
	"github.com/dhawansolanki/weavium-ai/internal/tools"
	server "github.com/dhawansolanki/weavium-ai/internal/transport/http"
	"github.com/dhawansolanki/weavium-ai/internal/transport/ws"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLog := logger.New("info", logger.FormatJSON, os.Stderr)
		bootLog.Fatal().Err(err).Msg("failed to load config")
	}

	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("database", cfg.DatabasePath).
		Bool("read_only", cfg.ReadOnly).
		Msg("starting memory service")

	// Initialize store
	db, err := store.NewSQLiteStore(cfg.DatabasePath,
		store.WithBusyTimeout(cfg.BusyTimeout()),
		store.WithWriteRetries(uint64(cfg.WriteRetries)),
		store.WithRetryBase(cfg.RetryBase()),
		store.WithLogger(logger.Component(log, "store")),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize store")
	}
	defer db.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize policy engine
	policyEngine, err := policy.NewEngine(ctx, policy.DefaultPolicy)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	// Message stream
	hub := ws.NewHub(logger.Component(log, "stream"))
	go hub.Run(ctx)

	// Initialize service
	svc := service.New(db, cfg, log, service.WithPublisher(hub))

	// Tool API
	registry := tools.NewRegistry(
		tools.WithPolicy(policyEngine),
		tools.WithReadOnly(cfg.ReadOnly),
		tools.WithLogger(logger.Component(log, "tools")),
	)
	if err := tools.RegisterMemoryTools(registry, svc); err != nil {
		log.Fatal().Err(err).Msg("failed to register tools")
	}

	e := server.NewServer(svc, registry, ws.NewServer(hub), logger.Component(log, "http"))

	go func() {
		if err := e.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Str("addr", cfg.Addr()).Msg("API started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down memory service")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server gracefully")
	}

	log.Info().Msg("memory service stopped")
}
