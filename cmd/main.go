package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/registry"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/app/server"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/config"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/domain"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/core/services"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/platform/logger"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/platform/telemetry"
	"github.com/chiderandukwe/wakadugbe-ws-socket/internal/plugins/backend"
	redisPlugin "github.com/chiderandukwe/wakadugbe-ws-socket/internal/plugins/redis"
)

func main() {
	// Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Config
	cfg := config.Load()

	// Logger
	log := logger.NewLogger(*cfg)
	log.Info("starting application")

	otelShutdown, err := telemetry.InitTelemetry(ctx, *cfg)
	if err != nil {
		log.Error("failed to initialize telemetry", "err", err)
	}
	defer func() {
		log.Info("flushing telemetry...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			log.Error("telemetry shutdown failed", "err", err)
		}
	}()

	// Infra
	var rdb *goredis.Client
	if rdb, err = redisPlugin.NewRedisClient(ctx, *cfg.Redis); err != nil {
		log.Error("redis connection failed", "url", cfg.Redis.URL)
		return
	}
	log.Info("redis connected")

	// Adapters
	rideBackend := backend.NewClient(*cfg.Backend)
	presStore := redisPlugin.NewRedisPresenceStore(rdb)
	journal := redisPlugin.NewRedisJournal(rdb, *cfg.Journal)

	// Core services
	hub := registry.NewRegistry()
	tokenSvc := services.NewTokenService(cfg.SecretToken)
	managerSvc := services.NewConnectionManager(log, rideBackend, hub, presStore)
	dispatcher := services.NewDispatcher(log, rideBackend, hub, journal, *cfg.Dispatch)
	dispatcher.Register(domain.EvRegisterUser, managerSvc.RegisterUser)
	managerSvc.SetReplayer(dispatcher)

	// Server
	srv := server.NewServer(log, cfg.Service.Name, cfg.Service.Addr, hub, dispatcher, managerSvc, tokenSvc, journal)
	if err := srv.Start(); err != nil {
		log.Error("server stopped", "err", err)
	}
}
