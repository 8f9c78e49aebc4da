package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Harsh4r0ra/chat-cli/internal/auth"
	"github.com/Harsh4r0ra/chat-cli/internal/backend"
	"github.com/Harsh4r0ra/chat-cli/internal/backend/memory"
	"github.com/Harsh4r0ra/chat-cli/internal/config"
	"github.com/Harsh4r0ra/chat-cli/internal/db"
	clog "github.com/Harsh4r0ra/chat-cli/internal/log"
	"github.com/Harsh4r0ra/chat-cli/internal/realtime"
	"github.com/Harsh4r0ra/chat-cli/internal/server"
	"github.com/Harsh4r0ra/chat-cli/internal/tracing"
	"github.com/Harsh4r0ra/chat-cli/internal/ws"

	"github.com/rs/zerolog/log"
)

func openStore(dsn string) (backend.Store, func(), error) {
	if dsn == "memory" {
		s := memory.New()
		s.SeedDefaults()
		return s, func() {}, nil
	}
	gdb, err := db.Connect(dsn)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(gdb); err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	return db.NewStore(gdb), closeFn, nil
}

func attachBridge(cfg config.Config, broker *realtime.Broker) error {
	switch cfg.RealtimeBroker {
	case "redis":
		b, err := realtime.NewRedisBridge(cfg.RedisURL)
		if err != nil {
			return err
		}
		broker.Attach(b)
	case "nats":
		b, err := realtime.NewNATSBridge(cfg.NATSURL)
		if err != nil {
			return err
		}
		broker.Attach(b)
	}
	return nil
}

func main() {
	// load config, init logging and tracing, open the store, then serve until signalled
	cfg := config.Load()
	clog.Init(cfg.Env, cfg.LogFile)
	if err := config.Validate(cfg); err != nil {
		log.Fatal().Err(err).Msg("config")
	}

	ctx := context.Background()
	shutdownTracing := tracing.Init(ctx, cfg.OTelEnabled, cfg.OTelEndpoint, "termchat-server")

	store, closeStore, err := openStore(cfg.DatabaseDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open store")
	}

	broker := realtime.NewBroker()
	if err := attachBridge(cfg, broker); err != nil {
		log.Fatal().Err(err).Str("broker", cfg.RealtimeBroker).Msg("realtime bridge")
	}
	store = realtime.Notify(store, broker)
	provider := auth.NewProvider(store, cfg)
	client := backend.Client{Auth: provider, Store: store, Realtime: broker}

	hub := ws.NewHub()
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.SetupRouter(cfg, provider, client, hub),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", srv.Addr).Str("env", cfg.Env).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server run")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}
	if err := broker.Close(); err != nil {
		log.Error().Err(err).Msg("broker close")
	}
	closeStore()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("tracing shutdown")
	}
}
