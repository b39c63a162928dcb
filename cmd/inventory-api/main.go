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

	"bdemetris/devicehub/internal/config"
	"bdemetris/devicehub/internal/server"
	"bdemetris/devicehub/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("opening store", "provider", cfg.Store.Provider)
	st, err := database.Open(ctx, cfg.Store)
	if err != nil {
		logger.Error("could not open store", "provider", cfg.Store.Provider, "error", err)
		os.Exit(1)
	}
	defer st.Close()

	if rdb := cfg.RedisClient(); rdb != nil {
		defer rdb.Close()
		st = database.NewCachedStore(st, rdb, cfg.CacheTTL)
		logger.Info("device list cache enabled", "redis", cfg.RedisAddr, "ttl", cfg.CacheTTL)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           server.New(st, server.WithLogger(logger)).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown failed", "error", err)
		}
	}()

	logger.Info("inventory API listening", "addr", cfg.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("inventory API stopped")
}
