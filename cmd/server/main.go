// Package main is the entry point for the fiscal emission API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"comanda/internal/app"
	"comanda/internal/config"
	"comanda/internal/domain/auth"
	v1 "comanda/internal/infrastructure/http/v1"
	"comanda/internal/infrastructure/http/v1/middleware"
	"comanda/internal/infrastructure/storage/postgres"
	"comanda/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.Development(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx := logger.WithLogger(context.Background(), log)
	log.Info("starting comanda fiscal server")

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalw("failed to start", "error", err)
	}
	defer a.Close()
	log.Info("database connection established")

	routerCfg := v1.RouterConfig{
		Logger:       log,
		Emitter:      a.Emission,
		Sales:        a.Store,
		RequireAuth:  cfg.RequireAuth,
		HealthChecks: a.HealthChecks(),
	}
	if cfg.JWTSecret != "" {
		jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
		jwtConfig.Issuer = cfg.JWTIssuer
		routerCfg.JWTValidator = auth.NewJWTService(jwtConfig)
	} else {
		log.Warn("JWT_SECRET not set; fiscal endpoints are unauthenticated")
	}
	if cfg.RateLimit > 0 {
		routerCfg.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	}

	server := &http.Server{
		Addr:        cfg.HTTPAddr,
		Handler:     v1.NewRouter(routerCfg),
		ReadTimeout: 15 * time.Second,
		// An emission may run for the full submit timeout.
		WriteTimeout: cfg.SubmitTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	statsCtx, stopStats := context.WithCancel(ctx)
	defer stopStats()
	go logPoolStats(statsCtx, a.Pool)

	go func() {
		log.Infow("server starting", "addr", cfg.HTTPAddr, "gateway", cfg.Gateway.APIURL)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// In-flight emissions must be allowed to record their outcome.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.SubmitTimeout+10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

func logPoolStats(ctx context.Context, pool *postgres.Pool) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			postgres.LogPoolStats(ctx, pool)
		}
	}
}
