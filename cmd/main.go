/*
Package main is the entry point for the RoomChat server.

It is responsible for loading configuration, initializing the global logging system,
opening the durable store, wiring the chat core, running the HTTP server and the
lifecycle sweeper side by side, and gracefully handling operating system interrupt
signals (SIGINT, SIGTERM) to ensure a smooth server shutdown.
*/
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

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"roomchat/internal/app/chat"
	"roomchat/internal/app/db"
	"roomchat/internal/app/identity"
	"roomchat/internal/app/moderation"
	"roomchat/internal/app/presence"
	"roomchat/internal/app/room"
	"roomchat/internal/app/storage"
	"roomchat/internal/app/sweeper"
	"roomchat/internal/configs"
	"roomchat/internal/handler"
	"roomchat/internal/pkg/auth/jwt"
	"roomchat/internal/pkg/logx"
	"roomchat/internal/pkg/pow"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.IsDevelopment(), cfg.LogLevel)
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Int("pow_difficulty", cfg.PowDifficulty).
		Dur("anon_session_ttl", cfg.AnonSessionTTL).
		Dur("retention_window", cfg.RetentionWindow).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// The durable store is the only dependency whose failure is fatal at startup.
	store, err := db.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to open durable store")
	}
	defer store.Close()

	// Presence does not survive a restart, so no membership may stay online either.
	if n, err := store.ResetOnlineMemberships(ctx); err != nil {
		logx.Fatal(err, "Failed to reset online memberships")
	} else if n > 0 {
		logx.Info("Reset stale online memberships", "count", n)
	}

	objects, err := storage.NewStorageService(ctx, storage.ServiceConfig{
		S3BucketName:      cfg.S3BucketName,
		S3Endpoint:        cfg.S3Endpoint,
		S3AccessKeyID:     cfg.S3AccessKeyID,
		S3SecretAccessKey: cfg.S3SecretAccessKey,
	})
	if err != nil {
		logx.Fatal(err, "Failed to initialize object storage")
	}

	clock := clockwork.NewRealClock()

	files := storage.NewFiles(store, objects, clock, storage.FilesConfig{
		Validity:     cfg.FileValidity,
		MaxSizeBytes: int64(cfg.MaxFileSizeMB) << 20,
	})
	rooms := room.NewService(store, clock)
	mod := moderation.NewService(store, clock)

	hub := chat.NewHub(chat.Deps{
		Store:      store,
		Registry:   presence.NewRegistry(clock),
		Rooms:      rooms,
		Moderation: mod,
		Files:      files,
		Clock:      clock,
	})

	deps := &handler.AppDeps{
		Config:     cfg,
		Hub:        hub,
		Identity:   identity.NewService(jwt.NewValidator(cfg.JWTSecret), store, clock, cfg.AnonSessionTTL),
		Rooms:      rooms,
		Moderation: mod,
		Files:      files,
		Pow:        pow.NewPoWManager(ctx, cfg.PowDifficulty, clock),
	}

	sweep := sweeper.New(store, files, clock, sweeper.Config{
		AnonSessionTTL:         cfg.AnonSessionTTL,
		AnonSweepInterval:      cfg.AnonSweepInterval,
		RetentionWindow:        cfg.RetentionWindow,
		RetentionSweepInterval: cfg.RetentionSweepInterval,
	})

	// Setup HTTP server and routes
	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      handler.Router(ctx, deps),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logx.Info(fmt.Sprintf("RoomChat Server starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sweep.Run(gctx)
	})

	// Wait for interrupt signal (or a failed server) to gracefully shutdown with a timeout of 5 seconds.
	g.Go(func() error {
		<-gctx.Done()
		logx.Info("Received shutdown signal. Starting graceful shutdown...")

		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelShutdown()

		err := server.Shutdown(shutdownCtx)
		hub.Shutdown()
		return err
	})

	if err := g.Wait(); err != nil {
		logx.Error(err, "Server stopped with error")
		return
	}

	logx.Info("Server gracefully stopped.")
}
