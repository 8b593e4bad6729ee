package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/convosync/internal/config"
	"github.com/eldtechnologies/convosync/internal/history"
	"github.com/eldtechnologies/convosync/internal/models"
	"github.com/eldtechnologies/convosync/internal/ops"
	"github.com/eldtechnologies/convosync/internal/syncer"
	"github.com/eldtechnologies/convosync/internal/transport"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	// Wire the sync core: history boundary, push channel, coordinator
	loader := history.NewClient(cfg.HistoryURL, cfg.AuthToken)
	channel := transport.NewWSChannel(logger, transport.DefaultReconnectPolicy())

	coordinator := syncer.New(syncer.Options{
		Logger:  logger,
		Channel: channel,
		History: loader,
		User:    models.UserRef{ID: cfg.UserID, Name: cfg.UserName},
	})

	// Seed the store once per session before opening the channel
	loadCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := coordinator.Load(loadCtx); err != nil {
		cancel()
		logger.Fatal().Err(err).Msg("initial history load failed")
	}
	cancel()

	if err := coordinator.Connect(cfg.PushURL, cfg.AuthToken); err != nil {
		logger.Fatal().Err(err).Msg("push channel connect failed")
	}

	// Operational HTTP surface (health + metrics)
	router := ops.NewRouter(logger, coordinator)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Int64("user_id", cfg.UserID).
			Msg("starting convosync daemon")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("ops server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down...")

	// Disconnect the channel and discard session state before the ops
	// surface goes away
	if err := coordinator.Logout(); err != nil {
		logger.Warn().Err(err).Msg("channel disconnect reported an error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("ops server forced to shutdown")
	}

	logger.Info().Msg("stopped")
}
