package main

import (
	"context"
	"os"
	sigs "os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/afeedhshaji/mobai-relay/config"
	"github.com/afeedhshaji/mobai-relay/internal/bot"
	"github.com/afeedhshaji/mobai-relay/internal/server"
	signalapi "github.com/afeedhshaji/mobai-relay/internal/signal"
	"github.com/afeedhshaji/mobai-relay/pkg/deduper"
	"github.com/afeedhshaji/mobai-relay/pkg/llm"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})
	zerolog.TimeFieldFormat = time.RFC3339

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Error loading configuration")
	}
	setLogLevel(cfg.LogLevel)

	log.Info().
		Str("provider", cfg.Provider).
		Bool("has_api_key", cfg.APIKey != "").
		Int("max_concurrent", cfg.MaxConcurrent).
		Int("max_retries", cfg.MaxRetries).
		Str("listen_addr", cfg.ListenAddr).
		Bool("signal_relay", cfg.SignalEnabled()).
		Msg("Loaded config")

	responder := llm.NewOrOffline(llm.Settings{
		Provider:         cfg.Provider,
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		Model:            cfg.Model,
		MaxTokens:        cfg.MaxTokens,
		Temperature:      cfg.Temperature,
		MaxConcurrent:    cfg.MaxConcurrent,
		MaxRetries:       cfg.MaxRetries,
		AdmissionTimeout: cfg.AdmissionTimeout,
		RequestTimeout:   cfg.RequestTimeout,
	})

	// Graceful shutdown with context
	ctx, stop := sigs.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	if cfg.SignalEnabled() {
		dedup := deduper.New(30 * time.Second)
		defer dedup.Stop()

		signalClient := signalapi.NewClient(cfg.SignalAPIURL, cfg.SignalNumber)
		relay := bot.New(signalClient, responder, cfg.PollInterval, dedup, signalClient.Number(), cfg.SignalUUID)

		wg.Add(1)
		go func() {
			defer wg.Done()
			relay.Start(ctx)
		}()
	}

	srv := server.New(cfg.ListenAddr, responder, cfg.AppClientToken)
	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("Server failed")
		stop()
	}

	wg.Wait()
	log.Info().Msg("Exited")
}

func setLogLevel(level string) {
	switch level {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Info().Str("level", zerolog.GlobalLevel().String()).Msg("Setting Log Level")
}
