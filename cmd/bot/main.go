package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"turnaround-studio/internal/config"
	"turnaround-studio/internal/gemini"
	"turnaround-studio/internal/handlers"
	"turnaround-studio/internal/history"
	"turnaround-studio/internal/httpclient"
	"turnaround-studio/internal/retry"
	"turnaround-studio/internal/session"
	"turnaround-studio/internal/telegram"
	"turnaround-studio/internal/turnaround"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	if cfg.TelegramToken == "" {
		panic("TELEGRAM_BOT_TOKEN is required for the bot front end")
	}

	logger := newLogger(cfg)

	httpClient := httpclient.New(httpclient.Options{
		PreferIPv4: cfg.PreferIPv4,
		Timeout:    cfg.HTTPTimeout,
	})

	tg, err := telegram.New(telegram.Options{
		Token:      cfg.TelegramToken,
		HTTPClient: httpClient,
		Logger:     logger,
		Debug:      cfg.Debug,
	})
	if err != nil {
		logger.Error("telegram init failed", "err", err)
		os.Exit(1)
	}

	gem := gemini.New(gemini.Options{
		APIKey:            cfg.GeminiAPIKey,
		BaseURL:           cfg.GeminiBaseURL,
		APIVersion:        cfg.GeminiAPIVersion,
		HTTPClient:        httpClient,
		Logger:            logger,
		Retry:             retry.Policy{MaxRetries: uint64(cfg.RetryMaxAttempts), BaseDelay: cfg.RetryBaseDelay},
		RequestsPerMinute: cfg.RequestsPerMinute,
		PromptCacheTTL:    cfg.PromptCacheTTL,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	recorder := newRecorder(ctx, cfg, logger)
	defer recorder.Close()

	runner := turnaround.NewRunner(turnaround.Options{
		Generator: gem,
		Logger:    logger,
		Recorder:  recorder,
	})

	sessions := session.NewStore()

	handler := handlers.New(handlers.Options{
		Telegram: tg,
		Runner:   runner,
		Sessions: sessions,
		Logger:   logger,
	})

	scheduler := cron.New()
	scheduler.AddFunc("@every 30m", func() {
		if removed := sessions.Prune(cfg.SessionMaxIdle); removed > 0 {
			logger.Info("pruned idle sessions", "removed", removed)
		}
	})
	scheduler.AddFunc("0 3 * * *", func() {
		purgeCtx, cancel := context.WithTimeout(ctx, time.Minute)
		defer cancel()
		if removed, err := recorder.Purge(purgeCtx, cfg.HistoryRetention); err != nil {
			logger.Warn("history purge failed", "err", err)
		} else if removed > 0 {
			logger.Info("purged old run records", "removed", removed)
		}
	})
	scheduler.Start()
	defer scheduler.Stop()

	logger.Info("bot started", "username", tg.Username())

	sem := make(chan struct{}, cfg.MaxConcurrent)
	updates := tg.Updates(telegram.UpdatesOptions{
		Timeout: 30 * time.Second,
	})
	defer tg.StopUpdates()

	for {
		select {
		case <-ctx.Done():
			logger.Info("shutting down")
			return
		case update, ok := <-updates:
			if !ok {
				logger.Info("updates channel closed")
				return
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(update telegram.Update) {
				defer func() { <-sem }()

				reqCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout)
				defer cancel()

				if err := handler.HandleUpdate(reqCtx, update); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("handle update failed", "err", err)
				}
			}(update)
		}
	}
}

func newRecorder(ctx context.Context, cfg config.Config, logger *slog.Logger) history.Recorder {
	if cfg.DatabaseURL == "" {
		return history.Noop{}
	}

	openCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	rec, err := history.OpenPostgres(openCtx, cfg.DatabaseURL)
	if err != nil {
		logger.Warn("run audit log disabled", "err", err)
		return history.Noop{}
	}
	logger.Info("run audit log enabled")
	return rec
}

func newLogger(cfg config.Config) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
}
