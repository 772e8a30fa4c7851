package main

import (
	"context"
	"fmt"
	"io/fs"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/auditdesk/internal/analysis"
	"github.com/gosuda/auditdesk/internal/auth"
	"github.com/gosuda/auditdesk/internal/config"
	"github.com/gosuda/auditdesk/internal/dashboard"
	"github.com/gosuda/auditdesk/internal/metrics"
	"github.com/gosuda/auditdesk/internal/notify"
	"github.com/gosuda/auditdesk/internal/server"
	"github.com/gosuda/auditdesk/internal/store/postgres"
	redisstore "github.com/gosuda/auditdesk/internal/store/redis"
	"github.com/gosuda/auditdesk/web"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("startup failed")
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration from environment (and optional .env files).
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	setupLogging(cfg.Log)

	if cfg.Database.MaxConns < 0 || cfg.Database.MaxConns > math.MaxInt32 {
		return fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	// Connect to PostgreSQL.
	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return err
	}
	defer store.Close()

	if err = store.Migrate(ctx); err != nil {
		return err
	}

	// Connect to Redis.
	pubsub, err := redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	authSvc := auth.NewService(store.Users(), cfg.JWT.Secret, cfg.JWT.AccessTTL, cfg.JWT.RefreshTTL)

	var analyzer analysis.Analyzer = analysis.Disabled{}
	if cfg.AI.APIKey != "" {
		analyzer = analysis.NewOpenAI(analysis.OpenAIConfig{
			APIKey:  cfg.AI.APIKey,
			Model:   cfg.AI.Model,
			BaseURL: cfg.AI.BaseURL,
			Timeout: cfg.AI.Timeout,
		})
		log.Info().Str("model", cfg.AI.Model).Msg("AI analysis enabled")
	} else {
		log.Warn().Msg("AUDITDESK_OPENAI_API_KEY not set; analysis generation is disabled")
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.Slack.Enabled() {
		notifier = notify.NewSlack(cfg.Slack.BotToken, cfg.Slack.Channel)
		log.Info().Str("channel", cfg.Slack.Channel).Msg("Slack notifications enabled")
	}

	m := metrics.NewDefault()

	dashOpts := []dashboard.Option{dashboard.WithMetrics(m)}
	if !cfg.Dashboard.Month.IsZero() {
		dashOpts = append(dashOpts, dashboard.WithMonth(cfg.Dashboard.Month))
	}
	aggregator := dashboard.New(dashboard.Repositories{
		Statuses:   store.Statuses(),
		Audits:     store.Audits(),
		Outlets:    store.Outlets(),
		Users:      store.Users(),
		Activities: store.Activities(),
	}, dashOpts...)

	// Prepare embedded UI assets (strip "build/" prefix from fs paths).
	webAssets, err := fs.Sub(web.Assets, "build")
	if err != nil {
		return fmt.Errorf("web assets: %w", err)
	}

	// Graceful shutdown on SIGINT / SIGTERM.
	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()

	srv := server.New(ctx, cfg, server.Dependencies{
		Store:     store,
		PubSub:    pubsub,
		Auth:      authSvc,
		Analyzer:  analyzer,
		Notifier:  notifier,
		Metrics:   m,
		Snapshots: aggregator,
		WebAssets: webAssets,
	})

	// Start server in background goroutine.
	go func() {
		log.Info().Str("addr", cfg.Server.Addr).Msg("starting server")
		if startErr := srv.Start(ctx); startErr != nil {
			log.Error().Err(startErr).Msg("server error")
			cancel()
		}
	}()

	// Block until shutdown signal.
	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		return shutdownErr
	}

	log.Info().Msg("stopped")
	return nil
}

func setupLogging(cfg config.LogConfig) {
	level, parseErr := zerolog.ParseLevel(cfg.Level)
	if parseErr != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}
}
