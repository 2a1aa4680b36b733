package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/kvantora/comment-bridge/internal/api"
	"github.com/kvantora/comment-bridge/internal/biz"
	"github.com/kvantora/comment-bridge/internal/biz/usecase"
	"github.com/kvantora/comment-bridge/internal/conf"
	"github.com/kvantora/comment-bridge/internal/data"
	"github.com/kvantora/comment-bridge/internal/metrics"
	"github.com/kvantora/comment-bridge/internal/server"
	"github.com/kvantora/comment-bridge/internal/service"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the bot and the ops HTTP API",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
}

func loadConfig(c *cli.Context) (*conf.Config, error) {
	cfg, err := conf.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	setupLogging(cfg.Log)
	return cfg, nil
}

func setupLogging(cfg conf.LogConfig) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}

func serve(cfg *conf.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx := context.Background()

	// Initialize storage
	storage, err := data.OpenStorage(ctx, cfg.Storage.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer storage.Close()
	log.Info().Bool("postgres", data.IsPostgresURL(cfg.Storage.DatabaseURL)).Msg("storage ready")

	// Initialize transport
	bot, err := server.NewBot(cfg.Bot.Token, cfg.PollTimeout())
	if err != nil {
		return err
	}

	var throttle *rate.Limiter
	if cfg.Bot.SendRatePerSec > 0 {
		throttle = rate.NewLimiter(rate.Limit(cfg.Bot.SendRatePerSec), max(cfg.Bot.SendBurst, 1))
	}
	repos := data.NewRepositories(data.NewTelegramRepo(bot, throttle), storage)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(registry)

	// Initialize usecase layer
	selections := usecase.NewSelectionStore()
	limiter := usecase.NewRateLimiterUsecase(repos.RateLimit, cfg.ToRateLimitConfig())
	uc := &biz.Usecases{
		RateLimiter: limiter,
		Selections:  selections,
		Relay: usecase.NewRelayUsecase(
			cfg.ToRelayConfig(), cfg.ToTexts(),
			repos.Store, repos.Message, limiter, selections, collector,
		),
	}

	// Initialize service and server layers
	janitor := service.NewJanitor(uc.Selections, uc.RateLimiter, cfg.SelectionTTL(), cfg.Relay.JanitorSchedule)
	srv := server.NewTelegramServer(bot, uc.Relay, janitor)
	apiServer := api.NewServer(repos.Store, uc.Selections, metrics.Handler(registry), cfg.HTTP.Addr)

	go func() {
		if err := apiServer.Start(); err != nil {
			log.Error().Err(err).Msg("API server error")
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	log.Info().
		Str("bot", cfg.Bot.Username).
		Int64("admin_chat_id", cfg.Bot.AdminChatID).
		Ints64("allowed_channels", cfg.Bot.AllowedChannels).
		Msg("comment bridge started")

	var runErr error
	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	case runErr = <-errCh:
		if runErr != nil {
			log.Error().Err(runErr).Msg("server stopped")
		}
	}

	srv.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := apiServer.Stop(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		log.Warn().Err(err).Msg("API server shutdown")
	}
	return runErr
}
