package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/npezzotti/wave/internal/api"
	"github.com/npezzotti/wave/internal/assistant"
	"github.com/npezzotti/wave/internal/broker"
	"github.com/npezzotti/wave/internal/config"
	"github.com/npezzotti/wave/internal/logging"
	"github.com/npezzotti/wave/internal/server"
	"github.com/npezzotti/wave/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

func envOr(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

var (
	addr            string
	dsn             string
	pseudonymSecret string
	signingKey      string
	env             string
	anthropicKey    string
	logLevel        string
	heartbeat       time.Duration
	allowedOrigins  stringSliceFlag
)

func main() {
	flag.StringVar(&addr, "addr", envOr("WAVE_ADDR", "localhost:8000"), "server address")
	flag.StringVar(&dsn, "dsn", envOr("DATABASE_URL", ""), "postgres connection string; empty keeps rooms in memory")
	flag.StringVar(&pseudonymSecret, "pseudonym-secret", envOr("PSEUDONYM_SECRET", ""), "secret used to derive participant pseudonyms")
	flag.StringVar(&signingKey, "signing-key", envOr("IDENTITY_SIGNING_KEY", ""), "base64 encoded key verifying identity tokens")
	flag.StringVar(&env, "env", envOr("WAVE_ENV", config.EnvDev), "environment: dev, prod or test")
	flag.StringVar(&anthropicKey, "anthropic-api-key", envOr("ANTHROPIC_API_KEY", ""), "Anthropic API key")
	flag.StringVar(&logLevel, "log-level", envOr("WAVE_LOG_LEVEL", string(logging.InfoLevel)), "log level")
	flag.DurationVar(&heartbeat, "heartbeat", config.DefaultHeartbeat, "stream heartbeat interval")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:      logging.Level(logLevel),
		JSONOutput: env == config.EnvProd,
	})

	cfg, err := config.NewConfig(config.Options{
		ServerAddr:        addr,
		DatabaseDSN:       dsn,
		PseudonymSecret:   pseudonymSecret,
		SigningKey:        signingKey,
		AllowedOrigins:    allowedOrigins,
		Env:               env,
		AnthropicAPIKey:   anthropicKey,
		HeartbeatInterval: heartbeat,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("config")
	}

	mux := http.NewServeMux()
	statsUpdater := stats.NewStatsUpdater(mux)

	openCtx, cancelOpen := context.WithTimeout(context.Background(), 30*time.Second)
	b, err := broker.Open(openCtx, cfg, logger, statsUpdater)
	cancelOpen()
	if err != nil {
		logger.Fatal().Err(err).Msg("open broker")
	}
	defer func() {
		if err := b.Close(); err != nil {
			logger.Error().Err(err).Msg("broker close")
		}
	}()
	logger.Info().Str("backend", b.Backend()).Msg("room storage ready")

	model := assistant.NewModel(cfg.AnthropicAPIKey)
	if _, ok := model.(assistant.DisabledModel); ok {
		logger.Warn().Msg("no Anthropic API key configured, Wave will reply with an apology")
	}

	hub := server.NewHub(logger, b, statsUpdater, cfg.HeartbeatInterval)
	go hub.Run()

	app := api.NewWaveApp(mux, logger, hub, b, model, statsUpdater, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Info().Str("signal", sig.String()).Msg("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	logger.Info().Int("active_rooms", hub.RoomCount()).Msg("shutting down")
	if err := app.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown")
	}

	logger.Info().Msg("closing event streams")
	if err := hub.Shutdown(shutDownCtx); err != nil {
		logger.Error().Err(err).Msg("hub shutdown")
	}

	logger.Info().Msg("shutdown complete")
}
