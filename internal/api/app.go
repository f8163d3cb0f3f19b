package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/wave/internal/assistant"
	"github.com/npezzotti/wave/internal/broker"
	"github.com/npezzotti/wave/internal/config"
	"github.com/npezzotti/wave/internal/logging"
	"github.com/npezzotti/wave/internal/server"
	"github.com/npezzotti/wave/internal/stats"
	"github.com/rs/zerolog"
)

type WaveApp struct {
	log            zerolog.Logger
	broker         *broker.Broker
	hub            *server.Hub
	responder      *assistant.Responder
	model          assistant.Model
	stats          stats.StatsProvider
	srv            *http.Server
	signingKey     []byte
	allowedOrigins []string
}

func NewWaveApp(
	mux *http.ServeMux,
	logger zerolog.Logger,
	hub *server.Hub,
	b *broker.Broker,
	model assistant.Model,
	statsProvider stats.StatsProvider,
	cfg *config.Config,
) *WaveApp {
	app := &WaveApp{
		log:            logging.WithComponent(logger, "api"),
		broker:         b,
		hub:            hub,
		responder:      assistant.NewResponder(b, model, logger),
		model:          model,
		stats:          statsProvider,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("POST /api/rooms", app.identityMiddleware(app.createRoom))
	mux.HandleFunc("GET /api/rooms/{id}", app.getRoom)
	mux.HandleFunc("POST /api/rooms/{id}/join", app.identityMiddleware(app.joinRoom))
	mux.HandleFunc("GET /api/rooms/{id}/messages", app.getMessages)
	mux.HandleFunc("POST /api/rooms/{id}/chat", app.chat)
	mux.HandleFunc("GET /api/rooms/{id}/events", app.streamEvents)
	mux.HandleFunc("GET /api/rooms/{id}/ws", app.serveWs)
	mux.HandleFunc("POST /api/chat", app.completion)
	mux.HandleFunc("GET /healthz", app.healthCheck)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = app.logRequests(h)
	h = app.errorHandler(h)

	app.srv = &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}
	// open streams would otherwise keep Shutdown waiting
	app.srv.RegisterOnShutdown(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := hub.Shutdown(ctx); err != nil {
			app.log.Error().Err(err).Msg("hub shutdown")
		}
	})

	return app
}

func (app *WaveApp) Handler() http.Handler {
	return app.srv.Handler
}

func (app *WaveApp) Start() error {
	app.log.Info().Str("addr", app.srv.Addr).Str("backend", app.broker.Backend()).Msg("starting server")
	return app.srv.ListenAndServe()
}

func (app *WaveApp) Shutdown(ctx context.Context) error {
	app.log.Info().Msg("shutting down HTTP server")
	if err := app.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
