package server

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/challenge"
	"github.com/prepdesk/exam-platform/internal/config"
	"github.com/prepdesk/exam-platform/internal/identity"
	"github.com/prepdesk/exam-platform/internal/session"
)

// NewHTTPServer wires the API routes. Session and challenge handlers go
// behind the identity middleware; health and metrics stay open.
func NewHTTPServer(
	cfg *config.App,
	logger zerolog.Logger,
	pool *pgxpool.Pool,
	redis *redis.Client,
	validator *identity.Validator,
	sessionHandlers *session.HTTPHandlers,
	challengeHandlers *challenge.HTTPHandlers,
	wsHandler *challenge.WSHandler,
) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		if err := pingDependencies(r.Context(), pool, redis); err != nil {
			logger.Error().Err(err).Msg("dependency ping failed")
			http.Error(w, "upstream error", http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"pong":true}`))
	})

	authed := func(h http.HandlerFunc) http.Handler {
		return identity.RequireAuth(h)
	}

	mux.Handle("POST /v1/tests/{id}/session", authed(sessionHandlers.StartSession))
	mux.Handle("PUT /v1/tests/{id}/session/answers", authed(sessionHandlers.SaveAnswers))
	mux.Handle("POST /v1/tests/{id}/submit", authed(sessionHandlers.Submit))
	mux.Handle("GET /v1/tests/{id}/result", authed(sessionHandlers.GetResult))

	mux.Handle("POST /v1/challenges", authed(challengeHandlers.Create))
	mux.Handle("POST /v1/challenges/{id}/accept", authed(challengeHandlers.Accept))
	mux.Handle("GET /v1/challenges/{id}", authed(challengeHandlers.GetChallenge))

	// Token rides the query string here; the middleware only reads headers.
	mux.HandleFunc("GET /ws/challenges", wsHandler.HandleEventStream)

	handler := identity.Middleware(validator, logger)(mux)

	return &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}
}

func pingDependencies(ctx context.Context, pool *pgxpool.Pool, redis *redis.Client) error {
	if err := pool.Ping(ctx); err != nil {
		return err
	}
	if err := redis.Ping(ctx).Err(); err != nil {
		return err
	}
	return nil
}
