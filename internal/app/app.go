package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/catalog"
	"github.com/prepdesk/exam-platform/internal/challenge"
	"github.com/prepdesk/exam-platform/internal/config"
	"github.com/prepdesk/exam-platform/internal/db/repository"
	"github.com/prepdesk/exam-platform/internal/evaluate"
	"github.com/prepdesk/exam-platform/internal/identity"
	"github.com/prepdesk/exam-platform/internal/ledger"
	"github.com/prepdesk/exam-platform/internal/logging"
	"github.com/prepdesk/exam-platform/internal/selector"
	"github.com/prepdesk/exam-platform/internal/server"
	"github.com/prepdesk/exam-platform/internal/session"
	"github.com/prepdesk/exam-platform/pkg/http/ws"
)

// Application aggregates shared infrastructure (DB, cache, HTTP server).
type Application struct {
	cfg    *config.App
	logger zerolog.Logger

	pool  *pgxpool.Pool
	redis *redis.Client
	http  *http.Server

	expiryWorker *challenge.ExpiryWorker
	bgCancels    []context.CancelFunc
}

// New bootstraps config, logger, Postgres, Redis and the HTTP server.
func New(ctx context.Context, cfg *config.App) (*Application, error) {
	logger := logging.New(cfg.Name, cfg.Env)
	logger.Info().Msg("starting application bootstrap")

	connString := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s pool_max_conns=10",
		cfg.Postgres.Host, cfg.Postgres.Port, cfg.Postgres.User, cfg.Postgres.Password, cfg.Postgres.Database, cfg.Postgres.SSLMode)

	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		DB:       cfg.Redis.DB,
		PoolSize: cfg.Redis.PoolSize,
	})

	validator := identity.NewValidator([]byte(cfg.Security.JWTSecret), cfg.Name)

	// Question catalog with a Redis read-through cache.
	catalogRepo := catalog.NewRepository(pool)
	catalogCache := catalog.NewCache(redisClient, cfg.Engine.CatalogCacheTTL)
	catalogSvc := catalog.NewService(catalogRepo, catalogCache, logger)

	// Selector draws from both pools with a recency filter.
	recency := selector.NewRedisRecency(redisClient, cfg.Engine.RecencyWindow)
	selectorSvc := selector.NewService(catalogRepo, recency, selector.Options{}, logger)

	// Attempt state in Redis behind a bounded-retry syncer.
	attemptStore := session.NewRedisStore(redisClient, cfg.Engine.AttemptTTL, logger)
	syncer := session.NewSyncer(attemptStore, cfg.Engine.SyncRetryLimit, cfg.Engine.SyncRetryBackoff, logger)

	evaluator := evaluate.New(evaluate.Config{})

	testRepo := repository.NewTestRepository(pool)
	resultRepo := repository.NewResultRepository(pool)
	challengeRepo := repository.NewChallengeRepository(pool)
	coinLedger := ledger.New(pool)

	wsHub := ws.NewHub(logger)
	notifier := challenge.NewHubNotifier(wsHub, logger)

	challengeResolver := challenge.NewResolver(pool, challengeRepo, resultRepo, coinLedger, challenge.ResolverOptions{
		Notifier: notifier,
	}, logger)
	challengeSvc := challenge.NewService(pool, selectorSvc, testRepo, challengeRepo, notifier, challenge.Config{
		StakeCoins:    cfg.Challenge.Stake,
		Window:        cfg.Challenge.DefaultWindow,
		DefaultBudget: cfg.Engine.DefaultTimeBudget,
	}, nil, logger)
	recorder := challenge.NewRecorder(challengeSvc, challengeResolver)

	sessionSvc := session.NewService(testRepo, catalogSvc, syncer, evaluator, resultRepo, recorder, nil, logger)

	sessionHandlers := session.NewHTTPHandlers(sessionSvc, logger)
	challengeHandlers := challenge.NewHTTPHandlers(challengeSvc, logger)
	wsHandler := challenge.NewWSHandler(wsHub, validator, cfg.CORS.AllowedOrigins, logger)

	expiryWorker := challenge.NewExpiryWorker(challengeRepo, notifier, nil, cfg.Engine.ExpirySweepEvery, logger)

	apiServer := server.NewHTTPServer(cfg, logger, pool, redisClient, validator, sessionHandlers, challengeHandlers, wsHandler)

	return &Application{
		cfg:          cfg,
		logger:       logger,
		pool:         pool,
		redis:        redisClient,
		http:         apiServer,
		expiryWorker: expiryWorker,
		bgCancels:    make([]context.CancelFunc, 0, 1),
	}, nil
}

// Run starts the HTTP server and waits for termination signals.
func (a *Application) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	a.startBackgroundWorkers(ctx)

	go func() {
		a.logger.Info().Str("addr", a.cfg.HTTPAddr).Msg("http server listening")
		if err := a.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		a.logger.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err := <-errCh:
		return fmt.Errorf("http server error: %w", err)
	case <-ctx.Done():
		a.logger.Warn().Msg("context canceled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.GracefulShutdownTimeout)
	defer cancel()

	if err := a.http.Shutdown(shutdownCtx); err != nil {
		a.logger.Error().Err(err).Msg("http shutdown error")
	}

	for _, cancel := range a.bgCancels {
		cancel()
	}

	a.pool.Close()
	if err := a.redis.Close(); err != nil {
		a.logger.Error().Err(err).Msg("redis shutdown error")
	}

	a.logger.Info().Msg("shutdown complete")
	return nil
}

func (a *Application) startBackgroundWorkers(ctx context.Context) {
	if a.expiryWorker != nil {
		bgCtx, cancel := context.WithCancel(ctx)
		a.bgCancels = append(a.bgCancels, cancel)
		go func() {
			if err := a.expiryWorker.Run(bgCtx); err != nil && err != context.Canceled {
				a.logger.Warn().Err(err).Msg("challenge expiry worker stopped")
			}
		}()
	}
}
