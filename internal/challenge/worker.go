package challenge

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/prepdesk/exam-platform/internal/model"
)

type expirer interface {
	ExpireStale(ctx context.Context, now time.Time) ([]*model.Challenge, error)
}

type expiryNotifier interface {
	ChallengeExpired(c *model.Challenge)
}

// ExpiryWorker periodically sweeps pending challenges whose window fully
// elapsed into the terminal expired state.
type ExpiryWorker struct {
	store    expirer
	notifier expiryNotifier
	clock    clock
	interval time.Duration
	logger   zerolog.Logger
}

func NewExpiryWorker(store expirer, notifier expiryNotifier, clk clock, interval time.Duration, logger zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	if clk == nil {
		clk = realClock{}
	}
	return &ExpiryWorker{
		store:    store,
		notifier: notifier,
		clock:    clk,
		interval: interval,
		logger:   logger.With().Str("component", "challenge_expiry_worker").Logger(),
	}
}

// Run blocks until context cancellation.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// run immediately
	w.sweep(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *ExpiryWorker) sweep(ctx context.Context) {
	expired, err := w.store.ExpireStale(ctx, w.clock.Now())
	if err != nil {
		w.logger.Warn().Err(err).Msg("expiry sweep failed")
		return
	}
	if len(expired) == 0 {
		return
	}
	if w.notifier != nil {
		for _, c := range expired {
			w.notifier.ChallengeExpired(c)
		}
	}
	w.logger.Info().Int("count", len(expired)).Msg("expired stale challenges")
}
