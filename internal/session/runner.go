package session

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// Runner drives a machine's one-second ticks from its own goroutine. The
// machine stays the single owner of state; the runner only schedules.
// Stopping is explicit via context cancel, not garbage collection.
type Runner struct {
	machine  *Machine
	interval time.Duration
	logger   zerolog.Logger
}

func NewRunner(machine *Machine, interval time.Duration, logger zerolog.Logger) *Runner {
	if interval <= 0 {
		interval = time.Second
	}
	return &Runner{machine: machine, interval: interval, logger: logger}
}

// Run ticks until the context is canceled or the machine leaves Running
// (expiry auto-submit included). Blocks; callers usually `go r.Run(ctx)`.
func (r *Runner) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.machine.Tick(ctx); err != nil {
				if errors.Is(err, ErrNotRunning) {
					return
				}
				r.logger.Error().Err(err).Msg("session tick failed")
				return
			}
		}
	}
}
