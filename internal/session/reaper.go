// ABOUTME: Periodic sweeper that deletes expired sessions from a Store
// ABOUTME: Runs until its context is cancelled; sweep errors are logged only

package session

import (
	"context"
	"log/slog"
	"time"
)

// DefaultReapInterval is how often expired sessions are swept.
const DefaultReapInterval = time.Hour

// Reaper sweeps expired sessions on a fixed interval.
type Reaper struct {
	store    Store
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewReaper creates a reaper over st. A non-positive interval means
// DefaultReapInterval.
func NewReaper(st Store, interval time.Duration, logger *slog.Logger) *Reaper {
	if interval <= 0 {
		interval = DefaultReapInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reaper{
		store:    st,
		interval: interval,
		logger:   logger.With("component", "reaper"),
		now:      time.Now,
	}
}

// Run sweeps every interval until ctx is done. It always returns nil so it can
// sit in an errgroup next to the accept loop without cancelling it.
func (r *Reaper) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Sweep(ctx)
		case <-ctx.Done():
			return nil
		}
	}
}

// Sweep removes expired sessions once and returns how many were removed.
func (r *Reaper) Sweep(ctx context.Context) int {
	removed, err := r.store.SweepExpired(ctx, r.now())
	if err != nil {
		r.logger.Error("sweeping expired sessions", "error", err)
		return 0
	}
	if removed > 0 {
		r.logger.Info("removed expired sessions", "count", removed)
	} else {
		r.logger.Debug("no expired sessions")
	}
	return removed
}
