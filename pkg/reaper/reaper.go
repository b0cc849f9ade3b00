// Package reaper implements the Orphan Reaper (spec §4.5): a periodic sweep
// that finds cloud resources the Match Coordinator failed to clean up
// (crashed mid-match, process killed, etc.) and destroys them.
package reaper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ch1nq/agentarena/internal/telemetry"
	"github.com/ch1nq/agentarena/pkg/machine"
)

// Config tunes one sweep (spec §6: REAPER_INTERVAL_MS, REAPER_MAX_AGE_MS,
// REAPER_PREFIX).
type Config struct {
	Prefix string
	MaxAge time.Duration
}

// Reaper periodically lists and destroys orphaned machine-provider
// resources. It depends only on machine.Provider's orphan methods.
type Reaper struct {
	provider machine.Provider
	cfg      Config
	logger   *slog.Logger
}

// New creates a Reaper.
func New(provider machine.Provider, cfg Config, logger *slog.Logger) *Reaper {
	return &Reaper{provider: provider, cfg: cfg, logger: logger}
}

// Run loops Sweep on interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context, interval time.Duration) error {
	r.logger.Info("orphan reaper started", "interval", interval, "max_age", r.cfg.MaxAge, "prefix", r.cfg.Prefix)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("orphan reaper stopped")
			return nil
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep runs one list-then-destroy cycle. It never returns an error to the
// caller: every failure is logged and counted so a single bad resource
// doesn't block the rest of the sweep.
func (r *Reaper) Sweep(ctx context.Context) {
	orphans, err := r.provider.ListOrphaned(ctx, r.cfg.Prefix, r.cfg.MaxAge)
	if err != nil {
		r.logger.Error("listing orphaned resources", "error", err)
		telemetry.ReaperSweepsTotal.WithLabelValues("list_error").Inc()
		return
	}

	if len(orphans) == 0 {
		telemetry.ReaperSweepsTotal.WithLabelValues("clean").Inc()
		return
	}

	var reaped, failed int
	for _, o := range orphans {
		if err := r.provider.DestroyOrphaned(ctx, o); err != nil {
			r.logger.Error("destroying orphaned resource", "name", o.Name, "error", err)
			telemetry.ReaperDestroyedTotal.WithLabelValues("error").Inc()
			failed++
			continue
		}
		telemetry.ReaperDestroyedTotal.WithLabelValues("ok").Inc()
		reaped++
	}

	r.logger.Info("orphan sweep complete", "reaped", reaped, "failed", failed, "total", len(orphans))
	telemetry.ReaperSweepsTotal.WithLabelValues("swept").Inc()
}
