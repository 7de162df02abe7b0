// Package maintenance runs periodic housekeeping over the store:
// pruning aged hook events and audit entries, then vacuuming.
package maintenance

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Zeeeepa/gobby/internal/store"
)

// Janitor prunes aged rows on a cron schedule.
type Janitor struct {
	store     store.Store
	schedule  cron.Schedule
	retention time.Duration
	logger    *slog.Logger
	cancel    context.CancelFunc
	done      chan struct{}
	mu        sync.Mutex
}

// NewJanitor creates a Janitor. cronSpec uses the standard five-field
// cron format; retention bounds how long event and audit rows are kept.
func NewJanitor(s store.Store, cronSpec string, retention time.Duration, logger *slog.Logger) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("parse maintenance schedule %q: %w", cronSpec, err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Janitor{
		store:     s,
		schedule:  schedule,
		retention: retention,
		logger:    logger,
	}, nil
}

// Start launches the background maintenance loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	if j.done != nil {
		j.mu.Unlock()
		return fmt.Errorf("janitor already started")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.done = make(chan struct{})
	j.mu.Unlock()

	go j.loop(loopCtx)
	j.logger.Info("maintenance janitor started")
	return nil
}

// Stop signals the loop to exit and waits for it.
func (j *Janitor) Stop() {
	j.mu.Lock()
	cancel, done := j.cancel, j.done
	j.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (j *Janitor) loop(ctx context.Context) {
	defer close(j.done)

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single maintenance pass.
func (j *Janitor) RunOnce(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-j.retention)

	events, err := j.store.PruneEvents(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to prune hook events", slog.String("error", err.Error()))
	}
	audits, err := j.store.PruneAudit(ctx, cutoff)
	if err != nil {
		j.logger.Error("failed to prune audit entries", slog.String("error", err.Error()))
	}

	if events > 0 || audits > 0 {
		if err := j.store.Vacuum(ctx); err != nil {
			j.logger.Warn("vacuum failed", slog.String("error", err.Error()))
		}
	}

	j.logger.Info("maintenance pass complete",
		slog.Int64("events_pruned", events),
		slog.Int64("audit_pruned", audits),
	)
}
