package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/streamvault/billing-gateway/internal/application/services"
)

// RenewalWorker drives periodic renewal scheduler passes. The manual job
// endpoint shares the underlying scheduler; the CAS lock keeps the two
// from double-invoicing.
type RenewalWorker struct {
	scheduler *services.RenewalScheduler
	interval  time.Duration
	logger    *slog.Logger
}

func NewRenewalWorker(scheduler *services.RenewalScheduler, interval time.Duration, logger *slog.Logger) *RenewalWorker {
	return &RenewalWorker{
		scheduler: scheduler,
		interval:  interval,
		logger:    logger,
	}
}

func (w *RenewalWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting renewal worker", "interval", w.interval)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping renewal worker")
			return
		case <-ticker.C:
			if _, err := w.scheduler.Run(ctx); err != nil {
				w.logger.Error("renewal pass failed", "error", err)
			}
		}
	}
}
