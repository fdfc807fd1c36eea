package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// OutboxWorker drains pending notifications and hands them to the mail
// service. Failed sends are rescheduled with exponential backoff until
// the attempt cap; messages at the cap are excluded from the fetch and
// stay parked unsent for manual inspection.
type OutboxWorker struct {
	outbox      application.OutboxRepository
	mailer      application.Mailer
	interval    time.Duration
	batchSize   int
	maxAttempts int
	logger      *slog.Logger
}

func NewOutboxWorker(
	outbox application.OutboxRepository,
	mailer application.Mailer,
	interval time.Duration,
	batchSize int,
	maxAttempts int,
	logger *slog.Logger,
) *OutboxWorker {
	return &OutboxWorker{
		outbox:      outbox,
		mailer:      mailer,
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

func (w *OutboxWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("starting outbox worker", "interval", w.interval, "batch_size", w.batchSize)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("stopping outbox worker")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

// RunOnce executes a single drain cycle.
func (w *OutboxWorker) RunOnce(ctx context.Context) {
	w.run(ctx)
}

func (w *OutboxWorker) run(ctx context.Context) {
	now := time.Now().UTC()

	due, err := w.outbox.FindDue(ctx, now, w.maxAttempts, w.batchSize)
	if err != nil {
		w.logger.Error("failed to fetch due outbox messages", "error", err)
		return
	}
	if len(due) == 0 {
		return
	}

	for _, msg := range due {
		if ctx.Err() != nil {
			return
		}
		w.deliver(ctx, msg)
	}
}

func (w *OutboxWorker) deliver(ctx context.Context, msg *domain.OutboxMessage) {
	if err := w.mailer.Send(ctx, msg.Recipient, msg.Kind, msg.Payload); err != nil {
		attempts := msg.Attempts + 1
		if attempts >= w.maxAttempts {
			w.logger.Error("outbox message exhausted retries",
				"message_id", msg.ID,
				"payment_id", msg.PaymentID,
				"attempts", attempts,
				"error", err,
			)
		}
		next := time.Now().UTC().Add(w.backoff(attempts))
		if err := w.outbox.ScheduleRetry(ctx, msg.ID, attempts, next); err != nil {
			w.logger.Error("failed to schedule outbox retry", "message_id", msg.ID, "error", err)
		}
		return
	}

	if err := w.outbox.MarkSent(ctx, msg.ID, time.Now().UTC()); err != nil {
		w.logger.Error("failed to mark outbox message sent", "message_id", msg.ID, "error", err)
		return
	}

	w.logger.Info("outbox message sent",
		"message_id", msg.ID,
		"kind", msg.Kind,
		"payment_id", msg.PaymentID,
	)
}

func (w *OutboxWorker) backoff(attempts int) time.Duration {
	d := time.Duration(1<<attempts) * time.Minute
	if d > 6*time.Hour {
		d = 6 * time.Hour
	}
	return d
}
