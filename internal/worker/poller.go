// Package worker holds the background loops: status-poll fallback,
// renewal scheduling and outbox draining.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/application/services"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// StatusPoller is the reconciliation fallback for gateways whose
// callbacks were lost. It polls stuck records and feeds the results
// through the same path a webhook would take.
type StatusPoller struct {
	repo       application.PaymentRepository
	gateways   application.GatewayRegistry
	reconciler *services.Reconciler
	wallet     services.CompletionHook
	interval   time.Duration
	minAge     time.Duration
	batchSize  int
	logger     *slog.Logger
}

func NewStatusPoller(
	repo application.PaymentRepository,
	gateways application.GatewayRegistry,
	reconciler *services.Reconciler,
	wallet services.CompletionHook,
	interval time.Duration,
	minAge time.Duration,
	batchSize int,
	logger *slog.Logger,
) *StatusPoller {
	return &StatusPoller{
		repo:       repo,
		gateways:   gateways,
		reconciler: reconciler,
		wallet:     wallet,
		interval:   interval,
		minAge:     minAge,
		batchSize:  batchSize,
		logger:     logger,
	}
}

func (p *StatusPoller) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("starting status poller", "interval", p.interval, "batch_size", p.batchSize)

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("stopping status poller")
			return
		case <-ticker.C:
			p.run(ctx)
		}
	}
}

// RunOnce executes a single polling cycle.
func (p *StatusPoller) RunOnce(ctx context.Context) {
	p.run(ctx)
}

func (p *StatusPoller) run(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-p.minAge)

	stuck, err := p.repo.FindAwaitingCallback(ctx, cutoff, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch payments awaiting callback", "error", err)
		return
	}
	if len(stuck) == 0 {
		return
	}

	p.logger.Info("polling stuck payments", "count", len(stuck))

	for _, rec := range stuck {
		if ctx.Err() != nil {
			return
		}
		p.poll(ctx, rec)
	}
}

func (p *StatusPoller) poll(ctx context.Context, rec *domain.PaymentRecord) {
	adapter, err := p.gateways.Get(rec.Gateway.Provider)
	if err != nil {
		p.logger.Warn("cannot poll payment on unconfigured gateway",
			"payment_id", rec.ID,
			"gateway", rec.Gateway.Provider,
		)
		return
	}

	rawStatus, err := adapter.GetStatus(ctx, rec.Gateway.ExternalID)
	if err != nil {
		p.logger.Error("status poll failed",
			"payment_id", rec.ID,
			"gateway", rec.Gateway.Provider,
			"error", err,
		)
		return
	}

	fields := domain.GatewayFields{RawStatus: rawStatus}
	if err := p.reconciler.Apply(ctx, rec, rec.Gateway.Provider, fields, p.depositHook()); err != nil {
		p.logger.Error("poll reconciliation failed",
			"payment_id", rec.ID,
			"error", err,
		)
	}
}

func (p *StatusPoller) depositHook() services.CompletionHook {
	return func(ctx context.Context, rec *domain.PaymentRecord) error {
		if rec.Purpose != domain.PurposeDeposit {
			return nil
		}
		return p.wallet(ctx, rec)
	}
}
