// Package services contains the application services wired by cmd/gateway:
// checkout, reconciliation, fulfillment, renewal scheduling and queries.
package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// CompletionHook runs exactly once when a payment transitions into
// completed. Errors are logged, never rolled back into the transition.
type CompletionHook func(ctx context.Context, rec *domain.PaymentRecord) error

// Reconciler merges gateway status reports into the authoritative payment
// record. It is the only component that writes payment status.
type Reconciler struct {
	repo        application.PaymentRepository
	fulfillment *FulfillmentService
	logger      *slog.Logger
}

func NewReconciler(
	repo application.PaymentRepository,
	fulfillment *FulfillmentService,
	logger *slog.Logger,
) *Reconciler {
	return &Reconciler{
		repo:        repo,
		fulfillment: fulfillment,
		logger:      logger,
	}
}

// ApplyStatusUpdate loads the record and applies a status report to it.
// Returns RecordNotFoundError when no record matches, PersistenceError
// when the write fails; every other outcome is absorbed into the record.
func (r *Reconciler) ApplyStatusUpdate(
	ctx context.Context,
	paymentID string,
	gatewayKey string,
	fields domain.GatewayFields,
	onCompleted CompletionHook,
) (*domain.PaymentRecord, error) {
	rec, err := r.repo.FindByID(ctx, paymentID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.NewRecordNotFoundError(paymentID)
	}
	if err := r.Apply(ctx, rec, gatewayKey, fields, onCompleted); err != nil {
		return nil, err
	}
	return rec, nil
}

// Apply reconciles an already-loaded record against a status report.
//
// Same normalized status: metadata refresh only, no hooks. Changed status:
// one atomic write of status + order status + gateway sub-document.
// Notifications are delivered at least once and in no particular order, so
// an illegal transition (any move out of completed, or a downgrade from
// failed/cancelled) is treated as stale evidence and merged without a
// status change.
func (r *Reconciler) Apply(
	ctx context.Context,
	rec *domain.PaymentRecord,
	gatewayKey string,
	fields domain.GatewayFields,
	onCompleted CompletionHook,
) error {
	if rec.Gateway.Provider != "" && gatewayKey != "" && rec.Gateway.Provider != gatewayKey {
		r.logger.Warn("status report from unexpected gateway ignored",
			"payment_id", rec.ID,
			"record_gateway", rec.Gateway.Provider,
			"report_gateway", gatewayKey,
		)
		return nil
	}

	now := time.Now().UTC()
	target := domain.Normalize(fields.RawStatus)

	if target == rec.PaymentStatus {
		rec.MergeGatewayFields(fields, now)
		if err := r.repo.UpdateReconciled(ctx, rec); err != nil {
			return domain.NewPersistenceError(err)
		}
		return nil
	}

	if !rec.PaymentStatus.CanTransitionTo(target) {
		r.logger.Warn("stale status report ignored",
			"payment_id", rec.ID,
			"current", rec.PaymentStatus,
			"reported", target,
			"raw", fields.RawStatus,
		)
		rec.MergeGatewayFields(fields, now)
		if err := r.repo.UpdateReconciled(ctx, rec); err != nil {
			return domain.NewPersistenceError(err)
		}
		return nil
	}

	previous := rec.PaymentStatus
	if err := rec.Transition(target); err != nil {
		return err
	}
	rec.MergeGatewayFields(fields, now)

	if err := r.repo.UpdateReconciled(ctx, rec); err != nil {
		return domain.NewPersistenceError(err)
	}

	r.logger.Info("payment status reconciled",
		"payment_id", rec.ID,
		"gateway", rec.Gateway.Provider,
		"from", previous,
		"to", target,
	)

	if target == domain.StatusCompleted {
		r.runCompletionHooks(ctx, rec, onCompleted)
	}

	return nil
}

// runCompletionHooks fires fulfillment on the first entry into completed.
// The status transition is already persisted: a confirmed payment stays
// confirmed even when downstream fulfillment has a transient failure, and
// the failures stay observable through logs and the outbox.
func (r *Reconciler) runCompletionHooks(ctx context.Context, rec *domain.PaymentRecord, onCompleted CompletionHook) {
	if err := r.fulfillment.HandlePaymentCompleted(ctx, rec); err != nil {
		r.logger.Error("fulfillment failed after completion",
			"payment_id", rec.ID,
			"error", err,
		)
	}

	if onCompleted != nil {
		if err := onCompleted(ctx, rec); err != nil {
			r.logger.Error("completion hook failed",
				"payment_id", rec.ID,
				"error", err,
			)
		}
	}
}
