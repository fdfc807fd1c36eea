package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// FulfillmentService provisions IPTV accounts and queues confirmation
// emails for completed payments. Both effects carry their own idempotency
// guard so a redelivered completion is a no-op.
type FulfillmentService struct {
	repo         application.PaymentRepository
	provisioning application.ProvisioningClient
	outbox       application.OutboxRepository
	logger       *slog.Logger
}

func NewFulfillmentService(
	repo application.PaymentRepository,
	provisioning application.ProvisioningClient,
	outbox application.OutboxRepository,
	logger *slog.Logger,
) *FulfillmentService {
	return &FulfillmentService{
		repo:         repo,
		provisioning: provisioning,
		outbox:       outbox,
		logger:       logger,
	}
}

// HandlePaymentCompleted runs the completion side effects. Existing
// credentials mean provisioning already ran; a sent email is never resent;
// subscription bookkeeping carries its own conditional-write guards.
func (f *FulfillmentService) HandlePaymentCompleted(ctx context.Context, rec *domain.PaymentRecord) error {
	if rec.Purpose != domain.PurposeDeposit && rec.Credentials == nil {
		if err := f.provision(ctx, rec); err != nil {
			return err
		}
	}

	if rec.Subscription != nil {
		if err := f.advanceSubscription(ctx, rec); err != nil {
			return err
		}
	}

	if !rec.EmailSent {
		if err := f.queueConfirmationEmail(ctx, rec); err != nil {
			return err
		}
	}

	return nil
}

// advanceSubscription starts the billing cycle on the first completion of
// a subscription purchase and, when a renewal settles, moves the parent to
// its next billing date so the scheduler stops re-invoicing the cycle.
func (f *FulfillmentService) advanceSubscription(ctx context.Context, rec *domain.PaymentRecord) error {
	sub := rec.Subscription
	now := time.Now().UTC()

	if !sub.IsRenewal {
		if sub.NextBillingDate != nil {
			return nil
		}
		next := now.AddDate(0, 0, sub.PeriodDays())
		if err := f.repo.ActivateSubscription(ctx, rec.ID, next); err != nil {
			return domain.NewPersistenceError(err)
		}
		sub.IsActive = true
		sub.NextBillingDate = &next
		f.logger.Info("subscription activated",
			"payment_id", rec.ID,
			"next_billing_date", next,
		)
		return nil
	}

	if sub.ParentOrderID == nil {
		return nil
	}
	parent, err := f.repo.FindByID(ctx, *sub.ParentOrderID)
	if err != nil {
		return err
	}
	if parent.Subscription == nil {
		return nil
	}

	// A renewal paid before the old cycle ran out extends from the
	// scheduled date; a late settlement extends from now.
	base := now
	if d := parent.Subscription.NextBillingDate; d != nil && d.After(now) {
		base = *d
	}
	next := base.AddDate(0, 0, parent.Subscription.PeriodDays())

	advanced, err := f.repo.AdvanceBillingCycle(ctx, parent.ID, rec.ID, next)
	if err != nil {
		return domain.NewPersistenceError(err)
	}
	if !advanced {
		return nil
	}
	f.logger.Info("billing cycle advanced",
		"parent_order_id", parent.ID,
		"renewal_id", rec.ID,
		"next_billing_date", next,
	)
	return nil
}

func (f *FulfillmentService) provision(ctx context.Context, rec *domain.PaymentRecord) error {
	req := application.ProvisioningRequest{
		PaymentID:     rec.ID,
		CustomerEmail: rec.CustomerEmail,
		ProductID:     rec.ProductID,
		VariantID:     rec.VariantID,
		Quantity:      rec.Quantity,
	}

	var (
		creds *domain.Credentials
		err   error
	)
	if rec.Subscription != nil && rec.Subscription.IsRenewal {
		req.IsRenewal = true
		req.Username = rec.Gateway.Metadata["iptv_username"]
		creds, err = f.provisioning.ExtendAccount(ctx, req)
	} else {
		creds, err = f.provisioning.CreateAccount(ctx, req)
	}
	if err != nil {
		return fmt.Errorf("provision account for payment %s: %w", rec.ID, err)
	}

	if err := f.repo.SaveCredentials(ctx, rec.ID, creds); err != nil {
		return domain.NewPersistenceError(err)
	}
	rec.MarkProvisioned(creds)

	f.logger.Info("iptv account provisioned",
		"payment_id", rec.ID,
		"username", creds.Username,
	)
	return nil
}

type confirmationPayload struct {
	PaymentID   string          `json:"payment_id"`
	Purpose     domain.Purpose  `json:"purpose"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	Username    string          `json:"username,omitempty"`
}

func (f *FulfillmentService) queueConfirmationEmail(ctx context.Context, rec *domain.PaymentRecord) error {
	payload := confirmationPayload{
		PaymentID:   rec.ID,
		Purpose:     rec.Purpose,
		TotalAmount: rec.TotalAmount,
		Currency:    rec.Currency,
	}
	if rec.Credentials != nil {
		payload.Username = rec.Credentials.Username
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal confirmation payload: %w", err)
	}

	msg := &domain.OutboxMessage{
		ID:            uuid.New().String(),
		Kind:          domain.OutboxKindPaymentConfirmation,
		PaymentID:     rec.ID,
		Recipient:     rec.CustomerEmail,
		Payload:       body,
		NextAttemptAt: time.Now().UTC(),
		CreatedAt:     time.Now().UTC(),
	}

	if err := f.outbox.Enqueue(ctx, msg); err != nil {
		return domain.NewPersistenceError(err)
	}
	if err := f.repo.MarkEmailSent(ctx, rec.ID); err != nil {
		return domain.NewPersistenceError(err)
	}
	rec.EmailSent = true
	return nil
}

// WalletCreditHook builds the completion hook for deposit payments. The
// conditional flip of the credited flag and the balance increment run in
// one transaction, so at-least-once notifications credit exactly once.
func WalletCreditHook(repo application.PaymentRepository, logger *slog.Logger) CompletionHook {
	return func(ctx context.Context, rec *domain.PaymentRecord) error {
		credited, err := repo.CreditWallet(ctx, rec.ID, rec.TotalAmount)
		if err != nil {
			return fmt.Errorf("credit wallet for payment %s: %w", rec.ID, err)
		}
		if !credited {
			logger.Info("wallet already credited, skipping",
				"payment_id", rec.ID,
			)
			return nil
		}
		logger.Info("wallet credited",
			"payment_id", rec.ID,
			"amount", rec.TotalAmount.String(),
		)
		return nil
	}
}
