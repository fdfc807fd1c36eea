package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// RenewalConfig tunes the scheduler pass.
type RenewalConfig struct {
	// Provider is the gateway renewals invoice against.
	Provider string
	// LeadTime is how far ahead of the billing date invoices are created.
	LeadTime time.Duration
	// Lookback bounds the search for an existing renewal order.
	Lookback time.Duration
	// InvoiceTTL is how long an unpaid renewal invoice stays valid before
	// a fresh one supersedes it.
	InvoiceTTL time.Duration
	// LockLease is the renewal lock lease; a lock older than this was left
	// by a crashed holder and is reclaimed by the compare-and-set.
	LockLease time.Duration
	BatchSize int
}

// RenewalSummary aggregates one scheduler pass. Per-item failures are
// counted, never raised.
type RenewalSummary struct {
	Checked int `json:"checked"`
	Renewed int `json:"renewed"`
	Skipped int `json:"skipped"`
	Errors  int `json:"errors"`
}

// RenewalScheduler creates exactly one renewal invoice per billing cycle
// for subscriptions nearing expiry. Cross-process mutual exclusion uses a
// conditional update on the renewal lock field, not a lock service: the
// critical section only has to prevent a duplicate invoice.
type RenewalScheduler struct {
	repo     application.PaymentRepository
	gateways application.GatewayRegistry
	urls     CallbackURLs
	fees     domain.FeePolicy
	limiter  *rate.Limiter
	cfg      RenewalConfig
	logger   *slog.Logger
}

func NewRenewalScheduler(
	repo application.PaymentRepository,
	gateways application.GatewayRegistry,
	urls CallbackURLs,
	fees domain.FeePolicy,
	limiter *rate.Limiter,
	cfg RenewalConfig,
	logger *slog.Logger,
) *RenewalScheduler {
	return &RenewalScheduler{
		repo:     repo,
		gateways: gateways,
		urls:     urls,
		fees:     fees,
		limiter:  limiter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one scheduler pass. It only fails outright when the
// renewal gateway is not configured at all.
func (s *RenewalScheduler) Run(ctx context.Context) (RenewalSummary, error) {
	var summary RenewalSummary

	adapter, err := s.gateways.Get(s.cfg.Provider)
	if err != nil {
		return summary, err
	}

	deadline := time.Now().UTC().Add(s.cfg.LeadTime)
	afterID := ""

	for {
		batch, err := s.repo.FindDueSubscriptions(ctx, deadline, afterID, s.cfg.BatchSize)
		if err != nil {
			return summary, domain.NewPersistenceError(err)
		}
		if len(batch) == 0 {
			break
		}

		for _, due := range batch {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.Checked++
			s.processSubscription(ctx, adapter, due.ID, &summary)
		}

		afterID = batch[len(batch)-1].ID
		if len(batch) < s.cfg.BatchSize {
			break
		}
	}

	s.logger.Info("renewal pass finished",
		"checked", summary.Checked,
		"renewed", summary.Renewed,
		"skipped", summary.Skipped,
		"errors", summary.Errors,
	)
	return summary, nil
}

func (s *RenewalScheduler) processSubscription(
	ctx context.Context,
	adapter application.GatewayClient,
	parentID string,
	summary *RenewalSummary,
) {
	now := time.Now().UTC()

	existing, err := s.repo.FindRenewalByParent(ctx, parentID, now.Add(-s.cfg.Lookback))
	if err != nil {
		if !domain.IsErrorCode(err, domain.ErrCodeRecordNotFound) {
			summary.Errors++
			s.logger.Error("renewal lookup failed", "parent_order_id", parentID, "error", err)
			return
		}
		existing = nil
	}
	if s.cycleAlreadyCovered(existing, now) {
		summary.Skipped++
		return
	}
	if existing != nil && !existing.PaymentStatus.IsTerminal() {
		// The old invoice aged out unpaid. Supersede, never mutate it back
		// to life.
		if err := s.repo.CancelStaleRenewal(ctx, existing.ID); err != nil {
			summary.Errors++
			s.logger.Error("failed to cancel stale renewal", "renewal_id", existing.ID, "error", err)
			return
		}
	}

	locked, err := s.repo.AcquireRenewalLock(ctx, parentID, now, s.cfg.LockLease)
	if err != nil {
		summary.Errors++
		s.logger.Error("renewal lock acquire failed", "parent_order_id", parentID, "error", err)
		return
	}
	if !locked {
		summary.Skipped++
		return
	}

	// Re-check under the lock: a concurrent pass may have invoiced the
	// cycle between the lookup and the acquire.
	latest, err := s.repo.FindRenewalByParent(ctx, parentID, now.Add(-s.cfg.Lookback))
	if err != nil && !domain.IsErrorCode(err, domain.ErrCodeRecordNotFound) {
		summary.Errors++
		s.logger.Error("renewal recheck failed", "parent_order_id", parentID, "error", err)
		s.releaseLock(ctx, parentID)
		return
	}
	if s.cycleAlreadyCovered(latest, now) {
		summary.Skipped++
		s.releaseLock(ctx, parentID)
		return
	}
	if latest == nil {
		latest = existing
	}

	if err := s.createRenewal(ctx, adapter, parentID, latest); err != nil {
		summary.Errors++
		s.logger.Error("renewal creation failed", "parent_order_id", parentID, "error", err)
		s.releaseLock(ctx, parentID)
		return
	}

	s.releaseLock(ctx, parentID)
	summary.Renewed++
}

// cycleAlreadyCovered reports whether rec makes a new invoice redundant:
// the cycle settled through it, or a fresh invoice is still awaiting
// payment. A completed renewal blocks re-invoicing even when the parent's
// billing-date advance has not landed yet.
func (s *RenewalScheduler) cycleAlreadyCovered(rec *domain.PaymentRecord, now time.Time) bool {
	if rec == nil {
		return false
	}
	if rec.PaymentStatus == domain.StatusCompleted {
		return true
	}
	return !rec.PaymentStatus.IsTerminal() && now.Sub(rec.CreatedAt) < s.cfg.InvoiceTTL
}

func (s *RenewalScheduler) releaseLock(ctx context.Context, parentID string) {
	if err := s.repo.ReleaseRenewalLock(ctx, parentID); err != nil {
		s.logger.Error("renewal lock release failed", "parent_order_id", parentID, "error", err)
	}
}

func (s *RenewalScheduler) createRenewal(
	ctx context.Context,
	adapter application.GatewayClient,
	parentID string,
	lastRenewal *domain.PaymentRecord,
) error {
	parent, err := s.repo.FindByID(ctx, parentID)
	if err != nil {
		return err
	}
	if parent == nil {
		return domain.NewRecordNotFoundError(parentID)
	}
	if parent.Subscription == nil {
		return fmt.Errorf("order %s has no subscription", parentID)
	}

	attempt := parent.Subscription.RenewalAttempt + 1
	if lastRenewal != nil && lastRenewal.Subscription != nil {
		attempt = lastRenewal.Subscription.RenewalAttempt + 1
	}

	rec, err := domain.NewPaymentRecord(
		uuid.New().String(),
		parent.UserID,
		parent.CustomerEmail,
		domain.PurposeRenewal,
		parent.OriginalAmount,
		parent.Currency,
		s.fees,
	)
	if err != nil {
		return err
	}
	rec.ProductID = parent.ProductID
	rec.VariantID = parent.VariantID
	rec.Quantity = parent.Quantity
	rec.Subscription = &domain.Subscription{
		IsActive:          true,
		BillingPeriodDays: parent.Subscription.BillingPeriodDays,
		AutoRenew:         parent.Subscription.AutoRenew,
		ParentOrderID:     &parent.ID,
		IsRenewal:         true,
		RenewalAttempt:    attempt,
	}

	// Lock acquisition and invoice creation are separate writes; a crash
	// here leaves the lock set until the lease expires.
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	result, err := adapter.CreatePayment(ctx, application.CreatePaymentRequest{
		OrderRef:      rec.ID,
		Amount:        rec.TotalAmount,
		Currency:      rec.Currency,
		CustomerEmail: rec.CustomerEmail,
		SuccessURL:    s.urls.SuccessURL,
		CancelURL:     s.urls.CancelURL,
		CallbackURL:   fmt.Sprintf("%s/%s", s.urls.CallbackURL, adapter.Name()),
		Metadata: map[string]string{
			"parent_order_id": parent.ID,
			"purpose":         string(domain.PurposeRenewal),
		},
	})
	if err != nil {
		return err
	}

	rec.AttachCharge(adapter.Name(), result.ExternalID, result.CheckoutURL, result.RawStatus, result.ExpiresAt)
	if err := s.repo.Create(ctx, rec); err != nil {
		return domain.NewPersistenceError(err)
	}
	if err := s.repo.LinkRenewal(ctx, parent.ID, rec.ID); err != nil {
		return domain.NewPersistenceError(err)
	}

	s.logger.Info("renewal invoice created",
		"parent_order_id", parent.ID,
		"renewal_id", rec.ID,
		"attempt", attempt,
	)
	return nil
}
