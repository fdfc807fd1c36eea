package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// CreatePaymentCommand is the storefront's request to open a checkout.
type CreatePaymentCommand struct {
	Provider      string
	Amount        decimal.Decimal
	Currency      string
	UserID        *string
	CustomerEmail string
	ProductID     string
	VariantID     string
	Quantity      int
	Purpose       domain.Purpose
	Subscription  *SubscriptionCommand
}

// SubscriptionCommand opts the purchase into recurring billing. The cycle
// starts when the payment settles, not at checkout.
type SubscriptionCommand struct {
	BillingPeriodDays int
	AutoRenew         bool
}

// CheckoutResult is returned to the storefront for redirecting the buyer.
type CheckoutResult struct {
	PaymentID   string
	CheckoutURL string
	FeeInfo     FeeInfo
}

type FeeInfo struct {
	OriginalAmount decimal.Decimal
	ServiceFee     decimal.Decimal
	TotalAmount    decimal.Decimal
}

// CallbackURLs are the storefront redirect and IPN targets handed to the
// gateway when creating an invoice.
type CallbackURLs struct {
	SuccessURL  string
	CancelURL   string
	CallbackURL string
}

// CheckoutService creates gateway invoices and inserts the pending
// payment record that the webhook pipeline later reconciles.
type CheckoutService struct {
	gateways application.GatewayRegistry
	repo     application.PaymentRepository
	fees     domain.FeePolicy
	urls     CallbackURLs
	logger   *slog.Logger
}

func NewCheckoutService(
	gateways application.GatewayRegistry,
	repo application.PaymentRepository,
	fees domain.FeePolicy,
	urls CallbackURLs,
	logger *slog.Logger,
) *CheckoutService {
	return &CheckoutService{
		gateways: gateways,
		repo:     repo,
		fees:     fees,
		urls:     urls,
		logger:   logger,
	}
}

// CreatePayment computes the fee, opens the invoice at the provider and
// persists the pending record with the gateway sub-document attached.
func (s *CheckoutService) CreatePayment(ctx context.Context, cmd CreatePaymentCommand) (*CheckoutResult, error) {
	adapter, err := s.gateways.Get(cmd.Provider)
	if err != nil {
		return nil, err
	}

	purpose := cmd.Purpose
	if purpose == "" {
		purpose = domain.PurposeOrder
	}

	rec, err := domain.NewPaymentRecord(
		uuid.New().String(),
		cmd.UserID,
		cmd.CustomerEmail,
		purpose,
		cmd.Amount,
		cmd.Currency,
		s.fees,
	)
	if err != nil {
		return nil, err
	}
	rec.ProductID = cmd.ProductID
	rec.VariantID = cmd.VariantID
	rec.Quantity = cmd.Quantity

	if cmd.Subscription != nil {
		if cmd.Subscription.BillingPeriodDays <= 0 {
			return nil, domain.NewValidationError("billing period must be positive")
		}
		rec.Subscription = &domain.Subscription{
			BillingPeriodDays: cmd.Subscription.BillingPeriodDays,
			AutoRenew:         cmd.Subscription.AutoRenew,
		}
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
			"product_id": cmd.ProductID,
			"purpose":    string(purpose),
		},
	})
	if err != nil {
		return nil, err
	}

	rec.AttachCharge(adapter.Name(), result.ExternalID, result.CheckoutURL, result.RawStatus, result.ExpiresAt)

	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, domain.NewPersistenceError(err)
	}

	s.logger.Info("payment created",
		"payment_id", rec.ID,
		"gateway", adapter.Name(),
		"total", rec.TotalAmount.String(),
		"currency", rec.Currency,
	)

	return &CheckoutResult{
		PaymentID:   rec.ID,
		CheckoutURL: result.CheckoutURL,
		FeeInfo: FeeInfo{
			OriginalAmount: rec.OriginalAmount,
			ServiceFee:     rec.ServiceFee,
			TotalAmount:    rec.TotalAmount,
		},
	}, nil
}
