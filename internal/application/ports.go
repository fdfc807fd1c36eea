// Package application defines the ports between the reconciliation core
// and its collaborators: gateways, persistence, provisioning and mail.
package application

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/domain"
)

// CreatePaymentRequest is the normalized invoice-creation request every
// gateway adapter accepts.
type CreatePaymentRequest struct {
	OrderRef      string
	Amount        decimal.Decimal
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	CallbackURL   string
	Metadata      map[string]string
}

// CreatePaymentResult is the normalized result of invoice creation.
type CreatePaymentResult struct {
	ExternalID  string
	CheckoutURL string
	RawStatus   string
	ExpiresAt   *time.Time
}

// GatewayClient is the per-provider adapter contract. Adapters translate
// provider payloads into the normalized shapes above; they never touch
// payment status themselves.
type GatewayClient interface {
	Name() string

	// CreatePayment opens a checkout session/invoice at the provider.
	// Transport and 5xx failures surface as retryable gateway errors;
	// the adapter does not retry internally.
	CreatePayment(ctx context.Context, req CreatePaymentRequest) (*CreatePaymentResult, error)

	// GetStatus polls the provider for the raw status of an invoice.
	GetStatus(ctx context.Context, externalID string) (string, error)

	// VerifyCallback checks the authenticity of an inbound notification.
	// The mechanism is provider-specific (HMAC, shared token, source IP).
	VerifyCallback(payload []byte, signature string, sourceIP string) bool
}

// GatewayRegistry resolves a configured, active gateway adapter by name.
type GatewayRegistry interface {
	// Get returns ConfigError for unknown or inactive providers.
	Get(name string) (GatewayClient, error)
	Names() []string
}

// DueSubscription is the slim projection the renewal scheduler pages over.
type DueSubscription struct {
	ID              string
	NextBillingDate time.Time
}

// PaymentRepository is the port for payment record persistence.
type PaymentRepository interface {
	Create(ctx context.Context, rec *domain.PaymentRecord) error
	FindByID(ctx context.Context, id string) (*domain.PaymentRecord, error)
	FindByExternalID(ctx context.Context, provider, externalID string) (*domain.PaymentRecord, error)

	// UpdateReconciled persists status, order status and the gateway
	// sub-document in a single write.
	UpdateReconciled(ctx context.Context, rec *domain.PaymentRecord) error

	SaveCredentials(ctx context.Context, id string, creds *domain.Credentials) error
	MarkEmailSent(ctx context.Context, id string) error

	// CreditWallet atomically flips the credited flag and increments the
	// owner's balance in one transaction. Returns false when the record
	// was already credited.
	CreditWallet(ctx context.Context, id string, amount decimal.Decimal) (bool, error)

	// FindDueSubscriptions pages through active auto-renew subscriptions
	// whose next billing date falls before the deadline. Keyset paging on
	// the record id keeps memory bounded.
	FindDueSubscriptions(ctx context.Context, deadline time.Time, afterID string, limit int) ([]DueSubscription, error)

	// FindRenewalByParent returns the newest renewal record created for
	// the parent within the lookback window, terminal or not.
	FindRenewalByParent(ctx context.Context, parentID string, since time.Time) (*domain.PaymentRecord, error)

	// CancelStaleRenewal marks an aged-out, still-pending renewal
	// cancelled so a fresh invoice can supersede it.
	CancelStaleRenewal(ctx context.Context, id string) error

	// AcquireRenewalLock performs the compare-and-set on the renewal lock
	// field. A lock older than the lease counts as absent. Returns false
	// when another process holds the lock.
	AcquireRenewalLock(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error)
	ReleaseRenewalLock(ctx context.Context, id string) error

	// LinkRenewal records the pending renewal on the original record.
	LinkRenewal(ctx context.Context, parentID, renewalID string) error

	// ActivateSubscription starts the billing cycle when the originating
	// subscription purchase settles. Only the first completion sets the
	// next billing date; redeliveries are no-ops.
	ActivateSubscription(ctx context.Context, id string, next time.Time) error

	// AdvanceBillingCycle moves the parent to its next billing date after
	// the linked renewal settles and clears the renewal back-reference.
	// The write is conditional on the back-reference still naming
	// renewalID, so a redelivered completion advances the cycle once.
	AdvanceBillingCycle(ctx context.Context, parentID, renewalID string, next time.Time) (bool, error)

	// FindAwaitingCallback returns non-terminal records without a
	// received callback, created before the cutoff, for poll fallback.
	FindAwaitingCallback(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentRecord, error)
}

// WebhookEventRepository is the append-only audit log port.
type WebhookEventRepository interface {
	Insert(ctx context.Context, event *domain.WebhookEvent) error
	MarkProcessed(ctx context.Context, id string, processed bool, procErr string) error
}

// OutboxRepository stores fulfillment emails until the outbox worker
// delivers them.
type OutboxRepository interface {
	Enqueue(ctx context.Context, msg *domain.OutboxMessage) error

	// FindDue returns unsent messages whose next attempt is due and whose
	// attempt count is below maxAttempts. Exhausted messages stay parked
	// for manual inspection.
	FindDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.OutboxMessage, error)
	MarkSent(ctx context.Context, id string, at time.Time) error
	ScheduleRetry(ctx context.Context, id string, attempts int, next time.Time) error
}

// ProvisioningRequest describes the IPTV account to create or extend.
type ProvisioningRequest struct {
	PaymentID     string
	CustomerEmail string
	ProductID     string
	VariantID     string
	Quantity      int
	IsRenewal     bool
	// Existing username, set on renewals.
	Username string
}

// ProvisioningClient is the opaque IPTV vendor API.
type ProvisioningClient interface {
	CreateAccount(ctx context.Context, req ProvisioningRequest) (*domain.Credentials, error)
	ExtendAccount(ctx context.Context, req ProvisioningRequest) (*domain.Credentials, error)
}

// Mailer delivers a rendered notification. Template rendering lives with
// the storefront; the payload here is the template context.
type Mailer interface {
	Send(ctx context.Context, recipient, kind string, payload []byte) error
}
