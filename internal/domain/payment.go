// Package domain holds the payment record entity, its status state machine
// and the normalization of raw gateway statuses onto it.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Purpose classifies what a payment pays for.
type Purpose string

const (
	PurposeOrder   Purpose = "order"
	PurposeDeposit Purpose = "deposit"
	PurposeRenewal Purpose = "renewal"
)

// GatewayCharge is the provider-specific sub-document of a payment record.
// Only the reconciliation engine writes to it after creation.
type GatewayCharge struct {
	Provider         string            `json:"provider"`
	ExternalID       string            `json:"external_id"`
	CheckoutURL      string            `json:"checkout_url,omitempty"`
	RawStatus        string            `json:"status"`
	PayCurrency      string            `json:"pay_currency,omitempty"`
	ActuallyPaid     decimal.Decimal   `json:"actually_paid"`
	CallbackReceived bool              `json:"callback_received"`
	LastStatusUpdate *time.Time        `json:"last_status_update,omitempty"`
	ExpiresAt        *time.Time        `json:"expires_at,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
}

// GatewayFields carries the fields of a single status report from a
// gateway, already validated at the adapter boundary.
type GatewayFields struct {
	RawStatus    string
	PayCurrency  string
	ActuallyPaid decimal.Decimal
	Metadata     map[string]string
	// FromCallback marks reports delivered by the gateway itself. Poll
	// results leave it unset so the record stays eligible for polling.
	FromCallback bool
}

// Credentials is the provisioned IPTV account attached to a completed
// order. Nil until provisioning ran.
type Credentials struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	ServerURL string    `json:"server_url"`
	ExpiresAt time.Time `json:"expires_at"`
}

// DefaultBillingPeriodDays applies when a subscription was stored without
// an explicit billing period.
const DefaultBillingPeriodDays = 30

// Subscription links a payment record into a recurring billing cycle.
// NextBillingDate stays nil until the originating purchase settles.
type Subscription struct {
	IsActive          bool
	NextBillingDate   *time.Time
	BillingPeriodDays int
	AutoRenew         bool
	ParentOrderID     *string
	IsRenewal         bool
	RenewalAttempt    int
	RenewalLock       *time.Time
	RenewalOrderID    *string
}

// PeriodDays returns the billing period, falling back to the default for
// records that predate the period column.
func (s *Subscription) PeriodDays() int {
	if s.BillingPeriodDays <= 0 {
		return DefaultBillingPeriodDays
	}
	return s.BillingPeriodDays
}

// PaymentRecord generalizes orders and wallet deposits. Status fields are
// owned exclusively by the reconciliation engine once the record exists.
type PaymentRecord struct {
	ID            string
	UserID        *string
	CustomerEmail string
	Purpose       Purpose

	OriginalAmount decimal.Decimal
	ServiceFee     decimal.Decimal
	TotalAmount    decimal.Decimal
	Currency       string

	PaymentStatus PaymentStatus
	OrderStatus   OrderStatus
	Gateway       GatewayCharge

	Credited       bool
	CreditedAmount decimal.Decimal
	CreditedAt     *time.Time
	Credentials    *Credentials
	EmailSent      bool

	ProductID string
	VariantID string
	Quantity  int

	Subscription *Subscription

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewPaymentRecord(
	id string,
	userID *string,
	customerEmail string,
	purpose Purpose,
	amount decimal.Decimal,
	currency string,
	fees FeePolicy,
) (*PaymentRecord, error) {
	if id == "" {
		return nil, NewValidationError("payment ID is required")
	}
	if userID == nil && customerEmail == "" {
		return nil, NewValidationError("a user or a guest email is required")
	}
	if !amount.IsPositive() {
		return nil, NewValidationError("amount must be positive")
	}
	if currency == "" {
		return nil, NewValidationError("currency is required")
	}

	fee, total := fees.Apply(amount)
	now := time.Now().UTC()

	return &PaymentRecord{
		ID:             id,
		UserID:         userID,
		CustomerEmail:  customerEmail,
		Purpose:        purpose,
		OriginalAmount: amount,
		ServiceFee:     fee,
		TotalAmount:    total,
		Currency:       currency,
		PaymentStatus:  StatusPending,
		OrderStatus:    OrderStatusPending,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// AttachCharge records the gateway invoice created for this payment.
func (p *PaymentRecord) AttachCharge(provider, externalID, checkoutURL, rawStatus string, expiresAt *time.Time) {
	p.Gateway = GatewayCharge{
		Provider:    provider,
		ExternalID:  externalID,
		CheckoutURL: checkoutURL,
		RawStatus:   rawStatus,
		ExpiresAt:   expiresAt,
	}
}

// MergeGatewayFields refreshes the gateway sub-document from a status
// report without touching the payment status.
func (p *PaymentRecord) MergeGatewayFields(fields GatewayFields, now time.Time) {
	p.Gateway.RawStatus = fields.RawStatus
	if fields.FromCallback {
		p.Gateway.CallbackReceived = true
	}
	p.Gateway.LastStatusUpdate = &now
	if fields.PayCurrency != "" {
		p.Gateway.PayCurrency = fields.PayCurrency
	}
	if fields.ActuallyPaid.IsPositive() {
		p.Gateway.ActuallyPaid = fields.ActuallyPaid
	}
	if len(fields.Metadata) > 0 {
		if p.Gateway.Metadata == nil {
			p.Gateway.Metadata = make(map[string]string, len(fields.Metadata))
		}
		for k, v := range fields.Metadata {
			p.Gateway.Metadata[k] = v
		}
	}
	p.UpdatedAt = now
}

// Transition moves the payment to target after checking the transition
// table, and derives the order status. Callers merge gateway fields
// separately.
func (p *PaymentRecord) Transition(target PaymentStatus) error {
	if !p.PaymentStatus.CanTransitionTo(target) {
		return NewInvalidTransitionError(p.PaymentStatus, target)
	}
	p.PaymentStatus = target
	p.OrderStatus = DeriveOrderStatus(target)
	return nil
}

// MarkProvisioned attaches the IPTV account created for this payment.
func (p *PaymentRecord) MarkProvisioned(creds *Credentials) {
	p.Credentials = creds
}

// IsSubscription reports whether the record participates in recurring
// billing.
func (p *PaymentRecord) IsSubscription() bool {
	return p.Subscription != nil
}

// WebhookEvent is the append-only audit log of inbound notifications.
// It is evidence, not state: processing never mutates a payment through it.
type WebhookEvent struct {
	ID         string
	Provider   string
	EventType  string
	Payload    []byte
	SourceIP   string
	Processed  bool
	Error      string
	ReceivedAt time.Time
}

// Outbox message kinds.
const (
	OutboxKindPaymentConfirmation = "payment_confirmation"
	OutboxKindRenewalNotice       = "renewal_notice"
)

// OutboxMessage is a pending fulfillment email. Messages are drained by
// the outbox worker and retried with backoff until sent or exhausted.
type OutboxMessage struct {
	ID            string
	Kind          string
	PaymentID     string
	Recipient     string
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	SentAt        *time.Time
	CreatedAt     time.Time
}
