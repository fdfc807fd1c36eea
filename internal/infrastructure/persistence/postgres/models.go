package postgres

import "time"

// PaymentModel mirrors the payments table. Money columns are NUMERIC and
// travel as strings; the gateway charge and credentials are JSONB blobs.
type PaymentModel struct {
	ID            string
	UserID        *string
	CustomerEmail string
	Purpose       string

	OriginalAmount string
	ServiceFee     string
	TotalAmount    string
	Currency       string

	PaymentStatus string
	OrderStatus   string
	Gateway       []byte

	Credited       bool
	CreditedAmount string
	CreditedAt     *time.Time
	Credentials    []byte
	EmailSent      bool

	ProductID string
	VariantID string
	Quantity  int

	IsSubscription       bool
	SubIsActive          bool
	SubNextBillingDate   *time.Time
	SubBillingPeriodDays int
	SubAutoRenew         bool
	SubParentOrderID     *string
	SubIsRenewal         bool
	SubRenewalAttempt    int
	SubRenewalLock       *time.Time
	SubRenewalOrderID    *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// WebhookEventModel mirrors the webhook_events audit table.
type WebhookEventModel struct {
	ID         string
	Provider   string
	EventType  string
	Payload    []byte
	SourceIP   string
	Processed  bool
	Error      string
	ReceivedAt time.Time
}

// OutboxModel mirrors the outbox_messages table.
type OutboxModel struct {
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
