package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// WebhookService ingests gateway notifications. Every delivery is logged
// to the audit table before anything else; verification or lookup
// failures are recorded on the event and acknowledged, never retried by
// erroring back at the gateway. Only a persistence failure propagates.
type WebhookService struct {
	gateways   application.GatewayRegistry
	repo       application.PaymentRepository
	events     application.WebhookEventRepository
	reconciler *Reconciler
	wallet     CompletionHook
	logger     *slog.Logger
}

func NewWebhookService(
	gateways application.GatewayRegistry,
	repo application.PaymentRepository,
	events application.WebhookEventRepository,
	reconciler *Reconciler,
	wallet CompletionHook,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		gateways:   gateways,
		repo:       repo,
		events:     events,
		reconciler: reconciler,
		wallet:     wallet,
		logger:     logger,
	}
}

// notification is the provider-agnostic projection of a callback payload.
type notification struct {
	eventType  string
	orderRef   string
	externalID string
	rawStatus  string

	payCurrency  string
	actuallyPaid decimal.Decimal
	metadata     map[string]string
}

// Process handles one JSON webhook delivery.
func (s *WebhookService) Process(ctx context.Context, provider string, payload []byte, signature, sourceIP string) error {
	note, parseErr := parseNotification(payload)

	eventType := ""
	if parseErr == nil {
		eventType = note.eventType
	}
	event := &domain.WebhookEvent{
		ID:         uuid.New().String(),
		Provider:   provider,
		EventType:  eventType,
		Payload:    payload,
		SourceIP:   sourceIP,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.events.Insert(ctx, event); err != nil {
		return domain.NewPersistenceError(err)
	}

	adapter, err := s.gateways.Get(provider)
	if err != nil {
		s.reject(ctx, event, "unknown or inactive provider")
		return nil
	}

	if !adapter.VerifyCallback(payload, signature, sourceIP) {
		s.logger.Warn("webhook failed authenticity check",
			"provider", provider,
			"source_ip", sourceIP,
			"event_id", event.ID,
		)
		s.reject(ctx, event, domain.NewAuthenticityError(provider).Error())
		return nil
	}

	if parseErr != nil {
		s.reject(ctx, event, "unparseable payload: "+parseErr.Error())
		return nil
	}

	return s.reconcile(ctx, event, provider, note)
}

// ProcessPayGate handles the provider's query-string GET callback. The
// token doubles as the signature for verification.
func (s *WebhookService) ProcessPayGate(ctx context.Context, query url.Values, sourceIP string) error {
	payload := []byte(query.Encode())

	event := &domain.WebhookEvent{
		ID:         uuid.New().String(),
		Provider:   "paygate",
		EventType:  "payment_received",
		Payload:    payload,
		SourceIP:   sourceIP,
		ReceivedAt: time.Now().UTC(),
	}
	if err := s.events.Insert(ctx, event); err != nil {
		return domain.NewPersistenceError(err)
	}

	adapter, err := s.gateways.Get("paygate")
	if err != nil {
		s.reject(ctx, event, "unknown or inactive provider")
		return nil
	}

	if !adapter.VerifyCallback(payload, query.Get("token"), sourceIP) {
		s.logger.Warn("webhook failed authenticity check",
			"provider", "paygate",
			"source_ip", sourceIP,
			"event_id", event.ID,
		)
		s.reject(ctx, event, domain.NewAuthenticityError("paygate").Error())
		return nil
	}

	note := notification{
		orderRef:  query.Get("order"),
		rawStatus: "confirmed",
	}
	if v := query.Get("value_coin"); v != "" {
		if paid, perr := decimal.NewFromString(v); perr == nil {
			note.actuallyPaid = paid
		}
	}
	if c := query.Get("coin"); c != "" {
		note.payCurrency = c
	}

	return s.reconcile(ctx, event, "paygate", note)
}

func (s *WebhookService) reconcile(ctx context.Context, event *domain.WebhookEvent, provider string, note notification) error {
	rec, err := s.findRecord(ctx, provider, note)
	if err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeRecordNotFound) {
			s.logger.Warn("webhook for unknown payment",
				"provider", provider,
				"order_ref", note.orderRef,
				"external_id", note.externalID,
			)
			s.reject(ctx, event, err.Error())
			return nil
		}
		return err
	}

	fields := domain.GatewayFields{
		RawStatus:    note.rawStatus,
		PayCurrency:  note.payCurrency,
		ActuallyPaid: note.actuallyPaid,
		Metadata:     note.metadata,
		FromCallback: true,
	}

	if err := s.reconciler.Apply(ctx, rec, provider, fields, s.depositHook()); err != nil {
		if domain.IsErrorCode(err, domain.ErrCodePersistence) {
			return err
		}
		s.reject(ctx, event, err.Error())
		return nil
	}

	if err := s.events.MarkProcessed(ctx, event.ID, true, ""); err != nil {
		s.logger.Error("failed to mark webhook event processed",
			"event_id", event.ID,
			"error", err,
		)
	}
	return nil
}

// depositHook credits the wallet for deposit payments only.
func (s *WebhookService) depositHook() CompletionHook {
	return func(ctx context.Context, rec *domain.PaymentRecord) error {
		if rec.Purpose != domain.PurposeDeposit {
			return nil
		}
		return s.wallet(ctx, rec)
	}
}

func (s *WebhookService) findRecord(ctx context.Context, provider string, note notification) (*domain.PaymentRecord, error) {
	if note.orderRef != "" {
		rec, err := s.repo.FindByID(ctx, note.orderRef)
		if err == nil {
			return rec, nil
		}
		if !domain.IsErrorCode(err, domain.ErrCodeRecordNotFound) {
			return nil, err
		}
	}
	if note.externalID != "" {
		return s.repo.FindByExternalID(ctx, provider, note.externalID)
	}
	return nil, domain.NewRecordNotFoundError(note.orderRef)
}

func (s *WebhookService) reject(ctx context.Context, event *domain.WebhookEvent, reason string) {
	if err := s.events.MarkProcessed(ctx, event.ID, false, reason); err != nil {
		s.logger.Error("failed to mark webhook event rejected",
			"event_id", event.ID,
			"error", err,
		)
	}
}

// rawNotification covers the field spellings of all supported providers.
// Stripe wraps the session in data.object; HoodPay wraps it in data.
type rawNotification struct {
	Type      string `json:"type"`
	Event     string `json:"event"`
	PaymentID any    `json:"payment_id"`
	ID        any    `json:"id"`
	OrderID   string `json:"order_id"`

	PaymentStatus string `json:"payment_status"`
	Status        string `json:"status"`

	PayCurrency  string          `json:"pay_currency"`
	ActuallyPaid json.RawMessage `json:"actually_paid"`

	ExternalID string            `json:"externalId"`
	Metadata   map[string]string `json:"metadata"`

	Data *struct {
		rawObject
		Object *rawObject `json:"object"`
	} `json:"data"`
}

type rawObject struct {
	ID                any               `json:"id"`
	Status            string            `json:"status"`
	PaymentStatus     string            `json:"payment_status"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
}

func parseNotification(payload []byte) (notification, error) {
	var raw rawNotification
	if err := json.Unmarshal(payload, &raw); err != nil {
		return notification{}, err
	}

	note := notification{
		eventType:   firstNonEmpty(raw.Type, raw.Event),
		orderRef:    firstNonEmpty(raw.OrderID, raw.ExternalID),
		externalID:  firstNonEmpty(anyToString(raw.PaymentID), anyToString(raw.ID)),
		rawStatus:   firstNonEmpty(raw.PaymentStatus, raw.Status),
		payCurrency: raw.PayCurrency,
		metadata:    raw.Metadata,
	}

	if raw.Data != nil {
		obj := &raw.Data.rawObject
		if raw.Data.Object != nil {
			obj = raw.Data.Object
		}
		note.orderRef = firstNonEmpty(note.orderRef, obj.ClientReferenceID, obj.Metadata["order_ref"])
		note.externalID = firstNonEmpty(note.externalID, anyToString(obj.ID))
		note.rawStatus = firstNonEmpty(note.rawStatus, obj.PaymentStatus, obj.Status)
		if note.metadata == nil {
			note.metadata = obj.Metadata
		}
	}
	if note.orderRef == "" && note.metadata != nil {
		note.orderRef = note.metadata["order_ref"]
	}

	if len(raw.ActuallyPaid) > 0 {
		if paid, err := decimal.NewFromString(trimQuotes(string(raw.ActuallyPaid))); err == nil {
			note.actuallyPaid = paid
		}
	}

	return note, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Providers send numeric ids as JSON numbers or strings interchangeably.
func anyToString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return decimal.NewFromFloat(t).String()
	default:
		return ""
	}
}

func trimQuotes(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}
