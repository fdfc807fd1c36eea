package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
	"github.com/streamvault/billing-gateway/internal/domain"
)

const stripeName = "stripe"

// oneHundred converts major currency units into the minor units Stripe
// amounts are denominated in.
var oneHundred = decimal.NewFromInt(100)

// stripeSignatureTolerance bounds the age of a signed webhook before it is
// rejected as a replay.
const stripeSignatureTolerance = 5 * time.Minute

// Stripe hosts card checkout sessions. Webhooks are signed with a
// timestamped HMAC-SHA256 in the Stripe-Signature header.
type Stripe struct {
	cfg        config.StripeConfig
	httpClient *http.Client
	now        func() time.Time
}

func NewStripe(cfg config.StripeConfig) *Stripe {
	return &Stripe{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		now: time.Now,
	}
}

func (g *Stripe) Name() string { return stripeName }

type stripeSessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentStatus string `json:"payment_status"`
	ExpiresAt     int64  `json:"expires_at"`
}

// CreatePayment opens a checkout session. The Stripe API is
// form-encoded, so this adapter does not share the JSON helper's request
// path.
func (g *Stripe) CreatePayment(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("client_reference_id", req.OrderRef)
	form.Set("customer_email", req.CustomerEmail)
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(req.Currency))
	form.Set("line_items[0][price_data][product_data][name]", req.Metadata["product_id"])
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(req.Amount.Mul(oneHundred).IntPart(), 10))
	form.Set("metadata[order_ref]", req.OrderRef)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.cfg.BaseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Authorization", "Bearer "+g.cfg.SecretKey)

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, domain.NewGatewayRequestError(stripeName, &GatewayError{
			Provider: stripeName,
			Code:     "transport",
			Message:  err.Error(),
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		gwErr := &GatewayError{
			Provider:   stripeName,
			Code:       http.StatusText(resp.StatusCode),
			Message:    string(body),
			StatusCode: resp.StatusCode,
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, domain.NewValidationError(gwErr.Error())
		}
		return nil, domain.NewGatewayRequestError(stripeName, gwErr)
	}

	var session stripeSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	var expiresAt *time.Time
	if session.ExpiresAt > 0 {
		t := time.Unix(session.ExpiresAt, 0).UTC()
		expiresAt = &t
	}

	return &application.CreatePaymentResult{
		ExternalID:  session.ID,
		CheckoutURL: session.URL,
		RawStatus:   session.PaymentStatus,
		ExpiresAt:   expiresAt,
	}, nil
}

func (g *Stripe) GetStatus(ctx context.Context, externalID string) (string, error) {
	resp, err := sendJSON[struct{}, stripeSessionResponse](
		ctx, g.httpClient, stripeName,
		http.MethodGet, fmt.Sprintf("%s/v1/checkout/sessions/%s", g.cfg.BaseURL, externalID),
		map[string]string{"Authorization": "Bearer " + g.cfg.SecretKey},
		nil,
	)
	if err != nil {
		return "", err
	}
	return resp.PaymentStatus, nil
}

// VerifyCallback validates the Stripe-Signature header: a unix timestamp
// and an HMAC-SHA256 of "timestamp.payload", rejected beyond the replay
// tolerance.
func (g *Stripe) VerifyCallback(payload []byte, signature string, _ string) bool {
	if g.cfg.WebhookSecret == "" || signature == "" {
		return false
	}

	var ts string
	var sigs []string
	for _, part := range strings.Split(signature, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts = v
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == "" || len(sigs) == 0 {
		return false
	}

	epoch, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	if g.now().Sub(time.Unix(epoch, 0)) > stripeSignatureTolerance {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	for _, sig := range sigs {
		if hmac.Equal([]byte(expected), []byte(sig)) {
			return true
		}
	}
	return false
}
