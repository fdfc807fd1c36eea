package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
)

const nowPaymentsName = "nowpayments"

// NOWPayments hosts crypto invoices. IPN callbacks are authenticated with
// an HMAC-SHA512 signature over the key-sorted JSON payload.
type NOWPayments struct {
	cfg        config.NOWPaymentsConfig
	httpClient *http.Client
}

func NewNOWPayments(cfg config.NOWPaymentsConfig) *NOWPayments {
	return &NOWPayments{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *NOWPayments) Name() string { return nowPaymentsName }

type nowInvoiceRequest struct {
	PriceAmount      string `json:"price_amount"`
	PriceCurrency    string `json:"price_currency"`
	OrderID          string `json:"order_id"`
	OrderDescription string `json:"order_description,omitempty"`
	IPNCallbackURL   string `json:"ipn_callback_url"`
	SuccessURL       string `json:"success_url"`
	CancelURL        string `json:"cancel_url"`
}

type nowInvoiceResponse struct {
	ID         string `json:"id"`
	InvoiceURL string `json:"invoice_url"`
	CreatedAt  string `json:"created_at"`
}

func (g *NOWPayments) CreatePayment(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error) {
	body := nowInvoiceRequest{
		PriceAmount:      req.Amount.String(),
		PriceCurrency:    req.Currency,
		OrderID:          req.OrderRef,
		OrderDescription: req.Metadata["product_id"],
		IPNCallbackURL:   req.CallbackURL,
		SuccessURL:       req.SuccessURL,
		CancelURL:        req.CancelURL,
	}

	resp, err := sendJSON[nowInvoiceRequest, nowInvoiceResponse](
		ctx, g.httpClient, nowPaymentsName,
		http.MethodPost, g.cfg.BaseURL+"/v1/invoice",
		map[string]string{"x-api-key": g.cfg.APIKey},
		&body,
	)
	if err != nil {
		return nil, err
	}

	// Hosted invoices stay payable for 24h on the provider side.
	expires := time.Now().UTC().Add(24 * time.Hour)
	return &application.CreatePaymentResult{
		ExternalID:  resp.ID,
		CheckoutURL: resp.InvoiceURL,
		RawStatus:   "waiting",
		ExpiresAt:   &expires,
	}, nil
}

type nowPaymentStatusResponse struct {
	PaymentStatus string `json:"payment_status"`
}

func (g *NOWPayments) GetStatus(ctx context.Context, externalID string) (string, error) {
	resp, err := sendJSON[struct{}, nowPaymentStatusResponse](
		ctx, g.httpClient, nowPaymentsName,
		http.MethodGet, fmt.Sprintf("%s/v1/payment/%s", g.cfg.BaseURL, externalID),
		map[string]string{"x-api-key": g.cfg.APIKey},
		nil,
	)
	if err != nil {
		return "", err
	}
	return resp.PaymentStatus, nil
}

// VerifyCallback recomputes the IPN signature. The provider signs the
// payload with keys sorted, so the raw bytes are canonicalized through a
// decode/encode round trip before hashing.
func (g *NOWPayments) VerifyCallback(payload []byte, signature string, _ string) bool {
	if g.cfg.IPNSecret == "" || signature == "" {
		return false
	}

	canonical, err := canonicalizeJSON(payload)
	if err != nil {
		return false
	}

	mac := hmac.New(sha512.New, []byte(g.cfg.IPNSecret))
	mac.Write(canonical)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

// canonicalizeJSON re-encodes a JSON object with sorted keys, matching the
// provider's signing input.
func canonicalizeJSON(payload []byte) ([]byte, error) {
	var parsed map[string]any
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return nil, err
	}
	return json.Marshal(parsed)
}
