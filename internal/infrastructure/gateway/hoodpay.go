package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"time"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
)

const hoodPayName = "hoodpay"

// HoodPay hosts payments scoped to a business account. Webhooks carry an
// HMAC-SHA256 signature of the raw payload.
type HoodPay struct {
	cfg        config.HoodPayConfig
	httpClient *http.Client
}

func NewHoodPay(cfg config.HoodPayConfig) *HoodPay {
	return &HoodPay{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *HoodPay) Name() string { return hoodPayName }

type hoodPayCreateRequest struct {
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Name          string            `json:"name,omitempty"`
	CustomerEmail string            `json:"customerEmail,omitempty"`
	RedirectURL   string            `json:"redirectUrl"`
	NotifyURL     string            `json:"notifyUrl"`
	Metadata      map[string]string `json:"metadata,omitempty"`
}

type hoodPayCreateResponse struct {
	Data struct {
		ID     string `json:"id"`
		URL    string `json:"url"`
		Status string `json:"status"`
	} `json:"data"`
}

func (g *HoodPay) CreatePayment(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error) {
	body := hoodPayCreateRequest{
		Amount:        req.Amount.String(),
		Currency:      req.Currency,
		Name:          req.Metadata["product_id"],
		CustomerEmail: req.CustomerEmail,
		RedirectURL:   req.SuccessURL,
		NotifyURL:     req.CallbackURL,
		Metadata:      map[string]string{"order_ref": req.OrderRef},
	}

	resp, err := sendJSON[hoodPayCreateRequest, hoodPayCreateResponse](
		ctx, g.httpClient, hoodPayName,
		http.MethodPost, fmt.Sprintf("%s/v1/businesses/%s/payments", g.cfg.BaseURL, g.cfg.BusinessID),
		map[string]string{"Authorization": "Bearer " + g.cfg.APIKey},
		&body,
	)
	if err != nil {
		return nil, err
	}

	// HoodPay checkout links expire after an hour of inactivity.
	expires := time.Now().UTC().Add(time.Hour)
	return &application.CreatePaymentResult{
		ExternalID:  resp.Data.ID,
		CheckoutURL: resp.Data.URL,
		RawStatus:   resp.Data.Status,
		ExpiresAt:   &expires,
	}, nil
}

type hoodPayStatusResponse struct {
	Data struct {
		Status string `json:"status"`
	} `json:"data"`
}

func (g *HoodPay) GetStatus(ctx context.Context, externalID string) (string, error) {
	resp, err := sendJSON[struct{}, hoodPayStatusResponse](
		ctx, g.httpClient, hoodPayName,
		http.MethodGet, fmt.Sprintf("%s/v1/businesses/%s/payments/%s", g.cfg.BaseURL, g.cfg.BusinessID, externalID),
		map[string]string{"Authorization": "Bearer " + g.cfg.APIKey},
		nil,
	)
	if err != nil {
		return "", err
	}
	return resp.Data.Status, nil
}

func (g *HoodPay) VerifyCallback(payload []byte, signature string, _ string) bool {
	if g.cfg.WebhookSecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.WebhookSecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
