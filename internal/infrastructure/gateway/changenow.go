package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
)

const changeNOWName = "changenow"

// ChangeNOW creates fiat-to-crypto exchange transactions. Callbacks carry
// an HMAC-SHA256 signature over the raw payload.
type ChangeNOW struct {
	cfg        config.ChangeNOWConfig
	httpClient *http.Client
}

func NewChangeNOW(cfg config.ChangeNOWConfig) *ChangeNOW {
	return &ChangeNOW{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *ChangeNOW) Name() string { return changeNOWName }

type changeNowCreateRequest struct {
	FromAmount   string `json:"fromAmount"`
	FromCurrency string `json:"fromCurrency"`
	ToCurrency   string `json:"toCurrency"`
	ExternalID   string `json:"externalId"`
	UserEmail    string `json:"userEmail,omitempty"`
	CallbackURL  string `json:"callbackUrl"`
	RedirectURL  string `json:"redirectUrl"`
}

type changeNowCreateResponse struct {
	ID          string `json:"id"`
	RedirectURL string `json:"redirectUrl"`
	Status      string `json:"status"`
}

func (g *ChangeNOW) CreatePayment(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error) {
	body := changeNowCreateRequest{
		FromAmount:   req.Amount.String(),
		FromCurrency: req.Currency,
		ToCurrency:   "btc",
		ExternalID:   req.OrderRef,
		UserEmail:    req.CustomerEmail,
		CallbackURL:  req.CallbackURL,
		RedirectURL:  req.SuccessURL,
	}

	resp, err := sendJSON[changeNowCreateRequest, changeNowCreateResponse](
		ctx, g.httpClient, changeNOWName,
		http.MethodPost, g.cfg.BaseURL+"/v2/fiat-transaction",
		map[string]string{"x-changenow-api-key": g.cfg.APIKey},
		&body,
	)
	if err != nil {
		return nil, err
	}

	return &application.CreatePaymentResult{
		ExternalID:  resp.ID,
		CheckoutURL: resp.RedirectURL,
		RawStatus:   resp.Status,
	}, nil
}

type changeNowStatusResponse struct {
	Status string `json:"status"`
}

func (g *ChangeNOW) GetStatus(ctx context.Context, externalID string) (string, error) {
	resp, err := sendJSON[struct{}, changeNowStatusResponse](
		ctx, g.httpClient, changeNOWName,
		http.MethodGet, fmt.Sprintf("%s/v2/fiat-status?id=%s", g.cfg.BaseURL, externalID),
		map[string]string{"x-changenow-api-key": g.cfg.APIKey},
		nil,
	)
	if err != nil {
		return "", err
	}
	return resp.Status, nil
}

func (g *ChangeNOW) VerifyCallback(payload []byte, signature string, _ string) bool {
	if g.cfg.APISecret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.cfg.APISecret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}
