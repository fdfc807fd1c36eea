package gateway

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net/http"
	"net/url"
	"slices"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
	"github.com/streamvault/billing-gateway/internal/domain"
)

const payGateName = "paygate"

// PayGate forwards crypto payments to a wallet address and confirms them
// with an unsigned GET callback. Authenticity rests on a shared token in
// the callback URL plus an optional source IP allowlist.
type PayGate struct {
	cfg        config.PayGateConfig
	httpClient *http.Client
}

func NewPayGate(cfg config.PayGateConfig) *PayGate {
	return &PayGate{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *PayGate) Name() string { return payGateName }

type payGateWalletResponse struct {
	AddressIn  string `json:"address_in"`
	PolygonIn  string `json:"polygon_address_in"`
	CallbackOK string `json:"callback_url"`
}

func (g *PayGate) CreatePayment(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error) {
	callback := fmt.Sprintf("%s?order=%s&token=%s", req.CallbackURL, url.QueryEscape(req.OrderRef), url.QueryEscape(g.cfg.CallbackToken))

	endpoint := fmt.Sprintf("%s/control/wallet.php?address=%s&callback=%s",
		g.cfg.BaseURL,
		url.QueryEscape(g.cfg.WalletAddress),
		url.QueryEscape(callback),
	)

	resp, err := sendJSON[struct{}, payGateWalletResponse](
		ctx, g.httpClient, payGateName,
		http.MethodGet, endpoint,
		nil,
		nil,
	)
	if err != nil {
		return nil, err
	}

	checkout := fmt.Sprintf("%s/process-payment.php?address=%s&amount=%s&provider=wert&email=%s&currency=%s",
		g.cfg.BaseURL,
		url.QueryEscape(resp.AddressIn),
		url.QueryEscape(req.Amount.String()),
		url.QueryEscape(req.CustomerEmail),
		url.QueryEscape(req.Currency),
	)

	return &application.CreatePaymentResult{
		ExternalID:  resp.AddressIn,
		CheckoutURL: checkout,
		RawStatus:   "waiting",
	}, nil
}

// GetStatus is not offered by the provider; confirmation arrives only via
// the GET callback. Polling callers get a permanent error.
func (g *PayGate) GetStatus(_ context.Context, externalID string) (string, error) {
	return "", domain.NewGatewayRequestError(payGateName, &GatewayError{
		Provider:   payGateName,
		Code:       "unsupported",
		Message:    fmt.Sprintf("no status endpoint for address %s", externalID),
		StatusCode: http.StatusNotImplemented,
	})
}

// VerifyCallback checks the shared token and, when configured, the
// source IP against the allowlist. The payload itself is unsigned.
func (g *PayGate) VerifyCallback(_ []byte, token string, sourceIP string) bool {
	if g.cfg.CallbackToken == "" {
		return false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(g.cfg.CallbackToken)) != 1 {
		return false
	}
	if len(g.cfg.AllowedIPs) > 0 && !slices.Contains(g.cfg.AllowedIPs, sourceIP) {
		return false
	}
	return true
}
