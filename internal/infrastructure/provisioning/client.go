// Package provisioning talks to the IPTV vendor API that creates and
// extends subscriber accounts.
package provisioning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
	"github.com/streamvault/billing-gateway/internal/domain"
)

type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(cfg config.ProvisioningConfig) application.ProvisioningClient {
	return &HTTPClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type accountRequest struct {
	Email     string `json:"email"`
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Quantity  int    `json:"quantity"`
	Username  string `json:"username,omitempty"`
}

type accountResponse struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	ServerURL string `json:"server_url"`
	ExpiresAt string `json:"expires_at"`
}

func (c *HTTPClient) CreateAccount(ctx context.Context, req application.ProvisioningRequest) (*domain.Credentials, error) {
	url := fmt.Sprintf("%s/api/v1/accounts", c.baseURL)
	return c.sendRequest(ctx, url, req)
}

func (c *HTTPClient) ExtendAccount(ctx context.Context, req application.ProvisioningRequest) (*domain.Credentials, error) {
	url := fmt.Sprintf("%s/api/v1/accounts/%s/extend", c.baseURL, req.Username)
	return c.sendRequest(ctx, url, req)
}

func (c *HTTPClient) sendRequest(ctx context.Context, url string, req application.ProvisioningRequest) (*domain.Credentials, error) {
	body := accountRequest{
		Email:     req.CustomerEmail,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  req.Quantity,
		Username:  req.Username,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("error marshalling json: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", c.apiKey)
	// The vendor dedupes on this key, so a retried provision call cannot
	// create a second account.
	httpReq.Header.Set("Idempotency-Key", req.PaymentID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		respBody, _ := io.ReadAll(resp.Body)
		var vendorErr VendorErrorResponse
		if err := json.Unmarshal(respBody, &vendorErr); err != nil {
			return nil, fmt.Errorf("vendor returned status %d: %s", resp.StatusCode, string(respBody))
		}
		return nil, &VendorError{
			Code:       vendorErr.Err,
			Message:    vendorErr.Message,
			StatusCode: resp.StatusCode,
		}
	}

	var account accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&account); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return toCredentials(account)
}
