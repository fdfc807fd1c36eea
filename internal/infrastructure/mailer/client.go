// Package mailer delivers outbox notifications through the storefront's
// transactional mail service.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
)

type HTTPMailer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewMailer(cfg config.MailerConfig) application.Mailer {
	return &HTTPMailer{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

type sendRequest struct {
	Recipient string          `json:"recipient"`
	Template  string          `json:"template"`
	Context   json.RawMessage `json:"context"`
}

// Send posts one notification. The mail service renders the template;
// the payload is the template context assembled at enqueue time.
func (m *HTTPMailer) Send(ctx context.Context, recipient, kind string, payload []byte) error {
	body := sendRequest{
		Recipient: recipient,
		Template:  kind,
		Context:   payload,
	}

	jsonData, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("error marshalling json: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/messages", m.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("error creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-API-Key", m.apiKey)

	resp, err := m.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail service returned status %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
