package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/streamvault/billing-gateway/internal/domain"
)

// sendJSON performs one JSON exchange with a provider. Responses outside
// 2xx become GatewayError; transport failures are wrapped the same way so
// callers see a single retryable error type. No retries happen here.
func sendJSON[Req any, Resp any](
	ctx context.Context,
	client *http.Client,
	provider, method, url string,
	headers map[string]string,
	reqBody *Req,
) (*Resp, error) {
	var bodyReader io.Reader
	if reqBody != nil {
		jsonData, err := json.Marshal(reqBody)
		if err != nil {
			return nil, fmt.Errorf("error marshalling json: %w", err)
		}
		bodyReader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	if reqBody != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, domain.NewGatewayRequestError(provider, &GatewayError{
			Provider: provider,
			Code:     "transport",
			Message:  err.Error(),
		})
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		gwErr := &GatewayError{
			Provider:   provider,
			Code:       http.StatusText(resp.StatusCode),
			Message:    string(body),
			StatusCode: resp.StatusCode,
		}
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return nil, domain.NewValidationError(gwErr.Error())
		}
		return nil, domain.NewGatewayRequestError(provider, gwErr)
	}

	var parsed Resp
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("error decoding json response: %w", err)
	}

	return &parsed, nil
}
