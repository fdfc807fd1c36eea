package provisioning

import (
	"fmt"
	"time"

	"github.com/streamvault/billing-gateway/internal/domain"
)

type VendorErrorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

// VendorError is a structured failure from the IPTV vendor API.
type VendorError struct {
	Code       string
	Message    string
	StatusCode int
}

func (e *VendorError) Error() string {
	return fmt.Sprintf("vendor error [%s]: %s (HTTP %d)", e.Code, e.Message, e.StatusCode)
}

func toCredentials(account accountResponse) (*domain.Credentials, error) {
	expiresAt, err := time.Parse(time.RFC3339, account.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("parse account expiry: %w", err)
	}

	return &domain.Credentials{
		Username:  account.Username,
		Password:  account.Password,
		ServerURL: account.ServerURL,
		ExpiresAt: expiresAt,
	}, nil
}
