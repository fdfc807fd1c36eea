// Package gateway implements the provider adapters: NOWPayments,
// ChangeNOW, PayGate, Stripe and HoodPay. Each adapter translates its
// provider's API into the normalized contract of the application ports
// and verifies the authenticity of inbound callbacks.
package gateway

import (
	"errors"
	"fmt"
)

// GatewayError is a failed HTTP exchange with a provider.
type GatewayError struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("%s error [%s]: %s (status: %d)", e.Provider, e.Code, e.Message, e.StatusCode)
}

// IsRetryable reports whether the caller may retry with backoff.
// Provider 4xx responses are permanent; 5xx and transport failures are not.
func (e *GatewayError) IsRetryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= 500
}

func IsGatewayError(err error) (*GatewayError, bool) {
	var gwErr *GatewayError
	ok := errors.As(err, &gwErr)
	return gwErr, ok
}
