package provisioning

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// RetryClient decorates the vendor client with exponential backoff.
// Safe because the vendor dedupes on the Idempotency-Key header.
type RetryClient struct {
	inner      application.ProvisioningClient
	baseDelay  time.Duration
	maxRetries int
}

func NewRetryClient(inner application.ProvisioningClient, cfg config.ProvisioningConfig) application.ProvisioningClient {
	return &RetryClient{
		inner:      inner,
		baseDelay:  time.Duration(cfg.BaseDelay) * time.Second,
		maxRetries: int(cfg.MaxRetries),
	}
}

func (r *RetryClient) CreateAccount(ctx context.Context, req application.ProvisioningRequest) (*domain.Credentials, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*domain.Credentials, error) {
			return r.inner.CreateAccount(ctx, req)
		},
	)
}

func (r *RetryClient) ExtendAccount(ctx context.Context, req application.ProvisioningRequest) (*domain.Credentials, error) {
	return retry(
		r,
		ctx,
		func(ctx context.Context) (*domain.Credentials, error) {
			return r.inner.ExtendAccount(ctx, req)
		},
	)
}

func retry[T any](r *RetryClient, ctx context.Context, operation func(ctx context.Context) (*T, error)) (*T, error) {
	var lastErr error

	for attempt := 0; attempt < r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		resp, err := operation(ctx)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		if !isRetryable(err) {
			return nil, err
		}

		if attempt < r.maxRetries-1 {
			time.Sleep(r.backoff(attempt))
		}
	}

	return nil, fmt.Errorf("maximum retries exceeded: %w", lastErr)
}

func isRetryable(err error) bool {
	var vendorErr *VendorError
	if errors.As(err, &vendorErr) {
		return vendorErr.StatusCode >= 500
	}

	if errors.Is(err, context.Canceled) {
		return false
	}

	return true
}

// Backoff calculation with exponential delay and jitter.
func (r *RetryClient) backoff(attempt int) time.Duration {
	base := r.baseDelay * time.Duration(1<<attempt)

	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond

	return base + jitter
}
