package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/streamvault/billing-gateway/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw  string
		want domain.PaymentStatus
	}{
		{"paid", domain.StatusCompleted},
		{"completed", domain.StatusCompleted},
		{"confirmed", domain.StatusCompleted},
		{"success", domain.StatusCompleted},
		{"finished", domain.StatusCompleted},
		{"succeeded", domain.StatusCompleted},
		{"done", domain.StatusCompleted},
		{"failed", domain.StatusFailed},
		{"cancelled", domain.StatusFailed},
		{"canceled", domain.StatusFailed},
		{"expired", domain.StatusFailed},
		{"error", domain.StatusFailed},
		{"declined", domain.StatusFailed},
		{"rejected", domain.StatusFailed},
		{"pending", domain.StatusPending},
		{"waiting", domain.StatusPending},
		{"new", domain.StatusPending},
		{"unpaid", domain.StatusPending},
		{"in_progress", domain.StatusPending},
		// Case and whitespace are tolerated.
		{"  PAID  ", domain.StatusCompleted},
		{"Finished", domain.StatusCompleted},
		// Unknown tokens must never settle or fail a payment.
		{"partially_paid", domain.StatusPending},
		{"refunded", domain.StatusPending},
		{"", domain.StatusPending},
		{"garbage", domain.StatusPending},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, domain.Normalize(tt.raw))
		})
	}
}

func TestCanTransitionTo(t *testing.T) {
	tests := []struct {
		from    domain.PaymentStatus
		to      domain.PaymentStatus
		allowed bool
	}{
		{domain.StatusPending, domain.StatusProcessing, true},
		{domain.StatusPending, domain.StatusCompleted, true},
		{domain.StatusPending, domain.StatusFailed, true},
		{domain.StatusPending, domain.StatusCancelled, true},
		{domain.StatusProcessing, domain.StatusCompleted, true},
		{domain.StatusProcessing, domain.StatusFailed, true},
		{domain.StatusProcessing, domain.StatusCancelled, true},
		{domain.StatusProcessing, domain.StatusPending, false},
		// Late settlement of an aged-out invoice.
		{domain.StatusFailed, domain.StatusCompleted, true},
		{domain.StatusFailed, domain.StatusPending, false},
		{domain.StatusFailed, domain.StatusProcessing, false},
		// Completed and cancelled are terminal.
		{domain.StatusCompleted, domain.StatusFailed, false},
		{domain.StatusCompleted, domain.StatusPending, false},
		{domain.StatusCompleted, domain.StatusProcessing, false},
		{domain.StatusCancelled, domain.StatusCompleted, false},
		{domain.StatusCancelled, domain.StatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"_to_"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, domain.StatusPending.IsTerminal())
	assert.False(t, domain.StatusProcessing.IsTerminal())
	assert.True(t, domain.StatusCompleted.IsTerminal())
	assert.True(t, domain.StatusFailed.IsTerminal())
	assert.True(t, domain.StatusCancelled.IsTerminal())
}

func TestDeriveOrderStatus(t *testing.T) {
	assert.Equal(t, domain.OrderStatusCompleted, domain.DeriveOrderStatus(domain.StatusCompleted))
	assert.Equal(t, domain.OrderStatusPending, domain.DeriveOrderStatus(domain.StatusPending))
	assert.Equal(t, domain.OrderStatusPending, domain.DeriveOrderStatus(domain.StatusFailed))
	assert.Equal(t, domain.OrderStatusPending, domain.DeriveOrderStatus(domain.StatusCancelled))
}
