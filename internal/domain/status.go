package domain

import (
	"slices"
	"strings"
)

// PaymentStatus represents the current state of a payment in its lifecycle
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "pending"
	StatusProcessing PaymentStatus = "processing"
	StatusCompleted  PaymentStatus = "completed"
	StatusFailed     PaymentStatus = "failed"
	StatusCancelled  PaymentStatus = "cancelled"
)

// OrderStatus is derived from PaymentStatus and never set directly.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

var (
	completedTokens = []string{"paid", "completed", "confirmed", "success", "finished", "succeeded", "done"}
	failedTokens    = []string{"failed", "cancelled", "canceled", "expired", "error", "declined", "rejected"}
	pendingTokens   = []string{"pending", "processing", "waiting", "new", "unpaid", "in_progress"}
)

// Normalize maps a raw gateway status token onto the internal status enum.
// Unrecognized input maps to pending: an unknown token must never flip a
// payment to completed or failed on its own.
func Normalize(raw string) PaymentStatus {
	token := strings.ToLower(strings.TrimSpace(raw))

	switch {
	case slices.Contains(completedTokens, token):
		return StatusCompleted
	case slices.Contains(failedTokens, token):
		return StatusFailed
	case slices.Contains(pendingTokens, token):
		return StatusPending
	default:
		return StatusPending
	}
}

// CanTransitionTo reports whether moving from s to target is a legal
// state-machine transition. Completed and cancelled are terminal; failed
// may still complete when an aged-out invoice settles late.
func (s PaymentStatus) CanTransitionTo(target PaymentStatus) bool {
	switch s {
	case StatusPending:
		return allow(target, StatusProcessing, StatusCompleted, StatusFailed, StatusCancelled)
	case StatusProcessing:
		return allow(target, StatusCompleted, StatusFailed, StatusCancelled)
	case StatusFailed:
		return allow(target, StatusCompleted)
	case StatusCompleted, StatusCancelled:
		return false
	}
	return false
}

func allow(target PaymentStatus, allowed ...PaymentStatus) bool {
	return slices.Contains(allowed, target)
}

// IsTerminal reports whether no further status mutation is expected.
func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled:
		return true
	default:
		return false
	}
}

// DeriveOrderStatus maps a payment status onto the customer-facing order
// status: completed iff the payment completed, pending otherwise.
func DeriveOrderStatus(s PaymentStatus) OrderStatus {
	if s == StatusCompleted {
		return OrderStatusCompleted
	}
	return OrderStatusPending
}
