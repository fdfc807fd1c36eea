package domain

import (
	"github.com/shopspring/decimal"
)

// FeePolicy computes the service fee added on top of the product price.
// The percentage comes from admin settings and is fixed per payment at
// creation time.
type FeePolicy struct {
	Percent decimal.Decimal
}

func NewFeePolicy(percent decimal.Decimal) (FeePolicy, error) {
	if percent.IsNegative() {
		return FeePolicy{}, NewValidationError("fee percent must not be negative")
	}
	return FeePolicy{Percent: percent}, nil
}

// Apply returns the fee and total for the given amount, both rounded to
// cents with half-up rounding.
func (p FeePolicy) Apply(amount decimal.Decimal) (fee, total decimal.Decimal) {
	fee = amount.Mul(p.Percent).Div(decimal.NewFromInt(100)).Round(2)
	total = amount.Add(fee)
	return fee, total
}
