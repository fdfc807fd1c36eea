package domain_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/billing-gateway/internal/domain"
)

func TestFeePolicy_Apply(t *testing.T) {
	policy, err := domain.NewFeePolicy(decimal.NewFromFloat(3.0))
	require.NoError(t, err)

	fee, total := policy.Apply(decimal.NewFromFloat(19.99))

	assert.True(t, decimal.NewFromFloat(0.60).Equal(fee), "fee was %s", fee)
	assert.True(t, decimal.NewFromFloat(20.59).Equal(total), "total was %s", total)
}

func TestFeePolicy_ZeroPercent(t *testing.T) {
	policy, err := domain.NewFeePolicy(decimal.Zero)
	require.NoError(t, err)

	fee, total := policy.Apply(decimal.NewFromFloat(10.00))

	assert.True(t, fee.IsZero())
	assert.True(t, decimal.NewFromFloat(10.00).Equal(total))
}

func TestFeePolicy_RejectsNegative(t *testing.T) {
	_, err := domain.NewFeePolicy(decimal.NewFromFloat(-1))
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
}

func TestNewPaymentRecord_AppliesFee(t *testing.T) {
	policy, err := domain.NewFeePolicy(decimal.NewFromFloat(3.0))
	require.NoError(t, err)

	rec, err := domain.NewPaymentRecord(
		"pay-1", nil, "buyer@example.com",
		domain.PurposeOrder,
		decimal.NewFromFloat(19.99), "USD",
		policy,
	)
	require.NoError(t, err)

	assert.True(t, decimal.NewFromFloat(19.99).Equal(rec.OriginalAmount))
	assert.True(t, decimal.NewFromFloat(0.60).Equal(rec.ServiceFee))
	assert.True(t, decimal.NewFromFloat(20.59).Equal(rec.TotalAmount))
	assert.Equal(t, domain.StatusPending, rec.PaymentStatus)
	assert.Equal(t, domain.OrderStatusPending, rec.OrderStatus)
}

func TestNewPaymentRecord_Validation(t *testing.T) {
	policy, err := domain.NewFeePolicy(decimal.Zero)
	require.NoError(t, err)

	_, err = domain.NewPaymentRecord("", nil, "a@b.c", domain.PurposeOrder, decimal.NewFromInt(1), "USD", policy)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))

	_, err = domain.NewPaymentRecord("id", nil, "", domain.PurposeOrder, decimal.NewFromInt(1), "USD", policy)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))

	_, err = domain.NewPaymentRecord("id", nil, "a@b.c", domain.PurposeOrder, decimal.Zero, "USD", policy)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))

	_, err = domain.NewPaymentRecord("id", nil, "a@b.c", domain.PurposeOrder, decimal.NewFromInt(1), "", policy)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
}
