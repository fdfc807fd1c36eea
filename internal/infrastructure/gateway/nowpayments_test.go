package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/config"
	"github.com/streamvault/billing-gateway/internal/domain"
)

func TestNOWPaymentsCreatePayment(t *testing.T) {
	var got nowInvoiceRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/invoice", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		json.NewEncoder(w).Encode(nowInvoiceResponse{
			ID:         "5077125051",
			InvoiceURL: "https://nowpayments.io/payment/?iid=5077125051",
		})
	}))
	defer server.Close()

	g := NewNOWPayments(config.NOWPaymentsConfig{BaseURL: server.URL, APIKey: "test-key"})

	result, err := g.CreatePayment(context.Background(), application.CreatePaymentRequest{
		OrderRef:    "pay-1",
		Amount:      decimal.NewFromFloat(20.59),
		Currency:    "USD",
		CallbackURL: "https://shop.example.com/api/v1/webhooks/nowpayments",
		SuccessURL:  "https://shop.example.com/success",
		CancelURL:   "https://shop.example.com/cancel",
		Metadata:    map[string]string{"product_id": "iptv-12m"},
	})
	require.NoError(t, err)

	assert.Equal(t, "5077125051", result.ExternalID)
	assert.Equal(t, "https://nowpayments.io/payment/?iid=5077125051", result.CheckoutURL)
	assert.Equal(t, "waiting", result.RawStatus)
	require.NotNil(t, result.ExpiresAt)

	assert.Equal(t, "20.59", got.PriceAmount)
	assert.Equal(t, "USD", got.PriceCurrency)
	assert.Equal(t, "pay-1", got.OrderID)
	assert.Equal(t, "https://shop.example.com/api/v1/webhooks/nowpayments", got.IPNCallbackURL)
}

func TestNOWPaymentsCreatePayment_ClientError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"INVALID_API_KEY"}`, http.StatusForbidden)
	}))
	defer server.Close()

	g := NewNOWPayments(config.NOWPaymentsConfig{BaseURL: server.URL, APIKey: "bad-key"})

	_, err := g.CreatePayment(context.Background(), application.CreatePaymentRequest{
		OrderRef: "pay-1",
		Amount:   decimal.NewFromFloat(20.59),
		Currency: "USD",
	})
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeValidation))
}

func TestNOWPaymentsCreatePayment_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer server.Close()

	g := NewNOWPayments(config.NOWPaymentsConfig{BaseURL: server.URL, APIKey: "k"})

	_, err := g.CreatePayment(context.Background(), application.CreatePaymentRequest{
		OrderRef: "pay-1",
		Amount:   decimal.NewFromFloat(20.59),
		Currency: "USD",
	})
	require.Error(t, err)
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeGatewayRequest))

	gwErr, ok := IsGatewayError(err)
	require.True(t, ok)
	assert.True(t, gwErr.IsRetryable())
}

func TestNOWPaymentsGetStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/payment/5077125051", r.URL.Path)
		json.NewEncoder(w).Encode(nowPaymentStatusResponse{PaymentStatus: "finished"})
	}))
	defer server.Close()

	g := NewNOWPayments(config.NOWPaymentsConfig{BaseURL: server.URL, APIKey: "k"})

	status, err := g.GetStatus(context.Background(), "5077125051")
	require.NoError(t, err)
	assert.Equal(t, "finished", status)
}
