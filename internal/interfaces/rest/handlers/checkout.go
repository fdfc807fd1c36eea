package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/application/services"
	"github.com/streamvault/billing-gateway/internal/domain"
	"github.com/streamvault/billing-gateway/internal/interfaces/rest"
)

type createPaymentRequest struct {
	Amount        decimal.Decimal `json:"amount"`
	Currency      string          `json:"currency"`
	UserID        *string         `json:"user_id,omitempty"`
	CustomerEmail string          `json:"customer_email,omitempty"`
	Meta          paymentMeta     `json:"meta"`
}

type paymentMeta struct {
	ProductID    string            `json:"product_id"`
	VariantID    string            `json:"variant_id,omitempty"`
	Quantity     int               `json:"quantity"`
	Purpose      string            `json:"purpose,omitempty"`
	Subscription *subscriptionMeta `json:"subscription,omitempty"`
}

type subscriptionMeta struct {
	BillingPeriodDays int  `json:"billing_period_days"`
	AutoRenew         bool `json:"auto_renew"`
}

type feeInfoResponse struct {
	Original   decimal.Decimal `json:"original"`
	ServiceFee decimal.Decimal `json:"service_fee"`
	Total      decimal.Decimal `json:"total"`
}

type createPaymentResponse struct {
	Success     bool            `json:"success"`
	PaymentID   string          `json:"payment_id"`
	CheckoutURL string          `json:"checkout_url"`
	Amount      decimal.Decimal `json:"amount"`
	FeeInfo     feeInfoResponse `json:"fee_info"`
}

func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, application.NewInvalidInputError("invalid JSON body"))
		return
	}

	cmd := services.CreatePaymentCommand{
		Provider:      provider,
		Amount:        req.Amount,
		Currency:      req.Currency,
		UserID:        req.UserID,
		CustomerEmail: req.CustomerEmail,
		ProductID:     req.Meta.ProductID,
		VariantID:     req.Meta.VariantID,
		Quantity:      req.Meta.Quantity,
		Purpose:       domain.Purpose(req.Meta.Purpose),
	}
	if sub := req.Meta.Subscription; sub != nil {
		cmd.Subscription = &services.SubscriptionCommand{
			BillingPeriodDays: sub.BillingPeriodDays,
			AutoRenew:         sub.AutoRenew,
		}
	}

	result, err := h.checkoutService.CreatePayment(r.Context(), cmd)
	if err != nil {
		rest.WriteError(w, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, createPaymentResponse{
		Success:     true,
		PaymentID:   result.PaymentID,
		CheckoutURL: result.CheckoutURL,
		Amount:      result.FeeInfo.TotalAmount,
		FeeInfo: feeInfoResponse{
			Original:   result.FeeInfo.OriginalAmount,
			ServiceFee: result.FeeInfo.ServiceFee,
			Total:      result.FeeInfo.TotalAmount,
		},
	})
}
