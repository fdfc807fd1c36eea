package services

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

// PaymentStatusView is the client-polling projection of a payment. It
// exposes only the normalized internal status, never raw gateway strings.
type PaymentStatusView struct {
	InternalStatus domain.PaymentStatus `json:"internal_status"`
	PriceAmount    decimal.Decimal      `json:"price_amount"`
	PayCurrency    string               `json:"pay_currency,omitempty"`
	ActuallyPaid   decimal.Decimal      `json:"actually_paid"`
	UserCredited   bool                 `json:"user_credited"`
	CreditedAmount decimal.Decimal      `json:"credited_amount"`
}

// QueryService serves read-only lookups for polling UIs.
type QueryService struct {
	repo application.PaymentRepository
}

func NewQueryService(repo application.PaymentRepository) *QueryService {
	return &QueryService{repo: repo}
}

// StatusByExternalID resolves a payment by its gateway invoice id.
func (s *QueryService) StatusByExternalID(ctx context.Context, externalID string) (*PaymentStatusView, error) {
	rec, err := s.repo.FindByExternalID(ctx, "", externalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, domain.NewRecordNotFoundError(externalID)
	}

	return &PaymentStatusView{
		InternalStatus: rec.PaymentStatus,
		PriceAmount:    rec.TotalAmount,
		PayCurrency:    rec.Gateway.PayCurrency,
		ActuallyPaid:   rec.Gateway.ActuallyPaid,
		UserCredited:   rec.Credited,
		CreditedAmount: rec.CreditedAmount,
	}, nil
}
