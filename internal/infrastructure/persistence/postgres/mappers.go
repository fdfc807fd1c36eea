package postgres

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/domain"
)

func toDBModel(rec *domain.PaymentRecord) (*PaymentModel, error) {
	gateway, err := json.Marshal(rec.Gateway)
	if err != nil {
		return nil, fmt.Errorf("marshal gateway charge: %w", err)
	}

	var credentials []byte
	if rec.Credentials != nil {
		credentials, err = json.Marshal(rec.Credentials)
		if err != nil {
			return nil, fmt.Errorf("marshal credentials: %w", err)
		}
	}

	m := &PaymentModel{
		ID:             rec.ID,
		UserID:         rec.UserID,
		CustomerEmail:  rec.CustomerEmail,
		Purpose:        string(rec.Purpose),
		OriginalAmount: rec.OriginalAmount.String(),
		ServiceFee:     rec.ServiceFee.String(),
		TotalAmount:    rec.TotalAmount.String(),
		Currency:       rec.Currency,
		PaymentStatus:  string(rec.PaymentStatus),
		OrderStatus:    string(rec.OrderStatus),
		Gateway:        gateway,
		Credited:       rec.Credited,
		CreditedAmount: rec.CreditedAmount.String(),
		CreditedAt:     rec.CreditedAt,
		Credentials:    credentials,
		EmailSent:      rec.EmailSent,
		ProductID:      rec.ProductID,
		VariantID:      rec.VariantID,
		Quantity:       rec.Quantity,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}

	if sub := rec.Subscription; sub != nil {
		m.IsSubscription = true
		m.SubIsActive = sub.IsActive
		m.SubNextBillingDate = sub.NextBillingDate
		m.SubBillingPeriodDays = sub.BillingPeriodDays
		m.SubAutoRenew = sub.AutoRenew
		m.SubParentOrderID = sub.ParentOrderID
		m.SubIsRenewal = sub.IsRenewal
		m.SubRenewalAttempt = sub.RenewalAttempt
		m.SubRenewalLock = sub.RenewalLock
		m.SubRenewalOrderID = sub.RenewalOrderID
	}

	return m, nil
}

func toDomainModel(m *PaymentModel) (*domain.PaymentRecord, error) {
	originalAmount, err := decimal.NewFromString(m.OriginalAmount)
	if err != nil {
		return nil, fmt.Errorf("parse original_amount: %w", err)
	}
	serviceFee, err := decimal.NewFromString(m.ServiceFee)
	if err != nil {
		return nil, fmt.Errorf("parse service_fee: %w", err)
	}
	totalAmount, err := decimal.NewFromString(m.TotalAmount)
	if err != nil {
		return nil, fmt.Errorf("parse total_amount: %w", err)
	}
	creditedAmount, err := decimal.NewFromString(m.CreditedAmount)
	if err != nil {
		return nil, fmt.Errorf("parse credited_amount: %w", err)
	}

	var gateway domain.GatewayCharge
	if len(m.Gateway) > 0 {
		if err := json.Unmarshal(m.Gateway, &gateway); err != nil {
			return nil, fmt.Errorf("unmarshal gateway charge: %w", err)
		}
	}

	var credentials *domain.Credentials
	if len(m.Credentials) > 0 {
		credentials = &domain.Credentials{}
		if err := json.Unmarshal(m.Credentials, credentials); err != nil {
			return nil, fmt.Errorf("unmarshal credentials: %w", err)
		}
	}

	rec := &domain.PaymentRecord{
		ID:             m.ID,
		UserID:         m.UserID,
		CustomerEmail:  m.CustomerEmail,
		Purpose:        domain.Purpose(m.Purpose),
		OriginalAmount: originalAmount,
		ServiceFee:     serviceFee,
		TotalAmount:    totalAmount,
		Currency:       m.Currency,
		PaymentStatus:  domain.PaymentStatus(m.PaymentStatus),
		OrderStatus:    domain.OrderStatus(m.OrderStatus),
		Gateway:        gateway,
		Credited:       m.Credited,
		CreditedAmount: creditedAmount,
		CreditedAt:     m.CreditedAt,
		Credentials:    credentials,
		EmailSent:      m.EmailSent,
		ProductID:      m.ProductID,
		VariantID:      m.VariantID,
		Quantity:       m.Quantity,
		CreatedAt:      m.CreatedAt,
		UpdatedAt:      m.UpdatedAt,
	}

	if m.IsSubscription {
		rec.Subscription = &domain.Subscription{
			IsActive:          m.SubIsActive,
			NextBillingDate:   m.SubNextBillingDate,
			BillingPeriodDays: m.SubBillingPeriodDays,
			AutoRenew:         m.SubAutoRenew,
			ParentOrderID:     m.SubParentOrderID,
			IsRenewal:         m.SubIsRenewal,
			RenewalAttempt:    m.SubRenewalAttempt,
			RenewalLock:       m.SubRenewalLock,
			RenewalOrderID:    m.SubRenewalOrderID,
		}
	}

	return rec, nil
}
