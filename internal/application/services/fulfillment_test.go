package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/streamvault/billing-gateway/internal/application/services"
	"github.com/streamvault/billing-gateway/internal/domain"
)

func TestFulfillment_RenewalCompletionAdvancesBillingCycle(t *testing.T) {
	repo := newFakeRepo()
	f := services.NewFulfillmentService(repo, &fakeProvisioner{}, &fakeOutbox{}, testLogger())

	oldDate := time.Now().UTC().Add(24 * time.Hour)
	parentID := "sub-1"
	renewalID := "renewal-1"

	parent := newTestRecord(t, parentID, domain.PurposeOrder)
	parent.Subscription = &domain.Subscription{
		IsActive:          true,
		AutoRenew:         true,
		NextBillingDate:   &oldDate,
		BillingPeriodDays: 30,
		RenewalOrderID:    &renewalID,
	}
	repo.put(parent)

	renewal := newTestRecord(t, renewalID, domain.PurposeRenewal)
	renewal.Subscription = &domain.Subscription{IsRenewal: true, ParentOrderID: &parentID, RenewalAttempt: 1}
	require.NoError(t, renewal.Transition(domain.StatusCompleted))
	repo.put(renewal)

	require.NoError(t, f.HandlePaymentCompleted(context.Background(), renewal))

	want := oldDate.AddDate(0, 0, 30)
	require.NotNil(t, parent.Subscription.NextBillingDate)
	assert.True(t, parent.Subscription.NextBillingDate.Equal(want))
	assert.Nil(t, parent.Subscription.RenewalOrderID)

	// A redelivered completion finds the back-reference cleared and must
	// not advance the cycle a second time.
	require.NoError(t, f.HandlePaymentCompleted(context.Background(), renewal))
	assert.True(t, parent.Subscription.NextBillingDate.Equal(want))
}

func TestFulfillment_LateRenewalExtendsFromSettlement(t *testing.T) {
	repo := newFakeRepo()
	f := services.NewFulfillmentService(repo, &fakeProvisioner{}, &fakeOutbox{}, testLogger())

	// The old cycle already ran out; the new one starts at settlement, not
	// stacked onto the missed date.
	lapsed := time.Now().UTC().Add(-10 * 24 * time.Hour)
	parentID := "sub-1"
	renewalID := "renewal-1"

	parent := newTestRecord(t, parentID, domain.PurposeOrder)
	parent.Subscription = &domain.Subscription{
		IsActive:          true,
		AutoRenew:         true,
		NextBillingDate:   &lapsed,
		BillingPeriodDays: 30,
		RenewalOrderID:    &renewalID,
	}
	repo.put(parent)

	renewal := newTestRecord(t, renewalID, domain.PurposeRenewal)
	renewal.Subscription = &domain.Subscription{IsRenewal: true, ParentOrderID: &parentID, RenewalAttempt: 1}
	require.NoError(t, renewal.Transition(domain.StatusCompleted))
	repo.put(renewal)

	require.NoError(t, f.HandlePaymentCompleted(context.Background(), renewal))

	require.NotNil(t, parent.Subscription.NextBillingDate)
	assert.WithinDuration(t,
		time.Now().UTC().AddDate(0, 0, 30), *parent.Subscription.NextBillingDate, time.Minute)
}

func TestFulfillment_SubscriptionPurchaseActivatesCycle(t *testing.T) {
	repo := newFakeRepo()
	f := services.NewFulfillmentService(repo, &fakeProvisioner{}, &fakeOutbox{}, testLogger())

	rec := newTestRecord(t, "sub-1", domain.PurposeOrder)
	rec.Subscription = &domain.Subscription{BillingPeriodDays: 30, AutoRenew: true}
	require.NoError(t, rec.Transition(domain.StatusCompleted))
	repo.put(rec)

	require.NoError(t, f.HandlePaymentCompleted(context.Background(), rec))

	assert.True(t, rec.Subscription.IsActive)
	require.NotNil(t, rec.Subscription.NextBillingDate)
	assert.WithinDuration(t,
		time.Now().UTC().AddDate(0, 0, 30), *rec.Subscription.NextBillingDate, time.Minute)
}
