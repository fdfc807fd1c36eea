package services_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/application/services"
	"github.com/streamvault/billing-gateway/internal/domain"
)

func newSchedulerUnderTest(repo *fakeRepo, gw *fakeGateway) *services.RenewalScheduler {
	fees, _ := domain.NewFeePolicy(decimal.NewFromFloat(3.0))
	urls := services.CallbackURLs{
		SuccessURL:  "https://shop.example.com/success",
		CancelURL:   "https://shop.example.com/cancel",
		CallbackURL: "https://shop.example.com/api/v1/webhooks",
	}
	cfg := services.RenewalConfig{
		Provider:   gw.name,
		LeadTime:   72 * time.Hour,
		Lookback:   7 * 24 * time.Hour,
		InvoiceTTL: 24 * time.Hour,
		LockLease:  30 * time.Minute,
		BatchSize:  50,
	}
	return services.NewRenewalScheduler(repo, newFakeRegistry(gw), urls, fees, rate.NewLimiter(rate.Inf, 1), cfg, testLogger())
}

func newSubscriptionRecord(t *testing.T, id string, nextBilling time.Time) *domain.PaymentRecord {
	t.Helper()
	rec := newTestRecord(t, id, domain.PurposeOrder)
	rec.Subscription = &domain.Subscription{
		IsActive:        true,
		AutoRenew:       true,
		NextBillingDate: &nextBilling,
	}
	return rec
}

func TestRenewal_CreatesLinkedInvoice(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{name: "nowpayments"}
	s := newSchedulerUnderTest(repo, gw)

	parent := newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(24*time.Hour))
	repo.put(parent)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Renewed)
	assert.Equal(t, 0, summary.Errors)

	renewalID, linked := repo.linkedRenewals["sub-1"]
	require.True(t, linked)

	renewal, err := repo.FindByID(context.Background(), renewalID)
	require.NoError(t, err)
	assert.Equal(t, domain.PurposeRenewal, renewal.Purpose)
	require.NotNil(t, renewal.Subscription)
	assert.True(t, renewal.Subscription.IsRenewal)
	assert.Equal(t, "sub-1", *renewal.Subscription.ParentOrderID)
	assert.Equal(t, 1, renewal.Subscription.RenewalAttempt)

	// Lock released after the pass.
	assert.Nil(t, parent.Subscription.RenewalLock)
	assert.Contains(t, repo.releasedLocks, "sub-1")
}

func TestRenewal_SkipsNotYetDue(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{name: "nowpayments"}
	s := newSchedulerUnderTest(repo, gw)

	repo.put(newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(30*24*time.Hour)))

	summary, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
	assert.Empty(t, gw.createdReq)
}

func TestRenewal_SkipsFreshPendingRenewal(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{name: "nowpayments"}
	s := newSchedulerUnderTest(repo, gw)

	parent := newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(24*time.Hour))
	repo.put(parent)

	existing := newTestRecord(t, "renewal-1", domain.PurposeRenewal)
	parentID := "sub-1"
	existing.Subscription = &domain.Subscription{IsRenewal: true, ParentOrderID: &parentID, RenewalAttempt: 1}
	existing.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	repo.put(existing)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Renewed)
	assert.Empty(t, gw.createdReq)
}

func TestRenewal_CompletedRenewalDoesNotReinvoice(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{name: "nowpayments"}
	s := newSchedulerUnderTest(repo, gw)

	// The parent still reads as due because the billing-date advance for
	// the settled renewal has not landed yet.
	parent := newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(24*time.Hour))
	repo.put(parent)

	settled := newTestRecord(t, "renewal-1", domain.PurposeRenewal)
	parentID := "sub-1"
	settled.Subscription = &domain.Subscription{IsRenewal: true, ParentOrderID: &parentID, RenewalAttempt: 1}
	settled.CreatedAt = time.Now().UTC().Add(-2 * time.Hour)
	require.NoError(t, settled.Transition(domain.StatusCompleted))
	repo.put(settled)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Renewed)
	assert.Empty(t, gw.createdReq)
	assert.NotContains(t, repo.linkedRenewals, "sub-1")
}

func TestRenewal_ConcurrentRunsCreateOneInvoice(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{name: "nowpayments"}
	s := newSchedulerUnderTest(repo, gw)

	repo.put(newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(24*time.Hour)))

	summaries := make([]services.RenewalSummary, 2)
	var wg sync.WaitGroup
	for i := range summaries {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := s.Run(context.Background())
			assert.NoError(t, err)
			summaries[i] = got
		}()
	}
	wg.Wait()

	// The lock plus the under-lock re-check bound the racing passes to a
	// single invoice.
	assert.Len(t, gw.createdReq, 1)
	assert.Equal(t, 1, summaries[0].Renewed+summaries[1].Renewed)
	assert.Contains(t, repo.linkedRenewals, "sub-1")
}

func TestRenewal_SupersedesAgedOutInvoice(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{name: "nowpayments"}
	s := newSchedulerUnderTest(repo, gw)

	parent := newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(24*time.Hour))
	repo.put(parent)

	stale := newTestRecord(t, "renewal-1", domain.PurposeRenewal)
	parentID := "sub-1"
	stale.Subscription = &domain.Subscription{IsRenewal: true, ParentOrderID: &parentID, RenewalAttempt: 1}
	stale.CreatedAt = time.Now().UTC().Add(-48 * time.Hour)
	repo.put(stale)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Renewed)
	assert.Contains(t, repo.cancelledRenewals, "renewal-1")
	assert.Equal(t, domain.StatusCancelled, stale.PaymentStatus)

	// The replacement increments the attempt counter.
	renewal, err := repo.FindByID(context.Background(), repo.linkedRenewals["sub-1"])
	require.NoError(t, err)
	assert.Equal(t, 2, renewal.Subscription.RenewalAttempt)
}

func TestRenewal_LockLossSkips(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{name: "nowpayments"}
	s := newSchedulerUnderTest(repo, gw)

	repo.put(newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(24*time.Hour)))
	repo.acquireLockFn = func(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
		return false, nil
	}

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Renewed)
	assert.Empty(t, gw.createdReq)
}

func TestRenewal_FailureReleasesLock(t *testing.T) {
	repo := newFakeRepo()
	gw := &fakeGateway{
		name: "nowpayments",
		createFn: func(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error) {
			return nil, domain.NewGatewayRequestError("nowpayments", assert.AnError)
		},
	}
	s := newSchedulerUnderTest(repo, gw)

	parent := newSubscriptionRecord(t, "sub-1", time.Now().UTC().Add(24*time.Hour))
	repo.put(parent)

	summary, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errors)
	assert.Equal(t, 0, summary.Renewed)
	assert.Contains(t, repo.releasedLocks, "sub-1")
	assert.Nil(t, parent.Subscription.RenewalLock)
}

func TestRenewal_UnconfiguredGatewayAborts(t *testing.T) {
	repo := newFakeRepo()
	fees, _ := domain.NewFeePolicy(decimal.Zero)
	cfg := services.RenewalConfig{Provider: "nowpayments", BatchSize: 10, LockLease: time.Minute}
	s := services.NewRenewalScheduler(repo, newFakeRegistry(), services.CallbackURLs{}, fees, rate.NewLimiter(rate.Inf, 1), cfg, testLogger())

	_, err := s.Run(context.Background())
	assert.True(t, domain.IsErrorCode(err, domain.ErrCodeConfig))
}
