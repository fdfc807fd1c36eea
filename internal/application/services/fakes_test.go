package services_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeRepo is an in-memory PaymentRepository. Individual methods can be
// overridden per test through the Fn fields.
type fakeRepo struct {
	mu      sync.Mutex
	records map[string]*domain.PaymentRecord

	credited map[string]decimal.Decimal

	createFn          func(ctx context.Context, rec *domain.PaymentRecord) error
	updateFn          func(ctx context.Context, rec *domain.PaymentRecord) error
	creditFn          func(ctx context.Context, id string, amount decimal.Decimal) (bool, error)
	findRenewalFn     func(ctx context.Context, parentID string, since time.Time) (*domain.PaymentRecord, error)
	acquireLockFn     func(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error)
	releasedLocks     []string
	cancelledRenewals []string
	linkedRenewals    map[string]string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		records:        make(map[string]*domain.PaymentRecord),
		credited:       make(map[string]decimal.Decimal),
		linkedRenewals: make(map[string]string),
	}
}

func (f *fakeRepo) put(rec *domain.PaymentRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[rec.ID] = rec
}

func (f *fakeRepo) Create(ctx context.Context, rec *domain.PaymentRecord) error {
	if f.createFn != nil {
		return f.createFn(ctx, rec)
	}
	f.put(rec)
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.NewRecordNotFoundError(id)
	}
	return rec, nil
}

func (f *fakeRepo) FindByExternalID(ctx context.Context, provider, externalID string) (*domain.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, rec := range f.records {
		if rec.Gateway.ExternalID != externalID {
			continue
		}
		if provider != "" && rec.Gateway.Provider != provider {
			continue
		}
		return rec, nil
	}
	return nil, domain.NewRecordNotFoundError(externalID)
}

func (f *fakeRepo) UpdateReconciled(ctx context.Context, rec *domain.PaymentRecord) error {
	if f.updateFn != nil {
		return f.updateFn(ctx, rec)
	}
	f.put(rec)
	return nil
}

func (f *fakeRepo) SaveCredentials(ctx context.Context, id string, creds *domain.Credentials) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return domain.NewRecordNotFoundError(id)
	}
	rec.Credentials = creds
	return nil
}

func (f *fakeRepo) MarkEmailSent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return domain.NewRecordNotFoundError(id)
	}
	rec.EmailSent = true
	return nil
}

func (f *fakeRepo) CreditWallet(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	if f.creditFn != nil {
		return f.creditFn(ctx, id, amount)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, done := f.credited[id]; done {
		return false, nil
	}
	f.credited[id] = amount
	if rec, ok := f.records[id]; ok {
		rec.Credited = true
		rec.CreditedAmount = amount
	}
	return true, nil
}

func (f *fakeRepo) FindDueSubscriptions(ctx context.Context, deadline time.Time, afterID string, limit int) ([]application.DueSubscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []application.DueSubscription
	for _, rec := range f.records {
		sub := rec.Subscription
		if sub == nil || !sub.IsActive || !sub.AutoRenew || sub.IsRenewal {
			continue
		}
		if sub.NextBillingDate == nil || sub.NextBillingDate.After(deadline) {
			continue
		}
		if rec.ID <= afterID {
			continue
		}
		due = append(due, application.DueSubscription{ID: rec.ID, NextBillingDate: *sub.NextBillingDate})
		if len(due) == limit {
			break
		}
	}
	return due, nil
}

func (f *fakeRepo) FindRenewalByParent(ctx context.Context, parentID string, since time.Time) (*domain.PaymentRecord, error) {
	if f.findRenewalFn != nil {
		return f.findRenewalFn(ctx, parentID, since)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var newest *domain.PaymentRecord
	for _, rec := range f.records {
		sub := rec.Subscription
		if sub == nil || sub.ParentOrderID == nil || *sub.ParentOrderID != parentID {
			continue
		}
		if rec.CreatedAt.Before(since) {
			continue
		}
		if newest == nil || rec.CreatedAt.After(newest.CreatedAt) {
			newest = rec
		}
	}
	if newest == nil {
		return nil, domain.NewRecordNotFoundError(parentID)
	}
	return newest, nil
}

func (f *fakeRepo) CancelStaleRenewal(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledRenewals = append(f.cancelledRenewals, id)
	if rec, ok := f.records[id]; ok && !rec.PaymentStatus.IsTerminal() {
		rec.PaymentStatus = domain.StatusCancelled
	}
	return nil
}

func (f *fakeRepo) AcquireRenewalLock(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	if f.acquireLockFn != nil {
		return f.acquireLockFn(ctx, id, now, lease)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok || rec.Subscription == nil {
		return false, nil
	}
	lock := rec.Subscription.RenewalLock
	if lock != nil && lock.After(now.Add(-lease)) {
		return false, nil
	}
	rec.Subscription.RenewalLock = &now
	return true, nil
}

func (f *fakeRepo) ReleaseRenewalLock(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.releasedLocks = append(f.releasedLocks, id)
	if rec, ok := f.records[id]; ok && rec.Subscription != nil {
		rec.Subscription.RenewalLock = nil
	}
	return nil
}

func (f *fakeRepo) ActivateSubscription(ctx context.Context, id string, next time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[id]
	if !ok {
		return domain.NewRecordNotFoundError(id)
	}
	if rec.Subscription == nil || rec.Subscription.NextBillingDate != nil {
		return nil
	}
	rec.Subscription.IsActive = true
	rec.Subscription.NextBillingDate = &next
	return nil
}

func (f *fakeRepo) AdvanceBillingCycle(ctx context.Context, parentID, renewalID string, next time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[parentID]
	if !ok || rec.Subscription == nil {
		return false, nil
	}
	sub := rec.Subscription
	if sub.RenewalOrderID == nil || *sub.RenewalOrderID != renewalID {
		return false, nil
	}
	sub.NextBillingDate = &next
	sub.RenewalOrderID = nil
	return true, nil
}

func (f *fakeRepo) LinkRenewal(ctx context.Context, parentID, renewalID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkedRenewals[parentID] = renewalID
	if rec, ok := f.records[parentID]; ok && rec.Subscription != nil {
		rec.Subscription.RenewalOrderID = &renewalID
	}
	return nil
}

func (f *fakeRepo) FindAwaitingCallback(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var stuck []*domain.PaymentRecord
	for _, rec := range f.records {
		if rec.PaymentStatus.IsTerminal() || rec.Gateway.CallbackReceived {
			continue
		}
		if rec.Gateway.ExternalID == "" || !rec.CreatedAt.Before(cutoff) {
			continue
		}
		stuck = append(stuck, rec)
		if len(stuck) == limit {
			break
		}
	}
	return stuck, nil
}

// fakeGateway is a GatewayClient with overridable behavior.
type fakeGateway struct {
	name       string
	createFn   func(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error)
	statusFn   func(ctx context.Context, externalID string) (string, error)
	verifyFn   func(payload []byte, signature, sourceIP string) bool
	createdReq []application.CreatePaymentRequest
	mu         sync.Mutex
}

func (g *fakeGateway) Name() string { return g.name }

func (g *fakeGateway) CreatePayment(ctx context.Context, req application.CreatePaymentRequest) (*application.CreatePaymentResult, error) {
	g.mu.Lock()
	g.createdReq = append(g.createdReq, req)
	g.mu.Unlock()
	if g.createFn != nil {
		return g.createFn(ctx, req)
	}
	return &application.CreatePaymentResult{
		ExternalID:  "inv-" + req.OrderRef,
		CheckoutURL: "https://pay.example.com/" + req.OrderRef,
		RawStatus:   "waiting",
	}, nil
}

func (g *fakeGateway) GetStatus(ctx context.Context, externalID string) (string, error) {
	if g.statusFn != nil {
		return g.statusFn(ctx, externalID)
	}
	return "waiting", nil
}

func (g *fakeGateway) VerifyCallback(payload []byte, signature, sourceIP string) bool {
	if g.verifyFn != nil {
		return g.verifyFn(payload, signature, sourceIP)
	}
	return true
}

type fakeRegistry struct {
	clients map[string]application.GatewayClient
}

func newFakeRegistry(clients ...application.GatewayClient) *fakeRegistry {
	m := make(map[string]application.GatewayClient, len(clients))
	for _, c := range clients {
		m[c.Name()] = c
	}
	return &fakeRegistry{clients: m}
}

func (r *fakeRegistry) Get(name string) (application.GatewayClient, error) {
	c, ok := r.clients[name]
	if !ok {
		return nil, domain.NewConfigError(name)
	}
	return c, nil
}

func (r *fakeRegistry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	return names
}

type fakeProvisioner struct {
	mu          sync.Mutex
	created     int
	extended    int
	createErr   error
	credentials *domain.Credentials
}

func (p *fakeProvisioner) CreateAccount(ctx context.Context, req application.ProvisioningRequest) (*domain.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.createErr != nil {
		return nil, p.createErr
	}
	p.created++
	return p.creds(), nil
}

func (p *fakeProvisioner) ExtendAccount(ctx context.Context, req application.ProvisioningRequest) (*domain.Credentials, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.extended++
	return p.creds(), nil
}

func (p *fakeProvisioner) creds() *domain.Credentials {
	if p.credentials != nil {
		return p.credentials
	}
	return &domain.Credentials{
		Username:  "iptv-user",
		Password:  "iptv-pass",
		ServerURL: "https://stream.example.com",
		ExpiresAt: time.Now().Add(30 * 24 * time.Hour),
	}
}

type fakeOutbox struct {
	mu       sync.Mutex
	enqueued []*domain.OutboxMessage
}

func (o *fakeOutbox) Enqueue(ctx context.Context, msg *domain.OutboxMessage) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.enqueued = append(o.enqueued, msg)
	return nil
}

func (o *fakeOutbox) FindDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.OutboxMessage, error) {
	return nil, nil
}

func (o *fakeOutbox) MarkSent(ctx context.Context, id string, at time.Time) error { return nil }

func (o *fakeOutbox) ScheduleRetry(ctx context.Context, id string, attempts int, next time.Time) error {
	return nil
}

type fakeEvents struct {
	mu        sync.Mutex
	inserted  []*domain.WebhookEvent
	processed map[string]bool
	errors    map[string]string
	insertErr error
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		processed: make(map[string]bool),
		errors:    make(map[string]string),
	}
}

func (e *fakeEvents) Insert(ctx context.Context, event *domain.WebhookEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.insertErr != nil {
		return e.insertErr
	}
	e.inserted = append(e.inserted, event)
	return nil
}

func (e *fakeEvents) MarkProcessed(ctx context.Context, id string, processed bool, procErr string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.processed[id] = processed
	e.errors[id] = procErr
	return nil
}
