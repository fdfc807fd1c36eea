package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/streamvault/billing-gateway/internal/application"
	"github.com/streamvault/billing-gateway/internal/domain"
	"github.com/streamvault/billing-gateway/internal/infrastructure/persistence"
)

const paymentColumns = `
	id, user_id, customer_email, purpose,
	original_amount, service_fee, total_amount, currency,
	payment_status, order_status, gateway,
	credited, credited_amount, credited_at, credentials, email_sent,
	product_id, variant_id, quantity,
	is_subscription, sub_is_active, sub_next_billing_date,
	sub_billing_period_days, sub_auto_renew,
	sub_parent_order_id, sub_is_renewal, sub_renewal_attempt,
	sub_renewal_lock, sub_renewal_order_id,
	created_at, updated_at`

type PaymentRepository struct {
	db *persistence.DB
	q  persistence.Executor
}

func NewPaymentRepository(db *persistence.DB) *PaymentRepository {
	return &PaymentRepository{db: db, q: db.Pool}
}

// WithTx returns a copy whose queries run inside tx.
func (r *PaymentRepository) WithTx(tx pgx.Tx) *PaymentRepository {
	return &PaymentRepository{db: r.db, q: tx}
}

func (r *PaymentRepository) Create(ctx context.Context, rec *domain.PaymentRecord) error {
	query := `
		INSERT INTO payments (` + paymentColumns + `
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28,
			$29, $30, $31
		)
	`

	m, err := toDBModel(rec)
	if err != nil {
		return err
	}

	_, err = r.q.Exec(ctx, query,
		m.ID, m.UserID, m.CustomerEmail, m.Purpose,
		m.OriginalAmount, m.ServiceFee, m.TotalAmount, m.Currency,
		m.PaymentStatus, m.OrderStatus, m.Gateway,
		m.Credited, m.CreditedAmount, m.CreditedAt, m.Credentials, m.EmailSent,
		m.ProductID, m.VariantID, m.Quantity,
		m.IsSubscription, m.SubIsActive, m.SubNextBillingDate,
		m.SubBillingPeriodDays, m.SubAutoRenew,
		m.SubParentOrderID, m.SubIsRenewal, m.SubRenewalAttempt,
		m.SubRenewalLock, m.SubRenewalOrderID,
		m.CreatedAt, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payment record: %w", err)
	}

	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*domain.PaymentRecord, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	row := r.q.QueryRow(ctx, query, id)
	return scanPaymentRecord(row, id)
}

// FindByExternalID looks a record up by the gateway invoice id. An empty
// provider matches any gateway, which the public status endpoint relies on.
func (r *PaymentRepository) FindByExternalID(ctx context.Context, provider, externalID string) (*domain.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE gateway->>'external_id' = $1
		  AND ($2 = '' OR gateway->>'provider' = $2)
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := r.q.QueryRow(ctx, query, externalID, provider)
	return scanPaymentRecord(row, externalID)
}

// UpdateReconciled persists the fields the reconciliation engine owns.
func (r *PaymentRepository) UpdateReconciled(ctx context.Context, rec *domain.PaymentRecord) error {
	query := `
		UPDATE payments
		SET payment_status = $1, order_status = $2, gateway = $3, updated_at = $4
		WHERE id = $5
	`

	m, err := toDBModel(rec)
	if err != nil {
		return err
	}

	result, err := r.q.Exec(ctx, query,
		m.PaymentStatus, m.OrderStatus, m.Gateway, m.UpdatedAt, m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update reconciled payment: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewRecordNotFoundError(rec.ID)
	}

	return nil
}

func (r *PaymentRepository) SaveCredentials(ctx context.Context, id string, creds *domain.Credentials) error {
	query := `UPDATE payments SET credentials = $1, updated_at = now() WHERE id = $2`

	payload, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshal credentials: %w", err)
	}

	result, err := r.q.Exec(ctx, query, payload, id)
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewRecordNotFoundError(id)
	}

	return nil
}

func (r *PaymentRepository) MarkEmailSent(ctx context.Context, id string) error {
	query := `UPDATE payments SET email_sent = true, updated_at = now() WHERE id = $1`

	result, err := r.q.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark email sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewRecordNotFoundError(id)
	}

	return nil
}

// CreditWallet flips the credited flag and increments the owner's balance
// in one transaction. The conditional UPDATE is the idempotency barrier:
// a second delivery of the same completion sees zero rows and backs off.
func (r *PaymentRepository) CreditWallet(ctx context.Context, id string, amount decimal.Decimal) (bool, error) {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin credit transaction: %w", err)
	}
	defer tx.Rollback(ctx)
	txr := r.WithTx(tx)

	flipQuery := `
		UPDATE payments
		SET credited = true, credited_amount = $1, credited_at = now(), updated_at = now()
		WHERE id = $2 AND credited = false
		RETURNING user_id
	`

	var userID *string
	err = txr.q.QueryRow(ctx, flipQuery, amount.String(), id).Scan(&userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to flip credited flag: %w", err)
	}

	// Guest checkouts have no wallet to credit; the flag flip alone
	// records the settlement.
	if userID != nil {
		creditQuery := `
			INSERT INTO wallets (user_id, balance, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (user_id)
			DO UPDATE SET balance = wallets.balance + EXCLUDED.balance, updated_at = now()
		`
		if _, err := txr.q.Exec(ctx, creditQuery, *userID, amount.String()); err != nil {
			return false, fmt.Errorf("failed to credit wallet: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit credit transaction: %w", err)
	}

	return true, nil
}

func (r *PaymentRepository) FindDueSubscriptions(ctx context.Context, deadline time.Time, afterID string, limit int) ([]application.DueSubscription, error) {
	query := `
		SELECT id, sub_next_billing_date
		FROM payments
		WHERE is_subscription
		  AND sub_is_active
		  AND sub_auto_renew
		  AND NOT sub_is_renewal
		  AND sub_next_billing_date <= $1
		  AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`

	rows, err := r.q.Query(ctx, query, deadline, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("query due subscriptions: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (application.DueSubscription, error) {
		var due application.DueSubscription
		err := row.Scan(&due.ID, &due.NextBillingDate)
		return due, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan due subscriptions: %w", err)
	}

	return results, nil
}

func (r *PaymentRepository) FindRenewalByParent(ctx context.Context, parentID string, since time.Time) (*domain.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE sub_parent_order_id = $1
		  AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1
	`

	row := r.q.QueryRow(ctx, query, parentID, since)
	return scanPaymentRecord(row, parentID)
}

// CancelStaleRenewal voids an aged-out renewal invoice. The status guard
// keeps a late settlement from being overwritten.
func (r *PaymentRepository) CancelStaleRenewal(ctx context.Context, id string) error {
	query := `
		UPDATE payments
		SET payment_status = $1, order_status = $2, updated_at = now()
		WHERE id = $3 AND payment_status IN ($4, $5)
	`

	_, err := r.q.Exec(ctx, query,
		string(domain.StatusCancelled), string(domain.DeriveOrderStatus(domain.StatusCancelled)),
		id, string(domain.StatusPending), string(domain.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("failed to cancel stale renewal: %w", err)
	}

	return nil
}

// AcquireRenewalLock is the compare-and-set that serializes renewal
// creation per subscription. A lock timestamp older than the lease counts
// as abandoned and is reclaimed.
func (r *PaymentRepository) AcquireRenewalLock(ctx context.Context, id string, now time.Time, lease time.Duration) (bool, error) {
	query := `
		UPDATE payments
		SET sub_renewal_lock = $1
		WHERE id = $2
		  AND (sub_renewal_lock IS NULL OR sub_renewal_lock < $3)
	`

	result, err := r.q.Exec(ctx, query, now, id, now.Add(-lease))
	if err != nil {
		return false, fmt.Errorf("failed to acquire renewal lock: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

func (r *PaymentRepository) ReleaseRenewalLock(ctx context.Context, id string) error {
	query := `UPDATE payments SET sub_renewal_lock = NULL WHERE id = $1`

	if _, err := r.q.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("failed to release renewal lock: %w", err)
	}

	return nil
}

func (r *PaymentRepository) LinkRenewal(ctx context.Context, parentID, renewalID string) error {
	query := `UPDATE payments SET sub_renewal_order_id = $1, updated_at = now() WHERE id = $2`

	result, err := r.q.Exec(ctx, query, renewalID, parentID)
	if err != nil {
		return fmt.Errorf("failed to link renewal: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewRecordNotFoundError(parentID)
	}

	return nil
}

// ActivateSubscription starts the billing cycle when the originating
// purchase settles. The NULL guard makes a redelivered completion a no-op.
func (r *PaymentRepository) ActivateSubscription(ctx context.Context, id string, next time.Time) error {
	query := `
		UPDATE payments
		SET sub_is_active = true, sub_next_billing_date = $1, updated_at = now()
		WHERE id = $2
		  AND is_subscription
		  AND sub_next_billing_date IS NULL
	`

	if _, err := r.q.Exec(ctx, query, next, id); err != nil {
		return fmt.Errorf("failed to activate subscription: %w", err)
	}

	return nil
}

// AdvanceBillingCycle moves the parent subscription to its next billing
// date after the linked renewal settles. The back-reference condition is
// the idempotency barrier against redelivered completions.
func (r *PaymentRepository) AdvanceBillingCycle(ctx context.Context, parentID, renewalID string, next time.Time) (bool, error) {
	query := `
		UPDATE payments
		SET sub_next_billing_date = $1, sub_renewal_order_id = NULL, updated_at = now()
		WHERE id = $2 AND sub_renewal_order_id = $3
	`

	result, err := r.q.Exec(ctx, query, next, parentID, renewalID)
	if err != nil {
		return false, fmt.Errorf("failed to advance billing cycle: %w", err)
	}

	return result.RowsAffected() == 1, nil
}

// FindAwaitingCallback returns non-terminal records whose gateway never
// called back, aged past the cutoff, for the status poll fallback.
func (r *PaymentRepository) FindAwaitingCallback(ctx context.Context, cutoff time.Time, limit int) ([]*domain.PaymentRecord, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE payment_status IN ($1, $2)
		  AND gateway->>'external_id' <> ''
		  AND NOT COALESCE((gateway->>'callback_received')::boolean, false)
		  AND created_at < $3
		ORDER BY created_at ASC
		LIMIT $4
	`

	rows, err := r.q.Query(ctx, query,
		string(domain.StatusPending), string(domain.StatusProcessing),
		cutoff, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query payments awaiting callback: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.PaymentRecord, error) {
		m, err := scanPaymentModel(row)
		if err != nil {
			return nil, err
		}
		return toDomainModel(m)
	})
	if err != nil {
		return nil, fmt.Errorf("scan payments awaiting callback: %w", err)
	}

	return results, nil
}

func scanPaymentModel(row pgx.Row) (*PaymentModel, error) {
	var m PaymentModel
	err := row.Scan(
		&m.ID, &m.UserID, &m.CustomerEmail, &m.Purpose,
		&m.OriginalAmount, &m.ServiceFee, &m.TotalAmount, &m.Currency,
		&m.PaymentStatus, &m.OrderStatus, &m.Gateway,
		&m.Credited, &m.CreditedAmount, &m.CreditedAt, &m.Credentials, &m.EmailSent,
		&m.ProductID, &m.VariantID, &m.Quantity,
		&m.IsSubscription, &m.SubIsActive, &m.SubNextBillingDate,
		&m.SubBillingPeriodDays, &m.SubAutoRenew,
		&m.SubParentOrderID, &m.SubIsRenewal, &m.SubRenewalAttempt,
		&m.SubRenewalLock, &m.SubRenewalOrderID,
		&m.CreatedAt, &m.UpdatedAt,
	)
	return &m, err
}

func scanPaymentRecord(row pgx.Row, ref string) (*domain.PaymentRecord, error) {
	m, err := scanPaymentModel(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewRecordNotFoundError(ref)
		}
		return nil, fmt.Errorf("failed to scan payment record: %w", err)
	}
	return toDomainModel(m)
}
