package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/streamvault/billing-gateway/internal/domain"
	"github.com/streamvault/billing-gateway/internal/infrastructure/persistence"
)

// OutboxRepository stores fulfillment notifications until the outbox
// worker delivers them.
type OutboxRepository struct {
	q persistence.Executor
}

func NewOutboxRepository(db *persistence.DB) *OutboxRepository {
	return &OutboxRepository{q: db.Pool}
}

func (r *OutboxRepository) Enqueue(ctx context.Context, msg *domain.OutboxMessage) error {
	query := `
		INSERT INTO outbox_messages (id, kind, payment_id, recipient, payload, attempts, next_attempt_at, sent_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err := r.q.Exec(ctx, query,
		msg.ID,
		msg.Kind,
		msg.PaymentID,
		msg.Recipient,
		msg.Payload,
		msg.Attempts,
		msg.NextAttemptAt,
		msg.SentAt,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox message: %w", err)
	}

	return nil
}

// FindDue excludes messages at the attempt cap; they stay parked unsent
// until someone looks at them.
func (r *OutboxRepository) FindDue(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*domain.OutboxMessage, error) {
	query := `
		SELECT id, kind, payment_id, recipient, payload, attempts, next_attempt_at, sent_at, created_at
		FROM outbox_messages
		WHERE sent_at IS NULL
		  AND attempts < $1
		  AND next_attempt_at <= $2
		ORDER BY next_attempt_at ASC
		LIMIT $3
	`

	rows, err := r.q.Query(ctx, query, maxAttempts, now, limit)
	if err != nil {
		return nil, fmt.Errorf("query due outbox messages: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*domain.OutboxMessage, error) {
		var m OutboxModel
		err := row.Scan(
			&m.ID, &m.Kind, &m.PaymentID, &m.Recipient, &m.Payload,
			&m.Attempts, &m.NextAttemptAt, &m.SentAt, &m.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		return &domain.OutboxMessage{
			ID:            m.ID,
			Kind:          m.Kind,
			PaymentID:     m.PaymentID,
			Recipient:     m.Recipient,
			Payload:       m.Payload,
			Attempts:      m.Attempts,
			NextAttemptAt: m.NextAttemptAt,
			SentAt:        m.SentAt,
			CreatedAt:     m.CreatedAt,
		}, nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan due outbox messages: %w", err)
	}

	return results, nil
}

func (r *OutboxRepository) MarkSent(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE outbox_messages SET sent_at = $1 WHERE id = $2`

	result, err := r.q.Exec(ctx, query, at, id)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message sent: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewRecordNotFoundError(id)
	}

	return nil
}

func (r *OutboxRepository) ScheduleRetry(ctx context.Context, id string, attempts int, next time.Time) error {
	query := `UPDATE outbox_messages SET attempts = $1, next_attempt_at = $2 WHERE id = $3`

	result, err := r.q.Exec(ctx, query, attempts, next, id)
	if err != nil {
		return fmt.Errorf("failed to schedule outbox retry: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewRecordNotFoundError(id)
	}

	return nil
}
