package postgres

import (
	"context"
	"fmt"

	"github.com/streamvault/billing-gateway/internal/domain"
	"github.com/streamvault/billing-gateway/internal/infrastructure/persistence"
)

// WebhookEventRepository is the append-only audit log of inbound gateway
// notifications. Rows are inserted before authenticity checks so rejected
// deliveries leave evidence too.
type WebhookEventRepository struct {
	q persistence.Executor
}

func NewWebhookEventRepository(db *persistence.DB) *WebhookEventRepository {
	return &WebhookEventRepository{q: db.Pool}
}

func (r *WebhookEventRepository) Insert(ctx context.Context, event *domain.WebhookEvent) error {
	query := `
		INSERT INTO webhook_events (id, provider, event_type, payload, source_ip, processed, error, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.Exec(ctx, query,
		event.ID,
		event.Provider,
		event.EventType,
		event.Payload,
		event.SourceIP,
		event.Processed,
		event.Error,
		event.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert webhook event: %w", err)
	}

	return nil
}

func (r *WebhookEventRepository) MarkProcessed(ctx context.Context, id string, processed bool, procErr string) error {
	query := `UPDATE webhook_events SET processed = $1, error = $2 WHERE id = $3`

	result, err := r.q.Exec(ctx, query, processed, procErr, id)
	if err != nil {
		return fmt.Errorf("failed to mark webhook event processed: %w", err)
	}
	if result.RowsAffected() == 0 {
		return domain.NewRecordNotFoundError(id)
	}

	return nil
}
