package deadletter

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"taskpulse/pkg/metrics"
)

// RawEventID derives a stable dedup key for messages too garbled to carry
// their own event_id, so a redelivery dead-letters only once.
func RawEventID(raw []byte) string {
	sum := sha256.Sum256(raw)
	return fmt.Sprintf("raw-%x", sum[:8])
}

// Repository stores events that cannot be processed automatically so an
// operator can inspect and replay them. A redelivered event dead-letters
// at most once thanks to the unique event_id.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(
	ctx context.Context,
	eventID, routingKey string,
	payload json.RawMessage,
	errorMsg string,
) error {
	query := `
		INSERT INTO dead_letter_events (event_id, routing_key, payload, error_message, status)
		VALUES ($1, $2, $3, $4, 'pending')
		ON CONFLICT (event_id) DO NOTHING
	`
	_, err := r.db.Exec(ctx, query, eventID, routingKey, payload, errorMsg)
	if err == nil {
		metrics.IncrementDeadLettered(routingKey)
	}
	return err
}

// ListPending returns dead-lettered events awaiting manual handling.
func (r *Repository) ListPending(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, event_id, routing_key, payload, error_message, status, created_at
		FROM dead_letter_events
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.RoutingKey, &rec.Payload, &rec.ErrorMessage, &rec.Status, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// GetPending returns one pending dead-lettered event by id, or
// pgx.ErrNoRows if it does not exist or was already resolved.
func (r *Repository) GetPending(ctx context.Context, id int64) (*Record, error) {
	query := `
		SELECT id, event_id, routing_key, payload, error_message, status, created_at
		FROM dead_letter_events
		WHERE id = $1 AND status = 'pending'
	`
	var rec Record
	err := r.db.QueryRow(ctx, query, id).
		Scan(&rec.ID, &rec.EventID, &rec.RoutingKey, &rec.Payload, &rec.ErrorMessage, &rec.Status, &rec.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// MarkResolved marks a dead-lettered event as handled by the operator.
func (r *Repository) MarkResolved(ctx context.Context, id int64) error {
	query := `
		UPDATE dead_letter_events
		SET status = 'resolved', updated_at = NOW()
		WHERE id = $1
	`
	_, err := r.db.Exec(ctx, query, id)
	return err
}
