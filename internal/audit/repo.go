package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskpulse/pkg/metrics"
)

type Repository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewRepository(db *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// Insert writes one audit record keyed by event_id. The write is a
// conditional insert: a record that already exists (redelivery) is a
// no-op. Returns whether a row was actually written.
func (r *Repository) Insert(ctx context.Context, rec *Record) (bool, error) {
	start := time.Now()
	query := `
        INSERT INTO audit_log (event_id, entity_type, entity_id, user_id, action, old_values, new_values, recorded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (event_id) DO NOTHING
    `

	tag, err := r.db.Exec(ctx, query,
		rec.EventID,
		rec.EntityType,
		rec.EntityID,
		rec.UserID,
		rec.Action,
		nullableJSON(rec.OldValues),
		nullableJSON(rec.NewValues),
		rec.RecordedAt,
	)
	metrics.RecordDBQueryDuration("insert", "audit_log", time.Since(start))
	if err != nil {
		r.logger.Error("Failed to insert audit record",
			zap.String("event_id", rec.EventID),
			zap.Error(err),
		)
		return false, err
	}

	inserted := tag.RowsAffected() > 0
	if inserted {
		metrics.IncrementAuditRecords(rec.Action, "inserted")
	} else {
		metrics.IncrementAuditRecords(rec.Action, "duplicate")
	}
	return inserted, nil
}

// ListByEntity returns the audit trail for one entity, newest first.
func (r *Repository) ListByEntity(ctx context.Context, entityType string, entityID int64, limit int) ([]Record, error) {
	query := `
        SELECT id, event_id, entity_type, entity_id, user_id, action, old_values, new_values, recorded_at
        FROM audit_log
        WHERE entity_type = $1 AND entity_id = $2
        ORDER BY recorded_at DESC
        LIMIT $3
    `
	return r.queryRecords(ctx, query, entityType, entityID, limit)
}

// ListByUser returns every audit record for a user, newest first.
func (r *Repository) ListByUser(ctx context.Context, userID int64, limit int) ([]Record, error) {
	query := `
        SELECT id, event_id, entity_type, entity_id, user_id, action, old_values, new_values, recorded_at
        FROM audit_log
        WHERE user_id = $1
        ORDER BY recorded_at DESC
        LIMIT $2
    `
	return r.queryRecords(ctx, query, userID, limit)
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to query audit records", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.ID,
			&rec.EventID,
			&rec.EntityType,
			&rec.EntityID,
			&rec.UserID,
			&rec.Action,
			&rec.OldValues,
			&rec.NewValues,
			&rec.RecordedAt,
		); err != nil {
			r.logger.Error("Failed to scan audit row", zap.Error(err))
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return raw
}
