package reminder

import (
	"context"
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

// ListDue returns pending reminders whose fire_at has passed, joined with
// the task title the notification will carry.
func (r *Repository) ListDue(ctx context.Context, now time.Time, limit int) ([]Reminder, error) {
	start := time.Now()
	query := `
        SELECT rm.id, rm.task_id, rm.user_id, COALESCE(t.title, ''), rm.fire_at, rm.channel, rm.status
        FROM reminders rm
        LEFT JOIN tasks t ON t.id = rm.task_id
        WHERE rm.status = 'pending' AND rm.fire_at <= $1
        ORDER BY rm.fire_at ASC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, query, now, limit)
	if err != nil {
		r.logger.Error("Failed to query due reminders", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var due []Reminder
	for rows.Next() {
		var rem Reminder
		if err := rows.Scan(&rem.ID, &rem.TaskID, &rem.UserID, &rem.TaskTitle, &rem.FireAt, &rem.Channel, &rem.Status); err != nil {
			return nil, err
		}
		due = append(due, rem)
	}
	metrics.RecordDBQueryDuration("select", "reminders", time.Since(start))
	return due, rows.Err()
}

// MarkPublished transitions pending → published. Guarded by status in the
// WHERE clause so a concurrent or repeated scan cannot double-advance.
func (r *Repository) MarkPublished(ctx context.Context, id int64) error {
	query := `
        UPDATE reminders
        SET status = 'published', updated_at = NOW()
        WHERE id = $1 AND status = 'pending'
    `
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// MarkSent transitions published → sent, the terminal state. A sent
// reminder is never scanned again.
func (r *Repository) MarkSent(ctx context.Context, id int64) error {
	query := `
        UPDATE reminders
        SET status = 'sent', sent_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND status = 'published'
    `
	_, err := r.db.Exec(ctx, query, id)
	return err
}

// FinalizeStalePublished resumes after a crash between publish and the
// final mark: the bus acknowledged those events, so the rows just need
// finalizing, not re-publishing.
func (r *Repository) FinalizeStalePublished(ctx context.Context) (int64, error) {
	query := `
        UPDATE reminders
        SET status = 'sent', sent_at = NOW(), updated_at = NOW()
        WHERE status = 'published'
    `
	tag, err := r.db.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
