package task

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"taskpulse/internal/recurrence"
)

// ErrNotFound is returned when the originating task or its rule is gone,
// e.g. deleted between trigger and consumption.
var ErrNotFound = errors.New("recurring task not found")

type Repository struct {
	db     *pgxpool.Pool
	logger *zap.Logger
}

func NewRepository(db *pgxpool.Pool, logger *zap.Logger) *Repository {
	return &Repository{db: db, logger: logger}
}

// GetRecurringTask loads a recurring task together with its rule.
func (r *Repository) GetRecurringTask(ctx context.Context, taskID int64) (*RecurringTask, error) {
	query := `
        SELECT t.id, t.user_id, t.title, COALESCE(t.description, ''), t.priority, t.due_date,
               r.frequency, r.interval, r.days_of_week, r.day_of_month, r.month_of_year,
               r.end_date, r.exhausted
        FROM tasks t
        JOIN recurrence_rules r ON r.task_id = t.id
        WHERE t.id = $1
    `

	var (
		t          RecurringTask
		frequency  string
		interval   int
		daysOfWeek []int32
		dayOfMonth *int
		monthOfYr  *int
		endDate    *time.Time
	)

	err := r.db.QueryRow(ctx, query, taskID).Scan(
		&t.ID,
		&t.UserID,
		&t.Title,
		&t.Description,
		&t.Priority,
		&t.DueDate,
		&frequency,
		&interval,
		&daysOfWeek,
		&dayOfMonth,
		&monthOfYr,
		&endDate,
		&t.Exhausted,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		r.logger.Error("Failed to load recurring task",
			zap.Int64("task_id", taskID),
			zap.Error(err),
		)
		return nil, err
	}

	rule := recurrence.Rule{
		Frequency: recurrence.Frequency(frequency),
		Interval:  interval,
		EndDate:   endDate,
	}
	for _, d := range daysOfWeek {
		rule.DaysOfWeek = append(rule.DaysOfWeek, time.Weekday(d))
	}
	if dayOfMonth != nil {
		rule.DayOfMonth = *dayOfMonth
	}
	if monthOfYr != nil {
		rule.MonthOfYear = time.Month(*monthOfYr)
	}
	t.Rule = rule

	return &t, nil
}

// MarkExhausted flags a recurring task whose rule has reached its end
// date. No further instances are generated for it.
func (r *Repository) MarkExhausted(ctx context.Context, taskID int64) error {
	query := `
        UPDATE recurrence_rules
        SET exhausted = TRUE, updated_at = NOW()
        WHERE task_id = $1
    `
	_, err := r.db.Exec(ctx, query, taskID)
	if err != nil {
		r.logger.Error("Failed to mark recurring task exhausted",
			zap.Int64("task_id", taskID),
			zap.Error(err),
		)
		return err
	}

	r.logger.Info("Recurring task marked exhausted",
		zap.Int64("task_id", taskID),
	)
	return nil
}
