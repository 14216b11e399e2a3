package task

import (
	"time"

	"taskpulse/internal/recurrence"
)

// RecurringTask is the originating task of a recurrence.trigger event,
// loaded together with its rule.
type RecurringTask struct {
	ID          int64
	UserID      int64
	Title       string
	Description string
	Priority    string
	DueDate     *time.Time
	Exhausted   bool
	Rule        recurrence.Rule
}

// Instance is a generated occurrence of a recurring task. At most one
// instance exists per (parent_task_id, instance_date); that pair is the
// idempotency key for recurrence generation.
type Instance struct {
	ID           int64     `json:"id"`
	ParentTaskID int64     `json:"parent_task_id"`
	InstanceDate string    `json:"instance_date"` // YYYY-MM-DD
	Title        string    `json:"title"`
	DueDate      time.Time `json:"due_date"`
	Existing     bool      `json:"existing"` // true when redelivery hit an already-created row
}
