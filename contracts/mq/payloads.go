package mq

import "time"

// TaskLifecyclePayload rides on task.created/updated/completed/deleted
// events. OldValues is only populated for updates.
type TaskLifecyclePayload struct {
	Title     string         `json:"title"`
	DueDate   *time.Time     `json:"due_date,omitempty"`
	Completed bool           `json:"completed"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
}

// RecurrenceTriggerPayload is emitted when a recurring task is completed.
// InstanceDate is the occurrence that was just completed ("" means the
// parent itself, whose original due date seeds the next computation).
type RecurrenceTriggerPayload struct {
	ParentTaskID int64  `json:"parent_task_id"`
	UserID       int64  `json:"user_id"`
	InstanceDate string `json:"instance_date,omitempty"` // YYYY-MM-DD
}

// ReminderDuePayload is emitted by the scheduler for each due reminder.
type ReminderDuePayload struct {
	ReminderID int64     `json:"reminder_id"`
	TaskID     int64     `json:"task_id"`
	UserID     int64     `json:"user_id"`
	TaskTitle  string    `json:"task_title"`
	FireAt     time.Time `json:"fire_at"`
	Channel    string    `json:"channel"` // live / durable / both
}
