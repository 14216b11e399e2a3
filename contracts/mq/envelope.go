package mq

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types carried on the bus. The routing key of a message is always
// its event type.
const (
	EventTaskCreated       = "task.created"
	EventTaskUpdated       = "task.updated"
	EventTaskCompleted     = "task.completed"
	EventTaskDeleted       = "task.deleted"
	EventRecurrenceTrigger = "recurrence.trigger"
	EventReminderDue       = "reminder.due"
)

// Envelope is the canonical wire shape for every published fact.
// Envelopes are never mutated after publish; consumers treat them as
// facts, not commands.
type Envelope struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	UserID     int64           `json:"user_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope builds an envelope with a fresh event_id and publish
// timestamp. The payload is serialized once, here.
func NewEnvelope(eventType, entityType string, entityID, userID int64, payload any) (Envelope, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, err
		}
		raw = data
	}
	return Envelope{
		EventID:    uuid.NewString(),
		EventType:  eventType,
		EntityType: entityType,
		EntityID:   entityID,
		UserID:     userID,
		OccurredAt: time.Now().UTC(),
		Payload:    raw,
	}, nil
}

// IsTaskLifecycle reports whether the event type belongs to the
// task-events channel.
func IsTaskLifecycle(eventType string) bool {
	switch eventType {
	case EventTaskCreated, EventTaskUpdated, EventTaskCompleted, EventTaskDeleted:
		return true
	}
	return false
}
