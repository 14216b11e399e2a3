package audit

import (
	"encoding/json"
	"time"
)

// Record is one append-only audit entry. Records are created exclusively
// by the lifecycle consumer and never updated or deleted.
type Record struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	EntityType string          `json:"entity_type"`
	EntityID   int64           `json:"entity_id"`
	UserID     int64           `json:"user_id"`
	Action     string          `json:"action"`
	OldValues  json.RawMessage `json:"old_values,omitempty"`
	NewValues  json.RawMessage `json:"new_values,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}
