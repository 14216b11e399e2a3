package deadletter

import (
	"encoding/json"
	"time"
)

type Record struct {
	ID           int64
	EventID      string
	RoutingKey   string
	Payload      json.RawMessage
	ErrorMessage string
	Status       string
	CreatedAt    time.Time
}
