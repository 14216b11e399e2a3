package reminder

import "time"

// Reminder delivery states. A reminder walks pending → published → sent
// exactly once in the forward direction; published is the window between
// bus acknowledgment and the final mark, so crash recovery can tell "not
// yet on the bus" from "on the bus but not finalized".
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusSent      = "sent"
)

// Channel values a reminder can request.
const (
	ChannelLive    = "live"
	ChannelDurable = "durable"
	ChannelBoth    = "both"
)

type Reminder struct {
	ID        int64
	TaskID    int64
	UserID    int64
	TaskTitle string
	FireAt    time.Time
	Channel   string
	Status    string
}
