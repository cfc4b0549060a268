package notification

import "time"

type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
	StatusFrozen  Status = "frozen"
)

// Terminal reports whether the row may never be delivered again
// without an explicit revive back to pending.
func (s Status) Terminal() bool { return s == StatusSent || s == StatusFailed }

type Channel string

const (
	ChannelApp   Channel = "app"
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelApp, ChannelEmail, ChannelPush:
		return true
	}
	return false
}

type Type string

const (
	TypeReminder Type = "reminder"
	TypeOverdue  Type = "overdue"
)

// Payload carries the delivery-specific rendering data persisted with the row.
type Payload struct {
	Message string `json:"message"`
	To      string `json:"to,omitempty"`
	Title   string `json:"title,omitempty"`
}

type Notification struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	TaskID        int64      `json:"task_id"`
	Channel       Channel    `json:"channel"`
	Type          Type       `json:"type"`
	Status        Status     `json:"status"`
	ScheduledTime time.Time  `json:"scheduled_time"`
	SentTime      *time.Time `json:"sent_time"`
	RetryCount    int        `json:"retry_count"`
	Payload       Payload    `json:"payload"`
	LastError     string     `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Due is a claimed pending row joined with its task's current state.
// TaskStatus is nil when the owning task no longer exists.
type Due struct {
	Notification
	TaskStatus *string
	TaskTitle  string
}

// Event is the record broadcast to live app-channel subscribers.
type Event struct {
	ID      int64        `json:"id"`
	TaskID  int64        `json:"task_id"`
	Channel Channel      `json:"channel"`
	Title   string       `json:"title"`
	Payload EventPayload `json:"payload"`
}

type EventPayload struct {
	Message string `json:"message"`
}

func (n *Notification) Event() Event {
	return Event{
		ID:      n.ID,
		TaskID:  n.TaskID,
		Channel: n.Channel,
		Title:   n.Payload.Title,
		Payload: EventPayload{Message: n.Payload.Message},
	}
}

type Clock interface {
	Now() time.Time
}
