package task

import "time"

type Status string

const (
	StatusOpen Status = "open"
	StatusDone Status = "done"
)

func (s Status) Valid() bool { return s == StatusOpen || s == StatusDone }

// Task is owned by the external task service; this engine only reads it
// and reacts to its lifecycle hooks.
type Task struct {
	ID       int64     `json:"id"`
	UserID   int64     `json:"user_id"`
	Title    string    `json:"title"`
	Deadline time.Time `json:"deadline"`
	Status   Status    `json:"status"`
}
