package kafka

import (
	"context"
	"time"

	"github.com/taskpilot/notifier/internal/domain/notification"
)

// PushDelivery is the envelope handed to the downstream mobile-push gateway,
// which owns the FCM/APNS transport.
type PushDelivery struct {
	NotificationID int64     `json:"notification_id"`
	TaskID         int64     `json:"task_id"`
	UserID         int64     `json:"user_id"`
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	At             time.Time `json:"at"`
}

type PushEvents struct {
	p *Producer
}

func NewPushEvents(p *Producer) *PushEvents { return &PushEvents{p: p} }

func (e *PushEvents) PublishDelivery(ctx context.Context, n *notification.Notification) error {
	return e.p.PublishJSON(ctx, KeyFromInt64(n.UserID), PushDelivery{
		NotificationID: n.ID,
		TaskID:         n.TaskID,
		UserID:         n.UserID,
		Type:           string(n.Type),
		Title:          n.Payload.Title,
		Message:        n.Payload.Message,
		At:             time.Now().UTC(),
	})
}
