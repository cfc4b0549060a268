package senders

import (
	"context"

	"github.com/taskpilot/notifier/internal/domain/notification"
	"github.com/taskpilot/notifier/internal/hub"
)

// AppSender broadcasts to the live fan-out hub. Delivery is fire-and-forget:
// a user with no connected streams simply misses the event (the today
// endpoint backfills on reconnect), so the send always reports success.
type AppSender struct {
	Hub *hub.Hub
}

var _ notification.Sender = (*AppSender)(nil)

func (s *AppSender) Send(_ context.Context, n *notification.Notification) error {
	s.Hub.Publish(n.UserID, n.Event())
	return nil
}
