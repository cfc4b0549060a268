package senders

import (
	"context"

	"github.com/taskpilot/notifier/internal/domain/notification"
	"github.com/taskpilot/notifier/internal/obs/retry"
	kafkax "github.com/taskpilot/notifier/internal/repository/kafka"
)

// PushSender hands the delivery to the mobile-push gateway topic. The broker
// write is retried in-process with the kafka policy; exhausting it surfaces
// as a failed attempt and falls under the scheduler's persisted backoff.
type PushSender struct {
	Events *kafkax.PushEvents
	Policy retry.Policy
}

var _ notification.Sender = (*PushSender)(nil)

func (s *PushSender) Send(ctx context.Context, n *notification.Notification) error {
	return retry.Do(ctx, func() error {
		return s.Events.PublishDelivery(ctx, n)
	}, s.Policy)
}
