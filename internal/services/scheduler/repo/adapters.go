package repo

import (
	"context"
	"time"

	"github.com/taskpilot/notifier/internal/domain/notification"
)

// Store narrows the notification repo to the operations a tick performs.
type Store struct{ R notification.Repo }

func (a Store) FetchDuePending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*notification.Due, error) {
	return a.R.FetchDuePending(ctx, limit, now, lease)
}

func (a Store) UpdateStatus(ctx context.Context, id int64, st notification.Status, sentAt *time.Time, lastErr string) error {
	return a.R.UpdateStatus(ctx, id, st, sentAt, lastErr)
}

func (a Store) UpdateSchedule(ctx context.Context, id int64, next time.Time, retryCount int, lastErr string) error {
	return a.R.UpdateSchedule(ctx, id, next, retryCount, lastErr)
}
