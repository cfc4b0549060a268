package notification

import (
	"context"
	"time"
)

type Repo interface {
	Insert(ctx context.Context, n *Notification) error
	UpdateStatus(ctx context.Context, id int64, st Status, sentAt *time.Time, lastErr string) error
	UpdateSchedule(ctx context.Context, id int64, next time.Time, retryCount int, lastErr string) error
	FreezeAllForTask(ctx context.Context, taskID int64) error
	ReviveFrozenForTask(ctx context.Context, taskID int64, now time.Time) error
	DeleteAllForTask(ctx context.Context, taskID int64) error
	DeletePendingByChannel(ctx context.Context, taskID int64, ch Channel) error
	ListNonTerminalByTask(ctx context.Context, taskID int64) ([]*Notification, error)
	ListTodayByUser(ctx context.Context, userID int64, now time.Time) ([]*Notification, error)

	// FetchDuePending claims up to limit pending rows with scheduled_time <= now,
	// ordered by scheduled_time ascending. Claimed rows are leased: their
	// scheduled_time is pushed forward by lease inside the same transaction so
	// a concurrent scheduler (or a restart after a crash) cannot double-claim
	// them until the lease expires.
	FetchDuePending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*Due, error)
}

// Sender is the uniform delivery contract implemented per channel.
type Sender interface {
	Send(ctx context.Context, n *Notification) error
}
