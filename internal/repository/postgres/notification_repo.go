package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taskpilot/notifier/internal/domain/notification"
)

var _ notification.Repo = (*NotificationRepoImpl)(nil)

type NotificationRepoImpl struct {
	db *DB
}

func NewNotificationRepo(db *DB) *NotificationRepoImpl { return &NotificationRepoImpl{db: db} }

const notifCols = `id, user_id, task_id, channel, type, status, scheduled_time, sent_time, retry_count, payload, last_error, created_at, updated_at`

const (
	qNotifInsert = `
INSERT INTO notifications (user_id, task_id, channel, type, status, scheduled_time, retry_count, payload)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING id, created_at, updated_at;
`

	qNotifUpdateStatus = `
UPDATE notifications
SET status = $2, sent_time = $3, last_error = $4, updated_at = now()
WHERE id = $1;
`

	qNotifUpdateSchedule = `
UPDATE notifications
SET scheduled_time = $2, retry_count = $3, last_error = $4, updated_at = now()
WHERE id = $1;
`

	qNotifFreeze = `
UPDATE notifications
SET status = 'frozen', updated_at = now()
WHERE task_id = $1 AND status = 'pending';
`

	// Rows whose scheduled_time already passed stay frozen: reopening an old
	// task must not fire a burst of stale reminders.
	qNotifRevive = `
UPDATE notifications
SET status = 'pending', updated_at = now()
WHERE task_id = $1 AND status = 'frozen' AND scheduled_time > $2;
`

	qNotifDeleteAll = `DELETE FROM notifications WHERE task_id = $1;`

	qNotifDeletePendingByChannel = `
DELETE FROM notifications
WHERE task_id = $1 AND channel = $2 AND status = 'pending';
`

	qNotifNonTerminalByTask = `
SELECT ` + notifCols + `
FROM notifications
WHERE task_id = $1 AND status IN ('pending', 'frozen')
ORDER BY id;
`

	qNotifTodayByUser = `
SELECT ` + notifCols + `
FROM notifications
WHERE user_id = $1 AND scheduled_time >= $2 AND scheduled_time < $3
ORDER BY scheduled_time DESC;
`

	qNotifFetchDue = `
SELECT n.id, n.user_id, n.task_id, n.channel, n.type, n.status,
       n.scheduled_time, n.sent_time, n.retry_count, n.payload, n.last_error,
       n.created_at, n.updated_at,
       t.status, COALESCE(t.title, '')
FROM notifications n
LEFT JOIN tasks t ON t.id = n.task_id
WHERE n.status = 'pending' AND n.scheduled_time <= $1
ORDER BY n.scheduled_time
FOR UPDATE OF n SKIP LOCKED
LIMIT $2;
`

	qNotifLease = `
UPDATE notifications
SET scheduled_time = $2, updated_at = now()
WHERE id = ANY($1);
`
)

func scanNotif(row pgx.Row, n *notification.Notification) error {
	var payload []byte
	if err := row.Scan(
		&n.ID,
		&n.UserID,
		&n.TaskID,
		&n.Channel,
		&n.Type,
		&n.Status,
		&n.ScheduledTime,
		&n.SentTime,
		&n.RetryCount,
		&payload,
		&n.LastError,
		&n.CreatedAt,
		&n.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("scan notification: %w", err)
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &n.Payload); err != nil {
			return fmt.Errorf("decode payload: %w", err)
		}
	}
	return nil
}

func (r *NotificationRepoImpl) Insert(ctx context.Context, n *notification.Notification) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if n.Status == "" {
		n.Status = notification.StatusPending
	}
	payload, err := json.Marshal(n.Payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	eq := r.db.execQueryer(ctx)
	row := eq.QueryRow(ctx, qNotifInsert,
		n.UserID, n.TaskID, n.Channel, n.Type, n.Status, n.ScheduledTime, n.RetryCount, payload)
	if err := row.Scan(&n.ID, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) UpdateStatus(ctx context.Context, id int64, st notification.Status, sentAt *time.Time, lastErr string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qNotifUpdateStatus, id, st, sentAt, lastErr)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepoImpl) UpdateSchedule(ctx context.Context, id int64, next time.Time, retryCount int, lastErr string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	eq := r.db.execQueryer(ctx)
	cmd, err := eq.Exec(ctx, qNotifUpdateSchedule, id, next, retryCount, lastErr)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *NotificationRepoImpl) FreezeAllForTask(ctx context.Context, taskID int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qNotifFreeze, taskID)
	if err != nil {
		return fmt.Errorf("freeze notifications: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) ReviveFrozenForTask(ctx context.Context, taskID int64, now time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qNotifRevive, taskID, now)
	if err != nil {
		return fmt.Errorf("revive notifications: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) DeleteAllForTask(ctx context.Context, taskID int64) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qNotifDeleteAll, taskID)
	if err != nil {
		return fmt.Errorf("delete notifications: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) DeletePendingByChannel(ctx context.Context, taskID int64, ch notification.Channel) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	_, err := r.db.execQueryer(ctx).Exec(ctx, qNotifDeletePendingByChannel, taskID, ch)
	if err != nil {
		return fmt.Errorf("delete pending by channel: %w", err)
	}
	return nil
}

func (r *NotificationRepoImpl) ListNonTerminalByTask(ctx context.Context, taskID int64) ([]*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.execQueryer(ctx).Query(ctx, qNotifNonTerminalByTask, taskID)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := scanNotif(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *NotificationRepoImpl) ListTodayByUser(ctx context.Context, userID int64, now time.Time) ([]*notification.Notification, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	day := now.UTC().Truncate(24 * time.Hour)
	rows, err := r.db.Pool.Query(ctx, qNotifTodayByUser, userID, day, day.Add(24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("query today notifications: %w", err)
	}
	defer rows.Close()

	var out []*notification.Notification
	for rows.Next() {
		var n notification.Notification
		if err := scanNotif(rows, &n); err != nil {
			return nil, err
		}
		out = append(out, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return out, nil
}

func (r *NotificationRepoImpl) FetchDuePending(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]*notification.Due, error) {
	if limit <= 0 {
		limit = 50
	}
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, qNotifFetchDue, now, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch due: %w", err)
	}

	var (
		out []*notification.Due
		ids []int64
	)
	for rows.Next() {
		var (
			d       notification.Due
			payload []byte
		)
		if err := rows.Scan(
			&d.ID, &d.UserID, &d.TaskID, &d.Channel, &d.Type, &d.Status,
			&d.ScheduledTime, &d.SentTime, &d.RetryCount, &payload, &d.LastError,
			&d.CreatedAt, &d.UpdatedAt,
			&d.TaskStatus, &d.TaskTitle,
		); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan due: %w", err)
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &d.Payload); err != nil {
				rows.Close()
				return nil, fmt.Errorf("decode payload: %w", err)
			}
		}
		out = append(out, &d)
		ids = append(ids, d.ID)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.Exec(ctx, qNotifLease, ids, now.Add(lease)); err != nil {
		return nil, fmt.Errorf("lease claimed rows: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return out, nil
}
