package hooks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/taskpilot/notifier/internal/domain/notification"
	"github.com/taskpilot/notifier/internal/domain/task"
	"github.com/taskpilot/notifier/internal/repository/postgres"
)

var (
	ErrInvalidDeadline = errors.New("deadline required")
	ErrInvalidChannel  = errors.New("invalid channel")
	ErrInvalidStatus   = errors.New("invalid status")
)

// Service materializes and maintains notification rows in reaction to the
// task lifecycle. It is invoked synchronously by the external task CRUD
// layer; validation failures are returned to that caller before any row is
// written.
type Service struct {
	TX     postgres.Transactor
	Notifs notification.Repo
	Tasks  task.Reader
	Clock  notification.Clock
	Log    *zap.Logger

	// ReminderLead is how long before the deadline the reminder fires.
	ReminderLead time.Duration
}

func validChannels(channels []notification.Channel) error {
	for _, ch := range channels {
		if !ch.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidChannel, ch)
		}
	}
	return nil
}

// TaskCreated inserts the pending schedule for every opted-in channel:
// a reminder at deadline-lead when that still lies in the future, and an
// overdue row at the deadline itself. emailTo is the recipient for the
// email channel; other channels resolve the recipient downstream.
func (s *Service) TaskCreated(ctx context.Context, t *task.Task, channels []notification.Channel, emailTo string) error {
	if t.Deadline.IsZero() {
		return ErrInvalidDeadline
	}
	if err := validChannels(channels); err != nil {
		return err
	}
	if _, _, err := s.Tasks.StatusAndTitle(ctx, t.ID); err != nil {
		return fmt.Errorf("task lookup: %w", err)
	}

	now := s.Clock.Now().UTC()
	return s.TX.WithTx(ctx, func(txCtx context.Context) error {
		for _, ch := range channels {
			for _, n := range s.scheduleFor(t, ch, emailTo, now) {
				if err := s.Notifs.Insert(txCtx, n); err != nil {
					return fmt.Errorf("insert %s/%s: %w", ch, n.Type, err)
				}
			}
		}
		return nil
	})
}

// TaskUpdated reconciles the desired channel set against the existing
// non-terminal rows: pending rows for dropped channels are deleted (sent and
// failed history is never touched), new channels get a fresh schedule, and
// retained channels are retimed to the new deadline with their retry_count
// kept.
func (s *Service) TaskUpdated(ctx context.Context, t *task.Task, channels []notification.Channel, emailTo string) error {
	if t.Deadline.IsZero() {
		return ErrInvalidDeadline
	}
	if err := validChannels(channels); err != nil {
		return err
	}
	if _, _, err := s.Tasks.StatusAndTitle(ctx, t.ID); err != nil {
		return fmt.Errorf("task lookup: %w", err)
	}

	desired := make(map[notification.Channel]bool, len(channels))
	for _, ch := range channels {
		desired[ch] = true
	}

	now := s.Clock.Now().UTC()
	return s.TX.WithTx(ctx, func(txCtx context.Context) error {
		existing, err := s.Notifs.ListNonTerminalByTask(txCtx, t.ID)
		if err != nil {
			return fmt.Errorf("list existing: %w", err)
		}
		have := make(map[notification.Channel][]*notification.Notification)
		for _, n := range existing {
			have[n.Channel] = append(have[n.Channel], n)
		}

		for ch := range have {
			if !desired[ch] {
				if err := s.Notifs.DeletePendingByChannel(txCtx, t.ID, ch); err != nil {
					return fmt.Errorf("drop channel %s: %w", ch, err)
				}
			}
		}

		for _, ch := range channels {
			rows, ok := have[ch]
			if !ok {
				for _, n := range s.scheduleFor(t, ch, emailTo, now) {
					if err := s.Notifs.Insert(txCtx, n); err != nil {
						return fmt.Errorf("insert %s/%s: %w", ch, n.Type, err)
					}
				}
				continue
			}
			for _, n := range rows {
				if n.Status != notification.StatusPending {
					continue
				}
				next := t.Deadline
				if n.Type == notification.TypeReminder {
					next = t.Deadline.Add(-s.ReminderLead)
				}
				if err := s.Notifs.UpdateSchedule(txCtx, n.ID, next, n.RetryCount, n.LastError); err != nil {
					return fmt.Errorf("retime %s/%s: %w", ch, n.Type, err)
				}
			}
		}
		return nil
	})
}

// TaskStatusChanged freezes the pending schedule when a task completes and
// revives frozen rows that are still in the future when it reopens.
func (s *Service) TaskStatusChanged(ctx context.Context, taskID int64, st task.Status) error {
	if !st.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, st)
	}
	switch st {
	case task.StatusDone:
		return s.Notifs.FreezeAllForTask(ctx, taskID)
	default:
		return s.Notifs.ReviveFrozenForTask(ctx, taskID, s.Clock.Now().UTC())
	}
}

// TaskDeleted cascades, terminal rows included.
func (s *Service) TaskDeleted(ctx context.Context, taskID int64) error {
	return s.Notifs.DeleteAllForTask(ctx, taskID)
}

func (s *Service) scheduleFor(t *task.Task, ch notification.Channel, emailTo string, now time.Time) []*notification.Notification {
	to := ""
	if ch == notification.ChannelEmail {
		to = emailTo
	}

	var out []*notification.Notification
	if reminderAt := t.Deadline.Add(-s.ReminderLead); reminderAt.After(now) {
		out = append(out, &notification.Notification{
			UserID:        t.UserID,
			TaskID:        t.ID,
			Channel:       ch,
			Type:          notification.TypeReminder,
			Status:        notification.StatusPending,
			ScheduledTime: reminderAt,
			Payload: notification.Payload{
				Message: fmt.Sprintf("Task %q is due at %s", t.Title, t.Deadline.UTC().Format(time.RFC3339)),
				To:      to,
				Title:   t.Title,
			},
		})
	}
	out = append(out, &notification.Notification{
		UserID:        t.UserID,
		TaskID:        t.ID,
		Channel:       ch,
		Type:          notification.TypeOverdue,
		Status:        notification.StatusPending,
		ScheduledTime: t.Deadline,
		Payload: notification.Payload{
			Message: fmt.Sprintf("Task %q is overdue!", t.Title),
			To:      to,
			Title:   t.Title,
		},
	})
	return out
}
