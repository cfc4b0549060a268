package scheduler

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/taskpilot/notifier/internal/domain/notification"
	"github.com/taskpilot/notifier/internal/domain/task"
	"github.com/taskpilot/notifier/internal/obs"
	"github.com/taskpilot/notifier/internal/obs/retry"
	"github.com/taskpilot/notifier/internal/services/scheduler/repo"
	"github.com/taskpilot/notifier/internal/services/senders"
)

type TickStats struct {
	Fetched  int
	Sent     int
	Retried  int
	Failed   int
	Deferred int
	Errors   int
}

// Usecase is the per-tick state machine: claim due pending rows, decide
// per row between deferral (task already done), delivery, backoff retry
// and terminal failure. Row outcomes are isolated; only the initial fetch
// can fail the whole tick.
type Usecase struct {
	Store   repo.Store
	Senders *senders.Registry
	Clock   notification.Clock
	Log     *zap.Logger

	Backoff     retry.Backoff
	MaxRetry    int
	SendTimeout time.Duration
	ClaimLease  time.Duration
	RecheckHour int
}

func (u *Usecase) Tick(ctx context.Context, limit int) (TickStats, error) {
	var st TickStats
	if limit <= 0 {
		limit = 50
	}

	tr := otel.Tracer("scheduler.uc")
	ctxTick, span := tr.Start(ctx, "scheduler.tick",
		trace.WithAttributes(attribute.Int("batch.limit", limit)),
	)
	defer span.End()

	now := u.Clock.Now().UTC()
	due, err := u.Store.FetchDuePending(ctxTick, limit, now, u.ClaimLease)
	if err != nil {
		span.RecordError(err)
		return st, fmt.Errorf("fetch due: %w", err)
	}
	st.Fetched = len(due)
	if len(due) == 0 {
		span.SetAttributes(attribute.Int("batch.fetched", 0))
		return st, nil
	}

	for _, d := range due {
		u.processRow(ctxTick, d, &st)
	}

	span.SetAttributes(
		attribute.Int("batch.fetched", st.Fetched),
		attribute.Int("batch.sent", st.Sent),
		attribute.Int("batch.retried", st.Retried),
		attribute.Int("batch.failed", st.Failed),
		attribute.Int("batch.deferred", st.Deferred),
		attribute.Int("batch.errors", st.Errors),
	)
	return st, nil
}

func (u *Usecase) processRow(ctx context.Context, d *notification.Due, st *TickStats) {
	tr := otel.Tracer("scheduler.uc")
	ctx, span := tr.Start(ctx, "scheduler.deliver",
		trace.WithAttributes(
			attribute.Int64("notification.id", d.ID),
			attribute.String("notification.channel", string(d.Channel)),
		),
	)
	defer span.End()

	log := obs.WithTrace(ctx, u.Log).With(
		zap.Int64("notification_id", d.ID),
		zap.Int64("task_id", d.TaskID),
		zap.String("channel", string(d.Channel)),
	)
	now := u.Clock.Now().UTC()

	// Cascade delete should make an orphaned row impossible; if one shows up
	// anyway there is nothing left to deliver about.
	if d.TaskStatus == nil {
		if err := u.Store.UpdateStatus(ctx, d.ID, notification.StatusFailed, nil, "task not found"); err != nil {
			st.Errors++
			log.Warn("mark orphaned row failed", zap.Error(err))
			return
		}
		st.Failed++
		log.Warn("task gone, notification failed")
		return
	}

	// A completed task does not terminate the row: completion can flap back
	// to open, so the row is deferred to the next recheck slot instead.
	if task.Status(*d.TaskStatus) == task.StatusDone {
		next := u.nextRecheck(now)
		if err := u.Store.UpdateSchedule(ctx, d.ID, next, d.RetryCount, d.LastError); err != nil {
			st.Errors++
			log.Warn("defer reschedule failed", zap.Error(err))
			return
		}
		st.Deferred++
		log.Debug("task done, delivery deferred", zap.Time("next", next))
		return
	}

	n := d.Notification
	if n.Payload.Title == "" {
		n.Payload.Title = d.TaskTitle
	}

	var sendErr error
	if s, ok := u.Senders.Lookup(n.Channel); ok {
		sctx, cancel := context.WithTimeout(ctx, u.SendTimeout)
		sendErr = s.Send(sctx, &n)
		cancel()
	} else {
		sendErr = fmt.Errorf("no sender for channel %q", n.Channel)
	}

	if sendErr == nil {
		at := u.Clock.Now().UTC()
		if err := u.Store.UpdateStatus(ctx, d.ID, notification.StatusSent, &at, ""); err != nil {
			st.Errors++
			log.Warn("mark sent failed", zap.Error(err))
			return
		}
		st.Sent++
		return
	}

	span.RecordError(sendErr)
	attempt := d.RetryCount + 1
	if attempt >= u.MaxRetry {
		if err := u.Store.UpdateStatus(ctx, d.ID, notification.StatusFailed, nil, sendErr.Error()); err != nil {
			st.Errors++
			log.Warn("mark failed failed", zap.Error(err))
			return
		}
		st.Failed++
		log.Warn("delivery failed permanently", zap.Int("attempts", attempt), zap.Error(sendErr))
		return
	}

	next := now.Add(u.Backoff.Next(attempt))
	if err := u.Store.UpdateSchedule(ctx, d.ID, next, attempt, sendErr.Error()); err != nil {
		st.Errors++
		log.Warn("retry reschedule failed", zap.Error(err))
		return
	}
	st.Retried++
	log.Debug("delivery failed, retry scheduled",
		zap.Int("retry_count", attempt), zap.Time("next", next), zap.Error(sendErr))
}

// nextRecheck is the next day at RecheckHour UTC.
func (u *Usecase) nextRecheck(now time.Time) time.Time {
	d := now.UTC().AddDate(0, 0, 1)
	return time.Date(d.Year(), d.Month(), d.Day(), u.RecheckHour, 0, 0, 0, time.UTC)
}
