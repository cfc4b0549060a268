package scheduler

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	config "github.com/taskpilot/notifier/internal/config/notifier"
)

// Runner drives the tick on a fixed interval. Ticks run inline in the loop,
// so they never overlap: a slow batch delays (and the ticker then drops)
// subsequent ticks instead of racing them against the same claim.
type Runner struct {
	Log *zap.Logger
	UC  *Usecase
	Cfg *config.SchedCfg

	mFetched  prometheus.Counter
	mSent     prometheus.Counter
	mRetried  prometheus.Counter
	mFailed   prometheus.Counter
	mDeferred prometheus.Counter
	mErr      prometheus.Counter
	mLoopDur  prometheus.Histogram
}

func New(log *zap.Logger, uc *Usecase, cfg *config.SchedCfg) *Runner {
	return &Runner{
		Log: log,
		UC:  uc,
		Cfg: cfg,
		mFetched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_notifications_fetched_total", Help: "Due notifications claimed from DB",
		}),
		mSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_notifications_sent_total", Help: "Deliveries that succeeded",
		}),
		mRetried: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_notifications_retried_total", Help: "Deliveries rescheduled with backoff",
		}),
		mFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_notifications_failed_total", Help: "Deliveries failed terminally",
		}),
		mDeferred: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_notifications_deferred_total", Help: "Rows deferred because the task is done",
		}),
		mErr: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scheduler_errors_total", Help: "Errors in scheduler loop",
		}),
		mLoopDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name: "scheduler_loop_duration_seconds", Help: "Scheduler tick duration",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (r *Runner) tick(ctx context.Context) {
	start := time.Now()
	st, err := r.UC.Tick(ctx, r.Cfg.BatchLimit)
	if err != nil {
		r.mErr.Inc()
		r.Log.Warn("tick error", zap.Error(err))
	}
	if st.Fetched > 0 {
		r.mFetched.Add(float64(st.Fetched))
		r.mSent.Add(float64(st.Sent))
		r.mRetried.Add(float64(st.Retried))
		r.mFailed.Add(float64(st.Failed))
		r.mDeferred.Add(float64(st.Deferred))
		if st.Errors > 0 {
			r.mErr.Add(float64(st.Errors))
		}
		r.Log.Debug("processed batch",
			zap.Int("fetched", st.Fetched),
			zap.Int("sent", st.Sent),
			zap.Int("retried", st.Retried),
			zap.Int("failed", st.Failed),
			zap.Int("deferred", st.Deferred),
			zap.Int("errors", st.Errors),
		)
	}
	r.mLoopDur.Observe(time.Since(start).Seconds())
}

func (r *Runner) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.Cfg.Tick)
	defer ticker.Stop()

	r.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}
