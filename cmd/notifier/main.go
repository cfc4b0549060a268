package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	config "github.com/taskpilot/notifier/internal/config/notifier"
	"github.com/taskpilot/notifier/internal/hub"
	"github.com/taskpilot/notifier/internal/obs"
	"github.com/taskpilot/notifier/internal/obs/retry"
	kafkaRepo "github.com/taskpilot/notifier/internal/repository/kafka"
	pg "github.com/taskpilot/notifier/internal/repository/postgres"
	"github.com/taskpilot/notifier/internal/services/api"
	"github.com/taskpilot/notifier/internal/services/hooks"
	"github.com/taskpilot/notifier/internal/services/scheduler"
	"github.com/taskpilot/notifier/internal/services/scheduler/repo"
	"github.com/taskpilot/notifier/internal/services/senders"

	"github.com/taskpilot/notifier/internal/domain/notification"
)

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

func configPath() string {
	if p := os.Getenv("CONFIG_PATH"); p != "" {
		return p
	}
	return "config/notifier.yaml"
}

func main() {
	// init
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	cfg, err := config.Load(configPath())
	if err != nil {
		log.Fatal(err)
	}

	// logger
	l, err := obs.NewLogger(cfg.Log.AsLoggerConfig())
	if err != nil {
		log.Fatal(err)
	}
	l.Info("starting notifier",
		zap.Any("kafka_out", cfg.Kafka),
		zap.String("http_addr", cfg.Server.HTTPAddr),
		zap.String("metrics_addr", cfg.Server.MetricsAddr),
		zap.String("smtp_addr", cfg.SMTP.Addr),
	)

	// otel
	otelCloser, err := obs.SetupOTel(ctx, cfg.OTEL.AsOTELConfig())
	if err != nil {
		l.Fatal("otel init", zap.Error(err))
	}
	defer func() { _ = otelCloser.Shutdown(context.Background()) }()

	// db
	db, err := pg.NewDB(ctx, cfg.DB)
	if err != nil {
		l.Fatal("db connect", zap.Error(err))
	}
	defer db.Close()
	l.Info("db connected")

	// kafka
	producer := kafkaRepo.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic).WithLogger(l)
	defer func() { _ = producer.Close() }()

	// metrics server
	ms := obs.BootstrapMetricsServer(cfg.Server.MetricsAddr, func(ctx context.Context) error {
		hctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
		defer cancel()
		return db.Pool.Ping(hctx)
	}, l)

	// wiring
	clock := systemClock{}
	notifs := pg.NewNotificationRepo(db)
	tx := pg.NewTransactor(db, l)
	liveHub := hub.New(l, cfg.Server.StreamBuffer)

	reg := senders.NewRegistry()
	reg.Register(notification.ChannelApp, &senders.AppSender{Hub: liveHub})
	reg.Register(notification.ChannelEmail, senders.NewMailer(cfg.SMTP).WithLogger(l))
	reg.Register(notification.ChannelPush, &senders.PushSender{
		Events: kafkaRepo.NewPushEvents(producer),
		Policy: retry.DefaultKafkaPolicy(l),
	})

	uc := &scheduler.Usecase{
		Store:       repo.Store{R: notifs},
		Senders:     reg,
		Clock:       clock,
		Log:         l,
		Backoff:     retry.ExpoJitter{Base: cfg.Sched.BackoffBase, Max: cfg.Sched.BackoffCap},
		MaxRetry:    cfg.Sched.MaxRetry,
		SendTimeout: cfg.Sched.SendTimeout,
		ClaimLease:  cfg.Sched.ClaimLease,
		RecheckHour: cfg.Sched.RecheckHour,
	}
	runner := scheduler.New(l, uc, &cfg.Sched)

	hookSvc := &hooks.Service{
		TX:           tx,
		Notifs:       notifs,
		Tasks:        pg.NewTaskRepo(db),
		Clock:        clock,
		Log:          l,
		ReminderLead: cfg.Sched.ReminderLead,
	}

	apiSrv := &api.Server{
		Log:    l,
		Hub:    liveHub,
		Notifs: notifs,
		Hooks:  hookSvc,
		Clock:  clock,
		Health: func(ctx context.Context) error { return db.Pool.Ping(ctx) },
	}
	httpSrv := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           otelhttp.NewHandler(apiSrv.Handler(), "api"),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// run
	errCh := make(chan error, 2)
	go func() { errCh <- runner.Run(ctx) }()
	go func() {
		l.Info("http listening", zap.String("addr", cfg.Server.HTTPAddr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	l.Info("notifier started")

	// loop
	select {
	case <-ctx.Done():
	case err = <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			l.Error("runner error", zap.Error(err))
		}
	}

	// graceful shutdown
	shCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(shCtx)
	_ = ms.Shutdown(shCtx)
	l.Info("bye")
}
