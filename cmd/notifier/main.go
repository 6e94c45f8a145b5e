package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tazhibayda/authflow/internal/config"
	"github.com/tazhibayda/authflow/internal/log"
	"github.com/tazhibayda/authflow/internal/mail"
	"github.com/tazhibayda/authflow/internal/metrics"
	"github.com/tazhibayda/authflow/internal/queue"
	"github.com/tazhibayda/authflow/internal/repo"
	"go.uber.org/zap"
	"gopkg.in/DataDog/dd-trace-go.v1/ddtrace/tracer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	lg, err := log.Init(cfg.Production())
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if cfg.DD.Enabled {
		tracer.Start(tracer.WithService(cfg.DD.Service+"-notifier"), tracer.WithEnv(cfg.Env))
		defer tracer.Stop()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics.MustRegisterNotifier(prometheus.DefaultRegisterer)
	msrv := metrics.NewServer(cfg.NotifierMetricsAddr, prometheus.DefaultGatherer)
	go func() {
		if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Error("metrics server", zap.Error(err))
		}
	}()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = msrv.Shutdown(sctx)
	}()

	rdb := repo.NewRedis(cfg.Redis.Addr)
	defer rdb.Close()
	if err := rdb.Ping(ctx); err != nil {
		lg.Warn("redis unavailable, redeliveries may be mailed twice", zap.Error(err))
	}

	cons, err := queue.NewConsumer(cfg.Rabbit.URL, cfg.Rabbit.Exchange, cfg.Rabbit.Queue, cfg.Rabbit.BindKey)
	if err != nil {
		lg.Fatal("rabbit consumer", zap.Error(err))
	}
	defer cons.Close()

	w := &mail.Worker{
		Sink:     mail.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.User, cfg.SMTP.Pass, cfg.SMTP.From),
		Seen:     rdb,
		DedupTTL: cfg.Redis.DedupTTL,
	}

	lg.Info("notifier up",
		zap.String("exchange", cfg.Rabbit.Exchange),
		zap.String("queue", cfg.Rabbit.Queue),
		zap.String("key", cfg.Rabbit.BindKey),
		zap.Int("workers", cfg.Rabbit.Concurrency),
		zap.String("metrics", cfg.NotifierMetricsAddr),
	)

	if err := cons.Consume(ctx, cfg.Rabbit.Concurrency, w.Handle); err != nil {
		lg.Fatal("consumer stopped", zap.Error(err))
	}
	lg.Info("notifier stopped")
}
