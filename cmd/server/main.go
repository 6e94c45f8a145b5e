// @title authflow API
// @version 1.0
// @description Email/password authentication with verification and password reset.
// @BasePath /
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
	_ "github.com/tazhibayda/authflow/docs"
	"github.com/tazhibayda/authflow/internal/auth"
	"github.com/tazhibayda/authflow/internal/config"
	api "github.com/tazhibayda/authflow/internal/http"
	"github.com/tazhibayda/authflow/internal/log"
	"github.com/tazhibayda/authflow/internal/mail"
	"github.com/tazhibayda/authflow/internal/metrics"
	"github.com/tazhibayda/authflow/internal/queue"
	"github.com/tazhibayda/authflow/internal/repo"
	"github.com/tazhibayda/authflow/internal/security"
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
		tracer.Start(tracer.WithService(cfg.DD.Service), tracer.WithEnv(cfg.Env))
		defer tracer.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := repo.NewStore(ctx, cfg.Mongo.URI, cfg.Mongo.DB)
	if err != nil {
		lg.Fatal("mongo connect", zap.Error(err))
	}
	defer store.Close(context.Background())
	if err := store.EnsureUserIndexes(ctx); err != nil {
		lg.Fatal("mongo indexes", zap.Error(err))
	}

	sessions, err := newSessions(cfg.JWT)
	if err != nil {
		lg.Fatal("session keys", zap.Error(err))
	}

	var sink mail.Sink = mail.LogSink{Reveal: !cfg.Production()}
	if !cfg.Rabbit.Disabled {
		pub, err := queue.NewRabbit(cfg.Rabbit.URL, cfg.Rabbit.Exchange)
		if err != nil {
			lg.Fatal("rabbit publisher", zap.Error(err))
		}
		defer pub.Close()
		sink = mail.QueueSink{Pub: pub, Exchange: cfg.Rabbit.Exchange}
	} else {
		lg.Warn("rabbit disabled, mail events are only logged")
	}

	metrics.MustRegister(prometheus.DefaultRegisterer)

	svc := auth.NewService(store, mail.NewNotifier(sink), sessions, cfg.ClientURL)
	h := api.NewHandler(svc, sessions, store, cfg.Production())
	if cfg.DD.Enabled {
		h.TraceService = cfg.DD.Service
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           api.NewRouter(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()

	lg.Info("authflow listening", zap.String("port", cfg.Port), zap.String("env", cfg.Env))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		lg.Info("shutting down", zap.String("signal", s.String()))
	case err := <-srvErr:
		if !errors.Is(err, http.ErrServerClosed) {
			lg.Error("server error", zap.Error(err))
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown", zap.Error(err))
	}
}

func newSessions(cfg config.JWT) (*security.Sessions, error) {
	if cfg.KeyFile == "" {
		return security.NewHMACSessions(cfg.Secret, cfg.SessionTTL), nil
	}
	ring, err := security.LoadKeyRing(cfg.KeyID, cfg.KeyFile, cfg.NextKeyID, cfg.NextKey)
	if err != nil {
		return nil, err
	}
	return security.NewRSASessions(ring, cfg.SessionTTL), nil
}
