package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/app"
	"github.com/Mutter0815/LaunchPro/internal/store"
	"github.com/Mutter0815/LaunchPro/internal/taskqueue"
	"github.com/Mutter0815/LaunchPro/pkg/config"
	"github.com/Mutter0815/LaunchPro/pkg/db"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/metrics"
	"github.com/Mutter0815/LaunchPro/pkg/rmq"
	"github.com/Mutter0815/LaunchPro/services/pipeline-worker/worker"
)

func main() {
	config.LoadDotEnv()
	logx.Init("pipeline-worker")
	defer logx.Sync()

	config.MustLoadWorker()
	cfg := config.Worker

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer sqlDB.Close()
	st := store.New(sqlDB)

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.Queue)
	if err != nil {
		logx.L().Fatalw("rmq_publisher_init_error", "error", err)
	}
	defer pub.Close()

	cons, err := rmq.NewConsumer(cfg.RMQURL, cfg.Queue, cfg.Prefetch)
	if err != nil {
		logx.L().Fatalw("rmq_consumer_init_error", "error", err)
	}
	defer cons.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, app.Deps{
		Store:     st,
		Queue:     taskqueue.New(pub),
		Pipeline:  cfg.Pipeline,
		Platforms: cfg.Platforms,
		GenAI:     cfg.GenAI,
	})
	if err != nil {
		logx.L().Fatalw("pipeline_init_error", "error", err)
	}

	if cfg.MetricsAddr != "" {
		msrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metrics.Handler()}
		go func() {
			if err := msrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logx.L().Errorw("metrics_server_error", "error", err)
			}
		}()
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = msrv.Shutdown(sctx)
		}()
	}

	// A held claim turns stale after the platform's full retry budget, so
	// waiting two launch timeouts keeps in-flight retries from spinning.
	w := worker.New(a.Dispatcher, cons, pub, cfg.Prefetch, 2*cfg.Pipeline.PlatformLaunchTimeout)
	w.Queue = cfg.Queue

	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logx.L().Fatalw("worker_error", "error", err)
	}
	logx.L().Infow("pipeline-worker stopped gracefully")
}
