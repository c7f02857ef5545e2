package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Mutter0815/LaunchPro/internal/app"
	"github.com/Mutter0815/LaunchPro/internal/store"
	"github.com/Mutter0815/LaunchPro/internal/taskqueue"
	"github.com/Mutter0815/LaunchPro/pkg/config"
	"github.com/Mutter0815/LaunchPro/pkg/db"
	"github.com/Mutter0815/LaunchPro/pkg/logx"
	"github.com/Mutter0815/LaunchPro/pkg/rmq"
	"github.com/Mutter0815/LaunchPro/services/campaign-api/server"
)

func main() {
	config.LoadDotEnv()
	logx.Init("campaign-api")
	defer logx.Sync()

	config.MustLoadAPI()
	cfg := config.API

	sqlDB, err := db.Open(cfg.DBDSN)
	if err != nil {
		logx.L().Fatalw("db_open_error", "error", err)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logx.L().Warnw("db_close_error", "error", err)
		} else {
			logx.L().Infow("db_closed")
		}
	}()

	st := store.New(sqlDB)
	if cfg.Migrate {
		mctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		err := st.Migrate(mctx)
		cancel()
		if err != nil {
			logx.L().Fatalw("db_migrate_error", "error", err)
		}
		logx.L().Infow("db_migrated")
	}

	pub, err := rmq.NewPublisher(cfg.RMQURL, cfg.Queue)
	if err != nil {
		logx.L().Fatalw("rmq_init_error", "error", err)
	}
	defer func() {
		if err := pub.Close(); err != nil {
			logx.L().Warnw("rmq_publisher_close_error", "error", err)
		} else {
			logx.L().Infow("rmq_publisher_closed")
		}
	}()

	a, err := app.Build(context.Background(), app.Deps{
		Store:     st,
		Queue:     taskqueue.New(pub),
		Pipeline:  cfg.Pipeline,
		Platforms: cfg.Platforms,
		GenAI:     cfg.GenAI,
	})
	if err != nil {
		logx.L().Fatalw("pipeline_init_error", "error", err)
	}

	// A direct launch runs process-campaign inline, so the handler gets the
	// stage budget plus headroom for validation and content submission.
	h := server.NewHandlers(a.Service, st, a.Dispatcher, cfg.Pipeline.ProcessBudget+time.Minute)
	srv := server.NewHTTPServer(":"+cfg.Port, h)

	go func() {
		logx.L().Infow("api_listen_start", "addr", ":"+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.L().Fatalw("http_server_error", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	logx.L().Infow("signal_received", "signal", sig.String())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logx.L().Errorw("server_shutdown_error", "error", err)
	} else {
		logx.L().Infow("server_shutdown_success")
	}

	logx.L().Infow("campaign-api stopped gracefully")
}
