package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"confdesk/src-server/metric"
	"confdesk/src-server/model"
	"confdesk/src-server/route"
	"confdesk/src-server/scheduler"
	"confdesk/src-server/utils"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
)

func init() {
	if err := godotenv.Load(); err != nil {
		slog.Info(err.Error())
	}
	level := slog.LevelInfo
	if raw, ok := os.LookupEnv("LOG_LEVEL"); ok {
		if err := level.UnmarshalText([]byte(raw)); err != nil {
			slog.Warn("invalid LOG_LEVEL, using info", "value", raw)
		}
	}
	slog.SetDefault(slog.New(
		tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC1123Z,
		}),
	))
}

func main() {
	cfg, err := utils.NewConfig()
	if err != nil {
		slog.Error("can't load config", "error", err)
		os.Exit(1)
	}

	as, err := utils.NewAppState(cfg)
	if err != nil {
		slog.Error("can't create app state", "error", err)
		os.Exit(1)
	}

	if email, password := cfg.GetAdminEmail(), cfg.GetAdminPassword(); email != "" && password != "" {
		created, err := model.SeedOwner(context.Background(), as.BunDB, email, password)
		switch {
		case err != nil:
			slog.Error("can't seed owner", "error", err)
		case created:
			slog.Info("owner account created", "email", email)
		}
	}

	metric.Init(as)

	muxer := http.NewServeMux()
	route.Register(muxer, as)

	tree := scheduler.NewTree(slog.Default())
	tree.AddAPI(scheduler.NewHTTPServer(&http.Server{
		Addr:              ":" + cfg.GetPort(),
		Handler:           route.Handler(as, muxer),
		ReadHeaderTimeout: 10 * time.Second,
	}, 15*time.Second))
	tree.AddWorker(scheduler.ScheduledMessages(as))
	tree.AddWorker(scheduler.SessionReminders(as))
	for _, h := range scheduler.Notifications(as) {
		tree.AddWorker(h)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)
	slog.Info("app is now running, press Ctrl+C to exit", "port", cfg.GetPort())

	signal.Notify(as.AppCloseSignalChan, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-as.AppCloseSignalChan:
		slog.Info("gracefully shutting down...")
		cancel()
		<-errCh
	case err := <-errCh:
		slog.Error("supervisor stopped", "error", err)
		cancel()
	}
	as.GracefulShutdown()
}
