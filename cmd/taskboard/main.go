package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"taskboard/internal/config"
	"taskboard/internal/counters"
	"taskboard/internal/metrics"
	"taskboard/internal/notify"
	"taskboard/internal/realtime"
	"taskboard/internal/server"
	"taskboard/internal/service"
	"taskboard/internal/storage/sqlite"
	"taskboard/internal/util"
)

func main() {
	configFlag := flag.String("config", util.EnvOrDefault("TASKBOARD_CONFIG", ""), "Path to YAML config file")
	addrFlag := flag.String("addr", "", "HTTP listen address")
	dbFlag := flag.String("db", "", "Path to sqlite database file")
	staticFlag := flag.String("static", "", "Directory with built board UI")
	levelFlag := flag.String("log-level", "", "Log level (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		slog.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "addr":
			cfg.Addr = *addrFlag
		case "db":
			cfg.DBPath = *dbFlag
		case "static":
			cfg.StaticDir = *staticFlag
		case "log-level":
			cfg.LogLevel = *levelFlag
		}
	})
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		slog.Error("invalid log level", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	logger.Info("taskboard starting", slog.String("db", cfg.DBPath), slog.Bool("redis", cfg.Redis.Enabled))

	store, err := sqlite.Open(cfg.DBPath, logger)
	if err != nil {
		logger.Error("unable to open database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	hub := realtime.NewHub(logger)
	var publisher realtime.Publisher = hub
	if cfg.Redis.Enabled {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			logger.Warn("redis not reachable yet", slog.String("addr", cfg.Redis.Addr), slog.String("error", err.Error()))
		}
		publisher = realtime.NewRedisPublisher(rc, cfg.Redis.Channel)
		go realtime.Subscribe(ctx, logger, rc, cfg.Redis.Channel, hub.Deliver)
	}

	m := metrics.New()
	publisher = m.Publisher(publisher)

	notifier := notify.Multi(notify.NewLog(logger), realtime.NewToasts(publisher, logger))
	tasks := service.NewTasks(store, counters.New(store, store, logger), publisher, logger)

	srv := server.New(server.Deps{
		Store:     store,
		Tasks:     tasks,
		Hub:       hub,
		Publisher: publisher,
		Notifier:  notifier,
		Metrics:   m,
		Logger:    logger,
		StaticDir: cfg.StaticDir,

		BoardIdleTimeout: cfg.BoardIdleTimeout,
	})
	defer srv.Close()

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: srv.Engine(),
	}

	go func() {
		logger.Info("starting server", slog.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
			cancel()
		}
	}()

	<-ctx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown server", slog.String("error", err.Error()))
	}

	logger.Info("server stopped")
}
