package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/youthclub/notification-queue/internal/api"
	"github.com/youthclub/notification-queue/internal/cache"
	"github.com/youthclub/notification-queue/internal/client"
	"github.com/youthclub/notification-queue/internal/config"
	"github.com/youthclub/notification-queue/internal/db"
	"github.com/youthclub/notification-queue/internal/driver"
	"github.com/youthclub/notification-queue/internal/logging"
	"github.com/youthclub/notification-queue/internal/metrics"
	"github.com/youthclub/notification-queue/internal/notify"
	"github.com/youthclub/notification-queue/internal/repo"
	"github.com/youthclub/notification-queue/internal/scheduler"
	"github.com/youthclub/notification-queue/internal/service"
	"github.com/youthclub/notification-queue/internal/templates"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadAll()
	if err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("messaging app stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx := context.Background()

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(ctx, database); err != nil {
		return err
	}

	queue := repo.NewPostgresQueue(database)
	tmplRepo := repo.NewTemplateRepo(database)
	m := metrics.New()

	worker := service.NewWorker(queue, client.NewWAPIClient(cfg.WAPI.Client()), logger).
		WithSendTimeout(cfg.WAPI.Timeout).
		WithRecorder(m)
	stats := service.NewStats(queue)
	if err := m.RegisterQueueDepth(stats, logger); err != nil {
		return err
	}

	var receipts api.ReceiptReader
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()

		rc := cache.NewRedisCache(rdb, cfg.Redis.TTL)
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rc.Ping(pingCtx); err != nil {
			logger.Warn("redis unavailable, receipts are best effort", slog.Any("error", err))
		}
		cancel()
		worker.WithReceipts(rc)
		receipts = rc
	}

	notifier := notify.NewService(
		queue,
		repo.NewPreferenceRepo(database),
		repo.NewProfileRepo(database),
		templates.NewRenderer(tmplRepo, logger),
		logger,
	).WithRecorder(m)

	sched, err := scheduler.New(cfg.Scheduler.Interval, drainTick(worker, cfg.Scheduler.BatchSize, cfg.Worker.Sleep, logger), logger)
	if err != nil {
		return err
	}
	if cfg.Scheduler.Enabled {
		sched.Start()
	}
	defer sched.Stop()

	h := api.NewHandler(api.Deps{
		Queue:     queue,
		Stats:     stats,
		Worker:    worker,
		Notifier:  notifier,
		Scheduler: sched,
		Templates: tmplRepo,
		Receipts:  receipts,
		Metrics:   m.Handler(),
		Logger:    logger,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           api.Router(h),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("messaging app starting",
			slog.String("addr", cfg.Server.Address),
			slog.Duration("interval", cfg.Scheduler.Interval),
			slog.Int("batch", cfg.Scheduler.BatchSize),
			slog.Bool("scheduler", cfg.Scheduler.Enabled),
			slog.Bool("redis", cfg.Redis.Enabled),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err, ok := <-errCh:
		if ok {
			return err
		}
		return nil
	case <-quit:
	}

	logger.Info("shutting down")
	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// drainTick processes up to batch items per tick, pausing sleep between them.
func drainTick(proc driver.Processor, batch int, sleep time.Duration, logger *slog.Logger) scheduler.TickFunc {
	return func(ctx context.Context) (int, error) {
		sum, err := driver.New(proc, driver.Options{MaxItems: batch, Sleep: sleep}, nil, logger).Run(ctx)
		return sum.Processed, err
	}
}
