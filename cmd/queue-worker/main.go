// Command queue-worker drains the notification queue from the command line.
//
// Usage:
//
//	queue-worker [--once] [--sleep 2.0] [--max-items N] [--workers N]
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/youthclub/notification-queue/internal/cache"
	"github.com/youthclub/notification-queue/internal/client"
	"github.com/youthclub/notification-queue/internal/config"
	"github.com/youthclub/notification-queue/internal/db"
	"github.com/youthclub/notification-queue/internal/driver"
	"github.com/youthclub/notification-queue/internal/logging"
	"github.com/youthclub/notification-queue/internal/repo"
	"github.com/youthclub/notification-queue/internal/service"
)

type options struct {
	driver  driver.Options
	workers int
}

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cfg, err := config.LoadAll()
	if err != nil {
		fmt.Fprintf(stderr, "Error: invalid configuration: %v\n", err)
		return 1
	}

	opts, err := parseFlags(args, cfg.Worker, stderr)
	if err != nil {
		return 2
	}

	logger := logging.New(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	database, err := db.Open(ctx, cfg.Database)
	if err != nil {
		logger.Error("database unavailable", slog.Any("error", err))
		return 1
	}
	defer func() { _ = database.Close() }()

	worker := service.NewWorker(
		repo.NewPostgresQueue(database),
		client.NewWAPIClient(cfg.WAPI.Client()),
		logger,
	).WithSendTimeout(cfg.WAPI.Timeout)
	if cfg.Redis.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
		worker.WithReceipts(cache.NewRedisCache(rdb, cfg.Redis.TTL))
	}

	sum, err := drain(ctx, worker, opts, stdout, logger)
	fmt.Fprintln(stdout, sum.String())
	if err != nil {
		logger.Error("queue processing aborted", slog.Any("error", err))
		return 1
	}
	return 0
}

// parseFlags uses the environment's worker settings as flag defaults.
func parseFlags(args []string, defaults config.WorkerConfig, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("queue-worker", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		once     bool
		sleep    float64
		maxItems int
		workers  int
	)
	fs.BoolVar(&once, "once", false, "Process exactly one item and exit")
	fs.Float64Var(&sleep, "sleep", defaults.Sleep.Seconds(), "Pause between items, in seconds")
	fs.IntVar(&maxItems, "max-items", defaults.MaxItems, "Stop after N items (0 = unbounded)")
	fs.IntVar(&workers, "workers", 1, "Number of concurrent claimants")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}

	if sleep < 0 {
		sleep = 0
	}
	if maxItems < 0 {
		maxItems = 0
	}
	if workers < 1 {
		workers = 1
	}
	return options{
		driver: driver.Options{
			Once:     once,
			Sleep:    time.Duration(sleep * float64(time.Second)),
			MaxItems: maxItems,
		},
		workers: workers,
	}, nil
}

// drain runs opts.workers drivers over proc. Each driver keeps its own
// counters and stop conditions; the returned summary adds them up. A storage
// error in one driver stops the others before their next item. "queue empty"
// is printed once, and only when no driver claimed anything.
func drain(ctx context.Context, proc driver.Processor, opts options, out io.Writer, logger *slog.Logger) (driver.Summary, error) {
	if opts.workers <= 1 {
		return driver.New(proc, opts.driver, out, logger).Run(ctx)
	}

	var (
		mu    sync.Mutex
		total = driver.Summary{Empty: true}
		w     = &syncWriter{w: out}
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 1; i <= opts.workers; i++ {
		o := opts.driver
		o.Name = "worker " + strconv.Itoa(i)
		o.QuietEmpty = true
		g.Go(func() error {
			sum, err := driver.New(proc, o, w, logger).Run(gctx)
			mu.Lock()
			total = total.Add(sum)
			mu.Unlock()
			return err
		})
	}
	err := g.Wait()
	if err == nil && total.Empty {
		_, _ = fmt.Fprintln(out, "queue empty")
	}
	return total, err
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
