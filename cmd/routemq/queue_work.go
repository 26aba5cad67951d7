package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"

	_ "modernc.org/sqlite"

	"github.com/routemq/routemq/config"
	"github.com/routemq/routemq/job"
	"github.com/routemq/routemq/queue"
	"github.com/routemq/routemq/queue/fastdriver"
	"github.com/routemq/routemq/queue/sqldriver"
)

var (
	queueFlag      string
	connectionFlag string
	sleepFlag      int
	maxJobsFlag    int
	maxTimeFlag    int
	maxTriesFlag   int
	timeoutFlag    int
)

var queueWorkCmd = &cobra.Command{
	Use:   "queue-work",
	Short: "Start a queue worker (spec §6 \"queue-work\")",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQueueWorker()
	},
}

func init() {
	queueWorkCmd.Flags().StringVar(&queueFlag, "queue", "", "queue name (default from config)")
	queueWorkCmd.Flags().StringVar(&connectionFlag, "connection", "", "driver connection name (default from config)")
	queueWorkCmd.Flags().IntVar(&sleepFlag, "sleep", 0, "seconds to sleep when the queue is empty (default from config)")
	queueWorkCmd.Flags().IntVar(&maxJobsFlag, "max-jobs", 0, "exit after processing this many jobs (0 = unlimited)")
	queueWorkCmd.Flags().IntVar(&maxTimeFlag, "max-time", 0, "exit after running this many seconds (0 = unlimited)")
	queueWorkCmd.Flags().IntVar(&maxTriesFlag, "max-tries", 0, "default max attempts for jobs that don't declare their own (default from config)")
	queueWorkCmd.Flags().IntVar(&timeoutFlag, "timeout", 0, "default per-job timeout in seconds (default from config)")
}

func runQueueWorker() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	queueName := cfg.Worker.Queue
	if queueFlag != "" {
		queueName = queueFlag
	}
	connection := cfg.Worker.Connection
	if connectionFlag != "" {
		connection = connectionFlag
	}
	sleepSeconds := cfg.Worker.SleepSeconds
	if sleepFlag > 0 {
		sleepSeconds = sleepFlag
	}
	maxTries := cfg.Worker.MaxTries
	if maxTriesFlag > 0 {
		maxTries = maxTriesFlag
	}
	timeoutSeconds := cfg.Worker.TimeoutSeconds
	if timeoutFlag > 0 {
		timeoutSeconds = timeoutFlag
	}

	driver, err := buildDriver(cfg)
	if err != nil {
		return err
	}

	registry := job.NewRegistry()
	// Applications embedding RouteMQ register their own job classes here
	// before starting the worker; this reference CLI ships none.

	w := queue.NewWorker(driver, registry, queue.WorkerConfig{
		Queue:           queueName,
		Sleep:           time.Duration(sleepSeconds) * time.Second,
		MaxJobs:         maxJobsFlag,
		MaxTime:         time.Duration(maxTimeFlag) * time.Second,
		DefaultMaxTries: uint32(maxTries),
		DefaultTimeout:  time.Duration(timeoutSeconds) * time.Second,
	}, slog.Default().With("connection", connection))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("routemq queue worker starting", "queue", queueName, "connection", connection)
	return w.Run(ctx)
}

func buildDriver(cfg *config.Config) (queue.Driver, error) {
	switch cfg.Queue.Driver {
	case "fast":
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		return fastdriver.New(client), nil
	case "durable":
		sqlDB, err := sql.Open(cfg.Queue.SQLDriverName, cfg.Queue.SQLDSN)
		if err != nil {
			return nil, fmt.Errorf("routemq: opening durable queue database: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
		db := bun.NewDB(sqlDB, sqlitedialect.New())
		if err := sqldriver.InitSchema(context.Background(), db); err != nil {
			return nil, fmt.Errorf("routemq: initializing durable queue schema: %w", err)
		}
		return sqldriver.New(db, cfg.Queue.SQLConnection), nil
	default:
		return nil, fmt.Errorf("routemq: unknown queue driver %q", cfg.Queue.Driver)
	}
}
