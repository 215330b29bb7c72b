package worker

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/hookrelay/webhook-relay/internal/config"
	"github.com/hookrelay/webhook-relay/internal/db"
	"github.com/hookrelay/webhook-relay/internal/delivery"
	"github.com/hookrelay/webhook-relay/internal/dispatch"
	"github.com/hookrelay/webhook-relay/internal/kafka"
	"github.com/hookrelay/webhook-relay/internal/logger"
	"github.com/hookrelay/webhook-relay/internal/metrics"
	"github.com/hookrelay/webhook-relay/internal/repository"
	"github.com/hookrelay/webhook-relay/internal/retry"
	"github.com/hookrelay/webhook-relay/internal/safeurl"
	"github.com/hookrelay/webhook-relay/internal/worker"
)

var dispatcherCmd = &cobra.Command{
	Use:   "dispatcher",
	Short: "Run the delivery dispatcher",
	RunE:  runDispatcher,
}

func runDispatcher(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)
	zlog := logger.Named("dispatcher")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) stores
	mysqlDB, err := db.NewMySQL(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer mysqlDB.Close()

	chDB, err := db.NewClickHouse(cfg.ClickHouse)
	if err != nil {
		return fmt.Errorf("clickhouse connect: %w", err)
	}
	defer func() { _ = chDB.Close() }()

	// 3) repositories
	queueRepo := repository.NewQueueRepository(mysqlDB)
	subsRepo := repository.NewSubscriptionsRepository(mysqlDB, cfg.Breaker.FailThreshold)
	logRepo := repository.NewDeliveryLogRepository(chDB)

	// 4) destination policy + delivery client
	var policy *safeurl.Policy
	if cfg.Safety.ResolveDNS {
		policy = safeurl.WithResolver(cfg.Safety.AllowHosts)
	} else {
		policy = &safeurl.Policy{AllowHosts: cfg.Safety.AllowHosts}
	}
	client := delivery.NewClient(cfg.Delivery)

	// 5) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6) delivery-log batch writer. It runs on its own context, not the
	// signal context: workers finish their claimed entries after SIGTERM
	// and keep appending records, so the writer must stay receiving until
	// the dispatcher has fully stopped.
	lwCtx, lwCancel := context.WithCancel(context.Background())
	defer lwCancel()
	lw := dispatch.NewLogWriter(logRepo, 64, 2*time.Second, logger.Named("logwriter"))
	lwDone := make(chan struct{})
	go func() {
		lw.Run(lwCtx)
		close(lwDone)
	}()

	// 7) engine + dispatcher
	engine := dispatch.NewEngine(queueRepo, subsRepo, lw, client, policy, dispatch.Options{
		Backoff: retry.Backoff{
			Base: cfg.Queue.BackoffBase,
			Max:  cfg.Queue.BackoffMax,
		},
		FailThreshold: cfg.Breaker.FailThreshold,
		MaxParallel:   cfg.Dispatcher.MaxParallel,
	}, logger.Named("engine"))

	d := worker.NewDispatcher(queueRepo, engine, zlog)
	if cfg.Dispatcher.WorkerCount > 0 {
		d.Workers = cfg.Dispatcher.WorkerCount
	}
	if cfg.Dispatcher.BatchSize > 0 {
		d.BatchSize = cfg.Dispatcher.BatchSize
	}
	if cfg.Dispatcher.PollInterval > 0 {
		d.PollInterval = cfg.Dispatcher.PollInterval
	}
	if cfg.Dispatcher.IdleDelay > 0 {
		d.IdleDelay = cfg.Dispatcher.IdleDelay
	}

	// 8) optional kafka wake-up nudges
	if cfg.Kafka.Enabled {
		consumer := kafka.NewConsumerFromConfig(kafka.Config{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			GroupID:        cfg.Kafka.GroupID,
			MinBytes:       cfg.Kafka.MinBytes,
			MaxBytes:       cfg.Kafka.MaxBytes,
			CommitInterval: time.Duration(cfg.Kafka.CommitInterval) * time.Millisecond,
		})
		defer consumer.Close()

		nudge := make(chan struct{}, 1)
		go consumer.Nudges(ctx, nudge)
		d.Nudge = nudge
	}

	log.Printf(">> dispatcher started workers=%d batchSize=%d poll=%s",
		d.Workers, d.BatchSize, d.PollInterval)

	err = d.Run(ctx)

	// workers have exited; now stop the writer and wait for the tail flush
	lwCancel()
	<-lwDone
	return err
}
