package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hookrelay/webhook-relay/internal/config"
	"github.com/hookrelay/webhook-relay/internal/db"
	"github.com/hookrelay/webhook-relay/internal/logger"
	"github.com/hookrelay/webhook-relay/internal/repository"
	"github.com/hookrelay/webhook-relay/internal/util"
	"github.com/hookrelay/webhook-relay/internal/worker"
	"go.uber.org/zap"
)

var janitorCmd = &cobra.Command{
	Use:   "janitor",
	Short: "Run queue housekeeping (retention + stale reclaim)",
	RunE:  runJanitor,
}

func runJanitor(cmd *cobra.Command, args []string) error {
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger.Init(cfg.Log.Level)
	zlog := logger.Named("janitor")

	mysqlDB, err := db.NewMySQL(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer mysqlDB.Close()

	queueRepo := repository.NewQueueRepository(mysqlDB)

	// redis is lock-only here; run without it when unavailable
	redisClient, err := db.NewRedis(cfg.Redis)
	if err != nil {
		zlog.Warn("redis unavailable, janitor lock disabled", zap.Error(err))
		redisClient = nil
	} else {
		defer func() { _ = redisClient.Close() }()
	}

	j := &worker.Janitor{
		Queue:        queueRepo,
		Redis:        redisClient,
		Interval:     cfg.Janitor.Interval,
		LockTTL:      cfg.Janitor.LockTTL,
		Retention:    cfg.Queue.RetentionWindow,
		ReclaimAfter: cfg.Queue.ReclaimAfter,
		InstanceID:   util.NewULID(),
		Log:          zlog,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return j.Run(ctx)
}
