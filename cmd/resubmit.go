package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/hookrelay/webhook-relay/internal/config"
	"github.com/hookrelay/webhook-relay/internal/db"
	"github.com/hookrelay/webhook-relay/internal/repository"
)

var resubmitAll bool

var resubmitCmd = &cobra.Command{
	Use:   "resubmit [entry-id...]",
	Short: "Reset failed queue entries to pending with a fresh attempt budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 && !resubmitAll {
			return fmt.Errorf("pass entry ids or --all")
		}

		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		mysqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		queueRepo := repository.NewQueueRepository(mysqlDB)
		n, err := queueRepo.ResubmitFailed(context.Background(), args)
		if err != nil {
			return fmt.Errorf("resubmit: %w", err)
		}

		fmt.Printf(">> Resubmitted %d entries\n", n)
		return nil
	},
}

func init() {
	resubmitCmd.Flags().BoolVar(&resubmitAll, "all", false, "resubmit every failed entry")
}
