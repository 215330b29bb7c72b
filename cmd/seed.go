package cmd

import (
	"fmt"
	"log"

	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"

	"github.com/hookrelay/webhook-relay/internal/config"
	"github.com/hookrelay/webhook-relay/internal/db"
	"github.com/hookrelay/webhook-relay/internal/model"
	"github.com/hookrelay/webhook-relay/internal/signature"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with demo subscriptions",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		mysqlDB, err := db.NewMySQL(cfg.MySQL)
		if err != nil {
			return fmt.Errorf("mysql connect: %w", err)
		}
		defer mysqlDB.Close()

		log.Println(">> Seeding demo subscriptions...")

		if err := seedSubscriptions(mysqlDB); err != nil {
			return err
		}

		log.Println(">> Seed completed ✅")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

// seedSubscriptions inserts demo destinations, generating a fresh
// signing secret for each. Secrets are printed exactly once here and
// never readable through the ops API; rerunning keeps existing rows'
// secrets (upsert by url).
func seedSubscriptions(dbx *sqlx.DB) error {
	subs := []model.Subscription{
		{
			URL:    "https://demo-a.example.com/hooks/crm",
			Events: model.EventList{"contact.created", "contact.updated", "contact.deleted"},
			Active: true,
		},
		{
			URL:    "https://demo-b.example.com/webhooks",
			Events: model.EventList{"deal.created", "deal.updated"},
			Active: true,
		},
		{
			URL:    "https://demo-c.example.com/ingest",
			Events: model.EventList{"company.created", "activity.created"},
			Active: true,
		},
	}

	const q = `
INSERT INTO webhook_subscriptions
    (url, secret, events, active, consecutive_failures, created_at, updated_at)
VALUES
    (?, ?, ?, ?, 0, NOW(), NOW())
ON DUPLICATE KEY UPDATE
    events     = VALUES(events),
    active     = VALUES(active),
    updated_at = NOW()
`
	tx, err := dbx.Beginx()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	for _, s := range subs {
		secret, err := signature.NewSecret()
		if err != nil {
			return fmt.Errorf("generate secret: %w", err)
		}
		if _, err := tx.Exec(q, s.URL, secret, s.Events, s.Active); err != nil {
			return fmt.Errorf("insert subscription %q: %w", s.URL, err)
		}
		fmt.Printf("  %-45s %s\n", s.URL, secret)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit subscriptions: %w", err)
	}
	return nil
}
