package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jmehdipour/sms-relay/internal/config"
	"github.com/jmehdipour/sms-relay/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the subscriber table (and the ClickHouse archive when configured)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		ctx := context.Background()

		storeDB, err := db.OpenSubscriberStore(cfg)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}
		defer storeDB.Close()

		if err := db.Migrate(ctx, storeDB); err != nil {
			return err
		}
		fmt.Printf(">> %s migration complete\n", storeDB.DriverName())

		if cfg.ClickHouse.DSN == "" {
			return nil
		}
		chDB, err := db.OpenClickHouse(cfg)
		if err != nil {
			return fmt.Errorf("clickhouse connect: %w", err)
		}
		defer chDB.Close()

		if err := db.Migrate(ctx, chDB); err != nil {
			return err
		}
		fmt.Println(">> clickhouse migration complete")
		return nil
	},
}
