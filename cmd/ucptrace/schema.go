package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ucptrace/ucptrace/internal/config"
	"github.com/ucptrace/ucptrace/internal/logging"
	"github.com/ucptrace/ucptrace/internal/storage"
)

var schemaPrint bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Bootstrap the warehouse schema",
	Long: `Creates the events table or index template in the configured
destination. Safe to run repeatedly.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if schemaPrint {
			fmt.Print(storage.EventsTableDDL)
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

		dest, err := newDestination(cfg, logger)
		if err != nil {
			return err
		}
		defer dest.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
		defer cancel()

		if err := dest.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("bootstrap schema: %w", err)
		}
		fmt.Println("schema ready")
		return nil
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaPrint, "print", false, "print the postgres DDL instead of applying")
	rootCmd.AddCommand(schemaCmd)
}
