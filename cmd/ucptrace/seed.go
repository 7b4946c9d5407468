package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ucptrace/ucptrace/internal/config"
	"github.com/ucptrace/ucptrace/internal/logging"
	"github.com/ucptrace/ucptrace/internal/seeder"
	"github.com/ucptrace/ucptrace/pkg/tracker"
	"github.com/ucptrace/ucptrace/pkg/writer"
)

var (
	seedProfile string
	seedCount   int
	seedSeed    int64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Generate synthetic UCP traffic into the warehouse",
	Long: `Generates realistic discovery, checkout, order, and tool-call
events and delivers them to the configured destination. Useful for
populating development dashboards.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format)

		profile := seeder.DefaultProfile()
		if seedProfile != "" {
			profile, err = seeder.LoadProfile(seedProfile)
			if err != nil {
				return err
			}
		}
		if seedCount > 0 {
			profile.Count = seedCount
		}

		dest, err := newDestination(cfg, logger)
		if err != nil {
			return err
		}

		buf := writer.New(dest, writer.Config{
			BatchSize:      cfg.Buffer.BatchSize,
			BufferCapacity: cfg.Buffer.Capacity,
			FlushTimeout:   cfg.Buffer.FlushTimeout,
		}, logger.Logger)

		trk := tracker.New(buf, tracker.Config{
			AppName:   "ucptrace-seed",
			RedactPII: cfg.Tracker.RedactPII,
		}, logger.Logger)

		signals := seeder.NewGenerator(seedSeed).Signals(profile)
		ctx := context.Background()
		for _, sig := range signals {
			trk.Ingest(ctx, sig)
		}

		closeCtx, cancel := context.WithTimeout(ctx, 2*time.Minute)
		defer cancel()
		if err := trk.Close(closeCtx); err != nil {
			return fmt.Errorf("deliver seeded events: %w", err)
		}

		fmt.Printf("seeded %d events\n", len(signals))
		return nil
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedProfile, "profile", "", "YAML traffic profile")
	seedCmd.Flags().IntVar(&seedCount, "count", 0, "override profile event count")
	seedCmd.Flags().Int64Var(&seedSeed, "seed", time.Now().UnixNano(), "random seed")
	rootCmd.AddCommand(seedCmd)
}
