package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "ucptrace",
	Short: "UCP commerce analytics collector",
	Long: `ucptrace observes Universal Commerce Protocol traffic and turns it
into flat analytics events.

Run the collector service, bootstrap the warehouse schema, mint SDK
tokens, or seed synthetic traffic for development.`,
	Version: "0.1.0",
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
}
