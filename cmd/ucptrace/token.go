package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ucptrace/ucptrace/internal/auth"
	"github.com/ucptrace/ucptrace/internal/config"
)

var tokenAppName string

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for an instrumented application",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Auth.JWTSecret == "" {
			return fmt.Errorf("auth.jwt_secret is not configured")
		}

		token, err := auth.NewVerifier(cfg.Auth.JWTSecret).GenerateToken(tokenAppName)
		if err != nil {
			return fmt.Errorf("mint token: %w", err)
		}
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenAppName, "app", "default", "application name to embed in the token")
	rootCmd.AddCommand(tokenCmd)
}
