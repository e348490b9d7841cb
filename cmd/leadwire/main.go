package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leadwire/leadwire/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "leadwire",
	Short:         "Multi-tenant CRM realtime events and messaging webhooks",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
