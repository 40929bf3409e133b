package main

import (
	"fmt"
	"os"

	"djchat/backend/internal/config"
	"djchat/backend/internal/storage"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "DJ chat admin tool",
	Long: `admin opens conversations, prints history and sends messages
through a real chat session against Postgres and Redis.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func openStore() (*config.Config, *storage.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	db, err := storage.Open(cfg.DSN(), cfg.DBLogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect database: %w", err)
	}
	// No insert listener needed for the admin CLI.
	return cfg, storage.NewStorageService(db, nil), nil
}
