// Command tracker runs the activity lifecycle and calendar service.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"example.com/tracker/internal/config"
)

var Version = "dev"

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cfg := config.Load()

	root := &cobra.Command{
		Use:           "tracker",
		Short:         "Activity sessions, cooking and calendar sync service",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))
			return cfg.Validate()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "store driver (postgres|sqlite)")
	flags.StringVar(&cfg.PostgresURL, "postgres-url", cfg.PostgresURL, "postgres connection string")
	flags.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "sqlite database file")
	flags.StringSliceVar(&cfg.KafkaBrokers, "kafka-brokers", cfg.KafkaBrokers, "kafka brokers for outbox delivery")

	root.AddCommand(serveCmd(&cfg))
	root.AddCommand(migrateCmd(&cfg))
	root.AddCommand(outboxCmd(&cfg))
	root.AddCommand(consumeCmd(&cfg))
	return root
}
