package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"example.com/tracker/internal/config"
)

func migrateCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the store schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer b.close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (store=%s)\n", cfg.StoreDriver)
			return nil
		},
	}
}
