package main

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"example.com/tracker/internal/config"
	"example.com/tracker/internal/outbox"
)

func outboxCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "outbox",
		Short: "Inspect and operate the change-event outbox (postgres only)",
	}
	cmd.AddCommand(outboxStatusCmd(cfg), outboxRequeueCmd(cfg), outboxDrainCmd(cfg))
	return cmd
}

func outboxStatusCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show pending and parked outbox rows",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer b.close()
			pool, err := b.requirePool()
			if err != nil {
				return err
			}

			stats, err := outbox.NewPostgresStore(pool).Stats(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\nparked:  %d\n", stats.Pending, stats.Parked)
			return nil
		},
	}
}

func outboxRequeueCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Return parked rows to the pending queue with a fresh attempt budget",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := openBackend(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer b.close()
			pool, err := b.requirePool()
			if err != nil {
				return err
			}

			n, err := outbox.NewPostgresStore(pool).Requeue(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "requeued %d rows\n", n)
			return nil
		},
	}
}

func outboxDrainCmd(cfg *config.Config) *cobra.Command {
	var maxBatches int

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Deliver pending outbox rows now and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("drain requires --kafka-brokers or KAFKA_BROKERS")
			}
			ctx := cmd.Context()
			b, err := openBackend(ctx, cfg, false)
			if err != nil {
				return err
			}
			defer b.close()
			pool, err := b.requirePool()
			if err != nil {
				return err
			}

			producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
			defer producer.Close()
			store := outbox.NewPostgresStore(pool)
			dispatcher := outbox.NewDispatcher(store, producer, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
				outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
				outbox.WithLogger(log.New(os.Stderr, "[outbox] ", log.LstdFlags)))

			for i := 0; i < maxBatches; i++ {
				before, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				if before.Pending == 0 {
					break
				}
				if err := dispatcher.RunOnce(ctx); err != nil {
					return err
				}
				after, err := store.Stats(ctx)
				if err != nil {
					return err
				}
				if after.Pending == before.Pending {
					// Remaining rows are backing off.
					break
				}
			}
			stats, err := store.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "pending: %d\nparked:  %d\n", stats.Pending, stats.Parked)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxBatches, "max-batches", 100, "stop after this many batches")
	return cmd
}
