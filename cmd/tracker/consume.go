package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/tracker/internal/config"
	"example.com/tracker/internal/consumer"
)

func consumeCmd(cfg *config.Config) *cobra.Command {
	var printOnly bool

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Record published change events in the change_log table",
		Long: "Consume reads the outbox topics and appends every event to the change_log table.\n" +
			"With --print events are written to stdout as JSON lines instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(cfg.KafkaBrokers) == 0 {
				return fmt.Errorf("consume requires --kafka-brokers or KAFKA_BROKERS")
			}
			if len(cfg.ConsumerTopics) == 0 {
				return fmt.Errorf("consume requires at least one topic")
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var handler consumer.Handler
			if printOnly {
				handler = consumer.NewPrintHandler(cmd.OutOrStdout())
			} else {
				b, err := openBackend(ctx, cfg, false)
				if err != nil {
					return err
				}
				defer b.close()
				pool, err := b.requirePool()
				if err != nil {
					return err
				}
				handler = consumer.NewChangeLogHandler(pool)
			}
			return runConsumers(ctx, cfg, handler)
		},
	}
	cmd.Flags().BoolVar(&printOnly, "print", false, "print events instead of storing them")
	cmd.Flags().StringVar(&cfg.ConsumerGroupID, "group", cfg.ConsumerGroupID, "kafka consumer group id")
	cmd.Flags().StringSliceVar(&cfg.ConsumerTopics, "topics", cfg.ConsumerTopics, "topics to consume")
	return cmd
}

// runConsumers runs one processor per topic until ctx is cancelled.
func runConsumers(ctx context.Context, cfg *config.Config, handler consumer.Handler) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1e3,
			MaxBytes:        10e6,
			CommitInterval:  time.Second,
			ReadLagInterval: -1,
		})
		logger := log.New(os.Stderr, "[consumer:"+topic+"] ", log.LstdFlags)
		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger))

		g.Go(func() error {
			defer reader.Close()
			logger.Printf("started (group=%s)", cfg.ConsumerGroupID)
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("consumer %s: %w", topic, err)
			}
			return nil
		})
	}
	return g.Wait()
}
