package main

import (
	"context"
	"log"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"example.com/tracker/internal/config"
	"example.com/tracker/internal/outbox"
	httptransport "example.com/tracker/internal/transport/http"
)

func serveCmd(cfg *config.Config) *cobra.Command {
	var migrate bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and, on postgres with brokers configured, the outbox dispatcher",
		Long: `Run the HTTP API.

Examples:
  tracker serve --addr :8080
  tracker serve --store sqlite --sqlite-path ./tracker.db --auth-disabled
  tracker serve --kafka-brokers kafka:9092 --migrate`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg, migrate)
		},
	}

	cmd.Flags().StringVar(&cfg.HTTPAddress, "addr", cfg.HTTPAddress, "HTTP listen address")
	cmd.Flags().BoolVar(&cfg.AuthDisabled, "auth-disabled", cfg.AuthDisabled, "trust userId in request bodies instead of bearer tokens")
	cmd.Flags().StringVar(&cfg.CORSOrigin, "cors-origin", cfg.CORSOrigin, "allowed browser origin")
	cmd.Flags().BoolVar(&migrate, "migrate", false, "apply the postgres schema before serving")
	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, migrate bool) error {
	logger := log.New(os.Stderr, "[tracker] ", log.LstdFlags)

	b, err := openBackend(ctx, cfg, migrate)
	if err != nil {
		return err
	}
	defer b.close()

	services, err := buildServices(cfg, b.store)
	if err != nil {
		return err
	}

	serverCfg := httptransport.DefaultServerConfig(cfg.HTTPAddress)
	server := httptransport.NewServer(serverCfg, buildHandler(cfg, services))
	ln, err := net.Listen("tcp", cfg.HTTPAddress)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httptransport.Serve(gctx, server, ln, serverCfg.ShutdownTimeout, logger)
	})

	if cfg.DispatcherEnabled() {
		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()

		dispatcher := outbox.NewDispatcher(outbox.NewPostgresStore(b.pool), producer,
			cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithMaxAttempts(cfg.OutboxMaxAttempts))
		g.Go(func() error {
			dispatcher.Start(gctx)
			return nil
		})
		logger.Printf("outbox dispatcher enabled (brokers=%v, interval=%s)", cfg.KafkaBrokers, cfg.OutboxPollInterval)
	}

	logger.Printf("tracker %s starting (store=%s)", Version, cfg.StoreDriver)
	return g.Wait()
}
