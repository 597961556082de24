package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/ethpandaops/reportoor/pkg/api"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the query API server",
	Long:  `Start the read-only HTTP API over the ingested sessions.`,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateDatabase(); err != nil {
		return fmt.Errorf("validating database config: %w", err)
	}

	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("validating api config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	srv := api.NewServer(log, &cfg.API, st)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := srv.Start(gctx); err != nil {
			return fmt.Errorf("starting api server: %w", err)
		}

		<-gctx.Done()
		log.Info("Shutting down API server")

		return srv.Stop()
	})

	return g.Wait()
}
