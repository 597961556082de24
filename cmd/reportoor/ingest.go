package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethpandaops/reportoor/pkg/ingest"
	"github.com/ethpandaops/reportoor/pkg/origin"
	"github.com/ethpandaops/reportoor/pkg/report"
	"github.com/ethpandaops/reportoor/pkg/source"
	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/ethpandaops/reportoor/pkg/upload"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var jsonReport string

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest a mochawesome JSON report",
	Long: `Ingest a mochawesome JSON report as one test run session.

The run is identified by the ENV and TESTER environment variables. BUILD
and WHERE are optional; without WHERE the origin is the public IP of the
host. Re-ingesting a report that was already stored is refused.`,
	RunE: runIngest,
}

func init() {
	rootCmd.AddCommand(ingestCmd)
	ingestCmd.Flags().StringVar(&jsonReport, "json-report", "",
		"report location, a file path or s3://bucket/key (overrides ingest.report)")
}

func runIngest(cmd *cobra.Command, args []string) error {
	start := time.Now()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if jsonReport != "" {
		cfg.Ingest.Report = jsonReport
	}

	// Nothing is read or written until the run is fully identified.
	if err := cfg.ValidateIngest(); err != nil {
		return err
	}

	if err := cfg.ValidateDatabase(); err != nil {
		return fmt.Errorf("validating database config: %w", err)
	}

	if err := cfg.ValidateArchive(); err != nil {
		return fmt.Errorf("validating archive config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var uploader upload.Uploader

	if cfg.Archive.Enabled {
		uploader, err = upload.NewS3Uploader(log, &cfg.Archive, &cfg.Source.S3)
		if err != nil {
			return fmt.Errorf("creating archive uploader: %w", err)
		}
	}

	reader, err := source.NewReader(&cfg.Source, cfg.Ingest.Report)
	if err != nil {
		return err
	}

	data, err := reader.Read(ctx, cfg.Ingest.Report)
	if err != nil {
		return fmt.Errorf("reading report: %w", err)
	}

	doc, err := report.Parse(data)
	if err != nil {
		return fmt.Errorf("parsing report %s: %w", cfg.Ingest.Report, err)
	}

	st := store.NewStore(log, &cfg.Database)
	if err := st.Start(ctx); err != nil {
		return fmt.Errorf("starting store: %w", err)
	}

	defer func() {
		if err := st.Stop(); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	hostname, err := os.Hostname()
	if err != nil {
		log.WithError(err).Warn("Failed to read hostname")
	}

	resolver := origin.NewResolver(
		log, cfg.Ingest.Origin, cfg.Ingest.IPLookupURL, cfg.Ingest.IPLookupTimeout,
	)

	opts := ingest.Options{
		Environment:      cfg.Ingest.Environment,
		Tester:           cfg.Ingest.Tester,
		Build:            cfg.Ingest.Build,
		DefaultUserAgent: cfg.Ingest.DefaultUserAgent,
		Hostname:         hostname,
	}

	// The archive write test only runs for a report that will be stored.
	if uploader != nil {
		opts.Preflight = func(ctx context.Context) error {
			if err := uploader.Preflight(ctx); err != nil {
				return fmt.Errorf("archive: %w", err)
			}

			return nil
		}
	}

	ing := ingest.NewIngester(log, st, resolver, opts)

	summary, err := ing.Ingest(ctx, doc)
	if err != nil {
		return err
	}

	// The session is committed at this point; a failed copy only loses the
	// archived document.
	if uploader != nil {
		if _, err := uploader.Upload(ctx, cfg.Ingest.Environment, doc.Checksum, data); err != nil {
			log.WithError(err).Warn("Failed to archive report")
		}
	}

	log.WithFields(logrus.Fields{
		"session_id": summary.SessionID,
		"report":     cfg.Ingest.Report,
		"tests":      summary.Tests,
		"elapsed":    time.Since(start).Round(time.Millisecond).String(),
	}).Info("Done")

	return nil
}
