package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/ethpandaops/reportoor/pkg/config"
	"github.com/ethpandaops/reportoor/pkg/ingest"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version information set at build time.
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile  string
	logLevel string
	log      *logrus.Logger
)

const (
	// exitAborted is used for the runs that stop before ingesting anything:
	// missing environment, unknown tester or an already ingested report.
	exitAborted = -1
	exitFailure = 1
)

func main() {
	log = logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(reportFailure(log, err))
	}
}

// reportFailure logs a command error and returns the exit status for it.
// A report that is already stored is an expected outcome of re-running a
// CI job, not a failure.
func reportFailure(log logrus.FieldLogger, err error) int {
	if errors.Is(err, ingest.ErrDuplicateReport) {
		log.WithError(err).Info("Report already ingested, nothing to do")
	} else {
		log.WithError(err).Error("Command failed")
	}

	return exitCode(err)
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	var missing *config.MissingEnvError

	switch {
	case errors.As(err, &missing),
		errors.Is(err, ingest.ErrUnknownTester),
		errors.Is(err, ingest.ErrDuplicateReport):
		return exitAborted
	default:
		return exitFailure
	}
}

var rootCmd = &cobra.Command{
	Use:   "reportoor",
	Short: "Mochawesome test report ingestion tool",
	Long: `Reportoor ingests mochawesome JSON test reports into a relational
database. Each distinct report becomes one test run session; services,
suites, issues and test cases are shared across runs.`,
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if logLevel == "" {
			return nil
		}

		return setLogLevel(logLevel)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("reportoor %s\n", version)
		fmt.Printf("  commit: %s\n", commit)
		fmt.Printf("  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"log level ("+strings.Join(logLevels(), ", ")+"), overrides global.log_level")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration and applies its log level unless
// --log-level was given.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	if logLevel == "" {
		if err := setLogLevel(cfg.Global.LogLevel); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

func setLogLevel(name string) error {
	level, err := logrus.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}

	log.SetLevel(level)

	return nil
}

func logLevels() []string {
	levels := make([]string, 0, len(logrus.AllLevels))
	for _, level := range logrus.AllLevels {
		levels = append(levels, level.String())
	}

	return levels
}
