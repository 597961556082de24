package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/ethpandaops/reportoor/pkg/store"
	"github.com/spf13/cobra"
)

var testerCmd = &cobra.Command{
	Use:   "tester",
	Short: "Manage tester identities",
	Long:  `Ingestion refuses reports from testers that are not registered.`,
}

var testerAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Register a tester",
	Args:  cobra.ExactArgs(1),
	RunE:  runTesterAdd,
}

var testerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered testers",
	Args:  cobra.NoArgs,
	RunE:  runTesterList,
}

func init() {
	testerCmd.AddCommand(testerAddCmd, testerListCmd)
	rootCmd.AddCommand(testerCmd)
}

// withStore runs fn against a started store built from the config.
func withStore(ctx context.Context, fn func(store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if err := cfg.ValidateDatabase(); err != nil {
		return fmt.Errorf("validating database config: %w", err)
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

	return fn(st)
}

func runTesterAdd(cmd *cobra.Command, args []string) error {
	name := strings.TrimSpace(args[0])
	if name == "" {
		return fmt.Errorf("tester name must not be empty")
	}

	return withStore(cmd.Context(), func(st store.Store) error {
		tester, err := st.CreateTester(cmd.Context(), name)
		if err != nil {
			return err
		}

		log.WithField("id", tester.ID).
			WithField("name", tester.Name).
			Info("Tester registered")

		return nil
	})
}

func runTesterList(cmd *cobra.Command, args []string) error {
	return withStore(cmd.Context(), func(st store.Store) error {
		testers, err := st.ListTesters(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tCREATED")

		for _, t := range testers {
			fmt.Fprintf(w, "%d\t%s\t%s\n", t.ID, t.Name, t.CreatedAt.Format("2006-01-02 15:04:05"))
		}

		return w.Flush()
	})
}
