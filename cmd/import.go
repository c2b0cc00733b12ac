package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chadmayfield/waterqd/internal/csvio"
	"github.com/chadmayfield/waterqd/internal/store"
	"github.com/spf13/cobra"
)

var importFile string

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Bulk-load observations from a CSV file",
	Long: `Import reads a CSV file with the columns latitude, longitude, date_time,
description, ph, conductivity, do and contaminants (names separated by ';')
and stores every row as a new observation. An id column, if present, is ignored.`,
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "CSV file to import")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

func runImport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	f, err := os.Open(importFile)
	if err != nil {
		return fmt.Errorf("opening %s: %w", importFile, err)
	}
	defer f.Close() //nolint:errcheck

	s, err := store.Open(cfg.Storage.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	n, err := csvio.Import(ctx, s, f, cmd.ErrOrStderr())
	if err != nil {
		slog.Error("import stopped", "file", importFile, "imported", n, "error", err)
		return err
	}
	slog.Info("import complete", "file", importFile, "imported", n)
	return nil
}
