package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/chadmayfield/waterqd/internal/csvio"
	"github.com/chadmayfield/waterqd/internal/query"
	"github.com/chadmayfield/waterqd/internal/store"
	"github.com/spf13/cobra"
)

var (
	exportFile         string
	exportStart        string
	exportEnd          string
	exportMinPH        float64
	exportMaxPH        float64
	exportContaminants string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write observations to a CSV file",
	Long: `Export writes every stored observation to a CSV file. With --start and
--end only observations in that inclusive date range are written, further
narrowed by the optional pH bounds and contaminant substring.`,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFile, "file", "", "CSV file to write")
	exportCmd.Flags().StringVar(&exportStart, "start", "", "inclusive start date_time")
	exportCmd.Flags().StringVar(&exportEnd, "end", "", "inclusive end date_time")
	exportCmd.Flags().Float64Var(&exportMinPH, "min-ph", 0, "minimum pH")
	exportCmd.Flags().Float64Var(&exportMaxPH, "max-ph", 0, "maximum pH")
	exportCmd.Flags().StringVar(&exportContaminants, "contaminants", "", "contaminant substring")
	_ = exportCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(exportCmd)
}

// exportPredicate builds the scan predicate from the export flags.
func exportPredicate(cmd *cobra.Command) (store.Predicate, error) {
	flags := cmd.Flags()
	filtered := flags.Changed("min-ph") || flags.Changed("max-ph") || exportContaminants != ""
	if exportStart == "" && exportEnd == "" {
		if filtered {
			return store.Predicate{}, errors.New("--min-ph, --max-ph and --contaminants require --start and --end")
		}
		return store.Predicate{}, nil
	}
	if exportStart == "" || exportEnd == "" {
		return store.Predicate{}, errors.New("--start and --end must be given together")
	}

	f := query.NewFilter(exportStart, exportEnd).WithContaminant(exportContaminants)
	if flags.Changed("min-ph") {
		f.WithMinPH(exportMinPH)
	}
	if flags.Changed("max-ph") {
		f.WithMaxPH(exportMaxPH)
	}
	return f.Predicate(), nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	p, err := exportPredicate(cmd)
	if err != nil {
		return err
	}

	s, err := store.Open(cfg.Storage.Driver, cfg.DSN())
	if err != nil {
		return err
	}
	defer s.Close() //nolint:errcheck

	f, err := os.OpenFile(exportFile, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating %s: %w", exportFile, err)
	}

	n, err := csvio.Export(context.Background(), s, p, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing %s: %w", exportFile, cerr)
	}
	if err != nil {
		return err
	}
	slog.Info("export complete", "file", exportFile, "exported", n)
	return nil
}
