package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "waterqd",
	Short: "Water quality observation record service",
	Long: `waterqd stores field water-quality observations (location, time, pH,
conductivity, dissolved oxygen, contaminants) in SQLite or PostgreSQL and
exposes a REST API for recording, filtering, and finding the observations
nearest to a point.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text or json, overrides config)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging installs the default slog handler. The --log-format flag wins
// over the configured format.
func setupLogging(configured string) {
	format := configured
	if logFormat != "" {
		format = logFormat
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}

	if format == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
