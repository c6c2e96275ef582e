// hcletter drafts honor-council letters from similarity reports: it resolves
// each suspected group against the report, downloads the evidence pages,
// renders a LaTeX letter per group and compiles it.
//
// Usage:
//
//	hcletter run -i cases.yaml [-s students.csv] [-o output] [--serial]
//	hcletter resolve -i cases.yaml
//	hcletter history [--run <id>]
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"hcletter/internal/format"
	"hcletter/internal/logging"
)

// version is set at build time via -ldflags.
var version = "dev"

var globalFlags struct {
	logLevel  string
	logFormat string
	table     string
}

var rootCmd = &cobra.Command{
	Use:   "hcletter",
	Short: "Draft honor-council letters from code similarity reports",
	Long: "hcletter reads a case file, fetches each similarity report, downloads the\n" +
		"evidence pages for every suspected group and renders one LaTeX letter per group.",
	SilenceUsage: true,
	CompletionOptions: cobra.CompletionOptions{
		HiddenDefaultCmd: true,
	},
	PersistentPreRunE: setupLogging,
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.Version = version

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&globalFlags.logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	pf.StringVar(&globalFlags.logFormat, "log-format", "text", "Log format: text or json")
	pf.StringVar(&globalFlags.table, "format", "ascii", "Table format: ascii or markdown")
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	// a missing .env is fine
	_ = godotenv.Load()

	level, err := logging.ParseLevel(globalFlags.logLevel)
	if err != nil {
		return err
	}
	if runFlags.verbose {
		level = slog.LevelDebug
	}
	return logging.Init(level, globalFlags.logFormat, cmd.ErrOrStderr())
}

func tableMode() format.Mode { return format.ParseMode(globalFlags.table) }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
