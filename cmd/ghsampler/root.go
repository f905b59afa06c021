package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version info, set at build time via -ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:   "ghsampler",
	Short: "Exhaustive stratified sampler for GitHub Code Search",
	Long: `ghsampler harvests every result of a GitHub code search query.

A single query returns at most 1000 results, so ghsampler splits the
file-size axis into narrow strata and searches each one separately,
in both sort orders when a stratum is too populous for one pass.
Results land in a SQLite database; per-stratum statistics land in a
CSV file that doubles as a resume journal, so an interrupted run can
be restarted with the same arguments and pick up where it left off.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Errors are printed here rather than
// by cobra, so failures that happen before the logger exists still
// reach stderr.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(rootCmd.ErrOrStderr(), "Error: %s\n", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: .ghsampler.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.SetVersionTemplate(`{{.Name}} {{.Version}} (commit ` + commit + `, built ` + date + `)
`)
}
