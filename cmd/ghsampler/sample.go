package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ghsampler/pkg/auth"
	"ghsampler/pkg/config"
	"ghsampler/pkg/github"
	"ghsampler/pkg/ledger"
	"ghsampler/pkg/logger"
	"ghsampler/pkg/ratelimit"
	"ghsampler/pkg/sampler"
	"ghsampler/pkg/store"
	"ghsampler/pkg/stratum"
	"ghsampler/pkg/ui"
)

var sampleFlags struct {
	database    string
	statistics  string
	minSize     int
	maxSize     int
	stratumSize int
	noThrottle  bool
	token       string
}

var sampleCmd = &cobra.Command{
	Use:   "sample <query>",
	Short: "Run an exhaustive stratified sample of a code search query",
	Long: `Sample harvests every result of the given GitHub code search query,
stratified by file size.

The query uses GitHub code search syntax, e.g. "language:go filename:main.go"
or "extension:tla". A size qualifier is appended per stratum, so the query
itself must not contain one.

Interrupt with Ctrl-C at any time; rerunning with the same statistics file
resumes after the last completed stratum.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		overrides := sampleFlagOverrides(cmd.Flags())
		overrides["query"] = strings.Join(args, " ")
		return runSample(cmd.Context(), overrides)
	},
}

// sampleFlagOverrides collects only the flags the user actually set, so
// flag defaults never shadow values from the config file or environment.
func sampleFlagOverrides(fl *pflag.FlagSet) map[string]interface{} {
	overrides := map[string]interface{}{}
	if fl.Changed("database") {
		overrides["database"] = sampleFlags.database
	}
	if fl.Changed("statistics") {
		overrides["statistics"] = sampleFlags.statistics
	}
	if fl.Changed("min-size") {
		overrides["min-size"] = sampleFlags.minSize
	}
	if fl.Changed("max-size") {
		overrides["max-size"] = sampleFlags.maxSize
	}
	if fl.Changed("stratum-size") {
		overrides["stratum-size"] = sampleFlags.stratumSize
	}
	if fl.Changed("no-throttle") {
		overrides["throttle"] = !sampleFlags.noThrottle
	}
	if sampleFlags.token != "" {
		overrides["token"] = sampleFlags.token
	}
	if logLevel != "" {
		overrides["log-level"] = logLevel
	}
	return overrides
}

func init() {
	sampleCmd.Flags().StringVarP(&sampleFlags.database, "database", "d", "results.db", "SQLite database for sampled results")
	sampleCmd.Flags().StringVarP(&sampleFlags.statistics, "statistics", "s", "sampling.csv", "CSV file for per-stratum statistics (doubles as the resume journal)")
	sampleCmd.Flags().IntVar(&sampleFlags.minSize, "min-size", 1, "smallest file size to sample, in bytes")
	sampleCmd.Flags().IntVar(&sampleFlags.maxSize, "max-size", config.MaxSearchableFileSize, "largest file size to sample, in bytes")
	sampleCmd.Flags().IntVar(&sampleFlags.stratumSize, "stratum-size", 1, "width of each file-size stratum, in bytes")
	sampleCmd.Flags().BoolVar(&sampleFlags.noThrottle, "no-throttle", false, "disable request throttling")
	sampleCmd.Flags().StringVar(&sampleFlags.token, "token", "", "GitHub token (overrides environment and keyring)")

	rootCmd.AddCommand(sampleCmd)
}

func runSample(ctx context.Context, overrides map[string]interface{}) error {
	cfg, err := config.Load(cfgFile, overrides)
	if err != nil {
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	// Resolve the token before touching any durable state, so a missing
	// credential fails fast and leaves nothing behind.
	token := cfg.GitHub.Token
	if token == "" {
		var source string
		token, source, err = auth.NewManager().Token()
		if err != nil {
			return err
		}
		log.DebugWithFields("resolved GitHub token", map[string]interface{}{
			"source": source,
		})
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Output.Database)
	if err != nil {
		return err
	}
	defer st.Close()

	lg, completed, err := ledger.Open(cfg.Output.Statistics)
	if err != nil {
		return err
	}
	defer lg.Close()

	var limiter ratelimit.Limiter = ratelimit.Noop{}
	if cfg.Search.Throttle {
		limiter = ratelimit.NewFixedInterval(cfg.Search.ThrottleInterval)
	}

	client := github.NewClient(cfg.GitHub.APIBaseURL, token, cfg.Search.PerPage, cfg.GitHub.RequestTimeout, limiter, log)
	planner := stratum.NewPlanner(cfg.Search.MinSize, cfg.Search.MaxSize, cfg.Search.StratumSize)
	session := sampler.NewSession(cfg.Search.MinSize, cfg.Search.MaxSize)

	smp := sampler.New(client, st, lg, planner, session, cfg.Search.Query, log)
	smp.Replay(completed)

	display := ui.NewDisplay(session)
	display.Start()

	err = smp.Run(ctx)
	display.Stop()

	if err != nil {
		if errors.Is(err, context.Canceled) {
			log.Info("interrupted, progress saved; rerun with the same arguments to resume")
			return nil
		}
		log.WithError(err).Error("sampling failed")
		return err
	}

	repos, _ := st.RepoCount(context.Background())
	files, _ := st.FileCount(context.Background())
	log.InfoWithFields("sampling complete", map[string]interface{}{
		"repositories": repos,
		"files":        files,
		"database":     cfg.Output.Database,
		"statistics":   cfg.Output.Statistics,
	})
	return nil
}
