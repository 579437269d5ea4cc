// Command httpload runs a scripted HTTP load test.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"httpload/internal/config"
	"httpload/internal/logging"
)

const (
	ExitSuccess         = 0
	ExitThresholdFailed = 1
	ExitError           = 2
)

var version = "0.1.0"

var errThresholds = errors.New("threshold check failed")

func main() {
	os.Exit(exitCode(rootCmd.Execute()))
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return ExitSuccess
	case errors.Is(err, errThresholds):
		return ExitThresholdFailed
	default:
		return ExitError
	}
}

var rootCmd = &cobra.Command{
	Use:   "httpload",
	Short: "httpload - scripted HTTP load generator",
	Long: `httpload fires HTTP requests at the rate a load profile asks for. Requests
come from scripts: a Lua file with onCycle/onCall functions or a list of YAML
steps. Each transaction ends as SUCCESS, FAILED, TIMEOUT or DROPPED.

Examples:
  httpload run load.yaml
  httpload run load.yaml --rps 200 --duration 1m
  httpload run load.yaml -o json --results results.csv
  httpload validate load.yaml`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Run a load test",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return err
		}
		return runTest(cmd, cfg)
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <config.yaml>",
	Short: "Check a config file and its script without sending requests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd, args[0])
		if err == nil {
			_, err = buildFactory(cfg, nil)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: ok (%d phases, %v)\n",
			args[0], len(cfg.Load.Phases), cfg.Load.TotalDuration())
		return nil
	},
}

// Flags for run/validate; set values override the config file.
var (
	flagGenerators  int
	flagTimeout     time.Duration
	flagMaxRetries  int
	flagSeed        int64
	flagRPS         float64
	flagDuration    time.Duration
	flagInterval    time.Duration
	flagOutput      string
	flagResults     string
	flagMetricsAddr string
	flagHTTP2       bool
	flagLogLevel    string
	flagNoColor     bool
	flagVerbose     bool
)

func init() {
	for _, cmd := range []*cobra.Command{runCmd, validateCmd} {
		f := cmd.Flags()
		f.IntVarP(&flagGenerators, "generators", "g", 0, "number of call generators (default 128)")
		f.DurationVarP(&flagTimeout, "timeout", "t", 0, "request timeout and admission budget (0 = none)")
		f.IntVar(&flagMaxRetries, "max-retries", 0, "attempts per call before moving on")
		f.Int64Var(&flagSeed, "seed", 0, "seed for script randomness (0 = time based)")
		f.Float64Var(&flagRPS, "rps", 0, "constant rate; with --duration replaces the configured phases")
		f.DurationVarP(&flagDuration, "duration", "d", 0, "test duration for --rps")
		f.DurationVar(&flagInterval, "interval", 0, "reporting interval (default 1s)")
		f.StringVarP(&flagOutput, "output", "o", "", "summary format: text, json")
		f.StringVar(&flagResults, "results", "", "write per-request results to this CSV file")
		f.StringVar(&flagMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
		f.BoolVar(&flagHTTP2, "http2", false, "negotiate HTTP/2 over TLS")
	}

	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored logs")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "log every request and response (same as --log-level debug)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
}

// loadConfig reads path, applies flag overrides and validates the result.
func loadConfig(cmd *cobra.Command, path string) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s:\n%w", path, err)
	}
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, cfg *config.Config) error {
	f := cmd.Flags()
	if f.Changed("generators") {
		cfg.Generators = flagGenerators
	}
	if f.Changed("timeout") {
		cfg.Timeout = flagTimeout
	}
	if f.Changed("max-retries") {
		cfg.MaxRetries = flagMaxRetries
	}
	if f.Changed("seed") {
		cfg.Seed = flagSeed
	}
	if f.Changed("interval") {
		cfg.Interval = flagInterval
	}
	if f.Changed("output") {
		cfg.Output.Format = flagOutput
	}
	if f.Changed("results") {
		cfg.Output.Results = flagResults
	}
	if f.Changed("metrics-addr") {
		cfg.Metrics.Addr = flagMetricsAddr
	}
	if f.Changed("http2") {
		cfg.HTTP2 = flagHTTP2
	}

	switch {
	case f.Changed("rps") && f.Changed("duration"):
		cfg.Load.Phases = []config.Phase{{Name: "constant", Duration: flagDuration, RPS: flagRPS}}
	case f.Changed("rps") || f.Changed("duration"):
		return errors.New("--rps and --duration must be given together")
	}
	return nil
}

func runTest(cmd *cobra.Command, cfg *config.Config) error {
	level, err := logging.ParseLevel(flagLogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return err
	}
	if flagVerbose {
		level = slog.LevelDebug
	}
	logger := logging.New(os.Stderr, logging.Options{Level: level, NoColor: flagNoColor})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	results, err := execute(ctx, cfg, logger, cmd.OutOrStdout())
	if err != nil {
		logger.Error("load test failed", "error", err)
		return err
	}
	if ctx.Err() != nil {
		// interrupted runs report what they have and exit cleanly
		return nil
	}
	if !results.Passed {
		if cfg.Output.Format != "json" {
			fmt.Fprintln(os.Stderr, "\nThreshold check failed!")
		}
		return errThresholds
	}
	return nil
}
