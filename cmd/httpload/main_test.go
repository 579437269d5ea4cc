package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"httpload/internal/config"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{errThresholds, ExitThresholdFailed},
		{fmt.Errorf("run: %w", errThresholds), ExitThresholdFailed},
		{errors.New("boom"), ExitError},
	}
	for _, tt := range tests {
		if got := exitCode(tt.err); got != tt.want {
			t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

// newFlagCommand registers the run flags on a fresh command so tests do not
// share Changed state.
func newFlagCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	f := cmd.Flags()
	f.IntVarP(&flagGenerators, "generators", "g", 0, "")
	f.DurationVarP(&flagTimeout, "timeout", "t", 0, "")
	f.IntVar(&flagMaxRetries, "max-retries", 0, "")
	f.Int64Var(&flagSeed, "seed", 0, "")
	f.Float64Var(&flagRPS, "rps", 0, "")
	f.DurationVarP(&flagDuration, "duration", "d", 0, "")
	f.DurationVar(&flagInterval, "interval", 0, "")
	f.StringVarP(&flagOutput, "output", "o", "", "")
	f.StringVar(&flagResults, "results", "", "")
	f.StringVar(&flagMetricsAddr, "metrics-addr", "", "")
	f.BoolVar(&flagHTTP2, "http2", false, "")
	if err := cmd.ParseFlags(args); err != nil {
		t.Fatalf("ParseFlags: %v", err)
	}
	return cmd
}

func baseConfig() *config.Config {
	cfg := &config.Config{
		Script:     config.ScriptConfig{Lua: "shop.lua"},
		Generators: 16,
		Timeout:    time.Second,
		Load: config.LoadProfile{Phases: []config.Phase{
			{Name: "ramp", Duration: 10 * time.Second, StartRPS: 1, EndRPS: 10},
			{Name: "steady", Duration: time.Minute, RPS: 10},
		}},
	}
	cfg.ApplyDefaults()
	return cfg
}

func TestApplyFlags_Overrides(t *testing.T) {
	cmd := newFlagCommand(t,
		"-g", "8", "--timeout", "250ms", "--max-retries", "2", "--seed", "7",
		"--rps", "50", "--duration", "2s", "-o", "json", "--results", "out.csv",
		"--metrics-addr", ":9100", "--http2")
	cfg := baseConfig()

	if err := applyFlags(cmd, cfg); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Generators != 8 || cfg.Timeout != 250*time.Millisecond || cfg.MaxRetries != 2 || cfg.Seed != 7 {
		t.Errorf("run options not applied: %+v", cfg)
	}
	if cfg.Output.Format != "json" || cfg.Output.Results != "out.csv" {
		t.Errorf("output not applied: %+v", cfg.Output)
	}
	if cfg.Metrics.Addr != ":9100" || !cfg.HTTP2 {
		t.Errorf("metrics/http2 not applied: %+v", cfg)
	}
	if len(cfg.Load.Phases) != 1 {
		t.Fatalf("expected phases replaced by one, got %d", len(cfg.Load.Phases))
	}
	if p := cfg.Load.Phases[0]; p.RPS != 50 || p.Duration != 2*time.Second {
		t.Errorf("unexpected phase %+v", p)
	}
}

func TestApplyFlags_UnsetKeepsConfig(t *testing.T) {
	cmd := newFlagCommand(t)
	cfg := baseConfig()

	if err := applyFlags(cmd, cfg); err != nil {
		t.Fatalf("applyFlags: %v", err)
	}
	if cfg.Generators != 16 || cfg.Timeout != time.Second || len(cfg.Load.Phases) != 2 {
		t.Errorf("config changed without flags: %+v", cfg)
	}
}

func TestApplyFlags_RateNeedsDuration(t *testing.T) {
	for _, args := range [][]string{{"--rps", "10"}, {"--duration", "5s"}} {
		cmd := newFlagCommand(t, args...)
		err := applyFlags(cmd, baseConfig())
		if err == nil || !strings.Contains(err.Error(), "must be given together") {
			t.Errorf("%v: expected pairing error, got %v", args, err)
		}
	}
}
