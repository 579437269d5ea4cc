package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"httpload/internal/config"
	"httpload/internal/core"
	"httpload/internal/data"
	"httpload/internal/executor"
	"httpload/internal/generator"
	"httpload/internal/metrics"
	"httpload/internal/report"
	"httpload/internal/scheduler"
	"httpload/internal/script"
	"httpload/internal/tracker"
	"httpload/internal/transport"
)

// execute runs the load test described by cfg and writes the summary to
// out. It returns the threshold results; an interrupted run still reports.
func execute(ctx context.Context, cfg *config.Config, logger *slog.Logger, out io.Writer) (*tracker.ThresholdResults, error) {
	factory, err := buildFactory(cfg, logger)
	if err != nil {
		return nil, err
	}

	pool, err := generator.NewPool(cfg.Generators, func(id int) (*generator.Generator, error) {
		s, err := factory(id)
		if err != nil {
			return nil, err
		}
		return generator.New(id, s, cfg.MaxRetries)
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := pool.Close(); err != nil {
			logger.Warn("closing generators", "error", err)
		}
	}()

	client, err := transport.NewClient(transport.Options{
		HTTP2:              cfg.HTTP2,
		DisableKeepAlives:  cfg.DisableKeepAlives,
		InsecureSkipVerify: cfg.InsecureSkipVerify,
		Logger:             logger,
	})
	if err != nil {
		return nil, err
	}
	defer client.Close()

	tr := tracker.New()
	var recorder core.Recorder = tr
	var m *metrics.Metrics
	if cfg.Metrics.Addr != "" {
		m = metrics.New(tr)
		recorder = m
	}

	exec := executor.New(pool, client, recorder, executor.Options{
		Timeout:   cfg.Timeout,
		UserAgent: cfg.UserAgent,
		Logger:    logger,
	})
	sched, err := scheduler.New(exec, cfg.Load.Phases, scheduler.Options{
		Slots:  cfg.Generators,
		Logger: logger,
	})
	if err != nil {
		return nil, err
	}

	if m != nil {
		gauges := []struct {
			name, help string
			fn         func() float64
		}{
			{"generators_in_use", "Generators leased by running transactions", func() float64 { return float64(pool.InUse()) }},
			{"slots_active", "Slots out with the executor", func() float64 { return float64(sched.Active()) }},
			{"target_rps", "Rate the load profile currently asks for", sched.Rate},
			{"scheduler_backlog", "Due requests waiting for a free slot", func() float64 { return float64(sched.Backlog()) }},
		}
		for _, g := range gauges {
			if err := m.Gauge(g.name, g.help, g.fn); err != nil {
				return nil, err
			}
		}
	}

	var sink report.Sink
	if cfg.Output.Results != "" {
		csvSink, err := report.CreateCSV(cfg.Output.Results, time.Now())
		if err != nil {
			return nil, err
		}
		defer func() {
			if err := csvSink.Close(); err != nil {
				logger.Warn("closing results file", "error", err)
			}
		}()
		sink = csvSink
	}
	reporter := report.New(tr, cfg.Interval, report.Options{Sink: sink, Logger: logger})

	logger.Info("httpload starting",
		"generators", cfg.Generators, "timeout", cfg.Timeout, "maxRetries", cfg.MaxRetries,
		"duration", cfg.Load.TotalDuration())

	g, gctx := errgroup.WithContext(ctx)
	// reporting outlives pacing so the final interval is flushed
	background, stopBackground := context.WithCancel(context.Background())
	defer stopBackground()

	g.Go(func() error {
		defer stopBackground()
		err := sched.Run(gctx)
		if err != nil && ctx.Err() != nil {
			logger.Warn("interrupted, reporting partial results")
			return nil
		}
		return err
	})
	g.Go(func() error {
		return reporter.Run(background)
	})
	if m != nil {
		g.Go(func() error {
			return metrics.ListenAndServe(background, cfg.Metrics.Addr, m.Handler(), logger)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	summary := tr.Summary()
	results := cfg.Thresholds.Check(summary)
	if cfg.Output.Format == "json" {
		if err := tracker.FormatJSON(out, summary, results); err != nil {
			return nil, err
		}
	} else {
		tracker.FormatText(out, summary, results)
	}
	return results, nil
}

// buildFactory loads the data sources and compiles the script once.
func buildFactory(cfg *config.Config, logger *slog.Logger) (script.Factory, error) {
	sources := make(data.Sources, len(cfg.Script.Data))
	for _, d := range cfg.Script.Data {
		mode, err := data.ParseMode(d.Mode)
		if err != nil {
			return nil, fmt.Errorf("data source %q: %w", d.Name, err)
		}
		src, err := data.Load(d.Name, d.File, mode, cfg.Dir, cfg.Seed)
		if err != nil {
			return nil, err
		}
		sources[d.Name] = src
	}

	steps := make([]script.Step, len(cfg.Script.Steps))
	for i, st := range cfg.Script.Steps {
		steps[i] = script.Step{
			Name:    st.Name,
			Method:  st.Method,
			URL:     st.URL,
			Body:    st.Body,
			Extract: st.Extract,
		}
	}

	return script.NewFactory(script.Source{
		LuaFile: cfg.Path(cfg.Script.Lua),
		Steps:   steps,
		Data:    sources,
		Seed:    cfg.Seed,
		Logger:  logger,
	})
}
