// Package report turns tracker intervals into log lines and per-request
// result files while a run is in progress.
package report

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"httpload/internal/core"
	"httpload/internal/tracker"
)

// IntervalSource hands out everything recorded since the previous call.
type IntervalSource interface {
	RetrieveIntervalAndReset() tracker.IntervalSnapshot
}

// Sink receives the raw results of each interval in recording order.
type Sink interface {
	Write(results []core.TransactionResult) error
}

type Options struct {
	Sink   Sink
	Logger *slog.Logger
	Clock  core.Clock
}

// Reporter drains the tracker once per interval.
type Reporter struct {
	src      IntervalSource
	interval time.Duration
	sink     Sink
	logger   *slog.Logger
	clock    core.Clock

	mu        sync.Mutex
	start     time.Time
	last      time.Time
	intervals int
}

func New(src IntervalSource, interval time.Duration, opts Options) *Reporter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	now := opts.Clock.Now()
	return &Reporter{
		src:      src,
		interval: interval,
		sink:     opts.Sink,
		logger:   opts.Logger,
		clock:    opts.Clock,
		start:    now,
		last:     now,
	}
}

// Run reports every interval until ctx is done, then reports what is left.
func (r *Reporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.Report()
		case <-ticker.C:
			if err := r.Report(); err != nil {
				return err
			}
		}
	}
}

// Report retrieves one interval, logs it and passes its results to the sink.
func (r *Reporter) Report() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := r.src.RetrieveIntervalAndReset()
	now := r.clock.Now()
	span := now.Sub(r.last)
	r.last = now
	r.intervals++

	var rps float64
	if span > 0 {
		rps = float64(snap.Total()-snap.Dropped) / span.Seconds()
	}
	lat := snap.Latency()
	r.logger.Info("interval",
		"n", r.intervals,
		"elapsed", now.Sub(r.start).Round(time.Millisecond),
		"rps", round1(rps),
		"success", snap.Success,
		"failed", snap.Failed,
		"timeout", snap.Timeout,
		"dropped", snap.Dropped,
		"avg_rt", snap.AvgResponseTime,
		"p95", tracker.FormatDuration(lat.P95),
	)

	if r.sink == nil || len(snap.Results) == 0 {
		return nil
	}
	return r.sink.Write(snap.Results)
}

// Intervals returns how many intervals were reported.
func (r *Reporter) Intervals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.intervals
}

func round1(f float64) float64 {
	return float64(int64(f*10+0.5)) / 10
}
