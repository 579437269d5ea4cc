// Package tracker aggregates transaction results into interval snapshots and
// a cumulative summary.
package tracker

import (
	"sync"
	"time"

	"github.com/codahale/hdrhistogram"

	"httpload/internal/core"
)

// Latencies are recorded in microseconds, up to an hour.
const (
	histMin     = 1
	histMax     = int64(time.Hour / time.Microsecond)
	histSigFigs = 3
)

// Counts holds one counter per outcome.
type Counts struct {
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Timeout int64 `json:"timeout"`
	Dropped int64 `json:"dropped"`
}

func (c *Counts) add(o core.Outcome) {
	switch o {
	case core.Success:
		c.Success++
	case core.Failed:
		c.Failed++
	case core.Timeout:
		c.Timeout++
	case core.Dropped:
		c.Dropped++
	}
}

// Total is the sum of all counters.
func (c Counts) Total() int64 { return c.Success + c.Failed + c.Timeout + c.Dropped }

// Of returns the counter for o.
func (c Counts) Of(o core.Outcome) int64 {
	switch o {
	case core.Success:
		return c.Success
	case core.Failed:
		return c.Failed
	case core.Timeout:
		return c.Timeout
	case core.Dropped:
		return c.Dropped
	}
	return 0
}

// IntervalSnapshot is everything logged since the previous retrieval.
type IntervalSnapshot struct {
	Counts
	// AvgResponseTime is in seconds, over every result except drops.
	AvgResponseTime float64
	Results         []core.TransactionResult
}

// Latency computes response time statistics over the snapshot's results,
// drops excluded.
func (s IntervalSnapshot) Latency() LatencyStats {
	ds := make([]time.Duration, 0, len(s.Results))
	for _, r := range s.Results {
		if r.Outcome != core.Dropped {
			ds = append(ds, r.ResponseTime)
		}
	}
	return ComputeLatency(ds)
}

// Tracker is the single owner of all result counters of a run. All methods
// are safe for concurrent use.
type Tracker struct {
	clock core.Clock

	mu       sync.Mutex
	interval Counts
	total    Counts
	rtSumMs  int64
	rtCount  int64
	results  []core.TransactionResult
	hist     *hdrhistogram.Histogram
	started  time.Time
}

// New returns an empty tracker on the wall clock.
func New() *Tracker {
	return NewWithClock(core.RealClock{})
}

func NewWithClock(clock core.Clock) *Tracker {
	return &Tracker{
		clock:   clock,
		hist:    hdrhistogram.New(histMin, histMax, histSigFigs),
		started: clock.Now(),
	}
}

// LogTransaction counts r and queues it for the next snapshot.
func (t *Tracker) LogTransaction(r core.TransactionResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interval.add(r.Outcome)
	t.total.add(r.Outcome)
	t.results = append(t.results, r)

	if r.Outcome == core.Dropped {
		return
	}
	t.rtSumMs += r.ResponseTimeMillis()
	t.rtCount++

	us := r.ResponseTime.Microseconds()
	if us < histMin {
		us = histMin
	} else if us > histMax {
		us = histMax
	}
	_ = t.hist.RecordValue(us) // clamped into range above
}

// RetrieveIntervalAndReset returns the interval's counts, average response
// time and queued results, and starts a new interval. The average divides in
// whole milliseconds before converting to seconds.
func (t *Tracker) RetrieveIntervalAndReset() IntervalSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := IntervalSnapshot{
		Counts:  t.interval,
		Results: t.results,
	}
	if t.rtCount > 0 {
		snap.AvgResponseTime = float64(t.rtSumMs/t.rtCount) / 1000.0
	}

	t.interval = Counts{}
	t.rtSumMs = 0
	t.rtCount = 0
	t.results = nil
	return snap
}

// Reset clears every counter, the latency histogram and the result queue,
// and restarts the elapsed time.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.interval = Counts{}
	t.total = Counts{}
	t.rtSumMs = 0
	t.rtCount = 0
	t.results = nil
	t.hist.Reset()
	t.started = t.clock.Now()
}

// Totals returns the cumulative counts since creation or the last Reset.
func (t *Tracker) Totals() Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

// Summary is the cumulative view of a run.
type Summary struct {
	Counts
	Elapsed time.Duration
	// Throughput is completed transactions per second, drops excluded.
	Throughput float64
	Latency    LatencyStats
}

// SuccessRate returns successes as a percentage of all transactions.
func (s Summary) SuccessRate() float64 {
	if s.Total() == 0 {
		return 0
	}
	return float64(s.Success) / float64(s.Total()) * 100
}

// Summary computes the cumulative summary.
func (t *Tracker) Summary() Summary {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := Summary{
		Counts:  t.total,
		Elapsed: t.clock.Since(t.started),
	}
	if s.Elapsed > 0 {
		s.Throughput = float64(s.Total()-s.Dropped) / s.Elapsed.Seconds()
	}
	if t.hist.TotalCount() > 0 {
		s.Latency = LatencyStats{
			Min: usToDuration(t.hist.Min()),
			Max: usToDuration(t.hist.Max()),
			Avg: time.Duration(t.hist.Mean() * float64(time.Microsecond)),
			P50: usToDuration(t.hist.ValueAtQuantile(50)),
			P90: usToDuration(t.hist.ValueAtQuantile(90)),
			P95: usToDuration(t.hist.ValueAtQuantile(95)),
			P99: usToDuration(t.hist.ValueAtQuantile(99)),
		}
	}
	return s
}

func usToDuration(us int64) time.Duration { return time.Duration(us) * time.Microsecond }
