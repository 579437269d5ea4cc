package tracker

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Thresholds are pass/fail criteria checked against the final summary.
type Thresholds struct {
	ResponseTime *LatencyThresholds `yaml:"response_time"`
	// FailureRate bounds non-successful transactions, e.g. "1%".
	FailureRate string `yaml:"failure_rate"`
	// DropRate bounds dropped transactions alone.
	DropRate string `yaml:"drop_rate"`
}

// LatencyThresholds are upper bounds; zero means unchecked.
type LatencyThresholds struct {
	Avg time.Duration `yaml:"avg"`
	P50 time.Duration `yaml:"p50"`
	P90 time.Duration `yaml:"p90"`
	P95 time.Duration `yaml:"p95"`
	P99 time.Duration `yaml:"p99"`
}

// ThresholdResult is the outcome of one check.
type ThresholdResult struct {
	Name      string `json:"name"`
	Passed    bool   `json:"passed"`
	Threshold string `json:"threshold"`
	Actual    string `json:"actual"`
}

// ThresholdResults holds every check made.
type ThresholdResults struct {
	Passed  bool              `json:"passed"`
	Results []ThresholdResult `json:"results"`
}

// Validate reports malformed rates up front.
func (t *Thresholds) Validate() error {
	if t == nil {
		return nil
	}
	for name, rate := range map[string]string{"failure_rate": t.FailureRate, "drop_rate": t.DropRate} {
		if rate == "" {
			continue
		}
		if _, err := parsePercentage(rate); err != nil {
			return fmt.Errorf("thresholds.%s: %w", name, err)
		}
	}
	return nil
}

// Check evaluates the thresholds. A nil receiver always passes.
func (t *Thresholds) Check(s Summary) *ThresholdResults {
	res := &ThresholdResults{Passed: true}
	if t == nil {
		return res
	}

	if rt := t.ResponseTime; rt != nil {
		for _, c := range []struct {
			name        string
			limit, have time.Duration
		}{
			{"response_time.avg", rt.Avg, s.Latency.Avg},
			{"response_time.p50", rt.P50, s.Latency.P50},
			{"response_time.p90", rt.P90, s.Latency.P90},
			{"response_time.p95", rt.P95, s.Latency.P95},
			{"response_time.p99", rt.P99, s.Latency.P99},
		} {
			if c.limit == 0 {
				continue
			}
			res.add(ThresholdResult{
				Name:      c.name,
				Passed:    c.have < c.limit,
				Threshold: FormatDuration(c.limit),
				Actual:    FormatDuration(c.have),
			})
		}
	}

	failed := s.Total() - s.Success
	res.checkRate("failure_rate", t.FailureRate, failed, s.Total())
	res.checkRate("drop_rate", t.DropRate, s.Dropped, s.Total())
	return res
}

func (r *ThresholdResults) add(tr ThresholdResult) {
	if !tr.Passed {
		r.Passed = false
	}
	r.Results = append(r.Results, tr)
}

func (r *ThresholdResults) checkRate(name, limit string, n, total int64) {
	if limit == "" {
		return
	}
	max, err := parsePercentage(limit)
	if err != nil {
		return
	}
	var actual float64
	if total > 0 {
		actual = float64(n) / float64(total) * 100
	}
	r.add(ThresholdResult{
		Name:      name,
		Passed:    actual < max,
		Threshold: limit,
		Actual:    fmt.Sprintf("%.2f%%", actual),
	})
}

// Violations returns the failed checks.
func (r *ThresholdResults) Violations() []ThresholdResult {
	var out []ThresholdResult
	for _, tr := range r.Results {
		if !tr.Passed {
			out = append(out, tr)
		}
	}
	return out
}

func parsePercentage(s string) (float64, error) {
	s = strings.TrimSpace(s)
	num, ok := strings.CutSuffix(s, "%")
	if !ok {
		return 0, fmt.Errorf("invalid percentage format: %s", s)
	}
	return strconv.ParseFloat(num, 64)
}

// FormatDuration renders d with a unit suited to its size.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}
