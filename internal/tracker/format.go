package tracker

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"httpload/internal/core"
)

// FormatText writes the final report for humans.
func FormatText(w io.Writer, s Summary, thresholds *ThresholdResults) {
	if s.Total() == 0 {
		fmt.Fprintln(w, "No transactions recorded")
		return
	}

	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "httpload - Load Test Results")
	fmt.Fprintln(w, "============================")
	fmt.Fprintln(w, "")
	fmt.Fprintf(w, "Duration:       %v\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "Transactions:   %s\n", formatNumber(s.Total()))
	fmt.Fprintf(w, "Success Rate:   %.1f%% (%s / %s)\n",
		s.SuccessRate(), formatNumber(s.Success), formatNumber(s.Total()))
	fmt.Fprintf(w, "Throughput:     %.1f/s\n", s.Throughput)
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Outcomes:")
	for _, o := range core.Outcomes {
		fmt.Fprintf(w, "  %-8s %s\n", o, formatNumber(s.Of(o)))
	}
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Response Times:")
	fmt.Fprintf(w, "  Min:    %s\n", FormatDuration(s.Latency.Min))
	fmt.Fprintf(w, "  Avg:    %s\n", FormatDuration(s.Latency.Avg))
	fmt.Fprintf(w, "  P50:    %s\n", FormatDuration(s.Latency.P50))
	fmt.Fprintf(w, "  P90:    %s\n", FormatDuration(s.Latency.P90))
	fmt.Fprintf(w, "  P95:    %s\n", FormatDuration(s.Latency.P95))
	fmt.Fprintf(w, "  P99:    %s\n", FormatDuration(s.Latency.P99))
	fmt.Fprintf(w, "  Max:    %s\n", FormatDuration(s.Latency.Max))

	if thresholds != nil && len(thresholds.Results) > 0 {
		fmt.Fprintln(w, "")
		fmt.Fprintln(w, "Thresholds:")
		for _, r := range thresholds.Results {
			symbol := "✓"
			if !r.Passed {
				symbol = "✗"
			}
			fmt.Fprintf(w, "  %s %s < %s (actual: %s)\n", symbol, r.Name, r.Threshold, r.Actual)
		}
	}
}

// FormatJSON writes the final report as indented JSON.
func FormatJSON(w io.Writer, s Summary, thresholds *ThresholdResults) error {
	out := struct {
		Duration    string            `json:"duration"`
		Total       int64             `json:"total"`
		Outcomes    Counts            `json:"outcomes"`
		SuccessRate float64           `json:"successRate"`
		Throughput  float64           `json:"throughput"`
		Latency     jsonLatency       `json:"latency"`
		Thresholds  *ThresholdResults `json:"thresholds,omitempty"`
	}{
		Duration:    s.Elapsed.Round(time.Millisecond).String(),
		Total:       s.Total(),
		Outcomes:    s.Counts,
		SuccessRate: s.SuccessRate(),
		Throughput:  s.Throughput,
		Latency:     toJSONLatency(s.Latency),
		Thresholds:  thresholds,
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

type jsonLatency struct {
	Min string `json:"min"`
	Max string `json:"max"`
	Avg string `json:"avg"`
	P50 string `json:"p50"`
	P90 string `json:"p90"`
	P95 string `json:"p95"`
	P99 string `json:"p99"`
}

func toJSONLatency(l LatencyStats) jsonLatency {
	return jsonLatency{
		Min: FormatDuration(l.Min),
		Max: FormatDuration(l.Max),
		Avg: FormatDuration(l.Avg),
		P50: FormatDuration(l.P50),
		P90: FormatDuration(l.P90),
		P95: FormatDuration(l.P95),
		P99: FormatDuration(l.P99),
	}
}

// formatNumber groups thousands with commas.
func formatNumber(n int64) string {
	s := fmt.Sprintf("%d", n)
	if n < 0 {
		return s
	}
	for i := len(s) - 3; i > 0; i -= 3 {
		s = s[:i] + "," + s[i:]
	}
	return s
}
