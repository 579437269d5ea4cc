package metrics

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"httpload/internal/core"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	return rec.Body.String()
}

func TestMetrics_CountsOutcomes(t *testing.T) {
	next := &core.CaptureRecorder{}
	m := New(next)

	m.LogTransaction(core.TransactionResult{Outcome: core.Success, ResponseTime: 20 * time.Millisecond})
	m.LogTransaction(core.TransactionResult{Outcome: core.Success, ResponseTime: 30 * time.Millisecond})
	m.LogTransaction(core.TransactionResult{Outcome: core.Timeout, ResponseTime: time.Second})
	m.LogTransaction(core.TransactionResult{Outcome: core.Dropped})

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`httpload_transactions_total{outcome="SUCCESS"} 2`,
		`httpload_transactions_total{outcome="FAILED"} 0`,
		`httpload_transactions_total{outcome="TIMEOUT"} 1`,
		`httpload_transactions_total{outcome="DROPPED"} 1`,
		`httpload_response_time_seconds_count 3`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in scrape:\n%s", want, body)
		}
	}

	if got := len(next.Results()); got != 4 {
		t.Errorf("expected 4 forwarded results, got %d", got)
	}
}

func TestMetrics_NilNext(t *testing.T) {
	m := New(nil)
	m.LogTransaction(core.TransactionResult{Outcome: core.Failed})
	if !strings.Contains(scrape(t, m.Handler()), `outcome="FAILED"} 1`) {
		t.Error("expected failed transaction to be counted")
	}
}

func TestMetrics_Gauge(t *testing.T) {
	m := New(nil)
	inUse := 3.0
	if err := m.Gauge("generators_in_use", "Leased generators", func() float64 { return inUse }); err != nil {
		t.Fatalf("Gauge: %v", err)
	}

	if !strings.Contains(scrape(t, m.Handler()), "httpload_generators_in_use 3") {
		t.Error("expected gauge value 3")
	}
	inUse = 5
	if !strings.Contains(scrape(t, m.Handler()), "httpload_generators_in_use 5") {
		t.Error("expected gauge to be read at scrape time")
	}

	if err := m.Gauge("generators_in_use", "again", func() float64 { return 0 }); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}

func TestServe(t *testing.T) {
	m := New(nil)
	m.LogTransaction(core.TransactionResult{Outcome: core.Success})

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- Serve(ctx, ln, m.Handler(), nil) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(body), `outcome="SUCCESS"} 1`) {
		t.Errorf("unexpected scrape:\n%s", body)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("expected clean shutdown, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestListenAndServe_BadAddr(t *testing.T) {
	err := ListenAndServe(context.Background(), "256.0.0.1:bad", http.NotFoundHandler(), nil)
	if err == nil {
		t.Error("expected listen error")
	}
}
