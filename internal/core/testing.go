package core

import "sync"

// MockWriter is a thread-safe io.Writer for testing.
type MockWriter struct {
	mu   sync.Mutex
	data []byte
}

func (w *MockWriter) Write(p []byte) (n int, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *MockWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return string(w.data)
}

// CaptureRecorder is a thread-safe Recorder that keeps every result, in the
// order they were logged.
type CaptureRecorder struct {
	mu      sync.Mutex
	results []TransactionResult
}

func (c *CaptureRecorder) LogTransaction(r TransactionResult) {
	c.mu.Lock()
	c.results = append(c.results, r)
	c.mu.Unlock()
}

// Results returns a copy of the logged results.
func (c *CaptureRecorder) Results() []TransactionResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TransactionResult, len(c.results))
	copy(out, c.results)
	return out
}

// Count returns how many results carry the given outcome.
func (c *CaptureRecorder) Count(o Outcome) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, r := range c.results {
		if r.Outcome == o {
			n++
		}
	}
	return n
}
