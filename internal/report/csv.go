package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"sync"
	"time"

	"httpload/internal/core"
)

var csvHeader = []string{
	"target_time", "request_num", "request_uri", "method",
	"response_time", "outcome", "start_time",
}

// CSVSink writes one row per transaction. Times are seconds since origin.
type CSVSink struct {
	mu     sync.Mutex
	w      *csv.Writer
	c      io.Closer
	origin time.Time
	header bool
}

// NewCSVSink writes to w. origin is the moment times are measured from.
func NewCSVSink(w io.Writer, origin time.Time) *CSVSink {
	s := &CSVSink{w: csv.NewWriter(w), origin: origin}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// CreateCSV creates or truncates the file at path.
func CreateCSV(path string, origin time.Time) (*CSVSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating results file: %w", err)
	}
	return NewCSVSink(f, origin), nil
}

func (s *CSVSink) Write(results []core.TransactionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.header {
		if err := s.w.Write(csvHeader); err != nil {
			return err
		}
		s.header = true
	}
	for _, r := range results {
		if err := s.w.Write(s.row(r)); err != nil {
			return err
		}
	}
	s.w.Flush()
	return s.w.Error()
}

func (s *CSVSink) row(r core.TransactionResult) []string {
	return []string{
		s.seconds(r.TargetTime),
		strconv.Itoa(r.RequestNum),
		r.RequestURI,
		r.Method,
		strconv.FormatFloat(r.ResponseTime.Seconds(), 'f', 6, 64),
		r.Outcome.String(),
		s.seconds(r.StartTime),
	}
}

func (s *CSVSink) seconds(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatFloat(t.Sub(s.origin).Seconds(), 'f', 6, 64)
}

// Close flushes and closes the underlying writer if it has a Close method.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
