package report

import (
	"bytes"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"httpload/internal/core"
)

type closeRecorder struct {
	bytes.Buffer
	closed bool
}

func (c *closeRecorder) Close() error {
	c.closed = true
	return nil
}

func TestCSVSink_Write(t *testing.T) {
	var buf bytes.Buffer
	sink := NewCSVSink(&buf, epoch)

	err := sink.Write([]core.TransactionResult{
		{
			RequestNum:   3,
			RequestURI:   "http://localhost/cart?id=1,2",
			Method:       "POST",
			TargetTime:   epoch.Add(1500 * time.Millisecond),
			StartTime:    epoch.Add(1520 * time.Millisecond),
			Outcome:      core.Success,
			ResponseTime: 250 * time.Millisecond,
		},
		{
			RequestNum:   4,
			RequestURI:   "http://localhost/",
			Method:       "GET",
			TargetTime:   epoch.Add(2 * time.Second),
			Outcome:      core.Dropped,
			ResponseTime: 0,
		},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Write([]core.TransactionResult{{RequestNum: 5, Outcome: core.Timeout}}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("reading CSV: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected header and 3 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "target_time,request_num,request_uri,method,response_time,outcome,start_time" {
		t.Errorf("unexpected header %v", records[0])
	}

	want := []string{"1.500000", "3", "http://localhost/cart?id=1,2", "POST", "0.250000", "SUCCESS", "1.520000"}
	for i, v := range want {
		if records[1][i] != v {
			t.Errorf("column %s: expected %q, got %q", csvHeader[i], v, records[1][i])
		}
	}
	if records[2][5] != "DROPPED" || records[2][6] != "" {
		t.Errorf("unexpected dropped row %v", records[2])
	}
	if records[3][0] != "" || records[3][5] != "TIMEOUT" {
		t.Errorf("unexpected timeout row %v", records[3])
	}
}

func TestCSVSink_CloseClosesWriter(t *testing.T) {
	w := &closeRecorder{}
	sink := NewCSVSink(w, epoch)
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !w.closed {
		t.Error("expected underlying writer to be closed")
	}
}

func TestCreateCSV(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.csv")
	sink, err := CreateCSV(path, epoch)
	if err != nil {
		t.Fatalf("CreateCSV: %v", err)
	}
	if err := sink.Write([]core.TransactionResult{{RequestNum: 1, Outcome: core.Success}}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading results: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Errorf("expected 2 lines, got %d: %q", len(lines), data)
	}
}

func TestCreateCSV_BadPath(t *testing.T) {
	if _, err := CreateCSV(filepath.Join(t.TempDir(), "missing", "results.csv"), epoch); err == nil {
		t.Error("expected error for a missing directory")
	}
}
