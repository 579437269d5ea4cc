package core

import "time"

// TransactionResult records one executed transaction. It is built once by the
// executor and not modified after it has been handed to a Recorder.
type TransactionResult struct {
	RequestNum   int           `json:"requestNum"`
	RequestURI   string        `json:"requestURI"`
	Method       string        `json:"method"`
	TargetTime   time.Time     `json:"targetTime"`
	StartTime    time.Time     `json:"startTime"`
	Outcome      Outcome       `json:"outcome"`
	ResponseTime time.Duration `json:"responseTime"`
}

// ResponseTimeMillis returns the response time truncated to milliseconds.
func (r TransactionResult) ResponseTimeMillis() int64 {
	return r.ResponseTime.Milliseconds()
}

// Recorder receives every executed transaction exactly once.
type Recorder interface {
	LogTransaction(TransactionResult)
}

// NullRecorder discards all results.
var NullRecorder Recorder = nullRecorder{}

type nullRecorder struct{}

func (nullRecorder) LogTransaction(TransactionResult) {}
