package executor

import (
	"time"

	"httpload/internal/core"
	"httpload/internal/transport"
)

// Classify maps a completion to its outcome and response time. A timeout is
// charged the configured timeout rather than the elapsed time; requests that
// were never sent have no response time.
func Classify(resp transport.Response, timeout time.Duration) (core.Outcome, time.Duration) {
	if resp.Err != nil {
		switch resp.Failure {
		case transport.FailureTimeout:
			if timeout > 0 {
				return core.Timeout, timeout
			}
			return core.Timeout, resp.Elapsed
		case transport.FailureNotSent:
			return core.Dropped, 0
		default:
			return core.Failed, resp.Elapsed
		}
	}
	if resp.StatusCode >= 400 {
		return core.Failed, resp.Elapsed
	}
	return core.Success, resp.Elapsed
}
