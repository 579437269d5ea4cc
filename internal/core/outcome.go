// Package core defines the outcome taxonomy and the records shared by the
// generator, executor, tracker and scheduler.
package core

import "fmt"

// Outcome is the final state of one executed transaction.
type Outcome int

const (
	// Success is a 1xx-3xx response whose body was consumed.
	Success Outcome = iota
	// Failed is a 4xx/5xx response or a transport error that was neither a
	// timeout nor a failure to send.
	Failed
	// Timeout is an exceeded connect or read deadline.
	Timeout
	// Dropped is a transaction that never reached the target, either refused
	// at admission or failed before any bytes left the process.
	Dropped
)

// Outcomes lists every outcome in declaration order.
var Outcomes = [...]Outcome{Success, Failed, Timeout, Dropped}

var outcomeNames = [...]string{"SUCCESS", "FAILED", "TIMEOUT", "DROPPED"}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
	return outcomeNames[o]
}

// MarshalText encodes the outcome by name for JSON and CSV output.
func (o Outcome) MarshalText() ([]byte, error) {
	if o < 0 || int(o) >= len(outcomeNames) {
		return nil, fmt.Errorf("invalid outcome %d", int(o))
	}
	return []byte(outcomeNames[o]), nil
}

// UnmarshalText decodes an outcome name.
func (o *Outcome) UnmarshalText(text []byte) error {
	for i, name := range outcomeNames {
		if name == string(text) {
			*o = Outcome(i)
			return nil
		}
	}
	return fmt.Errorf("unknown outcome %q", text)
}
