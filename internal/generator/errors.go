package generator

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports a script that cannot be initialised.
	ErrConfiguration = errors.New("script configuration")
	// ErrEmptyCycle reports a script whose first call already ends the cycle.
	ErrEmptyCycle = errors.New("script produced no calls in a cycle")
	// ErrNotLeased reports a release of a generator the pool did not lease out.
	ErrNotLeased = errors.New("generator not leased from this pool")
)

// GenerationError wraps a script failure while producing call Num. Num is 0
// when cycle initialisation failed.
type GenerationError struct {
	Num int
	Err error
}

func (e *GenerationError) Error() string {
	if e.Num == 0 {
		return fmt.Sprintf("cycle init: %v", e.Err)
	}
	return fmt.Sprintf("generating call %d: %v", e.Num, e.Err)
}

func (e *GenerationError) Unwrap() error {
	return e.Err
}
