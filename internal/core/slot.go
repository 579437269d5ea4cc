package core

import "time"

// Slot is one scheduled request opportunity. Slots belong to the scheduler;
// the executor only reads the two timestamps and hands the slot back.
type Slot struct {
	ID         int
	TargetTime time.Time // intended dispatch time
	StartTime  time.Time // when the slot was released for execution
}

// Queued returns the time the slot has been waiting at now. StartTime is used
// when set, TargetTime otherwise.
func (s *Slot) Queued(now time.Time) time.Duration {
	ref := s.StartTime
	if ref.IsZero() {
		ref = s.TargetTime
	}
	return now.Sub(ref)
}

// SlotFunc receives a slot back after its transaction completed.
type SlotFunc func(*Slot)
