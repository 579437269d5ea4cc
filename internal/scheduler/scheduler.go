// Package scheduler fires request slots at the rate the load profile asks
// for and hands them to a Runner.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"httpload/internal/config"
	"httpload/internal/core"
	"httpload/internal/ratelimit"
)

const (
	// phaseTickInterval is how often we check for phase transitions
	// and adjust the rate during load profile execution.
	phaseTickInterval = 100 * time.Millisecond

	// maxBacklog bounds the firings waiting for a slot. Beyond it pacing
	// itself stalls.
	maxBacklog = 1 << 16
)

var ErrAlreadyRunning = errors.New("scheduler already running")

// Runner executes the transaction of one slot and returns the slot via done.
type Runner interface {
	Run(ctx context.Context, slot *core.Slot, done core.SlotFunc)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, slot *core.Slot, done core.SlotFunc)

func (f RunnerFunc) Run(ctx context.Context, slot *core.Slot, done core.SlotFunc) {
	f(ctx, slot, done)
}

type Options struct {
	// Slots bounds the transactions in flight.
	Slots int
	// Workers is the number of goroutines handing queued slots to the
	// Runner. Defaults to Slots.
	Workers int
	Clock   core.Clock
	Logger  *slog.Logger
}

// Scheduler owns a fixed set of slots. Requests become due at the rate of
// the load profile whether or not a slot is free; a due request takes the
// next free slot and keeps the time it became due, so a saturated target
// shows up as queueing delay instead of a lower rate. A slot comes back
// through Return.
type Scheduler struct {
	runner  Runner
	phases  []config.Phase
	limiter *ratelimit.RateLimiter
	workers int
	clock   core.Clock
	logger  *slog.Logger

	free     chan *core.Slot
	queue    chan *core.Slot
	inflight sync.WaitGroup
	wg       sync.WaitGroup

	running atomic.Bool
	fired   atomic.Int64
	backlog atomic.Int64
	active  atomic.Int32
	panics  atomic.Int64
}

func New(runner Runner, phases []config.Phase, opts Options) (*Scheduler, error) {
	if len(phases) == 0 {
		return nil, fmt.Errorf("scheduler: no load phases")
	}
	if opts.Slots < 1 {
		return nil, fmt.Errorf("scheduler: slots must be positive, got %d", opts.Slots)
	}
	if opts.Workers < 1 {
		opts.Workers = opts.Slots
	}
	if opts.Clock == nil {
		opts.Clock = core.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Scheduler{
		runner:  runner,
		phases:  phases,
		limiter: ratelimit.NewRateLimiter(0),
		workers: opts.Workers,
		clock:   opts.Clock,
		logger:  opts.Logger,
		free:    make(chan *core.Slot, opts.Slots),
		queue:   make(chan *core.Slot, opts.Slots),
	}
	for i := 0; i < opts.Slots; i++ {
		s.free <- &core.Slot{ID: i + 1}
	}
	return s, nil
}

// Run paces slots through every phase, then waits for the transactions in
// flight to return their slots. It returns ctx.Err() if ctx ended the run
// early. Dispatched transactions run under ctx, so they outlive the last
// phase but not a cancellation.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.running.Swap(true) {
		return ErrAlreadyRunning
	}

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.work(ctx)
	}

	s.pace(ctx)

	close(s.queue)
	s.wg.Wait()
	s.inflight.Wait()
	return ctx.Err()
}

func (s *Scheduler) pace(ctx context.Context) {
	pm := ratelimit.NewPhaseManagerWithClock(s.phases, s.clock)
	pacing, cancel := context.WithTimeout(ctx, pm.Remaining())
	defer cancel()

	s.logger.Info("starting load profile",
		"phases", len(s.phases), "duration", pm.Remaining())

	s.limiter.SetRate(pm.TargetRPS())
	s.wg.Add(1)
	go s.followPhases(pacing, pm)

	due := make(chan firing, maxBacklog)
	released := make(chan struct{})
	go s.release(ctx, due, released)
	defer func() {
		close(due)
		<-released
	}()

	for {
		if s.limiter.Rate() == 0 {
			// unthrottled: fire whenever a slot comes back
			select {
			case <-pacing.Done():
				return
			case slot := <-s.free:
				now := s.clock.Now()
				s.fire(slot, firing{target: now, start: now})
			}
			continue
		}

		target, err := s.limiter.Wait(pacing)
		if err != nil {
			return
		}
		s.backlog.Add(1)
		select {
		case due <- firing{target: target, start: s.clock.Now()}:
		case <-pacing.Done():
			s.backlog.Add(-1)
			return
		}
	}
}

// firing is one request the profile asked for. start is when it became
// due; waiting for a free slot afterwards counts as queueing delay.
type firing struct {
	target, start time.Time
}

// release pairs due firings with free slots in order. Firings left when
// pacing ends are still released unless ctx is done.
func (s *Scheduler) release(ctx context.Context, due <-chan firing, released chan<- struct{}) {
	defer close(released)
	for f := range due {
		s.backlog.Add(-1)
		if ctx.Err() != nil {
			s.discard(due)
			return
		}
		select {
		case <-ctx.Done():
			s.discard(due)
			return
		case slot := <-s.free:
			if ctx.Err() != nil {
				s.free <- slot
				s.discard(due)
				return
			}
			s.fire(slot, f)
		}
	}
}

func (s *Scheduler) discard(due <-chan firing) {
	for range due {
		s.backlog.Add(-1)
	}
}

func (s *Scheduler) fire(slot *core.Slot, f firing) {
	slot.TargetTime = f.target
	slot.StartTime = f.start
	s.fired.Add(1)
	s.inflight.Add(1)
	s.queue <- slot
}

// followPhases keeps the limiter on the rate of the current phase.
func (s *Scheduler) followPhases(ctx context.Context, pm *ratelimit.PhaseManager) {
	defer s.wg.Done()

	ticker := time.NewTicker(phaseTickInterval)
	defer ticker.Stop()

	currentPhaseIdx := -1
	for {
		idx := pm.CurrentPhaseIndex()
		if idx >= len(s.phases) {
			return
		}
		rps := pm.TargetRPS()
		if idx != currentPhaseIdx {
			currentPhaseIdx = idx
			phase := s.phases[idx]
			s.logger.Info("phase",
				"name", phase.Name, "duration", phase.Duration, "rps", rps)
		}
		if rps != s.limiter.Rate() {
			s.limiter.SetRate(rps)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) work(ctx context.Context) {
	defer s.wg.Done()
	for slot := range s.queue {
		s.dispatch(ctx, slot)
	}
}

func (s *Scheduler) dispatch(ctx context.Context, slot *core.Slot) {
	var once sync.Once
	done := func(sl *core.Slot) {
		once.Do(func() { s.Return(sl) })
	}
	defer s.recoverPanic(slot, done)

	s.active.Add(1)
	s.runner.Run(ctx, slot, done)
}

// recoverPanic keeps a panicking Runner from losing the slot or the worker.
func (s *Scheduler) recoverPanic(slot *core.Slot, done core.SlotFunc) {
	if r := recover(); r != nil {
		s.panics.Add(1)
		s.logger.Error("runner panicked", "slot", slot.ID, "panic", fmt.Sprint(r))
		done(slot)
	}
}

// Return puts slot back on the free list. Runners reach it through the done
// callback, which guards against returning a slot twice.
func (s *Scheduler) Return(slot *core.Slot) {
	slot.TargetTime = time.Time{}
	slot.StartTime = time.Time{}
	s.active.Add(-1)
	s.free <- slot
	s.inflight.Done()
}

// Fired returns the number of slots released so far.
func (s *Scheduler) Fired() int64 { return s.fired.Load() }

// Backlog returns the number of due requests waiting for a free slot.
func (s *Scheduler) Backlog() int64 { return s.backlog.Load() }

// Active returns the number of slots out with a Runner.
func (s *Scheduler) Active() int { return int(s.active.Load()) }

// Panics returns how many Runner panics were recovered.
func (s *Scheduler) Panics() int64 { return s.panics.Load() }

// Rate returns the current target rate.
func (s *Scheduler) Rate() float64 { return s.limiter.Rate() }
