// Package executor runs one transaction per scheduled slot: it leases a
// generator, sends the generator's next call and turns whatever happens into
// one of the four outcomes.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"httpload/internal/core"
	"httpload/internal/generator"
	"httpload/internal/transport"
)

// DefaultUserAgent identifies the load generator to the target.
const DefaultUserAgent = "Mozilla/5.0 (compatible; httpload)"

// Options tune an Executor.
type Options struct {
	// Timeout is both the admission budget for queueing delay and the
	// request timeout. Zero disables both.
	Timeout   time.Duration
	UserAgent string
	Clock     core.Clock
	Logger    *slog.Logger
}

// Executor is safe for concurrent use; every Run works on its own leased
// generator.
type Executor struct {
	pool      *generator.Pool
	sender    transport.Sender
	recorder  core.Recorder
	timeout   time.Duration
	userAgent string
	clock     core.Clock
	logger    *slog.Logger
}

func New(pool *generator.Pool, sender transport.Sender, recorder core.Recorder, opts Options) *Executor {
	e := &Executor{
		pool:      pool,
		sender:    sender,
		recorder:  recorder,
		timeout:   opts.Timeout,
		userAgent: opts.UserAgent,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if e.recorder == nil {
		e.recorder = core.NullRecorder
	}
	if e.userAgent == "" {
		e.userAgent = DefaultUserAgent
	}
	if e.clock == nil {
		e.clock = core.RealClock{}
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

func (e *Executor) Timeout() time.Duration { return e.timeout }

// Run executes the transaction for slot. It returns once the request is
// dispatched; done receives the slot after the result is recorded and the
// generator released. Faults never escape Run: they become outcomes.
//
// If no generator can be leased before ctx is done, slot goes straight back
// to done and nothing is recorded.
func (e *Executor) Run(ctx context.Context, slot *core.Slot, done core.SlotFunc) {
	g, err := e.pool.Lease(ctx)
	if err != nil {
		e.logger.Debug("no generator leased", "slot", slot.ID, "error", err)
		if done != nil {
			done(slot)
		}
		return
	}

	tx := &transaction{
		e:     e,
		g:     g,
		slot:  slot,
		done:  done,
		start: e.clock.Now(),
	}
	tx.run(ctx)
}

// transaction is one pass through admitted, dispatched and completed.
type transaction struct {
	e     *Executor
	g     *generator.Generator
	slot  *core.Slot
	done  core.SlotFunc
	start time.Time

	call    generator.Call
	applied bool
}

func (tx *transaction) run(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			tx.fault(fmt.Errorf("panic: %v", r))
		}
	}()

	peeked, err := tx.g.PeekCall()
	if err != nil {
		tx.generationFailed(err)
		return
	}
	if tx.e.timeout > 0 && tx.slot.Queued(tx.start) > tx.e.timeout {
		tx.call = peeked
		tx.finish(core.Dropped, 0)
		return
	}

	tx.call, err = tx.g.NextCall()
	if err != nil {
		tx.generationFailed(err)
		return
	}

	req := &transport.Request{
		Method:      tx.call.Method,
		URL:         tx.call.URL,
		Body:        tx.call.Body,
		ContentType: tx.call.ContentType,
		UserAgent:   tx.e.userAgent,
		Timeout:     tx.e.timeout,
	}
	if u, err := url.Parse(tx.call.URL); err == nil && u.Host != "" {
		req.Cookies = tx.g.Cookies(u)
	}
	tx.e.sender.Send(ctx, req, tx.complete)
}

// complete handles the transport's completion.
func (tx *transaction) complete(resp transport.Response) {
	defer func() {
		if r := recover(); r != nil {
			tx.fault(fmt.Errorf("panic: %v", r))
		}
	}()

	outcome, rt := Classify(resp, tx.e.timeout)
	if resp.Err == nil && resp.URL != nil {
		tx.g.AddCookies(resp.URL, resp.Cookies)
	}
	if outcome == core.Success {
		tx.g.RecordResponse(resp.Body)
	} else {
		tx.e.logger.Debug("transaction failed",
			"generator", tx.g.ID(),
			"call", tx.call.Num,
			"url", tx.call.URL,
			"outcome", outcome,
			"status", resp.StatusCode,
			"failure", resp.Failure,
			"error", resp.Err,
		)
	}
	tx.finish(outcome, rt)
}

func (tx *transaction) generationFailed(err error) {
	var genErr *generator.GenerationError
	if errors.As(err, &genErr) {
		tx.call.Num = genErr.Num
	}
	tx.e.logger.Warn("call generation failed", "generator", tx.g.ID(), "error", err)
	tx.finish(core.Failed, 0)
}

// fault turns a panic into a FAILED result unless the transaction already
// completed.
func (tx *transaction) fault(err error) {
	if tx.applied {
		tx.e.logger.Error("panic after completion", "generator", tx.g.ID(), "error", err)
		return
	}
	tx.e.logger.Error("transaction panicked", "generator", tx.g.ID(), "call", tx.call.Num, "error", err)
	tx.finish(core.Failed, 0)
}

// finish applies the retry policy, then records the result, releases the
// generator and returns the slot, in that order. Release and return happen
// even if recording panics.
func (tx *transaction) finish(outcome core.Outcome, rt time.Duration) {
	tx.applied = true
	defer func() {
		if err := tx.e.pool.Release(tx.g); err != nil {
			tx.e.logger.Error("releasing generator", "generator", tx.g.ID(), "error", err)
		}
		if tx.done != nil {
			tx.done(tx.slot)
		}
	}()

	tx.g.ApplyOutcome(outcome)
	tx.e.recorder.LogTransaction(core.TransactionResult{
		RequestNum:   tx.call.Num,
		RequestURI:   tx.call.URL,
		Method:       tx.call.Method,
		TargetTime:   tx.slot.TargetTime,
		StartTime:    tx.start,
		Outcome:      outcome,
		ResponseTime: rt,
	})
}
