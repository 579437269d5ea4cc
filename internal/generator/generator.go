// Package generator produces the scripted calls a load test sends and applies
// the per-call retry policy.
//
// A Generator is stateful and not safe for concurrent use. Generators are
// handed out by a Pool, which guarantees a single holder at a time.
package generator

import (
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync/atomic"

	"golang.org/x/net/publicsuffix"

	"httpload/internal/core"
)

// Script is the scripting capability a Generator drives.
type Script interface {
	// OnCycle runs once every time the call cycle (re)starts.
	OnCycle() error
	// OnCall returns the text of call n, n >= 1. ok is false when the cycle
	// has no call n.
	OnCall(n int) (text string, ok bool, err error)
	// Observe makes the last response body available to later calls.
	Observe(body string)
}

// Generator walks a script's call cycle. It keeps a lookahead cache so the
// next call can be inspected without consuming it, and decides after every
// outcome whether the same call is tried again.
type Generator struct {
	id         int
	script     Script
	maxRetries int

	next    int   // index the script is asked for next; < 1 before the first cycle
	restart bool  // the script ended the cycle
	cache   *Call // generated, not yet consumed
	pending int   // index whose outcome is awaited, 0 if none
	retries int
	last    Call

	jar *cookiejar.Jar

	owner  *Pool
	leased atomic.Bool
}

// New creates a generator. maxRetries is the number of attempts made on a
// call before moving on; values below 1 mean a single attempt.
func New(id int, script Script, maxRetries int) (*Generator, error) {
	if script == nil {
		return nil, fmt.Errorf("%w: generator %d has no script", ErrConfiguration, id)
	}
	jar, err := newJar()
	if err != nil {
		return nil, err
	}
	return &Generator{
		id:         id,
		script:     script,
		maxRetries: maxRetries,
		jar:        jar,
	}, nil
}

func newJar() (*cookiejar.Jar, error) {
	return cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
}

func (g *Generator) ID() int { return g.id }

// Retries returns the attempts already made on the current call.
func (g *Generator) Retries() int { return g.retries }

func (g *Generator) MaxRetries() int { return g.maxRetries }

// LastCall returns the call most recently returned by NextCall.
func (g *Generator) LastCall() Call { return g.last }

// Peek returns the index of the call NextCall will return, generating and
// caching it when needed. Repeated calls return the same index until the
// cache is consumed or ApplyOutcome moves on.
func (g *Generator) Peek() (int, error) {
	c, err := g.PeekCall()
	if err != nil {
		return 0, err
	}
	return c.Num, nil
}

// PeekCall is Peek returning the whole cached call.
func (g *Generator) PeekCall() (Call, error) {
	if g.cache == nil {
		c, err := g.generate()
		if err != nil {
			return Call{}, err
		}
		g.cache = &c
	}
	return *g.cache, nil
}

// NextCall returns the next call of the cycle. A cached call is returned
// without evaluating the script again.
func (g *Generator) NextCall() (Call, error) {
	var c Call
	if g.cache != nil {
		c = *g.cache
		g.cache = nil
	} else {
		var err error
		if c, err = g.generate(); err != nil {
			return Call{}, err
		}
	}
	g.pending = c.Num
	g.last = c
	return c, nil
}

// generate evaluates the script at the current index, restarting the cycle
// first when it has not started or has ended. A failed evaluation leaves the
// index and the retry counter untouched.
func (g *Generator) generate() (Call, error) {
	for {
		if g.next < 1 || g.restart {
			if err := g.restartCycle(); err != nil {
				g.pending = 0
				return Call{}, err
			}
		}

		text, ok, err := g.script.OnCall(g.next)
		if err != nil {
			g.pending = g.next
			return Call{}, &GenerationError{Num: g.next, Err: err}
		}
		if !ok {
			if g.next == 1 {
				g.restart = true
				g.pending = 0
				return Call{}, &GenerationError{Num: 1, Err: ErrEmptyCycle}
			}
			g.restart = true
			continue
		}

		c := ParseCall(g.next, text)
		g.next++
		return c, nil
	}
}

func (g *Generator) restartCycle() error {
	if err := g.script.OnCycle(); err != nil {
		return &GenerationError{Err: err}
	}
	jar, err := newJar()
	if err != nil {
		return &GenerationError{Err: err}
	}
	g.jar = jar
	g.next = 1
	g.restart = false
	g.retries = 0
	return nil
}

// ApplyOutcome applies the retry policy for the outcome of the current call.
// Success moves on. Any other outcome counts an attempt; while fewer than
// maxRetries attempts were made the same call is emitted again, otherwise the
// counter is cleared and the generator moves on.
func (g *Generator) ApplyOutcome(o core.Outcome) {
	if o != core.Success {
		g.retries++
		if g.retries < g.maxRetries {
			g.repeat()
			return
		}
	}
	g.retries = 0
	g.advance()
}

// repeat arranges for the current call to be emitted again. A cached call
// simply stays cached; an emitted one is evaluated again at the same index.
func (g *Generator) repeat() {
	if g.cache == nil && g.pending > 0 {
		g.next = g.pending
	}
	g.pending = 0
}

// advance consumes the current call.
func (g *Generator) advance() {
	switch {
	case g.cache != nil:
		g.cache = nil
	case g.pending > 0:
		g.next = g.pending + 1
	}
	g.pending = 0
}

// RecordResponse feeds a response body to the script's content functions.
func (g *Generator) RecordResponse(body string) {
	g.script.Observe(body)
}

// AddCookie merges one Set-Cookie header value received from u.
func (g *Generator) AddCookie(u *url.URL, setCookie string) error {
	c, err := http.ParseSetCookie(setCookie)
	if err != nil {
		return fmt.Errorf("parsing cookie from %s: %w", u.Host, err)
	}
	g.jar.SetCookies(u, []*http.Cookie{c})
	return nil
}

// AddCookies merges response cookies received from u.
func (g *Generator) AddCookies(u *url.URL, cookies []*http.Cookie) {
	if len(cookies) == 0 {
		return
	}
	g.jar.SetCookies(u, cookies)
}

// Cookies returns the unexpired cookies to send to u.
func (g *Generator) Cookies(u *url.URL) []*http.Cookie {
	return g.jar.Cookies(u)
}

// Close releases the script when it holds resources.
func (g *Generator) Close() error {
	if c, ok := g.script.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
