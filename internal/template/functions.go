package template

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"

	"httpload/internal/core"
)

const (
	alnum           = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	maxRandomString = 1000
)

// Funcs holds the built-in functions available inside placeholders:
//
//	uuid()              random version 4 UUID
//	timestamp()         Unix seconds
//	timestamp_ms()      Unix milliseconds
//	random(min,max)     integer in [min, max]
//	random_string(n)    n alphanumeric characters
//	date(layout)        current time in a Go layout, RFC 3339 by default
type Funcs struct {
	mu    sync.Mutex
	rng   *rand.Rand
	clock core.Clock
	table map[string]func(args string) (string, error)
}

// NewFuncs seeds the function set. A zero seed picks a time based one; a nil
// clock means wall time.
func NewFuncs(seed int64, clock core.Clock) *Funcs {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if clock == nil {
		clock = core.RealClock{}
	}
	f := &Funcs{
		rng:   rand.New(rand.NewSource(seed)),
		clock: clock,
	}
	f.table = map[string]func(string) (string, error){
		"uuid":          f.uuid,
		"timestamp":     f.timestamp,
		"timestamp_ms":  f.timestampMs,
		"random":        f.random,
		"random_string": f.randomString,
		"date":          f.date,
	}
	return f
}

// eval runs expr when it names a known function call. isFunc is false for
// anything else so the caller can fall back to variable lookup.
func (f *Funcs) eval(expr string) (out string, isFunc bool, err error) {
	open := strings.IndexByte(expr, '(')
	if open < 0 || !strings.HasSuffix(expr, ")") {
		return "", false, nil
	}
	fn, ok := f.table[expr[:open]]
	if !ok {
		return "", false, nil
	}
	out, err = fn(expr[open+1 : len(expr)-1])
	if err != nil {
		return "", true, fmt.Errorf("function %s: %w", expr[:open], err)
	}
	return out, true, nil
}

func noArgs(name, args string) error {
	if strings.TrimSpace(args) != "" {
		return fmt.Errorf("%s() takes no arguments", name)
	}
	return nil
}

func (f *Funcs) uuid(args string) (string, error) {
	if err := noArgs("uuid", args); err != nil {
		return "", err
	}
	var b [16]byte
	f.mu.Lock()
	f.rng.Read(b[:])
	f.mu.Unlock()

	b[6] = b[6]&0x0f | 0x40
	b[8] = b[8]&0x3f | 0x80
	return fmt.Sprintf("%x-%x-%x-%x-%x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16]), nil
}

func (f *Funcs) timestamp(args string) (string, error) {
	if err := noArgs("timestamp", args); err != nil {
		return "", err
	}
	return strconv.FormatInt(f.clock.Now().Unix(), 10), nil
}

func (f *Funcs) timestampMs(args string) (string, error) {
	if err := noArgs("timestamp_ms", args); err != nil {
		return "", err
	}
	return strconv.FormatInt(f.clock.Now().UnixMilli(), 10), nil
}

func (f *Funcs) random(args string) (string, error) {
	lo, hi, ok := strings.Cut(args, ",")
	if !ok || strings.Contains(hi, ",") {
		return "", fmt.Errorf("random(min,max) requires exactly 2 arguments")
	}
	min, err := strconv.ParseInt(strings.TrimSpace(lo), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid min value: %w", err)
	}
	max, err := strconv.ParseInt(strings.TrimSpace(hi), 10, 64)
	if err != nil {
		return "", fmt.Errorf("invalid max value: %w", err)
	}
	if min > max {
		return "", fmt.Errorf("min (%d) must be <= max (%d)", min, max)
	}

	f.mu.Lock()
	n := f.rng.Int63n(max - min + 1)
	f.mu.Unlock()
	return strconv.FormatInt(min+n, 10), nil
}

func (f *Funcs) randomString(args string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(args))
	if err != nil {
		return "", fmt.Errorf("invalid length: %w", err)
	}
	if n <= 0 || n > maxRandomString {
		return "", fmt.Errorf("length must be in [1, %d], got %d", maxRandomString, n)
	}

	b := make([]byte, n)
	f.mu.Lock()
	for i := range b {
		b[i] = alnum[f.rng.Intn(len(alnum))]
	}
	f.mu.Unlock()
	return string(b), nil
}

func (f *Funcs) date(args string) (string, error) {
	layout := strings.TrimSpace(args)
	if layout == "" {
		layout = time.RFC3339
	}
	return f.clock.Now().Format(layout), nil
}
