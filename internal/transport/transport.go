// Package transport sends generated calls over HTTP asynchronously and
// classifies how they ended.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/net/http2"

	"httpload/internal/core"
)

const (
	// DefaultMaxBodySize bounds how much of a response body is kept for the
	// script. The rest is drained and discarded.
	DefaultMaxBodySize = 10 * 1024 * 1024

	defaultIdleConns = 1024
)

// ErrClosed is reported for requests sent after Close.
var ErrClosed = errors.New("transport closed: rejected execution")

// Request is one call ready to be sent.
type Request struct {
	Method      string
	URL         string
	Body        string
	ContentType string
	UserAgent   string
	Cookies     []*http.Cookie
	// Timeout bounds connecting and reading the whole response. Zero means
	// no limit.
	Timeout time.Duration
}

// Response is the completion of a Request. Err is nil when a response was
// received, whatever its status.
type Response struct {
	StatusCode int
	Body       string
	Cookies    []*http.Cookie
	URL        *url.URL // final URL after redirects
	Err        error
	Failure    Failure
	Elapsed    time.Duration
}

// Sender dispatches requests. done is called exactly once, possibly on
// another goroutine.
type Sender interface {
	Send(ctx context.Context, req *Request, done func(Response))
}

// Options configures a Client.
type Options struct {
	HTTP2             bool
	DisableKeepAlives bool
	// MaxConnsPerHost limits connections per target; zero means unlimited.
	MaxConnsPerHost    int
	MaxBodySize        int64
	InsecureSkipVerify bool
	Logger             *slog.Logger
	Clock              core.Clock
}

// Client is an asynchronous Sender backed by net/http.
type Client struct {
	hc      *http.Client
	logger  *slog.Logger
	clock   core.Clock
	maxBody int64

	inflight sync.WaitGroup
	closed   atomic.Bool
}

// NewClient builds a client with its own connection pool.
func NewClient(opts Options) (*Client, error) {
	tr := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12, InsecureSkipVerify: opts.InsecureSkipVerify},
		MaxIdleConns:        defaultIdleConns,
		MaxIdleConnsPerHost: defaultIdleConns,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		DisableKeepAlives:   opts.DisableKeepAlives,
		DialContext:         (&net.Dialer{KeepAlive: 30 * time.Second}).DialContext,
	}
	if opts.HTTP2 {
		tr.ForceAttemptHTTP2 = true
		if err := http2.ConfigureTransport(tr); err != nil {
			return nil, fmt.Errorf("configuring http2: %w", err)
		}
	}
	return newClient(&http.Client{Transport: tr}, opts), nil
}

func newClient(hc *http.Client, opts Options) *Client {
	c := &Client{
		hc:      hc,
		logger:  opts.Logger,
		clock:   opts.Clock,
		maxBody: opts.MaxBodySize,
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.clock == nil {
		c.clock = core.RealClock{}
	}
	if c.maxBody <= 0 {
		c.maxBody = DefaultMaxBodySize
	}
	return c
}

// Send starts req on its own goroutine. After Close, done receives ErrClosed
// immediately.
func (c *Client) Send(ctx context.Context, req *Request, done func(Response)) {
	if c.closed.Load() {
		done(Response{Err: ErrClosed, Failure: FailureNotSent})
		return
	}
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		done(c.do(ctx, req))
	}()
}

// Do sends req and waits for its completion.
func (c *Client) Do(ctx context.Context, req *Request) Response {
	if c.closed.Load() {
		return Response{Err: ErrClosed, Failure: FailureNotSent}
	}
	return c.do(ctx, req)
}

func (c *Client) do(ctx context.Context, r *Request) Response {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	req, err := c.build(ctx, r)
	if err != nil {
		return Response{Err: err, Failure: FailureNotSent}
	}
	c.debugRequest(r)

	start := c.clock.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		out := Response{Err: err, Failure: Classify(err), Elapsed: c.clock.Since(start)}
		c.debugError(r, out)
		return out
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err == nil {
		_, err = io.Copy(io.Discard, resp.Body)
	}
	out := Response{
		StatusCode: resp.StatusCode,
		Body:       string(body),
		Cookies:    resp.Cookies(),
		URL:        resp.Request.URL,
		Elapsed:    c.clock.Since(start),
	}
	if err != nil {
		out.Err = fmt.Errorf("reading response body: %w", err)
		out.Failure = Classify(err)
		c.debugError(r, out)
		return out
	}
	c.debugResponse(r, out)
	return out
}

func (c *Client) build(ctx context.Context, r *Request) (*http.Request, error) {
	var body io.Reader
	if r.Body != "" {
		body = strings.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if req.URL.Host == "" {
		return nil, fmt.Errorf("%w: %q has no host", errInvalidRequest, r.URL)
	}
	if r.UserAgent != "" {
		req.Header.Set("User-Agent", r.UserAgent)
	}
	if r.ContentType != "" {
		req.Header.Set("Content-Type", r.ContentType)
	}
	for _, ck := range r.Cookies {
		req.AddCookie(ck)
	}
	return req, nil
}

// Close rejects new requests, waits for those in flight and closes idle
// connections.
func (c *Client) Close() error {
	c.closed.Store(true)
	c.inflight.Wait()
	c.hc.CloseIdleConnections()
	return nil
}
