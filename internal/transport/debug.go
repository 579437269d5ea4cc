package transport

import (
	"context"
	"fmt"
	"log/slog"
)

const maxBodyLogSize = 1024

func (c *Client) debugEnabled() bool {
	return c.logger.Enabled(context.Background(), slog.LevelDebug)
}

func (c *Client) debugRequest(r *Request) {
	if !c.debugEnabled() {
		return
	}
	attrs := []any{"method", r.Method, "url", r.URL, "cookies", len(r.Cookies)}
	if r.Body != "" {
		attrs = append(attrs, "body", truncateBody(r.Body))
	}
	c.logger.Debug(">>> request", attrs...)
}

func (c *Client) debugResponse(r *Request, resp Response) {
	if !c.debugEnabled() {
		return
	}
	c.logger.Debug("<<< response",
		"method", r.Method,
		"url", r.URL,
		"status", resp.StatusCode,
		"elapsed", resp.Elapsed,
		"body", truncateBody(resp.Body),
	)
}

func (c *Client) debugError(r *Request, resp Response) {
	if !c.debugEnabled() {
		return
	}
	c.logger.Debug("!!! request failed",
		"method", r.Method,
		"url", r.URL,
		"failure", resp.Failure,
		"elapsed", resp.Elapsed,
		"error", resp.Err,
	)
}

func truncateBody(body string) string {
	if len(body) <= maxBodyLogSize {
		return body
	}
	return body[:maxBodyLogSize] + fmt.Sprintf("... (truncated, %d bytes total)", len(body))
}
