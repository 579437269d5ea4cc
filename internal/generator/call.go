package generator

import (
	"net/http"
	"strings"
)

// Directives recognised at the start of a call's text. Matching is
// case-sensitive.
const (
	postDirective = "[POST]"
	putDirective  = "[PUT]"
	jsonMarker    = "[JSON]"

	jsonContentType = "application/json"
)

// Call is one generated request.
type Call struct {
	Num         int    // position in the call cycle, starting at 1
	Text        string // script output, directives included
	Method      string
	URL         string
	Body        string
	ContentType string
}

// ParseCall turns script output into a request. A leading [POST] or [PUT]
// selects the method; GET is the default. Any other leading bracketed token is
// stripped and ignored. For POST calls a [JSON] marker separates the URL from
// a literal JSON body.
func ParseCall(num int, text string) Call {
	text = strings.TrimSpace(text)
	c := Call{Num: num, Text: text, Method: http.MethodGet}

	rest := text
	if strings.HasPrefix(rest, "[") {
		switch {
		case strings.HasPrefix(rest, postDirective):
			c.Method = http.MethodPost
		case strings.HasPrefix(rest, putDirective):
			c.Method = http.MethodPut
		}
		if end := strings.Index(rest, "]"); end >= 0 {
			rest = rest[end+1:]
		}
	}

	if c.Method == http.MethodPost {
		if u, body, ok := strings.Cut(rest, jsonMarker); ok {
			rest = u
			c.Body = body
			c.ContentType = jsonContentType
		}
	}

	c.URL = strings.TrimSpace(rest)
	return c
}
