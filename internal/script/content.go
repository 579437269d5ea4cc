package script

import (
	"fmt"
	"regexp"
	"strings"
)

// Content is the body of the last successful response, searchable by the
// script's html functions.
type Content struct {
	body  string
	lines []string
	cache map[string]*regexp.Regexp
}

// Set replaces the content.
func (c *Content) Set(body string) {
	c.body = body
	c.lines = nil
}

func (c *Content) Body() string { return c.body }

func (c *Content) compile(expr string) (*regexp.Regexp, error) {
	if re, ok := c.cache[expr]; ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	if c.cache == nil {
		c.cache = make(map[string]*regexp.Regexp)
	}
	c.cache[expr] = re
	return re, nil
}

// Lines returns the lines of the content that contain a match of expr.
func (c *Content) Lines(expr string) ([]string, error) {
	re, err := c.compile(expr)
	if err != nil {
		return nil, err
	}
	if c.lines == nil {
		c.lines = strings.Split(strings.ReplaceAll(c.body, "\r\n", "\n"), "\n")
	}
	var out []string
	for _, line := range c.lines {
		if re.MatchString(line) {
			out = append(out, line)
		}
	}
	return out, nil
}

// Extract returns every match of expr in document order.
func (c *Content) Extract(expr string) ([]string, error) {
	re, err := c.compile(expr)
	if err != nil {
		return nil, err
	}
	return re.FindAllString(c.body, -1), nil
}

// ExtractBetween returns every match of expr that is preceded by prefix and
// followed by postfix. prefix and postfix are patterns too and are not part
// of the result.
func (c *Content) ExtractBetween(prefix, expr, postfix string) ([]string, error) {
	re, err := c.compile("(?:" + prefix + ")(" + expr + ")(?:" + postfix + ")")
	if err != nil {
		return nil, err
	}
	var out []string
	for _, m := range re.FindAllStringSubmatch(c.body, -1) {
		out = append(out, m[1])
	}
	return out, nil
}
