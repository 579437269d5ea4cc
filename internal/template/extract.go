package template

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/tidwall/gjson"
)

// Extract reads one value per rule from a JSON body. Rules map variable names
// to JSONPath expressions ($.auth.token, $.items[0].id, $.items[*].name).
// Every missing path is reported.
func Extract(body string, rules map[string]string) (map[string]any, error) {
	if len(rules) == 0 {
		return nil, nil
	}
	if !gjson.Valid(body) {
		return nil, errors.New("invalid JSON in response body")
	}

	names := make([]string, 0, len(rules))
	for name := range rules {
		names = append(names, name)
	}
	sort.Strings(names)

	values := make(map[string]any, len(rules))
	var errs []error
	for _, name := range names {
		path := rules[name]
		res := gjson.Get(body, gjsonPath(path))
		if !res.Exists() {
			errs = append(errs, fmt.Errorf("path %q not found for variable %q", path, name))
			continue
		}
		values[name] = res.Value()
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return values, nil
}

// gjsonPath rewrites a JSONPath expression into gjson syntax: the root marker
// is dropped, [n] becomes .n and [*] becomes .#.
func gjsonPath(path string) string {
	path = strings.TrimPrefix(path, "$")
	path = strings.TrimPrefix(path, ".")

	var b strings.Builder
	for {
		open := strings.IndexByte(path, '[')
		if open < 0 {
			break
		}
		end := strings.IndexByte(path[open:], ']')
		if end < 0 {
			break
		}
		b.WriteString(path[:open])
		b.WriteByte('.')
		if idx := path[open+1 : open+end]; idx == "*" {
			b.WriteByte('#')
		} else {
			b.WriteString(idx)
		}
		path = path[open+end+1:]
	}
	b.WriteString(path)
	return b.String()
}
