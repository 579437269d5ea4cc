// Package template expands placeholders in step scripts and pulls values out
// of JSON responses.
package template

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"httpload/internal/core"
)

// placeholder matches ${name}, ${env:NAME} and ${fn(args)}.
var placeholder = regexp.MustCompile(`\$\{([^}]+)\}`)

// Expander substitutes placeholders. Built-in functions draw from its own
// random source so a seeded expander is reproducible.
type Expander struct {
	funcs *Funcs
}

// NewExpander returns an expander whose functions use funcs.
func NewExpander(funcs *Funcs) *Expander {
	if funcs == nil {
		funcs = NewFuncs(0, nil)
	}
	return &Expander{funcs: funcs}
}

// Substitute replaces every placeholder in text. Missing variables are
// collected and reported together.
func (e *Expander) Substitute(text string, vars core.Variables) (string, error) {
	if !strings.Contains(text, "${") {
		return text, nil
	}

	var errs []error
	out := placeholder.ReplaceAllStringFunc(text, func(match string) string {
		expr := strings.TrimSpace(match[2 : len(match)-1])

		if name, ok := strings.CutPrefix(expr, "env:"); ok {
			if v, ok := os.LookupEnv(name); ok {
				return v
			}
			errs = append(errs, fmt.Errorf("env var %q not set", name))
			return match
		}

		v, isFunc, err := e.funcs.eval(expr)
		if err != nil {
			errs = append(errs, err)
			return match
		}
		if isFunc {
			return v
		}

		if val, ok := vars.Get(expr); ok {
			return fmt.Sprint(val)
		}
		errs = append(errs, fmt.Errorf("variable %q not found", expr))
		return match
	})

	if len(errs) > 0 {
		return "", errors.Join(errs...)
	}
	return out, nil
}

// Substitute expands text with an unseeded expander.
func Substitute(text string, vars core.Variables) (string, error) {
	return NewExpander(nil).Substitute(text, vars)
}
