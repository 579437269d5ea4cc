// Package script provides the scripting capabilities generators drive: Lua
// programs and declarative step lists.
package script

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"httpload/internal/core"
	"httpload/internal/data"
	"httpload/internal/generator"
	"httpload/internal/template"
)

// Step is one request of a declarative call cycle.
type Step struct {
	Name    string
	Method  string
	URL     string
	Body    string
	Extract map[string]string // variable name -> JSONPath into the response
}

// Steps renders a fixed list of steps, one call per step. Placeholders in
// URL and body are expanded against per-cycle variables, which hold a fresh
// row of every data source and the values extracted from earlier responses.
type Steps struct {
	steps    []Step
	sources  data.Sources
	expander *template.Expander
	logger   *slog.Logger

	vars *core.MapVariables
	last int // step whose response Observe receives
}

// NewSteps validates steps. expander may be nil.
func NewSteps(steps []Step, sources data.Sources, expander *template.Expander, logger *slog.Logger) (*Steps, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%w: no steps defined", generator.ErrConfiguration)
	}
	for i, st := range steps {
		if err := validateStep(st); err != nil {
			return nil, fmt.Errorf("%w: step %d (%s): %v", generator.ErrConfiguration, i+1, st.Name, err)
		}
	}
	if expander == nil {
		expander = template.NewExpander(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Steps{
		steps:    steps,
		sources:  sources,
		expander: expander,
		logger:   logger,
		vars:     core.NewVariables(),
	}, nil
}

func validateStep(st Step) error {
	if strings.TrimSpace(st.URL) == "" {
		return fmt.Errorf("url is required")
	}
	switch strings.ToUpper(st.Method) {
	case "", http.MethodGet, http.MethodPut:
		if st.Body != "" {
			return fmt.Errorf("body is only supported for POST")
		}
	case http.MethodPost:
	default:
		return fmt.Errorf("unsupported method %q (use GET, POST or PUT)", st.Method)
	}
	return nil
}

// OnCycle starts a cycle with fresh variables.
func (s *Steps) OnCycle() error {
	s.vars = core.NewVariables()
	s.sources.Inject(s.vars)
	s.last = 0
	return nil
}

// OnCall renders step n in call syntax.
func (s *Steps) OnCall(n int) (string, bool, error) {
	if n < 1 || n > len(s.steps) {
		return "", false, nil
	}
	st := s.steps[n-1]

	url, err := s.expander.Substitute(st.URL, s.vars)
	if err != nil {
		return "", false, fmt.Errorf("step %s url: %w", st.Name, err)
	}
	body, err := s.expander.Substitute(st.Body, s.vars)
	if err != nil {
		return "", false, fmt.Errorf("step %s body: %w", st.Name, err)
	}
	s.last = n

	switch strings.ToUpper(st.Method) {
	case http.MethodPost:
		if body != "" {
			return "[POST]" + url + "[JSON]" + body, true, nil
		}
		return "[POST]" + url, true, nil
	case http.MethodPut:
		return "[PUT]" + url, true, nil
	default:
		return url, true, nil
	}
}

// Observe applies the extract rules of the last rendered step to body.
// Values that cannot be extracted stay unset, so a later step that uses them
// fails to render.
func (s *Steps) Observe(body string) {
	if s.last < 1 {
		return
	}
	st := s.steps[s.last-1]
	if len(st.Extract) == 0 {
		return
	}
	values, err := template.Extract(body, st.Extract)
	if err != nil {
		s.logger.Debug("extract failed", "step", st.Name, "error", err)
		return
	}
	for k, v := range values {
		s.vars.Set(k, v)
	}
}

// Vars exposes the current cycle's variables.
func (s *Steps) Vars() core.Variables { return s.vars }
