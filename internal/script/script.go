package script

import (
	"fmt"
	"log/slog"

	"httpload/internal/data"
	"httpload/internal/generator"
	"httpload/internal/template"
)

// Source describes where generators get their calls from. Exactly one of
// LuaFile and Steps is set.
type Source struct {
	LuaFile string
	Steps   []Step
	Data    data.Sources
	Seed    int64
	Logger  *slog.Logger
}

// Factory builds one script per generator.
type Factory func(id int) (generator.Script, error)

// NewFactory validates src once and returns a Factory. A Lua file is compiled
// a single time and shared by all interpreters.
func NewFactory(src Source) (Factory, error) {
	switch {
	case src.LuaFile != "" && len(src.Steps) > 0:
		return nil, fmt.Errorf("%w: lua script and steps are mutually exclusive", generator.ErrConfiguration)
	case src.LuaFile != "":
		prog, err := CompileLua(src.LuaFile)
		if err != nil {
			return nil, err
		}
		return func(id int) (generator.Script, error) {
			s, err := prog.NewScript(seedFor(src.Seed, id))
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	case len(src.Steps) > 0:
		if _, err := NewSteps(src.Steps, src.Data, nil, nil); err != nil {
			return nil, err
		}
		return func(id int) (generator.Script, error) {
			funcs := template.NewFuncs(seedFor(src.Seed, id), nil)
			logger := src.Logger
			if logger != nil {
				logger = logger.With("generator", id)
			}
			s, err := NewSteps(src.Steps, src.Data, template.NewExpander(funcs), logger)
			if err != nil {
				return nil, err
			}
			return s, nil
		}, nil
	default:
		return nil, fmt.Errorf("%w: no script configured", generator.ErrConfiguration)
	}
}

// seedFor derives a generator's seed. Zero stays zero, meaning unseeded.
func seedFor(seed int64, id int) int64 {
	if seed == 0 {
		return 0
	}
	return seed + int64(id)
}
