// Package config handles YAML configuration parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"httpload/internal/tracker"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGenerators = 128
	DefaultInterval   = time.Second
)

// Config is the root configuration structure.
type Config struct {
	Script             ScriptConfig        `yaml:"script"`
	Generators         int                 `yaml:"generators"`
	Timeout            time.Duration       `yaml:"timeout"`
	MaxRetries         int                 `yaml:"maxRetries"`
	Seed               int64               `yaml:"seed"`
	UserAgent          string              `yaml:"userAgent"`
	HTTP2              bool                `yaml:"http2"`
	DisableKeepAlives  bool                `yaml:"disableKeepAlives"`
	InsecureSkipVerify bool                `yaml:"insecureSkipVerify"`
	Load               LoadProfile         `yaml:"load"`
	Interval           time.Duration       `yaml:"interval"`
	Output             OutputConfig        `yaml:"output"`
	Metrics            MetricsConfig       `yaml:"metrics"`
	Thresholds         *tracker.Thresholds `yaml:"thresholds,omitempty"`

	// Dir is the directory of the loaded file. Relative script and data
	// paths resolve against it.
	Dir string `yaml:"-"`
}

// ScriptConfig selects what generators emit: a Lua file or a list of steps.
type ScriptConfig struct {
	Lua   string       `yaml:"lua"`
	Steps []StepConfig `yaml:"steps"`
	Data  []DataConfig `yaml:"data"`
}

// StepConfig defines a single request step.
type StepConfig struct {
	Name    string            `yaml:"name"`
	Method  string            `yaml:"method"`
	URL     string            `yaml:"url"`
	Body    string            `yaml:"body"`
	Extract map[string]string `yaml:"extract,omitempty"` // JSONPath extraction rules
}

// DataConfig names a CSV or JSON file whose rows feed step variables.
type DataConfig struct {
	Name string `yaml:"name"`
	File string `yaml:"file"`
	Mode string `yaml:"mode"`
}

// LoadProfile defines the load pattern for a test.
type LoadProfile struct {
	Phases []Phase `yaml:"phases"`
}

// TotalDuration returns the sum of all phase durations.
func (lp *LoadProfile) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range lp.Phases {
		total += p.Duration
	}
	return total
}

// Phase is a stretch of the run with a constant or linearly ramped request
// rate. RPS wins over StartRPS/EndRPS when set.
type Phase struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
	RPS      float64       `yaml:"rps"`
	StartRPS float64       `yaml:"startRPS"`
	EndRPS   float64       `yaml:"endRPS"`
}

// IsRamp reports whether the rate changes over the phase.
func (p Phase) IsRamp() bool {
	return p.RPS == 0 && p.StartRPS != p.EndRPS
}

type OutputConfig struct {
	Format  string `yaml:"format"`  // text or json
	Results string `yaml:"results"` // per-request CSV path
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// LoadConfig reads and parses a YAML configuration file and fills in
// defaults. It does not validate; call Validate once overrides are applied.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Dir = filepath.Dir(path)
	cfg.ApplyDefaults()

	return &cfg, nil
}

// ApplyDefaults sets zero-valued fields that have a default.
func (c *Config) ApplyDefaults() {
	if c.Generators == 0 {
		c.Generators = DefaultGenerators
	}
	if c.Interval == 0 {
		c.Interval = DefaultInterval
	}
	if c.Output.Format == "" {
		c.Output.Format = "text"
	}
}

// Path resolves p against the config directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Validate reports every problem found, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch {
	case c.Script.Lua != "" && len(c.Script.Steps) > 0:
		add("script: lua and steps are mutually exclusive")
	case c.Script.Lua == "" && len(c.Script.Steps) == 0:
		add("script: either lua or steps is required")
	}
	for i, st := range c.Script.Steps {
		if st.URL == "" {
			add("script.steps[%d]: url is required", i)
		}
	}
	for i, d := range c.Script.Data {
		if d.Name == "" {
			add("script.data[%d]: name is required", i)
		}
		if d.File == "" {
			add("script.data[%d]: file is required", i)
		}
		switch d.Mode {
		case "", "sequential", "random":
		default:
			add("script.data[%d]: unknown mode %q", i, d.Mode)
		}
	}

	if c.Generators < 1 {
		add("generators must be positive, got %d", c.Generators)
	}
	if c.Timeout < 0 {
		add("timeout must not be negative, got %v", c.Timeout)
	}
	if c.MaxRetries < 0 {
		add("maxRetries must not be negative, got %d", c.MaxRetries)
	}
	if c.Interval <= 0 {
		add("interval must be positive, got %v", c.Interval)
	}

	if len(c.Load.Phases) == 0 {
		add("load: at least one phase is required")
	}
	for i, p := range c.Load.Phases {
		if p.Duration <= 0 {
			add("load.phases[%d]: duration must be positive", i)
		}
		if p.RPS < 0 || p.StartRPS < 0 || p.EndRPS < 0 {
			add("load.phases[%d]: rates must not be negative", i)
		}
	}

	switch c.Output.Format {
	case "", "text", "json":
	default:
		add("output.format must be text or json, got %q", c.Output.Format)
	}

	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
