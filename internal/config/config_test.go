package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"httpload/internal/tracker"
)

func TestLoadConfig_Steps(t *testing.T) {
	content := `
script:
  steps:
    - name: "login"
      method: POST
      url: "http://localhost:8080/login"
      body: '{"user": "${data.users.name}"}'
      extract:
        token: "$.token"
    - name: "profile"
      url: "http://localhost:8080/profile?token=${token}"
  data:
    - name: users
      file: users.csv
      mode: random
load:
  phases:
    - name: steady
      duration: 10s
      rps: 50
`
	cfg := loadConfigFromString(t, content)

	if len(cfg.Script.Steps) != 2 {
		t.Fatalf("expected 2 steps, got %d", len(cfg.Script.Steps))
	}
	login := cfg.Script.Steps[0]
	if login.Method != "POST" {
		t.Errorf("expected method POST, got %q", login.Method)
	}
	if login.Extract["token"] != "$.token" {
		t.Errorf("expected token extraction, got %v", login.Extract)
	}
	if cfg.Script.Steps[1].Method != "" {
		t.Errorf("expected empty method on second step, got %q", cfg.Script.Steps[1].Method)
	}
	if len(cfg.Script.Data) != 1 || cfg.Script.Data[0].Mode != "random" {
		t.Errorf("unexpected data sources: %+v", cfg.Script.Data)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	content := `
script:
  lua: shop.lua
load:
  phases:
    - duration: 1m
      rps: 10
`
	cfg := loadConfigFromString(t, content)

	if cfg.Generators != DefaultGenerators {
		t.Errorf("expected %d generators, got %d", DefaultGenerators, cfg.Generators)
	}
	if cfg.Interval != DefaultInterval {
		t.Errorf("expected interval %v, got %v", DefaultInterval, cfg.Interval)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("expected 0 retries, got %d", cfg.MaxRetries)
	}
	if cfg.Timeout != 0 {
		t.Errorf("expected no timeout, got %v", cfg.Timeout)
	}
	if cfg.Output.Format != "text" {
		t.Errorf("expected text output, got %q", cfg.Output.Format)
	}
	if cfg.Thresholds != nil {
		t.Error("expected thresholds to be nil")
	}
}

func TestLoadConfig_Full(t *testing.T) {
	content := `
script:
  lua: scripts/shop.lua
generators: 16
timeout: 500ms
maxRetries: 3
seed: 42
userAgent: "test-agent"
http2: true
disableKeepAlives: true
interval: 5s
load:
  phases:
    - name: ramp
      duration: 30s
      startRPS: 1
      endRPS: 100
    - name: steady
      duration: 2m
      rps: 100
output:
  format: json
  results: results.csv
metrics:
  addr: ":9090"
thresholds:
  response_time:
    p95: 200ms
  failure_rate: "1%"
  drop_rate: "0.5%"
`
	cfg := loadConfigFromString(t, content)

	if cfg.Generators != 16 {
		t.Errorf("expected 16 generators, got %d", cfg.Generators)
	}
	if cfg.Timeout != 500*time.Millisecond {
		t.Errorf("expected timeout 500ms, got %v", cfg.Timeout)
	}
	if cfg.MaxRetries != 3 || cfg.Seed != 42 {
		t.Errorf("expected retries 3 and seed 42, got %d and %d", cfg.MaxRetries, cfg.Seed)
	}
	if cfg.UserAgent != "test-agent" || !cfg.HTTP2 || !cfg.DisableKeepAlives {
		t.Errorf("transport options not parsed: %+v", cfg)
	}
	if cfg.Interval != 5*time.Second {
		t.Errorf("expected interval 5s, got %v", cfg.Interval)
	}
	if len(cfg.Load.Phases) != 2 {
		t.Fatalf("expected 2 phases, got %d", len(cfg.Load.Phases))
	}
	ramp := cfg.Load.Phases[0]
	if ramp.StartRPS != 1 || ramp.EndRPS != 100 || !ramp.IsRamp() {
		t.Errorf("unexpected ramp phase: %+v", ramp)
	}
	if cfg.Load.Phases[1].IsRamp() {
		t.Error("steady phase reported as ramp")
	}
	if cfg.Load.TotalDuration() != 150*time.Second {
		t.Errorf("expected total 2m30s, got %v", cfg.Load.TotalDuration())
	}
	if cfg.Output.Format != "json" || cfg.Output.Results != "results.csv" {
		t.Errorf("unexpected output: %+v", cfg.Output)
	}
	if cfg.Metrics.Addr != ":9090" {
		t.Errorf("expected metrics addr :9090, got %q", cfg.Metrics.Addr)
	}
	if cfg.Thresholds == nil || cfg.Thresholds.ResponseTime == nil {
		t.Fatal("expected thresholds")
	}
	if cfg.Thresholds.ResponseTime.P95 != 200*time.Millisecond {
		t.Errorf("expected p95 200ms, got %v", cfg.Thresholds.ResponseTime.P95)
	}
	if cfg.Thresholds.FailureRate != "1%" || cfg.Thresholds.DropRate != "0.5%" {
		t.Errorf("unexpected rates: %+v", cfg.Thresholds)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected validation error: %v", err)
	}
}

func TestConfig_Path(t *testing.T) {
	cfg := &Config{Dir: "/etc/load"}

	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"shop.lua", "/etc/load/shop.lua"},
		{"data/users.csv", "/etc/load/data/users.csv"},
		{"/abs/users.csv", "/abs/users.csv"},
	}
	for _, tt := range tests {
		if got := cfg.Path(tt.in); got != tt.want {
			t.Errorf("Path(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	empty := &Config{}
	if got := empty.Path("shop.lua"); got != "shop.lua" {
		t.Errorf("expected path unchanged without dir, got %q", got)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{
			Script: ScriptConfig{Lua: "shop.lua"},
			Load:   LoadProfile{Phases: []Phase{{Duration: time.Second, RPS: 10}}},
		}
		cfg.ApplyDefaults()
		return cfg
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"valid", func(*Config) {}, ""},
		{"no script", func(c *Config) { c.Script.Lua = "" }, "either lua or steps"},
		{"both scripts", func(c *Config) {
			c.Script.Steps = []StepConfig{{URL: "http://x"}}
		}, "mutually exclusive"},
		{"step without url", func(c *Config) {
			c.Script.Lua = ""
			c.Script.Steps = []StepConfig{{Name: "a"}}
		}, "script.steps[0]: url is required"},
		{"data without file", func(c *Config) {
			c.Script.Data = []DataConfig{{Name: "users"}}
		}, "script.data[0]: file is required"},
		{"data bad mode", func(c *Config) {
			c.Script.Data = []DataConfig{{Name: "users", File: "u.csv", Mode: "shuffle"}}
		}, `unknown mode "shuffle"`},
		{"zero generators", func(c *Config) { c.Generators = 0 }, "generators must be positive"},
		{"negative timeout", func(c *Config) { c.Timeout = -time.Second }, "timeout must not be negative"},
		{"negative retries", func(c *Config) { c.MaxRetries = -1 }, "maxRetries must not be negative"},
		{"no phases", func(c *Config) { c.Load.Phases = nil }, "at least one phase"},
		{"zero duration", func(c *Config) { c.Load.Phases[0].Duration = 0 }, "duration must be positive"},
		{"negative rate", func(c *Config) { c.Load.Phases[0].EndRPS = -5 }, "rates must not be negative"},
		{"bad format", func(c *Config) { c.Output.Format = "xml" }, "output.format"},
		{"bad threshold", func(c *Config) {
			c.Thresholds = &tracker.Thresholds{FailureRate: "lots"}
		}, "thresholds.failure_rate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("expected error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestConfig_ValidateJoinsErrors(t *testing.T) {
	cfg := &Config{}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"either lua or steps", "generators", "interval", "at least one phase"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("expected %q in %v", want, err)
		}
	}
}

func TestLoadConfig_SetsDir(t *testing.T) {
	path := createTempFile(t, "script:\n  lua: shop.lua\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Dir != filepath.Dir(path) {
		t.Errorf("expected dir %q, got %q", filepath.Dir(path), cfg.Dir)
	}
	if want := filepath.Join(filepath.Dir(path), "shop.lua"); cfg.Path(cfg.Script.Lua) != want {
		t.Errorf("expected %q, got %q", want, cfg.Path(cfg.Script.Lua))
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	content := `
script:
  lua: "unterminated
  steps: [[[invalid
`
	tmpFile := createTempFile(t, content)
	defer os.Remove(tmpFile)

	_, err := LoadConfig(tmpFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoadConfig_EmptyFile(t *testing.T) {
	tmpFile := createTempFile(t, "")
	defer os.Remove(tmpFile)

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Script.Lua != "" || len(cfg.Script.Steps) != 0 {
		t.Errorf("expected empty script, got %+v", cfg.Script)
	}
}

func TestLoadProfile_TotalDuration_Empty(t *testing.T) {
	lp := &LoadProfile{Phases: []Phase{}}
	if lp.TotalDuration() != 0 {
		t.Errorf("expected 0 duration, got %v", lp.TotalDuration())
	}
}

func TestLoadProfile_TotalDuration_Multiple(t *testing.T) {
	lp := &LoadProfile{
		Phases: []Phase{
			{Duration: 10 * time.Second},
			{Duration: 20 * time.Second},
			{Duration: 5 * time.Second},
		},
	}

	expected := 35 * time.Second
	if lp.TotalDuration() != expected {
		t.Errorf("expected %v, got %v", expected, lp.TotalDuration())
	}
}

// Helper functions

func loadConfigFromString(t *testing.T, content string) *Config {
	t.Helper()
	tmpFile := createTempFile(t, content)
	defer os.Remove(tmpFile)

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return tmpFile
}
