// Package data loads CSV and JSON row files that parameterise step scripts.
// Every call cycle of a generator draws one row from each source.
package data

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"maps"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"httpload/internal/core"
)

// Mode selects how rows are drawn.
type Mode string

const (
	// ModeSequential walks the rows in file order and wraps around.
	ModeSequential Mode = "sequential"
	// ModeRandom draws a row uniformly at random.
	ModeRandom Mode = "random"
)

// ParseMode validates a mode name; empty means sequential.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeRandom:
		return ModeRandom, nil
	}
	return "", fmt.Errorf("unknown data mode %q (use sequential or random)", s)
}

// Source is a named set of rows shared by all generators.
type Source struct {
	name string
	rows []map[string]any
	mode Mode

	next atomic.Uint64
	mu   sync.Mutex
	rng  *rand.Rand
}

// NewSource wraps rows. seed drives random mode; zero picks one.
func NewSource(name string, rows []map[string]any, mode Mode, seed int64) *Source {
	if mode == "" {
		mode = ModeSequential
	}
	if seed == 0 {
		seed = rand.Int63()
	}
	return &Source{
		name: name,
		rows: rows,
		mode: mode,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

func (s *Source) Name() string { return s.name }

func (s *Source) Len() int { return len(s.rows) }

// Next returns a copy of the next row, or nil for an empty source. Safe for
// concurrent use.
func (s *Source) Next() map[string]any {
	if len(s.rows) == 0 {
		return nil
	}

	var i int
	if s.mode == ModeRandom {
		s.mu.Lock()
		i = s.rng.Intn(len(s.rows))
		s.mu.Unlock()
	} else {
		i = int((s.next.Add(1) - 1) % uint64(len(s.rows)))
	}
	return maps.Clone(s.rows[i])
}

// Load reads a .csv or .json file. Relative paths resolve against baseDir,
// normally the directory of the config file.
func Load(name, path string, mode Mode, baseDir string, seed int64) (*Source, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(baseDir, path)
	}

	var (
		rows []map[string]any
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		rows, err = readCSV(path)
	case ".json":
		rows, err = readJSON(path)
	default:
		return nil, fmt.Errorf("data source %q: unsupported file format %q (use .csv or .json)", name, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("data file %s is empty", path)
	}
	return NewSource(name, rows, mode, seed), nil
}

// readCSV treats the first record as the header. Short records are padded
// with empty strings.
func readCSV(path string) ([]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) < 2 {
		return nil, fmt.Errorf("CSV must have header row and at least one data row")
	}

	header := records[0]
	rows := make([]map[string]any, 0, len(records)-1)
	for _, rec := range records[1:] {
		row := make(map[string]any, len(header))
		for i, col := range header {
			v := ""
			if i < len(rec) {
				v = rec[i]
			}
			row[col] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func readJSON(path string) ([]map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(b, &rows); err != nil {
		return nil, fmt.Errorf("JSON must be an array of objects: %w", err)
	}
	return rows, nil
}

// Sources is a set of named sources.
type Sources map[string]*Source

// Inject draws one row from every source and stores its fields in vars as
// data.<source>.<field>.
func (s Sources) Inject(vars core.Variables) {
	for name, src := range s {
		for field, v := range src.Next() {
			vars.Set("data."+name+"."+field, v)
		}
	}
}
