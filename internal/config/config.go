package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/lox/hruclean/internal/consolidate"
)

var ErrInvalidConfig = errors.New("invalid config")

// File is a scenario file: one pair of input tables consolidated under
// several sets of options.
type File struct {
	HRUs      string     `yaml:"hrus"`
	SubBasins string     `yaml:"subbasins"`
	Output    string     `yaml:"output"`
	Database  string     `yaml:"database"`
	Parquet   bool       `yaml:"parquet"`
	Defaults  Defaults   `yaml:"defaults"`
	Scenarios []Scenario `yaml:"scenarios"`
}

type Defaults struct {
	Merge      *bool  `yaml:"merge"`
	LockPolicy string `yaml:"lock_policy"`
}

type Scenario struct {
	Name       string  `yaml:"name"`
	AreaTol    float64 `yaml:"area_tol"`
	Merge      *bool   `yaml:"merge"`
	LockPolicy string  `yaml:"lock_policy"`
	Protected  []int64 `yaml:"protected"`
	Locked     []int64 `yaml:"locked"`
}

const (
	DefaultOutput   = "out"
	DefaultDatabase = "data/hruclean.db"
)

// Load reads and validates a scenario file. Relative paths in the file are
// resolved against the file's directory.
func Load(path string) (*File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	f.resolve(filepath.Dir(path))
	return f, nil
}

// Parse decodes a scenario file, fills defaults and validates it.
func Parse(b []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	f.applyDefaults()
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func (f *File) applyDefaults() {
	if f.Output == "" {
		f.Output = DefaultOutput
	}
	if f.Database == "" {
		f.Database = DefaultDatabase
	}
	if f.Defaults.Merge == nil {
		merge := true
		f.Defaults.Merge = &merge
	}
	if f.Defaults.LockPolicy == "" {
		f.Defaults.LockPolicy = string(consolidate.LockStrict)
	}
	for i := range f.Scenarios {
		s := &f.Scenarios[i]
		if s.Merge == nil {
			merge := *f.Defaults.Merge
			s.Merge = &merge
		}
		if s.LockPolicy == "" {
			s.LockPolicy = f.Defaults.LockPolicy
		}
	}
}

func (f *File) resolve(dir string) {
	for _, p := range []*string{&f.HRUs, &f.SubBasins, &f.Output, &f.Database} {
		if *p != "" && !filepath.IsAbs(*p) {
			*p = filepath.Join(dir, *p)
		}
	}
}

// Validate reports every problem in the file at once.
func (f *File) Validate() error {
	var result *multierror.Error
	add := func(format string, args ...any) {
		result = multierror.Append(result, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if f.HRUs == "" {
		add("hrus path is required")
	}
	if f.SubBasins == "" {
		add("subbasins path is required")
	}
	if len(f.Scenarios) == 0 {
		add("at least one scenario is required")
	}

	seen := make(map[string]bool)
	for i, s := range f.Scenarios {
		if s.Name == "" {
			add("scenario %d: name is required", i+1)
		} else if strings.ContainsAny(s.Name, `/\`) || !filepath.IsLocal(s.Name) || s.Name == "." {
			add("scenario %d: name %q must be a plain directory name", i+1, s.Name)
		} else if seen[s.Name] {
			add("scenario %d: duplicate name %q", i+1, s.Name)
		}
		seen[s.Name] = true

		if math.IsNaN(s.AreaTol) || s.AreaTol < 0 || s.AreaTol >= 1 {
			add("scenario %q: area_tol %v must be in [0, 1)", s.Name, s.AreaTol)
		}
		if _, err := consolidate.ParseLockPolicy(s.LockPolicy); err != nil {
			add("scenario %q: %v", s.Name, err)
		}
	}

	return result.ErrorOrNil()
}

// Options converts a scenario into consolidation options.
func (s Scenario) Options() (consolidate.Options, error) {
	policy, err := consolidate.ParseLockPolicy(s.LockPolicy)
	if err != nil {
		return consolidate.Options{}, err
	}
	merge := true
	if s.Merge != nil {
		merge = *s.Merge
	}
	return consolidate.Options{
		AreaTol:    s.AreaTol,
		Protected:  consolidate.NewIDSet(s.Protected),
		Locked:     consolidate.NewIDSet(s.Locked),
		Merge:      merge,
		LockPolicy: policy,
	}, nil
}
