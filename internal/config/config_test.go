package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/lox/hruclean/internal/consolidate"
)

const scenariosYAML = `
hrus: hrus.csv
subbasins: subbasins.csv
defaults:
  merge: true
scenarios:
  - name: clean-0.5
    area_tol: 0.005
  - name: exempt-0.5
    area_tol: 0.005
    protected: [57, 58]
    locked: [73]
  - name: drop-2
    area_tol: 0.02
    merge: false
    lock_policy: receive
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(scenariosYAML))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if f.Output != DefaultOutput || f.Database != DefaultDatabase {
		t.Errorf("defaults = %q/%q, want %q/%q", f.Output, f.Database, DefaultOutput, DefaultDatabase)
	}
	if len(f.Scenarios) != 3 {
		t.Fatalf("len(scenarios) = %d, want 3", len(f.Scenarios))
	}

	tests := []struct {
		name       string
		merge      bool
		policy     consolidate.LockPolicy
		protected  int
		locked     int
		lockedHRU  int64
		wantLocked bool
	}{
		{"clean-0.5", true, consolidate.LockStrict, 0, 0, 73, false},
		{"exempt-0.5", true, consolidate.LockStrict, 2, 1, 73, true},
		{"drop-2", false, consolidate.LockReceive, 0, 0, 73, false},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.Scenarios[i]
			if s.Name != tt.name {
				t.Fatalf("scenario %d name = %q, want %q", i, s.Name, tt.name)
			}
			opts, err := s.Options()
			if err != nil {
				t.Fatalf("Options: %v", err)
			}
			if opts.Merge != tt.merge {
				t.Errorf("Merge = %v, want %v", opts.Merge, tt.merge)
			}
			if opts.LockPolicy != tt.policy {
				t.Errorf("LockPolicy = %q, want %q", opts.LockPolicy, tt.policy)
			}
			if len(opts.Protected) != tt.protected || len(opts.Locked) != tt.locked {
				t.Errorf("exemptions = %d/%d, want %d/%d", len(opts.Protected), len(opts.Locked), tt.protected, tt.locked)
			}
			if opts.Locked.Has(tt.lockedHRU) != tt.wantLocked {
				t.Errorf("Locked.Has(%d) = %v, want %v", tt.lockedHRU, !tt.wantLocked, tt.wantLocked)
			}
		})
	}
}

func TestParse_DefaultMergeFalse(t *testing.T) {
	f, err := Parse([]byte("hrus: a.csv\nsubbasins: b.csv\ndefaults:\n  merge: false\nscenarios:\n  - name: x\n    area_tol: 0.1\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	opts, err := f.Scenarios[0].Options()
	if err != nil {
		t.Fatalf("Options: %v", err)
	}
	if opts.Merge {
		t.Error("Merge = true, want default false")
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr []string
	}{
		{
			name:    "missing paths and scenarios",
			yaml:    "output: out\n",
			wantErr: []string{"hrus path is required", "subbasins path is required", "at least one scenario"},
		},
		{
			name: "bad scenarios",
			yaml: `
hrus: a.csv
subbasins: b.csv
scenarios:
  - name: a
    area_tol: 1.5
  - name: a
    area_tol: 0.1
  - area_tol: 0.1
    lock_policy: sometimes
`,
			wantErr: []string{"area_tol 1.5", `duplicate name "a"`, "scenario 3: name is required", "unknown lock policy"},
		},
		{
			name: "names that are not directory names",
			yaml: `
hrus: a.csv
subbasins: b.csv
scenarios:
  - name: ../escape
    area_tol: 0.1
  - name: a/b
    area_tol: 0.1
  - name: ..
    area_tol: 0.1
`,
			wantErr: []string{`scenario 1: name "../escape"`, `scenario 2: name "a/b"`, `scenario 3: name ".."`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("errors.Is(err, ErrInvalidConfig) = false for %v", err)
			}
			for _, want := range tt.wantErr {
				if !strings.Contains(err.Error(), want) {
					t.Errorf("error %q does not mention %q", err, want)
				}
			}
		})
	}
}

func TestLoad_ResolvesRelativePaths(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scenarios.yaml")
	if err := os.WriteFile(path, []byte(scenariosYAML), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if want := filepath.Join(dir, "hrus.csv"); f.HRUs != want {
		t.Errorf("HRUs = %q, want %q", f.HRUs, want)
	}
	if want := filepath.Join(dir, DefaultOutput); f.Output != want {
		t.Errorf("Output = %q, want %q", f.Output, want)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
