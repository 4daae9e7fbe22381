package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lox/hruclean/internal/consolidate"
	"github.com/lox/hruclean/internal/ingest"
	"github.com/lox/hruclean/internal/metrics"
	"github.com/lox/hruclean/internal/models"
	"github.com/lox/hruclean/internal/store"
)

// Inputs are the HRU and sub-basin tables shared by every scenario of a
// batch. The raw bytes are kept so the run store can snapshot them.
type Inputs struct {
	HRUPath      string
	SubBasinPath string
	HRUs         []models.HRU
	SubBasins    []models.SubBasin

	hruRaw       []byte
	subbasinRaw  []byte
	hruHash      string
	subbasinHash string
}

func LoadInputs(hruPath, subbasinPath string) (*Inputs, error) {
	in := &Inputs{HRUPath: hruPath, SubBasinPath: subbasinPath}

	var err error
	if in.hruRaw, err = os.ReadFile(hruPath); err != nil {
		return nil, fmt.Errorf("read hru table: %w", err)
	}
	if in.subbasinRaw, err = os.ReadFile(subbasinPath); err != nil {
		return nil, fmt.Errorf("read sub-basin table: %w", err)
	}
	if in.HRUs, err = ingest.LoadHRUs(bytes.NewReader(in.hruRaw)); err != nil {
		return nil, fmt.Errorf("load %s: %w", hruPath, err)
	}
	if in.SubBasins, err = ingest.LoadSubBasins(bytes.NewReader(in.subbasinRaw)); err != nil {
		return nil, fmt.Errorf("load %s: %w", subbasinPath, err)
	}
	return in, nil
}

// LoadSnapshots rebuilds the inputs of a recorded run from the store's
// input snapshots.
func LoadSnapshots(st *store.Store, run *models.Run) (*Inputs, error) {
	if run.HRUSnapshot == "" || run.SubBasinSnapshot == "" {
		return nil, fmt.Errorf("run %s has no input snapshots", run.ID)
	}

	in := &Inputs{hruHash: run.HRUSnapshot, subbasinHash: run.SubBasinSnapshot}
	var err error
	if in.hruRaw, in.HRUPath, err = loadSnapshot(st, run.HRUSnapshot); err != nil {
		return nil, fmt.Errorf("hru snapshot: %w", err)
	}
	if in.subbasinRaw, in.SubBasinPath, err = loadSnapshot(st, run.SubBasinSnapshot); err != nil {
		return nil, fmt.Errorf("sub-basin snapshot: %w", err)
	}
	if in.HRUs, err = ingest.LoadHRUs(bytes.NewReader(in.hruRaw)); err != nil {
		return nil, fmt.Errorf("load hru snapshot %s: %w", run.HRUSnapshot, err)
	}
	if in.SubBasins, err = ingest.LoadSubBasins(bytes.NewReader(in.subbasinRaw)); err != nil {
		return nil, fmt.Errorf("load sub-basin snapshot %s: %w", run.SubBasinSnapshot, err)
	}
	return in, nil
}

func loadSnapshot(st *store.Store, hash string) ([]byte, string, error) {
	info, err := st.GetSnapshotInfo(hash)
	if err != nil {
		return nil, "", err
	}
	if info == nil {
		return nil, "", fmt.Errorf("snapshot %s not found", hash)
	}
	payload, err := st.GetSnapshot(hash)
	if err != nil {
		return nil, "", err
	}
	if got := store.SnapshotHash(payload); got != hash {
		return nil, "", fmt.Errorf("snapshot %s is corrupt (hash %s)", hash, got)
	}
	log.Printf("pipeline: loaded %s snapshot %.12s (%s, stored %s)", info.Kind, hash, info.SourcePath, info.StoredAt.Format(time.RFC3339))
	return payload, info.SourcePath, nil
}

type Scenario struct {
	Label   string
	Options consolidate.Options
}

// Outcome is the result of one scenario. Dir is where its tables were
// written.
type Outcome struct {
	Run    *models.Run
	Result *consolidate.Result
	Dir    string
}

// Runner consolidates input tables, writes the result tables and records
// each run in the store. A nil store disables run history.
type Runner struct {
	store   *store.Store
	outDir  string
	parquet bool
}

func NewRunner(st *store.Store, outDir string) *Runner {
	return &Runner{store: st, outDir: outDir}
}

// SetParquet enables an additional hrus.parquet output.
func (r *Runner) SetParquet(enabled bool) {
	r.parquet = enabled
}

// RunAll runs scenarios in order. A failing scenario is recorded and
// stops the batch.
func (r *Runner) RunAll(ctx context.Context, in *Inputs, scenarios []Scenario) ([]Outcome, error) {
	for _, sc := range scenarios {
		if err := checkLabel(sc.Label); err != nil {
			return nil, err
		}
	}

	outcomes := make([]Outcome, 0, len(scenarios))
	for _, sc := range scenarios {
		out, err := r.Run(ctx, in, sc, filepath.Join(r.outDir, sc.Label))
		if err != nil {
			return outcomes, fmt.Errorf("scenario %s: %w", sc.Label, err)
		}
		outcomes = append(outcomes, *out)
	}
	return outcomes, nil
}

// Replay runs a recorded run again from its input snapshots and options.
// The replay is recorded as a new run.
func (r *Runner) Replay(ctx context.Context, runID, dir string) (*Outcome, error) {
	if r.store == nil {
		return nil, errors.New("replay needs a run store")
	}
	run, err := r.store.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return nil, fmt.Errorf("run %s not found", runID)
	}

	in, err := LoadSnapshots(r.store, run)
	if err != nil {
		return nil, err
	}
	policy, err := consolidate.ParseLockPolicy(run.LockPolicy)
	if err != nil {
		return nil, fmt.Errorf("run %s: %w", runID, err)
	}

	sc := Scenario{
		Label: replayLabel(run),
		Options: consolidate.Options{
			AreaTol:    run.AreaTol,
			Protected:  consolidate.NewIDSet(run.ProtectedIDs),
			Locked:     consolidate.NewIDSet(run.LockedIDs),
			Merge:      run.Merge,
			LockPolicy: policy,
		},
	}
	return r.Run(ctx, in, sc, dir)
}

func replayLabel(run *models.Run) string {
	if run.Label != "" {
		return run.Label + "-replay"
	}
	id := run.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "replay-" + id
}

// checkLabel rejects scenario labels that would not name a single
// directory inside the output directory.
func checkLabel(label string) error {
	if label == "" {
		return nil
	}
	if strings.ContainsAny(label, `/\`) || !filepath.IsLocal(label) || label == "." {
		return fmt.Errorf("scenario label %q must be a plain directory name", label)
	}
	return nil
}

// Run consolidates one scenario and writes its tables into dir.
func (r *Runner) Run(ctx context.Context, in *Inputs, sc Scenario, dir string) (*Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if dir == "" {
		dir = r.outDir
	}

	start := time.Now()
	run := &models.Run{
		Label:        sc.Label,
		AreaTol:      sc.Options.AreaTol,
		Merge:        sc.Options.Merge,
		LockPolicy:   string(sc.Options.LockPolicy),
		Protected:    len(sc.Options.Protected),
		Locked:       len(sc.Options.Locked),
		ProtectedIDs: sc.Options.Protected.Sorted(),
		LockedIDs:    sc.Options.Locked.Sorted(),
		HRUPath:      in.HRUPath,
		SubBasinPath: in.SubBasinPath,
		HRUsIn:       len(in.HRUs),
		AreaIn:       consolidate.TotalArea(in.HRUs),
	}
	if run.LockPolicy == "" {
		run.LockPolicy = string(consolidate.LockStrict)
	}

	if err := r.startRun(in, run); err != nil {
		return nil, err
	}

	log.Printf("pipeline: running %q (tol %v, merge %v, %d protected, %d locked)",
		sc.Label, sc.Options.AreaTol, sc.Options.Merge, run.Protected, run.Locked)

	res, err := consolidate.Consolidate(in.HRUs, in.SubBasins, sc.Options)
	if err != nil {
		return nil, r.fail(run, start, err)
	}

	if err := r.writeTables(dir, res); err != nil {
		return nil, r.fail(run, start, err)
	}

	warnings := res.Warnings()
	for _, w := range warnings {
		log.Printf("pipeline: warning: %s", WarningLine(w))
	}

	run.HRUsOut = len(res.HRUs)
	run.AreaOut = consolidate.TotalArea(res.HRUs)
	run.Warnings = len(warnings)
	run.Success = true

	if r.store != nil {
		if err := r.store.SaveResult(run.ID, res.HRUs, res.Events, res.Summary); err != nil {
			return nil, r.fail(run, start, fmt.Errorf("save result: %w", err))
		}
		if err := r.store.CompleteRun(run); err != nil {
			log.Printf("pipeline: complete run %s: %v", run.ID, err)
		}
	}

	recordResult(res, run)
	metrics.RecordRun("success", time.Since(start))

	log.Printf("pipeline: %q done: %d → %d HRUs, %d merged, %d dropped, %d warnings",
		sc.Label, run.HRUsIn, run.HRUsOut, res.Count(models.EventMerge), res.Count(models.EventDrop), run.Warnings)

	return &Outcome{Run: run, Result: res, Dir: dir}, nil
}

func (r *Runner) startRun(in *Inputs, run *models.Run) error {
	if r.store == nil {
		return nil
	}
	if err := r.snapshot(in); err != nil {
		return err
	}
	run.HRUSnapshot = in.hruHash
	run.SubBasinSnapshot = in.subbasinHash
	if err := r.store.StartRun(run); err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	return nil
}

// snapshot stores the raw input tables once per batch.
func (r *Runner) snapshot(in *Inputs) error {
	if in.hruHash == "" && in.hruRaw != nil {
		hash, err := r.store.StoreSnapshot("hru", in.HRUPath, in.hruRaw)
		if err != nil {
			return fmt.Errorf("snapshot hru table: %w", err)
		}
		in.hruHash = hash
	}
	if in.subbasinHash == "" && in.subbasinRaw != nil {
		hash, err := r.store.StoreSnapshot("subbasin", in.SubBasinPath, in.subbasinRaw)
		if err != nil {
			return fmt.Errorf("snapshot sub-basin table: %w", err)
		}
		in.subbasinHash = hash
	}
	return nil
}

func (r *Runner) fail(run *models.Run, start time.Time, err error) error {
	metrics.RecordRun("error", time.Since(start))
	if r.store != nil && run.ID != "" {
		run.Success = false
		run.ErrorMessage = err.Error()
		if cerr := r.store.CompleteRun(run); cerr != nil {
			log.Printf("pipeline: complete run %s: %v", run.ID, cerr)
		}
	}
	return err
}

func (r *Runner) writeTables(dir string, res *consolidate.Result) error {
	if err := ingest.WriteFile(filepath.Join(dir, "hrus.csv"), func(w io.Writer) error {
		return ingest.WriteHRUs(w, res.HRUs)
	}); err != nil {
		return err
	}
	if err := ingest.WriteFile(filepath.Join(dir, "subbasins.csv"), func(w io.Writer) error {
		return ingest.WriteSubBasins(w, res.SubBasins)
	}); err != nil {
		return err
	}
	if err := ingest.WriteFile(filepath.Join(dir, "summary.csv"), func(w io.Writer) error {
		return ingest.WriteSummary(w, res.Summary)
	}); err != nil {
		return err
	}
	if r.parquet {
		if err := ingest.WriteFile(filepath.Join(dir, "hrus.parquet"), func(w io.Writer) error {
			return ingest.WriteHRUsParquet(w, res.HRUs)
		}); err != nil {
			return err
		}
	}
	return nil
}

func recordResult(res *consolidate.Result, run *models.Run) {
	metrics.HRUsIn.Add(float64(run.HRUsIn))
	metrics.HRUsOut.Add(float64(run.HRUsOut))
	metrics.SubBasinsProcessed.Add(float64(len(res.Summary)))
	for _, kind := range []models.EventKind{models.EventMerge, models.EventDrop, models.EventNoTarget, models.EventUnknown} {
		if n := res.Count(kind); n > 0 {
			metrics.EventsTotal.WithLabelValues(string(kind)).Add(float64(n))
		}
	}
	if !run.Merge {
		metrics.AreaRemoved.Add(run.AreaIn - run.AreaOut)
	}
}

// WarningLine describes a warning event for logs and terminal output.
// Unknown exemptions belong to no sub-basin.
func WarningLine(e models.Event) string {
	if e.Kind == models.EventUnknown {
		return e.Message
	}
	return fmt.Sprintf("sub-basin %d hru %d: %s", e.SBID, e.HRUID, e.Message)
}
