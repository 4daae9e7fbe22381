package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/lox/hruclean/internal/config"
	"github.com/lox/hruclean/internal/consolidate"
	"github.com/lox/hruclean/internal/ingest"
	"github.com/lox/hruclean/internal/models"
	"github.com/lox/hruclean/internal/pipeline"
	"github.com/lox/hruclean/internal/report"
	"github.com/lox/hruclean/internal/store"
)

type CleanCmd struct {
	HRUs       string  `name:"hrus" help:"HRU table (CSV)." required:"" env:"HRUCLEAN_HRUS"`
	SubBasins  string  `name:"subbasins" help:"Sub-basin table (CSV)." required:"" env:"HRUCLEAN_SUBBASINS"`
	Out        string  `help:"Output directory." default:"out" env:"HRUCLEAN_OUT"`
	Tol        float64 `name:"tol" help:"Minimum HRU area as a fraction of its sub-basin (0 <= tol < 1)." default:"0.005" env:"HRUCLEAN_AREA_TOL"`
	Protected  []int64 `help:"HRU IDs that are never removed but may absorb area." env:"HRUCLEAN_PROTECTED"`
	Locked     []int64 `help:"HRU IDs that are never removed." env:"HRUCLEAN_LOCKED"`
	LockPolicy string  `name:"lock-policy" help:"Whether locked HRUs may absorb area (strict, receive)." enum:"strict,receive" default:"strict" env:"HRUCLEAN_LOCK_POLICY"`
	Drop       bool    `help:"Drop small HRUs instead of merging them." env:"HRUCLEAN_DROP"`
	Label      string  `help:"Label recorded with the run."`
	Parquet    bool    `help:"Also write hrus.parquet." env:"HRUCLEAN_PARQUET"`
}

func (c *CleanCmd) Run(ctx context.Context, g *Globals) error {
	st, closeDB, err := openStore(g, config.DefaultDatabase)
	if err != nil {
		return err
	}
	defer closeDB()

	in, err := pipeline.LoadInputs(c.HRUs, c.SubBasins)
	if err != nil {
		return err
	}

	runner := pipeline.NewRunner(st, c.Out)
	runner.SetParquet(c.Parquet)

	sc := pipeline.Scenario{
		Label: c.Label,
		Options: consolidate.Options{
			AreaTol:    c.Tol,
			Protected:  consolidate.NewIDSet(c.Protected),
			Locked:     consolidate.NewIDSet(c.Locked),
			Merge:      !c.Drop,
			LockPolicy: consolidate.LockPolicy(c.LockPolicy),
		},
	}
	outcome, err := runner.Run(ctx, in, sc, c.Out)
	if err != nil {
		return err
	}

	fmt.Println(report.Summary(outcome.Result.Summary, style(g)))
	if outcome.Run.ID != "" {
		fmt.Printf("run %s: %d → %d HRUs, written to %s\n", outcome.Run.ID, outcome.Run.HRUsIn, outcome.Run.HRUsOut, outcome.Dir)
	} else {
		fmt.Printf("%d → %d HRUs, written to %s\n", outcome.Run.HRUsIn, outcome.Run.HRUsOut, outcome.Dir)
	}
	return nil
}

type ScenariosCmd struct {
	File string `arg:"" help:"Scenario file (YAML)." type:"existingfile"`
}

func (c *ScenariosCmd) Run(ctx context.Context, g *Globals) error {
	cfg, err := config.Load(c.File)
	if err != nil {
		return err
	}

	st, closeDB, err := openStore(g, cfg.Database)
	if err != nil {
		return err
	}
	defer closeDB()

	in, err := pipeline.LoadInputs(cfg.HRUs, cfg.SubBasins)
	if err != nil {
		return err
	}

	scenarios := make([]pipeline.Scenario, 0, len(cfg.Scenarios))
	for _, s := range cfg.Scenarios {
		opts, err := s.Options()
		if err != nil {
			return fmt.Errorf("scenario %s: %w", s.Name, err)
		}
		scenarios = append(scenarios, pipeline.Scenario{Label: s.Name, Options: opts})
	}

	runner := pipeline.NewRunner(st, cfg.Output)
	runner.SetParquet(cfg.Parquet)
	outcomes, err := runner.RunAll(ctx, in, scenarios)
	if err != nil {
		return err
	}

	runs := make([]models.Run, 0, len(outcomes))
	for _, o := range outcomes {
		runs = append(runs, *o.Run)
	}
	fmt.Println(report.Comparison(runs, style(g)))
	return nil
}

type RunsCmd struct {
	ID       string `arg:"" optional:"" help:"Show the sub-basin summary and warnings of this run."`
	Limit    int    `help:"Number of runs to list." default:"20"`
	Snapshot string `help:"Only list successful runs made against this HRU table hash."`
	HRUs     bool   `name:"hrus" help:"Print the run's surviving HRUs as CSV instead of the summary."`
	Delete   bool   `help:"Delete the run and everything recorded for it."`
}

func (c *RunsCmd) Run(g *Globals) error {
	st, closeDB, err := requireStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	if c.ID == "" && (c.HRUs || c.Delete) {
		return errors.New("--hrus and --delete need a run ID")
	}
	switch {
	case c.Delete:
		return deleteRun(st, c.ID)
	case c.HRUs:
		return printRunHRUs(st, c.ID)
	case c.ID != "":
		return showRun(st, c.ID, style(g))
	}

	var runs []models.Run
	if c.Snapshot != "" {
		runs, err = st.RunsForSnapshot(c.Snapshot)
	} else {
		runs, err = st.ListRuns(c.Limit)
	}
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}
	if len(runs) == 0 {
		fmt.Println("no runs recorded")
		return nil
	}
	fmt.Println(report.Runs(runs, style(g)))
	return nil
}

func showRun(st *store.Store, id string, s report.Style) error {
	run, err := st.GetRun(id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}

	summary, err := st.GetRunSummary(id)
	if err != nil {
		return fmt.Errorf("get summary: %w", err)
	}
	fmt.Println(report.Comparison([]models.Run{*run}, s))
	fmt.Println(report.Summary(summary, s))

	events, err := st.GetRunEvents(id, "")
	if err != nil {
		return fmt.Errorf("get events: %w", err)
	}
	for _, e := range events {
		if e.Kind == models.EventNoTarget || e.Kind == models.EventUnknown {
			fmt.Printf("warning: %s\n", pipeline.WarningLine(e))
		}
	}
	if run.ErrorMessage != "" {
		fmt.Printf("error: %s\n", run.ErrorMessage)
	}
	return nil
}

func printRunHRUs(st *store.Store, id string) error {
	run, err := st.GetRun(id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	hrus, err := st.GetRunHRUs(id)
	if err != nil {
		return fmt.Errorf("get run hrus: %w", err)
	}
	return ingest.WriteHRUs(os.Stdout, hrus)
}

func deleteRun(st *store.Store, id string) error {
	run, err := st.GetRun(id)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	if run == nil {
		return fmt.Errorf("run %s not found", id)
	}
	if err := st.DeleteRun(id); err != nil {
		return err
	}
	log.Printf("store: deleted run %s", id)
	return nil
}

type ReplayCmd struct {
	ID      string `arg:"" help:"Run ID to replay."`
	Out     string `help:"Output directory." default:"out/replay" env:"HRUCLEAN_OUT"`
	Parquet bool   `help:"Also write hrus.parquet." env:"HRUCLEAN_PARQUET"`
}

func (c *ReplayCmd) Run(ctx context.Context, g *Globals) error {
	st, closeDB, err := requireStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	runner := pipeline.NewRunner(st, c.Out)
	runner.SetParquet(c.Parquet)
	outcome, err := runner.Replay(ctx, c.ID, c.Out)
	if err != nil {
		return err
	}

	original, err := st.GetRun(c.ID)
	if err != nil {
		return fmt.Errorf("get run: %w", err)
	}
	fmt.Println(report.Comparison([]models.Run{*original, *outcome.Run}, style(g)))
	fmt.Printf("run %s: written to %s\n", outcome.Run.ID, outcome.Dir)
	return nil
}

type CompareCmd struct {
	IDs []string `arg:"" help:"Run IDs to compare, in column order."`
}

func (c *CompareCmd) Run(g *Globals) error {
	st, closeDB, err := requireStore(g)
	if err != nil {
		return err
	}
	defer closeDB()

	runs, err := st.GetRuns(c.IDs)
	if err != nil {
		return err
	}
	fmt.Println(report.Comparison(runs, style(g)))
	return nil
}

func style(g *Globals) report.Style {
	if g.Plain {
		return report.PlainStyle()
	}
	return report.DefaultStyle()
}

func requireStore(g *Globals) (*store.Store, func(), error) {
	if g.NoDB {
		return nil, nil, errors.New("run history is disabled (--no-db)")
	}
	return openStore(g, config.DefaultDatabase)
}

// openStore opens and migrates the run history at --db, or at fallback when
// --db is not set. It returns a nil store when history is disabled.
func openStore(g *Globals, fallback string) (*store.Store, func(), error) {
	if g.NoDB {
		return nil, func() {}, nil
	}

	path := g.databasePath(fallback)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, nil, fmt.Errorf("create database directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")

	st := store.New(db)
	if err := st.Migrate(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	log.Printf("store: using %s", path)
	return st, func() { db.Close() }, nil
}
