package main

import (
	"context"
	"errors"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/lox/hruclean/internal/metrics"
)

type Globals struct {
	EnvFile     string `name:"env-file" help:"Load environment variables from this file before parsing flags." default:".env"`
	DB          string `name:"db" help:"Path to the SQLite run history (default data/hruclean.db, or the scenario file's database)." env:"HRUCLEAN_DB"`
	NoDB        bool   `name:"no-db" help:"Do not record runs." env:"HRUCLEAN_NO_DB"`
	MetricsFile string `name:"metrics-file" help:"Write Prometheus metrics to this textfile on exit." env:"HRUCLEAN_METRICS_FILE"`
	Plain       bool   `help:"Render tables without colour." env:"HRUCLEAN_PLAIN"`
}

type CLI struct {
	Globals

	Clean     CleanCmd     `cmd:"" help:"Consolidate an HRU table at one area tolerance."`
	Scenarios ScenariosCmd `cmd:"" help:"Run every scenario in a YAML file and compare the results."`
	Runs      RunsCmd      `cmd:"" help:"List recorded runs, or show one run's sub-basin summary."`
	Compare   CompareCmd   `cmd:"" help:"Compare recorded runs side by side."`
	Replay    ReplayCmd    `cmd:"" help:"Run a recorded run again from its stored input tables."`
}

// databasePath is --db when given, otherwise fallback.
func (g *Globals) databasePath(fallback string) string {
	if g.DB != "" {
		return g.DB
	}
	return fallback
}

func main() {
	if err := loadEnvFile(envFileArg(os.Args[1:])); err != nil {
		log.Fatalf("load env file: %v", err)
	}

	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("hruclean"),
		kong.Description("Merge or drop HRUs smaller than a fraction of their sub-basin."),
		kong.UsageOnError(),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	kctx.BindTo(ctx, (*context.Context)(nil))

	err := kctx.Run(&cli.Globals)

	if cli.MetricsFile != "" {
		if merr := metrics.WriteTextfile(cli.MetricsFile); merr != nil {
			log.Printf("metrics: %v", merr)
		}
	}
	kctx.FatalIfErrorf(err)
}

// envFileArg finds --env-file before kong runs, so the file can feed the
// HRUCLEAN_* defaults.
func envFileArg(args []string) string {
	for i, arg := range args {
		if arg == "--" {
			break
		}
		if v, ok := strings.CutPrefix(arg, "--env-file="); ok {
			return v
		}
		if arg == "--env-file" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

// loadEnvFile loads path, or .env when path is empty. Only an explicitly
// named file is required to exist. Variables already set are kept.
func loadEnvFile(path string) error {
	required := path != ""
	if path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && !required && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
