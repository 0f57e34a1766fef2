// Command fleetsim generates scenarios and runs the planning engines on them
// from the command line.
//
//	fleetsim gen -seed 42 -o scenario.txt
//	fleetsim run -standard 1 -algo all
//	fleetsim run -scenario scenario.yaml -algo genetic -runlog runs/
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"dronenav/internal/buildinfo"
	"dronenav/internal/config"
	"dronenav/internal/logger"
	"dronenav/internal/model"
	"dronenav/internal/opt"
	"dronenav/internal/runlog"
	"dronenav/internal/scenario"
)

func main() {
	_ = godotenv.Load(".env")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		logger.L().Error("fleetsim failed", "err", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: fleetsim gen|run|version [flags]")

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}
	switch args[0] {
	case "gen":
		return cmdGen(args[1:], stdout)
	case "run":
		return cmdRun(ctx, args[1:], stdout)
	case "version":
		_, err := fmt.Fprintln(stdout, buildinfo.String())
		return err
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, args[0])
}

func cmdGen(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("gen", flag.ContinueOnError)
	var (
		seed       = fs.Int64("seed", 42, "random seed")
		vehicles   = fs.Int("vehicles", 5, "number of drones")
		deliveries = fs.Int("deliveries", 20, "number of deliveries")
		zones      = fs.Int("zones", 2, "number of no-fly zones")
		width      = fs.Float64("width", 100, "area width")
		height     = fs.Float64("height", 100, "area height")
		standard   = fs.Int("standard", 0, "emit standard scenario 1 or 2 instead")
		name       = fs.String("name", "", "scenario name")
		format     = fs.String("format", "", "text, yaml or json (default from -o extension)")
		out        = fs.String("o", "", "output file (default stdout)")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	var (
		sc  model.Scenario
		err error
	)
	if *standard != 0 {
		sc, err = scenario.Standard(*standard)
	} else {
		sc, err = scenario.Generate(scenario.GenConfig{
			Name: *name, Seed: *seed, Vehicles: *vehicles, Deliveries: *deliveries, Zones: *zones,
			Width: *width, Height: *height, ReferenceTime: model.Clock(10, 0, 0),
		})
	}
	if err != nil {
		return err
	}
	f := *format
	if f == "" {
		f = formatFromPath(*out)
	}
	var buf bytes.Buffer
	if err := encode(&buf, f, sc); err != nil {
		return err
	}
	if *out == "" {
		_, err := stdout.Write(buf.Bytes())
		return err
	}
	return os.WriteFile(*out, buf.Bytes(), 0o644)
}

func formatFromPath(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	}
	return "text"
}

func encode(w io.Writer, format string, sc model.Scenario) error {
	switch format {
	case "text":
		return scenario.Write(w, sc)
	case "yaml":
		return scenario.WriteYAML(w, sc)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(sc)
	}
	return fmt.Errorf("unknown format %q", format)
}

func load(path string) (model.Scenario, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return model.Scenario{}, err
	}
	switch formatFromPath(path) {
	case "yaml":
		return scenario.ReadYAML(bytes.NewReader(b))
	case "json":
		return scenario.DecodeJSON(b)
	}
	return scenario.Read(bytes.NewReader(b))
}

func cmdRun(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	var (
		configPath  = fs.String("config", "", "YAML config file for engine defaults")
		file        = fs.String("scenario", "", "scenario file (text, .yaml or .json)")
		standard    = fs.Int("standard", 0, "use standard scenario 1 or 2")
		algo        = fs.String("algo", "all", "all, router, csp or genetic")
		at          = fs.String("at", "", "reference time HH:MM (default from scenario)")
		seed        = fs.Int64("seed", 1, "genetic seed")
		population  = fs.Int("population", 0, "genetic population")
		generations = fs.Int("generations", 0, "genetic generations")
		workers     = fs.Int("workers", 0, "parallel fitness workers")
		logDir      = fs.String("runlog", "", "archive results under this directory")
		verbose     = fs.Bool("v", false, "print each vehicle's route")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger.Configure(cfg.Logging.Level, cfg.Logging.Format, os.Stderr)

	var sc model.Scenario
	switch {
	case *file != "":
		sc, err = load(*file)
	case *standard != 0:
		sc, err = scenario.Standard(*standard)
	default:
		return errors.New("run: -scenario or -standard is required")
	}
	if err != nil {
		return err
	}

	algos := opt.Algorithms
	if *algo != "all" {
		algos = []string{*algo}
	}
	o := opt.PlanOptions{Genetic: opt.GeneticConfig{
		Population:    cfg.Engine.Population,
		Generations:   cfg.Engine.Generations,
		CrossoverRate: cfg.Engine.CrossoverRate,
		MutationRate:  cfg.Engine.MutationRate,
		Workers:       cfg.Engine.Workers,
		Seed:          *seed,
	}}
	if *population > 0 {
		o.Genetic.Population = *population
	}
	if *generations > 0 {
		o.Genetic.Generations = *generations
	}
	if *workers > 0 {
		o.Genetic.Workers = *workers
	}
	if *at != "" {
		t, err := model.ParseTimeOfDay(*at)
		if err != nil {
			return err
		}
		o.ReferenceTime = &t
	}

	var rl *runlog.Writer
	if *logDir != "" {
		rl = runlog.NewWriter(*logDir, "fleetsim")
		defer rl.Close()
	}

	fmt.Fprintf(stdout, "scenario %q: %d drones, %d deliveries, %d zones\n",
		sc.Name, len(sc.Vehicles), len(sc.Deliveries), len(sc.Zones))
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ALGORITHM\tASSIGNED\tUNASSIGNED\tDURATION\tSTATS")
	results := make([]model.PlanResult, 0, len(algos))
	for _, a := range algos {
		res, err := opt.Plan(ctx, a, sc, o)
		if err != nil {
			return err
		}
		results = append(results, res)
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\t%s\n", a, len(sc.Deliveries)-len(res.Unassigned), len(res.Unassigned),
			time.Duration(res.DurationMs)*time.Millisecond, formatStats(res.Stats))
		if rl != nil {
			fin := time.Now().UTC()
			r := model.Run{ID: fmt.Sprintf("%s-%d", a, fin.UnixNano()), ScenarioID: sc.Name, Algorithm: a,
				Seed: *seed, Status: model.RunCompleted, CreatedAt: fin, FinishedAt: &fin, Result: &res}
			if err := rl.WriteRun(r); err != nil {
				return err
			}
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if *verbose {
		for _, res := range results {
			printRoutes(stdout, res)
		}
	}
	return nil
}

func formatStats(stats map[string]float64) string {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%.2f", k, stats[k])
	}
	return strings.Join(parts, " ")
}

func printRoutes(w io.Writer, res model.PlanResult) {
	ids := make([]int, 0, len(res.Routes))
	for id := range res.Routes {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fmt.Fprintf(w, "\n%s routes:\n", res.Algorithm)
	for _, id := range ids {
		fmt.Fprintf(w, "  drone %d: %v\n", id, res.Routes[id])
	}
	if len(res.Unassigned) > 0 {
		fmt.Fprintf(w, "  unassigned: %v\n", res.Unassigned)
	}
}
