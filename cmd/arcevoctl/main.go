package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"arcevo/internal/metrics"
	"arcevo/internal/storage"
	"arcevo/pkg/arcevo"
)

const (
	artifactsDir = "runs"
	exportsDir   = "exports"
	dbPath       = "arcevo.db"
)

var stdout io.Writer = os.Stdout

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Args[1:])
	stop()
	klog.Flush()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "run":
		return runRun(ctx, args[1:])
	case "runs":
		return runRuns(ctx, args[1:])
	case "fitness":
		return runFitness(ctx, args[1:])
	case "individuals":
		return runIndividuals(ctx, args[1:])
	case "plot":
		return runPlot(ctx, args[1:])
	case "export":
		return runExport(ctx, args[1:])
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

// clientFlags are shared by every subcommand that reads or writes runs.
type clientFlags struct {
	storeKind    *string
	dbPath       *string
	artifactsDir *string
}

func newFlagSet(name string) (*pflag.FlagSet, *clientFlags) {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	fs.AddGoFlagSet(klogFlags)

	return fs, &clientFlags{
		storeKind:    fs.String("store", storage.DefaultStoreKind, "store backend: memory|sqlite"),
		dbPath:       fs.String("db-path", dbPath, "sqlite database path"),
		artifactsDir: fs.String("artifacts-dir", artifactsDir, "run artifacts directory"),
	}
}

func (f *clientFlags) client(reg prometheus.Registerer) (*arcevo.Client, error) {
	return arcevo.New(arcevo.Options{
		StoreKind:    *f.storeKind,
		DBPath:       *f.dbPath,
		ArtifactsDir: *f.artifactsDir,
		ExportsDir:   exportsDir,
		Registerer:   reg,
	})
}

func runRun(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("run")
	configPath := fs.String("config", "", "run config file (YAML or JSON)")
	runID := fs.String("run-id", "", "explicit run id (default: random uuid)")
	project := fs.String("project", "", "target project directory")
	workDir := fs.String("work-dir", "", "workspace directory for backups and mutants (default: work/<run id>)")
	generator := fs.String("generator", "", "mutant generator shell command with {operator}, {source} and {output} placeholders")
	build := fs.String("build", "", "build shell command run in the project (empty skips compilation)")
	testCmd := fs.String("test", "", "stress test shell command run in the project")
	population := fs.Int("pop", 30, "population size")
	generations := fs.Int("gens", 30, "maximum generations")
	testRuns := fs.Int("test-runs", 100, "stress runs per evaluation")
	window := fs.Int("window", 10, "improvement window in generations")
	minAvg := fs.Float64("min-avg-improvement", 0, "minimum average fitness change within the window")
	minBest := fs.Float64("min-best-improvement", 0, "minimum best fitness change within the window")
	attempts := fs.Int("mutation-attempts", 0, "operator selections per mutation request (0 uses the default)")
	operators := fs.StringSlice("operators", nil, "enable only these operators of the default catalogue")
	workers := fs.Int("workers", 4, "mutation worker count")
	seed := fs.Int64("seed", 1, "rng seed")
	bootstrap := fs.String("bootstrap", "baseline", "feedback before the first evaluation: baseline|uniform")
	failurePolicy := fs.String("failure-policy", "abort", "engine or harness failures: abort|skip")
	fitness := fs.String("fitness", "weighted", "fitness strategy: weighted|bug_exposure")
	functionalWeight := fs.Float64("functional-weight", 0, "weighted fitness: success rate weight (0 with non-functional-weight 0 uses defaults)")
	nonFunctionalWeight := fs.Float64("non-functional-weight", 0, "weighted fitness: timeout and error penalty weight")
	testTimeout := fs.Duration("test-timeout", 30*time.Second, "per stress run timeout")
	parallelism := fs.Int("parallelism", 1, "concurrent stress runs")
	racePattern := fs.String("race-pattern", "", "regexp marking a data race in test output")
	deadlockPattern := fs.String("deadlock-pattern", "", "regexp marking a deadlock in test output")
	metricsAddr := fs.String("metrics-addr", "", "serve prometheus metrics on this address while running")
	jsonOut := fs.Bool("json", false, "emit run summary as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var req arcevo.RunRequest
	if *configPath != "" {
		file, err := loadRunFile(*configPath)
		if err != nil {
			return err
		}
		if req, err = file.runRequest(); err != nil {
			return err
		}
		if file.Store.Kind != "" && !fs.Changed("store") {
			*cf.storeKind = file.Store.Kind
		}
		if file.Store.Path != "" && !fs.Changed("db-path") {
			*cf.dbPath = file.Store.Path
		}
		if file.ArtifactsDir != "" && !fs.Changed("artifacts-dir") {
			*cf.artifactsDir = file.ArtifactsDir
		}
	}

	// Flags override the config file; without a file every flag applies.
	set := func(name string) bool {
		return *configPath == "" || fs.Changed(name)
	}
	if set("run-id") {
		req.RunID = *runID
	}
	if set("project") {
		req.Engine.ProjectDir = *project
	}
	if set("work-dir") {
		req.Engine.WorkDir = *workDir
	}
	if set("generator") && *generator != "" {
		req.Engine.Generator = shellCommand(*generator)
	}
	if set("build") && *build != "" {
		req.Engine.Build = shellCommand(*build)
	}
	if set("test") && *testCmd != "" {
		req.Harness.Command = shellCommand(*testCmd)
	}
	if set("pop") {
		req.Population = *population
	}
	if set("gens") {
		req.Generations = *generations
	}
	if set("test-runs") {
		req.TestRuns = *testRuns
	}
	if set("window") {
		req.ImprovementWindow = *window
	}
	if set("min-avg-improvement") {
		req.MinAvgFitnessImprovement = *minAvg
	}
	if set("min-best-improvement") {
		req.MinBestFitnessImprovement = *minBest
	}
	if set("mutation-attempts") {
		req.MutationAttempts = *attempts
	}
	if set("operators") && len(*operators) > 0 {
		specs, err := selectOperators(*operators)
		if err != nil {
			return err
		}
		req.Operators = specs
	}
	if set("workers") {
		req.Workers = *workers
	}
	if set("seed") {
		req.Seed = *seed
	}
	if set("bootstrap") {
		req.Bootstrap = *bootstrap
	}
	if set("failure-policy") {
		req.FailurePolicy = *failurePolicy
	}
	if set("fitness") {
		req.Fitness.Strategy = *fitness
	}
	if set("functional-weight") {
		req.Fitness.FunctionalWeight = *functionalWeight
	}
	if set("non-functional-weight") {
		req.Fitness.NonFunctionalWeight = *nonFunctionalWeight
	}
	if set("test-timeout") {
		req.Harness.Timeout = *testTimeout
	}
	if set("parallelism") {
		req.Harness.Parallelism = *parallelism
	}
	if set("race-pattern") {
		req.Harness.RacePattern = *racePattern
	}
	if set("deadlock-pattern") {
		req.Harness.DeadlockPattern = *deadlockPattern
	}
	if req.Population < 0 || req.Generations < 0 || req.TestRuns < 0 {
		return errors.New("pop, gens and test-runs must be > 0")
	}

	var (
		reg        *prometheus.Registry
		registerer prometheus.Registerer
	)
	if *metricsAddr != "" {
		reg = prometheus.NewRegistry()
		registerer = reg
	}
	client, err := cf.client(registerer)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	if reg != nil {
		metricsCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		go func() {
			if err := metrics.Serve(metricsCtx, *metricsAddr, reg); err != nil {
				klog.FromContext(ctx).Error(err, "Metrics endpoint stopped", "addr", *metricsAddr)
			}
		}()
	}

	summary, err := client.Run(ctx, req)
	if err != nil {
		if summary.RunID != "" {
			return fmt.Errorf("run %s: %w", summary.RunID, err)
		}
		return err
	}
	if *jsonOut {
		return writeJSON(summary)
	}

	fmt.Fprintf(stdout, "run_id=%s stop_reason=%s generations=%d best_individual=%d final_best_fitness=%.6f artifacts=%s\n",
		summary.RunID,
		summary.StopReason,
		len(summary.BestFitness),
		summary.BestIndividualID,
		summary.FinalBestFitness,
		summary.ArtifactsDir,
	)
	fmt.Fprintf(stdout, "stop_detail=%q\n", summary.StopDetail)
	return nil
}

func runRuns(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("runs")
	limit := fs.Int("limit", 20, "max runs to list")
	jsonOut := fs.Bool("json", false, "emit runs list as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *limit <= 0 {
		return errors.New("limit must be > 0")
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	items, err := client.Runs(ctx, arcevo.RunsRequest{Limit: *limit})
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(stdout, "no runs found")
		return nil
	}
	if *jsonOut {
		return writeJSON(items)
	}

	for _, item := range items {
		created := item.CreatedAtUTC
		if t, err := time.Parse(time.RFC3339Nano, item.CreatedAtUTC); err == nil {
			created = humanize.Time(t)
		}
		fmt.Fprintf(stdout, "run_id=%s created=%q seed=%d pop=%d generations=%d/%d stop_reason=%s final_best_fitness=%.6f\n",
			item.RunID,
			created,
			item.Seed,
			item.Population,
			item.GenerationsCompleted,
			item.MaxGenerations,
			item.StopReason,
			item.FinalBestFitness,
		)
	}
	return nil
}

func runFitness(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("fitness")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show fitness history for the most recent run")
	limit := fs.Int("limit", 0, "max generations to print (0 for all)")
	jsonOut := fs.Bool("json", false, "emit fitness history as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkRunSelector(*runID, *latest, "fitness"); err != nil {
		return err
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	generations, err := client.Generations(ctx, arcevo.GenerationsRequest{
		RunSelector: arcevo.RunSelector{RunID: *runID, Latest: *latest},
		Limit:       *limit,
	})
	if err != nil {
		return err
	}
	if len(generations) == 0 {
		fmt.Fprintln(stdout, "no fitness history")
		return nil
	}
	if *jsonOut {
		return writeJSON(generations)
	}

	for _, g := range generations {
		fmt.Fprintf(stdout, "generation=%d average_fitness=%.6f best_fitness=%.6f best_individual=%d mutated=%d degraded=%d failed=%d datarace=%.3f deadlock=%.3f\n",
			g.Generation,
			g.AverageFitness,
			g.BestFitness,
			g.BestIndividualID,
			g.Mutated,
			g.Degraded,
			g.Failed,
			g.MeanRates.Datarace,
			g.MeanRates.Deadlock,
		)
	}
	return nil
}

func runIndividuals(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("individuals")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "show the final population of the most recent run")
	jsonOut := fs.Bool("json", false, "emit individuals as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkRunSelector(*runID, *latest, "individuals"); err != nil {
		return err
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	individuals, err := client.Individuals(ctx, arcevo.IndividualsRequest{
		RunSelector: arcevo.RunSelector{RunID: *runID, Latest: *latest},
	})
	if err != nil {
		return err
	}
	if *jsonOut {
		return writeJSON(individuals)
	}

	for _, ind := range individuals {
		fmt.Fprintf(stdout, "individual=%d generation=%d fitness=%.6f scored=%t failures=%d unmutated=%d operators=%s\n",
			ind.ID,
			ind.Generation,
			ind.Fitness,
			ind.Scored,
			ind.Failures,
			ind.Unmutated,
			strings.Join(ind.AppliedOperators, ","),
		)
	}
	return nil
}

func runPlot(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("plot")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "plot the most recent run")
	out := fs.String("out", "", "output HTML file (default: fitness.html in the run artifacts)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkRunSelector(*runID, *latest, "plot"); err != nil {
		return err
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Plot(ctx, arcevo.PlotRequest{
		RunSelector: arcevo.RunSelector{RunID: *runID, Latest: *latest},
		Out:         *out,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "plotted run_id=%s to=%s\n", summary.RunID, summary.Path)
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs, cf := newFlagSet("export")
	runID := fs.String("run-id", "", "run id")
	latest := fs.Bool("latest", false, "export the most recent run")
	outDir := fs.String("out", exportsDir, "export output directory")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := checkRunSelector(*runID, *latest, "export"); err != nil {
		return err
	}

	client, err := cf.client(nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = client.Close()
	}()

	summary, err := client.Export(ctx, arcevo.ExportRequest{
		RunSelector: arcevo.RunSelector{RunID: *runID, Latest: *latest},
		OutDir:      *outDir,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "exported run_id=%s to=%s\n", summary.RunID, summary.Directory)
	return nil
}

func checkRunSelector(runID string, latest bool, command string) error {
	if runID != "" && latest {
		return errors.New("use either --run-id or --latest, not both")
	}
	if runID == "" && !latest {
		return fmt.Errorf("%s requires --run-id or --latest", command)
	}
	return nil
}

// selectOperators enables the named operators of the default catalogue and
// disables the rest.
func selectOperators(names []string) ([]arcevo.OperatorSpec, error) {
	wanted := make(map[string]bool, len(names))
	for _, name := range names {
		wanted[strings.TrimSpace(name)] = true
	}
	specs := arcevo.DefaultOperators()
	for i := range specs {
		specs[i].Enabled = wanted[specs[i].Name]
		delete(wanted, specs[i].Name)
	}
	for name := range wanted {
		return nil, fmt.Errorf("unknown operator: %s", name)
	}
	return specs, nil
}

func shellCommand(script string) []string {
	return []string{"sh", "-c", script}
}

func writeJSON(value any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: arcevoctl <run|runs|fitness|individuals|plot|export> [flags]", msg)
}
