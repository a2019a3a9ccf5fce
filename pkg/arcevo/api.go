package arcevo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"arcevo/internal/engine"
	"arcevo/internal/evo"
	"arcevo/internal/harness"
	"arcevo/internal/metrics"
	"arcevo/internal/model"
	"arcevo/internal/stats"
	"arcevo/internal/storage"
)

const (
	defaultArtifactsDir = "runs"
	defaultExportsDir   = "exports"
	defaultWorkDir      = "work"
	defaultDBPath       = "arcevo.db"

	defaultPopulation        = 30
	defaultGenerations       = 30
	defaultTestRuns          = 100
	defaultImprovementWindow = 10
	defaultWorkers           = 4
	defaultTestTimeout       = 30 * time.Second
)

type Options struct {
	StoreKind    string
	DBPath       string
	ArtifactsDir string
	ExportsDir   string
	// WorkDir holds one workspace per run unless the run names its own.
	WorkDir string
	// Registerer receives the search metrics. Nil disables them.
	Registerer prometheus.Registerer
	// Logger replaces the context logger for runs when it has a sink.
	Logger logr.Logger
}

type Client struct {
	store    storage.Store
	recorder *metrics.Recorder
	logger   logr.Logger

	initOnce sync.Once
	initErr  error

	artifactsDir string
	exportsDir   string
	workDir      string
}

type FitnessSpec struct {
	Strategy            string
	FunctionalWeight    float64
	NonFunctionalWeight float64
}

type EngineSpec struct {
	ProjectDir string
	WorkDir    string
	Build      []string
	Generator  []string
}

type HarnessSpec struct {
	Command         []string
	Timeout         time.Duration
	Parallelism     int
	RacePattern     string
	DeadlockPattern string
}

type RunRequest struct {
	RunID                     string
	Population                int
	Generations               int
	TestRuns                  int
	ImprovementWindow         int
	MinAvgFitnessImprovement  float64
	MinBestFitnessImprovement float64
	MutationAttempts          int
	Operators                 []OperatorSpec
	Workers                   int
	Seed                      int64
	Bootstrap                 string
	FailurePolicy             string
	Fitness                   FitnessSpec
	Engine                    EngineSpec
	Harness                   HarnessSpec
}

type RunSummary struct {
	RunID            string
	ArtifactsDir     string
	AverageFitness   []float64
	BestFitness      []float64
	FinalBestFitness float64
	BestIndividualID int
	StopReason       string
	StopDetail       string
	Baseline         *model.Rates
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID                string
	CreatedAtUTC         string
	Seed                 int64
	Population           int
	MaxGenerations       int
	GenerationsCompleted int
	StopReason           string
	FinalBestFitness     float64
}

// RunSelector names a run directly or asks for the most recent one.
type RunSelector struct {
	RunID  string
	Latest bool
}

type GenerationsRequest struct {
	RunSelector
	Limit int
}

type IndividualsRequest struct {
	RunSelector
}

type PlotRequest struct {
	RunSelector
	// Out is the HTML file to write. Empty writes next to the run artifacts.
	Out string
}

type PlotSummary struct {
	RunID string
	Path  string
}

type ExportRequest struct {
	RunSelector
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	artifactsDir := opts.ArtifactsDir
	if artifactsDir == "" {
		artifactsDir = defaultArtifactsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	workDir := opts.WorkDir
	if workDir == "" {
		workDir = defaultWorkDir
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}

	var recorder *metrics.Recorder
	if opts.Registerer != nil {
		if recorder, err = metrics.NewRecorder(opts.Registerer); err != nil {
			_ = storage.CloseIfSupported(store)
			return nil, err
		}
	}

	return &Client{
		store:        store,
		recorder:     recorder,
		logger:       opts.Logger,
		artifactsDir: artifactsDir,
		exportsDir:   exportsDir,
		workDir:      workDir,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		c.initErr = c.store.Init(ctx)
	})
	return c.initErr
}

// Run executes one mutation search against the configured project and
// persists its records and artifacts. A failed or canceled search still
// persists what it completed before the error is returned.
func (c *Client) Run(ctx context.Context, req RunRequest) (RunSummary, error) {
	if err := applyRunDefaults(&req); err != nil {
		return RunSummary{}, err
	}
	if err := c.Init(ctx); err != nil {
		return RunSummary{}, err
	}

	registry, err := buildRegistry(req.Operators)
	if err != nil {
		return RunSummary{}, err
	}
	fitness, err := evo.FitnessStrategyFromName(req.Fitness.Strategy, req.Fitness.FunctionalWeight, req.Fitness.NonFunctionalWeight)
	if err != nil {
		return RunSummary{}, err
	}

	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	workDir := req.Engine.WorkDir
	if workDir == "" {
		workDir = filepath.Join(c.workDir, runID)
	}
	workspace, err := engine.NewWorkspace(engine.Config{
		ProjectDir: req.Engine.ProjectDir,
		WorkDir:    workDir,
		Build:      req.Engine.Build,
		Generator:  req.Engine.Generator,
	})
	if err != nil {
		return RunSummary{}, err
	}
	battery, err := harness.New(harness.Config{
		Command:         req.Harness.Command,
		Dir:             req.Engine.ProjectDir,
		Runs:            req.TestRuns,
		Timeout:         req.Harness.Timeout,
		Parallelism:     req.Harness.Parallelism,
		RacePattern:     req.Harness.RacePattern,
		DeadlockPattern: req.Harness.DeadlockPattern,
	})
	if err != nil {
		return RunSummary{}, err
	}

	cfg := evo.Config{
		Registry:                  registry,
		Engine:                    workspace,
		Harness:                   battery,
		Fitness:                   fitness,
		PopulationSize:            req.Population,
		MaxGenerations:            req.Generations,
		TestRuns:                  req.TestRuns,
		ImprovementWindow:         req.ImprovementWindow,
		MinAvgFitnessImprovement:  req.MinAvgFitnessImprovement,
		MinBestFitnessImprovement: req.MinBestFitnessImprovement,
		MutationAttempts:          req.MutationAttempts,
		Workers:                   req.Workers,
		Seed:                      req.Seed,
		Bootstrap:                 evo.BootstrapPolicy(req.Bootstrap),
		FailurePolicy:             evo.FailurePolicy(req.FailurePolicy),
	}
	if c.recorder != nil {
		cfg.Observer = c.recorder
	}
	controller, err := evo.NewController(cfg)
	if err != nil {
		return RunSummary{}, err
	}

	if c.logger.GetSink() != nil {
		ctx = logr.NewContext(ctx, c.logger)
	}
	logger := klog.FromContext(ctx).WithValues("run", runID)
	ctx = klog.NewContext(ctx, logger)
	logger.Info("Starting mutation search",
		"project", req.Engine.ProjectDir,
		"population", req.Population,
		"generations", req.Generations,
		"testRuns", req.TestRuns,
		"operators", registry.EnabledCount(),
	)

	started := time.Now().UTC()
	result, runErr := controller.Run(ctx)
	finished := time.Now().UTC()

	best := finalBest(result)
	stopDetail := ""
	if result.Termination.Stop() {
		stopDetail = controller.Criteria().Describe(result.Termination)
	}
	record := model.RunRecord{
		VersionedRecord:      storage.CurrentVersion(),
		ID:                   runID,
		StartedAt:            started,
		FinishedAt:           finished,
		PopulationSize:       req.Population,
		MaxGenerations:       req.Generations,
		TestRuns:             req.TestRuns,
		Seed:                 req.Seed,
		Operators:            enabledOperatorIDs(registry),
		FitnessStrategy:      fitness.Name(),
		Bootstrap:            string(cfg.Bootstrap),
		FailurePolicy:        string(cfg.FailurePolicy),
		GenerationsCompleted: len(result.Generations),
		StopReason:           string(result.Termination.Reason),
		StopDetail:           stopDetail,
		BestIndividualID:     best.IndividualID,
		BestFitness:          best.Score,
	}
	if result.Baseline != nil {
		baseline := rateRecord(*result.Baseline)
		record.Baseline = &baseline
	}
	if record.Bootstrap == "" {
		record.Bootstrap = string(evo.BootstrapBaseline)
	}
	if record.FailurePolicy == "" {
		record.FailurePolicy = string(evo.FailurePolicyAbort)
	}
	if runErr != nil {
		record.Error = runErr.Error()
	}

	generations := generationRecords(result.Generations)
	individuals := individualRecords(result.Population)
	runDir, persistErr := c.persist(context.WithoutCancel(ctx), req, record, generations, individuals, fitness)
	if persistErr != nil {
		logger.Error(persistErr, "Persisting run records failed")
	}

	summary := RunSummary{
		RunID:            runID,
		ArtifactsDir:     runDir,
		AverageFitness:   append([]float64(nil), result.AverageFitness...),
		BestFitness:      make([]float64, 0, len(result.BestFitness)),
		FinalBestFitness: best.Score,
		BestIndividualID: best.IndividualID,
		StopReason:       record.StopReason,
		StopDetail:       stopDetail,
		Baseline:         record.Baseline,
	}
	for _, b := range result.BestFitness {
		summary.BestFitness = append(summary.BestFitness, b.Score)
	}
	return summary, errors.Join(runErr, persistErr)
}

func (c *Client) persist(
	ctx context.Context,
	req RunRequest,
	record model.RunRecord,
	generations []model.GenerationRecord,
	individuals []model.IndividualRecord,
	fitness evo.FitnessStrategy,
) (string, error) {
	if err := c.store.SaveRun(ctx, record); err != nil {
		return "", fmt.Errorf("save run: %w", err)
	}
	if err := c.store.SaveGenerations(ctx, record.ID, generations); err != nil {
		return "", fmt.Errorf("save generations: %w", err)
	}
	if err := c.store.SaveIndividuals(ctx, record.ID, individuals); err != nil {
		return "", fmt.Errorf("save individuals: %w", err)
	}

	average := make([]float64, 0, len(generations))
	best := make([]float64, 0, len(generations))
	for _, g := range generations {
		if g.Unscored {
			continue
		}
		average = append(average, g.AverageFitness)
		best = append(best, g.BestFitness)
	}
	runConfig := stats.RunConfig{
		RunID:                     record.ID,
		ProjectDir:                req.Engine.ProjectDir,
		PopulationSize:            req.Population,
		MaxGenerations:            req.Generations,
		TestRuns:                  req.TestRuns,
		ImprovementWindow:         req.ImprovementWindow,
		MinAvgFitnessImprovement:  req.MinAvgFitnessImprovement,
		MinBestFitnessImprovement: req.MinBestFitnessImprovement,
		MutationAttempts:          req.MutationAttempts,
		Seed:                      req.Seed,
		Workers:                   req.Workers,
		Operators:                 record.Operators,
		FitnessStrategy:           fitness.Name(),
		Bootstrap:                 record.Bootstrap,
		FailurePolicy:             record.FailurePolicy,
	}
	if weighted, ok := fitness.(evo.WeightedFitness); ok {
		runConfig.FunctionalWeight = weighted.FunctionalWeight
		runConfig.NonFunctionalWeight = weighted.NonFunctionalWeight
	}
	runDir, err := stats.WriteRunArtifacts(c.artifactsDir, stats.RunArtifacts{
		Config:           runConfig,
		AverageFitness:   average,
		BestFitness:      best,
		Generations:      generations,
		Individuals:      individuals,
		FinalBestFitness: record.BestFitness,
		BestIndividualID: record.BestIndividualID,
		StopReason:       record.StopReason,
		StopDetail:       record.StopDetail,
	})
	if err != nil {
		return "", fmt.Errorf("write run artifacts: %w", err)
	}
	if err := stats.AppendRunIndex(c.artifactsDir, stats.RunIndexEntry{
		RunID:                record.ID,
		PopulationSize:       record.PopulationSize,
		MaxGenerations:       record.MaxGenerations,
		GenerationsCompleted: record.GenerationsCompleted,
		Seed:                 record.Seed,
		Workers:              req.Workers,
		StopReason:           record.StopReason,
		FinalBestFitness:     record.BestFitness,
		CreatedAtUTC:         record.StartedAt.Format(time.RFC3339Nano),
	}); err != nil {
		return "", fmt.Errorf("append run index: %w", err)
	}
	return filepath.Clean(runDir), nil
}

func (c *Client) Runs(_ context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}

	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return nil, err
	}
	if len(entries) > req.Limit {
		entries = entries[:req.Limit]
	}

	out := make([]RunItem, 0, len(entries))
	for _, e := range entries {
		out = append(out, RunItem{
			RunID:                e.RunID,
			CreatedAtUTC:         e.CreatedAtUTC,
			Seed:                 e.Seed,
			Population:           e.PopulationSize,
			MaxGenerations:       e.MaxGenerations,
			GenerationsCompleted: e.GenerationsCompleted,
			StopReason:           e.StopReason,
			FinalBestFitness:     e.FinalBestFitness,
		})
	}
	return out, nil
}

// Generations returns the per-generation fitness history of a run, from the
// store when it holds the run and from the run artifacts otherwise.
func (c *Client) Generations(ctx context.Context, req GenerationsRequest) ([]model.GenerationRecord, error) {
	if req.Limit < 0 {
		return nil, errors.New("limit must be >= 0")
	}
	runID, err := c.resolveRunID(req.RunSelector, "fitness history")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	generations, ok, err := c.store.GetGenerations(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		generations, ok, err = stats.ReadGenerations(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("fitness history not found for run id: %s", runID)
	}
	if req.Limit > 0 && len(generations) > req.Limit {
		generations = generations[:req.Limit]
	}
	out := make([]model.GenerationRecord, len(generations))
	copy(out, generations)
	return out, nil
}

// Individuals returns the final population of a run.
func (c *Client) Individuals(ctx context.Context, req IndividualsRequest) ([]model.IndividualRecord, error) {
	runID, err := c.resolveRunID(req.RunSelector, "individuals")
	if err != nil {
		return nil, err
	}
	if err := c.Init(ctx); err != nil {
		return nil, err
	}

	individuals, ok, err := c.store.GetIndividuals(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !ok {
		individuals, ok, err = stats.ReadIndividuals(c.artifactsDir, runID)
		if err != nil {
			return nil, err
		}
	}
	if !ok {
		return nil, fmt.Errorf("individuals not found for run id: %s", runID)
	}
	return individuals, nil
}

func (c *Client) Plot(ctx context.Context, req PlotRequest) (PlotSummary, error) {
	runID, err := c.resolveRunID(req.RunSelector, "plot")
	if err != nil {
		return PlotSummary{}, err
	}
	generations, err := c.Generations(ctx, GenerationsRequest{RunSelector: RunSelector{RunID: runID}})
	if err != nil {
		return PlotSummary{}, err
	}

	out := req.Out
	if out == "" {
		out = filepath.Join(c.artifactsDir, runID, "fitness.html")
	}
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return PlotSummary{}, err
	}
	if err := stats.WriteFitnessChart(out, runID, generations); err != nil {
		return PlotSummary{}, err
	}
	return PlotSummary{RunID: runID, Path: filepath.Clean(out)}, nil
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	runID, err := c.resolveRunID(req.RunSelector, "export")
	if err != nil {
		return ExportSummary{}, err
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	exportedDir, err := stats.ExportRunArtifacts(c.artifactsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(exportedDir)}, nil
}

func (c *Client) resolveRunID(sel RunSelector, what string) (string, error) {
	if sel.RunID != "" && sel.Latest {
		return "", errors.New("use either run id or latest")
	}
	if !sel.Latest {
		if sel.RunID == "" {
			return "", fmt.Errorf("%s requires run id or latest", what)
		}
		return sel.RunID, nil
	}
	entries, err := stats.ListRunIndex(c.artifactsDir)
	if err != nil {
		return "", err
	}
	if len(entries) == 0 {
		return "", errors.New("no runs available")
	}
	return entries[0].RunID, nil
}

func applyRunDefaults(req *RunRequest) error {
	if req.Population == 0 {
		req.Population = defaultPopulation
	}
	if req.Generations == 0 {
		req.Generations = defaultGenerations
	}
	if req.TestRuns == 0 {
		req.TestRuns = defaultTestRuns
	}
	if req.ImprovementWindow == 0 {
		req.ImprovementWindow = defaultImprovementWindow
	}
	if req.Workers == 0 {
		req.Workers = defaultWorkers
	}
	if req.MutationAttempts == 0 {
		req.MutationAttempts = evo.DefaultMutationAttempts
	}
	if req.Harness.Timeout == 0 {
		req.Harness.Timeout = defaultTestTimeout
	}
	if req.Engine.ProjectDir == "" {
		return errors.New("project dir is required")
	}
	if len(req.Engine.Generator) == 0 {
		return errors.New("mutant generator command is required")
	}
	if len(req.Harness.Command) == 0 {
		return errors.New("test command is required")
	}
	if req.Population < 0 || req.Generations < 0 || req.TestRuns < 0 || req.Workers < 0 {
		return errors.New("population, generations, test runs and workers must be > 0")
	}
	return nil
}
