package evo

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"gonum.org/v1/gonum/stat"
	"k8s.io/klog/v2"
)

const DefaultMutationAttempts = 100

var (
	ErrInvalidConfig = errors.New("invalid controller config")
	ErrBackup        = errors.New("project backup failed")
	ErrRestore       = errors.New("project restore failed")
)

// FailurePolicy decides what an engine or harness failure does to the run.
type FailurePolicy string

const (
	// FailurePolicyAbort ends the run on the first collaborator failure.
	FailurePolicyAbort FailurePolicy = "abort"
	// FailurePolicySkip carries the failing individual forward unevaluated.
	FailurePolicySkip FailurePolicy = "skip"
)

func ParseFailurePolicy(name string) (FailurePolicy, error) {
	switch FailurePolicy(name) {
	case "", FailurePolicyAbort:
		return FailurePolicyAbort, nil
	case FailurePolicySkip:
		return FailurePolicySkip, nil
	default:
		return "", fmt.Errorf("unsupported failure policy: %s", name)
	}
}

type Config struct {
	Registry *Registry
	Engine   MutationEngine
	Harness  TestHarness
	Fitness  FitnessStrategy
	Observer Observer

	PopulationSize            int
	MaxGenerations            int
	TestRuns                  int
	ImprovementWindow         int
	MinAvgFitnessImprovement  float64
	MinBestFitnessImprovement float64
	MutationAttempts          int
	Workers                   int
	Seed                      int64
	Bootstrap                 BootstrapPolicy
	FailurePolicy             FailurePolicy
}

type GenerationStats struct {
	Generation     int         `json:"generation"`
	AverageFitness float64     `json:"average_fitness"`
	Best           BestFitness `json:"best"`
	MinFitness     float64     `json:"min_fitness"`
	Mutated        int         `json:"mutated"`
	Degraded       int         `json:"degraded"`
	Failed         int         `json:"failed"`
	// Scored counts the individuals holding a fitness. The fitness fields
	// cover only those individuals and stay zero when Scored is 0.
	Scored         int         `json:"scored"`
	MeanRates      Rates       `json:"mean_rates"`
}

type RunResult struct {
	Population     []*Individual
	AverageFitness []float64
	BestFitness    []BestFitness
	Generations    []GenerationStats
	Termination    Termination
	Baseline       *Rates
}

// Controller drives the generation loop of the mutation search.
type Controller struct {
	cfg      Config
	rng      *rand.Rand
	selector FeedbackSelector
	criteria TerminationCriteria

	averageFitness []float64
	bestFitness    []BestFitness
}

func NewController(cfg Config) (*Controller, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("%w: operator registry is required", ErrInvalidConfig)
	}
	if cfg.Registry.EnabledCount() == 0 {
		return nil, fmt.Errorf("%w: at least one operator must be enabled", ErrInvalidConfig)
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("%w: mutation engine is required", ErrInvalidConfig)
	}
	if cfg.Harness == nil {
		return nil, fmt.Errorf("%w: test harness is required", ErrInvalidConfig)
	}
	if cfg.PopulationSize <= 0 {
		return nil, fmt.Errorf("%w: population size must be > 0", ErrInvalidConfig)
	}
	if cfg.MaxGenerations <= 0 {
		return nil, fmt.Errorf("%w: max generations must be > 0", ErrInvalidConfig)
	}
	if cfg.TestRuns <= 0 {
		return nil, fmt.Errorf("%w: test runs must be > 0", ErrInvalidConfig)
	}
	if cfg.ImprovementWindow < 0 {
		return nil, fmt.Errorf("%w: improvement window must be >= 0", ErrInvalidConfig)
	}
	if cfg.MinAvgFitnessImprovement < 0 || cfg.MinBestFitnessImprovement < 0 {
		return nil, fmt.Errorf("%w: fitness improvement thresholds must be >= 0", ErrInvalidConfig)
	}
	if cfg.MutationAttempts <= 0 {
		cfg.MutationAttempts = DefaultMutationAttempts
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Fitness == nil {
		cfg.Fitness = WeightedFitness{FunctionalWeight: defaultFunctionalWeight, NonFunctionalWeight: defaultNonFunctionalWeight}
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	var err error
	if cfg.Bootstrap, err = ParseBootstrapPolicy(string(cfg.Bootstrap)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if cfg.FailurePolicy, err = ParseFailurePolicy(string(cfg.FailurePolicy)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &Controller{
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		selector: FeedbackSelector{Registry: cfg.Registry},
		criteria: TerminationCriteria{
			MaxGenerations:            cfg.MaxGenerations,
			ImprovementWindow:         cfg.ImprovementWindow,
			MinAvgFitnessImprovement:  cfg.MinAvgFitnessImprovement,
			MinBestFitnessImprovement: cfg.MinBestFitnessImprovement,
		},
	}, nil
}

// Criteria returns the termination criteria the controller evaluates.
func (c *Controller) Criteria() TerminationCriteria {
	return c.criteria
}

// Run backs up the project, evolves the population until a termination
// criterion fires and restores the project on every exit path.
func (c *Controller) Run(ctx context.Context) (result RunResult, err error) {
	logger := klog.FromContext(ctx)
	c.averageFitness = nil
	c.bestFitness = nil

	if err := c.cfg.Engine.BackupProject(ctx); err != nil {
		return c.finish(ctx, RunResult{}, fmt.Errorf("%w: %w", ErrBackup, err))
	}
	defer func() {
		if restoreErr := c.cfg.Engine.RestoreProject(context.WithoutCancel(ctx)); restoreErr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrRestore, restoreErr))
			return
		}
		logger.V(1).Info("Restored original project")
	}()

	population, rngs := c.initialize(ctx)
	result.Population = population

	if c.cfg.Bootstrap == BootstrapBaseline {
		baseline, err := c.evaluateBaseline(ctx)
		switch {
		case err == nil:
			result.Baseline = &baseline
			for _, ind := range population {
				ind.Baseline = &Feedback{Datarace: baseline.Datarace, Deadlock: baseline.Deadlock}
			}
		case c.absorbable(ctx, err):
			logger.Error(err, "Baseline evaluation failed, drawing operator classes uniformly until first evaluation")
		default:
			return c.finish(ctx, result, err)
		}
	}

	for generation := 1; ; generation++ {
		if err := ctx.Err(); err != nil {
			return c.finish(ctx, result, err)
		}
		for _, ind := range population {
			ind.Generation = generation
		}

		outcomes, err := c.mutatePopulation(ctx, population, rngs)
		if err != nil {
			return c.finish(ctx, result, err)
		}
		evalFailures, err := c.evaluatePopulation(ctx, population, outcomes)
		if err != nil {
			return c.finish(ctx, result, err)
		}

		stats := c.recordGeneration(generation, population, outcomes, evalFailures)
		result.Generations = append(result.Generations, stats)
		c.cfg.Observer.GenerationFinished(stats)
		if stats.Scored == 0 {
			logger.Info("Generation finished without a scored individual, fitness series unchanged", "generation", generation, "failed", stats.Failed)
		} else {
			logger.Info("Generation finished",
				"generation", generation,
				"averageFitness", stats.AverageFitness,
				"bestFitness", stats.Best.Score,
				"bestIndividual", stats.Best.IndividualID,
				"scored", stats.Scored,
			)
		}

		termination := c.criteria.Evaluate(generation, population, c.averageFitness, c.bestFitness)
		if termination.Stop() {
			logger.Info("Search stopped", "generation", generation, "reason", termination.Reason, "detail", c.criteria.Describe(termination))
			result.Termination = termination
			return c.finish(ctx, result, nil)
		}
	}
}

func (c *Controller) finish(ctx context.Context, result RunResult, err error) (RunResult, error) {
	result.AverageFitness = append([]float64(nil), c.averageFitness...)
	result.BestFitness = append([]BestFitness(nil), c.bestFitness...)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		result.Termination = Termination{Reason: StopReasonCanceled}
	}
	return result, err
}

func (c *Controller) initialize(ctx context.Context) ([]*Individual, []*rand.Rand) {
	logger := klog.FromContext(ctx)
	operators := c.cfg.Registry.EnabledCount()

	population := make([]*Individual, 0, c.cfg.PopulationSize)
	rngs := make([]*rand.Rand, 0, c.cfg.PopulationSize)
	for id := 1; id <= c.cfg.PopulationSize; id++ {
		logger.V(3).Info("Creating individual", "individual", id)
		population = append(population, NewIndividual(id, operators))
		rngs = append(rngs, rand.New(rand.NewSource(c.rng.Int63())))
	}
	return population, rngs
}

func (c *Controller) evaluateBaseline(ctx context.Context) (Rates, error) {
	klog.FromContext(ctx).V(1).Info("Evaluating unmodified project")
	if err := c.cfg.Engine.CompileProject(ctx); err != nil {
		return Rates{}, fmt.Errorf("compile baseline project: %w", err)
	}
	rates, err := c.runBattery(ctx)
	if err != nil {
		return Rates{}, fmt.Errorf("test baseline project: %w", err)
	}
	return rates, nil
}

func (c *Controller) mutatePopulation(ctx context.Context, population []*Individual, rngs []*rand.Rand) ([]MutationOutcome, error) {
	type result struct {
		idx     int
		outcome MutationOutcome
		err     error
	}

	jobs := make(chan int)
	results := make(chan result, len(population))

	workerCount := c.cfg.Workers
	if workerCount > len(population) {
		workerCount = len(population)
	}

	var wg sync.WaitGroup
	wg.Add(workerCount)
	for w := 0; w < workerCount; w++ {
		go func() {
			defer wg.Done()
			for idx := range jobs {
				if err := ctx.Err(); err != nil {
					results <- result{idx: idx, outcome: MutationFailed, err: err}
					continue
				}
				outcome, err := c.mutate(ctx, population[idx], rngs[idx])
				results <- result{idx: idx, outcome: outcome, err: err}
			}
		}()
	}

	for i := range population {
		jobs <- i
	}
	close(jobs)

	wg.Wait()
	close(results)

	outcomes := make([]MutationOutcome, len(population))
	errs := make([]error, len(population))
	for res := range results {
		outcomes[res.idx] = res.outcome
		errs[res.idx] = res.err
	}
	for i, err := range errs {
		if err == nil {
			continue
		}
		c.cfg.Observer.MutationFinished(population[i].ID, MutationFailed, 0)
		if !c.absorb(ctx, population[i], err) {
			return outcomes, err
		}
	}
	return outcomes, nil
}

// mutate applies exactly one new mutation to the individual's current
// mutant, or carries it forward unmutated once the attempt budget is spent.
func (c *Controller) mutate(ctx context.Context, ind *Individual, rng *rand.Rand) (MutationOutcome, error) {
	logger := klog.FromContext(ctx).WithValues("individual", ind.ID, "generation", ind.Generation)
	logger.V(2).Info("Mutating individual")
	engine := c.cfg.Engine

	counts, err := engine.CountSites(ctx, ind.Generation, ind.ID, c.cfg.Registry.EnabledOperators())
	if err != nil {
		return MutationFailed, fmt.Errorf("count mutation sites for individual %d: %w", ind.ID, err)
	}
	if err := ind.RepopulateGenome(counts); err != nil {
		return MutationFailed, err
	}

	for attempt := 1; attempt <= c.cfg.MutationAttempts; attempt++ {
		op, err := c.selector.Select(rng, ind)
		if err != nil {
			return MutationFailed, fmt.Errorf("select operator for individual %d: %w", ind.ID, err)
		}
		index, ok := c.cfg.Registry.EnabledIndex(op.ID)
		if !ok {
			return MutationFailed, fmt.Errorf("%w: selected operator %s is not enabled", ErrOperatorNotFound, op.ID)
		}
		available := ind.AvailableSites(index)
		if len(available) == 0 {
			continue
		}
		site := available[rng.Intn(len(available))]

		if err := engine.CreateLocalProject(ctx, ind.Generation, ind.ID, false); err != nil {
			return MutationFailed, fmt.Errorf("create local project for individual %d: %w", ind.ID, err)
		}
		if err := engine.MoveMutantToLocalProject(ctx, ind.Generation, ind.ID, op.Name, site+1); err != nil {
			return MutationFailed, fmt.Errorf("apply %s site %d to individual %d: %w", op.ID, site+1, ind.ID, err)
		}
		ind.markMutated(op, index, site)
		logger.V(2).Info("Applied mutation", "operator", op.ID, "site", site+1, "attempts", attempt)
		c.cfg.Observer.MutationFinished(ind.ID, MutationApplied, attempt)
		return MutationApplied, nil
	}

	logger.V(2).Info("No mutation site found, carrying individual forward unmutated", "attempts", c.cfg.MutationAttempts)
	if err := engine.CreateLocalProject(ctx, ind.Generation, ind.ID, true); err != nil {
		return MutationFailed, fmt.Errorf("create placeholder project for individual %d: %w", ind.ID, err)
	}
	ind.Unmutated++
	c.cfg.Observer.MutationFinished(ind.ID, MutationDegraded, c.cfg.MutationAttempts)
	return MutationDegraded, nil
}

// evaluatePopulation runs strictly in population order: the shared build and
// test environment holds a single active mutant.
func (c *Controller) evaluatePopulation(ctx context.Context, population []*Individual, outcomes []MutationOutcome) (int, error) {
	failed := 0
	for i, ind := range population {
		if err := ctx.Err(); err != nil {
			return failed, err
		}
		if outcomes[i] == MutationFailed {
			continue
		}
		if err := c.evaluate(ctx, ind); err != nil {
			if c.absorb(ctx, ind, err) {
				failed++
				continue
			}
			return failed, err
		}
	}
	return failed, nil
}

func (c *Controller) evaluate(ctx context.Context, ind *Individual) error {
	logger := klog.FromContext(ctx).WithValues("individual", ind.ID, "generation", ind.Generation)
	logger.V(2).Info("Evaluating individual")

	if err := c.cfg.Engine.MoveLocalProjectToOriginal(ctx, ind.Generation, ind.ID); err != nil {
		return fmt.Errorf("activate mutant of individual %d: %w", ind.ID, err)
	}
	if err := c.cfg.Engine.CompileProject(ctx); err != nil {
		return fmt.Errorf("compile mutant of individual %d: %w", ind.ID, err)
	}
	rates, err := c.runBattery(ctx)
	if err != nil {
		return fmt.Errorf("test mutant of individual %d: %w", ind.ID, err)
	}

	ind.RecordRates(rates)
	ind.Fitness = c.cfg.Fitness.Score(rates)
	ind.Scored = true
	logger.V(2).Info("Evaluated individual",
		"success", rates.Success,
		"timeout", rates.Timeout,
		"datarace", rates.Datarace,
		"deadlock", rates.Deadlock,
		"error", rates.Error,
		"fitness", ind.Fitness,
	)
	c.cfg.Observer.EvaluationFinished(ind.ID, rates, ind.Fitness)
	return nil
}

// runBattery always clears harness results so counts never leak into the
// next evaluation.
func (c *Controller) runBattery(ctx context.Context) (Rates, error) {
	defer c.cfg.Harness.ClearResults()
	if err := c.cfg.Harness.BeginTesting(ctx); err != nil {
		return Rates{}, err
	}
	return RatesFromOutcomes(c.cfg.Harness.Results(), c.cfg.TestRuns)
}

func (c *Controller) recordGeneration(generation int, population []*Individual, outcomes []MutationOutcome, evalFailures int) GenerationStats {
	var (
		fitness    []float64
		best       BestFitness
		minFitness float64
	)
	for _, ind := range population {
		if !ind.Scored {
			continue
		}
		if len(fitness) == 0 || ind.Fitness > best.Score {
			best = BestFitness{Score: ind.Fitness, IndividualID: ind.ID}
		}
		if len(fitness) == 0 || ind.Fitness < minFitness {
			minFitness = ind.Fitness
		}
		fitness = append(fitness, ind.Fitness)
	}
	var average float64
	if len(fitness) > 0 {
		average = stat.Mean(fitness, nil)
		c.averageFitness = append(c.averageFitness, average)
		c.bestFitness = append(c.bestFitness, best)
	}

	stats := GenerationStats{
		Generation:     generation,
		AverageFitness: average,
		Best:           best,
		MinFitness:     minFitness,
		Failed:         evalFailures,
		Scored:         len(fitness),
		MeanRates:      meanLastRates(population),
	}
	for _, outcome := range outcomes {
		switch outcome {
		case MutationApplied:
			stats.Mutated++
		case MutationDegraded:
			stats.Degraded++
		case MutationFailed:
			stats.Failed++
		}
	}
	return stats
}

func meanLastRates(population []*Individual) Rates {
	var success, timeout, datarace, deadlock, errRate []float64
	for _, ind := range population {
		rates, ok := ind.LastRates()
		if !ok {
			continue
		}
		success = append(success, rates.Success)
		timeout = append(timeout, rates.Timeout)
		datarace = append(datarace, rates.Datarace)
		deadlock = append(deadlock, rates.Deadlock)
		errRate = append(errRate, rates.Error)
	}
	if len(success) == 0 {
		return Rates{}
	}
	return Rates{
		Success:  stat.Mean(success, nil),
		Timeout:  stat.Mean(timeout, nil),
		Datarace: stat.Mean(datarace, nil),
		Deadlock: stat.Mean(deadlock, nil),
		Error:    stat.Mean(errRate, nil),
	}
}

// absorb records a collaborator failure on the individual when the failure
// policy allows the run to continue.
func (c *Controller) absorb(ctx context.Context, ind *Individual, err error) bool {
	if !c.absorbable(ctx, err) {
		return false
	}
	ind.Failures++
	klog.FromContext(ctx).Error(err, "Skipping individual for this generation", "individual", ind.ID, "generation", ind.Generation, "failures", ind.Failures)
	return true
}

func (c *Controller) absorbable(ctx context.Context, err error) bool {
	if c.cfg.FailurePolicy != FailurePolicySkip || ctx.Err() != nil {
		return false
	}
	return !isConfigError(err)
}

func isConfigError(err error) bool {
	return errors.Is(err, ErrNoEligibleOperators) ||
		errors.Is(err, ErrOperatorNotFound) ||
		errors.Is(err, ErrInvalidConfig)
}
