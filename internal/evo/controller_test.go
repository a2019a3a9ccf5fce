package evo

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2/ktesting"
)

type mutantCall struct {
	generation int
	individual int
	operator   string
	site       int
}

type fakeEngine struct {
	mu sync.Mutex

	// sites maps an operator name to its site count; missing names have none.
	sites map[string]int

	backupErr  error
	restoreErr error
	compileErr map[int]error

	active           int
	activeGeneration int

	backups      int
	restores     int
	compiles     int
	siteCounts   int
	placeholders map[int]int
	creates      map[int]int
	mutants      []mutantCall
}

func newFakeEngine(sites map[string]int) *fakeEngine {
	return &fakeEngine{
		sites:        sites,
		compileErr:   map[int]error{},
		placeholders: map[int]int{},
		creates:      map[int]int{},
	}
}

func (e *fakeEngine) BackupProject(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.backups++
	return e.backupErr
}

func (e *fakeEngine) RestoreProject(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restores++
	e.active = 0
	return e.restoreErr
}

func (e *fakeEngine) CompileProject(context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiles++
	return e.compileErr[e.active]
}

func (e *fakeEngine) CountSites(_ context.Context, _, _ int, operators []Operator) ([]int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.siteCounts++
	counts := make([]int, len(operators))
	for i, op := range operators {
		counts[i] = e.sites[op.Name]
	}
	return counts, nil
}

func (e *fakeEngine) CreateLocalProject(_ context.Context, _, individualID int, placeholder bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if placeholder {
		e.placeholders[individualID]++
	} else {
		e.creates[individualID]++
	}
	return nil
}

func (e *fakeEngine) MoveMutantToLocalProject(_ context.Context, generation, individualID int, operatorName string, site int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mutants = append(e.mutants, mutantCall{generation: generation, individual: individualID, operator: operatorName, site: site})
	return nil
}

func (e *fakeEngine) MoveLocalProjectToOriginal(_ context.Context, generation, individualID int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.active = individualID
	e.activeGeneration = generation
	return nil
}

func (e *fakeEngine) current() (int, int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.activeGeneration, e.active
}

type fakeHarness struct {
	engine *fakeEngine
	// outcomes yields counts for the active mutant; individual 0 is the
	// unmodified project.
	outcomes func(generation, individual int) Outcomes
	onBegin  func(ctx context.Context, generation, individual int) error

	results Outcomes
	begins  int
	clears  int
}

func (h *fakeHarness) BeginTesting(ctx context.Context) error {
	h.begins++
	generation, individual := h.engine.current()
	if h.onBegin != nil {
		if err := h.onBegin(ctx, generation, individual); err != nil {
			return err
		}
	}
	h.results = h.outcomes(generation, individual)
	return nil
}

func (h *fakeHarness) Results() Outcomes {
	return h.results
}

func (h *fakeHarness) ClearResults() {
	h.clears++
	h.results = Outcomes{}
}

type recordingObserver struct {
	mu          sync.Mutex
	pending     []float64
	generations [][]float64
	stats       []GenerationStats
	degraded    []int
}

func (o *recordingObserver) MutationFinished(_ int, outcome MutationOutcome, attempts int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if outcome == MutationDegraded {
		o.degraded = append(o.degraded, attempts)
	}
}

func (o *recordingObserver) EvaluationFinished(_ int, _ Rates, fitness float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.pending = append(o.pending, fitness)
}

func (o *recordingObserver) GenerationFinished(stats GenerationStats) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generations = append(o.generations, o.pending)
	o.pending = nil
	o.stats = append(o.stats, stats)
}

func twoClassRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := NewRegistry([]Operator{
		{Name: "ASAT", Enabled: true, Race: true, Functional: true},
		{Name: "EXSB", Enabled: true, Lock: true, Functional: true},
	})
	require.NoError(t, err)
	return r
}

func baseConfig(registry *Registry, engine *fakeEngine, harness *fakeHarness) Config {
	return Config{
		Registry:          registry,
		Engine:            engine,
		Harness:           harness,
		PopulationSize:    3,
		MaxGenerations:    5,
		TestRuns:          10,
		ImprovementWindow: 3,
		Workers:           2,
		Seed:              42,
	}
}

func TestControllerStopsOnPerfectSuccess(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 5, "EXSB": 5})
	harness := &fakeHarness{engine: engine, outcomes: func(_, individual int) Outcomes {
		switch individual {
		case 0:
			return Outcomes{Successes: 5, Dataraces: 3, Deadlocks: 2}
		case 2:
			return Outcomes{Successes: 10}
		default:
			return Outcomes{Successes: 4, Dataraces: 6}
		}
	}}

	controller, err := NewController(baseConfig(twoClassRegistry(t), engine, harness))
	require.NoError(t, err)
	result, err := controller.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, Termination{Reason: StopReasonPerfectSuccess, IndividualID: 2}, result.Termination)
	require.Len(t, result.AverageFitness, 1)
	assert.InDelta(t, (0.52+1.0+0.52)/3, result.AverageFitness[0], 1e-9)
	assert.Equal(t, []BestFitness{{Score: 1, IndividualID: 2}}, result.BestFitness)
	assert.Equal(t, 1, engine.backups)
	assert.Equal(t, 1, engine.restores)

	require.NotNil(t, result.Baseline)
	assert.Equal(t, Rates{Success: 0.5, Datarace: 0.3, Deadlock: 0.2}, *result.Baseline)
	assert.Equal(t, 1+3, harness.begins, "baseline plus one battery per individual")
	assert.Equal(t, harness.begins, harness.clears)

	require.Len(t, result.Population, 3)
	for _, ind := range result.Population {
		assert.Equal(t, 1, ind.Evaluations(), "individual %d", ind.ID)
		assert.Len(t, ind.AppliedOperators, 1)
		assert.Equal(t, 1, mutatedSlots(ind.Genome))
		require.NotNil(t, ind.Baseline)
	}
}

func TestControllerFailsWithoutEligibleOperators(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	registry, err := NewRegistry([]Operator{
		{Name: "ASAT", Enabled: false, Race: true, Functional: true},
		{Name: "RSAV", Enabled: true, Race: true, Lock: true, Functional: false},
	})
	require.NoError(t, err)
	engine := newFakeEngine(map[string]int{"RSAV": 4})
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{Successes: 5, Dataraces: 5} }}

	cfg := baseConfig(registry, engine, harness)
	cfg.FailurePolicy = FailurePolicySkip
	controller, err := NewController(cfg)
	require.NoError(t, err)

	_, err = controller.Run(ctx)
	assert.ErrorIs(t, err, ErrNoEligibleOperators)
	assert.Equal(t, 1, engine.restores)
	assert.Empty(t, engine.mutants)
}

func TestControllerMutationAddsExactlyOneSite(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 3, "EXSB": 2})
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{} }}
	controller, err := NewController(baseConfig(twoClassRegistry(t), engine, harness))
	require.NoError(t, err)

	ind := NewIndividual(7, 2)
	rng := rand.New(rand.NewSource(5))
	for generation := 1; generation <= 4; generation++ {
		ind.Generation = generation
		outcome, err := controller.mutate(ctx, ind, rng)
		require.NoError(t, err)
		assert.Equal(t, MutationApplied, outcome)

		assert.Len(t, ind.AppliedOperators, generation)
		assert.Equal(t, 1, mutatedSlots(ind.Genome), "genome is rebuilt from the current source each generation")
		require.NotNil(t, ind.LastOperator)
		assert.Equal(t, ind.AppliedOperators[generation-1], ind.LastOperator.ID)

		call := engine.mutants[len(engine.mutants)-1]
		assert.Equal(t, generation, call.generation)
		assert.Equal(t, ind.LastOperator.Name, call.operator)
		index, ok := controller.cfg.Registry.EnabledIndex(ind.LastOperator.ID)
		require.True(t, ok)
		assert.Equal(t, 1, ind.Genome[index][call.site-1], "engine site is the 1-based mutated slot")
	}
	assert.Equal(t, 4, engine.creates[7])
	assert.Zero(t, engine.placeholders[7])
}

func TestControllerMutationDegradesWhenBudgetExhausted(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"EXSB": 3})
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{} }}
	observer := &recordingObserver{}
	cfg := baseConfig(twoClassRegistry(t), engine, harness)
	cfg.Observer = observer
	controller, err := NewController(cfg)
	require.NoError(t, err)

	// Only race operators are ever drawn and none of them has a site.
	ind := NewIndividual(1, 2)
	ind.Generation = 1
	ind.Baseline = &Feedback{Datarace: 1}

	outcome, err := controller.mutate(ctx, ind, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(t, MutationDegraded, outcome)
	assert.Empty(t, ind.AppliedOperators)
	assert.Nil(t, ind.LastOperator)
	assert.Zero(t, mutatedSlots(ind.Genome))
	assert.Equal(t, 1, engine.placeholders[1])
	assert.Equal(t, 1, ind.Unmutated)
	assert.Empty(t, engine.mutants)
	assert.Equal(t, []int{DefaultMutationAttempts}, observer.degraded)
}

func TestControllerBestFitnessDominatesGeneration(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 6, "EXSB": 6})
	harness := &fakeHarness{engine: engine, outcomes: func(generation, individual int) Outcomes {
		successes := (generation*3 + individual*7) % 10
		return Outcomes{Successes: successes, Dataraces: 10 - successes, Timeouts: individual % 3}
	}}
	observer := &recordingObserver{}
	cfg := baseConfig(twoClassRegistry(t), engine, harness)
	cfg.PopulationSize = 5
	cfg.MaxGenerations = 4
	cfg.ImprovementWindow = 0
	cfg.Bootstrap = BootstrapUniform
	cfg.Observer = observer
	controller, err := NewController(cfg)
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopReasonGenerationCap, result.Termination.Reason)
	assert.Nil(t, result.Baseline)
	require.Len(t, result.BestFitness, 4)
	require.Len(t, observer.generations, 4)

	for g, fitness := range observer.generations {
		require.Len(t, fitness, 5)
		var sum float64
		for _, f := range fitness {
			assert.GreaterOrEqual(t, result.BestFitness[g].Score, f, "generation %d", g+1)
			sum += f
		}
		assert.Contains(t, fitness, result.BestFitness[g].Score)
		assert.InDelta(t, sum/5, result.AverageFitness[g], 1e-9)
		assert.Equal(t, g+1, observer.stats[g].Generation)
	}
	for _, ind := range result.Population {
		for _, seq := range [][]float64{ind.SuccessRate, ind.TimeoutRate, ind.DataraceRate, ind.DeadlockRate, ind.ErrorRate} {
			assert.Len(t, seq, 4)
		}
	}
}

func TestControllerBestFitnessTiesKeepFirstIndividual(t *testing.T) {
	controller := &Controller{}
	population := []*Individual{{ID: 1, Fitness: 0.3}, {ID: 2, Fitness: 0.7}, {ID: 3, Fitness: 0.7}}
	stats := controller.recordGeneration(1, population, make([]MutationOutcome, 3), 0)
	assert.Equal(t, BestFitness{Score: 0.7, IndividualID: 2}, stats.Best)
	assert.InDelta(t, 0.3, stats.MinFitness, 1e-12)
}

func TestControllerIsDeterministicAcrossWorkerCounts(t *testing.T) {
	run := func(workers int) map[int][]OperatorID {
		_, ctx := ktesting.NewTestContext(t)
		engine := newFakeEngine(map[string]int{"ASAT": 4, "EXSB": 4})
		harness := &fakeHarness{engine: engine, outcomes: func(generation, individual int) Outcomes {
			return Outcomes{Successes: 2, Dataraces: (generation + individual) % 5, Deadlocks: individual % 4}
		}}
		cfg := baseConfig(twoClassRegistry(t), engine, harness)
		cfg.PopulationSize = 6
		cfg.MaxGenerations = 3
		cfg.ImprovementWindow = 0
		cfg.Workers = workers
		controller, err := NewController(cfg)
		require.NoError(t, err)
		result, err := controller.Run(ctx)
		require.NoError(t, err)

		applied := map[int][]OperatorID{}
		for _, ind := range result.Population {
			applied[ind.ID] = ind.AppliedOperators
		}
		return applied
	}

	if diff := cmp.Diff(run(1), run(4)); diff != "" {
		t.Fatalf("applied operators differ between worker counts (-1 +4):\n%s", diff)
	}
}

func TestControllerStopsOnAverageStagnation(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 20, "EXSB": 20})
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes {
		return Outcomes{Successes: 5, Timeouts: 1, Dataraces: 4}
	}}
	cfg := baseConfig(twoClassRegistry(t), engine, harness)
	cfg.MaxGenerations = 10
	cfg.ImprovementWindow = 2
	cfg.MinAvgFitnessImprovement = 0.01
	controller, err := NewController(cfg)
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopReasonAverageStagnation, result.Termination.Reason)
	assert.Len(t, result.AverageFitness, 3)
	assert.Equal(t, 1, engine.restores)
}

func TestControllerSkipPolicyCarriesFailingIndividual(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	errCompile := errors.New("mutant does not build")
	engine := newFakeEngine(map[string]int{"ASAT": 8, "EXSB": 8})
	engine.compileErr[2] = errCompile
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{Successes: 3, Deadlocks: 7} }}

	cfg := baseConfig(twoClassRegistry(t), engine, harness)
	cfg.MaxGenerations = 3
	cfg.ImprovementWindow = 0
	cfg.FailurePolicy = FailurePolicySkip
	controller, err := NewController(cfg)
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopReasonGenerationCap, result.Termination.Reason)
	for _, ind := range result.Population {
		if ind.ID == 2 {
			assert.Equal(t, 3, ind.Failures)
			assert.Zero(t, ind.Evaluations())
			assert.False(t, ind.Scored)
			continue
		}
		assert.Zero(t, ind.Failures)
		assert.Equal(t, 3, ind.Evaluations())
	}
	for _, stats := range result.Generations {
		assert.Equal(t, 1, stats.Failed)
	}
}

func TestControllerSkipPolicyAveragesScoredIndividualsOnly(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 8, "EXSB": 8})
	engine.compileErr[2] = errors.New("mutant does not build")
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{Successes: 5, Dataraces: 5} }}

	cfg := baseConfig(twoClassRegistry(t), engine, harness)
	cfg.MaxGenerations = 1
	cfg.FailurePolicy = FailurePolicySkip
	controller, err := NewController(cfg)
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	require.NoError(t, err)
	require.Len(t, result.AverageFitness, 1)
	assert.InDelta(t, 0.6, result.AverageFitness[0], 1e-9)
	assert.Equal(t, 1, result.BestFitness[0].IndividualID)

	require.Len(t, result.Generations, 1)
	stats := result.Generations[0]
	assert.Equal(t, 2, stats.Scored)
	assert.Equal(t, 1, stats.Failed)
	assert.InDelta(t, 0.6, stats.MinFitness, 1e-9)
	assert.InDelta(t, 0.6, stats.Best.Score, 1e-9)
}

func TestControllerSkipPolicyLeavesSeriesWithoutScoredIndividuals(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 8, "EXSB": 8})
	for id := 1; id <= 3; id++ {
		engine.compileErr[id] = errors.New("mutant does not build")
	}
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{Successes: 5, Dataraces: 5} }}

	cfg := baseConfig(twoClassRegistry(t), engine, harness)
	cfg.MaxGenerations = 2
	cfg.ImprovementWindow = 1
	cfg.FailurePolicy = FailurePolicySkip
	controller, err := NewController(cfg)
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StopReasonGenerationCap, result.Termination.Reason)
	assert.Empty(t, result.AverageFitness)
	assert.Empty(t, result.BestFitness)
	require.Len(t, result.Generations, 2)
	for _, stats := range result.Generations {
		assert.Zero(t, stats.Scored)
		assert.Equal(t, BestFitness{}, stats.Best)
		assert.Equal(t, 3, stats.Failed)
	}
	assert.Equal(t, 1, engine.restores)
}

func TestControllerAbortPolicyRestoresOnFailure(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	errCompile := errors.New("mutant does not build")
	engine := newFakeEngine(map[string]int{"ASAT": 8, "EXSB": 8})
	engine.compileErr[2] = errCompile
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{Successes: 3, Deadlocks: 7} }}

	controller, err := NewController(baseConfig(twoClassRegistry(t), engine, harness))
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	assert.ErrorIs(t, err, errCompile)
	assert.Equal(t, 1, engine.restores)
	assert.Empty(t, result.AverageFitness)
}

func TestControllerRejectsImpossibleHarnessCounts(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 2, "EXSB": 2})
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{Successes: 11} }}
	controller, err := NewController(baseConfig(twoClassRegistry(t), engine, harness))
	require.NoError(t, err)

	_, err = controller.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "11 successes over 10 runs")
	assert.Equal(t, 1, engine.restores)
}

func TestControllerCancellationStillRestores(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	engine := newFakeEngine(map[string]int{"ASAT": 8, "EXSB": 8})
	harness := &fakeHarness{
		engine:   engine,
		outcomes: func(int, int) Outcomes { return Outcomes{Successes: 1, Dataraces: 9} },
		onBegin: func(ctx context.Context, generation, _ int) error {
			if generation == 2 {
				cancel()
				return ctx.Err()
			}
			return nil
		},
	}
	cfg := baseConfig(twoClassRegistry(t), engine, harness)
	cfg.ImprovementWindow = 0
	controller, err := NewController(cfg)
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StopReasonCanceled, result.Termination.Reason)
	assert.Len(t, result.AverageFitness, 1)
	assert.Equal(t, 1, engine.restores)
}

func TestControllerBackupFailureSkipsRestore(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 1})
	engine.backupErr = errors.New("disk full")
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{} }}
	controller, err := NewController(baseConfig(twoClassRegistry(t), engine, harness))
	require.NoError(t, err)

	_, err = controller.Run(ctx)
	assert.ErrorIs(t, err, ErrBackup)
	assert.Zero(t, engine.restores)
	assert.Zero(t, engine.siteCounts)
	assert.Zero(t, harness.begins)
}

func TestControllerReportsRestoreFailure(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	engine := newFakeEngine(map[string]int{"ASAT": 2, "EXSB": 2})
	engine.restoreErr = errors.New("permission denied")
	harness := &fakeHarness{engine: engine, outcomes: func(int, int) Outcomes { return Outcomes{Successes: 10} }}
	controller, err := NewController(baseConfig(twoClassRegistry(t), engine, harness))
	require.NoError(t, err)

	result, err := controller.Run(ctx)
	assert.ErrorIs(t, err, ErrRestore)
	assert.Equal(t, StopReasonPerfectSuccess, result.Termination.Reason)
}

func TestNewControllerValidatesConfig(t *testing.T) {
	engine := newFakeEngine(nil)
	harness := &fakeHarness{engine: engine}
	registry := twoClassRegistry(t)
	disabled, err := NewRegistry([]Operator{{Name: "ASAT", Race: true, Functional: true}})
	require.NoError(t, err)

	cases := map[string]func(*Config){
		"missing registry":    func(c *Config) { c.Registry = nil },
		"no enabled operator": func(c *Config) { c.Registry = disabled },
		"missing engine":      func(c *Config) { c.Engine = nil },
		"missing harness":     func(c *Config) { c.Harness = nil },
		"empty population":    func(c *Config) { c.PopulationSize = 0 },
		"no generations":      func(c *Config) { c.MaxGenerations = 0 },
		"no test runs":        func(c *Config) { c.TestRuns = 0 },
		"negative window":     func(c *Config) { c.ImprovementWindow = -1 },
		"negative threshold":  func(c *Config) { c.MinBestFitnessImprovement = -0.1 },
		"unknown bootstrap":   func(c *Config) { c.Bootstrap = "random" },
		"unknown policy":      func(c *Config) { c.FailurePolicy = "retry" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := baseConfig(registry, engine, harness)
			mutate(&cfg)
			_, err := NewController(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	controller, err := NewController(baseConfig(registry, engine, harness))
	require.NoError(t, err)
	assert.Equal(t, DefaultMutationAttempts, controller.cfg.MutationAttempts)
	assert.Equal(t, BootstrapBaseline, controller.cfg.Bootstrap)
	assert.Equal(t, FailurePolicyAbort, controller.cfg.FailurePolicy)
}

func mutatedSlots(genome [][]int) int {
	n := 0
	for _, slots := range genome {
		for _, v := range slots {
			n += v
		}
	}
	return n
}
