package main

import (
	"fmt"
	"os"
	"time"

	"sigs.k8s.io/yaml"

	"arcevo/pkg/arcevo"
)

// runFile is the on-disk run configuration. YAML and JSON are both accepted.
type runFile struct {
	RunID                     string                `json:"run_id,omitempty"`
	Population                int                   `json:"population,omitempty"`
	Generations               int                   `json:"generations,omitempty"`
	TestRuns                  int                   `json:"test_runs,omitempty"`
	ImprovementWindow         int                   `json:"improvement_window,omitempty"`
	MinAvgFitnessImprovement  float64               `json:"min_avg_fitness_improvement,omitempty"`
	MinBestFitnessImprovement float64               `json:"min_best_fitness_improvement,omitempty"`
	MutationAttempts          int                   `json:"mutation_attempts,omitempty"`
	Operators                 []arcevo.OperatorSpec `json:"operators,omitempty"`
	Workers                   int                   `json:"workers,omitempty"`
	Seed                      int64                 `json:"seed,omitempty"`
	Bootstrap                 string                `json:"bootstrap,omitempty"`
	FailurePolicy             string                `json:"failure_policy,omitempty"`
	Fitness                   fitnessFile           `json:"fitness,omitempty"`
	Engine                    engineFile            `json:"engine,omitempty"`
	Harness                   harnessFile           `json:"harness,omitempty"`
	Store                     storeFile             `json:"store,omitempty"`
	ArtifactsDir              string                `json:"artifacts_dir,omitempty"`
}

type fitnessFile struct {
	Strategy            string  `json:"strategy,omitempty"`
	FunctionalWeight    float64 `json:"functional_weight,omitempty"`
	NonFunctionalWeight float64 `json:"non_functional_weight,omitempty"`
}

type engineFile struct {
	ProjectDir string   `json:"project_dir,omitempty"`
	WorkDir    string   `json:"work_dir,omitempty"`
	Build      []string `json:"build,omitempty"`
	Generator  []string `json:"generator,omitempty"`
}

type harnessFile struct {
	Command         []string `json:"command,omitempty"`
	Timeout         string   `json:"timeout,omitempty"`
	Parallelism     int      `json:"parallelism,omitempty"`
	RacePattern     string   `json:"race_pattern,omitempty"`
	DeadlockPattern string   `json:"deadlock_pattern,omitempty"`
}

type storeFile struct {
	Kind string `json:"kind,omitempty"`
	Path string `json:"path,omitempty"`
}

func loadRunFile(path string) (runFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return runFile{}, err
	}
	var cfg runFile
	if err := yaml.UnmarshalStrict(data, &cfg); err != nil {
		return runFile{}, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return cfg, nil
}

func (f runFile) runRequest() (arcevo.RunRequest, error) {
	req := arcevo.RunRequest{
		RunID:                     f.RunID,
		Population:                f.Population,
		Generations:               f.Generations,
		TestRuns:                  f.TestRuns,
		ImprovementWindow:         f.ImprovementWindow,
		MinAvgFitnessImprovement:  f.MinAvgFitnessImprovement,
		MinBestFitnessImprovement: f.MinBestFitnessImprovement,
		MutationAttempts:          f.MutationAttempts,
		Operators:                 f.Operators,
		Workers:                   f.Workers,
		Seed:                      f.Seed,
		Bootstrap:                 f.Bootstrap,
		FailurePolicy:             f.FailurePolicy,
		Fitness: arcevo.FitnessSpec{
			Strategy:            f.Fitness.Strategy,
			FunctionalWeight:    f.Fitness.FunctionalWeight,
			NonFunctionalWeight: f.Fitness.NonFunctionalWeight,
		},
		Engine: arcevo.EngineSpec{
			ProjectDir: f.Engine.ProjectDir,
			WorkDir:    f.Engine.WorkDir,
			Build:      f.Engine.Build,
			Generator:  f.Engine.Generator,
		},
		Harness: arcevo.HarnessSpec{
			Command:         f.Harness.Command,
			Parallelism:     f.Harness.Parallelism,
			RacePattern:     f.Harness.RacePattern,
			DeadlockPattern: f.Harness.DeadlockPattern,
		},
	}
	if f.Harness.Timeout != "" {
		timeout, err := time.ParseDuration(f.Harness.Timeout)
		if err != nil {
			return arcevo.RunRequest{}, fmt.Errorf("harness timeout: %w", err)
		}
		if timeout <= 0 {
			return arcevo.RunRequest{}, fmt.Errorf("harness timeout must be > 0, got %s", f.Harness.Timeout)
		}
		req.Harness.Timeout = timeout
	}
	return req, nil
}
