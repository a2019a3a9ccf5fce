package evo

import (
	"context"
	"fmt"
)

// MutationEngine applies mutations to local copies of the target project and
// owns its backup, restore and compilation. Calls for distinct individuals may
// run concurrently. Backup, restore, compile and MoveLocalProjectToOriginal
// touch the shared project and are only issued sequentially.
type MutationEngine interface {
	BackupProject(ctx context.Context) error
	RestoreProject(ctx context.Context) error
	CompileProject(ctx context.Context) error
	// CountSites enumerates the mutation sites of the individual's current
	// source for each operator, in the order given.
	CountSites(ctx context.Context, generation, individualID int, operators []Operator) ([]int, error)
	CreateLocalProject(ctx context.Context, generation, individualID int, placeholder bool) error
	// MoveMutantToLocalProject applies mutant site (1-based) of operatorName.
	MoveMutantToLocalProject(ctx context.Context, generation, individualID int, operatorName string, site int) error
	MoveLocalProjectToOriginal(ctx context.Context, generation, individualID int) error
}

// Outcomes are raw harness counts over one battery.
type Outcomes struct {
	Successes int `json:"successes"`
	Timeouts  int `json:"timeouts"`
	Dataraces int `json:"dataraces"`
	Deadlocks int `json:"deadlocks"`
	Errors    int `json:"errors"`
}

// TestHarness runs a fixed battery of concurrency stress runs against the
// compiled project.
type TestHarness interface {
	BeginTesting(ctx context.Context) error
	Results() Outcomes
	ClearResults()
}

// RatesFromOutcomes divides each count by the battery size runs.
func RatesFromOutcomes(out Outcomes, runs int) (Rates, error) {
	if runs <= 0 {
		return Rates{}, fmt.Errorf("test runs must be > 0")
	}
	counts := []struct {
		name  string
		value int
	}{
		{"successes", out.Successes},
		{"timeouts", out.Timeouts},
		{"dataraces", out.Dataraces},
		{"deadlocks", out.Deadlocks},
		{"errors", out.Errors},
	}
	for _, c := range counts {
		if c.value < 0 || c.value > runs {
			return Rates{}, fmt.Errorf("harness reported %d %s over %d runs", c.value, c.name, runs)
		}
	}
	r := float64(runs)
	return Rates{
		Success:  float64(out.Successes) / r,
		Timeout:  float64(out.Timeouts) / r,
		Datarace: float64(out.Dataraces) / r,
		Deadlock: float64(out.Deadlocks) / r,
		Error:    float64(out.Errors) / r,
	}, nil
}

// MutationOutcome is how one mutation request ended.
type MutationOutcome string

const (
	MutationApplied  MutationOutcome = "applied"
	MutationDegraded MutationOutcome = "degraded"
	MutationFailed   MutationOutcome = "failed"
)

// Observer receives controller progress. Implementations must be safe for
// concurrent use: mutations are reported from worker goroutines.
type Observer interface {
	MutationFinished(individualID int, outcome MutationOutcome, attempts int)
	EvaluationFinished(individualID int, rates Rates, fitness float64)
	GenerationFinished(stats GenerationStats)
}

type noopObserver struct{}

func (noopObserver) MutationFinished(int, MutationOutcome, int) {}
func (noopObserver) EvaluationFinished(int, Rates, float64)     {}
func (noopObserver) GenerationFinished(GenerationStats)         {}
