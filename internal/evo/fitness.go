package evo

import (
	"fmt"
	"math"
)

// PerfectSuccessRate is the success rate that ends the search.
//
// Polarity: a harness success is a stress run that finished without a
// timeout, data race, deadlock or error. A success rate of 1 therefore marks
// a mutant that passed every run of its battery.
const PerfectSuccessRate = 1.0

const (
	defaultFunctionalWeight    = 0.8
	defaultNonFunctionalWeight = 0.2
)

// FitnessStrategy scores one evaluation of an individual. Scores must be
// comparable across individuals and higher must mean better.
type FitnessStrategy interface {
	Name() string
	Score(rates Rates) float64
}

// WeightedFitness combines a functional component, the success rate, with a
// non-functional component that penalizes timeouts and errors.
type WeightedFitness struct {
	FunctionalWeight    float64
	NonFunctionalWeight float64
}

func (WeightedFitness) Name() string {
	return "weighted"
}

func (f WeightedFitness) Score(rates Rates) float64 {
	functional := clampUnit(rates.Success)
	nonFunctional := clampUnit(1 - rates.Timeout - rates.Error)
	return f.FunctionalWeight*functional + f.NonFunctionalWeight*nonFunctional
}

// BugExposureFitness rewards mutants that expose races and deadlocks.
type BugExposureFitness struct{}

func (BugExposureFitness) Name() string {
	return "bug_exposure"
}

func (BugExposureFitness) Score(rates Rates) float64 {
	return clampUnit(rates.Datarace + rates.Deadlock)
}

// FitnessStrategyFromName resolves a strategy. Zero weights select the defaults.
func FitnessStrategyFromName(name string, functionalWeight, nonFunctionalWeight float64) (FitnessStrategy, error) {
	switch name {
	case "", "weighted":
		if functionalWeight == 0 && nonFunctionalWeight == 0 {
			functionalWeight = defaultFunctionalWeight
			nonFunctionalWeight = defaultNonFunctionalWeight
		}
		if functionalWeight < 0 || nonFunctionalWeight < 0 {
			return nil, fmt.Errorf("fitness weights must be >= 0")
		}
		return WeightedFitness{FunctionalWeight: functionalWeight, NonFunctionalWeight: nonFunctionalWeight}, nil
	case "bug_exposure":
		return BugExposureFitness{}, nil
	default:
		return nil, fmt.Errorf("unsupported fitness strategy: %s", name)
	}
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
