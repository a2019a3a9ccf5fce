package evo

import (
	"fmt"
	"math"
)

type StopReason string

const (
	StopReasonNone              StopReason = ""
	StopReasonPerfectSuccess    StopReason = "perfect_success"
	StopReasonGenerationCap     StopReason = "generation_cap"
	StopReasonAverageStagnation StopReason = "average_stagnation"
	StopReasonBestStagnation    StopReason = "best_stagnation"
	StopReasonCanceled          StopReason = "canceled"
)

// BestFitness is the best score of a generation and the individual holding it.
type BestFitness struct {
	Score        float64 `json:"score"`
	IndividualID int     `json:"individual_id"`
}

// Termination is the outcome of one termination check.
type Termination struct {
	Reason StopReason
	// IndividualID is set for StopReasonPerfectSuccess.
	IndividualID int
}

func (t Termination) Stop() bool {
	return t.Reason != StopReasonNone
}

// TerminationCriteria are the independent stopping conditions of a run. Any
// one of them ends the search.
type TerminationCriteria struct {
	MaxGenerations            int
	ImprovementWindow         int
	MinAvgFitnessImprovement  float64
	MinBestFitnessImprovement float64
}

// Evaluate checks the criteria for generation against the population and the
// controller-owned fitness series. Stagnation reads the trailing window of the
// series, which skips generations where no individual was scored. Criteria
// are checked in a fixed order so the reported reason is stable.
func (c TerminationCriteria) Evaluate(generation int, population []*Individual, average []float64, best []BestFitness) Termination {
	for _, ind := range population {
		if rate, ok := ind.LastSuccessRate(); ok && rate == PerfectSuccessRate {
			return Termination{Reason: StopReasonPerfectSuccess, IndividualID: ind.ID}
		}
	}
	if generation == c.MaxGenerations {
		return Termination{Reason: StopReasonGenerationCap}
	}
	if c.ImprovementWindow <= 0 || generation < c.ImprovementWindow+1 {
		return Termination{}
	}

	if stagnated(average, c.ImprovementWindow, c.MinAvgFitnessImprovement) {
		return Termination{Reason: StopReasonAverageStagnation}
	}
	bestScores := make([]float64, len(best))
	for i, b := range best {
		bestScores[i] = b.Score
	}
	if stagnated(bestScores, c.ImprovementWindow, c.MinBestFitnessImprovement) {
		return Termination{Reason: StopReasonBestStagnation}
	}
	return Termination{}
}

// Describe renders the diagnostic message for a termination.
func (c TerminationCriteria) Describe(t Termination) string {
	switch t.Reason {
	case StopReasonPerfectSuccess:
		return fmt.Sprintf("found best individual %d", t.IndividualID)
	case StopReasonGenerationCap:
		return fmt.Sprintf("exhausted all %d generations", c.MaxGenerations)
	case StopReasonAverageStagnation:
		return fmt.Sprintf("average fitness hasn't changed by more than %g in %d generations", c.MinAvgFitnessImprovement, c.ImprovementWindow)
	case StopReasonBestStagnation:
		return fmt.Sprintf("best fitness hasn't changed by more than %g in %d generations", c.MinBestFitnessImprovement, c.ImprovementWindow)
	case StopReasonCanceled:
		return "run canceled"
	default:
		return "running"
	}
}

// stagnated reports whether none of the last window deltas of series exceeds
// threshold. The series holds one entry per generation with a scored
// individual, so it can be shorter than the generation count.
func stagnated(series []float64, window int, threshold float64) bool {
	n := len(series)
	if n < window+1 {
		return false
	}
	for i := n - window; i < n; i++ {
		if math.Abs(series[i]-series[i-1]) > threshold {
			return false
		}
	}
	return true
}
