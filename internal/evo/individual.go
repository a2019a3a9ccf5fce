package evo

import (
	"fmt"
)

// Rates are the per-generation outcome shares of one harness battery. They
// are independent signals and need not sum to 1.
type Rates struct {
	Success  float64 `json:"success"`
	Timeout  float64 `json:"timeout"`
	Datarace float64 `json:"datarace"`
	Deadlock float64 `json:"deadlock"`
	Error    float64 `json:"error"`
}

// Feedback is the bug-rate observation the feedback selector works from.
type Feedback struct {
	Datarace float64 `json:"datarace"`
	Deadlock float64 `json:"deadlock"`
}

// Individual is one mutant and its evolving search state.
type Individual struct {
	ID         int
	Generation int

	// Genome holds, per enabled operator index, one slot per mutation site
	// of the current source: 0 unmutated, 1 mutated.
	Genome [][]int

	AppliedOperators []OperatorID
	LastOperator     *Operator

	SuccessRate  []float64
	TimeoutRate  []float64
	DataraceRate []float64
	DeadlockRate []float64
	ErrorRate    []float64

	Fitness float64
	Scored  bool

	// Failures counts collaborator failures absorbed under FailurePolicySkip.
	Failures int
	// Unmutated counts generations the individual was carried forward on a
	// placeholder copy because no mutation site was found.
	Unmutated int
	// Baseline seeds feedback selection until the first evaluation.
	Baseline *Feedback
}

// NewIndividual creates an individual whose genome is shaped for operators
// enabled operators.
func NewIndividual(id, operators int) *Individual {
	return &Individual{
		ID:     id,
		Genome: make([][]int, operators),
	}
}

// Evaluations is the number of generations the individual has been evaluated in.
func (ind *Individual) Evaluations() int {
	return len(ind.SuccessRate)
}

// LastSuccessRate returns the most recent success rate.
func (ind *Individual) LastSuccessRate() (float64, bool) {
	if len(ind.SuccessRate) == 0 {
		return 0, false
	}
	return ind.SuccessRate[len(ind.SuccessRate)-1], true
}

// LastRates returns the most recent rate observation.
func (ind *Individual) LastRates() (Rates, bool) {
	n := len(ind.SuccessRate)
	if n == 0 {
		return Rates{}, false
	}
	return Rates{
		Success:  ind.SuccessRate[n-1],
		Timeout:  ind.TimeoutRate[n-1],
		Datarace: ind.DataraceRate[n-1],
		Deadlock: ind.DeadlockRate[n-1],
		Error:    ind.ErrorRate[n-1],
	}, true
}

// LatestFeedback returns the latest race/deadlock rates, falling back to the
// baseline while the history is empty.
func (ind *Individual) LatestFeedback() (Feedback, bool) {
	if rates, ok := ind.LastRates(); ok {
		return Feedback{Datarace: rates.Datarace, Deadlock: rates.Deadlock}, true
	}
	if ind.Baseline != nil {
		return *ind.Baseline, true
	}
	return Feedback{}, false
}

// RecordRates appends one observation to every rate sequence.
func (ind *Individual) RecordRates(r Rates) {
	ind.SuccessRate = append(ind.SuccessRate, r.Success)
	ind.TimeoutRate = append(ind.TimeoutRate, r.Timeout)
	ind.DataraceRate = append(ind.DataraceRate, r.Datarace)
	ind.DeadlockRate = append(ind.DeadlockRate, r.Deadlock)
	ind.ErrorRate = append(ind.ErrorRate, r.Error)
}

// RepopulateGenome rebuilds every slot sequence from per-operator site counts
// of the current source. All slots start unmutated.
func (ind *Individual) RepopulateGenome(counts []int) error {
	if len(counts) != len(ind.Genome) {
		return fmt.Errorf("site counts mismatch for individual %d: got=%d want=%d", ind.ID, len(counts), len(ind.Genome))
	}
	for i, n := range counts {
		if n < 0 {
			return fmt.Errorf("negative site count %d for operator index %d", n, i)
		}
		ind.Genome[i] = make([]int, n)
	}
	return nil
}

// AvailableSites lists the unmutated slot positions for an operator index.
func (ind *Individual) AvailableSites(index int) []int {
	if index < 0 || index >= len(ind.Genome) {
		return nil
	}
	var out []int
	for site, v := range ind.Genome[index] {
		if v == 0 {
			out = append(out, site)
		}
	}
	return out
}

func (ind *Individual) markMutated(op Operator, index, site int) {
	ind.Genome[index][site] = 1
	applied := op
	ind.LastOperator = &applied
	ind.AppliedOperators = append(ind.AppliedOperators, op.ID)
}
