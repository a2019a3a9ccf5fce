package storage

import (
	"context"
	"sort"
	"sync"

	"arcevo/internal/model"
)

type MemoryStore struct {
	mu          sync.RWMutex
	initialized bool
	runs        map[string]model.RunRecord
	generations map[string][]model.GenerationRecord
	individuals map[string][]model.IndividualRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Init(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.initialized = true
	s.runs = make(map[string]model.RunRecord)
	s.generations = make(map[string][]model.GenerationRecord)
	s.individuals = make(map[string][]model.IndividualRecord)
	return nil
}

func (s *MemoryStore) SaveRun(_ context.Context, run model.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.runs[run.ID] = cloneRun(run)
	return nil
}

func (s *MemoryStore) GetRun(_ context.Context, id string) (model.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok {
		return model.RunRecord{}, false, nil
	}
	return cloneRun(run), true, nil
}

func (s *MemoryStore) ListRuns(_ context.Context) ([]model.RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]model.RunRecord, 0, len(s.runs))
	for _, run := range s.runs {
		runs = append(runs, cloneRun(run))
	}
	sortRuns(runs)
	return runs, nil
}

func (s *MemoryStore) SaveGenerations(_ context.Context, runID string, generations []model.GenerationRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.GenerationRecord, len(generations))
	copy(copied, generations)
	s.generations[runID] = copied
	return nil
}

func (s *MemoryStore) GetGenerations(_ context.Context, runID string) ([]model.GenerationRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	generations, ok := s.generations[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.GenerationRecord, len(generations))
	copy(copied, generations)
	return copied, true, nil
}

func (s *MemoryStore) SaveIndividuals(_ context.Context, runID string, individuals []model.IndividualRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := make([]model.IndividualRecord, 0, len(individuals))
	for _, individual := range individuals {
		copied = append(copied, cloneIndividual(individual))
	}
	s.individuals[runID] = copied
	return nil
}

func (s *MemoryStore) GetIndividuals(_ context.Context, runID string) ([]model.IndividualRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	individuals, ok := s.individuals[runID]
	if !ok {
		return nil, false, nil
	}
	copied := make([]model.IndividualRecord, 0, len(individuals))
	for _, individual := range individuals {
		copied = append(copied, cloneIndividual(individual))
	}
	return copied, true, nil
}

func cloneRun(run model.RunRecord) model.RunRecord {
	run.Operators = append([]string(nil), run.Operators...)
	if run.Baseline != nil {
		baseline := *run.Baseline
		run.Baseline = &baseline
	}
	return run
}

func cloneIndividual(individual model.IndividualRecord) model.IndividualRecord {
	individual.AppliedOperators = append([]string(nil), individual.AppliedOperators...)
	genome := make([][]int, len(individual.Genome))
	for i, slots := range individual.Genome {
		genome[i] = append([]int(nil), slots...)
	}
	individual.Genome = genome
	individual.SuccessRate = append([]float64(nil), individual.SuccessRate...)
	individual.TimeoutRate = append([]float64(nil), individual.TimeoutRate...)
	individual.DataraceRate = append([]float64(nil), individual.DataraceRate...)
	individual.DeadlockRate = append([]float64(nil), individual.DeadlockRate...)
	individual.ErrorRate = append([]float64(nil), individual.ErrorRate...)
	return individual
}

// sortRuns orders runs most recently started first, then by id.
func sortRuns(runs []model.RunRecord) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].StartedAt.Equal(runs[j].StartedAt) {
			return runs[i].ID < runs[j].ID
		}
		return runs[i].StartedAt.After(runs[j].StartedAt)
	})
}
