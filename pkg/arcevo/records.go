package arcevo

import (
	"arcevo/internal/evo"
	"arcevo/internal/model"
	"arcevo/internal/storage"
)

func generationRecords(stats []evo.GenerationStats) []model.GenerationRecord {
	out := make([]model.GenerationRecord, 0, len(stats))
	for _, s := range stats {
		out = append(out, model.GenerationRecord{
			Generation:       s.Generation,
			AverageFitness:   s.AverageFitness,
			BestFitness:      s.Best.Score,
			BestIndividualID: s.Best.IndividualID,
			MinFitness:       s.MinFitness,
			Mutated:          s.Mutated,
			Degraded:         s.Degraded,
			Failed:           s.Failed,
			Unscored:         s.Scored == 0,
			MeanRates:        rateRecord(s.MeanRates),
		})
	}
	return out
}

func individualRecords(population []*evo.Individual) []model.IndividualRecord {
	out := make([]model.IndividualRecord, 0, len(population))
	for _, ind := range population {
		applied := make([]string, 0, len(ind.AppliedOperators))
		for _, id := range ind.AppliedOperators {
			applied = append(applied, string(id))
		}
		genome := make([][]int, len(ind.Genome))
		for i, slots := range ind.Genome {
			genome[i] = append([]int{}, slots...)
		}
		out = append(out, model.IndividualRecord{
			VersionedRecord:  storage.CurrentVersion(),
			ID:               ind.ID,
			Generation:       ind.Generation,
			AppliedOperators: applied,
			Genome:           genome,
			SuccessRate:      append([]float64{}, ind.SuccessRate...),
			TimeoutRate:      append([]float64{}, ind.TimeoutRate...),
			DataraceRate:     append([]float64{}, ind.DataraceRate...),
			DeadlockRate:     append([]float64{}, ind.DeadlockRate...),
			ErrorRate:        append([]float64{}, ind.ErrorRate...),
			Fitness:          ind.Fitness,
			Scored:           ind.Scored,
			Failures:         ind.Failures,
			Unmutated:        ind.Unmutated,
		})
	}
	return out
}

func rateRecord(r evo.Rates) model.Rates {
	return model.Rates{
		Success:  r.Success,
		Timeout:  r.Timeout,
		Datarace: r.Datarace,
		Deadlock: r.Deadlock,
		Error:    r.Error,
	}
}

// finalBest is the best score of the last completed generation.
func finalBest(result evo.RunResult) evo.BestFitness {
	if len(result.BestFitness) == 0 {
		return evo.BestFitness{}
	}
	return result.BestFitness[len(result.BestFitness)-1]
}
