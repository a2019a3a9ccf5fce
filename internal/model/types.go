package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// RunRecord summarizes one search run.
type RunRecord struct {
	VersionedRecord
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	PopulationSize  int      `json:"population_size"`
	MaxGenerations  int      `json:"max_generations"`
	TestRuns        int      `json:"test_runs"`
	Seed            int64    `json:"seed"`
	Operators       []string `json:"operators"`
	FitnessStrategy string   `json:"fitness_strategy"`
	Bootstrap       string   `json:"bootstrap"`
	FailurePolicy   string   `json:"failure_policy"`

	GenerationsCompleted int     `json:"generations_completed"`
	StopReason           string  `json:"stop_reason,omitempty"`
	StopDetail           string  `json:"stop_detail,omitempty"`
	BestIndividualID     int     `json:"best_individual_id"`
	BestFitness          float64 `json:"best_fitness"`
	Baseline             *Rates  `json:"baseline,omitempty"`
	Error                string  `json:"error,omitempty"`
}

// Rates are outcome shares over one test battery.
type Rates struct {
	Success  float64 `json:"success"`
	Timeout  float64 `json:"timeout"`
	Datarace float64 `json:"datarace"`
	Deadlock float64 `json:"deadlock"`
	Error    float64 `json:"error"`
}

type GenerationRecord struct {
	Generation       int     `json:"generation"`
	AverageFitness   float64 `json:"average_fitness"`
	BestFitness      float64 `json:"best_fitness"`
	BestIndividualID int     `json:"best_individual_id"`
	MinFitness       float64 `json:"min_fitness"`
	Mutated          int     `json:"mutated"`
	Degraded         int     `json:"degraded"`
	Failed           int     `json:"failed"`
	// Unscored marks a generation where no individual held a fitness; its
	// fitness fields carry no data.
	Unscored         bool    `json:"unscored,omitempty"`
	MeanRates        Rates   `json:"mean_rates"`
}

// IndividualRecord is the final state of one individual of a run.
type IndividualRecord struct {
	VersionedRecord
	ID               int       `json:"id"`
	Generation       int       `json:"generation"`
	AppliedOperators []string  `json:"applied_operators"`
	Genome           [][]int   `json:"genome"`
	SuccessRate      []float64 `json:"success_rate"`
	TimeoutRate      []float64 `json:"timeout_rate"`
	DataraceRate     []float64 `json:"datarace_rate"`
	DeadlockRate     []float64 `json:"deadlock_rate"`
	ErrorRate        []float64 `json:"error_rate"`
	Fitness          float64   `json:"fitness"`
	Scored           bool      `json:"scored"`
	Failures         int       `json:"failures"`
	Unmutated        int       `json:"unmutated"`
}
