package stats

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"arcevo/internal/model"
)

const (
	runIndexFile     = "run_index.json"
	fitnessChartFile = "fitness.html"
	fitnessCSVFile   = "fitness.csv"
)

type RunConfig struct {
	RunID                     string   `json:"run_id"`
	ProjectDir                string   `json:"project_dir,omitempty"`
	PopulationSize            int      `json:"population_size"`
	MaxGenerations            int      `json:"max_generations"`
	TestRuns                  int      `json:"test_runs"`
	ImprovementWindow         int      `json:"improvement_window"`
	MinAvgFitnessImprovement  float64  `json:"min_avg_fitness_improvement"`
	MinBestFitnessImprovement float64  `json:"min_best_fitness_improvement"`
	MutationAttempts          int      `json:"mutation_attempts"`
	Seed                      int64    `json:"seed"`
	Workers                   int      `json:"workers"`
	Operators                 []string `json:"operators"`
	FitnessStrategy           string   `json:"fitness_strategy"`
	FunctionalWeight          float64  `json:"functional_weight,omitempty"`
	NonFunctionalWeight       float64  `json:"non_functional_weight,omitempty"`
	Bootstrap                 string   `json:"bootstrap"`
	FailurePolicy             string   `json:"failure_policy"`
}

type RunArtifacts struct {
	Config           RunConfig                `json:"config"`
	AverageFitness   []float64                `json:"average_by_generation"`
	BestFitness      []float64                `json:"best_by_generation"`
	Generations      []model.GenerationRecord `json:"generations"`
	Individuals      []model.IndividualRecord `json:"individuals"`
	FinalBestFitness float64                  `json:"final_best_fitness"`
	BestIndividualID int                      `json:"best_individual_id"`
	StopReason       string                   `json:"stop_reason,omitempty"`
	StopDetail       string                   `json:"stop_detail,omitempty"`
}

// FitnessHistory is the per-run fitness summary written to fitness_history.json.
type FitnessHistory struct {
	AverageByGeneration []float64 `json:"average_by_generation"`
	BestByGeneration    []float64 `json:"best_by_generation"`
	FinalBestFitness    float64   `json:"final_best_fitness"`
	BestIndividualID    int       `json:"best_individual_id"`
	StopReason          string    `json:"stop_reason,omitempty"`
	StopDetail          string    `json:"stop_detail,omitempty"`
}

type RunIndexEntry struct {
	RunID                string  `json:"run_id"`
	PopulationSize       int     `json:"population_size"`
	MaxGenerations       int     `json:"max_generations"`
	GenerationsCompleted int     `json:"generations_completed"`
	Seed                 int64   `json:"seed"`
	Workers              int     `json:"workers"`
	StopReason           string  `json:"stop_reason,omitempty"`
	FinalBestFitness     float64 `json:"final_best_fitness"`
	CreatedAtUTC         string  `json:"created_at_utc"`
}

func WriteRunArtifacts(baseDir string, artifacts RunArtifacts) (string, error) {
	if artifacts.Config.RunID == "" {
		return "", fmt.Errorf("run id is required")
	}

	runDir := filepath.Join(baseDir, artifacts.Config.RunID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", err
	}

	if err := writeJSON(filepath.Join(runDir, "config.json"), artifacts.Config); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "fitness_history.json"), FitnessHistory{
		AverageByGeneration: artifacts.AverageFitness,
		BestByGeneration:    artifacts.BestFitness,
		FinalBestFitness:    artifacts.FinalBestFitness,
		BestIndividualID:    artifacts.BestIndividualID,
		StopReason:          artifacts.StopReason,
		StopDetail:          artifacts.StopDetail,
	}); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "generations.json"), artifacts.Generations); err != nil {
		return "", err
	}
	if err := writeJSON(filepath.Join(runDir, "individuals.json"), artifacts.Individuals); err != nil {
		return "", err
	}
	if err := WriteFitnessSeries(runDir, artifacts.Generations); err != nil {
		return "", err
	}
	if err := WriteFitnessChart(filepath.Join(runDir, fitnessChartFile), artifacts.Config.RunID, artifacts.Generations); err != nil {
		return "", err
	}

	return runDir, nil
}

func AppendRunIndex(baseDir string, entry RunIndexEntry) error {
	if entry.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return err
	}

	index, err := ListRunIndex(baseDir)
	if err != nil {
		return err
	}

	for i := range index {
		if index[i].RunID == entry.RunID {
			index[i] = entry
			return writeJSON(filepath.Join(baseDir, runIndexFile), index)
		}
	}

	index = append(index, entry)
	return writeJSON(filepath.Join(baseDir, runIndexFile), index)
}

func ListRunIndex(baseDir string) ([]RunIndexEntry, error) {
	path := filepath.Join(baseDir, runIndexFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return []RunIndexEntry{}, nil
		}
		return nil, err
	}

	var entries []RunIndexEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, err
	}

	type indexedEntry struct {
		entry RunIndexEntry
		idx   int
	}
	indexed := make([]indexedEntry, len(entries))
	for i := range entries {
		indexed[i] = indexedEntry{entry: entries[i], idx: i}
	}
	sort.Slice(indexed, func(i, j int) bool {
		if indexed[i].entry.CreatedAtUTC == indexed[j].entry.CreatedAtUTC {
			// Prefer later appended entries for equal timestamps.
			return indexed[i].idx > indexed[j].idx
		}
		return indexed[i].entry.CreatedAtUTC > indexed[j].entry.CreatedAtUTC
	})

	sorted := make([]RunIndexEntry, 0, len(indexed))
	for _, item := range indexed {
		sorted = append(sorted, item.entry)
	}
	return sorted, nil
}

func ExportRunArtifacts(baseDir, runID, outDir string) (string, error) {
	if runID == "" {
		return "", fmt.Errorf("run id is required")
	}

	src := filepath.Join(baseDir, runID)
	if _, err := os.Stat(src); err != nil {
		return "", err
	}

	dst := filepath.Join(outDir, runID)
	if err := os.MkdirAll(dst, 0o755); err != nil {
		return "", err
	}

	files := []string{"config.json", "fitness_history.json", "generations.json", "individuals.json", fitnessCSVFile}
	for _, file := range files {
		if err := copyFile(filepath.Join(src, file), filepath.Join(dst, file)); err != nil {
			return "", err
		}
	}
	chartPath := filepath.Join(src, fitnessChartFile)
	if _, err := os.Stat(chartPath); err == nil {
		if err := copyFile(chartPath, filepath.Join(dst, fitnessChartFile)); err != nil {
			return "", err
		}
	} else if !os.IsNotExist(err) {
		return "", err
	}

	return dst, nil
}

func ReadRunConfig(baseDir, runID string) (RunConfig, bool, error) {
	var cfg RunConfig
	ok, err := readJSON(filepath.Join(baseDir, runID, "config.json"), &cfg)
	return cfg, ok, err
}

func WriteRunConfig(baseDir, runID string, cfg RunConfig) error {
	if strings.TrimSpace(runID) == "" {
		return fmt.Errorf("run id is required")
	}
	if strings.TrimSpace(cfg.RunID) == "" {
		cfg.RunID = strings.TrimSpace(runID)
	}
	if cfg.RunID != strings.TrimSpace(runID) {
		return fmt.Errorf("run config run id mismatch: got=%s want=%s", cfg.RunID, strings.TrimSpace(runID))
	}
	runDir := filepath.Join(baseDir, runID)
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return err
	}
	return writeJSON(filepath.Join(runDir, "config.json"), cfg)
}

func ReadFitnessHistory(baseDir, runID string) (FitnessHistory, bool, error) {
	var history FitnessHistory
	ok, err := readJSON(filepath.Join(baseDir, runID, "fitness_history.json"), &history)
	return history, ok, err
}

func ReadGenerations(baseDir, runID string) ([]model.GenerationRecord, bool, error) {
	var generations []model.GenerationRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "generations.json"), &generations)
	return generations, ok, err
}

func ReadIndividuals(baseDir, runID string) ([]model.IndividualRecord, bool, error) {
	var individuals []model.IndividualRecord
	ok, err := readJSON(filepath.Join(baseDir, runID, "individuals.json"), &individuals)
	return individuals, ok, err
}

// WriteFitnessSeries writes one CSV row per scored generation.
func WriteFitnessSeries(runDir string, generations []model.GenerationRecord) error {
	path := filepath.Join(runDir, fitnessCSVFile)
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{"generation", "average_fitness", "best_fitness", "best_individual", "min_fitness"}); err != nil {
		return err
	}
	for _, g := range generations {
		if g.Unscored {
			continue
		}
		if err := writer.Write([]string{
			strconv.Itoa(g.Generation),
			strconv.FormatFloat(g.AverageFitness, 'f', -1, 64),
			strconv.FormatFloat(g.BestFitness, 'f', -1, 64),
			strconv.Itoa(g.BestIndividualID),
			strconv.FormatFloat(g.MinFitness, 'f', -1, 64),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadFitnessSeries returns the average and best fitness columns of fitness.csv.
func ReadFitnessSeries(baseDir, runID string) ([]float64, []float64, bool, error) {
	path := filepath.Join(baseDir, runID, fitnessCSVFile)
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, false, nil
		}
		return nil, nil, false, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return []float64{}, []float64{}, true, nil
		}
		return nil, nil, false, err
	}
	if len(header) < 3 {
		return nil, nil, false, fmt.Errorf("fitness series header must have at least 3 columns")
	}

	average := make([]float64, 0, 64)
	best := make([]float64, 0, 64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, false, err
		}
		if len(record) < 3 {
			return nil, nil, false, fmt.Errorf("fitness series row must have at least 3 columns")
		}
		avg, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return nil, nil, false, err
		}
		b, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, nil, false, err
		}
		average = append(average, avg)
		best = append(best, b)
	}
	return average, best, true, nil
}

func readJSON(path string, value any) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal(data, value); err != nil {
		return false, err
	}
	return true, nil
}

func writeJSON(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	return os.WriteFile(path, data, 0o644)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
