package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"k8s.io/klog/v2"

	"arcevo/internal/evo"
)

const (
	backupDir  = "backup"
	projectDir = "project"
	mutantsDir = "mutants"

	maxCommandOutput = 4096
)

var ErrNoBackup = errors.New("project backup not found")

// Config describes where the target project lives and which external
// commands generate mutants and build the project.
type Config struct {
	ProjectDir string
	WorkDir    string
	// Build runs inside ProjectDir. An empty build command skips compilation.
	Build []string
	// Generator is expanded per operator with {operator}, {source} and
	// {output}. It must write one numbered directory per mutation site into
	// {output}, starting at 1, each holding the files that differ from
	// {source}.
	Generator []string
}

// Workspace is a MutationEngine that keeps every mutant as a full project
// copy under the work directory:
//
//	<work>/backup
//	<work>/gen<g>/ind<id>/project
//	<work>/gen<g>/ind<id>/mutants/<operator>/<n>/...
type Workspace struct {
	cfg Config
}

var _ evo.MutationEngine = (*Workspace)(nil)

func NewWorkspace(cfg Config) (*Workspace, error) {
	if strings.TrimSpace(cfg.ProjectDir) == "" {
		return nil, fmt.Errorf("project dir is required")
	}
	if strings.TrimSpace(cfg.WorkDir) == "" {
		return nil, fmt.Errorf("work dir is required")
	}
	if len(cfg.Generator) == 0 {
		return nil, fmt.Errorf("generator command is required")
	}
	info, err := os.Stat(cfg.ProjectDir)
	if err != nil {
		return nil, fmt.Errorf("stat project dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("project dir %s is not a directory", cfg.ProjectDir)
	}

	// Generators run inside the source tree, so placeholders must expand to
	// absolute paths.
	if cfg.ProjectDir, err = filepath.Abs(cfg.ProjectDir); err != nil {
		return nil, err
	}
	if cfg.WorkDir, err = filepath.Abs(cfg.WorkDir); err != nil {
		return nil, err
	}
	if rel, err := filepath.Rel(cfg.ProjectDir, cfg.WorkDir); err == nil && !strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("work dir %s must not be inside project dir %s", cfg.WorkDir, cfg.ProjectDir)
	}
	if err := os.MkdirAll(cfg.WorkDir, 0o755); err != nil {
		return nil, err
	}
	return &Workspace{cfg: cfg}, nil
}

// BackupDir is where the pristine project copy is kept.
func (w *Workspace) BackupDir() string {
	return filepath.Join(w.cfg.WorkDir, backupDir)
}

// LocalProjectDir is the project copy of an individual in a generation.
func (w *Workspace) LocalProjectDir(generation, individualID int) string {
	return filepath.Join(w.individualDir(generation, individualID), projectDir)
}

// MutantDir is where site (1-based) of operator is generated.
func (w *Workspace) MutantDir(generation, individualID int, operator string, site int) string {
	return filepath.Join(w.individualDir(generation, individualID), mutantsDir, operator, strconv.Itoa(site))
}

func (w *Workspace) individualDir(generation, individualID int) string {
	return filepath.Join(w.cfg.WorkDir, fmt.Sprintf("gen%d", generation), fmt.Sprintf("ind%d", individualID))
}

// BackupProject also drops the generation directories of earlier runs in a
// reused work dir: local projects are looked up by generation, so a stale one
// would become the source of a later generation.
func (w *Workspace) BackupProject(ctx context.Context) error {
	klog.FromContext(ctx).V(1).Info("Backing up project", "project", w.cfg.ProjectDir, "backup", w.BackupDir())
	stale, err := filepath.Glob(filepath.Join(w.cfg.WorkDir, "gen[0-9]*"))
	if err != nil {
		return err
	}
	for _, dir := range stale {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	if err := os.RemoveAll(w.BackupDir()); err != nil {
		return err
	}
	return copyTree(ctx, w.cfg.ProjectDir, w.BackupDir())
}

func (w *Workspace) RestoreProject(ctx context.Context) error {
	if _, err := os.Stat(w.BackupDir()); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNoBackup, w.BackupDir())
		}
		return err
	}
	klog.FromContext(ctx).V(1).Info("Restoring project", "project", w.cfg.ProjectDir)
	return w.replaceProject(ctx, w.BackupDir())
}

func (w *Workspace) CompileProject(ctx context.Context) error {
	if len(w.cfg.Build) == 0 {
		return nil
	}
	klog.FromContext(ctx).V(3).Info("Building project", "command", w.cfg.Build)
	if _, err := runCommand(ctx, w.cfg.ProjectDir, w.cfg.Build); err != nil {
		return fmt.Errorf("build project: %w", err)
	}
	return nil
}

// CountSites regenerates the mutants of every operator from the individual's
// current source and reports the number of sites per operator.
func (w *Workspace) CountSites(ctx context.Context, generation, individualID int, operators []evo.Operator) ([]int, error) {
	logger := klog.FromContext(ctx).WithValues("individual", individualID, "generation", generation)
	source, err := w.sourceProject(generation, individualID)
	if err != nil {
		return nil, err
	}

	root := filepath.Join(w.individualDir(generation, individualID), mutantsDir)
	if err := os.RemoveAll(root); err != nil {
		return nil, err
	}

	counts := make([]int, len(operators))
	for i, op := range operators {
		output := filepath.Join(root, op.Name)
		if err := os.MkdirAll(output, 0o755); err != nil {
			return nil, err
		}
		argv := expand(w.cfg.Generator, map[string]string{
			"{operator}": op.Name,
			"{source}":   source,
			"{output}":   output,
		})
		if _, err := runCommand(ctx, source, argv); err != nil {
			return nil, fmt.Errorf("generate %s mutants: %w", op.Name, err)
		}
		n, err := countMutants(output)
		if err != nil {
			return nil, fmt.Errorf("count %s mutants: %w", op.Name, err)
		}
		counts[i] = n
		logger.V(4).Info("Generated mutants", "operator", op.Name, "sites", n)
	}
	return counts, nil
}

// CreateLocalProject copies the individual's current source into its
// project directory for generation. A placeholder copy carries the
// individual forward unmutated.
func (w *Workspace) CreateLocalProject(ctx context.Context, generation, individualID int, placeholder bool) error {
	source, err := w.sourceProject(generation, individualID)
	if err != nil {
		return err
	}
	dst := w.LocalProjectDir(generation, individualID)
	if err := os.RemoveAll(dst); err != nil {
		return err
	}
	if placeholder {
		klog.FromContext(ctx).V(3).Info("Creating placeholder project", "individual", individualID, "generation", generation, "source", source)
	}
	return copyTree(ctx, source, dst)
}

func (w *Workspace) MoveMutantToLocalProject(ctx context.Context, generation, individualID int, operatorName string, site int) error {
	if site < 1 {
		return fmt.Errorf("mutant site must be >= 1, got %d", site)
	}
	src := w.MutantDir(generation, individualID, operatorName, site)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("mutant %s/%d: %w", operatorName, site, err)
	}
	klog.FromContext(ctx).V(3).Info("Applying mutant", "individual", individualID, "generation", generation, "operator", operatorName, "site", site)
	return copyTree(ctx, src, w.LocalProjectDir(generation, individualID))
}

func (w *Workspace) MoveLocalProjectToOriginal(ctx context.Context, generation, individualID int) error {
	src := w.LocalProjectDir(generation, individualID)
	if _, err := os.Stat(src); err != nil {
		return fmt.Errorf("local project of individual %d generation %d: %w", individualID, generation, err)
	}
	return w.replaceProject(ctx, src)
}

// sourceProject is the newest local project of the individual before
// generation, or the backup when none exists.
func (w *Workspace) sourceProject(generation, individualID int) (string, error) {
	for g := generation - 1; g >= 1; g-- {
		dir := w.LocalProjectDir(g, individualID)
		if _, err := os.Stat(dir); err == nil {
			return dir, nil
		}
	}
	if _, err := os.Stat(w.BackupDir()); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNoBackup, w.BackupDir())
		}
		return "", err
	}
	return w.BackupDir(), nil
}

// replaceProject empties the project directory in place and fills it from src.
func (w *Workspace) replaceProject(ctx context.Context, src string) error {
	entries, err := os.ReadDir(w.cfg.ProjectDir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(w.cfg.ProjectDir, entry.Name())); err != nil {
			return err
		}
	}
	return copyTree(ctx, src, w.cfg.ProjectDir)
}

func countMutants(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var sites []int
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		n, err := strconv.Atoi(entry.Name())
		if err != nil || n < 1 {
			continue
		}
		sites = append(sites, n)
	}
	sort.Ints(sites)
	for i, n := range sites {
		if n != i+1 {
			return 0, fmt.Errorf("mutant directories must be numbered 1..%d, found %d", len(sites), n)
		}
	}
	return len(sites), nil
}

func expand(argv []string, replacements map[string]string) []string {
	out := make([]string, len(argv))
	for i, arg := range argv {
		for placeholder, value := range replacements {
			arg = strings.ReplaceAll(arg, placeholder, value)
		}
		out[i] = arg
	}
	return out
}

func runCommand(ctx context.Context, dir string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s: %w: %s", strings.Join(argv, " "), err, tail(out))
	}
	return out, nil
}

func tail(out []byte) string {
	out = bytes.TrimSpace(out)
	if len(out) > maxCommandOutput {
		out = out[len(out)-maxCommandOutput:]
	}
	return string(out)
}
