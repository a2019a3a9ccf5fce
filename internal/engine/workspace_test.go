package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/klog/v2/ktesting"

	"arcevo/internal/evo"
)

// twoSiteGenerator writes two mutants per operator. Site 1 rewrites main.go,
// site 2 adds a file recording what the source looked like.
var twoSiteGenerator = []string{"sh", "-c", `mkdir -p {output}/1 {output}/2 && echo "{operator} site 1" > {output}/1/main.go && cp {source}/main.go {output}/2/seen.txt`}

func newTestWorkspace(t *testing.T, generator []string) (*Workspace, string) {
	t.Helper()
	root := t.TempDir()
	project := filepath.Join(root, "project")
	require.NoError(t, os.MkdirAll(filepath.Join(project, "pkg"), 0o755))
	writeFile(t, filepath.Join(project, "main.go"), "original\n")
	writeFile(t, filepath.Join(project, "pkg", "lib.go"), "lib\n")

	w, err := NewWorkspace(Config{
		ProjectDir: project,
		WorkDir:    filepath.Join(root, "work"),
		Build:      []string{"sh", "-c", "test -f main.go"},
		Generator:  generator,
	})
	require.NoError(t, err)
	return w, project
}

func TestWorkspaceBackupAndRestore(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, project := newTestWorkspace(t, twoSiteGenerator)

	require.NoError(t, w.BackupProject(ctx))
	writeFile(t, filepath.Join(project, "main.go"), "changed\n")
	writeFile(t, filepath.Join(project, "stray.txt"), "left over\n")

	require.NoError(t, w.RestoreProject(ctx))
	assert.Equal(t, "original\n", readFile(t, filepath.Join(project, "main.go")))
	assert.Equal(t, "lib\n", readFile(t, filepath.Join(project, "pkg", "lib.go")))
	assert.NoFileExists(t, filepath.Join(project, "stray.txt"))
}

func TestWorkspaceRestoreWithoutBackup(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, _ := newTestWorkspace(t, twoSiteGenerator)
	assert.ErrorIs(t, w.RestoreProject(ctx), ErrNoBackup)
}

func TestWorkspaceMutationLifecycle(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, project := newTestWorkspace(t, twoSiteGenerator)
	require.NoError(t, w.BackupProject(ctx))

	ops := []evo.Operator{{ID: "ASAT", Name: "ASAT"}, {ID: "EXSB", Name: "EXSB"}}
	counts, err := w.CountSites(ctx, 1, 3, ops)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 2}, counts)
	assert.DirExists(t, w.MutantDir(1, 3, "EXSB", 2))

	require.NoError(t, w.CreateLocalProject(ctx, 1, 3, false))
	require.NoError(t, w.MoveMutantToLocalProject(ctx, 1, 3, "EXSB", 1))
	local := w.LocalProjectDir(1, 3)
	assert.Equal(t, "EXSB site 1\n", readFile(t, filepath.Join(local, "main.go")))
	assert.Equal(t, "lib\n", readFile(t, filepath.Join(local, "pkg", "lib.go")))

	require.NoError(t, w.MoveLocalProjectToOriginal(ctx, 1, 3))
	assert.Equal(t, "EXSB site 1\n", readFile(t, filepath.Join(project, "main.go")))
	require.NoError(t, w.CompileProject(ctx))

	// Generation 2 starts from the generation 1 mutant.
	_, err = w.CountSites(ctx, 2, 3, ops[:1])
	require.NoError(t, err)
	assert.Equal(t, "EXSB site 1\n", readFile(t, filepath.Join(w.MutantDir(2, 3, "ASAT", 2), "seen.txt")))

	require.NoError(t, w.RestoreProject(ctx))
	assert.Equal(t, "original\n", readFile(t, filepath.Join(project, "main.go")))
}

func TestWorkspacePlaceholderCarriesPreviousMutant(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, _ := newTestWorkspace(t, twoSiteGenerator)
	require.NoError(t, w.BackupProject(ctx))

	_, err := w.CountSites(ctx, 1, 1, []evo.Operator{{ID: "ASAT", Name: "ASAT"}})
	require.NoError(t, err)
	require.NoError(t, w.CreateLocalProject(ctx, 1, 1, false))
	require.NoError(t, w.MoveMutantToLocalProject(ctx, 1, 1, "ASAT", 1))
	// Generators are not run for generation 2; the individual has no sites left.
	require.NoError(t, w.CreateLocalProject(ctx, 2, 1, true))

	assert.Equal(t, "ASAT site 1\n", readFile(t, filepath.Join(w.LocalProjectDir(2, 1), "main.go")))
	assert.Equal(t, "ASAT site 1\n", readFile(t, filepath.Join(w.LocalProjectDir(1, 1), "main.go")))
}

func TestWorkspaceBackupDropsEarlierRunProjects(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, _ := newTestWorkspace(t, twoSiteGenerator)
	require.NoError(t, w.BackupProject(ctx))
	require.NoError(t, w.CreateLocalProject(ctx, 3, 1, false))
	writeFile(t, filepath.Join(w.LocalProjectDir(3, 1), "main.go"), "previous run\n")
	writeFile(t, filepath.Join(w.cfg.WorkDir, "notes.txt"), "kept\n")

	// A second run in the same work dir.
	require.NoError(t, w.BackupProject(ctx))
	assert.NoDirExists(t, w.individualDir(3, 1))
	assert.FileExists(t, filepath.Join(w.cfg.WorkDir, "notes.txt"))

	source, err := w.sourceProject(4, 1)
	require.NoError(t, err)
	assert.Equal(t, w.BackupDir(), source)
}

func TestWorkspaceSkipsMissingGenerations(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, _ := newTestWorkspace(t, twoSiteGenerator)
	require.NoError(t, w.BackupProject(ctx))

	source, err := w.sourceProject(1, 4)
	require.NoError(t, err)
	assert.Equal(t, w.BackupDir(), source)

	require.NoError(t, w.CreateLocalProject(ctx, 2, 4, false))
	source, err = w.sourceProject(4, 4)
	require.NoError(t, err)
	assert.Equal(t, w.LocalProjectDir(2, 4), source)
}

func TestWorkspaceRejectsGappedMutantNumbering(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, _ := newTestWorkspace(t, []string{"sh", "-c", "mkdir -p {output}/1 {output}/3"})
	require.NoError(t, w.BackupProject(ctx))

	_, err := w.CountSites(ctx, 1, 1, []evo.Operator{{ID: "ASAT", Name: "ASAT"}})
	assert.ErrorContains(t, err, "numbered 1..2")
}

func TestWorkspaceReportsCommandFailures(t *testing.T) {
	_, ctx := ktesting.NewTestContext(t)
	w, _ := newTestWorkspace(t, []string{"sh", "-c", "echo no operator {operator} >&2; exit 4"})
	require.NoError(t, w.BackupProject(ctx))

	_, err := w.CountSites(ctx, 1, 1, []evo.Operator{{ID: "RSAV", Name: "RSAV"}})
	assert.ErrorContains(t, err, "no operator RSAV")

	w.cfg.Build = []string{"sh", "-c", "echo compile error; exit 2"}
	assert.ErrorContains(t, w.CompileProject(ctx), "compile error")

	assert.Error(t, w.MoveMutantToLocalProject(ctx, 1, 1, "RSAV", 0))
	assert.Error(t, w.MoveLocalProjectToOriginal(ctx, 9, 1))
}

func TestNewWorkspaceValidation(t *testing.T) {
	project := t.TempDir()
	file := filepath.Join(project, "main.go")
	writeFile(t, file, "x")

	cases := map[string]Config{
		"missing project":        {WorkDir: t.TempDir(), Generator: []string{"true"}},
		"missing work dir":       {ProjectDir: project, Generator: []string{"true"}},
		"missing generator":      {ProjectDir: project, WorkDir: t.TempDir()},
		"project is a file":      {ProjectDir: file, WorkDir: t.TempDir(), Generator: []string{"true"}},
		"work inside project":    {ProjectDir: project, WorkDir: filepath.Join(project, "work"), Generator: []string{"true"}},
		"project does not exist": {ProjectDir: filepath.Join(project, "nope"), WorkDir: t.TempDir(), Generator: []string{"true"}},
	}
	for name, cfg := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewWorkspace(cfg)
			assert.Error(t, err)
		})
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}
