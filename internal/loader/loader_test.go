package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zeeeepa/gobby/pkg/schema"
)

func writeWorkflow(t *testing.T, dir, file, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, file), []byte(content), 0o644))
}

func TestLoadWorkflow(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "task-loop.yaml", `
name: task-loop
steps:
  - name: plan
    transitions:
      - to: implement
        when: plan_approved == true
  - name: implement
`)

	l := NewFileLoader(dir, nil)
	def, err := l.LoadWorkflow("task-loop")
	require.NoError(t, err)
	assert.Equal(t, "task-loop", def.Name)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, "implement", def.Steps[0].Transitions[0].To)
}

func TestLoadWorkflow_YmlExtension(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "guard.yml", "name: guard\ntype: lifecycle\n")

	l := NewFileLoader(dir, nil)
	def, err := l.LoadWorkflow("guard")
	require.NoError(t, err)
	assert.Equal(t, schema.WorkflowTypeLifecycle, def.EffectiveType())
}

func TestLoadWorkflow_NameDefaultsFromFilename(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "unnamed.yaml", "steps:\n  - name: only\n")

	l := NewFileLoader(dir, nil)
	def, err := l.LoadWorkflow("unnamed")
	require.NoError(t, err)
	assert.Equal(t, "unnamed", def.Name)
}

func TestLoadWorkflow_NotFound(t *testing.T) {
	l := NewFileLoader(t.TempDir(), nil)

	_, err := l.LoadWorkflow("ghost")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, schema.CodeOf(err))
}

func TestLoadWorkflow_ParseError(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "broken.yaml", "name: broken\nsteps: {not: [a, list\n")

	l := NewFileLoader(dir, nil)
	_, err := l.LoadWorkflow("broken")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeValidation, schema.CodeOf(err))
}

func TestLoadWorkflow_CachesByModTime(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "cached.yaml", "name: cached\n")

	l := NewFileLoader(dir, nil)
	first, err := l.LoadWorkflow("cached")
	require.NoError(t, err)

	second, err := l.LoadWorkflow("cached")
	require.NoError(t, err)
	assert.Same(t, first, second, "unchanged file returns the cached definition")
}

func TestDiscoverLifecycleWorkflows(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "zeta.yaml", "name: zeta\ntype: lifecycle\n")
	writeWorkflow(t, dir, "alpha.yaml", "name: alpha\ntype: lifecycle\n")
	writeWorkflow(t, dir, "stepper.yaml", "name: stepper\nsteps:\n  - name: a\n")
	writeWorkflow(t, dir, "mangled.yaml", ":::not yaml\n\t\tbad")
	writeWorkflow(t, dir, "notes.txt", "ignored")

	l := NewFileLoader(dir, nil)
	defs, err := l.DiscoverLifecycleWorkflows()
	require.NoError(t, err)

	// Sorted by name; step workflows, bad files, and non-YAML skipped.
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[1].Name)
}

func TestDiscoverLifecycleWorkflows_MissingDir(t *testing.T) {
	l := NewFileLoader(filepath.Join(t.TempDir(), "never-created"), nil)

	defs, err := l.DiscoverLifecycleWorkflows()
	require.NoError(t, err)
	assert.Empty(t, defs)
}

func TestDiscoverLifecycleWorkflowsFor(t *testing.T) {
	dir := t.TempDir()
	writeWorkflow(t, dir, "everywhere.yaml", "name: everywhere\ntype: lifecycle\n")
	writeWorkflow(t, dir, "scoped.yaml", "name: scoped\ntype: lifecycle\nsources:\n  - claude\n")

	l := NewFileLoader(dir, nil)

	claude, err := l.DiscoverLifecycleWorkflowsFor("claude")
	require.NoError(t, err)
	require.Len(t, claude, 2)

	other, err := l.DiscoverLifecycleWorkflowsFor("cursor")
	require.NoError(t, err)
	require.Len(t, other, 1)
	assert.Equal(t, "everywhere", other[0].Name)
}
