package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shibayu36/personachat/memory"
	"github.com/shibayu36/personachat/persona"
)

func run(t *testing.T, args ...string) error {
	t.Helper()
	cmd := newRootCmd()
	cmd.SetArgs(args)
	return cmd.Execute()
}

func TestCommands_SeedAndList(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, run(t, "--data-dir", dir, "personas"))
	_, err := os.Stat(filepath.Join(dir, "prompts", persona.DefaultName))
	assert.NoError(t, err)

	require.NoError(t, run(t, "--data-dir", dir, "history"))
	_, err = os.Stat(filepath.Join(dir, "history"))
	assert.NoError(t, err)
}

func TestCommands_HistoryListsSaved(t *testing.T) {
	dir := t.TempDir()
	m, err := memory.NewManager(filepath.Join(dir, "history"))
	require.NoError(t, err)
	require.NoError(t, m.Save(&memory.Conversation{ID: "abcd1234", Title: "Saved", PromptFile: "default.md"}))
	require.NoError(t, m.Close())

	assert.NoError(t, run(t, "--data-dir", dir, "history", "-n", "5"))
}

func TestCommands_ThemeImport(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(t.TempDir(), "ocean.yaml")
	require.NoError(t, os.WriteFile(file, []byte("name: ocean\nmode: light\n"), 0644))

	require.NoError(t, run(t, "--data-dir", dir, "themes", "import", file))
	_, err := os.Stat(filepath.Join(dir, "themes", "ocean.yaml"))
	assert.NoError(t, err)

	assert.Error(t, run(t, "--data-dir", dir, "themes", "import", filepath.Join(dir, "missing.yaml")))
}

func TestCommands_ModelsRequiresConfig(t *testing.T) {
	dir := t.TempDir()
	assert.Error(t, run(t, "--data-dir", dir, "models"))
}

func TestCommands_BadLogLevel(t *testing.T) {
	assert.Error(t, run(t, "--data-dir", t.TempDir(), "--log-level", "loud", "themes"))
}
