package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writePipeline(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0600), "failed to set up test file")
	return path
}

func TestRun_Pipeline(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	path := writePipeline(t, `
op "generator" "nums" {
  columns = ["n"]
  rows    = [[1], [2]]
}

op "map" "double" {
  inputs = [op.nums]
  column = "d"
  expr   = row.n * 2
}
`)
	out, logs := &bytes.Buffer{}, &bytes.Buffer{}

	// --- Act ---
	err := run(t.Context(), out, logs, []string{"-epochs", "2", path})

	// --- Assert ---
	require.NoError(t, err)
	want := `{"d":2,"n":1}` + "\n" + `{"d":4,"n":2}` + "\n"
	require.Equal(t, want+want, out.String())
	require.Contains(t, logs.String(), "Pipeline finished.")
}

func TestRun_InvalidHCL(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// A syntax error fails the load phase before anything runs.
	path := writePipeline(t, `
op "generator" "broken" {
  columns = [
`)
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(t.Context(), out, &bytes.Buffer{}, []string{path})

	// --- Assert ---
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to load pipeline")
	require.Empty(t, out.String())
}

func TestRun_ShouldExit(t *testing.T) {
	t.Parallel()

	// --- Arrange ---
	// The "-h" (help) flag should cause cli.Parse to return `shouldExit=true`.
	out := &bytes.Buffer{}

	// --- Act ---
	err := run(t.Context(), out, &bytes.Buffer{}, []string{"-h"})

	// --- Assert ---
	require.NoError(t, err, "run() should return a nil error when shouldExit is true")
	require.Contains(t, out.String(), "Usage:", "Expected help text to be printed to the output buffer")
}

func TestRun_ParseError(t *testing.T) {
	t.Parallel()

	// --- Act ---
	err := run(t.Context(), &bytes.Buffer{}, &bytes.Buffer{}, []string{"--this-is-not-a-valid-flag"})

	// --- Assert ---
	require.Error(t, err, "run() should return an error when argument parsing fails")
	require.Contains(t, err.Error(), "flag provided but not defined: -this-is-not-a-valid-flag")
}
