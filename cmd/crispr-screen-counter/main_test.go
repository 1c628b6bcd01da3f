package main

import (
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.Execute()
}

func TestRunRejectsInvalidAnalysisMode(t *testing.T) {
	err := execute(t, "run",
		"--sample-sheet", "whatever.csv",
		"--crop-length", "100",
		"--analysis-mode", "bayesian")
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown analysis mode")
}

func TestRunRejectsNonPositiveCropLength(t *testing.T) {
	err := execute(t, "run",
		"--sample-sheet", "whatever.csv",
		"--crop-length", "0")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--crop-length")
}

func TestRunRejectsMissingSampleSheet(t *testing.T) {
	err := execute(t, "run",
		"--sample-sheet", filepath.Join(t.TempDir(), "missing.csv"),
		"--crop-length", "100")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--sample-sheet")
}

func TestRunRequiresFlags(t *testing.T) {
	require.Error(t, execute(t, "run"))
}
