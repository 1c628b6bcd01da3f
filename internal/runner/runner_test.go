package runner

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/checkpoint"
)

func newRunner(t *testing.T) (*Runner, *checkpoint.Store, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := checkpoint.NewStore(filepath.Join(dir, "checkpoints"))
	require.NoError(t, err)
	return New(store, zap.NewNop()), store, dir
}

func TestRunExecutesOnceWhenOutputsPresent(t *testing.T) {
	r, _, dir := newRunner(t)
	out := filepath.Join(dir, "out.txt")

	calls := 0
	action := func() error {
		calls++
		return os.WriteFile(out, []byte("done\n"), 0644)
	}

	require.NoError(t, r.Run("trim:s1", []string{out}, action))
	require.NoError(t, r.Run("trim:s1", []string{out}, action))
	require.Equal(t, 1, calls, "second invocation must be a no-op")
}

func TestRunReExecutesWhenOutputVanished(t *testing.T) {
	r, store, dir := newRunner(t)
	out := filepath.Join(dir, "out.txt")

	calls := 0
	action := func() error {
		calls++
		return os.WriteFile(out, []byte("done\n"), 0644)
	}

	require.NoError(t, r.Run("trim:s1", []string{out}, action))
	require.NoError(t, os.Remove(out))

	require.NoError(t, r.Run("trim:s1", []string{out}, action))
	require.Equal(t, 2, calls, "deleted output must force re-execution")
	require.True(t, store.IsDone("trim:s1"))
}

func TestFailureLeavesCheckpointAbsent(t *testing.T) {
	r, store, dir := newRunner(t)
	out := filepath.Join(dir, "out.txt")

	// mark the scope done beforehand to prove Run clears it before acting
	require.NoError(t, store.MarkDone("align:s1:gene"))

	err := r.Run("align:s1:gene", []string{out}, func() error {
		return errors.New("bowtie exited 1")
	})
	require.Error(t, err)
	require.Contains(t, err.Error(), "align:s1:gene")
	require.False(t, store.IsDone("align:s1:gene"))
}

func TestMissingOutputAfterActionIsAnError(t *testing.T) {
	r, store, dir := newRunner(t)
	out := filepath.Join(dir, "never_written.txt")

	err := r.Run("strip:s1", []string{out}, func() error { return nil })
	require.Error(t, err)
	require.False(t, store.IsDone("strip:s1"))
}

func TestRunWithNoRequiredOutputs(t *testing.T) {
	r, store, _ := newRunner(t)

	calls := 0
	require.NoError(t, r.Run("cleanup:gene", nil, func() error { calls++; return nil }))
	require.NoError(t, r.Run("cleanup:gene", nil, func() error { calls++; return nil }))
	require.Equal(t, 1, calls)
	require.True(t, store.IsDone("cleanup:gene"))
}
