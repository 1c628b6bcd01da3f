// Package runner is the single idempotency gate every pipeline step goes
// through. A step runs at most once per checkpoint scope: if the scope is
// checkpointed and its required outputs still exist the step is skipped,
// otherwise the checkpoint is cleared before the action runs and is only set
// back on success. A failed action therefore always leaves the scope
// uncheckpointed, so a re-invocation resumes from exactly the failed step.
package runner

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/checkpoint"
)

// Runner executes named units of work exactly once per checkpoint scope.
type Runner struct {
	store *checkpoint.Store
	log   *zap.Logger
}

func New(store *checkpoint.Store, log *zap.Logger) *Runner {
	return &Runner{store: store, log: log}
}

// fileExists checks if a file exists and is not a directory before we
// trust it as a step output.
func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Run executes action under scope unless the scope is already checkpointed
// with all requiredOutputs present on disk. A checkpoint whose outputs have
// vanished is treated as stale: it is cleared and the action re-executes.
func (r *Runner) Run(scope string, requiredOutputs []string, action func() error) error {
	if r.store.IsDone(scope) {
		stale := ""
		for _, out := range requiredOutputs {
			if !fileExists(out) {
				stale = out
				break
			}
		}
		if stale == "" {
			r.log.Info("checkpoint exists, skipping step", zap.String("scope", scope))
			return nil
		}
		r.log.Warn("checkpoint exists but output is missing, re-running step",
			zap.String("scope", scope), zap.String("missing_output", stale))
	}

	if err := r.store.Clear(scope); err != nil {
		return err
	}

	r.log.Info("starting step", zap.String("scope", scope))
	if err := action(); err != nil {
		r.log.Error("step failed", zap.String("scope", scope), zap.Error(err))
		return fmt.Errorf("step %s: %w", scope, err)
	}

	for _, out := range requiredOutputs {
		if !fileExists(out) {
			err := fmt.Errorf("step %s completed but expected output %s is missing", scope, out)
			r.log.Error("step output missing after completion", zap.String("scope", scope), zap.String("output", out))
			return err
		}
	}

	if err := r.store.MarkDone(scope); err != nil {
		return err
	}
	r.log.Info("step completed", zap.String("scope", scope))
	return nil
}
