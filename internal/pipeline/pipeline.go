// Package pipeline sequences the run: per-sample trim, merge, strip, align,
// and count steps, then matrix aggregation, contrast design generation, and
// optional dispatch of the external differential testing stage. Every step
// goes through the step runner's idempotency gate, so an interrupted run can
// be re-invoked with the same arguments and resumes from the failed scope.
package pipeline

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/checkpoint"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/counts"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/design"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/matrix"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/reference"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/runner"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/samplesheet"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/tools"
)

// MergedNamespace names the concatenated gene+promoter key space in output
// file names.
const MergedNamespace = "merged"

// Options are the validated run parameters. Validation happens in the CLI
// layer before any checkpoint is touched.
type Options struct {
	SampleSheet     string
	CropLength      int
	Namespace       string
	MergeNamespaces bool
	RunAnalysis     bool
	AnalysisMode    tools.AnalysisMode
	OutputDir       string
	Workers         int
	Reset           bool
}

// Pipeline owns one run's collaborators.
type Pipeline struct {
	opts       Options
	log        *zap.Logger
	store      *checkpoint.Store
	steps      *runner.Runner
	toolchain  tools.Toolchain
	runTool    tools.Runner
	namespaces []reference.Namespace
}

func New(opts Options, log *zap.Logger, store *checkpoint.Store, toolRunner tools.Runner, toolchain tools.Toolchain, namespaces []reference.Namespace) *Pipeline {
	return &Pipeline{
		opts:       opts,
		log:        log,
		store:      store,
		steps:      runner.New(store, log),
		toolchain:  toolchain,
		runTool:    toolRunner,
		namespaces: namespaces,
	}
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

// Run executes the whole pipeline. Returns the first unrecovered step
// failure; completed scopes stay checkpointed so a re-invocation resumes.
func (p *Pipeline) Run() error {
	samples, err := samplesheet.Parse(p.opts.SampleSheet)
	if err != nil {
		return err
	}

	libraries := make(map[string]*reference.Library, len(p.namespaces))
	for _, ns := range p.namespaces {
		lib, err := reference.LoadLibrary(ns)
		if err != nil {
			return err
		}
		libraries[ns.Name] = lib
	}

	if p.opts.Reset {
		p.log.Info("discarding checkpoints from previous invocations")
		if err := p.store.Reset(); err != nil {
			return err
		}
	}

	dirs := []string{p.trimmedDir(), p.mergedDir(), p.strippedDir(), p.countsDir(), p.matrixDir(), p.designsDir()}
	for _, ns := range p.namespaces {
		dirs = append(dirs, p.alignedDir(ns.Name))
	}
	if p.opts.RunAnalysis {
		dirs = append(dirs, p.analysisDir())
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating working directory %s: %w", dir, err)
		}
	}

	if err := p.runSamples(samples, libraries); err != nil {
		return err
	}
	if err := p.buildMatrices(samples); err != nil {
		return err
	}

	conditions := samplesheet.Conditions(samples)
	if err := p.writeDesigns(samples, conditions); err != nil {
		return err
	}
	if p.opts.RunAnalysis {
		if err := p.dispatchAnalyses(conditions); err != nil {
			return err
		}
	}
	return p.cleanup()
}

// runSamples processes every sample's step chain, sequentially by default or
// with a bounded worker pool. Each sample's own chain stays strictly
// ordered; only whole samples run concurrently.
func (p *Pipeline) runSamples(samples []samplesheet.Sample, libraries map[string]*reference.Library) error {
	workers := p.opts.Workers
	if workers < 1 {
		workers = 1
	}

	var g errgroup.Group
	g.SetLimit(workers)
	for _, s := range samples {
		s := s
		g.Go(func() error {
			return p.runSample(s, libraries)
		})
	}
	return g.Wait()
}

func (p *Pipeline) runSample(s samplesheet.Sample, libraries map[string]*reference.Library) error {
	if !fileExists(s.Fastq1) || !fileExists(s.Fastq2) {
		p.log.Warn("raw reads missing, skipping sample",
			zap.String("sample", s.ID),
			zap.String("fastq_1", s.Fastq1),
			zap.String("fastq_2", s.Fastq2))
		return nil
	}

	trimmed1 := p.trimmedFastq(s.ID, 1)
	trimmed2 := p.trimmedFastq(s.ID, 2)
	err := p.steps.Run("trim:"+s.ID, []string{trimmed1, trimmed2}, func() error {
		if err := p.runTool.Run(p.toolchain.Trim(s.Fastq1, trimmed1, p.opts.CropLength)); err != nil {
			return err
		}
		return p.runTool.Run(p.toolchain.Trim(s.Fastq2, trimmed2, p.opts.CropLength))
	})
	if err != nil {
		return err
	}

	merged := p.mergedFastq(s.ID)
	err = p.steps.Run("merge:"+s.ID, []string{merged}, func() error {
		return p.runTool.Run(p.toolchain.MergePairs(trimmed1, trimmed2, p.mergedDir(), s.ID))
	})
	if err != nil {
		return err
	}

	stripped := p.strippedFastq(s.ID)
	err = p.steps.Run("strip:"+s.ID, []string{stripped}, func() error {
		return p.runTool.Run(p.toolchain.StripAdapter(merged, stripped))
	})
	if err != nil {
		return err
	}

	for _, ns := range p.namespaces {
		if err := p.alignAndCount(s, ns, libraries[ns.Name], stripped); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) alignAndCount(s samplesheet.Sample, ns reference.Namespace, lib *reference.Library, stripped string) error {
	countScope := fmt.Sprintf("count:%s:%s", s.ID, ns.Name)
	countOutputs := []string{
		p.countTable(s.ID, ns.Name),
		p.rawCountTable(s.ID, ns.Name),
		p.countSummary(s.ID, ns.Name),
	}

	// The cleanup step deletes alignment maps once the matrix exists, so a
	// resumed run whose count tables survive must not redo the alignment.
	if p.store.IsDone(countScope) && allExist(countOutputs) {
		p.log.Info("checkpoint exists, skipping step", zap.String("scope", countScope))
		return nil
	}

	mapFile := p.alignmentMap(s.ID, ns.Name)
	err := p.steps.Run(fmt.Sprintf("align:%s:%s", s.ID, ns.Name), []string{mapFile}, func() error {
		return p.runTool.Run(p.toolchain.Align(ns.BowtieIndex, stripped, mapFile))
	})
	if err != nil {
		return err
	}

	return p.steps.Run(countScope, countOutputs, func() error {
		raw, top90, sum, err := counts.Extract(mapFile, s.ID, lib)
		if err != nil {
			return err
		}
		if err := counts.WriteTable(p.rawCountTable(s.ID, ns.Name), raw); err != nil {
			return err
		}
		if err := counts.WriteTable(p.countTable(s.ID, ns.Name), top90); err != nil {
			return err
		}
		return counts.WriteSummary(p.countSummary(s.ID, ns.Name), top90, sum)
	})
}

func allExist(paths []string) bool {
	for _, path := range paths {
		if !fileExists(path) {
			return false
		}
	}
	return true
}

// buildMatrices aggregates the per-sample top-90% tables into one matrix per
// namespace, plus the concatenated matrix in merge mode.
func (p *Pipeline) buildMatrices(samples []samplesheet.Sample) error {
	for _, ns := range p.namespaces {
		ns := ns
		out := p.matrixFile(ns.Name)
		err := p.steps.Run("matrix:"+ns.Name, []string{out}, func() error {
			m, err := matrix.Build(p.log, p.matrixInputs(samples, ns.Name))
			if err != nil {
				return err
			}
			return matrix.Write(out, m)
		})
		if err != nil {
			return err
		}
	}

	if !p.opts.MergeNamespaces {
		return nil
	}

	out := p.matrixFile(MergedNamespace)
	return p.steps.Run("matrix:"+MergedNamespace, []string{out}, func() error {
		perNamespace := make([]matrix.Matrix, 0, len(p.namespaces))
		for _, ns := range p.namespaces {
			m, err := matrix.Build(p.log, p.matrixInputs(samples, ns.Name))
			if err != nil {
				return err
			}
			perNamespace = append(perNamespace, m)
		}
		merged, err := matrix.Merge(perNamespace...)
		if err != nil {
			return err
		}
		if err := matrix.Write(out, merged); err != nil {
			return err
		}
		// verify the written header reproduces the sample-name set before
		// the merge scope can be checkpointed
		sampleIDs := make([]string, len(samples))
		for i, s := range samples {
			sampleIDs[i] = s.ID
		}
		return matrix.VerifySamples(out, sampleIDs)
	})
}

func (p *Pipeline) matrixInputs(samples []samplesheet.Sample, ns string) []matrix.Input {
	inputs := make([]matrix.Input, len(samples))
	for i, s := range samples {
		inputs[i] = matrix.Input{Sample: s.ID, Path: p.countTable(s.ID, ns)}
	}
	return inputs
}

// analysisNamespaces are the key spaces designs and differential tests run
// against: the merged space when merging, otherwise each namespace.
func (p *Pipeline) analysisNamespaces() []string {
	if p.opts.MergeNamespaces {
		return []string{MergedNamespace}
	}
	names := make([]string, len(p.namespaces))
	for i, ns := range p.namespaces {
		names[i] = ns.Name
	}
	return names
}

func (p *Pipeline) writeDesigns(samples []samplesheet.Sample, conditions []string) error {
	for _, ns := range p.analysisNamespaces() {
		for _, condition := range conditions {
			condition := condition
			out := p.designFile(condition, ns)
			err := p.steps.Run(fmt.Sprintf("design:%s:%s", ns, condition), []string{out}, func() error {
				c, err := design.ForCondition(samples, condition)
				if err != nil {
					return err
				}
				return design.Write(out, c)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// cleanup removes the per-namespace alignment working directories once their
// consuming matrices exist. Scoped by its own checkpoint like every step.
func (p *Pipeline) cleanup() error {
	for _, ns := range p.namespaces {
		ns := ns
		err := p.steps.Run("cleanup:"+ns.Name, nil, func() error {
			return os.RemoveAll(p.alignedDir(ns.Name))
		})
		if err != nil {
			return err
		}
	}
	return nil
}
