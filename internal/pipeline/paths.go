package pipeline

import (
	"fmt"
	"path/filepath"
)

// Working directories are numbered by pipeline stage, under the output dir.
func (p *Pipeline) trimmedDir() string  { return filepath.Join(p.opts.OutputDir, "1_trimmed") }
func (p *Pipeline) mergedDir() string   { return filepath.Join(p.opts.OutputDir, "2_merged") }
func (p *Pipeline) strippedDir() string { return filepath.Join(p.opts.OutputDir, "3_stripped") }
func (p *Pipeline) countsDir() string   { return filepath.Join(p.opts.OutputDir, "5_counts") }
func (p *Pipeline) matrixDir() string   { return filepath.Join(p.opts.OutputDir, "6_matrix") }
func (p *Pipeline) designsDir() string  { return filepath.Join(p.opts.OutputDir, "7_designs") }
func (p *Pipeline) analysisDir() string { return filepath.Join(p.opts.OutputDir, "8_analysis") }

// alignedDir is per-namespace: it holds the temporary alignment maps the
// cleanup step removes once the namespace's matrix exists.
func (p *Pipeline) alignedDir(ns string) string {
	return filepath.Join(p.opts.OutputDir, "4_aligned_"+ns)
}

func (p *Pipeline) trimmedFastq(sample string, read int) string {
	return filepath.Join(p.trimmedDir(), fmt.Sprintf("%s.%d.fq.gz", sample, read))
}

func (p *Pipeline) mergedFastq(sample string) string {
	return filepath.Join(p.mergedDir(), sample+".extendedFrags.fastq.gz")
}

func (p *Pipeline) strippedFastq(sample string) string {
	return filepath.Join(p.strippedDir(), sample+".fq.gz")
}

func (p *Pipeline) alignmentMap(sample, ns string) string {
	return filepath.Join(p.alignedDir(ns), sample+".sam")
}

func (p *Pipeline) countTable(sample, ns string) string {
	return filepath.Join(p.countsDir(), fmt.Sprintf("%s_%s.count.txt", sample, ns))
}

func (p *Pipeline) rawCountTable(sample, ns string) string {
	return filepath.Join(p.countsDir(), fmt.Sprintf("%s_%s.count_raw.txt", sample, ns))
}

func (p *Pipeline) countSummary(sample, ns string) string {
	return filepath.Join(p.countsDir(), fmt.Sprintf("%s_%s.count_summary.txt", sample, ns))
}

func (p *Pipeline) matrixFile(ns string) string {
	return filepath.Join(p.matrixDir(), fmt.Sprintf("all_samples_%s.count.txt", ns))
}

func (p *Pipeline) designFile(condition, ns string) string {
	return filepath.Join(p.designsDir(), fmt.Sprintf("%s_vs_control_%s.txt", condition, ns))
}

func (p *Pipeline) analysisPrefix(condition, ns string) string {
	return filepath.Join(p.analysisDir(), fmt.Sprintf("%s_vs_control_%s", condition, ns))
}
