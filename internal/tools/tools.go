// Package tools wraps the external bioinformatics collaborators: the read
// trimmer, overlap merger, adapter stripper, aligner, and the differential
// testing stage. The pipeline only depends on their exit status and output
// files; everything else about them is opaque. Invocations go through the
// Runner interface so tests can substitute a stub for the real executables.
package tools

import (
	"fmt"
	"os/exec"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Command is one external tool invocation.
type Command struct {
	Name string
	Args []string
}

// Runner executes external commands. The pipeline blocks on each call; there
// is no timeout, a stuck tool blocks the run.
type Runner interface {
	Run(cmd Command) error
}

// ExecRunner runs commands with os/exec and logs the tool's combined output
// when it fails, since external tools report their diagnostics on
// stdout/stderr rather than in the exit code.
type ExecRunner struct {
	log *zap.Logger
}

func NewExecRunner(log *zap.Logger) *ExecRunner {
	return &ExecRunner{log: log}
}

func (r *ExecRunner) Run(cmd Command) error {
	output, err := exec.Command(cmd.Name, cmd.Args...).CombinedOutput()
	if err != nil {
		r.log.Error("error when running command",
			zap.String("command", cmd.Name),
			zap.Strings("args", cmd.Args),
			zap.String("output", string(output)),
			zap.Error(err))
		return fmt.Errorf("%s: %w", cmd.Name, err)
	}
	return nil
}

// Toolchain holds the configured executable paths and shared tool settings.
type Toolchain struct {
	FastxTrimmer string
	Flash        string
	Cutadapt     string
	Bowtie       string
	Mageck       string
	Adapter      string
}

// SetDefaults registers the default executable locations, following the
// convention that cluster installs live under versioned /software paths.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("fastx_trimmer_exec", "/software/fastx_toolkit-0.0.14/bin/fastx_trimmer")
	v.SetDefault("flash_exec", "/software/FLASH-1.2.11/flash")
	v.SetDefault("cutadapt_exec", "/software/cutadapt-3.4/bin/cutadapt")
	v.SetDefault("bowtie_exec", "/software/bowtie-1.3.0/bowtie")
	v.SetDefault("mageck_exec", "/software/mageck-0.5.9/bin/mageck")
	v.SetDefault("adapter_5prime", "TTGTGGAAAGGACGAAACACCG")
}

// FromConfig reads the toolchain out of viper config.
func FromConfig(v *viper.Viper) Toolchain {
	return Toolchain{
		FastxTrimmer: v.GetString("fastx_trimmer_exec"),
		Flash:        v.GetString("flash_exec"),
		Cutadapt:     v.GetString("cutadapt_exec"),
		Bowtie:       v.GetString("bowtie_exec"),
		Mageck:       v.GetString("mageck_exec"),
		Adapter:      v.GetString("adapter_5prime"),
	}
}

// Trim crops one fastq to cropLength bases.
func (t Toolchain) Trim(in, out string, cropLength int) Command {
	return Command{Name: t.FastxTrimmer, Args: []string{
		"-l", fmt.Sprintf("%d", cropLength),
		"-z",
		"-i", in,
		"-o", out,
	}}
}

// MergePairs overlap-merges a read pair into single fragments under outDir
// with the given prefix. The merger writes <outDir>/<prefix>.extendedFrags.fastq.gz.
func (t Toolchain) MergePairs(fq1, fq2, outDir, prefix string) Command {
	return Command{Name: t.Flash, Args: []string{
		"-z",
		"-M", "150",
		"-o", prefix,
		"-d", outDir,
		fq1, fq2,
	}}
}

// StripAdapter removes the 5' vector adapter ahead of the guide sequence.
func (t Toolchain) StripAdapter(in, out string) Command {
	return Command{Name: t.Cutadapt, Args: []string{
		"-g", t.Adapter,
		"--discard-untrimmed",
		"-o", out,
		in,
	}}
}

// Align maps stripped reads against a namespace's guide index. The aligner
// writes SAM to the output file; the count extractor reads the reference
// (guide) and CIGAR columns from it.
func (t Toolchain) Align(index, in, out string) Command {
	return Command{Name: t.Bowtie, Args: []string{
		"-v", "1",
		"-m", "1",
		"--norc",
		"-S",
		index,
		in,
		out,
	}}
}

// AnalysisMode selects the differential testing algorithm.
type AnalysisMode string

const (
	ModePairwiseTest      AnalysisMode = "pairwise-test"
	ModeMaximumLikelihood AnalysisMode = "maximum-likelihood"
)

// Subcommand maps a mode to the tester's subcommand.
func (m AnalysisMode) Subcommand() (string, error) {
	switch m {
	case ModePairwiseTest:
		return "test", nil
	case ModeMaximumLikelihood:
		return "mle", nil
	default:
		return "", fmt.Errorf("unknown analysis mode %q, expected %q or %q", string(m), ModePairwiseTest, ModeMaximumLikelihood)
	}
}

// DifferentialTest invokes the external differential abundance stage with a
// count matrix, a contrast design file, and an output prefix.
func (t Toolchain) DifferentialTest(mode AnalysisMode, matrix, design, outPrefix string) (Command, error) {
	sub, err := mode.Subcommand()
	if err != nil {
		return Command{}, err
	}
	return Command{Name: t.Mageck, Args: []string{
		sub,
		"-k", matrix,
		"-d", design,
		"-n", outPrefix,
	}}, nil
}
