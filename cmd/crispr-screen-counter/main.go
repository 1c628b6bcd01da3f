// crispr-screen-counter turns paired-end CRISPR screen reads into per-guide
// count matrices and contrast design files, resumably: every step is gated
// by a checkpoint so an interrupted run can be re-invoked with the same
// arguments and picks up from the failed step.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/checkpoint"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/logging"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/pipeline"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/reference"
	"github.com/seanlaidlaw/crispr-screen-counter/internal/tools"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "crispr-screen-counter",
		Short:         "Resumable CRISPR screen read counting and matrix aggregation",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		opts       pipeline.Options
		mode       string
		configPath string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the counting pipeline over a sample sheet",
		RunE: func(cmd *cobra.Command, args []string) error {
			// usage validation happens before any checkpoint is touched
			opts.AnalysisMode = tools.AnalysisMode(mode)
			if _, err := opts.AnalysisMode.Subcommand(); err != nil {
				return err
			}
			if opts.CropLength < 1 {
				return fmt.Errorf("--crop-length must be a positive read length, got %d", opts.CropLength)
			}
			if _, err := os.Stat(opts.SampleSheet); err != nil {
				return fmt.Errorf("sample sheet %s is not readable, pass an existing CSV with --sample-sheet: %w", opts.SampleSheet, err)
			}

			v, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			namespaces, err := reference.FromConfig(v, opts.Namespace)
			if err != nil {
				return err
			}

			log, err := logging.New(opts.OutputDir)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := checkpoint.NewStore(filepath.Join(opts.OutputDir, "checkpoints"))
			if err != nil {
				return err
			}

			p := pipeline.New(opts, log, store, tools.NewExecRunner(log), tools.FromConfig(v), namespaces)
			if err := p.Run(); err != nil {
				log.Error("run failed", zap.Error(err))
				return err
			}
			log.Info("run completed")
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.SampleSheet, "sample-sheet", "", "CSV with columns sample,fastq_1,fastq_2,condition (required)")
	cmd.Flags().IntVar(&opts.CropLength, "crop-length", 0, "length to crop raw reads to before merging (required)")
	cmd.Flags().StringVar(&opts.Namespace, "namespace", "", "restrict the run to one configured reference namespace (default: gene and promoter)")
	cmd.Flags().BoolVar(&opts.MergeNamespaces, "merge-namespaces", false, "concatenate the gene and promoter matrices into one")
	cmd.Flags().BoolVar(&opts.RunAnalysis, "run-analysis", false, "dispatch the external differential testing stage per contrast")
	cmd.Flags().StringVar(&mode, "analysis-mode", string(tools.ModePairwiseTest), "differential testing algorithm: pairwise-test or maximum-likelihood")
	cmd.Flags().StringVar(&opts.OutputDir, "output-dir", ".", "directory for working files, outputs, checkpoints and the run log")
	cmd.Flags().IntVar(&opts.Workers, "workers", 1, "number of samples to process concurrently")
	cmd.Flags().BoolVar(&opts.Reset, "reset", false, "discard checkpoints from previous invocations and start fresh")
	cmd.Flags().StringVar(&configPath, "config", "", "explicit config file (default: crispr_screen_counter_config.yaml in . or ~/.config)")
	cobra.CheckErr(cmd.MarkFlagRequired("sample-sheet"))
	cobra.CheckErr(cmd.MarkFlagRequired("crop-length"))

	return cmd
}

// loadConfig reads crispr_screen_counter_config.yaml from the working
// directory or ~/.config, falling back to the built-in defaults when no
// config file exists.
func loadConfig(path string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigName("crispr_screen_counter_config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")              // look for config in the working directory first
	v.AddConfigPath("$HOME/.config/") // if not found then look in .config folder
	if path != "" {
		v.SetConfigFile(path)
	}

	tools.SetDefaults(v)
	v.SetDefault("reference.gene.bowtie_index", "/lustre/reference/crispr/grch38/gene_guides")
	v.SetDefault("reference.gene.library", "/lustre/reference/crispr/grch38/gene_guides_library.txt")
	v.SetDefault("reference.promoter.bowtie_index", "/lustre/reference/crispr/grch38/promoter_guides")
	v.SetDefault("reference.promoter.library", "/lustre/reference/crispr/grch38/promoter_guides_library.txt")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) && path == "" {
			return v, nil // defaults only
		}
		return nil, fmt.Errorf("unable to read config file: %w", err)
	}
	return v, nil
}
