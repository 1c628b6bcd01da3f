// Package matrix reconciles per-sample count tables into one rectangular
// count matrix. Row keys come from a deterministically chosen reference
// sample, columns follow sample sheet order, and a sample with no count for
// a row key contributes 0, never a missing-value marker.
package matrix

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/counts"
)

// Row is one (guide, gene) key with a count per sample column.
type Row struct {
	Guide  string
	Gene   string
	Counts []int
}

// Matrix is a rectangular count matrix: len(Counts) == len(Samples) for
// every row.
type Matrix struct {
	Samples []string
	Rows    []Row
}

// Input names one sample's count table file.
type Input struct {
	Sample string
	Path   string
}

type key struct {
	guide string
	gene  string
}

// Build aggregates count tables into a matrix for one namespace. The row key
// space is the (guide, gene) list of the first sample whose table could be
// read, in that table's file order. Samples with a missing table (upstream
// failure) keep their column and contribute zeros, with a logged warning.
func Build(log *zap.Logger, inputs []Input) (Matrix, error) {
	if len(inputs) == 0 {
		return Matrix{}, fmt.Errorf("no samples to aggregate")
	}

	m := Matrix{Samples: make([]string, 0, len(inputs))}
	tables := make([]map[key]int, 0, len(inputs))
	var refEntries []counts.Entry
	refChosen := false

	for _, in := range inputs {
		m.Samples = append(m.Samples, in.Sample)

		table, err := counts.ReadTable(in.Path)
		if errors.Is(err, os.ErrNotExist) {
			log.Warn("count table missing, sample column will be zero-filled",
				zap.String("sample", in.Sample), zap.String("path", in.Path))
			tables = append(tables, nil)
			continue
		}
		if err != nil {
			return Matrix{}, err
		}
		if table.Sample != in.Sample {
			return Matrix{}, fmt.Errorf("count table %s: header names sample %q, expected %q", in.Path, table.Sample, in.Sample)
		}

		byKey := make(map[key]int, len(table.Entries))
		for _, e := range table.Entries {
			byKey[key{guide: e.Guide, gene: e.Gene}] += e.Count
		}
		tables = append(tables, byKey)

		if !refChosen {
			refEntries = table.Entries
			refChosen = true
		}
	}

	if !refChosen {
		return Matrix{}, fmt.Errorf("no count table could be read for any of the %d samples", len(inputs))
	}

	for _, e := range refEntries {
		row := Row{Guide: e.Guide, Gene: e.Gene, Counts: make([]int, len(m.Samples))}
		k := key{guide: e.Guide, gene: e.Gene}
		for i, byKey := range tables {
			if byKey == nil {
				continue // zero-filled
			}
			row.Counts[i] = byKey[k]
		}
		m.Rows = append(m.Rows, row)
	}
	return m, nil
}

// Merge concatenates the rows of per-namespace matrices. All matrices must
// carry the same sample-name column set, and no (guide, gene) key may appear
// in more than one namespace: guide keys are not prefixed, so a shared key
// would silently collide in the merged matrix.
func Merge(matrices ...Matrix) (Matrix, error) {
	if len(matrices) == 0 {
		return Matrix{}, fmt.Errorf("nothing to merge")
	}

	merged := Matrix{Samples: matrices[0].Samples}
	want := sampleSet(matrices[0].Samples)
	seen := make(map[key]bool)

	for _, m := range matrices {
		if got := sampleSet(m.Samples); got != want {
			return Matrix{}, fmt.Errorf("merged matrix sample sets differ: expected {%s}, observed {%s}", want, got)
		}
		for _, row := range m.Rows {
			k := key{guide: row.Guide, gene: row.Gene}
			if seen[k] {
				return Matrix{}, fmt.Errorf("guide key %s (gene %s) appears in more than one namespace, merged rows would collide", row.Guide, row.Gene)
			}
			seen[k] = true
			merged.Rows = append(merged.Rows, row)
		}
	}
	return merged, nil
}

func sampleSet(samples []string) string {
	sorted := append([]string(nil), samples...)
	sort.Strings(sorted)
	return strings.Join(sorted, ",")
}

// Validate checks the matrix shape invariant: every row carries exactly one
// non-negative count per sample column.
func Validate(m Matrix) error {
	for _, row := range m.Rows {
		if len(row.Counts) != len(m.Samples) {
			return fmt.Errorf("row %s has %d sample cells, expected %d", row.Guide, len(row.Counts), len(m.Samples))
		}
		for i, c := range row.Counts {
			if c < 0 {
				return fmt.Errorf("row %s sample %s: negative count %d", row.Guide, m.Samples[i], c)
			}
		}
	}
	return nil
}

// Write emits the matrix with the header sgRNA<TAB>Gene<TAB><samples...>,
// the contract handed to the differential testing stage.
func Write(path string, m Matrix) error {
	if err := Validate(m); err != nil {
		return fmt.Errorf("refusing to write invalid matrix %s: %w", path, err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating matrix %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "sgRNA\tGene\t%s\n", strings.Join(m.Samples, "\t"))
	for _, row := range m.Rows {
		fmt.Fprintf(w, "%s\t%s", row.Guide, row.Gene)
		for _, c := range row.Counts {
			fmt.Fprintf(w, "\t%d", c)
		}
		fmt.Fprintln(w)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing matrix %s: %w", path, err)
	}
	return nil
}

// ReadHeaderSamples returns the sample-name columns of a written matrix
// file. The pipeline uses it to verify a merged matrix reproduces the
// expected sample set before checkpointing the merge scope.
func ReadHeaderSamples(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening matrix %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		return nil, fmt.Errorf("matrix %s is empty", path)
	}
	fields := strings.Split(scanner.Text(), "\t")
	if len(fields) < 3 || fields[0] != "sgRNA" || fields[1] != "Gene" {
		return nil, fmt.Errorf("matrix %s: malformed header %q", path, scanner.Text())
	}
	return fields[2:], nil
}

// VerifySamples checks header sample-name set equality against the expected
// sample list. Order is not significant for the check, only set membership.
func VerifySamples(path string, expected []string) error {
	got, err := ReadHeaderSamples(path)
	if err != nil {
		return err
	}
	if sampleSet(got) != sampleSet(expected) {
		return fmt.Errorf("matrix %s header sample set {%s} does not match expected {%s}",
			path, sampleSet(got), sampleSet(expected))
	}
	return nil
}
