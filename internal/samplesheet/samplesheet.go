// Package samplesheet parses the CSV sample sheet that drives a run. Sheet
// order is load-bearing: it fixes matrix column order and the choice of the
// reference sample for the matrix row key space.
package samplesheet

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// ControlCondition is the designated baseline condition value.
const ControlCondition = "control"

// Sample is one row of the sample sheet. Immutable after parsing.
type Sample struct {
	ID        string
	Fastq1    string
	Fastq2    string
	Condition string
}

// IsControl reports whether the sample belongs to the baseline condition.
func (s Sample) IsControl() bool {
	return s.Condition == ControlCondition
}

var expectedHeader = []string{"sample", "fastq_1", "fastq_2", "condition"}

// Parse reads the sample sheet at path. The header row is required and must
// match sample,fastq_1,fastq_2,condition. Duplicate sample identifiers are
// rejected: a duplicate would silently merge two columns of the count matrix.
func Parse(path string) ([]Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening sample sheet: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parsing sample sheet %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sample sheet %s is empty, expected header %s", path, strings.Join(expectedHeader, ","))
	}

	header := rows[0]
	if len(header) != len(expectedHeader) {
		return nil, fmt.Errorf("sample sheet %s: expected header %s, got %s",
			path, strings.Join(expectedHeader, ","), strings.Join(header, ","))
	}
	for i, col := range header {
		if strings.TrimSpace(strings.ToLower(col)) != expectedHeader[i] {
			return nil, fmt.Errorf("sample sheet %s: expected header column %q, got %q", path, expectedHeader[i], col)
		}
	}

	seen := make(map[string]bool)
	var samples []Sample
	for n, row := range rows[1:] {
		if len(row) != len(expectedHeader) {
			return nil, fmt.Errorf("sample sheet %s line %d: expected %d columns, got %d", path, n+2, len(expectedHeader), len(row))
		}
		s := Sample{
			ID:        strings.TrimSpace(row[0]),
			Fastq1:    strings.TrimSpace(row[1]),
			Fastq2:    strings.TrimSpace(row[2]),
			Condition: strings.TrimSpace(row[3]),
		}
		if s.ID == "" {
			return nil, fmt.Errorf("sample sheet %s line %d: empty sample identifier", path, n+2)
		}
		if s.Condition == "" {
			return nil, fmt.Errorf("sample sheet %s line %d: empty condition for sample %s", path, n+2, s.ID)
		}
		if seen[s.ID] {
			return nil, fmt.Errorf("sample sheet %s: duplicate sample identifier %s", path, s.ID)
		}
		seen[s.ID] = true
		samples = append(samples, s)
	}

	if len(samples) == 0 {
		return nil, fmt.Errorf("sample sheet %s contains no samples", path)
	}
	return samples, nil
}

// Conditions returns the non-control condition values in sheet discovery
// order, each exactly once. These are the contrasts.
func Conditions(samples []Sample) []string {
	seen := make(map[string]bool)
	var conditions []string
	for _, s := range samples {
		if s.IsControl() || seen[s.Condition] {
			continue
		}
		seen[s.Condition] = true
		conditions = append(conditions, s.Condition)
	}
	return conditions
}
