package counts

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// WriteTable emits a count table as tab-delimited text with the header
// sgRNA<TAB>Gene<TAB><sample>. This is the on-disk contract the matrix
// aggregator reads back.
func WriteTable(path string, table Table) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating count table %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "sgRNA\tGene\t%s\n", table.Sample)
	for _, e := range table.Entries {
		fmt.Fprintf(w, "%s\t%s\t%d\n", e.Guide, e.Gene, e.Count)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing count table %s: %w", path, err)
	}
	return nil
}

// ReadTable parses a count table file written by WriteTable. The sample name
// is recovered from the header.
func ReadTable(path string) (Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return Table{}, fmt.Errorf("opening count table %s: %w", path, err)
	}
	defer f.Close()

	var table Table
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 3 {
			return Table{}, fmt.Errorf("%s line %d: expected 3 columns, got %d", path, lineNo, len(fields))
		}
		if lineNo == 1 {
			if fields[0] != "sgRNA" || fields[1] != "Gene" {
				return Table{}, fmt.Errorf("%s: expected header sgRNA\tGene\t<sample>, got %q", path, line)
			}
			table.Sample = fields[2]
			continue
		}
		count, err := strconv.Atoi(fields[2])
		if err != nil || count < 0 {
			return Table{}, fmt.Errorf("%s line %d: invalid count %q", path, lineNo, fields[2])
		}
		table.Entries = append(table.Entries, Entry{Guide: fields[0], Gene: fields[1], Count: count})
	}
	if err := scanner.Err(); err != nil {
		return Table{}, fmt.Errorf("reading count table %s: %w", path, err)
	}
	if table.Sample == "" {
		return Table{}, fmt.Errorf("count table %s has no header", path)
	}
	return table, nil
}

// WriteSummary emits the per-sample coverage diagnostic: how many genes have
// N detected guides, plus detected vs designed gene totals.
func WriteSummary(path string, table Table, sum Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating count summary %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "# count summary for sample %s, namespace %s\n", table.Sample, table.Namespace)
	fmt.Fprintf(w, "guides_detected_per_gene\tgenes\n")

	buckets := make([]int, 0, len(sum.GuidesPerGene))
	for n := range sum.GuidesPerGene {
		buckets = append(buckets, n)
	}
	sort.Ints(buckets)
	for _, n := range buckets {
		fmt.Fprintf(w, "%d\t%d\n", n, sum.GuidesPerGene[n])
	}
	fmt.Fprintf(w, "genes_with_detected_guides\t%d\n", sum.GenesDetected)
	fmt.Fprintf(w, "genes_in_library\t%d\n", sum.GenesInLibrary)

	if err := w.Flush(); err != nil {
		return fmt.Errorf("writing count summary %s: %w", path, err)
	}
	return nil
}
