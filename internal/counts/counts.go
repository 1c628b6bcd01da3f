// Package counts reduces one sample's aligned-read records against one
// reference namespace to guide abundance tables: a raw table of every aligned
// guide and a top-90% table with the least-frequent 10% of distinct guide
// keys dropped. The trim is over guide rank, not read mass.
package counts

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/reference"
)

// Entry is one row of a count table.
type Entry struct {
	Guide string
	Gene  string
	Count int
}

// Table is an ordered per-(sample, namespace) count table.
type Table struct {
	Sample    string
	Namespace string
	Entries   []Entry
}

// Summary is the per-sample coverage diagnostic. It is not consumed by the
// matrix aggregator.
type Summary struct {
	// GuidesPerGene maps detected-guides-per-gene to the number of genes
	// with that many detected guides.
	GuidesPerGene  map[int]int
	GenesDetected  int
	GenesInLibrary int
}

// Records pass the quality gate only on a 19- or 20-base exact/near-exact
// alignment, read off the record's CIGAR. Shorter matches get no partial
// credit.
var matchGate = regexp.MustCompile(`^(19|20)M$`)

// guideHits is a ranked (count desc, guide asc) list of aligned guide ids.
type guideHit struct {
	guide string
	count int
}

// Extract reads the SAM alignment stream for one (sample, namespace) and
// produces the raw and top-90% count tables plus summary statistics. Header
// lines and unaligned records are skipped; aligned records contribute their
// reference name (the guide id) when the CIGAR passes the quality gate. A
// missing alignment file is an error: an upstream checkpointed step should
// have produced it, and silently emitting an empty table would poison the
// matrix.
func Extract(mapPath, sample string, lib *reference.Library) (raw, top90 Table, sum Summary, err error) {
	f, err := os.Open(mapPath)
	if err != nil {
		return raw, top90, sum, fmt.Errorf("opening alignment map for sample %s: %w", sample, err)
	}
	defer f.Close()

	hits := make(map[string]int)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "@") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 6 {
			return raw, top90, sum, fmt.Errorf("%s line %d: expected a SAM record with at least 6 fields, got %d", mapPath, lineNo, len(fields))
		}
		guide, cigar := fields[2], fields[5]
		if guide == "*" || cigar == "*" {
			continue // unaligned read
		}
		if !matchGate.MatchString(cigar) {
			continue
		}
		hits[guide]++
	}
	if err := scanner.Err(); err != nil {
		return raw, top90, sum, fmt.Errorf("reading alignment map %s: %w", mapPath, err)
	}

	ranked := rankHits(hits)

	// cutoff counts distinct guide keys with nonzero hits, so the bottom
	// 10% of least-frequent guides drop out regardless of read mass
	cutoff := int(0.9 * float64(len(ranked)))

	raw = joinAndAggregate(sample, lib, ranked)
	top90 = joinAndAggregate(sample, lib, ranked[:cutoff])
	sum = summarize(lib, raw)
	return raw, top90, sum, nil
}

func rankHits(hits map[string]int) []guideHit {
	ranked := make([]guideHit, 0, len(hits))
	for guide, count := range hits {
		ranked = append(ranked, guideHit{guide: guide, count: count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].guide < ranked[j].guide
	})
	return ranked
}

// variantSuffix matches the ".N" suffix the reference index appends to
// disambiguate guides with identical spacer sequences. Those sub-entries
// collapse back to one library guide during the gene join.
var variantSuffix = regexp.MustCompile(`\.\d+$`)

// joinAndAggregate resolves each ranked guide against the library and
// re-aggregates counts on the (guide, gene) key. Guides absent from the
// library are dropped: the lookup is authoritative for the sample's guide
// universe. Aggregating after the join matters because variant sub-entries
// collapse onto one gene-qualified key.
func joinAndAggregate(sample string, lib *reference.Library, ranked []guideHit) Table {
	table := Table{Sample: sample, Namespace: lib.Namespace}
	index := make(map[string]int)
	for _, h := range ranked {
		rec, ok := lib.Lookup(h.guide)
		if !ok {
			rec, ok = lib.Lookup(variantSuffix.ReplaceAllString(h.guide, ""))
		}
		if !ok {
			continue
		}
		key := rec.Guide + "\x00" + rec.Gene
		if i, seen := index[key]; seen {
			table.Entries[i].Count += h.count
			continue
		}
		index[key] = len(table.Entries)
		table.Entries = append(table.Entries, Entry{Guide: rec.Guide, Gene: rec.Gene, Count: h.count})
	}
	return table
}

func summarize(lib *reference.Library, raw Table) Summary {
	guidesPerGene := make(map[string]int)
	for _, e := range raw.Entries {
		guidesPerGene[e.Gene]++
	}
	dist := make(map[int]int)
	for _, n := range guidesPerGene {
		dist[n]++
	}
	return Summary{
		GuidesPerGene:  dist,
		GenesDetected:  len(guidesPerGene),
		GenesInLibrary: lib.GeneCount(),
	}
}
