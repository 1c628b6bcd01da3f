// Package reference describes the reference namespaces a run aligns against.
// A namespace is a named reference index (the "gene" or "promoter" guide
// library) together with its guide-to-gene lookup table. The lookup is
// authoritative for a sample's guide universe: aligned guides with no entry
// are dropped during count extraction.
package reference

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Built-in namespace names. A run processes both unless restricted to one
// with --namespace.
const (
	NamespaceGene     = "gene"
	NamespacePromoter = "promoter"
)

// Namespace is a named reference index plus its guide library table.
type Namespace struct {
	Name        string
	BowtieIndex string
	LibraryPath string
}

// GuideRecord maps one guide identifier to its gene within a namespace.
type GuideRecord struct {
	Guide     string
	Gene      string
	Namespace string
}

// Library is a namespace's guide-to-gene lookup.
type Library struct {
	Namespace string
	byGuide   map[string]string
	genes     map[string]bool
}

// FromConfig builds the namespaces for a run from viper config. An empty
// only selects the built-in gene and promoter namespaces; otherwise exactly
// the named one. The name must be configured under reference.<name>.
func FromConfig(v *viper.Viper, only string) ([]Namespace, error) {
	names := []string{NamespaceGene, NamespacePromoter}
	if only != "" {
		names = []string{only}
	}

	var namespaces []Namespace
	for _, name := range names {
		index := v.GetString(fmt.Sprintf("reference.%s.bowtie_index", name))
		library := v.GetString(fmt.Sprintf("reference.%s.library", name))
		if index == "" || library == "" {
			return nil, fmt.Errorf("reference namespace %q is not configured (need reference.%s.bowtie_index and reference.%s.library)", name, name, name)
		}
		namespaces = append(namespaces, Namespace{Name: name, BowtieIndex: index, LibraryPath: library})
	}
	return namespaces, nil
}

// LoadLibrary reads a guide-to-gene table: tab-delimited, one guide per line,
// '#' comment lines allowed. Later duplicate guide lines are rejected since
// guide identifiers are unique within a namespace.
func LoadLibrary(ns Namespace) (*Library, error) {
	f, err := os.Open(ns.LibraryPath)
	if err != nil {
		return nil, fmt.Errorf("opening guide library for namespace %s: %w", ns.Name, err)
	}
	defer f.Close()

	lib := &Library{
		Namespace: ns.Name,
		byGuide:   make(map[string]string),
		genes:     make(map[string]bool),
	}

	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) < 2 {
			return nil, fmt.Errorf("%s line %d: expected guide<TAB>gene, got %q", ns.LibraryPath, lineNo, line)
		}
		guide, gene := strings.TrimSpace(fields[0]), strings.TrimSpace(fields[1])
		if guide == "" || gene == "" {
			return nil, fmt.Errorf("%s line %d: empty guide or gene", ns.LibraryPath, lineNo)
		}
		if _, dup := lib.byGuide[guide]; dup {
			return nil, fmt.Errorf("%s line %d: duplicate guide %s", ns.LibraryPath, lineNo, guide)
		}
		lib.byGuide[guide] = gene
		lib.genes[gene] = true
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading guide library %s: %w", ns.LibraryPath, err)
	}
	if len(lib.byGuide) == 0 {
		return nil, fmt.Errorf("guide library %s contains no guides", ns.LibraryPath)
	}
	return lib, nil
}

// Lookup resolves a guide identifier to its library record. ok is false for
// guides outside the library.
func (l *Library) Lookup(guide string) (GuideRecord, bool) {
	gene, ok := l.byGuide[guide]
	if !ok {
		return GuideRecord{}, false
	}
	return GuideRecord{Guide: guide, Gene: gene, Namespace: l.Namespace}, true
}

// GeneCount is the number of genes in the designed library, detected or not.
func (l *Library) GeneCount() int {
	return len(l.genes)
}

// GuideCount is the number of guides in the designed library.
func (l *Library) GuideCount() int {
	return len(l.byGuide)
}
