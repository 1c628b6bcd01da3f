package reference

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func writeLibrary(t *testing.T, content string) Namespace {
	t.Helper()
	path := filepath.Join(t.TempDir(), "library.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return Namespace{Name: "gene", BowtieIndex: "/ref/gene", LibraryPath: path}
}

func TestLoadLibrary(t *testing.T) {
	ns := writeLibrary(t, `# guide	gene
sg_TP53_1	TP53
sg_TP53_2	TP53
sg_BRCA1_1	BRCA1
`)
	lib, err := LoadLibrary(ns)
	require.NoError(t, err)

	rec, ok := lib.Lookup("sg_TP53_2")
	require.True(t, ok)
	require.Equal(t, GuideRecord{Guide: "sg_TP53_2", Gene: "TP53", Namespace: "gene"}, rec)

	_, ok = lib.Lookup("sg_UNKNOWN")
	require.False(t, ok)

	require.Equal(t, 2, lib.GeneCount())
	require.Equal(t, 3, lib.GuideCount())
}

func TestLoadLibraryRejectsDuplicates(t *testing.T) {
	ns := writeLibrary(t, "sg_1\tA\nsg_1\tB\n")
	_, err := LoadLibrary(ns)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate guide")
}

func TestLoadLibraryRejectsMalformedLine(t *testing.T) {
	ns := writeLibrary(t, "sg_1 A\n")
	_, err := LoadLibrary(ns)
	require.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	v := viper.New()
	v.Set("reference.gene.bowtie_index", "/ref/gene_index")
	v.Set("reference.gene.library", "/ref/gene_library.txt")
	v.Set("reference.promoter.bowtie_index", "/ref/promoter_index")
	v.Set("reference.promoter.library", "/ref/promoter_library.txt")

	namespaces, err := FromConfig(v, "")
	require.NoError(t, err)
	require.Len(t, namespaces, 2)
	require.Equal(t, NamespaceGene, namespaces[0].Name)
	require.Equal(t, NamespacePromoter, namespaces[1].Name)

	only, err := FromConfig(v, "promoter")
	require.NoError(t, err)
	require.Len(t, only, 1)
	require.Equal(t, "/ref/promoter_index", only[0].BowtieIndex)
}

func TestFromConfigUnconfiguredNamespace(t *testing.T) {
	v := viper.New()
	_, err := FromConfig(v, "enhancer")
	require.Error(t, err)
	require.Contains(t, err.Error(), "enhancer")
}
