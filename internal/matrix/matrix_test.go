package matrix

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/seanlaidlaw/crispr-screen-counter/internal/counts"
)

func writeTable(t *testing.T, dir, sample string, entries []counts.Entry) Input {
	t.Helper()
	path := filepath.Join(dir, sample+"_gene.count.txt")
	require.NoError(t, counts.WriteTable(path, counts.Table{Sample: sample, Entries: entries}))
	return Input{Sample: sample, Path: path}
}

func TestBuildShapeAndZeroFill(t *testing.T) {
	dir := t.TempDir()
	in1 := writeTable(t, dir, "s1", []counts.Entry{
		{Guide: "sg_1", Gene: "TP53", Count: 10},
		{Guide: "sg_2", Gene: "TP53", Count: 7},
		{Guide: "sg_3", Gene: "BRCA1", Count: 3},
	})
	// s2 omits sg_2: its cell must be 0, not absent and not s1's value
	in2 := writeTable(t, dir, "s2", []counts.Entry{
		{Guide: "sg_1", Gene: "TP53", Count: 4},
		{Guide: "sg_3", Gene: "BRCA1", Count: 8},
	})

	m, err := Build(zap.NewNop(), []Input{in1, in2})
	require.NoError(t, err)
	require.NoError(t, Validate(m))

	require.Equal(t, []string{"s1", "s2"}, m.Samples)
	require.Len(t, m.Rows, 3)
	require.Equal(t, Row{Guide: "sg_1", Gene: "TP53", Counts: []int{10, 4}}, m.Rows[0])
	require.Equal(t, Row{Guide: "sg_2", Gene: "TP53", Counts: []int{7, 0}}, m.Rows[1])
	require.Equal(t, Row{Guide: "sg_3", Gene: "BRCA1", Counts: []int{3, 8}}, m.Rows[2])
}

func TestBuildRowOrderFollowsReferenceSampleFileOrder(t *testing.T) {
	dir := t.TempDir()
	in1 := writeTable(t, dir, "s1", []counts.Entry{
		{Guide: "sg_z", Gene: "Z", Count: 1},
		{Guide: "sg_a", Gene: "A", Count: 2},
	})
	in2 := writeTable(t, dir, "s2", []counts.Entry{
		{Guide: "sg_a", Gene: "A", Count: 5},
		{Guide: "sg_z", Gene: "Z", Count: 6},
	})

	m, err := Build(zap.NewNop(), []Input{in1, in2})
	require.NoError(t, err)
	require.Equal(t, "sg_z", m.Rows[0].Guide)
	require.Equal(t, "sg_a", m.Rows[1].Guide)
}

func TestBuildMissingTableZeroFillsColumn(t *testing.T) {
	dir := t.TempDir()
	in1 := writeTable(t, dir, "s1", []counts.Entry{{Guide: "sg_1", Gene: "TP53", Count: 9}})
	in2 := Input{Sample: "s2", Path: filepath.Join(dir, "missing.count.txt")}

	m, err := Build(zap.NewNop(), []Input{in1, in2})
	require.NoError(t, err)
	require.Equal(t, []string{"s1", "s2"}, m.Samples)
	require.Equal(t, []int{9, 0}, m.Rows[0].Counts)
}

func TestBuildNoReadableTables(t *testing.T) {
	dir := t.TempDir()
	_, err := Build(zap.NewNop(), []Input{
		{Sample: "s1", Path: filepath.Join(dir, "a")},
		{Sample: "s2", Path: filepath.Join(dir, "b")},
	})
	require.Error(t, err)
}

func TestBuildRejectsHeaderSampleMismatch(t *testing.T) {
	dir := t.TempDir()
	in := writeTable(t, dir, "s1", []counts.Entry{{Guide: "sg_1", Gene: "TP53", Count: 1}})
	in.Sample = "s9" // sheet says s9 but the file header says s1
	_, err := Build(zap.NewNop(), []Input{in})
	require.Error(t, err)
}

func TestMerge(t *testing.T) {
	gene := Matrix{
		Samples: []string{"s1", "s2"},
		Rows: []Row{
			{Guide: "sg_g1", Gene: "TP53", Counts: []int{1, 2}},
			{Guide: "sg_g2", Gene: "MYC", Counts: []int{3, 4}},
		},
	}
	promoter := Matrix{
		Samples: []string{"s1", "s2"},
		Rows: []Row{
			{Guide: "sg_p1", Gene: "TP53_pr", Counts: []int{5, 6}},
		},
	}

	merged, err := Merge(gene, promoter)
	require.NoError(t, err)
	require.Len(t, merged.Rows, len(gene.Rows)+len(promoter.Rows))
	require.Equal(t, []string{"s1", "s2"}, merged.Samples)
}

func TestMergeRejectsSampleSetMismatch(t *testing.T) {
	a := Matrix{Samples: []string{"s1", "s2"}}
	b := Matrix{Samples: []string{"s1", "s3"}}
	_, err := Merge(a, b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "sample sets differ")
}

func TestMergeDetectsGuideKeyCollision(t *testing.T) {
	a := Matrix{Samples: []string{"s1"}, Rows: []Row{{Guide: "sg_1", Gene: "TP53", Counts: []int{1}}}}
	b := Matrix{Samples: []string{"s1"}, Rows: []Row{{Guide: "sg_1", Gene: "TP53", Counts: []int{2}}}}
	_, err := Merge(a, b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "collide")
}

func TestWriteAndVerifySamples(t *testing.T) {
	m := Matrix{
		Samples: []string{"s1", "s2"},
		Rows:    []Row{{Guide: "sg_1", Gene: "TP53", Counts: []int{10, 0}}},
	}
	path := filepath.Join(t.TempDir(), "all_samples_gene.count.txt")
	require.NoError(t, Write(path, m))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "sgRNA\tGene\ts1\ts2\nsg_1\tTP53\t10\t0\n", string(data))

	require.NoError(t, VerifySamples(path, []string{"s2", "s1"}))
	err = VerifySamples(path, []string{"s1", "s3"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match expected")
}

func TestWriteRefusesRaggedMatrix(t *testing.T) {
	m := Matrix{
		Samples: []string{"s1", "s2"},
		Rows:    []Row{{Guide: "sg_1", Gene: "TP53", Counts: []int{10}}},
	}
	require.Error(t, Write(filepath.Join(t.TempDir(), "bad.txt"), m))
}
