package samplesheet

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSheet(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "samples.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestParse(t *testing.T) {
	path := writeSheet(t, `sample,fastq_1,fastq_2,condition
s1,/data/s1_R1.fq.gz,/data/s1_R2.fq.gz,control
s2,/data/s2_R1.fq.gz,/data/s2_R2.fq.gz,treated
`)

	samples, err := Parse(path)
	require.NoError(t, err)
	require.Len(t, samples, 2)

	require.Equal(t, "s1", samples[0].ID)
	require.Equal(t, "/data/s1_R1.fq.gz", samples[0].Fastq1)
	require.True(t, samples[0].IsControl())

	require.Equal(t, "s2", samples[1].ID)
	require.Equal(t, "treated", samples[1].Condition)
	require.False(t, samples[1].IsControl())
}

func TestParseRejectsBadHeader(t *testing.T) {
	path := writeSheet(t, `name,r1,r2,group
s1,a,b,control
`)
	_, err := Parse(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "expected header")
}

func TestParseRejectsDuplicateSample(t *testing.T) {
	path := writeSheet(t, `sample,fastq_1,fastq_2,condition
s1,a,b,control
s1,c,d,treated
`)
	_, err := Parse(path)
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate sample identifier")
}

func TestParseRejectsEmptySheet(t *testing.T) {
	path := writeSheet(t, "sample,fastq_1,fastq_2,condition\n")
	_, err := Parse(path)
	require.Error(t, err)
}

func TestConditionsDiscoveryOrder(t *testing.T) {
	path := writeSheet(t, `sample,fastq_1,fastq_2,condition
s1,a,b,control
s2,a,b,late
s3,a,b,early
s4,a,b,late
s5,a,b,control
`)
	samples, err := Parse(path)
	require.NoError(t, err)
	require.Equal(t, []string{"late", "early"}, Conditions(samples))
}
