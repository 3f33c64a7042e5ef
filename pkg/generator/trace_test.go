package generator

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const invocationTrace = `HashOwner,HashApp,HashFunction,Trigger,1,2,3
o1,a1,f1,http,1,0,3
o2,a2,f2,timer,2,2,2
o3,a3,f1,queue,0,1,0
`

func TestParseInvocationCounts(t *testing.T) {
	counts, err := parseInvocationCounts(strings.NewReader(invocationTrace), 2)
	require.NoError(t, err)

	assert.Equal(t, []FunctionCounts{
		{Name: "f1", InvocationsPerMinute: []int{1, 0}},
		{Name: "f2", InvocationsPerMinute: []int{2, 2}},
		{Name: "f1-1", InvocationsPerMinute: []int{0, 1}},
	}, counts)
}

func TestParseInvocationCountsShortTrace(t *testing.T) {
	counts, err := parseInvocationCounts(strings.NewReader(invocationTrace), 10)
	require.NoError(t, err)

	for _, c := range counts {
		assert.Len(t, c.InvocationsPerMinute, 3)
	}
}

func TestParseInvocationCountsErrors(t *testing.T) {
	tests := []struct {
		testName string
		trace    string
		minutes  int
	}{
		{testName: "zero_minutes", trace: invocationTrace, minutes: 0},
		{testName: "missing_hash", trace: "HashOwner,HashApp,Trigger,1\no,a,http,1\n", minutes: 1},
		{testName: "not_a_number", trace: "HashOwner,HashApp,HashFunction,Trigger,1\no,a,f,http,x\n", minutes: 1},
		{testName: "negative_count", trace: "HashOwner,HashApp,HashFunction,Trigger,1\no,a,f,http,-1\n", minutes: 1},
		{testName: "empty", trace: "", minutes: 1},
	}

	for _, test := range tests {
		t.Run(test.testName, func(t *testing.T) {
			_, err := parseInvocationCounts(strings.NewReader(test.trace), test.minutes)
			assert.Error(t, err)
		})
	}
}

func TestGenerateFromInvocationTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "invocations.csv")
	require.NoError(t, os.WriteFile(path, []byte(invocationTrace), 0644))

	counts, err := ReadInvocationCounts(path, 3)
	require.NoError(t, err)

	cfg := NewScheduleGenerator(42).GenerateFromCounts(counts, Equidistant, 1)
	require.Len(t, cfg.Functions, 3)
	assert.Len(t, cfg.Functions[0].Invocations, 4)
	assert.Len(t, cfg.Functions[1].Invocations, 6)
	assert.Len(t, cfg.Functions[2].Invocations, 1)
	assert.NoError(t, cfg.Validate())
}
