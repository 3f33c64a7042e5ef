package schedule

import (
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vhive-serverless/replayer/pkg/common"
)

func entry(offset int64, function string, index int) common.ScheduleEntry {
	return common.ScheduleEntry{Offset: time.Duration(offset), Function: function, Index: index}
}

func TestBuildMergesTraces(t *testing.T) {
	cfg := &Configuration{
		Functions: []FunctionTrace{
			{Name: "A", Invocations: []int64{0, 1_000_000_000}},
			{Name: "B", Invocations: []int64{500_000_000}},
		},
	}

	result, err := Build(cfg)
	require.NoError(t, err)

	assert.Equal(t, common.Schedule{
		entry(0, "A", 0),
		entry(500_000_000, "B", 1),
		entry(1_000_000_000, "A", 2),
	}, result)
	assert.Equal(t, time.Second, Duration(result))
	assert.Equal(t, map[string]int{"A": 2, "B": 1}, CountPerFunction(result))
}

func TestBuildTieBreak(t *testing.T) {
	cfg := &Configuration{
		Functions: []FunctionTrace{
			{Name: "second", Invocations: []int64{100, 100, 50}},
			{Name: "first", Invocations: []int64{100, 0}},
		},
	}

	for i := 0; i < 10; i++ {
		result, err := Build(cfg)
		require.NoError(t, err)

		assert.Equal(t, common.Schedule{
			entry(0, "first", 0),
			entry(50, "second", 1),
			entry(100, "second", 2),
			entry(100, "second", 3),
			entry(100, "first", 4),
		}, result)
	}
}

func TestBuildEmpty(t *testing.T) {
	result, err := Build(&Configuration{})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.Equal(t, time.Duration(0), Duration(result))

	result, err = Build(nil)
	require.NoError(t, err)
	assert.Empty(t, result)

	result, err = Build(&Configuration{Functions: []FunctionTrace{{Name: "idle"}}})
	require.NoError(t, err)
	assert.Empty(t, result)
}

func TestBuildRejectsInvalidConfiguration(t *testing.T) {
	tests := []struct {
		testName string
		cfg      *Configuration
	}{
		{
			testName: "negative_offset",
			cfg: &Configuration{Functions: []FunctionTrace{
				{Name: "A", Invocations: []int64{0, -1}},
			}},
		},
		{
			testName: "missing_name",
			cfg: &Configuration{Functions: []FunctionTrace{
				{Invocations: []int64{0}},
			}},
		},
		{
			testName: "duplicate_name",
			cfg: &Configuration{Functions: []FunctionTrace{
				{Name: "A", Invocations: []int64{0}},
				{Name: "A", Invocations: []int64{5}},
			}},
		},
	}

	for _, test := range tests {
		t.Run(test.testName, func(t *testing.T) {
			result, err := Build(test.cfg)

			var scheduleErr *common.ScheduleConfigError
			assert.True(t, errors.As(err, &scheduleErr))
			assert.Nil(t, result)
		})
	}
}

func TestParseConfiguration(t *testing.T) {
	cfg, err := ParseConfiguration([]byte(`{"functions": [{"name": "A", "invocations": [0, 1000]}]}`))
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, cfg.FunctionNames())
	assert.Equal(t, []int64{0, 1000}, cfg.Functions[0].Invocations)

	malformed := [][]byte{
		[]byte(`{"functions": [{"name": "A", "invocations": [0, "x"]}]}`),
		[]byte(`{"functions": [{"name": "A", "invocations": [1.5]}]}`),
		[]byte(`{"functions": `),
		[]byte(`{"fns": []}`),
	}
	for _, data := range malformed {
		_, err := ParseConfiguration(data)

		var scheduleErr *common.ScheduleConfigError
		assert.True(t, errors.As(err, &scheduleErr), string(data))
	}
}

func TestReadAndWriteConfiguration(t *testing.T) {
	path := t.TempDir() + "/schedule.json"
	cfg := &Configuration{Functions: []FunctionTrace{{Name: "A", Invocations: []int64{0, 7}}}}

	require.NoError(t, WriteConfiguration(path, cfg))

	read, err := ReadConfiguration(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, read)

	_, err = ReadConfiguration(t.TempDir() + "/missing.json")
	var scheduleErr *common.ScheduleConfigError
	assert.True(t, errors.As(err, &scheduleErr))
}

func randomConfiguration(rng *rand.Rand) *Configuration {
	cfg := &Configuration{}

	functions := rng.Intn(6)
	for f := 0; f < functions; f++ {
		trace := FunctionTrace{Name: string(rune('a' + f))}

		invocations := rng.Intn(50)
		for i := 0; i < invocations; i++ {
			// small range to provoke ties
			trace.Invocations = append(trace.Invocations, rng.Int63n(20)*common.OneSecondInNanoseconds/10)
		}

		cfg.Functions = append(cfg.Functions, trace)
	}

	return cfg
}

type traceKey struct {
	offset   time.Duration
	function string
}

func TestBuildPreservesMultiset(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		cfg := randomConfiguration(rng)

		result, err := Build(cfg)
		require.NoError(t, err)

		assert.True(t, sort.SliceIsSorted(result, func(i, j int) bool {
			return result[i].Offset < result[j].Offset
		}))

		expected := map[traceKey]int{}
		for _, function := range cfg.Functions {
			for _, offset := range function.Invocations {
				expected[traceKey{time.Duration(offset), function.Name}]++
			}
		}

		actual := map[traceKey]int{}
		for i, e := range result {
			assert.Equal(t, i, e.Index)
			actual[traceKey{e.Offset, e.Function}]++
		}

		assert.Equal(t, expected, actual)
	}
}
