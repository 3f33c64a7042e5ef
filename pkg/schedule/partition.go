package schedule

import (
	"fmt"
	"sort"

	"github.com/vhive-serverless/replayer/pkg/common"
)

// Partition assigns entry i to worker i mod workers. Each partition stays sorted because it is a stride
// over a sorted schedule.
func Partition(s common.Schedule, workers int) ([]common.Schedule, error) {
	if workers < 1 {
		return nil, fmt.Errorf("cannot partition schedule across %d workers", workers)
	}

	partitions := make([]common.Schedule, workers)
	for w := range partitions {
		partitions[w] = make(common.Schedule, 0, len(s)/workers+1)
	}

	for i, entry := range s {
		partitions[i%workers] = append(partitions[i%workers], entry)
	}

	return partitions, nil
}

// Recombine merges partitions back into one schedule ordered by the original index.
func Recombine(partitions []common.Schedule) common.Schedule {
	total := 0
	for _, p := range partitions {
		total += len(p)
	}

	result := make(common.Schedule, 0, total)
	for _, p := range partitions {
		result = append(result, p...)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Index < result[j].Index
	})

	return result
}
