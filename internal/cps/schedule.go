package cps

import (
	"sort"

	"github.com/kunsheng-liu/percept-engine/internal/types"
)

// Schedule sorts tasks by descending priority (spec.md §4.4.2). A stable
// sort is used, though not required by the design, to keep test output
// deterministic when priorities tie.
func Schedule(tasks []types.InferenceTask) []types.InferenceTask {
	sort.SliceStable(tasks, func(i, j int) bool { return tasks[i].Priority > tasks[j].Priority })
	return tasks
}
