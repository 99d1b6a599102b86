package flow

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func intSet(ns ...int) map[int]struct{} {
	out := make(map[int]struct{}, len(ns))
	for _, n := range ns {
		out[n] = struct{}{}
	}
	return out
}

func TestReachableAndTopoSort(t *testing.T) {
	graph := map[int]map[int]struct{}{
		6: intSet(4, 5),
		5: intSet(2),
		4: intSet(2),
		3: intSet(2),
		2: intSet(1),
	}

	require.Equal(t, intSet(1, 2, 4, 5, 6), reachable(intSet(6), graph))
	require.Equal(t, intSet(1, 2, 4), reachable(intSet(4), graph))

	full, err := topoSort(graph)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5, 6}, full)

	cases := []struct {
		name  string
		start map[int]struct{}
		want  []int
	}{
		{"from 6", intSet(6), []int{1, 2, 4, 5, 6}},
		{"from 4", intSet(4), []int{1, 2, 4}},
		{"from 3", intSet(3), []int{1, 2, 3}},
		{"from 3 and 4", intSet(3, 4), []int{1, 2, 3, 4}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := topoSortSubgraph(c.start, graph)
			require.NoError(t, err)
			require.Equal(t, c.want, got)
		})
	}
}

func TestTopoSortDetectsCycle(t *testing.T) {
	graph := map[int]map[int]struct{}{
		1: intSet(2),
		2: intSet(1),
	}
	_, err := topoSortSubgraph(intSet(1, 2), graph)
	require.Error(t, err)
	var cycleErr *CycleDetectedError
	require.ErrorAs(t, err, &cycleErr)
}

func TestTopoSortSubgraphRestrictsToReachable(t *testing.T) {
	// Node 9 is disjoint from the subgraph reachable from 3; even though it
	// has its own (acyclic) dependency, it must not appear in the result.
	graph := map[int]map[int]struct{}{
		3: intSet(2),
		2: intSet(1),
		9: intSet(8),
	}
	got, err := topoSortSubgraph(intSet(3), graph)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3}, got)
}

func TestReachableIncludesIsolatedStartNode(t *testing.T) {
	graph := map[int]map[int]struct{}{}
	require.Equal(t, intSet(42), reachable(intSet(42), graph))
}
