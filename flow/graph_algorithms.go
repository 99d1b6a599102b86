package flow

import "sort"

// This file implements the small set of graph-theory primitives the engine
// needs. For these functions a node is an int and a graph is a mapping of
// node to the set of nodes it directly depends on.

// reachable computes the transitive closure of dependencies starting from
// startNodes, following the dependencies mapping. Nodes in startNodes are
// always included.
func reachable(startNodes map[int]struct{}, dependencies map[int]map[int]struct{}) map[int]struct{} {
	visited := make(map[int]struct{}, len(startNodes))
	toCheck := make([]int, 0, len(startNodes))
	for n := range startNodes {
		toCheck = append(toCheck, n)
	}

	for len(toCheck) > 0 {
		n := toCheck[len(toCheck)-1]
		toCheck = toCheck[:len(toCheck)-1]
		if _, ok := visited[n]; ok {
			continue
		}
		visited[n] = struct{}{}
		for dep := range dependencies[n] {
			if _, ok := visited[dep]; !ok {
				toCheck = append(toCheck, dep)
			}
		}
	}
	return visited
}

// topoSort performs a Kahn-style topological sort over dependencies, where
// dependencies[n] is the set of nodes n directly depends on (must appear
// before n in the result).
func topoSort(dependencies map[int]map[int]struct{}) ([]int, error) {
	nodes := make(map[int]struct{})
	for n, deps := range dependencies {
		nodes[n] = struct{}{}
		for d := range deps {
			nodes[d] = struct{}{}
		}
	}

	inDegree := make(map[int]int, len(nodes))
	reverse := make(map[int]map[int]struct{}, len(nodes))
	for n := range nodes {
		inDegree[n] = 0
	}
	for n, deps := range dependencies {
		for dep := range deps {
			if reverse[dep] == nil {
				reverse[dep] = make(map[int]struct{})
			}
			reverse[dep][n] = struct{}{}
			inDegree[n]++
		}
	}

	// Deterministic ordering: process in ascending node-id order so the
	// result is stable for a given input, per spec.md's ordering contract.
	ordered := sortedInts(nodes)
	queue := make([]int, 0, len(ordered))
	for _, n := range ordered {
		if inDegree[n] == 0 {
			queue = append(queue, n)
		}
	}

	var topo []int
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		topo = append(topo, n)

		neighbors := sortedInts(reverse[n])
		for _, neighbor := range neighbors {
			inDegree[neighbor]--
			if inDegree[neighbor] == 0 {
				queue = append(queue, neighbor)
			}
		}
	}

	if len(topo) != len(nodes) {
		return nil, &CycleDetectedError{Reachable: len(nodes), Ordered: len(topo)}
	}
	return topo, nil
}

// topoSortSubgraph restricts dependencies to the nodes reachable from
// startNodes, then returns them in topological order (dependencies before
// dependents). Returns CycleDetectedError if the restricted subgraph has a
// cycle.
func topoSortSubgraph(startNodes map[int]struct{}, dependencies map[int]map[int]struct{}) ([]int, error) {
	subgraphNodes := reachable(startNodes, dependencies)

	subgraph := make(map[int]map[int]struct{}, len(subgraphNodes))
	for n := range subgraphNodes {
		deps := make(map[int]struct{})
		for d := range dependencies[n] {
			if _, ok := subgraphNodes[d]; ok {
				deps[d] = struct{}{}
			}
		}
		subgraph[n] = deps
	}

	return topoSort(subgraph)
}

// sortedInts returns the keys of the given set in ascending order.
func sortedInts(set map[int]struct{}) []int {
	out := make([]int, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Ints(out)
	return out
}
