package flow

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hirak99/video-summarizer/log"
)

// GraphOption configures a ProcessGraph at construction time.
type GraphOption func(*ProcessGraph)

// WithGraphDryRun puts every node added afterwards into dry-run mode and
// suppresses all persistence writes (spec.md §9).
func WithGraphDryRun() GraphOption {
	return func(g *ProcessGraph) { g.dryRun = true }
}

// ProcessGraph is the engine's node registry and traversal driver (spec.md
// §4.5). The zero value is not usable; construct with NewProcessGraph.
type ProcessGraph struct {
	dryRun bool

	nodes        map[int]*GraphNode
	dependencies map[int]map[int]struct{}

	autoSavePath string
}

// NewProcessGraph constructs an empty graph.
func NewProcessGraph(opts ...GraphOption) *ProcessGraph {
	g := &ProcessGraph{
		nodes:        map[int]*GraphNode{},
		dependencies: map[int]map[int]struct{}{},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// AddNode registers a new node with the given id, processor factory, and
// named inputs. An input value of type *GraphNode is treated as a dependency
// edge; any other value is a literal. Returns *UnicityViolationError if id
// is already registered.
func (g *ProcessGraph) AddNode(id int, factory ProcessorFactory, inputs map[string]any, opts ...NodeOption) (*GraphNode, error) {
	if _, exists := g.nodes[id]; exists {
		return nil, &UnicityViolationError{ID: id}
	}

	node := &GraphNode{
		id:      id,
		version: 0,
		factory: factory,
		inputs:  inputs,
		dryRun:  g.dryRun,
	}
	for _, opt := range opts {
		opt(node)
	}
	node.onResult = g.onNodeResult

	deps := map[int]struct{}{}
	for name, input := range inputs {
		upstream, isNode := input.(*GraphNode)
		if !isNode {
			continue
		}
		if _, ok := g.nodes[upstream.id]; !ok {
			return nil, fmt.Errorf("input %q of node %d references node %d, which is not in this graph", name, id, upstream.id)
		}
		deps[upstream.id] = struct{}{}
	}

	g.nodes[id] = node
	g.dependencies[id] = deps
	return node, nil
}

// AddConstantNode registers a Constant adapter node (spec.md §4.6): it has a
// single input named "value", writable via GraphNode.SetValue, and returns
// it verbatim. If valueType is non-nil the value is type-checked.
//
// Constant nodes are passive by default: they are re-executed on every
// traversal that reaches them (so SetValue takes effect immediately) but
// never force a downstream node to recompute just because the constant's
// value changed.
func (g *ProcessGraph) AddConstantNode(id int, name string, valueType *TypeDescriptor, opts ...NodeOption) (*GraphNode, error) {
	opts = append([]NodeOption{WithDefaultArg("value"), WithDisplayName(name), WithPassive()}, opts...)
	return g.AddNode(id, NewConstantFactory(name, valueType), map[string]any{"value": nil}, opts...)
}

// Persist resets every node's cached result, then loads any document already
// present at path, rehydrating every node whose id is found there. From then
// on, every node result produced by this graph triggers a full rewrite of
// path (spec.md §4.5, §6.1).
func (g *ProcessGraph) Persist(path string) error {
	g.Reset()

	data, err := readDocumentIfExists(path)
	if err != nil {
		return err
	}
	if data != nil {
		doc, err := decodePersistedDocument(data)
		if err != nil {
			return err
		}
		for id, persisted := range doc {
			node, ok := g.nodes[id]
			if !ok {
				continue
			}
			node.FromPersist(persisted)
		}
	}

	g.autoSavePath = path
	return nil
}

// onNodeResult is wired as every node's result callback. It triggers a full
// rewrite of the bound persistence path, unless the graph or the node is in
// dry-run mode or no path has been bound.
func (g *ProcessGraph) onNodeResult(n *GraphNode, _ bool) {
	if g.dryRun || n.dryRun || g.autoSavePath == "" {
		return
	}
	if err := g.saveTo(g.autoSavePath); err != nil {
		log.Errorf("Failed to save graph state to %s: %v", g.autoSavePath, err)
	}
}

func (g *ProcessGraph) saveTo(path string) error {
	logPersistSave(path)
	data, err := encodePersistedDocument(g.ResultsDict())
	if err != nil {
		return err
	}
	return writeDocumentAtomically(path, data)
}

// ResultsDict returns the persistable document fragment for every node that
// currently has a result.
func (g *ProcessGraph) ResultsDict() map[int]PersistedNode {
	out := map[int]PersistedNode{}
	for id, node := range g.nodes {
		if node.HasResult() {
			out[id] = node.ToPersist()
		}
	}
	return out
}

// topologicalOrder returns the nodes reachable from targets, in a
// dependency-respecting order, or a *CycleDetectedError if the subgraph is
// not acyclic.
func (g *ProcessGraph) topologicalOrder(targets []*GraphNode) ([]*GraphNode, error) {
	starts := make(map[int]struct{}, len(targets))
	for _, t := range targets {
		starts[t.id] = struct{}{}
	}
	order, err := topoSortSubgraph(starts, g.dependencies)
	if err != nil {
		return nil, err
	}
	out := make([]*GraphNode, len(order))
	for i, id := range order {
		out[i] = g.nodes[id]
	}
	return out, nil
}

// RunUpto runs every node reachable from targets, in topological order, and
// returns the result of the last node in that order (spec.md §4.5). Nodes that are
// already up to date are not recomputed.
func (g *ProcessGraph) RunUpto(targets ...*GraphNode) (any, error) {
	order, err := g.topologicalOrder(targets)
	if err != nil {
		return nil, err
	}
	var last any
	for _, node := range order {
		result, err := node.internalRun()
		if err != nil {
			return nil, err
		}
		last = result
	}
	return last, nil
}

// Reset drops every node's cached result, keeping processor instances alive.
func (g *ProcessGraph) Reset() {
	for _, n := range g.nodes {
		n.Reset()
	}
}

// ReleaseResources finalizes and drops every node's processor instance.
func (g *ProcessGraph) ReleaseResources() {
	for _, n := range g.nodes {
		n.ReleaseResources()
	}
}

// PrepFunc configures a graph for a single batch item before its nodes run.
// It must bind a per-item persistence path via (*ProcessGraph).Persist, or
// ProcessBatch fails fast with *PrepMissingPersistError (spec.md §4.5).
type PrepFunc[T any] func(itemIndex int, item T) error

// PostFunc runs after a batch item has completed the current node, e.g. to
// advance a progress bar.
type PostFunc[T any] func(itemIndex int, item T) error

// BatchFailure records one item's fault when fault-tolerant batch processing
// isolates a ProcessorFailureError instead of aborting the whole batch.
type BatchFailure[T any] struct {
	ItemIndex  int
	Item       T
	FailedNode *GraphNode
	Err        error
}

// BatchStats summarizes one ProcessBatch call.
type BatchStats[T any] struct {
	Completed int
	Failures  []BatchFailure[T]
}

// ProcessBatch drives breadth-first, node-major/item-minor traversal over
// items (spec.md §4.5, §5): every item is advanced through one node before
// any item advances to the next. This is a standalone generic function,
// rather than a ProcessGraph method, because Go methods cannot introduce
// their own type parameters.
//
// prepFn is invoked for every item before each node runs, and must persist
// the graph to that item's storage location. If faultTolerant is true, a
// ProcessorFailureError on one item removes it from the rest of the batch
// instead of aborting; every other error class is always fatal, matching
// the teacher's narrow recover-from-known-errors style (callback/error
// handling throughout the teacher's run loops).
func ProcessBatch[T any](
	g *ProcessGraph,
	items []T,
	finalNodes []*GraphNode,
	prepFn PrepFunc[T],
	postFn PostFunc[T],
	releaseAfterNodes []*GraphNode,
	faultTolerant bool,
) (*BatchStats[T], error) {
	batchID := uuid.NewString()
	log.Infof("Starting batch %s: %d items over %d final node(s)", batchID, len(items), len(finalNodes))

	order, err := g.topologicalOrder(finalNodes)
	if err != nil {
		return nil, err
	}

	releaseAfter := make(map[*GraphNode]struct{}, len(releaseAfterNodes))
	for _, n := range releaseAfterNodes {
		releaseAfter[n] = struct{}{}
	}

	stats := &BatchStats[T]{}
	failed := map[int]struct{}{}

	for nodeIndex, node := range order {
		isLastNode := nodeIndex == len(order)-1
		for itemIndex, item := range items {
			if _, skip := failed[itemIndex]; skip {
				continue
			}

			g.autoSavePath = ""
			if prepFn != nil {
				if err := prepFn(itemIndex, item); err != nil {
					return nil, fmt.Errorf("prep failed for item %d: %w", itemIndex, err)
				}
			}
			if g.autoSavePath == "" {
				return nil, &PrepMissingPersistError{ItemIndex: itemIndex}
			}

			_, err := node.internalRun()
			if err != nil {
				var failure *ProcessorFailureError
				if faultTolerant && errors.As(err, &failure) {
					log.Warnf("Item %d failed at node %d (%s), isolating: %v", itemIndex, node.id, node.Name(), failure.Err)
					failed[itemIndex] = struct{}{}
					stats.Failures = append(stats.Failures, BatchFailure[T]{
						ItemIndex:  itemIndex,
						Item:       item,
						FailedNode: node,
						Err:        failure.Err,
					})
					continue
				}
				return nil, err
			}

			if isLastNode {
				stats.Completed++
			}
			if postFn != nil {
				if err := postFn(itemIndex, item); err != nil {
					return nil, fmt.Errorf("post failed for item %d: %w", itemIndex, err)
				}
			}
		}
		if _, ok := releaseAfter[node]; ok {
			g.ReleaseResources()
		}
	}

	g.ReleaseResources()
	log.Infof("Finished batch %s: completed=%d failed=%d", batchID, stats.Completed, len(stats.Failures))
	return stats, nil
}
