package flow

import (
	"errors"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

// sumIntProcessor mirrors the original's SumInt test node: it requires two
// integer arguments and counts how many times Process has run.
type sumIntProcessor struct {
	BaseProcessor
	callCount *int
}

func newSumIntFactory() (ProcessorFactory, *int) {
	callCount := new(int)
	factory := func() Processor {
		return &sumIntProcessor{
			BaseProcessor: BaseProcessor{
				ProcessorName: "SumInt",
				Sig: Signature{
					{Name: "a", Type: IntType(), Required: true},
					{Name: "b", Type: IntType(), Required: true},
				},
			},
			callCount: callCount,
		}
	}
	return factory, callCount
}

func (p *sumIntProcessor) Process(args map[string]any) (any, error) {
	*p.callCount++
	return args["a"].(int) + args["b"].(int), nil
}

// incProcessor mirrors the original's Inc test node, with a constructor
// argument captured by the factory closure (constructor_kwargs in Python).
type incProcessor struct {
	BaseProcessor
	howMuch int
}

func newIncFactory(howMuch int) ProcessorFactory {
	return func() Processor {
		return &incProcessor{BaseProcessor: BaseProcessor{ProcessorName: "Inc"}, howMuch: howMuch}
	}
}

func (p *incProcessor) Process(args map[string]any) (any, error) {
	return args["a"].(int) + p.howMuch, nil
}

// decrementProcessor mirrors the original's _decrement_graph TestNode: it
// subtracts one and fails once the result reaches zero or below.
type decrementProcessor struct{}

func decrementFactory() ProcessorFactory {
	return func() Processor { return decrementProcessor{} }
}

func (decrementProcessor) Name() string { return "TestNode" }

func (decrementProcessor) Process(args map[string]any) (any, error) {
	a, ok := args["a"].(int)
	if !ok {
		// An upstream result reloaded from a persisted document is a float64.
		a = int(args["a"].(float64))
	}
	result := a - 1
	if result <= 0 {
		return nil, errors.New("test error")
	}
	return result, nil
}

func (decrementProcessor) ValidateArgs(map[string]any) error { return nil }
func (decrementProcessor) Finalize()                         {}

// newDecrementGraph builds a chain of numNodes nodes: a constant feeding a
// run of decrementProcessor nodes, matching original_source's
// _decrement_graph helper.
func newDecrementGraph(t *testing.T, numNodes int) (*ProcessGraph, []*GraphNode) {
	t.Helper()
	g := NewProcessGraph()
	n1, err := g.AddConstantNode(1, "test_constant", nil)
	require.NoError(t, err)
	nodes := []*GraphNode{n1}
	for i := 2; i <= numNodes; i++ {
		node, err := g.AddNode(i, decrementFactory(), map[string]any{"a": nodes[len(nodes)-1]})
		require.NoError(t, err)
		nodes = append(nodes, node)
	}
	return g, nodes
}

func resultsWithoutMeta(g *ProcessGraph) map[int]map[string]any {
	out := map[int]map[string]any{}
	for id, pn := range g.ResultsDict() {
		out[id] = map[string]any{"name": pn.Name, "output": pn.Output, "version": pn.Version}
	}
	return out
}

func TestSimpleGraphExecution(t *testing.T) {
	g := NewProcessGraph()
	sumFactory, _ := newSumIntFactory()
	node1, err := g.AddNode(1, sumFactory, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	sumFactory2, _ := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory2, map[string]any{"a": node1, "b": node1}, WithVersion(2))
	require.NoError(t, err)

	result, err := g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)

	expected := map[int]map[string]any{
		1: {"name": "SumInt", "output": 3, "version": 0},
		2: {"name": "SumInt", "output": 6, "version": 2},
	}
	require.Equal(t, expected, resultsWithoutMeta(g))
}

func TestComputeOnlyOnce(t *testing.T) {
	g := NewProcessGraph()
	sumFactory1, count1 := newSumIntFactory()
	node1, err := g.AddNode(1, sumFactory1, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	sumFactory2, count2 := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory2, map[string]any{"a": node1, "b": 3}, WithInvalidateBefore(nowSeconds()+60*600))
	require.NoError(t, err)

	result, err := g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 1, *count1)
	require.Equal(t, 1, *count2)

	// invalidate_before is already in the far future, so node2 always needs
	// update; node1 stays cached.
	result, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 1, *count1)
	require.Equal(t, 2, *count2)

	g.Reset()
	result, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 2, *count1)
	require.Equal(t, 3, *count2)

	// ReleaseResources also drops cached results, so both nodes recompute.
	g.ReleaseResources()
	result, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 3, *count1)
	require.Equal(t, 4, *count2)
}

func TestDependencyUpdated(t *testing.T) {
	g := NewProcessGraph()
	sumFactory1, count1 := newSumIntFactory()
	node1, err := g.AddNode(1, sumFactory1, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	sumFactory2, count2 := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory2, map[string]any{"a": node1, "b": 3})
	require.NoError(t, err)

	result, err := g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 1, *count1)
	require.Equal(t, 1, *count2)

	// No dependency changed: nothing recomputes.
	result, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 1, *count1)
	require.Equal(t, 1, *count2)

	// A newer upstream timestamp forces node2 (but not node1) to recompute.
	require.NotNil(t, node2.resultTimestamp)
	newer := *node2.resultTimestamp + 1
	node1.resultTimestamp = &newer
	result, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 1, *count1)
	require.Equal(t, 2, *count2)
}

func TestDuplicateNodeID(t *testing.T) {
	g := NewProcessGraph()
	sumFactory, _ := newSumIntFactory()
	_, err := g.AddNode(1, sumFactory, map[string]any{"a": 1, "b": Tuple{2}})
	require.NoError(t, err)
	_, err = g.AddNode(1, sumFactory, map[string]any{"a": 1, "b": Tuple{2}})
	require.Error(t, err)
	var unicityErr *UnicityViolationError
	require.True(t, errors.As(err, &unicityErr))
}

func TestTypeValidation(t *testing.T) {
	g := NewProcessGraph()
	sumFactory, _ := newSumIntFactory()
	node, err := g.AddNode(1, sumFactory, map[string]any{"a": 1, "b": Tuple{2}})
	require.NoError(t, err)
	_, err = g.RunUpto(node)
	require.Error(t, err)
	var mismatch *TypeMismatchError
	require.True(t, errors.As(err, &mismatch))

	sumFactory2, _ := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory2, map[string]any{"a": Tuple{1}, "b": 2})
	require.NoError(t, err)
	_, err = g.RunUpto(node2)
	require.Error(t, err)
	require.True(t, errors.As(err, &mismatch))
}

func TestConstantNodeSetValue(t *testing.T) {
	g := NewProcessGraph()
	node1, err := g.AddConstantNode(1, "test_constant", nil)
	require.NoError(t, err)
	require.NoError(t, node1.SetValue("hello"))
	result, err := g.RunUpto(node1)
	require.NoError(t, err)
	require.Equal(t, "hello", result)

	g.Reset()
	require.NoError(t, node1.SetValue("world"))
	result, err = g.RunUpto(node1)
	require.NoError(t, err)
	require.Equal(t, "world", result)
}

func TestPersistencePartial(t *testing.T) {
	g := NewProcessGraph()
	constNode, err := g.AddConstantNode(1, "test_constant", nil)
	require.NoError(t, err)
	require.NoError(t, constNode.SetValue(2))
	_, err = g.RunUpto(constNode)
	require.NoError(t, err)

	encoded, err := encodePersistedDocument(g.ResultsDict())
	require.NoError(t, err)
	decoded, err := decodePersistedDocument(encoded)
	require.NoError(t, err)

	g2 := NewProcessGraph()
	const2, err := g2.AddConstantNode(1, "test_constant", nil)
	require.NoError(t, err)
	require.NoError(t, const2.SetValue(2))
	sumFactory, _ := newSumIntFactory()
	sumNode, err := g2.AddNode(2, sumFactory, map[string]any{"a": 1, "b": const2})
	require.NoError(t, err)
	for id, pn := range decoded {
		if node, ok := g2.nodes[id]; ok {
			node.FromPersist(pn)
		}
	}
	result, err := g2.RunUpto(sumNode)
	require.NoError(t, err)
	require.EqualValues(t, 3, result)
}

func TestPersistenceSurvivesRestart(t *testing.T) {
	makeGraph := func() (*ProcessGraph, *GraphNode, *int) {
		g := NewProcessGraph()
		sumFactory1, _ := newSumIntFactory()
		node1, err := g.AddNode(2, sumFactory1, map[string]any{"a": 1, "b": 2})
		require.NoError(t, err)
		sumFactory2, count2 := newSumIntFactory()
		node2, err := g.AddNode(3, sumFactory2, map[string]any{"a": node1, "b": node1})
		require.NoError(t, err)
		return g, node2, count2
	}

	g, finalNode, _ := makeGraph()
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, g.Persist(path))
	result, err := g.RunUpto(finalNode)
	require.NoError(t, err)

	g2, finalNode2, count2 := makeGraph()
	require.NoError(t, g2.Persist(path))
	result2, err := g2.RunUpto(finalNode2)
	require.NoError(t, err)
	require.EqualValues(t, result, result2)

	// No new computation should have happened.
	require.Equal(t, 0, *count2)
}

func TestGraphStructure(t *testing.T) {
	g := NewProcessGraph()
	sumFactory1, _ := newSumIntFactory()
	node1, err := g.AddNode(1, sumFactory1, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	sumFactory2, _ := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory2, map[string]any{"a": node1, "b": node1})
	require.NoError(t, err)
	sumFactory3, _ := newSumIntFactory()
	node3, err := g.AddNode(3, sumFactory3, map[string]any{"a": node1, "b": node2})
	require.NoError(t, err)

	require.Equal(t, map[int]struct{}{}, g.dependencies[1])
	require.Equal(t, intSet(1), g.dependencies[2])
	require.Equal(t, intSet(1, 2), g.dependencies[3])

	order, err := g.topologicalOrder([]*GraphNode{node3})
	require.NoError(t, err)
	require.Equal(t, []*GraphNode{node1, node2, node3}, order)

	order, err = g.topologicalOrder([]*GraphNode{node2})
	require.NoError(t, err)
	require.Equal(t, []*GraphNode{node1, node2}, order)

	order, err = g.topologicalOrder([]*GraphNode{node2, node3})
	require.NoError(t, err)
	require.Equal(t, []*GraphNode{node1, node2, node3}, order)
}

func TestNodeWithInitArgs(t *testing.T) {
	g := NewProcessGraph()
	node1, err := g.AddNode(1, newIncFactory(20), map[string]any{"a": 5})
	require.NoError(t, err)
	result, err := g.RunUpto(node1)
	require.NoError(t, err)
	require.Equal(t, 25, result)
}

func TestManualOverride(t *testing.T) {
	g := NewProcessGraph()
	sumFactory1, _ := newSumIntFactory()
	node1, err := g.AddNode(1, sumFactory1, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	sumFactory2, _ := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory2, map[string]any{"a": node1, "b": 3})
	require.NoError(t, err)
	sumFactory3, _ := newSumIntFactory()
	node3, err := g.AddNode(3, sumFactory3, map[string]any{"a": node2, "b": 4})
	require.NoError(t, err)

	result, err := g.RunUpto(node3)
	require.NoError(t, err)
	require.Equal(t, 10, result)

	node2.overrideFn = func(originalResult any, filledInputs map[string]any) any {
		require.Equal(t, 6, originalResult)
		require.Equal(t, map[string]any{"a": 3, "b": 3}, filledInputs)
		return 7
	}
	node3.Reset()
	result, err = g.RunUpto(node3)
	require.NoError(t, err)
	require.Equal(t, 11, result)
}

func TestRecomputeNewVersion(t *testing.T) {
	g := NewProcessGraph()
	sumFactory1, _ := newSumIntFactory()
	node1, err := g.AddNode(1, sumFactory1, map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	sumFactory2, count2 := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory2, map[string]any{"a": node1, "b": node1})
	require.NoError(t, err)

	result, err := g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 1, *count2)

	node2.FromPersist(node2.ToPersist())
	result, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 1, *count2)

	node2.FromPersist(node2.ToPersist())
	node2.version = 1
	result, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 6, result)
	require.Equal(t, 2, *count2)
}

func TestVolatile(t *testing.T) {
	g := NewProcessGraph()
	node1, err := g.AddConstantNode(1, "test_constant", nil)
	require.NoError(t, err)
	require.NoError(t, node1.SetValue(2))
	sumFactory, count := newSumIntFactory()
	node2, err := g.AddNode(2, sumFactory, map[string]any{"a": node1, "b": node1})
	require.NoError(t, err)

	_, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 4, node2.result)
	require.Equal(t, 1, *count)
	require.Equal(t, map[int]map[string]any{
		1: {"name": "test_constant", "output": 2, "version": 0},
		2: {"name": "SumInt", "output": 4, "version": 0},
	}, resultsWithoutMeta(g))

	require.NoError(t, node1.SetValue(3))
	_, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 1, *count)
	require.Equal(t, 4, node2.result)
	require.Equal(t, map[int]map[string]any{
		1: {"name": "test_constant", "output": 3, "version": 0},
		2: {"name": "SumInt", "output": 4, "version": 0},
	}, resultsWithoutMeta(g))

	// If the downstream node recomputes for any other reason, it picks up
	// the volatile node's latest value.
	node2.version = 1
	_, err = g.RunUpto(node2)
	require.NoError(t, err)
	require.Equal(t, 2, *count)
	require.Equal(t, 6, node2.result)
	require.Equal(t, map[int]map[string]any{
		1: {"name": "test_constant", "output": 3, "version": 0},
		2: {"name": "SumInt", "output": 6, "version": 1},
	}, resultsWithoutMeta(g))
}

func TestBatchProcessNeedsPersist(t *testing.T) {
	g, nodes := newDecrementGraph(t, 10)
	prepFn := func(index int, item int) error {
		return nodes[0].SetValue(item)
	}
	_, err := ProcessBatch(g, []int{11, 9, 5, 10}, []*GraphNode{nodes[len(nodes)-1]}, prepFn, nil, nodes, true)
	require.Error(t, err)
	var prepErr *PrepMissingPersistError
	require.True(t, errors.As(err, &prepErr))
}

func TestBatchProcess(t *testing.T) {
	tempDir := t.TempDir()
	g, nodes := newDecrementGraph(t, 10)

	prepFn := func(index int, item int) error {
		if err := nodes[0].SetValue(item); err != nil {
			return err
		}
		return g.Persist(filepath.Join(tempDir, "persist"+strconv.Itoa(index)))
	}

	stats, err := ProcessBatch(g, []int{10, 9, 21, 5}, []*GraphNode{nodes[len(nodes)-1]}, prepFn, nil, nodes, true)
	require.NoError(t, err)

	require.NoError(t, g.Persist(filepath.Join(tempDir, "persist2")))
	expected := []any{21, 20, 19, 18, 17, 16, 15, 14, 13, 12}
	for i, node := range nodes {
		require.EqualValues(t, expected[i], g.ResultsDict()[node.id].Output)
	}

	require.Equal(t, 2, stats.Completed)
	failedItems := map[int]struct{}{}
	for _, f := range stats.Failures {
		failedItems[f.Item] = struct{}{}
	}
	require.Equal(t, map[int]struct{}{9: {}, 5: {}}, failedItems)
}

func TestBatchProcessFailFast(t *testing.T) {
	tempDir := t.TempDir()
	g, nodes := newDecrementGraph(t, 5)
	prepFn := func(index int, item int) error {
		if err := nodes[0].SetValue(item); err != nil {
			return err
		}
		return g.Persist(filepath.Join(tempDir, "persist"+strconv.Itoa(index)))
	}
	_, err := ProcessBatch(g, []int{11, 2, 1, 10}, []*GraphNode{nodes[len(nodes)-1]}, prepFn, nil, nodes, false)
	require.Error(t, err)
	var failure *ProcessorFailureError
	require.True(t, errors.As(err, &failure))
}

func TestBatchProcessFailFastNoFailures(t *testing.T) {
	tempDir := t.TempDir()
	g, nodes := newDecrementGraph(t, 5)
	prepFn := func(index int, item int) error {
		if err := nodes[0].SetValue(item); err != nil {
			return err
		}
		return g.Persist(filepath.Join(tempDir, "persist"+strconv.Itoa(index)))
	}
	_, err := ProcessBatch(g, []int{11, 10}, []*GraphNode{nodes[len(nodes)-1]}, prepFn, nil, nodes, false)
	require.NoError(t, err)
}
