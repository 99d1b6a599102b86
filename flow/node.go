package flow

import (
	"reflect"
	"time"

	"github.com/hirak99/video-summarizer/log"
)

// OverrideFunc is a manual-correction escape hatch, invoked with a node's
// original result and its own filled-in inputs, returning a (possibly
// unchanged) replacement result. It is pure from the engine's perspective:
// the engine only ever observes its return value. See spec.md §9 "Override
// hook".
type OverrideFunc func(originalResult any, filledInputs map[string]any) any

// NodeOption configures a GraphNode at AddNode time. Modeled directly on the
// teacher's functional-options pattern for graph nodes (graph/state_graph.go
// Option/WithName/WithDescription).
type NodeOption func(*GraphNode)

// WithVersion sets the user-controlled logic version of the node's
// processor (spec.md §3). Defaults to 0 if not set.
func WithVersion(version any) NodeOption {
	return func(n *GraphNode) { n.version = version }
}

// WithDisplayName overrides the processor's own Name() for persistence and
// logging, without instantiating the processor. If never set, the node
// falls back to instantiating its processor the first time a name is
// needed.
func WithDisplayName(name string) NodeOption {
	return func(n *GraphNode) { n.displayName = name }
}

// WithInvalidateBefore sets the epoch-seconds threshold before which any
// cached result is considered stale (spec.md §3).
func WithInvalidateBefore(epochSeconds float64) NodeOption {
	return func(n *GraphNode) { n.invalidateBefore = epochSeconds }
}

// WithForce guarantees the node is recomputed on every reachable traversal,
// by pushing invalidateBefore far into the future (spec.md §4.5 add_node).
func WithForce() NodeOption {
	return func(n *GraphNode) { n.invalidateBefore = nowSeconds() + farFutureOffsetSeconds }
}

// WithPassive marks the node passive: always re-executed on traversal, but
// never triggers downstream invalidation (spec.md §3).
func WithPassive() NodeOption {
	return func(n *GraphNode) { n.passive = true }
}

// WithDefaultArg names the single input written by SetValue.
func WithDefaultArg(arg string) NodeOption {
	return func(n *GraphNode) { n.defaultArg = arg }
}

// WithOverrideFunc installs a manual-override hook for this node.
func WithOverrideFunc(fn OverrideFunc) NodeOption {
	return func(n *GraphNode) { n.overrideFn = fn }
}

// WithDryRun suppresses Process invocation, argument validation, and the
// persistence write that a new result would otherwise trigger for this node.
// Unless a name is configured via WithDisplayName, the processor is still
// constructed the first time the node's name is needed (for example by the
// staleness log lines); its Process method is never called.
func WithDryRun() NodeOption {
	return func(n *GraphNode) { n.dryRun = true }
}

// farFutureOffsetSeconds mirrors the original's "100 years from now" force
// threshold (original_source/src/flow/process_graph.py).
const farFutureOffsetSeconds = 100 * 365 * 24 * 60 * 60

func nowSeconds() float64 {
	return float64(time.Now().UnixNano()) / 1e9
}

// GraphNode is the engine's internal per-node record (spec.md §4.4). Do not
// construct one directly; use (*ProcessGraph).AddNode, which returns the
// handle usable as input to other nodes.
type GraphNode struct {
	id               int
	version          any
	factory          ProcessorFactory
	displayName      string
	inputs           map[string]any
	invalidateBefore float64
	passive          bool
	defaultArg       string
	overrideFn       OverrideFunc
	dryRun           bool
	tracingEnabled   bool

	onResult func(n *GraphNode, changed bool)

	result                    any
	resultVersion             any
	resultTimestamp           *float64
	computeTime               *float64
	wasOverriddenInDependency bool

	processor Processor
}

// ID returns the node's unique identifier.
func (n *GraphNode) ID() int { return n.id }

// Name returns the node's display name, instantiating its processor if no
// explicit display name was configured via WithDisplayName.
func (n *GraphNode) Name() string {
	if n.displayName != "" {
		return n.displayName
	}
	return n.processorInstance().Name()
}

// processorInstance lazily creates the processor instance, at most once per
// graph lifetime until ReleaseResources is called (spec.md §3 invariants).
func (n *GraphNode) processorInstance() Processor {
	if n.processor == nil {
		n.processor = n.factory()
	}
	return n.processor
}

// HasResult reports whether the node has a cached result (spec.md §3:
// has_result() ⇔ result_timestamp is not null).
func (n *GraphNode) HasResult() bool {
	return n.resultTimestamp != nil
}

// Set writes a named input. Returns UnknownInputError if arg was not
// declared among the node's inputs at AddNode time.
func (n *GraphNode) Set(arg string, value any) error {
	if _, ok := n.inputs[arg]; !ok {
		return &UnknownInputError{NodeID: n.id, Arg: arg}
	}
	n.inputs[arg] = value
	return nil
}

// SetValue writes the node's default argument, configured via
// WithDefaultArg. Returns UnknownInputError if no default argument was
// configured.
func (n *GraphNode) SetValue(value any) error {
	if n.defaultArg == "" {
		return &UnknownInputError{NodeID: n.id}
	}
	return n.Set(n.defaultArg, value)
}

// Reset drops cached result fields only; the processor instance (if any) is
// kept.
func (n *GraphNode) Reset() {
	n.result = nil
	n.resultVersion = nil
	n.resultTimestamp = nil
	n.computeTime = nil
}

// ReleaseResources calls the processor's Finalize, drops the processor
// instance, and resets cached results (spec.md §4.4).
func (n *GraphNode) ReleaseResources() {
	if n.processor != nil {
		log.Infof("Releasing resources for node %d: %s", n.id, n.Name())
		n.processor.Finalize()
		n.processor = nil
	}
	n.Reset()
}

// filledInputs resolves every input to its concrete value: a literal input
// is returned as-is, and a *GraphNode input contributes its overridden
// result. Returns UpstreamNotComputedError if a referenced upstream has no
// result, or a type-mismatch error if the resolved values fail
// ValidateArgs.
func (n *GraphNode) filledInputs() (map[string]any, error) {
	kwargs := make(map[string]any, len(n.inputs))
	for name, input := range n.inputs {
		upstream, isNode := input.(*GraphNode)
		if !isNode {
			kwargs[name] = input
			continue
		}
		if !upstream.HasResult() {
			return nil, &UpstreamNotComputedError{NodeID: n.id, UpstreamNodeID: upstream.id, UpstreamName: upstream.Name()}
		}
		value, err := upstream.overriddenResult()
		if err != nil {
			return nil, err
		}
		kwargs[name] = value
	}
	if n.dryRun {
		return kwargs, nil
	}
	if err := n.processorInstance().ValidateArgs(kwargs); err != nil {
		return nil, err
	}
	return kwargs, nil
}

// overriddenResult returns this node's result with any manual override
// applied (spec.md §4.4). Called only on a node acting as an upstream.
func (n *GraphNode) overriddenResult() (any, error) {
	if n.overrideFn == nil {
		return n.result, nil
	}
	own, err := n.filledInputs()
	if err != nil {
		return nil, err
	}
	newResult := n.overrideFn(n.result, own)
	if !resultsEqual(n.result, newResult) {
		n.wasOverriddenInDependency = true
		log.Warnf("Overriding has changed the output of %d (%s)", n.id, n.Name())
	} else {
		log.Infof("Overriding has not changed the output of %d (%s)", n.id, n.Name())
	}
	return newResult, nil
}

func resultsEqual(a, b any) bool {
	return deepEqual(a, b)
}

// needsUpdate evaluates the staleness rule in the exact order given by
// spec.md §4.4/§9.
func (n *GraphNode) needsUpdate() bool {
	if n.passive {
		return true
	}
	if !n.HasResult() {
		log.Infof("Needs update (%d): %s because no result", n.id, n.Name())
		return true
	}
	if !versionsEqual(n.resultVersion, n.version) {
		log.Infof("Needs update (%d): %s because version %v != %v", n.id, n.Name(), n.resultVersion, n.version)
		return true
	}
	if *n.resultTimestamp < n.invalidateBefore {
		log.Infof("Needs update (%d): %s because timestamp %v < %v", n.id, n.Name(), *n.resultTimestamp, n.invalidateBefore)
		return true
	}
	for _, input := range n.inputs {
		upstream, isNode := input.(*GraphNode)
		if !isNode {
			continue
		}
		if !upstream.passive && upstream.resultTimestamp != nil && *upstream.resultTimestamp > *n.resultTimestamp {
			log.Infof("Needs update (%d) %s because dependency is newer: %v > %v", n.id, n.Name(), *upstream.resultTimestamp, *n.resultTimestamp)
			return true
		}
	}
	return false
}

func versionsEqual(a, b any) bool {
	// A numeric version read back from a persisted JSON document is a
	// float64, so numeric versions are compared by value, not by Go type.
	if isNumeric(a) && isNumeric(b) {
		float64Type := reflect.TypeOf(float64(0))
		return reflect.ValueOf(a).Convert(float64Type).Float() == reflect.ValueOf(b).Convert(float64Type).Float()
	}
	return deepEqual(a, b)
}

// refreshResult computes filled inputs, invokes Process (or skips if
// dryRun), and records the new result, timestamp, version, and compute
// time, then notifies the graph's result callback.
func (n *GraphNode) refreshResult() error {
	kwargs, err := n.filledInputs()
	if err != nil {
		return err
	}
	start := time.Now()
	prevResult := n.result
	if n.dryRun {
		n.result = nil
	} else {
		result, procErr := traceProcess(n, func() (any, error) {
			return n.processorInstance().Process(kwargs)
		})
		if procErr != nil {
			return &ProcessorFailureError{NodeID: n.id, Name: n.Name(), Err: procErr}
		}
		n.result = result
	}
	elapsed := time.Since(start).Seconds()
	n.computeTime = &elapsed
	ts := nowSeconds()
	n.resultTimestamp = &ts
	n.resultVersion = n.version
	if n.onResult != nil {
		n.onResult(n, !resultsEqual(prevResult, n.result))
	}
	return nil
}

// ToPersist returns this node's cached result as the document fragment
// described in spec.md §6.1. Only called when the node has a result.
func (n *GraphNode) ToPersist() PersistedNode {
	meta := PersistedMeta{
		OutputTS: n.resultTimestamp,
		Time:     n.computeTime,
	}
	if n.passive {
		meta.Passive = true
	}
	if n.wasOverriddenInDependency {
		meta.Overriden = true
	}
	return PersistedNode{
		Name:    n.Name(),
		Output:  n.result,
		Version: n.resultVersion,
		Meta:    meta,
	}
}

// FromPersist loads a previously persisted result into this node. A stored
// name differing from the node's current processor name is tolerated (warns
// and proceeds), accommodating refactors (spec.md §4.4).
func (n *GraphNode) FromPersist(doc PersistedNode) {
	if doc.Name != "" && doc.Name != n.Name() {
		log.Warnf("Node %d has changed from %q to %q. Attempting to load anyway.", n.id, doc.Name, n.Name())
	}
	n.result = doc.Output
	if doc.Version != nil {
		n.resultVersion = doc.Version
	}
	// Legacy top-level output_ts (spec.md §6.1 "Accepted legacy forms").
	if doc.LegacyOutputTS != nil {
		ts := *doc.LegacyOutputTS
		n.resultTimestamp = &ts
	}
	if doc.Meta.OutputTS != nil {
		ts := *doc.Meta.OutputTS
		n.resultTimestamp = &ts
	}
	n.computeTime = doc.Meta.Time
	if doc.Meta.Overriden {
		n.wasOverriddenInDependency = true
	}
}

// internalRun is the depth-first entry point: recompute if stale, otherwise
// return the cached value.
func (n *GraphNode) internalRun() (any, error) {
	if n.needsUpdate() {
		log.Infof("Updating node (%d): %s", n.id, n.Name())
		if err := n.refreshResult(); err != nil {
			return nil, err
		}
	} else {
		log.Infof("Returning precomputed for %d: %v", n.id, n.result)
	}
	return n.result, nil
}
