package flow

import "fmt"

// ArgSpec describes one named argument accepted by a Processor's Process
// method, consumed by the default Signature.Validate implementation. This is
// the Go realization of spec.md §9's "Dynamic keyword arguments" note: no
// reflection over closures is required, since the signature is declared
// explicitly by the processor.
type ArgSpec struct {
	Name     string
	Type     TypeDescriptor
	Required bool
}

// Signature is an ordered list of ArgSpec, used by the default
// Processor.ValidateArgs implementation to type-check a named-argument bag.
type Signature []ArgSpec

// Validate checks every declared argument against args, returning a
// TypeMismatchError for the first mismatch found. Extra keys in args that
// are not declared in the signature are ignored (processors decide for
// themselves whether to consume them).
func (s Signature) Validate(nodeID int, processorName string, args map[string]any) error {
	for _, spec := range s {
		value, present := args[spec.Name]
		if !present {
			if spec.Required {
				return &TypeMismatchError{NodeID: nodeID, ProcessorName: processorName, Arg: spec.Name, Value: nil}
			}
			continue
		}
		if !Matches(value, spec.Type) {
			return &TypeMismatchError{NodeID: nodeID, ProcessorName: processorName, Arg: spec.Name, Value: value}
		}
	}
	return nil
}

// Processor is the shape every user-supplied processing node must satisfy
// (spec.md §4.3, §6.2). Name is a capability, not inherited state, matching
// the teacher's preference for small interfaces (model.Model, tool.Tool)
// over base classes.
type Processor interface {
	// Name identifies the processor; used as the display name and the
	// persisted "name" sanity check (§6.1).
	Name() string
	// Process is the only user-controlled computation. The returned value
	// must be JSON-serializable; large artifacts should be written
	// externally with only a path/URL returned.
	Process(args map[string]any) (any, error)
	// ValidateArgs rejects a named-argument bag that does not match this
	// processor's expected signature.
	ValidateArgs(args map[string]any) error
	// Finalize releases any resources (background servers, loaded models)
	// held by the processor. Called by GraphNode.ReleaseResources.
	Finalize()
}

// BaseProcessor provides the default ValidateArgs/Finalize behavior
// described in spec.md §4.3: a no-op Finalize, and Signature-driven
// ValidateArgs. Embed it in a concrete Processor to get these defaults, then
// override Name/Process (and ValidateArgs/Finalize if needed).
type BaseProcessor struct {
	NodeID        int
	ProcessorName string
	Sig           Signature
}

// Name returns the configured processor name.
func (b *BaseProcessor) Name() string { return b.ProcessorName }

// ValidateArgs validates args against the declared Signature.
func (b *BaseProcessor) ValidateArgs(args map[string]any) error {
	return b.Sig.Validate(b.NodeID, b.ProcessorName, args)
}

// Finalize is a no-op by default.
func (b *BaseProcessor) Finalize() {}

// ProcessorFactory lazily constructs a Processor instance. It stands in for
// "processor_class" in spec.md §3: the engine holds a constructor, not an
// instance, and calls it at most once per node per graph lifetime (until
// ReleaseResources).
type ProcessorFactory func() Processor

// constantProcessor implements the engine-provided Constant adapter
// (spec.md §4.3, §4.6): it accepts exactly one input named "value" and
// returns it verbatim.
type constantProcessor struct {
	name     string
	declared *TypeDescriptor
}

// NewConstantFactory returns a ProcessorFactory for a Constant node with the
// given display name. If valueType is non-nil, the "value" argument is
// type-checked against it; otherwise any value is accepted.
func NewConstantFactory(name string, valueType *TypeDescriptor) ProcessorFactory {
	return func() Processor {
		return &constantProcessor{name: name, declared: valueType}
	}
}

func (c *constantProcessor) Name() string { return c.name }

func (c *constantProcessor) Process(args map[string]any) (any, error) {
	return args["value"], nil
}

func (c *constantProcessor) ValidateArgs(args map[string]any) error {
	if len(args) != 1 {
		return fmt.Errorf("constants must have exactly one 'value' argument, found %d", len(args))
	}
	value, ok := args["value"]
	if !ok {
		return fmt.Errorf("constants must have one 'value' argument, but found: %v", mapKeys(args))
	}
	if c.declared != nil && !Matches(value, *c.declared) {
		return &TypeMismatchError{ProcessorName: c.name, Arg: "value", Value: value}
	}
	return nil
}

func (c *constantProcessor) Finalize() {}

func mapKeys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// FunctionBody is an arbitrary callable wrapped by the Function adapter.
type FunctionBody func(args map[string]any) (any, error)

// functionProcessor implements the engine-provided Function adapter
// (spec.md §4.3, §4.6): it forwards all named inputs to an arbitrary Go
// function, with no argument validation (matching the original's
// "validate_args is a no-op").
type functionProcessor struct {
	name string
	body FunctionBody
}

// NewFunctionFactory returns a ProcessorFactory wrapping body under the
// given display name.
func NewFunctionFactory(name string, body FunctionBody) ProcessorFactory {
	return func() Processor {
		return &functionProcessor{name: name, body: body}
	}
}

func (f *functionProcessor) Name() string { return f.name }

func (f *functionProcessor) Process(args map[string]any) (any, error) {
	return f.body(args)
}

func (f *functionProcessor) ValidateArgs(map[string]any) error { return nil }

func (f *functionProcessor) Finalize() {}
