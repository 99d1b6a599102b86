package flow

import "fmt"

// UnicityViolationError is returned by (*ProcessGraph).AddNode when the given
// id has already been registered.
type UnicityViolationError struct {
	ID int
}

func (e *UnicityViolationError) Error() string {
	return fmt.Sprintf("node id already added: %d", e.ID)
}

// CycleDetectedError is returned when a topological sort cannot account for
// every reachable node, meaning the dependency graph contains a cycle.
type CycleDetectedError struct {
	Reachable int
	Ordered   int
}

func (e *CycleDetectedError) Error() string {
	return fmt.Sprintf("graph has at least one cycle: topological sort produced %d of %d reachable nodes", e.Ordered, e.Reachable)
}

// UnknownInputError is returned by GraphNode.Set / SetValue when the named
// argument was not declared in the node's inputs, or when SetValue is called
// on a node with no default argument configured.
type UnknownInputError struct {
	NodeID int
	Arg    string
}

func (e *UnknownInputError) Error() string {
	if e.Arg == "" {
		return fmt.Sprintf("node %d has no default argument configured for SetValue", e.NodeID)
	}
	return fmt.Sprintf("argument %q was not declared in node %d's inputs", e.Arg, e.NodeID)
}

// UpstreamNotComputedError is returned when filling a node's inputs requires
// the result of an upstream node that has not yet produced a result.
type UpstreamNotComputedError struct {
	NodeID         int
	UpstreamNodeID int
	UpstreamName   string
}

func (e *UpstreamNotComputedError) Error() string {
	return fmt.Sprintf("dependent node was not run: node %d needs id=%d %s", e.NodeID, e.UpstreamNodeID, e.UpstreamName)
}

// TypeMismatchError is returned by Signature.Validate when a named argument's
// value does not match its declared type descriptor.
type TypeMismatchError struct {
	NodeID        int
	ProcessorName string
	Arg           string
	Value         any
}

func (e *TypeMismatchError) Error() string {
	return fmt.Sprintf("type not matched for node %d (%s): argument %q value %#v", e.NodeID, e.ProcessorName, e.Arg, e.Value)
}

// PrepMissingPersistError is returned by ProcessBatch when a prep function
// returns without binding a persistence path via (*ProcessGraph).Persist.
type PrepMissingPersistError struct {
	ItemIndex int
}

func (e *PrepMissingPersistError) Error() string {
	return fmt.Sprintf("persist() must be called in prepFn for item %d", e.ItemIndex)
}

// ProcessorFailureError wraps an error raised by a user Processor's Process
// method, attaching the id and name of the node that produced it.
type ProcessorFailureError struct {
	NodeID int
	Name   string
	Err    error
}

func (e *ProcessorFailureError) Error() string {
	return fmt.Sprintf("processor failure in node %d (%s): %v", e.NodeID, e.Name, e.Err)
}

func (e *ProcessorFailureError) Unwrap() error {
	return e.Err
}
