// Package workflow contains the workflow document model, the parser that
// lowers documents into flat node lists, and the definition store used for
// sub-workflow invocation.
package workflow

import (
	"encoding/json"
	"fmt"
)

// Definition is a declarative workflow document.
type Definition struct {
	ID           string                 `json:"id"`
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Description  string                 `json:"description,omitempty"`
	InitialState map[string]interface{} `json:"initialState,omitempty"`
	Workflow     []NodeEntry            `json:"workflow"`
}

// NodeEntry is a one-key mapping from a raw node key to its config. The raw
// key may carry suffixes ("-2", "...") or be state-setter sugar ("$.a.b").
type NodeEntry map[string]interface{}

// Key returns the single key of the entry, or an error when the entry is not
// a one-key mapping.
func (e NodeEntry) Key() (string, error) {
	if len(e) != 1 {
		return "", fmt.Errorf("node entry must have exactly one key, has %d", len(e))
	}
	for k := range e {
		return k, nil
	}
	return "", nil
}

// ParseDefinition decodes a JSON workflow document.
func ParseDefinition(data []byte) (*Definition, error) {
	var def Definition
	if err := json.Unmarshal(data, &def); err != nil {
		return nil, &ParseError{Path: "", Message: fmt.Sprintf("invalid workflow document: %v", err)}
	}
	if def.ID == "" {
		return nil, &ParseError{Path: "id", Message: "workflow id is required"}
	}
	return &def, nil
}

// ParsedNode is the flat representation of one document node entry.
type ParsedNode struct {
	// NodeID is the registry key (base id, suffixes stripped).
	NodeID string
	// InstanceID is unique within the parsed workflow.
	InstanceID string
	// Config is the raw config object, still containing placeholders and
	// edge-target keys.
	Config map[string]interface{}
	// Edges maps edge names to their targets.
	Edges map[string]*EdgeTarget
	// IsLoop marks a "..." suffixed node.
	IsLoop bool
	// IsStateSetter marks "$." sugar entries routed to the state-setter node.
	IsStateSetter bool
}

// EdgeTarget is either a named reference to another instance or an inline
// sub-workflow fragment. Implicit marks parser-generated sequence edges,
// which route as plain sibling advancement rather than jumps so loop bodies
// return to their loop node.
type EdgeTarget struct {
	InstanceID string
	Inline     []*ParsedNode
	Implicit   bool
}

// IsInline reports whether the target is an inline fragment.
func (t *EdgeTarget) IsInline() bool {
	return len(t.Inline) > 0
}

// ParsedWorkflow is the parser output: top-level metadata plus the flat node
// list with explicit edge references.
type ParsedWorkflow struct {
	ID           string
	Name         string
	Version      string
	Description  string
	InitialState map[string]interface{}
	Nodes        []*ParsedNode

	index map[string]*ParsedNode
}

// Lookup returns the node with the given instance id, searching top-level
// nodes and inline fragments.
func (w *ParsedWorkflow) Lookup(instanceID string) (*ParsedNode, bool) {
	n, ok := w.index[instanceID]
	return n, ok
}

// ParseError reports a malformed workflow document. Path points into the
// document ("workflow[2].success?").
type ParseError struct {
	Path    string
	Message string
	Err     error
}

func (e *ParseError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("parse error: %s", e.Message)
	}
	return fmt.Sprintf("parse error at %s: %s", e.Path, e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
