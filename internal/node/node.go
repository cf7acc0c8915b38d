// Package node defines the node contract of the workflow runtime: metadata,
// the execution context handed to every node body, the edge map a node
// returns, and the registry that catalogs node implementations.
package node

import (
	"context"
)

// EdgeFn lazily produces the payload for an edge. The engine invokes it only
// for the edge it selects.
type EdgeFn func() map[string]interface{}

// EdgeMap maps edge names to lazy payload producers. A node is contracted to
// return exactly one entry per invocation.
type EdgeMap map[string]EdgeFn

// Edge builds an EdgeMap with a single eagerly-known payload. Most nodes
// return one edge with a small payload; this keeps their bodies terse.
func Edge(name string, payload map[string]interface{}) EdgeMap {
	return EdgeMap{name: func() map[string]interface{} { return payload }}
}

// StateBag is the per-execution key/value store shared by all nodes of an
// execution. Keys starting with "__" or "_" are reserved for engine and
// per-node bookkeeping and survive across node calls.
type StateBag interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{})
	Merge(patch map[string]interface{})
	SetPath(dotPath string, value interface{})
	GetPath(dotPath string) (interface{}, bool)
	Snapshot() map[string]interface{}
}

// WorkflowRunner lets nodes start nested executions of stored workflow
// definitions. Implemented by the engine; nil when sub-workflows are not
// available in the embedding.
type WorkflowRunner interface {
	RunStored(ctx context.Context, workflowID string, seed map[string]interface{}) (map[string]interface{}, error)
}

// Logger is the minimal logging surface handed to nodes.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// ExecutionContext is passed to every node body.
type ExecutionContext struct {
	Context     context.Context
	WorkflowID  string
	ExecutionID string
	NodeID      string

	// Inputs is the payload produced by the previous node's chosen edge.
	Inputs map[string]interface{}

	// State is the shared execution state bag.
	State StateBag

	// Env exposes process environment values the embedding chose to pass in
	// (API_BASE_URL and friends).
	Env map[string]string

	Logger Logger
	Runner WorkflowRunner
}

// Node is the single capability the registry constrains: execute with a
// context and a resolved config, return the chosen edges.
type Node interface {
	Metadata() Metadata
	Execute(ctx *ExecutionContext, config map[string]interface{}) (EdgeMap, error)
}
