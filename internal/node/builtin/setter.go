// Package builtin provides the node implementations the runtime ships with:
// the state-setter behind the "$." sugar, the every-item loop iterator, the
// run-workflow bridge, and a few general-purpose utility nodes.
package builtin

import (
	"fmt"

	"github.com/Narcis13/workscript/internal/node"
)

// SetterNode writes a value at a dot path in the execution state. The parser
// routes "$.a.b.c" document entries here.
type SetterNode struct{}

// NewSetterNode creates a state-setter node.
func NewSetterNode() *SetterNode {
	return &SetterNode{}
}

// Metadata returns node metadata.
func (n *SetterNode) Metadata() node.Metadata {
	return node.Metadata{
		ID:          "state-setter",
		Name:        "State Setter",
		Version:     "1.0.0",
		Description: "Write a value at a dot path in the execution state",
		Inputs:      []string{"statePath", "value"},
		Outputs:     []string{"success"},
		AIHints: &node.AIHints{
			Purpose:       "Set or overwrite a state value mid-workflow",
			WhenToUse:     "Use the $.path.to.value sugar instead of invoking directly",
			ExpectedEdges: []string{"success"},
			ExampleConfig: map[string]interface{}{"statePath": "config.timeout", "value": 30},
			PostToState:   []string{"<statePath>"},
		},
	}
}

// Execute writes config.value at config.statePath.
func (n *SetterNode) Execute(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
	path, ok := config["statePath"].(string)
	if !ok || path == "" {
		return nil, fmt.Errorf("state-setter requires a statePath")
	}

	ctx.State.SetPath(path, config["value"])

	return node.Edge("success", map[string]interface{}{}), nil
}

func init() {
	node.Provide("builtin", func() node.Node { return NewSetterNode() })
}
