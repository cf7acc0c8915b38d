package builtin

import (
	"github.com/Narcis13/workscript/internal/node"
)

// LogNode writes a message to the runtime log. Handy as a loop body or as a
// terminal sink when wiring workflows together.
type LogNode struct{}

// NewLogNode creates a log node.
func NewLogNode() *LogNode {
	return &LogNode{}
}

// Metadata returns node metadata.
func (n *LogNode) Metadata() node.Metadata {
	return node.Metadata{
		ID:          "log",
		Name:        "Log",
		Version:     "1.0.0",
		Description: "Log a message with the current inputs",
		Inputs:      []string{"message", "level"},
		Outputs:     []string{"success"},
		AIHints: &node.AIHints{
			Purpose:       "Trace workflow progress",
			ExpectedEdges: []string{"success"},
			ExampleConfig: map[string]interface{}{"message": "processed {{ inputs.item }}"},
		},
	}
}

// Execute logs the configured message at the configured level.
func (n *LogNode) Execute(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
	message := stringConfig(config, "message", "")
	level := stringConfig(config, "level", "info")

	switch level {
	case "debug":
		ctx.Logger.Debug(message, "inputs", ctx.Inputs)
	case "warn":
		ctx.Logger.Warn(message, "inputs", ctx.Inputs)
	case "error":
		ctx.Logger.Error(message, "inputs", ctx.Inputs)
	default:
		ctx.Logger.Info(message, "inputs", ctx.Inputs)
	}

	return node.Edge("success", map[string]interface{}{"logged": message}), nil
}

func init() {
	node.Provide("builtin", func() node.Node { return NewLogNode() })
}
