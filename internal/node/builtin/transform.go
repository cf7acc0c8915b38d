package builtin

import (
	"github.com/Narcis13/workscript/internal/node"
)

// TransformNode shapes its inputs into a new payload: pick keys, rename
// them, and set additional values.
type TransformNode struct{}

// NewTransformNode creates a transform node.
func NewTransformNode() *TransformNode {
	return &TransformNode{}
}

// Metadata returns node metadata.
func (n *TransformNode) Metadata() node.Metadata {
	return node.Metadata{
		ID:          "transform",
		Name:        "Transform",
		Version:     "1.0.0",
		Description: "Pick, rename, and set fields on the flowing payload",
		Inputs:      []string{"pick", "rename", "set", "keepInputs"},
		Outputs:     []string{"success"},
		AIHints: &node.AIHints{
			Purpose:       "Reshape data between nodes without custom code",
			ExpectedEdges: []string{"success"},
			ExampleConfig: map[string]interface{}{
				"pick":   []interface{}{"value"},
				"rename": map[string]interface{}{"value": "amount"},
				"set":    map[string]interface{}{"source": "workflow"},
			},
		},
	}
}

// Execute builds the output payload. With keepInputs (the default) the
// result starts from the inputs; pick narrows, rename moves, set overrides.
func (n *TransformNode) Execute(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
	result := make(map[string]interface{})

	if boolConfig(config, "keepInputs", true) {
		for k, v := range ctx.Inputs {
			result[k] = v
		}
	}

	if pick, ok := config["pick"].([]interface{}); ok {
		picked := make(map[string]interface{}, len(pick))
		for _, raw := range pick {
			if key, ok := raw.(string); ok {
				if v, exists := result[key]; exists {
					picked[key] = v
				}
			}
		}
		result = picked
	}

	if rename, ok := config["rename"].(map[string]interface{}); ok {
		for from, rawTo := range rename {
			to, ok := rawTo.(string)
			if !ok {
				continue
			}
			if v, exists := result[from]; exists {
				delete(result, from)
				result[to] = v
			}
		}
	}

	if set, ok := config["set"].(map[string]interface{}); ok {
		for k, v := range set {
			result[k] = v
		}
	}

	return node.Edge("success", result), nil
}

func init() {
	node.Provide("builtin", func() node.Node { return NewTransformNode() })
}
