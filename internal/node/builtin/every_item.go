package builtin

import (
	"fmt"

	"github.com/Narcis13/workscript/internal/node"
)

// EveryItemNode iterates over an array one item per loop entry. Used with
// the "..." loop marker: each re-entry emits the next item on the
// current-item edge, and complete fires once the array drains.
type EveryItemNode struct{}

// NewEveryItemNode creates an every-item node.
func NewEveryItemNode() *EveryItemNode {
	return &EveryItemNode{}
}

// Metadata returns node metadata.
func (n *EveryItemNode) Metadata() node.Metadata {
	return node.Metadata{
		ID:          "every-item",
		Name:        "Every Item",
		Version:     "1.0.0",
		Description: "Iterate over an array, one item per loop entry",
		Inputs:      []string{"items"},
		Outputs:     []string{"current-item", "complete"},
		AIHints: &node.AIHints{
			Purpose:       "Drive a loop body once per array element",
			WhenToUse:     "Mark the node with ... and wire current-item? to the loop body",
			ExpectedEdges: []string{"current-item", "complete"},
			ExampleConfig: map[string]interface{}{"items": []interface{}{1, 2, 3}},
			PostToState:   []string{"everyArrayItemTotal"},
		},
	}
}

// Execute emits the next item or completes. The iteration cursor lives in
// state under a per-instance bookkeeping key so the node object itself stays
// stateless across executions.
func (n *EveryItemNode) Execute(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
	items, err := itemsFromConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	bookKey := "__everyArrayItem_" + ctx.NodeID

	index := 0
	if raw, ok := ctx.State.Get(bookKey); ok {
		switch v := raw.(type) {
		case int:
			index = v
		case float64:
			index = int(v)
		}
	}

	// Empty arrays complete immediately; no current-item edge fires.
	if index >= len(items) {
		ctx.State.Set(bookKey, 0)
		total := len(items)
		return node.Edge("complete", map[string]interface{}{
			"items":               items,
			"everyArrayItemTotal": total,
		}), nil
	}

	item := items[index]
	ctx.State.Set(bookKey, index+1)

	return node.Edge("current-item", map[string]interface{}{
		"item":  item,
		"index": index,
		"first": index == 0,
		"last":  index == len(items)-1,
	}), nil
}

func itemsFromConfig(ctx *node.ExecutionContext, config map[string]interface{}) ([]interface{}, error) {
	raw, exists := config["items"]
	if !exists {
		raw = ctx.Inputs["items"]
	}
	if raw == nil {
		return []interface{}{}, nil
	}
	items, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("every-item requires items to be an array, got %T", raw)
	}
	return items, nil
}

func init() {
	node.Provide("builtin", func() node.Node { return NewEveryItemNode() })
}
