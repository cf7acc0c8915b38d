package builtin

import (
	"fmt"

	"github.com/Narcis13/workscript/internal/node"
)

// RunWorkflowNode executes a stored workflow definition as a nested
// execution and returns its final state on the success edge.
type RunWorkflowNode struct{}

// NewRunWorkflowNode creates a run-workflow node.
func NewRunWorkflowNode() *RunWorkflowNode {
	return &RunWorkflowNode{}
}

// Metadata returns node metadata.
func (n *RunWorkflowNode) Metadata() node.Metadata {
	return node.Metadata{
		ID:          "run-workflow",
		Name:        "Run Workflow",
		Version:     "1.0.0",
		Description: "Execute a stored workflow as a nested execution",
		Inputs:      []string{"workflowId", "input"},
		Outputs:     []string{"success", "error"},
		AIHints: &node.AIHints{
			Purpose:       "Compose workflows by invoking one from another",
			WhenToUse:     "When a reusable workflow is stored in the definition registry",
			ExpectedEdges: []string{"success", "error"},
			ExampleConfig: map[string]interface{}{"workflowId": "send-report"},
			GetFromState:  []string{"JWT_token"},
		},
	}
}

// Execute runs the referenced workflow. The nested execution gets its own id
// and event stream; the parent's JWT_token is passed through so automated
// chains keep their credentials.
func (n *RunWorkflowNode) Execute(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
	if ctx.Runner == nil {
		return nil, fmt.Errorf("run-workflow is not available in this embedding")
	}

	workflowID, ok := config["workflowId"].(string)
	if !ok || workflowID == "" {
		return nil, fmt.Errorf("run-workflow requires a workflowId")
	}

	seed := map[string]interface{}{}
	if input, ok := config["input"].(map[string]interface{}); ok {
		for k, v := range input {
			seed[k] = v
		}
	}
	if token, ok := ctx.State.Get("JWT_token"); ok {
		seed["JWT_token"] = token
	}

	finalState, err := ctx.Runner.RunStored(ctx.Context, workflowID, seed)
	if err != nil {
		return node.Edge("error", map[string]interface{}{
			"error":      err.Error(),
			"workflowId": workflowID,
		}), nil
	}

	return node.Edge("success", map[string]interface{}{
		"finalState": finalState,
		"workflowId": workflowID,
	}), nil
}

func init() {
	node.Provide("builtin", func() node.Node { return NewRunWorkflowNode() })
}
