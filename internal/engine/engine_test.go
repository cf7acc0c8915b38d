package engine_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Narcis13/workscript/internal/engine"
	"github.com/Narcis13/workscript/internal/gateway/realtime"
	"github.com/Narcis13/workscript/internal/node"
	"github.com/Narcis13/workscript/internal/node/builtin"
	"github.com/Narcis13/workscript/internal/workflow"
)

// funcNode builds ad-hoc nodes for engine tests.
type funcNode struct {
	id    string
	edges []string
	fn    func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error)
}

func (f *funcNode) Metadata() node.Metadata {
	edges := f.edges
	if len(edges) == 0 {
		edges = []string{"success"}
	}
	return node.Metadata{
		ID: f.id, Name: f.id, Version: "1.0.0",
		Inputs: []string{}, Outputs: edges,
		AIHints: &node.AIHints{ExpectedEdges: edges},
	}
}

func (f *funcNode) Execute(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
	return f.fn(ctx, config)
}

type capturedEvents struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (c *capturedEvents) record(ev realtime.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *capturedEvents) all() []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Event, len(c.events))
	copy(out, c.events)
	return out
}

// pairs renders events as "type/nodeId" for ordering assertions.
func (c *capturedEvents) pairs() []string {
	events := c.all()
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, string(ev.Type)+"/"+ev.NodeID)
	}
	return out
}

func newTestEngine(t *testing.T, extra ...*funcNode) (*engine.Engine, *capturedEvents) {
	t.Helper()

	registry := node.NewRegistry()
	require.NoError(t, registry.Register(builtin.NewSetterNode(), nil))
	require.NoError(t, registry.Register(builtin.NewEveryItemNode(), nil))
	require.NoError(t, registry.Register(builtin.NewLogNode(), nil))
	require.NoError(t, registry.Register(builtin.NewRunWorkflowNode(), nil))
	require.NoError(t, registry.Register(builtin.NewTransformNode(), nil))
	for _, n := range extra {
		require.NoError(t, registry.Register(n, nil))
	}

	captured := &capturedEvents{}
	bus := realtime.NewBus()
	bus.Subscribe(captured.record)

	eng := engine.New(engine.Config{
		Registry: registry,
		Bus:      bus,
	})
	return eng, captured
}

func mustDef(t *testing.T, doc string) *workflow.Definition {
	t.Helper()
	def, err := workflow.ParseDefinition([]byte(doc))
	require.NoError(t, err)
	return def
}

func assertSubsequence(t *testing.T, haystack, needles []string) {
	t.Helper()
	i := 0
	for _, h := range haystack {
		if i < len(needles) && h == needles[i] {
			i++
		}
	}
	assert.Equal(t, len(needles), i, "expected subsequence %v in %v", needles, haystack)
}

func TestConfigVersusInputs(t *testing.T) {
	producer := &funcNode{id: "producer", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		multiplier := config["multiplier"].(float64)
		prefix := config["prefix"].(string)
		return node.EdgeMap{"success": func() map[string]interface{} {
			return map[string]interface{}{
				"value":   42 * multiplier,
				"message": prefix + "_processed",
			}
		}}, nil
	}}
	consumer := &funcNode{id: "consumer", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		sum := ctx.Inputs["value"].(float64) + config["configValue"].(float64)
		return node.Edge("success", map[string]interface{}{"consumerResult": sum}), nil
	}}

	eng, captured := newTestEngine(t, producer, consumer)

	def := mustDef(t, `{
		"id": "config-vs-inputs", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"producer": {"multiplier": 3, "prefix": "wf",
				"success?": {"consumer": {"operation": "add", "configValue": 10}}}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, float64(136), exec.FinalState["consumerResult"])
	assert.Equal(t, "wf_processed", exec.FinalState["message"])

	assertSubsequence(t, captured.pairs(), []string{
		"node.started/producer",
		"node.completed/producer",
		"node.started/consumer",
		"node.completed/consumer",
	})
}

func TestStateSetterSugar(t *testing.T) {
	reader := &funcNode{id: "reader", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		got, _ := ctx.State.GetPath("config.timeout")
		return node.Edge("success", map[string]interface{}{"got": got}), nil
	}}

	eng, _ := newTestEngine(t, reader)

	def := mustDef(t, `{
		"id": "state-sugar", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"$.config.timeout": {"value": 30}},
			{"reader": {}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	configState := exec.FinalState["config"].(map[string]interface{})
	assert.Equal(t, float64(30), configState["timeout"])
	assert.Equal(t, float64(30), exec.FinalState["got"])
}

func TestErrorRoutesToDeclaredEdge(t *testing.T) {
	bad := &funcNode{id: "bad", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return nil, fmt.Errorf("boom")
	}}
	recoverNode := &funcNode{id: "recover", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return node.Edge("success", map[string]interface{}{"recovered": true}), nil
	}}

	eng, captured := newTestEngine(t, bad, recoverNode)

	def := mustDef(t, `{
		"id": "error-routing", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"bad": {"error?": "recover"}},
			{"recover": {}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, true, exec.FinalState["recovered"])

	assertSubsequence(t, captured.pairs(), []string{
		"node.failed/bad",
		"node.started/recover",
		"execution.completed/",
	})
}

func TestErrorWithoutEdgeFailsExecution(t *testing.T) {
	bad := &funcNode{id: "bad", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return nil, fmt.Errorf("boom")
	}}

	eng, _ := newTestEngine(t, bad)

	def := mustDef(t, `{
		"id": "error-fatal", "name": "wf", "version": "1.0.0",
		"workflow": [ {"bad": {}} ]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusFailed, exec.Status)
	require.NotNil(t, exec.Error)
	assert.Equal(t, engine.KindNode, exec.Error.Kind)
	assert.Equal(t, "bad", exec.Error.InstanceID)
}

func TestPanicIsCaught(t *testing.T) {
	panicky := &funcNode{id: "panicky", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		panic("unexpected")
	}}

	eng, _ := newTestEngine(t, panicky)

	def := mustDef(t, `{
		"id": "panic", "name": "wf", "version": "1.0.0",
		"workflow": [ {"panicky": {}} ]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFailed, exec.Status)
	assert.Contains(t, exec.Error.Message, "panic")
}

func TestLoopOverItems(t *testing.T) {
	eng, captured := newTestEngine(t,
		&funcNode{id: "done", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
			return node.Edge("success", map[string]interface{}{"doneRan": true}), nil
		}})

	def := mustDef(t, `{
		"id": "loop", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"every-item...": {"items": [10, 20, 30], "current-item?": "log", "complete?": "done"}},
			{"log": {"message": "item {{ inputs.item }}"}},
			{"done": {}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, 3, exec.FinalState["everyArrayItemTotal"])
	assert.Equal(t, true, exec.FinalState["doneRan"])

	loopEntries, logRuns := 0, 0
	for _, ev := range exec.Events {
		if ev.Type == realtime.EventNodeStarted {
			switch ev.NodeID {
			case "every-item":
				loopEntries++
			case "log":
				logRuns++
			}
		}
	}
	assert.Equal(t, 4, loopEntries)
	assert.Equal(t, 3, logRuns)

	assertSubsequence(t, captured.pairs(), []string{
		"node.started/every-item",
		"node.started/log",
		"node.started/every-item",
		"node.started/log",
		"node.started/every-item",
		"node.started/log",
		"node.started/every-item",
		"node.started/done",
	})
}

func TestLoopOverEmptyArrayCompletesImmediately(t *testing.T) {
	eng, _ := newTestEngine(t,
		&funcNode{id: "done", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
			return node.Edge("success", nil), nil
		}})

	def := mustDef(t, `{
		"id": "empty-loop", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"every-item...": {"items": [], "current-item?": "log", "complete?": "done"}},
			{"log": {}},
			{"done": {}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, 0, exec.FinalState["everyArrayItemTotal"])
	for _, ev := range exec.Events {
		if ev.Type == realtime.EventNodeStarted {
			assert.NotEqual(t, "log", ev.NodeID, "loop body must not run for an empty array")
		}
	}
}

func TestPlaceholderResolution(t *testing.T) {
	echo := &funcNode{id: "echo", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return node.Edge("success", map[string]interface{}{"echoed": config["msg"]}), nil
	}}

	eng, _ := newTestEngine(t, echo)

	def := mustDef(t, `{
		"id": "placeholders", "name": "wf", "version": "1.0.0",
		"initialState": {"greeting": "hi"},
		"workflow": [ {"echo": {"msg": "$.greeting"}} ]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, "hi", exec.FinalState["echoed"])
}

func TestPlaceholderReachesInputs(t *testing.T) {
	first := &funcNode{id: "first", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return node.Edge("success", map[string]interface{}{"value": 7.0}), nil
	}}
	second := &funcNode{id: "second", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return node.Edge("success", map[string]interface{}{"fromConfig": config["ref"]}), nil
	}}

	eng, _ := newTestEngine(t, first, second)

	def := mustDef(t, `{
		"id": "inputs-ref", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"first": {}},
			{"second": {"ref": "$.inputs.value"}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Equal(t, 7.0, exec.FinalState["fromConfig"])
}

func TestEmptyWorkflow(t *testing.T) {
	eng, captured := newTestEngine(t)

	def := mustDef(t, `{
		"id": "empty", "name": "wf", "version": "1.0.0",
		"initialState": {"seeded": true},
		"workflow": []
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, map[string]interface{}{"seeded": true}, exec.FinalState)

	events := captured.all()
	require.Len(t, events, 2)
	assert.Equal(t, realtime.EventExecutionStarted, events[0].Type)
	assert.Equal(t, realtime.EventExecutionCompleted, events[1].Type)
}

func TestNoEdgeSelectedIsFatal(t *testing.T) {
	mute := &funcNode{id: "mute", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return node.EdgeMap{}, nil
	}}

	eng, _ := newTestEngine(t, mute)

	def := mustDef(t, `{
		"id": "no-edge", "name": "wf", "version": "1.0.0",
		"workflow": [ {"mute": {}} ]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusFailed, exec.Status)
	assert.Equal(t, engine.KindNoEdge, exec.Error.Kind)
}

func TestMultipleEdgesPrefersDeclaredTarget(t *testing.T) {
	var alphaBuilt, betaBuilt bool
	chatty := &funcNode{id: "chatty", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return node.EdgeMap{
			"alpha": func() map[string]interface{} { alphaBuilt = true; return map[string]interface{}{"took": "alpha"} },
			"beta":  func() map[string]interface{} { betaBuilt = true; return map[string]interface{}{"took": "beta"} },
		}, nil
	}}
	sink := &funcNode{id: "sink", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		return node.Edge("success", nil), nil
	}}

	eng, _ := newTestEngine(t, chatty, sink)

	def := mustDef(t, `{
		"id": "multi-edge", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"chatty": {"beta?": "sink"}},
			{"sink": {}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	assert.Equal(t, "beta", exec.FinalState["took"])
	// Only the chosen edge's payload producer runs.
	assert.True(t, betaBuilt)
	assert.False(t, alphaBuilt)
}

func TestCancellationDiscardsInFlightEdge(t *testing.T) {
	var eng *engine.Engine
	selfCancel := &funcNode{id: "self-cancel", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		require.NoError(t, eng.Cancel(ctx.ExecutionID))
		return node.Edge("success", map[string]interface{}{"shouldBeDiscarded": true}), nil
	}}
	after := &funcNode{id: "after", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		t.Fatal("node after cancellation must not run")
		return nil, nil
	}}

	eng, _ = newTestEngine(t, selfCancel, after)

	def := mustDef(t, `{
		"id": "cancel", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"self-cancel": {}},
			{"after": {}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCancelled, exec.Status)
	assert.Equal(t, engine.KindCancelled, exec.Error.Kind)
	assert.NotContains(t, exec.FinalState, "shouldBeDiscarded")
}

func TestTimeoutFailsExecution(t *testing.T) {
	slow := &funcNode{id: "slow", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		time.Sleep(100 * time.Millisecond)
		return node.Edge("success", nil), nil
	}}

	eng, _ := newTestEngine(t, slow)

	def := mustDef(t, `{
		"id": "timeout", "name": "wf", "version": "1.0.0",
		"workflow": [ {"slow": {}}, {"slow-2": {}} ]
	}`)

	exec, err := eng.Execute(context.Background(), def, &engine.Options{Timeout: 30 * time.Millisecond})
	require.NoError(t, err)

	assert.Equal(t, engine.StatusFailed, exec.Status)
	assert.Equal(t, engine.KindTimeout, exec.Error.Kind)
}

func TestSubWorkflowExecution(t *testing.T) {
	eng, _ := newTestEngine(t)

	child := mustDef(t, `{
		"id": "child", "name": "child", "version": "1.0.0",
		"workflow": [ {"$.childDone": {"value": true}} ]
	}`)
	require.NoError(t, eng.Store().Save(context.Background(), child))

	parent := mustDef(t, `{
		"id": "parent", "name": "parent", "version": "1.0.0",
		"initialState": {"JWT_token": "service-token"},
		"workflow": [ {"run-workflow": {"workflowId": "child"}} ]
	}`)

	exec, err := eng.Execute(context.Background(), parent, nil)
	require.NoError(t, err)

	assert.Equal(t, engine.StatusCompleted, exec.Status)
	childState := exec.FinalState["finalState"].(map[string]interface{})
	assert.Equal(t, true, childState["childDone"])
	// Nested executions inherit the auth token via state seeding.
	assert.Equal(t, "service-token", childState["JWT_token"])
}

func TestSeedHookInjectsState(t *testing.T) {
	probe := &funcNode{id: "probe", fn: func(ctx *node.ExecutionContext, config map[string]interface{}) (node.EdgeMap, error) {
		token, _ := ctx.State.Get("JWT_token")
		return node.Edge("success", map[string]interface{}{"sawToken": token}), nil
	}}

	registry := node.NewRegistry()
	require.NoError(t, registry.Register(probe, nil))

	eng := engine.New(engine.Config{
		Registry: registry,
		SeedHook: func(workflowID string, initial map[string]interface{}, opts *engine.Options) map[string]interface{} {
			seeded := map[string]interface{}{"JWT_token": "injected-" + opts.Source}
			for k, v := range initial {
				seeded[k] = v
			}
			return seeded
		},
	})

	def := mustDef(t, `{
		"id": "seeded", "name": "wf", "version": "1.0.0",
		"workflow": [ {"probe": {}} ]
	}`)

	exec, err := eng.Execute(context.Background(), def, &engine.Options{Source: "schedule"})
	require.NoError(t, err)
	assert.Equal(t, "injected-schedule", exec.FinalState["sawToken"])
}

func TestEventTimestampsMonotonic(t *testing.T) {
	eng, _ := newTestEngine(t)

	def := mustDef(t, `{
		"id": "timestamps", "name": "wf", "version": "1.0.0",
		"workflow": [
			{"$.a": {"value": 1}},
			{"$.b": {"value": 2}},
			{"$.c": {"value": 3}}
		]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	require.NotEmpty(t, exec.Events)
	for i := 1; i < len(exec.Events); i++ {
		assert.True(t, exec.Events[i].Timestamp.After(exec.Events[i-1].Timestamp),
			"event %d timestamp must advance", i)
	}
}

func TestResubmissionYieldsSameTerminalState(t *testing.T) {
	eng, _ := newTestEngine(t)

	doc := `{
		"id": "idempotent", "name": "wf", "version": "1.0.0",
		"initialState": {"base": 1},
		"workflow": [
			{"$.computed": {"value": 10}},
			{"transform": {"set": {"stamped": "yes"}}}
		]
	}`

	first, err := eng.Execute(context.Background(), mustDef(t, doc), nil)
	require.NoError(t, err)
	second, err := eng.Execute(context.Background(), mustDef(t, doc), nil)
	require.NoError(t, err)

	assert.Equal(t, first.FinalState, second.FinalState)
}

func TestUnknownNodeFailsBeforeExecution(t *testing.T) {
	eng, captured := newTestEngine(t)

	def := mustDef(t, `{
		"id": "unknown", "name": "wf", "version": "1.0.0",
		"workflow": [ {"never-registered": {}} ]
	}`)

	_, err := eng.Execute(context.Background(), def, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, node.ErrUnknownNode)
	assert.Empty(t, captured.all(), "no execution events for a rejected submission")
}

func TestFinalStateMatchesCompletedEvent(t *testing.T) {
	eng, captured := newTestEngine(t)

	def := mustDef(t, `{
		"id": "final-state", "name": "wf", "version": "1.0.0",
		"workflow": [ {"$.answer": {"value": 42}} ]
	}`)

	exec, err := eng.Execute(context.Background(), def, nil)
	require.NoError(t, err)

	var completed *realtime.Event
	events := captured.all()
	for i := range events {
		if events[i].Type == realtime.EventExecutionCompleted {
			completed = &events[i]
		}
	}
	require.NotNil(t, completed)
	assert.Equal(t, exec.FinalState, completed.Data["finalState"])
}
