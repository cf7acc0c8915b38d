// Package engine drives parsed workflows: it resolves node configs, invokes
// node bodies, selects edges, routes control flow (loops, inline fragments,
// named jumps, sub-workflows), and publishes lifecycle events.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Narcis13/workscript/internal/gateway/realtime"
	"github.com/Narcis13/workscript/internal/node"
	"github.com/Narcis13/workscript/internal/platform/logger"
	"github.com/Narcis13/workscript/internal/workflow"
	"github.com/Narcis13/workscript/pkg/resolver"
)

// Status of an execution. Terminal states are absorbing.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is absorbing.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Execution is one run of a workflow.
type Execution struct {
	ID         string                 `json:"id"`
	WorkflowID string                 `json:"workflowId"`
	Status     Status                 `json:"status"`
	StartedAt  time.Time              `json:"startedAt"`
	EndedAt    *time.Time             `json:"endedAt,omitempty"`
	FinalState map[string]interface{} `json:"finalState,omitempty"`
	Error      *ExecutionError        `json:"error,omitempty"`
	Events     []realtime.Event       `json:"events,omitempty"`

	// mu is shared between an execution and its views so copies stay safe.
	mu        *sync.RWMutex
	state     *State
	cancel    context.CancelFunc
	lastEvent time.Time
}

// View returns a consistent copy for API responses.
func (e *Execution) View() Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	view := *e
	if e.EndedAt != nil {
		ended := *e.EndedAt
		view.EndedAt = &ended
	}
	view.Events = append([]realtime.Event(nil), e.Events...)
	view.state = nil
	view.cancel = nil
	return view
}

// StatusNow returns the current status.
func (e *Execution) StatusNow() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.Status
}

// Options customize one execution.
type Options struct {
	// ExecutionID overrides the generated id.
	ExecutionID string
	// Timeout is an optional wall-clock deadline; zero means none.
	Timeout time.Duration
	// Seed is merged into the initial state after the seed hook runs.
	Seed map[string]interface{}
	// Env values exposed to node bodies.
	Env map[string]string
	// Source of the trigger: manual, api, schedule, sub-workflow.
	Source string
}

// SeedHook lets the embedding rewrite the initial state on execution
// creation, e.g. to inject a service token for scheduled runs.
type SeedHook func(workflowID string, initial map[string]interface{}, opts *Options) map[string]interface{}

// Conventional exit edges of loop-marked nodes; any other edge re-enters.
var loopExitEdges = map[string]bool{
	"complete": true,
	"done":     true,
	"exit":     true,
	"error":    true,
}

// Config assembles an engine.
type Config struct {
	Registry *node.Registry
	Store    workflow.Store
	Bus      *realtime.Bus
	Logger   logger.Logger
	Metrics  *Metrics
	Tracer   trace.Tracer
	History  ExecutionRepository
	SeedHook SeedHook
	// MaxLoopIterations bounds re-entries per loop instance; zero means the
	// default of 10000.
	MaxLoopIterations int
	// Env values passed to every node body.
	Env map[string]string
}

// Engine orchestrates workflow executions.
type Engine struct {
	registry *node.Registry
	parser   *workflow.Parser
	store    workflow.Store
	resolver *resolver.Resolver
	bus      *realtime.Bus
	log      logger.Logger
	metrics  *Metrics
	tracer   trace.Tracer
	history  ExecutionRepository
	seedHook SeedHook
	maxLoop  int
	env      map[string]string

	mu         sync.RWMutex
	executions map[string]*Execution
}

// New creates an engine.
func New(cfg Config) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}
	if cfg.Bus == nil {
		cfg.Bus = realtime.NewBus()
	}
	if cfg.Store == nil {
		cfg.Store = workflow.NewMemoryStore()
	}
	if cfg.MaxLoopIterations <= 0 {
		cfg.MaxLoopIterations = 10000
	}
	return &Engine{
		registry:   cfg.Registry,
		parser:     workflow.NewParser(cfg.Registry),
		store:      cfg.Store,
		resolver:   resolver.New(),
		bus:        cfg.Bus,
		log:        cfg.Logger,
		metrics:    cfg.Metrics,
		tracer:     cfg.Tracer,
		history:    cfg.History,
		seedHook:   cfg.SeedHook,
		maxLoop:    cfg.MaxLoopIterations,
		env:        cfg.Env,
		executions: make(map[string]*Execution),
	}
}

// Bus returns the engine's event bus.
func (e *Engine) Bus() *realtime.Bus {
	return e.bus
}

// Store returns the workflow definition store.
func (e *Engine) Store() workflow.Store {
	return e.store
}

// Execute parses and runs a workflow definition, blocking until the
// execution reaches a terminal state. Parse and registry failures surface
// synchronously before an execution is created.
func (e *Engine) Execute(ctx context.Context, def *workflow.Definition, opts *Options) (*Execution, error) {
	parsed, err := e.parser.Parse(def)
	if err != nil {
		return nil, err
	}
	return e.ExecuteParsed(ctx, parsed, opts)
}

// ExecuteParsed runs an already-parsed workflow.
func (e *Engine) ExecuteParsed(ctx context.Context, parsed *workflow.ParsedWorkflow, opts *Options) (*Execution, error) {
	if opts == nil {
		opts = &Options{}
	}

	// Fail fast before the execution exists: every node must resolve.
	if err := e.validateNodes(parsed.Nodes); err != nil {
		return nil, err
	}

	initial := parsed.InitialState
	if e.seedHook != nil {
		initial = e.seedHook(parsed.ID, initial, opts)
	}

	state := NewState(initial)
	for k, v := range opts.Seed {
		state.Set(k, v)
	}

	id := opts.ExecutionID
	if id == "" {
		id = uuid.New().String()
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if opts.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
	} else {
		runCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	exec := &Execution{
		ID:         id,
		WorkflowID: parsed.ID,
		Status:     StatusPending,
		StartedAt:  time.Now(),
		mu:         &sync.RWMutex{},
		state:      state,
		cancel:     cancel,
	}

	e.mu.Lock()
	e.executions[id] = exec
	e.mu.Unlock()

	if e.metrics != nil {
		e.metrics.ActiveExecutions.Inc()
		defer e.metrics.ActiveExecutions.Dec()
	}

	var span trace.Span
	if e.tracer != nil {
		runCtx, span = e.tracer.Start(runCtx, "workflow.execute",
			trace.WithAttributes(
				attribute.String("workflow.id", parsed.ID),
				attribute.String("execution.id", id),
			))
		defer span.End()
	}

	e.run(runCtx, parsed, exec, opts)

	if e.metrics != nil {
		e.metrics.ExecutionsTotal.WithLabelValues(string(exec.StatusNow())).Inc()
	}
	if e.history != nil {
		if err := e.history.Save(context.Background(), RecordFromExecution(exec)); err != nil {
			e.log.Warn("failed to record execution", "executionId", id, "error", err)
		}
	}

	return exec, nil
}

// RunStored executes a stored workflow definition as a nested execution and
// returns its final state. Implements node.WorkflowRunner so the run-workflow
// node can call back into the engine while its parent execution is suspended.
func (e *Engine) RunStored(ctx context.Context, workflowID string, seed map[string]interface{}) (map[string]interface{}, error) {
	def, err := e.store.Get(ctx, workflowID)
	if err != nil {
		return nil, fmt.Errorf("sub-workflow %s: %w", workflowID, err)
	}
	exec, err := e.Execute(ctx, def, &Options{Seed: seed, Source: "sub-workflow"})
	if err != nil {
		return nil, err
	}
	if exec.StatusNow() != StatusCompleted {
		if exec.Error != nil {
			return nil, fmt.Errorf("sub-workflow %s %s: %s", workflowID, exec.Status, exec.Error.Message)
		}
		return nil, fmt.Errorf("sub-workflow %s ended with status %s", workflowID, exec.Status)
	}
	return exec.FinalState, nil
}

// Cancel requests cancellation of a running execution. The engine checks at
// step boundaries; the in-flight node body finishes but its edge is
// discarded.
func (e *Engine) Cancel(executionID string) error {
	e.mu.RLock()
	exec, ok := e.executions[executionID]
	e.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	if exec.StatusNow().Terminal() {
		return fmt.Errorf("execution %s already %s", executionID, exec.StatusNow())
	}
	exec.cancel()
	return nil
}

// Get returns an execution by id.
func (e *Engine) Get(executionID string) (*Execution, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	exec, ok := e.executions[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, executionID)
	}
	return exec, nil
}

// List returns executions, optionally filtered by workflow id.
func (e *Engine) List(workflowID string) []Execution {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Execution
	for _, exec := range e.executions {
		if workflowID == "" || exec.WorkflowID == workflowID {
			out = append(out, exec.View())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.After(out[j].StartedAt) })
	return out
}

// CleanupOld drops terminal executions older than maxAge from memory.
func (e *Engine) CleanupOld(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, exec := range e.executions {
		exec.mu.RLock()
		drop := exec.Status.Terminal() && exec.EndedAt != nil && exec.EndedAt.Before(cutoff)
		exec.mu.RUnlock()
		if drop {
			delete(e.executions, id)
		}
	}
}

func (e *Engine) validateNodes(nodes []*workflow.ParsedNode) error {
	for _, pn := range nodes {
		if _, err := e.registry.Get(pn.NodeID); err != nil {
			return fmt.Errorf("workflow references %q: %w", pn.InstanceID, err)
		}
		for _, target := range pn.Edges {
			if target.IsInline() {
				if err := e.validateNodes(target.Inline); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// frame is one level of the engine's return stack: a node sequence, the
// cursor into it, and the loop node to re-enter when the sequence drains.
type frame struct {
	nodes []*workflow.ParsedNode
	idx   int
	loop  *workflow.ParsedNode
}

func (e *Engine) run(ctx context.Context, parsed *workflow.ParsedWorkflow, exec *Execution, opts *Options) {
	exec.mu.Lock()
	exec.Status = StatusRunning
	exec.mu.Unlock()

	initialKeys := make([]string, 0, len(parsed.InitialState))
	for k := range parsed.InitialState {
		initialKeys = append(initialKeys, k)
	}
	sort.Strings(initialKeys)
	e.emit(exec, realtime.EventExecutionStarted, "", map[string]interface{}{
		"workflowId":       parsed.ID,
		"startedAt":        exec.StartedAt.UnixMilli(),
		"initialStateKeys": initialKeys,
	})

	stack := []frame{{nodes: parsed.Nodes}}
	inputs := map[string]interface{}{}
	attempts := make(map[string]int)
	loopIters := make(map[string]int)

	for {
		// Cancellation and deadline are observed at step boundaries only.
		if err := ctx.Err(); err != nil {
			e.finishInterrupted(exec, err)
			return
		}

		// Drop drained frames; a drained loop-body frame falls back to its
		// loop node, whose cursor was intentionally left in place.
		for len(stack) > 0 && stack[len(stack)-1].idx >= len(stack[len(stack)-1].nodes) {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			e.finishCompleted(exec)
			return
		}

		cur := &stack[len(stack)-1]
		pn := cur.nodes[cur.idx]

		attempts[pn.InstanceID]++
		chosen, payload, failed := e.step(ctx, exec, pn, inputs, attempts[pn.InstanceID], opts)
		if failed != nil {
			// A declared error edge turns the failure into routing.
			if target, ok := pn.Edges["error"]; ok {
				chosen = "error"
				payload = map[string]interface{}{"error": failed.Message}
				e.applyEdge(exec, pn, chosen, payload)
				inputs = payload
				if !e.route(parsed, &stack, pn, chosen, target, loopIters, exec) {
					return
				}
				continue
			}
			e.finishFailed(exec, failed)
			return
		}

		// A cancellation that arrived while the node body ran discards the
		// returned edge.
		if err := ctx.Err(); err != nil {
			e.finishInterrupted(exec, err)
			return
		}

		e.applyEdge(exec, pn, chosen, payload)
		inputs = payload

		if !e.route(parsed, &stack, pn, chosen, pn.Edges[chosen], loopIters, exec) {
			return
		}
	}
}

// step resolves the node's config, runs its body, and selects the edge.
// A non-nil ExecutionError return means the node failed.
func (e *Engine) step(
	ctx context.Context,
	exec *Execution,
	pn *workflow.ParsedNode,
	inputs map[string]interface{},
	attempt int,
	opts *Options,
) (string, map[string]interface{}, *ExecutionError) {
	impl, err := e.registry.Get(pn.NodeID)
	if err != nil {
		return "", nil, &ExecutionError{Kind: KindRegistry, Message: err.Error(), InstanceID: pn.InstanceID}
	}

	resolved, err := e.resolveConfig(pn, inputs, exec)
	if err != nil {
		e.emit(exec, realtime.EventNodeFailed, pn.InstanceID, map[string]interface{}{
			"nodeId":    pn.NodeID,
			"error":     err.Error(),
			"willRetry": false,
		})
		return "", nil, &ExecutionError{Kind: KindResolve, Message: err.Error(), InstanceID: pn.InstanceID}
	}

	e.emit(exec, realtime.EventNodeStarted, pn.InstanceID, map[string]interface{}{
		"nodeId":        pn.NodeID,
		"attemptNumber": attempt,
	})

	nodeCtx := &node.ExecutionContext{
		Context:     ctx,
		WorkflowID:  exec.WorkflowID,
		ExecutionID: exec.ID,
		NodeID:      pn.InstanceID,
		Inputs:      inputs,
		State:       exec.state,
		Env:         e.nodeEnv(opts),
		Logger:      e.log.WithFields(map[string]interface{}{"executionId": exec.ID, "nodeId": pn.InstanceID}),
		Runner:      e,
	}

	var span trace.Span
	if e.tracer != nil {
		_, span = e.tracer.Start(ctx, "node.execute",
			trace.WithAttributes(attribute.String("node.id", pn.NodeID)))
	}

	started := time.Now()
	edges, execErr := e.invoke(impl, nodeCtx, resolved)
	duration := time.Since(started)

	if span != nil {
		span.End()
	}
	if e.metrics != nil {
		e.metrics.NodeDuration.WithLabelValues(pn.NodeID).Observe(duration.Seconds())
	}

	if execErr != nil {
		if e.metrics != nil {
			e.metrics.NodeFailures.WithLabelValues(pn.NodeID).Inc()
		}
		e.emit(exec, realtime.EventNodeFailed, pn.InstanceID, map[string]interface{}{
			"nodeId":    pn.NodeID,
			"error":     execErr.Error(),
			"willRetry": false,
		})
		return "", nil, &ExecutionError{Kind: KindNode, Message: execErr.Error(), InstanceID: pn.InstanceID}
	}

	if len(edges) == 0 {
		return "", nil, &ExecutionError{
			Kind:       KindNoEdge,
			Message:    ErrNoEdgeSelected.Error(),
			InstanceID: pn.InstanceID,
		}
	}

	chosen := e.selectEdge(pn, edges)
	var payload map[string]interface{}
	if fn := edges[chosen]; fn != nil {
		payload = fn()
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	e.emit(exec, realtime.EventNodeCompleted, pn.InstanceID, map[string]interface{}{
		"nodeId":            pn.NodeID,
		"edge":              chosen,
		"durationMs":        duration.Milliseconds(),
		"statePatchSummary": sortedKeys(payload),
	})

	return chosen, payload, nil
}

// invoke runs the node body, converting panics into errors.
func (e *Engine) invoke(impl node.Node, ctx *node.ExecutionContext, config map[string]interface{}) (edges node.EdgeMap, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &NodeExecutionError{
				InstanceID: ctx.NodeID,
				Message:    fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	edges, err = impl.Execute(ctx, config)
	if err != nil {
		var nodeErr *NodeExecutionError
		if !errors.As(err, &nodeErr) {
			err = &NodeExecutionError{InstanceID: ctx.NodeID, Message: err.Error(), Cause: err}
		}
	}
	return edges, err
}

// resolveConfig clones the node's config minus edge-target keys and
// substitutes placeholders against the current state and inputs.
func (e *Engine) resolveConfig(pn *workflow.ParsedNode, inputs map[string]interface{}, exec *Execution) (map[string]interface{}, error) {
	raw := make(map[string]interface{}, len(pn.Config))
	for k, v := range pn.Config {
		if strings.HasSuffix(k, "?") && len(k) > 1 {
			continue
		}
		raw[k] = v
	}

	root := exec.state.Snapshot()
	root["inputs"] = inputs

	resolved, err := e.resolver.ResolveConfig(raw, root)
	if err != nil {
		return nil, &ResolveError{InstanceID: pn.InstanceID, Cause: err}
	}
	return resolved, nil
}

// selectEdge picks the single edge. When a node breaks its contract and
// returns several, an edge declared as a target in the node's config wins,
// then the first in deterministic order.
func (e *Engine) selectEdge(pn *workflow.ParsedNode, edges node.EdgeMap) string {
	if len(edges) == 1 {
		for name := range edges {
			return name
		}
	}

	names := make([]string, 0, len(edges))
	for name := range edges {
		names = append(names, name)
	}
	sort.Strings(names)

	e.log.Warn("node returned multiple edges, picking one",
		"instanceId", pn.InstanceID, "edges", names)

	for _, name := range names {
		if _, declared := pn.Edges[name]; declared {
			return name
		}
	}
	return names[0]
}

// applyEdge merges the chosen edge's payload into state and records the
// engine-scoped edge context.
func (e *Engine) applyEdge(exec *Execution, pn *workflow.ParsedNode, edge string, payload map[string]interface{}) {
	exec.state.Set("_edgeContext", map[string]interface{}{
		"from":    pn.InstanceID,
		"edge":    edge,
		"payload": payload,
	})
	if len(payload) == 0 {
		return
	}
	exec.state.Merge(payload)
	e.emit(exec, realtime.EventStateChanged, pn.InstanceID, map[string]interface{}{
		"path":            strings.Join(sortedKeys(payload), ","),
		"newValuePreview": preview(payload),
	})
}

// route advances the scheduler after a node chose an edge. Returns false when
// the execution terminated.
func (e *Engine) route(
	parsed *workflow.ParsedWorkflow,
	stack *[]frame,
	pn *workflow.ParsedNode,
	chosen string,
	target *workflow.EdgeTarget,
	loopIters map[string]int,
	exec *Execution,
) bool {
	cur := &(*stack)[len(*stack)-1]

	if pn.IsLoop && !loopExitEdges[chosen] {
		loopIters[pn.InstanceID]++
		if loopIters[pn.InstanceID] > e.maxLoop {
			e.finishFailed(exec, &ExecutionError{
				Kind:       KindRouting,
				Message:    fmt.Sprintf("loop exceeded %d iterations", e.maxLoop),
				InstanceID: pn.InstanceID,
			})
			return false
		}
		// The loop node's cursor stays put: when the body frame drains, the
		// same node executes again.
		switch {
		case target == nil:
			// No body; re-enter immediately.
		case target.IsInline():
			*stack = append(*stack, frame{nodes: target.Inline, loop: pn})
		default:
			body, ok := parsed.Lookup(target.InstanceID)
			if !ok {
				// Validated at parse; a miss here leaves the loop and
				// advances to the next sibling.
				cur.idx++
				return true
			}
			*stack = append(*stack, frame{nodes: []*workflow.ParsedNode{body}, loop: pn})
		}
		return true
	}

	switch {
	case target == nil || target.Implicit:
		cur.idx++
	case target.IsInline():
		// Remaining siblings stay on the return stack; descend into the
		// fragment.
		cur.idx++
		*stack = append(*stack, frame{nodes: target.Inline})
	default:
		// Named jump. A target in the current sequence moves the cursor; a
		// top-level target replaces the stack. A dangling last-sibling target
		// ends the execution normally.
		if pos := indexOf(cur.nodes, target.InstanceID); pos >= 0 {
			cur.idx = pos
			return true
		}
		if pos := indexOf(parsed.Nodes, target.InstanceID); pos >= 0 {
			*stack = []frame{{nodes: parsed.Nodes, idx: pos}}
			return true
		}
		cur.idx = len(cur.nodes)
	}
	return true
}

func (e *Engine) nodeEnv(opts *Options) map[string]string {
	if len(opts.Env) == 0 {
		return e.env
	}
	merged := make(map[string]string, len(e.env)+len(opts.Env))
	for k, v := range e.env {
		merged[k] = v
	}
	for k, v := range opts.Env {
		merged[k] = v
	}
	return merged
}

func (e *Engine) finishCompleted(exec *Execution) {
	final := exec.state.PublicSnapshot()
	now := time.Now()
	exec.mu.Lock()
	exec.Status = StatusCompleted
	exec.EndedAt = &now
	exec.FinalState = final
	exec.mu.Unlock()
	e.emitCompleted(exec)
}

func (e *Engine) finishFailed(exec *Execution, execErr *ExecutionError) {
	now := time.Now()
	exec.mu.Lock()
	exec.Status = StatusFailed
	exec.EndedAt = &now
	exec.Error = execErr
	exec.FinalState = exec.state.PublicSnapshot()
	exec.mu.Unlock()
	e.log.Error("execution failed",
		"executionId", exec.ID, "workflowId", exec.WorkflowID,
		"kind", execErr.Kind, "error", execErr.Message)
	e.emitCompleted(exec)
}

func (e *Engine) finishInterrupted(exec *Execution, cause error) {
	if errors.Is(cause, context.DeadlineExceeded) {
		e.finishFailed(exec, &ExecutionError{Kind: KindTimeout, Message: ErrExecutionTimeout.Error()})
		return
	}
	now := time.Now()
	exec.mu.Lock()
	exec.Status = StatusCancelled
	exec.EndedAt = &now
	exec.Error = &ExecutionError{Kind: KindCancelled, Message: ErrExecutionCancelled.Error()}
	exec.FinalState = exec.state.PublicSnapshot()
	exec.mu.Unlock()
	e.emitCompleted(exec)
}

func (e *Engine) emitCompleted(exec *Execution) {
	exec.mu.RLock()
	status := exec.Status
	final := exec.FinalState
	duration := int64(0)
	if exec.EndedAt != nil {
		duration = exec.EndedAt.Sub(exec.StartedAt).Milliseconds()
	}
	exec.mu.RUnlock()

	e.emit(exec, realtime.EventExecutionCompleted, "", map[string]interface{}{
		"status":     string(status),
		"finalState": final,
		"durationMs": duration,
	})
}

// emit publishes a lifecycle event with per-execution monotonic timestamps
// and appends it to the execution's event log.
func (e *Engine) emit(exec *Execution, eventType realtime.EventType, nodeID string, data map[string]interface{}) {
	ev := realtime.NewEvent(eventType, exec.ID, exec.WorkflowID, data)
	ev.NodeID = nodeID

	exec.mu.Lock()
	if !ev.Timestamp.After(exec.lastEvent) {
		ev.Timestamp = exec.lastEvent.Add(time.Nanosecond)
	}
	exec.lastEvent = ev.Timestamp
	exec.Events = append(exec.Events, ev)
	exec.mu.Unlock()

	e.bus.Publish(ev)
}

func indexOf(nodes []*workflow.ParsedNode, instanceID string) int {
	for i, n := range nodes {
		if n.InstanceID == instanceID {
			return i
		}
	}
	return -1
}

func sortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// preview renders a short human summary of a payload for events.
func preview(m map[string]interface{}) string {
	const max = 120
	s := resolver.Stringify(m)
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
