package workflow

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Narcis13/workscript/internal/node"
)

// StateSetterNodeID is the registry id of the built-in node that "$." sugar
// entries are routed to.
const StateSetterNodeID = "state-setter"

const (
	loopSuffix     = "..."
	edgeKeySuffix  = "?"
	successEdge    = "success"
	stateSugarPref = "$."
)

// Parser lowers workflow definitions into flat ParsedNode lists. Parsing is
// pure: the same definition always yields the same output, and nothing is
// ever executed.
type Parser struct {
	registry *node.Registry
}

// NewParser creates a parser bound to a node registry.
func NewParser(registry *node.Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse lowers a definition and validates the result: every node id must
// resolve in the registry, every edge target must resolve to a known
// instance, and cycles are only allowed through loop-marked nodes.
func (p *Parser) Parse(def *Definition) (*ParsedWorkflow, error) {
	pw := &ParsedWorkflow{
		ID:           def.ID,
		Name:         def.Name,
		Version:      def.Version,
		Description:  def.Description,
		InitialState: def.InitialState,
		index:        make(map[string]*ParsedNode),
	}

	nodes, err := p.parseSequence(def.Workflow, "workflow", pw)
	if err != nil {
		return nil, err
	}
	pw.Nodes = nodes

	if err := p.validate(pw); err != nil {
		return nil, err
	}

	return pw, nil
}

// parseSequence parses a list of node entries and links implicit success
// edges between explicit-edge-free siblings.
func (p *Parser) parseSequence(entries []NodeEntry, path string, pw *ParsedWorkflow) ([]*ParsedNode, error) {
	nodes := make([]*ParsedNode, 0, len(entries))
	for i, entry := range entries {
		entryPath := fmt.Sprintf("%s[%d]", path, i)
		rawKey, err := entry.Key()
		if err != nil {
			return nil, &ParseError{Path: entryPath, Message: err.Error()}
		}
		parsed, err := p.parseEntry(rawKey, entry[rawKey], entryPath, pw)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, parsed)
	}

	// Nodes that declare no explicit edge targets inherit the next sibling
	// as their success target when their metadata expects a success edge.
	for i, n := range nodes {
		if len(n.Edges) > 0 || n.IsLoop || i+1 >= len(nodes) {
			continue
		}
		if !edgeExpected(p.registry.ExpectedEdges(n.NodeID), successEdge) {
			continue
		}
		n.Edges[successEdge] = &EdgeTarget{InstanceID: nodes[i+1].InstanceID, Implicit: true}
	}

	return nodes, nil
}

func (p *Parser) parseEntry(rawKey string, rawConfig interface{}, path string, pw *ParsedWorkflow) (*ParsedNode, error) {
	if strings.HasPrefix(rawKey, stateSugarPref) {
		return p.parseStateSetter(rawKey, rawConfig, path, pw)
	}

	isLoop := strings.HasSuffix(rawKey, loopSuffix)
	instanceID := strings.TrimSuffix(rawKey, loopSuffix)
	if instanceID == "" {
		return nil, &ParseError{Path: path, Message: "empty node key"}
	}

	config, err := configMap(rawConfig)
	if err != nil {
		return nil, &ParseError{Path: path, Message: err.Error()}
	}

	parsed := &ParsedNode{
		NodeID:     p.resolveNodeID(instanceID),
		InstanceID: instanceID,
		Config:     config,
		Edges:      make(map[string]*EdgeTarget),
		IsLoop:     isLoop,
	}

	if err := p.extractEdges(parsed, path, pw); err != nil {
		return nil, err
	}

	if err := p.addInstance(parsed, path, pw); err != nil {
		return nil, err
	}
	return parsed, nil
}

// parseStateSetter rewrites "$.a.b.c" sugar into a call to the built-in
// state-setter node with statePath "a.b.c". The value comes from the config's
// "value" key when present, otherwise the config itself is the value.
func (p *Parser) parseStateSetter(rawKey string, rawConfig interface{}, path string, pw *ParsedWorkflow) (*ParsedNode, error) {
	statePath := strings.TrimPrefix(rawKey, stateSugarPref)
	if statePath == "" {
		return nil, &ParseError{Path: path, Message: "state-setter key has no path"}
	}
	for _, seg := range strings.Split(statePath, ".") {
		if seg == "" {
			return nil, &ParseError{Path: path, Message: fmt.Sprintf("state-setter path %q has an empty segment", rawKey)}
		}
	}

	value := rawConfig
	if m, ok := rawConfig.(map[string]interface{}); ok {
		if v, exists := m["value"]; exists {
			value = v
		}
	}

	// The same path may legitimately be set more than once in a workflow;
	// instance ids get a deterministic ordinal suffix.
	instanceID := rawKey
	for ordinal := 2; ; ordinal++ {
		if _, taken := pw.index[instanceID]; !taken {
			break
		}
		instanceID = fmt.Sprintf("%s#%d", rawKey, ordinal)
	}

	parsed := &ParsedNode{
		NodeID:     StateSetterNodeID,
		InstanceID: instanceID,
		Config: map[string]interface{}{
			"statePath": statePath,
			"value":     value,
		},
		Edges:         make(map[string]*EdgeTarget),
		IsStateSetter: true,
	}

	if err := p.addInstance(parsed, path, pw); err != nil {
		return nil, err
	}
	return parsed, nil
}

// resolveNodeID strips a trailing "-<suffix>" disambiguator only when the
// full key is not itself a registered node and the base is.
func (p *Parser) resolveNodeID(instanceID string) string {
	if p.registry.Has(instanceID) {
		return instanceID
	}
	if idx := strings.LastIndex(instanceID, "-"); idx > 0 {
		base := instanceID[:idx]
		if p.registry.Has(base) {
			return base
		}
	}
	return instanceID
}

// extractEdges pulls "edge?" keys out of the config. String values reference
// another instance by id; objects and lists are inline fragments parsed
// recursively.
func (p *Parser) extractEdges(parsed *ParsedNode, path string, pw *ParsedWorkflow) error {
	keys := make([]string, 0, len(parsed.Config))
	for k := range parsed.Config {
		if strings.HasSuffix(k, edgeKeySuffix) && len(k) > 1 {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	for _, key := range keys {
		edgeName := strings.TrimSuffix(key, edgeKeySuffix)
		edgePath := fmt.Sprintf("%s.%s", path, key)

		switch target := parsed.Config[key].(type) {
		case string:
			parsed.Edges[edgeName] = &EdgeTarget{InstanceID: target}
		case map[string]interface{}:
			inline, err := p.parseSequence([]NodeEntry{NodeEntry(target)}, edgePath, pw)
			if err != nil {
				return err
			}
			parsed.Edges[edgeName] = &EdgeTarget{Inline: inline}
		case []interface{}:
			entries := make([]NodeEntry, 0, len(target))
			for i, item := range target {
				m, ok := item.(map[string]interface{})
				if !ok {
					return &ParseError{Path: fmt.Sprintf("%s[%d]", edgePath, i), Message: "inline fragment entries must be objects"}
				}
				entries = append(entries, NodeEntry(m))
			}
			inline, err := p.parseSequence(entries, edgePath, pw)
			if err != nil {
				return err
			}
			parsed.Edges[edgeName] = &EdgeTarget{Inline: inline}
		default:
			return &ParseError{Path: edgePath, Message: fmt.Sprintf("edge target must be a string, object, or list, got %T", parsed.Config[key])}
		}
	}
	return nil
}

func (p *Parser) addInstance(parsed *ParsedNode, path string, pw *ParsedWorkflow) error {
	if _, taken := pw.index[parsed.InstanceID]; taken {
		return &ParseError{Path: path, Message: fmt.Sprintf("duplicate node instance %q; disambiguate with a -<n> suffix", parsed.InstanceID)}
	}
	pw.index[parsed.InstanceID] = parsed
	return nil
}

func (p *Parser) validate(pw *ParsedWorkflow) error {
	// Every node id must resolve in the registry.
	for _, n := range sortedInstances(pw) {
		if !p.registry.Has(n.NodeID) {
			return &ParseError{
				Path:    n.InstanceID,
				Message: fmt.Sprintf("unknown node %q", n.NodeID),
				Err:     node.ErrUnknownNode,
			}
		}
		// Every named edge target must resolve to a known instance.
		for edgeName, target := range n.Edges {
			if target.IsInline() {
				continue
			}
			if _, ok := pw.index[target.InstanceID]; !ok {
				return &ParseError{
					Path:    fmt.Sprintf("%s.%s?", n.InstanceID, edgeName),
					Message: fmt.Sprintf("edge target %q does not resolve to a node instance", target.InstanceID),
				}
			}
		}
	}

	return p.checkCycles(pw)
}

// checkCycles rejects cycles over named edges unless the cycle passes
// through a loop-marked node.
func (p *Parser) checkCycles(pw *ParsedWorkflow) error {
	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int)
	var path []string

	var visit func(n *ParsedNode) error
	visit = func(n *ParsedNode) error {
		color[n.InstanceID] = gray
		path = append(path, n.InstanceID)

		edgeNames := make([]string, 0, len(n.Edges))
		for name := range n.Edges {
			edgeNames = append(edgeNames, name)
		}
		sort.Strings(edgeNames)

		for _, name := range edgeNames {
			target := n.Edges[name]
			var nexts []*ParsedNode
			if target.IsInline() {
				nexts = target.Inline[:1]
			} else if t, ok := pw.index[target.InstanceID]; ok {
				nexts = []*ParsedNode{t}
			}
			for _, next := range nexts {
				switch color[next.InstanceID] {
				case gray:
					if !cycleHasLoopNode(path, next.InstanceID, pw) && !n.IsLoop {
						return &ParseError{
							Path:    n.InstanceID,
							Message: fmt.Sprintf("cycle through %q without a loop-marked node", next.InstanceID),
						}
					}
				case white:
					if err := visit(next); err != nil {
						return err
					}
				}
			}
		}

		path = path[:len(path)-1]
		color[n.InstanceID] = black
		return nil
	}

	for _, n := range sortedInstances(pw) {
		if color[n.InstanceID] == white {
			if err := visit(n); err != nil {
				return err
			}
		}
	}
	return nil
}

// cycleHasLoopNode reports whether the open path from `from` onward contains
// a loop-marked node.
func cycleHasLoopNode(path []string, from string, pw *ParsedWorkflow) bool {
	started := false
	for _, id := range path {
		if id == from {
			started = true
		}
		if !started {
			continue
		}
		if n, ok := pw.index[id]; ok && n.IsLoop {
			return true
		}
	}
	return false
}

func sortedInstances(pw *ParsedWorkflow) []*ParsedNode {
	ids := make([]string, 0, len(pw.index))
	for id := range pw.index {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	out := make([]*ParsedNode, 0, len(ids))
	for _, id := range ids {
		out = append(out, pw.index[id])
	}
	return out
}

func configMap(raw interface{}) (map[string]interface{}, error) {
	if raw == nil {
		return map[string]interface{}{}, nil
	}
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("node config must be an object, got %T", raw)
	}
	return m, nil
}

func edgeExpected(expected []string, name string) bool {
	for _, e := range expected {
		if e == name {
			return true
		}
	}
	return false
}
