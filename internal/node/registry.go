package node

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// Registry errors. Callers match with errors.Is.
var (
	ErrDuplicateID     = errors.New("node id already registered")
	ErrUnknownNode     = errors.New("node not found")
	ErrInvalidMetadata = errors.New("invalid node metadata")
)

// RegisterOptions customizes registration.
type RegisterOptions struct {
	// Source tags where the node came from ("builtin", "plugin", ...).
	// Overrides any source declared in the node's metadata.
	Source string
}

// Registry holds registered node implementations keyed by metadata id.
// Registration happens during initialization; reads afterwards take the
// shared read lock, so concurrent lookups do not block each other.
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]Node
	src   map[string]string
}

// NewRegistry creates an empty node registry.
func NewRegistry() *Registry {
	return &Registry{
		nodes: make(map[string]Node),
		src:   make(map[string]string),
	}
}

// Register validates metadata and indexes the node by its id.
func (r *Registry) Register(n Node, opts *RegisterOptions) error {
	meta := n.Metadata()
	if !meta.Valid() {
		return fmt.Errorf("%w: id=%q name=%q version=%q", ErrInvalidMetadata, meta.ID, meta.Name, meta.Version)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.nodes[meta.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateID, meta.ID)
	}

	r.nodes[meta.ID] = n
	source := meta.Source
	if opts != nil && opts.Source != "" {
		source = opts.Source
	}
	r.src[meta.ID] = source

	return nil
}

// Get returns a node by id.
func (r *Registry) Get(id string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n, exists := r.nodes[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrUnknownNode, id)
	}
	return n, nil
}

// Has reports whether a node id is registered.
func (r *Registry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.nodes[id]
	return exists
}

// ExpectedEdges returns the expected edges of a registered node, or nil for
// an unknown id. The parser uses it to wire implicit sequence edges.
func (r *Registry) ExpectedEdges(id string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, exists := r.nodes[id]
	if !exists {
		return nil
	}
	return n.Metadata().ExpectedEdges()
}

// List returns metadata for every registered node, sorted by id.
func (r *Registry) List() []Metadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Metadata, 0, len(r.nodes))
	for id, n := range r.nodes {
		meta := n.Metadata()
		meta.Source = r.src[id]
		result = append(result, meta)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// ListBySource returns metadata for nodes registered with the given source.
func (r *Registry) ListBySource(source string) []Metadata {
	var result []Metadata
	for _, meta := range r.List() {
		if meta.Source == source {
			result = append(result, meta)
		}
	}
	return result
}

// Size returns the number of registered nodes.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.nodes)
}

// Factory produces a node instance for discovery.
type Factory func() Node

type providedFactory struct {
	source  string
	factory Factory
}

var (
	providersMu sync.Mutex
	providers   []providedFactory
)

// Provide announces a node factory for discovery. Node packages call it from
// init so that Discover can populate a registry without the embedding naming
// every node.
func Provide(source string, factory Factory) {
	providersMu.Lock()
	defer providersMu.Unlock()
	providers = append(providers, providedFactory{source: source, factory: factory})
}

// Discover registers every provided node whose source matches. An empty
// source matches all. Returns the number registered.
func (r *Registry) Discover(source string) (int, error) {
	providersMu.Lock()
	candidates := make([]providedFactory, len(providers))
	copy(candidates, providers)
	providersMu.Unlock()

	count := 0
	for _, p := range candidates {
		if source != "" && p.source != source {
			continue
		}
		if err := r.Register(p.factory(), &RegisterOptions{Source: p.source}); err != nil {
			if errors.Is(err, ErrDuplicateID) {
				continue
			}
			return count, err
		}
		count++
	}
	return count, nil
}
