package engine

import (
	"strings"
)

// State is the per-execution key/value bag. Nodes run sequentially within an
// execution, so State needs no locking; executions never share a State.
// Keys starting with "__" or "_" are reserved for engine and per-node
// bookkeeping and are preserved across node calls.
type State struct {
	data map[string]interface{}
}

// NewState creates a State seeded from initial. The seed is deep-copied so
// callers cannot alias into the execution.
func NewState(initial map[string]interface{}) *State {
	s := &State{data: make(map[string]interface{})}
	for k, v := range initial {
		s.data[k] = deepCopyValue(v)
	}
	return s
}

// Get returns the value at key.
func (s *State) Get(key string) (interface{}, bool) {
	v, ok := s.data[key]
	return v, ok
}

// Set stores value at key.
func (s *State) Set(key string, value interface{}) {
	s.data[key] = value
}

// Merge applies every entry of patch on top of the current state.
func (s *State) Merge(patch map[string]interface{}) {
	for k, v := range patch {
		s.data[k] = v
	}
}

// SetPath writes value at a dot path, creating intermediate maps. An
// intermediate non-map value is replaced by a map.
func (s *State) SetPath(dotPath string, value interface{}) {
	parts := strings.Split(dotPath, ".")
	current := s.data
	for i := 0; i < len(parts)-1; i++ {
		next, ok := current[parts[i]].(map[string]interface{})
		if !ok {
			next = make(map[string]interface{})
			current[parts[i]] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = value
}

// GetPath reads the value at a dot path.
func (s *State) GetPath(dotPath string) (interface{}, bool) {
	parts := strings.Split(dotPath, ".")
	var current interface{} = s.data
	for _, part := range parts {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// Snapshot returns a deep copy of the state for event payloads and final
// results. Mutating the snapshot never affects the live state.
func (s *State) Snapshot() map[string]interface{} {
	return deepCopyMap(s.data)
}

// PublicSnapshot returns a deep copy without reserved bookkeeping keys.
func (s *State) PublicSnapshot() map[string]interface{} {
	out := make(map[string]interface{}, len(s.data))
	for k, v := range s.data {
		if strings.HasPrefix(k, "_") {
			continue
		}
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyMap(m map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		return deepCopyMap(val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = deepCopyValue(item)
		}
		return out
	default:
		return v
	}
}
