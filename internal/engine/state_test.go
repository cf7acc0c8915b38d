package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateSetGet(t *testing.T) {
	s := NewState(nil)

	s.Set("key", "value")
	v, ok := s.Get("key")
	require.True(t, ok)
	assert.Equal(t, "value", v)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStateSetPathRoundTrip(t *testing.T) {
	s := NewState(nil)

	tests := []struct {
		path  string
		value interface{}
	}{
		{"top", 1},
		{"a.b.c", "deep"},
		{"a.b.d", true},
		{"list", []interface{}{1, 2}},
	}

	for _, tt := range tests {
		s.SetPath(tt.path, tt.value)
		got, ok := s.GetPath(tt.path)
		require.True(t, ok, "path %s", tt.path)
		assert.Equal(t, tt.value, got, "path %s", tt.path)
	}
}

func TestStateSetPathReplacesScalarIntermediate(t *testing.T) {
	s := NewState(nil)
	s.Set("a", "scalar")

	s.SetPath("a.b", 1)
	got, ok := s.GetPath("a.b")
	require.True(t, ok)
	assert.Equal(t, 1, got)
}

func TestStateMerge(t *testing.T) {
	s := NewState(map[string]interface{}{"keep": 1, "replace": "old"})
	s.Merge(map[string]interface{}{"replace": "new", "added": true})

	v, _ := s.Get("keep")
	assert.Equal(t, 1, v)
	v, _ = s.Get("replace")
	assert.Equal(t, "new", v)
	v, _ = s.Get("added")
	assert.Equal(t, true, v)
}

func TestStateSnapshotIsolation(t *testing.T) {
	s := NewState(map[string]interface{}{
		"nested": map[string]interface{}{"n": 1},
	})

	snap := s.Snapshot()
	snap["nested"].(map[string]interface{})["n"] = 99
	snap["new"] = true

	got, _ := s.GetPath("nested.n")
	assert.Equal(t, 1, got)
	_, ok := s.Get("new")
	assert.False(t, ok)
}

func TestStateInitialSeedIsCopied(t *testing.T) {
	initial := map[string]interface{}{
		"nested": map[string]interface{}{"n": 1},
	}
	s := NewState(initial)

	initial["nested"].(map[string]interface{})["n"] = 99

	got, _ := s.GetPath("nested.n")
	assert.Equal(t, 1, got)
}

func TestStatePublicSnapshotHidesReservedKeys(t *testing.T) {
	s := NewState(map[string]interface{}{"visible": 1})
	s.Set("_edgeContext", map[string]interface{}{"from": "x"})
	s.Set("__everyArrayItem_loop", 2)

	public := s.PublicSnapshot()
	assert.Equal(t, map[string]interface{}{"visible": 1}, public)

	// Reserved keys stay available to the engine and nodes.
	_, ok := s.Get("_edgeContext")
	assert.True(t, ok)
	_, ok = s.Get("__everyArrayItem_loop")
	assert.True(t, ok)
}
