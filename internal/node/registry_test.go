package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNode struct {
	meta Metadata
}

func (s *stubNode) Metadata() Metadata { return s.meta }

func (s *stubNode) Execute(ctx *ExecutionContext, config map[string]interface{}) (EdgeMap, error) {
	return Edge("success", nil), nil
}

func validStub(id string) *stubNode {
	return &stubNode{meta: Metadata{
		ID:      id,
		Name:    "Stub " + id,
		Version: "1.0.0",
		Inputs:  []string{},
		Outputs: []string{"success"},
	}}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()

	require.NoError(t, r.Register(validStub("alpha"), nil))
	require.NoError(t, r.Register(validStub("beta"), &RegisterOptions{Source: "plugin"}))

	n, err := r.Get("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", n.Metadata().ID)

	assert.Equal(t, 2, r.Size())
	assert.True(t, r.Has("beta"))
	assert.False(t, r.Has("gamma"))
}

func TestRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validStub("alpha"), nil))

	err := r.Register(validStub("alpha"), nil)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestRegisterInvalidMetadata(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name string
		meta Metadata
	}{
		{"missing id", Metadata{Name: "X", Version: "1.0.0"}},
		{"missing name", Metadata{ID: "x", Version: "1.0.0"}},
		{"missing version", Metadata{ID: "x", Name: "X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Register(&stubNode{meta: tt.meta}, nil)
			assert.ErrorIs(t, err, ErrInvalidMetadata)
		})
	}
}

func TestGetUnknown(t *testing.T) {
	r := NewRegistry()
	_, err := r.Get("nope")
	assert.ErrorIs(t, err, ErrUnknownNode)
}

func TestListSortedAndBySource(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validStub("zeta"), &RegisterOptions{Source: "builtin"}))
	require.NoError(t, r.Register(validStub("alpha"), &RegisterOptions{Source: "plugin"}))

	all := r.List()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].ID)
	assert.Equal(t, "zeta", all[1].ID)

	builtins := r.ListBySource("builtin")
	require.Len(t, builtins, 1)
	assert.Equal(t, "zeta", builtins[0].ID)
}

func TestExpectedEdgesFallback(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(validStub("plain"), nil))

	hinted := validStub("hinted")
	hinted.meta.AIHints = &AIHints{ExpectedEdges: []string{"current-item", "complete"}}
	require.NoError(t, r.Register(hinted, nil))

	assert.Equal(t, []string{"success"}, r.ExpectedEdges("plain"))
	assert.Equal(t, []string{"current-item", "complete"}, r.ExpectedEdges("hinted"))
	assert.Nil(t, r.ExpectedEdges("missing"))
}

func TestDiscover(t *testing.T) {
	Provide("test-pack", func() Node { return validStub("discovered-1") })
	Provide("test-pack", func() Node { return validStub("discovered-2") })
	Provide("other-pack", func() Node { return validStub("discovered-3") })

	r := NewRegistry()
	count, err := r.Discover("test-pack")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.True(t, r.Has("discovered-1"))
	assert.False(t, r.Has("discovered-3"))

	// Re-discovery skips duplicates.
	count, err = r.Discover("test-pack")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
