package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoOrder_Linear(t *testing.T) {
	g, err := New([]string{"build", "test", "deploy"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("build", "test"))
	require.NoError(t, g.AddEdge("test", "deploy"))

	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"build", "test", "deploy"}, order)
}

func TestTopoOrder_Diamond(t *testing.T) {
	g, err := New([]string{"a", "b", "c", "d"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "d"))
	require.NoError(t, g.AddEdge("c", "d"))

	order, err := g.TopoOrder()
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)

	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["a"], pos["c"])
	assert.Less(t, pos["b"], pos["d"])
	assert.Less(t, pos["c"], pos["d"])
}

func TestTopoOrder_CycleNamesAllMembers(t *testing.T) {
	g, err := New([]string{"a", "b", "c", "standalone"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("c", "a"))

	_, err = g.TopoOrder()
	require.Error(t, err)

	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, cycleErr.Members)
}

func TestTopoOrder_SelfLoop(t *testing.T) {
	g, err := New([]string{"a"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("a", "a"))

	_, err = g.TopoOrder()
	var cycleErr *CycleError
	require.ErrorAs(t, err, &cycleErr)
	assert.Equal(t, []string{"a"}, cycleErr.Members)
}

func TestNew_DuplicateID(t *testing.T) {
	_, err := New([]string{"a", "a"})
	require.Error(t, err)
}

func TestAddEdge_UnknownNode(t *testing.T) {
	g, err := New([]string{"a"})
	require.NoError(t, err)
	assert.Error(t, g.AddEdge("a", "b"))
	assert.Error(t, g.AddEdge("b", "a"))
}

func TestTransitiveDependents(t *testing.T) {
	g, err := New([]string{"a", "b", "c", "d", "e"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("b", "c"))
	require.NoError(t, g.AddEdge("b", "d"))

	assert.Equal(t, []string{"b", "c", "d"}, g.TransitiveDependents("a"))
	assert.Empty(t, g.TransitiveDependents("e"))
}

func TestInDegrees(t *testing.T) {
	g, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("a", "b"))
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "c"))

	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 2}, g.InDegrees())
}

func TestDependenciesAndDependents(t *testing.T) {
	g, err := New([]string{"a", "b", "c"})
	require.NoError(t, err)
	require.NoError(t, g.AddEdge("a", "c"))
	require.NoError(t, g.AddEdge("b", "c"))

	assert.ElementsMatch(t, []string{"a", "b"}, g.Dependencies("c"))
	assert.Equal(t, []string{"c"}, g.Dependents("a"))
}
