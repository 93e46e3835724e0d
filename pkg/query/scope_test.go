package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
)

func TestResolveScopeRewritesLinkLeaf(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task"})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "task"})
	mustCreateEdge(t, tx, graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	cond := &Condition{Leaf: Leaf{
		Kind: LeafLink, Op: OpIn,
		Path: []LinkPath{{EdgeType: "LINKS", Position: -1}},
		IDs:  []graph.CardId{1},
	}}
	scope, empty := ResolveScope(tx2, Scope{}, cond)
	assert.False(t, empty)
	assert.Equal(t, []graph.CardId{2}, scope.CardIDs)
}

func TestResolveScopeEmptyResultShortCircuits(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task"})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	cond := &Condition{Leaf: Leaf{
		Kind: LeafLink, Op: OpIn,
		Path: []LinkPath{{EdgeType: "LINKS", Position: -1}},
		IDs:  []graph.CardId{1},
	}}
	_, empty := ResolveScope(tx2, Scope{}, cond)
	assert.True(t, empty)
}

func TestResolveScopeIgnoresNonLinkLeaf(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	defer tx.Rollback()
	cond := &Condition{Leaf: Leaf{Kind: LeafState, Op: OpEqual, State: graph.StateActive}}
	scope, empty := ResolveScope(tx, Scope{CardTypeIDs: []graph.CardTypeId{"task"}}, cond)
	assert.False(t, empty)
	assert.Equal(t, []graph.CardTypeId{"task"}, scope.CardTypeIDs)
}

func TestQueryVerticesFromExplicitIDs(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task"})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "task"})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	ids := QueryVertices(tx2, Scope{CardIDs: []graph.CardId{1, 2, 999}})
	assert.ElementsMatch(t, []graph.CardId{1, 2}, ids, "stale/deleted ids are filtered out")
}

func TestQueryVerticesFiltersByContainerAndState(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task", ContainerID: "c1", State: graph.StateActive})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "task", ContainerID: "c2", State: graph.StateActive})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 3, CardTypeID: "task", ContainerID: "c1", State: graph.StateArchived})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	ids := QueryVertices(tx2, Scope{
		CardTypeIDs:  []graph.CardTypeId{"task"},
		ContainerIDs: []graph.ContainerId{"c1"},
		States:       []graph.State{graph.StateActive},
	})
	assert.Equal(t, []graph.CardId{1}, ids)
}

func TestQueryVerticesUnionsTypesWithoutDuplicates(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task"})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "epic"})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	ids := QueryVertices(tx2, Scope{CardTypeIDs: []graph.CardTypeId{"task", "epic"}})
	assert.ElementsMatch(t, []graph.CardId{1, 2}, ids)
}
