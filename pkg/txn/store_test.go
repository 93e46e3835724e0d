package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/memory"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(t.TempDir(), memory.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestCreateVertexCommitVisibleToNewTransaction(t *testing.T) {
	store := openTestStore(t)

	txn := store.Begin()
	created, err := txn.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task", Title: graph.Title{Plain: "A"}})
	require.NoError(t, err)
	assert.True(t, created)
	require.NoError(t, txn.Commit())

	txn2 := store.Begin()
	defer txn2.Rollback()
	assert.True(t, txn2.VertexExists(1))
	v, err := txn2.GetVertex(1)
	require.NoError(t, err)
	assert.Equal(t, graph.CardTypeId("task"), v.CardTypeID)
}

func TestCreateVertexDuplicateIsNoop(t *testing.T) {
	store := openTestStore(t)
	txn := store.Begin()
	_, err := txn.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task"})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn2 := store.Begin()
	defer txn2.Rollback()
	created, err := txn2.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task"})
	require.NoError(t, err)
	assert.False(t, created)
}

func TestRollbackDiscardsStagedWrites(t *testing.T) {
	store := openTestStore(t)
	txn := store.Begin()
	_, err := txn.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task"})
	require.NoError(t, err)
	txn.Rollback()

	txn2 := store.Begin()
	defer txn2.Rollback()
	assert.False(t, txn2.VertexExists(1))
}

func TestReadCommittedIsolationBetweenConcurrentTransactions(t *testing.T) {
	store := openTestStore(t)

	t1 := store.Begin()
	_, err := t1.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task"})
	require.NoError(t, err)

	t2 := store.Begin()
	defer t2.Rollback()
	assert.False(t, t2.VertexExists(1), "t1's uncommitted write must not be visible to t2")

	require.NoError(t, t1.Commit())

	t3 := store.Begin()
	defer t3.Rollback()
	assert.True(t, t3.VertexExists(1), "t1's committed write must be visible to a fresh transaction")
}

func TestCreateEdgeRequiresBothEndpoints(t *testing.T) {
	store := openTestStore(t)
	txn := store.Begin()
	_, err := txn.CreateEdge(graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"})
	assert.ErrorIs(t, err, graph.ErrVertexMissing)
	txn.Rollback()
}

func TestCreateEdgeThenQueryWithinSameTransaction(t *testing.T) {
	store := openTestStore(t)
	txn := store.Begin()
	_, err := txn.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task"})
	require.NoError(t, err)
	_, err = txn.CreateVertex(&graph.Vertex{CardID: 2, CardTypeID: "task"})
	require.NoError(t, err)

	created, err := txn.CreateEdge(graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"})
	require.NoError(t, err)
	assert.True(t, created)

	desc := graph.Descriptor{EdgeType: "LINKS", Direction: graph.DirSrc}
	assert.Contains(t, txn.NeighborIDs(desc, 1), graph.CardId(2))
	require.NoError(t, txn.Commit())
}

func TestBidirectionalEdgeVisibleFromBothEndpointsAfterCommit(t *testing.T) {
	store := openTestStore(t)
	txn := store.Begin()
	_, _ = txn.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task"})
	_, _ = txn.CreateVertex(&graph.Vertex{CardID: 2, CardTypeID: "task"})
	_, err := txn.CreateEdge(graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())

	txn2 := store.Begin()
	defer txn2.Rollback()
	fwd := graph.Descriptor{EdgeType: "LINKS", Direction: graph.DirSrc}
	back := graph.Descriptor{EdgeType: "LINKS", Direction: graph.DirDest}
	assert.Contains(t, txn2.NeighborIDs(fwd, 1), graph.CardId(2))
	assert.Contains(t, txn2.NeighborIDs(back, 2), graph.CardId(1))
}

func TestRebuildRestoresMemoryLayerFromDisk(t *testing.T) {
	dataDir := t.TempDir()
	store, err := Open(dataDir, memory.DefaultConfig())
	require.NoError(t, err)

	txn := store.Begin()
	_, _ = txn.CreateVertex(&graph.Vertex{CardID: 1, CardTypeID: "task"})
	_, _ = txn.CreateVertex(&graph.Vertex{CardID: 2, CardTypeID: "task"})
	_, err = txn.CreateEdge(graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"})
	require.NoError(t, err)
	require.NoError(t, txn.Commit())
	require.NoError(t, store.Close())

	reopened, err := Open(dataDir, memory.DefaultConfig())
	require.NoError(t, err)
	defer reopened.Close()

	txn2 := reopened.Begin()
	defer txn2.Rollback()
	assert.True(t, txn2.VertexExists(1))
	assert.True(t, txn2.VertexExists(2))
	assert.Equal(t, int64(1), reopened.Stats().EdgeCount)
}

func TestGetVerticesSplitsHitsAndMisses(t *testing.T) {
	store := openTestStore(t)
	txn := store.Begin()
	for _, id := range []graph.CardId{1, 2, 3} {
		_, err := txn.CreateVertex(&graph.Vertex{CardID: id, CardTypeID: "task"})
		require.NoError(t, err)
	}
	require.NoError(t, txn.Commit())

	txn2 := store.Begin()
	defer txn2.Rollback()
	out, err := txn2.GetVertices([]graph.CardId{1, 2, 99})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}
