package query

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/memory"
	"github.com/pgraph/pgraph/pkg/txn"
)

func openTestStore(t *testing.T) *txn.Store {
	t.Helper()
	store, err := txn.Open(t.TempDir(), memory.DefaultConfig())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func mustCreateVertex(t *testing.T, tx *txn.Transaction, v *graph.Vertex) {
	t.Helper()
	_, err := tx.CreateVertex(v)
	require.NoError(t, err)
}

func mustCreateEdge(t *testing.T, tx *txn.Transaction, e graph.Edge) {
	t.Helper()
	_, err := tx.CreateEdge(e)
	require.NoError(t, err)
}
