package raftfsm

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
)

// freeTCPAddr picks an address on a free ephemeral port for a single-node
// Raft bootstrap test, so the transport advertises a real, dialable address
// instead of port 0.
func freeTCPAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())
	return addr
}

func waitForLeader(t *testing.T, c *Cluster) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if c.IsLeader() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("cluster never became leader")
}

func TestClusterSingleNodeBootstrapAndApply(t *testing.T) {
	store := openTestStore(t)
	fsm := NewFSM(store, t.TempDir(), 0)
	c := NewCluster("node1", freeTCPAddr(t), t.TempDir(), fsm)

	require.NoError(t, c.Bootstrap())
	t.Cleanup(func() { c.Shutdown() })
	waitForLeader(t, c)

	resp, err := c.Apply(OpCreateCards, []*graph.Vertex{{CardID: 1, CardTypeID: "task"}}, 5*time.Second)
	require.NoError(t, err)
	sum, ok := resp.(Summary)
	require.True(t, ok)
	assert.Equal(t, 1, sum.SuccessCount)

	servers, err := c.GetClusterServers()
	require.NoError(t, err)
	assert.Len(t, servers, 1)

	stats := c.Stats()
	assert.Equal(t, "Leader", stats["state"])
}
