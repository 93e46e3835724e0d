package raftfsm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
)

func TestSnapshotMetaJSONRoundTripIncludesMembership(t *testing.T) {
	meta := snapshotMeta{
		SnapshotID: "1700000000",
		LastLogID:  42,
		LastMembership: raft.Configuration{Servers: []raft.Server{
			{ID: raft.ServerID("node1"), Address: raft.ServerAddress("127.0.0.1:8300")},
		}},
		TimestampUnix: 1700000000,
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)

	var out snapshotMeta
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, meta.SnapshotID, out.SnapshotID)
	assert.Equal(t, meta.LastLogID, out.LastLogID)
	assert.Equal(t, meta.LastMembership, out.LastMembership)
}

func TestSnapshotWritesMembershipIntoMetaSidecar(t *testing.T) {
	store := openTestStore(t)
	snapDir := t.TempDir()
	f := NewFSM(store, snapDir, 0)

	config := raft.Configuration{Servers: []raft.Server{
		{ID: raft.ServerID("node1"), Address: raft.ServerAddress("127.0.0.1:8300")},
	}}
	f.StoreConfiguration(1, config)
	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{CardID: 1, CardTypeID: "task"}}, 1)

	snap, err := f.Snapshot()
	require.NoError(t, err)
	s := snap.(*fsmSnapshot)
	assert.Equal(t, config, s.pointer.Meta.LastMembership)
	assert.NotEmpty(t, s.pointer.Meta.SnapshotID)

	metaBytes, err := os.ReadFile(filepath.Join(s.pointer.CheckpointPath, "snapshot_meta.json"))
	require.NoError(t, err)
	var onDisk snapshotMeta
	require.NoError(t, json.Unmarshal(metaBytes, &onDisk))
	assert.Equal(t, config, onDisk.LastMembership)
}

func TestPruneOldSnapshotsKeepsOnlyMostRecent(t *testing.T) {
	store := openTestStore(t)
	snapDir := t.TempDir()
	f := NewFSM(store, snapDir, 1)

	writeFakeCheckpoint(t, f, snapDir, 1000)
	writeFakeCheckpoint(t, f, snapDir, 2000)
	require.NoError(t, f.pruneOldSnapshots())

	_, err := os.Stat(filepath.Join(snapDir, "1000"))
	assert.True(t, os.IsNotExist(err), "oldest checkpoint should have been pruned")
	_, err = os.Stat(filepath.Join(snapDir, "2000"))
	assert.NoError(t, err, "newest checkpoint should remain")
}

func TestDiscoverLatestSnapshotPicksLargestTimestamp(t *testing.T) {
	store := openTestStore(t)
	snapDir := t.TempDir()
	f := NewFSM(store, snapDir, 0)

	writeFakeCheckpoint(t, f, snapDir, 1000)
	writeFakeCheckpoint(t, f, snapDir, 3000)
	writeFakeCheckpoint(t, f, snapDir, 2000)

	dir, ok := discoverLatestSnapshot(snapDir)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(snapDir, "3000"), dir)
}

func TestDiscoverLatestSnapshotFalseWhenEmpty(t *testing.T) {
	_, ok := discoverLatestSnapshot(t.TempDir())
	assert.False(t, ok)
}
