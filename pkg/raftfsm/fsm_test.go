package raftfsm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/hashicorp/raft"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
)

func applyCommand(t *testing.T, f *FSM, op Op, payload interface{}, index uint64) interface{} {
	t.Helper()
	data, err := Encode(op, payload)
	require.NoError(t, err)
	return f.Apply(&raft.Log{Index: index, Data: data})
}

func TestFSMApplyCreateCardsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	f := NewFSM(store, t.TempDir(), 0)

	result := applyCommand(t, f, OpCreateCards, []*graph.Vertex{
		{CardID: 1, CardTypeID: "task", Title: graph.Title{Plain: "A"}},
	}, 1)

	sum, ok := result.(Summary)
	require.True(t, ok)
	assert.Equal(t, 1, sum.SuccessCount)
	assert.Equal(t, uint64(1), f.LastAppliedLogID())

	tx := store.Begin()
	defer tx.Rollback()
	assert.True(t, tx.VertexExists(1))
}

func TestFSMApplyUpdateCardTitlesRoundTrip(t *testing.T) {
	store := openTestStore(t)
	f := NewFSM(store, t.TempDir(), 0)
	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{CardID: 1, CardTypeID: "task", Title: graph.Title{Plain: "A"}}}, 1)

	result := applyCommand(t, f, OpUpdateCardTitles, []TitleUpdate{{CardID: 1, Title: graph.Title{Plain: "B"}}}, 2)
	sum, ok := result.(Summary)
	require.True(t, ok)
	assert.Equal(t, 1, sum.SuccessCount)

	tx := store.Begin()
	defer tx.Rollback()
	v, err := tx.GetVertex(1)
	require.NoError(t, err)
	assert.Equal(t, "B", v.Title.Plain)
}

func TestFSMApplyPatchCardFieldsRoundTrip(t *testing.T) {
	store := openTestStore(t)
	f := NewFSM(store, t.TempDir(), 0)
	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{
		CardID: 1, CardTypeID: "task",
		Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: 1}},
	}}, 1)

	patch := FieldPatch{CardID: 1, Fields: map[graph.FieldId]*graph.FieldValue{
		"priority": {Kind: graph.FieldNumber, Number: 7},
	}}
	result := applyCommand(t, f, OpPatchCardFields, []FieldPatch{patch}, 2)
	sum, ok := result.(Summary)
	require.True(t, ok)
	assert.Equal(t, 1, sum.SuccessCount)
}

func TestFSMApplyLinkLifecycleRoundTrip(t *testing.T) {
	store := openTestStore(t)
	f := NewFSM(store, t.TempDir(), 0)
	applyCommand(t, f, OpCreateCards, []*graph.Vertex{
		{CardID: 1, CardTypeID: "task"}, {CardID: 2, CardTypeID: "task"},
	}, 1)

	r1 := applyCommand(t, f, OpCreateLinks, []LinkWrite{{Edge: graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"}}}, 2)
	require.Equal(t, 1, r1.(Summary).SuccessCount)

	r2 := applyCommand(t, f, OpUpdateLinks, []LinkWrite{{Edge: graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"}}}, 3)
	require.Equal(t, 1, r2.(Summary).SuccessCount)

	r3 := applyCommand(t, f, OpDeleteLinks, []LinkDelete{{Edge: graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"}}}, 4)
	require.Equal(t, 1, r3.(Summary).SuccessCount)

	assert.Equal(t, uint64(4), f.LastAppliedLogID())
}

func TestFSMApplyUnknownOpReturnsError(t *testing.T) {
	store := openTestStore(t)
	f := NewFSM(store, t.TempDir(), 0)
	data, err := Encode(Op("bogus"), struct{}{})
	require.NoError(t, err)

	result := f.Apply(&raft.Log{Index: 1, Data: data})
	_, isErr := result.(error)
	assert.True(t, isErr)
}

func TestFSMStoreConfigurationUpdatesLastMembership(t *testing.T) {
	store := openTestStore(t)
	f := NewFSM(store, t.TempDir(), 0)

	config := raft.Configuration{Servers: []raft.Server{
		{ID: raft.ServerID("node1"), Address: raft.ServerAddress("127.0.0.1:8300")},
	}}
	f.StoreConfiguration(1, config)
	assert.Equal(t, config, f.LastMembership())
}

func TestFSMRestoreLatestSnapshotNoopWhenNoneExist(t *testing.T) {
	store := openTestStore(t)
	f := NewFSM(store, t.TempDir(), 0)
	require.NoError(t, f.RestoreLatestSnapshot())
	assert.Equal(t, uint64(0), f.LastAppliedLogID())
}

func TestFSMRestoreLatestSnapshotPicksMostRecentCheckpoint(t *testing.T) {
	store := openTestStore(t)
	snapDir := t.TempDir()
	f := NewFSM(store, snapDir, 0)
	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{CardID: 1, CardTypeID: "task"}}, 1)
	writeFakeCheckpoint(t, f, snapDir, 1000)

	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{CardID: 2, CardTypeID: "task"}}, 2)
	writeFakeCheckpoint(t, f, snapDir, 2000)

	store2 := openTestStore(t)
	f2 := NewFSM(store2, snapDir, 0)
	require.NoError(t, f2.RestoreLatestSnapshot())
	assert.Equal(t, uint64(2), f2.LastAppliedLogID())

	tx := store2.Begin()
	defer tx.Rollback()
	assert.True(t, tx.VertexExists(1))
	assert.True(t, tx.VertexExists(2))
}

// writeFakeCheckpoint takes a checkpoint of f's current store state under an
// explicitly named directory, so tests can control checkpoint ordering
// without depending on wall-clock timestamps colliding within one second.
func writeFakeCheckpoint(t *testing.T, f *FSM, snapDir string, ts int64) {
	t.Helper()
	dir := filepath.Join(snapDir, strconv.FormatInt(ts, 10))
	_, err := f.store.KV().CreateCheckpoint(dir)
	require.NoError(t, err)
	meta := snapshotMeta{SnapshotID: strconv.FormatInt(ts, 10), LastLogID: f.LastAppliedLogID(), TimestampUnix: ts}
	metaBytes, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "snapshot_meta.json"), metaBytes, 0o644))
}

func TestFSMSnapshotAndRestoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	snapDir := t.TempDir()
	f := NewFSM(store, snapDir, 0)

	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{CardID: 1, CardTypeID: "task", Title: graph.Title{Plain: "A"}}}, 1)

	snap, err := f.Snapshot()
	require.NoError(t, err)
	sink := newFakeSnapshotSink(t)
	require.NoError(t, snap.Persist(sink))

	require.NoError(t, f.Restore(sink.toReader()))
	assert.Equal(t, uint64(1), f.LastAppliedLogID())

	tx := store.Begin()
	defer tx.Rollback()
	assert.True(t, tx.VertexExists(1))
}

// TestFSMSnapshotAndRestoreRoundTripTwice installs two snapshots in
// succession on the same node, the way a long-running Raft cluster does
// (periodic log-truncating snapshots) — a node that only ever handled one
// install would not catch the second kv.Restore colliding with its own
// live store's lock.
func TestFSMSnapshotAndRestoreRoundTripTwice(t *testing.T) {
	store := openTestStore(t)
	snapDir := t.TempDir()
	f := NewFSM(store, snapDir, 0)

	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{CardID: 1, CardTypeID: "task", Title: graph.Title{Plain: "A"}}}, 1)
	snap1, err := f.Snapshot()
	require.NoError(t, err)
	sink1 := newFakeSnapshotSink(t)
	require.NoError(t, snap1.Persist(sink1))
	require.NoError(t, f.Restore(sink1.toReader()))
	assert.Equal(t, uint64(1), f.LastAppliedLogID())

	// Snapshot names its checkpoint directory off the wall-clock second;
	// sleep past it so the two installs get distinct snapshot IDs, same as
	// they would across any real interval between periodic snapshots.
	time.Sleep(1100 * time.Millisecond)

	applyCommand(t, f, OpCreateCards, []*graph.Vertex{{CardID: 2, CardTypeID: "task", Title: graph.Title{Plain: "B"}}}, 2)
	snap2, err := f.Snapshot()
	require.NoError(t, err)
	sink2 := newFakeSnapshotSink(t)
	require.NoError(t, snap2.Persist(sink2))
	require.NoError(t, f.Restore(sink2.toReader()))
	assert.Equal(t, uint64(2), f.LastAppliedLogID())

	tx := store.Begin()
	defer tx.Rollback()
	assert.True(t, tx.VertexExists(1))
	assert.True(t, tx.VertexExists(2))
}
