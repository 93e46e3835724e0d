package raftfsm

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/hashicorp/raft"
	"github.com/pgraph/pgraph/pkg/kv"
)

// snapshotMeta is the small JSON sidecar written next to each checkpoint
// directory, for human inspection and for startup discovery.
type snapshotMeta struct {
	SnapshotID     string             `json:"snapshot_id"`
	LastLogID      uint64             `json:"last_log_id"`
	LastMembership raft.Configuration `json:"last_membership"`
	TimestampUnix  int64              `json:"timestamp_unix"`
}

// snapshotPointer is the Raft snapshot blob itself: rather than inlining
// the whole key-value state, pgraph's snapshot blob is a pointer to a
// checkpoint directory already written to disk by Snapshot. A full
// in-memory JSON blob of the key-value state would be impractical at
// pgraph's card/link volumes, so only the pointer crosses the Raft log.
type snapshotPointer struct {
	Meta           snapshotMeta
	CheckpointPath string
	Timestamp      int64
}

// fsmSnapshot implements raft.FSMSnapshot over a pointer record that was
// already fully written to disk by Snapshot, so Persist only has to encode
// and flush the pointer itself.
type fsmSnapshot struct {
	pointer snapshotPointer
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.pointer); err != nil {
		sink.Cancel()
		return fmt.Errorf("raftfsm: encode snapshot pointer: %w", err)
	}
	if _, err := sink.Write(buf.Bytes()); err != nil {
		sink.Cancel()
		return fmt.Errorf("raftfsm: write snapshot sink: %w", err)
	}
	return sink.Close()
}

func (s *fsmSnapshot) Release() {}

// Snapshot flushes the kv store's WAL, takes a checkpoint under
// snapshotBaseDir named "<unix_secs>", writes its meta sidecar, prunes old
// checkpoints beyond maxSnapshotFiles, and returns a pointer snapshot.
// Holds only the FSM's own lock, not the store's write lock — readers and
// writers proceed normally against the live store while the checkpoint
// streams out.
func (f *FSM) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	ts := time.Now().Unix()
	name := strconv.FormatInt(ts, 10)
	dir := filepath.Join(f.snapshotBaseDir, name)

	if _, err := f.store.KV().CreateCheckpoint(dir); err != nil {
		return nil, fmt.Errorf("raftfsm: create checkpoint: %w", err)
	}

	meta := snapshotMeta{
		SnapshotID:     name,
		LastLogID:      f.LastAppliedLogID(),
		LastMembership: f.lastMembership,
		TimestampUnix:  ts,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("raftfsm: marshal snapshot meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "snapshot_meta.json"), metaBytes, 0o644); err != nil {
		return nil, fmt.Errorf("raftfsm: write snapshot meta: %w", err)
	}

	if err := f.pruneOldSnapshots(); err != nil {
		return nil, fmt.Errorf("raftfsm: prune old snapshots: %w", err)
	}

	return &fsmSnapshot{pointer: snapshotPointer{Meta: meta, CheckpointPath: dir, Timestamp: ts}}, nil
}

// Restore installs a snapshot pointer record: it waits for the referenced
// checkpoint directory to appear (the leader's Persist and a follower's
// receipt of the snapshot blob can race slightly on shared storage), then
// upgrades to the store's write lock to atomically swap in a fresh kv
// store loaded from the checkpoint.
func (f *FSM) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var ptr snapshotPointer
	if err := gob.NewDecoder(rc).Decode(&ptr); err != nil {
		return fmt.Errorf("raftfsm: decode snapshot pointer: %w", err)
	}

	if err := waitForDir(ptr.CheckpointPath, 10*time.Second, 100*time.Millisecond); err != nil {
		return fmt.Errorf("raftfsm: checkpoint %s never appeared: %w", ptr.CheckpointPath, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	oldDataDir := f.store.DataDir()
	restoringDir := f.dataDirBase + ".restoring." + ptr.Meta.SnapshotID
	newKV, err := kv.Restore(restoringDir, ptr.CheckpointPath)
	if err != nil {
		return fmt.Errorf("raftfsm: restore checkpoint: %w", err)
	}

	if err := f.store.Swap(newKV); err != nil {
		return fmt.Errorf("raftfsm: swap store: %w", err)
	}
	os.RemoveAll(oldDataDir)

	atomic.StoreUint64(&f.lastAppliedLogID, ptr.Meta.LastLogID)
	f.lastMembership = ptr.Meta.LastMembership
	return nil
}

// RestoreLatestSnapshot loads the most recent on-disk checkpoint under
// snapshotBaseDir directly into the store, bypassing Raft's own snapshot
// metadata. Call it once at startup before Bootstrap/Join: a node that
// crashed between taking a checkpoint and Raft's own snapshot bookkeeping
// catching up would otherwise replay its whole log from scratch. Returns
// nil, leaving the store untouched, if no checkpoint directory exists yet.
func (f *FSM) RestoreLatestSnapshot() error {
	dir, ok := discoverLatestSnapshot(f.snapshotBaseDir)
	if !ok {
		return nil
	}

	var meta snapshotMeta
	snapshotID := filepath.Base(dir)
	if metaBytes, err := os.ReadFile(filepath.Join(dir, "snapshot_meta.json")); err == nil {
		if err := json.Unmarshal(metaBytes, &meta); err == nil && meta.SnapshotID != "" {
			snapshotID = meta.SnapshotID
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	oldDataDir := f.store.DataDir()
	restoringDir := f.dataDirBase + ".restoring." + snapshotID
	newKV, err := kv.Restore(restoringDir, dir)
	if err != nil {
		return fmt.Errorf("raftfsm: restore latest checkpoint %s: %w", dir, err)
	}
	if err := f.store.Swap(newKV); err != nil {
		return fmt.Errorf("raftfsm: swap store from checkpoint %s: %w", dir, err)
	}
	os.RemoveAll(oldDataDir)

	atomic.StoreUint64(&f.lastAppliedLogID, meta.LastLogID)
	f.lastMembership = meta.LastMembership
	return nil
}

// discoverLatestSnapshot returns the checkpoint directory with the largest
// trailing "_<unix_secs>" (here, bare "<unix_secs>") name under baseDir, for
// startup recovery outside of Raft's own snapshot store.
func discoverLatestSnapshot(baseDir string) (string, bool) {
	entries, err := os.ReadDir(baseDir)
	if err != nil {
		return "", false
	}
	var best string
	var bestTS int64 = -1
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		idx := strings.LastIndex(name, "_")
		tsPart := name
		if idx >= 0 {
			tsPart = name[idx+1:]
		}
		ts, err := strconv.ParseInt(tsPart, 10, 64)
		if err != nil {
			continue
		}
		if ts > bestTS {
			bestTS = ts
			best = filepath.Join(baseDir, name)
		}
	}
	return best, bestTS >= 0
}

func (f *FSM) pruneOldSnapshots() error {
	entries, err := os.ReadDir(f.snapshotBaseDir)
	if err != nil {
		return nil
	}
	type dirTS struct {
		path string
		ts   int64
	}
	var dirs []dirTS
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		ts, err := strconv.ParseInt(e.Name(), 10, 64)
		if err != nil {
			continue
		}
		dirs = append(dirs, dirTS{path: filepath.Join(f.snapshotBaseDir, e.Name()), ts: ts})
	}
	sort.Slice(dirs, func(i, j int) bool { return dirs[i].ts > dirs[j].ts })
	for i := f.maxSnapshotFiles; i < len(dirs); i++ {
		os.RemoveAll(dirs[i].path)
	}
	return nil
}

func waitForDir(path string, timeout, interval time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out waiting for %s", path)
		}
		time.Sleep(interval)
	}
}
