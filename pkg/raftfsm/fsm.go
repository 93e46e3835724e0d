package raftfsm

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/hashicorp/raft"
	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/txn"
)

// FSM implements raft.FSM over a *txn.Store. Apply dispatches each
// committed log entry to one of the seven batch handlers in batch.go and
// returns the resulting Summary. Command payloads are gob-encoded,
// matching the encoding the rest of pgraph's wire format uses.
type FSM struct {
	mu    sync.RWMutex
	store *txn.Store

	snapshotBaseDir  string
	maxSnapshotFiles int

	// dataDirBase is the store's data directory as it stood at FSM
	// construction, captured once. Snapshot installs derive each
	// ".restoring.<snapshot_id>" target from this fixed base rather than
	// from store.DataDir() (which changes after every install), so a
	// stale path from a prior install never gets reused for a new one.
	dataDirBase string

	lastAppliedLogID uint64
	lastMembership   raft.Configuration
}

// NewFSM wraps store for use as a Raft finite state machine. Checkpoints
// taken by Snapshot are written under snapshotBaseDir; at most
// maxSnapshotFiles are retained (0 defaults to 3).
func NewFSM(store *txn.Store, snapshotBaseDir string, maxSnapshotFiles int) *FSM {
	if maxSnapshotFiles <= 0 {
		maxSnapshotFiles = 3
	}
	return &FSM{store: store, snapshotBaseDir: snapshotBaseDir, maxSnapshotFiles: maxSnapshotFiles, dataDirBase: store.DataDir()}
}

// Apply decodes one committed Raft log entry and runs its batch against the
// store. The store handle is held only at the read-lock level here; it is
// upgraded to a write lock solely during snapshot install (see snapshot.go).
func (f *FSM) Apply(log *raft.Log) interface{} {
	atomic.StoreUint64(&f.lastAppliedLogID, log.Index)

	var cmd Command
	if err := gobDecode(log.Data, &cmd); err != nil {
		return fmt.Errorf("raftfsm: decode command: %w", err)
	}

	f.mu.RLock()
	defer f.mu.RUnlock()

	switch cmd.Op {
	case OpCreateCards:
		var cards []*graph.Vertex
		if err := gobDecode(cmd.Data, &cards); err != nil {
			return err
		}
		return BatchCreateCards(f.store, cards)

	case OpUpdateCards:
		var cards []*graph.Vertex
		if err := gobDecode(cmd.Data, &cards); err != nil {
			return err
		}
		return BatchUpdateCards(f.store, cards)

	case OpUpdateCardTitles:
		var updates []TitleUpdate
		if err := gobDecode(cmd.Data, &updates); err != nil {
			return err
		}
		return BatchUpdateCardTitles(f.store, updates)

	case OpPatchCardFields:
		var patches []FieldPatch
		if err := gobDecode(cmd.Data, &patches); err != nil {
			return err
		}
		return BatchPatchCardFields(f.store, patches)

	case OpCreateLinks:
		var writes []LinkWrite
		if err := gobDecode(cmd.Data, &writes); err != nil {
			return err
		}
		return BatchCreateLinks(f.store, writes)

	case OpUpdateLinks:
		var writes []LinkWrite
		if err := gobDecode(cmd.Data, &writes); err != nil {
			return err
		}
		return BatchUpdateLinks(f.store, writes)

	case OpDeleteLinks:
		var deletes []LinkDelete
		if err := gobDecode(cmd.Data, &deletes); err != nil {
			return err
		}
		return BatchDeleteLinks(f.store, deletes)

	default:
		return fmt.Errorf("raftfsm: unknown op %q", cmd.Op)
	}
}

// Encode gob-encodes op and payload into a Command ready for raft.Apply.
func Encode(op Op, payload interface{}) ([]byte, error) {
	var dataBuf bytes.Buffer
	if err := gob.NewEncoder(&dataBuf).Encode(payload); err != nil {
		return nil, fmt.Errorf("raftfsm: encode payload: %w", err)
	}
	var cmdBuf bytes.Buffer
	if err := gob.NewEncoder(&cmdBuf).Encode(Command{Op: op, Data: dataBuf.Bytes()}); err != nil {
		return nil, fmt.Errorf("raftfsm: encode command: %w", err)
	}
	return cmdBuf.Bytes(), nil
}

func gobDecode(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

// LastAppliedLogID returns the index of the most recently applied log
// entry, used by snapshot.go to stamp the pointer record.
func (f *FSM) LastAppliedLogID() uint64 {
	return atomic.LoadUint64(&f.lastAppliedLogID)
}

// StoreConfiguration implements raft.ConfigurationStore: Raft calls this
// whenever the cluster membership changes (AddVoter/RemoveServer/join),
// so the next Snapshot stamps last_membership with the configuration
// actually in effect at that log index rather than a stale one.
func (f *FSM) StoreConfiguration(index uint64, configuration raft.Configuration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastMembership = configuration
}

// LastMembership returns the most recently stored Raft configuration.
func (f *FSM) LastMembership() raft.Configuration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastMembership
}
