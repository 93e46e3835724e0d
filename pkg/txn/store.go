// Package txn orchestrates the key-value backend, vertex/edge managers,
// and memory layer into optimistic concurrent transactions with snapshot
// read semantics.
//
// Each transaction buffers a three-way create/update/delete delta per
// vertex and edge so commit can batch memory-layer publication per
// card_type_id / per EdgeDescriptor, rather than publishing one write at
// a time.
package txn

import (
	"fmt"
	"sync"

	"github.com/pgraph/pgraph/pkg/codec"
	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/kv"
	"github.com/pgraph/pgraph/pkg/memory"
)

// Store owns exactly one active kv.Store + memory.Layer pair behind a
// read/write gate: every transaction borrows a read handle, and only
// snapshot install takes the write handle to swap the instance out from
// under in-flight readers.
type Store struct {
	gateMu sync.RWMutex // the read/write gate itself

	kvStore *kv.Store
	mem     *memory.Layer
	vm      *graph.VertexManager
	em      *graph.EdgeManager

	dataDir string
}

// Open opens (or creates) a graph store at dataDir and rebuilds the memory
// layer from it in one pass
func Open(dataDir string, memCfg memory.Config) (*Store, error) {
	kvStore, err := kv.Open(kv.Options{DataDir: dataDir})
	if err != nil {
		return nil, fmt.Errorf("txn: open kv store: %w", err)
	}

	s := &Store{
		kvStore: kvStore,
		mem:     memory.New(memCfg),
		vm:      graph.NewVertexManager(),
		em:      graph.NewEdgeManager(),
		dataDir: dataDir,
	}
	if err := s.Rebuild(); err != nil {
		kvStore.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying kv store.
func (s *Store) Close() error {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()
	return s.kvStore.Close()
}

// Rebuild scans the kv store in one pass to repopulate the type index,
// vertex fragment cache, edge adjacency, and edge property cache. The two
// LRUs are left empty
func (s *Store) Rebuild() error {
	s.mem.ClearAll()

	if err := s.kvStore.Iterate([]byte{codec.FamilyVertex}, func(key, value []byte) error {
		id, ok := codec.DecodeVertexKey(key)
		if !ok {
			return nil
		}
		v, err := codec.DecodeVertex(value)
		if err != nil {
			return fmt.Errorf("txn: rebuild vertex %d: %w", id, err)
		}
		s.mem.PublishVertexCreate(graph.FragmentOf(v))
		return nil
	}); err != nil {
		return err
	}

	// Adjacency keys already encode both directions as separate on-disk
	// entries, so rebuild inserts each one directly rather than going
	// through PublishEdgeCreates (which derives the reverse direction from
	// a single Edge and would double-insert here).
	if err := s.rebuildAdjacency(); err != nil {
		return err
	}

	return s.kvStore.Iterate([]byte{codec.FamilyEdgeProp}, func(key, value []byte) error {
		src, edgeType, dest, ok := codec.DecodeEdgePropKey(key)
		if !ok {
			return nil
		}
		props, err := codec.DecodeEdgeProps(value)
		if err != nil {
			return fmt.Errorf("txn: rebuild edge props: %w", err)
		}
		s.mem.PublishEdgeUpdates([]graph.Edge{{SrcID: src, EdgeType: edgeType, DestID: dest, Props: props}})
		return nil
	})
}

func (s *Store) rebuildAdjacency() error {
	type rawOp struct {
		desc     graph.Descriptor
		anchorID graph.CardId
		otherID  graph.CardId
	}
	var ops []rawOp
	err := s.kvStore.IterateKeysOnly([]byte{codec.FamilyEdge}, func(key []byte) error {
		edgeType, dir, anchorID, otherID, ok := codec.DecodeEdgeKey(key)
		if !ok {
			return nil
		}
		gdir := graph.DirSrc
		if dir == codec.DirDest {
			gdir = graph.DirDest
		}
		ops = append(ops, rawOp{desc: graph.Descriptor{EdgeType: edgeType, Direction: gdir}, anchorID: anchorID, otherID: otherID})
		return nil
	})
	if err != nil {
		return err
	}
	s.mem.InsertAdjacencyRaw(func(add func(d graph.Descriptor, anchorID, otherID graph.CardId)) {
		for _, op := range ops {
			add(op.desc, op.anchorID, op.otherID)
		}
	})
	return nil
}

// Mem exposes the memory layer for read-only query helpers (pkg/query).
func (s *Store) Mem() *memory.Layer { return s.mem }

// KV exposes the kv store, for the replication harness's checkpoint calls.
func (s *Store) KV() *kv.Store { return s.kvStore }

// DataDir returns the directory this store was opened against.
func (s *Store) DataDir() string { return s.dataDir }

// Stats returns the administrative statistics blob.
func (s *Store) Stats() memory.Stats { return s.mem.Stats() }

// Swap takes the write handle, closes the current kv store, adopts newKV
// in its place, and rebuilds the memory layer from it. Used only by
// snapshot install to atomically replace the whole store out from under
// in-flight readers. s.dataDir is taken from newKV itself rather than from
// the caller, so DataDir() keeps reporting wherever the live store actually
// sits even across repeated installs on the same node.
func (s *Store) Swap(newKV *kv.Store) error {
	s.gateMu.Lock()
	defer s.gateMu.Unlock()

	old := s.kvStore
	s.kvStore = newKV
	s.dataDir = newKV.DataDir()
	if err := s.Rebuild(); err != nil {
		return fmt.Errorf("txn: rebuild after swap: %w", err)
	}
	if old != nil {
		old.Close()
	}
	return nil
}
