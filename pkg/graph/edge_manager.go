package graph

import (
	"fmt"

	"github.com/pgraph/pgraph/pkg/codec"
	"github.com/pgraph/pgraph/pkg/kv"
)

// NeighborLookup is satisfied by the memory layer's Neighbors method.
type NeighborLookup interface {
	Neighbors(d Descriptor, anchorID CardId) []CardId
}

// EdgeManager maintains bidirectional edges and accumulates edge deltas
// within a transaction
type EdgeManager struct{}

// NewEdgeManager constructs an EdgeManager.
func NewEdgeManager() *EdgeManager { return &EdgeManager{} }

func toDescriptor(edgeType EdgeType, dir Direction) Descriptor {
	return Descriptor{EdgeType: edgeType, Direction: dir}
}

// toCodecDir converts a graph.Direction to the codec package's Direction
// byte used in on-disk adjacency keys.
func toCodecDir(dir Direction) codec.Direction {
	if dir == DirDest {
		return codec.DirDest
	}
	return codec.DirSrc
}

// Exists checks delta.create then the memory adjacency
func (m *EdgeManager) Exists(delta *EdgeDelta, mem NeighborLookup, e Edge) bool {
	k := keyOf(e)
	if delta.IsDeleted(k) {
		return false
	}
	if delta.IsCreated(k) {
		return true
	}
	for _, dest := range mem.Neighbors(toDescriptor(e.EdgeType, DirSrc), e.SrcID) {
		if dest == e.DestID {
			return true
		}
	}
	return false
}

// Create stages a new edge. Verifies both endpoints exist; returns false
// if the edge already exists (an idempotent no-op) and
// ErrVertexMissing if an endpoint is absent.
func (m *EdgeManager) Create(txn *kv.Txn, delta *EdgeDelta, mem NeighborLookup, endpoints FragmentLookup, e Edge) (bool, error) {
	if !endpoints.VertexExists(e.SrcID) {
		return false, fmt.Errorf("%w: src %d", ErrVertexMissing, e.SrcID)
	}
	if !endpoints.VertexExists(e.DestID) {
		return false, fmt.Errorf("%w: dest %d", ErrVertexMissing, e.DestID)
	}
	if m.Exists(delta, mem, e) {
		return false, nil
	}

	if err := txn.Set(codec.EdgeKey(e.EdgeType, toCodecDir(DirSrc), e.SrcID, e.DestID), nil); err != nil {
		return false, err
	}
	if err := txn.Set(codec.EdgeKey(e.EdgeType, toCodecDir(DirDest), e.DestID, e.SrcID), nil); err != nil {
		return false, err
	}
	if len(e.Props) > 0 {
		data, err := codec.EncodeEdgeProps(e.Props)
		if err != nil {
			return false, fmt.Errorf("graph: encode edge props: %w", err)
		}
		if err := txn.Set(codec.EdgePropKey(e.SrcID, e.EdgeType, e.DestID), data); err != nil {
			return false, err
		}
	}

	delta.RecordCreate(e)
	return true, nil
}

// Update replaces an edge's property list (or removes the EP key if the
// new list is empty). Returns false if the edge is absent in the given
// direction.
func (m *EdgeManager) Update(txn *kv.Txn, delta *EdgeDelta, mem NeighborLookup, e Edge, dir Direction) (bool, error) {
	anchor, other := e.SrcID, e.DestID
	if dir == DirDest {
		anchor, other = e.DestID, e.SrcID
	}
	found := false
	for _, n := range mem.Neighbors(toDescriptor(e.EdgeType, dir), anchor) {
		if n == other {
			found = true
			break
		}
	}
	if !found {
		k := keyOf(e)
		if !delta.IsCreated(k) {
			return false, nil
		}
	}

	if len(e.Props) == 0 {
		if err := txn.Delete(codec.EdgePropKey(e.SrcID, e.EdgeType, e.DestID)); err != nil {
			return false, err
		}
	} else {
		data, err := codec.EncodeEdgeProps(e.Props)
		if err != nil {
			return false, fmt.Errorf("graph: encode edge props: %w", err)
		}
		if err := txn.Set(codec.EdgePropKey(e.SrcID, e.EdgeType, e.DestID), data); err != nil {
			return false, err
		}
	}

	delta.RecordUpdate(e)
	return true, nil
}

// Delete stages removal of both adjacency directions and the property
// record.
func (m *EdgeManager) Delete(txn *kv.Txn, delta *EdgeDelta, e Edge) error {
	if err := txn.Delete(codec.EdgeKey(e.EdgeType, toCodecDir(DirSrc), e.SrcID, e.DestID)); err != nil {
		return err
	}
	if err := txn.Delete(codec.EdgeKey(e.EdgeType, toCodecDir(DirDest), e.DestID, e.SrcID)); err != nil {
		return err
	}
	if err := txn.Delete(codec.EdgePropKey(e.SrcID, e.EdgeType, e.DestID)); err != nil {
		return err
	}
	delta.RecordDelete(e)
	return nil
}

