package graph

import (
	"fmt"

	"github.com/pgraph/pgraph/pkg/codec"
	"github.com/pgraph/pgraph/pkg/kv"
)

// FragmentLookup is satisfied by the memory layer's Fragment/VertexExists
// methods. Defined here, rather than importing the memory package
// directly, to avoid a cycle (memory imports graph for its value types).
type FragmentLookup interface {
	Fragment(id CardId) (Fragment, bool)
	VertexExists(id CardId) bool
}

// VertexManager serializes/deserializes vertex records and accumulates
// vertex deltas within a transaction It is stateless; all
// state lives in the delta passed to each call and in the backing kv.Txn.
type VertexManager struct{}

// NewVertexManager constructs a VertexManager.
func NewVertexManager() *VertexManager { return &VertexManager{} }

// Exists reports whether v.CardID is visible to this delta's pending
// writes or already live in the memory layer.
func (m *VertexManager) Exists(delta *VertexDelta, mem FragmentLookup, id CardId) bool {
	if delta.IsDeleted(id) {
		return false
	}
	if delta.IsCreated(id) {
		return true
	}
	if _, ok := delta.Update[id]; ok {
		return true
	}
	return mem.VertexExists(id)
}

// Create stages a new vertex. Returns false (not an error) if the id
// already exists, treating re-creation of the same card as a no-op.
func (m *VertexManager) Create(txn *kv.Txn, delta *VertexDelta, mem FragmentLookup, v *Vertex) (bool, error) {
	if m.Exists(delta, mem, v.CardID) {
		return false, nil
	}

	data, err := codec.EncodeVertex(v)
	if err != nil {
		return false, fmt.Errorf("graph: encode vertex: %w", err)
	}
	if err := txn.Set(codec.VertexKey(v.CardID), data); err != nil {
		return false, err
	}
	if v.HasDescription {
		if err := txn.Set(codec.DescKey(v.CardID), codec.EncodeDescription(v.Description)); err != nil {
			return false, err
		}
	}

	delta.RecordCreate(FragmentOf(v))
	return true, nil
}

// Update stages a replace-in-place for an existing vertex. The caller is
// responsible for having already checked existence.
func (m *VertexManager) Update(txn *kv.Txn, delta *VertexDelta, oldFrag Fragment, v *Vertex) error {
	data, err := codec.EncodeVertex(v)
	if err != nil {
		return fmt.Errorf("graph: encode vertex: %w", err)
	}
	if err := txn.Set(codec.VertexKey(v.CardID), data); err != nil {
		return err
	}
	if v.HasDescription {
		if err := txn.Set(codec.DescKey(v.CardID), codec.EncodeDescription(v.Description)); err != nil {
			return err
		}
	} else {
		if err := txn.Delete(codec.DescKey(v.CardID)); err != nil {
			return err
		}
	}

	delta.RecordUpdate(oldFrag, FragmentOf(v))
	return nil
}

// Delete stages removal of a vertex, given its pre-image fragment.
func (m *VertexManager) Delete(txn *kv.Txn, delta *VertexDelta, frag Fragment) error {
	if err := txn.Delete(codec.VertexKey(frag.CardID)); err != nil {
		return err
	}
	if err := txn.Delete(codec.DescKey(frag.CardID)); err != nil {
		return err
	}
	delta.RecordDelete(frag)
	return nil
}

// ReadFromStore loads a vertex directly from the kv store (used on LRU
// miss). It does not consult the delta or the memory layer.
func ReadFromStore(store *kv.Store, id CardId) (*Vertex, error) {
	data, ok, err := store.Get(codec.VertexKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotFound
	}
	return codec.DecodeVertex(data)
}

// ReadDescriptionFromStore loads a description blob directly from the kv
// store.
func ReadDescriptionFromStore(store *kv.Store, id CardId) (string, bool, error) {
	data, ok, err := store.Get(codec.DescKey(id))
	if err != nil || !ok {
		return "", ok, err
	}
	return codec.DecodeDescription(data), true, nil
}

// BatchReadFromStore loads several vertices in one kv.MultiGet call — the
// shape the transaction layer needs after splitting ids into LRU-hit and
// miss sets.
func BatchReadFromStore(store *kv.Store, ids []CardId) (map[CardId]*Vertex, error) {
	keys := make([][]byte, len(ids))
	for i, id := range ids {
		keys[i] = codec.VertexKey(id)
	}
	raw, err := store.MultiGet(keys)
	if err != nil {
		return nil, err
	}
	out := make(map[CardId]*Vertex, len(raw))
	for i, id := range ids {
		data, ok := raw[string(keys[i])]
		if !ok {
			continue
		}
		v, err := codec.DecodeVertex(data)
		if err != nil {
			return nil, err
		}
		out[id] = v
	}
	return out, nil
}
