package txn

import (
	"fmt"
	"sync"

	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/kv"
)

// Transaction is a single unit of work against a Store: a kv.Txn plus the
// vertex/edge deltas that accumulate until Commit publishes them to the
// memory layer A Transaction borrows the store's read
// handle for its whole lifetime, released on Commit or Rollback.
type Transaction struct {
	store *Store

	kvtxn  *kv.Txn
	vdelta *graph.VertexDelta
	edelta *graph.EdgeDelta

	// pendingVertices holds the full Vertex for every staged create/update,
	// since VertexDelta only carries the hot Fragment — full-attribute
	// reads within the same transaction need the whole record.
	pendingVertices map[graph.CardId]*graph.Vertex

	mu   sync.Mutex
	done bool
}

// Begin starts a new transaction, taking the store's read handle.
func (s *Store) Begin() *Transaction {
	s.gateMu.RLock()
	return &Transaction{
		store:           s,
		kvtxn:           s.kvStore.Begin(),
		vdelta:          graph.NewVertexDelta(),
		edelta:          graph.NewEdgeDelta(),
		pendingVertices: make(map[graph.CardId]*graph.Vertex),
	}
}

func (t *Transaction) checkOpen() error {
	if t.done {
		return fmt.Errorf("txn: transaction already committed or rolled back")
	}
	return nil
}

// deltaLookup adapts (vdelta, memory.Layer) into graph.FragmentLookup, and
// (edelta, memory.Layer) into graph.NeighborLookup, the shapes
// graph.VertexManager and graph.EdgeManager need for read-your-writes.
type fragmentLookup struct{ t *Transaction }

func (f fragmentLookup) Fragment(id graph.CardId) (graph.Fragment, bool) {
	if f.t.vdelta.IsDeleted(id) {
		return graph.Fragment{}, false
	}
	if frag, ok := f.t.vdelta.Create[id]; ok {
		return frag, true
	}
	if pair, ok := f.t.vdelta.Update[id]; ok {
		return pair.New, true
	}
	return f.t.store.mem.Fragment(id)
}

func (f fragmentLookup) VertexExists(id graph.CardId) bool {
	return f.t.store.vm.Exists(f.t.vdelta, f.t.store.mem, id)
}

type neighborLookup struct{ t *Transaction }

// Neighbors folds the transaction's staged edge creates/deletes for
// descriptor d over the committed neighbor set held in memory, so a
// create-then-query within the same transaction sees the edge.
func (n neighborLookup) Neighbors(d graph.Descriptor, anchorID graph.CardId) []graph.CardId {
	anchorOnSrc := d.Direction == graph.DirSrc

	removed := make(map[graph.CardId]struct{})
	for k, e := range n.t.edelta.Delete {
		if other, ok := matchAnchor(k, e, d.EdgeType, anchorOnSrc, anchorID); ok {
			removed[other] = struct{}{}
		}
	}

	base := n.t.store.mem.Neighbors(d, anchorID)
	out := make([]graph.CardId, 0, len(base))
	for _, id := range base {
		if _, gone := removed[id]; gone {
			continue
		}
		out = append(out, id)
	}

	for k, e := range n.t.edelta.Create {
		if other, ok := matchAnchor(k, e, d.EdgeType, anchorOnSrc, anchorID); ok {
			out = append(out, other)
		}
	}
	return out
}

func matchAnchor(k graph.EdgeKey, e graph.Edge, edgeType graph.EdgeType, anchorOnSrc bool, anchorID graph.CardId) (graph.CardId, bool) {
	if k.Type != edgeType {
		return 0, false
	}
	if anchorOnSrc && k.Src == anchorID {
		return k.Dest, true
	}
	if !anchorOnSrc && k.Dest == anchorID {
		return k.Src, true
	}
	_ = e
	return 0, false
}

// CreateVertex stages a new vertex. Returns (false, nil) if the id already
// exists.
func (t *Transaction) CreateVertex(v *graph.Vertex) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	ok, err := t.store.vm.Create(t.kvtxn, t.vdelta, fragmentLookup{t}, v)
	if err != nil || !ok {
		return ok, err
	}
	t.pendingVertices[v.CardID] = v
	return true, nil
}

// UpdateVertex replaces v in place. The caller must have already resolved
// the pre-image fragment (typically via GetFragment).
func (t *Transaction) UpdateVertex(oldFrag graph.Fragment, v *graph.Vertex) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.store.vm.Update(t.kvtxn, t.vdelta, oldFrag, v); err != nil {
		return err
	}
	t.pendingVertices[v.CardID] = v
	return nil
}

// DeleteVertex stages removal of a vertex, given its pre-image fragment.
func (t *Transaction) DeleteVertex(frag graph.Fragment) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	if err := t.store.vm.Delete(t.kvtxn, t.vdelta, frag); err != nil {
		return err
	}
	delete(t.pendingVertices, frag.CardID)
	return nil
}

// GetFragment returns the resident (or staged) fragment for id.
func (t *Transaction) GetFragment(id graph.CardId) (graph.Fragment, bool) {
	return fragmentLookup{t}.Fragment(id)
}

// VertexExists reports whether id is visible within this transaction.
func (t *Transaction) VertexExists(id graph.CardId) bool {
	return fragmentLookup{t}.VertexExists(id)
}

// GetVertex returns the full vertex record, folding in any staged write
// from this transaction before falling back to the full-vertex LRU and
// then the kv store.
func (t *Transaction) GetVertex(id graph.CardId) (*graph.Vertex, error) {
	if t.vdelta.IsDeleted(id) {
		return nil, graph.ErrNotFound
	}
	if v, ok := t.pendingVertices[id]; ok {
		return v, nil
	}
	if v, ok := t.store.mem.CachedVertex(id); ok {
		return v, nil
	}
	v, err := graph.ReadFromStore(t.store.kvStore, id)
	if err != nil {
		return nil, err
	}
	t.store.mem.CacheVertex(v)
	return v, nil
}

// GetVertices batch-reads several vertices, splitting cache hits from
// the store reads needed to fill them.
func (t *Transaction) GetVertices(ids []graph.CardId) (map[graph.CardId]*graph.Vertex, error) {
	out := make(map[graph.CardId]*graph.Vertex, len(ids))
	var miss []graph.CardId
	for _, id := range ids {
		if t.vdelta.IsDeleted(id) {
			continue
		}
		if v, ok := t.pendingVertices[id]; ok {
			out[id] = v
			continue
		}
		if v, ok := t.store.mem.CachedVertex(id); ok {
			out[id] = v
			continue
		}
		miss = append(miss, id)
	}
	if len(miss) == 0 {
		return out, nil
	}
	fetched, err := graph.BatchReadFromStore(t.store.kvStore, miss)
	if err != nil {
		return nil, err
	}
	for id, v := range fetched {
		t.store.mem.CacheVertex(v)
		out[id] = v
	}
	return out, nil
}

// GetDescription returns a vertex's description text.
func (t *Transaction) GetDescription(id graph.CardId) (string, bool, error) {
	if v, ok := t.pendingVertices[id]; ok {
		return v.Description, v.HasDescription, nil
	}
	if d, ok := t.store.mem.CachedDescription(id); ok {
		return d, true, nil
	}
	d, ok, err := graph.ReadDescriptionFromStore(t.store.kvStore, id)
	if err != nil || !ok {
		return "", ok, err
	}
	t.store.mem.CacheDescription(id, d)
	return d, true, nil
}

// CreateEdge stages a new edge.
func (t *Transaction) CreateEdge(e graph.Edge) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	return t.store.em.Create(t.kvtxn, t.edelta, neighborLookup{t}, fragmentLookup{t}, e)
}

// UpdateEdge replaces an edge's property list.
func (t *Transaction) UpdateEdge(e graph.Edge, dir graph.Direction) (bool, error) {
	if err := t.checkOpen(); err != nil {
		return false, err
	}
	return t.store.em.Update(t.kvtxn, t.edelta, neighborLookup{t}, e, dir)
}

// DeleteEdge stages removal of an edge.
func (t *Transaction) DeleteEdge(e graph.Edge) error {
	if err := t.checkOpen(); err != nil {
		return err
	}
	return t.store.em.Delete(t.kvtxn, t.edelta, e)
}

// EdgeExists reports whether (src, type, dest) is visible within this
// transaction.
func (t *Transaction) EdgeExists(e graph.Edge) bool {
	return t.store.em.Exists(t.edelta, neighborLookup{t}, e)
}

// NeighborIDs returns the neighbor ids visible from anchorID under
// descriptor d, including this transaction's own staged edges.
func (t *Transaction) NeighborIDs(d graph.Descriptor, anchorID graph.CardId) []graph.CardId {
	return neighborLookup{t}.Neighbors(d, anchorID)
}

// EdgeProperties returns the properties on (src, type, dest), folding in
// this transaction's staged edge writes.
func (t *Transaction) EdgeProperties(src graph.CardId, edgeType graph.EdgeType, dest graph.CardId) ([]graph.EdgeProp, bool) {
	k := graph.EdgeKey{Src: src, Type: edgeType, Dest: dest}
	if t.edelta.IsDeleted(k) {
		return nil, false
	}
	if e, ok := t.edelta.Get(k); ok {
		return e.Props, len(e.Props) > 0
	}
	return t.store.mem.EdgeProperties(src, edgeType, dest)
}

// Commit applies the staged kv writes atomically, then publishes the
// vertex and edge deltas to the memory layer in commit order: kv commit,
// vertex deltas batched per card_type_id, then edge deltas batched per
// EdgeDescriptor with deletes applied before creates.
func (t *Transaction) Commit() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.checkOpen(); err != nil {
		return err
	}
	t.done = true
	defer t.store.gateMu.RUnlock()

	if err := t.kvtxn.Commit(); err != nil {
		t.kvtxn.Discard()
		return err
	}

	for _, f := range t.vdelta.Delete {
		t.store.mem.PublishVertexDelete(f)
	}
	for _, pair := range t.vdelta.Update {
		t.store.mem.PublishVertexUpdate(pair.Old, pair.New)
	}
	for _, f := range t.vdelta.Create {
		t.store.mem.PublishVertexCreate(f)
	}

	deletes := make([]graph.Edge, 0, len(t.edelta.Delete))
	for _, e := range t.edelta.Delete {
		deletes = append(deletes, e)
	}
	t.store.mem.PublishEdgeDeletes(deletes)

	creates := make([]graph.Edge, 0, len(t.edelta.Create))
	for _, e := range t.edelta.Create {
		creates = append(creates, e)
	}
	t.store.mem.PublishEdgeCreates(creates)

	updates := make([]graph.Edge, 0, len(t.edelta.Update))
	for _, e := range t.edelta.Update {
		updates = append(updates, e)
	}
	t.store.mem.PublishEdgeUpdates(updates)

	for id, v := range t.pendingVertices {
		t.store.mem.CacheVertex(v)
		if v.HasDescription {
			t.store.mem.CacheDescription(id, v.Description)
		}
	}

	return nil
}

// Rollback discards the kv transaction without touching the memory layer.
func (t *Transaction) Rollback() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return
	}
	t.done = true
	t.kvtxn.Discard()
	t.store.gateMu.RUnlock()
}
