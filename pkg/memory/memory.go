// Package memory implements pgraph's always-resident memory layer: the
// type index, vertex fragment cache, bidirectional edge adjacency, and edge
// property cache that every live vertex and edge sits in, plus the two
// bounded LRU caches (full vertex, description) that sit in front of the
// key-value store.
//
// Locking is sized and partitioned for the access pattern this package
// serves: per-type locking for the type index, per-descriptor locking for
// adjacency, striped locking for the two maps that are touched one
// CardId at a time.
package memory

import (
	"fmt"
	"sync"

	"github.com/pgraph/pgraph/pkg/graph"
)

// Config sizes the bounded LRU caches in entry counts, not byte sizes.
type Config struct {
	FullVertexLRUSize int // default ~hundreds of thousands
	DescriptionLRUSize int // default ~50,000
}

// DefaultConfig returns reasonable sizes for a single-node deployment.
func DefaultConfig() Config {
	return Config{
		FullVertexLRUSize:  200_000,
		DescriptionLRUSize: 50_000,
	}
}

// Layer is the process-wide memory state for one open store. It is
// created once at store open, cleared atomically on snapshot restore, and
// never torn down piecewise.
type Layer struct {
	typeIdx   *typeIndex
	fragments *fragmentCache
	fullLRU   *lru[graph.CardId, *graph.Vertex]
	descLRU   *lru[graph.CardId, string]
	adjacency *adjacencyIndex
	edgeProps *edgePropCache
}

// New creates an empty memory layer sized per cfg.
func New(cfg Config) *Layer {
	return &Layer{
		typeIdx:   newTypeIndex(),
		fragments: newFragmentCache(),
		fullLRU:   newLRU[graph.CardId, *graph.Vertex](cfg.FullVertexLRUSize),
		descLRU:   newLRU[graph.CardId, string](cfg.DescriptionLRUSize),
		adjacency: newAdjacencyIndex(),
		edgeProps: newEdgePropCache(),
	}
}

// ClearAll resets every structure atomically from the point of view of
// subsequent readers — used on snapshot install.
func (l *Layer) ClearAll() {
	l.typeIdx.clear()
	l.fragments.clear()
	l.fullLRU.Clear()
	l.descLRU.Clear()
	l.adjacency.clear()
	l.edgeProps.clear()
}

// ===========================================================================
// Type index + fragment cache
// ===========================================================================

type idBucket struct {
	mu  sync.Mutex
	ids map[graph.CardId]struct{}
}

// typeIndex maps CardTypeId -> set of CardId, locked once per type so that
// a batched commit only takes one lock per type per flush.
type typeIndex struct {
	mu      sync.RWMutex
	buckets map[graph.CardTypeId]*idBucket
}

func newTypeIndex() *typeIndex {
	return &typeIndex{buckets: make(map[graph.CardTypeId]*idBucket)}
}

func (t *typeIndex) bucket(typeID graph.CardTypeId, create bool) *idBucket {
	t.mu.RLock()
	b, ok := t.buckets[typeID]
	t.mu.RUnlock()
	if ok || !create {
		return b
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if b, ok = t.buckets[typeID]; ok {
		return b
	}
	b = &idBucket{ids: make(map[graph.CardId]struct{})}
	t.buckets[typeID] = b
	return b
}

// AddMany inserts every id in ids into the type's bucket under one lock.
func (t *typeIndex) AddMany(typeID graph.CardTypeId, ids []graph.CardId) {
	if len(ids) == 0 {
		return
	}
	b := t.bucket(typeID, true)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		b.ids[id] = struct{}{}
	}
}

// RemoveMany deletes every id in ids from the type's bucket under one lock.
func (t *typeIndex) RemoveMany(typeID graph.CardTypeId, ids []graph.CardId) {
	if len(ids) == 0 {
		return
	}
	b := t.bucket(typeID, false)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range ids {
		delete(b.ids, id)
	}
}

// Contains reports whether id is indexed under typeID.
func (t *typeIndex) Contains(typeID graph.CardTypeId, id graph.CardId) bool {
	b := t.bucket(typeID, false)
	if b == nil {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.ids[id]
	return ok
}

// Snapshot returns a copy of the ids under typeID.
func (t *typeIndex) Snapshot(typeID graph.CardTypeId) []graph.CardId {
	b := t.bucket(typeID, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]graph.CardId, 0, len(b.ids))
	for id := range b.ids {
		out = append(out, id)
	}
	return out
}

func (t *typeIndex) clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buckets = make(map[graph.CardTypeId]*idBucket)
}

// fragmentCache maps CardId -> Fragment for every live vertex, striped by
// id so that existence checks and attribute filters never touch disk or
// the full-vertex LRU.
type fragmentCache struct {
	stripes [stripeCount]struct {
		mu sync.RWMutex
		m  map[graph.CardId]graph.Fragment
	}
}

func newFragmentCache() *fragmentCache {
	fc := &fragmentCache{}
	for i := range fc.stripes {
		fc.stripes[i].m = make(map[graph.CardId]graph.Fragment)
	}
	return fc
}

func (fc *fragmentCache) stripe(id graph.CardId) *struct {
	mu sync.RWMutex
	m  map[graph.CardId]graph.Fragment
} {
	return &fc.stripes[hashU64(id)%stripeCount]
}

func (fc *fragmentCache) Get(id graph.CardId) (graph.Fragment, bool) {
	s := fc.stripe(id)
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.m[id]
	return f, ok
}

func (fc *fragmentCache) Put(f graph.Fragment) {
	s := fc.stripe(f.CardID)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[f.CardID] = f
}

func (fc *fragmentCache) Delete(id graph.CardId) {
	s := fc.stripe(id)
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, id)
}

func (fc *fragmentCache) clear() {
	for i := range fc.stripes {
		fc.stripes[i].mu.Lock()
		fc.stripes[i].m = make(map[graph.CardId]graph.Fragment)
		fc.stripes[i].mu.Unlock()
	}
}

// ===========================================================================
// Layer-level vertex operations
// ===========================================================================

// PublishVertexCreate inserts a newly committed vertex into the type index
// and fragment cache.
func (l *Layer) PublishVertexCreate(f graph.Fragment) {
	l.typeIdx.AddMany(f.CardTypeID, []graph.CardId{f.CardID})
	l.fragments.Put(f)
}

// PublishVertexUpdate replaces a fragment in place, moving it between type
// buckets if its card_type_id changed, and invalidates both LRUs for that
// id, the second step of the commit protocol.
func (l *Layer) PublishVertexUpdate(oldFrag, newFrag graph.Fragment) {
	if oldFrag.CardTypeID != newFrag.CardTypeID {
		l.typeIdx.RemoveMany(oldFrag.CardTypeID, []graph.CardId{oldFrag.CardID})
		l.typeIdx.AddMany(newFrag.CardTypeID, []graph.CardId{newFrag.CardID})
	}
	l.fragments.Put(newFrag)
	l.fullLRU.Invalidate(newFrag.CardID)
	l.descLRU.Invalidate(newFrag.CardID)
}

// PublishVertexDelete removes a vertex from every structure.
func (l *Layer) PublishVertexDelete(f graph.Fragment) {
	l.typeIdx.RemoveMany(f.CardTypeID, []graph.CardId{f.CardID})
	l.fragments.Delete(f.CardID)
	l.fullLRU.Invalidate(f.CardID)
	l.descLRU.Invalidate(f.CardID)
}

// Fragment returns the resident fragment for id, if the vertex is live.
func (l *Layer) Fragment(id graph.CardId) (graph.Fragment, bool) {
	return l.fragments.Get(id)
}

// VertexExists reports existence via the fragment cache alone — no disk
// access.
func (l *Layer) VertexExists(id graph.CardId) bool {
	_, ok := l.fragments.Get(id)
	return ok
}

// TypeMembers returns a snapshot of the ids indexed under typeID.
func (l *Layer) TypeMembers(typeID graph.CardTypeId) []graph.CardId {
	return l.typeIdx.Snapshot(typeID)
}

// CacheVertex inserts v into the full-vertex LRU.
func (l *Layer) CacheVertex(v *graph.Vertex) { l.fullLRU.Put(v.CardID, v) }

// CachedVertex returns the full vertex from the LRU, if resident.
func (l *Layer) CachedVertex(id graph.CardId) (*graph.Vertex, bool) { return l.fullLRU.Get(id) }

// CacheDescription inserts desc into the description LRU.
func (l *Layer) CacheDescription(id graph.CardId, desc string) { l.descLRU.Put(id, desc) }

// CachedDescription returns the cached description, if resident.
func (l *Layer) CachedDescription(id graph.CardId) (string, bool) { return l.descLRU.Get(id) }

// ===========================================================================
// Edge adjacency
// ===========================================================================

type descBucket struct {
	mu sync.Mutex
	m  map[graph.CardId]*smallIDSet
}

// adjacencyIndex maps Descriptor -> (CardId -> set of neighbor CardIds),
// locked once per descriptor for a whole batch of adjacency mutations.
type adjacencyIndex struct {
	mu      sync.RWMutex
	buckets map[graph.Descriptor]*descBucket
}

func newAdjacencyIndex() *adjacencyIndex {
	return &adjacencyIndex{buckets: make(map[graph.Descriptor]*descBucket)}
}

func (a *adjacencyIndex) bucket(d graph.Descriptor, create bool) *descBucket {
	a.mu.RLock()
	b, ok := a.buckets[d]
	a.mu.RUnlock()
	if ok || !create {
		return b
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if b, ok = a.buckets[d]; ok {
		return b
	}
	b = &descBucket{m: make(map[graph.CardId]*smallIDSet)}
	a.buckets[d] = b
	return b
}

// edgeOp is one adjacency mutation applied under the descriptor's single
// lock for a batched commit.
type edgeOp struct {
	anchorID graph.CardId
	otherID  graph.CardId
}

// AddMany inserts every (anchor, other) pair for descriptor d under one
// lock.
func (a *adjacencyIndex) AddMany(d graph.Descriptor, ops []edgeOp) {
	if len(ops) == 0 {
		return
	}
	b := a.bucket(d, true)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, op := range ops {
		set, ok := b.m[op.anchorID]
		if !ok {
			set = &smallIDSet{}
			b.m[op.anchorID] = set
		}
		set.Add(op.otherID)
	}
}

// RemoveMany deletes every (anchor, other) pair for descriptor d under one
// lock, dropping empty anchor entries entirely.
func (a *adjacencyIndex) RemoveMany(d graph.Descriptor, ops []edgeOp) {
	if len(ops) == 0 {
		return
	}
	b := a.bucket(d, false)
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, op := range ops {
		set, ok := b.m[op.anchorID]
		if !ok {
			continue
		}
		set.Remove(op.otherID)
		if set.Empty() {
			delete(b.m, op.anchorID)
		}
	}
}

// Neighbors returns the committed neighbor ids for (d, anchorID).
func (a *adjacencyIndex) Neighbors(d graph.Descriptor, anchorID graph.CardId) []graph.CardId {
	b := a.bucket(d, false)
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	set, ok := b.m[anchorID]
	if !ok {
		return nil
	}
	return set.Slice()
}

// Count sums every adjacency entry across every descriptor — callers
// divide by two for an edge count, since each edge is indexed from both endpoints.
func (a *adjacencyIndex) Count() int64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var total int64
	for _, b := range a.buckets {
		b.mu.Lock()
		for _, set := range b.m {
			total += int64(set.Len())
		}
		b.mu.Unlock()
	}
	return total
}

func (a *adjacencyIndex) clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.buckets = make(map[graph.Descriptor]*descBucket)
}

// PublishEdgeDeletes removes both adjacency directions for each deleted
// edge, grouped by descriptor (deletions happen before creations in the
// commit protocol's third step).
func (l *Layer) PublishEdgeDeletes(edges []graph.Edge) {
	bySrc := make(map[graph.Descriptor][]edgeOp)
	byDest := make(map[graph.Descriptor][]edgeOp)
	for _, e := range edges {
		ds := graph.Descriptor{EdgeType: e.EdgeType, Direction: graph.DirSrc}
		dd := graph.Descriptor{EdgeType: e.EdgeType, Direction: graph.DirDest}
		bySrc[ds] = append(bySrc[ds], edgeOp{anchorID: e.SrcID, otherID: e.DestID})
		byDest[dd] = append(byDest[dd], edgeOp{anchorID: e.DestID, otherID: e.SrcID})
	}
	for d, ops := range bySrc {
		l.adjacency.RemoveMany(d, ops)
	}
	for d, ops := range byDest {
		l.adjacency.RemoveMany(d, ops)
	}
	for _, e := range edges {
		l.edgeProps.Delete(e.SrcID, e.EdgeType, e.DestID)
	}
}

// PublishEdgeCreates inserts both adjacency directions for each newly
// committed edge, grouped by descriptor, and records any properties.
func (l *Layer) PublishEdgeCreates(edges []graph.Edge) {
	bySrc := make(map[graph.Descriptor][]edgeOp)
	byDest := make(map[graph.Descriptor][]edgeOp)
	for _, e := range edges {
		ds := graph.Descriptor{EdgeType: e.EdgeType, Direction: graph.DirSrc}
		dd := graph.Descriptor{EdgeType: e.EdgeType, Direction: graph.DirDest}
		bySrc[ds] = append(bySrc[ds], edgeOp{anchorID: e.SrcID, otherID: e.DestID})
		byDest[dd] = append(byDest[dd], edgeOp{anchorID: e.DestID, otherID: e.SrcID})
	}
	for d, ops := range bySrc {
		l.adjacency.AddMany(d, ops)
	}
	for d, ops := range byDest {
		l.adjacency.AddMany(d, ops)
	}
	for _, e := range edges {
		if len(e.Props) > 0 {
			l.edgeProps.Put(e.SrcID, e.EdgeType, e.DestID, e.Props)
		}
	}
}

// PublishEdgeUpdates replaces or removes property entries in place.
func (l *Layer) PublishEdgeUpdates(edges []graph.Edge) {
	for _, e := range edges {
		if len(e.Props) == 0 {
			l.edgeProps.Delete(e.SrcID, e.EdgeType, e.DestID)
		} else {
			l.edgeProps.Put(e.SrcID, e.EdgeType, e.DestID, e.Props)
		}
	}
}

// Neighbors returns the committed neighbor ids visible from anchorID under
// descriptor d.
func (l *Layer) Neighbors(d graph.Descriptor, anchorID graph.CardId) []graph.CardId {
	return l.adjacency.Neighbors(d, anchorID)
}

// InsertAdjacencyRaw rebuilds adjacency directly from on-disk adjacency
// keys, which already encode both directions as separate entries. Used only
// during startup rebuild, where PublishEdgeCreates would double-insert each
// direction by deriving the reverse from a single Edge.
func (l *Layer) InsertAdjacencyRaw(iter func(add func(d graph.Descriptor, anchorID, otherID graph.CardId))) {
	grouped := make(map[graph.Descriptor][]edgeOp)
	iter(func(d graph.Descriptor, anchorID, otherID graph.CardId) {
		grouped[d] = append(grouped[d], edgeOp{anchorID: anchorID, otherID: otherID})
	})
	for d, ops := range grouped {
		l.adjacency.AddMany(d, ops)
	}
}

// EdgeCount returns the number of live edges (adjacency entries / 2).
func (l *Layer) EdgeCount() int64 {
	return l.adjacency.Count() / 2
}

// ===========================================================================
// Edge property cache
// ===========================================================================

type edgePropEntry struct {
	mu    sync.Mutex
	props []graph.EdgeProp
	valid bool
}

// edgePropCache maps "<src>:<type>:<dest>" -> []EdgeProp, striped by the
// triple's hash. Holds every live edge's properties, since edges with
// properties are rare but random-access is frequent.
type edgePropCache struct {
	stripes [stripeCount]struct {
		mu sync.RWMutex
		m  map[string]*edgePropEntry
	}
}

func newEdgePropCache() *edgePropCache {
	c := &edgePropCache{}
	for i := range c.stripes {
		c.stripes[i].m = make(map[string]*edgePropEntry)
	}
	return c
}

func edgePropKey(src graph.CardId, edgeType string, dest graph.CardId) string {
	return fmt.Sprintf("%d:%s:%d", src, edgeType, dest)
}

func (c *edgePropCache) stripeFor(key string) *struct {
	mu sync.RWMutex
	m  map[string]*edgePropEntry
} {
	return &c.stripes[fnv1a64(key)%stripeCount]
}

func (c *edgePropCache) Get(src graph.CardId, edgeType string, dest graph.CardId) ([]graph.EdgeProp, bool) {
	key := edgePropKey(src, edgeType, dest)
	s := c.stripeFor(key)
	s.mu.RLock()
	entry, ok := s.m[key]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.props, entry.valid
}

func (c *edgePropCache) Put(src graph.CardId, edgeType string, dest graph.CardId, props []graph.EdgeProp) {
	key := edgePropKey(src, edgeType, dest)
	s := c.stripeFor(key)
	s.mu.Lock()
	entry, ok := s.m[key]
	if !ok {
		entry = &edgePropEntry{}
		s.m[key] = entry
	}
	s.mu.Unlock()

	entry.mu.Lock()
	entry.props = props
	entry.valid = true
	entry.mu.Unlock()
}

func (c *edgePropCache) Delete(src graph.CardId, edgeType string, dest graph.CardId) {
	key := edgePropKey(src, edgeType, dest)
	s := c.stripeFor(key)
	s.mu.Lock()
	delete(s.m, key)
	s.mu.Unlock()
}

func (c *edgePropCache) clear() {
	for i := range c.stripes {
		c.stripes[i].mu.Lock()
		c.stripes[i].m = make(map[string]*edgePropEntry)
		c.stripes[i].mu.Unlock()
	}
}

// EdgeProperties returns the cached properties for (src, type, dest).
func (l *Layer) EdgeProperties(src graph.CardId, edgeType string, dest graph.CardId) ([]graph.EdgeProp, bool) {
	return l.edgeProps.Get(src, edgeType, dest)
}

// TypeCount is one entry of the per-type vertex counts reported by Stats.
type TypeCount struct {
	CardTypeID graph.CardTypeId
	Count      int64
}

// Stats reports cache occupancy and hit/miss counters for the memory layer.
type Stats struct {
	VertexCount      int64
	EdgeCount        int64
	TypeCounts       []TypeCount
	FullVertexHits   uint64
	FullVertexMisses uint64
	FullVertexSize   int
	DescHits         uint64
	DescMisses       uint64
	DescSize         int
}

// Stats computes the administrative statistics blob.
func (l *Layer) Stats() Stats {
	var vertexCount int64
	var typeCounts []TypeCount
	l.typeIdx.mu.RLock()
	for typeID, b := range l.typeIdx.buckets {
		b.mu.Lock()
		n := int64(len(b.ids))
		b.mu.Unlock()
		vertexCount += n
		typeCounts = append(typeCounts, TypeCount{CardTypeID: typeID, Count: n})
	}
	l.typeIdx.mu.RUnlock()

	fh, fm, fs := l.fullLRU.Stats()
	dh, dm, ds := l.descLRU.Stats()

	return Stats{
		VertexCount:      vertexCount,
		EdgeCount:        l.EdgeCount(),
		TypeCounts:       typeCounts,
		FullVertexHits:   fh,
		FullVertexMisses: fm,
		FullVertexSize:   fs,
		DescHits:         dh,
		DescMisses:       dm,
		DescSize:         ds,
	}
}
