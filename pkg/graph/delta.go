package graph

// VertexDelta is the per-transaction staged set of vertex creates,
// updates, and deletes, applied to the memory layer only on commit.
// Delete stores the pre-image fragment so commit knows the old type for
// index surgery.
type VertexDelta struct {
	Create map[CardId]Fragment
	Update map[CardId]updatePair
	Delete map[CardId]Fragment
}

type updatePair struct {
	Old Fragment
	New Fragment
}

// NewVertexDelta returns an empty delta.
func NewVertexDelta() *VertexDelta {
	return &VertexDelta{
		Create: make(map[CardId]Fragment),
		Update: make(map[CardId]updatePair),
		Delete: make(map[CardId]Fragment),
	}
}

// RecordCreate stages a create.
func (d *VertexDelta) RecordCreate(f Fragment) { d.Create[f.CardID] = f }

// RecordUpdate stages an update, remembering both old and new fragments so
// commit can detect type changes.
func (d *VertexDelta) RecordUpdate(old, new Fragment) {
	d.Update[new.CardID] = updatePair{Old: old, New: new}
}

// RecordDelete stages a delete, keeping the pre-image fragment.
func (d *VertexDelta) RecordDelete(f Fragment) { d.Delete[f.CardID] = f }

// IsDeleted reports whether id is staged for deletion in this delta.
func (d *VertexDelta) IsDeleted(id CardId) bool {
	_, ok := d.Delete[id]
	return ok
}

// IsCreated reports whether id is staged for creation in this delta.
func (d *VertexDelta) IsCreated(id CardId) bool {
	_, ok := d.Create[id]
	return ok
}

// EdgeKey identifies an edge triple for delta maps.
type EdgeKey struct {
	Src  CardId
	Type EdgeType
	Dest CardId
}

// EdgeDelta is the per-transaction staged set of edge creates, updates, and
// deletes.
type EdgeDelta struct {
	Create map[EdgeKey]Edge
	Update map[EdgeKey]Edge
	Delete map[EdgeKey]Edge
}

// NewEdgeDelta returns an empty edge delta.
func NewEdgeDelta() *EdgeDelta {
	return &EdgeDelta{
		Create: make(map[EdgeKey]Edge),
		Update: make(map[EdgeKey]Edge),
		Delete: make(map[EdgeKey]Edge),
	}
}

func keyOf(e Edge) EdgeKey { return EdgeKey{Src: e.SrcID, Type: e.EdgeType, Dest: e.DestID} }

func (d *EdgeDelta) RecordCreate(e Edge) { d.Create[keyOf(e)] = e }
func (d *EdgeDelta) RecordUpdate(e Edge) { d.Update[keyOf(e)] = e }
func (d *EdgeDelta) RecordDelete(e Edge) { d.Delete[keyOf(e)] = e }

// IsDeleted reports whether the triple is staged for deletion.
func (d *EdgeDelta) IsDeleted(k EdgeKey) bool {
	_, ok := d.Delete[k]
	return ok
}

// IsCreated reports whether the triple is staged for creation.
func (d *EdgeDelta) IsCreated(k EdgeKey) bool {
	_, ok := d.Create[k]
	return ok
}

// Get returns the staged edge for k from create or update, if any.
func (d *EdgeDelta) Get(k EdgeKey) (Edge, bool) {
	if e, ok := d.Create[k]; ok {
		return e, true
	}
	if e, ok := d.Update[k]; ok {
		return e, true
	}
	return Edge{}, false
}
