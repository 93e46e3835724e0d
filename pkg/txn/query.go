package txn

import "github.com/pgraph/pgraph/pkg/graph"

// QueryVertices returns every CardId currently indexed under typeID, the
// scope-resolution primitive the query runtime (pkg/query) builds candidate
// sets from before applying filter predicates.
func (t *Transaction) QueryVertices(typeID graph.CardTypeId) []graph.CardId {
	return t.store.mem.TypeMembers(typeID)
}

// QueryNeighborVertexIDs resolves one traversal hop: every vertex reachable
// from anchorID via edgeType in the given direction.
func (t *Transaction) QueryNeighborVertexIDs(edgeType graph.EdgeType, dir graph.Direction, anchorID graph.CardId) []graph.CardId {
	return t.NeighborIDs(graph.Descriptor{EdgeType: edgeType, Direction: dir}, anchorID)
}

// NeighborEdge pairs a resolved neighbor id with the edge that reached it,
// the shape multi-hop traversal and edge projection both need.
type NeighborEdge struct {
	NeighborID graph.CardId
	Edge       graph.Edge
}

// QueryNeighborEdges resolves one hop and returns the edges themselves
// (without properties attached), for callers that only need the
// destination set and the edge type/direction they arrived by.
func (t *Transaction) QueryNeighborEdges(edgeType graph.EdgeType, dir graph.Direction, anchorID graph.CardId) []NeighborEdge {
	ids := t.QueryNeighborVertexIDs(edgeType, dir, anchorID)
	out := make([]NeighborEdge, 0, len(ids))
	for _, id := range ids {
		var e graph.Edge
		if dir == graph.DirSrc {
			e = graph.Edge{SrcID: anchorID, DestID: id, EdgeType: edgeType}
		} else {
			e = graph.Edge{SrcID: id, DestID: anchorID, EdgeType: edgeType}
		}
		out = append(out, NeighborEdge{NeighborID: id, Edge: e})
	}
	return out
}

// QueryNeighborEdgesWithProps is QueryNeighborEdges but also resolves each
// edge's property list from the edge property cache, for queries that sort
// or filter on edge properties rather than just vertex attributes.
func (t *Transaction) QueryNeighborEdgesWithProps(edgeType graph.EdgeType, dir graph.Direction, anchorID graph.CardId) []NeighborEdge {
	base := t.QueryNeighborEdges(edgeType, dir, anchorID)
	for i, ne := range base {
		src, edgeT, dest := ne.Edge.SrcID, ne.Edge.EdgeType, ne.Edge.DestID
		if props, ok := t.EdgeProperties(src, edgeT, dest); ok {
			base[i].Edge.Props = props
		}
	}
	return base
}
