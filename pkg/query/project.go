package query

import (
	"fmt"

	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/txn"
)

// Project runs stage 4: converts a surviving candidate into a
// Record, honoring the caller's Yield — which custom fields, whether to
// include the description (and so whether the description LRU is
// consulted), and the recursive YieldedLink tree.
func Project(t *txn.Transaction, id graph.CardId, y *Yield) (Record, error) {
	v, err := t.GetVertex(id)
	if err != nil {
		return Record{}, err
	}

	rec := Record{CardID: id}
	if y == nil {
		return rec, nil
	}

	rec.Fields = projectFields(v, y.Field)
	if y.Field.ContainsDescription {
		desc, ok, err := t.GetDescription(id)
		if err != nil {
			return Record{}, err
		}
		if ok {
			rec.Description = desc
		}
	}

	if len(y.Links) > 0 {
		rec.Links = make(map[string][]Record, len(y.Links))
		for _, yl := range y.Links {
			sub, err := projectLink(t, id, yl)
			if err != nil {
				return Record{}, err
			}
			key := fmt.Sprintf("%s:%d", yl.EdgeType, yl.Position)
			rec.Links[key] = sub
		}
	}

	return rec, nil
}

func projectFields(v *graph.Vertex, yf YieldedField) map[graph.FieldId]graph.FieldValue {
	if yf.ContainsAllCustom {
		out := make(map[graph.FieldId]graph.FieldValue, len(v.Fields))
		for k, fv := range v.Fields {
			out[k] = fv
		}
		return out
	}
	if len(yf.CustomFields) == 0 {
		return nil
	}
	out := make(map[graph.FieldId]graph.FieldValue, len(yf.CustomFields))
	for _, fid := range yf.CustomFields {
		if fv, ok := v.Fields[fid]; ok {
			out[fid] = fv
		}
	}
	return out
}

// projectLink traverses one yield hop, excluding Discarded neighbors
// unless the step opts in, and recurses into each surviving neighbor.
func projectLink(t *txn.Transaction, anchor graph.CardId, yl YieldedLink) ([]Record, error) {
	neighbors := t.QueryNeighborVertexIDs(yl.EdgeType, graph.DirSrc, anchor)
	sel := pickPosition(neighbors, yl.Position)
	if !yl.IncludeDiscarded {
		sel = filterDiscarded(t, sel)
	}

	out := make([]Record, 0, len(sel))
	for _, id := range sel {
		childYield := &Yield{Field: yl.Fields, Links: yl.Links}
		rec, err := Project(t, id, childYield)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}
