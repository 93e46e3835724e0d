package raftfsm

import (
	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/txn"
)

// BatchCreateCards stages a Create for every vertex, committing once. A
// per-vertex failure (already exists, bad state) is collected without
// aborting the rest; a commit failure invalidates the whole batch.
func BatchCreateCards(store *txn.Store, cards []*graph.Vertex) Summary {
	t := store.Begin()
	var sum Summary
	ok := make([]graph.CardId, 0, len(cards))
	for _, v := range cards {
		created, err := t.CreateVertex(v)
		if err != nil {
			sum.FailedIDs = append(sum.FailedIDs, v.CardID)
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		if !created {
			sum.FailedIDs = append(sum.FailedIDs, v.CardID)
			sum.Errors = append(sum.Errors, graph.ErrAlreadyExists.Error())
			continue
		}
		ok = append(ok, v.CardID)
	}
	if err := t.Commit(); err != nil {
		return invalidate(ok, err)
	}
	sum.SuccessCount = len(ok)
	return sum
}

// BatchUpdateCards replaces each vertex in place.
func BatchUpdateCards(store *txn.Store, cards []*graph.Vertex) Summary {
	t := store.Begin()
	var sum Summary
	ok := make([]graph.CardId, 0, len(cards))
	for _, v := range cards {
		frag, exists := t.GetFragment(v.CardID)
		if !exists {
			sum.FailedIDs = append(sum.FailedIDs, v.CardID)
			sum.Errors = append(sum.Errors, graph.ErrNotFound.Error())
			continue
		}
		if err := t.UpdateVertex(frag, v); err != nil {
			sum.FailedIDs = append(sum.FailedIDs, v.CardID)
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		ok = append(ok, v.CardID)
	}
	if err := t.Commit(); err != nil {
		return invalidate(ok, err)
	}
	sum.SuccessCount = len(ok)
	return sum
}

// BatchUpdateCardTitles replaces just the Title field of each named card.
func BatchUpdateCardTitles(store *txn.Store, updates []TitleUpdate) Summary {
	t := store.Begin()
	var sum Summary
	ok := make([]graph.CardId, 0, len(updates))
	for _, u := range updates {
		frag, exists := t.GetFragment(u.CardID)
		if !exists {
			sum.FailedIDs = append(sum.FailedIDs, u.CardID)
			sum.Errors = append(sum.Errors, graph.ErrNotFound.Error())
			continue
		}
		v, err := t.GetVertex(u.CardID)
		if err != nil {
			sum.FailedIDs = append(sum.FailedIDs, u.CardID)
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		v.Title = u.Title
		if err := t.UpdateVertex(frag, v); err != nil {
			sum.FailedIDs = append(sum.FailedIDs, u.CardID)
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		ok = append(ok, u.CardID)
	}
	if err := t.Commit(); err != nil {
		return invalidate(ok, err)
	}
	sum.SuccessCount = len(ok)
	return sum
}

// BatchPatchCardFields applies partial field updates: only the fields
// present in a FieldPatch's map are touched, and within that map only
// non-nil values overwrite; absent keys leave the field untouched.
func BatchPatchCardFields(store *txn.Store, patches []FieldPatch) Summary {
	t := store.Begin()
	var sum Summary
	ok := make([]graph.CardId, 0, len(patches))
	for _, p := range patches {
		frag, exists := t.GetFragment(p.CardID)
		if !exists {
			sum.FailedIDs = append(sum.FailedIDs, p.CardID)
			sum.Errors = append(sum.Errors, graph.ErrNotFound.Error())
			continue
		}
		v, err := t.GetVertex(p.CardID)
		if err != nil {
			sum.FailedIDs = append(sum.FailedIDs, p.CardID)
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		if v.Fields == nil {
			v.Fields = make(map[graph.FieldId]graph.FieldValue, len(p.Fields))
		}
		for fid, fv := range p.Fields {
			if fv == nil {
				continue
			}
			v.Fields[fid] = *fv
		}
		if err := t.UpdateVertex(frag, v); err != nil {
			sum.FailedIDs = append(sum.FailedIDs, p.CardID)
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		ok = append(ok, p.CardID)
	}
	if err := t.Commit(); err != nil {
		return invalidate(ok, err)
	}
	sum.SuccessCount = len(ok)
	return sum
}

// BatchCreateLinks stages a Create for every edge.
func BatchCreateLinks(store *txn.Store, writes []LinkWrite) Summary {
	t := store.Begin()
	var sum Summary
	okCount := 0
	for _, w := range writes {
		created, err := t.CreateEdge(w.Edge)
		if err != nil {
			sum.FailedLinks = append(sum.FailedLinks, edgeKeyOf(w.Edge))
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		if !created {
			sum.FailedLinks = append(sum.FailedLinks, edgeKeyOf(w.Edge))
			sum.Errors = append(sum.Errors, graph.ErrAlreadyExists.Error())
			continue
		}
		okCount++
	}
	if err := t.Commit(); err != nil {
		sum.SuccessCount = 0
		for _, w := range writes {
			sum.FailedLinks = append(sum.FailedLinks, edgeKeyOf(w.Edge))
		}
		sum.Errors = append(sum.Errors, err.Error())
		return sum
	}
	sum.SuccessCount = okCount
	return sum
}

// BatchUpdateLinks replaces properties on each named edge.
func BatchUpdateLinks(store *txn.Store, writes []LinkWrite) Summary {
	t := store.Begin()
	var sum Summary
	okCount := 0
	for _, w := range writes {
		updated, err := t.UpdateEdge(w.Edge, w.Dir)
		if err != nil {
			sum.FailedLinks = append(sum.FailedLinks, edgeKeyOf(w.Edge))
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		if !updated {
			sum.FailedLinks = append(sum.FailedLinks, edgeKeyOf(w.Edge))
			sum.Errors = append(sum.Errors, graph.ErrNotFound.Error())
			continue
		}
		okCount++
	}
	if err := t.Commit(); err != nil {
		sum.SuccessCount = 0
		sum.Errors = append(sum.Errors, err.Error())
		return sum
	}
	sum.SuccessCount = okCount
	return sum
}

// BatchDeleteLinks stages a Delete for every named edge.
func BatchDeleteLinks(store *txn.Store, deletes []LinkDelete) Summary {
	t := store.Begin()
	var sum Summary
	okCount := 0
	for _, d := range deletes {
		if err := t.DeleteEdge(d.Edge); err != nil {
			sum.FailedLinks = append(sum.FailedLinks, edgeKeyOf(d.Edge))
			sum.Errors = append(sum.Errors, err.Error())
			continue
		}
		okCount++
	}
	if err := t.Commit(); err != nil {
		sum.SuccessCount = 0
		sum.Errors = append(sum.Errors, err.Error())
		return sum
	}
	sum.SuccessCount = okCount
	return sum
}

func edgeKeyOf(e graph.Edge) graph.EdgeKey {
	return graph.EdgeKey{Src: e.SrcID, Type: e.EdgeType, Dest: e.DestID}
}

// invalidate turns a commit failure into a summary where no entity
// in the batch actually succeeded.
func invalidate(attempted []graph.CardId, err error) Summary {
	return Summary{
		SuccessCount: 0,
		FailedIDs:    attempted,
		Errors:       []string{err.Error()},
	}
}
