package query

import (
	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/txn"
)

// ResolveScope runs stage 1 (scope resolution): if the
// condition tree's root can be rewritten as a concrete id set — a link
// leaf with OpIn against an explicit id list, or a link leaf with a Path
// anchored at a known vertex — that set is resolved up front and merged
// into scope.CardIDs. A resolved-but-empty id set short-circuits the whole
// query.
func ResolveScope(t *txn.Transaction, scope Scope, cond *Condition) (Scope, empty bool) {
	if cond == nil || cond.IsGroup || cond.Leaf.Kind != LeafLink {
		return scope, false
	}
	leaf := cond.Leaf

	var ids []graph.CardId
	switch leaf.Op {
	case OpIn, OpEqual:
		ids = leaf.IDs
	default:
		return scope, false
	}

	if len(leaf.Path) > 0 {
		resolved := make([]graph.CardId, 0, len(ids))
		for _, anchor := range ids {
			resolved = append(resolved, walkPath(t, anchor, leaf.Path, leaf.IncludeDiscarded)...)
		}
		ids = resolved
	}

	if len(ids) == 0 {
		return scope, true
	}

	merged := scope
	merged.CardIDs = append(append([]graph.CardId{}, scope.CardIDs...), ids...)
	return merged, false
}

// walkPath traverses an ordered list of (edge_type, position) hops from
// anchor, returning the ids reached after the final hop.
func walkPath(t *txn.Transaction, anchor graph.CardId, path []LinkPath, includeDiscarded bool) []graph.CardId {
	frontier := []graph.CardId{anchor}
	for i, step := range path {
		last := i == len(path)-1
		var next []graph.CardId
		for _, id := range frontier {
			neighbors := t.QueryNeighborVertexIDs(step.EdgeType, graph.DirSrc, id)
			next = append(next, pickPosition(neighbors, step.Position)...)
		}
		if last && !includeDiscarded {
			next = filterDiscarded(t, next)
		}
		frontier = next
		if len(frontier) == 0 {
			return nil
		}
	}
	return frontier
}

// pickPosition selects the neighbor at a fixed ordinal position if
// position >= 0, or every neighbor if position < 0 (fan-out step).
func pickPosition(ids []graph.CardId, position int) []graph.CardId {
	if position < 0 {
		return ids
	}
	if position >= len(ids) {
		return nil
	}
	return []graph.CardId{ids[position]}
}

func filterDiscarded(t *txn.Transaction, ids []graph.CardId) []graph.CardId {
	out := make([]graph.CardId, 0, len(ids))
	for _, id := range ids {
		frag, ok := t.GetFragment(id)
		if !ok || frag.State == graph.StateDiscarded {
			continue
		}
		out = append(out, id)
	}
	return out
}

// QueryVertices is stage 2's candidate source:
// iterate scope.CardIDs if supplied, else union type_index[t] for each t in
// CardTypeIDs, then filter by container/state using the fragment cache
// without loading the full vertex.
func QueryVertices(t *txn.Transaction, scope Scope) []graph.CardId {
	var candidates []graph.CardId
	if len(scope.CardIDs) > 0 {
		candidates = scope.CardIDs
	} else {
		seen := make(map[graph.CardId]struct{})
		for _, typeID := range scope.CardTypeIDs {
			for _, id := range t.QueryVertices(typeID) {
				if _, dup := seen[id]; dup {
					continue
				}
				seen[id] = struct{}{}
				candidates = append(candidates, id)
			}
		}
	}

	if len(scope.ContainerIDs) == 0 && len(scope.States) == 0 {
		return filterLive(t, candidates)
	}

	containerSet := toSet(scope.ContainerIDs)
	stateSet := toStateSet(scope.States)

	out := make([]graph.CardId, 0, len(candidates))
	for _, id := range candidates {
		frag, ok := t.GetFragment(id)
		if !ok {
			continue
		}
		if len(containerSet) > 0 {
			if _, in := containerSet[frag.ContainerID]; !in {
				continue
			}
		}
		if len(stateSet) > 0 {
			if _, in := stateSet[frag.State]; !in {
				continue
			}
		}
		out = append(out, id)
	}
	return out
}

// filterLive drops ids no longer resident in the fragment cache (staged
// deletes, stale scope input).
func filterLive(t *txn.Transaction, ids []graph.CardId) []graph.CardId {
	out := make([]graph.CardId, 0, len(ids))
	for _, id := range ids {
		if _, ok := t.GetFragment(id); ok {
			out = append(out, id)
		}
	}
	return out
}

func toSet(ids []graph.ContainerId) map[graph.ContainerId]struct{} {
	if len(ids) == 0 {
		return nil
	}
	s := make(map[graph.ContainerId]struct{}, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func toStateSet(states []graph.State) map[graph.State]struct{} {
	if len(states) == 0 {
		return nil
	}
	s := make(map[graph.State]struct{}, len(states))
	for _, st := range states {
		s[st] = struct{}{}
	}
	return s
}
