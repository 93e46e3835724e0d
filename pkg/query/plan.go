package query

import (
	"strconv"

	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/txn"
)

// Result is a completed query's output: the total candidate count before
// paging, and the projected, sorted, paged records.
type Result struct {
	TotalCandidates int
	Records         []Record
}

// Run executes the full four-stage query plan over req, against the
// given transaction's read view.
func Run(t *txn.Transaction, req QueryRequest) (Result, error) {
	scope := req.Scope
	if req.Condition != nil {
		resolved, empty := ResolveScope(t, scope, req.Condition)
		if empty {
			return Result{}, nil
		}
		scope = resolved
	}

	candidates := QueryVertices(t, scope)

	if req.Condition != nil {
		filtered := candidates[:0]
		for _, id := range candidates {
			if Evaluate(t, req.Condition, id) {
				filtered = append(filtered, id)
			}
		}
		candidates = filtered
	}

	total := len(candidates)
	paged := ApplySortAndPage(t, candidates, req.SortAndPage)

	records := make([]Record, 0, len(paged))
	for _, id := range paged {
		rec, err := Project(t, id, req.Yield)
		if err != nil {
			return Result{}, err
		}
		records = append(records, rec)
	}

	return Result{TotalCandidates: total, Records: records}, nil
}

// Count runs stages 1-2 only, for a bare count request.
func Count(t *txn.Transaction, scope Scope, cond *Condition) (int, error) {
	resolved := scope
	if cond != nil {
		r, empty := ResolveScope(t, scope, cond)
		if empty {
			return 0, nil
		}
		resolved = r
	}
	candidates := QueryVertices(t, resolved)
	if cond == nil {
		return len(candidates), nil
	}
	n := 0
	for _, id := range candidates {
		if Evaluate(t, cond, id) {
			n++
		}
	}
	return n, nil
}

// CardIDs runs the plan but returns only ids, for a card-id query — skips
// projection entirely.
func CardIDs(t *txn.Transaction, req QueryRequest) ([]graph.CardId, error) {
	scope := req.Scope
	if req.Condition != nil {
		resolved, empty := ResolveScope(t, scope, req.Condition)
		if empty {
			return nil, nil
		}
		scope = resolved
	}
	candidates := QueryVertices(t, scope)
	if req.Condition != nil {
		filtered := candidates[:0]
		for _, id := range candidates {
			if Evaluate(t, req.Condition, id) {
				filtered = append(filtered, id)
			}
		}
		candidates = filtered
	}
	return ApplySortAndPage(t, candidates, req.SortAndPage), nil
}

// GroupCount is one bucket of a count-by-group response.
type GroupCount struct {
	GroupValue string
	Count      int
}

// CountByGroup runs stages 1-2 then buckets survivors by groupBy, an inner
// field name or custom FieldId whose text/enum value becomes the group
// key.
func CountByGroup(t *txn.Transaction, scope Scope, cond *Condition, groupBy SortField) ([]GroupCount, error) {
	resolved := scope
	if cond != nil {
		r, empty := ResolveScope(t, scope, cond)
		if empty {
			return nil, nil
		}
		resolved = r
	}
	candidates := QueryVertices(t, resolved)

	counts := make(map[string]int)
	order := make([]string, 0)
	for _, id := range candidates {
		if cond != nil && !Evaluate(t, cond, id) {
			continue
		}
		key := groupKey(t, id, groupBy)
		if _, ok := counts[key]; !ok {
			order = append(order, key)
		}
		counts[key]++
	}

	out := make([]GroupCount, 0, len(order))
	for _, k := range order {
		out = append(out, GroupCount{GroupValue: k, Count: counts[k]})
	}
	return out, nil
}

func groupKey(t *txn.Transaction, id graph.CardId, field SortField) string {
	k := extractKey(t, id, field)
	if k.empty {
		return ""
	}
	switch k.kind {
	case keyText:
		return k.text
	case keyOrder:
		return strconv.Itoa(k.order)
	default:
		return strconv.FormatFloat(k.num, 'g', -1, 64)
	}
}
