package query

import (
	"container/heap"
	"math"
	"sort"

	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/txn"
)

// keyKind tags which field of a sortKey holds the comparable value.
type keyKind int

const (
	keyNum keyKind = iota
	keyText
	keyOrder
)

// sortKey is one candidate's precomputed value for a single SortSpec,
// precomputed once so repeated comparisons during sort stay cheap.
type sortKey struct {
	empty bool
	kind  keyKind
	num   float64
	text  string
	order int // enum_item_order_map / state ordinal result
}

// keyVector is a candidate's full precomputed sort-key tuple plus its id.
type keyVector struct {
	id   graph.CardId
	keys []sortKey
}

// precompute extracts a keyVector for id across every sort spec.
func precompute(t *txn.Transaction, id graph.CardId, sorts []SortSpec) keyVector {
	keys := make([]sortKey, len(sorts))
	for i, spec := range sorts {
		keys[i] = extractKey(t, id, spec.Field)
	}
	return keyVector{id: id, keys: keys}
}

func extractKey(t *txn.Transaction, id graph.CardId, field SortField) sortKey {
	if field.Link != nil {
		neighbors := t.QueryNeighborVertexIDs(field.Link.EdgeType, graph.DirSrc, id)
		neighbors = filterDiscarded(t, neighbors)
		sel := pickPosition(neighbors, field.Link.Position)
		if len(sel) == 0 {
			return sortKey{empty: true}
		}
		v, err := t.GetVertex(sel[0])
		if err != nil {
			return sortKey{empty: true}
		}
		return sortKey{kind: keyText, text: textTransform(v.Title.PlainText())}
	}

	if field.Inner != "" {
		return extractInnerKey(t, id, field.Inner)
	}

	v, err := t.GetVertex(id)
	if err != nil {
		return sortKey{empty: true}
	}
	fv, ok := v.Fields[field.Field]
	if !ok {
		return sortKey{empty: true}
	}
	switch fv.Kind {
	case graph.FieldNumber:
		return sortKey{kind: keyNum, empty: math.IsNaN(fv.Number), num: fv.Number}
	case graph.FieldDate:
		return sortKey{kind: keyNum, num: float64(fv.Date)}
	case graph.FieldText:
		return sortKey{kind: keyText, text: textTransform(fv.Text)}
	case graph.FieldEnum:
		if len(fv.EnumOptions) == 0 {
			return sortKey{empty: true}
		}
		order, ok := field.EnumOrder[fv.EnumOptions[0]]
		if !ok {
			return sortKey{empty: true}
		}
		return sortKey{kind: keyOrder, order: order}
	default:
		return sortKey{empty: true}
	}
}

func extractInnerKey(t *txn.Transaction, id graph.CardId, inner string) sortKey {
	switch inner {
	case "created", "updated", "position":
		v, err := t.GetVertex(id)
		if err != nil {
			return sortKey{empty: true}
		}
		switch inner {
		case "created":
			return sortKey{kind: keyNum, num: float64(v.CreatedAt)}
		case "updated":
			return sortKey{kind: keyNum, num: float64(v.UpdatedAt)}
		default:
			return sortKey{kind: keyNum, num: v.Position}
		}
	case "state", "container_id", "card_type_id":
		frag, ok := t.GetFragment(id)
		if !ok {
			return sortKey{empty: true}
		}
		switch inner {
		case "state":
			return sortKey{kind: keyOrder, order: int(frag.State)}
		case "container_id":
			return sortKey{kind: keyText, text: textTransform(frag.ContainerID)}
		default:
			return sortKey{kind: keyText, text: textTransform(frag.CardTypeID)}
		}
	case "code", "title":
		v, err := t.GetVertex(id)
		if err != nil {
			return sortKey{empty: true}
		}
		if inner == "code" {
			if v.CustomCode == "" {
				return sortKey{empty: true}
			}
			return sortKey{kind: keyText, text: textTransform(v.CustomCode)}
		}
		return sortKey{kind: keyText, text: textTransform(v.Title.PlainText())}
	default:
		return sortKey{empty: true}
	}
}

// textTransform is the deterministic text-sort transform:
// ordinary code-point order, applied consistently to every input of the
// same sort key.
func textTransform(s string) string { return s }

// compareVectors compares two keyVectors under the ordered sort specs.
// Empty keys always sort last regardless of Asc/Desc.
func compareVectors(a, b keyVector, sorts []SortSpec) int {
	for i, spec := range sorts {
		ak, bk := a.keys[i], b.keys[i]
		if ak.empty && bk.empty {
			continue
		}
		if ak.empty {
			return 1
		}
		if bk.empty {
			return -1
		}
		c := compareOne(ak, bk)
		if c == 0 {
			continue
		}
		if spec.Way == Desc {
			c = -c
		}
		return c
	}
	return 0
}

// compareOne compares two populated (non-empty) sort keys of the same
// kind — extractKey always produces matching kinds for a given SortSpec,
// since the kind is derived from the field definition, not the value.
func compareOne(a, b sortKey) int {
	if a.kind == keyOrder {
		if a.order < b.order {
			return -1
		}
		if a.order > b.order {
			return 1
		}
		return 0
	}
	if a.kind == keyText {
		if a.text < b.text {
			return -1
		}
		if a.text > b.text {
			return 1
		}
		return 0
	}
	if a.num < b.num {
		return -1
	}
	if a.num > b.num {
		return 1
	}
	return 0
}

// topKHeap is a bounded max-heap (by the "worse than current worst"
// relation) used to select the top k candidates without a full sort.
type topKHeap struct {
	items []keyVector
	sorts []SortSpec
}

func (h *topKHeap) Len() int { return len(h.items) }
func (h *topKHeap) Less(i, j int) bool {
	// Max-heap on "worse" ranking so Pop removes the current worst,
	// keeping the k best seen so far.
	return compareVectors(h.items[i], h.items[j], h.sorts) > 0
}
func (h *topKHeap) Swap(i, j int) { h.items[i], h.items[j] = h.items[j], h.items[i] }
func (h *topKHeap) Push(x any)    { h.items = append(h.items, x.(keyVector)) }
func (h *topKHeap) Pop() any {
	old := h.items
	n := len(old)
	item := old[n-1]
	h.items = old[:n-1]
	return item
}

// ApplySortAndPage runs stage 3: chooses TopK when
// page_size > 0, (page_num+1)*page_size < total_candidates, and
// page_num < 10; otherwise full sort. Both paths must produce
// byte-identical page slices for the same inputs.
func ApplySortAndPage(t *txn.Transaction, candidates []graph.CardId, sp *SortAndPage) []graph.CardId {
	if sp == nil {
		return candidates
	}
	if len(sp.Sorts) == 0 {
		return pageSlice(candidates, sp.Page)
	}

	vectors := make([]keyVector, len(candidates))
	for i, id := range candidates {
		vectors[i] = precompute(t, id, sp.Sorts)
	}

	useTopK := false
	var k int
	if sp.Page != nil && sp.Page.PageSize > 0 {
		k = (sp.Page.PageNum + 1) * sp.Page.PageSize
		useTopK = k < len(vectors) && sp.Page.PageNum < 10
	}

	var sorted []keyVector
	if useTopK {
		sorted = topKSelect(vectors, sp.Sorts, k)
	} else {
		sort.SliceStable(vectors, func(i, j int) bool {
			return compareVectors(vectors[i], vectors[j], sp.Sorts) < 0
		})
		sorted = vectors
	}

	out := make([]graph.CardId, len(sorted))
	for i, v := range sorted {
		out[i] = v.id
	}
	return pageSlice(out, sp.Page)
}

// topKSelect partitions candidates into fully-populated vs has-an-empty-key
// sets, heap-selects the k best of the populated partition, sorts that
// top-k with the true comparator, then backfills from the empty partition
// if still short of k.
func topKSelect(vectors []keyVector, sorts []SortSpec, k int) []keyVector {
	var populated, emptyPart []keyVector
	for _, v := range vectors {
		if anyEmpty(v) {
			emptyPart = append(emptyPart, v)
		} else {
			populated = append(populated, v)
		}
	}

	h := &topKHeap{sorts: sorts}
	for _, v := range populated {
		if h.Len() < k {
			heap.Push(h, v)
			continue
		}
		if compareVectors(v, h.items[0], sorts) < 0 {
			heap.Pop(h)
			heap.Push(h, v)
		}
	}

	top := append([]keyVector{}, h.items...)
	sort.SliceStable(top, func(i, j int) bool {
		return compareVectors(top[i], top[j], sorts) < 0
	})

	if len(top) < k {
		need := k - len(top)
		sort.SliceStable(emptyPart, func(i, j int) bool {
			return compareVectors(emptyPart[i], emptyPart[j], sorts) < 0
		})
		if need > len(emptyPart) {
			need = len(emptyPart)
		}
		top = append(top, emptyPart[:need]...)
	}
	return top
}

func anyEmpty(v keyVector) bool {
	for _, k := range v.keys {
		if k.empty {
			return true
		}
	}
	return false
}

func pageSlice(ids []graph.CardId, page *Page) []graph.CardId {
	if page == nil || page.PageSize <= 0 {
		return ids
	}
	start := page.PageNum * page.PageSize
	if start >= len(ids) {
		return nil
	}
	end := start + page.PageSize
	if end > len(ids) {
		end = len(ids)
	}
	return ids[start:end]
}
