package query

import (
	"math"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pgraph/pgraph/pkg/graph"
)

func TestSortNullsAlwaysLast(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task", Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: 2}}})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "task"}) // no priority field: empty key
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 3, CardTypeID: "task", Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: 1}}})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	sp := &SortAndPage{Sorts: []SortSpec{{Field: SortField{Field: "priority"}, Way: Asc}}}
	out := ApplySortAndPage(tx2, []graph.CardId{1, 2, 3}, sp)
	require.Len(t, out, 3)
	assert.Equal(t, []graph.CardId{3, 1, 2}, out, "ascending by priority, absent field sorts last regardless of direction")

	sp.Sorts[0].Way = Desc
	out2 := ApplySortAndPage(tx2, []graph.CardId{1, 2, 3}, sp)
	assert.Equal(t, []graph.CardId{1, 3, 2}, out2, "descending still pushes the empty key to the end")
}

func TestSortNaNTreatedAsEmpty(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task", Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: math.NaN()}}})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "task", Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: 5}}})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	sp := &SortAndPage{Sorts: []SortSpec{{Field: SortField{Field: "priority"}, Way: Asc}}}
	out := ApplySortAndPage(tx2, []graph.CardId{1, 2}, sp)
	assert.Equal(t, []graph.CardId{2, 1}, out)
}

func TestSortHandlesInfinities(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task", Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: math.Inf(1)}}})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "task", Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: math.Inf(-1)}}})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 3, CardTypeID: "task", Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: 0}}})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	sp := &SortAndPage{Sorts: []SortSpec{{Field: SortField{Field: "priority"}, Way: Asc}}}
	out := ApplySortAndPage(tx2, []graph.CardId{1, 2, 3}, sp)
	assert.Equal(t, []graph.CardId{2, 3, 1}, out)
}

func TestTopKMatchesFullSortForSamePage(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	var ids []graph.CardId
	for i := 1; i <= 50; i++ {
		id := graph.CardId(i)
		ids = append(ids, id)
		mustCreateVertex(t, tx, &graph.Vertex{
			CardID: id, CardTypeID: "task",
			Fields: map[graph.FieldId]graph.FieldValue{"priority": {Kind: graph.FieldNumber, Number: float64((i * 37) % 50)}},
		})
	}
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	sp := &SortAndPage{
		Sorts: []SortSpec{{Field: SortField{Field: "priority"}, Way: Asc}},
		Page:  &Page{PageNum: 0, PageSize: 5},
	}
	topK := ApplySortAndPage(tx2, append([]graph.CardId{}, ids...), sp)

	// Force the full-sort path by disabling TopK eligibility (large page size).
	spFull := &SortAndPage{
		Sorts: []SortSpec{{Field: SortField{Field: "priority"}, Way: Asc}},
		Page:  &Page{PageNum: 0, PageSize: 50},
	}
	fullSorted := ApplySortAndPage(tx2, append([]graph.CardId{}, ids...), spFull)
	fullPage := fullSorted[:5]

	assert.Equal(t, fullPage, topK)
}

func TestPageSliceBounds(t *testing.T) {
	ids := []graph.CardId{1, 2, 3, 4, 5}
	assert.Equal(t, []graph.CardId{1, 2}, pageSlice(ids, &Page{PageNum: 0, PageSize: 2}))
	assert.Equal(t, []graph.CardId{3, 4}, pageSlice(ids, &Page{PageNum: 1, PageSize: 2}))
	assert.Nil(t, pageSlice(ids, &Page{PageNum: 10, PageSize: 2}))
	assert.Equal(t, ids, pageSlice(ids, nil))
}

func TestSortLinkKeyExcludesDiscardedNeighborByDefault(t *testing.T) {
	store := openTestStore(t)
	tx := store.Begin()
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 1, CardTypeID: "task"})
	mustCreateVertex(t, tx, &graph.Vertex{CardID: 2, CardTypeID: "task", State: graph.StateDiscarded, Title: graph.Title{Plain: "Z"}})
	mustCreateEdge(t, tx, graph.Edge{SrcID: 1, DestID: 2, EdgeType: "LINKS"})
	require.NoError(t, tx.Commit())

	tx2 := store.Begin()
	defer tx2.Rollback()
	sp := &SortAndPage{Sorts: []SortSpec{{Field: SortField{Link: &LinkPath{EdgeType: "LINKS", Position: -1}}, Way: Asc}}}
	out := ApplySortAndPage(tx2, []graph.CardId{1}, sp)
	require.Len(t, out, 1)
	assert.Equal(t, graph.CardId(1), out[0])

	key := extractKey(tx2, 1, sp.Sorts[0].Field)
	assert.True(t, key.empty, "a discarded neighbor must never supply a sort key, even with no opt-in available on SortField")
}

func TestCompareVectorsSort(t *testing.T) {
	vectors := []keyVector{
		{id: 1, keys: []sortKey{{kind: keyNum, num: 3}}},
		{id: 2, keys: []sortKey{{kind: keyNum, num: 1}}},
		{id: 3, keys: []sortKey{{kind: keyNum, num: 2}}},
	}
	sorts := []SortSpec{{Way: Asc}}
	sort.SliceStable(vectors, func(i, j int) bool { return compareVectors(vectors[i], vectors[j], sorts) < 0 })
	assert.Equal(t, []graph.CardId{2, 3, 1}, []graph.CardId{vectors[0].id, vectors[1].id, vectors[2].id})
}
