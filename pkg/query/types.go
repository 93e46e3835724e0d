// Package query implements pgraph's four-stage query runtime over a
// transaction: scope resolution, candidate filtering, sort/page, and
// projection.
package query

import (
	"math"

	"github.com/pgraph/pgraph/pkg/graph"
)

// Scope is the candidate-selection input to query_vertices.
type Scope struct {
	CardIDs      []graph.CardId
	CardTypeIDs  []graph.CardTypeId
	ContainerIDs []graph.ContainerId
	States       []graph.State
}

// LeafKind tags which predicate variant a Leaf holds.
type LeafKind int

const (
	LeafTitle LeafKind = iota
	LeafText
	LeafNumber
	LeafDate
	LeafEnum
	LeafState
	LeafCardType
	LeafStatus
	LeafLink
)

// Op is a comparison operator a leaf predicate applies.
type Op int

const (
	OpEqual Op = iota
	OpNotEqual
	OpGreater
	OpGreaterEqual
	OpLess
	OpLessEqual
	OpIn
	OpContains
	OpStartsWith
	OpEndsWith
)

// LinkPath is an ordered list of (edge_type, position) hops used both to
// rewrite a link condition into a concrete id set and to resolve a
// path-relative sub-vertex for a leaf predicate.
type LinkPath struct {
	EdgeType graph.EdgeType
	Position int
}

// Leaf is one typed predicate leaf in the condition tree.
type Leaf struct {
	Kind LeafKind
	Op   Op

	FieldID graph.FieldId // for LeafText/LeafNumber/LeafDate/LeafEnum custom fields; empty means an inner field

	Text        string
	Number      float64
	Date        int64
	EnumOptions []string
	State       graph.State
	CardTypeID  graph.CardTypeId
	StatusID    graph.StatusId
	IDs         []graph.CardId // for OpIn against a special link of ids

	// Path, if non-empty, means this leaf applies to the sub-vertex
	// reached by walking Path from the candidate, not the candidate
	// itself.
	Path []LinkPath

	IncludeDiscarded bool // whether traversal for Path may land on a Discarded endpoint
}

// GroupOp combines Group children.
type GroupOp int

const (
	GroupAnd GroupOp = iota
	GroupOr
)

// Condition is the recursive predicate tree node: either a Group or a Leaf.
type Condition struct {
	IsGroup  bool
	GroupOp  GroupOp
	Children []Condition
	Leaf     Leaf
}

// SortWay is ascending or descending order.
type SortWay int

const (
	Asc SortWay = iota
	Desc
)

// SortField names which attribute (inner field, custom field, or link) a
// SortSpec orders by.
type SortField struct {
	Inner string // one of created/updated/position/state/container_id/card_type_id/code/title; empty if not an inner field
	Field graph.FieldId
	Link  *LinkPath // one-hop link sort key; title of the neighbor at the other end

	EnumOrder map[string]int // caller-provided enum_item_order_map for LeafEnum-typed sort fields
}

// SortSpec is one entry in an ordered multi-key sort.
type SortSpec struct {
	Field SortField
	Way   SortWay
}

// Page selects a 0-based page of page_size results.
type Page struct {
	PageNum  int
	PageSize int
}

// SortAndPage bundles the ordered sort keys with the requested page.
type SortAndPage struct {
	Sorts []SortSpec
	Page  *Page
}

// YieldedLink is a recursive projection ask: follow (EdgeType, Position),
// then nest the requested sub-fields/sub-links under
// "<edge_type>:<position>".
type YieldedLink struct {
	EdgeType         graph.EdgeType
	Position         int
	IncludeDiscarded bool
	Fields           YieldedField
	Links            []YieldedLink
}

// YieldedField controls which custom fields (and whether description) are
// populated on a projected vertex.
type YieldedField struct {
	CustomFields        []graph.FieldId
	ContainsAllCustom    bool
	ContainsDescription bool
}

// Yield is the top-level projection spec.
type Yield struct {
	Field YieldedField
	Links []YieldedLink
}

// QueryRequest bundles every stage's input
type QueryRequest struct {
	Scope       Scope
	Condition   *Condition
	Yield       *Yield
	SortAndPage *SortAndPage
}

// Record is a projected vertex, ready for the wire response.
type Record struct {
	CardID      graph.CardId
	Fields      map[graph.FieldId]graph.FieldValue
	Description string
	Links       map[string][]Record // keyed by "<edge_type>:<position>"
}

// isEmptyNumber reports whether v should sort as an empty key: NaN or the
// sentinel for "field absent".
func isEmptyNumber(v float64, present bool) bool {
	return !present || math.IsNaN(v)
}
