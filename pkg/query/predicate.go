package query

import (
	"strings"

	"github.com/pgraph/pgraph/pkg/graph"
	"github.com/pgraph/pgraph/pkg/txn"
)

// Evaluate runs the predicate tree over a single candidate. Group semantics
// short-circuit: And stops at the first false child, Or stops at the first
// true child.
func Evaluate(t *txn.Transaction, cond *Condition, candidate graph.CardId) bool {
	if cond == nil {
		return true
	}
	if cond.IsGroup {
		switch cond.GroupOp {
		case GroupAnd:
			for _, child := range cond.Children {
				if !Evaluate(t, &child, candidate) {
					return false
				}
			}
			return true
		default: // GroupOr
			for _, child := range cond.Children {
				if Evaluate(t, &child, candidate) {
					return true
				}
			}
			return false
		}
	}
	return evaluateLeaf(t, cond.Leaf, candidate)
}

// evaluateLeaf dispatches on leaf kind, resolving a path-relative
// sub-vertex first when the leaf names one.
func evaluateLeaf(t *txn.Transaction, leaf Leaf, candidate graph.CardId) bool {
	target := candidate
	if len(leaf.Path) > 0 {
		ids := walkPath(t, candidate, leaf.Path, leaf.IncludeDiscarded)
		if len(ids) == 0 {
			return false
		}
		target = ids[0]
	}

	switch leaf.Kind {
	case LeafTitle:
		return evaluateTitle(t, leaf, target)
	case LeafText:
		return evaluateText(t, leaf, target)
	case LeafNumber:
		return evaluateNumber(t, leaf, target)
	case LeafDate:
		return evaluateDate(t, leaf, target)
	case LeafEnum:
		return evaluateEnum(t, leaf, target)
	case LeafState:
		return evaluateState(t, leaf, target)
	case LeafCardType:
		return evaluateCardType(t, leaf, target)
	case LeafStatus:
		return evaluateStatus(t, leaf, target)
	case LeafLink:
		return evaluateLink(t, leaf, target)
	default:
		return false
	}
}

func evaluateTitle(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	v, err := t.GetVertex(id)
	if err != nil {
		return false
	}
	return compareString(leaf.Op, v.Title.PlainText(), leaf.Text)
}

func evaluateText(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	v, err := t.GetVertex(id)
	if err != nil {
		return false
	}
	fv, ok := v.Fields[leaf.FieldID]
	if !ok || fv.Kind != graph.FieldText {
		return false
	}
	return compareString(leaf.Op, fv.Text, leaf.Text)
}

func compareString(op Op, actual, expected string) bool {
	switch op {
	case OpEqual:
		return actual == expected
	case OpNotEqual:
		return actual != expected
	case OpContains:
		return strings.Contains(actual, expected)
	case OpStartsWith:
		return strings.HasPrefix(actual, expected)
	case OpEndsWith:
		return strings.HasSuffix(actual, expected)
	default:
		return false
	}
}

func evaluateNumber(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	v, err := t.GetVertex(id)
	if err != nil {
		return false
	}
	fv, ok := v.Fields[leaf.FieldID]
	if !ok || fv.Kind != graph.FieldNumber {
		return false
	}
	return compareNumber(leaf.Op, fv.Number, leaf.Number)
}

func compareNumber(op Op, actual, expected float64) bool {
	switch op {
	case OpEqual:
		return actual == expected
	case OpNotEqual:
		return actual != expected
	case OpGreater:
		return actual > expected
	case OpGreaterEqual:
		return actual >= expected
	case OpLess:
		return actual < expected
	case OpLessEqual:
		return actual <= expected
	default:
		return false
	}
}

func evaluateDate(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	v, err := t.GetVertex(id)
	if err != nil {
		return false
	}
	fv, ok := v.Fields[leaf.FieldID]
	if !ok || fv.Kind != graph.FieldDate {
		return false
	}
	return compareNumber(leaf.Op, float64(fv.Date), float64(leaf.Date))
}

func evaluateEnum(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	v, err := t.GetVertex(id)
	if err != nil {
		return false
	}
	fv, ok := v.Fields[leaf.FieldID]
	if !ok || fv.Kind != graph.FieldEnum {
		return false
	}
	switch leaf.Op {
	case OpIn:
		for _, want := range leaf.EnumOptions {
			for _, have := range fv.EnumOptions {
				if want == have {
					return true
				}
			}
		}
		return false
	case OpEqual:
		return len(fv.EnumOptions) == 1 && len(leaf.EnumOptions) == 1 && fv.EnumOptions[0] == leaf.EnumOptions[0]
	default:
		return false
	}
}

func evaluateState(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	frag, ok := t.GetFragment(id)
	if !ok {
		return false
	}
	switch leaf.Op {
	case OpEqual:
		return frag.State == leaf.State
	case OpNotEqual:
		return frag.State != leaf.State
	default:
		return false
	}
}

func evaluateCardType(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	frag, ok := t.GetFragment(id)
	if !ok {
		return false
	}
	switch leaf.Op {
	case OpEqual:
		return frag.CardTypeID == leaf.CardTypeID
	case OpNotEqual:
		return frag.CardTypeID != leaf.CardTypeID
	default:
		return false
	}
}

func evaluateStatus(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	frag, ok := t.GetFragment(id)
	if !ok {
		return false
	}
	switch leaf.Op {
	case OpEqual:
		return frag.StatusID == leaf.StatusID
	case OpNotEqual:
		return frag.StatusID != leaf.StatusID
	default:
		return false
	}
}

// evaluateLink handles a link leaf that was NOT rewritten in stage 1
// (e.g. an anchor that isn't known up front): it resolves the path and
// checks set membership against leaf.IDs directly.
func evaluateLink(t *txn.Transaction, leaf Leaf, id graph.CardId) bool {
	reached := walkPath(t, id, leaf.Path, leaf.IncludeDiscarded)
	switch leaf.Op {
	case OpIn, OpEqual:
		for _, want := range leaf.IDs {
			for _, have := range reached {
				if want == have {
					return true
				}
			}
		}
		return false
	default:
		return false
	}
}
