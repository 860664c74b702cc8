package engine

import "github.com/takoyaki-db/bitmapdb/bitindex"

// LogicalOp combines two bitmaps popped from the postfix evaluation stack.
type LogicalOp int

const (
	And LogicalOp = iota
	Or
)

// ConditionItem is one element of a postfix-ordered condition list
// (spec.md §4.6.1): exactly one of Leaf or Op is set.
type ConditionItem struct {
	// Leaf, when non-nil, pushes attrIndex[Attribute].Evaluate(Comparator,
	// Value) onto the stack.
	Leaf *LeafCondition
	// Op, when Leaf is nil, pops two bitmaps and pushes their combination.
	Op LogicalOp
}

// LeafCondition names a single attribute comparison.
type LeafCondition struct {
	Attribute  string
	Comparator bitindex.Operator
	Value      string
}

// LeafItem builds a postfix ConditionItem for a single leaf comparison.
func LeafItem(attribute string, comparator bitindex.Operator, value string) ConditionItem {
	return ConditionItem{Leaf: &LeafCondition{Attribute: attribute, Comparator: comparator, Value: value}}
}

// OpItem builds a postfix ConditionItem for a logical combinator.
func OpItem(op LogicalOp) ConditionItem {
	return ConditionItem{Op: op}
}
