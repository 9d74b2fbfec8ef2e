// Package query builds a client-side boolean predicate over named columns
// and serializes it into the wire form the server's query compiler
// expects: hashed column names and order-preserving/hashed operands.
package query

// Op is a leaf comparison operator.
type Op string

const (
	Eq   Op = "eq"
	Neq  Op = "neq"
	Lt   Op = "lt"
	Lte  Op = "lte"
	Gt   Op = "gt"
	Gte  Op = "gte"
	Text Op = "text"
)

// GroupType is a boolean combinator kind.
type GroupType string

const (
	GroupAnd    GroupType = "and"
	GroupOr     GroupType = "or"
	GroupNotAnd GroupType = "not_and"
	GroupNotOr  GroupType = "not_or"
)

// Node is either a Leaf or a Group (or the SelectAll sentinel).
type Node interface {
	node()
}

// Leaf is a single-column comparison. Operand is an int64 for the
// numeric operators, a string for a single-token text match, or a
// []string for a text containment ("all tokens present") match.
type Leaf struct {
	Column  string
	Op      Op
	Operand interface{}
}

func (Leaf) node() {}

// Group combines child nodes under and/or/not_and/not_or semantics.
type Group struct {
	Type     GroupType
	Children []Node
}

func (Group) node() {}

type selectAllNode struct{}

func (selectAllNode) node() {}

// SelectAll matches every row in the table.
var SelectAll Node = selectAllNode{}

// IntEq, IntNeq, IntLt, IntLte, IntGt, IntGte build leaves over a
// sort/unique column.
func IntEq(column string, v int64) Leaf  { return Leaf{Column: column, Op: Eq, Operand: v} }
func IntNeq(column string, v int64) Leaf { return Leaf{Column: column, Op: Neq, Operand: v} }
func IntLt(column string, v int64) Leaf  { return Leaf{Column: column, Op: Lt, Operand: v} }
func IntLte(column string, v int64) Leaf { return Leaf{Column: column, Op: Lte, Operand: v} }
func IntGt(column string, v int64) Leaf  { return Leaf{Column: column, Op: Gt, Operand: v} }
func IntGte(column string, v int64) Leaf { return Leaf{Column: column, Op: Gte, Operand: v} }

// TextEq builds a leaf matching a text/unique_text column against a
// single token.
func TextEq(column string, v string) Leaf { return Leaf{Column: column, Op: Text, Operand: v} }

// TextAll builds a leaf matching a text/unique_text column whose token
// set contains every one of tokens.
func TextAll(column string, tokens []string) Leaf {
	return Leaf{Column: column, Op: Text, Operand: append([]string(nil), tokens...)}
}

// And combines a and b, flattening into a single and-group when either
// side is already one.
func And(a, b Node) Node { return combine(GroupAnd, a, b) }

// Or combines a and b, flattening into a single or-group when either
// side is already one.
func Or(a, b Node) Node { return combine(GroupOr, a, b) }

func combine(t GroupType, a, b Node) Node {
	ag, aMatches := a.(Group)
	bg, bMatches := b.(Group)
	aMatches = aMatches && ag.Type == t
	bMatches = bMatches && bg.Type == t

	switch {
	case aMatches && bMatches:
		children := append(append([]Node{}, ag.Children...), bg.Children...)
		return Group{Type: t, Children: children}
	case aMatches:
		children := append(append([]Node{}, ag.Children...), b)
		return Group{Type: t, Children: children}
	case bMatches:
		children := append([]Node{a}, bg.Children...)
		return Group{Type: t, Children: children}
	default:
		return Group{Type: t, Children: []Node{a, b}}
	}
}

// Not negates n. Negating a group flips and <-> not_and and or <-> not_or;
// negating a leaf wraps it in a single-child not_and group; negating
// SelectAll yields the empty not_and group, which matches no rows.
func Not(n Node) Node {
	switch g := n.(type) {
	case Group:
		switch g.Type {
		case GroupAnd:
			return Group{Type: GroupNotAnd, Children: g.Children}
		case GroupNotAnd:
			return Group{Type: GroupAnd, Children: g.Children}
		case GroupOr:
			return Group{Type: GroupNotOr, Children: g.Children}
		case GroupNotOr:
			return Group{Type: GroupOr, Children: g.Children}
		}
	case selectAllNode:
		return Group{Type: GroupNotAnd, Children: nil}
	}
	return Group{Type: GroupNotAnd, Children: []Node{n}}
}

// SortKey is a single (column, direction) pair.
type SortKey struct {
	Column string
	Desc   bool
}

// Query bundles a predicate with optional sort and limit.
type Query struct {
	Filter Node
	Sort   []SortKey
	Limit  *int
}
