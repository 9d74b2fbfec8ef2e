// Package querycompile validates a decoded wire predicate against a
// table's catalog descriptor and produces a typed AST the store package
// can compile into SQL. This validation stage is deliberately separate
// from SQL generation: it knows about index types and the catalog, and
// nothing about the backing store.
package querycompile

import (
	"strings"

	"github.com/phasma-db/phasmadb/internal/catalog"
	"github.com/phasma-db/phasmadb/internal/wire"
)

// Node is a validated predicate node: MatchAll, Group, or Leaf.
type Node interface {
	node()
}

// MatchAll matches every row; it is the compiled form of the empty object.
type MatchAll struct{}

func (MatchAll) node() {}

// Group combines validated children under and/or/not_and/not_or.
type Group struct {
	Type     string
	Children []Node
}

func (Group) node() {}

// Leaf is a single validated column comparison.
type Leaf struct {
	Column         string
	Type           wire.IndexType
	Op             string
	IntOperand     int64
	TextOperand    string
	TextSetOperand []string
}

func (Leaf) node() {}

var groupKinds = map[string]bool{"and": true, "or": true, "not_and": true, "not_or": true}

// Compile validates raw (the result of json.Unmarshal-ing a predicate
// object into interface{}) against desc and returns its typed AST.
func Compile(raw interface{}, desc *catalog.Descriptor) (Node, error) {
	m, ok := raw.(map[string]interface{})
	if !ok {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	if len(m) == 0 {
		return MatchAll{}, nil
	}
	if len(m) != 1 {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}

	for key, val := range m {
		if groupKinds[key] {
			return compileGroup(key, val, desc)
		}
		return compileLeaf(key, val, desc)
	}
	panic("unreachable")
}

func compileGroup(kind string, val interface{}, desc *catalog.Descriptor) (Node, error) {
	rawChildren, ok := val.([]interface{})
	if !ok {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	children := make([]Node, 0, len(rawChildren))
	for _, rc := range rawChildren {
		child, err := Compile(rc, desc)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return Group{Type: kind, Children: children}, nil
}

func compileLeaf(hashedColumn string, val interface{}, desc *catalog.Descriptor) (Node, error) {
	if strings.HasPrefix(hashedColumn, "$") {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}
	typ, declared := desc.Indices[hashedColumn]
	if !declared {
		return nil, wire.CodeError(wire.ErrUndeclaredColumn)
	}

	opMap, ok := val.(map[string]interface{})
	if !ok || len(opMap) != 1 {
		return nil, wire.CodeError(wire.ErrMalformedRequest)
	}

	for op, operand := range opMap {
		switch op {
		case "eq", "neq", "lt", "lte", "gt", "gte":
			if !typ.Numeric() {
				return nil, wire.CodeError(wire.ErrIndexTypeMismatch)
			}
			n, ok := toInt64(operand)
			if !ok {
				return nil, wire.CodeError(wire.ErrMalformedRequest)
			}
			return Leaf{Column: hashedColumn, Type: typ, Op: op, IntOperand: n}, nil
		case "text":
			if typ != wire.IndexText && typ != wire.IndexUniqueText {
				return nil, wire.CodeError(wire.ErrIndexTypeMismatch)
			}
			switch ov := operand.(type) {
			case string:
				return Leaf{Column: hashedColumn, Type: typ, Op: op, TextOperand: ov}, nil
			case []interface{}:
				tokens := make([]string, 0, len(ov))
				for _, e := range ov {
					s, ok := e.(string)
					if !ok {
						return nil, wire.CodeError(wire.ErrMalformedRequest)
					}
					tokens = append(tokens, s)
				}
				return Leaf{Column: hashedColumn, Type: typ, Op: op, TextSetOperand: tokens}, nil
			default:
				return nil, wire.CodeError(wire.ErrMalformedRequest)
			}
		default:
			return nil, wire.CodeError(wire.ErrMalformedRequest)
		}
	}
	panic("unreachable")
}

func toInt64(raw interface{}) (int64, bool) {
	switch v := raw.(type) {
	case float64:
		if v != float64(int64(v)) {
			return 0, false
		}
		return int64(v), true
	case int64:
		return v, true
	case int:
		return int64(v), true
	default:
		return 0, false
	}
}

// SortKey is a single validated sort specification.
type SortKey struct {
	Column string
	Desc   bool
}

// CompileSort validates wire sort keys against desc: the column must be
// declared and must be a sort/unique column, never text/unique_text.
func CompileSort(keys []wire.SortKey, desc *catalog.Descriptor) ([]SortKey, error) {
	out := make([]SortKey, 0, len(keys))
	for _, sk := range keys {
		typ, declared := desc.Indices[sk.Column]
		if !declared {
			return nil, wire.CodeError(wire.ErrUndeclaredColumn)
		}
		if !typ.Numeric() {
			return nil, wire.CodeError(wire.ErrIndexTypeMismatch)
		}
		descending := sk.Direction == "desc"
		if !descending && sk.Direction != "asc" {
			return nil, wire.CodeError(wire.ErrMalformedRequest)
		}
		out = append(out, SortKey{Column: sk.Column, Desc: descending})
	}
	return out, nil
}
