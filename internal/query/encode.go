package query

import (
	"fmt"

	"github.com/phasma-db/phasmadb/internal/keyring"
	"github.com/phasma-db/phasmadb/internal/wire"
)

// Encode serializes n to its wire JSON form using k to hash column names
// and encode operands: integers are order-preserving-encoded, strings and
// token lists are name-hashed.
func Encode(n Node, k *keyring.Keyring) (map[string]interface{}, error) {
	switch v := n.(type) {
	case selectAllNode:
		return map[string]interface{}{}, nil
	case Leaf:
		return encodeLeaf(v, k)
	case Group:
		children := make([]interface{}, 0, len(v.Children))
		for _, c := range v.Children {
			enc, err := Encode(c, k)
			if err != nil {
				return nil, err
			}
			children = append(children, enc)
		}
		return map[string]interface{}{string(v.Type): children}, nil
	default:
		return nil, fmt.Errorf("query: unknown node type %T", n)
	}
}

func encodeLeaf(l Leaf, k *keyring.Keyring) (map[string]interface{}, error) {
	hashedColumn := k.HashName(l.Column)

	var operand interface{}
	switch l.Op {
	case Eq, Neq, Lt, Lte, Gt, Gte:
		n, ok := l.Operand.(int64)
		if !ok {
			return nil, fmt.Errorf("query: operator %q requires an integer operand", l.Op)
		}
		enc, err := k.EncodeInt(n)
		if err != nil {
			return nil, fmt.Errorf("query: encode operand for %q: %w", l.Column, err)
		}
		operand = enc
	case Text:
		switch v := l.Operand.(type) {
		case string:
			operand = k.HashName(v)
		case []string:
			tokens := make([]string, len(v))
			for i, tok := range v {
				tokens[i] = k.HashName(tok)
			}
			operand = tokens
		default:
			return nil, fmt.Errorf("query: text operator requires a string or []string operand, got %T", l.Operand)
		}
	default:
		return nil, fmt.Errorf("query: unknown operator %q", l.Op)
	}

	return map[string]interface{}{
		hashedColumn: map[string]interface{}{string(l.Op): operand},
	}, nil
}

// EncodeSort serializes sort keys to their wire form.
func EncodeSort(keys []SortKey, k *keyring.Keyring) []wire.SortKey {
	out := make([]wire.SortKey, len(keys))
	for i, sk := range keys {
		dir := "asc"
		if sk.Desc {
			dir = "desc"
		}
		out[i] = wire.SortKey{Column: k.HashName(sk.Column), Direction: dir}
	}
	return out
}
