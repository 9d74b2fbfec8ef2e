package query

import "testing"

func TestAndFlattensConsecutiveGroups(t *testing.T) {
	a := IntGt("officer_number", 2000)
	b := IntLt("officer_number", 9000)
	c := IntEq("officer_rank", 1)

	ab := And(a, b)
	abc := And(ab, c)

	g, ok := abc.(Group)
	if !ok || g.Type != GroupAnd {
		t.Fatalf("expected a flattened and-group, got %#v", abc)
	}
	if len(g.Children) != 3 {
		t.Fatalf("expected 3 flattened children, got %d", len(g.Children))
	}
}

func TestOrFlattensConsecutiveGroups(t *testing.T) {
	a := IntEq("x", 1)
	b := IntEq("x", 2)
	c := IntEq("x", 3)

	abc := Or(Or(a, b), c)
	g, ok := abc.(Group)
	if !ok || g.Type != GroupOr {
		t.Fatalf("expected a flattened or-group, got %#v", abc)
	}
	if len(g.Children) != 3 {
		t.Fatalf("expected 3 flattened children, got %d", len(g.Children))
	}
}

func TestNotFlipsGroupKind(t *testing.T) {
	leaf := TextEq("officer_medals", "Weeb")
	notLeaf := Not(leaf)

	g, ok := notLeaf.(Group)
	if !ok || g.Type != GroupNotAnd {
		t.Fatalf("expected negating a leaf to produce a not_and group, got %#v", notLeaf)
	}

	doubleNot := Not(notLeaf)
	g2, ok := doubleNot.(Group)
	if !ok || g2.Type != GroupAnd {
		t.Fatalf("expected negating a not_and group to flip back to and, got %#v", doubleNot)
	}
	if len(g2.Children) != 1 {
		t.Fatalf("expected the flipped group to keep its single child, got %d children", len(g2.Children))
	}
}

func TestNotFlipsOrGroups(t *testing.T) {
	a := IntEq("x", 1)
	b := IntEq("x", 2)
	or := Or(a, b)

	notOr := Not(or)
	g, ok := notOr.(Group)
	if !ok || g.Type != GroupNotOr {
		t.Fatalf("expected negating an or-group to produce not_or, got %#v", notOr)
	}

	backToOr := Not(notOr)
	g2, ok := backToOr.(Group)
	if !ok || g2.Type != GroupOr {
		t.Fatalf("expected double negation to round trip to or, got %#v", backToOr)
	}
}

func TestSelectAllEncodesToEmptyObject(t *testing.T) {
	k := mustKeyring(t)
	enc, err := Encode(SelectAll, k)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if len(enc) != 0 {
		t.Errorf("expected SelectAll to encode to an empty object, got %v", enc)
	}
}

func TestEncodeLeafShape(t *testing.T) {
	k := mustKeyring(t)
	leaf := IntGt("officer_rank", 1)
	enc, err := Encode(leaf, k)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	hashedCol := k.HashName("officer_rank")
	op, ok := enc[hashedCol].(map[string]interface{})
	if !ok {
		t.Fatalf("expected leaf to encode under its hashed column, got %v", enc)
	}
	if _, ok := op["gt"]; !ok {
		t.Errorf("expected the \"gt\" operator key, got %v", op)
	}
}
