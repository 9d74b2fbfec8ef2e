package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/phasma-db/phasmadb/internal/catalog"
	"github.com/phasma-db/phasmadb/internal/querycompile"
	"github.com/phasma-db/phasmadb/internal/wire"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "phasmadb-store-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func officersDescriptor() *catalog.Descriptor {
	return &catalog.Descriptor{
		Owner: "owner1",
		Name:  "officers",
		Indices: map[string]wire.IndexType{
			"officer_number": wire.IndexUnique,
			"officer_rank":   wire.IndexSort,
			"call_sign":      wire.IndexUniqueText,
			"tags":           wire.IndexText,
		},
	}
}

func TestNewCreatesDatabaseFile(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "phasmadb-store-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	s, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer s.Close()

	if _, err := os.Stat(filepath.Join(tmpDir, "phasmadb.db")); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
	if s.DB() == nil {
		t.Error("DB() returned nil")
	}
}

func TestExpandPathTilde(t *testing.T) {
	home, _ := os.UserHomeDir()
	got := expandPath("~/.phasmadb")
	want := filepath.Join(home, ".phasmadb")
	if got != want {
		t.Errorf("expandPath(~/.phasmadb) = %s, want %s", got, want)
	}
}

func TestInsertAndQueryByID(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()

	data := map[string]Datum{
		"row1": {Indexed: map[string]interface{}{
			"officer_number": float64(1001),
			"officer_rank":   float64(3),
			"call_sign":      "red-leader",
			"tags":           []interface{}{"pilot", "veteran"},
		}, Extra: "blob1"},
	}
	results := s.InsertData("owner1", desc.Name, desc, data)
	if err := results["row1"].Err; err != nil {
		t.Fatalf("InsertData() error = %v", err)
	}

	indexed, extra, err := s.QueryByID("owner1", desc.Name, "row1")
	if err != nil {
		t.Fatalf("QueryByID() error = %v", err)
	}
	if extra != "blob1" {
		t.Errorf("extra = %q, want %q", extra, "blob1")
	}
	if indexed["officer_number"].(float64) != 1001 {
		t.Errorf("officer_number = %v, want 1001", indexed["officer_number"])
	}
}

func TestInsertMissingIndexValueOnFirstInsert(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()

	data := map[string]Datum{
		"row1": {Indexed: map[string]interface{}{
			"officer_number": float64(1),
			// officer_rank, call_sign, tags all missing on a first insert.
		}},
	}
	results := s.InsertData("owner1", desc.Name, desc, data)
	err := results["row1"].Err
	ce, ok := err.(wire.CodeError)
	if !ok || ce.Code() != wire.ErrMissingIndexValue {
		t.Fatalf("InsertData() error = %v, want ErrMissingIndexValue", err)
	}
}

func TestUpsertPartialUpdateKeepsOtherColumns(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()

	first := map[string]Datum{
		"row1": {Indexed: map[string]interface{}{
			"officer_number": float64(1001),
			"officer_rank":   float64(3),
			"call_sign":      "red-leader",
			"tags":           []interface{}{"pilot"},
		}, Extra: "v1"},
	}
	if err := s.InsertData("owner1", desc.Name, desc, first)["row1"].Err; err != nil {
		t.Fatalf("initial insert error = %v", err)
	}

	// Partial update: only officer_rank and extra change.
	second := map[string]Datum{
		"row1": {Indexed: map[string]interface{}{
			"officer_rank": float64(1),
		}, Extra: "v2"},
	}
	if err := s.InsertData("owner1", desc.Name, desc, second)["row1"].Err; err != nil {
		t.Fatalf("partial update error = %v", err)
	}

	indexed, extra, err := s.QueryByID("owner1", desc.Name, "row1")
	if err != nil {
		t.Fatalf("QueryByID() error = %v", err)
	}
	if extra != "v2" {
		t.Errorf("extra = %q, want v2", extra)
	}
	if indexed["officer_rank"].(float64) != 1 {
		t.Errorf("officer_rank = %v, want 1", indexed["officer_rank"])
	}
	if indexed["officer_number"].(float64) != 1001 {
		t.Errorf("officer_number = %v, want 1001 (unchanged)", indexed["officer_number"])
	}
	if indexed["call_sign"] != "red-leader" {
		t.Errorf("call_sign = %v, want unchanged", indexed["call_sign"])
	}
}

func TestUniqueViolationPreCheck(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()

	rows := map[string]Datum{
		"row1": {Indexed: map[string]interface{}{
			"officer_number": float64(1), "officer_rank": float64(1),
			"call_sign": "alpha", "tags": []interface{}{"a"},
		}},
		"row2": {Indexed: map[string]interface{}{
			"officer_number": float64(2), "officer_rank": float64(2),
			"call_sign": "bravo", "tags": []interface{}{"b"},
		}},
	}
	for id, d := range rows {
		if err := s.InsertData("owner1", desc.Name, desc, map[string]Datum{id: d})[id].Err; err != nil {
			t.Fatalf("insert %s error = %v", id, err)
		}
	}

	dup := map[string]Datum{
		"row3": {Indexed: map[string]interface{}{
			"officer_number": float64(1), // collides with row1
			"officer_rank":   float64(3), "call_sign": "charlie", "tags": []interface{}{"c"},
		}},
	}
	err := s.InsertData("owner1", desc.Name, desc, dup)["row3"].Err
	ce, ok := err.(wire.CodeError)
	if !ok || ce.Code() != wire.ErrUniqueViolation {
		t.Fatalf("InsertData() error = %v, want ErrUniqueViolation", err)
	}
}

func insertOfficers(t *testing.T, s *Store, desc *catalog.Descriptor) {
	t.Helper()
	rows := map[string]Datum{
		"row1": {Indexed: map[string]interface{}{
			"officer_number": float64(1), "officer_rank": float64(4),
			"call_sign": "alpha", "tags": []interface{}{"pilot", "veteran"},
		}},
		"row2": {Indexed: map[string]interface{}{
			"officer_number": float64(2), "officer_rank": float64(1),
			"call_sign": "bravo", "tags": []interface{}{"pilot"},
		}},
		"row3": {Indexed: map[string]interface{}{
			"officer_number": float64(3), "officer_rank": float64(3),
			"call_sign": "charlie", "tags": []interface{}{"engineer"},
		}},
		"row4": {Indexed: map[string]interface{}{
			"officer_number": float64(4), "officer_rank": float64(2),
			"call_sign": "delta", "tags": []interface{}{"engineer", "veteran"},
		}},
	}
	for id, d := range rows {
		if err := s.InsertData("owner1", desc.Name, desc, map[string]Datum{id: d})[id].Err; err != nil {
			t.Fatalf("insert %s error = %v", id, err)
		}
	}
}

func TestQueryDataNumericComparisonAndSort(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	filter := querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "gt", IntOperand: 1}
	sortKeys := []querycompile.SortKey{{Column: "officer_rank", Desc: true}}

	results, err := s.QueryData("owner1", desc.Name, filter, sortKeys, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("len(results) = %d, want 3", len(results))
	}
	for id := range results {
		if id == "row2" {
			t.Errorf("row2 (rank 1) should not match officer_rank > 1")
		}
	}
}

func TestQueryDataUniqueTextLookup(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	filter := querycompile.Leaf{Column: "call_sign", Type: wire.IndexUniqueText, Op: "text", TextOperand: "bravo"}
	results, err := s.QueryData("owner1", desc.Name, filter, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	if _, ok := results["row2"]; !ok {
		t.Errorf("expected row2 in results, got %v", results)
	}
}

func TestQueryDataTextTokenSetContainment(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	filter := querycompile.Leaf{
		Column: "tags", Type: wire.IndexText, Op: "text",
		TextSetOperand: []string{"engineer", "veteran"},
	}
	results, err := s.QueryData("owner1", desc.Name, filter, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1 (only row4 has both tags)", len(results))
	}
	if _, ok := results["row4"]; !ok {
		t.Errorf("expected row4 in results, got %v", results)
	}
}

func TestQueryDataCompoundWithNegation(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	// not_or(officer_rank < 2, officer_rank > 3): keeps rank in [2,3].
	filter := querycompile.Group{
		Type: "not_or",
		Children: []querycompile.Node{
			querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "lt", IntOperand: 2},
			querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "gt", IntOperand: 3},
		},
	}
	results, err := s.QueryData("owner1", desc.Name, filter, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2 (row3 rank=3, row4 rank=2)", len(results))
	}
}

func TestQueryDataNestedGroupGrouping(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	// and(officer_rank > 3, or(officer_rank == 2, officer_rank == 3)):
	// no row has a rank both above 3 and in {2, 3}. Left-to-right
	// regrouping as (rank > 3 AND rank == 2) OR rank == 3 would wrongly
	// return row3.
	filter := querycompile.Group{
		Type: "and",
		Children: []querycompile.Node{
			querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "gt", IntOperand: 3},
			querycompile.Group{
				Type: "or",
				Children: []querycompile.Node{
					querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "eq", IntOperand: 2},
					querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "eq", IntOperand: 3},
				},
			},
		},
	}
	results, err := s.QueryData("owner1", desc.Name, filter, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0, got %v", len(results), results)
	}
}

func TestQueryDataNestedGroupMixedLeaves(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	// and(officer_rank > 1, or(call_sign == "alpha", tags contains
	// "pilot")): row1 satisfies both; row2 carries "pilot" but is rank 1.
	filter := querycompile.Group{
		Type: "and",
		Children: []querycompile.Node{
			querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "gt", IntOperand: 1},
			querycompile.Group{
				Type: "or",
				Children: []querycompile.Node{
					querycompile.Leaf{Column: "call_sign", Type: wire.IndexUniqueText, Op: "text", TextOperand: "alpha"},
					querycompile.Leaf{Column: "tags", Type: wire.IndexText, Op: "text", TextSetOperand: []string{"pilot"}},
				},
			},
		},
	}
	results, err := s.QueryData("owner1", desc.Name, filter, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1, got %v", len(results), results)
	}
	if _, ok := results["row1"]; !ok {
		t.Errorf("expected row1 in results, got %v", results)
	}
}

func TestQueryDataMultiChildNegation(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	// not_and(officer_rank > 1, tags contains "engineer") keeps every
	// row failing at least one conjunct: row1 (pilot) and row2 (rank 1).
	filter := querycompile.Group{
		Type: "not_and",
		Children: []querycompile.Node{
			querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "gt", IntOperand: 1},
			querycompile.Leaf{Column: "tags", Type: wire.IndexText, Op: "text", TextSetOperand: []string{"engineer"}},
		},
	}
	results, err := s.QueryData("owner1", desc.Name, filter, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2, got %v", len(results), results)
	}
	for _, id := range []string{"row1", "row2"} {
		if _, ok := results[id]; !ok {
			t.Errorf("expected %s in results, got %v", id, results)
		}
	}
}

func TestQueryDataEmptyTokenSetMatchesNothing(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	filter := querycompile.Leaf{
		Column: "tags", Type: wire.IndexText, Op: "text",
		TextSetOperand: []string{},
	}
	results, err := s.QueryData("owner1", desc.Name, filter, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("len(results) = %d, want 0", len(results))
	}
}

func TestDeleteData(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	filter := querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "lt", IntOperand: 3}
	count, err := s.DeleteData("owner1", desc.Name, filter)
	if err != nil {
		t.Fatalf("DeleteData() error = %v", err)
	}
	if count != 2 {
		t.Fatalf("DeleteData() count = %d, want 2", count)
	}

	remaining, err := s.QueryData("owner1", desc.Name, querycompile.MatchAll{}, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("remaining rows = %d, want 2", len(remaining))
	}

	if _, _, err := s.QueryByID("owner1", desc.Name, "row2"); err == nil {
		t.Errorf("row2 should have been deleted")
	}
}

func TestDeleteDataNegatedFilterClearsUniqueIndexEntries(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	// not_or(officer_rank != 4) matches exactly officer_rank == 4: row1,
	// which holds officer_number=1 and call_sign="alpha". filter.go
	// compiles this as matchAllRowsSQL EXCEPT inner, so the same filter
	// re-evaluated after documents are gone would select nothing.
	filter := querycompile.Group{
		Type: "not_or",
		Children: []querycompile.Node{
			querycompile.Leaf{Column: "officer_rank", Type: wire.IndexSort, Op: "neq", IntOperand: 4},
		},
	}
	count, err := s.DeleteData("owner1", desc.Name, filter)
	if err != nil {
		t.Fatalf("DeleteData() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("DeleteData() count = %d, want 1", count)
	}

	// If the row1 index_entries survived as orphans, reusing its unique
	// values below would be wrongly rejected with ErrUniqueViolation.
	result := s.InsertData("owner1", desc.Name, desc, map[string]Datum{
		"row5": {Indexed: map[string]interface{}{
			"officer_number": float64(1), "officer_rank": float64(4),
			"call_sign": "alpha", "tags": []interface{}{"pilot"},
		}},
	})
	if err := result["row5"].Err; err != nil {
		t.Fatalf("InsertData() after negated DeleteData error = %v, want nil (stale index_entries orphan)", err)
	}
}

func TestDeleteDataMatchAllClearsUniqueIndexEntries(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	count, err := s.DeleteData("owner1", desc.Name, querycompile.MatchAll{})
	if err != nil {
		t.Fatalf("DeleteData() error = %v", err)
	}
	if count != 4 {
		t.Fatalf("DeleteData() count = %d, want 4", count)
	}

	remaining, err := s.QueryData("owner1", desc.Name, querycompile.MatchAll{}, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(remaining) != 0 {
		t.Fatalf("remaining rows = %d, want 0", len(remaining))
	}

	// Reinsert reusing every unique/unique_text value DeleteData just
	// freed; stale index_entries orphans would reject these with 302.
	result := s.InsertData("owner1", desc.Name, desc, map[string]Datum{
		"row1": {Indexed: map[string]interface{}{
			"officer_number": float64(1), "officer_rank": float64(4),
			"call_sign": "alpha", "tags": []interface{}{"pilot"},
		}},
	})
	if err := result["row1"].Err; err != nil {
		t.Fatalf("InsertData() after MatchAll DeleteData error = %v, want nil (stale index_entries orphan)", err)
	}
}

func TestDeleteByIDNotFound(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()

	err := s.DeleteByID("owner1", desc.Name, "missing")
	ce, ok := err.(wire.CodeError)
	if !ok || ce.Code() != wire.ErrRowNotFound {
		t.Fatalf("DeleteByID() error = %v, want ErrRowNotFound", err)
	}
}

func TestDropTableRemovesAllRows(t *testing.T) {
	s := newTestStore(t)
	desc := officersDescriptor()
	insertOfficers(t, s, desc)

	if err := s.DropTable("owner1", desc.Name); err != nil {
		t.Fatalf("DropTable() error = %v", err)
	}

	results, err := s.QueryData("owner1", desc.Name, querycompile.MatchAll{}, nil, nil)
	if err != nil {
		t.Fatalf("QueryData() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("len(results) = %d, want 0 after drop", len(results))
	}
}

func TestBoolToInt(t *testing.T) {
	if boolToInt(true) != 1 {
		t.Error("boolToInt(true) should return 1")
	}
	if boolToInt(false) != 0 {
		t.Error("boolToInt(false) should return 0")
	}
}
