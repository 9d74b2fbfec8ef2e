package store

import (
	"fmt"
	"sort"
	"strings"

	"github.com/phasma-db/phasmadb/internal/querycompile"
)

var numericOpSQL = map[string]string{
	"eq": "=", "neq": "!=", "lt": "<", "lte": "<=", "gt": ">", "gte": ">=",
}

// matchAllRowsSQL selects every row_id in the scoped table.
func matchAllRowsSQL(owner, table string) (string, []interface{}) {
	return `SELECT DISTINCT row_id FROM documents WHERE owner = ? AND table_name = ?`, []interface{}{owner, table}
}

// matchNoRowsSQL selects no row_id at all.
func matchNoRowsSQL() (string, []interface{}) {
	return `SELECT row_id FROM index_entries WHERE 0`, nil
}

// compileFilterSQL translates a validated predicate into a SQL query
// selecting the row_ids it matches, using INTERSECT/UNION/EXCEPT for the
// boolean combinators and a GROUP BY/HAVING COUNT(DISTINCT) for text
// token-set containment.
func compileFilterSQL(owner, table string, n querycompile.Node) (string, []interface{}, error) {
	switch v := n.(type) {
	case querycompile.MatchAll:
		sql, args := matchAllRowsSQL(owner, table)
		return sql, args, nil

	case querycompile.Leaf:
		return compileLeafSQL(owner, table, v)

	case querycompile.Group:
		return compileGroupSQL(owner, table, v)

	default:
		return "", nil, fmt.Errorf("store: unknown compiled node type %T", n)
	}
}

func compileLeafSQL(owner, table string, l querycompile.Leaf) (string, []interface{}, error) {
	if l.Type.Numeric() {
		opSQL, ok := numericOpSQL[l.Op]
		if !ok {
			return "", nil, fmt.Errorf("store: unknown numeric operator %q", l.Op)
		}
		sql := `SELECT row_id FROM index_entries WHERE owner = ? AND table_name = ? AND column = ? AND value_int ` + opSQL + ` ?`
		return sql, []interface{}{owner, table, l.Column, l.IntOperand}, nil
	}

	if l.TextSetOperand != nil {
		if len(l.TextSetOperand) == 0 {
			// Containment of the empty token set matches nothing.
			sql, args := matchNoRowsSQL()
			return sql, args, nil
		}
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(l.TextSetOperand)), ",")
		args := []interface{}{owner, table, l.Column}
		for _, tok := range l.TextSetOperand {
			args = append(args, tok)
		}
		args = append(args, len(l.TextSetOperand))
		sql := fmt.Sprintf(
			`SELECT row_id FROM index_entries WHERE owner = ? AND table_name = ? AND column = ? AND value_text IN (%s) GROUP BY row_id HAVING COUNT(DISTINCT value_text) = ?`,
			placeholders,
		)
		return sql, args, nil
	}

	sql := `SELECT row_id FROM index_entries WHERE owner = ? AND table_name = ? AND column = ? AND value_text = ?`
	return sql, []interface{}{owner, table, l.Column, l.TextOperand}, nil
}

func compileGroupSQL(owner, table string, g querycompile.Group) (string, []interface{}, error) {
	switch g.Type {
	case "and":
		return combineChildren(owner, table, g.Children, "INTERSECT", true)
	case "or":
		return combineChildren(owner, table, g.Children, "UNION", false)
	case "not_and":
		inner, innerArgs, err := combineChildren(owner, table, g.Children, "INTERSECT", true)
		if err != nil {
			return "", nil, err
		}
		all, allArgs := matchAllRowsSQL(owner, table)
		return all + ` EXCEPT ` + subquery(inner), append(allArgs, innerArgs...), nil
	case "not_or":
		inner, innerArgs, err := combineChildren(owner, table, g.Children, "UNION", false)
		if err != nil {
			return "", nil, err
		}
		all, allArgs := matchAllRowsSQL(owner, table)
		return all + ` EXCEPT ` + subquery(inner), append(allArgs, innerArgs...), nil
	default:
		return "", nil, fmt.Errorf("store: unknown group type %q", g.Type)
	}
}

// subquery wraps compiled SQL so it participates in a larger compound
// statement as a single operand. SQLite evaluates INTERSECT, UNION, and
// EXCEPT left to right at equal precedence, so splicing a child's own
// compound SQL in bare would regroup it under the parent's operators.
func subquery(sql string) string {
	return `SELECT row_id FROM (` + sql + `)`
}

// combineChildren joins each child's compiled SQL with combinator (INTERSECT
// or UNION), wrapping every child as a subquery so grouping stays explicit.
// emptyMatchesAll controls what an empty child list means: and([]) matches
// every row, or([]) matches none.
func combineChildren(owner, table string, children []querycompile.Node, combinator string, emptyMatchesAll bool) (string, []interface{}, error) {
	if len(children) == 0 {
		if emptyMatchesAll {
			sql, args := matchAllRowsSQL(owner, table)
			return sql, args, nil
		}
		sql, args := matchNoRowsSQL()
		return sql, args, nil
	}

	parts := make([]string, 0, len(children))
	var args []interface{}
	for _, c := range children {
		sql, childArgs, err := compileFilterSQL(owner, table, c)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, subquery(sql))
		args = append(args, childArgs...)
	}
	return strings.Join(parts, " "+combinator+" "), args, nil
}

// sortRows orders already-decoded rows in place according to sortKeys,
// each of which names a declared sort/unique column; values are read from
// the row's indexed map (validated to be present and integer by the
// insert path). Rows missing a sort key sort last.
func sortRows(rows []queriedRow, sortKeys []querycompile.SortKey) {
	if len(sortKeys) == 0 {
		return
	}
	sort.SliceStable(rows, func(i, j int) bool {
		for _, sk := range sortKeys {
			vi, iok := asSortableInt(rows[i].Indexed[sk.Column])
			vj, jok := asSortableInt(rows[j].Indexed[sk.Column])
			switch {
			case !iok && !jok:
				continue
			case !iok:
				return false
			case !jok:
				return true
			case vi == vj:
				continue
			case sk.Desc:
				return vi > vj
			default:
				return vi < vj
			}
		}
		return false
	})
}

func asSortableInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}
