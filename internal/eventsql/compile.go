// Package eventsql compiles eventq selects to parameterized SQLite queries
// over the events table.
package eventsql

import (
	"fmt"
	"strings"

	"github.com/roach88/requex/internal/eventq"
	"github.com/roach88/requex/internal/ir"
)

// Columns is the column list of every compiled query, in scan order.
const Columns = "id, seq, stream, type, payload"

// Compile converts a select to parameterized SQL.
// Returns (sql, params, error) tuple.
//
// Every query is ordered by seq, so results are deterministic. Values are
// always bound as parameters, never interpolated.
func Compile(sel eventq.Select) (string, []any, error) {
	if err := eventq.Validate(sel); err != nil {
		return "", nil, fmt.Errorf("compile select: %w", err)
	}

	var b strings.Builder
	b.WriteString("SELECT " + Columns + " FROM events")

	var params []any
	if sel.Filter != nil {
		where, whereParams, err := compilePredicate(sel.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		b.WriteString(" WHERE " + where)
		params = whereParams
	}

	b.WriteString(" ORDER BY " + stableOrderKey())

	if sel.Limit > 0 {
		b.WriteString(" LIMIT ?")
		params = append(params, sel.Limit)
	}
	return b.String(), params, nil
}

// stableOrderKey returns the ORDER BY clause shared with the store's own
// readers. seq is unique; the id tiebreaker keeps the clause total anyway.
func stableOrderKey() string {
	return "seq ASC, id COLLATE BINARY ASC"
}

// compilePredicate compiles a predicate to a WHERE clause fragment.
func compilePredicate(p eventq.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case eventq.StreamIs:
		return "stream = ?", []any{pred.Stream}, nil
	case eventq.TypeIs:
		return "type = ?", []any{pred.Type}, nil
	case eventq.FieldEquals:
		return compileFieldEquals(pred)
	case eventq.HasField:
		return "json_type(payload, ?) IS NOT NULL", []any{JSONPath(pred.Path)}, nil
	case eventq.SeqRange:
		if pred.Until == 0 {
			return "seq > ?", []any{pred.After}, nil
		}
		return "seq > ? AND seq <= ?", []any{pred.After, pred.Until}, nil
	case eventq.And:
		return compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileFieldEquals checks the JSON type as well as the value: SQLite
// reports JSON true as the integer 1, which must not equal IRInt(1).
func compileFieldEquals(eq eventq.FieldEquals) (string, []any, error) {
	path := JSONPath(eq.Path)

	switch v := eq.Value.(type) {
	case ir.IRBool:
		jsonType := "false"
		if v {
			jsonType = "true"
		}
		return "json_type(payload, ?) = ?", []any{path, jsonType}, nil
	case ir.IRInt:
		return "(json_type(payload, ?) = 'integer' AND json_extract(payload, ?) = ?)",
			[]any{path, path, int64(v)}, nil
	case ir.IRString:
		return "(json_type(payload, ?) = 'text' AND json_extract(payload, ?) = ?)",
			[]any{path, path, string(v)}, nil
	default:
		return "", nil, fmt.Errorf("unsupported value type for field %s: %T", eq.Path, eq.Value)
	}
}

// compileAnd compiles a conjunction. An empty And is always true.
func compileAnd(and eventq.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil
	}

	parts := make([]string, 0, len(and.Predicates))
	var params []any
	for _, sub := range and.Predicates {
		sql, subParams, err := compilePredicate(sub)
		if err != nil {
			return "", nil, err
		}
		parts = append(parts, sql)
		params = append(params, subParams...)
	}
	return strings.Join(parts, " AND "), params, nil
}

// JSONPath converts a dot-separated payload path to an SQLite JSON path
// with every key quoted: "a.b-c" becomes $."a"."b-c".
func JSONPath(path string) string {
	var b strings.Builder
	b.WriteString("$")
	for _, seg := range strings.Split(path, ".") {
		b.WriteString(`."` + seg + `"`)
	}
	return b.String()
}
