package planquery

import (
	"fmt"
	"strings"
)

// Compiler turns queries into SQL over one table.
type Compiler struct {
	Table   string // e.g. "plans"
	Columns string // select list for Select queries
}

// Compile validates q and returns its SQL and parameters.
func (c Compiler) Compile(q Query) (string, []any, error) {
	if err := Validate(q); err != nil {
		return "", nil, fmt.Errorf("compile query: %w", err)
	}

	var sb strings.Builder
	var filter Predicate
	switch query := q.(type) {
	case Select:
		fmt.Fprintf(&sb, "SELECT %s FROM %s", c.Columns, c.Table)
		filter = query.Filter
	case Count:
		fmt.Fprintf(&sb, "SELECT COUNT(*) FROM %s", c.Table)
		filter = query.Filter
	}

	where, params := compilePredicate(filter)
	if where != "" {
		sb.WriteString(" WHERE ")
		sb.WriteString(where)
	}
	if sel, ok := q.(Select); ok {
		sb.WriteString(" ORDER BY rowid ASC")
		if sel.Limit > 0 {
			sb.WriteString(" LIMIT ?")
			params = append(params, sel.Limit)
		}
	}
	return sb.String(), params, nil
}

// compilePredicate returns the WHERE fragment for p, or "" when p matches
// every row. p must be valid.
func compilePredicate(p Predicate) (string, []any) {
	switch pred := p.(type) {
	case Equals:
		return pred.Column + " = ?", []any{pred.Value}
	case AtLeast:
		return pred.Column + " >= ?", []any{pred.Value}
	case And:
		var parts []string
		var params []any
		for _, sub := range pred.Predicates {
			sql, subParams := compilePredicate(sub)
			if sql == "" {
				continue
			}
			parts = append(parts, sql)
			params = append(params, subParams...)
		}
		return strings.Join(parts, " AND "), params
	default:
		return "", nil
	}
}
