// Package planquery describes filters over the plan catalog and compiles
// them to parameterized SQLite.
//
// A query is a small sealed tree:
//
//	Select{Filter: And{Predicates: []Predicate{
//	  Equals{Column: "stencil", Value: "heat"},
//	  AtLeast{Column: "regions", Value: 4},
//	}}}
//
// compiles to
//
//	SELECT <record columns> FROM plans WHERE stencil = ? AND regions >= ? ORDER BY rowid ASC
//
// with parameters ["heat", 4]. Count compiles to SELECT COUNT(*) with the
// same WHERE clause.
//
// Column names cannot be parameterized, so every column is checked against
// the catalog schema before compilation; values are never interpolated.
// Every Select is ordered by insertion so listings are deterministic.
package planquery
