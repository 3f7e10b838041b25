package planquery

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

// Query is a catalog query. Sealed: only Select and Count implement it.
type Query interface {
	queryNode()
}

// Predicate is a row filter. Sealed: only Equals, AtLeast and And
// implement it.
type Predicate interface {
	predicateNode()
}

// Select lists matching plans in insertion order. Limit 0 means no limit.
type Select struct {
	Filter Predicate // nil = every plan
	Limit  int
}

func (Select) queryNode() {}

// Count counts matching plans.
type Count struct {
	Filter Predicate // nil = every plan
}

func (Count) queryNode() {}

// Equals matches rows whose column equals Value.
type Equals struct {
	Column string
	Value  any // string for text columns, int64 for integer columns
}

func (Equals) predicateNode() {}

// AtLeast matches rows whose integer column is >= Value.
type AtLeast struct {
	Column string
	Value  int64
}

func (AtLeast) predicateNode() {}

// And matches rows satisfying every predicate. Empty And matches all rows.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// ColumnKind is the storage class of a catalog column.
type ColumnKind int

const (
	Text ColumnKind = iota
	Integer
)

func (k ColumnKind) String() string {
	if k == Integer {
		return "integer"
	}
	return "text"
}

// Columns is the filterable schema of the plans table.
var Columns = map[string]ColumnKind{
	"id":        Text,
	"stencil":   Text,
	"spec_hash": Text,
	"plan_hash": Text,
	"mode":      Text,
	"base_path": Text,
	"color":     Integer,
	"timesteps": Integer,
	"rank":      Integer,
	"regions":   Integer,
	"epochs":    Integer,
}

// Where builds the conjunction of column = value pairs from a decoded
// YAML or JSON map, in sorted column order. Whole floats become integers.
func Where(where map[string]any) (Predicate, error) {
	if len(where) == 0 {
		return nil, nil
	}
	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	and := And{Predicates: make([]Predicate, 0, len(keys))}
	for _, k := range keys {
		v, err := normalize(where[k])
		if err != nil {
			return nil, fmt.Errorf("where %s: %w", k, err)
		}
		and.Predicates = append(and.Predicates, Equals{Column: k, Value: v})
	}
	if err := validatePredicate(and); err != nil {
		return nil, err
	}
	return and, nil
}

// normalize converts a decoded scalar to string or int64.
func normalize(v any) (any, error) {
	switch val := v.(type) {
	case string:
		return val, nil
	case int:
		return int64(val), nil
	case int64:
		return val, nil
	case float64:
		if val != math.Trunc(val) {
			return nil, fmt.Errorf("value %v is not a whole number", val)
		}
		return int64(val), nil
	case bool:
		return nil, fmt.Errorf("boolean value %v has no catalog column", val)
	default:
		return nil, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

// Describe renders p for messages, e.g. "mode=tiled AND regions>=4".
func Describe(p Predicate) string {
	switch pred := p.(type) {
	case nil:
		return "(no conditions)"
	case Equals:
		return fmt.Sprintf("%s=%v", pred.Column, pred.Value)
	case AtLeast:
		return fmt.Sprintf("%s>=%d", pred.Column, pred.Value)
	case And:
		if len(pred.Predicates) == 0 {
			return "(no conditions)"
		}
		parts := make([]string, len(pred.Predicates))
		for i, sub := range pred.Predicates {
			parts[i] = Describe(sub)
		}
		return strings.Join(parts, " AND ")
	default:
		return fmt.Sprintf("%T", p)
	}
}
