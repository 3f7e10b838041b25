package planquery

import "fmt"

// Validate checks that q only references catalog columns with values of
// the column's kind.
func Validate(q Query) error {
	switch query := q.(type) {
	case nil:
		return fmt.Errorf("nil query")
	case Select:
		if query.Limit < 0 {
			return fmt.Errorf("negative limit %d", query.Limit)
		}
		return validatePredicate(query.Filter)
	case Count:
		return validatePredicate(query.Filter)
	default:
		return fmt.Errorf("unsupported query type %T", q)
	}
}

func validatePredicate(p Predicate) error {
	switch pred := p.(type) {
	case nil:
		return nil
	case Equals:
		kind, err := column(pred.Column)
		if err != nil {
			return err
		}
		switch pred.Value.(type) {
		case string:
			if kind != Text {
				return fmt.Errorf("column %s is %s, got string %q", pred.Column, kind, pred.Value)
			}
		case int64:
			if kind != Integer {
				return fmt.Errorf("column %s is %s, got integer %v", pred.Column, kind, pred.Value)
			}
		default:
			return fmt.Errorf("column %s: unsupported value %v (%T)", pred.Column, pred.Value, pred.Value)
		}
		return nil
	case AtLeast:
		kind, err := column(pred.Column)
		if err != nil {
			return err
		}
		if kind != Integer {
			return fmt.Errorf("column %s is %s: no ordering", pred.Column, kind)
		}
		return nil
	case And:
		for _, sub := range pred.Predicates {
			if err := validatePredicate(sub); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported predicate type %T", p)
	}
}

func column(name string) (ColumnKind, error) {
	kind, ok := Columns[name]
	if !ok {
		return 0, fmt.Errorf("unknown catalog column %q", name)
	}
	return kind, nil
}
