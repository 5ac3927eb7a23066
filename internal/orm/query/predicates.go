package query

import (
	"fmt"
	"strings"
)

// Operator represents a comparison operator
type Operator int

const (
	OpEqual Operator = iota
	OpNotEqual
	OpGreaterThan
	OpGreaterThanOrEqual
	OpLessThan
	OpLessThanOrEqual
	OpIn
	OpNotIn
	OpLike
	OpILike
	OpIsNull
	OpIsNotNull
	OpBetween
)

// String returns the string representation of the operator
func (o Operator) String() string {
	switch o {
	case OpEqual:
		return "="
	case OpNotEqual:
		return "!="
	case OpGreaterThan:
		return ">"
	case OpGreaterThanOrEqual:
		return ">="
	case OpLessThan:
		return "<"
	case OpLessThanOrEqual:
		return "<="
	case OpIn:
		return "IN"
	case OpNotIn:
		return "NOT IN"
	case OpLike:
		return "LIKE"
	case OpILike:
		return "ILIKE"
	case OpIsNull:
		return "IS NULL"
	case OpIsNotNull:
		return "IS NOT NULL"
	case OpBetween:
		return "BETWEEN"
	default:
		return "UNKNOWN"
	}
}

// IsComparison reports whether the operator is one of = < > <= >=
func (o Operator) IsComparison() bool {
	switch o {
	case OpEqual, OpGreaterThan, OpGreaterThanOrEqual, OpLessThan, OpLessThanOrEqual:
		return true
	}
	return false
}

// ParseOperator converts an operator string to an Operator
func ParseOperator(s string) (Operator, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "=", "==":
		return OpEqual, nil
	case "!=", "<>":
		return OpNotEqual, nil
	case "<":
		return OpLessThan, nil
	case "<=":
		return OpLessThanOrEqual, nil
	case ">":
		return OpGreaterThan, nil
	case ">=":
		return OpGreaterThanOrEqual, nil
	case "IN":
		return OpIn, nil
	case "NOT IN":
		return OpNotIn, nil
	case "LIKE":
		return OpLike, nil
	case "ILIKE":
		return OpILike, nil
	default:
		return OpEqual, fmt.Errorf("unknown operator: %s", s)
	}
}

// Condition represents a WHERE condition on an alias-qualified column
type Condition struct {
	Column   Column
	Operator Operator
	Value    interface{}
}

// params accumulates bind arguments while SQL is rendered
type params struct {
	dialect Dialect
	args    []interface{}
}

func (p *params) add(v interface{}) string {
	p.args = append(p.args, v)
	return p.dialect.Placeholder(len(p.args))
}

// conditionToSQL converts a condition to SQL with parameterized values
func conditionToSQL(cond *Condition, p *params) (string, error) {
	col := p.dialect.QuoteColumn(cond.Column)

	switch cond.Operator {
	case OpEqual, OpNotEqual, OpGreaterThan, OpGreaterThanOrEqual,
		OpLessThan, OpLessThanOrEqual, OpLike, OpILike:
		return fmt.Sprintf("%s %s %s", col, cond.Operator, p.add(cond.Value)), nil

	case OpIn, OpNotIn:
		values, ok := cond.Value.([]interface{})
		if !ok {
			return "", fmt.Errorf("%s operator requires []interface{} value", cond.Operator)
		}
		if len(values) == 0 {
			// IN () matches nothing, NOT IN () matches everything
			if cond.Operator == OpIn {
				return "1 = 0", nil
			}
			return "1 = 1", nil
		}

		placeholders := make([]string, len(values))
		for i, v := range values {
			placeholders[i] = p.add(v)
		}
		return fmt.Sprintf("%s %s (%s)", col, cond.Operator, strings.Join(placeholders, ", ")), nil

	case OpIsNull, OpIsNotNull:
		return fmt.Sprintf("%s %s", col, cond.Operator), nil

	case OpBetween:
		values, ok := cond.Value.([]interface{})
		if !ok || len(values) != 2 {
			return "", fmt.Errorf("BETWEEN operator requires [min, max] values")
		}
		low := p.add(values[0])
		high := p.add(values[1])
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, low, high), nil

	default:
		return "", fmt.Errorf("unsupported operator: %v", cond.Operator)
	}
}
