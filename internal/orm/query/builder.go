// Package query renders parameterized SELECT statements over aliased tables.
package query

import (
	"fmt"
	"strings"
)

// Column is an alias-qualified column reference
type Column struct {
	Alias string
	Name  string
}

// Col builds a Column, validating both identifiers
func Col(alias, name string) Column {
	if alias != "" {
		validateIdentifier(alias)
	}
	validateIdentifier(name)
	return Column{Alias: alias, Name: name}
}

// String returns the unquoted alias.name form
func (c Column) String() string {
	if c.Alias == "" {
		return c.Name
	}
	return c.Alias + "." + c.Name
}

// JoinType represents the type of SQL join
type JoinType int

const (
	InnerJoin JoinType = iota
	LeftJoin
)

// String returns the string representation of the join type
func (j JoinType) String() string {
	switch j {
	case LeftJoin:
		return "LEFT"
	default:
		return "INNER"
	}
}

// Join represents a SQL join clause on a single column equality
type Join struct {
	Type  JoinType
	Table string
	Alias string
	Left  Column
	Right Column
}

type order struct {
	column    Column
	direction string
}

// Builder accumulates a SELECT over a root table and renders it for a dialect
type Builder struct {
	dialect Dialect
	table   string
	alias   string

	columns    []Column
	distinct   bool
	joins      []*Join
	conditions []*Condition
	orderBy    []order
	limit      *int
	offset     *int
}

// New creates a builder selecting from table under alias
func New(dialect Dialect, table, alias string) *Builder {
	validateIdentifier(table)
	validateIdentifier(alias)
	return &Builder{
		dialect:    dialect,
		table:      table,
		alias:      alias,
		columns:    make([]Column, 0),
		joins:      make([]*Join, 0),
		conditions: make([]*Condition, 0),
		orderBy:    make([]order, 0),
	}
}

// Dialect returns the dialect the builder renders for
func (b *Builder) Dialect() Dialect { return b.dialect }

// Table returns the root table
func (b *Builder) Table() string { return b.table }

// Alias returns the root alias
func (b *Builder) Alias() string { return b.alias }

// Select sets the projected columns. With none, alias.* is selected.
func (b *Builder) Select(cols ...Column) *Builder {
	b.columns = append(b.columns[:0], cols...)
	return b
}

// Distinct switches the query to SELECT DISTINCT
func (b *Builder) Distinct() *Builder {
	b.distinct = true
	return b
}

// IsDistinct reports whether SELECT DISTINCT is rendered
func (b *Builder) IsDistinct() bool { return b.distinct }

// Where adds a condition. Conditions are combined with AND.
func (b *Builder) Where(col Column, op Operator, value interface{}) *Builder {
	b.conditions = append(b.conditions, &Condition{
		Column:   col,
		Operator: op,
		Value:    value,
	})
	return b
}

// WhereIn adds an IN condition
func (b *Builder) WhereIn(col Column, values []interface{}) *Builder {
	return b.Where(col, OpIn, values)
}

// WhereNull adds an IS NULL condition
func (b *Builder) WhereNull(col Column) *Builder {
	return b.Where(col, OpIsNull, nil)
}

// Conditions returns the number of conditions added so far
func (b *Builder) Conditions() int { return len(b.conditions) }

// Join adds a join of table under alias on left = right
func (b *Builder) Join(joinType JoinType, table, alias string, left, right Column) *Builder {
	validateIdentifier(table)
	validateIdentifier(alias)
	if b.HasJoin(alias) || alias == b.alias {
		panic(fmt.Sprintf("alias %s is already in use", alias))
	}
	b.joins = append(b.joins, &Join{
		Type:  joinType,
		Table: table,
		Alias: alias,
		Left:  left,
		Right: right,
	})
	return b
}

// InnerJoin adds an INNER JOIN clause
func (b *Builder) InnerJoin(table, alias string, left, right Column) *Builder {
	return b.Join(InnerJoin, table, alias, left, right)
}

// LeftJoin adds a LEFT JOIN clause
func (b *Builder) LeftJoin(table, alias string, left, right Column) *Builder {
	return b.Join(LeftJoin, table, alias, left, right)
}

// HasJoin reports whether alias is already joined
func (b *Builder) HasJoin(alias string) bool {
	for _, j := range b.joins {
		if j.Alias == alias {
			return true
		}
	}
	return false
}

// Joins returns the number of joins
func (b *Builder) Joins() int { return len(b.joins) }

// OrderBy adds an ORDER BY clause. Unknown directions fall back to ASC.
func (b *Builder) OrderBy(col Column, direction string) *Builder {
	dir := strings.ToUpper(direction)
	if dir != "ASC" && dir != "DESC" {
		dir = "ASC"
	}
	b.orderBy = append(b.orderBy, order{column: col, direction: dir})
	return b
}

// SetMaxResults sets the LIMIT
func (b *Builder) SetMaxResults(n int) *Builder {
	b.limit = &n
	return b
}

// SetFirstResult sets the OFFSET
func (b *Builder) SetFirstResult(n int) *Builder {
	b.offset = &n
	return b
}

// MaxResults returns the LIMIT, if any
func (b *Builder) MaxResults() (int, bool) {
	if b.limit == nil {
		return 0, false
	}
	return *b.limit, true
}

// FirstResult returns the OFFSET, if any
func (b *Builder) FirstResult() (int, bool) {
	if b.offset == nil {
		return 0, false
	}
	return *b.offset, true
}

// ToSQL generates the SELECT statement and its parameter bindings
func (b *Builder) ToSQL() (string, []interface{}, error) {
	p := &params{dialect: b.dialect, args: make([]interface{}, 0)}
	var sql strings.Builder

	sql.WriteString("SELECT ")
	if b.distinct {
		sql.WriteString("DISTINCT ")
	}
	if len(b.columns) == 0 {
		sql.WriteString(b.dialect.Quote(b.alias) + ".*")
	} else {
		cols := make([]string, len(b.columns))
		for i, c := range b.columns {
			cols[i] = b.dialect.QuoteColumn(c)
		}
		sql.WriteString(strings.Join(cols, ", "))
	}

	if err := b.writeBody(&sql, p); err != nil {
		return "", nil, err
	}

	if len(b.orderBy) > 0 {
		parts := make([]string, len(b.orderBy))
		for i, o := range b.orderBy {
			parts[i] = b.dialect.QuoteColumn(o.column) + " " + o.direction
		}
		sql.WriteString(" ORDER BY ")
		sql.WriteString(strings.Join(parts, ", "))
	}

	if b.limit != nil {
		sql.WriteString(" LIMIT " + p.add(*b.limit))
	} else if b.offset != nil && b.dialect.Name == SQLite.Name {
		// SQLite only accepts OFFSET after a LIMIT
		sql.WriteString(" LIMIT -1")
	}
	if b.offset != nil {
		sql.WriteString(" OFFSET " + p.add(*b.offset))
	}

	return sql.String(), p.args, nil
}

// CountSQL generates a COUNT(DISTINCT col) over the same joins and
// conditions, ignoring ordering and pagination.
func (b *Builder) CountSQL(col Column) (string, []interface{}, error) {
	p := &params{dialect: b.dialect, args: make([]interface{}, 0)}
	var sql strings.Builder

	sql.WriteString(fmt.Sprintf("SELECT COUNT(DISTINCT %s)", b.dialect.QuoteColumn(col)))
	if err := b.writeBody(&sql, p); err != nil {
		return "", nil, err
	}
	return sql.String(), p.args, nil
}

func (b *Builder) writeBody(sql *strings.Builder, p *params) error {
	sql.WriteString(fmt.Sprintf(" FROM %s AS %s", b.dialect.Quote(b.table), b.dialect.Quote(b.alias)))

	for _, j := range b.joins {
		sql.WriteString(fmt.Sprintf(" %s JOIN %s AS %s ON %s = %s",
			j.Type,
			b.dialect.Quote(j.Table),
			b.dialect.Quote(j.Alias),
			b.dialect.QuoteColumn(j.Left),
			b.dialect.QuoteColumn(j.Right),
		))
	}

	if len(b.conditions) > 0 {
		sql.WriteString(" WHERE ")
		for i, cond := range b.conditions {
			if i > 0 {
				sql.WriteString(" AND ")
			}
			condSQL, err := conditionToSQL(cond, p)
			if err != nil {
				return fmt.Errorf("failed to build condition: %w", err)
			}
			sql.WriteString(condSQL)
		}
	}
	return nil
}

// Clone creates an independent copy of the builder
func (b *Builder) Clone() *Builder {
	clone := &Builder{
		dialect:    b.dialect,
		table:      b.table,
		alias:      b.alias,
		distinct:   b.distinct,
		columns:    make([]Column, len(b.columns)),
		joins:      make([]*Join, len(b.joins)),
		conditions: make([]*Condition, len(b.conditions)),
		orderBy:    make([]order, len(b.orderBy)),
	}

	copy(clone.columns, b.columns)
	copy(clone.joins, b.joins)
	copy(clone.conditions, b.conditions)
	copy(clone.orderBy, b.orderBy)

	if b.limit != nil {
		limit := *b.limit
		clone.limit = &limit
	}
	if b.offset != nil {
		offset := *b.offset
		clone.offset = &offset
	}
	return clone
}

// validateIdentifier validates that an identifier only contains letters,
// digits and underscores. Panics if invalid characters are found.
func validateIdentifier(identifier string) {
	if identifier == "" {
		panic("invalid identifier: empty")
	}
	for _, char := range identifier {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			panic(fmt.Sprintf("invalid identifier: %s (contains invalid character: %c)", identifier, char))
		}
	}
}

// IsValidIdentifier reports whether s is safe to use as an identifier
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, char := range s {
		if !((char >= 'a' && char <= 'z') ||
			(char >= 'A' && char <= 'Z') ||
			(char >= '0' && char <= '9') ||
			char == '_') {
			return false
		}
	}
	return true
}
