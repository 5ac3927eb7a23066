package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect captures the SQL differences between supported databases
type Dialect struct {
	Name string

	// NumberedParams selects $1, $2 placeholders instead of ?
	NumberedParams bool

	// Returning reports support for INSERT ... RETURNING
	Returning bool
}

var (
	// Postgres is the dialect used by the pgx and lib/pq drivers
	Postgres = Dialect{Name: "postgres", NumberedParams: true, Returning: true}

	// SQLite is the dialect used by the go-sqlite3 driver
	SQLite = Dialect{Name: "sqlite3", NumberedParams: false, Returning: false}
)

// DialectFor returns the dialect for a database/sql driver name
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return Postgres, nil
	case "sqlite3":
		return SQLite, nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver: %s", driver)
	}
}

// Placeholder returns the bind parameter marker for the n-th argument (1-based)
func (d Dialect) Placeholder(n int) string {
	if d.NumberedParams {
		return "$" + strconv.Itoa(n)
	}
	return "?"
}

// Quote quotes an identifier. Identifiers are validated before they reach
// the dialect, so no escaping is needed.
func (d Dialect) Quote(identifier string) string {
	return `"` + identifier + `"`
}

// QuoteColumn quotes an alias-qualified column
func (d Dialect) QuoteColumn(c Column) string {
	if c.Alias == "" {
		return d.Quote(c.Name)
	}
	return d.Quote(c.Alias) + "." + d.Quote(c.Name)
}

// Placeholders returns count comma-separated placeholders starting at start
func (d Dialect) Placeholders(start, count int) string {
	parts := make([]string, count)
	for i := range parts {
		parts[i] = d.Placeholder(start + i)
	}
	return strings.Join(parts, ", ")
}
