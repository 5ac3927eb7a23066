package query

import (
	"fmt"
	"strings"
)

// InsertSQL renders an INSERT into table. When returning is non-empty and
// the dialect supports it, a RETURNING clause is appended.
func InsertSQL(d Dialect, table string, columns []string, returning string) string {
	validateIdentifier(table)
	quoted := make([]string, len(columns))
	for i, c := range columns {
		validateIdentifier(c)
		quoted[i] = d.Quote(c)
	}

	var sql string
	if len(columns) == 0 {
		sql = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", d.Quote(table))
	} else {
		sql = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			d.Quote(table), strings.Join(quoted, ", "), d.Placeholders(1, len(columns)))
	}
	if returning != "" && d.Returning {
		validateIdentifier(returning)
		sql += " RETURNING " + d.Quote(returning)
	}
	return sql
}

// UpdateSQL renders an UPDATE of columns keyed by idColumn. The id binding
// comes last.
func UpdateSQL(d Dialect, table string, columns []string, idColumn string) string {
	validateIdentifier(table)
	validateIdentifier(idColumn)
	sets := make([]string, len(columns))
	for i, c := range columns {
		validateIdentifier(c)
		sets[i] = fmt.Sprintf("%s = %s", d.Quote(c), d.Placeholder(i+1))
	}
	return fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		d.Quote(table), strings.Join(sets, ", "), d.Quote(idColumn), d.Placeholder(len(columns)+1))
}

// DeleteSQL renders a DELETE whose WHERE clause ANDs equality on each column
func DeleteSQL(d Dialect, table string, whereColumns ...string) string {
	validateIdentifier(table)
	conds := make([]string, len(whereColumns))
	for i, c := range whereColumns {
		validateIdentifier(c)
		conds[i] = fmt.Sprintf("%s = %s", d.Quote(c), d.Placeholder(i+1))
	}
	sql := "DELETE FROM " + d.Quote(table)
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	return sql
}
