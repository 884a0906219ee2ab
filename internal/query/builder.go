// Package query composes the parameterized SQL used by the repository.
// Statements are written with "?" placeholders; the database layer rebinds
// them for the driver in use. Only the dialect-specific fragments (glob
// matching, insert-or-ignore) differ between SQLite and Postgres.
package query

import (
	"strconv"
	"strings"
)

// Dialect names the SQL flavour a statement is built for.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// SelectBuilder assembles a SELECT statement from optional parts.
type SelectBuilder struct {
	dialect   Dialect
	distinct  bool
	columns   []string
	from      string
	joins     []string
	where     []string
	whereArgs []interface{}
	orderBy   []string
	orderArgs []interface{}
	limit     int
}

// Select starts a statement returning columns.
func Select(dialect Dialect, columns ...string) *SelectBuilder {
	return &SelectBuilder{dialect: dialect, columns: columns}
}

// Distinct turns the statement into SELECT DISTINCT.
func (b *SelectBuilder) Distinct() *SelectBuilder {
	b.distinct = true
	return b
}

// From sets the driving table.
func (b *SelectBuilder) From(table string) *SelectBuilder {
	b.from = table
	return b
}

// Join adds an inner join of table on the given condition.
func (b *SelectBuilder) Join(table, on string) *SelectBuilder {
	b.joins = append(b.joins, "JOIN "+table+" ON "+on)
	return b
}

// Where adds a predicate; predicates are AND-ed in call order.
func (b *SelectBuilder) Where(expr string, args ...interface{}) *SelectBuilder {
	b.where = append(b.where, expr)
	b.whereArgs = append(b.whereArgs, args...)
	return b
}

// WhereGlob restricts column to names matching a glob pattern.
// An empty pattern adds nothing.
func (b *SelectBuilder) WhereGlob(column, pattern string) *SelectBuilder {
	if pattern == "" {
		return b
	}
	return b.Where(GlobExpr(b.dialect, column), GlobArg(b.dialect, pattern))
}

// OrderBy appends an ordering term, which may carry its own arguments.
func (b *SelectBuilder) OrderBy(expr string, args ...interface{}) *SelectBuilder {
	b.orderBy = append(b.orderBy, expr)
	b.orderArgs = append(b.orderArgs, args...)
	return b
}

// Limit caps the number of rows; zero means no limit.
func (b *SelectBuilder) Limit(n int) *SelectBuilder {
	b.limit = n
	return b
}

// ToSQL renders the statement and its arguments in placeholder order.
func (b *SelectBuilder) ToSQL() (string, []interface{}) {
	var sb strings.Builder

	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	sb.WriteString(strings.Join(b.columns, ", "))

	sb.WriteString(" FROM ")
	sb.WriteString(b.from)

	for _, j := range b.joins {
		sb.WriteString(" ")
		sb.WriteString(j)
	}

	if len(b.where) > 0 {
		sb.WriteString(" WHERE ")
		sb.WriteString(strings.Join(b.where, " AND "))
	}

	if len(b.orderBy) > 0 {
		sb.WriteString(" ORDER BY ")
		sb.WriteString(strings.Join(b.orderBy, ", "))
	}

	if b.limit > 0 {
		sb.WriteString(" LIMIT ")
		sb.WriteString(strconv.Itoa(b.limit))
	}

	args := make([]interface{}, 0, len(b.whereArgs)+len(b.orderArgs))
	args = append(args, b.whereArgs...)
	args = append(args, b.orderArgs...)

	return sb.String(), args
}

// InsertIgnore renders an INSERT that silently skips rows violating a
// uniqueness constraint. values are SQL expressions, usually "?" or a
// scalar sub-select.
func InsertIgnore(dialect Dialect, table string, columns, values []string) string {
	cols := strings.Join(columns, ", ")
	vals := strings.Join(values, ", ")

	if dialect == Postgres {
		return "INSERT INTO " + table + " (" + cols + ") VALUES (" + vals + ") ON CONFLICT DO NOTHING"
	}
	return "INSERT OR IGNORE INTO " + table + " (" + cols + ") VALUES (" + vals + ")"
}
