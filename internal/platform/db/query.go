package db

import (
	"fmt"
	"strings"
)

// ListQuery assembles the filtered COUNT and page SELECT used by list
// endpoints. Filters are ANDed; placeholders are numbered in the order they
// are added.
type ListQuery struct {
	from    string
	cols    string
	where   []string
	args    []interface{}
	orderBy string
}

// NewListQuery starts a query over from (a table name or join expression).
func NewListQuery(from, cols string) *ListQuery {
	return &ListQuery{from: from, cols: cols}
}

func (q *ListQuery) next() int { return len(q.args) + 1 }

// Where appends a raw clause. Use ? for each argument; they are rewritten
// to positional placeholders.
func (q *ListQuery) Where(clause string, args ...interface{}) *ListQuery {
	for _, a := range args {
		clause = strings.Replace(clause, "?", fmt.Sprintf("$%d", q.next()), 1)
		q.args = append(q.args, a)
	}
	q.where = append(q.where, clause)
	return q
}

// Eq adds column = value.
func (q *ListQuery) Eq(column string, value interface{}) *ListQuery {
	return q.Where(column+" = ?", value)
}

// EqIfSet adds column = *value when value is non-nil.
func (q *ListQuery) EqIfSet(column string, value *int64) *ListQuery {
	if value == nil {
		return q
	}
	return q.Eq(column, *value)
}

// EqIfNotEmpty adds column = value when value is non-empty.
func (q *ListQuery) EqIfNotEmpty(column, value string) *ListQuery {
	if value == "" {
		return q
	}
	return q.Eq(column, value)
}

// Contains adds a case-insensitive substring match when value is non-empty.
func (q *ListQuery) Contains(column, value string) *ListQuery {
	if value == "" {
		return q
	}
	return q.Where(column+" ILIKE ?", "%"+escapeLike(value)+"%")
}

func (q *ListQuery) OrderBy(orderBy string) *ListQuery {
	q.orderBy = orderBy
	return q
}

func (q *ListQuery) whereSQL() string {
	if len(q.where) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(q.where, " AND ")
}

func (q *ListQuery) CountSQL() string {
	return "SELECT COUNT(*) FROM " + q.from + q.whereSQL()
}

func (q *ListQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the page query with ORDER BY and LIMIT/OFFSET.
func (q *ListQuery) DataSQL() string {
	sql := "SELECT " + q.cols + " FROM " + q.from + q.whereSQL()
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql + fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.next(), q.next()+1)
}

func (q *ListQuery) DataArgs(limit, offset int) []interface{} {
	out := make([]interface{}, len(q.args), len(q.args)+2)
	copy(out, q.args)
	return append(out, limit, offset)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
