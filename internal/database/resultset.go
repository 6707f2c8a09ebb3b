package database

import (
	"database/sql"
	"strconv"
	"strings"

	"db-sync/internal/schema"
)

// ResultSet is one materialized batch: ordered column names and value tuples
// aligned to them.
type ResultSet struct {
	Columns []string
	Rows    [][]any
}

func (r *ResultSet) Len() int {
	if r == nil {
		return 0
	}
	return len(r.Rows)
}

// Index returns the position of a column (case-insensitive) or -1.
func (r *ResultSet) Index(name string) int {
	for i, c := range r.Columns {
		if strings.EqualFold(c, name) {
			return i
		}
	}
	return -1
}

func scanRows(rows *sql.Rows) (*ResultSet, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	kinds := make([]string, len(types))
	for i, ct := range types {
		kinds[i] = strings.ToLower(ct.DatabaseTypeName())
	}

	rs := &ResultSet{Columns: cols}
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i := range values {
			values[i] = normalizeValue(values[i], kinds[i])
		}
		rs.Rows = append(rs.Rows, values)
	}
	return rs, rows.Err()
}

// normalizeValue turns the []byte some drivers return for textual wire
// formats into a value that binds correctly on any other driver.
func normalizeValue(v any, dbType string) any {
	b, ok := v.([]byte)
	if !ok {
		return v
	}
	if dbType == "uniqueidentifier" {
		return b
	}

	switch schema.CategoryOf(dbType) {
	case schema.CategoryBinary:
		return b
	case schema.CategoryInteger:
		if n, err := strconv.ParseInt(string(b), 10, 64); err == nil {
			return n
		}
		if n, err := strconv.ParseUint(string(b), 10, 64); err == nil {
			return n
		}
	case schema.CategoryOther:
		if dbType == "" {
			return b
		}
	}
	return string(b)
}
