package dialect

import (
	"fmt"
	"strings"
)

// GeneratePlaceholders is a helper function to create a slice of placeholder strings.
// It takes the number of placeholders needed and a function that returns the placeholder for a given index.
// It returns a comma-separated string of the generated placeholders.
func GeneratePlaceholders(count int, placeholderFunc func(int) string) string {
	placeholders := make([]string, count)
	for i := 0; i < count; i++ {
		placeholders[i] = placeholderFunc(i)
	}
	return strings.Join(placeholders, ", ")
}

// DefaultNormalizeType is a default implementation for type normalization (lowercase).
func DefaultNormalizeType(sqlType string) string {
	return strings.ToLower(strings.TrimSpace(sqlType))
}

// SplitTable splits "schema.table" into its parts. schema is empty when the
// name is unqualified.
func SplitTable(table string) (schema, name string) {
	if i := strings.LastIndexByte(table, '.'); i >= 0 {
		return table[:i], table[i+1:]
	}
	return "", table
}

func insertQuery(table string, cols []string, placeholder func(int) string) string {
	vals := GeneratePlaceholders(len(cols), placeholder)
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, strings.Join(cols, ", "), vals)
}

func countQuery(table, where string) string {
	if where == "" {
		return fmt.Sprintf("SELECT COUNT(*) FROM %s", table)
	}
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE %s", table, where)
}

// limitOffset renders the LIMIT/OFFSET window shared by MySQL and PostgreSQL.
func limitOffset(query, orderBy string, limit, offset int) string {
	var b strings.Builder
	b.WriteString(query)
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", limit)
	}
	if offset > 0 {
		fmt.Fprintf(&b, " OFFSET %d", offset)
	}
	return b.String()
}

// fetchWindow renders the ANSI OFFSET/FETCH window used by SQL Server and Oracle.
func fetchWindow(query, orderBy string, limit, offset int) string {
	var b strings.Builder
	b.WriteString(query)
	if orderBy != "" {
		b.WriteString(" ORDER BY ")
		b.WriteString(orderBy)
	}
	if offset > 0 || limit > 0 {
		fmt.Fprintf(&b, " OFFSET %d ROWS", offset)
	}
	if limit > 0 {
		fmt.Fprintf(&b, " FETCH NEXT %d ROWS ONLY", limit)
	}
	return b.String()
}
