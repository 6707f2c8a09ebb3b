package dialect

import (
	"fmt"
	"strings"
)

type PostgresDialect struct{}

func (d *PostgresDialect) Name() string { return "postgres" }

func (d *PostgresDialect) ColumnsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	// The primary key flag comes from a correlated subquery, identity and
	// serial columns are reported through the last column.
	return `SELECT
    c.column_name,
    c.udt_name,
    c.is_nullable,
    CASE WHEN EXISTS (
        SELECT 1 FROM information_schema.table_constraints tc
        JOIN information_schema.key_column_usage kcu
          ON tc.constraint_name = kcu.constraint_name AND tc.table_schema = kcu.table_schema
        WHERE tc.constraint_type = 'PRIMARY KEY'
          AND kcu.table_schema = c.table_schema AND kcu.table_name = c.table_name AND kcu.column_name = c.column_name
    ) THEN 'PRI' ELSE '' END AS column_key,
    CASE WHEN c.is_identity = 'YES' THEN 'identity' ELSE COALESCE(c.column_default, '') END AS extra
FROM information_schema.columns c
WHERE c.table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND c.table_name = $2
ORDER BY c.ordinal_position`, []any{schema, name}
}

func (d *PostgresDialect) TableExistsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	return `SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = COALESCE(NULLIF($1, ''), current_schema()) AND table_name = $2`,
		[]any{schema, name}
}

func (d *PostgresDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(table, cols, d.Placeholder)
}

func (d *PostgresDialect) DeleteQuery(table, keyCol string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, keyCol, d.Placeholder(0))
}

func (d *PostgresDialect) CountQuery(table, where string) string {
	return countQuery(table, where)
}

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index+1)
}

func (d *PostgresDialect) TrueLiteral() string { return "TRUE" }

func (d *PostgresDialect) Paginate(query, orderBy string, limit, offset int) string {
	return limitOffset(query, orderBy, limit, offset)
}

func (d *PostgresDialect) ProbeQuery(query string) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS probe WHERE 1 = 0", query)
}

// A failed statement aborts the whole PostgreSQL transaction, so each row
// runs under its own savepoint.
func (d *PostgresDialect) SavepointQueries(name string) (string, string, string) {
	return "SAVEPOINT " + name, "ROLLBACK TO SAVEPOINT " + name, "RELEASE SAVEPOINT " + name
}

func (d *PostgresDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch t {
	case "int4", "int2":
		return "int"
	case "int8":
		return "bigint"
	case "float4":
		return "float"
	case "float8":
		return "double"
	case "bpchar":
		return "char"
	case "varchar":
		return "varchar"
	default:
		return t
	}
}
