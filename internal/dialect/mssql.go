package dialect

import (
	"fmt"
	"strings"
)

type MSSQLDialect struct{}

// Helper: MSSQL Driver (go-mssqldb) prefers @p1, @p2 named parameters over ?

func (d *MSSQLDialect) Name() string { return "sqlserver" }

func (d *MSSQLDialect) ColumnsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	return `
		SELECT
			c.COLUMN_NAME,
			c.DATA_TYPE,
			c.IS_NULLABLE,
			CASE WHEN pk.COLUMN_NAME IS NOT NULL THEN 'PRIMARY' ELSE '' END AS COLUMN_KEY,
			CASE
				WHEN COLUMNPROPERTY(OBJECT_ID(c.TABLE_SCHEMA + '.' + c.TABLE_NAME), c.COLUMN_NAME, 'IsIdentity') = 1 THEN 'identity'
				ELSE COALESCE(c.COLUMN_DEFAULT, '')
			END AS EXTRA
		FROM INFORMATION_SCHEMA.COLUMNS c
		LEFT JOIN (
			SELECT kcu.TABLE_SCHEMA, kcu.TABLE_NAME, kcu.COLUMN_NAME
			FROM INFORMATION_SCHEMA.TABLE_CONSTRAINTS tc
			JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE kcu
				ON tc.CONSTRAINT_NAME = kcu.CONSTRAINT_NAME AND tc.TABLE_SCHEMA = kcu.TABLE_SCHEMA
			WHERE tc.CONSTRAINT_TYPE = 'PRIMARY KEY'
		) pk ON c.TABLE_SCHEMA = pk.TABLE_SCHEMA AND c.TABLE_NAME = pk.TABLE_NAME AND c.COLUMN_NAME = pk.COLUMN_NAME
		WHERE c.TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND c.TABLE_NAME = @p2
		ORDER BY c.ORDINAL_POSITION
	`, []any{schema, name}
}

func (d *MSSQLDialect) TableExistsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	return `SELECT COUNT(*) FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_SCHEMA = COALESCE(NULLIF(@p1, ''), SCHEMA_NAME()) AND TABLE_NAME = @p2`,
		[]any{schema, name}
}

func (d *MSSQLDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(table, cols, d.Placeholder)
}

func (d *MSSQLDialect) DeleteQuery(table, keyCol string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, keyCol, d.Placeholder(0))
}

func (d *MSSQLDialect) CountQuery(table, where string) string {
	return countQuery(table, where)
}

func (d *MSSQLDialect) Placeholder(index int) string {
	return fmt.Sprintf("@p%d", index+1)
}

func (d *MSSQLDialect) TrueLiteral() string { return "1" }

// OFFSET/FETCH is only valid after an ORDER BY.
func (d *MSSQLDialect) Paginate(query, orderBy string, limit, offset int) string {
	if orderBy == "" && (limit > 0 || offset > 0) {
		orderBy = "(SELECT NULL)"
	}
	return fetchWindow(query, orderBy, limit, offset)
}

func (d *MSSQLDialect) ProbeQuery(query string) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS probe WHERE 1 = 0", query)
}

// Without XACT_ABORT a constraint violation only fails its own statement.
func (d *MSSQLDialect) SavepointQueries(name string) (string, string, string) {
	return "", "", ""
}

func (d *MSSQLDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch t {
	case "nvarchar", "nchar", "ntext":
		return "varchar"
	case "bit":
		return "boolean"
	case "decimal", "numeric", "money", "smallmoney":
		return "decimal"
	case "float", "real":
		return "float"
	case "datetime", "datetime2", "smalldatetime":
		return "datetime"
	case "image", "binary", "varbinary":
		return "blob"
	default:
		return t
	}
}
