package dialect

import (
	"fmt"
	"strings"
)

type OracleDialect struct{}

func (d *OracleDialect) Name() string { return "oracle" }

func (d *OracleDialect) ColumnsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	// An empty owner binds as NULL in Oracle, which falls back to USER.
	// NUMBER without scale is reported as INTEGER, with scale as DECIMAL.
	return `
SELECT
    t.COLUMN_NAME,
    CASE
        WHEN t.DATA_TYPE = 'NUMBER' AND COALESCE(t.DATA_SCALE, 0) > 0 THEN 'DECIMAL'
        WHEN t.DATA_TYPE = 'NUMBER' THEN 'INTEGER'
        ELSE t.DATA_TYPE
    END,
    t.NULLABLE,
    CASE WHEN p.COLUMN_NAME IS NOT NULL THEN 'PRI' ELSE '' END,
    CASE WHEN t.IDENTITY_COLUMN = 'YES' THEN 'auto_increment' ELSE '' END
FROM ALL_TAB_COLUMNS t
LEFT JOIN (
    SELECT cc.OWNER, cc.TABLE_NAME, cc.COLUMN_NAME
    FROM ALL_CONS_COLUMNS cc
    JOIN ALL_CONSTRAINTS ac ON cc.OWNER = ac.OWNER AND cc.CONSTRAINT_NAME = ac.CONSTRAINT_NAME
    WHERE ac.CONSTRAINT_TYPE = 'P'
) p ON t.OWNER = p.OWNER AND t.TABLE_NAME = p.TABLE_NAME AND t.COLUMN_NAME = p.COLUMN_NAME
WHERE t.OWNER = COALESCE(UPPER(:1), USER) AND t.TABLE_NAME = UPPER(:2)
ORDER BY t.COLUMN_ID`, []any{schema, name}
}

func (d *OracleDialect) TableExistsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	return `SELECT COUNT(*) FROM ALL_OBJECTS WHERE OWNER = COALESCE(UPPER(:1), USER) AND OBJECT_NAME = UPPER(:2) AND OBJECT_TYPE IN ('TABLE', 'VIEW')`,
		[]any{schema, name}
}

func (d *OracleDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(table, cols, d.Placeholder)
}

func (d *OracleDialect) DeleteQuery(table, keyCol string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, keyCol, d.Placeholder(0))
}

func (d *OracleDialect) CountQuery(table, where string) string {
	return countQuery(table, where)
}

func (d *OracleDialect) Placeholder(index int) string {
	return fmt.Sprintf(":%d", index+1)
}

func (d *OracleDialect) TrueLiteral() string { return "1" }

// OFFSET/FETCH requires Oracle 12c or later.
func (d *OracleDialect) Paginate(query, orderBy string, limit, offset int) string {
	return fetchWindow(query, orderBy, limit, offset)
}

// Oracle does not accept AS before a table alias.
func (d *OracleDialect) ProbeQuery(query string) string {
	return fmt.Sprintf("SELECT * FROM (%s) probe WHERE 1 = 0", query)
}

func (d *OracleDialect) SavepointQueries(name string) (string, string, string) {
	return "", "", ""
}

func (d *OracleDialect) NormalizeType(sqlType string) string {
	t := strings.ToLower(sqlType)
	switch t {
	case "varchar2", "nvarchar2", "nchar":
		return "varchar"
	case "clob", "nclob":
		return "text"
	case "binary_float", "binary_double":
		return "double"
	default:
		return t
	}
}
