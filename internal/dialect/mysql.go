package dialect

import "fmt"

type MysqlDialect struct{}

func (d *MysqlDialect) Name() string { return "mysql" }

func (d *MysqlDialect) ColumnsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	return `SELECT COLUMN_NAME, DATA_TYPE, IS_NULLABLE, COLUMN_KEY, EXTRA FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ? ORDER BY ORDINAL_POSITION`,
		[]any{schema, name}
}

func (d *MysqlDialect) TableExistsQuery(table string) (string, []any) {
	schema, name := SplitTable(table)
	return `SELECT COUNT(*) FROM information_schema.TABLES WHERE TABLE_SCHEMA = COALESCE(NULLIF(?, ''), DATABASE()) AND TABLE_NAME = ?`,
		[]any{schema, name}
}

func (d *MysqlDialect) InsertQuery(table string, cols []string) string {
	return insertQuery(table, cols, d.Placeholder)
}

func (d *MysqlDialect) DeleteQuery(table, keyCol string) string {
	return fmt.Sprintf("DELETE FROM %s WHERE %s = %s", table, keyCol, d.Placeholder(0))
}

func (d *MysqlDialect) CountQuery(table, where string) string {
	return countQuery(table, where)
}

func (d *MysqlDialect) Placeholder(index int) string {
	return "?"
}

func (d *MysqlDialect) TrueLiteral() string { return "1" }

func (d *MysqlDialect) Paginate(query, orderBy string, limit, offset int) string {
	return limitOffset(query, orderBy, limit, offset)
}

func (d *MysqlDialect) ProbeQuery(query string) string {
	return fmt.Sprintf("SELECT * FROM (%s) AS probe WHERE 1 = 0", query)
}

// MySQL rolls back only the failing statement, the transaction stays usable.
func (d *MysqlDialect) SavepointQueries(name string) (string, string, string) {
	return "", "", ""
}

func (d *MysqlDialect) NormalizeType(sqlType string) string {
	return DefaultNormalizeType(sqlType)
}
