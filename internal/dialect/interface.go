package dialect

// Dialect abstracts database-specific SQL.
type Dialect interface {
	Name() string

	// Metadata Queries (Schema Introspection)
	// ColumnsQuery yields: column_name, data_type, is_nullable, column_key, extra.
	ColumnsQuery(table string) (string, []any)
	TableExistsQuery(table string) (string, []any)

	// Query Generation
	InsertQuery(table string, cols []string) string
	DeleteQuery(table, keyCol string) string
	CountQuery(table, where string) string
	Placeholder(index int) string // Returns ?, $1, @p1, :1
	TrueLiteral() string

	// Paginate appends ordering and a row window to query. orderBy may be
	// empty; dialects that need an ORDER BY for windowing supply a neutral one.
	Paginate(query, orderBy string, limit, offset int) string
	// ProbeQuery wraps an arbitrary SELECT so it returns its columns but no rows.
	ProbeQuery(query string) string

	// Row-level savepoints for engines where a failed statement aborts the
	// whole transaction. Empty strings mean the dialect does not need them.
	SavepointQueries(name string) (save, rollback, release string)

	// Helpers
	NormalizeType(sqlType string) string
}
