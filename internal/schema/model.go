package schema

// Table is the metadata of one relation (a declared table or a probed query).
type Table struct {
	Name    string
	Columns []*Column
}

// Column describes one column as the validator and the engine see it.
type Column struct {
	Name       string
	DataType   string       // dialect-normalized raw type, e.g. "int", "varchar"
	Category   TypeCategory // compatibility group of DataType
	Length     int
	IsNullable bool
	IsPK       bool
	IsAutoInc  bool
}

// NewColumn builds a Column and derives its category from dataType.
func NewColumn(name, dataType string, nullable bool) *Column {
	return &Column{
		Name:       name,
		DataType:   dataType,
		Category:   CategoryOf(dataType),
		IsNullable: nullable,
	}
}

// Find returns the column with the given name (case-insensitive) or nil.
func (t *Table) Find(name string) *Column {
	return FindColumn(t.Columns, name)
}

// PrimaryKey returns the names of the primary key columns in ordinal order.
func (t *Table) PrimaryKey() []string {
	var keys []string
	for _, c := range t.Columns {
		if c.IsPK {
			keys = append(keys, c.Name)
		}
	}
	return keys
}
