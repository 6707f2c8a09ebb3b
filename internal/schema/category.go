package schema

import "strings"

// TypeCategory is a compatibility group. Two columns in the same group can
// carry each other's values without a warning.
type TypeCategory string

const (
	CategoryInteger  TypeCategory = "integer"
	CategoryString   TypeCategory = "string"
	CategoryDecimal  TypeCategory = "decimal"
	CategoryDateTime TypeCategory = "datetime"
	CategoryDate     TypeCategory = "date"
	CategoryTime     TypeCategory = "time"
	CategoryBinary   TypeCategory = "binary"
	CategoryBoolean  TypeCategory = "boolean"
	CategoryOther    TypeCategory = "other"
)

var exactCategories = map[string]TypeCategory{
	"tinyint": CategoryInteger, "smallint": CategoryInteger, "mediumint": CategoryInteger,
	"int": CategoryInteger, "integer": CategoryInteger, "bigint": CategoryInteger,
	"int2": CategoryInteger, "int4": CategoryInteger, "int8": CategoryInteger,
	"serial": CategoryInteger, "bigserial": CategoryInteger, "smallserial": CategoryInteger,
	"unsigned tinyint": CategoryInteger, "unsigned smallint": CategoryInteger, "unsigned mediumint": CategoryInteger,
	"unsigned int": CategoryInteger, "unsigned bigint": CategoryInteger,

	"char": CategoryString, "varchar": CategoryString, "nchar": CategoryString, "nvarchar": CategoryString,
	"varchar2": CategoryString, "nvarchar2": CategoryString, "bpchar": CategoryString,
	"text": CategoryString, "tinytext": CategoryString, "mediumtext": CategoryString, "longtext": CategoryString,
	"ntext": CategoryString, "clob": CategoryString, "nclob": CategoryString, "string": CategoryString,
	"character varying": CategoryString, "character": CategoryString, "citext": CategoryString,
	"enum": CategoryString, "set": CategoryString, "uuid": CategoryString, "uniqueidentifier": CategoryString,
	"json": CategoryString, "jsonb": CategoryString, "xml": CategoryString,

	"decimal": CategoryDecimal, "numeric": CategoryDecimal, "number": CategoryDecimal,
	"float": CategoryDecimal, "float4": CategoryDecimal, "float8": CategoryDecimal,
	"double": CategoryDecimal, "double precision": CategoryDecimal, "real": CategoryDecimal,
	"money": CategoryDecimal, "smallmoney": CategoryDecimal,
	"binary_float": CategoryDecimal, "binary_double": CategoryDecimal,

	"datetime": CategoryDateTime, "datetime2": CategoryDateTime, "smalldatetime": CategoryDateTime,
	"datetimeoffset": CategoryDateTime, "timestamp": CategoryDateTime, "timestamptz": CategoryDateTime,
	"timestamp without time zone": CategoryDateTime, "timestamp with time zone": CategoryDateTime,

	"date": CategoryDate,

	"time": CategoryTime, "timetz": CategoryTime,
	"time without time zone": CategoryTime, "time with time zone": CategoryTime,

	"binary": CategoryBinary, "varbinary": CategoryBinary, "blob": CategoryBinary,
	"tinyblob": CategoryBinary, "mediumblob": CategoryBinary, "longblob": CategoryBinary,
	"bytea": CategoryBinary, "image": CategoryBinary, "raw": CategoryBinary, "long raw": CategoryBinary,

	"bool": CategoryBoolean, "boolean": CategoryBoolean, "bit": CategoryBoolean,
}

// CategoryOf maps a raw SQL type name to its compatibility group. Length and
// precision suffixes ("varchar(20)", "decimal(10,2)") are ignored.
func CategoryOf(dataType string) TypeCategory {
	t := strings.ToLower(strings.TrimSpace(dataType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	if c, ok := exactCategories[t]; ok {
		return c
	}

	// "bigint unsigned", "timestamp(6) with time zone"
	if i := strings.IndexByte(t, ' '); i > 0 {
		if c, ok := exactCategories[t[:i]]; ok {
			return c
		}
	}
	switch {
	case strings.HasPrefix(t, "timestamp"):
		return CategoryDateTime
	case strings.HasPrefix(t, "interval"):
		return CategoryOther
	case strings.Contains(t, "char"), strings.Contains(t, "text"):
		return CategoryString
	case strings.Contains(t, "binary"), strings.Contains(t, "blob"):
		return CategoryBinary
	}
	return CategoryOther
}

// Compatible reports whether two raw types share a compatibility group.
// Types with an unknown group are only compatible when spelled identically.
func Compatible(a, b string) bool {
	if strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b)) {
		return true
	}
	ca, cb := CategoryOf(a), CategoryOf(b)
	if ca == CategoryOther || cb == CategoryOther {
		return false
	}
	return ca == cb
}
