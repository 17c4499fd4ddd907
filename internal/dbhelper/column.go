package dbhelper

import (
	"database/sql"
	"strings"
)

// canonicalColumnTypes maps each column's driver-reported type name to the
// canonical set: {integer, number, string, clob, blob, date, timestamp,
// other}.
func canonicalColumnTypes(cols []*sql.ColumnType) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = canonicalType(c.DatabaseTypeName())
	}
	return out
}

func canonicalType(driverType string) string {
	t := strings.ToUpper(driverType)
	switch {
	case strings.Contains(t, "TIMESTAMP"):
		return "timestamp"
	case strings.Contains(t, "DATE"):
		return "date"
	case strings.Contains(t, "BLOB") || strings.Contains(t, "BYTEA") || strings.Contains(t, "BINARY"):
		return "blob"
	case strings.Contains(t, "CLOB") || strings.Contains(t, "TEXT"):
		return "clob"
	case strings.Contains(t, "INT"):
		return "integer"
	case strings.Contains(t, "DECIMAL") || strings.Contains(t, "NUMERIC") || strings.Contains(t, "FLOAT") || strings.Contains(t, "DOUBLE") || strings.Contains(t, "NUMBER") || strings.Contains(t, "REAL"):
		return "number"
	case strings.Contains(t, "CHAR") || strings.Contains(t, "VARCHAR"):
		return "string"
	case t == "":
		return "other"
	default:
		return "other"
	}
}
