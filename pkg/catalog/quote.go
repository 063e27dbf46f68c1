package catalog

import "strings"

// QuoteIdentifier double-quotes an identifier for safe interpolation into
// DDL and catalog queries. Embedded quotes are doubled.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// QualifyTable returns a schema-qualified, quoted table reference. An empty
// schema yields just the quoted table name (the SQLite case).
func QualifyTable(schemaName, table string) string {
	if schemaName == "" {
		return QuoteIdentifier(table)
	}
	return QuoteIdentifier(schemaName) + "." + QuoteIdentifier(table)
}
