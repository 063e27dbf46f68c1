// Package sqlgen generates the rename DDL and validation statements for
// each schema element kind.
package sqlgen

import (
	"fmt"

	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/schema"
)

// Strategy produces the rename DDL for one element kind. Each kind gets its
// own implementation rather than a switch inside the planner, so migration,
// rollback, and validation SQL stay together per kind.
type Strategy interface {
	// MigrationSQL renames the original identifier to the deprecated one.
	MigrationSQL(e schema.DeprecatedElement) string
	// RollbackSQL is the exact structural inverse of MigrationSQL.
	RollbackSQL(e schema.DeprecatedElement) string
	// ValidationSQL confirms the migration took effect: the deprecated
	// name exists and the original does not.
	ValidationSQL(e schema.DeprecatedElement) string
	// RollbackValidationSQL confirms a rollback took effect.
	RollbackValidationSQL(e schema.DeprecatedElement) string
	// RollbackType classifies the rollback step for this kind.
	RollbackType() schema.RollbackSQLType
}

// ForType returns the strategy for an element kind.
func ForType(t schema.ElementType) (Strategy, error) {
	switch t {
	case schema.ElementTable:
		return tableStrategy{}, nil
	case schema.ElementColumn:
		return columnStrategy{}, nil
	case schema.ElementIndex:
		return indexStrategy{}, nil
	case schema.ElementConstraint:
		return constraintStrategy{}, nil
	default:
		return nil, &schema.ValidationError{Field: "type", Value: string(t), Message: "unknown element type"}
	}
}

type tableStrategy struct{}

func (tableStrategy) MigrationSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		catalog.QualifyTable(e.Schema, e.OriginalName),
		catalog.QuoteIdentifier(e.DeprecatedName))
}

func (tableStrategy) RollbackSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		catalog.QualifyTable(e.Schema, e.DeprecatedName),
		catalog.QuoteIdentifier(e.OriginalName))
}

func (tableStrategy) ValidationSQL(e schema.DeprecatedElement) string {
	return tableRenameCheck(e.Schema, e.DeprecatedName, e.OriginalName)
}

func (tableStrategy) RollbackValidationSQL(e schema.DeprecatedElement) string {
	return tableRenameCheck(e.Schema, e.OriginalName, e.DeprecatedName)
}

func (tableStrategy) RollbackType() schema.RollbackSQLType { return schema.RollbackRename }

type columnStrategy struct{}

func (columnStrategy) MigrationSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		catalog.QualifyTable(e.Schema, e.Table),
		catalog.QuoteIdentifier(e.OriginalName),
		catalog.QuoteIdentifier(e.DeprecatedName))
}

func (columnStrategy) RollbackSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
		catalog.QualifyTable(e.Schema, e.Table),
		catalog.QuoteIdentifier(e.DeprecatedName),
		catalog.QuoteIdentifier(e.OriginalName))
}

func (columnStrategy) ValidationSQL(e schema.DeprecatedElement) string {
	return columnRenameCheck(e.Schema, e.Table, e.DeprecatedName, e.OriginalName)
}

func (columnStrategy) RollbackValidationSQL(e schema.DeprecatedElement) string {
	return columnRenameCheck(e.Schema, e.Table, e.OriginalName, e.DeprecatedName)
}

func (columnStrategy) RollbackType() schema.RollbackSQLType { return schema.RollbackRename }

type indexStrategy struct{}

func (indexStrategy) MigrationSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER INDEX %s RENAME TO %s",
		catalog.QualifyTable(e.Schema, e.OriginalName),
		catalog.QuoteIdentifier(e.DeprecatedName))
}

func (indexStrategy) RollbackSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER INDEX %s RENAME TO %s",
		catalog.QualifyTable(e.Schema, e.DeprecatedName),
		catalog.QuoteIdentifier(e.OriginalName))
}

func (indexStrategy) ValidationSQL(e schema.DeprecatedElement) string {
	return indexRenameCheck(e.Schema, e.DeprecatedName, e.OriginalName)
}

func (indexStrategy) RollbackValidationSQL(e schema.DeprecatedElement) string {
	return indexRenameCheck(e.Schema, e.OriginalName, e.DeprecatedName)
}

func (indexStrategy) RollbackType() schema.RollbackSQLType { return schema.RollbackCreateIndex }

type constraintStrategy struct{}

func (constraintStrategy) MigrationSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s",
		catalog.QualifyTable(e.Schema, e.Table),
		catalog.QuoteIdentifier(e.OriginalName),
		catalog.QuoteIdentifier(e.DeprecatedName))
}

func (constraintStrategy) RollbackSQL(e schema.DeprecatedElement) string {
	return fmt.Sprintf("ALTER TABLE %s RENAME CONSTRAINT %s TO %s",
		catalog.QualifyTable(e.Schema, e.Table),
		catalog.QuoteIdentifier(e.DeprecatedName),
		catalog.QuoteIdentifier(e.OriginalName))
}

func (constraintStrategy) ValidationSQL(e schema.DeprecatedElement) string {
	return constraintRenameCheck(e.Schema, e.DeprecatedName, e.OriginalName)
}

func (constraintStrategy) RollbackValidationSQL(e schema.DeprecatedElement) string {
	return constraintRenameCheck(e.Schema, e.OriginalName, e.DeprecatedName)
}

func (constraintStrategy) RollbackType() schema.RollbackSQLType { return schema.RollbackCreateConstraint }

// Validation statements are recorded on plans in PostgreSQL catalog form;
// execution-time validation goes through the catalog introspector so the
// same plans verify on any supported dialect.

func tableRenameCheck(schemaName, present, absent string) string {
	return fmt.Sprintf(
		`SELECT (EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = '%s' AND table_name = '%s')`+
			` AND NOT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_schema = '%s' AND table_name = '%s'))`,
		schemaName, present, schemaName, absent)
}

func columnRenameCheck(schemaName, table, present, absent string) string {
	return fmt.Sprintf(
		`SELECT (EXISTS (SELECT 1 FROM information_schema.columns WHERE table_schema = '%s' AND table_name = '%s' AND column_name = '%s')`+
			` AND NOT EXISTS (SELECT 1 FROM information_schema.columns WHERE table_schema = '%s' AND table_name = '%s' AND column_name = '%s'))`,
		schemaName, table, present, schemaName, table, absent)
}

func indexRenameCheck(schemaName, present, absent string) string {
	return fmt.Sprintf(
		`SELECT (EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = '%s' AND indexname = '%s')`+
			` AND NOT EXISTS (SELECT 1 FROM pg_indexes WHERE schemaname = '%s' AND indexname = '%s'))`,
		schemaName, present, schemaName, absent)
}

func constraintRenameCheck(schemaName, present, absent string) string {
	return fmt.Sprintf(
		`SELECT (EXISTS (SELECT 1 FROM information_schema.table_constraints WHERE constraint_schema = '%s' AND constraint_name = '%s')`+
			` AND NOT EXISTS (SELECT 1 FROM information_schema.table_constraints WHERE constraint_schema = '%s' AND constraint_name = '%s'))`,
		schemaName, present, schemaName, absent)
}
