// Package catalog provides read-only introspection of the database catalog
// (information_schema / pg_catalog). All lookups are side-effect-free; the
// engine's safety checks and validation queries are built on top of it.
package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/schemaops/deprec/pkg/schema"
)

// ElementRef identifies a schema element for catalog lookups.
type ElementRef struct {
	Type   schema.ElementType
	Schema string
	// Table qualifies column lookups; empty for tables, indexes, constraints.
	Table string
	Name  string
}

// RefForCandidate builds an ElementRef from an analysis candidate.
func RefForCandidate(c schema.Candidate) ElementRef {
	return ElementRef{Type: c.Type, Schema: c.Schema, Table: c.Table, Name: c.Name}
}

// RefForElement builds an ElementRef for a planned element's original name.
func RefForElement(e schema.DeprecatedElement) ElementRef {
	return ElementRef{Type: e.Type, Schema: e.Schema, Table: e.Table, Name: e.OriginalName}
}

// ForeignKeyDef is a foreign key constraint definition, captured so a
// rollback can verify the dependent constraints survived structurally.
type ForeignKeyDef struct {
	Name       string `json:"name"`
	Table      string `json:"table"`
	Definition string `json:"definition"`
}

// Introspector is the read-only catalog access contract. It is an interface
// so safety checks and planners can be unit tested against a stub without a
// live database.
type Introspector interface {
	// Exists reports whether the referenced element currently exists.
	Exists(ctx context.Context, ref ElementRef) (bool, error)
	// Dependencies lists objects referencing the element: foreign keys,
	// views, and triggers.
	Dependencies(ctx context.Context, ref ElementRef) ([]schema.Dependency, error)
	// RowCount returns the current row count of a table.
	RowCount(ctx context.Context, schemaName, table string) (int64, error)
	// ForeignKeys returns the full foreign key definitions on a table.
	ForeignKeys(ctx context.Context, schemaName, table string) ([]ForeignKeyDef, error)
	// Explain runs a non-executing syntax check over a read-only statement.
	Explain(ctx context.Context, sql string) error
}

// dialect abstracts the engine-specific catalog queries.
type dialect interface {
	exists(ctx context.Context, db *gorm.DB, ref ElementRef) (bool, error)
	dependencies(ctx context.Context, db *gorm.DB, ref ElementRef) ([]schema.Dependency, error)
	rowCount(ctx context.Context, db *gorm.DB, schemaName, table string) (int64, error)
	foreignKeys(ctx context.Context, db *gorm.DB, schemaName, table string) ([]ForeignKeyDef, error)
	explain(ctx context.Context, db *gorm.DB, sql string) error
}

// GormIntrospector implements Introspector over a *gorm.DB connection,
// selecting catalog queries off the connection's dialect. PostgreSQL is the
// supported engine; the SQLite dialect exists for in-memory tests.
type GormIntrospector struct {
	db      *gorm.DB
	dialect dialect
}

// NewIntrospector creates an introspector for the connection's dialect.
func NewIntrospector(db *gorm.DB) (*GormIntrospector, error) {
	switch db.Dialector.Name() {
	case "postgres":
		return &GormIntrospector{db: db, dialect: postgresDialect{}}, nil
	case "sqlite":
		return &GormIntrospector{db: db, dialect: sqliteDialect{}}, nil
	default:
		return nil, fmt.Errorf("unsupported database dialect %q", db.Dialector.Name())
	}
}

func (g *GormIntrospector) Exists(ctx context.Context, ref ElementRef) (bool, error) {
	if !ref.Type.Valid() {
		return false, &schema.ValidationError{Field: "type", Value: string(ref.Type), Message: "unknown element type"}
	}
	return g.dialect.exists(ctx, g.db, ref)
}

func (g *GormIntrospector) Dependencies(ctx context.Context, ref ElementRef) ([]schema.Dependency, error) {
	return g.dialect.dependencies(ctx, g.db, ref)
}

func (g *GormIntrospector) RowCount(ctx context.Context, schemaName, table string) (int64, error) {
	return g.dialect.rowCount(ctx, g.db, schemaName, table)
}

func (g *GormIntrospector) ForeignKeys(ctx context.Context, schemaName, table string) ([]ForeignKeyDef, error) {
	return g.dialect.foreignKeys(ctx, g.db, schemaName, table)
}

func (g *GormIntrospector) Explain(ctx context.Context, sql string) error {
	return g.dialect.explain(ctx, g.db, sql)
}
