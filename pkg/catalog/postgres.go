package catalog

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/schemaops/deprec/pkg/schema"
)

// postgresDialect issues information_schema / pg_catalog queries.
type postgresDialect struct{}

func (postgresDialect) exists(ctx context.Context, db *gorm.DB, ref ElementRef) (bool, error) {
	var query string
	var args []any
	switch ref.Type {
	case schema.ElementTable:
		query = `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.tables
				WHERE table_schema = ? AND table_name = ? AND table_type = 'BASE TABLE'
			)`
		args = []any{ref.Schema, ref.Name}
	case schema.ElementColumn:
		query = `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.columns
				WHERE table_schema = ? AND table_name = ? AND column_name = ?
			)`
		args = []any{ref.Schema, ref.Table, ref.Name}
	case schema.ElementIndex:
		query = `
			SELECT EXISTS (
				SELECT 1 FROM pg_indexes
				WHERE schemaname = ? AND indexname = ?
			)`
		args = []any{ref.Schema, ref.Name}
	case schema.ElementConstraint:
		query = `
			SELECT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE constraint_schema = ? AND constraint_name = ?
			)`
		args = []any{ref.Schema, ref.Name}
	default:
		return false, fmt.Errorf("unsupported element type %q", ref.Type)
	}

	var exists bool
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&exists).Error; err != nil {
		return false, fmt.Errorf("check existence of %s %s: %w", ref.Type, ref.Name, err)
	}
	return exists, nil
}

func (d postgresDialect) dependencies(ctx context.Context, db *gorm.DB, ref ElementRef) ([]schema.Dependency, error) {
	// Only tables and columns can be referenced by other objects in a way
	// that blocks a rename; index and constraint renames carry no dependents.
	if ref.Type == schema.ElementIndex || ref.Type == schema.ElementConstraint {
		return nil, nil
	}

	targetTable := ref.Name
	if ref.Type == schema.ElementColumn {
		targetTable = ref.Table
	}

	var deps []schema.Dependency

	fks, err := d.referencingForeignKeys(ctx, db, ref.Schema, targetTable)
	if err != nil {
		return nil, err
	}
	deps = append(deps, fks...)

	views, err := d.referencingViews(ctx, db, ref.Schema, targetTable)
	if err != nil {
		return nil, err
	}
	deps = append(deps, views...)

	triggers, err := d.referencingTriggers(ctx, db, ref.Schema, targetTable)
	if err != nil {
		return nil, err
	}
	deps = append(deps, triggers...)

	return deps, nil
}

// referencingForeignKeys finds foreign keys on other tables that point at
// the target table. These are high impact: a rename breaks them outright.
func (postgresDialect) referencingForeignKeys(ctx context.Context, db *gorm.DB, schemaName, table string) ([]schema.Dependency, error) {
	query := `
		SELECT tc.constraint_name, tc.table_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.constraint_column_usage ccu
			ON tc.constraint_name = ccu.constraint_name
			AND tc.constraint_schema = ccu.constraint_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
			AND ccu.table_schema = ?
			AND ccu.table_name = ?
			AND tc.table_name <> ?
		ORDER BY tc.constraint_name`

	rows, err := db.WithContext(ctx).Raw(query, schemaName, table, table).Rows()
	if err != nil {
		return nil, fmt.Errorf("list referencing foreign keys for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var deps []schema.Dependency
	for rows.Next() {
		var name, dependent string
		if err := rows.Scan(&name, &dependent); err != nil {
			return nil, err
		}
		deps = append(deps, schema.Dependency{
			Type:            "foreign_key",
			Name:            name,
			DependentObject: dependent,
			Impact:          schema.ImpactHigh,
		})
	}
	return deps, rows.Err()
}

// referencingViews finds views selecting from the target table.
func (postgresDialect) referencingViews(ctx context.Context, db *gorm.DB, schemaName, table string) ([]schema.Dependency, error) {
	query := `
		SELECT DISTINCT view_name
		FROM information_schema.view_table_usage
		WHERE table_schema = ? AND table_name = ?
		ORDER BY view_name`

	rows, err := db.WithContext(ctx).Raw(query, schemaName, table).Rows()
	if err != nil {
		return nil, fmt.Errorf("list referencing views for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var deps []schema.Dependency
	for rows.Next() {
		var view string
		if err := rows.Scan(&view); err != nil {
			return nil, err
		}
		deps = append(deps, schema.Dependency{
			Type:            "view",
			Name:            view,
			DependentObject: view,
			Impact:          schema.ImpactMedium,
		})
	}
	return deps, rows.Err()
}

// referencingTriggers finds triggers attached to the target table.
func (postgresDialect) referencingTriggers(ctx context.Context, db *gorm.DB, schemaName, table string) ([]schema.Dependency, error) {
	query := `
		SELECT DISTINCT trigger_name
		FROM information_schema.triggers
		WHERE event_object_schema = ? AND event_object_table = ?
		ORDER BY trigger_name`

	rows, err := db.WithContext(ctx).Raw(query, schemaName, table).Rows()
	if err != nil {
		return nil, fmt.Errorf("list triggers for %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var deps []schema.Dependency
	for rows.Next() {
		var trig string
		if err := rows.Scan(&trig); err != nil {
			return nil, err
		}
		deps = append(deps, schema.Dependency{
			Type:            "trigger",
			Name:            trig,
			DependentObject: table,
			Impact:          schema.ImpactMedium,
		})
	}
	return deps, rows.Err()
}

func (postgresDialect) rowCount(ctx context.Context, db *gorm.DB, schemaName, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s.%s`, QuoteIdentifier(schemaName), QuoteIdentifier(table))
	if err := db.WithContext(ctx).Raw(query).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("count rows of %s.%s: %w", schemaName, table, err)
	}
	return count, nil
}

func (postgresDialect) foreignKeys(ctx context.Context, db *gorm.DB, schemaName, table string) ([]ForeignKeyDef, error) {
	query := `
		SELECT con.conname, rel.relname, pg_get_constraintdef(con.oid)
		FROM pg_constraint con
		JOIN pg_class rel ON rel.oid = con.conrelid
		JOIN pg_namespace nsp ON nsp.oid = rel.relnamespace
		WHERE con.contype = 'f' AND nsp.nspname = ? AND rel.relname = ?
		ORDER BY con.conname`

	rows, err := db.WithContext(ctx).Raw(query, schemaName, table).Rows()
	if err != nil {
		return nil, fmt.Errorf("list foreign keys of %s.%s: %w", schemaName, table, err)
	}
	defer rows.Close()

	var defs []ForeignKeyDef
	for rows.Next() {
		var def ForeignKeyDef
		if err := rows.Scan(&def.Name, &def.Table, &def.Definition); err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

func (postgresDialect) explain(ctx context.Context, db *gorm.DB, sql string) error {
	if err := db.WithContext(ctx).Exec("EXPLAIN " + sql).Error; err != nil {
		return fmt.Errorf("explain dry run: %w", err)
	}
	return nil
}
