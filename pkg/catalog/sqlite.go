package catalog

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/schemaops/deprec/pkg/schema"
)

// sqliteDialect backs in-memory tests. SQLite has a single unnamed schema;
// schema qualifiers are accepted and ignored. Dependency discovery covers
// foreign keys via pragma_foreign_key_list; views and triggers come from
// sqlite_master.
type sqliteDialect struct{}

func (sqliteDialect) exists(ctx context.Context, db *gorm.DB, ref ElementRef) (bool, error) {
	var query string
	var args []any
	switch ref.Type {
	case schema.ElementTable:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`
		args = []any{ref.Name}
	case schema.ElementColumn:
		query = `SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`
		args = []any{ref.Table, ref.Name}
	case schema.ElementIndex:
		query = `SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = ?`
		args = []any{ref.Name}
	case schema.ElementConstraint:
		// SQLite does not track named constraints in the catalog.
		return false, fmt.Errorf("constraint lookup is not supported on sqlite")
	default:
		return false, fmt.Errorf("unsupported element type %q", ref.Type)
	}

	var count int64
	if err := db.WithContext(ctx).Raw(query, args...).Scan(&count).Error; err != nil {
		return false, fmt.Errorf("check existence of %s %s: %w", ref.Type, ref.Name, err)
	}
	return count > 0, nil
}

func (sqliteDialect) dependencies(ctx context.Context, db *gorm.DB, ref ElementRef) ([]schema.Dependency, error) {
	if ref.Type == schema.ElementIndex || ref.Type == schema.ElementConstraint {
		return nil, nil
	}
	targetTable := ref.Name
	if ref.Type == schema.ElementColumn {
		targetTable = ref.Table
	}

	var deps []schema.Dependency

	// Walk every other table's foreign key list looking at the target.
	tableRows, err := db.WithContext(ctx).
		Raw(`SELECT name FROM sqlite_master WHERE type = 'table' AND name <> ?`, targetTable).Rows()
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer tableRows.Close()

	var tables []string
	for tableRows.Next() {
		var name string
		if err := tableRows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	if err := tableRows.Err(); err != nil {
		return nil, err
	}

	for _, tbl := range tables {
		var count int64
		err := db.WithContext(ctx).
			Raw(`SELECT COUNT(*) FROM pragma_foreign_key_list(?) WHERE "table" = ?`, tbl, targetTable).
			Scan(&count).Error
		if err != nil {
			return nil, fmt.Errorf("inspect foreign keys of %s: %w", tbl, err)
		}
		if count > 0 {
			deps = append(deps, schema.Dependency{
				Type:            "foreign_key",
				Name:            fmt.Sprintf("fk_%s_%s", tbl, targetTable),
				DependentObject: tbl,
				Impact:          schema.ImpactHigh,
			})
		}
	}

	// Views and triggers mentioning the table.
	objRows, err := db.WithContext(ctx).
		Raw(`SELECT type, name, COALESCE(sql, '') FROM sqlite_master WHERE type IN ('view', 'trigger')`).Rows()
	if err != nil {
		return nil, fmt.Errorf("list views and triggers: %w", err)
	}
	defer objRows.Close()

	for objRows.Next() {
		var objType, name, sql string
		if err := objRows.Scan(&objType, &name, &sql); err != nil {
			return nil, err
		}
		if strings.Contains(sql, targetTable) {
			deps = append(deps, schema.Dependency{
				Type:            objType,
				Name:            name,
				DependentObject: name,
				Impact:          schema.ImpactMedium,
			})
		}
	}
	return deps, objRows.Err()
}

func (sqliteDialect) rowCount(ctx context.Context, db *gorm.DB, _, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s`, QuoteIdentifier(table))
	if err := db.WithContext(ctx).Raw(query).Scan(&count).Error; err != nil {
		return 0, fmt.Errorf("count rows of %s: %w", table, err)
	}
	return count, nil
}

func (sqliteDialect) foreignKeys(ctx context.Context, db *gorm.DB, _, table string) ([]ForeignKeyDef, error) {
	rows, err := db.WithContext(ctx).
		Raw(`SELECT id, "table" FROM pragma_foreign_key_list(?)`, table).Rows()
	if err != nil {
		return nil, fmt.Errorf("list foreign keys of %s: %w", table, err)
	}
	defer rows.Close()

	var defs []ForeignKeyDef
	for rows.Next() {
		var id int
		var referenced string
		if err := rows.Scan(&id, &referenced); err != nil {
			return nil, err
		}
		defs = append(defs, ForeignKeyDef{
			Name:       fmt.Sprintf("fk_%s_%d", table, id),
			Table:      table,
			Definition: fmt.Sprintf("FOREIGN KEY REFERENCES %s", referenced),
		})
	}
	return defs, rows.Err()
}

func (sqliteDialect) explain(ctx context.Context, db *gorm.DB, sql string) error {
	if err := db.WithContext(ctx).Exec("EXPLAIN " + sql).Error; err != nil {
		return fmt.Errorf("explain dry run: %w", err)
	}
	return nil
}
