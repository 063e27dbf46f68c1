package sqlgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaops/deprec/pkg/schema"
)

func element(t schema.ElementType) schema.DeprecatedElement {
	return schema.DeprecatedElement{
		Type:           t,
		OriginalName:   "user_preferences",
		DeprecatedName: "user_preferences_deprecated_20250928_unu",
		Schema:         "public",
		Table:          "users",
	}
}

func TestTableRenameSQL(t *testing.T) {
	s, err := ForType(schema.ElementTable)
	require.NoError(t, err)

	e := element(schema.ElementTable)
	assert.Equal(t,
		`ALTER TABLE "public"."user_preferences" RENAME TO "user_preferences_deprecated_20250928_unu"`,
		s.MigrationSQL(e))
	assert.Equal(t,
		`ALTER TABLE "public"."user_preferences_deprecated_20250928_unu" RENAME TO "user_preferences"`,
		s.RollbackSQL(e))
	assert.Equal(t, schema.RollbackRename, s.RollbackType())
}

func TestColumnRenameSQL(t *testing.T) {
	s, err := ForType(schema.ElementColumn)
	require.NoError(t, err)

	e := element(schema.ElementColumn)
	e.OriginalName = "legacy_flags"
	e.DeprecatedName = "legacy_flags_deprecated_20250928_unu"

	assert.Equal(t,
		`ALTER TABLE "public"."users" RENAME COLUMN "legacy_flags" TO "legacy_flags_deprecated_20250928_unu"`,
		s.MigrationSQL(e))
	assert.Equal(t,
		`ALTER TABLE "public"."users" RENAME COLUMN "legacy_flags_deprecated_20250928_unu" TO "legacy_flags"`,
		s.RollbackSQL(e))
}

func TestIndexRenameSQL(t *testing.T) {
	s, err := ForType(schema.ElementIndex)
	require.NoError(t, err)

	e := element(schema.ElementIndex)
	e.OriginalName = "idx_users_email"
	e.DeprecatedName = "idx_users_email_deprecated_20250928_perf"

	assert.Equal(t,
		`ALTER INDEX "public"."idx_users_email" RENAME TO "idx_users_email_deprecated_20250928_perf"`,
		s.MigrationSQL(e))
	assert.Equal(t, schema.RollbackCreateIndex, s.RollbackType())
}

func TestConstraintRenameSQL(t *testing.T) {
	s, err := ForType(schema.ElementConstraint)
	require.NoError(t, err)

	e := element(schema.ElementConstraint)
	e.OriginalName = "fk_users_org"
	e.DeprecatedName = "fk_users_org_deprecated_20250928_refa"

	assert.Equal(t,
		`ALTER TABLE "public"."users" RENAME CONSTRAINT "fk_users_org" TO "fk_users_org_deprecated_20250928_refa"`,
		s.MigrationSQL(e))
	assert.Equal(t, schema.RollbackCreateConstraint, s.RollbackType())
}

func TestRollbackIsStructuralInverse(t *testing.T) {
	for _, kind := range []schema.ElementType{
		schema.ElementTable, schema.ElementColumn, schema.ElementIndex, schema.ElementConstraint,
	} {
		s, err := ForType(kind)
		require.NoError(t, err)

		e := element(kind)
		inverse := e
		inverse.OriginalName, inverse.DeprecatedName = e.DeprecatedName, e.OriginalName

		assert.Equal(t, s.MigrationSQL(inverse), s.RollbackSQL(e), "kind %s", kind)
	}
}

func TestValidationSQLChecksBothNames(t *testing.T) {
	s, err := ForType(schema.ElementTable)
	require.NoError(t, err)

	e := element(schema.ElementTable)
	v := s.ValidationSQL(e)
	assert.Contains(t, v, "information_schema.tables")
	assert.Contains(t, v, e.DeprecatedName)
	assert.Contains(t, v, "NOT EXISTS")

	rv := s.RollbackValidationSQL(e)
	assert.Contains(t, rv, e.OriginalName)
}

func TestForTypeRejectsUnknownKind(t *testing.T) {
	_, err := ForType(schema.ElementType("sequence"))
	require.Error(t, err)

	var verr *schema.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "type", verr.Field)
}
