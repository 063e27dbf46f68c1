package execute

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/schemaops/deprec/pkg/schema"
	"github.com/schemaops/deprec/pkg/sqlgen"
)

func setupExecDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Exec(`CREATE TABLE user_preferences (id INTEGER PRIMARY KEY, theme TEXT)`).Error)
	return db
}

func tableElement(t *testing.T, original, deprecated string) schema.DeprecatedElement {
	t.Helper()
	el := schema.DeprecatedElement{
		Type:           schema.ElementTable,
		OriginalName:   original,
		DeprecatedName: deprecated,
		Schema:         "main",
		Reason:         schema.ReasonUnused,
		State:          schema.StatePlanned,
	}
	strategy, err := sqlgen.ForType(schema.ElementTable)
	require.NoError(t, err)
	el.MigrationSQL = strategy.MigrationSQL(el)
	el.RollbackSQL = strategy.RollbackSQL(el)
	return el
}

func TestExecuteRenamesAndRecordsHistory(t *testing.T) {
	db := setupExecDB(t)
	history := NewHistoryStore(db)
	require.NoError(t, history.AutoMigrate())

	x := NewExecutor(db, history, nil, DefaultConfig(), nil)
	p := &schema.DeprecationPlan{
		ID: "plan-1",
		Elements: []schema.DeprecatedElement{
			tableElement(t, "user_preferences", "user_preferences_deprecated_20250928_unu"),
		},
		Metadata: schema.PlanMetadata{Environment: "staging"},
	}

	result, err := x.Execute(context.Background(), p, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, result.StepsExecuted)
	assert.NotEmpty(t, result.SQLChecksum)

	// The rename took effect and the element advanced to deprecated.
	var count int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		"user_preferences_deprecated_20250928_unu").Scan(&count).Error)
	assert.Equal(t, int64(1), count)
	assert.Equal(t, schema.StateDeprecated, p.Elements[0].State)

	recs, err := history.ListByPlan("plan-1")
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "migration", recs[0].Operation)
	assert.Equal(t, StatusApplied, recs[0].Status)
	assert.Equal(t, "alice", recs[0].Principal)
	assert.Equal(t, result.SQLChecksum, recs[0].SQLChecksum)
}

func TestExecuteAbortsWholePlanOnStepFailure(t *testing.T) {
	db := setupExecDB(t)
	x := NewExecutor(db, nil, nil, DefaultConfig(), nil)

	good := tableElement(t, "user_preferences", "user_preferences_deprecated_20250928_unu")
	bad := tableElement(t, "no_such_table", "no_such_table_deprecated_20250928_unu")
	p := &schema.DeprecationPlan{ID: "plan-2", Elements: []schema.DeprecatedElement{good, bad}}

	_, err := x.Execute(context.Background(), p, "alice")
	require.Error(t, err)

	var execErr *schema.ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "plan-2", execErr.PlanID)
	assert.Equal(t, "alice", execErr.Principal)

	// Transaction rolled back: the first rename was undone too.
	var count int64
	require.NoError(t, db.Raw(
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?`,
		"user_preferences").Scan(&count).Error)
	assert.Equal(t, int64(1), count, "schema must be unchanged after an aborted plan")
	assert.Equal(t, schema.StatePlanned, p.Elements[0].State)
}

func TestExecuteRejectsWrongLifecycleState(t *testing.T) {
	db := setupExecDB(t)
	x := NewExecutor(db, nil, nil, DefaultConfig(), nil)

	el := tableElement(t, "user_preferences", "user_preferences_deprecated_20250928_unu")
	el.State = schema.StateProposed
	p := &schema.DeprecationPlan{ID: "plan-3", Elements: []schema.DeprecatedElement{el}}

	_, err := x.Execute(context.Background(), p, "alice")
	require.Error(t, err)

	var terr *schema.TransitionError
	assert.ErrorAs(t, err, &terr)
}

// The sqlmock test pins the wire-level transaction protocol: a failing
// statement must produce BEGIN, the statement, ROLLBACK, and no COMMIT.
func TestExecuteIssuesRollbackNotCommitOnFailure(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(`ALTER TABLE "public"\."user_preferences" RENAME TO`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	el := tableElement(t, "user_preferences", "user_preferences_deprecated_20250928_unu")
	el.Schema = "public"
	strategy, err := sqlgen.ForType(schema.ElementTable)
	require.NoError(t, err)
	el.MigrationSQL = strategy.MigrationSQL(el)

	x := NewExecutor(db, nil, nil, DefaultConfig(), nil)
	p := &schema.DeprecationPlan{ID: "plan-4", Elements: []schema.DeprecatedElement{el}}

	_, err = x.Execute(context.Background(), p, "alice")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderForMigrationFewestDependentsFirst(t *testing.T) {
	heavy := tableElement(t, "a", "a_deprecated_20250928_unu")
	heavy.Dependencies = []schema.Dependency{
		{Type: "view", Name: "v1"}, {Type: "view", Name: "v2"},
	}
	light := tableElement(t, "b", "b_deprecated_20250928_unu")

	ordered := orderForMigration([]schema.DeprecatedElement{heavy, light})
	assert.Equal(t, "b", ordered[0].OriginalName)
	assert.Equal(t, "a", ordered[1].OriginalName)
}
