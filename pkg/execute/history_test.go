package execute

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupHistory(t *testing.T) *HistoryStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewHistoryStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func record(id, planID, op, status string, startedAt time.Time) *MigrationRecord {
	return &MigrationRecord{
		ID:          id,
		PlanID:      planID,
		Operation:   op,
		Status:      status,
		SQLChecksum: Checksum([]string{"ALTER TABLE t RENAME TO u"}),
		Principal:   "alice",
		StartedAt:   startedAt,
		FinishedAt:  startedAt.Add(time.Second),
	}
}

func TestListByPlanOldestFirst(t *testing.T) {
	store := setupHistory(t)
	base := time.Now().Add(-time.Hour)

	require.NoError(t, store.Record(record("r2", "plan-1", "rollback", StatusRolledBack, base.Add(10*time.Minute))))
	require.NoError(t, store.Record(record("r1", "plan-1", "migration", StatusApplied, base)))
	require.NoError(t, store.Record(record("r3", "plan-other", "migration", StatusApplied, base)))

	recs, err := store.ListByPlan("plan-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r1", recs[0].ID)
	assert.Equal(t, "r2", recs[1].ID)
}

func TestListRecentNewestFirst(t *testing.T) {
	store := setupHistory(t)
	base := time.Now().Add(-time.Hour)

	require.NoError(t, store.Record(record("r1", "p1", "migration", StatusApplied, base)))
	require.NoError(t, store.Record(record("r2", "p2", "migration", StatusApplied, base.Add(time.Minute))))
	require.NoError(t, store.Record(record("r3", "p3", "rollback", StatusManualIntervention, base.Add(2*time.Minute))))

	recs, err := store.ListRecent(2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "r3", recs[0].ID)
	assert.Equal(t, StatusManualIntervention, recs[0].Status)
	assert.Equal(t, "r2", recs[1].ID)
}

func TestChecksumIsOrderSensitive(t *testing.T) {
	a := Checksum([]string{"ALTER TABLE a RENAME TO b", "ALTER TABLE c RENAME TO d"})
	b := Checksum([]string{"ALTER TABLE c RENAME TO d", "ALTER TABLE a RENAME TO b"})

	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
	assert.Equal(t, a, Checksum([]string{"ALTER TABLE a RENAME TO b", "ALTER TABLE c RENAME TO d"}))
}
