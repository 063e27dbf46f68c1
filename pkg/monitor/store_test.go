package monitor

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/schemaops/deprec/pkg/schema"
)

func setupStore(t *testing.T) *TelemetryStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	store := NewTelemetryStore(db)
	require.NoError(t, store.AutoMigrate())
	return store
}

func appEvent(name string, at time.Time) schema.AccessEvent {
	return schema.AccessEvent{
		ElementName: name,
		ElementType: schema.ElementTable,
		Source:      schema.AccessSource{Kind: "application", Identifier: "billing-svc"},
		QueryType:   "SELECT",
		Timestamp:   at,
	}
}

func TestTrackIsIdempotent(t *testing.T) {
	store := setupStore(t)
	deprecatedAt := time.Now().Add(-time.Hour)

	require.NoError(t, store.Track("orders_deprecated_20250901_unu", schema.ElementTable, "plan-1", deprecatedAt))
	require.NoError(t, store.Track("orders_deprecated_20250901_unu", schema.ElementTable, "plan-other", time.Now()))

	stats, err := store.ListStats(14 * 24 * time.Hour)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	// First registration wins.
	assert.Equal(t, "plan-1", stats[0].PlanID)
}

func TestAppendBatchUpdatesRollingStats(t *testing.T) {
	store := setupStore(t)
	name := "orders_deprecated_20250901_unu"
	require.NoError(t, store.Track(name, schema.ElementTable, "plan-1", time.Now().Add(-48*time.Hour)))

	first := time.Now().Add(-2 * time.Hour)
	second := time.Now().Add(-time.Hour)
	require.NoError(t, store.AppendBatch([]schema.AccessEvent{
		appEvent(name, first),
		appEvent(name, second),
	}))

	stats, err := store.StatsFor(name, 14*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Equal(t, int64(2), stats.AccessCount)
	require.NotNil(t, stats.LastAccessed)
	assert.WithinDuration(t, second, *stats.LastAccessed, time.Second)
}

func TestStatsForDeduplicatesSources(t *testing.T) {
	store := setupStore(t)
	name := "orders_deprecated_20250901_unu"
	require.NoError(t, store.Track(name, schema.ElementTable, "plan-1", time.Now().Add(-time.Hour)))

	events := []schema.AccessEvent{
		appEvent(name, time.Now()),
		appEvent(name, time.Now()),
		{
			ElementName: name,
			ElementType: schema.ElementTable,
			Source:      schema.AccessSource{Kind: "manual", Identifier: "alice"},
			QueryType:   "SELECT",
			Timestamp:   time.Now(),
		},
	}
	require.NoError(t, store.AppendBatch(events))

	stats, err := store.StatsFor(name, 14*24*time.Hour)
	require.NoError(t, err)
	require.NotNil(t, stats)
	assert.Len(t, stats.AccessSources, 2)
	assert.ElementsMatch(t, []string{"application:billing-svc", "manual:alice"}, stats.AccessSources)
}

func TestStatsForUnknownElement(t *testing.T) {
	store := setupStore(t)
	stats, err := store.StatsFor("never_tracked", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestRemovalCandidatesRespectSoakWindow(t *testing.T) {
	store := setupStore(t)
	window := 14 * 24 * time.Hour

	// Deprecated long ago, never accessed: qualifies.
	require.NoError(t, store.Track("quiet", schema.ElementTable, "p1", time.Now().Add(-30*24*time.Hour)))
	// Deprecated recently: window has not elapsed yet.
	require.NoError(t, store.Track("fresh", schema.ElementTable, "p2", time.Now().Add(-24*time.Hour)))
	// Deprecated long ago but accessed inside the window: disqualified.
	require.NoError(t, store.Track("busy", schema.ElementTable, "p3", time.Now().Add(-30*24*time.Hour)))
	require.NoError(t, store.AppendBatch([]schema.AccessEvent{appEvent("busy", time.Now().Add(-time.Hour))}))

	candidates, err := store.RemovalCandidates(window)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "quiet", candidates[0].ElementName)
	assert.True(t, candidates[0].RemovalCandidate)
}

func TestUntrackRemovesElement(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.Track("gone", schema.ElementColumn, "p1", time.Now()))
	require.NoError(t, store.Untrack("gone"))

	stats, err := store.StatsFor("gone", time.Hour)
	require.NoError(t, err)
	assert.Nil(t, stats)
}

func TestTrendDailyGroupsByDay(t *testing.T) {
	store := setupStore(t)
	name := "orders_deprecated_20250901_unu"
	require.NoError(t, store.Track(name, schema.ElementTable, "p1", time.Now().Add(-72*time.Hour)))

	today := time.Now()
	yesterday := today.AddDate(0, 0, -1)
	require.NoError(t, store.AppendBatch([]schema.AccessEvent{
		appEvent(name, yesterday),
		appEvent(name, yesterday.Add(time.Minute)),
		appEvent(name, today),
	}))

	trend, err := store.TrendDaily(name, 7)
	require.NoError(t, err)
	require.Len(t, trend, 2)
	assert.Equal(t, int64(2), trend[0].Count)
	assert.Equal(t, int64(1), trend[1].Count)
}

func TestExportCSVIncludesHeader(t *testing.T) {
	store := setupStore(t)
	name := "orders_deprecated_20250901_unu"
	require.NoError(t, store.Track(name, schema.ElementTable, "p1", time.Now().Add(-time.Hour)))
	require.NoError(t, store.AppendBatch([]schema.AccessEvent{appEvent(name, time.Now())}))

	var buf bytes.Buffer
	require.NoError(t, store.ExportCSV(&buf, name, 10))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "element_name", rows[0][0])
	assert.Equal(t, name, rows[1][0])
}

func TestAlertsNewestFirst(t *testing.T) {
	store := setupStore(t)
	require.NoError(t, store.AppendAlert(&AlertRecord{
		ID: "a1", ElementName: "el", Severity: AlertInfo, RaisedAt: time.Now().Add(-time.Hour),
	}))
	require.NoError(t, store.AppendAlert(&AlertRecord{
		ID: "a2", ElementName: "el", Severity: AlertWarning, RaisedAt: time.Now(),
	}))

	alerts, err := store.Alerts(10)
	require.NoError(t, err)
	require.Len(t, alerts, 2)
	assert.Equal(t, "a2", alerts[0].ID)
}
