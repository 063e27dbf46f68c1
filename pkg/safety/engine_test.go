package safety

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/schema"
)

// stubIntrospector is an in-memory catalog for unit tests.
type stubIntrospector struct {
	existing    map[string]bool
	rowCounts   map[string]int64
	existsCalls int
	failFirst   int // number of leading Exists calls that error
}

func (s *stubIntrospector) Exists(_ context.Context, ref catalog.ElementRef) (bool, error) {
	s.existsCalls++
	if s.existsCalls <= s.failFirst {
		return false, errors.New("transient catalog error")
	}
	return s.existing[ref.Name], nil
}

func (s *stubIntrospector) Dependencies(context.Context, catalog.ElementRef) ([]schema.Dependency, error) {
	return nil, nil
}

func (s *stubIntrospector) RowCount(_ context.Context, _, table string) (int64, error) {
	return s.rowCounts[table], nil
}

func (s *stubIntrospector) ForeignKeys(context.Context, string, string) ([]catalog.ForeignKeyDef, error) {
	return nil, nil
}

func (s *stubIntrospector) Explain(context.Context, string) error { return nil }

func cleanTarget(name string) Target {
	return Target{
		Element: schema.Candidate{
			Type:   schema.ElementTable,
			Name:   name,
			Schema: "public",
			Reason: schema.ReasonUnused,
			Usage: schema.UsageData{
				ConfidenceScore: 0.95,
				AnalysisDate:    time.Now(),
			},
		},
	}
}

func resultFor(t *testing.T, results []schema.SafetyCheckResult, check string) schema.SafetyCheckResult {
	t.Helper()
	for _, r := range results {
		if r.Check == check {
			return r
		}
	}
	t.Fatalf("no result for check %s", check)
	return schema.SafetyCheckResult{}
}

func TestCheckCleanElementPassesEverything(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"user_preferences": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	results, err := engine.Check(context.Background(), []Target{cleanTarget("user_preferences")}, Options{Environment: "staging"})
	require.NoError(t, err)

	for _, r := range results {
		assert.True(t, r.Passed, "check %s should pass: %s", r.Check, r.Message)
	}
	assert.Empty(t, CriticalFailures(results))
	assert.Empty(t, Warnings(results))
}

func TestCheckMissingElementIsCritical(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{}}
	engine := NewEngine(in, DefaultConfig(), nil)

	results, err := engine.Check(context.Background(), []Target{cleanTarget("ghost")}, Options{Environment: "staging"})
	require.NoError(t, err)

	existence := resultFor(t, results, CheckExistence)
	assert.False(t, existence.Passed)
	assert.Equal(t, schema.SeverityCritical, existence.Severity)
	assert.Len(t, CriticalFailures(results), 1)
}

func TestCheckLowConfidenceIsHighSeverityWarning(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"orders": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	target := cleanTarget("orders")
	target.Element.Usage.ConfidenceScore = 0.5

	results, err := engine.Check(context.Background(), []Target{target}, Options{Environment: "staging"})
	require.NoError(t, err)

	confidence := resultFor(t, results, CheckConfidence)
	assert.False(t, confidence.Passed)
	assert.Equal(t, schema.SeverityHigh, confidence.Severity)
	assert.Empty(t, CriticalFailures(results), "high severity does not block")
	assert.NotEmpty(t, Warnings(results))
}

func TestCheckRecentAccessFails(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"orders": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	recent := time.Now().Add(-24 * time.Hour)
	target := cleanTarget("orders")
	target.Element.Usage.LastAccessed = &recent

	results, err := engine.Check(context.Background(), []Target{target}, Options{Environment: "staging"})
	require.NoError(t, err)

	recency := resultFor(t, results, CheckRecency)
	assert.False(t, recency.Passed)
	assert.Equal(t, schema.SeverityHigh, recency.Severity)
}

func TestCheckOldAccessPasses(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"orders": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	old := time.Now().Add(-90 * 24 * time.Hour)
	target := cleanTarget("orders")
	target.Element.Usage.LastAccessed = &old

	results, err := engine.Check(context.Background(), []Target{target}, Options{Environment: "staging"})
	require.NoError(t, err)
	assert.True(t, resultFor(t, results, CheckRecency).Passed)
}

func TestCheckHighImpactDependencyIsCritical(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"vendors": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	target := cleanTarget("vendors")
	target.Dependencies = []schema.Dependency{
		{Type: "foreign_key", Name: "fk_batches_vendor", DependentObject: "batches", Impact: schema.ImpactHigh},
		{Type: "foreign_key", Name: "fk_orders_vendor", DependentObject: "orders", Impact: schema.ImpactHigh},
	}

	results, err := engine.Check(context.Background(), []Target{target}, Options{Environment: "staging"})
	require.NoError(t, err)

	deps := resultFor(t, results, CheckDependencies)
	assert.False(t, deps.Passed)
	assert.Equal(t, schema.SeverityCritical, deps.Severity)
}

func TestCheckMediumImpactDependencyIsHigh(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"vendors": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	target := cleanTarget("vendors")
	target.Dependencies = []schema.Dependency{
		{Type: "view", Name: "vendor_names", DependentObject: "vendor_names", Impact: schema.ImpactMedium},
	}

	results, err := engine.Check(context.Background(), []Target{target}, Options{Environment: "staging"})
	require.NoError(t, err)

	deps := resultFor(t, results, CheckDependencies)
	assert.False(t, deps.Passed)
	assert.Equal(t, schema.SeverityHigh, deps.Severity)
}

func TestCheckDataIntegrityRequiresBackupForNonEmptyTables(t *testing.T) {
	in := &stubIntrospector{
		existing:  map[string]bool{"vendors": true},
		rowCounts: map[string]int64{"vendors": 1200},
	}
	engine := NewEngine(in, DefaultConfig(), nil)

	results, err := engine.Check(context.Background(), []Target{cleanTarget("vendors")}, Options{Environment: "staging"})
	require.NoError(t, err)
	integrity := resultFor(t, results, CheckDataIntegrity)
	assert.False(t, integrity.Passed)
	assert.Equal(t, schema.SeverityMedium, integrity.Severity)

	results, err = engine.Check(context.Background(), []Target{cleanTarget("vendors")},
		Options{Environment: "staging", BackupValidated: true})
	require.NoError(t, err)
	assert.True(t, resultFor(t, results, CheckDataIntegrity).Passed)
}

func TestCheckProductionRequiresApproval(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"orders": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	results, err := engine.Check(context.Background(), []Target{cleanTarget("orders")}, Options{Environment: "production"})
	require.NoError(t, err)
	env := resultFor(t, results, CheckEnvironment)
	assert.False(t, env.Passed)
	assert.Equal(t, schema.SeverityCritical, env.Severity)

	results, err = engine.Check(context.Background(), []Target{cleanTarget("orders")},
		Options{Environment: "production", ApprovalSatisfied: true})
	require.NoError(t, err)
	assert.True(t, resultFor(t, results, CheckEnvironment).Passed)
}

func TestCheckRetriesTransientCatalogErrors(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"orders": true}, failFirst: 1}
	engine := NewEngine(in, DefaultConfig(), nil)

	results, err := engine.Check(context.Background(), []Target{cleanTarget("orders")}, Options{Environment: "staging"})
	require.NoError(t, err)
	assert.True(t, resultFor(t, results, CheckExistence).Passed)
	assert.Equal(t, 2, in.existsCalls)
}

func TestCheckManyElementsDeterministicOrder(t *testing.T) {
	in := &stubIntrospector{existing: map[string]bool{"a": true, "b": true, "c": true, "d": true, "e": true, "f": true}}
	engine := NewEngine(in, DefaultConfig(), nil)

	targets := []Target{
		cleanTarget("f"), cleanTarget("b"), cleanTarget("d"),
		cleanTarget("a"), cleanTarget("e"), cleanTarget("c"),
	}
	results, err := engine.Check(context.Background(), targets, Options{Environment: "staging"})
	require.NoError(t, err)

	var prev schema.SafetyCheckResult
	for i, r := range results {
		if i > 0 {
			lessOrEq := prev.Element < r.Element || (prev.Element == r.Element && prev.Check <= r.Check)
			assert.True(t, lessOrEq, "results not ordered at %d", i)
		}
		prev = r
	}
}
