package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schemaops/deprec/pkg/schema"
)

const testPolicies = `
policies:
  - id: prod-high-risk
    displayName: Production high-risk deprecations
    enabled: true
    selector:
      environments: [production]
      riskLevels: [high]
    requiredCount: 2
    allowedRoles: [dba, platform-lead]
  - id: disabled-policy
    displayName: Disabled
    enabled: false
    selector:
      environments: [production]
  - id: security-any
    displayName: Security-motivated deprecations
    enabled: true
    selector:
      reasons: [security]
    requiredCount: 1
`

func writePolicies(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadMissingFileYieldsEmptyEvaluator(t *testing.T) {
	ev, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	res := ev.Evaluate("production", schema.RiskHigh, schema.ElementTable, schema.ReasonUnused)
	assert.False(t, res.RequiresApproval)
}

func TestEvaluateMatchesFirstEnabledPolicy(t *testing.T) {
	ev, err := Load(writePolicies(t, testPolicies))
	require.NoError(t, err)

	res := ev.Evaluate("production", schema.RiskHigh, schema.ElementTable, schema.ReasonUnused)
	assert.True(t, res.RequiresApproval)
	assert.Equal(t, "prod-high-risk", res.PolicyID)
	assert.Equal(t, 2, res.RequiredCount)
	assert.Equal(t, []string{"dba", "platform-lead"}, res.AllowedRoles)
}

func TestEvaluateSkipsDisabledPolicies(t *testing.T) {
	ev, err := Load(writePolicies(t, testPolicies))
	require.NoError(t, err)

	// Disabled production catch-all is skipped; low risk in production
	// matches nothing.
	res := ev.Evaluate("production", schema.RiskLow, schema.ElementIndex, schema.ReasonUnused)
	assert.False(t, res.RequiresApproval)
}

func TestEvaluateReasonSelector(t *testing.T) {
	ev, err := Load(writePolicies(t, testPolicies))
	require.NoError(t, err)

	res := ev.Evaluate("staging", schema.RiskLow, schema.ElementColumn, schema.ReasonSecurity)
	assert.True(t, res.RequiresApproval)
	assert.Equal(t, "security-any", res.PolicyID)
	assert.Equal(t, 1, res.RequiredCount)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writePolicies(t, "policies: [broken"))
	assert.Error(t, err)
}

func TestWatcherReloadSwapsEvaluator(t *testing.T) {
	path := writePolicies(t, testPolicies)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	res := w.Evaluator().Evaluate("production", schema.RiskHigh, schema.ElementTable, schema.ReasonUnused)
	require.True(t, res.RequiresApproval)

	// Rewrite with no policies and trigger a reload directly.
	require.NoError(t, os.WriteFile(path, []byte("policies: []\n"), 0o644))
	w.reload()

	res = w.Evaluator().Evaluate("production", schema.RiskHigh, schema.ElementTable, schema.ReasonUnused)
	assert.False(t, res.RequiresApproval)
}

func TestWatcherReloadKeepsPreviousOnParseError(t *testing.T) {
	path := writePolicies(t, testPolicies)
	w, err := NewWatcher(path, nil)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("policies: [broken"), 0o644))
	w.reload()

	res := w.Evaluator().Evaluate("production", schema.RiskHigh, schema.ElementTable, schema.ReasonUnused)
	assert.True(t, res.RequiresApproval, "previous policies remain in effect")
}

func TestIsProduction(t *testing.T) {
	assert.True(t, IsProduction("production"))
	assert.True(t, IsProduction("prod"))
	assert.False(t, IsProduction("staging"))
}
