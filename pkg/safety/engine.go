// Package safety runs the read-only check battery that gates deprecation
// planning. Checks never mutate the database; they are the only phase of
// the engine where retries are permitted.
package safety

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/policy"
	"github.com/schemaops/deprec/pkg/schema"
)

// Check names, stable for operators and tests.
const (
	CheckExistence     = "existence"
	CheckConfidence    = "confidence_threshold"
	CheckRecency       = "recency"
	CheckDependencies  = "dependency_impact"
	CheckDataIntegrity = "data_integrity"
	CheckEnvironment   = "environment_policy"
)

// Options carries per-run context for the check battery.
type Options struct {
	Environment string
	// ApprovalSatisfied marks that the upstream approval workflow signed
	// off, which clears the production environment gate.
	ApprovalSatisfied bool
	// BackupValidated marks that a backup validation passed, which clears
	// the data integrity check for non-empty tables.
	BackupValidated bool
}

// Target is one element to check, with its dependencies already resolved by
// the planner's catalog pass.
type Target struct {
	Element      schema.Candidate
	Dependencies []schema.Dependency
}

// Engine runs safety checks concurrently across elements.
type Engine struct {
	introspector catalog.Introspector
	cfg          Config
	logger       *slog.Logger
	now          func() time.Time
}

// NewEngine creates a safety check engine.
func NewEngine(introspector catalog.Introspector, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{introspector: introspector, cfg: cfg, logger: logger, now: time.Now}
}

// Check runs the full battery over all targets, fanning out across elements
// up to the configured concurrency limit. All results, passing and failing,
// are returned in deterministic order (by element, then check).
func (e *Engine) Check(ctx context.Context, targets []Target, opts Options) ([]schema.SafetyCheckResult, error) {
	var mu sync.Mutex
	var all []schema.SafetyCheckResult

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.cfg.Concurrency)

	for _, target := range targets {
		target := target
		g.Go(func() error {
			results, err := e.checkOne(gctx, target, opts)
			if err != nil {
				return err
			}
			mu.Lock()
			all = append(all, results...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Element != all[j].Element {
			return all[i].Element < all[j].Element
		}
		return all[i].Check < all[j].Check
	})

	e.logger.Info("safety checks completed",
		"elements", len(targets),
		"results", len(all),
		"criticalFailures", len(CriticalFailures(all)))
	return all, nil
}

// checkOne runs every check for a single element.
func (e *Engine) checkOne(ctx context.Context, target Target, opts Options) ([]schema.SafetyCheckResult, error) {
	el := target.Element
	name := el.QualifiedName()

	existence, err := e.checkExistence(ctx, el)
	if err != nil {
		return nil, err
	}

	results := []schema.SafetyCheckResult{
		existence,
		e.checkConfidence(el, name),
		e.checkRecency(el, name),
		e.checkDependencies(target, name),
		e.checkEnvironment(name, opts),
	}

	// Data integrity only applies to tables, and only when the table is
	// actually there to count.
	if el.Type == schema.ElementTable && existence.Passed {
		integrity, err := e.checkDataIntegrity(ctx, el, name, opts)
		if err != nil {
			return nil, err
		}
		results = append(results, integrity)
	}

	return results, nil
}

func (e *Engine) checkExistence(ctx context.Context, el schema.Candidate) (schema.SafetyCheckResult, error) {
	ref := catalog.RefForCandidate(el)
	name := el.QualifiedName()

	var exists bool
	var err error
	for attempt := 0; attempt < e.cfg.RetryAttempts; attempt++ {
		exists, err = e.introspector.Exists(ctx, ref)
		if err == nil {
			break
		}
	}
	if err != nil {
		return schema.SafetyCheckResult{}, fmt.Errorf("existence check for %s: %w", name, err)
	}

	res := schema.SafetyCheckResult{
		Check:    CheckExistence,
		Element:  name,
		Severity: schema.SeverityCritical,
		Passed:   exists,
	}
	if exists {
		res.Message = fmt.Sprintf("%s %s exists", el.Type, name)
	} else {
		res.Message = fmt.Sprintf("%s %s not found in catalog", el.Type, name)
	}
	return res, nil
}

func (e *Engine) checkConfidence(el schema.Candidate, name string) schema.SafetyCheckResult {
	score := el.Usage.ConfidenceScore
	res := schema.SafetyCheckResult{
		Check:    CheckConfidence,
		Element:  name,
		Severity: schema.SeverityHigh,
		Passed:   score >= e.cfg.MinConfidence,
	}
	if res.Passed {
		res.Message = fmt.Sprintf("confidence %.2f meets minimum %.2f", score, e.cfg.MinConfidence)
	} else {
		res.Message = fmt.Sprintf("confidence %.2f below minimum %.2f", score, e.cfg.MinConfidence)
	}
	return res
}

func (e *Engine) checkRecency(el schema.Candidate, name string) schema.SafetyCheckResult {
	res := schema.SafetyCheckResult{
		Check:    CheckRecency,
		Element:  name,
		Severity: schema.SeverityHigh,
		Passed:   true,
		Message:  "no access recorded inside the recency window",
	}
	if el.Usage.LastAccessed == nil {
		return res
	}
	age := e.now().Sub(*el.Usage.LastAccessed)
	if age < e.cfg.RecencyWindow {
		res.Passed = false
		res.Message = fmt.Sprintf("last accessed %s ago, inside the %s recency window",
			age.Round(time.Hour), e.cfg.RecencyWindow)
	}
	return res
}

func (e *Engine) checkDependencies(target Target, name string) schema.SafetyCheckResult {
	deps := target.Dependencies
	res := schema.SafetyCheckResult{
		Check:   CheckDependencies,
		Element: name,
	}
	switch {
	case len(deps) == 0:
		res.Severity = schema.SeverityLow
		res.Passed = true
		res.Message = "no dependent objects"
	case hasImpact(deps, schema.ImpactHigh):
		res.Severity = schema.SeverityCritical
		res.Passed = false
		res.Message = fmt.Sprintf("%d dependent object(s), including high-impact: %s", len(deps), describeDeps(deps))
	case hasImpact(deps, schema.ImpactMedium):
		res.Severity = schema.SeverityHigh
		res.Passed = false
		res.Message = fmt.Sprintf("%d dependent object(s): %s", len(deps), describeDeps(deps))
	default:
		res.Severity = schema.SeverityMedium
		res.Passed = false
		res.Message = fmt.Sprintf("%d low-impact dependent object(s): %s", len(deps), describeDeps(deps))
	}
	return res
}

func (e *Engine) checkDataIntegrity(ctx context.Context, el schema.Candidate, name string, opts Options) (schema.SafetyCheckResult, error) {
	var rows int64
	var err error
	for attempt := 0; attempt < e.cfg.RetryAttempts; attempt++ {
		rows, err = e.introspector.RowCount(ctx, el.Schema, el.Name)
		if err == nil {
			break
		}
	}
	if err != nil {
		return schema.SafetyCheckResult{}, fmt.Errorf("row count for %s: %w", name, err)
	}

	res := schema.SafetyCheckResult{
		Check:    CheckDataIntegrity,
		Element:  name,
		Severity: schema.SeverityMedium,
		Passed:   true,
	}
	switch {
	case rows == 0:
		res.Message = "table is empty"
	case opts.BackupValidated:
		res.Message = fmt.Sprintf("table holds %d row(s), backup validated", rows)
	default:
		res.Passed = false
		res.Message = fmt.Sprintf("table holds %d row(s) and no validated backup was provided", rows)
	}
	return res, nil
}

func (e *Engine) checkEnvironment(name string, opts Options) schema.SafetyCheckResult {
	res := schema.SafetyCheckResult{
		Check:    CheckEnvironment,
		Element:  name,
		Severity: schema.SeverityCritical,
		Passed:   true,
		Message:  fmt.Sprintf("environment %q does not gate deprecation", opts.Environment),
	}
	if policy.IsProduction(opts.Environment) && !opts.ApprovalSatisfied {
		res.Passed = false
		res.Message = "production environment requires a satisfied approval before planning"
	} else if policy.IsProduction(opts.Environment) {
		res.Message = "production approval satisfied"
	}
	return res
}

// CriticalFailures filters results down to failing critical checks.
func CriticalFailures(results []schema.SafetyCheckResult) []schema.SafetyCheckResult {
	var out []schema.SafetyCheckResult
	for _, r := range results {
		if !r.Passed && r.Severity == schema.SeverityCritical {
			out = append(out, r)
		}
	}
	return out
}

// Warnings filters results down to non-critical failures. These surface on
// the plan without blocking it.
func Warnings(results []schema.SafetyCheckResult) []schema.SafetyCheckResult {
	var out []schema.SafetyCheckResult
	for _, r := range results {
		if !r.Passed && r.Severity != schema.SeverityCritical {
			out = append(out, r)
		}
	}
	return out
}

func hasImpact(deps []schema.Dependency, impact schema.Impact) bool {
	for _, d := range deps {
		if d.Impact == impact {
			return true
		}
	}
	return false
}

func describeDeps(deps []schema.Dependency) string {
	parts := make([]string, 0, len(deps))
	for _, d := range deps {
		parts = append(parts, fmt.Sprintf("%s %s (%s impact)", d.Type, d.Name, d.Impact))
	}
	if len(parts) > 3 {
		return fmt.Sprintf("%s and %d more", parts[0], len(parts)-1)
	}
	return strings.Join(parts, ", ")
}
