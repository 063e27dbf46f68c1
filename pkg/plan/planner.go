// Package plan turns deprecation candidates that pass their safety checks
// into executable deprecation plans: type-specific rename SQL, the paired
// rollback plan, and risk metadata.
package plan

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/naming"
	"github.com/schemaops/deprec/pkg/policy"
	"github.com/schemaops/deprec/pkg/rollback"
	"github.com/schemaops/deprec/pkg/safety"
	"github.com/schemaops/deprec/pkg/schema"
	"github.com/schemaops/deprec/pkg/sqlgen"
)

// Options carries per-plan context.
type Options struct {
	Environment       string
	CreatedBy         string
	ApprovalSatisfied bool
	BackupValidated   bool
}

// Planner assembles deprecation plans.
type Planner struct {
	introspector catalog.Introspector
	safety       *safety.Engine
	rollback     *rollback.Manager
	policies     *policy.Evaluator
	lifecycle    *schema.Lifecycle
	logger       *slog.Logger
	now          func() time.Time
}

// NewPlanner creates a planner. policies may be nil; risk-derived approval
// still applies.
func NewPlanner(introspector catalog.Introspector, safetyEngine *safety.Engine, rollbackManager *rollback.Manager, policies *policy.Evaluator, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{
		introspector: introspector,
		safety:       safetyEngine,
		rollback:     rollbackManager,
		policies:     policies,
		lifecycle:    schema.NewLifecycle(),
		logger:       logger,
		now:          time.Now,
	}
}

// Plan builds a deprecation plan for the candidate batch. It fails closed:
// input validation happens before any catalog access, and a critical safety
// check failure aborts before any plan object is materialized. High and
// medium failures are attached to the plan as warnings.
func (p *Planner) Plan(ctx context.Context, candidates []schema.Candidate, opts Options) (*schema.DeprecationPlan, error) {
	if len(candidates) == 0 {
		return nil, &schema.ValidationError{Field: "candidates", Message: "batch must not be empty"}
	}
	for _, c := range candidates {
		if err := validateCandidate(c); err != nil {
			return nil, err
		}
	}

	now := p.now()
	elements := make([]schema.DeprecatedElement, 0, len(candidates))
	targets := make([]safety.Target, 0, len(candidates))

	for _, c := range candidates {
		deps, err := p.introspector.Dependencies(ctx, catalog.RefForCandidate(c))
		if err != nil {
			return nil, fmt.Errorf("resolve dependencies for %s: %w", c.QualifiedName(), err)
		}

		deprecatedName, err := naming.Generate(c.Name, c.Reason, now)
		if err != nil {
			return nil, err
		}

		el := schema.DeprecatedElement{
			Type:            c.Type,
			OriginalName:    c.Name,
			DeprecatedName:  deprecatedName,
			Schema:          c.Schema,
			Table:           c.Table,
			DeprecationDate: now,
			Reason:          c.Reason,
			Dependencies:    deps,
			Usage:           c.Usage,
			State:           schema.StateProposed,
		}

		strategy, err := sqlgen.ForType(c.Type)
		if err != nil {
			return nil, err
		}
		el.MigrationSQL = strategy.MigrationSQL(el)
		el.RollbackSQL = strategy.RollbackSQL(el)

		elements = append(elements, el)
		targets = append(targets, safety.Target{Element: c, Dependencies: deps})
	}

	results, err := p.safety.Check(ctx, targets, safety.Options{
		Environment:       opts.Environment,
		ApprovalSatisfied: opts.ApprovalSatisfied,
		BackupValidated:   opts.BackupValidated,
	})
	if err != nil {
		return nil, fmt.Errorf("safety checks: %w", err)
	}
	if critical := safety.CriticalFailures(results); len(critical) > 0 {
		return nil, &schema.SafetyCheckFailure{Severity: schema.SeverityCritical, Results: critical}
	}

	// All critical gates passed: elements advance to planned.
	for i := range elements {
		if err := p.lifecycle.ValidateTransition(elements[i].State, schema.StatePlanned); err != nil {
			return nil, err
		}
		elements[i].State = schema.StatePlanned
	}

	riskLevel := batchRisk(elements)
	approvalRequired := riskLevel != schema.RiskLow
	if p.policies != nil && !approvalRequired {
		for _, el := range elements {
			if p.policies.Evaluate(opts.Environment, riskLevel, el.Type, el.Reason).RequiresApproval {
				approvalRequired = true
				break
			}
		}
	}

	planID := uuid.New().String()
	rollbackPlan, err := p.rollback.CreatePlan(planID, elements)
	if err != nil {
		return nil, fmt.Errorf("synthesize rollback plan: %w", err)
	}

	dp := &schema.DeprecationPlan{
		ID:           planID,
		Elements:     elements,
		Rollback:     rollbackPlan,
		SafetyChecks: results,
		Metadata: schema.PlanMetadata{
			RiskLevel:        riskLevel,
			ApprovalRequired: approvalRequired,
			CreatedBy:        opts.CreatedBy,
			Environment:      opts.Environment,
			CreatedAt:        now,
		},
	}

	p.logger.Info("deprecation plan created",
		"planId", dp.ID,
		"elements", len(dp.Elements),
		"riskLevel", riskLevel,
		"approvalRequired", approvalRequired,
		"warnings", len(safety.Warnings(results)))
	return dp, nil
}

// validateCandidate fails fast on malformed input, before any DB access.
func validateCandidate(c schema.Candidate) error {
	if !c.Type.Valid() {
		return &schema.ValidationError{Field: "type", Value: string(c.Type), Message: "unknown element type"}
	}
	if c.Name == "" {
		return &schema.ValidationError{Field: "name", Message: "must not be empty"}
	}
	if c.Schema == "" {
		return &schema.ValidationError{Field: "schema", Value: c.Name, Message: "must not be empty"}
	}
	if !c.Reason.Valid() {
		return &schema.ValidationError{Field: "reason", Value: string(c.Reason), Message: "unknown deprecation reason"}
	}
	if c.Type != schema.ElementTable && c.Table == "" {
		return &schema.ValidationError{Field: "table", Value: c.Name,
			Message: fmt.Sprintf("%s candidates must name their owning table", c.Type)}
	}
	if score := c.Usage.ConfidenceScore; score < 0 || score > 1 {
		return &schema.ValidationError{Field: "usage.confidenceScore", Value: c.Name,
			Message: fmt.Sprintf("%.3f outside [0,1]", score)}
	}
	return nil
}

// RiskFor classifies a single element: zero dependencies with confidence
// at or above 0.9 is low; any high-impact dependency or confidence below
// 0.7 is high; everything else is medium.
func RiskFor(deps []schema.Dependency, confidence float64) schema.RiskLevel {
	hasHigh := false
	for _, d := range deps {
		if d.Impact == schema.ImpactHigh {
			hasHigh = true
			break
		}
	}
	switch {
	case hasHigh || confidence < 0.7:
		return schema.RiskHigh
	case len(deps) == 0 && confidence >= 0.9:
		return schema.RiskLow
	default:
		return schema.RiskMedium
	}
}

// batchRisk is the highest element risk in the batch.
func batchRisk(elements []schema.DeprecatedElement) schema.RiskLevel {
	risk := schema.RiskLow
	for _, el := range elements {
		r := RiskFor(el.Dependencies, el.Usage.ConfidenceScore)
		switch {
		case r == schema.RiskHigh:
			return schema.RiskHigh
		case r == schema.RiskMedium && risk == schema.RiskLow:
			risk = schema.RiskMedium
		}
	}
	return risk
}
