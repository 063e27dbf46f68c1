// Package rollback builds, validates, and executes the reverse plans that
// restore original identifiers after a deprecation. Execution is strictly
// all-or-nothing unless partial rollback is explicitly enabled; a failed
// rollback is never retried automatically.
package rollback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/schemaops/deprec/pkg/backup"
	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/execute"
	"github.com/schemaops/deprec/pkg/schema"
	"github.com/schemaops/deprec/pkg/sqlgen"
)

// Config controls rollback behavior.
type Config struct {
	// Timeout bounds a single rollback execution. Default 300s.
	Timeout time.Duration
	// RequireBackup gates execution on a fresh validated backup.
	RequireBackup bool
	// StepEstimate is the per-step duration estimate used for
	// EstimatedDuration on created plans. Default 2s.
	StepEstimate time.Duration
}

// DefaultConfig returns the default rollback configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:      300 * time.Second,
		StepEstimate: 2 * time.Second,
	}
}

// ConfigFromEnv loads config from environment variables.
// DEPREC_ROLLBACK_TIMEOUT_SECONDS, DEPREC_ROLLBACK_REQUIRE_BACKUP
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("DEPREC_ROLLBACK_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	if v := os.Getenv("DEPREC_ROLLBACK_REQUIRE_BACKUP"); v == "true" || v == "1" {
		cfg.RequireBackup = true
	}
	return cfg
}

// ExecuteOptions carries per-execution context.
type ExecuteOptions struct {
	Principal string
	// AllowPartialRollback switches from all-or-nothing to step-scoped
	// transactions with a reported completion count. Off by default.
	AllowPartialRollback bool
}

// TestResult reports whether a rollback plan can execute right now.
type TestResult struct {
	CanExecute bool     `json:"canExecute"`
	Issues     []string `json:"issues,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

// Result summarizes a rollback execution.
type Result struct {
	PlanID         string    `json:"planId"`
	CompletedSteps int       `json:"completedSteps"`
	TotalSteps     int       `json:"totalSteps"`
	SQLChecksum    string    `json:"sqlChecksum"`
	Principal      string    `json:"principal"`
	StartedAt      time.Time `json:"startedAt"`
	FinishedAt     time.Time `json:"finishedAt"`
}

// AlertFunc receives critical rollback failure notifications. Wired to the
// alert system by the caller; may be nil.
type AlertFunc func(ctx context.Context, planID, message string)

// Manager creates, validates, and executes rollback plans.
type Manager struct {
	db           *gorm.DB
	introspector catalog.Introspector
	history      *execute.HistoryStore
	locks        *execute.NamedLocks
	validator    *backup.Validator
	alert        AlertFunc
	cfg          Config
	logger       *slog.Logger
}

// NewManager creates a rollback manager. db, introspector, history,
// validator, and alert are only needed for Test/Execute; a manager built
// for plan synthesis alone may pass nil for all of them.
func NewManager(db *gorm.DB, introspector catalog.Introspector, history *execute.HistoryStore, locks *execute.NamedLocks, validator *backup.Validator, alert AlertFunc, cfg Config, logger *slog.Logger) *Manager {
	if locks == nil {
		locks = execute.NewNamedLocks()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		db:           db,
		introspector: introspector,
		history:      history,
		locks:        locks,
		validator:    validator,
		alert:        alert,
		cfg:          cfg,
		logger:       logger,
	}
}

// CreatePlan synthesizes the reverse plan for a set of deprecated elements.
// Elements are restored in reverse dependency order: the fewer dependents an
// element carries the earlier it is restored, and tables (which may carry
// dependents) are restored last, so no transient constraint violation can
// arise mid-sequence. Pure: no database access.
func (m *Manager) CreatePlan(migrationID string, elements []schema.DeprecatedElement) (*schema.RollbackPlan, error) {
	if len(elements) == 0 {
		return nil, &schema.ValidationError{Field: "elements", Message: "rollback plan needs at least one element"}
	}

	ordered := orderForRollback(elements)
	steps := make([]schema.RollbackStep, 0, len(ordered))
	checks := make([]string, 0, len(ordered))

	for i, el := range ordered {
		strategy, err := sqlgen.ForType(el.Type)
		if err != nil {
			return nil, err
		}
		steps = append(steps, schema.RollbackStep{
			Order:         i + 1,
			SQLType:       strategy.RollbackType(),
			SQL:           el.RollbackSQL,
			Description:   fmt.Sprintf("restore %s %s to %s", el.Type, el.DeprecatedName, el.OriginalName),
			ValidationSQL: strategy.RollbackValidationSQL(el),
			Element:       el.QualifiedName(),
			ElementType:   el.Type,
			Schema:        el.Schema,
			Table:         el.Table,
			FromName:      el.DeprecatedName,
			ToName:        el.OriginalName,
		})
		checks = append(checks,
			fmt.Sprintf("%s %s exists and %s is absent after rollback", el.Type, el.OriginalName, el.DeprecatedName))
	}

	deps := make([]string, 0, len(ordered))
	for _, el := range ordered {
		for _, d := range el.Dependencies {
			deps = append(deps, fmt.Sprintf("%s:%s", d.Type, d.Name))
		}
	}

	return &schema.RollbackPlan{
		ID:                uuid.New().String(),
		MigrationID:       migrationID,
		Steps:             steps,
		EstimatedDuration: time.Duration(len(steps)) * m.cfg.StepEstimate,
		StepDependencies:  deps,
		ValidationChecks:  checks,
	}, nil
}

// Test validates a rollback plan without side effects: for every step the
// deprecated name must still exist, the original name must be free, and the
// step's validation query must pass a non-executing syntax check. Safe to
// call repeatedly.
func (m *Manager) Test(ctx context.Context, p *schema.RollbackPlan) (*TestResult, error) {
	res := &TestResult{}

	for _, step := range p.Steps {
		ref := catalog.ElementRef{Type: step.ElementType, Schema: step.Schema, Table: step.Table, Name: step.FromName}
		exists, err := m.introspector.Exists(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("inspect step %d: %w", step.Order, err)
		}
		if !exists {
			res.Issues = append(res.Issues,
				fmt.Sprintf("step %d: %s %s no longer exists; rollback source is gone", step.Order, step.ElementType, step.FromName))
		}

		ref.Name = step.ToName
		occupied, err := m.introspector.Exists(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("inspect step %d: %w", step.Order, err)
		}
		if occupied {
			res.Issues = append(res.Issues,
				fmt.Sprintf("step %d: original name %s is already taken", step.Order, step.ToName))
		}

		if step.ValidationSQL != "" {
			if err := m.introspector.Explain(ctx, step.ValidationSQL); err != nil {
				res.Warnings = append(res.Warnings,
					fmt.Sprintf("step %d: validation query failed syntax check: %v", step.Order, err))
			}
		}
	}

	res.CanExecute = len(res.Issues) == 0
	return res, nil
}

// Execute restores original identifiers. Default semantics match the
// migration executor: one transaction, per-step post-validation, abort on
// first failure with the database unchanged. With AllowPartialRollback each
// step commits on its own and the result reports how many completed. A
// failure marks the plan as requiring manual intervention in the history
// log and raises a critical alert; it is never auto-retried.
func (m *Manager) Execute(ctx context.Context, p *schema.RollbackPlan, opts ExecuteOptions) (*Result, error) {
	if m.cfg.RequireBackup {
		if m.validator == nil {
			return nil, &schema.ConfigurationError{Field: "rollback.requireBackup", Message: "backup validation required but no validator configured"}
		}
		if err := m.validator.EnsureFresh(ctx); err != nil {
			return nil, fmt.Errorf("pre-rollback backup gate: %w", err)
		}
	}

	test, err := m.Test(ctx, p)
	if err != nil {
		return nil, err
	}
	if !test.CanExecute {
		return nil, fmt.Errorf("rollback plan %s cannot execute: %v", p.ID, test.Issues)
	}

	names := make([]string, 0, len(p.Steps))
	for _, step := range p.Steps {
		names = append(names, step.Element)
	}
	release := m.locks.Acquire(names)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()

	startedAt := time.Now()
	var completed int
	var executed []string

	if opts.AllowPartialRollback {
		completed, executed, err = m.executeStepwise(ctx, p, opts)
	} else {
		completed, executed, err = m.executeAtomic(ctx, p, opts)
	}

	if err != nil {
		m.recordOutcome(p, opts.Principal, execute.StatusManualIntervention, executed, startedAt, err)
		m.raiseAlert(ctx, p.ID, err)
		return nil, err
	}

	if err := m.verifyRestored(ctx, p); err != nil {
		m.recordOutcome(p, opts.Principal, execute.StatusManualIntervention, executed, startedAt, err)
		m.raiseAlert(ctx, p.ID, err)
		return nil, err
	}

	result := &Result{
		PlanID:         p.ID,
		CompletedSteps: completed,
		TotalSteps:     len(p.Steps),
		SQLChecksum:    execute.Checksum(executed),
		Principal:      opts.Principal,
		StartedAt:      startedAt,
		FinishedAt:     time.Now(),
	}
	m.recordOutcome(p, opts.Principal, execute.StatusRolledBack, executed, startedAt, nil)

	m.logger.Info("rollback executed",
		"planId", p.ID,
		"steps", completed,
		"principal", opts.Principal)
	return result, nil
}

// executeAtomic runs every step in one transaction.
func (m *Manager) executeAtomic(ctx context.Context, p *schema.RollbackPlan, opts ExecuteOptions) (int, []string, error) {
	var executed []string
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		introspector, err := catalog.NewIntrospector(tx)
		if err != nil {
			return err
		}
		for _, step := range p.Steps {
			if err := m.applyStep(ctx, tx, introspector, p, step, opts, 0); err != nil {
				return err
			}
			executed = append(executed, step.SQL)
		}
		return nil
	})
	if err != nil {
		// The transaction rolled back: nothing completed.
		return 0, nil, asRollbackError(err, p, opts.Principal, 0)
	}
	return len(p.Steps), executed, nil
}

// executeStepwise commits each step on its own and stops at the first
// failure, reporting how many steps completed.
func (m *Manager) executeStepwise(ctx context.Context, p *schema.RollbackPlan, opts ExecuteOptions) (int, []string, error) {
	var executed []string
	for i, step := range p.Steps {
		err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			introspector, err := catalog.NewIntrospector(tx)
			if err != nil {
				return err
			}
			return m.applyStep(ctx, tx, introspector, p, step, opts, i)
		})
		if err != nil {
			return i, executed, asRollbackError(err, p, opts.Principal, i)
		}
		executed = append(executed, step.SQL)
	}
	return len(p.Steps), executed, nil
}

// applyStep executes one step's SQL and post-validates the rename.
func (m *Manager) applyStep(ctx context.Context, tx *gorm.DB, introspector catalog.Introspector, p *schema.RollbackPlan, step schema.RollbackStep, opts ExecuteOptions, completed int) error {
	fail := func(err error) error {
		return &schema.RollbackError{
			PlanID:         p.ID,
			StepOrder:      step.Order,
			SQL:            step.SQL,
			CompletedSteps: completed,
			TotalSteps:     len(p.Steps),
			Principal:      opts.Principal,
			Timestamp:      time.Now(),
			Err:            err,
		}
	}

	if err := tx.Exec(step.SQL).Error; err != nil {
		return fail(err)
	}

	ref := catalog.ElementRef{Type: step.ElementType, Schema: step.Schema, Table: step.Table, Name: step.ToName}
	ok, err := introspector.Exists(ctx, ref)
	if err != nil {
		return fail(err)
	}
	if !ok {
		return fail(fmt.Errorf("%s %s not present after step", step.ElementType, step.ToName))
	}
	ref.Name = step.FromName
	ok, err = introspector.Exists(ctx, ref)
	if err != nil {
		return fail(err)
	}
	if ok {
		return fail(fmt.Errorf("%s %s still present after step", step.ElementType, step.FromName))
	}
	return nil
}

// verifyRestored re-confirms after commit that every original identifier is
// back and no deprecated identifier remains.
func (m *Manager) verifyRestored(ctx context.Context, p *schema.RollbackPlan) error {
	for _, step := range p.Steps {
		ref := catalog.ElementRef{Type: step.ElementType, Schema: step.Schema, Table: step.Table, Name: step.ToName}
		ok, err := m.introspector.Exists(ctx, ref)
		if err != nil {
			return fmt.Errorf("post-rollback validation: %w", err)
		}
		if !ok {
			return fmt.Errorf("post-rollback validation: %s %s missing", step.ElementType, step.ToName)
		}
	}
	return nil
}

func (m *Manager) recordOutcome(p *schema.RollbackPlan, principal, status string, executed []string, startedAt time.Time, execErr error) {
	if m.history == nil {
		return
	}
	rec := &execute.MigrationRecord{
		ID:          uuid.New().String(),
		PlanID:      p.MigrationID,
		Operation:   "rollback",
		Status:      status,
		SQLChecksum: execute.Checksum(executed),
		Principal:   principal,
		StepCount:   len(executed),
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
	}
	if execErr != nil {
		rec.Error = execErr.Error()
	}
	if err := m.history.Record(rec); err != nil {
		m.logger.Error("failed to record rollback history", "planId", p.ID, "error", err)
	}
}

func (m *Manager) raiseAlert(ctx context.Context, planID string, err error) {
	m.logger.Error("rollback failed, manual intervention required", "planId", planID, "error", err)
	if m.alert != nil {
		m.alert(ctx, planID, err.Error())
	}
}

// orderForRollback sorts elements for restoration: fewest dependents first,
// all tables after non-tables.
func orderForRollback(elements []schema.DeprecatedElement) []schema.DeprecatedElement {
	ordered := make([]schema.DeprecatedElement, len(elements))
	copy(ordered, elements)
	sort.SliceStable(ordered, func(i, j int) bool {
		iTable := ordered[i].Type == schema.ElementTable
		jTable := ordered[j].Type == schema.ElementTable
		if iTable != jTable {
			return !iTable
		}
		return len(ordered[i].Dependencies) < len(ordered[j].Dependencies)
	})
	return ordered
}

func asRollbackError(err error, p *schema.RollbackPlan, principal string, completed int) error {
	var rbErr *schema.RollbackError
	if errors.As(err, &rbErr) {
		// Keep the step-level error but fix up the completion count seen
		// by the caller (atomic mode completes nothing).
		rbErr.CompletedSteps = completed
		return rbErr
	}
	return &schema.RollbackError{
		PlanID:         p.ID,
		CompletedSteps: completed,
		TotalSteps:     len(p.Steps),
		Principal:      principal,
		Timestamp:      time.Now(),
		Err:            err,
	}
}
