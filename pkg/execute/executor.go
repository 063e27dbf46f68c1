// Package execute runs deprecation plans against the database. All DDL for
// a plan runs inside one transaction: any step failure aborts the whole
// plan and the schema is left provably unchanged.
package execute

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

	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/schema"
)

// Config controls execution behavior.
type Config struct {
	// Timeout bounds a single plan execution. Exceeding it aborts the
	// in-flight transaction. Default 300s.
	Timeout time.Duration
}

// DefaultConfig returns the default executor configuration.
func DefaultConfig() Config {
	return Config{Timeout: 300 * time.Second}
}

// ConfigFromEnv loads config from environment variables.
// DEPREC_EXECUTE_TIMEOUT_SECONDS
func ConfigFromEnv() Config {
	cfg := DefaultConfig()
	if v := os.Getenv("DEPREC_EXECUTE_TIMEOUT_SECONDS"); v != "" {
		if d, err := time.ParseDuration(v + "s"); err == nil && d > 0 {
			cfg.Timeout = d
		}
	}
	return cfg
}

// ExecutionResult summarizes a committed plan execution.
type ExecutionResult struct {
	PlanID        string    `json:"planId"`
	StepsExecuted int       `json:"stepsExecuted"`
	SQLChecksum   string    `json:"sqlChecksum"`
	Principal     string    `json:"principal"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
}

// Executor applies deprecation plans transactionally.
type Executor struct {
	db        *gorm.DB
	history   *HistoryStore
	locks     *NamedLocks
	cfg       Config
	lifecycle *schema.Lifecycle
	logger    *slog.Logger
}

// NewExecutor creates an executor. history may be nil, in which case no
// audit record is written (tests only; production wiring always passes one).
func NewExecutor(db *gorm.DB, history *HistoryStore, locks *NamedLocks, cfg Config, logger *slog.Logger) *Executor {
	if locks == nil {
		locks = NewNamedLocks()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		db:        db,
		history:   history,
		locks:     locks,
		cfg:       cfg,
		lifecycle: schema.NewLifecycle(),
		logger:    logger,
	}
}

// Execute runs every element rename of the plan inside one transaction,
// independent elements first. After each statement a validation lookup
// confirms the rename took effect before the next step runs. DDL is never
// retried: a failure aborts the transaction and surfaces an ExecutionError.
// On success the element states advance to deprecated and a history record
// is persisted outside the DDL transaction.
func (x *Executor) Execute(ctx context.Context, p *schema.DeprecationPlan, principal string) (*ExecutionResult, error) {
	for _, el := range p.Elements {
		if err := x.lifecycle.ValidateTransition(el.State, schema.StateDeprecated); err != nil {
			return nil, fmt.Errorf("element %s: %w", el.QualifiedName(), err)
		}
	}

	names := make([]string, 0, len(p.Elements))
	for _, el := range p.Elements {
		names = append(names, el.QualifiedName())
	}
	release := x.locks.Acquire(names)
	defer release()

	ctx, cancel := context.WithTimeout(ctx, x.cfg.Timeout)
	defer cancel()

	ordered := orderForMigration(p.Elements)
	executed := make([]string, 0, len(ordered))
	startedAt := time.Now()

	err := x.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		introspector, err := catalog.NewIntrospector(tx)
		if err != nil {
			return err
		}
		for i, el := range ordered {
			if err := tx.Exec(el.MigrationSQL).Error; err != nil {
				return &schema.ExecutionError{
					PlanID:    p.ID,
					StepOrder: i + 1,
					SQL:       el.MigrationSQL,
					Principal: principal,
					Timestamp: time.Now(),
					Err:       err,
				}
			}
			if err := verifyRename(ctx, introspector, el.Type, el.Schema, el.Table, el.DeprecatedName, el.OriginalName); err != nil {
				return &schema.ExecutionError{
					PlanID:    p.ID,
					StepOrder: i + 1,
					SQL:       el.MigrationSQL,
					Principal: principal,
					Timestamp: time.Now(),
					Err:       err,
				}
			}
			executed = append(executed, el.MigrationSQL)
		}
		return nil
	})
	if err != nil {
		var execErr *schema.ExecutionError
		if !errors.As(err, &execErr) {
			err = &schema.ExecutionError{
				PlanID:    p.ID,
				Principal: principal,
				Timestamp: time.Now(),
				Err:       err,
			}
		}
		x.logger.Error("plan execution aborted, schema unchanged", "planId", p.ID, "error", err)
		return nil, err
	}

	for i := range p.Elements {
		p.Elements[i].State = schema.StateDeprecated
	}

	result := &ExecutionResult{
		PlanID:        p.ID,
		StepsExecuted: len(executed),
		SQLChecksum:   Checksum(executed),
		Principal:     principal,
		StartedAt:     startedAt,
		FinishedAt:    time.Now(),
	}

	if x.history != nil {
		rec := &MigrationRecord{
			ID:          uuid.New().String(),
			PlanID:      p.ID,
			Operation:   "migration",
			Status:      StatusApplied,
			SQLChecksum: result.SQLChecksum,
			Principal:   principal,
			Environment: p.Metadata.Environment,
			StepCount:   result.StepsExecuted,
			StartedAt:   result.StartedAt,
			FinishedAt:  result.FinishedAt,
		}
		if err := x.history.Record(rec); err != nil {
			return result, fmt.Errorf("plan %s committed but history record failed: %w", p.ID, err)
		}
	}

	x.logger.Info("plan executed",
		"planId", p.ID,
		"steps", result.StepsExecuted,
		"checksum", result.SQLChecksum,
		"principal", principal)
	return result, nil
}

// orderForMigration sorts elements with fewer dependents first, so renames
// least likely to trip constraints run before the heavily referenced ones.
// The sort is stable to keep equal-dependency batches deterministic.
func orderForMigration(elements []schema.DeprecatedElement) []schema.DeprecatedElement {
	ordered := make([]schema.DeprecatedElement, len(elements))
	copy(ordered, elements)
	sort.SliceStable(ordered, func(i, j int) bool {
		return len(ordered[i].Dependencies) < len(ordered[j].Dependencies)
	})
	return ordered
}

// verifyRename confirms the post-rename catalog state: the new name exists
// and the old one does not.
func verifyRename(ctx context.Context, in catalog.Introspector, elType schema.ElementType, schemaName, table, present, absent string) error {
	ok, err := in.Exists(ctx, catalog.ElementRef{Type: elType, Schema: schemaName, Table: table, Name: present})
	if err != nil {
		return fmt.Errorf("validate rename: %w", err)
	}
	if !ok {
		return fmt.Errorf("validate rename: %s %s not present after rename", elType, present)
	}
	ok, err = in.Exists(ctx, catalog.ElementRef{Type: elType, Schema: schemaName, Table: table, Name: absent})
	if err != nil {
		return fmt.Errorf("validate rename: %w", err)
	}
	if ok {
		return fmt.Errorf("validate rename: %s %s still present after rename", elType, absent)
	}
	return nil
}
