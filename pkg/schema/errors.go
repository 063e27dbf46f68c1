package schema

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError reports malformed candidate input or a naming grammar
// violation. It is raised before any database access.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// SafetyCheckFailure aggregates failing safety checks. Planning raises it
// with severity critical and zero side effects; high/medium failures are
// attached to plans as warnings instead.
type SafetyCheckFailure struct {
	Severity Severity            `json:"severity"`
	Results  []SafetyCheckResult `json:"results"`
}

func (e *SafetyCheckFailure) Error() string {
	msgs := make([]string, 0, len(e.Results))
	for _, r := range e.Results {
		msgs = append(msgs, fmt.Sprintf("%s [%s] %s: %s", r.Check, r.Severity, r.Element, r.Message))
	}
	return fmt.Sprintf("%d safety check(s) failed at severity %s: %s",
		len(e.Results), e.Severity, strings.Join(msgs, "; "))
}

// CriticalResults returns only the critical-severity failures.
func (e *SafetyCheckFailure) CriticalResults() []SafetyCheckResult {
	var out []SafetyCheckResult
	for _, r := range e.Results {
		if r.Severity == SeverityCritical {
			out = append(out, r)
		}
	}
	return out
}

// ExecutionError reports a DDL failure inside the migration transaction.
// The wrapping transaction has been rolled back; the database is unchanged.
type ExecutionError struct {
	PlanID    string    `json:"planId"`
	StepOrder int       `json:"stepOrder"`
	SQL       string    `json:"sql"`
	Principal string    `json:"principal"`
	Timestamp time.Time `json:"timestamp"`
	Err       error     `json:"-"`
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("plan %s: step %d failed (transaction rolled back, schema unchanged): %v",
		e.PlanID, e.StepOrder, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// RollbackError reports a failure during rollback execution. It is never
// auto-retried; CompletedSteps is only non-zero in partial-rollback mode.
type RollbackError struct {
	PlanID         string    `json:"planId"`
	StepOrder      int       `json:"stepOrder"`
	SQL            string    `json:"sql"`
	CompletedSteps int       `json:"completedSteps"`
	TotalSteps     int       `json:"totalSteps"`
	Principal      string    `json:"principal"`
	Timestamp      time.Time `json:"timestamp"`
	Err            error     `json:"-"`
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("rollback plan %s: step %d of %d failed (%d completed, manual intervention required): %v",
		e.PlanID, e.StepOrder, e.TotalSteps, e.CompletedSteps, e.Err)
}

func (e *RollbackError) Unwrap() error { return e.Err }

// ConfigurationError reports invalid backup/retention/verification settings
// detected at startup, before any operation is attempted.
type ConfigurationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s: %s", e.Field, e.Message)
}
