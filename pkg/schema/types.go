// Package schema defines the domain model shared by the deprecation engine:
// element descriptions, plans, safety check results, access events, and the
// element lifecycle state machine.
package schema

import (
	"time"
)

// ElementType identifies the kind of schema element an operation targets.
type ElementType string

const (
	ElementTable      ElementType = "table"
	ElementColumn     ElementType = "column"
	ElementIndex      ElementType = "index"
	ElementConstraint ElementType = "constraint"
)

// Valid reports whether t is a known element type.
func (t ElementType) Valid() bool {
	switch t {
	case ElementTable, ElementColumn, ElementIndex, ElementConstraint:
		return true
	}
	return false
}

// Reason is the declared motivation for deprecating an element.
type Reason string

const (
	ReasonUnused       Reason = "unused"
	ReasonPerformance  Reason = "performance"
	ReasonMigration    Reason = "migration"
	ReasonRefactor     Reason = "refactor"
	ReasonSecurity     Reason = "security"
	ReasonOptimization Reason = "optimization"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonUnused, ReasonPerformance, ReasonMigration, ReasonRefactor,
		ReasonSecurity, ReasonOptimization:
		return true
	}
	return false
}

// Impact classifies how disruptive breaking a dependency would be.
type Impact string

const (
	ImpactLow    Impact = "low"
	ImpactMedium Impact = "medium"
	ImpactHigh   Impact = "high"
)

// RiskLevel is the derived classification driving approval requirements.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Severity grades a safety check result.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Dependency describes a database object that references the element under
// consideration (foreign key, view, trigger, ...).
type Dependency struct {
	Type            string `json:"type"`
	Name            string `json:"name"`
	DependentObject string `json:"dependentObject"`
	Impact          Impact `json:"impact"`
}

// UsageData is the externally supplied usage analysis for an element. The
// confidence score is opaque to this engine; it is validated for range and
// otherwise passed through.
type UsageData struct {
	LastAccessed    *time.Time `json:"lastAccessed,omitempty"`
	AccessCount     int64      `json:"accessCount"`
	ConfidenceScore float64    `json:"confidenceScore"`
	AnalysisDate    time.Time  `json:"analysisDate"`
	AccessSources   []string   `json:"accessSources,omitempty"`
}

// Candidate is the raw input produced by the external unused-element
// analysis tool.
type Candidate struct {
	Type   ElementType `json:"type" yaml:"type"`
	Name   string      `json:"name" yaml:"name"`
	Schema string      `json:"schema" yaml:"schema"`
	// Table qualifies column, index, and constraint candidates.
	Table  string    `json:"table,omitempty" yaml:"table,omitempty"`
	Reason Reason    `json:"reason" yaml:"reason"`
	Usage  UsageData `json:"usage" yaml:"usage"`
}

// QualifiedName returns the schema-qualified identifier used for locking and
// lookup. Columns, indexes, and constraints include their owning table.
func (c Candidate) QualifiedName() string {
	if c.Table != "" && c.Type != ElementTable {
		return c.Schema + "." + c.Table + "." + c.Name
	}
	return c.Schema + "." + c.Name
}

// DeprecatedElement is a fully planned element: the original identifier, the
// generated deprecated identifier, and the paired migration/rollback SQL.
// RollbackSQL is always the exact structural inverse of MigrationSQL.
type DeprecatedElement struct {
	Type            ElementType  `json:"type"`
	OriginalName    string       `json:"originalName"`
	DeprecatedName  string       `json:"deprecatedName"`
	Schema          string       `json:"schema"`
	Table           string       `json:"table,omitempty"`
	DeprecationDate time.Time    `json:"deprecationDate"`
	Reason          Reason       `json:"reason"`
	Dependencies    []Dependency `json:"dependencies"`
	Usage           UsageData    `json:"usageData"`
	MigrationSQL    string       `json:"migrationSql"`
	RollbackSQL     string       `json:"rollbackSql"`
	State           ElementState `json:"state"`
}

// QualifiedName mirrors Candidate.QualifiedName for planned elements.
func (e DeprecatedElement) QualifiedName() string {
	if e.Table != "" && e.Type != ElementTable {
		return e.Schema + "." + e.Table + "." + e.OriginalName
	}
	return e.Schema + "." + e.OriginalName
}

// HasHighImpactDependency reports whether any dependency is classified high.
func (e DeprecatedElement) HasHighImpactDependency() bool {
	for _, d := range e.Dependencies {
		if d.Impact == ImpactHigh {
			return true
		}
	}
	return false
}

// SafetyCheckResult is the outcome of a single safety check for one element.
type SafetyCheckResult struct {
	Check    string   `json:"check"`
	Element  string   `json:"element"`
	Passed   bool     `json:"passed"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// PlanMetadata carries risk classification and provenance for a plan.
type PlanMetadata struct {
	RiskLevel        RiskLevel `json:"riskLevel"`
	ApprovalRequired bool      `json:"approvalRequired"`
	CreatedBy        string    `json:"createdBy"`
	Environment      string    `json:"environment"`
	CreatedAt        time.Time `json:"createdAt"`
}

// DeprecationPlan is an executable set of rename operations plus the paired
// rollback plan. A plan is only materialized when no critical safety check
// failed, so holding a *DeprecationPlan implies the batch passed its gates.
type DeprecationPlan struct {
	ID           string              `json:"id"`
	Elements     []DeprecatedElement `json:"elements"`
	Rollback     *RollbackPlan       `json:"rollbackPlan"`
	SafetyChecks []SafetyCheckResult `json:"safetyChecks"`
	Metadata     PlanMetadata        `json:"metadata"`
}

// RollbackSQLType classifies a rollback step.
type RollbackSQLType string

const (
	RollbackRename           RollbackSQLType = "rename"
	RollbackCreateConstraint RollbackSQLType = "create_constraint"
	RollbackCreateIndex      RollbackSQLType = "create_index"
)

// RollbackStep is one ordered operation in a rollback plan. Steps are
// self-contained: the rename direction (FromName -> ToName) and the element
// coordinates are recorded so execution and validation need nothing beyond
// the plan itself.
type RollbackStep struct {
	Order         int             `json:"order"`
	SQLType       RollbackSQLType `json:"sqlType"`
	SQL           string          `json:"sql"`
	Description   string          `json:"description"`
	ValidationSQL string          `json:"validationSql"`
	Element       string          `json:"element"`
	ElementType   ElementType     `json:"elementType"`
	Schema        string          `json:"schema"`
	Table         string          `json:"table,omitempty"`
	FromName      string          `json:"fromName"`
	ToName        string          `json:"toName"`
}

// RollbackPlan restores original identifiers for a previously executed
// deprecation plan.
type RollbackPlan struct {
	ID                string         `json:"id"`
	MigrationID       string         `json:"migrationId"`
	Steps             []RollbackStep `json:"steps"`
	EstimatedDuration time.Duration  `json:"estimatedDuration"`
	StepDependencies  []string       `json:"stepDependencies,omitempty"`
	ValidationChecks  []string       `json:"validationChecks,omitempty"`
}

// AccessSource describes where an observed access originated.
type AccessSource struct {
	Kind       string `json:"kind"` // application | manual | migration
	Identifier string `json:"identifier"`
	Origin     string `json:"origin,omitempty"`
}

// AccessEvent records a single observed access to a deprecated element.
type AccessEvent struct {
	ElementName string       `json:"elementName"`
	ElementType ElementType  `json:"elementType"`
	Source      AccessSource `json:"source"`
	QueryType   string       `json:"queryType"`
	Timestamp   time.Time    `json:"timestamp"`
}
