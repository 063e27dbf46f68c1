// Package policy evaluates environment and approval policies for
// deprecation plans. Policies are loaded from a YAML file and can be hot
// reloaded while the engine runs.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/schemaops/deprec/pkg/schema"
)

// File is the top-level structure of the approval policies YAML file.
type File struct {
	Policies []ApprovalPolicy `yaml:"policies" json:"policies"`
}

// ApprovalPolicy defines a single approval rule.
type ApprovalPolicy struct {
	ID            string   `yaml:"id" json:"id"`
	DisplayName   string   `yaml:"displayName" json:"displayName"`
	Description   string   `yaml:"description" json:"description,omitempty"`
	Enabled       bool     `yaml:"enabled" json:"enabled"`
	Selector      Selector `yaml:"selector" json:"selector"`
	RequiredCount int      `yaml:"requiredCount" json:"requiredCount"`
	AllowedRoles  []string `yaml:"allowedRoles,omitempty" json:"allowedRoles,omitempty"`
}

// Selector determines which elements and environments a policy applies to.
// Empty lists match everything.
type Selector struct {
	Environments []string `yaml:"environments,omitempty" json:"environments,omitempty"`
	RiskLevels   []string `yaml:"riskLevels,omitempty" json:"riskLevels,omitempty"`
	ElementTypes []string `yaml:"elementTypes,omitempty" json:"elementTypes,omitempty"`
	Reasons      []string `yaml:"reasons,omitempty" json:"reasons,omitempty"`
}

func (s Selector) matches(env string, risk schema.RiskLevel, elType schema.ElementType, reason schema.Reason) bool {
	return matchList(s.Environments, env) &&
		matchList(s.RiskLevels, string(risk)) &&
		matchList(s.ElementTypes, string(elType)) &&
		matchList(s.Reasons, string(reason))
}

func matchList(list []string, value string) bool {
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

// EvaluationResult describes whether an approval gate applies.
type EvaluationResult struct {
	RequiresApproval bool     `json:"requiresApproval"`
	PolicyID         string   `json:"policyId,omitempty"`
	PolicyName       string   `json:"policyName,omitempty"`
	RequiredCount    int      `json:"requiredCount,omitempty"`
	AllowedRoles     []string `json:"allowedRoles,omitempty"`
}

// Evaluator evaluates approval policies against plan context.
type Evaluator struct {
	policies []ApprovalPolicy
}

// NewEvaluator creates an evaluator with the given policies.
func NewEvaluator(policies []ApprovalPolicy) *Evaluator {
	return &Evaluator{policies: policies}
}

// Load reads policies from a YAML file. A missing file yields an empty
// evaluator, which never requires approval by policy (risk-derived approval
// still applies at the planner).
func Load(path string) (*Evaluator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewEvaluator(nil), nil
		}
		return nil, fmt.Errorf("read approval policies: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse approval policies: %w", err)
	}
	return NewEvaluator(f.Policies), nil
}

// Evaluate returns the first enabled matching policy's gate, or a result
// with RequiresApproval=false when none match.
func (e *Evaluator) Evaluate(env string, risk schema.RiskLevel, elType schema.ElementType, reason schema.Reason) EvaluationResult {
	for _, p := range e.policies {
		if !p.Enabled {
			continue
		}
		if p.Selector.matches(env, risk, elType, reason) {
			count := p.RequiredCount
			if count <= 0 {
				count = 1
			}
			return EvaluationResult{
				RequiresApproval: true,
				PolicyID:         p.ID,
				PolicyName:       p.DisplayName,
				RequiredCount:    count,
				AllowedRoles:     p.AllowedRoles,
			}
		}
	}
	return EvaluationResult{RequiresApproval: false}
}

// IsProduction reports whether env names a production environment.
func IsProduction(env string) bool {
	return env == "production" || env == "prod"
}
