package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/plan"
	"github.com/schemaops/deprec/pkg/policy"
	"github.com/schemaops/deprec/pkg/rollback"
	"github.com/schemaops/deprec/pkg/safety"
	"github.com/schemaops/deprec/pkg/schema"
)

var (
	planCandidatesFile string
	planOutFile        string
	planApproved       bool
	planBackupOK       bool
)

// candidatesFile is the YAML document handed over by the external
// unused-element analysis tool.
type candidatesFile struct {
	Candidates []schema.Candidate `yaml:"candidates"`
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Build a deprecation plan from an analysis candidates file",
	Long: `Reads candidates from the analysis YAML, runs the full safety check
battery, and emits a deprecation plan with its paired rollback plan. A
critical safety failure aborts without producing a plan.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(planCandidatesFile)
		if err != nil {
			return fmt.Errorf("read candidates: %w", err)
		}
		var f candidatesFile
		if err := yaml.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("parse candidates: %w", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		introspector, err := catalog.NewIntrospector(db)
		if err != nil {
			return err
		}

		policies, err := policy.Load(viper.GetString("policies.file"))
		if err != nil {
			return err
		}

		logger := newLogger()
		planner := plan.NewPlanner(
			introspector,
			safety.NewEngine(introspector, safety.ConfigFromEnv(), logger),
			rollback.NewManager(nil, nil, nil, nil, nil, nil, rollback.ConfigFromEnv(), logger),
			policies,
			logger,
		)

		dp, err := planner.Plan(cmd.Context(), f.Candidates, plan.Options{
			Environment:       resolvedEnvironment(),
			CreatedBy:         viper.GetString("principal"),
			ApprovalSatisfied: planApproved,
			BackupValidated:   planBackupOK,
		})
		if err != nil {
			return err
		}

		if planOutFile != "" {
			out, err := json.MarshalIndent(dp, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(planOutFile, out, 0o644); err != nil {
				return fmt.Errorf("write plan: %w", err)
			}
			fmt.Printf("Plan %s written to %s\n", dp.ID, planOutFile)
		}

		if outputFmt == "table" {
			printPlanTable(dp)
			return nil
		}
		return printOutput(dp)
	},
}

func init() {
	planCmd.Flags().StringVarP(&planCandidatesFile, "file", "f", "", "Candidates YAML from the analysis tool (required)")
	planCmd.Flags().StringVar(&planOutFile, "out", "", "Write the plan JSON to this file")
	planCmd.Flags().BoolVar(&planApproved, "approved", false, "Mark the upstream approval workflow as satisfied")
	planCmd.Flags().BoolVar(&planBackupOK, "backup-validated", false, "Mark a backup validation as passed")
	_ = planCmd.MarkFlagRequired("file")
}

func printPlanTable(dp *schema.DeprecationPlan) {
	fmt.Printf("Plan %s  risk=%s  approvalRequired=%t  environment=%s\n\n",
		dp.ID, dp.Metadata.RiskLevel, dp.Metadata.ApprovalRequired, dp.Metadata.Environment)

	rows := make([][]string, 0, len(dp.Elements))
	for _, el := range dp.Elements {
		rows = append(rows, []string{
			string(el.Type),
			el.QualifiedName(),
			el.DeprecatedName,
			string(el.Reason),
			fmt.Sprintf("%d", len(el.Dependencies)),
		})
	}
	printTable([]string{"type", "element", "deprecated name", "reason", "deps"}, rows)

	if warnings := safety.Warnings(dp.SafetyChecks); len(warnings) > 0 {
		fmt.Println()
		wrows := make([][]string, 0, len(warnings))
		for _, w := range warnings {
			wrows = append(wrows, []string{w.Check, string(w.Severity), w.Element, truncate(w.Message, 80)})
		}
		printTable([]string{"warning", "severity", "element", "detail"}, wrows)
	}
}
