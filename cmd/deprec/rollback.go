package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/schemaops/deprec/pkg/catalog"
	"github.com/schemaops/deprec/pkg/execute"
	"github.com/schemaops/deprec/pkg/monitor"
	"github.com/schemaops/deprec/pkg/rollback"
	"github.com/schemaops/deprec/pkg/schema"
)

var (
	rollbackTestOnly  bool
	rollbackPartial   bool
	rollbackPrincipal string
)

var rollbackCmd = &cobra.Command{
	Use:   "rollback <plan.json>",
	Short: "Restore the original identifiers of an executed plan",
	Long: `Executes the rollback plan embedded in the deprecation plan. Default
semantics are strict all-or-nothing: one transaction, abort on first
failure, schema unchanged. --partial opts into step-scoped transactions
with a reported completion count. --test validates without touching
anything.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dp, err := readPlanFile(args[0])
		if err != nil {
			return err
		}
		if dp.Rollback == nil || len(dp.Rollback.Steps) == 0 {
			return fmt.Errorf("plan %s carries no rollback plan", dp.ID)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		introspector, err := catalog.NewIntrospector(db)
		if err != nil {
			return err
		}
		logger := newLogger()

		history := execute.NewHistoryStore(db)
		if err := history.AutoMigrate(); err != nil {
			return err
		}
		telemetry := monitor.NewTelemetryStore(db)
		if err := telemetry.AutoMigrate(); err != nil {
			return err
		}

		alerts := monitor.NewAlertSystem(telemetry, 0, logger, &monitor.LogNotifier{Logger: logger})
		alertFn := func(ctx context.Context, planID, message string) {
			alerts.Raise(monitor.Alert{
				ElementName: planID,
				Severity:    monitor.AlertCritical,
				Message:     fmt.Sprintf("rollback failed, manual intervention required: %s", message),
			})
		}

		mgr := rollback.NewManager(db, introspector, history, nil, nil, alertFn, rollback.ConfigFromEnv(), logger)

		if rollbackTestOnly {
			res, err := mgr.Test(cmd.Context(), dp.Rollback)
			if err != nil {
				return err
			}
			if outputFmt == "table" {
				printTestResult(res)
				return nil
			}
			return printOutput(res)
		}

		result, err := mgr.Execute(cmd.Context(), dp.Rollback, rollback.ExecuteOptions{
			Principal:            principalOr(rollbackPrincipal),
			AllowPartialRollback: rollbackPartial,
		})
		if err != nil {
			return err
		}

		// Restored elements leave monitoring; their deprecated names are gone.
		for i, el := range dp.Elements {
			if err := telemetry.Untrack(el.DeprecatedName); err != nil {
				logger.Error("failed to remove element from monitoring", "element", el.DeprecatedName, "error", err)
			}
			dp.Elements[i].State = schema.StateRestored
		}
		if err := writePlanFile(args[0], dp); err != nil {
			return err
		}

		if outputFmt == "table" {
			fmt.Printf("Rollback of plan %s completed: %d/%d step(s)\n",
				result.PlanID, result.CompletedSteps, result.TotalSteps)
			return nil
		}
		return printOutput(result)
	},
}

func init() {
	rollbackCmd.Flags().BoolVar(&rollbackTestOnly, "test", false, "Validate the rollback plan without executing it")
	rollbackCmd.Flags().BoolVar(&rollbackPartial, "partial", false, "Allow partial rollback with step-scoped transactions")
	rollbackCmd.Flags().StringVar(&rollbackPrincipal, "principal", "", "Acting principal recorded in the migration history")
}

func printTestResult(res *rollback.TestResult) {
	if res.CanExecute {
		fmt.Println("Rollback plan can execute.")
	} else {
		fmt.Println("Rollback plan CANNOT execute:")
	}
	for _, issue := range res.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
	for _, w := range res.Warnings {
		fmt.Printf("  warning: %s\n", w)
	}
}
