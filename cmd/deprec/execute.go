package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/schemaops/deprec/pkg/execute"
	"github.com/schemaops/deprec/pkg/monitor"
	"github.com/schemaops/deprec/pkg/schema"
)

var executePrincipal string

var executeCmd = &cobra.Command{
	Use:   "execute <plan.json>",
	Short: "Execute a deprecation plan",
	Long: `Applies every rename of the plan inside one transaction. Any step
failure aborts the whole plan and leaves the schema unchanged. On success
the deprecated elements are registered for access monitoring and the plan
file is updated with their new lifecycle state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dp, err := readPlanFile(args[0])
		if err != nil {
			return err
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		logger := newLogger()

		history := execute.NewHistoryStore(db)
		if err := history.AutoMigrate(); err != nil {
			return err
		}

		executor := execute.NewExecutor(db, history, nil, execute.ConfigFromEnv(), logger)
		result, err := executor.Execute(cmd.Context(), dp, principalOr(executePrincipal))
		if err != nil {
			return err
		}

		// Register the renamed elements for access monitoring.
		telemetry := monitor.NewTelemetryStore(db)
		if err := telemetry.AutoMigrate(); err != nil {
			return err
		}
		for _, el := range dp.Elements {
			if err := telemetry.Track(el.DeprecatedName, el.Type, dp.ID, el.DeprecationDate); err != nil {
				logger.Error("failed to register element for monitoring", "element", el.DeprecatedName, "error", err)
			}
		}

		if err := writePlanFile(args[0], dp); err != nil {
			return err
		}

		if outputFmt == "table" {
			fmt.Printf("Plan %s executed: %d step(s), checksum %s\n",
				result.PlanID, result.StepsExecuted, truncate(result.SQLChecksum, 16))
			return nil
		}
		return printOutput(result)
	},
}

func init() {
	executeCmd.Flags().StringVar(&executePrincipal, "principal", "", "Acting principal recorded in the migration history")
}

func principalOr(flag string) string {
	if flag != "" {
		return flag
	}
	if p := viper.GetString("principal"); p != "" {
		return p
	}
	return os.Getenv("USER")
}

func readPlanFile(path string) (*schema.DeprecationPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read plan: %w", err)
	}
	var dp schema.DeprecationPlan
	if err := json.Unmarshal(data, &dp); err != nil {
		return nil, fmt.Errorf("parse plan: %w", err)
	}
	return &dp, nil
}

func writePlanFile(path string, dp *schema.DeprecationPlan) error {
	out, err := json.MarshalIndent(dp, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("update plan file: %w", err)
	}
	return nil
}
