package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/schemaops/deprec/pkg/execute"
	"github.com/schemaops/deprec/pkg/monitor"
)

var statusLimit int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show migration history and removal candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}

		history := execute.NewHistoryStore(db)
		if err := history.AutoMigrate(); err != nil {
			return err
		}
		telemetry := monitor.NewTelemetryStore(db)
		if err := telemetry.AutoMigrate(); err != nil {
			return err
		}

		cfg := monitor.ConfigFromEnv()
		recent, err := history.ListRecent(statusLimit)
		if err != nil {
			return err
		}
		candidates, err := telemetry.RemovalCandidates(cfg.SoakWindow)
		if err != nil {
			return err
		}

		if outputFmt != "table" {
			return printOutput(map[string]any{
				"history":           recent,
				"removalCandidates": candidates,
			})
		}

		fmt.Println("Recent operations:")
		rows := make([][]string, 0, len(recent))
		for _, r := range recent {
			rows = append(rows, []string{
				r.PlanID,
				r.Operation,
				r.Status,
				r.Principal,
				fmt.Sprintf("%d", r.StepCount),
				r.StartedAt.Format(time.RFC3339),
			})
		}
		printTable([]string{"plan", "operation", "status", "principal", "steps", "started"}, rows)

		fmt.Printf("\nRemoval candidates (quiet for %s):\n", cfg.SoakWindow)
		if len(candidates) == 0 {
			fmt.Println("  none")
			return nil
		}
		crows := make([][]string, 0, len(candidates))
		for _, c := range candidates {
			last := "never"
			if c.LastAccessed != nil {
				last = c.LastAccessed.Format(time.RFC3339)
			}
			crows = append(crows, []string{
				c.ElementName,
				c.ElementType,
				c.DeprecatedAt.Format("2006-01-02"),
				fmt.Sprintf("%d", c.AccessCount),
				last,
			})
		}
		printTable([]string{"element", "type", "deprecated", "accesses", "last access"}, crows)
		return nil
	},
}

func init() {
	statusCmd.Flags().IntVar(&statusLimit, "limit", 20, "Max history records to show")
}
