package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/offertesting/outreach_services/internal/scheduler_service/app"
)

var runOnceLane string

var runOnceCmd = &cobra.Command{
	Use:   "run-once",
	Short: "Run one scheduler invocation per lane and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := buildComponents(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer c.Close()

		lanes, err := selectLanes(c.lanes, runOnceLane)
		if err != nil {
			return err
		}
		results := make([]app.RunResult, 0, len(lanes))
		for _, lane := range lanes {
			res, err := lane.RunOnce(ctx)
			if err != nil {
				appLog.ErrorContext(ctx, "Lane invocation failed", "lane", lane.Name(), "error", err)
			}
			results = append(results, res)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	},
}

func init() {
	runOnceCmd.Flags().StringVar(&runOnceLane, "lane", "", "Run only this lane")
	rootCmd.AddCommand(runOnceCmd)
}
