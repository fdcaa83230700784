package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
)

var digestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Deliver the digest if a slot is due",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := buildComponents(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer c.Close()

		res, err := c.digest.RunDue(ctx)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(res)
	},
}

var reclaimCmd = &cobra.Command{
	Use:   "reclaim",
	Short: "Resolve records stuck in sending",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		c, err := buildComponents(ctx, cfg, appLog)
		if err != nil {
			return err
		}
		defer c.Close()

		summary, err := c.reclaimer.Sweep(ctx)
		if err != nil {
			return err
		}
		return json.NewEncoder(os.Stdout).Encode(summary)
	},
}

func init() {
	rootCmd.AddCommand(digestCmd)
	rootCmd.AddCommand(reclaimCmd)
}
